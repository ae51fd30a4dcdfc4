package drug

import (
	"context"
	"fmt"
)

type seedEntry struct {
	name     string
	generic  string
	category string
	bfSafety string
}

// Curated starter catalog of drugs commonly asked about during pregnancy.
var seedCatalog = []seedEntry{
	{"Tylenol", "acetaminophen", "B", SafetySafe},
	{"Advil", "ibuprofen", "C", SafetyCaution},
	{"Zoloft", "sertraline", "C", SafetyCaution},
	{"Amoxicillin", "amoxicillin", "B", SafetySafe},
	{"Benadryl", "diphenhydramine", "B", SafetyCaution},
}

const seedConfidence = 0.9

// Seed inserts the starter catalog with manually curated safety rows.
// Rerunning updates the drugs in place and appends fresh safety rows, so it
// is safe on a non-empty database. Returns the number of drugs seeded.
func Seed(ctx context.Context, svc *Service) (int, error) {
	seeded := 0
	for _, entry := range seedCatalog {
		generic := entry.generic
		d, err := svc.EnsureDrug(ctx, entry.name, &generic)
		if err != nil {
			return seeded, fmt.Errorf("seed %s: %w", entry.name, err)
		}

		pregnancy := SafetyCaution
		if entry.category == "A" || entry.category == "B" {
			pregnancy = SafetySafe
		}
		category := entry.category
		summary := seedSummary(entry.name, entry.bfSafety)

		sd := &SafetyData{
			DrugID:              d.ID,
			PregnancyCategory:   &category,
			PregnancySafety:     pregnancy,
			BreastfeedingSafety: entry.bfSafety,
			AISummary:           &summary,
			DataSource:          SourceManual,
			ConfidenceScore:     seedConfidence,
		}
		if err := svc.RecordSafety(ctx, sd); err != nil {
			return seeded, fmt.Errorf("seed %s safety: %w", entry.name, err)
		}
		seeded++
	}
	return seeded, nil
}

func seedSummary(name, bfSafety string) string {
	if bfSafety == SafetySafe {
		return fmt.Sprintf("%s is generally considered safe during breastfeeding.", name)
	}
	return fmt.Sprintf("%s should be used with caution during breastfeeding.", name)
}
