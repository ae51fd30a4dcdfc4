package drug

import (
	"time"

	"github.com/google/uuid"
)

// Safety labels derived for pregnancy and breastfeeding use.
const (
	SafetySafe    = "safe"
	SafetyCaution = "caution"
	SafetyAvoid   = "avoid"
	SafetyUnknown = "unknown"
)

// Data sources a safety assessment can originate from.
const (
	SourceFDA      = "fda_ai"
	SourceEnhanced = "enhanced_multi_source"
	SourceManual   = "manual"
)

var validSafetyLabels = map[string]bool{
	SafetySafe:    true,
	SafetyCaution: true,
	SafetyAvoid:   true,
	SafetyUnknown: true,
}

var validDataSources = map[string]bool{
	SourceFDA:      true,
	SourceEnhanced: true,
	SourceManual:   true,
}

// ValidSafetyLabel reports whether s is a recognized safety label.
func ValidSafetyLabel(s string) bool { return validSafetyLabels[s] }

// ValidDataSource reports whether s is a recognized data source.
func ValidDataSource(s string) bool { return validDataSources[s] }

// Drug maps to the drugs table. Name is the brand name as first recorded;
// lookups compare case-insensitively, so casing is cosmetic.
type Drug struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	GenericName *string   `db:"generic_name" json:"generic_name,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// SafetyData maps to the drug_safety_data table. Rows are append-only: each
// fetch inserts a new row and readers take the freshest non-expired one.
type SafetyData struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	DrugID              uuid.UUID `db:"drug_id" json:"drug_id"`
	PregnancyCategory   *string   `db:"pregnancy_category" json:"pregnancy_category,omitempty"`
	PregnancyText       *string   `db:"pregnancy_text" json:"pregnancy_text,omitempty"`
	BreastfeedingText   *string   `db:"breastfeeding_text" json:"breastfeeding_text,omitempty"`
	PregnancySafety     string    `db:"pregnancy_safety" json:"pregnancy_safety"`
	BreastfeedingSafety string    `db:"breastfeeding_safety" json:"breastfeeding_safety"`
	AISummary           *string   `db:"ai_summary" json:"ai_summary,omitempty"`
	KeyWarnings         []string  `db:"key_warnings" json:"key_warnings"`
	DataSource          string    `db:"data_source" json:"data_source"`
	ConfidenceScore     float64   `db:"confidence_score" json:"confidence_score"`
	StudyCount          int       `db:"study_count" json:"study_count"`
	FetchedAt           time.Time `db:"fetched_at" json:"fetched_at"`
	ExpiresAt           time.Time `db:"expires_at" json:"expires_at"`
}

// Fresh reports whether the row is still servable at the given instant.
func (s *SafetyData) Fresh(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// SearchRecord maps to the searches table. The log is append-only; DrugID is
// nil when the term resolved to no known drug, and is severed (not deleted)
// if the drug is later removed.
type SearchRecord struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	SearchTerm string     `db:"search_term" json:"search_term"`
	DrugID     *uuid.UUID `db:"drug_id" json:"drug_id,omitempty"`
	Found      bool       `db:"found" json:"found"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}
