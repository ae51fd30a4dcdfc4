package enrich

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mal33k-eden/pms-agent-api/internal/domain/drug"
	"github.com/mal33k-eden/pms-agent-api/internal/platform/sources"
)

// AnalysisInput carries whatever the source fetch produced. Any field other
// than DrugName may be nil.
type AnalysisInput struct {
	DrugName string
	Label    *sources.FDALabel
	SPL      *sources.DailyMedSPL
	Research *sources.PubMedResearch
}

// Assessment is the derived safety verdict for one drug.
type Assessment struct {
	PregnancySafety     string
	BreastfeedingSafety string
	Summary             string
	Warnings            []string
	Confidence          float64
	StudyCount          int
}

type Analyzer interface {
	Analyze(ctx context.Context, in AnalysisInput) (*Assessment, error)
}

// RuleAnalyzer derives safety labels deterministically: the FDA pregnancy
// letter category when present, otherwise keyword signals in the label
// narrative. No call leaves the process.
type RuleAnalyzer struct{}

func NewRuleAnalyzer() *RuleAnalyzer {
	return &RuleAnalyzer{}
}

const (
	maxWarnings    = 5
	defaultWarning = "Consult healthcare provider"
)

func (a *RuleAnalyzer) Analyze(_ context.Context, in AnalysisInput) (*Assessment, error) {
	if in.Label == nil && in.SPL == nil && in.Research == nil {
		return &Assessment{
			PregnancySafety:     drug.SafetyUnknown,
			BreastfeedingSafety: drug.SafetyUnknown,
			Summary:             fallbackSummary(in.DrugName),
			Warnings:            []string{defaultWarning},
			Confidence:          0,
			StudyCount:          0,
		}, nil
	}

	var category, pregnancyText, nursingText, warningsText *string
	if in.Label != nil {
		category = in.Label.PregnancyCategory
		pregnancyText = in.Label.PregnancyText
		nursingText = in.Label.BreastfeedingText
		warningsText = in.Label.Warnings
	}
	var lactationText *string
	if in.SPL != nil {
		lactationText = in.SPL.LactationText
	}

	pregnancy := classifyPregnancy(category, pregnancyText)
	breastfeeding := classifyText(joinTexts(nursingText, lactationText))

	studyCount := 0
	hasMeta := false
	if in.Research != nil {
		studyCount = in.Research.TotalStudies
		hasMeta = in.Research.HasMetaAnalysis
	}

	return &Assessment{
		PregnancySafety:     pregnancy,
		BreastfeedingSafety: breastfeeding,
		Summary:             buildSummary(in.DrugName, pregnancy, breastfeeding),
		Warnings:            extractWarnings(warningsText),
		Confidence:          confidenceScore(in.Label != nil, lactationText != nil, studyCount, hasMeta),
		StudyCount:          studyCount,
	}, nil
}

// classifyPregnancy maps the FDA letter category when the label carries
// one; labels issued after the PLLR rule dropped the letters, so the
// narrative scan is the fallback.
func classifyPregnancy(category, text *string) string {
	if category != nil {
		switch strings.ToUpper(strings.TrimSpace(*category)) {
		case "A", "B":
			return drug.SafetySafe
		case "C":
			return drug.SafetyCaution
		case "D", "X":
			return drug.SafetyAvoid
		}
	}
	return classifyText(text)
}

var (
	avoidSignals   = []string{"contraindicated", "should not be used", "do not use", "unsafe"}
	cautionSignals = []string{"no adequate studies", "caution", "risk"}
	safeSignals    = []string{"no evidence of harm", "safe"}
)

// classifyText scans label narrative for safety signals. Avoid outranks
// caution outranks safe, so "use is contraindicated" never reads as safe
// because the sentence also mentions low risk.
func classifyText(text *string) string {
	if text == nil {
		return drug.SafetyUnknown
	}
	lower := strings.ToLower(*text)
	if lower == "" {
		return drug.SafetyUnknown
	}
	for _, signal := range avoidSignals {
		if strings.Contains(lower, signal) {
			return drug.SafetyAvoid
		}
	}
	for _, signal := range cautionSignals {
		if strings.Contains(lower, signal) {
			return drug.SafetyCaution
		}
	}
	for _, signal := range safeSignals {
		if strings.Contains(lower, signal) {
			return drug.SafetySafe
		}
	}
	return drug.SafetyUnknown
}

func joinTexts(texts ...*string) *string {
	var parts []string
	for _, t := range texts {
		if t != nil && *t != "" {
			parts = append(parts, *t)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	joined := strings.Join(parts, " ")
	return &joined
}

// extractWarnings takes the leading sentences of the label's warnings
// section, capped at maxWarnings.
func extractWarnings(text *string) []string {
	if text == nil {
		return []string{defaultWarning}
	}
	var warnings []string
	for _, sentence := range splitSentences(*text) {
		if len(sentence) < 4 {
			continue
		}
		warnings = append(warnings, sentence)
		if len(warnings) == maxWarnings {
			break
		}
	}
	if len(warnings) == 0 {
		return []string{defaultWarning}
	}
	return warnings
}

func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			sentences = append(sentences, s)
		}
		b.Reset()
	}
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			flush()
		}
	}
	flush()
	return sentences
}

func buildSummary(name, pregnancy, breastfeeding string) string {
	var parts []string
	switch pregnancy {
	case drug.SafetySafe:
		parts = append(parts, fmt.Sprintf("%s is generally considered safe to use during pregnancy.", name))
	case drug.SafetyCaution:
		parts = append(parts, fmt.Sprintf("%s should be used with caution during pregnancy and only when the benefit outweighs the risk.", name))
	case drug.SafetyAvoid:
		parts = append(parts, fmt.Sprintf("%s should be avoided during pregnancy.", name))
	default:
		parts = append(parts, fmt.Sprintf("There is not enough data to assess %s during pregnancy.", name))
	}
	switch breastfeeding {
	case drug.SafetySafe:
		parts = append(parts, "It is generally considered compatible with breastfeeding.")
	case drug.SafetyCaution:
		parts = append(parts, "Use it with caution while breastfeeding and watch the infant for side effects.")
	case drug.SafetyAvoid:
		parts = append(parts, "It should be avoided while breastfeeding.")
	default:
		parts = append(parts, "Its safety while breastfeeding has not been established.")
	}
	parts = append(parts, "Always confirm with your healthcare provider before starting or stopping any medication.")
	return strings.Join(parts, " ")
}

func fallbackSummary(name string) string {
	return fmt.Sprintf("No authoritative safety data is available for %s. Consult your healthcare provider.", name)
}

// confidenceScore is additive over evidence: 0.3 for an FDA label, 0.2 for
// DailyMed lactation data, up to 0.3 by study volume, 0.2 when
// meta-analyses exist. Clamped to [0,1], two decimals.
func confidenceScore(hasFDA, hasLactation bool, studyCount int, hasMeta bool) float64 {
	score := 0.0
	if hasFDA {
		score += 0.3
	}
	if hasLactation {
		score += 0.2
	}
	switch {
	case studyCount > 100:
		score += 0.3
	case studyCount > 50:
		score += 0.2
	case studyCount > 10:
		score += 0.1
	}
	if hasMeta {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return math.Round(score*100) / 100
}
