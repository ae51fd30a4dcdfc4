package enrich

import (
	"context"
	"strings"
	"testing"

	"github.com/mal33k-eden/pms-agent-api/internal/domain/drug"
	"github.com/mal33k-eden/pms-agent-api/internal/platform/sources"
)

func strPtr(s string) *string { return &s }

func TestAnalyzeCategoryMapping(t *testing.T) {
	cases := []struct {
		category string
		want     string
	}{
		{"A", drug.SafetySafe},
		{"B", drug.SafetySafe},
		{"b", drug.SafetySafe},
		{"C", drug.SafetyCaution},
		{"D", drug.SafetyAvoid},
		{"X", drug.SafetyAvoid},
		{" X ", drug.SafetyAvoid},
	}
	a := NewRuleAnalyzer()
	for _, tc := range cases {
		got, err := a.Analyze(context.Background(), AnalysisInput{
			DrugName: "Testdrug",
			Label:    &sources.FDALabel{PregnancyCategory: strPtr(tc.category)},
		})
		if err != nil {
			t.Fatalf("category %q: unexpected error: %v", tc.category, err)
		}
		if got.PregnancySafety != tc.want {
			t.Errorf("category %q: pregnancy = %q, want %q", tc.category, got.PregnancySafety, tc.want)
		}
	}
}

func TestAnalyzeNarrativeFallback(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"contraindicated", "Use of this drug is contraindicated in pregnant women.", drug.SafetyAvoid},
		{"should not be used", "This product should not be used during pregnancy.", drug.SafetyAvoid},
		{"unsafe never reads safe", "This drug is unsafe in the first trimester.", drug.SafetyAvoid},
		{"caution", "Exercise caution when prescribing to pregnant patients.", drug.SafetyCaution},
		{"risk", "Animal studies have shown a risk to the fetus.", drug.SafetyCaution},
		{"no adequate studies", "There are no adequate studies in pregnant women.", drug.SafetyCaution},
		{"no evidence of harm", "Reproduction studies revealed no evidence of harm to the fetus.", drug.SafetySafe},
		{"no signal", "Take one tablet daily with water.", drug.SafetyUnknown},
	}
	a := NewRuleAnalyzer()
	for _, tc := range cases {
		got, err := a.Analyze(context.Background(), AnalysisInput{
			DrugName: "Testdrug",
			Label:    &sources.FDALabel{PregnancyText: strPtr(tc.text)},
		})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got.PregnancySafety != tc.want {
			t.Errorf("%s: pregnancy = %q, want %q", tc.name, got.PregnancySafety, tc.want)
		}
	}
}

func TestAnalyzeBreastfeedingCombinesSources(t *testing.T) {
	a := NewRuleAnalyzer()

	// SPL lactation text alone decides the label.
	got, err := a.Analyze(context.Background(), AnalysisInput{
		DrugName: "Testdrug",
		SPL:      &sources.DailyMedSPL{SetID: "abc", LactationText: strPtr("This drug should not be used by nursing mothers.")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.BreastfeedingSafety != drug.SafetyAvoid {
		t.Errorf("breastfeeding = %q, want %q", got.BreastfeedingSafety, drug.SafetyAvoid)
	}

	// FDA nursing mothers text works without an SPL.
	got, err = a.Analyze(context.Background(), AnalysisInput{
		DrugName: "Testdrug",
		Label:    &sources.FDALabel{BreastfeedingText: strPtr("Caution should be exercised when administered to a nursing woman.")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.BreastfeedingSafety != drug.SafetyCaution {
		t.Errorf("breastfeeding = %q, want %q", got.BreastfeedingSafety, drug.SafetyCaution)
	}
}

func TestAnalyzeWarnings(t *testing.T) {
	text := "Serious skin reactions may occur. Liver damage has been reported. " +
		"Do not exceed the recommended dose. Avoid alcohol. " +
		"May cause drowsiness. Tell your doctor about other medications. Seventh sentence here."
	got, err := NewRuleAnalyzer().Analyze(context.Background(), AnalysisInput{
		DrugName: "Testdrug",
		Label:    &sources.FDALabel{Warnings: strPtr(text)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Warnings) != maxWarnings {
		t.Fatalf("got %d warnings, want %d: %v", len(got.Warnings), maxWarnings, got.Warnings)
	}
	if got.Warnings[0] != "Serious skin reactions may occur." {
		t.Errorf("first warning = %q", got.Warnings[0])
	}
	if got.Warnings[4] != "May cause drowsiness." {
		t.Errorf("fifth warning = %q", got.Warnings[4])
	}

	// Absent warnings section falls back to the generic advice.
	got, err = NewRuleAnalyzer().Analyze(context.Background(), AnalysisInput{
		DrugName: "Testdrug",
		Label:    &sources.FDALabel{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Warnings) != 1 || got.Warnings[0] != defaultWarning {
		t.Errorf("fallback warnings = %v", got.Warnings)
	}
}

func TestAnalyzeConfidence(t *testing.T) {
	label := &sources.FDALabel{PregnancyCategory: strPtr("B")}
	spl := &sources.DailyMedSPL{SetID: "abc", LactationText: strPtr("Compatible with breastfeeding.")}

	cases := []struct {
		name string
		in   AnalysisInput
		want float64
	}{
		{"fda only", AnalysisInput{Label: label}, 0.3},
		{"fda and lactation", AnalysisInput{Label: label, SPL: spl}, 0.5},
		{"spl without lactation text", AnalysisInput{Label: label, SPL: &sources.DailyMedSPL{SetID: "abc"}}, 0.3},
		{"few studies", AnalysisInput{Label: label, Research: &sources.PubMedResearch{TotalStudies: 11}}, 0.4},
		{"some studies", AnalysisInput{Label: label, Research: &sources.PubMedResearch{TotalStudies: 51}}, 0.5},
		{"many studies", AnalysisInput{Label: label, Research: &sources.PubMedResearch{TotalStudies: 101}}, 0.6},
		{"meta analysis", AnalysisInput{Label: label, Research: &sources.PubMedResearch{TotalStudies: 5, HasMetaAnalysis: true}}, 0.5},
		{"everything", AnalysisInput{Label: label, SPL: spl, Research: &sources.PubMedResearch{TotalStudies: 150, HasMetaAnalysis: true}}, 1.0},
		{"research only", AnalysisInput{Research: &sources.PubMedResearch{TotalStudies: 5}}, 0.0},
	}
	a := NewRuleAnalyzer()
	for _, tc := range cases {
		tc.in.DrugName = "Testdrug"
		got, err := a.Analyze(context.Background(), tc.in)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got.Confidence != tc.want {
			t.Errorf("%s: confidence = %v, want %v", tc.name, got.Confidence, tc.want)
		}
	}
}

func TestAnalyzeStudyCount(t *testing.T) {
	got, err := NewRuleAnalyzer().Analyze(context.Background(), AnalysisInput{
		DrugName: "Testdrug",
		Research: &sources.PubMedResearch{TotalStudies: 42, PregnancyStudies: 30, BreastfeedingStudies: 12},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.StudyCount != 42 {
		t.Errorf("study count = %d, want 42", got.StudyCount)
	}
}

func TestAnalyzeFallbackWhenNoSources(t *testing.T) {
	got, err := NewRuleAnalyzer().Analyze(context.Background(), AnalysisInput{DrugName: "Obscurol"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PregnancySafety != drug.SafetyUnknown || got.BreastfeedingSafety != drug.SafetyUnknown {
		t.Errorf("labels = %q/%q, want unknown/unknown", got.PregnancySafety, got.BreastfeedingSafety)
	}
	if got.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", got.Confidence)
	}
	if !strings.Contains(got.Summary, "Obscurol") || !strings.Contains(got.Summary, "healthcare provider") {
		t.Errorf("summary = %q", got.Summary)
	}
	if len(got.Warnings) != 1 || got.Warnings[0] != defaultWarning {
		t.Errorf("warnings = %v", got.Warnings)
	}
}

func TestAnalyzeSummaryMentionsBothVerdicts(t *testing.T) {
	got, err := NewRuleAnalyzer().Analyze(context.Background(), AnalysisInput{
		DrugName: "Testdrug",
		Label: &sources.FDALabel{
			PregnancyCategory: strPtr("X"),
			BreastfeedingText: strPtr("This drug is contraindicated in nursing mothers."),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got.Summary, "avoided during pregnancy") {
		t.Errorf("summary missing pregnancy verdict: %q", got.Summary)
	}
	if !strings.Contains(got.Summary, "avoided while breastfeeding") {
		t.Errorf("summary missing breastfeeding verdict: %q", got.Summary)
	}
}
