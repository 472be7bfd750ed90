package report

import (
	"strings"
	"testing"
	"time"

	"sleepanalysis/domain/core"
	"sleepanalysis/domain/sleep"
	"sleepanalysis/internal/analysis"
	"sleepanalysis/internal/causal"
	"sleepanalysis/internal/optimize"
)

func sampleResult() analysis.ComprehensiveResult {
	return analysis.ComprehensiveResult{
		RunID:       core.NewRunID(),
		GeneratedAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		Nights:      90,
		CausalResults: []causal.Estimate{
			{
				Medication:       "magnesium_glycinate",
				Metric:           sleep.SleepEfficiency,
				Effect:           8.4,
				CILower:          4.1,
				CIUpper:          12.2,
				IsCausal:         true,
				PValue:           0.002,
				PValueKind:       causal.PValueWelchTTest,
				RefutationPassed: true,
				Method:           causal.MethodLinearAdjustment,
			},
		},
		Optimization: optimize.Result{
			TargetMetric: sleep.SleepEfficiency,
			Recommendations: []optimize.Suggestion{
				{Medication: "magnesium_glycinate", DoseMg: 400, Time: "21:30", PredictedImpact: 7.9, Confidence: 0.6},
			},
			PredictedScore: 89.2,
			PredictedLower: 84.0,
			PredictedUpper: 93.5,
			Confidence:     0.6,
		},
		Summary:         "Identified 1 medication effects with causal evidence.",
		Recommendations: []string{"Magnesium Glycinate shows evidence of improving sleep efficiency"},
	}
}

func TestMarkdown_ContainsAllSections(t *testing.T) {
	md := Markdown(sampleResult())

	for _, want := range []string{
		"# Sleep Medication Analysis",
		"## Summary",
		"## Recommendations",
		"## Causal Estimates",
		"## Dose Optimization",
		"Magnesium Glycinate",
		"**yes**",
		"+8.40",
		"400.0",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestMarkdown_EmptyResultExplainsItself(t *testing.T) {
	md := Markdown(analysis.ComprehensiveResult{
		Summary:      "Not enough data for analysis yet. Keep tracking nightly.",
		Optimization: optimize.Result{Message: "no trained model for sleepEfficiency; more history is needed"},
	})
	if !strings.Contains(md, "No medication-metric pair") {
		t.Error("empty causal section should explain itself")
	}
	if !strings.Contains(md, "more history is needed") {
		t.Error("empty optimization section should carry the optimizer message")
	}
}

func TestHTML_RendersCompletePage(t *testing.T) {
	page := string(HTML(sampleResult()))

	if !strings.Contains(page, "<html") || !strings.Contains(page, "</html>") {
		t.Error("expected a complete HTML page")
	}
	if !strings.Contains(page, "<table>") {
		t.Error("causal estimates table should render as HTML table")
	}
	if !strings.Contains(page, "Magnesium Glycinate") {
		t.Error("medication names should survive rendering")
	}
}
