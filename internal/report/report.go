// Package report renders a ComprehensiveResult as a markdown document and,
// via gomarkdown, as standalone HTML.
package report

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"sleepanalysis/internal/analysis"
	"sleepanalysis/internal/causal"
)

// Markdown renders the full analysis report as a markdown document.
func Markdown(result analysis.ComprehensiveResult) string {
	var b strings.Builder

	b.WriteString("# Sleep Medication Analysis\n\n")
	fmt.Fprintf(&b, "Run `%s`, generated %s over %d nights.\n\n",
		result.RunID, result.GeneratedAt.Format("2006-01-02 15:04 MST"), result.Nights)

	b.WriteString("## Summary\n\n")
	b.WriteString(result.Summary)
	b.WriteString("\n\n")

	if len(result.Recommendations) > 0 {
		b.WriteString("## Recommendations\n\n")
		for _, rec := range result.Recommendations {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
		b.WriteString("\n")
	}

	writeCausalSection(&b, result.CausalResults)
	writeOptimizationSection(&b, result)

	return b.String()
}

func writeCausalSection(b *strings.Builder, estimates []causal.Estimate) {
	b.WriteString("## Causal Estimates\n\n")
	if len(estimates) == 0 {
		b.WriteString("No medication-metric pair had enough data for estimation.\n\n")
		return
	}

	b.WriteString("| Medication | Metric | Effect | 95% CI | Causal | Method |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, e := range estimates {
		verdict := "no"
		if e.IsCausal {
			verdict = "**yes**"
		}
		fmt.Fprintf(b, "| %s | %s | %+.2f | [%.2f, %.2f] | %s | %s |\n",
			e.Medication.DisplayName(), e.Metric, e.Effect, e.CILower, e.CIUpper, verdict, e.Method)
	}
	b.WriteString("\n")

	var insights []string
	for _, e := range estimates {
		if e.ConditionalInsight != "" {
			insights = append(insights, fmt.Sprintf("- %s on %s: %s",
				e.Medication.DisplayName(), e.Metric, e.ConditionalInsight))
		}
	}
	if len(insights) > 0 {
		b.WriteString("### Conditional Effects\n\n")
		b.WriteString(strings.Join(insights, "\n"))
		b.WriteString("\n\n")
	}
}

func writeOptimizationSection(b *strings.Builder, result analysis.ComprehensiveResult) {
	b.WriteString("## Dose Optimization\n\n")
	opt := result.Optimization
	if len(opt.Recommendations) == 0 {
		if opt.Message != "" {
			fmt.Fprintf(b, "%s\n\n", opt.Message)
		} else {
			b.WriteString("No dose configuration improved the target metric.\n\n")
		}
		return
	}

	fmt.Fprintf(b, "Target: **%s**, predicted %.1f (interval %.1f to %.1f, confidence %.0f%%).\n\n",
		opt.TargetMetric, opt.PredictedScore, opt.PredictedLower, opt.PredictedUpper, opt.Confidence*100)

	b.WriteString("| Medication | Dose (mg) | Time | Impact |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, s := range opt.Recommendations {
		fmt.Fprintf(b, "| %s | %.1f | %s | %+.2f |\n",
			s.Medication.DisplayName(), s.DoseMg, s.Time, s.PredictedImpact)
	}
	b.WriteString("\n")
}

// HTML renders the report as a complete HTML page.
func HTML(result analysis.ComprehensiveResult) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	doc := p.Parse([]byte(Markdown(result)))

	renderer := html.NewRenderer(html.RendererOptions{
		Title: "Sleep Medication Analysis",
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.Render(doc, renderer)
}
