// Package analysis orchestrates the full pipeline over one night history:
// the causal estimator batch plus optimizer training, condensed into a
// single result with a summary and actionable recommendations.
package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"sleepanalysis/domain/core"
	"sleepanalysis/domain/sleep"
	"sleepanalysis/internal"
	"sleepanalysis/internal/causal"
	"sleepanalysis/internal/optimize"
)

const maxRecommendations = 5

// ComprehensiveResult bundles every analysis over one history.
type ComprehensiveResult struct {
	RunID           core.RunID        `json:"run_id"`
	GeneratedAt     time.Time         `json:"generated_at"`
	Nights          int               `json:"nights"`
	CausalResults   []causal.Estimate `json:"causal_results"`
	Optimization    optimize.Result   `json:"optimization"`
	TrainedMetrics  []core.MetricKey  `json:"trained_metrics"`
	Summary         string            `json:"summary"`
	Recommendations []string          `json:"recommendations"`
}

// Service wires the estimator and optimizer behind one entry point.
type Service struct {
	estimator    *causal.Estimator
	optimizerCfg optimize.Config
	log          *internal.Logger
}

// NewService builds the orchestrator from the two component configurations.
func NewService(causalCfg causal.Config, optimizerCfg optimize.Config) *Service {
	return &Service{
		estimator:    causal.NewEstimator(causalCfg),
		optimizerCfg: optimizerCfg,
		log:          internal.DefaultLogger,
	}
}

// Run executes the causal batch and optimizer training over a history and
// condenses both into one result. Either side producing nothing is fine;
// the summary and recommendations degrade to continue-tracking guidance.
func (s *Service) Run(ctx context.Context, history []sleep.AlignedDataPoint, targets []core.MetricKey) ComprehensiveResult {
	s.log.Info("comprehensive analysis over %d nights", len(history))

	estimates := s.estimator.AnalyzeAll(ctx, history, targets)
	state := optimize.Train(ctx, history, s.optimizerCfg)

	optTarget := sleep.SleepEfficiency
	if len(targets) > 0 {
		optTarget = targets[0]
	}
	optimization := optimize.OptimizeSingle(state, optTarget, s.optimizerCfg)

	return ComprehensiveResult{
		RunID:           core.NewRunID(),
		GeneratedAt:     time.Now().UTC(),
		Nights:          len(history),
		CausalResults:   estimates,
		Optimization:    optimization,
		TrainedMetrics:  state.TrainedMetrics(),
		Summary:         buildSummary(len(history), estimates, state),
		Recommendations: buildRecommendations(estimates, optimization),
	}
}

// beneficial reports whether an effect direction improves its metric,
// accounting for metrics where lower values are the good outcome.
func beneficial(e causal.Estimate) bool {
	return (e.Effect > 0) != sleep.LowerIsBetter(e.Metric)
}

func buildSummary(nights int, estimates []causal.Estimate, state *optimize.TrainedState) string {
	var parts []string

	var hits int
	for _, e := range estimates {
		if e.IsCausal {
			hits++
		}
	}
	if hits > 0 {
		parts = append(parts, fmt.Sprintf("Identified %d medication effects with causal evidence", hits))
	} else if len(estimates) > 0 {
		parts = append(parts, fmt.Sprintf("Analyzed %d medication-metric pairs, none with causal evidence yet", len(estimates)))
	}

	if state.Trained() {
		parts = append(parts, fmt.Sprintf("Dose models trained for %d sleep metrics over %d nights",
			len(state.TrainedMetrics()), nights))
	}

	if len(parts) == 0 {
		return "Not enough data for analysis yet. Keep tracking nightly."
	}
	return strings.Join(parts, ". ") + "."
}

func buildRecommendations(estimates []causal.Estimate, optimization optimize.Result) []string {
	var recs []string

	var causalHits []causal.Estimate
	for _, e := range estimates {
		if e.IsCausal {
			causalHits = append(causalHits, e)
		}
	}
	sort.SliceStable(causalHits, func(i, j int) bool {
		ai, aj := causalHits[i].Effect, causalHits[j].Effect
		if ai < 0 {
			ai = -ai
		}
		if aj < 0 {
			aj = -aj
		}
		return ai > aj
	})

	var bestGood, bestBad *causal.Estimate
	for i := range causalHits {
		e := &causalHits[i]
		if beneficial(*e) {
			if bestGood == nil {
				bestGood = e
			}
		} else if bestBad == nil {
			bestBad = e
		}
	}
	if bestGood != nil {
		recs = append(recs, fmt.Sprintf("%s shows evidence of improving %s",
			bestGood.Medication.DisplayName(), metricPhrase(bestGood.Metric)))
	}
	if bestBad != nil {
		recs = append(recs, fmt.Sprintf("Consider reducing %s - may negatively affect %s",
			bestBad.Medication.DisplayName(), metricPhrase(bestBad.Metric)))
	}

	for _, s := range optimization.Recommendations {
		if len(recs) >= maxRecommendations {
			break
		}
		recs = append(recs, fmt.Sprintf("Try %s at %.1f mg around %s (predicted %s impact %+.1f)",
			s.Medication.DisplayName(), s.DoseMg, s.Time,
			metricPhrase(optimization.TargetMetric), s.PredictedImpact))
	}

	if len(recs) == 0 {
		recs = append(recs, "Continue tracking to build more data for personalized insights")
	}
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	return recs
}

// metricPhrase turns a camelCase metric key into lowercase prose
// ("deepSleepMinutes" -> "deep sleep minutes").
func metricPhrase(key core.MetricKey) string {
	var b strings.Builder
	for i, r := range string(key) {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
