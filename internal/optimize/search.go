package optimize

import (
	"fmt"
	"math/rand"
	"sort"

	"sleepanalysis/domain/core"
	"sleepanalysis/domain/sleep"
)

// OptimizeSingle searches the dose space for the configuration that best
// improves one metric. Candidates are drawn uniformly between zero and each
// medication's observed maximum, with a coin flip forcing the dose to zero
// to simulate skipping the medication. Calls before training, or for metrics
// without a trained model, return an empty zero-confidence result.
func OptimizeSingle(state *TrainedState, metric core.MetricKey, cfg Config) Result {
	if !state.Trained() || !state.HasModel(metric) {
		return Result{
			TargetMetric: metric,
			Confidence:   0,
			Message:      fmt.Sprintf("no trained model for %s; more history is needed", metric),
		}
	}

	candidates := cfg.SearchCandidates
	if candidates <= 0 {
		candidates = searchCandidates
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	minimize := sleep.LowerIsBetter(metric)

	var best []float64
	var bestScore float64
	for i := 0; i < candidates; i++ {
		doses := make([]float64, len(state.Medications))
		for j, med := range state.Medications {
			if rng.Float64() < zeroDoseProbability {
				continue
			}
			doses[j] = rng.Float64() * state.Stats[med].MaxMg
		}
		_, median, _, ok := state.predictBand(metric, doses)
		if !ok {
			continue
		}
		if best == nil || (minimize && median < bestScore) || (!minimize && median > bestScore) {
			best = doses
			bestScore = median
		}
	}
	if best == nil {
		return Result{TargetMetric: metric, Message: "search produced no viable candidates"}
	}

	lower, median, upper, _ := state.predictBand(metric, best)
	confidence := state.bandConfidence(metric, lower, upper)

	suggestions := suggestionsFor(state, metric, best, median, confidence)
	sortSuggestions(suggestions, minimize)

	return Result{
		TargetMetric:    metric,
		Recommendations: suggestions,
		PredictedScore:  median,
		PredictedLower:  lower,
		PredictedUpper:  upper,
		Confidence:      confidence,
	}
}

// suggestionsFor translates a dose vector into per-medication suggestions.
// Only medications dosed above the significance threshold are reported, and
// each medication's marginal impact is the prediction delta from zeroing its
// dose with everything else held fixed.
func suggestionsFor(state *TrainedState, metric core.MetricKey, doses []float64, prediction, confidence float64) []Suggestion {
	var suggestions []Suggestion
	for j, med := range state.Medications {
		stats := state.Stats[med]
		if doses[j] <= stats.AvgMg*suggestionThreshold {
			continue
		}

		zeroed := make([]float64, len(doses))
		copy(zeroed, doses)
		zeroed[j] = 0
		_, baseline, _, ok := state.predictBand(metric, zeroed)
		if !ok {
			continue
		}

		suggestions = append(suggestions, Suggestion{
			Medication:      med,
			DoseMg:          round1(doses[j]),
			Time:            stats.AvgTime,
			PredictedImpact: round2(prediction - baseline),
			Confidence:      round2(confidence),
		})
	}
	return suggestions
}

// sortSuggestions orders by benefit: largest positive impact first for
// maximized metrics, most negative first for minimized ones.
func sortSuggestions(suggestions []Suggestion, minimize bool) {
	sort.SliceStable(suggestions, func(i, j int) bool {
		if minimize {
			return suggestions[i].PredictedImpact < suggestions[j].PredictedImpact
		}
		return suggestions[i].PredictedImpact > suggestions[j].PredictedImpact
	})
}

// Simulate predicts every trained metric under an explicit dose
// configuration, using the fixed training-time column order. An untrained
// state yields an empty prediction set.
func Simulate(state *TrainedState, doses map[core.MedicationKey]float64) SimulationResult {
	result := SimulationResult{Predictions: make(map[core.MetricKey]PredictionDetail)}
	if !state.Trained() {
		return result
	}

	row := state.vectorize(doses)
	for _, metric := range state.TrainedMetrics() {
		lower, median, upper, ok := state.predictBand(metric, row)
		if !ok {
			continue
		}
		result.Predictions[metric] = PredictionDetail{
			Predicted: round2(median),
			Lower:     round2(lower),
			Upper:     round2(upper),
		}
	}
	return result
}

func round1(v float64) float64 { return float64(int(v*10+signOf(v)*0.5)) / 10 }
func round2(v float64) float64 { return float64(int(v*100+signOf(v)*0.5)) / 100 }

func signOf(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
