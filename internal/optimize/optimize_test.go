package optimize

import (
	"context"
	"reflect"
	"testing"
	"time"

	"sleepanalysis/domain/core"
	"sleepanalysis/domain/sleep"
	"sleepanalysis/internal/testkit"
)

// doseHistory builds n nights with two medications whose planted effects
// oppose each other: sedative_a improves deep sleep but slows onset,
// sedative_b speeds onset at a small deep-sleep cost.
func doseHistory(n int, seed int64) []sleep.AlignedDataPoint {
	cfg := testkit.DefaultNightConfig()
	cfg.Nights = n
	cfg.Seed = seed
	cfg.Noise = 3
	cfg.Medications = []testkit.MedicationProfile{
		{
			Name:            "sedative_a",
			DoseMg:          10,
			DoseJitter:      0.3,
			TakeProbability: 0.5,
			DoseTime:        "22:00",
			Effects: map[core.MetricKey]float64{
				sleep.DeepSleepMinutes: 25,
				sleep.LatencyMinutes:   12,
			},
		},
		{
			Name:            "sedative_b",
			DoseMg:          50,
			DoseJitter:      0.3,
			TakeProbability: 0.5,
			DoseTime:        "21:30",
			Effects: map[core.MetricKey]float64{
				sleep.DeepSleepMinutes: -8,
				sleep.LatencyMinutes:   -15,
			},
		},
	}
	return testkit.NewNightGenerator(cfg).Generate()
}

func TestTrain_ShortHistoryStaysUntrained(t *testing.T) {
	state := Train(context.Background(), doseHistory(5, 1), DefaultConfig())
	if state.Trained() {
		t.Fatal("5 nights should not produce a trained state")
	}
	result := OptimizeSingle(state, sleep.DeepSleepMinutes, DefaultConfig())
	if len(result.Recommendations) != 0 || result.Message == "" {
		t.Fatalf("untrained optimize should return empty result with message, got %+v", result)
	}
}

func TestTrain_SkipsSparseMetrics(t *testing.T) {
	history := doseHistory(40, 2)
	// Efficiency observed on only 5 nights.
	for i := range history {
		if i >= 5 {
			delete(history[i].Metrics, sleep.SleepEfficiency)
		}
	}
	state := Train(context.Background(), history, DefaultConfig())
	if !state.Trained() {
		t.Fatal("expected trained state")
	}
	if state.HasModel(sleep.SleepEfficiency) {
		t.Error("metric with 5 observations should have no model")
	}
	if !state.HasModel(sleep.DeepSleepMinutes) {
		t.Error("fully observed metric should have a model")
	}
}

func TestTrain_ColumnOrderIsStable(t *testing.T) {
	history := doseHistory(60, 3)
	a := Train(context.Background(), history, DefaultConfig())
	b := Train(context.Background(), history, DefaultConfig())

	if !reflect.DeepEqual(a.Medications, b.Medications) {
		t.Fatalf("medication order differs across retrains: %v vs %v", a.Medications, b.Medications)
	}
	doses := map[core.MedicationKey]float64{"sedative_a": 10, "sedative_b": 50}
	if !reflect.DeepEqual(Simulate(a, doses), Simulate(b, doses)) {
		t.Error("identical training runs should simulate identically")
	}
}

func TestOptimizeSingle_FindsPlantedImprovement(t *testing.T) {
	state := Train(context.Background(), doseHistory(90, 4), DefaultConfig())
	result := OptimizeSingle(state, sleep.DeepSleepMinutes, DefaultConfig())

	if len(result.Recommendations) == 0 {
		t.Fatal("expected at least one recommendation")
	}
	// The best configuration must beat taking nothing.
	baseline := Simulate(state, nil).Predictions[sleep.DeepSleepMinutes].Predicted
	if result.PredictedScore <= baseline {
		t.Errorf("optimized deep sleep %.1f should exceed zero-dose baseline %.1f", result.PredictedScore, baseline)
	}
	var foundA bool
	for _, s := range result.Recommendations {
		if s.Medication == "sedative_a" {
			foundA = true
			if s.PredictedImpact <= 0 {
				t.Errorf("sedative_a should have positive deep-sleep impact, got %.2f", s.PredictedImpact)
			}
		}
	}
	if !foundA {
		t.Error("sedative_a missing from deep-sleep recommendations")
	}
}

func TestOptimizeSingle_RespectsMinimizedMetrics(t *testing.T) {
	state := Train(context.Background(), doseHistory(90, 5), DefaultConfig())
	result := OptimizeSingle(state, sleep.LatencyMinutes, DefaultConfig())

	baseline := Simulate(state, nil).Predictions[sleep.LatencyMinutes].Predicted
	if result.PredictedScore >= baseline {
		t.Errorf("optimized latency %.1f should be below zero-dose baseline %.1f", result.PredictedScore, baseline)
	}
	for _, s := range result.Recommendations {
		if s.Medication == "sedative_a" {
			t.Errorf("sedative_a slows onset and should not be recommended for latency: %+v", s)
		}
	}
}

func TestOptimizeSingle_Deterministic(t *testing.T) {
	state := Train(context.Background(), doseHistory(90, 6), DefaultConfig())
	a := OptimizeSingle(state, sleep.DeepSleepMinutes, DefaultConfig())
	b := OptimizeSingle(state, sleep.DeepSleepMinutes, DefaultConfig())
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed should reproduce the same search result")
	}
}

func TestSimulate_UntrainedReturnsEmpty(t *testing.T) {
	state := Train(context.Background(), nil, DefaultConfig())
	result := Simulate(state, map[core.MedicationKey]float64{"melatonin": 3})
	if len(result.Predictions) != 0 {
		t.Fatalf("untrained simulate should predict nothing, got %d predictions", len(result.Predictions))
	}
}

func TestSimulate_UnknownMedicationIgnored(t *testing.T) {
	state := Train(context.Background(), doseHistory(60, 7), DefaultConfig())
	with := Simulate(state, map[core.MedicationKey]float64{"never_seen": 100})
	without := Simulate(state, nil)
	if !reflect.DeepEqual(with, without) {
		t.Error("medications outside the training set should not change predictions")
	}
}

func TestParetoFrontier_OpposingEffectsProduceTradeOffs(t *testing.T) {
	state := Train(context.Background(), doseHistory(120, 8), DefaultConfig())
	objectives := []core.MetricKey{sleep.DeepSleepMinutes, sleep.LatencyMinutes}
	result := OptimizeParetoFrontier(state, objectives, DefaultConfig())

	if len(result.ParetoFrontier) < 2 {
		t.Fatalf("opposing effects should yield at least 2 frontier points, got %d", len(result.ParetoFrontier))
	}
	if len(result.ParetoFrontier) > 10 {
		t.Errorf("frontier should be capped at 10, got %d", len(result.ParetoFrontier))
	}
	if !reflect.DeepEqual(result.ObjectiveNames, []string{"deepSleepMinutes", "latencyMinutes"}) {
		t.Errorf("unexpected objective names: %v", result.ObjectiveNames)
	}
	if result.Recommendation == "" {
		t.Error("frontier result should carry a recommendation")
	}

	// The frontier must express the planted trade-off: the deepest-sleep
	// configuration pays for it with slower onset than the fastest-onset one.
	var bestDeep, bestLatency *ParetoSolution
	for i := range result.ParetoFrontier {
		s := &result.ParetoFrontier[i]
		if bestDeep == nil || s.Objectives[string(sleep.DeepSleepMinutes)] > bestDeep.Objectives[string(sleep.DeepSleepMinutes)] {
			bestDeep = s
		}
		if bestLatency == nil || s.Objectives[string(sleep.LatencyMinutes)] < bestLatency.Objectives[string(sleep.LatencyMinutes)] {
			bestLatency = s
		}
	}
	if bestDeep.Objectives[string(sleep.LatencyMinutes)] <= bestLatency.Objectives[string(sleep.LatencyMinutes)] {
		t.Errorf("deepest-sleep solution should have slower onset than fastest-onset solution: %+v vs %+v",
			bestDeep.Objectives, bestLatency.Objectives)
	}
	for _, s := range result.ParetoFrontier {
		if s.TradeOff == "" {
			t.Error("every frontier solution should describe its trade-off")
		}
	}
}

func TestParetoFrontier_Deterministic(t *testing.T) {
	state := Train(context.Background(), doseHistory(120, 9), DefaultConfig())
	objectives := []core.MetricKey{sleep.DeepSleepMinutes, sleep.LatencyMinutes}
	a := OptimizeParetoFrontier(state, objectives, DefaultConfig())
	b := OptimizeParetoFrontier(state, objectives, DefaultConfig())
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed should reproduce the same frontier")
	}
}

func TestParetoFrontier_NeedsTwoTrainedObjectives(t *testing.T) {
	state := Train(context.Background(), doseHistory(90, 10), DefaultConfig())
	result := OptimizeParetoFrontier(state, []core.MetricKey{sleep.DeepSleepMinutes, sleep.SleepScore}, DefaultConfig())
	if len(result.ParetoFrontier) != 0 {
		t.Fatal("one trained objective should not produce a frontier")
	}
	if result.Recommendation == "" {
		t.Error("degenerate frontier result should explain itself")
	}
}

func TestParseClockRoundTrip(t *testing.T) {
	cases := []struct {
		clock   string
		minutes float64
	}{
		{"22:00", 600},
		{"23:30", 690},
		{"00:15", 735},
		{"12:00", 0},
	}
	for _, tc := range cases {
		got, ok := parseClockToMinutesFromNoon(tc.clock)
		if !ok || got != tc.minutes {
			t.Errorf("parseClockToMinutesFromNoon(%q) = %.0f, %v; want %.0f", tc.clock, got, ok, tc.minutes)
		}
		if back := minutesFromNoonToClock(tc.minutes); back != tc.clock {
			t.Errorf("minutesFromNoonToClock(%.0f) = %q; want %q", tc.minutes, back, tc.clock)
		}
	}
	if _, ok := parseClockToMinutesFromNoon("bedtime"); ok {
		t.Error("unparseable clock should report not ok")
	}
}

func TestDoseStatistics_Defaults(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	history := []sleep.AlignedDataPoint{
		{
			Date: start,
			Medications: map[core.MedicationKey]sleep.MedicationIntake{
				"mystery": {Taken: true, TotalMg: 0},
			},
		},
	}
	stats := doseStatistics(history, []core.MedicationKey{"mystery"})
	s := stats["mystery"]
	if s.MinMg != 0 || s.MaxMg != 10 || s.AvgMg != 5 || s.AvgTime != "22:00" {
		t.Errorf("zero-dose history should fall back to defaults, got %+v", s)
	}
}
