package optimize

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"sleepanalysis/domain/core"
	"sleepanalysis/domain/sleep"
	"sleepanalysis/internal"
)

// Config tunes training and search.
type Config struct {
	Seed             int64
	SearchCandidates int
	Population       int
	Generations      int
	MaxConcurrent    int64
}

// DefaultConfig returns the standard optimizer configuration.
func DefaultConfig() Config {
	return Config{
		Seed:             42,
		SearchCandidates: searchCandidates,
		Population:       60,
		Generations:      40,
		MaxConcurrent:    4,
	}
}

type quantileSet struct {
	q10, q50, q90 quantileModel
	outcomeMean   float64
	outcomeStd    float64
}

// TrainedState is an immutable optimizer model built from a full history.
// The medication ordering fixes the feature-vector column layout for every
// downstream vectorization; it is lexicographic and therefore stable across
// retrains on the same medication set.
type TrainedState struct {
	Medications []core.MedicationKey
	Stats       map[core.MedicationKey]DoseStats

	scaler standardizer
	models map[core.MetricKey]quantileSet
}

// Trained reports whether any metric model was fitted.
func (s *TrainedState) Trained() bool {
	return s != nil && len(s.models) > 0
}

// HasModel reports whether a metric has a fitted model set.
func (s *TrainedState) HasModel(metric core.MetricKey) bool {
	if s == nil {
		return false
	}
	_, ok := s.models[metric]
	return ok
}

// TrainedMetrics lists metrics with fitted models in a fixed order.
func (s *TrainedState) TrainedMetrics() []core.MetricKey {
	if s == nil {
		return nil
	}
	metrics := make([]core.MetricKey, 0, len(s.models))
	for m := range s.models {
		metrics = append(metrics, m)
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i] < metrics[j] })
	return metrics
}

// vectorize encodes a dose configuration in the fixed training-time column
// order. Medications absent from the configuration encode as zero dose.
func (s *TrainedState) vectorize(doses map[core.MedicationKey]float64) []float64 {
	row := make([]float64, len(s.Medications))
	for i, med := range s.Medications {
		row[i] = doses[med]
	}
	return row
}

// predictBand returns the (q10, q50, q90) predictions for a raw dose vector,
// with the band reordered if fitted quantiles cross.
func (s *TrainedState) predictBand(metric core.MetricKey, doseRow []float64) (lower, median, upper float64, ok bool) {
	set, exists := s.models[metric]
	if !exists {
		return 0, 0, 0, false
	}
	x := s.scaler.transformRow(doseRow)
	lower = set.q10.predict(x)
	median = set.q50.predict(x)
	upper = set.q90.predict(x)
	if lower > upper {
		lower, upper = upper, lower
	}
	if median < lower {
		median = lower
	}
	if median > upper {
		median = upper
	}
	return lower, median, upper, true
}

// bandConfidence maps an interval width onto [0, 1] relative to the
// outcome's historical spread.
func (s *TrainedState) bandConfidence(metric core.MetricKey, lower, upper float64) float64 {
	set, ok := s.models[metric]
	if !ok || set.outcomeStd == 0 {
		return 0
	}
	conf := 1 - (upper-lower)/(4*set.outcomeStd)
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

// Train builds a fresh TrainedState from a full history: it discovers every
// medication ever mentioned, fixes their column order, builds the dose-only
// feature matrix, and fits q10/q50/q90 models for every metric with enough
// observations. Metrics with insufficient data are absent from the model
// set. Histories below the minimum row count produce an untrained state.
func Train(ctx context.Context, history []sleep.AlignedDataPoint, cfg Config) *TrainedState {
	state := &TrainedState{
		Stats:  make(map[core.MedicationKey]DoseStats),
		models: make(map[core.MetricKey]quantileSet),
	}
	if len(history) < minTrainingRows {
		return state
	}

	sorted := make([]sleep.AlignedDataPoint, len(history))
	copy(sorted, history)
	sleep.SortByDate(sorted)

	state.Medications = discoverMedications(sorted)
	if len(state.Medications) == 0 {
		return state
	}
	state.Stats = doseStatistics(sorted, state.Medications)

	// Dose-only matrix: one column per medication, mg that night.
	X := make([][]float64, len(sorted))
	for i, p := range sorted {
		row := make([]float64, len(state.Medications))
		for j, med := range state.Medications {
			if intake, ok := p.Medications[med]; ok && intake.Taken {
				row[j] = intake.TotalMg
			}
		}
		X[i] = row
	}
	state.scaler = fitStandardizer(X)
	scaled := state.scaler.transform(X)

	log := internal.DefaultLogger
	sem := semaphore.NewWeighted(cfg.MaxConcurrent)
	if cfg.MaxConcurrent <= 0 {
		sem = semaphore.NewWeighted(1)
	}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, metric := range collectMetrics(sorted) {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(metric core.MetricKey) {
			defer wg.Done()
			defer sem.Release(1)

			var rowsX [][]float64
			var y []float64
			for i, p := range sorted {
				if v, ok := p.Metric(metric); ok {
					rowsX = append(rowsX, scaled[i])
					y = append(y, v)
				}
			}
			if len(y) < minMetricSamples {
				return
			}

			set := quantileSet{outcomeMean: meanOf(y), outcomeStd: stdOf(y)}
			var err error
			if set.q10, err = fitQuantile(rowsX, y, 0.10); err != nil {
				log.Warn("quantile fit failed for %s: %v", metric, err)
				return
			}
			if set.q50, err = fitQuantile(rowsX, y, 0.50); err != nil {
				log.Warn("quantile fit failed for %s: %v", metric, err)
				return
			}
			if set.q90, err = fitQuantile(rowsX, y, 0.90); err != nil {
				log.Warn("quantile fit failed for %s: %v", metric, err)
				return
			}

			mu.Lock()
			state.models[metric] = set
			mu.Unlock()
		}(metric)
	}
	wg.Wait()

	return state
}

func discoverMedications(history []sleep.AlignedDataPoint) []core.MedicationKey {
	seen := make(map[core.MedicationKey]bool)
	for _, p := range history {
		for med := range p.Medications {
			seen[med] = true
		}
	}
	meds := make([]core.MedicationKey, 0, len(seen))
	for med := range seen {
		meds = append(meds, med)
	}
	sort.Slice(meds, func(i, j int) bool { return meds[i] < meds[j] })
	return meds
}

func collectMetrics(history []sleep.AlignedDataPoint) []core.MetricKey {
	seen := make(map[core.MetricKey]bool)
	for _, p := range history {
		for m, v := range p.Metrics {
			if v != nil {
				seen[m] = true
			}
		}
	}
	metrics := make([]core.MetricKey, 0, len(seen))
	for m := range seen {
		metrics = append(metrics, m)
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i] < metrics[j] })
	return metrics
}

func doseStatistics(history []sleep.AlignedDataPoint, meds []core.MedicationKey) map[core.MedicationKey]DoseStats {
	stats := make(map[core.MedicationKey]DoseStats, len(meds))
	for _, med := range meds {
		var doses []float64
		var timeMinutes []float64
		for _, p := range history {
			intake, ok := p.Medications[med]
			if !ok || !intake.Taken {
				continue
			}
			if intake.TotalMg > 0 {
				doses = append(doses, intake.TotalMg)
			}
			for _, d := range intake.Doses {
				if m, ok := parseClockToMinutesFromNoon(d.Time); ok {
					timeMinutes = append(timeMinutes, m)
				}
			}
		}

		ds := DoseStats{MinMg: 0, MaxMg: 10, AvgMg: 5, AvgTime: "22:00"}
		if len(doses) > 0 {
			ds.MinMg, ds.MaxMg = doses[0], doses[0]
			for _, d := range doses {
				if d < ds.MinMg {
					ds.MinMg = d
				}
				if d > ds.MaxMg {
					ds.MaxMg = d
				}
			}
			ds.AvgMg = meanOf(doses)
		}
		if len(timeMinutes) > 0 {
			ds.AvgTime = minutesFromNoonToClock(meanOf(timeMinutes))
		}
		stats[med] = ds
	}
	return stats
}

// parseClockToMinutesFromNoon maps "HH:MM" onto minutes after 12:00, folding
// early-morning times onto the following day so 23:30 < 01:00 in dose-time
// arithmetic.
func parseClockToMinutesFromNoon(clock string) (float64, bool) {
	parts := strings.SplitN(strings.TrimSpace(clock), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	minutes := h*60 + m
	if h < 12 {
		minutes += 24 * 60
	}
	return float64(minutes - 12*60), true
}

func minutesFromNoonToClock(minutes float64) string {
	total := int(minutes) + 12*60
	h := (total / 60) % 24
	m := total % 60
	return fmt.Sprintf("%02d:%02d", h, m)
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdOf(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := meanOf(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}
