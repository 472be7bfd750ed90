package features

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"sleepanalysis/adapters/pharma"
	"sleepanalysis/domain/core"
	"sleepanalysis/domain/sleep"
	"sleepanalysis/internal/errors"
)

// Column name prefixes and suffixes.
const (
	medPrefix           = "med_"
	sleepPrefix         = "sleep_"
	interactionPrefix   = "interaction_"
	takenSuffix         = "_taken"
	dosageSuffix        = "_mg"
	quantitySuffix      = "_qty"
	concentrationSuffix = "_concentration"
)

// DefaultBedtimeHour is the assumed bedtime used when computing residual
// drug concentration, absent a better signal.
const DefaultBedtimeHour = 22.0

// Options controls which derived features are generated.
type Options struct {
	TopInteractions int   // pairwise products among the N most frequent medications
	Lags            []int // lag-k columns per sleep metric
	RollingWindows  []int // rolling mean/sum windows per sleep metric
}

// DefaultOptions mirror the standard analysis configuration.
func DefaultOptions() Options {
	return Options{
		TopInteractions: 8,
		Lags:            []int{1, 2, 3},
		RollingWindows:  []int{3, 7},
	}
}

// Build converts a night history into a feature table. The history is sorted
// by date before any lag or rolling computation. Build fails with an
// INSUFFICIENT_DATA error when fewer than two medication taken-columns show
// any variation, since no confounding-controlled analysis is possible on a
// degenerate design.
func Build(history []sleep.AlignedDataPoint, opts Options) (*Table, error) {
	if len(history) == 0 {
		return nil, errors.InsufficientData("empty history")
	}

	sorted := make([]sleep.AlignedDataPoint, len(history))
	copy(sorted, history)
	sleep.SortByDate(sorted)

	meds := collectMedications(sorted)
	metrics := collectMetrics(sorted)

	t := newTable(len(sorted))
	for _, p := range sorted {
		t.Dates = append(t.Dates, p.Date)
	}

	buildMedicationColumns(t, sorted, meds)
	buildAggregateColumns(t, sorted, meds)
	buildMetricColumns(t, sorted, metrics)
	buildInteractionColumns(t, opts.TopInteractions)
	buildLagColumns(t, metrics, opts.Lags)
	buildRollingColumns(t, metrics, opts.RollingWindows)

	if varying := countVaryingTakenColumns(t); varying < 2 {
		return nil, errors.InsufficientData(
			fmt.Sprintf("insufficient variation: %d medication column(s) vary across nights, need at least 2", varying))
	}

	return t, nil
}

// TakenColumn returns the taken-flag column name for a medication.
func TakenColumn(med core.MedicationKey) string {
	return medPrefix + string(med) + takenSuffix
}

// SleepColumn returns the column name for a sleep metric.
func SleepColumn(metric core.MetricKey) string {
	return sleepPrefix + string(metric)
}

// MedicationFromTakenColumn inverts TakenColumn.
func MedicationFromTakenColumn(col string) (core.MedicationKey, bool) {
	if !strings.HasPrefix(col, medPrefix) || !strings.HasSuffix(col, takenSuffix) {
		return "", false
	}
	return core.MedicationKey(strings.TrimSuffix(strings.TrimPrefix(col, medPrefix), takenSuffix)), true
}

func collectMedications(history []sleep.AlignedDataPoint) []core.MedicationKey {
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
		for m := range p.Metrics {
			seen[m] = true
		}
	}
	metrics := make([]core.MetricKey, 0, len(seen))
	for m := range seen {
		metrics = append(metrics, m)
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i] < metrics[j] })
	return metrics
}

func buildMedicationColumns(t *Table, history []sleep.AlignedDataPoint, meds []core.MedicationKey) {
	n := len(history)
	for _, med := range meds {
		taken := make([]float64, n)
		dosage := make([]float64, n)
		quantity := make([]float64, n)
		concentration := make([]float64, n)

		for i, p := range history {
			intake, ok := p.Medications[med]
			if !ok || !intake.Taken {
				continue
			}
			taken[i] = 1
			dosage[i] = intake.TotalMg
			quantity[i] = intake.Quantity
			concentration[i] = bedtimeConcentration(med, intake)
		}

		base := medPrefix + string(med)
		t.addColumn(base+takenSuffix, taken)
		t.addColumn(base+dosageSuffix, dosage)
		t.addColumn(base+quantitySuffix, quantity)
		t.addColumn(base+concentrationSuffix, concentration)
	}
}

// bedtimeConcentration estimates the residual concentration of a medication
// at the assumed bedtime using first-order exponential decay. Doses recorded
// at or after bedtime contribute their full amount.
func bedtimeConcentration(med core.MedicationKey, intake sleep.MedicationIntake) float64 {
	halfLife := pharma.HalfLifeHours(string(med))

	doses := intake.Doses
	if len(doses) == 0 {
		// No per-dose timing recorded: treat the total as one dose at bedtime.
		return intake.TotalMg
	}

	total := 0.0
	for _, d := range doses {
		total += DecayedConcentration(d.Mg, doseElapsedHours(d.Time), halfLife)
	}
	return total
}

// DecayedConcentration computes C = mg * 0.5^(elapsed/halfLife). Negative
// elapsed time (dose at or after the query time) contributes the full dose.
func DecayedConcentration(mg, elapsedHours, halfLifeHours float64) float64 {
	if elapsedHours <= 0 {
		return mg
	}
	if halfLifeHours <= 0 {
		halfLifeHours = pharma.DefaultHalfLifeHours
	}
	return mg * math.Pow(0.5, elapsedHours/halfLifeHours)
}

// doseElapsedHours converts a wall-clock dose time into hours elapsed before
// the assumed bedtime on the same calendar day. Unparseable times count as
// taken at bedtime.
func doseElapsedHours(clock string) float64 {
	h, ok := parseClockHours(clock)
	if !ok {
		return 0
	}
	return DefaultBedtimeHour - h
}

func parseClockHours(clock string) (float64, bool) {
	parts := strings.SplitN(strings.TrimSpace(clock), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return float64(h) + float64(m)/60.0, true
}

func buildAggregateColumns(t *Table, history []sleep.AlignedDataPoint, meds []core.MedicationKey) {
	n := len(history)
	counts := make([]float64, n)
	totals := make([]float64, n)
	for i, p := range history {
		for _, med := range meds {
			if intake, ok := p.Medications[med]; ok && intake.Taken {
				counts[i]++
				totals[i] += intake.TotalMg
			}
		}
	}
	t.addColumn("total_medications", counts)
	t.addColumn("total_dosage_mg", totals)
}

func buildMetricColumns(t *Table, history []sleep.AlignedDataPoint, metrics []core.MetricKey) {
	n := len(history)
	for _, metric := range metrics {
		values := make([]float64, n)
		for i, p := range history {
			if v, ok := p.Metric(metric); ok {
				values[i] = v
			} else {
				values[i] = math.NaN()
			}
		}
		t.addColumn(SleepColumn(metric), values)
	}
}

// buildInteractionColumns adds co-administration indicators for every
// unordered pair among the topN most frequently taken medications.
func buildInteractionColumns(t *Table, topN int) {
	if topN <= 0 {
		return
	}
	takenCols := t.ColumnsWithPrefix(medPrefix)
	var candidates []string
	for _, c := range takenCols {
		if strings.HasSuffix(c, takenSuffix) {
			candidates = append(candidates, c)
		}
	}

	type freq struct {
		col   string
		count float64
	}
	freqs := make([]freq, 0, len(candidates))
	for _, c := range candidates {
		sum := 0.0
		for _, v := range t.Column(c) {
			sum += v
		}
		freqs = append(freqs, freq{col: c, count: sum})
	}
	sort.SliceStable(freqs, func(i, j int) bool { return freqs[i].count > freqs[j].count })
	if len(freqs) > topN {
		freqs = freqs[:topN]
	}

	for i := 0; i < len(freqs); i++ {
		for j := i + 1; j < len(freqs); j++ {
			a, b := freqs[i].col, freqs[j].col
			nameA := strings.TrimSuffix(strings.TrimPrefix(a, medPrefix), takenSuffix)
			nameB := strings.TrimSuffix(strings.TrimPrefix(b, medPrefix), takenSuffix)
			va, vb := t.Column(a), t.Column(b)
			product := make([]float64, t.Len())
			for k := range product {
				product[k] = va[k] * vb[k]
			}
			t.addColumn(interactionPrefix+nameA+"_"+nameB, product)
		}
	}
}

// buildLagColumns shifts each sleep metric by k rows. The first k rows of
// the sorted series have no history and are NaN, never zero.
func buildLagColumns(t *Table, metrics []core.MetricKey, lags []int) {
	for _, metric := range metrics {
		col := SleepColumn(metric)
		values := t.Column(col)
		for _, lag := range lags {
			if lag <= 0 {
				continue
			}
			lagged := make([]float64, t.Len())
			for i := range lagged {
				if i < lag {
					lagged[i] = math.NaN()
				} else {
					lagged[i] = values[i-lag]
				}
			}
			t.addColumn(fmt.Sprintf("%s_lag%d", col, lag), lagged)
		}
	}
}

// buildRollingColumns adds rolling mean and sum columns with a minimum of
// one period: partial windows at the start aggregate over whatever samples
// exist. Windows containing only missing values stay NaN.
func buildRollingColumns(t *Table, metrics []core.MetricKey, windows []int) {
	for _, metric := range metrics {
		col := SleepColumn(metric)
		values := t.Column(col)
		for _, window := range windows {
			if window <= 0 {
				continue
			}
			means := make([]float64, t.Len())
			sums := make([]float64, t.Len())
			for i := range values {
				start := i - window + 1
				if start < 0 {
					start = 0
				}
				sum, count := 0.0, 0
				for j := start; j <= i; j++ {
					if !math.IsNaN(values[j]) {
						sum += values[j]
						count++
					}
				}
				if count == 0 {
					means[i] = math.NaN()
					sums[i] = math.NaN()
				} else {
					means[i] = sum / float64(count)
					sums[i] = sum
				}
			}
			t.addColumn(fmt.Sprintf("%s_rolling_mean_%dd", col, window), means)
			t.addColumn(fmt.Sprintf("%s_rolling_sum_%dd", col, window), sums)
		}
	}
}

func countVaryingTakenColumns(t *Table) int {
	varying := 0
	for _, c := range t.Columns {
		if !strings.HasPrefix(c, medPrefix) || !strings.HasSuffix(c, takenSuffix) {
			continue
		}
		values := t.Column(c)
		first := values[0]
		for _, v := range values[1:] {
			if v != first {
				varying++
				break
			}
		}
	}
	return varying
}
