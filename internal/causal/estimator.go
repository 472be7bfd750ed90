package causal

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"sleepanalysis/domain/core"
	"sleepanalysis/domain/sleep"
	"sleepanalysis/internal"
	"sleepanalysis/internal/errors"
	"sleepanalysis/internal/features"
)

// Config tunes the estimator.
type Config struct {
	BootstrapResamples int
	Seed               int64
	MaxConcurrent      int64
}

// DefaultConfig returns the standard estimator configuration.
func DefaultConfig() Config {
	return Config{
		BootstrapResamples: 500,
		Seed:               42,
		MaxConcurrent:      4,
	}
}

// Estimator runs adjusted treatment-effect estimation across every
// (medication, metric) pair in a night history.
type Estimator struct {
	cfg Config
	log *internal.Logger
}

// NewEstimator creates an estimator, filling zero config fields with
// defaults.
func NewEstimator(cfg Config) *Estimator {
	def := DefaultConfig()
	if cfg.BootstrapResamples <= 0 {
		cfg.BootstrapResamples = def.BootstrapResamples
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	return &Estimator{cfg: cfg, log: internal.DefaultLogger}
}

// AnalyzeAll estimates effects for every medication against every target
// metric. Pairs below the minimum sample thresholds are skipped, as is any
// pair whose estimation fails numerically; a failed pair never aborts the
// batch. Results are ordered by (causal verdict, effect magnitude) and
// capped.
func (e *Estimator) AnalyzeAll(ctx context.Context, history []sleep.AlignedDataPoint, targets []core.MetricKey) []Estimate {
	if len(history) < minCompleteRows {
		return nil
	}

	table, err := features.Build(history, features.DefaultOptions())
	if err != nil {
		e.log.Info("causal analysis skipped: %s", err.Error())
		return nil
	}

	if len(targets) == 0 {
		targets = sleep.DefaultCausalTargets
	}

	type pair struct {
		med    core.MedicationKey
		metric core.MetricKey
	}
	var pairs []pair
	for _, col := range table.ColumnsWithPrefix("med_") {
		med, ok := features.MedicationFromTakenColumn(col)
		if !ok {
			continue
		}
		taken := table.Column(col)
		treated := 0
		for _, v := range taken {
			if v == 1 {
				treated++
			}
		}
		if treated < minGroupSize || len(taken)-treated < minGroupSize {
			continue
		}
		for _, metric := range targets {
			if table.HasColumn(features.SleepColumn(metric)) {
				pairs = append(pairs, pair{med: med, metric: metric})
			}
		}
	}

	sem := semaphore.NewWeighted(e.cfg.MaxConcurrent)
	var mu sync.Mutex
	var results []Estimate
	var wg sync.WaitGroup

	for _, p := range pairs {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(p pair) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					e.log.Warn("estimation panicked for %s/%s: %v", p.med, p.metric, r)
				}
			}()

			rng := rand.New(rand.NewSource(pairSeed(e.cfg.Seed, string(p.med), string(p.metric))))
			est, ok := e.estimatePair(table, p.med, p.metric, rng)
			if !ok {
				return
			}
			mu.Lock()
			results = append(results, est)
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].IsCausal != results[j].IsCausal {
			return results[i].IsCausal
		}
		ai, aj := math.Abs(results[i].Effect), math.Abs(results[j].Effect)
		if ai != aj {
			return ai > aj
		}
		// Stable tie-break so concurrent runs order identically.
		if results[i].Medication != results[j].Medication {
			return results[i].Medication < results[j].Medication
		}
		return results[i].Metric < results[j].Metric
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// estimatePair runs the per-pair state machine: gate on group sizes,
// estimate the adjusted effect, refute, classify.
func (e *Estimator) estimatePair(table *features.Table, med core.MedicationKey, metric core.MetricKey, rng *rand.Rand) (Estimate, bool) {
	treatmentCol := features.TakenColumn(med)
	outcomeCol := features.SleepColumn(metric)

	rows := table.CompleteRows(treatmentCol, outcomeCol)
	if len(rows) < minCompleteRows {
		return Estimate{}, false
	}

	treatment := make([]float64, len(rows))
	outcome := make([]float64, len(rows))
	var treatedOutcomes, controlOutcomes []float64
	for i, r := range rows {
		treatment[i] = table.Column(treatmentCol)[r]
		outcome[i] = table.Column(outcomeCol)[r]
		if treatment[i] == 1 {
			treatedOutcomes = append(treatedOutcomes, outcome[i])
		} else {
			controlOutcomes = append(controlOutcomes, outcome[i])
		}
	}
	if len(treatedOutcomes) < minGroupSize || len(controlOutcomes) < minGroupSize {
		return Estimate{}, false
	}

	naiveEffect := mean(treatedOutcomes) - mean(controlOutcomes)

	est := Estimate{
		Medication: med,
		Metric:     metric,
		Effect:     naiveEffect,
		Method:     MethodNaiveDifference,
	}

	// Preferred path: doubly robust orthogonalized estimation with
	// heterogeneous per-night effects.
	if ortho, err := e.orthogonalEstimate(table, treatmentCol, outcomeCol, rows, treatment, outcome); err == nil {
		est.Effect = ortho.ate
		est.Method = MethodOrthogonal
		est.ConditionalInsight = ortho.insight
	} else if adjusted, err := e.linearAdjustment(table, treatmentCol, outcomeCol, rows, treatment, outcome); err == nil {
		est.Effect = adjusted
		est.Method = MethodLinearAdjustment
	}

	est.CILower, est.CIUpper = bootstrapCI(treatedOutcomes, controlOutcomes, e.cfg.BootstrapResamples, 0.1, rng)
	est.RefutationPassed = placeboTest(treatment, outcome, placeboLagDays)

	switch est.Method {
	case MethodOrthogonal:
		// No exact test exists on this path; the interval-exclusion check
		// stands in and the p-value is an explicitly labeled placeholder.
		excludesZero := est.CILower > 0 || est.CIUpper < 0
		est.PValueKind = PValueIntervalHeuristic
		if excludesZero {
			est.PValue = 0.05
		} else {
			est.PValue = 0.5
		}
		est.IsCausal = excludesZero && est.RefutationPassed && math.Abs(est.Effect) > orthogonalEpsilon
	default:
		_, p := welchTTest(treatedOutcomes, controlOutcomes)
		est.PValue = p
		est.PValueKind = PValueWelchTTest
		est.IsCausal = p < significanceAlpha && est.RefutationPassed && math.Abs(est.Effect) > 0
	}

	return est, true
}

type orthogonalResult struct {
	ate     float64
	insight string
}

// orthogonalEstimate fits outcome models per treatment arm plus a propensity
// model over confounders W, combines them into doubly robust per-night
// effect scores, and inspects heterogeneity drivers X for a conditional
// insight.
func (e *Estimator) orthogonalEstimate(table *features.Table, treatmentCol, outcomeCol string, rows []int, treatment, outcome []float64) (orthogonalResult, error) {
	if len(rows) < minOrthogonalRows {
		return orthogonalResult{}, errors.InsufficientData("too few rows for orthogonal estimation")
	}

	nTreated := 0
	for _, t := range treatment {
		if t == 1 {
			nTreated++
		}
	}
	if nTreated < minOrthogonalArm || len(treatment)-nTreated < minOrthogonalArm {
		return orthogonalResult{}, errors.InsufficientData("treatment arms too small for orthogonal estimation")
	}

	wCols := e.confounderColumns(table, treatmentCol, outcomeCol)
	if len(wCols) == 0 {
		return orthogonalResult{}, errors.InsufficientData("no confounder columns available")
	}
	xCols := e.heterogeneityColumns(table, outcomeCol)

	W := matrixAt(table, wCols, rows)
	meanImpute(W)

	var treatedW, controlW [][]float64
	var treatedY, controlY []float64
	for i := range rows {
		if treatment[i] == 1 {
			treatedW = append(treatedW, W[i])
			treatedY = append(treatedY, outcome[i])
		} else {
			controlW = append(controlW, W[i])
			controlY = append(controlY, outcome[i])
		}
	}
	if len(treatedW) < len(wCols)+2 || len(controlW) < len(wCols)+2 {
		return orthogonalResult{}, errors.InsufficientData("arms too small for outcome models")
	}

	mu1, err := olsFit(treatedW, treatedY)
	if err != nil {
		return orthogonalResult{}, err
	}
	mu0, err := olsFit(controlW, controlY)
	if err != nil {
		return orthogonalResult{}, err
	}
	propensity, err := olsFit(W, treatment)
	if err != nil {
		return orthogonalResult{}, err
	}

	// Doubly robust score per night.
	psi := make([]float64, len(rows))
	for i := range rows {
		m1 := predict(mu1, W[i])
		m0 := predict(mu0, W[i])
		p := clamp(predict(propensity, W[i]), 0.05, 0.95)
		if treatment[i] == 1 {
			psi[i] = m1 - m0 + (outcome[i]-m1)/p
		} else {
			psi[i] = m1 - m0 - (outcome[i]-m0)/(1-p)
		}
		if math.IsNaN(psi[i]) || math.IsInf(psi[i], 0) {
			return orthogonalResult{}, errors.New(errors.CodeInternalError, "non-finite effect score")
		}
	}

	ate := mean(psi)
	insight := e.heterogeneityInsight(table, xCols, rows, psi, ate)

	return orthogonalResult{ate: ate, insight: insight}, nil
}

// confounderColumns picks W: other medications' taken flags plus the
// outcome's rolling-trend columns, capped to keep the design well posed.
func (e *Estimator) confounderColumns(table *features.Table, treatmentCol, outcomeCol string) []string {
	var cols []string
	for _, c := range table.ColumnsWithPrefix("med_") {
		if c != treatmentCol && strings.HasSuffix(c, "_taken") {
			cols = append(cols, c)
		}
	}
	for _, c := range table.Columns {
		if strings.HasPrefix(c, outcomeCol+"_rolling_mean_") {
			cols = append(cols, c)
		}
	}
	const maxConfounders = 8
	if len(cols) > maxConfounders {
		cols = cols[:maxConfounders]
	}
	return cols
}

// heterogeneityColumns picks X: lagged values of the outcome family, falling
// back to other same-night sleep metrics when no lag columns exist.
func (e *Estimator) heterogeneityColumns(table *features.Table, outcomeCol string) []string {
	var cols []string
	for _, c := range table.Columns {
		if strings.HasPrefix(c, outcomeCol+"_lag") {
			cols = append(cols, c)
		}
	}
	if len(cols) > 0 {
		return cols
	}
	for _, c := range table.ColumnsWithPrefix("sleep_") {
		if c != outcomeCol && !strings.Contains(c, "_lag") && !strings.Contains(c, "_rolling_") {
			cols = append(cols, c)
		}
	}
	return cols
}

// heterogeneityInsight reports the covariate most correlated with the
// per-night effects when those effects vary materially around the average.
func (e *Estimator) heterogeneityInsight(table *features.Table, xCols []string, rows []int, psi []float64, ate float64) string {
	if len(xCols) == 0 || stdDev(psi) <= heterogeneityRatio*math.Abs(ate) {
		return ""
	}

	bestCol, bestCorr := "", 0.0
	for _, c := range xCols {
		x := make([]float64, len(rows))
		for i, r := range rows {
			x[i] = table.Column(c)[r]
		}
		// Impute missing covariate values at the column mean for scoring.
		col := [][]float64{}
		for _, v := range x {
			col = append(col, []float64{v})
		}
		meanImpute(col)
		for i := range x {
			x[i] = col[i][0]
		}
		corr := pearson(x, psi)
		if math.Abs(corr) > math.Abs(bestCorr) {
			bestCol, bestCorr = c, corr
		}
	}
	if math.Abs(bestCorr) <= insightCorrCutoff {
		return ""
	}

	direction := "increases"
	if bestCorr < 0 {
		direction = "decreases"
	}
	name := strings.TrimPrefix(bestCol, "sleep_")
	return fmt.Sprintf("effect %s when %s is higher", direction, name)
}

// linearAdjustment regresses the outcome on treatment plus up to five other
// medication indicators; the treatment coefficient is the adjusted effect.
func (e *Estimator) linearAdjustment(table *features.Table, treatmentCol, outcomeCol string, rows []int, treatment, outcome []float64) (float64, error) {
	var otherCols []string
	for _, c := range table.ColumnsWithPrefix("med_") {
		if c != treatmentCol && strings.HasSuffix(c, "_taken") {
			otherCols = append(otherCols, c)
			if len(otherCols) == maxLinearCovariates {
				break
			}
		}
	}
	if len(otherCols) == 0 {
		return 0, errors.InsufficientData("no covariates for linear adjustment")
	}

	design := make([][]float64, len(rows))
	for i, r := range rows {
		row := make([]float64, 0, 1+len(otherCols))
		row = append(row, treatment[i])
		for _, c := range otherCols {
			row = append(row, table.Column(c)[r])
		}
		design[i] = row
	}

	coefs, err := olsFit(design, outcome)
	if err != nil {
		return 0, err
	}
	return coefs[1], nil
}

func matrixAt(table *features.Table, cols []string, rows []int) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		row := make([]float64, len(cols))
		for j, c := range cols {
			row[j] = table.Column(c)[r]
		}
		out[i] = row
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
