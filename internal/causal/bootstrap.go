package causal

import (
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// bootstrapCI computes a two-sided confidence interval for the difference in
// means by resampling treated and control outcomes independently with
// replacement. alpha 0.1 yields a 90% interval.
func bootstrapCI(treated, control []float64, resamples int, alpha float64, rng *rand.Rand) (float64, float64) {
	if len(treated) == 0 || len(control) == 0 || resamples <= 0 {
		return 0, 0
	}

	diffs := make([]float64, resamples)
	for i := 0; i < resamples; i++ {
		diffs[i] = resampleMean(treated, rng) - resampleMean(control, rng)
	}

	lower, errL := stats.Percentile(diffs, alpha/2*100)
	upper, errU := stats.Percentile(diffs, (1-alpha/2)*100)
	if errL != nil || errU != nil {
		return 0, 0
	}
	if lower > upper {
		lower, upper = upper, lower
	}
	return lower, upper
}

func resampleMean(values []float64, rng *rand.Rand) float64 {
	n := len(values)
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += values[rng.Intn(n)]
	}
	return sum / float64(n)
}

// welchTTest computes the two-sample unequal-variance t statistic and its
// two-sided p-value via the Student's-t CDF.
func welchTTest(group1, group2 []float64) (tStat, pValue float64) {
	n1, n2 := float64(len(group1)), float64(len(group2))
	if n1 < 2 || n2 < 2 {
		return 0, 1
	}

	mean1, mean2 := mean(group1), mean(group2)
	var1 := stdDev(group1) * stdDev(group1)
	var2 := stdDev(group2) * stdDev(group2)

	se := math.Sqrt(var1/n1 + var2/n2)
	if se == 0 {
		if mean1 == mean2 {
			return 0, 1
		}
		// Zero variance with distinct means: maximally significant.
		return math.Inf(1), 0
	}
	tStat = (mean1 - mean2) / se

	// Welch-Satterthwaite degrees of freedom.
	df := math.Pow(var1/n1+var2/n2, 2) /
		(math.Pow(var1/n1, 2)/(n1-1) + math.Pow(var2/n2, 2)/(n2-1))
	if df <= 0 || math.IsNaN(df) {
		return tStat, 1
	}

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	pValue = 2 * (1 - dist.CDF(math.Abs(tStat)))
	if pValue < 0 {
		pValue = 0
	}
	if pValue > 1 {
		pValue = 1
	}
	return tStat, pValue
}

// pairSeed derives a deterministic RNG seed for one (medication, metric)
// unit of work so batch results are reproducible regardless of scheduling.
func pairSeed(base int64, medication, metric string) int64 {
	h := fnv.New64a()
	h.Write([]byte(medication))
	h.Write([]byte{0})
	h.Write([]byte(metric))
	return base ^ int64(h.Sum64())
}
