package causal

import (
	"math"
)

// placeboTest guards against confounding by checking whether future
// treatment predicts past outcome. The treatment series is shifted forward
// by lag days to create an implausible "future treatment" regressor; if its
// fitted values correlate strongly with the actual outcome, the original
// effect is suspect. Insufficient data passes: absence of evidence cannot
// refute.
func placeboTest(treatment, outcome []float64, lag int) bool {
	if len(treatment) < placeboMinRows {
		return true
	}

	var futureT, currentY []float64
	for i := 0; i+lag < len(treatment); i++ {
		t := treatment[i+lag]
		y := outcome[i]
		if math.IsNaN(t) || math.IsNaN(y) {
			continue
		}
		futureT = append(futureT, t)
		currentY = append(currentY, y)
	}
	if len(futureT) < placeboMinShifted {
		return true
	}

	rows := make([][]float64, len(futureT))
	for i, t := range futureT {
		rows[i] = []float64{t}
	}
	coefs, err := olsFit(rows, currentY)
	if err != nil {
		return true
	}

	fitted := make([]float64, len(futureT))
	for i, row := range rows {
		fitted[i] = predict(coefs, row)
	}

	corr := pearson(fitted, currentY)
	return math.Abs(corr) < placeboCorrCutoff
}
