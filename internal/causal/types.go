// Package causal estimates adjusted treatment effects of individual
// medications on sleep metrics from observational night histories, and
// validates each estimate with a placebo refutation test.
package causal

import (
	"sleepanalysis/domain/core"
)

// Method identifies which estimation strategy produced an estimate.
type Method string

const (
	// MethodOrthogonal is the doubly robust heterogeneous-effects estimator.
	MethodOrthogonal Method = "orthogonal_adjustment"
	// MethodLinearAdjustment regresses the outcome on treatment plus other
	// medication indicators.
	MethodLinearAdjustment Method = "linear_adjustment"
	// MethodNaiveDifference is the unadjusted difference in group means.
	MethodNaiveDifference Method = "naive_difference"
)

// PValueKind labels the statistical footing of an estimate's p-value. The
// orthogonal path cannot produce an exact test and substitutes an interval
// exclusion heuristic; the two must never be conflated.
type PValueKind string

const (
	PValueWelchTTest        PValueKind = "welch_t_test"
	PValueIntervalHeuristic PValueKind = "interval_heuristic"
)

// Estimate is one adjusted treatment-effect estimate for a
// (medication, metric) pair.
type Estimate struct {
	Medication         core.MedicationKey `json:"medication"`
	Metric             core.MetricKey     `json:"metric"`
	Effect             float64            `json:"causal_effect"`
	CILower            float64            `json:"ci_lower"`
	CIUpper            float64            `json:"ci_upper"`
	IsCausal           bool               `json:"is_causal"`
	PValue             float64            `json:"p_value"`
	PValueKind         PValueKind         `json:"p_value_kind"`
	RefutationPassed   bool               `json:"refutation_passed"`
	Method             Method             `json:"method"`
	ConditionalInsight string             `json:"conditional_insight,omitempty"`
}

// Thresholds for gating, refutation and classification.
const (
	minGroupSize        = 10
	minCompleteRows     = 30
	minOrthogonalRows   = 50
	minOrthogonalArm    = 15
	maxLinearCovariates = 5
	maxResults          = 20

	placeboLagDays     = 3
	placeboMinRows     = 50
	placeboMinShifted  = 20
	placeboCorrCutoff  = 0.3
	significanceAlpha  = 0.05
	orthogonalEpsilon  = 0.01
	heterogeneityRatio = 0.2
	insightCorrCutoff  = 0.3
)
