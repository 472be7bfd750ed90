// Package optimize trains per-metric quantile regression models over the
// medication dose space and searches it for configurations that improve one
// or several sleep objectives. Training produces an immutable value object;
// callers own its lifetime and replace it wholesale on retrain.
package optimize

import (
	"sleepanalysis/domain/core"
)

// Suggestion is one recommended medication in a configuration.
type Suggestion struct {
	Medication      core.MedicationKey `json:"medication"`
	DoseMg          float64            `json:"dose_mg"`
	Time            string             `json:"time"`
	PredictedImpact float64            `json:"predicted_impact"`
	Confidence      float64            `json:"confidence"`
}

// Result is the outcome of a single-objective search.
type Result struct {
	TargetMetric    core.MetricKey `json:"target_metric"`
	Recommendations []Suggestion   `json:"recommendations"`
	PredictedScore  float64        `json:"predicted_score"`
	PredictedLower  float64        `json:"predicted_lower"`
	PredictedUpper  float64        `json:"predicted_upper"`
	Confidence      float64        `json:"confidence"`
	Message         string         `json:"message,omitempty"`
}

// ParetoSolution is one non-dominated point on the frontier, translated back
// into per-medication suggestions.
type ParetoSolution struct {
	Medications []Suggestion       `json:"medications"`
	Objectives  map[string]float64 `json:"objectives"`
	TradeOff    string             `json:"trade_off_description"`
}

// MultiObjectiveResult is the outcome of a Pareto frontier search.
type MultiObjectiveResult struct {
	ParetoFrontier []ParetoSolution `json:"pareto_frontier"`
	ObjectiveNames []string         `json:"objective_names"`
	Recommendation string           `json:"recommendation"`
}

// PredictionDetail is a per-metric simulated outcome with its interval.
type PredictionDetail struct {
	Predicted float64 `json:"predicted_value"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
}

// SimulationResult maps each trained metric to its predicted outcome under
// an explicit medication configuration.
type SimulationResult struct {
	Predictions map[core.MetricKey]PredictionDetail `json:"predictions"`
}

// DoseStats summarizes a medication's observed usage.
type DoseStats struct {
	MinMg   float64 `json:"min_mg"`
	MaxMg   float64 `json:"max_mg"`
	AvgMg   float64 `json:"avg_mg"`
	AvgTime string  `json:"avg_time"`
}

// Search and training constants.
const (
	minTrainingRows     = 10
	minMetricSamples    = 10
	searchCandidates    = 100
	zeroDoseProbability = 0.5
	doseBoundFactor     = 1.2
	suggestionThreshold = 0.1 // fraction of the historical average dose
	frontierCap         = 10

	fastOnsetMinutes = 15.0
	slowOnsetMinutes = 30.0
)
