package sleep

import "sleepanalysis/domain/core"

// Known sleep metric keys. These mirror the tracker's export format.
const (
	TotalSleepMinutes core.MetricKey = "totalSleepMinutes"
	DeepSleepMinutes  core.MetricKey = "deepSleepMinutes"
	RemSleepMinutes   core.MetricKey = "remSleepMinutes"
	LightSleepMinutes core.MetricKey = "lightSleepMinutes"
	SleepEfficiency   core.MetricKey = "sleepEfficiency"
	LatencyMinutes    core.MetricKey = "latencyMinutes"
	AvgHRV            core.MetricKey = "avgHrv"
	AvgHeartRate      core.MetricKey = "avgHeartRate"
	LowestHeartRate   core.MetricKey = "lowestHeartRate"
	RestlessPeriods   core.MetricKey = "restlessPeriods"
	SleepScore        core.MetricKey = "sleepScore"
	DeepSleepPercent  core.MetricKey = "deepSleepPercent"
	RemSleepPercent   core.MetricKey = "remSleepPercent"
)

// AllMetrics lists every known metric key in a fixed order.
var AllMetrics = []core.MetricKey{
	TotalSleepMinutes,
	DeepSleepMinutes,
	RemSleepMinutes,
	LightSleepMinutes,
	SleepEfficiency,
	LatencyMinutes,
	AvgHRV,
	AvgHeartRate,
	LowestHeartRate,
	RestlessPeriods,
	SleepScore,
	DeepSleepPercent,
	RemSleepPercent,
}

// DefaultCausalTargets are the metrics analyzed when a request does not name
// its own target set.
var DefaultCausalTargets = []core.MetricKey{
	SleepEfficiency,
	DeepSleepMinutes,
	AvgHRV,
	TotalSleepMinutes,
}

// DefaultObjectives are the objectives used by the Pareto search when the
// request does not name its own.
var DefaultObjectives = []core.MetricKey{
	DeepSleepMinutes,
	RemSleepMinutes,
	LatencyMinutes,
}

// lowerIsBetter marks metrics where a smaller value is the desirable outcome.
var lowerIsBetter = map[core.MetricKey]bool{
	LatencyMinutes:  true,
	RestlessPeriods: true,
	AvgHeartRate:    true,
	LowestHeartRate: true,
}

// LowerIsBetter reports whether a metric should be minimized rather than
// maximized when searching for good configurations.
func LowerIsBetter(key core.MetricKey) bool {
	return lowerIsBetter[key]
}
