package sleep

import (
	"sort"
	"time"

	"sleepanalysis/domain/core"
)

// Dose is a single discrete administration of a medication within a night.
type Dose struct {
	Mg   float64 `json:"mg"`
	Time string  `json:"time"` // wall clock, "HH:MM"
}

// MedicationIntake describes one medication's use on one night.
type MedicationIntake struct {
	Taken    bool    `json:"taken"`
	TotalMg  float64 `json:"total_mg"`
	Quantity float64 `json:"quantity"`
	Doses    []Dose  `json:"doses,omitempty"`
}

// AlignedDataPoint is one calendar night: every medication intake recorded
// for that night plus every sleep metric measured the following morning.
// Missing metric values are represented by absent map entries or nil values,
// never by zero.
type AlignedDataPoint struct {
	Date        time.Time                              `json:"date"`
	Medications map[core.MedicationKey]MedicationIntake `json:"medications"`
	Metrics     map[core.MetricKey]*float64             `json:"sleep_metrics"`
}

// Metric returns the value for a metric and whether it was recorded.
func (p AlignedDataPoint) Metric(key core.MetricKey) (float64, bool) {
	v, ok := p.Metrics[key]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// SortByDate orders a history ascending by calendar date, in place.
// All lag and rolling feature computation assumes this ordering.
func SortByDate(history []AlignedDataPoint) {
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Date.Before(history[j].Date)
	})
}
