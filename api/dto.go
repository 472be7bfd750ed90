package api

import (
	"fmt"
	"time"

	"sleepanalysis/adapters/pharma"
	"sleepanalysis/domain/core"
	"sleepanalysis/domain/sleep"
	"sleepanalysis/internal/errors"
)

const wireDateLayout = "2006-01-02"

// DoseDTO is one intake event on the wire.
type DoseDTO struct {
	Mg   float64 `json:"mg"`
	Time string  `json:"time"`
}

// MedicationIntakeDTO is one medication's intake for a night.
type MedicationIntakeDTO struct {
	Taken    bool      `json:"taken"`
	TotalMg  float64   `json:"total_mg"`
	Quantity float64   `json:"quantity"`
	Doses    []DoseDTO `json:"doses,omitempty"`
}

// AlignedDataPointDTO is one night of aligned medication and sleep data.
// Medication names are free-form and normalized server-side.
type AlignedDataPointDTO struct {
	Date         string                         `json:"date"`
	Medications  map[string]MedicationIntakeDTO `json:"medications"`
	SleepMetrics map[string]*float64            `json:"sleep_metrics"`
}

// AnalysisRequest carries a history plus optional target metrics.
type AnalysisRequest struct {
	AlignedData   []AlignedDataPointDTO `json:"aligned_data"`
	TargetMetrics []string              `json:"target_metrics,omitempty"`
}

// OptimizeRequest carries a history plus the single metric to optimize.
type OptimizeRequest struct {
	AlignedData  []AlignedDataPointDTO `json:"aligned_data"`
	TargetMetric string                `json:"target_metric"`
}

// ParetoRequest carries a history plus optional objective metrics.
type ParetoRequest struct {
	AlignedData []AlignedDataPointDTO `json:"aligned_data"`
	Objectives  []string              `json:"objectives,omitempty"`
}

// SimulateRequest carries a history plus an explicit dose configuration.
type SimulateRequest struct {
	AlignedData []AlignedDataPointDTO `json:"aligned_data"`
	Medications map[string]float64    `json:"medications"`
}

// ImportRequest names a workbook to load.
type ImportRequest struct {
	Path string `json:"path"`
}

// toHistory converts wire data points into domain form. Medication names
// are canonicalized against the known-medication table; unknown names keep
// their canonical key. Rows with unparseable dates are rejected outright,
// since silently dropping request data would skew the analysis.
func toHistory(points []AlignedDataPointDTO) ([]sleep.AlignedDataPoint, error) {
	if len(points) == 0 {
		return nil, errors.InvalidInput("aligned_data is empty")
	}

	history := make([]sleep.AlignedDataPoint, 0, len(points))
	for i, dto := range points {
		date, err := time.Parse(wireDateLayout, dto.Date)
		if err != nil {
			if date, err = time.Parse(time.RFC3339, dto.Date); err != nil {
				return nil, errors.InvalidInput(fmt.Sprintf("aligned_data[%d] has unparseable date %q", i, dto.Date))
			}
		}

		point := sleep.AlignedDataPoint{
			Date:        date,
			Medications: make(map[core.MedicationKey]sleep.MedicationIntake, len(dto.Medications)),
			Metrics:     make(map[core.MetricKey]*float64, len(dto.SleepMetrics)),
		}
		for name, intake := range dto.Medications {
			doses := make([]sleep.Dose, 0, len(intake.Doses))
			for _, d := range intake.Doses {
				doses = append(doses, sleep.Dose{Mg: d.Mg, Time: d.Time})
			}
			point.Medications[pharma.Normalize(name)] = sleep.MedicationIntake{
				Taken:    intake.Taken,
				TotalMg:  intake.TotalMg,
				Quantity: intake.Quantity,
				Doses:    doses,
			}
		}
		for key, value := range dto.SleepMetrics {
			point.Metrics[core.MetricKey(key)] = value
		}
		history = append(history, point)
	}
	return history, nil
}

// fromDomainPoint converts an imported domain data point back onto the wire
// so clients can feed workbook contents into the analysis endpoints.
func fromDomainPoint(p sleep.AlignedDataPoint) AlignedDataPointDTO {
	dto := AlignedDataPointDTO{
		Date:         p.Date.Format(wireDateLayout),
		Medications:  make(map[string]MedicationIntakeDTO, len(p.Medications)),
		SleepMetrics: make(map[string]*float64, len(p.Metrics)),
	}
	for med, intake := range p.Medications {
		doses := make([]DoseDTO, 0, len(intake.Doses))
		for _, d := range intake.Doses {
			doses = append(doses, DoseDTO{Mg: d.Mg, Time: d.Time})
		}
		dto.Medications[string(med)] = MedicationIntakeDTO{
			Taken:    intake.Taken,
			TotalMg:  intake.TotalMg,
			Quantity: intake.Quantity,
			Doses:    doses,
		}
	}
	for key, value := range p.Metrics {
		dto.SleepMetrics[string(key)] = value
	}
	return dto
}

func toMetricKeys(names []string) []core.MetricKey {
	keys := make([]core.MetricKey, 0, len(names))
	for _, n := range names {
		keys = append(keys, core.MetricKey(n))
	}
	return keys
}

func toDoseMap(medications map[string]float64) map[core.MedicationKey]float64 {
	doses := make(map[core.MedicationKey]float64, len(medications))
	for name, mg := range medications {
		doses[pharma.Normalize(name)] = mg
	}
	return doses
}
