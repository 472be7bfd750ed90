// Package excel imports one-row-per-night workbooks into aligned data
// points. The expected layout is a header row with a "date" column,
// "med:<name>" dose columns (optional "med:<name>:time" companions) and
// sleep metric columns named by metric key.
package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"sleepanalysis/domain/core"
	"sleepanalysis/domain/sleep"
	"sleepanalysis/internal"
	"sleepanalysis/internal/errors"
)

const (
	medColumnPrefix  = "med:"
	timeColumnSuffix = ":time"
	dateColumn       = "date"
	sheetName        = "Sheet1"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01-02-06",
	"1/2/2006",
	"01/02/2006",
	time.RFC3339,
}

// Reader imports night histories from xlsx or csv files.
type Reader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	log      *internal.Logger
}

// NewReader creates a reader; the file type is inferred from the extension.
func NewReader(filePath string) *Reader {
	fileType := "xlsx"
	if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		fileType = "csv"
	}
	return &Reader{filePath: filePath, fileType: fileType, log: internal.DefaultLogger}
}

// Read loads the file into aligned data points sorted by date. Rows with an
// unparseable date are skipped; unparseable dose or metric cells degrade to
// missing values for that record only.
func (r *Reader) Read() ([]sleep.AlignedDataPoint, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.ImportError(fmt.Sprintf("file not found: %s", r.filePath), err)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	default:
		rows, err = r.readExcelRows()
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, errors.ImportError("file must have a header row and at least one data row", nil)
	}

	history, err := r.processRows(rows)
	if err != nil {
		return nil, err
	}
	sleep.SortByDate(history)
	r.log.Info("imported %d nights from %s", len(history), r.filePath)
	return history, nil
}

func (r *Reader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.ImportError("failed to open workbook", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, errors.ImportError("failed to read "+sheetName, err)
	}
	return rows, nil
}

func (r *Reader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.ImportError("failed to open csv file", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.ImportError("failed to read csv file", err)
	}
	return rows, nil
}

// columnPlan maps header positions onto their roles once, so row processing
// is a straight index walk.
type columnPlan struct {
	dateIdx   int
	doseIdx   map[core.MedicationKey]int
	timeIdx   map[core.MedicationKey]int
	metricIdx map[core.MetricKey]int
}

func planColumns(header []string) (columnPlan, error) {
	plan := columnPlan{
		dateIdx:   -1,
		doseIdx:   make(map[core.MedicationKey]int),
		timeIdx:   make(map[core.MedicationKey]int),
		metricIdx: make(map[core.MetricKey]int),
	}
	known := make(map[core.MetricKey]bool, len(sleep.AllMetrics))
	for _, m := range sleep.AllMetrics {
		known[m] = true
	}

	for i, raw := range header {
		name := strings.TrimSpace(raw)
		lower := strings.ToLower(name)
		switch {
		case lower == dateColumn:
			plan.dateIdx = i
		case strings.HasPrefix(lower, medColumnPrefix):
			rest := name[len(medColumnPrefix):]
			if strings.HasSuffix(strings.ToLower(rest), timeColumnSuffix) {
				med := core.CanonicalMedicationKey(rest[:len(rest)-len(timeColumnSuffix)])
				plan.timeIdx[med] = i
			} else {
				plan.doseIdx[core.CanonicalMedicationKey(rest)] = i
			}
		case known[core.MetricKey(name)]:
			plan.metricIdx[core.MetricKey(name)] = i
		}
	}

	if plan.dateIdx < 0 {
		return plan, errors.ImportError("header row has no date column", nil)
	}
	if len(plan.doseIdx) == 0 && len(plan.metricIdx) == 0 {
		return plan, errors.ImportError("header row has no medication or metric columns", nil)
	}
	return plan, nil
}

func (r *Reader) processRows(rows [][]string) ([]sleep.AlignedDataPoint, error) {
	plan, err := planColumns(rows[0])
	if err != nil {
		return nil, err
	}

	var history []sleep.AlignedDataPoint
	skipped := 0
	for rowNum := 1; rowNum < len(rows); rowNum++ {
		row := rows[rowNum]
		date, ok := parseDate(cellAt(row, plan.dateIdx))
		if !ok {
			skipped++
			continue
		}

		point := sleep.AlignedDataPoint{
			Date:        date,
			Medications: make(map[core.MedicationKey]sleep.MedicationIntake),
			Metrics:     make(map[core.MetricKey]*float64),
		}

		for med, idx := range plan.doseIdx {
			mg, ok := parseNumber(cellAt(row, idx))
			if !ok || mg <= 0 {
				continue
			}
			intake := sleep.MedicationIntake{Taken: true, TotalMg: mg, Quantity: 1}
			if tIdx, hasTime := plan.timeIdx[med]; hasTime {
				if clock := strings.TrimSpace(cellAt(row, tIdx)); clock != "" {
					intake.Doses = []sleep.Dose{{Mg: mg, Time: clock}}
				}
			}
			point.Medications[med] = intake
		}

		for metric, idx := range plan.metricIdx {
			if v, ok := parseNumber(cellAt(row, idx)); ok {
				value := v
				point.Metrics[metric] = &value
			}
		}

		history = append(history, point)
	}

	if skipped > 0 {
		r.log.Warn("skipped %d rows with unparseable dates", skipped)
	}
	if len(history) == 0 {
		return nil, errors.ImportError("no rows with a valid date", nil)
	}
	return history, nil
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func parseDate(cell string) (time.Time, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t, true
		}
	}
	// Excel serial date number.
	if serial, err := strconv.ParseFloat(cell, 64); err == nil && serial > 25569 {
		epoch := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
		return epoch.AddDate(0, 0, int(serial)), true
	}
	return time.Time{}, false
}

func parseNumber(cell string) (float64, bool) {
	cell = strings.TrimSuffix(strings.TrimSpace(cell), "mg")
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
