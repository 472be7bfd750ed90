package excel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"sleepanalysis/domain/sleep"
	"sleepanalysis/internal/errors"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nights.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRead_CSVHappyPath(t *testing.T) {
	path := writeCSV(t, `date,med:Melatonin,med:Melatonin:time,med:Magnesium Glycinate,deepSleepMinutes,sleepEfficiency
2025-03-02,3,22:30,400,80,88
2025-03-01,,,400,75,85
`)

	history, err := NewReader(path).Read()
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("len = %d, want 2", len(history))
	}
	// Sorted by date regardless of file order.
	if !history[0].Date.Before(history[1].Date) {
		t.Error("history should be sorted by date")
	}

	night := history[1] // 2025-03-02
	mel, ok := night.Medications["melatonin"]
	if !ok || !mel.Taken || mel.TotalMg != 3 {
		t.Fatalf("melatonin intake wrong: %+v", mel)
	}
	if len(mel.Doses) != 1 || mel.Doses[0].Time != "22:30" {
		t.Errorf("melatonin dose time missing: %+v", mel.Doses)
	}
	if mg, ok := night.Medications["magnesium_glycinate"]; !ok || mg.TotalMg != 400 {
		t.Errorf("magnesium intake wrong: %+v", mg)
	}

	if v, ok := history[0].Metric(sleep.DeepSleepMinutes); !ok || v != 75 {
		t.Errorf("deep sleep = %v, %v; want 75", v, ok)
	}
	if _, ok := history[0].Medications["melatonin"]; ok {
		t.Error("empty dose cell should mean not taken")
	}
}

func TestRead_BadCellsDegradeToMissing(t *testing.T) {
	path := writeCSV(t, `date,med:melatonin,deepSleepMinutes
2025-03-01,three,not-a-number
2025-03-02,3,80
not-a-date,3,80
`)

	history, err := NewReader(path).Read()
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("bad-date row should be skipped, others kept: got %d rows", len(history))
	}
	first := history[0]
	if _, ok := first.Medications["melatonin"]; ok {
		t.Error("unparseable dose should mean not taken")
	}
	if _, ok := first.Metric(sleep.DeepSleepMinutes); ok {
		t.Error("unparseable metric cell should stay missing")
	}
}

func TestRead_HeaderValidation(t *testing.T) {
	path := writeCSV(t, `night,med:melatonin
2025-03-01,3
`)
	_, err := NewReader(path).Read()
	if err == nil || errors.GetCode(err) != errors.CodeImportError {
		t.Fatalf("missing date column should be an import error, got %v", err)
	}
}

func TestRead_MissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "absent.xlsx")).Read()
	if err == nil || errors.GetCode(err) != errors.CodeImportError {
		t.Fatalf("missing file should be an import error, got %v", err)
	}
}

func TestRead_Workbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nights.xlsx")
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"date", "med:melatonin", "sleepEfficiency"},
		{"2025-03-01", 3, 85},
		{"2025-03-02", 0, 82},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	history, err := NewReader(path).Read()
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("len = %d, want 2", len(history))
	}
	if _, ok := history[1].Medications["melatonin"]; ok {
		t.Error("zero dose should mean not taken")
	}
	if v, ok := history[0].Metric(sleep.SleepEfficiency); !ok || v != 85 {
		t.Errorf("efficiency = %v, %v; want 85", v, ok)
	}
}
