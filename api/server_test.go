package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"sleepanalysis/domain/core"
	"sleepanalysis/domain/sleep"
	"sleepanalysis/internal/causal"
	"sleepanalysis/internal/optimize"
	"sleepanalysis/internal/testkit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testServer() *Server {
	return NewServer(causal.DefaultConfig(), optimize.DefaultConfig(), nil)
}

func postJSON(t *testing.T, s *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func wireHistory(t *testing.T, nights int, seed int64) []AlignedDataPointDTO {
	t.Helper()
	cfg := testkit.DefaultNightConfig()
	cfg.Nights = nights
	cfg.Seed = seed
	cfg.Noise = 2
	cfg.Medications = []testkit.MedicationProfile{
		{
			Name:            "melatonin",
			DoseMg:          3,
			TakeProbability: 0.5,
			DoseTime:        "22:00",
			Effects:         map[core.MetricKey]float64{sleep.SleepEfficiency: 10},
		},
		{
			Name:            "magnesium_glycinate",
			DoseMg:          400,
			TakeProbability: 0.4,
			DoseTime:        "21:00",
		},
	}
	points := make([]AlignedDataPointDTO, 0, nights)
	for _, p := range testkit.NewNightGenerator(cfg).Generate() {
		points = append(points, fromDomainPoint(p))
	}
	return points
}

func TestHealth(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "healthy" || resp["version"] == "" {
		t.Errorf("unexpected health payload: %v", resp)
	}
}

func TestCausal_EmptyHistoryRejected(t *testing.T) {
	w := postJSON(t, testServer(), "/analyze/causal", AnalysisRequest{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["code"] != "INVALID_INPUT" {
		t.Errorf("code = %q, want INVALID_INPUT", resp["code"])
	}
}

func TestCausal_ShortHistoryReturnsEmptyList(t *testing.T) {
	w := postJSON(t, testServer(), "/analyze/causal", AnalysisRequest{
		AlignedData: wireHistory(t, 10, 21),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		CausalResults []causal.Estimate `json:"causal_results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.CausalResults) != 0 {
		t.Errorf("10 nights should yield no estimates, got %d", len(resp.CausalResults))
	}
}

func TestCausal_FullPipeline(t *testing.T) {
	w := postJSON(t, testServer(), "/analyze/causal", AnalysisRequest{
		AlignedData:   wireHistory(t, 60, 22),
		TargetMetrics: []string{string(sleep.SleepEfficiency)},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		CausalResults []causal.Estimate `json:"causal_results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.CausalResults) == 0 {
		t.Fatal("expected estimates from a 60-night history")
	}
	var found bool
	for _, e := range resp.CausalResults {
		if e.Medication == "melatonin" && e.Metric == sleep.SleepEfficiency {
			found = true
		}
	}
	if !found {
		t.Error("melatonin estimate missing from response")
	}
}

func TestCausal_BadDateRejected(t *testing.T) {
	points := wireHistory(t, 10, 23)
	points[3].Date = "yesterday"
	w := postJSON(t, testServer(), "/analyze/causal", AnalysisRequest{AlignedData: points})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestOptimize_RequiresTargetMetric(t *testing.T) {
	w := postJSON(t, testServer(), "/optimize", OptimizeRequest{
		AlignedData: wireHistory(t, 20, 24),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestOptimize_ReturnsResult(t *testing.T) {
	w := postJSON(t, testServer(), "/optimize", OptimizeRequest{
		AlignedData:  wireHistory(t, 60, 25),
		TargetMetric: string(sleep.SleepEfficiency),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var result optimize.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.TargetMetric != sleep.SleepEfficiency {
		t.Errorf("target metric = %q", result.TargetMetric)
	}
	if len(result.Recommendations) == 0 {
		t.Error("expected dose recommendations from a 60-night history")
	}
}

func TestPareto_DefaultsObjectives(t *testing.T) {
	w := postJSON(t, testServer(), "/optimize/pareto", ParetoRequest{
		AlignedData: wireHistory(t, 60, 26),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var result optimize.MultiObjectiveResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Recommendation == "" {
		t.Error("pareto response should always carry a recommendation")
	}
}

func TestSimulate_RequiresMedications(t *testing.T) {
	w := postJSON(t, testServer(), "/simulate", SimulateRequest{
		AlignedData: wireHistory(t, 20, 27),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestSimulate_NormalizesMedicationNames(t *testing.T) {
	w := postJSON(t, testServer(), "/simulate", SimulateRequest{
		AlignedData: wireHistory(t, 60, 28),
		Medications: map[string]float64{"Melatonin": 3},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var result optimize.SimulationResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Predictions) == 0 {
		t.Error("expected per-metric predictions")
	}
}

func TestImport_MissingFile(t *testing.T) {
	w := postJSON(t, testServer(), "/import/excel", ImportRequest{Path: "/nonexistent/nights.xlsx"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["code"] != "IMPORT_ERROR" {
		t.Errorf("code = %v, want IMPORT_ERROR", resp["code"])
	}
}

func TestReport_RendersHTML(t *testing.T) {
	w := postJSON(t, testServer(), "/report", AnalysisRequest{
		AlignedData: wireHistory(t, 60, 29),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("Sleep Medication Analysis")) {
		t.Error("report body missing title")
	}
}

func TestReport_GetWithoutWorkbookRejected(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/report", nil)
	w := httptest.NewRecorder()
	testServer().Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestRecentRuns_NoArchive(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	w := httptest.NewRecorder()
	testServer().Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Runs []json.RawMessage `json:"runs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Runs) != 0 {
		t.Errorf("no archive should mean no runs, got %d", len(resp.Runs))
	}
}
