package api_test

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/countentropy/countentropy/internal/alerts"
	"github.com/countentropy/countentropy/internal/api"
	"github.com/countentropy/countentropy/internal/compute"
	"github.com/countentropy/countentropy/internal/config"
	"github.com/countentropy/countentropy/internal/store"
)

// --- test helpers -----------------------------------------------------------

func newStore(results ...*compute.Result) *store.Store {
	st := store.New(5 * time.Minute)
	for _, r := range results {
		st.Put(r)
	}
	return st
}

func result(id, state string, h float64) *compute.Result {
	r := &compute.Result{
		SourceID:   id,
		SourceType: "prometheus",
		Timestamp:  time.Now(),
		State:      state,
		Base:       "log",
		UptimePct:  100,
	}
	if state == compute.StateOK {
		r.Entropy = h
		r.Categories = 4
		r.Total = 40
		r.Partials = 1
		r.MaxEntropy = math.Log(4)
		r.Normalized = h / r.MaxEntropy
	} else {
		r.ErrorMessage = "entropy: expect the type of the input record to be of ([int, long]), but instead found double"
	}
	return r
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_EmptyStore(t *testing.T) {
	h := api.New(newStore(), nil)
	rr := get(t, h, "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)

	if resp.State != "unknown" {
		t.Errorf("state: got %q, want unknown", resp.State)
	}
	if resp.SourceCount != 0 {
		t.Errorf("source_count: got %d, want 0", resp.SourceCount)
	}
}

func TestHealth_AllOK(t *testing.T) {
	h := api.New(newStore(
		result("a", compute.StateOK, 1.0),
		result("b", compute.StateOK, 2.0),
		result("c", compute.StateOK, 3.0),
	), nil)

	var resp api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &resp)

	if resp.State != "ok" {
		t.Errorf("state: got %q, want ok", resp.State)
	}
	if resp.OKCount != 3 {
		t.Errorf("ok_count: got %d, want 3", resp.OKCount)
	}
	if !almostEqual(resp.MeanEntropy, 2.0, 1e-9) {
		t.Errorf("mean_entropy: got %v, want 2", resp.MeanEntropy)
	}
	if !almostEqual(resp.MedianEntropy, 2.0, 1e-9) {
		t.Errorf("median_entropy: got %v, want 2", resp.MedianEntropy)
	}
	if resp.MinEntropy != 1.0 || resp.MaxEntropy != 3.0 {
		t.Errorf("min/max: got %v/%v, want 1/3", resp.MinEntropy, resp.MaxEntropy)
	}
}

func TestHealth_DegradedExcludesNonOKFromStats(t *testing.T) {
	h := api.New(newStore(
		result("a", compute.StateOK, 1.5),
		result("b", compute.StateInvalid, 0),
		result("c", compute.StateUnknown, 0),
	), nil)

	var resp api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &resp)

	if resp.State != "degraded" {
		t.Errorf("state: got %q, want degraded", resp.State)
	}
	if resp.OKCount != 1 || resp.InvalidCount != 1 || resp.UnknownCount != 1 {
		t.Errorf("counts: got ok=%d invalid=%d unknown=%d, want 1/1/1",
			resp.OKCount, resp.InvalidCount, resp.UnknownCount)
	}
	if !almostEqual(resp.MeanEntropy, 1.5, 1e-9) {
		t.Errorf("mean_entropy: got %v, want 1.5", resp.MeanEntropy)
	}
}

func TestHealth_CountsFiringAlerts(t *testing.T) {
	eng := alerts.New(config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "low-entropy", Condition: "entropy < 0.5", Severity: "warning"},
	}})
	low := result("a", compute.StateOK, 0.1)
	eng.Evaluate(low)
	eng.Wait()

	h := api.New(newStore(low), eng)
	var resp api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &resp)

	if resp.AlertCount != 1 {
		t.Errorf("alert_count: got %d, want 1", resp.AlertCount)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h := api.New(newStore(), nil)
	rr := post(t, h, "/api/v1/health", "{}")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/sources --------------------------------------------------------

func TestListSources_SortedByID(t *testing.T) {
	h := api.New(newStore(
		result("zeta", compute.StateOK, 1.0),
		result("alpha", compute.StateOK, 2.0),
	), nil)

	var resp []api.SourceResponse
	decode(t, get(t, h, "/api/v1/sources"), &resp)

	if len(resp) != 2 {
		t.Fatalf("len: got %d, want 2", len(resp))
	}
	if resp[0].SourceID != "alpha" || resp[1].SourceID != "zeta" {
		t.Errorf("order: got %s, %s", resp[0].SourceID, resp[1].SourceID)
	}
}

func TestListSources_EmptyIsArray(t *testing.T) {
	h := api.New(newStore(), nil)
	rr := get(t, h, "/api/v1/sources")
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("body: got %q, want []", got)
	}
}

func TestGetSource_Found(t *testing.T) {
	h := api.New(newStore(result("events", compute.StateOK, 1.2)), nil)

	rr := get(t, h, "/api/v1/sources/events")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.SourceResponse
	decode(t, rr, &resp)

	if resp.SourceID != "events" || resp.State != "ok" || resp.Base != "log" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Categories != 4 || resp.Total != 40 {
		t.Errorf("categories/total: got %d/%d, want 4/40", resp.Categories, resp.Total)
	}
	if _, err := time.Parse(time.RFC3339, resp.ComputedAt); err != nil {
		t.Errorf("computed_at not RFC3339: %q", resp.ComputedAt)
	}
}

func TestGetSource_InvalidCarriesError(t *testing.T) {
	h := api.New(newStore(result("bad", compute.StateInvalid, 0)), nil)

	var resp api.SourceResponse
	decode(t, get(t, h, "/api/v1/sources/bad"), &resp)

	if resp.State != "invalid" {
		t.Errorf("state: got %q, want invalid", resp.State)
	}
	if !strings.Contains(resp.ErrorMessage, "instead found double") {
		t.Errorf("error_message: got %q", resp.ErrorMessage)
	}
}

func TestGetSource_NotFound(t *testing.T) {
	h := api.New(newStore(), nil)
	rr := get(t, h, "/api/v1/sources/missing")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["error"] == "" {
		t.Error("expected error body")
	}
}

// --- /api/v1/alerts ---------------------------------------------------------

func TestAlerts_NilEngineIsEmpty(t *testing.T) {
	h := api.New(newStore(), nil)
	rr := get(t, h, "/api/v1/alerts")
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("body: got %q, want []", got)
	}
}

func TestAlerts_ListsFiring(t *testing.T) {
	eng := alerts.New(config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "schema", Condition: "state == invalid", Severity: "critical"},
	}})
	bad := result("bad", compute.StateInvalid, 0)
	eng.Evaluate(bad)
	eng.Wait()

	h := api.New(newStore(bad), eng)
	var resp []alerts.Alert
	decode(t, get(t, h, "/api/v1/alerts"), &resp)

	if len(resp) != 1 {
		t.Fatalf("len: got %d, want 1", len(resp))
	}
	if resp[0].RuleName != "schema" || resp[0].State != alerts.StateFiring {
		t.Errorf("unexpected alert: %+v", resp[0])
	}
}

// --- /api/v1/compute --------------------------------------------------------

func TestCompute(t *testing.T) {
	tests := []struct {
		name string
		body string
		want float64
		cats int
	}{
		{"default base", `{"counts":[1,1,3,1,2,1,1]}`, 1.8343719702816237, 7},
		{"log2", `{"base":"log2","counts":[1,1,3,1,2,1,1]}`, 2.6464393446710157, 7},
		{"log10", `{"base":"log10","schema":["int"],"counts":[1,1,3,1,2,1,1]}`, 0.796657624451305, 7},
		{"negative clamped", `{"counts":[0,-38,0,62,38,32,96,38,96,0]}`, 1.693861665794233, 6},
		{"empty", `{"counts":[]}`, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := api.New(newStore(), nil)
			rr := post(t, h, "/api/v1/compute", tt.body)
			if rr.Code != http.StatusOK {
				t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
			}
			var resp api.ComputeResponse
			decode(t, rr, &resp)
			if !almostEqual(resp.Entropy, tt.want, 1e-9) {
				t.Errorf("entropy: got %v, want %v", resp.Entropy, tt.want)
			}
			if resp.Categories != tt.cats {
				t.Errorf("categories: got %d, want %d", resp.Categories, tt.cats)
			}
		})
	}
}

func TestCompute_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"unknown base", `{"base":"log3","counts":[1]}`, "unsupported log base"},
		{"double schema", `{"schema":["double"],"counts":[1]}`, "instead found double"},
		{"two fields", `{"schema":["long","long"],"counts":[1]}`, "size is not 1"},
		{"unknown type name", `{"schema":["decimal"],"counts":[1]}`, "unknown type"},
		{"malformed body", `{"counts":`, "decode body"},
		{"unknown field", `{"cnts":[1]}`, "decode body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := api.New(newStore(), nil)
			rr := post(t, h, "/api/v1/compute", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want 400", rr.Code)
			}
			var resp map[string]string
			decode(t, rr, &resp)
			if !strings.Contains(resp["error"], tt.wantMsg) {
				t.Errorf("error: got %q, want substring %q", resp["error"], tt.wantMsg)
			}
		})
	}
}

func TestCompute_MethodNotAllowed(t *testing.T) {
	h := api.New(newStore(), nil)
	rr := get(t, h, "/api/v1/compute")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /metrics ---------------------------------------------------------------

func TestMetrics_ExpositionRoundTrip(t *testing.T) {
	h := api.New(newStore(
		result("a", compute.StateOK, 1.25),
		result("b", compute.StateInvalid, 0),
	), nil)

	rr := get(t, h, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}

	var parser expfmt.TextParser
	fams, err := parser.TextToMetricFamilies(rr.Body)
	if err != nil {
		t.Fatalf("parse exposition: %v", err)
	}

	mf, ok := fams["count_entropy"]
	if !ok {
		t.Fatal("count_entropy family missing")
	}
	if len(mf.GetMetric()) != 1 {
		t.Fatalf("count_entropy series: got %d, want 1 (invalid source excluded)", len(mf.GetMetric()))
	}
	if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 1.25 {
		t.Errorf("count_entropy value: got %v, want 1.25", got)
	}

	state, ok := fams["count_entropy_source_state"]
	if !ok {
		t.Fatal("count_entropy_source_state family missing")
	}
	if len(state.GetMetric()) != 2 {
		t.Errorf("state series: got %d, want 2", len(state.GetMetric()))
	}
	if up, ok := fams["count_entropy_uptime_pct"]; !ok || len(up.GetMetric()) != 2 {
		t.Error("uptime gauge should cover every source")
	}
}

func TestMetrics_EmptyStore(t *testing.T) {
	h := api.New(newStore(), nil)
	rr := get(t, h, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("body: got %q, want empty", rr.Body.String())
	}
}

// --- diagnostics ------------------------------------------------------------

func TestGetSource_Diagnostics(t *testing.T) {
	skewed := result("skewed", compute.StateOK, 0.1)
	flaky := result("flaky", compute.StateOK, 1.0)
	flaky.UptimePct = 50
	single := result("single", compute.StateOK, 0)
	single.Categories, single.MaxEntropy, single.Normalized = 1, 0, 0
	down := result("down", compute.StateUnknown, 0)

	tests := []struct {
		id      string
		wantKey string
	}{
		{"skewed", "skewed"},
		{"flaky", "uptime"},
		{"single", "single_category"},
		{"down", "collect_failed"},
		{"bad", "schema_rejected"},
	}
	h := api.New(newStore(skewed, flaky, single, down, result("bad", compute.StateInvalid, 0)), nil)
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			var resp api.SourceResponse
			decode(t, get(t, h, "/api/v1/sources/"+tt.id), &resp)
			if len(resp.Diagnostics) == 0 {
				t.Fatal("expected diagnostics")
			}
			if resp.Diagnostics[0].Key != tt.wantKey {
				t.Errorf("first hint: got %q, want %q", resp.Diagnostics[0].Key, tt.wantKey)
			}
		})
	}
}

func TestListSources_OmitsDiagnostics(t *testing.T) {
	h := api.New(newStore(result("a", compute.StateOK, 1.0)), nil)
	var resp []api.SourceResponse
	decode(t, get(t, h, "/api/v1/sources"), &resp)
	if len(resp) != 1 || resp[0].Diagnostics != nil {
		t.Errorf("list should not carry diagnostics: %+v", resp)
	}
}
