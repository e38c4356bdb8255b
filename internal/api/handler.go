package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/countentropy/countentropy/internal/alerts"
	"github.com/countentropy/countentropy/internal/compute"
	"github.com/countentropy/countentropy/internal/store"
	"github.com/countentropy/countentropy/pkg/entropy"
)

// maxComputeBody bounds the POST /api/v1/compute request body.
const maxComputeBody = 8 << 20

// Handler serves the /api/v1/* endpoints and /metrics.
type Handler struct {
	store  *store.Store
	alerts *alerts.Engine
	mux    *http.ServeMux
}

// New creates a Handler wired to the result store and alert engine and
// registers all routes. alertEngine may be nil.
func New(st *store.Store, alertEngine *alerts.Engine) http.Handler {
	h := &Handler{store: st, alerts: alertEngine, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/sources", h.listSources)
	h.mux.HandleFunc("/api/v1/sources/", h.getSource)
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/compute", h.compute)
	h.mux.HandleFunc("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.List()
	resp := HealthResponse{SourceCount: len(entries)}
	if h.alerts != nil {
		for _, a := range h.alerts.Active() {
			if a.State == alerts.StateFiring {
				resp.AlertCount++
			}
		}
	}

	var values, normalized []float64
	for _, e := range entries {
		switch e.Result.State {
		case compute.StateOK:
			resp.OKCount++
			values = append(values, e.Result.Entropy)
			normalized = append(normalized, e.Result.Normalized)
		case compute.StateInvalid:
			resp.InvalidCount++
		default:
			resp.UnknownCount++
		}
	}

	switch {
	case len(entries) == 0:
		resp.State = "unknown"
	case resp.OKCount == len(entries):
		resp.State = "ok"
	default:
		resp.State = "degraded"
	}

	if len(values) > 0 {
		// Errors only signal empty input, ruled out above.
		resp.MeanEntropy, _ = stats.Mean(values)
		resp.MedianEntropy, _ = stats.Median(values)
		resp.MinEntropy, _ = stats.Min(values)
		resp.MaxEntropy, _ = stats.Max(values)
		resp.MeanNormalized, _ = stats.Mean(normalized)
	}
	jsonResp(w, http.StatusOK, resp)
}

// listSources returns GET /api/v1/sources, all live results.
func (h *Handler) listSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.List()
	out := make([]SourceResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toSourceResponse(e))
	}
	jsonResp(w, http.StatusOK, out)
}

// getSource returns GET /api/v1/sources/{id}.
func (h *Handler) getSource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/sources/")
	if id == "" {
		h.listSources(w, r)
		return
	}

	e, ok := h.store.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "source not found")
		return
	}
	resp := toSourceResponse(e)
	resp.Diagnostics = computeDiagnostics(e.Result)
	jsonResp(w, http.StatusOK, resp)
}

// listAlerts returns GET /api/v1/alerts, firing and recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []*alerts.Alert{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// compute handles POST /api/v1/compute, an ad-hoc estimator call.
//
// Any rejection (malformed body, unknown base or type name, schema
// errors from the estimator) answers 400 with the error message.
func (h *Handler) compute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ComputeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxComputeBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("decode body: %v", err))
		return
	}

	est, err := entropy.New(req.Base)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	bag, err := requestBag(req)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	h0, err := est.Compute(bag)
	if err != nil {
		var shapeErr *entropy.SchemaShapeError
		var typeErr *entropy.SchemaTypeError
		if errors.As(err, &shapeErr) || errors.As(err, &typeErr) {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Schema already validated, Accumulate cannot fail.
	acc := est.NewAccumulator()
	_ = acc.Accumulate(bag)

	resp := ComputeResponse{
		Base:       est.Base().String(),
		Entropy:    h0,
		Categories: acc.Categories(),
		Total:      acc.Total(),
		MaxEntropy: entropy.MaxEntropy(acc.Categories(), est.Base()),
	}
	if resp.MaxEntropy > 0 {
		resp.Normalized = resp.Entropy / resp.MaxEntropy
	}
	jsonResp(w, http.StatusOK, resp)
}

// requestBag builds the bag declared by a compute request.
func requestBag(req ComputeRequest) (entropy.Bag, error) {
	names := req.Schema
	if len(names) == 0 {
		names = []string{"long"}
	}
	fields := make([]entropy.Field, len(names))
	for i, name := range names {
		k, ok := entropy.ParseKind(name)
		if !ok {
			return entropy.Bag{}, fmt.Errorf("schema[%d]: unknown type %q", i, name)
		}
		fields[i] = entropy.Field{Name: fmt.Sprintf("f%d", i+1), Kind: k}
	}
	return entropy.Bag{Schema: &entropy.Schema{Fields: fields}, Counts: req.Counts}, nil
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// toSourceResponse maps a store.Entry to its JSON representation.
func toSourceResponse(e *store.Entry) SourceResponse {
	res := e.Result
	return SourceResponse{
		SourceID:     res.SourceID,
		SourceType:   res.SourceType,
		State:        res.State,
		Base:         res.Base,
		Entropy:      res.Entropy,
		MaxEntropy:   res.MaxEntropy,
		Normalized:   res.Normalized,
		Categories:   res.Categories,
		Total:        res.Total,
		Partials:     res.Partials,
		UptimePct:    res.UptimePct,
		ErrorMessage: res.ErrorMessage,
		ComputedAt:   res.Timestamp.UTC().Format(time.RFC3339),
		LastSeen:     e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
