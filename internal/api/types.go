package api

// HealthResponse is the payload for GET /api/v1/health.
// Entropy statistics cover only results in state "ok".
type HealthResponse struct {
	State          string  `json:"state"` // ok | degraded | unknown
	SourceCount    int     `json:"source_count"`
	OKCount        int     `json:"ok_count"`
	InvalidCount   int     `json:"invalid_count"`
	UnknownCount   int     `json:"unknown_count"`
	AlertCount     int     `json:"alert_count"`
	MeanEntropy    float64 `json:"mean_entropy"`
	MedianEntropy  float64 `json:"median_entropy"`
	MinEntropy     float64 `json:"min_entropy"`
	MaxEntropy     float64 `json:"max_entropy"`
	MeanNormalized float64 `json:"mean_normalized"`
}

// SourceResponse is one source in GET /api/v1/sources or
// GET /api/v1/sources/{id}.
type SourceResponse struct {
	SourceID     string  `json:"source_id"`
	SourceType   string  `json:"source_type"`
	State        string  `json:"state"`
	Base         string  `json:"base"`
	Entropy      float64 `json:"entropy"`
	MaxEntropy   float64 `json:"max_entropy"`
	Normalized   float64 `json:"normalized"`
	Categories   int     `json:"categories"`
	Total        int64   `json:"total"`
	Partials     int     `json:"partials"`
	UptimePct    float64 `json:"uptime_pct"`
	ErrorMessage string  `json:"error_message,omitempty"`
	ComputedAt   string  `json:"computed_at"` // RFC3339
	LastSeen     string  `json:"last_seen"`   // RFC3339

	// Diagnostics is only filled for GET /api/v1/sources/{id}.
	Diagnostics []DiagnosticHint `json:"diagnostics,omitempty"`
}

// ComputeRequest is the body of POST /api/v1/compute.
type ComputeRequest struct {
	// Base is "", "log", "log2" or "log10".
	Base string `json:"base"`
	// Schema declares the record field types; defaults to ["long"].
	Schema []string `json:"schema"`
	Counts []int64  `json:"counts"`
}

// ComputeResponse is the payload of POST /api/v1/compute.
type ComputeResponse struct {
	Base       string  `json:"base"`
	Entropy    float64 `json:"entropy"`
	MaxEntropy float64 `json:"max_entropy"`
	Normalized float64 `json:"normalized"`
	Categories int     `json:"categories"`
	Total      int64   `json:"total"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
