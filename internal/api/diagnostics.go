package api

import (
	"fmt"

	"github.com/countentropy/countentropy/internal/compute"
)

// Evenness thresholds for the distribution hints.
const (
	lowEvenness  = 0.3
	highEvenness = 0.95
)

// DiagnosticHint is one human-readable finding about a source's result.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical".
	Level  string   `json:"level"`
	Title  string   `json:"title"`
	Detail string   `json:"detail"`
	Value  *float64 `json:"value,omitempty"`
}

// computeDiagnostics derives hints from a result, most severe first.
func computeDiagnostics(res *compute.Result) []DiagnosticHint {
	switch res.State {
	case compute.StateUnknown:
		return []DiagnosticHint{{
			Key:   "collect_failed",
			Level: "critical",
			Title: "Can't reach source",
			Detail: fmt.Sprintf("The last collection failed: %q. No entropy is available "+
				"until the source answers again.", res.ErrorMessage),
		}}
	case compute.StateInvalid:
		return []DiagnosticHint{{
			Key:   "schema_rejected",
			Level: "critical",
			Title: "Counts rejected",
			Detail: fmt.Sprintf("The source delivered records the estimator does not accept: %q. "+
				"Counts must be a single integer field (int or long).", res.ErrorMessage),
		}}
	}

	var hints []DiagnosticHint
	if res.UptimePct < 100 {
		v := res.UptimePct
		hints = append(hints, DiagnosticHint{
			Key:    "uptime",
			Level:  "warning",
			Title:  fmt.Sprintf("%.0f%% uptime", v),
			Detail: "Some recent collections failed. The current value is fresh, but the source is flaky.",
			Value:  &v,
		})
	}

	switch {
	case res.Total == 0:
		hints = append(hints, DiagnosticHint{
			Key:    "empty",
			Level:  "info",
			Title:  "No counts",
			Detail: "Every count was zero or negative, so the entropy is 0.",
		})
	case res.Categories < 2:
		hints = append(hints, DiagnosticHint{
			Key:    "single_category",
			Level:  "info",
			Title:  "One category",
			Detail: "All mass sits in a single category; the distribution carries no uncertainty.",
		})
	case res.Normalized < lowEvenness:
		v := res.Normalized
		hints = append(hints, DiagnosticHint{
			Key:   "skewed",
			Level: "warning",
			Title: "Heavily skewed",
			Detail: fmt.Sprintf("Entropy is %.0f%% of the maximum for %d categories; "+
				"a few categories dominate the total.", v*100, res.Categories),
			Value: &v,
		})
	case res.Normalized > highEvenness:
		v := res.Normalized
		hints = append(hints, DiagnosticHint{
			Key:    "near_uniform",
			Level:  "info",
			Title:  "Near uniform",
			Detail: fmt.Sprintf("Counts are spread almost evenly over %d categories.", res.Categories),
			Value:  &v,
		})
	}

	if len(hints) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:    "ok",
			Level:  "ok",
			Title:  "Healthy",
			Detail: "The source is collected regularly and its distribution looks unremarkable.",
		})
	}
	return hints
}
