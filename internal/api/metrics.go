package api

import (
	"bytes"
	"log/slog"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/countentropy/countentropy/internal/compute"
	"github.com/countentropy/countentropy/internal/store"
)

// gauge describes one exported gauge family.
type gauge struct {
	name   string
	help   string
	value  func(*compute.Result) float64
	okOnly bool // skip sources whose state is not ok
}

var gauges = []gauge{
	{"count_entropy", "Shannon entropy of the source's count distribution.", func(r *compute.Result) float64 { return r.Entropy }, true},
	{"count_entropy_max", "Entropy of a uniform distribution over the observed categories.", func(r *compute.Result) float64 { return r.MaxEntropy }, true},
	{"count_entropy_normalized", "Entropy divided by its maximum.", func(r *compute.Result) float64 { return r.Normalized }, true},
	{"count_entropy_categories", "Categories with positive mass.", func(r *compute.Result) float64 { return float64(r.Categories) }, true},
	{"count_entropy_total", "Sum of all counts after clamping negatives to zero.", func(r *compute.Result) float64 { return float64(r.Total) }, true},
	{"count_entropy_uptime_pct", "Percentage of recent collections that succeeded.", func(r *compute.Result) float64 { return r.UptimePct }, false},
}

// metrics serves GET /metrics in the Prometheus text exposition format.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var buf bytes.Buffer
	for _, mf := range families(h.store.List()) {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			slog.Error("api: encode metrics", "family", mf.GetName(), "err", err)
			jsonErr(w, http.StatusInternalServerError, "encode metrics")
			return
		}
	}
	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// families converts live results into gauge families. Entries are already
// sorted by source ID, so the output is stable.
func families(entries []*store.Entry) []*dto.MetricFamily {
	out := make([]*dto.MetricFamily, 0, len(gauges)+1)
	for _, g := range gauges {
		mf := &dto.MetricFamily{
			Name: proto.String(g.name),
			Help: proto.String(g.help),
			Type: dto.MetricType_GAUGE.Enum(),
		}
		for _, e := range entries {
			if g.okOnly && e.Result.State != compute.StateOK {
				continue
			}
			mf.Metric = append(mf.Metric, &dto.Metric{
				Label: []*dto.LabelPair{
					{Name: proto.String("base"), Value: proto.String(e.Result.Base)},
					{Name: proto.String("source"), Value: proto.String(e.Result.SourceID)},
				},
				Gauge: &dto.Gauge{Value: proto.Float64(g.value(e.Result))},
			})
		}
		if len(mf.Metric) > 0 {
			out = append(out, mf)
		}
	}

	state := &dto.MetricFamily{
		Name: proto.String("count_entropy_source_state"),
		Help: proto.String("1 for the current state of each source."),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	for _, e := range entries {
		state.Metric = append(state.Metric, &dto.Metric{
			Label: []*dto.LabelPair{
				{Name: proto.String("source"), Value: proto.String(e.Result.SourceID)},
				{Name: proto.String("state"), Value: proto.String(e.Result.State)},
			},
			Gauge: &dto.Gauge{Value: proto.Float64(1)},
		})
	}
	if len(state.Metric) > 0 {
		out = append(out, state)
	}
	return out
}
