package collector

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	dto "github.com/prometheus/client_model/go"

	"github.com/countentropy/countentropy/internal/config"
	"github.com/countentropy/countentropy/pkg/entropy"
)

type promCollector struct {
	src    config.Source
	client *http.Client
}

// Collect fetches every endpoint and turns the configured metric family
// into one partial bag per endpoint.
func (c *promCollector) Collect(ctx context.Context) (*Collection, error) {
	col := newCollection(c.src.ID, config.SourcePrometheus)

	for _, url := range c.src.Endpoints {
		mfs, err := fetchFamilies(ctx, c.client, url)
		if err != nil {
			col.Err = fmt.Errorf("prometheus collect %q: %s: %w", c.src.ID, url, err)
			slog.Warn("collector: prometheus fetch failed", "source", c.src.ID, "endpoint", url, "err", err)
			return col, nil
		}
		mf, ok := mfs[c.src.Family]
		if !ok {
			col.Err = fmt.Errorf("prometheus collect %q: %s: family %q not exposed", c.src.ID, url, c.src.Family)
			return col, nil
		}
		col.Bags = append(col.Bags, familyBag(mf))
	}
	return col, nil
}

// familyBag maps a metric family to a count bag.
//
// Counter, gauge and untyped families: every series is one category and its
// value is the count. The declared kind is long when every value is a whole
// number, double otherwise.
//
// Histograms: the de-cumulated buckets of every series are the categories,
// including the overflow above the highest finite bound.
//
// Summaries carry no per-category counts and declare a two-field record
// (sum, count).
func familyBag(mf *dto.MetricFamily) entropy.Bag {
	switch mf.GetType() {
	case dto.MetricType_HISTOGRAM, dto.MetricType_GAUGE_HISTOGRAM:
		return histogramBag(mf)
	case dto.MetricType_SUMMARY:
		return entropy.Bag{Schema: &entropy.Schema{Fields: []entropy.Field{
			{Name: "sample_sum", Kind: entropy.KindFloat64},
			{Name: "sample_count", Kind: entropy.KindInt64},
		}}}
	}

	kind := entropy.KindInt64
	counts := make([]int64, 0, len(mf.GetMetric()))
	for _, m := range mf.GetMetric() {
		v := sampleValue(m)
		if !isWhole(v) {
			kind = entropy.KindFloat64
			continue
		}
		counts = append(counts, int64(v))
	}
	return entropy.Bag{Schema: entropy.CountSchema(kind), Counts: counts}
}

func histogramBag(mf *dto.MetricFamily) entropy.Bag {
	var counts []int64
	for _, m := range mf.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		var prev uint64
		for _, b := range h.GetBucket() {
			cum := b.GetCumulativeCount()
			if math.IsInf(b.GetUpperBound(), +1) {
				break
			}
			counts = append(counts, int64(cum)-int64(prev))
			prev = cum
		}
		counts = append(counts, int64(h.GetSampleCount())-int64(prev))
	}
	return entropy.Bag{Schema: entropy.CountSchema(entropy.KindInt64), Counts: counts}
}

func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}

// isWhole reports whether v converts to int64 without loss. float64(MaxInt64)
// rounds up to 2^63, which is already out of range, hence the strict bound.
func isWhole(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v == math.Trunc(v) &&
		v >= math.MinInt64 && v < math.MaxInt64
}
