// Package collector turns configured sources into count bags.
//
// A Collector returns a Collection holding one partial entropy.Bag per
// endpoint, query or file. The grouping that produces the counts happens
// upstream: a Prometheus exporter has already counted per label set, a SQL
// query groups with GROUP BY, a count file holds one count per line.
//
// Implemented sources: Prometheus text exposition (prometheus.go, parsed
// with expfmt), Postgres via lib/pq (postgres.go, sqldb.go) and
// tab-separated count files (file.go). New(config.Source) returns the
// right Collector.
//
// Each collector declares the record schema it observed (column types,
// value integrality, field count) and leaves validation to the estimator,
// so a float column or a multi-field record surfaces as the estimator's
// schema error rather than a collection failure.
package collector
