package collector

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/countentropy/countentropy/internal/config"
	"github.com/countentropy/countentropy/pkg/entropy"
)

type pgCollector struct {
	src config.Source
	db  DB
}

// Collect runs the configured query. Each row is one category; the query
// does the grouping (GROUP BY value or composite key).
func (c *pgCollector) Collect(ctx context.Context) (*Collection, error) {
	col := newCollection(c.src.ID, config.SourcePostgres)

	bag, err := c.query(ctx)
	if err != nil {
		col.Err = fmt.Errorf("postgres collect %q: %w", c.src.ID, err)
		slog.Warn("collector: postgres query failed", "source", c.src.ID, "err", err)
		return col, nil
	}
	col.Bags = []entropy.Bag{bag}
	return col, nil
}

// Close releases the connection pool.
func (c *pgCollector) Close() error {
	return c.db.Close()
}

func (c *pgCollector) query(ctx context.Context) (entropy.Bag, error) {
	rows, err := c.db.QueryContext(ctx, c.src.Query)
	if err != nil {
		return entropy.Bag{}, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return entropy.Bag{}, fmt.Errorf("columns: %w", err)
	}

	// Without count_column the whole row is the record.
	countIdx := -1
	fields := make([]entropy.Field, len(cols))
	for i, cl := range cols {
		fields[i] = entropy.Field{Name: cl.Name, Kind: kindOfColumn(cl.DatabaseType)}
		if c.src.CountColumn != "" && strings.EqualFold(cl.Name, c.src.CountColumn) {
			countIdx = i
		}
	}
	if c.src.CountColumn != "" {
		if countIdx < 0 {
			return entropy.Bag{}, fmt.Errorf("count column %q not in result", c.src.CountColumn)
		}
		fields = []entropy.Field{fields[countIdx]}
	} else if len(cols) == 1 {
		countIdx = 0
	}

	bag := entropy.Bag{Schema: &entropy.Schema{Fields: fields}}
	if countIdx < 0 || !fields[0].Kind.Integral() {
		// Rejected by the estimator on schema alone; no need to read rows.
		return bag, nil
	}

	dest := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return entropy.Bag{}, fmt.Errorf("scan: %w", err)
		}
		n, err := toCount(dest[countIdx], fields[0].Kind)
		if err != nil {
			return entropy.Bag{}, fmt.Errorf("row %d: %w", len(bag.Counts)+1, err)
		}
		bag.Counts = append(bag.Counts, n)
	}
	if err := rows.Err(); err != nil {
		return entropy.Bag{}, fmt.Errorf("rows: %w", err)
	}
	return bag, nil
}

// kindOfColumn maps a Postgres type name to a field kind.
func kindOfColumn(dbType string) entropy.Kind {
	switch strings.ToUpper(dbType) {
	case "INT2", "INT4":
		return entropy.KindInt32
	case "INT8":
		return entropy.KindInt64
	case "FLOAT4":
		return entropy.KindFloat32
	case "FLOAT8", "NUMERIC":
		return entropy.KindFloat64
	case "TEXT", "VARCHAR", "BPCHAR", "NAME", "UUID":
		return entropy.KindString
	case "BYTEA":
		return entropy.KindBytes
	default:
		return entropy.KindUnknown
	}
}

// toCount converts a scanned integer column value. NULL counts as zero.
// Values outside the range of the declared kind are rejected.
func toCount(v any, kind entropy.Kind) (int64, error) {
	bitSize := 64
	if kind == entropy.KindInt32 {
		bitSize = 32
	}

	var n int64
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int64:
		n = x
	case int32:
		n = int64(x)
	case []byte:
		return strconv.ParseInt(string(x), 10, bitSize)
	case string:
		return strconv.ParseInt(x, 10, bitSize)
	default:
		return 0, fmt.Errorf("unsupported count value %T", v)
	}
	if bitSize == 32 && (n < math.MinInt32 || n > math.MaxInt32) {
		return 0, fmt.Errorf("count %d out of range for %s", n, kind)
	}
	return n, nil
}
