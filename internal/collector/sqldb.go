package collector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Column describes one result column of a count query.
type Column struct {
	Name string
	// DatabaseType is the driver type name, e.g. INT8, FLOAT8, TEXT.
	DatabaseType string
}

// RowScanner is the subset of *sql.Rows the postgres collector reads.
type RowScanner interface {
	Columns() ([]Column, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DB runs count queries.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (RowScanner, error)
	Close() error
}

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Columns() ([]Column, error) {
	types, err := r.rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	cols := make([]Column, len(types))
	for i, ct := range types {
		cols[i] = Column{Name: ct.Name(), DatabaseType: ct.DatabaseTypeName()}
	}
	return cols, nil
}

func (r *sqlRows) Next() bool {
	return r.rows.Next()
}

func (r *sqlRows) Scan(dest ...any) error {
	return r.rows.Scan(dest...)
}

func (r *sqlRows) Err() error {
	return r.rows.Err()
}

func (r *sqlRows) Close() error {
	return r.rows.Close()
}

type sqlDB struct {
	db *sql.DB
}

// NewSQLDB wraps an open *sql.DB.
func NewSQLDB(db *sql.DB) DB {
	return &sqlDB{db: db}
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...any) (RowScanner, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{rows: rows}, nil
}

func (s *sqlDB) Close() error {
	return s.db.Close()
}

// openPostgres opens a lib/pq pool. No connection is made until the first
// query, so an unreachable database surfaces as a collection failure.
func openPostgres(dsn string) (DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)
	return NewSQLDB(db), nil
}
