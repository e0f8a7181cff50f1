// Package store persists job records and answers seen checks for the detail
// phase.
package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ksaito/jobharvest/internal/harvest"
	"github.com/ksaito/jobharvest/internal/metrics"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the Postgres connection pool.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Postgres writes job records into one table keyed by (source, dedup_key).
type Postgres struct {
	pool  querier
	table string
}

var _ harvest.RecordStore = (*Postgres)(nil)

// NewPostgres creates a Postgres-backed store using the provided config.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "job_records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool, table: table}, nil
}

// NewPostgresWithPool constructs a store from an existing pool (primarily
// for testing).
func NewPostgresWithPool(pool querier, table string) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "job_records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Postgres{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Postgres) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Exists reports whether a record with this dedup key was already stored for
// the source.
func (s *Postgres) Exists(ctx context.Context, source, dedupKey string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, fmt.Errorf("store is not configured")
	}
	if dedupKey == "" {
		return false, nil
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE source = $1 AND dedup_key = $2)`, s.table)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, source, dedupKey).Scan(&exists); err != nil {
		return false, fmt.Errorf("seen check: %w", err)
	}
	return exists, nil
}

// Save upserts one record. Refetching a listing refreshes its row instead of
// duplicating it.
func (s *Postgres) Save(ctx context.Context, rec harvest.JobRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("store is not configured")
	}
	key := rec.DedupKey()
	if key == "" {
		return fmt.Errorf("record has no dedup key: %s", rec.PageURL)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	source,
	dedup_key,
	business_key,
	page_url,
	title,
	company,
	company_kana,
	salary,
	location,
	employment_type,
	job_type,
	working_hours,
	holidays,
	requirements,
	postal_code,
	address,
	business_description,
	job_description,
	phone,
	phone_normalized,
	employee_count,
	keyword,
	area,
	posted_date,
	fetched_at,
	excluded,
	exclusion_reason,
	exclusion_detail
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28
)
ON CONFLICT (source, dedup_key) DO UPDATE SET
	title = EXCLUDED.title,
	company = EXCLUDED.company,
	salary = EXCLUDED.salary,
	location = EXCLUDED.location,
	phone = EXCLUDED.phone,
	phone_normalized = EXCLUDED.phone_normalized,
	employee_count = EXCLUDED.employee_count,
	posted_date = EXCLUDED.posted_date,
	fetched_at = EXCLUDED.fetched_at,
	excluded = EXCLUDED.excluded,
	exclusion_reason = EXCLUDED.exclusion_reason,
	exclusion_detail = EXCLUDED.exclusion_detail`, s.table)

	args := []any{
		rec.Source,
		key,
		rec.BusinessKey,
		rec.PageURL,
		rec.Title,
		rec.Company,
		rec.CompanyKana,
		rec.Salary,
		rec.Location,
		rec.EmploymentType,
		rec.JobType,
		rec.WorkingHours,
		rec.Holidays,
		rec.Requirements,
		rec.PostalCode,
		rec.Address,
		rec.BusinessDescription,
		rec.JobDescription,
		rec.Phone,
		rec.NormalizedPhone,
		rec.EmployeeCount,
		rec.Keyword,
		rec.Area,
		rec.PostedDate,
		rec.FetchedAt,
		rec.Excluded,
		rec.ExclusionReason,
		rec.ExclusionDetail,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		metrics.RecordsSaved.WithLabelValues("error").Inc()
		return fmt.Errorf("save record: %w", err)
	}
	metrics.RecordsSaved.WithLabelValues("ok").Inc()
	return nil
}
