// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const mappingColumns = `job_id, task_type, task_id, relative_path, save_path, method,
	file_count, has_parse_file, status, updated_at`

// MappingStoreConfig controls the Postgres connection pool used for bookkeeping rows.
type MappingStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// MappingStore writes job id to save path rows into Postgres.
type MappingStore struct {
	pool  pool
	table string
}

// NewMappingStore creates a Postgres-backed MappingStore using the provided config.
func NewMappingStore(ctx context.Context, cfg MappingStoreConfig) (*MappingStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("bookkeeping.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &MappingStore{pool: p, table: table}, nil
}

// NewMappingStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewMappingStoreWithPool(p pool, table string) (*MappingStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &MappingStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "task_mappings"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *MappingStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Ping verifies the pool can reach the database.
func (s *MappingStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// RecordMapping upserts the row keyed by job id.
func (s *MappingStore) RecordMapping(ctx context.Context, m retrieval.TaskMapping) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("mapping store is not configured")
	}
	if m.JobID == "" {
		return fmt.Errorf("job id is required")
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (job_id) DO UPDATE SET
	task_type = EXCLUDED.task_type,
	task_id = EXCLUDED.task_id,
	relative_path = EXCLUDED.relative_path,
	save_path = EXCLUDED.save_path,
	method = EXCLUDED.method,
	file_count = EXCLUDED.file_count,
	has_parse_file = EXCLUDED.has_parse_file,
	status = EXCLUDED.status,
	updated_at = EXCLUDED.updated_at`, s.table, mappingColumns)

	args := []any{
		m.JobID,
		m.TaskType,
		m.TaskID,
		m.RelativePath,
		m.SavePath,
		string(m.Method),
		m.FileCount,
		m.HasParseFile,
		m.Status,
		m.UpdatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert mapping: %w", err)
	}
	return nil
}

// GetMapping loads the row for jobID.
func (s *MappingStore) GetMapping(ctx context.Context, jobID string) (retrieval.TaskMapping, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE job_id = $1`, mappingColumns, s.table)
	m, err := scanMapping(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return retrieval.TaskMapping{}, fmt.Errorf("%w: %s", retrieval.ErrMappingNotFound, jobID)
		}
		return retrieval.TaskMapping{}, fmt.Errorf("select mapping: %w", err)
	}
	return m, nil
}

// ListMappings returns every row ordered by job id.
func (s *MappingStore) ListMappings(ctx context.Context) ([]retrieval.TaskMapping, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY job_id`, mappingColumns, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var out []retrieval.TaskMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mappings: %w", err)
	}
	return out, nil
}

func scanMapping(row pgx.Row) (retrieval.TaskMapping, error) {
	var (
		m      retrieval.TaskMapping
		method string
	)
	err := row.Scan(
		&m.JobID,
		&m.TaskType,
		&m.TaskID,
		&m.RelativePath,
		&m.SavePath,
		&method,
		&m.FileCount,
		&m.HasParseFile,
		&m.Status,
		&m.UpdatedAt,
	)
	m.Method = retrieval.Method(method)
	return m, err
}
