// Package resolver maps external job ids to internal task ids by querying the
// sharded job log tables in Postgres.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls how the resolver reaches the job log shards.
type Config struct {
	DSN            string
	ShardTables    []string
	NumericPrefix  string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Conn is the slice of *pgx.Conn the resolver needs.
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close(ctx context.Context) error
}

// DialFunc opens a fresh connection.
type DialFunc func(ctx context.Context) (Conn, error)

// Resolver implements the external id to task id lookup.
type Resolver struct {
	dial        DialFunc
	tables      []string
	prefix      string
	readTimeout time.Duration
	logger      *zap.Logger
}

type shardRow struct {
	taskID   string
	metadata *string
}

// New builds a Resolver that opens one pgx connection per call.
func New(cfg Config, logger *zap.Logger) (*Resolver, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return NewWithDialer(func(context.Context) (Conn, error) {
			return nil, errors.New("resolver.dsn is not configured")
		}, cfg, logger)
	}
	pgCfg, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.ConnectTimeout > 0 {
		pgCfg.ConnectTimeout = cfg.ConnectTimeout
	}
	dial := func(ctx context.Context) (Conn, error) {
		conn, err := pgx.ConnectConfig(ctx, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return conn, nil
	}
	return NewWithDialer(dial, cfg, logger)
}

// NewWithDialer constructs a Resolver from a custom dialer (primarily for testing).
func NewWithDialer(dial DialFunc, cfg Config, logger *zap.Logger) (*Resolver, error) {
	if dial == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if len(cfg.ShardTables) == 0 {
		return nil, fmt.Errorf("at least one shard table is required")
	}
	for _, table := range cfg.ShardTables {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.NumericPrefix
	if prefix == "" {
		prefix = "SL"
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	return &Resolver{
		dial:        dial,
		tables:      append([]string(nil), cfg.ShardTables...),
		prefix:      prefix,
		readTimeout: readTimeout,
		logger:      logger.Named("resolver"),
	}, nil
}

// Normalize prefixes purely numeric ids; any other input is returned as is.
func Normalize(jobID, prefix string) string {
	if jobID == "" {
		return jobID
	}
	for _, r := range jobID {
		if r < '0' || r > '9' {
			return jobID
		}
	}
	return prefix + jobID
}

// Resolve returns the task id for jobID.
func (r *Resolver) Resolve(ctx context.Context, jobID string) (retrieval.ResolutionRecord, error) {
	return r.resolve(ctx, jobID, false)
}

// ResolveWithMetadata returns the task id plus the raw analysis response.
func (r *Resolver) ResolveWithMetadata(ctx context.Context, jobID string) (retrieval.ResolutionRecord, error) {
	return r.resolve(ctx, jobID, true)
}

func (r *Resolver) resolve(ctx context.Context, jobID string, withMetadata bool) (retrieval.ResolutionRecord, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return retrieval.ResolutionRecord{}, fmt.Errorf("job id is required")
	}
	if retrieval.IsTaskID(jobID) {
		r.logger.Debug("job id is already a task id", zap.String("task_id", jobID))
		return retrieval.ResolutionRecord{TaskID: jobID}, nil
	}
	ref := Normalize(jobID, r.prefix)
	rows, err := r.lookup(ctx, ref, withMetadata)
	if err != nil {
		return retrieval.ResolutionRecord{}, err
	}
	rec, err := decide(ref, rows)
	if err != nil {
		r.logger.Warn("resolution failed", zap.String("req_ssn", ref), zap.Int("rows", len(rows)), zap.Error(err))
		return retrieval.ResolutionRecord{}, err
	}
	r.logger.Info("resolved job id",
		zap.String("job_id", jobID),
		zap.String("req_ssn", ref),
		zap.String("task_id", rec.TaskID),
		zap.Bool("has_metadata", rec.HasMetadata()),
	)
	return rec, nil
}

func (r *Resolver) lookup(ctx context.Context, ref string, withMetadata bool) ([]shardRow, error) {
	conn, err := r.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("open job log connection: %w", err)
	}
	defer func() {
		if err := conn.Close(ctx); err != nil {
			r.logger.Warn("close job log connection failed", zap.Error(err))
		}
	}()

	var (
		rows []shardRow
		errs []error
	)
	for _, table := range r.tables {
		found, err := r.queryShard(ctx, conn, table, ref, withMetadata)
		if err != nil {
			r.logger.Warn("shard query failed", zap.String("table", table), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		rows = append(rows, found...)
	}
	if len(errs) == len(r.tables) {
		return nil, fmt.Errorf("query job log shards: %w", errors.Join(errs...))
	}
	return rows, nil
}

func (r *Resolver) queryShard(
	ctx context.Context,
	conn Conn,
	table, ref string,
	withMetadata bool,
) ([]shardRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.readTimeout)
	defer cancel()

	columns := "ext_ssn"
	if withMetadata {
		columns = "ext_ssn, analysis_response"
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE req_ssn = $1", columns, table)
	rows, err := conn.Query(ctx, query, ref)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []shardRow
	for rows.Next() {
		var (
			taskID   *string
			metadata *string
		)
		dest := []any{&taskID}
		if withMetadata {
			dest = append(dest, &metadata)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row := shardRow{metadata: metadata}
		if taskID != nil {
			row.taskID = strings.TrimSpace(*taskID)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

// decide applies the matching policy: no rows is not found, one row is taken
// verbatim, many rows must collapse to a single distinct task id. Metadata
// comes from the first non-empty occurrence.
func decide(ref string, rows []shardRow) (retrieval.ResolutionRecord, error) {
	switch len(rows) {
	case 0:
		return retrieval.ResolutionRecord{}, fmt.Errorf("%w: no job log rows for %s", retrieval.ErrNotFound, ref)
	case 1:
		if rows[0].taskID == "" {
			return retrieval.ResolutionRecord{}, fmt.Errorf("%w: empty ext_ssn for %s", retrieval.ErrNotFound, ref)
		}
		return retrieval.ResolutionRecord{TaskID: rows[0].taskID, RawMetadata: rows[0].metadata}, nil
	}

	var (
		ids      []string
		seen     = make(map[string]struct{})
		metadata *string
	)
	for _, row := range rows {
		if row.taskID == "" {
			continue
		}
		if _, ok := seen[row.taskID]; !ok {
			seen[row.taskID] = struct{}{}
			ids = append(ids, row.taskID)
		}
		if metadata == nil && row.metadata != nil && *row.metadata != "" {
			metadata = row.metadata
		}
	}
	switch len(ids) {
	case 0:
		return retrieval.ResolutionRecord{}, fmt.Errorf("%w: empty ext_ssn for %s", retrieval.ErrNotFound, ref)
	case 1:
		return retrieval.ResolutionRecord{TaskID: ids[0], RawMetadata: metadata}, nil
	default:
		return retrieval.ResolutionRecord{}, fmt.Errorf(
			"%w: %s maps to %s", retrieval.ErrAmbiguous, ref, strings.Join(ids, ", "),
		)
	}
}
