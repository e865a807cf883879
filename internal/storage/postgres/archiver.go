// Package postgres records a catalog row for every saved document.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// Name labels this archiver in logs and metrics.
const Name = "postgres"

// DefaultTable is created by the embedded migrations.
const DefaultTable = "harvests"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for catalog rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Archiver inserts one catalog row per saved document.
type Archiver struct {
	pool   execCloser
	table  string
	ids    harvest.IDGenerator
	logger *zap.Logger
}

// New creates a Postgres-backed Archiver using the provided config.
func New(ctx context.Context, cfg Config, ids harvest.IDGenerator, logger *zap.Logger) (*Archiver, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool, table, ids, logger)
}

// NewWithPool constructs an Archiver from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table string, ids harvest.IDGenerator, logger *zap.Logger) (*Archiver, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{pool: pool, table: table, ids: ids, logger: logger.Named(Name)}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (a *Archiver) Close() {
	if a == nil || a.pool == nil {
		return
	}
	a.pool.Close()
}

// Archive inserts the catalog row for saved.
func (a *Archiver) Archive(ctx context.Context, saved harvest.SavedDocument) error {
	if a == nil || a.pool == nil {
		return fmt.Errorf("postgres archiver is not configured")
	}
	if saved.Document == nil {
		return fmt.Errorf("document is required")
	}
	id, err := a.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate catalog id: %w", err)
	}
	meta := saved.Document.Metadata
	content := saved.Document.Content
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	run_id,
	url,
	title,
	mode,
	fetched_at,
	content_hash,
	record_path,
	table_path,
	heading_count,
	paragraph_count,
	link_count,
	table_count
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`, a.table)

	args := []any{
		id,
		saved.RunID,
		meta.URL,
		meta.Title,
		string(meta.Mode),
		meta.FetchedAt,
		meta.ContentHash,
		saved.Paths.Record,
		saved.Paths.Table,
		len(content.Headings),
		len(content.Paragraphs),
		len(content.Links),
		len(content.Tables),
	}
	if _, err := a.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert catalog row: %w", err)
	}
	a.logger.Debug("catalog row inserted", zap.String("id", id), zap.String("url", meta.URL))
	return nil
}
