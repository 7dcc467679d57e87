package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kitmsg/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLite implements domain.ParameterStore on a SQLite file. Values are
// stored JSON-encoded under KeyPrefix+name.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLite(dbPath string, logger *slog.Logger) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLite{db: db, logger: logger}, nil
}

func (s *SQLite) Set(ctx context.Context, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode parameter %s: %w", name, err)
	}
	key := KeyPrefix + name
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO parameters (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(data), now,
	); err != nil {
		return fmt.Errorf("store parameter %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO parameter_log (key, value, changed_at) VALUES (?, ?, ?)`,
		key, string(data), now,
	); err != nil {
		return fmt.Errorf("log parameter %s: %w", name, err)
	}
	return tx.Commit()
}

func (s *SQLite) Get(ctx context.Context, name string) (any, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM parameters WHERE key = ?`, KeyPrefix+name,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := decodeValue(raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode parameter %s: %w", name, err)
	}
	return v, true, nil
}

func (s *SQLite) List(ctx context.Context) ([]domain.Parameter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, updated_at FROM parameters ORDER BY key`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanParameters(rows)
}

// History returns up to limit recorded values for name, newest first.
func (s *SQLite) History(ctx context.Context, name string, limit int) ([]domain.Parameter, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, changed_at FROM parameter_log
		 WHERE key = ? ORDER BY changed_at DESC, id DESC LIMIT ?`,
		KeyPrefix+name, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanParameters(rows)
}

func scanParameters(rows *sql.Rows) ([]domain.Parameter, error) {
	var params []domain.Parameter
	for rows.Next() {
		var key, raw string
		var p domain.Parameter
		if err := rows.Scan(&key, &raw, &p.UpdatedAt); err != nil {
			return nil, err
		}
		v, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("decode parameter %s: %w", key, err)
		}
		p.Name = strings.TrimPrefix(key, KeyPrefix)
		p.Value = v
		params = append(params, p)
	}
	return params, rows.Err()
}

func decodeValue(raw string) (any, error) {
	var v any
	if err := domain.DecodeJSON([]byte(raw), &v); err != nil {
		return nil, err
	}
	return domain.Normalize(v), nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

var _ domain.ParameterStore = (*SQLite)(nil)
