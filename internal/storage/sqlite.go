package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"kopilka/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements RecordStore and KeyValueStore on a local SQLite
// file. Schema is managed by embedded migrations (migrate.go).
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const recordColumns = "id, title, category, amount_cents, comment, purchased_at, month_key"

func scanRecord(row interface{ Scan(...any) error }) (core.Record, error) {
	var r core.Record
	err := row.Scan(&r.ID, &r.Title, &r.Category, &r.Amount.Cents, &r.Comment, &r.PurchasedAt, &r.MonthKey)
	return r, err
}

// GetAll implements RecordStore.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]core.Record, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT "+recordColumns+" FROM purchases ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()

	var out []core.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit read transaction: %w", err)
	}
	return out, nil
}

// Get implements RecordStore.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (core.Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM purchases WHERE id = ?", id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, ErrNotFound
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("get purchase %d: %w", id, err)
	}
	return r, nil
}

// Add implements RecordStore. The month key is recomputed before the
// insert; the caller's value is never trusted.
func (s *SQLiteStore) Add(ctx context.Context, r core.Record) (int64, error) {
	r.Normalize()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO purchases (title, category, amount_cents, comment, purchased_at, month_key) VALUES (?, ?, ?, ?, ?, ?)",
		r.Title, r.Category, r.Amount.Cents, r.Comment, r.PurchasedAt, r.MonthKey)
	if err != nil {
		return 0, fmt.Errorf("insert purchase: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read assigned id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert: %w", err)
	}

	slog.InfoContext(ctx, "Purchase saved",
		"id", id,
		"title", r.Title,
		"amount_cents", r.Amount.Cents,
		"month_key", r.MonthKey)
	return id, nil
}

// Put implements RecordStore. Replaces the whole row field-for-field.
func (s *SQLiteStore) Put(ctx context.Context, r core.Record) error {
	r.Normalize()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE purchases SET title = ?, category = ?, amount_cents = ?, comment = ?, purchased_at = ?, month_key = ? WHERE id = ?",
		r.Title, r.Category, r.Amount.Cents, r.Comment, r.PurchasedAt, r.MonthKey, r.ID)
	if err != nil {
		return fmt.Errorf("update purchase %d: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}

	slog.InfoContext(ctx, "Purchase updated", "id", r.ID, "month_key", r.MonthKey)
	return nil
}

// Delete implements RecordStore. Unknown identities are a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM purchases WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete purchase %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	slog.InfoContext(ctx, "Purchase deleted", "id", id)
	return nil
}

// GetValue implements KeyValueStore.
func (s *SQLiteStore) GetValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

// SetValue implements KeyValueStore.
func (s *SQLiteStore) SetValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}
