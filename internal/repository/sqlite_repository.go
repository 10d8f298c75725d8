package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"
)

// SQLiteCartRepository stores carts in a local SQLite file, one row per
// cart owner.
type SQLiteCartRepository struct {
	db *sql.DB
}

func NewSQLiteCartRepository(dbPath string) (*SQLiteCartRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	return &SQLiteCartRepository{db: db}, nil
}

func (r *SQLiteCartRepository) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *SQLiteCartRepository) GetCart(ctx context.Context, key string) (*domain.CartSnapshot, error) {
	query := `SELECT items, updated_at FROM carts WHERE owner_key = ?`

	var (
		raw       string
		updatedAt time.Time
	)
	err := r.db.QueryRowContext(ctx, query, key).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cart: %w", err)
	}

	var items []domain.CartLineItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("failed to decode cart items: %w", err)
	}
	return &domain.CartSnapshot{Items: items, UpdatedAt: updatedAt}, nil
}

func (r *SQLiteCartRepository) UpsertCart(ctx context.Context, key string, items []domain.CartLineItem) error {
	encoded, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode cart items: %w", err)
	}

	query := `
		INSERT INTO carts (owner_key, items, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_key) DO UPDATE SET items = excluded.items, updated_at = excluded.updated_at
	`
	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, query, key, string(encoded), now, now); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

func (r *SQLiteCartRepository) DeleteCart(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE owner_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

func (r *SQLiteCartRepository) Load(ctx context.Context, key string) ([]domain.CartLineItem, error) {
	snapshot, err := r.GetCart(ctx, key)
	if errors.Is(err, ErrCartNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snapshot.Items, nil
}

func (r *SQLiteCartRepository) Save(ctx context.Context, key string, items []domain.CartLineItem) error {
	if len(items) == 0 {
		return r.DeleteCart(ctx, key)
	}
	return r.UpsertCart(ctx, key, items)
}

func (r *SQLiteCartRepository) Close() error {
	return r.db.Close()
}
