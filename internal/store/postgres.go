package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"pricetracker/internal/models"
	"pricetracker/migrations"
)

const uniqueViolation = "23505"

// PostgresStore implements Store backed by PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects to PostgreSQL and verifies the connection
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Scheduler workers share the pool; writes are single-row updates.
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewMigrator builds a migrate instance over the embedded migrations.
// The caller must Close it.
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// Migrate applies all pending migrations
func Migrate(databaseURL string) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// NewPostgresStore creates a new PostgreSQL-backed Store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:  db,
		now: time.Now,
	}
}

// List returns all tracked items
func (s *PostgresStore) List(ctx context.Context) ([]models.TrackedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_url, notify_target, title, last_known_price,
		       min_threshold, max_threshold, last_checked_at, created_at
		FROM tracked_items
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []models.TrackedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

// Create inserts a new item into the database
func (s *PostgresStore) Create(ctx context.Context, item models.TrackedItem) (*models.TrackedItem, error) {
	item, err := prepare(item, s.now().UTC())
	if err != nil {
		return nil, err
	}
	item.ID = uuid.NewString()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tracked_items (id, source_url, notify_target, title, last_known_price,
		                           min_threshold, max_threshold, last_checked_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, item.ID, item.SourceURL, item.NotifyTarget, item.Title, item.LastKnownPrice,
		nullDecimal(item.MinThreshold), nullDecimal(item.MaxThreshold),
		item.LastCheckedAt, item.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to insert item: %w", err)
	}

	return &item, nil
}

// UpdatePrice records a new observation as a single-row update
func (s *PostgresStore) UpdatePrice(ctx context.Context, id string, price decimal.Decimal, checkedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tracked_items
		SET last_known_price = $1, last_checked_at = $2
		WHERE id = $3
	`, models.NormalizePrice(price), checkedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update price: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll removes every tracked item
func (s *PostgresStore) DeleteAll(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tracked_items`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete items: %w", err)
	}
	return result.RowsAffected()
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Helper function to scan an item row
func scanItem(rows *sql.Rows) (*models.TrackedItem, error) {
	var item models.TrackedItem
	var minThreshold, maxThreshold decimal.NullDecimal

	err := rows.Scan(
		&item.ID,
		&item.SourceURL,
		&item.NotifyTarget,
		&item.Title,
		&item.LastKnownPrice,
		&minThreshold,
		&maxThreshold,
		&item.LastCheckedAt,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}

	// Convert nullable fields
	if minThreshold.Valid {
		v := minThreshold.Decimal
		item.MinThreshold = &v
	}
	if maxThreshold.Valid {
		v := maxThreshold.Decimal
		item.MaxThreshold = &v
	}

	return &item, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
