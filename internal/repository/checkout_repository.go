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
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type OutboxEvent struct {
	ID          int
	AggregateId string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

type OutcomeRecord struct {
	ID              string
	AttemptID       string
	SessionID       string
	UserID          string
	PaymentMethod   string
	ProviderOrderID *string
	Status          domain.OutcomeStatus
	TotalAmount     string
	CouponCode      *string
	Reason          *string
	CartSnapshot    json.RawMessage
	OccurredAt      time.Time
}

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// RecordOutcome stores the outcome and its outbox event in one transaction.
// Recording the same attempt twice returns ErrDuplicateOutcome.
func (r *Repository) RecordOutcome(ctx context.Context, outcome *domain.Outcome) error {
	snapshot, err := json.Marshal(outcome.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal cart snapshot: %w", err)
	}
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome payload: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertOutcome := `
		INSERT INTO checkout_outcomes (id, attempt_id, session_id, user_id, payment_method, provider_order_id,
			status, subtotal, shipping, discount, total_amount, coupon_code, reason, cart_snapshot, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = tx.ExecContext(ctx, insertOutcome,
		uuid.New(),
		outcome.AttemptID,
		outcome.SessionID,
		outcome.UserID,
		string(outcome.Method),
		nullable(outcome.ProviderOrderID),
		string(outcome.Status),
		outcome.Totals.Subtotal.StringFixed(2),
		outcome.Totals.Shipping.StringFixed(2),
		outcome.Totals.Discount.StringFixed(2),
		outcome.Totals.Total.StringFixed(2),
		nullable(outcome.CouponCode),
		nullable(outcome.Reason),
		snapshot,
		outcome.OccurredAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateOutcome
		}
		return fmt.Errorf("failed to insert checkout outcome: %w", err)
	}

	insertEvent := `INSERT INTO outbox_events (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`
	if _, err = tx.ExecContext(ctx, insertEvent, outcome.SessionID, outcome.Status.EventType(), payload); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit outcome: %w", err)
	}
	return nil
}

func (r *Repository) GetOutcomesBySession(ctx context.Context, sessionID string) ([]*OutcomeRecord, error) {
	query := `
		SELECT id, attempt_id, session_id, user_id, payment_method, provider_order_id, status,
			total_amount, coupon_code, reason, cart_snapshot, occurred_at
		FROM checkout_outcomes
		WHERE session_id = $1
		ORDER BY occurred_at
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkout outcomes: %w", err)
	}
	defer rows.Close()

	var records []*OutcomeRecord
	for rows.Next() {
		rec := &OutcomeRecord{}
		var status string
		if err := rows.Scan(
			&rec.ID,
			&rec.AttemptID,
			&rec.SessionID,
			&rec.UserID,
			&rec.PaymentMethod,
			&rec.ProviderOrderID,
			&status,
			&rec.TotalAmount,
			&rec.CouponCode,
			&rec.Reason,
			&rec.CartSnapshot,
			&rec.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan checkout outcome: %w", err)
		}
		rec.Status = domain.OutcomeStatus(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrOutcomeNotFound
	}
	return records, nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox_events
		WHERE processed_at IS NULL
		ORDER BY id
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		ev := &OutboxEvent{}
		if err := rows.Scan(&ev.ID, &ev.AggregateId, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark event %d as processed: %w", id, err)
	}
	return nil
}

func (r *Repository) PurgeProcessedEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM outbox_events WHERE processed_at IS NOT NULL AND processed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge outbox events: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
