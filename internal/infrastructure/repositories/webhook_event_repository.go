package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ilpcore/engine/internal/domain/entities"
)

// WebhookEventRepository persists webhook events: the append-only record
// the dispatcher drains and the background workers enqueue into, in the
// same transaction as the state change each event reports.
type WebhookEventRepository struct {
	db *sqlx.DB
}

// NewWebhookEventRepository creates a new webhook event repository.
func NewWebhookEventRepository(db *sqlx.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

type webhookEventRow struct {
	ID         uuid.UUID              `db:"id"`
	Type       entities.WebhookEventType `db:"type"`
	Data       []byte                 `db:"data"`
	ProcessAt  *time.Time             `db:"process_at"`
	Attempts   int                    `db:"attempts"`
	Withdrawal []byte                 `db:"withdrawal"`
	StatusCode *int                   `db:"status_code"`
	CreatedAt  time.Time              `db:"created_at"`
}

func (row *webhookEventRow) toEntity() (*entities.WebhookEvent, error) {
	e := &entities.WebhookEvent{
		ID:         row.ID,
		Type:       row.Type,
		ProcessAt:  row.ProcessAt,
		Attempts:   row.Attempts,
		StatusCode: row.StatusCode,
		CreatedAt:  row.CreatedAt,
	}
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &e.Data); err != nil {
			return nil, fmt.Errorf("unmarshal event data: %w", err)
		}
	}
	if len(row.Withdrawal) > 0 {
		var w entities.WebhookWithdrawal
		if err := json.Unmarshal(row.Withdrawal, &w); err != nil {
			return nil, fmt.Errorf("unmarshal event withdrawal: %w", err)
		}
		e.Withdrawal = &w
	}
	return e, nil
}

const webhookEventColumns = `
	id, type, data, process_at, attempts, withdrawal, status_code, created_at
`

// Create inserts a webhook event. Pass a ctx carrying a tx via WithLedgerTx
// to enqueue the event as part of the caller's own transaction. A caller
// that leaves ProcessAt nil gets the event scheduled for immediate
// delivery; set it explicitly to delay the first attempt.
func (r *WebhookEventRepository) Create(ctx context.Context, event *entities.WebhookEvent) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	var withdrawalJSON []byte
	if event.Withdrawal != nil {
		withdrawalJSON, err = json.Marshal(event.Withdrawal)
		if err != nil {
			return fmt.Errorf("marshal event withdrawal: %w", err)
		}
	}

	event.CreatedAt = time.Now()
	if event.ProcessAt == nil {
		now := event.CreatedAt
		event.ProcessAt = &now
	}
	query := `
		INSERT INTO webhook_events (id, type, data, process_at, attempts, withdrawal, status_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	ext := r.exec(ctx)
	if _, err := ext.ExecContext(ctx, query,
		event.ID, event.Type, dataJSON, event.ProcessAt, event.Attempts, withdrawalJSON, event.StatusCode, event.CreatedAt); err != nil {
		return fmt.Errorf("create webhook event: %w", err)
	}
	return nil
}

// exec resolves the executor a query should run against: a transaction
// stashed in ctx by WithLedgerTx, or the repository's pooled connection.
func (r *WebhookEventRepository) exec(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ledgerTxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// GetByID loads a webhook event by id.
func (r *WebhookEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.WebhookEvent, error) {
	var row webhookEventRow
	query := fmt.Sprintf(`SELECT %s FROM webhook_events WHERE id = $1`, webhookEventColumns)
	if err := sqlx.GetContext(ctx, r.db, &row, query, id); err != nil {
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	return row.toEntity()
}

// ClaimDue claims due webhook events (process_at <= before) for delivery,
// holding the row lock for the caller's tx for the duration of dispatch.
func (r *WebhookEventRepository) ClaimDue(ctx context.Context, tx *sqlx.Tx, before time.Time, limit int) ([]*entities.WebhookEvent, error) {
	var rows []webhookEventRow
	query := fmt.Sprintf(`
		SELECT %s FROM webhook_events
		WHERE process_at IS NOT NULL AND process_at <= $1
		ORDER BY process_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, webhookEventColumns)
	if err := sqlx.SelectContext(ctx, tx, &rows, query, before, limit); err != nil {
		return nil, fmt.Errorf("claim webhook events: %w", err)
	}
	events := make([]*entities.WebhookEvent, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toEntity()
		if err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// RecordAttempt advances an event's attempt counter and reschedules it, or
// clears processAt (leaving it stuck for alerting) once exhausted.
func (r *WebhookEventRepository) RecordAttempt(ctx context.Context, id uuid.UUID, attempts int, nextProcessAt *time.Time, statusCode *int) error {
	query := `UPDATE webhook_events SET attempts = $1, process_at = $2, status_code = $3 WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, query, attempts, nextProcessAt, statusCode, id); err != nil {
		return fmt.Errorf("record webhook attempt: %w", err)
	}
	return nil
}

// Delete removes a successfully-delivered event.
func (r *WebhookEventRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete webhook event: %w", err)
	}
	return nil
}

// BeginTx starts a transaction for the webhook worker's claim-dispatch cycle.
func (r *WebhookEventRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}

// List returns the most recent webhook events, newest first, for the
// admin listing endpoint.
func (r *WebhookEventRepository) List(ctx context.Context, limit, offset int) ([]*entities.WebhookEvent, error) {
	var rows []webhookEventRow
	query := fmt.Sprintf(`
		SELECT %s FROM webhook_events
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, webhookEventColumns)
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}
	events := make([]*entities.WebhookEvent, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toEntity()
		if err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
