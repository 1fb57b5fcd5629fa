// Package postgres provides PostgreSQL implementation of events repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/events"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventColumns = `id, type, actor_id, entity_type, entity_id, target_user_id, payload, idempotency_key, created_at`

// Repository implements events.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateIfAbsent inserts the event unless a row with the same ID exists.
// Concurrent callers race on the primary key; exactly one of them sees true.
func (r *Repository) CreateIfAbsent(ctx context.Context, event *domain.Event) (bool, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return false, fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at
	`
	err = r.db.QueryRow(ctx, query,
		event.ID,
		event.Type,
		event.ActorID,
		event.EntityType,
		event.EntityID,
		event.TargetUserID,
		payload,
		event.IdempotencyKey,
		event.CreatedAt,
	).Scan(&event.CreatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert event: %w", err)
	}
	return true, nil
}

// GetEvent retrieves an event by ID.
func (r *Repository) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	event, err := scanEvent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// ListEvents retrieves events with optional filters, newest first.
func (r *Repository) ListEvents(ctx context.Context, filters events.EventFilters) ([]*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if filters.Type != nil {
		query += fmt.Sprintf(" AND type = $%d", argNum)
		args = append(args, *filters.Type)
		argNum++
	}

	if filters.TargetUserID != "" {
		query += fmt.Sprintf(" AND target_user_id = $%d", argNum)
		args = append(args, filters.TargetUserID)
		argNum++
	}

	if filters.EntityID != "" {
		query += fmt.Sprintf(" AND entity_id = $%d", argNum)
		args = append(args, filters.EntityID)
		argNum++
	}

	query += " ORDER BY created_at DESC, id"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	eventsList := make([]*domain.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		eventsList = append(eventsList, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return eventsList, nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var (
		event   domain.Event
		payload []byte
	)
	err := row.Scan(
		&event.ID,
		&event.Type,
		&event.ActorID,
		&event.EntityType,
		&event.EntityID,
		&event.TargetUserID,
		&payload,
		&event.IdempotencyKey,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.Payload, err = domain.DecodePayload(event.Type, payload)
	if err != nil {
		return nil, fmt.Errorf("decode event %s: %w", event.ID, err)
	}
	return &event, nil
}
