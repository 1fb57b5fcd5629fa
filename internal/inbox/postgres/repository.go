// Package postgres provides PostgreSQL implementation of inbox repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/inbox"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const notificationColumns = `id, user_id, COALESCE(event_id, ''), type, title, body, link, read_at, archived_at, created_at, updated_at`

// Repository implements inbox.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Upsert inserts a notification or merges its content into the existing row.
func (r *Repository) Upsert(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, event_id, type, title, body, link, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			link = EXCLUDED.link,
			updated_at = EXCLUDED.updated_at
		RETURNING read_at, archived_at, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		n.ID,
		n.UserID,
		n.EventID,
		n.Type,
		n.Title,
		n.Body,
		n.Link,
		n.CreatedAt,
	).Scan(&n.ReadAt, &n.ArchivedAt, &n.CreatedAt, &n.UpdatedAt)

	if err != nil {
		return fmt.Errorf("upsert notification: %w", err)
	}
	return nil
}

// ListNotifications retrieves the user's notifications, newest first.
func (r *Repository) ListNotifications(ctx context.Context, userID string, filter inbox.ListFilter) ([]*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	args := []interface{}{userID}
	argNum := 2

	if !filter.IncludeArchived {
		query += " AND archived_at IS NULL"
	}
	if filter.UnreadOnly {
		query += " AND read_at IS NULL"
	}

	query += " ORDER BY created_at DESC, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		result = append(result, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return result, nil
}

// CountUnread counts the user's unread, unarchived notifications.
func (r *Repository) CountUnread(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL AND archived_at IS NULL`

	var count int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// MarkRead sets read_at unless it is already set.
func (r *Repository) MarkRead(ctx context.Context, userID, id string, at time.Time) (*domain.Notification, error) {
	query := `
		UPDATE notifications
		SET read_at = COALESCE(read_at, $3), updated_at = $3
		WHERE id = $1 AND user_id = $2
		RETURNING ` + notificationColumns
	return r.update(ctx, query, id, userID, at)
}

// Archive sets archived_at unless it is already set.
func (r *Repository) Archive(ctx context.Context, userID, id string, at time.Time) (*domain.Notification, error) {
	query := `
		UPDATE notifications
		SET archived_at = COALESCE(archived_at, $3), updated_at = $3
		WHERE id = $1 AND user_id = $2
		RETURNING ` + notificationColumns
	return r.update(ctx, query, id, userID, at)
}

func (r *Repository) update(ctx context.Context, query, id, userID string, at time.Time) (*domain.Notification, error) {
	n, err := scanNotification(r.db.QueryRow(ctx, query, id, userID, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inbox.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("update notification: %w", err)
	}
	return n, nil
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.EventID,
		&n.Type,
		&n.Title,
		&n.Body,
		&n.Link,
		&n.ReadAt,
		&n.ArchivedAt,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
