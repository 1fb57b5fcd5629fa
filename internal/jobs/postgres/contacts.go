package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/jobs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ContactDirectory implements jobs.ContactDirectory over the user_contacts table.
type ContactDirectory struct {
	db *pgxpool.Pool
}

// NewContactDirectory creates a new contact directory.
func NewContactDirectory(db *pgxpool.Pool) *ContactDirectory {
	return &ContactDirectory{db: db}
}

// GetContact retrieves the delivery addresses of a user.
func (d *ContactDirectory) GetContact(ctx context.Context, userID string) (*domain.UserContact, error) {
	query := `
		SELECT user_id, email, phone, email_opt_in, sms_opt_in
		FROM user_contacts
		WHERE user_id = $1
	`
	var c domain.UserContact
	err := d.db.QueryRow(ctx, query, userID).Scan(
		&c.UserID,
		&c.Email,
		&c.Phone,
		&c.EmailOptIn,
		&c.SMSOptIn,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, jobs.ErrContactNotFound
		}
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return &c, nil
}
