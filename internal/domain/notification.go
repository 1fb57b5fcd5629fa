package domain

import "time"

// Notification is an in-app notification stored per user.
type Notification struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	EventID    string     `json:"event_id"`
	Type       EventType  `json:"type"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	Link       string     `json:"link,omitempty"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// UserContact holds the delivery addresses of a marketplace user.
type UserContact struct {
	UserID     string
	Email      string
	Phone      string
	EmailOptIn bool
	SMSOptIn   bool
}

// AddressFor returns the address to use for the given job kind, or "" when
// the user cannot be reached on that channel.
func (c *UserContact) AddressFor(kind JobKind) string {
	switch kind {
	case JobKindEmail:
		if c.EmailOptIn {
			return c.Email
		}
	case JobKindSMS:
		if c.SMSOptIn {
			return c.Phone
		}
	}
	return ""
}
