// Package events holds the Event resource as the remote API exposes it, the
// form input users type when creating or editing one, and the small amount of
// presentation logic shared by the web pages and the CLI.
package events

// Event is a read-only snapshot of one event as returned by the remote API.
type Event struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Location     string `json:"location"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time,omitempty"`
	ImageURL     string `json:"image_url"`
	MaxAttendees *int   `json:"max_attendees,omitempty"`
	Organizer    string `json:"organizer,omitempty"`
	UserID       int64  `json:"user_id"`
}

// User identifies the account behind a session.
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// Filters are passed through to GET /events. Empty values are not sent.
type Filters struct {
	Search string
	Date   string
}

// IsOwnedBy reports whether user may edit or delete the event. The check is
// advisory; the remote API enforces ownership.
func (e Event) IsOwnedBy(user *User) bool {
	return user != nil && e.UserID == user.ID
}
