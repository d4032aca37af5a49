package model

import (
	"time"

	"github.com/ogulcanaydogan/aeris/pkg/hazard"
)

// Location is a point on the globe in decimal degrees.
type Location struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// User is a registered user together with their alert state.
type User struct {
	ID             string    `json:"id" db:"id"`
	Username       string    `json:"username" db:"username"`
	Email          string    `json:"email" db:"email"`
	PasswordHash   string    `json:"-" db:"password_hash"`
	Mode           string    `json:"mode" db:"mode"`
	Age            *int      `json:"age,omitempty" db:"age"`
	Conditions     string    `json:"conditions,omitempty" db:"conditions"`
	JoinedAt       time.Time `json:"joined_at" db:"joined_at"`
	TelegramChatID string    `json:"telegram_chat_id,omitempty" db:"telegram_chat_id"`
	Location       *Location `json:"location,omitempty"`

	// LastAlertAt is kept as RFC 3339 text exactly as stored. Empty means
	// the user was never alerted.
	LastAlertAt      string        `json:"last_alert_at,omitempty" db:"last_alert_at"`
	LastAlertReasons []hazard.Kind `json:"last_alert_reasons,omitempty" db:"last_alert_reasons"`
	LastAlertSummary string        `json:"last_alert_summary,omitempty" db:"last_alert_summary"`
}

// Linked reports whether the user has a notification endpoint.
func (u *User) Linked() bool {
	return u.TelegramChatID != ""
}

// Eligible reports whether the user can take part in an alert cycle.
func (u *User) Eligible() bool {
	return u.Linked() && u.Location != nil
}

// DefaultMode is assigned to users registered without one.
const DefaultMode = "Low"

// ProfileUpdate is a partial profile change. Nil fields are left untouched.
// Alert state is never part of a profile update.
type ProfileUpdate struct {
	Email          *string   `json:"email,omitempty"`
	Mode           *string   `json:"mode,omitempty"`
	Age            *int      `json:"age,omitempty"`
	Conditions     *string   `json:"conditions,omitempty"`
	TelegramChatID *string   `json:"telegram_chat_id,omitempty"`
	Location       *Location `json:"location,omitempty"`
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.Email == nil && p.Mode == nil && p.Age == nil &&
		p.Conditions == nil && p.TelegramChatID == nil && p.Location == nil
}

// AlertStatus describes a user's most recent alert and when the next one may go out.
type AlertStatus struct {
	Linked           bool          `json:"linked"`
	LastAlertAt      string        `json:"last_alert_at,omitempty"`
	LastAlertReasons []hazard.Kind `json:"last_alert_reasons,omitempty"`
	LastAlertSummary string        `json:"last_alert_summary,omitempty"`
	NextCheckAt      *time.Time    `json:"next_check_at,omitempty"`
	NextCheck        string        `json:"next_check"`
}

// Cycle stages reported in CycleError.
const (
	StageFetch    = "fetch"
	StageDispatch = "dispatch"
	StagePersist  = "persist"
)

// CycleError is a failure isolated to one user during a cycle.
type CycleError struct {
	UserID string `json:"user_id"`
	Stage  string `json:"stage"`
	Err    string `json:"error"`
}

// CycleReport summarizes one alert cycle.
type CycleReport struct {
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at"`
	UsersProcessed  int          `json:"users_processed"`
	UsersAlerted    int          `json:"users_alerted"`
	UsersSuppressed int          `json:"users_suppressed"`
	UsersClear      int          `json:"users_clear"`
	UsersSkipped    int          `json:"users_skipped"`
	Errors          []CycleError `json:"errors,omitempty"`
}

// Duration returns how long the cycle ran.
func (r CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// FormatAlertTime renders a timestamp the way it is stored in LastAlertAt.
func FormatAlertTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseAlertTime parses a stored LastAlertAt value.
func ParseAlertTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
