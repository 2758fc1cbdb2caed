// Package remote talks to the hosted backend: auth sessions, the table API
// and the realtime change feed.
package remote

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

type AuthEventType string

const (
	EventSignedIn         AuthEventType = "SIGNED_IN"
	EventSignedOut        AuthEventType = "SIGNED_OUT"
	EventUserUpdated      AuthEventType = "USER_UPDATED"
	EventTokenRefreshed   AuthEventType = "TOKEN_REFRESHED"
	EventPasswordRecovery AuthEventType = "PASSWORD_RECOVERY"
)

type UserMetadata struct {
	Name     string `json:"name,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// Identity is the authenticated user as reported by the auth service.
type Identity struct {
	ID       string       `json:"id"`
	Email    string       `json:"email"`
	Metadata UserMetadata `json:"user_metadata"`
}

type Session struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresAt    int64    `json:"expires_at"`
	User         Identity `json:"user"`
}

func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt > 0 && now.Unix() >= s.ExpiresAt
}

// Identity returns nil for a nil session.
func (s *Session) Identity() *Identity {
	if s == nil || s.User.ID == "" {
		return nil
	}
	user := s.User
	return &user
}

type AuthEvent struct {
	Type    AuthEventType
	Session *Session
}

type Filter struct {
	Column string
	Value  string
}

func Eq(column, value string) Filter {
	return Filter{Column: column, Value: value}
}

// String renders the filter in realtime syntax, e.g. user_id=eq.42.
func (f Filter) String() string {
	return f.Column + "=eq." + f.Value
}

// ParseFilter parses the realtime syntax produced by Filter.String.
func ParseFilter(raw string) (Filter, bool) {
	column, rest, ok := strings.Cut(strings.TrimSpace(raw), "=")
	if !ok || column == "" {
		return Filter{}, false
	}
	value, ok := strings.CutPrefix(rest, "eq.")
	if !ok {
		return Filter{}, false
	}
	return Filter{Column: column, Value: value}, true
}

type Order struct {
	Column    string
	Ascending bool
}

type Query struct {
	Table   string
	Columns []string
	Filters []Filter
	Order   *Order
}

const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)

type ChangeEvent struct {
	Table     string          `json:"table"`
	Type      string          `json:"event"`
	Record    json.RawMessage `json:"record,omitempty"`
	OldRecord json.RawMessage `json:"old_record,omitempty"`
}

type Subscription interface {
	Close() error
}

// Gateway is the backend surface the synchronization layer depends on.
type Gateway interface {
	Session(ctx context.Context) (*Session, error)
	// OnAuthStateChange registers fn and returns a function removing it.
	OnAuthStateChange(fn func(AuthEvent)) func()
	Select(ctx context.Context, q Query, dest any) error
	Upsert(ctx context.Context, table string, row any, dest any) error
	Delete(ctx context.Context, table string, filters ...Filter) error
	// Subscribe invokes fn for every insert, update or delete on table
	// matching filter, in delivery order.
	Subscribe(ctx context.Context, table, filter string, fn func(ChangeEvent)) (Subscription, error)
}
