package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ogulcanaydogan/aeris/pkg/hazard"
	"github.com/ogulcanaydogan/aeris/pkg/model"
)

var (
	// ErrNotFound is returned when no user matches the lookup key.
	ErrNotFound = errors.New("user not found")
	// ErrConflict is returned when a username is already taken.
	ErrConflict = errors.New("username already exists")
)

// Storage is the record store for users and their alert state. Every write
// touches a single user and only the fields it names.
type Storage interface {
	// GetUser retrieves a user by id.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// GetUserByUsername retrieves a user by their unique username.
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)

	// ListUsers returns every registered user ordered by username. Records
	// that cannot be decoded are left out and reported in a
	// *CorruptRecordsError returned together with the healthy users.
	ListUsers(ctx context.Context) ([]model.User, error)

	// ListEligible returns users with both an endpoint and a location, with
	// the same partial-result contract as ListUsers. The alert cycle lists
	// all users instead so it can count the ineligible ones as skipped.
	ListEligible(ctx context.Context) ([]model.User, error)

	// CreateUser inserts a new user. ID and JoinedAt are assigned when empty.
	CreateUser(ctx context.Context, user *model.User) error

	// UpdateProfile applies a partial profile change.
	UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) error

	// RecordAlert stores the alert state of a successful dispatch.
	RecordAlert(ctx context.Context, id string, at time.Time, kinds []hazard.Kind, summary string) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// RecordError is one stored user that could not be decoded.
type RecordError struct {
	ID  string
	Err error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("decode user %s: %v", e.ID, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

// CorruptRecordsError accompanies a partial list result.
type CorruptRecordsError struct {
	Records []RecordError
}

func (e *CorruptRecordsError) Error() string {
	if len(e.Records) == 1 {
		return e.Records[0].Error()
	}
	return fmt.Sprintf("%d user records could not be decoded (first: %v)", len(e.Records), e.Records[0])
}

// Partial returns the corrupt-record report carried by err, or nil when err
// is nil or a real failure.
func Partial(err error) *CorruptRecordsError {
	var corrupt *CorruptRecordsError
	if errors.As(err, &corrupt) {
		return corrupt
	}
	return nil
}

func (e *CorruptRecordsError) add(id string, err error) *CorruptRecordsError {
	if e == nil {
		e = &CorruptRecordsError{}
	}
	e.Records = append(e.Records, RecordError{ID: id, Err: err})
	return e
}

// asError keeps a nil *CorruptRecordsError from becoming a non-nil error.
func (e *CorruptRecordsError) asError() error {
	if e == nil {
		return nil
	}
	return e
}

// Supported backend drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)
