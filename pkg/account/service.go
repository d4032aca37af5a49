// Package account handles user registration, login and profile changes.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ogulcanaydogan/aeris/pkg/model"
	"github.com/ogulcanaydogan/aeris/pkg/storage"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidInput is returned when required registration fields are missing
	// or a profile value is out of range.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized is returned when credentials do not match.
	ErrUnauthorized = errors.New("invalid username or password")
)

// Registration carries the fields accepted at sign-up.
type Registration struct {
	Username       string          `json:"username"`
	Email          string          `json:"email"`
	Password       string          `json:"password"`
	Mode           string          `json:"mode,omitempty"`
	Age            *int            `json:"age,omitempty"`
	Conditions     string          `json:"conditions,omitempty"`
	TelegramChatID string          `json:"telegram_chat_id,omitempty"`
	Location       *model.Location `json:"location,omitempty"`
}

// Service manages user accounts on top of the record store.
type Service struct {
	store  storage.Storage
	cost   int
	logger *slog.Logger
}

// NewService creates an account service. bcrypt.DefaultCost is used for hashing.
func NewService(store storage.Storage, logger *slog.Logger) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost, logger: logger}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

// Register creates a new user. The username must be unique.
func (s *Service) Register(ctx context.Context, reg Registration) (*model.User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	if reg.Username == "" || reg.Email == "" || reg.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", ErrInvalidInput)
	}
	if err := validateProfile(reg.Age, reg.Location); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, fmt.Errorf("%w: password must be at most 72 bytes", ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		Username:       reg.Username,
		Email:          reg.Email,
		PasswordHash:   string(hash),
		Mode:           reg.Mode,
		Age:            reg.Age,
		Conditions:     reg.Conditions,
		TelegramChatID: reg.TelegramChatID,
		Location:       reg.Location,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Authenticate checks a username and password pair.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	u, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("login failed", "username", username)
		return nil, ErrUnauthorized
	}
	return u, nil
}

// Get returns a user by username.
func (s *Service) Get(ctx context.Context, username string) (*model.User, error) {
	return s.store.GetUserByUsername(ctx, username)
}

// List returns every user that can be read. Undecodable records are logged
// and left out.
func (s *Service) List(ctx context.Context) ([]model.User, error) {
	users, err := s.store.ListUsers(ctx)
	if corrupt := storage.Partial(err); corrupt != nil {
		for _, rec := range corrupt.Records {
			s.logger.Warn("skipping undecodable user record", "user_id", rec.ID, "error", rec.Err)
		}
		return users, nil
	}
	return users, err
}

// UpdateProfile applies a partial update and returns the resulting user.
func (s *Service) UpdateProfile(ctx context.Context, username string, update model.ProfileUpdate) (*model.User, error) {
	if err := validateProfile(update.Age, update.Location); err != nil {
		return nil, err
	}

	u, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateProfile(ctx, u.ID, update); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	s.logger.Info("profile updated", "user_id", u.ID)
	return s.store.GetUser(ctx, u.ID)
}

func validateProfile(age *int, loc *model.Location) error {
	if age != nil && (*age < 0 || *age > 150) {
		return fmt.Errorf("%w: age %d out of range", ErrInvalidInput, *age)
	}
	if loc != nil {
		if loc.Lat < -90 || loc.Lat > 90 {
			return fmt.Errorf("%w: latitude %g out of range", ErrInvalidInput, loc.Lat)
		}
		if loc.Lon < -180 || loc.Lon > 180 {
			return fmt.Errorf("%w: longitude %g out of range", ErrInvalidInput, loc.Lon)
		}
	}
	return nil
}
