package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/aeris/pkg/hazard"
	"github.com/ogulcanaydogan/aeris/pkg/model"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const userColumns = `id, username, email, password_hash, mode, age, conditions, joined_at,
	telegram_chat_id, latitude, longitude, last_alert_at, last_alert_reasons, last_alert_summary`

// SQLite implements the Storage interface using an SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *SQLite) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

func (s *SQLite) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.queryUsers(ctx, "SELECT "+userColumns+" FROM users ORDER BY username")
}

func (s *SQLite) ListEligible(ctx context.Context) ([]model.User, error) {
	return s.queryUsers(ctx, "SELECT "+userColumns+` FROM users
		WHERE telegram_chat_id != '' AND latitude IS NOT NULL AND longitude IS NOT NULL
		ORDER BY username`)
}

func (s *SQLite) queryUsers(ctx context.Context, query string) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var (
		users   []model.User
		corrupt *CorruptRecordsError
	)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			id, idErr := scanID(rows)
			if idErr != nil {
				return nil, fmt.Errorf("scan user row: %w", err)
			}
			corrupt = corrupt.add(id, err)
			continue
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, corrupt.asError()
}

// scanID re-reads only the id column of a row that failed to scan in full.
func scanID(rows *sql.Rows) (string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}
	var id string
	dest := make([]any, len(cols))
	dest[0] = &id
	for i := 1; i < len(dest); i++ {
		dest[i] = new(any)
	}
	if err := rows.Scan(dest...); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLite) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.JoinedAt.IsZero() {
		user.JoinedAt = time.Now().UTC()
	}
	if user.Mode == "" {
		user.Mode = model.DefaultMode
	}

	var lat, lon sql.NullFloat64
	if user.Location != nil {
		lat = sql.NullFloat64{Float64: user.Location.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: user.Location.Lon, Valid: true}
	}
	var age sql.NullInt64
	if user.Age != nil {
		age = sql.NullInt64{Int64: int64(*user.Age), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, mode, age, conditions, joined_at,
			telegram_chat_id, latitude, longitude, last_alert_at, last_alert_reasons, last_alert_summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.Mode, age, user.Conditions,
		user.JoinedAt, user.TelegramChatID, lat, lon,
		user.LastAlertAt, joinKinds(user.LastAlertReasons), user.LastAlertSummary,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %q: %w", user.Username, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLite) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) error {
	var sets []string
	var args []any

	if update.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *update.Email)
	}
	if update.Mode != nil {
		sets = append(sets, "mode = ?")
		args = append(args, *update.Mode)
	}
	if update.Age != nil {
		sets = append(sets, "age = ?")
		args = append(args, *update.Age)
	}
	if update.Conditions != nil {
		sets = append(sets, "conditions = ?")
		args = append(args, *update.Conditions)
	}
	if update.TelegramChatID != nil {
		sets = append(sets, "telegram_chat_id = ?")
		args = append(args, *update.TelegramChatID)
	}
	if update.Location != nil {
		sets = append(sets, "latitude = ?", "longitude = ?")
		args = append(args, update.Location.Lat, update.Location.Lon)
	}

	if len(sets) == 0 {
		// Nothing to write, but the user must still exist.
		_, err := s.GetUser(ctx, id)
		return err
	}

	args = append(args, id)
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return checkAffected(result, id)
}

func (s *SQLite) RecordAlert(ctx context.Context, id string, at time.Time, kinds []hazard.Kind, summary string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_alert_at = ?, last_alert_reasons = ?, last_alert_summary = ? WHERE id = ?`,
		model.FormatAlertTime(at), joinKinds(kinds), summary, id,
	)
	if err != nil {
		return fmt.Errorf("record alert: %w", err)
	}
	return checkAffected(result, id)
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// SetLastAlertAt overwrites the stored alert timestamp text verbatim. It exists
// for repairing records by hand and for tests.
func (s *SQLite) SetLastAlertAt(ctx context.Context, id, raw string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET last_alert_at = ? WHERE id = ?`, raw, id)
	if err != nil {
		return fmt.Errorf("set last alert time: %w", err)
	}
	return checkAffected(result, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u        model.User
		age      sql.NullInt64
		lat, lon sql.NullFloat64
		reasons  string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Mode, &age, &u.Conditions,
		&u.JoinedAt, &u.TelegramChatID, &lat, &lon, &u.LastAlertAt, &reasons, &u.LastAlertSummary); err != nil {
		return nil, err
	}
	if age.Valid {
		v := int(age.Int64)
		u.Age = &v
	}
	if lat.Valid && lon.Valid {
		u.Location = &model.Location{Lat: lat.Float64, Lon: lon.Float64}
	}
	u.LastAlertReasons = splitKinds(reasons)
	return &u, nil
}

func checkAffected(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func joinKinds(kinds []hazard.Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

func splitKinds(s string) []hazard.Kind {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	kinds := make([]hazard.Kind, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kinds = append(kinds, hazard.Kind(p))
		}
	}
	return kinds
}
