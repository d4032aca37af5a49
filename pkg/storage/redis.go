package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/ogulcanaydogan/aeris/pkg/hazard"
	"github.com/ogulcanaydogan/aeris/pkg/model"
)

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Redis implements the Storage interface with one hash per user. Field-level
// HSET writes keep profile updates and alert-state writes from clobbering each other.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", opts.Addr, err)
	}
	return &Redis{client: client, prefix: opts.Prefix}, nil
}

func (r *Redis) userKey(id string) string { return r.prefix + "user:" + id }
func (r *Redis) usernameKey(username string) string { return r.prefix + "username:" + username }
func (r *Redis) usersKey() string { return r.prefix + "users" }

func (r *Redis) GetUser(ctx context.Context, id string) (*model.User, error) {
	fields, err := r.client.HGetAll(ctx, r.userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	u, err := decodeUser(fields)
	if err != nil {
		return nil, RecordError{ID: id, Err: err}
	}
	return u, nil
}

func (r *Redis) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	id, err := r.client.Get(ctx, r.usernameKey(username)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return r.GetUser(ctx, id)
}

func (r *Redis) ListUsers(ctx context.Context) ([]model.User, error) {
	ids, err := r.client.SMembers(ctx, r.usersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}

	cmds := make([]*redis.StringStringMapCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.userKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]model.User, 0, len(ids))
	var corrupt *CorruptRecordsError
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		u, err := decodeUser(fields)
		if err != nil {
			corrupt = corrupt.add(ids[i], err)
			continue
		}
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, corrupt.asError()
}

func (r *Redis) ListEligible(ctx context.Context) ([]model.User, error) {
	all, err := r.ListUsers(ctx)
	if err != nil && Partial(err) == nil {
		return nil, err
	}
	eligible := all[:0]
	for _, u := range all {
		if u.Eligible() {
			eligible = append(eligible, u)
		}
	}
	return eligible, err
}

func (r *Redis) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.JoinedAt.IsZero() {
		user.JoinedAt = time.Now().UTC()
	}
	if user.Mode == "" {
		user.Mode = model.DefaultMode
	}

	ok, err := r.client.SetNX(ctx, r.usernameKey(user.Username), user.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("reserve username: %w", err)
	}
	if !ok {
		return fmt.Errorf("user %q: %w", user.Username, ErrConflict)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.userKey(user.ID), encodeUser(user))
		pipe.SAdd(ctx, r.usersKey(), user.ID)
		return nil
	})
	if err != nil {
		r.client.Del(ctx, r.usernameKey(user.Username))
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *Redis) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) error {
	if err := r.mustExist(ctx, id); err != nil {
		return err
	}

	fields := map[string]any{}
	if update.Email != nil {
		fields["email"] = *update.Email
	}
	if update.Mode != nil {
		fields["mode"] = *update.Mode
	}
	if update.Age != nil {
		fields["age"] = strconv.Itoa(*update.Age)
	}
	if update.Conditions != nil {
		fields["conditions"] = *update.Conditions
	}
	if update.TelegramChatID != nil {
		fields["telegram_chat_id"] = *update.TelegramChatID
	}
	if update.Location != nil {
		fields["latitude"] = formatFloat(update.Location.Lat)
		fields["longitude"] = formatFloat(update.Location.Lon)
	}
	if len(fields) == 0 {
		return nil
	}

	if err := r.client.HSet(ctx, r.userKey(id), fields).Err(); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (r *Redis) RecordAlert(ctx context.Context, id string, at time.Time, kinds []hazard.Kind, summary string) error {
	if err := r.mustExist(ctx, id); err != nil {
		return err
	}
	err := r.client.HSet(ctx, r.userKey(id), map[string]any{
		"last_alert_at":      model.FormatAlertTime(at),
		"last_alert_reasons": joinKinds(kinds),
		"last_alert_summary": summary,
	}).Err()
	if err != nil {
		return fmt.Errorf("record alert: %w", err)
	}
	return nil
}

// SetLastAlertAt overwrites the stored alert timestamp text verbatim.
func (r *Redis) SetLastAlertAt(ctx context.Context, id, raw string) error {
	if err := r.mustExist(ctx, id); err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.userKey(id), "last_alert_at", raw).Err(); err != nil {
		return fmt.Errorf("set last alert time: %w", err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) mustExist(ctx context.Context, id string) error {
	n, err := r.client.Exists(ctx, r.userKey(id)).Result()
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	return nil
}

func encodeUser(u *model.User) map[string]any {
	fields := map[string]any{
		"id":                 u.ID,
		"username":           u.Username,
		"email":              u.Email,
		"password_hash":      u.PasswordHash,
		"mode":               u.Mode,
		"conditions":         u.Conditions,
		"joined_at":          u.JoinedAt.UTC().Format(time.RFC3339Nano),
		"telegram_chat_id":   u.TelegramChatID,
		"last_alert_at":      u.LastAlertAt,
		"last_alert_reasons": joinKinds(u.LastAlertReasons),
		"last_alert_summary": u.LastAlertSummary,
	}
	if u.Age != nil {
		fields["age"] = strconv.Itoa(*u.Age)
	}
	if u.Location != nil {
		fields["latitude"] = formatFloat(u.Location.Lat)
		fields["longitude"] = formatFloat(u.Location.Lon)
	}
	return fields
}

func decodeUser(f map[string]string) (*model.User, error) {
	u := &model.User{
		ID:               f["id"],
		Username:         f["username"],
		Email:            f["email"],
		PasswordHash:     f["password_hash"],
		Mode:             f["mode"],
		Conditions:       f["conditions"],
		TelegramChatID:   f["telegram_chat_id"],
		LastAlertAt:      f["last_alert_at"],
		LastAlertReasons: splitKinds(f["last_alert_reasons"]),
		LastAlertSummary: f["last_alert_summary"],
	}

	if v := f["joined_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("joined_at: %w", err)
		}
		u.JoinedAt = t
	}
	if v := f["age"]; v != "" {
		age, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("age: %w", err)
		}
		u.Age = &age
	}
	latS, lonS := f["latitude"], f["longitude"]
	if latS != "" && lonS != "" {
		lat, err := strconv.ParseFloat(latS, 64)
		if err != nil {
			return nil, fmt.Errorf("latitude: %w", err)
		}
		lon, err := strconv.ParseFloat(lonS, 64)
		if err != nil {
			return nil, fmt.Errorf("longitude: %w", err)
		}
		u.Location = &model.Location{Lat: lat, Lon: lon}
	}
	return u, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
