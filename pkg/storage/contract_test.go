package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/ogulcanaydogan/aeris/pkg/hazard"
	"github.com/ogulcanaydogan/aeris/pkg/model"
	"github.com/ogulcanaydogan/aeris/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawStore is a Storage whose timestamp text can be overwritten directly.
type rawStore interface {
	storage.Storage
	SetLastAlertAt(ctx context.Context, id, raw string) error
}

func strPtr(s string) *string { return &s }

func runContract(t *testing.T, newStore func(t *testing.T) rawStore) {
	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		age := 34

		u := &model.User{
			Username:     "ayse",
			Email:        "ayse@example.com",
			PasswordHash: "hash",
			Age:          &age,
			Conditions:   "asthma",
		}
		require.NoError(t, s.CreateUser(ctx, u))
		assert.NotEmpty(t, u.ID)
		assert.False(t, u.JoinedAt.IsZero())
		assert.Equal(t, model.DefaultMode, u.Mode)

		got, err := s.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "ayse", got.Username)
		assert.Equal(t, "ayse@example.com", got.Email)
		assert.Equal(t, "hash", got.PasswordHash)
		require.NotNil(t, got.Age)
		assert.Equal(t, 34, *got.Age)
		assert.Equal(t, "asthma", got.Conditions)
		assert.Nil(t, got.Location)
		assert.Empty(t, got.LastAlertAt)
		assert.Empty(t, got.LastAlertReasons)
		assert.WithinDuration(t, u.JoinedAt, got.JoinedAt, time.Second)

		byName, err := s.GetUserByUsername(ctx, "ayse")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byName.ID)
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetUser(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.GetUserByUsername(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		err = s.UpdateProfile(ctx, "missing", model.ProfileUpdate{Mode: strPtr("High")})
		assert.ErrorIs(t, err, storage.ErrNotFound)
		err = s.RecordAlert(ctx, "missing", time.Now(), []hazard.Kind{hazard.KindHighUV}, "High UV (index 8)")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("DuplicateUsername", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.CreateUser(ctx, &model.User{Username: "mert"}))
		err := s.CreateUser(ctx, &model.User{Username: "mert"})
		assert.ErrorIs(t, err, storage.ErrConflict)

		users, err := s.ListUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("ListEligible", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.CreateUser(ctx, &model.User{Username: "a", TelegramChatID: "1", Location: &model.Location{Lat: 1, Lon: 2}}))
		require.NoError(t, s.CreateUser(ctx, &model.User{Username: "b", TelegramChatID: "2"}))
		require.NoError(t, s.CreateUser(ctx, &model.User{Username: "c", Location: &model.Location{Lat: 3, Lon: 4}}))

		all, err := s.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "a", all[0].Username)
		assert.Equal(t, "c", all[2].Username)

		eligible, err := s.ListEligible(ctx)
		require.NoError(t, err)
		require.Len(t, eligible, 1)
		assert.Equal(t, "a", eligible[0].Username)
		assert.Equal(t, &model.Location{Lat: 1, Lon: 2}, eligible[0].Location)
	})

	t.Run("UpdateProfileIsPartial", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

		u := &model.User{Username: "ece", Email: "old@example.com"}
		require.NoError(t, s.CreateUser(ctx, u))
		require.NoError(t, s.RecordAlert(ctx, u.ID, at, []hazard.Kind{hazard.KindExtremeHeat}, "Extreme Heat (41°C)"))

		require.NoError(t, s.UpdateProfile(ctx, u.ID, model.ProfileUpdate{
			TelegramChatID: strPtr("999"),
			Location:       &model.Location{Lat: 39.9, Lon: 32.85},
		}))

		got, err := s.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "999", got.TelegramChatID)
		assert.Equal(t, &model.Location{Lat: 39.9, Lon: 32.85}, got.Location)
		assert.Equal(t, "old@example.com", got.Email)
		assert.Equal(t, "2024-06-01T12:00:00Z", got.LastAlertAt)
		assert.Equal(t, []hazard.Kind{hazard.KindExtremeHeat}, got.LastAlertReasons)
		assert.Equal(t, "Extreme Heat (41°C)", got.LastAlertSummary)

		require.NoError(t, s.UpdateProfile(ctx, u.ID, model.ProfileUpdate{}))
	})

	t.Run("RecordAlertLeavesProfile", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		at := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)

		u := &model.User{Username: "can", TelegramChatID: "5", Location: &model.Location{Lat: 1, Lon: 1}}
		require.NoError(t, s.CreateUser(ctx, u))

		kinds := []hazard.Kind{hazard.KindHighWind, hazard.KindThunderstorm}
		require.NoError(t, s.RecordAlert(ctx, u.ID, at, kinds, "High Wind (65 km/h), Thunderstorm"))

		got, err := s.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "5", got.TelegramChatID)
		assert.Equal(t, kinds, got.LastAlertReasons)
		assert.Equal(t, "High Wind (65 km/h), Thunderstorm", got.LastAlertSummary)
	})

	t.Run("RawTimestamp", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u := &model.User{Username: "zeynep"}
		require.NoError(t, s.CreateUser(ctx, u))
		require.NoError(t, s.SetLastAlertAt(ctx, u.ID, "not-a-time"))

		got, err := s.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "not-a-time", got.LastAlertAt)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
