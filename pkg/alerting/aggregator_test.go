package alerting_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ogulcanaydogan/aeris/pkg/alerting"
	"github.com/ogulcanaydogan/aeris/pkg/hazard"
	"github.com/ogulcanaydogan/aeris/pkg/model"
	"github.com/ogulcanaydogan/aeris/pkg/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCycle_AlertsAndRecords(t *testing.T) {
	h := newHarness(t, alerting.Options{})
	ctx := context.Background()

	u := h.addUser(t, "ayse", "chat-1", loc(1))
	h.source.set(1, hazard.Snapshot{
		TemperatureC: hazard.Float(41),
		UVIndex:      hazard.Float(8),
	})

	report, err := h.agg.RunCycle(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.UsersProcessed)
	assert.Equal(t, 1, report.UsersAlerted)
	assert.Empty(t, report.Errors)
	assert.Equal(t, t0, report.StartedAt)

	msgs := h.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "chat-1", msgs[0].Endpoint)
	assert.Equal(t, "🚨 Weather Alert from Aeris AI\n\n- Extreme Heat (41°C)\n- High UV (index 8)\nStay safe. Check the dashboard for details.", msgs[0].Text)

	got := h.user(t, u.ID)
	assert.Equal(t, "2024-06-01T12:00:00Z", got.LastAlertAt)
	assert.Equal(t, []hazard.Kind{hazard.KindExtremeHeat, hazard.KindHighUV}, got.LastAlertReasons)
	assert.Equal(t, "Extreme Heat (41°C), High UV (index 8)", got.LastAlertSummary)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AlertsSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CyclesTotal.WithLabelValues("completed")))
}

func TestRunCycle_IneligibleSkipped(t *testing.T) {
	h := newHarness(t, alerting.Options{})

	h.addUser(t, "nolocation", "chat-1", nil)
	h.addUser(t, "notlinked", "", loc(2))
	h.source.set(2, heat())

	report, err := h.agg.RunCycle(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 2, report.UsersSkipped)
	assert.Equal(t, 0, report.UsersProcessed)
	assert.Equal(t, 0, h.source.callCount())
	assert.Empty(t, h.notifier.messages())
}

func TestRunCycle_ClearConditions(t *testing.T) {
	h := newHarness(t, alerting.Options{})
	u := h.addUser(t, "mild", "chat-1", loc(1))
	h.source.set(1, hazard.Snapshot{TemperatureC: hazard.Float(20)})

	report, err := h.agg.RunCycle(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.UsersClear)
	assert.Empty(t, h.notifier.messages())
	assert.Empty(t, h.user(t, u.ID).LastAlertAt)
}

func TestRunCycle_SecondCycleIsIdempotent(t *testing.T) {
	h := newHarness(t, alerting.Options{})
	ctx := context.Background()
	u := h.addUser(t, "ayse", "chat-1", loc(1))
	h.source.set(1, heat())

	_, err := h.agg.RunCycle(ctx, t0)
	require.NoError(t, err)

	report, err := h.agg.RunCycle(ctx, t0.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, report.UsersSuppressed)
	assert.Equal(t, 0, report.UsersAlerted)
	assert.Len(t, h.notifier.messages(), 1)
	assert.Equal(t, "2024-06-01T12:00:00Z", h.user(t, u.ID).LastAlertAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AlertsSuppressed))
}

func TestRunCycle_SubsetSuppressedWithinWindow(t *testing.T) {
	h := newHarness(t, alerting.Options{})
	ctx := context.Background()
	h.addUser(t, "ayse", "chat-1", loc(1))

	h.source.set(1, hazard.Snapshot{TemperatureC: hazard.Float(41), UVIndex: hazard.Float(8)})
	_, err := h.agg.RunCycle(ctx, t0)
	require.NoError(t, err)

	h.source.set(1, hazard.Snapshot{TemperatureC: hazard.Float(42)})
	report, err := h.agg.RunCycle(ctx, t0.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, report.UsersSuppressed)
	assert.Len(t, h.notifier.messages(), 1)
}

func TestRunCycle_NewKindBreaksThrough(t *testing.T) {
	h := newHarness(t, alerting.Options{})
	ctx := context.Background()
	u := h.addUser(t, "ayse", "chat-1", loc(1))

	h.source.set(1, heat())
	_, err := h.agg.RunCycle(ctx, t0)
	require.NoError(t, err)

	h.source.set(1, hazard.Snapshot{TemperatureC: hazard.Float(41), WindSpeedKmh: hazard.Float(70)})
	report, err := h.agg.RunCycle(ctx, t0.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, report.UsersAlerted)
	assert.Len(t, h.notifier.messages(), 2)

	got := h.user(t, u.ID)
	assert.Equal(t, "2024-06-01T12:10:00Z", got.LastAlertAt)
	assert.Equal(t, []hazard.Kind{hazard.KindExtremeHeat, hazard.KindHighWind}, got.LastAlertReasons)
}

func TestRunCycle_WindowElapsedRealerts(t *testing.T) {
	h := newHarness(t, alerting.Options{})
	ctx := context.Background()
	u := h.addUser(t, "ayse", "chat-1", loc(1))
	h.source.set(1, heat())

	_, err := h.agg.RunCycle(ctx, t0)
	require.NoError(t, err)

	report, err := h.agg.RunCycle(ctx, t0.Add(300*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, report.UsersAlerted)
	assert.Len(t, h.notifier.messages(), 2)
	assert.Equal(t, "2024-06-01T17:00:00Z", h.user(t, u.ID).LastAlertAt)
}

func TestRunCycle_CustomWindow(t *testing.T) {
	h := newHarness(t, alerting.Options{ThrottleWindow: 30 * time.Minute})
	ctx := context.Background()
	h.addUser(t, "ayse", "chat-1", loc(1))
	h.source.set(1, heat())

	_, err := h.agg.RunCycle(ctx, t0)
	require.NoError(t, err)
	report, err := h.agg.RunCycle(ctx, t0.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, report.UsersAlerted)
}

func TestRunCycle_DispatchFailureRetriedNextCycle(t *testing.T) {
	h := newHarness(t, alerting.Options{})
	ctx := context.Background()
	u := h.addUser(t, "ayse", "chat-1", loc(1))
	h.source.set(1, heat())
	h.notifier.failFor("chat-1", errors.New("telegram unavailable"))

	report, err := h.agg.RunCycle(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, 0, report.UsersAlerted)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, model.CycleError{UserID: u.ID, Stage: model.StageDispatch, Err: "telegram unavailable"}, report.Errors[0])

	got := h.user(t, u.ID)
	assert.Empty(t, got.LastAlertAt)
	assert.Empty(t, got.LastAlertReasons)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DispatchErrors))

	h.notifier.failFor("chat-1", nil)
	report, err = h.agg.RunCycle(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, report.UsersAlerted)
	assert.Equal(t, "2024-06-01T12:01:00Z", h.user(t, u.ID).LastAlertAt)
}

func TestRunCycle_FetchFailureIsolated(t *testing.T) {
	h := newHarness(t, alerting.Options{Concurrency: 2})
	ctx := context.Background()
	broken := h.addUser(t, "broken", "chat-1", loc(1))
	ok := h.addUser(t, "ok", "chat-2", loc(2))

	h.source.fail(1, errors.New("connection reset"))
	h.source.set(2, heat())

	report, err := h.agg.RunCycle(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, 2, report.UsersProcessed)
	assert.Equal(t, 1, report.UsersAlerted)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, broken.ID, report.Errors[0].UserID)
	assert.Equal(t, model.StageFetch, report.Errors[0].Stage)

	assert.Empty(t, h.user(t, broken.ID).LastAlertAt)
	assert.NotEmpty(t, h.user(t, ok.ID).LastAlertAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.FetchErrors))
}

func TestRunCycle_PanicRecovered(t *testing.T) {
	h := newHarness(t, alerting.Options{})
	bad := h.addUser(t, "bad", "chat-1", loc(1))
	h.addUser(t, "good", "chat-2", loc(2))
	h.source.panics[1] = true
	h.source.set(2, heat())

	report, err := h.agg.RunCycle(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.UsersAlerted)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, bad.ID, report.Errors[0].UserID)
	assert.Equal(t, model.StageFetch, report.Errors[0].Stage)
	assert.Contains(t, report.Errors[0].Err, "panic")
}

func TestRunCycle_PersistFailureStillCountsAlerted(t *testing.T) {
	sqlite, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	h := newHarnessWithStore(t, sqlite, failingRecordStore{Storage: sqlite}, alerting.Options{})
	u := h.addUser(t, "ayse", "chat-1", loc(1))
	h.source.set(1, heat())

	report, err := h.agg.RunCycle(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.UsersAlerted)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, model.StagePersist, report.Errors[0].Stage)
	assert.Len(t, h.notifier.messages(), 1)
	assert.Empty(t, h.user(t, u.ID).LastAlertAt)
}

func TestRunCycle_ListFailure(t *testing.T) {
	sqlite, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	h := newHarnessWithStore(t, sqlite, failingListStore{Storage: sqlite}, alerting.Options{})
	_, err = h.agg.RunCycle(context.Background(), t0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CyclesTotal.WithLabelValues("failed")))
}

func TestRunCycle_CorruptRecordDoesNotAbortCycle(t *testing.T) {
	sqlite, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	h := newHarnessWithStore(t, sqlite, corruptListStore{Storage: sqlite, badID: "bad-user"}, alerting.Options{})
	h.addUser(t, "ayse", "chat-1", loc(1))
	h.source.set(1, heat())

	report, err := h.agg.RunCycle(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.UsersProcessed)
	assert.Equal(t, 1, report.UsersAlerted)
	assert.Equal(t, 1, report.UsersSkipped)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "bad-user", report.Errors[0].UserID)
	assert.Equal(t, "load", report.Errors[0].Stage)
	assert.Contains(t, report.Errors[0].Err, "forty")
	assert.Len(t, h.notifier.messages(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CyclesTotal.WithLabelValues("completed")))
}

func TestRunCycle_VanishedUserCountedOnlyAsSkipped(t *testing.T) {
	sqlite, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	h := newHarnessWithStore(t, sqlite, vanishingStore{Storage: sqlite}, alerting.Options{})
	h.addUser(t, "ayse", "chat-1", loc(1))
	h.source.set(1, heat())

	report, err := h.agg.RunCycle(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 0, report.UsersProcessed)
	assert.Equal(t, 1, report.UsersSkipped)
	assert.Empty(t, report.Errors)
	assert.Empty(t, h.notifier.messages())
}

func TestRunCycle_MalformedTimestampFailsOpen(t *testing.T) {
	h := newHarness(t, alerting.Options{})
	ctx := context.Background()
	u := h.addUser(t, "ayse", "chat-1", loc(1))
	require.NoError(t, h.store.RecordAlert(ctx, u.ID, t0, []hazard.Kind{hazard.KindExtremeHeat}, "Extreme Heat (41°C)"))
	require.NoError(t, h.store.SetLastAlertAt(ctx, u.ID, "06/01/2024 noon"))
	h.source.set(1, heat())

	report, err := h.agg.RunCycle(ctx, t0.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, report.UsersAlerted)
	assert.Equal(t, "2024-06-01T12:05:00Z", h.user(t, u.ID).LastAlertAt)
}

func TestRunCycle_OverlappingCycleRejected(t *testing.T) {
	h := newHarness(t, alerting.Options{})
	h.addUser(t, "ayse", "chat-1", loc(1))
	h.source.set(1, heat())
	h.source.started = make(chan struct{}, 1)
	h.source.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.agg.RunCycle(context.Background(), t0)
		done <- err
	}()

	<-h.source.started
	_, err := h.agg.RunCycle(context.Background(), t0)
	assert.ErrorIs(t, err, alerting.ErrCycleInProgress)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CycleRunning))

	close(h.source.gate)
	require.NoError(t, <-done)
	assert.Len(t, h.notifier.messages(), 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.CycleRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CyclesTotal.WithLabelValues("skipped")))

	h.source.started = nil
	_, err = h.agg.RunCycle(context.Background(), t0.Add(time.Minute))
	assert.NoError(t, err)
}

func TestRunCycle_ParallelUsers(t *testing.T) {
	h := newHarness(t, alerting.Options{Concurrency: 4})
	for i := 0; i < 20; i++ {
		lat := float64(i + 1)
		h.addUser(t, fmt.Sprintf("user%02d", i), fmt.Sprintf("chat-%d", i), loc(lat))
		h.source.set(lat, heat())
	}

	report, err := h.agg.RunCycle(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 20, report.UsersProcessed)
	assert.Equal(t, 20, report.UsersAlerted)
	assert.Len(t, h.notifier.messages(), 20)

	users, err := h.store.ListUsers(context.Background())
	require.NoError(t, err)
	for _, u := range users {
		assert.Equal(t, "2024-06-01T12:00:00Z", u.LastAlertAt, u.Username)
	}
}

func TestRunCycle_CancelledContext(t *testing.T) {
	h := newHarness(t, alerting.Options{})
	h.addUser(t, "ayse", "chat-1", loc(1))
	h.source.set(1, heat())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.agg.RunCycle(ctx, t0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.notifier.messages())
}

func TestRunCycle_CustomPolicy(t *testing.T) {
	policy := hazard.DefaultPolicy()
	policy.ExtremeHeatC = 30
	h := newHarness(t, alerting.Options{Policy: &policy})
	h.addUser(t, "ayse", "chat-1", loc(1))
	h.source.set(1, hazard.Snapshot{TemperatureC: hazard.Float(32)})

	report, err := h.agg.RunCycle(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.UsersAlerted)
	assert.Equal(t, 30.0, h.agg.Policy().ExtremeHeatC)
}
