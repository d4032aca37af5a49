package alerting_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ogulcanaydogan/aeris/internal/observability"
	"github.com/ogulcanaydogan/aeris/pkg/alerting"
	"github.com/ogulcanaydogan/aeris/pkg/hazard"
	"github.com/ogulcanaydogan/aeris/pkg/model"
	"github.com/ogulcanaydogan/aeris/pkg/storage"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource serves snapshots keyed by latitude.
type fakeSource struct {
	mu     sync.Mutex
	snaps  map[float64]hazard.Snapshot
	errs   map[float64]error
	panics map[float64]bool
	calls  int

	// started, when set, receives once per call before gate is awaited.
	started chan struct{}
	gate    chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		snaps:  make(map[float64]hazard.Snapshot),
		errs:   make(map[float64]error),
		panics: make(map[float64]bool),
	}
}

func (s *fakeSource) set(lat float64, snap hazard.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[lat] = snap
	delete(s.errs, lat)
}

func (s *fakeSource) fail(lat float64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[lat] = err
}

func (s *fakeSource) Fetch(ctx context.Context, lat, _ float64) (hazard.Snapshot, error) {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return hazard.Snapshot{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.panics[lat] {
		panic("malformed upstream payload")
	}
	if err := s.errs[lat]; err != nil {
		return hazard.Snapshot{}, err
	}
	return s.snaps[lat], nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type sentMessage struct {
	Endpoint string
	Text     string
}

// fakeNotifier records deliveries and fails for configured endpoints.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	errs map[string]error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{errs: make(map[string]error)}
}

func (n *fakeNotifier) Name() string { return "fake" }

func (n *fakeNotifier) Send(_ context.Context, endpoint, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.errs[endpoint]; err != nil {
		return err
	}
	n.sent = append(n.sent, sentMessage{Endpoint: endpoint, Text: text})
	return nil
}

func (n *fakeNotifier) failFor(endpoint string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err == nil {
		delete(n.errs, endpoint)
		return
	}
	n.errs[endpoint] = err
}

func (n *fakeNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

// failingRecordStore fails RecordAlert but otherwise delegates.
type failingRecordStore struct {
	storage.Storage
}

func (failingRecordStore) RecordAlert(context.Context, string, time.Time, []hazard.Kind, string) error {
	return errors.New("disk full")
}

// failingListStore fails the user listing.
type failingListStore struct {
	storage.Storage
}

func (failingListStore) ListUsers(context.Context) ([]model.User, error) {
	return nil, errors.New("database is locked")
}

type harness struct {
	store    *storage.SQLite
	source   *fakeSource
	notifier *fakeNotifier
	metrics  *observability.Metrics
	agg      *alerting.Aggregator
}

func newHarness(t *testing.T, opts alerting.Options) *harness {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return newHarnessWithStore(t, store, store, opts)
}

func newHarnessWithStore(t *testing.T, sqlite *storage.SQLite, store storage.Storage, opts alerting.Options) *harness {
	t.Helper()
	h := &harness{
		store:    sqlite,
		source:   newFakeSource(),
		notifier: newFakeNotifier(),
		metrics:  observability.NewMetricsForTesting(),
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewFakeClockAt(t0)
	}
	opts.Metrics = h.metrics
	h.agg = alerting.NewAggregator(store, h.source, h.notifier, opts, discardLogger())
	return h
}

func (h *harness) addUser(t *testing.T, username, chat string, loc *model.Location) *model.User {
	t.Helper()
	u := &model.User{Username: username, TelegramChatID: chat, Location: loc}
	require.NoError(t, h.store.CreateUser(context.Background(), u))
	return u
}

func (h *harness) user(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := h.store.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func loc(lat float64) *model.Location {
	return &model.Location{Lat: lat, Lon: 29}
}

func heat() hazard.Snapshot {
	return hazard.Snapshot{TemperatureC: hazard.Float(41)}
}

// vanishingStore reports every user as deleted on re-read.
type vanishingStore struct {
	storage.Storage
}

func (vanishingStore) GetUser(context.Context, string) (*model.User, error) {
	return nil, storage.ErrNotFound
}

// corruptListStore lists the wrapped users plus one undecodable record.
type corruptListStore struct {
	storage.Storage
	badID string
}

func (s corruptListStore) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.Storage.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return users, &storage.CorruptRecordsError{Records: []storage.RecordError{
		{ID: s.badID, Err: errors.New(`age: strconv.Atoi: parsing "forty": invalid syntax`)},
	}}
}
