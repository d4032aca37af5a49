package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ogulcanaydogan/aeris/internal/observability"
	"github.com/ogulcanaydogan/aeris/pkg/hazard"
	"github.com/ogulcanaydogan/aeris/pkg/model"
	"github.com/ogulcanaydogan/aeris/pkg/notify"
	"github.com/ogulcanaydogan/aeris/pkg/storage"
	"github.com/ogulcanaydogan/aeris/pkg/weather"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrCycleInProgress is returned when a cycle is triggered while another runs.
	ErrCycleInProgress = errors.New("alert cycle already in progress")
	// ErrNotLinked is returned when a user has no notification endpoint.
	ErrNotLinked = errors.New("user has no notification endpoint")
	// ErrDispatch wraps notifier failures surfaced to callers.
	ErrDispatch = errors.New("alert dispatch failed")
)

// stageLoad marks a failure re-reading the user record before dispatch.
const stageLoad = "load"

// Options tunes an Aggregator. Zero values fall back to defaults.
type Options struct {
	// Policy defaults to hazard.DefaultPolicy when nil.
	Policy         *hazard.Policy
	ThrottleWindow time.Duration
	Concurrency    int
	FetchTimeout   time.Duration
	SendTimeout    time.Duration
	Clock          clockwork.Clock
	Metrics        *observability.Metrics
}

// Aggregator runs alert cycles: for every eligible user it fetches conditions,
// evaluates them, applies the throttle, dispatches one message and records the
// new alert state. Failures are isolated per user.
type Aggregator struct {
	store    storage.Storage
	source   weather.Source
	notifier notify.Notifier
	policy   hazard.Policy
	window   time.Duration
	workers  int
	fetchTTL time.Duration
	sendTTL  time.Duration
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger

	running sync.Mutex
}

// NewAggregator wires an aggregator over a store, weather source and notifier.
func NewAggregator(store storage.Storage, source weather.Source, notifier notify.Notifier, opts Options, logger *slog.Logger) *Aggregator {
	policy := hazard.DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	if opts.ThrottleWindow <= 0 {
		opts.ThrottleWindow = DefaultThrottleWindow
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = weather.DefaultTimeout
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = notify.DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetricsForTesting()
	}
	return &Aggregator{
		store:    store,
		source:   source,
		notifier: notifier,
		policy:   policy,
		window:   opts.ThrottleWindow,
		workers:  opts.Concurrency,
		fetchTTL: opts.FetchTimeout,
		sendTTL:  opts.SendTimeout,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// Window returns the throttle window in effect.
func (a *Aggregator) Window() time.Duration { return a.window }

// Policy returns the threshold policy in effect.
func (a *Aggregator) Policy() hazard.Policy { return a.policy }

// NotifierName returns the name of the configured notifier.
func (a *Aggregator) NotifierName() string { return a.notifier.Name() }

type userOutcome int

const (
	outcomeSkipped userOutcome = iota
	outcomeClear
	outcomeSuppressed
	outcomeAlerted
	outcomeFailed
)

// RunCycle runs one alert cycle at logical time now. Only one cycle runs at a
// time; a concurrent call returns ErrCycleInProgress without doing any work.
// The report is only returned complete when the error is nil.
func (a *Aggregator) RunCycle(ctx context.Context, now time.Time) (model.CycleReport, error) {
	if !a.running.TryLock() {
		a.metrics.CyclesTotal.WithLabelValues(observability.OutcomeSkipped).Inc()
		return model.CycleReport{}, ErrCycleInProgress
	}
	defer a.running.Unlock()

	a.metrics.CycleRunning.Set(1)
	defer a.metrics.CycleRunning.Set(0)

	wallStart := a.clock.Now()
	report := model.CycleReport{StartedAt: now}

	users, err := a.store.ListUsers(ctx)
	corrupt := storage.Partial(err)
	if err != nil && corrupt == nil {
		a.metrics.CyclesTotal.WithLabelValues(observability.OutcomeFailed).Inc()
		return model.CycleReport{}, fmt.Errorf("list users: %w", err)
	}
	if corrupt != nil {
		for _, rec := range corrupt.Records {
			a.logger.Warn("skipping undecodable user record", "user_id", rec.ID, "error", rec.Err)
			report.UsersSkipped++
			report.Errors = append(report.Errors, model.CycleError{UserID: rec.ID, Stage: stageLoad, Err: rec.Err.Error()})
		}
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(a.workers)

	for i := range users {
		u := users[i]
		if !u.Eligible() {
			mu.Lock()
			report.UsersSkipped++
			mu.Unlock()
			continue
		}
		if ctx.Err() != nil {
			break
		}

		mu.Lock()
		report.UsersProcessed++
		mu.Unlock()
		g.Go(func() error {
			outcome, cerr := a.processUser(ctx, &u, now)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeClear:
				report.UsersClear++
			case outcomeSuppressed:
				report.UsersSuppressed++
			case outcomeAlerted:
				report.UsersAlerted++
			case outcomeSkipped:
				report.UsersProcessed--
				report.UsersSkipped++
			}
			if cerr != nil {
				report.Errors = append(report.Errors, *cerr)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = now.Add(a.clock.Since(wallStart))
	a.metrics.CycleDuration.Observe(report.Duration().Seconds())

	if err := ctx.Err(); err != nil {
		a.metrics.CyclesTotal.WithLabelValues(observability.OutcomeFailed).Inc()
		return model.CycleReport{}, fmt.Errorf("alert cycle interrupted: %w", err)
	}

	a.metrics.CyclesTotal.WithLabelValues(observability.OutcomeCompleted).Inc()
	a.logger.Info("alert cycle finished",
		"processed", report.UsersProcessed,
		"alerted", report.UsersAlerted,
		"suppressed", report.UsersSuppressed,
		"clear", report.UsersClear,
		"skipped", report.UsersSkipped,
		"errors", len(report.Errors),
		"duration", report.Duration(),
	)
	return report, nil
}

// processUser runs the per-user pipeline. A panic anywhere in it is recovered
// and reported against the stage it happened in.
func (a *Aggregator) processUser(ctx context.Context, u *model.User, now time.Time) (outcome userOutcome, cerr *model.CycleError) {
	stage := model.StageFetch
	log := a.logger.With("user_id", u.ID)
	a.metrics.UsersEvaluated.Inc()

	defer func() {
		if r := recover(); r != nil {
			log.Error("alert worker panicked", "stage", stage, "panic", r)
			outcome = outcomeFailed
			cerr = &model.CycleError{UserID: u.ID, Stage: stage, Err: fmt.Sprintf("panic: %v", r)}
		}
	}()

	fail := func(err error) (userOutcome, *model.CycleError) {
		log.Warn("alert stage failed", "stage", stage, "error", err)
		return outcomeFailed, &model.CycleError{UserID: u.ID, Stage: stage, Err: err.Error()}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, a.fetchTTL)
	snap, err := a.source.Fetch(fetchCtx, u.Location.Lat, u.Location.Lon)
	cancel()
	if err != nil {
		a.metrics.FetchErrors.Inc()
		return fail(err)
	}

	reasons := a.policy.Evaluate(snap)
	if len(reasons) == 0 {
		log.Debug("conditions clear")
		return outcomeClear, nil
	}
	kinds := hazard.Kinds(reasons)

	// Re-read so the throttle and endpoint reflect writes made since the listing.
	stage = stageLoad
	fresh, err := a.store.GetUser(ctx, u.ID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn("user vanished during cycle")
		return outcomeSkipped, nil
	}
	if err != nil {
		return fail(err)
	}
	if !fresh.Eligible() {
		log.Warn("user no longer eligible")
		return outcomeSkipped, nil
	}

	if ShouldSuppress(kinds, fresh, now, a.window) {
		a.metrics.AlertsSuppressed.Inc()
		log.Info("alert suppressed", "reasons", kinds, "last_alert_at", fresh.LastAlertAt)
		return outcomeSuppressed, nil
	}

	stage = model.StageDispatch
	sendCtx, cancel := context.WithTimeout(ctx, a.sendTTL)
	err = a.notifier.Send(sendCtx, fresh.TelegramChatID, ComposeMessage(reasons))
	cancel()
	if err != nil {
		a.metrics.DispatchErrors.Inc()
		return fail(err)
	}
	a.metrics.AlertsSent.Inc()

	stage = model.StagePersist
	if err := a.store.RecordAlert(ctx, fresh.ID, now, kinds, Summary(reasons)); err != nil {
		_, cerr := fail(err)
		return outcomeAlerted, cerr
	}

	log.Info("alert sent", "reasons", kinds, "notifier", a.notifier.Name())
	return outcomeAlerted, nil
}
