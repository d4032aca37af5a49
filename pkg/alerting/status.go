package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/ogulcanaydogan/aeris/pkg/model"
)

// Next-check display values.
const (
	NextCheckSoon    = "soon"
	NextCheckUnknown = "unknown"
)

// Status reports the alert state of a user and when the throttle next lets a
// repeat alert through.
func (a *Aggregator) Status(ctx context.Context, id string, now time.Time) (model.AlertStatus, error) {
	u, err := a.store.GetUser(ctx, id)
	if err != nil {
		return model.AlertStatus{}, err
	}
	return StatusFor(u, now, a.window), nil
}

// StatusFor computes the alert status of u at now for the given throttle window.
func StatusFor(u *model.User, now time.Time, window time.Duration) model.AlertStatus {
	st := model.AlertStatus{
		Linked:           u.Linked(),
		LastAlertAt:      u.LastAlertAt,
		LastAlertReasons: u.LastAlertReasons,
		LastAlertSummary: u.LastAlertSummary,
		NextCheck:        NextCheckUnknown,
	}
	if u.LastAlertAt == "" {
		return st
	}

	last, err := model.ParseAlertTime(u.LastAlertAt)
	if err != nil {
		st.NextCheck = NextCheckSoon
		return st
	}

	next := last.Add(window)
	st.NextCheckAt = &next
	st.NextCheck = formatRemaining(next.Sub(now))
	return st
}

// formatRemaining renders a positive duration as "in Xh Ym", truncated to the
// minute. Anything under a minute or already elapsed is "soon".
func formatRemaining(d time.Duration) string {
	if d < time.Minute {
		return NextCheckSoon
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("in %dh %dm", hours, minutes)
}
