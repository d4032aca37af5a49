package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/ogulcanaydogan/aeris/pkg/hazard"
)

// SendTestAlert sends a fixed test message to a linked user and records it as
// an alert of kind test. Any real hazard afterwards is a new kind and breaks
// through the throttle.
func (a *Aggregator) SendTestAlert(ctx context.Context, id string, now time.Time) error {
	u, err := a.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if !u.Linked() {
		return fmt.Errorf("user %q: %w", u.Username, ErrNotLinked)
	}

	sendCtx, cancel := context.WithTimeout(ctx, a.sendTTL)
	defer cancel()
	if err := a.notifier.Send(sendCtx, u.TelegramChatID, TestMessage); err != nil {
		a.metrics.DispatchErrors.Inc()
		return fmt.Errorf("%w: %w", ErrDispatch, err)
	}
	a.metrics.AlertsSent.Inc()

	if err := a.store.RecordAlert(ctx, u.ID, now, []hazard.Kind{hazard.KindTest}, TestSummary); err != nil {
		return fmt.Errorf("record test alert: %w", err)
	}

	a.logger.Info("test alert sent", "user_id", u.ID, "notifier", a.notifier.Name())
	return nil
}
