package alerting

import (
	"time"

	"github.com/ogulcanaydogan/aeris/pkg/hazard"
	"github.com/ogulcanaydogan/aeris/pkg/model"
)

// DefaultThrottleWindow is how long a sent alert suppresses repeats of the same kinds.
const DefaultThrottleWindow = 240 * time.Minute

// ShouldSuppress reports whether an alert with newKinds should be withheld for
// user at now. Within window of the last alert, a set of kinds that adds nothing
// new is suppressed. A missing or unparseable timestamp never suppresses.
func ShouldSuppress(newKinds []hazard.Kind, user *model.User, now time.Time, window time.Duration) bool {
	if user.LastAlertAt == "" {
		return false
	}
	last, err := model.ParseAlertTime(user.LastAlertAt)
	if err != nil {
		return false
	}
	if now.Sub(last) >= window {
		return false
	}
	return hazard.Subset(newKinds, user.LastAlertReasons)
}
