package alerting

import (
	"strings"

	"github.com/ogulcanaydogan/aeris/pkg/hazard"
)

const (
	alertHeader = "🚨 Weather Alert from Aeris AI"
	alertFooter = "Stay safe. Check the dashboard for details."

	// TestMessage is the body of a manually triggered test alert.
	TestMessage = "✅ This is a test alert from Aeris AI!"
	// TestSummary is stored as the summary of a test alert.
	TestSummary = "Test Alert"
)

// ComposeMessage builds the single aggregated message for a set of reasons.
func ComposeMessage(reasons []hazard.Reason) string {
	var b strings.Builder
	b.WriteString(alertHeader)
	b.WriteString("\n\n")
	for _, r := range reasons {
		b.WriteString("- ")
		b.WriteString(r.Text)
		b.WriteString("\n")
	}
	b.WriteString(alertFooter)
	return b.String()
}

// Summary joins reason texts for display.
func Summary(reasons []hazard.Reason) string {
	return strings.Join(hazard.Texts(reasons), ", ")
}
