package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/ogulcanaydogan/aeris/internal/config"
	"github.com/ogulcanaydogan/aeris/pkg/account"
	"github.com/ogulcanaydogan/aeris/pkg/alerting"
	"github.com/ogulcanaydogan/aeris/pkg/hazard"
	"github.com/spf13/cobra"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Inspect and test per-user alerts",
}

var alertsStatusCmd = &cobra.Command{
	Use:   "status <username>",
	Short: "Show the last alert and next check for a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertsStatus,
}

var alertsTestCmd = &cobra.Command{
	Use:   "test <username>",
	Short: "Send a test alert to a linked user",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertsTest,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsStatusCmd)
	alertsCmd.AddCommand(alertsTestCmd)
}

func runAlertsStatus(cmd *cobra.Command, args []string) error {
	return withStore(cmd.Context(), func(cfg *config.Config, accounts *account.Service) error {
		u, err := accounts.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		st := alerting.StatusFor(u, time.Now(), cfg.Alerts.ThrottleWindow)

		fmt.Printf("User:        %s\n", u.Username)
		fmt.Printf("Linked:      %t\n", st.Linked)
		if st.LastAlertAt == "" {
			fmt.Printf("Last alert:  never\n")
		} else {
			fmt.Printf("Last alert:  %s\n", st.LastAlertAt)
			fmt.Printf("Reasons:     %s\n", joinKinds(st.LastAlertReasons))
			fmt.Printf("Summary:     %s\n", st.LastAlertSummary)
		}
		fmt.Printf("Next check:  %s\n", st.NextCheck)
		return nil
	})
}

func runAlertsTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := initComponents(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	u, err := c.accounts.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := c.aggregator.SendTestAlert(cmd.Context(), u.ID, time.Now()); err != nil {
		return err
	}

	fmt.Printf("Test alert sent to %s via %s\n", u.Username, c.aggregator.NotifierName())
	return nil
}

func joinKinds(kinds []hazard.Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}
