package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ogulcanaydogan/aeris/pkg/model"
	"github.com/spf13/cobra"
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run alert cycles by hand",
}

var cycleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one alert cycle now and print the report",
	RunE:  runCycleRun,
}

func init() {
	rootCmd.AddCommand(cycleCmd)
	cycleCmd.AddCommand(cycleRunCmd)
}

func runCycleRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := initComponents(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	report, err := c.aggregator.RunCycle(cmd.Context(), time.Now())
	if err != nil {
		return err
	}

	printReport(report)
	return nil
}

func printReport(r model.CycleReport) {
	fmt.Printf("=== Alert Cycle (%s) ===\n", r.StartedAt.Format(time.RFC3339))
	fmt.Printf("Duration:    %s\n", r.Duration().Round(time.Millisecond))
	fmt.Printf("Processed:   %d\n", r.UsersProcessed)
	fmt.Printf("Alerted:     %d\n", r.UsersAlerted)
	fmt.Printf("Suppressed:  %d\n", r.UsersSuppressed)
	fmt.Printf("Clear:       %d\n", r.UsersClear)
	fmt.Printf("Skipped:     %d\n", r.UsersSkipped)

	if len(r.Errors) > 0 {
		fmt.Printf("\nErrors:\n")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  USER\tSTAGE\tERROR\n")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s\t%s\t%s\n", e.UserID, e.Stage, e.Err)
		}
		w.Flush()
	}
}
