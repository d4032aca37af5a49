package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var notifiersCmd = &cobra.Command{
	Use:   "notifiers",
	Short: "Inspect notification channels",
}

var notifiersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured notification channels",
	RunE:  runNotifiersList,
}

func init() {
	rootCmd.AddCommand(notifiersCmd)
	notifiersCmd.AddCommand(notifiersListCmd)
}

func runNotifiersList(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry, closeNotifiers, err := initNotifiers(cfg)
	if err != nil {
		return err
	}
	defer closeNotifiers()

	names := registry.List()
	if len(names) == 0 {
		fmt.Println("No notification channels configured.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "CHANNEL\tACTIVE\n")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%t\n", name, name == cfg.Notify.Channel)
	}
	return w.Flush()
}
