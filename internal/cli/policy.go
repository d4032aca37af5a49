package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect the hazard threshold policy",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the threshold policy in effect as YAML",
	RunE:  runPolicyShow,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyShowCmd)
}

func runPolicyShow(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := loadPolicy(cfg)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	fmt.Print(string(out))
	return nil
}
