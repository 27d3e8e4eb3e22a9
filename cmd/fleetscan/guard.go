package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/desaops/fleetscan/pkg/guard"
)

var guardCmd = &cobra.Command{
	Use:   "guard <path> [path...]",
	Short: "Check artifacts for internal data before publication",
	Long: `Scan files or directories for anything that looks like internal
fleet data: private IP addresses, real site numbers, real datacenter
codes, or overly precise coordinates. Any finding, including a file
that cannot be read or parsed, fails the check.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGuard,
}

func init() {
	rootCmd.AddCommand(guardCmd)
}

func runGuard(cmd *cobra.Command, args []string) error {
	var findings []guard.Finding

	for _, path := range args {
		findings = append(findings, guard.Check(path)...)
	}

	if len(findings) == 0 {
		log.WithField("paths", len(args)).Info("Privacy check passed")

		return nil
	}

	for _, f := range findings {
		log.WithField("path", f.Path).Error(f.Detail)
	}

	return fmt.Errorf("privacy check failed with %d finding(s)", len(findings))
}
