package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/desaops/fleetscan/pkg/feed"
	"github.com/desaops/fleetscan/pkg/sanitize"
)

var (
	sanitizeInput  string
	sanitizeOutput string
	sanitizeRunID  string
)

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize",
	Short: "Produce a shareable copy of a status feed",
	Long: `Rewrite a status feed so that nothing in it identifies the real
fleet: site numbers, datacenter codes and names, IP addresses, and the
run identifier are all replaced with stable synthetic values, and
coordinates are truncated. The transformation is one-way.`,
	RunE: runSanitize,
}

func init() {
	rootCmd.AddCommand(sanitizeCmd)

	sanitizeCmd.Flags().StringVar(&sanitizeInput, "input", filepath.Join("logs", "map_status_latest.json"), "status feed to sanitize")
	sanitizeCmd.Flags().StringVar(&sanitizeOutput, "output", filepath.Join("sample_data", "map_status_sample.json"), "where to write the sanitized feed")
	sanitizeCmd.Flags().StringVar(&sanitizeRunID, "run-id", sanitize.DefaultRunID, "run identifier stamped on sanitized rows")
}

func runSanitize(cmd *cobra.Command, args []string) error {
	records, err := feed.Read(sanitizeInput)
	if err != nil {
		return fmt.Errorf("reading feed: %w", err)
	}

	out := sanitize.Records(records, sanitizeRunID)

	if dir := filepath.Dir(sanitizeOutput); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	if err := feed.Write(sanitizeOutput, out); err != nil {
		return fmt.Errorf("writing sanitized feed: %w", err)
	}

	log.WithFields(logrus.Fields{
		"input":  sanitizeInput,
		"output": sanitizeOutput,
		"rows":   len(out),
	}).Info("Sanitized feed written")

	return nil
}
