package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/desaops/fleetscan/pkg/config"
	"github.com/desaops/fleetscan/pkg/metrics"
	"github.com/desaops/fleetscan/pkg/probe"
	"github.com/desaops/fleetscan/pkg/registry"
	"github.com/desaops/fleetscan/pkg/runner"
	"github.com/desaops/fleetscan/pkg/scanner"
)

var (
	scanDCCSV        string
	scanGatewayCheck bool
	scanTimeoutMS    int
	scanRetryPings   int
	scanMaxWorkers   int
	scanRateLimit    float64
	scanOutputDir    string
	scanPublishDir   string
	scanRunID        string
	scanWriteTXT     bool
	scanWriteCSV     bool
	scanZipRun       bool
	scanRemoveRunDir bool
	scanQuiet        bool
	scanLoop         bool
	scanIntervalSecs int
	scanMetricsAddr  string
)

var scanCmd = &cobra.Command{
	Use:   "scan [sites-csv]",
	Short: "Scan the fleet and write the status feed",
	Long: `Probe every site in the list, classify each into green, yellow, or
red, and write the run's artifact set. With --loop, repeat on an
interval until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanDCCSV, "dc-csv", "", "datacenter list CSV path (code, city)")
	scanCmd.Flags().BoolVar(&scanGatewayCheck, "gateway-check", false, "also probe each site's gateway")
	scanCmd.Flags().IntVar(&scanTimeoutMS, "timeout-ms", config.DefaultTimeoutMS, "per-probe-attempt timeout in milliseconds")
	scanCmd.Flags().IntVar(&scanRetryPings, "retry-pings", config.DefaultRetryPings, "retry attempts after a failed initial probe")
	scanCmd.Flags().IntVar(&scanMaxWorkers, "max-workers", config.DefaultWorkers, "scan worker pool size")
	scanCmd.Flags().Float64Var(&scanRateLimit, "rate-limit", 0, "max probe starts per second (0 = unlimited)")
	scanCmd.Flags().StringVar(&scanOutputDir, "output-dir", config.DefaultOutputDir, "directory for run artifacts")
	scanCmd.Flags().StringVar(&scanPublishDir, "publish-dir", "", "publish the live feed to this directory")
	scanCmd.Flags().StringVar(&scanRunID, "run-id", "", "run identifier override (default: timestamp)")
	scanCmd.Flags().BoolVar(&scanWriteTXT, "write-txt", false, "also write the failure text report")
	scanCmd.Flags().BoolVar(&scanWriteCSV, "write-csv", false, "also write the failure CSV")
	scanCmd.Flags().BoolVar(&scanZipRun, "zip-run", false, "compress the run directory after finalize")
	scanCmd.Flags().BoolVar(&scanRemoveRunDir, "remove-run-folder-after-zip", false, "delete the uncompressed run directory once the archive verifies")
	scanCmd.Flags().BoolVar(&scanQuiet, "quiet", false, "less console output")
	scanCmd.Flags().BoolVar(&scanLoop, "loop", false, "scan continuously on an interval")
	scanCmd.Flags().IntVar(&scanIntervalSecs, "interval-seconds", config.DefaultIntervalSeconds, "sleep between loop cycles")
	scanCmd.Flags().StringVar(&scanMetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address in loop mode")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	applyScanFlags(cmd, cfg)

	if scanQuiet {
		log.SetLevel(logrus.WarnLevel)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	sitesPath := "stores.csv"
	if len(args) == 1 {
		sitesPath = args[0]
	}

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	prober := probe.NewPinger(log, probe.Config{
		Timeout:     cfg.Scan.Timeout(),
		MaxAttempts: cfg.Scan.MaxAttempts(),
		Privileged:  os.Geteuid() == 0,
	})

	scan := scanner.New(log, scanner.Config{
		Workers:       cfg.Scan.Workers,
		GatewayCheck:  cfg.Scan.GatewayCheck,
		RateLimit:     cfg.Scan.RateLimit,
		ProgressEvery: cfg.Scan.ProgressEvery,
	}, prober)

	mgr := runner.NewManager(log, cfg)

	cycle := func(ctx context.Context) error {
		sites, err := registry.Load(log, sitesPath, scanDCCSV)
		if err != nil {
			return fmt.Errorf("loading site registry: %w", err)
		}

		rc, err := mgr.Begin()
		if err != nil {
			return fmt.Errorf("starting run: %w", err)
		}

		records := scan.Scan(ctx, rc.ID, sites)

		// A cancelled cycle produces no artifacts: the set is either
		// complete or absent.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := mgr.Finalize(rc, records); err != nil {
			return fmt.Errorf("finalizing run: %w", err)
		}

		return nil
	}

	if cfg.Loop.Enabled {
		if cfg.Loop.MetricsAddr != "" {
			srv := metrics.Serve(log, cfg.Loop.MetricsAddr)
			defer srv.Shutdown(context.Background()) //nolint:errcheck // shutdown on exit

			log.WithField("addr", cfg.Loop.MetricsAddr).Info("Metrics server started")
		}

		ctrl := runner.NewController(log, cfg.Loop.Interval(), cycle)

		return ctrl.Run(ctx)
	}

	return cycle(ctx)
}

// applyScanFlags merges CLI flags into the loaded config; flags the user
// set explicitly win over file and environment values.
func applyScanFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("gateway-check") {
		cfg.Scan.GatewayCheck = scanGatewayCheck
	}

	if flags.Changed("timeout-ms") {
		cfg.Scan.TimeoutMS = scanTimeoutMS
	}

	if flags.Changed("retry-pings") {
		cfg.Scan.RetryPings = scanRetryPings
	}

	if flags.Changed("max-workers") {
		cfg.Scan.Workers = scanMaxWorkers
	}

	if flags.Changed("rate-limit") {
		cfg.Scan.RateLimit = scanRateLimit
	}

	if flags.Changed("output-dir") {
		cfg.Output.Dir = scanOutputDir
	}

	if flags.Changed("publish-dir") {
		cfg.Output.PublishDir = scanPublishDir
	}

	if flags.Changed("run-id") {
		cfg.Output.RunID = scanRunID
	}

	if flags.Changed("write-txt") {
		cfg.Output.WriteTXT = scanWriteTXT
	}

	if flags.Changed("write-csv") {
		cfg.Output.WriteCSV = scanWriteCSV
	}

	if flags.Changed("zip-run") {
		cfg.Output.ZipRun = scanZipRun
	}

	if flags.Changed("remove-run-folder-after-zip") {
		cfg.Output.RemoveRunDir = scanRemoveRunDir
	}

	if flags.Changed("loop") {
		cfg.Loop.Enabled = scanLoop
	}

	if flags.Changed("interval-seconds") {
		cfg.Loop.IntervalSeconds = scanIntervalSecs
	}

	if flags.Changed("metrics-addr") {
		cfg.Loop.MetricsAddr = scanMetricsAddr
	}
}
