package runner

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/desaops/fleetscan/pkg/config"
	"github.com/desaops/fleetscan/pkg/feed"
	"github.com/desaops/fleetscan/pkg/fsutil"
)

// RunIDFormat is the timestamp layout for derived run identifiers.
// It sorts lexicographically by start time.
const RunIDFormat = "20060102-150405"

// LatestFeedName is the convenience feed filename kept in the output
// base and in the publish directory.
const LatestFeedName = "map_status_latest.json"

// RunContext owns one scan execution's identity and output location.
type RunContext struct {
	ID        string
	Dir       string
	StartedAt time.Time
}

// FeedPath returns the canonical status feed path for this run.
func (rc *RunContext) FeedPath() string {
	return filepath.Join(rc.Dir, "map_status_"+rc.ID+".json")
}

// ArchivePath returns the run archive path (next to the run directory).
func (rc *RunContext) ArchivePath() string {
	return rc.Dir + ".zip"
}

// Manager writes one run's artifact set.
type Manager struct {
	log logrus.FieldLogger
	cfg *config.Config
}

// NewManager creates a run manager.
func NewManager(log logrus.FieldLogger, cfg *config.Config) *Manager {
	return &Manager{
		log: log.WithField("component", "runner"),
		cfg: cfg,
	}
}

// Begin allocates the run directory and derives the run identifier when
// none is configured.
func (m *Manager) Begin() (*RunContext, error) {
	now := time.Now()

	runID := m.cfg.Output.RunID
	if runID == "" {
		runID = now.UTC().Format(RunIDFormat)
	}

	dir := filepath.Join(m.cfg.Output.Dir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"run_id": runID,
		"dir":    dir,
	}).Info("Run started")

	return &RunContext{ID: runID, Dir: dir, StartedAt: now}, nil
}

// Finalize writes the run's artifact set: always the canonical JSON
// status feed, then the requested failure views, the latest-feed copies,
// the publish copy, and the optional archive. The canonical feed is
// written atomically so no reader ever sees a partial document.
func (m *Manager) Finalize(rc *RunContext, records []feed.StatusRecord) error {
	sortRecords(records)

	feedPath := rc.FeedPath()
	if err := feed.Write(feedPath, records); err != nil {
		return fmt.Errorf("writing canonical feed: %w", err)
	}

	failures := feed.Failures(records)

	if m.cfg.Output.WriteTXT {
		path := filepath.Join(rc.Dir, "failures_"+rc.ID+".txt")
		if err := writeFailureReport(path, rc, records, failures); err != nil {
			return fmt.Errorf("writing failure report: %w", err)
		}
	}

	if m.cfg.Output.WriteCSV {
		path := filepath.Join(rc.Dir, "failures_"+rc.ID+".csv")
		if err := writeFailureCSV(path, failures); err != nil {
			return fmt.Errorf("writing failure CSV: %w", err)
		}
	}

	// Convenience copy in the output base so dashboards can poll a
	// fixed path.
	latest := filepath.Join(m.cfg.Output.Dir, LatestFeedName)
	if err := fsutil.CopyFileAtomic(feedPath, latest); err != nil {
		return fmt.Errorf("updating latest feed: %w", err)
	}

	if m.cfg.Output.PublishDir != "" {
		if err := m.publish(feedPath); err != nil {
			return err
		}
	}

	if m.cfg.Output.ZipRun {
		if err := m.archive(rc); err != nil {
			return err
		}
	}

	m.log.WithFields(logrus.Fields{
		"run_id":   rc.ID,
		"sites":    len(records),
		"failures": len(failures),
	}).Info("Run finalized")

	return nil
}

// publish copies the canonical feed into the publish directory with
// temp-then-rename discipline, so a concurrent reader never observes a
// partially written feed.
func (m *Manager) publish(feedPath string) error {
	if err := os.MkdirAll(m.cfg.Output.PublishDir, 0o755); err != nil {
		return fmt.Errorf("creating publish directory: %w", err)
	}

	dst := filepath.Join(m.cfg.Output.PublishDir, LatestFeedName)
	if err := fsutil.CopyFileAtomic(feedPath, dst); err != nil {
		return fmt.Errorf("publishing feed: %w", err)
	}

	m.log.WithField("path", dst).Info("Feed published")

	return nil
}

// archive compresses the run directory and, when configured, removes the
// uncompressed directory. The archive is verified readable before
// anything is deleted.
func (m *Manager) archive(rc *RunContext) error {
	archivePath := rc.ArchivePath()

	if err := fsutil.ZipDir(rc.Dir, archivePath); err != nil {
		return fmt.Errorf("archiving run directory: %w", err)
	}

	if err := fsutil.VerifyZip(archivePath); err != nil {
		return fmt.Errorf("verifying run archive: %w", err)
	}

	m.log.WithField("archive", archivePath).Info("Run directory archived")

	if m.cfg.Output.RemoveRunDir {
		if err := os.RemoveAll(rc.Dir); err != nil {
			return fmt.Errorf("removing run directory: %w", err)
		}

		m.log.WithField("dir", rc.Dir).Info("Run directory removed")
	}

	return nil
}

// writeFailureReport writes the human-readable failure summary.
func writeFailureReport(path string, rc *RunContext, all, failures []feed.StatusRecord) error {
	var b strings.Builder

	fmt.Fprintf(&b, "fleetscan failure report\n")
	fmt.Fprintf(&b, "run:      %s\n", rc.ID)
	fmt.Fprintf(&b, "started:  %s\n", rc.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "sites:    %d\n", len(all))
	fmt.Fprintf(&b, "failures: %d\n\n", len(failures))

	for _, r := range failures {
		fmt.Fprintf(&b, "%-12s %-8s server=%s gateway=%s %s %s\n",
			r.Site, strings.ToUpper(string(r.Status)), r.ServerIP, r.GatewayIP, r.City, r.State)
	}

	return fsutil.WriteFileAtomic(path, []byte(b.String()), 0o644)
}

// writeFailureCSV writes the tabular failure view.
func writeFailureCSV(path string, failures []feed.StatusRecord) error {
	var b strings.Builder

	w := csv.NewWriter(&b)

	if err := w.Write([]string{
		"site", "dc_code", "dc_name", "server_ip", "gateway_ip",
		"server_up", "gateway_up", "status", "status_code", "city", "state",
	}); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	for _, r := range failures {
		if err := w.Write([]string{
			r.Site, r.DCCode, r.DCName, r.ServerIP, r.GatewayIP,
			strconv.FormatBool(r.ServerUp), strconv.FormatBool(r.GatewayUp),
			string(r.Status), strconv.Itoa(r.StatusCode), r.City, r.State,
		}); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}

	return fsutil.WriteFileAtomic(path, []byte(b.String()), 0o644)
}

var leadingDigits = regexp.MustCompile(`^(\d+)`)

// sortRecords orders records by numeric site prefix, then lexically, so
// artifacts are deterministic regardless of probe completion order.
func sortRecords(records []feed.StatusRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		ni, oki := sitePrefix(records[i].Site)
		nj, okj := sitePrefix(records[j].Site)

		switch {
		case oki && okj && ni != nj:
			return ni < nj
		case oki != okj:
			return oki
		default:
			return records[i].Site < records[j].Site
		}
	})
}

func sitePrefix(site string) (int64, bool) {
	m := leadingDigits.FindStringSubmatch(site)
	if m == nil {
		return 0, false
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}

	return n, true
}
