package scanner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/desaops/fleetscan/pkg/classify"
	"github.com/desaops/fleetscan/pkg/feed"
	"github.com/desaops/fleetscan/pkg/metrics"
	"github.com/desaops/fleetscan/pkg/probe"
	"github.com/desaops/fleetscan/pkg/registry"
)

// Config holds scheduler settings.
type Config struct {
	// Workers is the worker pool size.
	Workers int

	// GatewayCheck enables the independent gateway probe per site.
	GatewayCheck bool

	// RateLimit caps probe starts per second across all workers.
	// Zero means unlimited.
	RateLimit float64

	// ProgressEvery is how many completed sites between progress logs.
	// Zero disables progress logging.
	ProgressEvery int
}

// Scanner drives a bounded worker pool of probes across a site list.
type Scanner struct {
	log     logrus.FieldLogger
	cfg     Config
	prober  probe.Prober
	limiter *rate.Limiter
}

// New creates a scanner. Workers below 1 are clamped to 1.
func New(log logrus.FieldLogger, cfg Config, prober probe.Prober) *Scanner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Workers)
	}

	return &Scanner{
		log:     log.WithField("component", "scanner"),
		cfg:     cfg,
		prober:  prober,
		limiter: limiter,
	}
}

// Scan probes every site and returns exactly one StatusRecord per site.
// Probe failure is data, never a scan error; record order is not
// guaranteed to match the input.
func (s *Scanner) Scan(ctx context.Context, runID string, sites []registry.Site) []feed.StatusRecord {
	if len(sites) == 0 {
		return []feed.StatusRecord{}
	}

	start := time.Now()
	results := make(chan feed.StatusRecord, len(sites))

	var completed atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for _, site := range sites {
		site := site
		g.Go(func() error {
			results <- s.scanSite(gCtx, runID, site)

			done := completed.Add(1)
			if s.cfg.ProgressEvery > 0 && done%int64(s.cfg.ProgressEvery) == 0 {
				s.log.WithFields(logrus.Fields{
					"done":  done,
					"total": len(sites),
				}).Info("Scan progress")
			}

			return nil
		})
	}

	// Workers never return errors; Wait only synchronizes.
	_ = g.Wait()
	close(results)

	records := make([]feed.StatusRecord, 0, len(sites))
	for r := range results {
		records = append(records, r)
		metrics.SitesByStatus.WithLabelValues(string(r.Status)).Inc()
	}

	s.log.WithFields(logrus.Fields{
		"sites":   len(records),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("Scan complete")

	return records
}

// scanSite probes one site's server and, when enabled and present, its
// gateway. The two probes run concurrently, each within its own
// timeout-and-retries budget; the record is emitted only after both
// reach a terminal outcome.
func (s *Scanner) scanSite(ctx context.Context, runID string, site registry.Site) feed.StatusRecord {
	gatewayChecked := s.cfg.GatewayCheck && site.GatewayIP != ""

	var serverOut, gatewayOut probe.Outcome

	probes, pCtx := errgroup.WithContext(ctx)

	probes.Go(func() error {
		serverOut = s.probeOne(pCtx, site.ServerIP)

		return nil
	})

	if gatewayChecked {
		probes.Go(func() error {
			gatewayOut = s.probeOne(pCtx, site.GatewayIP)

			return nil
		})
	}

	_ = probes.Wait()

	status := classify.Classify(serverOut.Reachable, gatewayOut.Reachable, gatewayChecked)

	return feed.StatusRecord{
		Timestamp:  time.Now(),
		RunID:      runID,
		Site:       site.ID,
		DCCode:     site.DCCode,
		DCName:     site.DCName,
		ServerIP:   site.ServerIP,
		GatewayIP:  site.GatewayIP,
		ServerUp:   serverOut.Reachable,
		GatewayUp:  gatewayOut.Reachable,
		Status:     status,
		StatusCode: status.Code(),
		Latitude:   site.Latitude,
		Longitude:  site.Longitude,
		City:       site.City,
		State:      site.State,
	}
}

func (s *Scanner) probeOne(ctx context.Context, addr string) probe.Outcome {
	if s.limiter != nil {
		// A cancelled wait falls through to the probe, which observes
		// the same context and returns immediately.
		_ = s.limiter.Wait(ctx)
	}

	metrics.Probes.Inc()

	return s.prober.Probe(ctx, addr)
}
