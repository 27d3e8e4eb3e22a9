package runner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/desaops/fleetscan/pkg/metrics"
)

// State is the loop controller's current phase.
type State string

const (
	StateIdle     State = "idle"
	StateScanning State = "scanning"
	StateSleeping State = "sleeping"
	StateStopped  State = "stopped"
)

// Controller repeats a scan cycle on an interval until cancelled.
// Cancellation is observed at the idle and sleeping transitions; a cycle
// already in flight runs to completion so its artifact set stays whole.
type Controller struct {
	log      logrus.FieldLogger
	interval time.Duration
	cycle    func(ctx context.Context) error

	state atomic.Value
}

// NewController creates a loop controller around one scan cycle.
func NewController(log logrus.FieldLogger, interval time.Duration, cycle func(ctx context.Context) error) *Controller {
	c := &Controller{
		log:      log.WithField("component", "loop"),
		interval: interval,
		cycle:    cycle,
	}
	c.state.Store(StateIdle)

	return c
}

// State returns the controller's current phase.
func (c *Controller) State() State {
	return c.state.Load().(State)
}

// Run executes cycles until ctx is cancelled. A failed cycle is logged
// and the loop continues; the next cycle gets a fresh chance.
func (c *Controller) Run(ctx context.Context) error {
	defer c.state.Store(StateStopped)

	for cycleNum := 1; ; cycleNum++ {
		c.state.Store(StateIdle)

		select {
		case <-ctx.Done():
			c.log.Info("Loop cancelled")

			return nil
		default:
		}

		c.state.Store(StateScanning)

		start := time.Now()

		if err := c.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				c.log.Info("Loop cancelled during cycle")

				return nil
			}

			c.log.WithError(err).WithField("cycle", cycleNum).Error("Cycle failed")
		} else {
			metrics.ScanCycles.Inc()
			metrics.CycleDuration.Observe(time.Since(start).Seconds())
		}

		c.state.Store(StateSleeping)

		c.log.WithFields(logrus.Fields{
			"cycle":    cycleNum,
			"interval": c.interval,
		}).Debug("Sleeping until next cycle")

		timer := time.NewTimer(c.interval)

		select {
		case <-ctx.Done():
			timer.Stop()
			c.log.Info("Loop cancelled while sleeping")

			return nil
		case <-timer.C:
		}
	}
}
