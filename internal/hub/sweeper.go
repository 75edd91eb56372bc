package hub

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSpec runs the sweep every 30 seconds.
const DefaultSweepSpec = "@every 30s"

// Sweeper runs Hub.Sweep on a cron schedule.
type Sweeper struct {
	cron *cron.Cron
	hub  *Hub
}

// NewSweeper schedules h.Sweep with spec (standard cron syntax or descriptors such as
// "@every 30s"). Call Start to begin.
func NewSweeper(h *Hub, spec string) (*Sweeper, error) {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if n := h.Sweep(); n > 0 {
			h.logger.Info("hub sweep", slog.Int("removed", n))
		}
	}); err != nil {
		return nil, fmt.Errorf("hub sweep schedule %q: %w", spec, err)
	}
	return &Sweeper{cron: c, hub: h}, nil
}

// Start begins the schedule in its own goroutine.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() { <-s.cron.Stop().Done() }
