// Package scheduler runs the periodic catalog scan on a cron schedule,
// replacing the teacher's internal/watcher ticker with robfig/cron/v3 so
// the schedule can be expressed as the six-field cron string spec.md §6
// configures via SCAN_CRON (default "0 0 2 * * ?", 2 AM daily).
package scheduler

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/hysonger/LatteAlbum/internal/scan"
)

// Scheduler wraps a cron.Cron driving a single scan engine.
type Scheduler struct {
	cron   *cron.Cron
	engine *scan.Engine
}

// New parses expr (a standard six-field cron expression, seconds first) and
// schedules engine.Scan against it. The scheduler is not started until
// Start is called.
func New(expr string, engine *scan.Engine) (*Scheduler, error) {
	c := cron.New(cron.WithSeconds())
	s := &Scheduler{cron: c, engine: engine}

	_, err := c.AddFunc(expr, func() {
		log.Printf("scheduler: triggering scheduled scan")
		engine.Scan(context.Background())
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins running scheduled scans in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight cron job to return.
// It does not cancel a scan already in progress; callers should call
// Engine.Cancel separately if an immediate halt is needed.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
