/*
scheduler.go - Automated week rollover

PURPOSE:
  Periodically makes sure the ISO week containing today exists and is
  flagged current, so managers land on the right week on Monday morning
  without an admin doing anything.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - EnsureWeek is idempotent; a check on an existing current week is a
    read and nothing more

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewWeekScheduler(weeks, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - planning/weeks.go: WeekService.EnsureWeek
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/backoffice/planning"
)

// WeekScheduler keeps the current week row up to date.
type WeekScheduler struct {
	Weeks         *planning.WeekService
	CheckInterval time.Duration
	Enabled       bool
	Log           zerolog.Logger
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewWeekScheduler creates a new scheduler.
func NewWeekScheduler(weeks *planning.WeekService, log zerolog.Logger) *WeekScheduler {
	return &WeekScheduler{
		Weeks:         weeks,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Log:           log,
		Now:           time.Now,
	}
}

// Start begins the scheduler.
func (ws *WeekScheduler) Start() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if !ws.Enabled {
		ws.Log.Info().Msg("week scheduler disabled, not starting")
		return
	}
	if ws.ticker != nil {
		return
	}

	ws.ticker = time.NewTicker(ws.CheckInterval)
	ws.stop = make(chan struct{})
	ws.wg.Add(1)

	go ws.run()

	ws.Log.Info().Dur("interval", ws.CheckInterval).Msg("week scheduler started")
}

// Stop stops the scheduler.
func (ws *WeekScheduler) Stop() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.ticker != nil {
		ws.ticker.Stop()
		close(ws.stop)
		ws.wg.Wait()
		ws.ticker = nil
		ws.Log.Info().Msg("week scheduler stopped")
	}
}

func (ws *WeekScheduler) run() {
	defer ws.wg.Done()

	// Run immediately on start
	ws.RunNow()

	for {
		select {
		case <-ws.ticker.C:
			ws.RunNow()
		case <-ws.stop:
			return
		}
	}
}

// RunNow performs one check and returns the current week.
func (ws *WeekScheduler) RunNow() (*planning.WeekSelection, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	week, created, err := ws.Weeks.EnsureWeek(ctx, ws.Now())
	if err != nil {
		ws.Log.Error().Err(err).Msg("week check failed")
		return nil, err
	}
	if created {
		ws.Log.Info().Str("week", week.Reference).Msg("rolled over to new week")
	}
	return week, nil
}

// GetNextRunTime returns when the next scheduled check will occur.
func (ws *WeekScheduler) GetNextRunTime() time.Time {
	return ws.Now().Add(ws.CheckInterval)
}
