package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Session is the slice of the view controller the refresher needs.
type Session interface {
	SessionID() string
	Refresh(ctx context.Context) error
}

// Refresher periodically re-fetches the loaded subject of every registered
// session so long-lived panels track rule changes made elsewhere. The cadence
// is a standard five-field cron expression.
type Refresher struct {
	schedule cron.Schedule
	logger   *slog.Logger
	interval time.Duration

	mu       sync.Mutex
	sessions map[string]Session
	nextRun  time.Time
	cancel   context.CancelFunc
	done     chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{} // session IDs currently refreshing (dedup)
}

// NewRefresher creates a Refresher firing on the given cron expression.
// pollInterval bounds how often due-ness is checked; zero means 15s.
func NewRefresher(cronExpr string, pollInterval time.Duration, logger *slog.Logger) (*Refresher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse refresh cron expression %q: %w", cronExpr, err)
	}

	return &Refresher{
		schedule: schedule,
		logger:   logger,
		interval: pollInterval,
		sessions: make(map[string]Session),
		inflight: make(map[string]struct{}),
	}, nil
}

// Register adds a session to the refresh set. Re-registering replaces the
// previous entry.
func (r *Refresher) Register(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.SessionID()] = s
}

// Unregister removes a session from the refresh set.
func (r *Refresher) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// Start launches the background refresh loop.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.done != nil {
		r.mu.Unlock()
		return fmt.Errorf("refresher already started")
	}

	refreshCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	done := make(chan struct{})
	r.done = done
	r.nextRun = r.schedule.Next(time.Now().UTC())
	r.mu.Unlock()

	go r.loop(refreshCtx, done)
	r.logger.Info("refresher started", slog.Time("next_run", r.nextRun))
	return nil
}

func (r *Refresher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx, time.Now().UTC())
		}
	}
}

// tick refreshes every registered session when the schedule is due.
func (r *Refresher) tick(ctx context.Context, now time.Time) {
	r.mu.Lock()
	if now.Before(r.nextRun) {
		r.mu.Unlock()
		return
	}
	r.nextRun = r.schedule.Next(now)
	due := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		due = append(due, s)
	}
	r.mu.Unlock()

	for _, s := range due {
		if !r.tryAcquire(s.SessionID()) {
			continue // previous refresh still running
		}
		if err := s.Refresh(ctx); err != nil {
			r.logger.Error("session refresh failed",
				slog.String("session_id", s.SessionID()),
				slog.String("error", err.Error()),
			)
		}
		r.release(s.SessionID())
	}
}

// tryAcquire marks the session as in-flight unless it already is.
func (r *Refresher) tryAcquire(sessionID string) bool {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	if _, ok := r.inflight[sessionID]; ok {
		return false
	}
	r.inflight[sessionID] = struct{}{}
	return true
}

func (r *Refresher) release(sessionID string) {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	delete(r.inflight, sessionID)
}

// NextRun returns the next scheduled refresh time.
func (r *Refresher) NextRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextRun
}

// Stop gracefully shuts down the refresher. The lock is released before
// waiting on the loop: tick takes the same lock, so holding it across the
// wait would deadlock against an in-flight tick.
func (r *Refresher) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-done

	r.logger.Info("refresher stopped")
	return nil
}
