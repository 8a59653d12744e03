package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GoCodeAlone/viewhost"
	"github.com/robfig/cron/v3"
)

// Purger is implemented by stores that need expired sessions removed explicitly.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// Sweeper periodically purges expired sessions on a cron schedule.
type Sweeper struct {
	purger   Purger
	schedule string
	logger   viewhost.Logger
	now      func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
}

// NewSweeper creates a sweeper. schedule accepts standard cron expressions and
// descriptors such as "@every 1m".
func NewSweeper(purger Purger, schedule string, logger viewhost.Logger) *Sweeper {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Sweeper{purger: purger, schedule: schedule, logger: logger, now: time.Now}
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	id, err := c.AddFunc(s.schedule, func() { s.Sweep(context.WithoutCancel(ctx)) })
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron, s.entryID = c, id
	s.logger.Info("Session sweeper started", "schedule", s.schedule)
	return nil
}

// Stop waits for a running sweep to finish, or for ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for session sweep: %w", ctx.Err())
	}
}

// Sweep runs one purge immediately.
func (s *Sweeper) Sweep(ctx context.Context) {
	n, err := s.purger.PurgeExpired(ctx, s.now())
	if err != nil {
		s.logger.Error("Session sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Debug("Expired sessions purged", "count", n)
	}
}

// NextRun reports when the next sweep is due; zero when not started.
func (s *Sweeper) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
