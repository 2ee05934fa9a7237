// Package retention runs the periodic sweep that purges old completed
// tasks and old conversation messages per the configured windows.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/basket/chatdo/internal/config"
	"github.com/basket/chatdo/internal/persistence"
)

// defaultSchedule sweeps once a day, shortly after local midnight.
const defaultSchedule = "10 0 * * *"

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Config holds the dependencies for the retention sweeper.
type Config struct {
	Store     *persistence.Store
	Logger    *slog.Logger
	Retention config.RetentionConfig
	Schedule  string // cron expression; defaults to daily if empty
}

// Sweeper fires store retention sweeps on a cron schedule.
type Sweeper struct {
	store     *persistence.Store
	logger    *slog.Logger
	retention config.RetentionConfig
	schedule  cronlib.Schedule

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a new Sweeper. The schedule expression is parsed
// up front so a bad config fails at startup, not at 00:10.
func NewSweeper(cfg Config) (*Sweeper, error) {
	expr := cfg.Schedule
	if expr == "" {
		expr = defaultSchedule
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:     cfg.Store,
		logger:    logger,
		retention: cfg.Retention,
		schedule:  sched,
	}, nil
}

// Start begins the sweep loop in a background goroutine. The first
// sweep runs immediately so a long-stopped instance catches up.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("retention sweeper started",
		"completed_task_days", s.retention.CompletedTaskDays,
		"message_days", s.retention.MessageDays,
	)
}

// Stop cancels the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("retention sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	s.sweep(ctx)

	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one retention pass. Zero-day windows keep rows forever,
// which RunRetention already honors.
func (s *Sweeper) sweep(ctx context.Context) {
	res, err := s.store.RunRetention(ctx, s.retention.CompletedTaskDays, s.retention.MessageDays)
	if err != nil {
		s.logger.Error("retention sweep failed", "error", err)
		return
	}
	if res.CompletedTasksPurged == 0 && res.MessagesPurged == 0 {
		s.logger.Debug("retention sweep clean")
		return
	}
	s.logger.Info("retention sweep purged rows",
		"completed_tasks", res.CompletedTasksPurged,
		"messages", res.MessagesPurged,
	)
}

// NextRunTime parses the cron expression and returns the next run
// time after the given time. Used by config validation and tests.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
