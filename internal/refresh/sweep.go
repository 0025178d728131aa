package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kalambet/cinetrait/internal/analysis"
)

// UserLister returns the users eligible for a sweep.
type UserLister interface {
	ListUsersWithMinRatings(ctx context.Context, minRatings int) ([]string, error)
}

// BatchAnalyzer re-analyzes many users at once.
type BatchAnalyzer interface {
	AnalyzeMany(ctx context.Context, userIDs []string) []analysis.BatchOutcome
}

// SweepReport counts the outcomes of one sweep.
type SweepReport struct {
	Users     int
	Succeeded int
	Failed    int
}

// Sweeper re-analyzes every user with enough ratings, on demand or on a cron
// schedule.
type Sweeper struct {
	users    UserLister
	analyzer BatchAnalyzer
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

func NewSweeper(users UserLister, analyzer BatchAnalyzer) *Sweeper {
	return &Sweeper{
		users:    users,
		analyzer: analyzer,
		logger:   slog.Default(),
	}
}

// Sweep analyzes every user with at least analysis.MinObservations ratings.
// Per-user failures are logged and counted, not returned.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	ids, err := s.users.ListUsersWithMinRatings(ctx, analysis.MinObservations)
	if err != nil {
		return SweepReport{}, fmt.Errorf("listing users: %w", err)
	}

	report := SweepReport{Users: len(ids)}
	for _, out := range s.analyzer.AnalyzeMany(ctx, ids) {
		if out.Err != nil {
			report.Failed++
			s.logger.Warn("sweep analysis failed", "user_id", out.UserID, "error", out.Err)
			continue
		}
		report.Succeeded++
	}
	return report, nil
}

// Schedule starts running Sweep on the standard five-field cron spec in UTC.
// Each run gets its own timeout derived from ctx. Stop ends the schedule.
func (s *Sweeper) Schedule(ctx context.Context, spec string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("sweep already scheduled")
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		report, err := s.Sweep(runCtx)
		if err != nil {
			s.logger.Error("sweep failed", "error", err)
			return
		}
		s.logger.Info("sweep completed",
			"users", report.Users,
			"succeeded", report.Succeeded,
			"failed", report.Failed,
			"duration", time.Since(start),
		)
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}

	c.Start()
	s.cron = c
	s.started = true
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		<-s.cron.Stop().Done()
		s.started = false
	}
}

// ValidateSchedule reports whether spec is a valid five-field cron expression.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}
