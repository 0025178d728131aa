// Package refresh keeps stored analyses current: a job worker re-analyzes
// users whose ratings changed and an optional cron sweep re-analyzes every
// user with enough ratings.
package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/cinetrait/internal/analysis"
	"github.com/kalambet/cinetrait/internal/metrics"
	"github.com/kalambet/cinetrait/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// Analyzer runs one user's analysis.
type Analyzer interface {
	Analyze(ctx context.Context, userID string) (analysis.Result, error)
}

type analyzePayload struct {
	UserID string `json:"user_id"`
}

// Enqueue schedules a re-analysis of userID. maxAttempts <= 0 uses the store default.
func Enqueue(ctx context.Context, store JobStore, userID string, maxAttempts int) error {
	payload, err := json.Marshal(analyzePayload{UserID: userID})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        storage.JobTypeAnalyzeUser,
		PayloadJSON: string(payload),
		MaxAttempts: max(maxAttempts, 0),
	}
	if err := store.EnqueueJob(ctx, job); err != nil {
		return fmt.Errorf("enqueueing analysis for user %s: %w", userID, err)
	}
	return nil
}

// Worker processes analyze_user jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	analyzer Analyzer
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, analyzer Analyzer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		analyzer: analyzer,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("refresh iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single analyze_user job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{storage.JobTypeAnalyzeUser})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	outcome, err := w.processJob(ctx, job)
	metrics.RefreshJobsTotal.WithLabelValues(outcome).Inc()
	if err != nil {
		w.logger.Warn("refresh job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// processJob returns the job outcome label and a non-nil error only when the
// job should be retried. Too few ratings and deleted users complete the job.
func (w *Worker) processJob(ctx context.Context, job *storage.Job) (string, error) {
	var payload analyzePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return metrics.OutcomeError, fmt.Errorf("parsing payload: %w", err)
	}
	if payload.UserID == "" {
		return metrics.OutcomeError, errors.New("payload has no user_id")
	}

	res, err := w.analyzer.Analyze(ctx, payload.UserID)
	switch {
	case err == nil:
		w.logger.Debug("analysis refreshed", "user_id", payload.UserID, "confidence", res.Confidence)
		return metrics.OutcomeSuccess, nil
	case errors.Is(err, analysis.ErrInsufficientData):
		return metrics.OutcomeInsufficientData, nil
	case errors.Is(err, analysis.ErrNotFound):
		w.logger.Info("skipping refresh for unknown user", "user_id", payload.UserID)
		return metrics.OutcomeNotFound, nil
	case errors.Is(err, analysis.ErrUnresolvedCategoryData):
		return metrics.OutcomeUnresolved, fmt.Errorf("analyzing user %s: %w", payload.UserID, err)
	default:
		return metrics.OutcomeError, fmt.Errorf("analyzing user %s: %w", payload.UserID, err)
	}
}
