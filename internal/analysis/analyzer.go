package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kalambet/cinetrait/internal/metrics"
)

// MinObservations is the fewest ratings a user needs before analysis.
const MinObservations = 5

// batchConcurrency bounds AnalyzeMany.
const batchConcurrency = 4

// ObservationSource reads a user's ratings. ListObservations and
// CountObservations return ErrNotFound only for unknown users.
type ObservationSource interface {
	ListObservations(ctx context.Context, userID string) ([]Observation, error)
	CountObservations(ctx context.Context, userID string) (int, error)
}

// CategoryResolver returns a movie's category affinities. Implementations wrap
// ErrUnresolvedCategoryData when the movie has no usable category data.
type CategoryResolver interface {
	ResolveCategories(ctx context.Context, movieID int64) (map[string]float64, error)
}

// ResultStore persists at most one Result per user. UpsertResult returns the
// stored row so callers see the preserved CreatedAt.
type ResultStore interface {
	UpsertResult(ctx context.Context, r Result) (Result, error)
	GetResult(ctx context.Context, userID string) (Result, error)
}

// Analyzer runs the scoring pipeline for one user at a time. It holds no
// per-user state; concurrent calls for the same user share a single run.
type Analyzer struct {
	tables       *Tables
	observations ObservationSource
	resolver     CategoryResolver
	results      ResultStore
	now          func() time.Time
	logger       *slog.Logger

	inflight singleflight.Group
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithClock overrides the time source used for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// New creates an Analyzer. tables must be non-nil; use DefaultTables for the
// built-in coefficients.
func New(tables *Tables, observations ObservationSource, resolver CategoryResolver, results ResultStore, opts ...Option) *Analyzer {
	a := &Analyzer{
		tables:       tables,
		observations: observations,
		resolver:     resolver,
		results:      results,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Tables returns the weight tables the analyzer scores with.
func (a *Analyzer) Tables() *Tables { return a.tables }

// Analyze computes and stores a fresh Result for userID, replacing any
// previous one. Nothing is written unless every step succeeds.
func (a *Analyzer) Analyze(ctx context.Context, userID string) (Result, error) {
	v, err, shared := a.inflight.Do(userID, func() (any, error) {
		start := time.Now()
		res, err := a.analyze(ctx, userID)
		metrics.ObserveAnalysis(outcomeOf(err), time.Since(start), res.Confidence)
		return res, err
	})
	if shared {
		metrics.AnalysesShared.Inc()
	}
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (a *Analyzer) analyze(ctx context.Context, userID string) (Result, error) {
	obs, err := a.observations.ListObservations(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Result{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return Result{}, &PersistenceError{Op: "list observations", Err: err}
	}
	if len(obs) < MinObservations {
		return Result{}, &InsufficientDataError{Count: len(obs), Required: MinObservations}
	}

	rated := make([]RatedMovie, 0, len(obs))
	for _, o := range obs {
		affinities, err := a.resolver.ResolveCategories(ctx, o.MovieID)
		if errors.Is(err, ErrUnresolvedCategoryData) {
			return Result{}, &UnresolvedCategoryError{MovieID: o.MovieID, Err: err}
		}
		if err != nil {
			return Result{}, &PersistenceError{Op: fmt.Sprintf("resolve categories for movie %d", o.MovieID), Err: err}
		}
		rated = append(rated, RatedMovie{MovieID: o.MovieID, Rating: o.Rating, Affinities: affinities})
	}

	prefs := AggregateCategories(rated, a.tables.Categories)
	traits := ScoreTraits(prefs, a.tables)
	confidence := EstimateConfidence(len(obs), prefs)
	values := DeriveValues(traits, a.tables)

	now := a.now().UTC()
	stored, err := a.results.UpsertResult(ctx, Result{
		UserID:         userID,
		Traits:         traits,
		Values:         values,
		MoviesAnalyzed: len(obs),
		Confidence:     confidence,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return Result{}, &PersistenceError{Op: "upsert result", Err: err}
	}

	a.logger.Debug("analysis stored",
		"user_id", userID,
		"movies_analyzed", stored.MoviesAnalyzed,
		"confidence", stored.Confidence,
	)
	return stored, nil
}

// Latest returns the stored result for userID, or ErrNotFound.
func (a *Analyzer) Latest(ctx context.Context, userID string) (Result, error) {
	r, err := a.results.GetResult(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Result{}, fmt.Errorf("analysis for user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return Result{}, &PersistenceError{Op: "get result", Err: err}
	}
	return r, nil
}

// Readiness reports how many ratings userID has and whether that is enough.
func (a *Analyzer) Readiness(ctx context.Context, userID string) (Readiness, error) {
	n, err := a.observations.CountObservations(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Readiness{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return Readiness{}, &PersistenceError{Op: "count observations", Err: err}
	}
	return Readiness{
		ObservationCount: n,
		Ready:            n >= MinObservations,
		MinimumRequired:  MinObservations,
	}, nil
}

// BatchOutcome is the per-user result of AnalyzeMany.
type BatchOutcome struct {
	UserID string
	Result Result
	Err    error
}

// AnalyzeMany analyzes users in parallel with bounded concurrency. A failure
// for one user does not stop the others; outcomes keep the input order.
func (a *Analyzer) AnalyzeMany(ctx context.Context, userIDs []string) []BatchOutcome {
	out := make([]BatchOutcome, len(userIDs))
	var g errgroup.Group
	g.SetLimit(batchConcurrency)

	for i, id := range userIDs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i] = BatchOutcome{UserID: id, Err: err}
				return nil
			}
			res, err := a.Analyze(ctx, id)
			out[i] = BatchOutcome{UserID: id, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrInsufficientData):
		return metrics.OutcomeInsufficientData
	case errors.Is(err, ErrUnresolvedCategoryData):
		return metrics.OutcomeUnresolved
	case errors.Is(err, ErrNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
