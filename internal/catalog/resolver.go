package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/cinetrait/internal/analysis"
	"github.com/kalambet/cinetrait/internal/storage"
)

// MovieGetter is the subset of storage.Store the resolver reads.
type MovieGetter interface {
	GetMovie(ctx context.Context, id int64) (storage.Movie, error)
}

// Resolver serves stored movie affinities to the analysis engine.
type Resolver struct {
	movies     MovieGetter
	categories map[string]bool
}

// NewResolver creates a Resolver for weight tables that score categories.
func NewResolver(movies MovieGetter, categories []string) *Resolver {
	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		known[c] = true
	}
	return &Resolver{movies: movies, categories: known}
}

// ResolveCategories returns the movie's stored affinities. A movie that is
// missing, was stored without affinities, or has none for a scored category
// is unresolved; other store errors are returned as is.
func (r *Resolver) ResolveCategories(ctx context.Context, movieID int64) (map[string]float64, error) {
	m, err := r.movies.GetMovie(ctx, movieID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("movie %d is not in the catalog: %w", movieID, analysis.ErrUnresolvedCategoryData)
	}
	if err != nil {
		return nil, fmt.Errorf("loading movie %d: %w", movieID, err)
	}
	if len(m.Affinities) == 0 {
		return nil, fmt.Errorf("movie %d has no category affinities: %w", movieID, analysis.ErrUnresolvedCategoryData)
	}
	if !r.scoresAny(m.Affinities) {
		return nil, fmt.Errorf("movie %d has no affinity for a scored category: %w", movieID, analysis.ErrUnresolvedCategoryData)
	}
	return m.Affinities, nil
}

func (r *Resolver) scoresAny(affinities map[string]float64) bool {
	for c := range affinities {
		if r.categories[c] {
			return true
		}
	}
	return false
}

// Affinities picks the affinities to store for a movie: explicit values win,
// then tone scores from TMDB genre ids, then tone scores from TMDB genre
// names. Genre names TMDB does not know fall back to binary membership, for
// weight tables that score genres directly. It returns nil when there is
// nothing to derive from.
func Affinities(explicit map[string]float64, genreIDs []int, genres []string) map[string]float64 {
	switch {
	case len(explicit) > 0:
		return explicit
	case len(genreIDs) > 0:
		return ToneAffinities(genreIDs)
	case len(genres) > 0:
		if ids := GenreIDsByName(genres); len(ids) > 0 {
			return ToneAffinities(ids)
		}
		return GenreAffinities(genres)
	}
	return nil
}
