package catalog

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kalambet/cinetrait/internal/analysis"
	"github.com/kalambet/cinetrait/internal/storage"
)

func TestToneAffinities(t *testing.T) {
	tests := []struct {
		name     string
		genreIDs []int
		want     map[string]float64
	}{
		{
			name:     "no genres",
			genreIDs: nil,
			want:     map[string]float64{Melodrama: 0, Comic: 0, Violent: 0, Imaginative: 0, Exciting: 0},
		},
		{
			name:     "single tone",
			genreIDs: []int{878},
			want:     map[string]float64{Melodrama: 0, Comic: 0, Violent: 0, Imaginative: 1, Exciting: 0},
		},
		{
			name:     "split across tones",
			genreIDs: []int{28, 878},
			want:     map[string]float64{Melodrama: 0, Comic: 0, Violent: 0.5, Imaginative: 0.5, Exciting: 0},
		},
		{
			name:     "unmapped genre dilutes",
			genreIDs: []int{35, 99, 36, 10770},
			want:     map[string]float64{Melodrama: 0, Comic: 0.25, Violent: 0, Imaginative: 0, Exciting: 0},
		},
		{
			name:     "duplicates count once",
			genreIDs: []int{18, 18, 10749, 80},
			want:     map[string]float64{Melodrama: 2.0 / 3, Comic: 0, Violent: 0, Imaginative: 0, Exciting: 1.0 / 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToneAffinities(tt.genreIDs)
			if len(got) != len(ToneCategories) {
				t.Fatalf("got %d categories, want %d", len(got), len(ToneCategories))
			}
			for c, want := range tt.want {
				if math.Abs(got[c]-want) > 1e-12 {
					t.Errorf("%s = %v, want %v", c, got[c], want)
				}
			}
		})
	}
}

func TestToneCategoriesMatchDefaultTables(t *testing.T) {
	tables := analysis.DefaultTables()
	if len(tables.Categories) != len(ToneCategories) {
		t.Fatalf("default tables have %d categories, catalog has %d", len(tables.Categories), len(ToneCategories))
	}
	for i, c := range ToneCategories {
		if tables.Categories[i] != c {
			t.Errorf("category %d = %q, want %q", i, tables.Categories[i], c)
		}
	}
}

func TestGenreAffinities(t *testing.T) {
	got := GenreAffinities([]string{"Drama", "Drama", "", "Crime"})
	if len(got) != 2 || got["Drama"] != 1 || got["Crime"] != 1 {
		t.Errorf("got %v", got)
	}
}

func TestGenreIDsByName(t *testing.T) {
	tests := []struct {
		names []string
		want  []int
	}{
		{[]string{"Drama", "Romance"}, []int{18, 10749}},
		{[]string{" science fiction ", "ACTION"}, []int{878, 28}},
		{[]string{"Anime", "Comedy"}, []int{35}},
		{[]string{"Anime"}, nil},
		{nil, nil},
	}

	for _, tt := range tests {
		got := GenreIDsByName(tt.names)
		if len(got) != len(tt.want) {
			t.Errorf("GenreIDsByName(%v) = %v, want %v", tt.names, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("GenreIDsByName(%v) = %v, want %v", tt.names, got, tt.want)
				break
			}
		}
	}
}

func TestPrimaryCategory(t *testing.T) {
	tests := []struct {
		genreIDs []int
		want     string
		ok       bool
	}{
		{[]int{28, 53, 878}, Violent, true},
		{[]int{35, 27}, Comic, true}, // tie: comic precedes exciting
		{[]int{99}, "", false},
		{nil, "", false},
	}

	for _, tt := range tests {
		got, ok := PrimaryCategory(tt.genreIDs)
		if got != tt.want || ok != tt.ok {
			t.Errorf("PrimaryCategory(%v) = %q, %v; want %q, %v", tt.genreIDs, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAffinities(t *testing.T) {
	explicit := map[string]float64{Comic: 0.7}
	if got := Affinities(explicit, []int{878}, []string{"Drama"}); got[Comic] != 0.7 || len(got) != 1 {
		t.Errorf("explicit affinities not preferred: %v", got)
	}
	if got := Affinities(nil, []int{878}, []string{"Drama"}); got[Imaginative] != 1 {
		t.Errorf("genre ids not used: %v", got)
	}
	if got := Affinities(nil, nil, []string{"Drama", "romance"}); got[Melodrama] != 1 || got[Comic] != 0 {
		t.Errorf("genre names not mapped to tones: %v", got)
	}
	if got := Affinities(nil, nil, []string{"Anime"}); got["Anime"] != 1 || len(got) != 1 {
		t.Errorf("unknown genre names not kept: %v", got)
	}
	if got := Affinities(nil, nil, nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

// --- Resolver ---

type mockMovies struct {
	movies map[int64]storage.Movie
	err    error
}

func (m *mockMovies) GetMovie(_ context.Context, id int64) (storage.Movie, error) {
	if m.err != nil {
		return storage.Movie{}, m.err
	}
	mv, ok := m.movies[id]
	if !ok {
		return storage.Movie{}, storage.ErrNotFound
	}
	return mv, nil
}

func TestResolver(t *testing.T) {
	movies := &mockMovies{movies: map[int64]storage.Movie{
		1: {ID: 1, Affinities: map[string]float64{Imaginative: 1}},
		2: {ID: 2},
		4: {ID: 4, Affinities: map[string]float64{"Drama": 1, "Romance": 1}},
		5: {ID: 5, Affinities: map[string]float64{Comic: 0, "Anime": 1}},
	}}
	r := NewResolver(movies, ToneCategories)
	ctx := context.Background()

	aff, err := r.ResolveCategories(ctx, 1)
	if err != nil {
		t.Fatalf("ResolveCategories(1): %v", err)
	}
	if aff[Imaginative] != 1 {
		t.Errorf("affinities = %v", aff)
	}

	if _, err := r.ResolveCategories(ctx, 2); !errors.Is(err, analysis.ErrUnresolvedCategoryData) {
		t.Errorf("movie without affinities: error = %v", err)
	}
	if _, err := r.ResolveCategories(ctx, 3); !errors.Is(err, analysis.ErrUnresolvedCategoryData) {
		t.Errorf("missing movie: error = %v", err)
	}
	if _, err := r.ResolveCategories(ctx, 4); !errors.Is(err, analysis.ErrUnresolvedCategoryData) {
		t.Errorf("movie with only unscored categories: error = %v", err)
	}
	if aff, err := r.ResolveCategories(ctx, 5); err != nil || aff[Comic] != 0 {
		t.Errorf("movie with a zero scored affinity: %v, %v", aff, err)
	}

	boom := errors.New("db closed")
	movies.err = boom
	_, err = r.ResolveCategories(ctx, 1)
	if !errors.Is(err, boom) || errors.Is(err, analysis.ErrUnresolvedCategoryData) {
		t.Errorf("store failure: error = %v", err)
	}
}
