package storage

import (
	"errors"
	"time"

	"github.com/kalambet/cinetrait/internal/analysis"
)

var (
	// ErrNotFound is returned when a requested record does not exist. It is
	// the same sentinel the analysis package matches on.
	ErrNotFound = analysis.ErrNotFound

	// ErrAlreadyExists is returned when creating a record whose key is taken.
	ErrAlreadyExists = errors.New("already exists")
)

// JobTypeAnalyzeUser re-runs the analysis for the user in the payload.
const JobTypeAnalyzeUser = "analyze_user"

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Movie is a catalog entry. Affinities maps category name to membership in
// [0,1] and is what the analysis reads; Genres and GenreIDs are kept for
// display and rating statistics.
type Movie struct {
	ID         int64              `json:"id"`
	Title      string             `json:"title"`
	Genres     []string           `json:"genres"`
	GenreIDs   []int              `json:"genre_ids"`
	Affinities map[string]float64 `json:"affinities"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Rating is a stored observation joined with its movie title.
type Rating struct {
	UserID    string    `json:"user_id"`
	MovieID   int64     `json:"movie_id"`
	Title     string    `json:"title"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GenreStats summarizes a user's ratings of movies in one genre.
type GenreStats struct {
	Genre   string  `json:"genre"`
	Count   int     `json:"count"`
	Average float64 `json:"average_rating"`
}

// RatingStats summarizes a user's rating history.
type RatingStats struct {
	UserID        string       `json:"user_id"`
	TotalRatings  int          `json:"total_ratings"`
	AverageRating float64      `json:"average_rating"`
	Genres        []GenreStats `json:"genres"`
	Recent        []Rating     `json:"recent_ratings"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
