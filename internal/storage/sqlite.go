package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kalambet/cinetrait/internal/analysis"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// recentRatingsLimit is how many ratings RatingStats returns as recent.
const recentRatingsLimit = 10

// Store wraps a SQLite database with methods for users, movies, ratings,
// analysis results and background jobs.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "cinetrait.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection: avoids "database is locked" and keeps :memory: alive.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %q: %w", p, err)
		}
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}
		if err := s.applyMigration(version, entry.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(version int, name string) error {
	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
		return fmt.Errorf("checking migration %d: %w", version, err)
	}
	if exists > 0 {
		return nil
	}

	content, err := migrationsFS.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("reading migration %s: %w", name, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("applying migration %d: %w", version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("recording migration %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %d: %w", version, err)
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// timeLayout is fixed-width so stored timestamps sort in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

func parseTime(field, v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", field, err)
	}
	return t, nil
}

// --- Users ---

// CreateUser inserts a new user. It returns ErrAlreadyExists if the id is taken.
func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, created_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		u.ID, u.Name, now,
	)
	if err != nil {
		return User{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return User{}, err
	}
	if n == 0 {
		return User{}, fmt.Errorf("user %s: %w", u.ID, ErrAlreadyExists)
	}
	return s.GetUser(ctx, u.ID)
}

func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	var createdAt string
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &createdAt)
	if err == sql.ErrNoRows {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if u.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return User{}, err
	}
	return u, nil
}

// DeleteUser removes the user together with their ratings and analysis result.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM ratings WHERE user_id = ?`,
		`DELETE FROM analysis_results WHERE user_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// ListUsersWithMinRatings returns, in id order, every user with at least minRatings ratings.
func (s *Store) ListUsersWithMinRatings(ctx context.Context, minRatings int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM ratings
		GROUP BY user_id HAVING COUNT(*) >= ?
		ORDER BY user_id ASC`, minRatings)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func userExists(ctx context.Context, q queryRower, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return err
}

// --- Movies ---

// UpsertMovie inserts or replaces a movie's catalog data, keeping created_at.
func (s *Store) UpsertMovie(ctx context.Context, m Movie) (Movie, error) {
	genres, err := json.Marshal(nonNil(m.Genres))
	if err != nil {
		return Movie{}, fmt.Errorf("encoding genres: %w", err)
	}
	genreIDs, err := json.Marshal(nonNil(m.GenreIDs))
	if err != nil {
		return Movie{}, fmt.Errorf("encoding genre ids: %w", err)
	}
	affinities := m.Affinities
	if affinities == nil {
		affinities = map[string]float64{}
	}
	affJSON, err := json.Marshal(affinities)
	if err != nil {
		return Movie{}, fmt.Errorf("encoding affinities: %w", err)
	}

	now := s.timestamp()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO movies (id, title, genres, genre_ids, affinities, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			genres = excluded.genres,
			genre_ids = excluded.genre_ids,
			affinities = excluded.affinities,
			updated_at = excluded.updated_at`,
		m.ID, m.Title, string(genres), string(genreIDs), string(affJSON), now, now,
	)
	if err != nil {
		return Movie{}, err
	}
	return s.GetMovie(ctx, m.ID)
}

func (s *Store) GetMovie(ctx context.Context, id int64) (Movie, error) {
	var m Movie
	var genres, genreIDs, affinities, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, genres, genre_ids, affinities, created_at, updated_at
		FROM movies WHERE id = ?`, id,
	).Scan(&m.ID, &m.Title, &genres, &genreIDs, &affinities, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Movie{}, ErrNotFound
	}
	if err != nil {
		return Movie{}, err
	}

	if err := json.Unmarshal([]byte(genres), &m.Genres); err != nil {
		return Movie{}, fmt.Errorf("decoding genres for movie %d: %w", id, err)
	}
	if err := json.Unmarshal([]byte(genreIDs), &m.GenreIDs); err != nil {
		return Movie{}, fmt.Errorf("decoding genre ids for movie %d: %w", id, err)
	}
	if err := json.Unmarshal([]byte(affinities), &m.Affinities); err != nil {
		return Movie{}, fmt.Errorf("decoding affinities for movie %d: %w", id, err)
	}
	if m.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Movie{}, err
	}
	if m.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Movie{}, err
	}
	return m, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// --- Ratings ---

// UpsertRating records userID's rating of movieID, replacing any earlier
// rating of the same movie. The first rating time is kept as created_at.
func (s *Store) UpsertRating(ctx context.Context, userID string, movieID int64, rating int) (Rating, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Rating{}, fmt.Errorf("beginning rating transaction: %w", err)
	}
	defer tx.Rollback()

	if err := userExists(ctx, tx, userID); err != nil {
		return Rating{}, err
	}
	var title string
	err = tx.QueryRowContext(ctx, `SELECT title FROM movies WHERE id = ?`, movieID).Scan(&title)
	if err == sql.ErrNoRows {
		return Rating{}, fmt.Errorf("movie %d: %w", movieID, ErrNotFound)
	}
	if err != nil {
		return Rating{}, err
	}

	now := s.timestamp()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ratings (user_id, movie_id, rating, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, movie_id) DO UPDATE SET
			rating = excluded.rating,
			updated_at = excluded.updated_at`,
		userID, movieID, rating, now, now,
	); err != nil {
		return Rating{}, err
	}

	r := Rating{UserID: userID, MovieID: movieID, Title: title, Rating: rating}
	var createdAt, updatedAt string
	if err := tx.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM ratings WHERE user_id = ? AND movie_id = ?`, userID, movieID,
	).Scan(&createdAt, &updatedAt); err != nil {
		return Rating{}, err
	}
	if err := tx.Commit(); err != nil {
		return Rating{}, fmt.Errorf("committing rating: %w", err)
	}

	if r.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Rating{}, err
	}
	if r.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Rating{}, err
	}
	return r, nil
}

// ListRatings returns userID's ratings, most recently updated first.
func (s *Store) ListRatings(ctx context.Context, userID string) ([]Rating, error) {
	if err := userExists(ctx, s.db, userID); err != nil {
		return nil, err
	}
	ratings, _, err := s.ratingsWithGenres(ctx, userID)
	return ratings, err
}

// ratingsWithGenres returns the user's ratings newest first along with each
// rated movie's genre names, index-aligned.
func (s *Store) ratingsWithGenres(ctx context.Context, userID string) ([]Rating, [][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.movie_id, m.title, m.genres, r.rating, r.created_at, r.updated_at
		FROM ratings r JOIN movies m ON m.id = r.movie_id
		WHERE r.user_id = ?
		ORDER BY r.updated_at DESC, r.id DESC`, userID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	ratings := []Rating{}
	var genres [][]string
	for rows.Next() {
		r := Rating{UserID: userID}
		var genresJSON, createdAt, updatedAt string
		if err := rows.Scan(&r.MovieID, &r.Title, &genresJSON, &r.Rating, &createdAt, &updatedAt); err != nil {
			return nil, nil, err
		}
		var g []string
		if err := json.Unmarshal([]byte(genresJSON), &g); err != nil {
			return nil, nil, fmt.Errorf("decoding genres for movie %d: %w", r.MovieID, err)
		}
		if r.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, nil, err
		}
		if r.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
			return nil, nil, err
		}
		ratings = append(ratings, r)
		genres = append(genres, g)
	}
	return ratings, genres, rows.Err()
}

// RatingStats summarizes userID's ratings: overall count and mean, per-genre
// count and mean (most rated first), and the ten most recent ratings.
func (s *Store) RatingStats(ctx context.Context, userID string) (RatingStats, error) {
	if err := userExists(ctx, s.db, userID); err != nil {
		return RatingStats{}, err
	}
	ratings, genres, err := s.ratingsWithGenres(ctx, userID)
	if err != nil {
		return RatingStats{}, err
	}

	stats := RatingStats{UserID: userID, TotalRatings: len(ratings), Genres: []GenreStats{}}
	sums := make(map[string]int)
	counts := make(map[string]int)
	var total int
	for i, r := range ratings {
		total += r.Rating
		for _, g := range genres[i] {
			sums[g] += r.Rating
			counts[g]++
		}
	}
	if len(ratings) > 0 {
		stats.AverageRating = float64(total) / float64(len(ratings))
	}
	for g, n := range counts {
		stats.Genres = append(stats.Genres, GenreStats{Genre: g, Count: n, Average: float64(sums[g]) / float64(n)})
	}
	sort.Slice(stats.Genres, func(i, j int) bool {
		if stats.Genres[i].Count != stats.Genres[j].Count {
			return stats.Genres[i].Count > stats.Genres[j].Count
		}
		return stats.Genres[i].Genre < stats.Genres[j].Genre
	})

	stats.Recent = ratings
	if len(stats.Recent) > recentRatingsLimit {
		stats.Recent = stats.Recent[:recentRatingsLimit]
	}
	return stats, nil
}

// ListObservations returns userID's ratings ordered by movie id. It returns
// ErrNotFound only when the user does not exist.
func (s *Store) ListObservations(ctx context.Context, userID string) ([]analysis.Observation, error) {
	if err := userExists(ctx, s.db, userID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT movie_id, rating FROM ratings WHERE user_id = ? ORDER BY movie_id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	obs := []analysis.Observation{}
	for rows.Next() {
		o := analysis.Observation{UserID: userID}
		if err := rows.Scan(&o.MovieID, &o.Rating); err != nil {
			return nil, err
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

// CountObservations returns how many movies userID has rated.
func (s *Store) CountObservations(ctx context.Context, userID string) (int, error) {
	if err := userExists(ctx, s.db, userID); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ratings WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// --- Analysis results ---

// UpsertResult stores r as the user's only result. An existing row is
// replaced in place and keeps its created_at. The stored row is returned.
func (s *Store) UpsertResult(ctx context.Context, r analysis.Result) (analysis.Result, error) {
	traits, err := json.Marshal(r.Traits)
	if err != nil {
		return analysis.Result{}, fmt.Errorf("encoding traits: %w", err)
	}
	values, err := json.Marshal(r.Values)
	if err != nil {
		return analysis.Result{}, fmt.Errorf("encoding values: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return analysis.Result{}, fmt.Errorf("beginning result transaction: %w", err)
	}
	defer tx.Rollback()

	if err := userExists(ctx, tx, r.UserID); err != nil {
		return analysis.Result{}, err
	}

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	updatedAt := r.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO analysis_results (user_id, traits_json, values_json, movies_analyzed, confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			traits_json = excluded.traits_json,
			values_json = excluded.values_json,
			movies_analyzed = excluded.movies_analyzed,
			confidence = excluded.confidence,
			updated_at = excluded.updated_at`,
		r.UserID, string(traits), string(values), r.MoviesAnalyzed, r.Confidence,
		createdAt.UTC().Format(timeLayout), updatedAt.UTC().Format(timeLayout),
	); err != nil {
		return analysis.Result{}, err
	}

	stored, err := getResult(ctx, tx, r.UserID)
	if err != nil {
		return analysis.Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return analysis.Result{}, fmt.Errorf("committing result: %w", err)
	}
	return stored, nil
}

// GetResult returns the user's stored result, or ErrNotFound.
func (s *Store) GetResult(ctx context.Context, userID string) (analysis.Result, error) {
	return getResult(ctx, s.db, userID)
}

func getResult(ctx context.Context, q queryRower, userID string) (analysis.Result, error) {
	r := analysis.Result{UserID: userID}
	var traits, values, createdAt, updatedAt string
	err := q.QueryRowContext(ctx, `
		SELECT traits_json, values_json, movies_analyzed, confidence, created_at, updated_at
		FROM analysis_results WHERE user_id = ?`, userID,
	).Scan(&traits, &values, &r.MoviesAnalyzed, &r.Confidence, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return analysis.Result{}, ErrNotFound
	}
	if err != nil {
		return analysis.Result{}, err
	}

	if err := json.Unmarshal([]byte(traits), &r.Traits); err != nil {
		return analysis.Result{}, fmt.Errorf("decoding traits: %w", err)
	}
	if err := json.Unmarshal([]byte(values), &r.Values); err != nil {
		return analysis.Result{}, fmt.Errorf("decoding values: %w", err)
	}
	if r.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return analysis.Result{}, err
	}
	if r.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return analysis.Result{}, err
	}
	return r, nil
}
