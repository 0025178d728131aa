package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/cinetrait/internal/analysis"
	"github.com/kalambet/cinetrait/internal/catalog"
	"github.com/kalambet/cinetrait/internal/metrics"
	"github.com/kalambet/cinetrait/internal/profile"
	"github.com/kalambet/cinetrait/internal/refresh"
	"github.com/kalambet/cinetrait/internal/storage"
	"github.com/kalambet/cinetrait/internal/validation"
)

const maxRequestBodySize = 1 << 20 // 1MB

type CreateUserRequest struct {
	ID   string `json:"id" validate:"omitempty,max=128"`
	Name string `json:"name" validate:"max=200"`
}

type PutMovieRequest struct {
	Title      string             `json:"title" validate:"required,max=500"`
	GenreIDs   []int              `json:"genre_ids" validate:"omitempty,dive,gt=0"`
	Genres     []string           `json:"genres" validate:"omitempty,dive,required"`
	Affinities map[string]float64 `json:"affinities" validate:"omitempty,dive,keys,required,endkeys,gte=0,lte=1"`
}

type PutRatingRequest struct {
	Rating int `json:"rating" validate:"required,gte=1,lte=5"`
}

// MovieResponse is a stored movie plus its dominant tone category, when the
// genre ids determine one.
type MovieResponse struct {
	storage.Movie
	PrimaryCategory string `json:"primary_category,omitempty"`
}

type AppDeps struct {
	Store       *storage.Store
	Analyzer    *analysis.Analyzer
	Profile     *profile.Manager
	Token       string
	CORSOrigins []string
	RateLimit   int // requests per minute per IP; 0 disables
	MaxAttempts int // refresh job attempts; 0 uses the queue default
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(CORS(deps.CORSOrigins))

	r.Get("/health", handleHealth(deps))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(deps.RateLimit))
		r.Use(BearerAuth(deps.Token))

		r.Post("/users", handleCreateUser(deps))
		r.Delete("/users/{id}", handleDeleteUser(deps))
		r.Put("/movies/{id}", handlePutMovie(deps))
		r.Get("/movies/{id}", handleGetMovie(deps))
		r.Put("/users/{id}/ratings/{movieID}", handlePutRating(deps))
		r.Get("/users/{id}/ratings", handleListRatings(deps))
		r.Get("/users/{id}/readiness", handleReadiness(deps))
		r.Post("/users/{id}/analysis", handleAnalyze(deps))
		r.Get("/users/{id}/analysis", handleGetAnalysis(deps))
	})

	return r
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := deps.Store.Ping(ctx); err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "store unavailable: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleCreateUser(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateUserRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}

		u, err := deps.Store.CreateUser(r.Context(), storage.User{ID: req.ID, Name: req.Name})
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

func handleDeleteUser(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Store.DeleteUser(r.Context(), id); err != nil {
			writeDomainError(w, r, fmt.Errorf("user %s: %w", id, err))
			return
		}
		deps.Profile.Invalidate(id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handlePutMovie(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := movieIDParam(w, r, "id")
		if !ok {
			return
		}
		var req PutMovieRequest
		if !decodeBody(w, r, &req) {
			return
		}

		m, err := deps.Store.UpsertMovie(r.Context(), storage.Movie{
			ID:         id,
			Title:      req.Title,
			Genres:     req.Genres,
			GenreIDs:   req.GenreIDs,
			Affinities: catalog.Affinities(req.Affinities, req.GenreIDs, req.Genres),
		})
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, movieResponse(m))
	}
}

func handleGetMovie(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := movieIDParam(w, r, "id")
		if !ok {
			return
		}
		m, err := deps.Store.GetMovie(r.Context(), id)
		if err != nil {
			writeDomainError(w, r, fmt.Errorf("movie %d: %w", id, err))
			return
		}
		writeJSON(w, http.StatusOK, movieResponse(m))
	}
}

func movieResponse(m storage.Movie) MovieResponse {
	resp := MovieResponse{Movie: m}
	ids := m.GenreIDs
	if len(ids) == 0 {
		ids = catalog.GenreIDsByName(m.Genres)
	}
	if c, ok := catalog.PrimaryCategory(ids); ok {
		resp.PrimaryCategory = c
	}
	return resp
}

func handlePutRating(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "id")
		movieID, ok := movieIDParam(w, r, "movieID")
		if !ok {
			return
		}
		var req PutRatingRequest
		if !decodeBody(w, r, &req) {
			return
		}

		rating, err := deps.Store.UpsertRating(r.Context(), userID, movieID, req.Rating)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		metrics.RatingsUpserted.Inc()

		// The rating is stored either way; a failed enqueue only delays the
		// refresh until the next sweep or explicit analysis.
		if err := refresh.Enqueue(r.Context(), deps.Store, userID, deps.MaxAttempts); err != nil {
			slog.Warn("failed to enqueue refresh", "user_id", userID, "error", err)
		}
		writeJSON(w, http.StatusOK, rating)
	}
}

func handleListRatings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ratings, err := deps.Store.ListRatings(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if limit := parseIntParam(r, "limit", 0, 1000); limit > 0 && len(ratings) > limit {
			ratings = ratings[:limit]
		}
		writeJSON(w, http.StatusOK, ratings)
	}
}

func handleReadiness(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rd, err := deps.Analyzer.Readiness(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rd)
	}
}

func handleAnalyze(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Analyzer.Analyze(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, profile.Build(res))
	}
}

func handleGetAnalysis(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "id")
		p, err := deps.Profile.GetProfile(r.Context(), userID)
		if err != nil {
			writeDomainError(w, r, fmt.Errorf("analysis for user %s: %w", userID, err))
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// decodeBody decodes and validates a JSON request body into dst, writing a
// 400 and returning false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	if err := validation.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func movieIDParam(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s must be a positive integer", key)
		return 0, false
	}
	return id, true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
