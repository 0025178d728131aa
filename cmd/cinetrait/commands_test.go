package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/cinetrait/internal/analysis"
	"github.com/kalambet/cinetrait/internal/profile"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

type cannedResponse struct {
	status int
	body   string
}

func newTestServer(t *testing.T, responses map[string]cannedResponse) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			if resp.status != 0 {
				w.WriteHeader(resp.status)
			}
			w.Write([]byte(resp.body))
			return
		}

		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// runCLI executes the root command against ts and returns stdout.
func runCLI(t *testing.T, ts *testServer, args ...string) (string, error) {
	t.Helper()
	oldClient := newAPIClient
	oldColor := noColor
	t.Cleanup(func() {
		newAPIClient = oldClient
		noColor = oldColor
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})
	if ts != nil {
		newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	}
	noColor = true

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

var ctx = context.Background()

const profileJSON = `{
  "user_id": "ada",
  "traits": {"openness": 0.59, "conscientiousness": 0.51, "extraversion": 0.53, "agreeableness": 0.505, "neuroticism": 0.495},
  "values": {"creativity_innovation": 0.58, "social_connection": 0.52, "achievement_success": 0.52, "harmony_stability": 0.5, "authenticity_depth": 0.55},
  "movies_analyzed": 5,
  "confidence": 0.42,
  "created_at": "2026-01-01T00:00:00Z",
  "updated_at": "2026-01-02T00:00:00Z",
  "dominant_trait": {"trait": "openness", "score": 0.59},
  "top_values": [{"value": "creativity_innovation", "score": 0.58}, {"value": "authenticity_depth", "score": 0.55}, {"value": "social_connection", "score": 0.52}]
}`

func TestRateCommand(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"PUT /users/ada/ratings/603": {body: `{"user_id":"ada","movie_id":603,"title":"The Matrix","rating":5}`},
	})

	if _, err := runCLI(t, ts, "rate", "ada", "603", "5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != http.MethodPut || r.Path != "/users/ada/ratings/603" {
		t.Errorf("request = %s %s", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	var body map[string]int
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["rating"] != 5 {
		t.Errorf("body.rating = %d, want 5", body["rating"])
	}
}

func TestRateCommand_InvalidArgs(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := [][]string{
		{"rate", "ada", "603", "6"},
		{"rate", "ada", "603", "zero"},
		{"rate", "ada", "-1", "3"},
		{"rate", "ada", "603"},
	}
	for _, args := range tests {
		if _, err := runCLI(t, ts, args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
	if len(ts.requests) != 0 {
		t.Errorf("invalid args should not reach the server, got %d requests", len(ts.requests))
	}
}

func TestMovieAddCommand(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"PUT /movies/42": {body: `{"id":42,"title":"Custom","affinities":{"comic":0.5}}`},
	})

	if _, err := runCLI(t, ts, "movie", "add", "42", "--title", "Custom", "--genre-ids", "35,16", "--affinity", "comic=0.5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body struct {
		Title      string             `json:"title"`
		GenreIDs   []int              `json:"genre_ids"`
		Affinities map[string]float64 `json:"affinities"`
	}
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body.Title != "Custom" || len(body.GenreIDs) != 2 || body.Affinities["comic"] != 0.5 {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestParseAffinities(t *testing.T) {
	got, err := parseAffinities(map[string]string{"comic": "0.25", "violent": "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["comic"] != 0.25 || got["violent"] != 1 {
		t.Errorf("got %v", got)
	}

	for _, raw := range []map[string]string{{"comic": "1.5"}, {"comic": "-0.1"}, {"comic": "lots"}} {
		if _, err := parseAffinities(raw); err == nil {
			t.Errorf("parseAffinities(%v): expected error", raw)
		}
	}
}

func TestAnalyzeCommand(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"POST /users/ada/analysis": {status: http.StatusCreated, body: profileJSON},
	})

	out, err := runCLI(t, ts, "analyze", "ada", "--json=false")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"openness", "(dominant)", "0.59", "confidence 0.42", "creativity_innovation, authenticity_depth, social_connection"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestShowCommand_JSON(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"GET /users/ada/analysis": {body: profileJSON},
	})

	out, err := runCLI(t, ts, "show", "ada", "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var p profile.Profile
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if p.DominantTrait.Trait != analysis.Openness || p.MoviesAnalyzed != 5 {
		t.Errorf("unexpected profile %+v", p)
	}
}

func TestAnalyzeCommand_InsufficientData(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"POST /users/ada/analysis": {
			status: http.StatusUnprocessableEntity,
			body:   `{"error":{"message":"insufficient data: 3 ratings, at least 5 required","type":"insufficient_data","observation_count":3,"minimum_required":5}}`,
		},
	})

	_, err := runCLI(t, ts, "analyze", "ada", "--json=false")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "rate more movies") || !strings.Contains(err.Error(), "3 ratings") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestReadinessCommand(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"GET /users/ada/readiness": {body: `{"observation_count":3,"ready":false,"minimum_required":5}`},
	})

	out, err := runCLI(t, ts, "readiness", "ada")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "3/5") || !strings.Contains(out, "needs 2 more") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestRatingsCommand(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"GET /users/ada/ratings": {body: `[{"user_id":"ada","movie_id":603,"title":"The Matrix","rating":5,"updated_at":"2026-01-02T00:00:00Z"}]`},
	})

	out, err := runCLI(t, ts, "ratings", "ada", "--limit", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "The Matrix") || !strings.Contains(out, "5/5") {
		t.Errorf("unexpected output: %q", out)
	}
	if ts.requests[0].Path != "/users/ada/ratings?limit=5" {
		t.Errorf("path = %q", ts.requests[0].Path)
	}
}

func TestUserPathEscapes(t *testing.T) {
	if got := userPath("a b/c", "/analysis"); got != "/users/a%20b%2Fc/analysis" {
		t.Errorf("userPath = %q", got)
	}
}

func TestUserCreateCommand(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"POST /users": {status: http.StatusCreated, body: `{"id":"ada","name":"Ada"}`},
	})

	out, err := runCLI(t, ts, "user", "create", "--id", "ada", "--name", "Ada")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "ada" {
		t.Errorf("output = %q, want the new id", out)
	}
}

func TestUserDeleteRequiresConfirm(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"DELETE /users/ada": {body: `{"status":"deleted"}`},
	})

	if _, err := runCLI(t, ts, "user", "delete", "ada", "--confirm=false"); err == nil {
		t.Fatal("expected error without --confirm")
	}
	if len(ts.requests) != 0 {
		t.Fatalf("expected no requests, got %d", len(ts.requests))
	}

	if _, err := runCLI(t, ts, "user", "delete", "ada", "--confirm"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 || ts.requests[0].Method != http.MethodDelete {
		t.Errorf("requests = %+v", ts.requests)
	}
}

func TestServerNotRunning(t *testing.T) {
	client := &apiClient{
		baseURL:    "http://127.0.0.1:1",
		token:      "test-token",
		httpClient: http.DefaultClient,
	}

	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"GET /plain": {status: http.StatusBadGateway, body: `upstream down`},
	})
	client := ts.client()

	resp, err := client.get(ctx, "/missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = decodeJSON(resp, &struct{}{})
	apiErr, ok := err.(*apiError)
	if !ok {
		t.Fatalf("expected *apiError, got %T (%v)", err, err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Type != "not_found" {
		t.Errorf("apiErr = %+v", apiErr)
	}

	resp, err = client.get(ctx, "/plain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = decodeJSON(resp, &struct{}{})
	if err == nil || !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "upstream down") {
		t.Errorf("error = %v", err)
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		score float64
		full  int
	}{
		{0, 0},
		{0.5, 10},
		{1, 20},
		{1.7, 20},
		{-1, 0},
	}
	for _, tt := range tests {
		got := bar(tt.score)
		if n := strings.Count(got, "█"); n != tt.full {
			t.Errorf("bar(%v) has %d full cells, want %d", tt.score, n, tt.full)
		}
		if n := len([]rune(got)); n != barWidth {
			t.Errorf("bar(%v) width = %d", tt.score, n)
		}
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(t.TempDir())
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil || pid <= 0 {
		t.Fatalf("readPIDFile = %d, %v", pid, err)
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removal")
	}
}

func TestLoadTables(t *testing.T) {
	tables, err := loadTables("")
	if err != nil || tables == nil {
		t.Fatalf("loadTables default = %v, %v", tables, err)
	}
	if _, err := loadTables("/nonexistent/weights.yaml"); err == nil {
		t.Error("expected error for missing weights file")
	}
}
