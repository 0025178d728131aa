package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/cinetrait/internal/analysis"
	"github.com/kalambet/cinetrait/internal/config"
	"github.com/kalambet/cinetrait/internal/profile"
	"github.com/kalambet/cinetrait/internal/storage"
)

func userPath(userID string, rest ...string) string {
	return "/users/" + url.PathEscape(userID) + strings.Join(rest, "")
}

// --- user ---

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user",
	Long: `Create a user. Without --id the server generates one.

Examples:
  cinetrait user create --name "Ada"
  cinetrait user create --id ada --name "Ada"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		name, _ := cmd.Flags().GetString("name")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/users", map[string]string{"id": id, "name": name})
		if err != nil {
			return err
		}

		var u storage.User
		if err := decodeJSON(resp, &u); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), u.ID)
		printSuccess("Created user %s", u.ID)
		return nil
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete a user with all ratings and analysis results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			return fmt.Errorf("this deletes all ratings and results of %s; pass --confirm to proceed", args[0])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), userPath(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}

		printSuccess("Deleted user %s", args[0])
		return nil
	},
}

func init() {
	userCreateCmd.Flags().String("id", "", "user id (default: generated)")
	userCreateCmd.Flags().String("name", "", "display name")
	userDeleteCmd.Flags().Bool("confirm", false, "confirm deletion")
	userCmd.AddCommand(userCreateCmd, userDeleteCmd)
}

// --- movie ---

var movieCmd = &cobra.Command{
	Use:   "movie",
	Short: "Manage the movie catalog",
}

var movieAddCmd = &cobra.Command{
	Use:   "add <movie-id>",
	Short: "Register or update a movie",
	Long: `Register or update a movie. Category affinities are taken from --affinity
when given, otherwise derived from --genre-ids (TMDB ids), otherwise from --genres.

Examples:
  cinetrait movie add 603 --title "The Matrix" --genre-ids 28,878
  cinetrait movie add 42 --title "Custom" --affinity comic=0.5,exciting=1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseMovieID(args[0])
		if err != nil {
			return err
		}
		title, _ := cmd.Flags().GetString("title")
		genreIDs, _ := cmd.Flags().GetIntSlice("genre-ids")
		genres, _ := cmd.Flags().GetStringSlice("genres")
		rawAffinities, _ := cmd.Flags().GetStringToString("affinity")

		if title == "" {
			return fmt.Errorf("--title is required")
		}
		affinities, err := parseAffinities(rawAffinities)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"title": title}
		if len(genreIDs) > 0 {
			body["genre_ids"] = genreIDs
		}
		if len(genres) > 0 {
			body["genres"] = genres
		}
		if len(affinities) > 0 {
			body["affinities"] = affinities
		}

		resp, err := client.put(cmd.Context(), fmt.Sprintf("/movies/%d", id), body)
		if err != nil {
			return err
		}
		var m storage.Movie
		if err := decodeJSON(resp, &m); err != nil {
			return err
		}

		if len(m.Affinities) == 0 {
			printWarning("movie %d has no category affinities; ratings of it will block analysis", m.ID)
		}
		printSuccess("Saved movie %d (%s)", m.ID, m.Title)
		return nil
	},
}

var movieShowCmd = &cobra.Command{
	Use:   "show <movie-id>",
	Short: "Show a movie as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseMovieID(args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/movies/%d", id))
		if err != nil {
			return err
		}

		var movie any
		if err := decodeJSON(resp, &movie); err != nil {
			return err
		}
		return printJSON(cmd, movie)
	},
}

func init() {
	movieAddCmd.Flags().String("title", "", "movie title")
	movieAddCmd.Flags().IntSlice("genre-ids", nil, "comma-separated TMDB genre ids")
	movieAddCmd.Flags().StringSlice("genres", nil, "comma-separated genre names")
	movieAddCmd.Flags().StringToString("affinity", nil, "category=affinity pairs in [0,1]")
	movieCmd.AddCommand(movieAddCmd, movieShowCmd)
}

func parseMovieID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("movie id must be a positive integer, got %q", s)
	}
	return id, nil
}

func parseAffinities(raw map[string]string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("affinity %s: %w", k, err)
		}
		if f < 0 || f > 1 {
			return nil, fmt.Errorf("affinity %s must be in [0,1], got %v", k, f)
		}
		out[k] = f
	}
	return out, nil
}

// --- ratings ---

var rateCmd = &cobra.Command{
	Use:   "rate <user-id> <movie-id> <rating>",
	Short: "Rate a movie from 1 to 5",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		movieID, err := parseMovieID(args[1])
		if err != nil {
			return err
		}
		rating, err := strconv.Atoi(args[2])
		if err != nil || rating < 1 || rating > 5 {
			return fmt.Errorf("rating must be an integer from 1 to 5, got %q", args[2])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), userPath(args[0], fmt.Sprintf("/ratings/%d", movieID)), map[string]int{"rating": rating})
		if err != nil {
			return err
		}
		var r storage.Rating
		if err := decodeJSON(resp, &r); err != nil {
			return err
		}

		printSuccess("%s rated %q %d/5", r.UserID, r.Title, r.Rating)
		return nil
	},
}

var ratingsCmd = &cobra.Command{
	Use:   "ratings <user-id>",
	Short: "List a user's ratings, most recent first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), userPath(args[0], fmt.Sprintf("/ratings?limit=%d", limit)))
		if err != nil {
			return err
		}
		var ratings []storage.Rating
		if err := decodeJSON(resp, &ratings); err != nil {
			return err
		}

		if len(ratings) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No ratings found.")
			return nil
		}
		for _, r := range ratings {
			fmt.Fprintf(cmd.OutOrStdout(), "  %d/5  %-8d %s  %s\n",
				r.Rating, r.MovieID, r.UpdatedAt.Local().Format("2006-01-02"), r.Title)
		}
		return nil
	},
}

func init() {
	ratingsCmd.Flags().Int("limit", 20, "maximum number of ratings to list")
}

// --- analysis ---

var readinessCmd = &cobra.Command{
	Use:   "readiness <user-id>",
	Short: "Check whether a user has enough ratings to be analyzed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), userPath(args[0], "/readiness"))
		if err != nil {
			return err
		}
		var rd analysis.Readiness
		if err := decodeJSON(resp, &rd); err != nil {
			return err
		}
		printReadiness(cmd.OutOrStdout(), args[0], rd)
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <user-id>",
	Short: "Run the personality analysis for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), userPath(args[0], "/analysis"), nil)
		if err != nil {
			return err
		}
		return renderProfile(cmd, resp, asJSON)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show the latest stored analysis for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), userPath(args[0], "/analysis"))
		if err != nil {
			return err
		}
		return renderProfile(cmd, resp, asJSON)
	},
}

func init() {
	analyzeCmd.Flags().Bool("json", false, "print the result as JSON")
	showCmd.Flags().Bool("json", false, "print the result as JSON")
}

func renderProfile(cmd *cobra.Command, resp *http.Response, asJSON bool) error {
	var p profile.Profile
	if err := decodeJSON(resp, &p); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Type == "insufficient_data" {
			return fmt.Errorf("%s; rate more movies and try again", apiErr.Message)
		}
		return err
	}
	if asJSON {
		return printJSON(cmd, p)
	}
	printProfile(cmd.OutOrStdout(), p)
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", colorize(colorBold, config.ConfigFilePath()))
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configSetCmd.Long = "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", ")
	configCmd.AddCommand(configShowCmd, configSetCmd, configUnsetCmd)
}
