// Package catalog derives the category affinities the analysis engine reads
// from a movie's catalog genres.
package catalog

import "strings"

// Tone categories, in the order used for tie-breaking.
const (
	Melodrama   = "melodrama"
	Comic       = "comic"
	Violent     = "violent"
	Imaginative = "imaginative"
	Exciting    = "exciting"
)

// ToneCategories lists the tone categories in canonical order.
var ToneCategories = []string{Melodrama, Comic, Violent, Imaginative, Exciting}

// toneGenres maps each tone category to the TMDB genre ids it covers.
var toneGenres = map[string][]int{
	Melodrama:   {18, 10749, 10402},  // Drama, Romance, Music
	Comic:       {35, 16, 10751},     // Comedy, Animation, Family
	Violent:     {28, 10752, 37, 53}, // Action, War, Western, Thriller
	Imaginative: {12, 14, 878},       // Adventure, Fantasy, Science Fiction
	Exciting:    {27, 9648, 80},      // Horror, Mystery, Crime
}

// tmdbGenreIDs maps lower-cased TMDB movie genre names to their ids.
var tmdbGenreIDs = map[string]int{
	"action":          28,
	"adventure":       12,
	"animation":       16,
	"comedy":          35,
	"crime":           80,
	"documentary":     99,
	"drama":           18,
	"family":          10751,
	"fantasy":         14,
	"history":         36,
	"horror":          27,
	"music":           10402,
	"mystery":         9648,
	"romance":         10749,
	"science fiction": 878,
	"tv movie":        10770,
	"thriller":        53,
	"war":             10752,
	"western":         37,
}

// GenreIDsByName returns the TMDB ids of the named genres, matched
// case-insensitively. Names TMDB does not know are skipped.
func GenreIDsByName(names []string) []int {
	var ids []int
	for _, n := range names {
		if id, ok := tmdbGenreIDs[strings.ToLower(strings.TrimSpace(n))]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// ToneAffinities scores each tone category by the share of the movie's
// distinct genre ids that fall into it. Every tone category is present in the
// result; a movie without genres scores zero everywhere.
func ToneAffinities(genreIDs []int) map[string]float64 {
	ids := distinct(genreIDs)
	out := make(map[string]float64, len(ToneCategories))
	for _, c := range ToneCategories {
		out[c] = 0
	}
	if len(ids) == 0 {
		return out
	}

	for _, c := range ToneCategories {
		var matched int
		for _, g := range toneGenres[c] {
			if ids[g] {
				matched++
			}
		}
		out[c] = float64(matched) / float64(len(ids))
	}
	return out
}

// GenreAffinities treats each distinct genre name as a category with full
// membership.
func GenreAffinities(names []string) map[string]float64 {
	out := make(map[string]float64, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		out[n] = 1.0
	}
	return out
}

// PrimaryCategory returns the tone category with the highest affinity for the
// given genres, and false when none of them map to a tone.
func PrimaryCategory(genreIDs []int) (string, bool) {
	aff := ToneAffinities(genreIDs)
	best, bestScore := "", 0.0
	for _, c := range ToneCategories {
		if aff[c] > bestScore {
			best, bestScore = c, aff[c]
		}
	}
	return best, best != ""
}

func distinct(ids []int) map[int]bool {
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
