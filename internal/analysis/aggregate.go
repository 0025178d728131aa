package analysis

// neutralScore is the midpoint used for categories, traits and values that
// have no evidence either way.
const neutralScore = 0.5

// maxRating is the top of the 1-5 rating scale.
const maxRating = 5.0

// AggregateCategories computes the user's preference for each category as the
// affinity-weighted mean of normalized ratings (rating/5). Only movies with a
// positive affinity for a category contribute to it. Categories with no
// contributing movie score exactly neutralScore. Affinities for names outside
// categories are ignored.
func AggregateCategories(movies []RatedMovie, categories []string) Preferences {
	weighted := make(map[string]float64, len(categories))
	totals := make(map[string]float64, len(categories))

	for _, m := range movies {
		normalized := float64(m.Rating) / maxRating
		for _, c := range categories {
			affinity := m.Affinities[c]
			if affinity <= 0 {
				continue
			}
			weighted[c] += normalized * affinity
			totals[c] += affinity
		}
	}

	prefs := make(Preferences, len(categories))
	for _, c := range categories {
		if totals[c] > 0 {
			prefs[c] = weighted[c] / totals[c]
		} else {
			prefs[c] = neutralScore
		}
	}
	return prefs
}
