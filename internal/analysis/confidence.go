package analysis

import (
	"math"
	"sort"
)

const (
	// saturationCount is the number of ratings at which volume stops adding confidence.
	saturationCount = 20.0

	countWeight     = 0.7
	diversityWeight = 0.3

	minConfidence = 0.1
	maxConfidence = 1.0
)

// EstimateConfidence blends rating volume (saturating at 20 ratings) with how
// evenly the category scores are spread (1 - population stddev). The result
// is clamped to [0.1, 1].
func EstimateConfidence(count int, prefs Preferences) float64 {
	countConf := math.Min(float64(count)/saturationCount, 1)
	diversityConf := clamp(1-stddev(prefs), 0, 1)
	return clamp(countWeight*countConf+diversityWeight*diversityConf, minConfidence, maxConfidence)
}

// stddev is the population standard deviation of the preference scores,
// summed in key order so results are reproducible.
func stddev(prefs Preferences) float64 {
	if len(prefs) == 0 {
		return 0
	}
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	n := float64(len(keys))
	var mean float64
	for _, k := range keys {
		mean += prefs[k]
	}
	mean /= n

	var variance float64
	for _, k := range keys {
		d := prefs[k] - mean
		variance += d * d
	}
	return math.Sqrt(variance / n)
}
