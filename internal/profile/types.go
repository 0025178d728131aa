package profile

import "github.com/kalambet/cinetrait/internal/analysis"

// DefaultTopValues is how many values a Profile lists.
const DefaultTopValues = 3

// TraitScore pairs a trait with its score.
type TraitScore struct {
	Trait analysis.Trait `json:"trait"`
	Score float64        `json:"score"`
}

// ValueScore pairs a value with its score.
type ValueScore struct {
	Value analysis.Value `json:"value"`
	Score float64        `json:"score"`
}

// Profile is a stored analysis result with its numeric summaries.
type Profile struct {
	analysis.Result
	DominantTrait TraitScore   `json:"dominant_trait"`
	TopValues     []ValueScore `json:"top_values"`
}
