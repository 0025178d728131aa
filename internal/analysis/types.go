package analysis

import "time"

// Trait names one of the Big Five personality dimensions.
type Trait string

const (
	Openness          Trait = "openness"
	Conscientiousness Trait = "conscientiousness"
	Extraversion      Trait = "extraversion"
	Agreeableness     Trait = "agreeableness"
	Neuroticism       Trait = "neuroticism"
)

// Traits lists every trait in canonical order.
var Traits = []Trait{Openness, Conscientiousness, Extraversion, Agreeableness, Neuroticism}

// Value names one of the motivational dimensions derived from traits.
type Value string

const (
	CreativityInnovation Value = "creativity_innovation"
	SocialConnection     Value = "social_connection"
	AchievementSuccess   Value = "achievement_success"
	HarmonyStability     Value = "harmony_stability"
	AuthenticityDepth    Value = "authenticity_depth"
)

// Values lists every value in canonical order.
var Values = []Value{CreativityInnovation, SocialConnection, AchievementSuccess, HarmonyStability, AuthenticityDepth}

// Observation is a single user rating of a movie on a 1-5 scale.
type Observation struct {
	UserID  string `json:"user_id"`
	MovieID int64  `json:"movie_id"`
	Rating  int    `json:"rating"`
}

// RatedMovie is an observation resolved to the movie's category affinities.
type RatedMovie struct {
	MovieID    int64
	Rating     int
	Affinities map[string]float64 // category → affinity in [0,1]
}

// Preferences maps a category name to the user's rating-weighted affinity.
type Preferences map[string]float64

// TraitVector holds one score in [0,1] per Big Five trait.
type TraitVector struct {
	Openness          float64 `json:"openness"`
	Conscientiousness float64 `json:"conscientiousness"`
	Extraversion      float64 `json:"extraversion"`
	Agreeableness     float64 `json:"agreeableness"`
	Neuroticism       float64 `json:"neuroticism"`
}

// Get returns the score for t, or 0 for an unknown trait.
func (v TraitVector) Get(t Trait) float64 {
	switch t {
	case Openness:
		return v.Openness
	case Conscientiousness:
		return v.Conscientiousness
	case Extraversion:
		return v.Extraversion
	case Agreeableness:
		return v.Agreeableness
	case Neuroticism:
		return v.Neuroticism
	}
	return 0
}

func (v *TraitVector) set(t Trait, score float64) {
	switch t {
	case Openness:
		v.Openness = score
	case Conscientiousness:
		v.Conscientiousness = score
	case Extraversion:
		v.Extraversion = score
	case Agreeableness:
		v.Agreeableness = score
	case Neuroticism:
		v.Neuroticism = score
	}
}

// ValueVector holds one score in [0,1] per derived value.
type ValueVector struct {
	CreativityInnovation float64 `json:"creativity_innovation"`
	SocialConnection     float64 `json:"social_connection"`
	AchievementSuccess   float64 `json:"achievement_success"`
	HarmonyStability     float64 `json:"harmony_stability"`
	AuthenticityDepth    float64 `json:"authenticity_depth"`
}

// Get returns the score for v, or 0 for an unknown value.
func (vv ValueVector) Get(v Value) float64 {
	switch v {
	case CreativityInnovation:
		return vv.CreativityInnovation
	case SocialConnection:
		return vv.SocialConnection
	case AchievementSuccess:
		return vv.AchievementSuccess
	case HarmonyStability:
		return vv.HarmonyStability
	case AuthenticityDepth:
		return vv.AuthenticityDepth
	}
	return 0
}

func (vv *ValueVector) set(v Value, score float64) {
	switch v {
	case CreativityInnovation:
		vv.CreativityInnovation = score
	case SocialConnection:
		vv.SocialConnection = score
	case AchievementSuccess:
		vv.AchievementSuccess = score
	case HarmonyStability:
		vv.HarmonyStability = score
	case AuthenticityDepth:
		vv.AuthenticityDepth = score
	}
}

// Result is the durable output of an analysis. There is at most one per user;
// re-analysis replaces it in place and keeps CreatedAt.
type Result struct {
	UserID         string      `json:"user_id"`
	Traits         TraitVector `json:"traits"`
	Values         ValueVector `json:"values"`
	MoviesAnalyzed int         `json:"movies_analyzed"`
	Confidence     float64     `json:"confidence"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Readiness reports whether a user has rated enough movies to be analyzed.
type Readiness struct {
	ObservationCount int  `json:"observation_count"`
	Ready            bool `json:"ready"`
	MinimumRequired  int  `json:"minimum_required"`
}
