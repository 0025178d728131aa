package analysis

import "math"

// ScoreTraits shifts each trait away from neutral by
// (category score - 0.5) * coefficient for every correlated category, then
// clamps to [0,1]. A category at exactly 0.5 has no effect.
func ScoreTraits(prefs Preferences, t *Tables) TraitVector {
	totals := make(map[Trait]float64, len(Traits))
	for _, tr := range Traits {
		totals[tr] = neutralScore
	}

	for _, category := range t.Categories {
		score, ok := prefs[category]
		if !ok {
			continue
		}
		row := t.Correlations[category]
		for _, tr := range Traits {
			coef, ok := row[tr]
			if !ok {
				continue
			}
			totals[tr] += (score - neutralScore) * coef
		}
	}

	var v TraitVector
	for _, tr := range Traits {
		v.set(tr, clamp(totals[tr], 0, 1))
	}
	return v
}

// DeriveValues computes each value as the weighted mean of its traits.
// Positive weights use the trait score, negative weights use (1 - score), and
// the divisor is the sum of absolute weights. A value with no weights is
// neutral.
func DeriveValues(traits TraitVector, t *Tables) ValueVector {
	var vv ValueVector
	for _, v := range Values {
		row := t.ValueWeights[v]
		var sum, total float64
		for _, tr := range Traits {
			w, ok := row[tr]
			if !ok || w == 0 {
				continue
			}
			score := traits.Get(tr)
			if w > 0 {
				sum += score * w
			} else {
				sum += (1 - score) * math.Abs(w)
			}
			total += math.Abs(w)
		}
		if total > 0 {
			vv.set(v, sum/total)
		} else {
			vv.set(v, neutralScore)
		}
	}
	return vv
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
