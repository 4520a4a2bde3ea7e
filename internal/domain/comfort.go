package domain

// ComfortInputs are the per-category contributions and context flags for one
// record. A nil contribution means the category is unavailable.
type ComfortInputs struct {
	Thermal    *float64
	AirQuality *float64
	UV         *float64

	RushHour bool
	Weekend  bool
	Extreme  *bool
}

// Available reports whether at least one category can be weighted.
func (in ComfortInputs) Available() bool {
	return in.Thermal != nil || in.AirQuality != nil || in.UV != nil
}

// NormalizedWeights rescales w over the categories present in in, so the
// returned weights sum to 1. Absent categories get weight 0. ok is false when
// no category is present or the present weights sum to zero.
func NormalizedWeights(in ComfortInputs, w Weights) (Weights, bool) {
	var out Weights
	if in.Thermal != nil {
		out.Thermal = w.Thermal
	}
	if in.AirQuality != nil {
		out.AirQuality = w.AirQuality
	}
	if in.UV != nil {
		out.UV = w.UV
	}

	total := out.Thermal + out.AirQuality + out.UV
	if total <= 0 {
		return Weights{}, false
	}
	out.Thermal /= total
	out.AirQuality /= total
	out.UV /= total
	return out, true
}

// ComfortScore combines the available contributions into a score in [0,100].
// Missing categories are dropped from both numerator and denominator rather
// than counted as zero. It returns nil when no category is available.
func ComfortScore(in ComfortInputs, w Weights, adj Adjustments) *float64 {
	nw, ok := NormalizedWeights(in, w)
	if !ok {
		return nil
	}

	score := nw.Thermal*clampScore(deref(in.Thermal)) +
		nw.AirQuality*clampScore(deref(in.AirQuality)) +
		nw.UV*clampScore(deref(in.UV))

	if in.RushHour {
		score += adj.RushHour
	}
	if in.Weekend {
		score += adj.Weekend
	}
	if in.Extreme != nil && *in.Extreme {
		score += adj.Extreme
	}

	score = clampScore(score)
	return &score
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
