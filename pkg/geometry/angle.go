package geometry

import "math"

// NormalizeAngle maps a into (-π, π]. Angles already in range are
// returned unchanged.
func NormalizeAngle(a float64) float64 {
	if a > -math.Pi && a <= math.Pi {
		return a
	}
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// AngleDiff returns the signed shortest rotation from b to a.
func AngleDiff(a, b float64) float64 {
	return NormalizeAngle(a - b)
}

// WeightedAngle is one heading contribution to CircularMean.
type WeightedAngle struct {
	Angle  float64
	Weight float64
}

// CircularMean is the weighted mean direction of the given headings. ok is
// false when the weighted unit vectors cancel out and no direction exists.
func CircularMean(angles []WeightedAngle) (mean float64, ok bool) {
	var sumSin, sumCos, total float64
	for _, a := range angles {
		sin, cos := math.Sincos(a.Angle)
		sumSin += a.Weight * sin
		sumCos += a.Weight * cos
		total += a.Weight
	}
	if total <= 0 {
		return 0, false
	}
	if math.Hypot(sumSin, sumCos)/total < degenerateResultant {
		return 0, false
	}
	return NormalizeAngle(math.Atan2(sumSin, sumCos)), true
}

const degenerateResultant = 1e-6
