package strategy

import "math"

// Seconds in a 365.25-day year, the time base for annualized volatility.
const secondsPerYear = 365.25 * 24 * 60 * 60

// Probability clip bounds. The model never claims certainty; quotes at the
// extremes carry no information worth trading on anyway.
const (
	probFloor = 0.01
	probCeil  = 0.99
)

// FairProbUp returns the model probability that spot settles above strike
// after remainingSec seconds, under a driftless log-normal with the given
// annualized volatility:
//
//	p = Φ( ln(S/K) / (σ √T) )
//
// Degenerate inputs (expired, zero-ish vol horizon, non-positive strike)
// collapse to the indicator of spot > strike.
func FairProbUp(spot, strike, remainingSec, annualVol float64) float64 {
	if remainingSec <= 0 {
		return stepProb(spot, strike)
	}

	T := remainingSec / secondsPerYear
	sigmaT := annualVol * math.Sqrt(T)
	if sigmaT < 1e-4 || spot <= 0 || strike <= 0 {
		return stepProb(spot, strike)
	}

	d := math.Log(spot/strike) / sigmaT
	return clipProb(normCDF(d))
}

func stepProb(spot, strike float64) float64 {
	if spot > strike {
		return 1.0
	}
	return 0.0
}

func clipProb(p float64) float64 {
	return math.Max(probFloor, math.Min(probCeil, p))
}

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
