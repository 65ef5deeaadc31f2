package strategy

// MaxFeeBps is the taker fee at a 50c share price, the top of the parabola.
const MaxFeeBps = 315

// TakerFeeRate returns the taker fee rate at the given share price. The
// curve is parabolic: maximal at 0.5, falling to zero toward either extreme.
//
//	fee = maxFee × 4 × p × (1-p)
//
// Maker orders pay no fee.
func TakerFeeRate(price float64) float64 {
	rate := (float64(MaxFeeBps) / 10000) * 4 * price * (1 - price)
	if rate < 0 {
		return 0
	}
	return rate
}

// EffectiveCost returns the total USD cost of a taker fill including the
// fee, and the fee amount itself.
func EffectiveCost(price, size float64) (total, fee float64) {
	base := price * size
	fee = base * TakerFeeRate(price)
	return base + fee, fee
}

// BreakevenEdge returns the minimum fair-minus-market edge needed to break
// even at this entry. A binary position is never sold back, so only the
// entry fee has to be overcome.
func BreakevenEdge(price float64) float64 {
	return TakerFeeRate(price)
}
