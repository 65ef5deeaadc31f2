package strategy

import "math"

// Trend classifies where price sits relative to its moving average.
type Trend string

const (
	TrendUp   Trend = "UP"
	TrendDown Trend = "DOWN"
	TrendFlat Trend = "FLAT"
)

// Buffers around the SMA before a trend is called. 5 bps keeps the
// classifier from flapping on noise.
const (
	trendUpBuffer   = 1.0005
	trendDownBuffer = 0.9995
)

// TrendState is one snapshot of the technical picture, computed from the
// oracle's composite price history.
type TrendState struct {
	Trend    Trend
	Strength float64 // |price - SMA| / SMA
	RSI      float64
	SMA      float64
	Price    float64
}

// RSI computes the Relative Strength Index with Wilder's recursive
// smoothing. Returns the neutral 50 when fewer than period+1 samples exist.
func RSI(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 50.0
	}

	gains := make([]float64, len(prices)-1)
	losses := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gains[i-1] = d
		} else {
			losses[i-1] = -d
		}
	}

	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	rsi := rsiFromAverages(avgGain, avgLoss)
	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		rsi = rsiFromAverages(avgGain, avgLoss)
	}
	return rsi
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

// SMA computes the simple moving average over the trailing period. Falls
// back to the last sample when the series is too short.
func SMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if len(prices) < period {
		return prices[len(prices)-1]
	}
	var sum float64
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period)
}

// AnalyzeTrend computes the full technical snapshot from a price series.
func AnalyzeTrend(prices []float64, smaPeriod, rsiPeriod int) TrendState {
	if len(prices) == 0 {
		return TrendState{Trend: TrendFlat, RSI: 50.0}
	}

	price := prices[len(prices)-1]
	sma := SMA(prices, smaPeriod)
	rsi := RSI(prices, rsiPeriod)

	trend := TrendFlat
	switch {
	case price > sma*trendUpBuffer:
		trend = TrendUp
	case price < sma*trendDownBuffer:
		trend = TrendDown
	}

	strength := 0.0
	if sma != 0 {
		strength = math.Abs(price-sma) / sma
	}
	return TrendState{
		Trend:    trend,
		Strength: strength,
		RSI:      rsi,
		SMA:      sma,
		Price:    price,
	}
}
