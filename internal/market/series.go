package market

import (
	"fmt"
	"sort"
)

// ValidateSeries checks the invariants the backtest engine relies on:
// ascending unique open times, positive prices, high/low enveloping
// open/close, non-negative volume.
func ValidateSeries(candles []Candle) error {
	if len(candles) == 0 {
		return fmt.Errorf("empty candle series")
	}
	var prev int64 = -1
	for i, c := range candles {
		if c.OpenTime <= prev {
			return fmt.Errorf("candle %d: open time %d not strictly increasing (prev %d)", i, c.OpenTime, prev)
		}
		if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
			return fmt.Errorf("candle %d: non-positive price", i)
		}
		if c.High < c.Open || c.High < c.Close {
			return fmt.Errorf("candle %d: high %.8f below open/close", i, c.High)
		}
		if c.Low > c.Open || c.Low > c.Close {
			return fmt.Errorf("candle %d: low %.8f above open/close", i, c.Low)
		}
		if c.Volume < 0 {
			return fmt.Errorf("candle %d: negative volume", i)
		}
		prev = c.OpenTime
	}
	return nil
}

// SortAndDedup returns the series sorted ascending by open time with
// duplicate timestamps collapsed (last write wins). Sources are expected
// to return sorted data already; this is the normalization applied after
// merging cached and freshly fetched ranges.
func SortAndDedup(candles []Candle) []Candle {
	if len(candles) == 0 {
		return nil
	}
	out := append([]Candle(nil), candles...)
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime < out[j].OpenTime })
	dst := out[:1]
	for _, c := range out[1:] {
		if c.OpenTime == dst[len(dst)-1].OpenTime {
			dst[len(dst)-1] = c
			continue
		}
		dst = append(dst, c)
	}
	return dst
}

// Closes extracts the close column.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs extracts the high column.
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows extracts the low column.
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}
