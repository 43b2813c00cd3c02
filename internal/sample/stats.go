package sample

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds per-channel descriptive statistics of a series.
type Summary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

// Summarize computes descriptive statistics for a series. An empty series
// yields a zero Summary.
func Summarize(series []float64) Summary {
	if len(series) == 0 {
		return Summary{}
	}
	s := Summary{
		Count: len(series),
		Min:   floats.Min(series),
		Max:   floats.Max(series),
		Mean:  stat.Mean(series, nil),
	}
	if len(series) > 1 {
		s.StdDev = stat.StdDev(series, nil)
	}
	return s
}

// SummarizeChannels computes one Summary per channel of the frames.
func SummarizeChannels(frames []Frame) [Columns]Summary {
	var out [Columns]Summary
	series := make([]float64, len(frames))
	for ch := 0; ch < Columns; ch++ {
		for i, f := range frames {
			series[i] = f[ch]
		}
		out[ch] = Summarize(series)
	}
	return out
}
