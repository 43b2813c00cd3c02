package sample

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultSmoothingWindow and DefaultSmoothingOrder are the filter defaults
	// used by recording previews.
	DefaultSmoothingWindow = 11
	DefaultSmoothingOrder  = 3
)

// ErrTooFewFrames is returned when a series is shorter than the filter window.
var ErrTooFewFrames = errors.New("too few frames for smoothing window")

// SavGolCoefficients computes the central convolution weights of a
// Savitzky-Golay filter with the given odd window length and polynomial order.
// The weights are the first row of the pseudo-inverse of the local Vandermonde
// design matrix, so convolving with them evaluates the least-squares polynomial
// fit at the window center.
func SavGolCoefficients(window, order int) ([]float64, error) {
	if window <= 0 || window%2 == 0 {
		return nil, fmt.Errorf("window must be a positive odd number, got %d", window)
	}
	if order < 0 || order >= window {
		return nil, fmt.Errorf("order must be in [0, window), got order=%d window=%d", order, window)
	}

	half := window / 2
	a := mat.NewDense(window, order+1, nil)
	for i := 0; i < window; i++ {
		x := float64(i - half)
		p := 1.0
		for j := 0; j <= order; j++ {
			a.Set(i, j, p)
			p *= x
		}
	}

	var ata mat.Dense
	ata.Mul(a.T(), a)
	var inv mat.Dense
	if err := inv.Inverse(&ata); err != nil {
		return nil, fmt.Errorf("failed to invert design matrix: %w", err)
	}
	var pinv mat.Dense
	pinv.Mul(&inv, a.T())

	coeffs := make([]float64, window)
	for i := range coeffs {
		coeffs[i] = pinv.At(0, i)
	}
	return coeffs, nil
}

// SmoothSeries applies a Savitzky-Golay filter to the series. Interior points
// are produced by convolution; the half-window of points at each edge is
// produced by evaluating a least-squares polynomial fit of the first and last
// full window, matching scipy's default edge handling that the recording
// preview historically relied on.
func SmoothSeries(series []float64, window, order int) ([]float64, error) {
	coeffs, err := SavGolCoefficients(window, order)
	if err != nil {
		return nil, err
	}
	if len(series) < window {
		return nil, fmt.Errorf("%w: have %d, window %d", ErrTooFewFrames, len(series), window)
	}

	half := window / 2
	out := make([]float64, len(series))
	for i := half; i < len(series)-half; i++ {
		var v float64
		for k, c := range coeffs {
			v += c * series[i-half+k]
		}
		out[i] = v
	}

	head, err := polyfit(series[:window], order)
	if err != nil {
		return nil, fmt.Errorf("failed to fit head window: %w", err)
	}
	for i := 0; i < half; i++ {
		out[i] = polyeval(head, float64(i))
	}

	tail, err := polyfit(series[len(series)-window:], order)
	if err != nil {
		return nil, fmt.Errorf("failed to fit tail window: %w", err)
	}
	for i := len(series) - half; i < len(series); i++ {
		out[i] = polyeval(tail, float64(i-(len(series)-window)))
	}

	return out, nil
}

// SmoothRecording returns a copy of the recording's frames with the first
// SmoothedChannels channels filtered. If the recording is shorter than the
// window the frames are returned unmodified and the second return is false.
func SmoothRecording(frames []Frame, window, order int) ([]Frame, bool, error) {
	out := make([]Frame, len(frames))
	copy(out, frames)
	if len(frames) < window {
		return out, false, nil
	}

	for ch := 0; ch < SmoothedChannels; ch++ {
		series := make([]float64, len(frames))
		for i, f := range frames {
			series[i] = f[ch]
		}
		smoothed, err := SmoothSeries(series, window, order)
		if err != nil {
			return nil, false, err
		}
		for i := range out {
			out[i][ch] = smoothed[i]
		}
	}
	return out, true, nil
}

// polyfit fits a polynomial of the given order to y sampled at x=0..len(y)-1,
// returning coefficients in ascending power order.
func polyfit(y []float64, order int) ([]float64, error) {
	n := len(y)
	a := mat.NewDense(n, order+1, nil)
	for i := 0; i < n; i++ {
		x := float64(i)
		p := 1.0
		for j := 0; j <= order; j++ {
			a.Set(i, j, p)
			p *= x
		}
	}
	b := mat.NewVecDense(n, append([]float64(nil), y...))

	var qr mat.QR
	qr.Factorize(a)
	var c mat.VecDense
	if err := qr.SolveVecTo(&c, false, b); err != nil {
		return nil, err
	}

	out := make([]float64, order+1)
	for j := range out {
		out[j] = c.AtVec(j)
	}
	return out, nil
}

func polyeval(coeffs []float64, x float64) float64 {
	var v float64
	for j := len(coeffs) - 1; j >= 0; j-- {
		v = v*x + coeffs[j]
	}
	return v
}
