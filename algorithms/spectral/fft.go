package spectral

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/RyanBlaney/sonido-vocal/algorithms/common"
)

// FFT provides Fast Fourier Transform functionality over mjibson/go-dsp.
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the FFT of a real signal.
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}

	// go-dsp handles all sizes, including non-power-of-2
	return fft.FFTReal(x)
}

// ComputeInverseReal computes the inverse FFT and returns the real part only
func (f *FFT) ComputeInverseReal(x []complex128) []float64 {
	if len(x) == 0 {
		return []float64{}
	}

	result := fft.IFFT(x)
	realResult := make([]float64, len(result))
	for i, val := range result {
		realResult[i] = real(val)
	}

	return realResult
}

// Autocorrelation returns r[tau] = sum_j x[j]*x[j+tau] for tau in [0, maxLag].
// The signal is zero padded to avoid circular wrap-around.
func (f *FFT) Autocorrelation(x []float64, maxLag int) []float64 {
	n := len(x)
	if n == 0 {
		return []float64{}
	}
	if maxLag >= n {
		maxLag = n - 1
	}

	size := common.NextPowerOf2(2 * n)
	padded := make([]float64, size)
	copy(padded, x)

	spectrum := fft.FFTReal(padded)
	for i, c := range spectrum {
		spectrum[i] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
	}

	full := f.ComputeInverseReal(spectrum)
	return full[:maxLag+1]
}

// CrossCorrelation returns c[k] for k in [-maxLag, maxLag] where
// c[k] = sum_n a[n]*b[n+k]. Index i of the result holds lag i-maxLag.
func (f *FFT) CrossCorrelation(a, b []float64, maxLag int) []float64 {
	if len(a) == 0 || len(b) == 0 {
		return []float64{}
	}

	size := common.NextPowerOf2(len(a) + len(b) + 1)
	pa := make([]float64, size)
	pb := make([]float64, size)
	copy(pa, a)
	copy(pb, b)

	fa := fft.FFTReal(pa)
	fb := fft.FFTReal(pb)
	cross := make([]complex128, size)
	for i := range cross {
		cross[i] = cmplx.Conj(fa[i]) * fb[i]
	}
	circular := f.ComputeInverseReal(cross)

	out := make([]float64, 2*maxLag+1)
	for i := range out {
		lag := i - maxLag
		idx := lag
		if lag < 0 {
			idx = size + lag
		}
		if idx >= 0 && idx < size {
			out[i] = circular[idx]
		}
	}
	return out
}
