package player

import (
	"math"
	"sync"

	"github.com/mjibson/go-dsp/fft"
)

const (
	// analysisWindow is the number of recent mono samples kept for
	// visualization. Power of two so the FFT needs no padding.
	analysisWindow = 2048
	// frequencyBins is the size of the FrequencyData snapshot.
	frequencyBins = 64
)

// Analyser keeps a rolling window of output samples and derives pull-based
// visualization snapshots from it. Consumers poll on an animation-frame
// cadence; nothing is pushed.
type Analyser struct {
	mu     sync.Mutex
	window [analysisWindow]float64
	pos    int
	filled bool
}

// NewAnalyser creates an empty analyser.
func NewAnalyser() *Analyser {
	return &Analyser{}
}

// Reset clears the window, e.g. when a new track loads.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.window = [analysisWindow]float64{}
	a.pos = 0
	a.filled = false
}

// WriteFrame folds an interleaved stereo int16 frame into the window as
// normalized mono samples.
func (a *Analyser) WriteFrame(frame []int16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i+1 < len(frame); i += 2 {
		mono := (float64(frame[i]) + float64(frame[i+1])) / 2.0 / 32768.0
		a.window[a.pos] = mono
		a.pos++
		if a.pos == analysisWindow {
			a.pos = 0
			a.filled = true
		}
	}
}

// snapshot copies the window in chronological order.
func (a *Analyser) snapshot() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.filled && a.pos == 0 {
		return nil
	}
	out := make([]float64, analysisWindow)
	copy(out, a.window[a.pos:])
	copy(out[analysisWindow-a.pos:], a.window[:a.pos])
	return out
}

// Waveform returns the recent output waveform, normalized to [-1, 1].
// Returns nil when no audio has passed through yet.
func (a *Analyser) Waveform() []float64 {
	return a.snapshot()
}

// Frequency returns frequencyBins magnitude values computed over the
// window. Returns nil when no audio has passed through yet.
func (a *Analyser) Frequency() []float64 {
	samples := a.snapshot()
	if samples == nil {
		return nil
	}

	spectrum := fft.FFTReal(samples)

	// Only the first half of the spectrum is meaningful for real input.
	half := len(spectrum) / 2
	binWidth := half / frequencyBins
	if binWidth == 0 {
		binWidth = 1
	}

	bins := make([]float64, frequencyBins)
	for b := 0; b < frequencyBins; b++ {
		start := b * binWidth
		end := start + binWidth
		if end > half {
			end = half
		}
		var sum float64
		for i := start; i < end; i++ {
			sum += math.Hypot(real(spectrum[i]), imag(spectrum[i]))
		}
		if end > start {
			bins[b] = sum / float64(end-start) / float64(analysisWindow)
		}
	}
	return bins
}

// Average returns the mean of the frequency bins, 0 when nothing is loaded.
func (a *Analyser) Average() float64 {
	bins := a.Frequency()
	if len(bins) == 0 {
		return 0
	}
	var sum float64
	for _, v := range bins {
		sum += v
	}
	return sum / float64(len(bins))
}
