package player

import "context"

// Graph is the low-level audio stage the session drives. It owns decoding,
// output pacing, position tracking and the analysis buffers; the session
// never touches samples directly.
type Graph interface {
	// Load fetches and decodes the stream URL, replacing whatever was
	// loaded before. It does not start playback.
	Load(ctx context.Context, url string) error
	// Play starts or resumes output. Playing while already playing is a
	// no-op.
	Play()
	// Pause suspends output. Pausing while paused is a no-op.
	Pause()
	// Seek moves the play position, clamping to [0, duration].
	Seek(seconds float64)
	// SetGain sets the linear output gain in [0, 1].
	SetGain(gain float64)
	// Position returns the current play position in seconds.
	Position() float64
	// Duration returns the loaded track duration in seconds, 0 when
	// nothing is loaded.
	Duration() float64
	// FrequencyData returns a snapshot of the frequency-bin magnitudes,
	// nil when nothing is loaded.
	FrequencyData() []float64
	// WaveformData returns a snapshot of the recent output waveform,
	// nil when nothing is loaded.
	WaveformData() []float64
	// SetOnEnded registers the end-of-media callback.
	SetOnEnded(fn func())
	// Close releases the graph. The graph is unusable afterwards.
	Close() error
}
