package player

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// PCM output format shared by the graph and its listeners.
const (
	SampleRate    = 44100
	Channels      = 2
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 882                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // interleaved samples per frame
)

// PCMGraph is the concrete audio graph: it decodes a stream URL to PCM via
// ffmpeg, paces frames at real-time rate, applies gain, and feeds the
// analyser and the frame publisher.
type PCMGraph struct {
	ffmpegPath string
	publisher  *Publisher
	analyser   *Analyser

	mu         sync.Mutex
	samples    []int16
	frame      int // next frame index
	playing    bool
	gain       float64
	gen        int // load generation; stale pacing loops exit
	onEnded    func()
	loopCancel context.CancelFunc
	closed     bool
}

// NewPCMGraph creates an idle graph.
func NewPCMGraph(ffmpegPath string) *PCMGraph {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &PCMGraph{
		ffmpegPath: ffmpegPath,
		publisher:  NewPublisher(),
		analyser:   NewAnalyser(),
		gain:       1,
	}
}

// Publisher exposes the frame fan-out for output consumers.
func (g *PCMGraph) Publisher() *Publisher { return g.publisher }

// Load decodes url and replaces the loaded track. Playback does not start
// until Play is called.
func (g *PCMGraph) Load(ctx context.Context, url string) error {
	samples, err := decodeToPCM(ctx, g.ffmpegPath, url)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("decoded stream %s is empty", url)
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return fmt.Errorf("graph is closed")
	}
	if g.loopCancel != nil {
		g.loopCancel()
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	g.loopCancel = cancel
	g.samples = samples
	g.frame = 0
	g.playing = false
	g.gen++
	gen := g.gen
	g.mu.Unlock()

	g.analyser.Reset()
	go g.run(loopCtx, gen)
	return nil
}

// run is the pacing loop for one loaded track.
func (g *PCMGraph) run(ctx context.Context, gen int) {
	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.mu.Lock()
			if g.gen != gen {
				g.mu.Unlock()
				return
			}
			if !g.playing {
				g.mu.Unlock()
				continue
			}

			start := g.frame * FrameSamples
			if start >= len(g.samples) {
				g.playing = false
				ended := g.onEnded
				g.mu.Unlock()
				if ended != nil {
					ended()
				}
				return
			}

			end := start + FrameSamples
			if end > len(g.samples) {
				end = len(g.samples)
			}
			src := g.samples[start:end]
			gain := g.gain
			g.frame++
			g.mu.Unlock()

			frame := make([]int16, len(src))
			for i, s := range src {
				frame[i] = int16(float64(s) * gain)
			}
			g.analyser.WriteFrame(frame)
			g.publisher.Publish(frame)
		}
	}
}

// Play starts or resumes output. No-op when already playing or when
// nothing is loaded.
func (g *PCMGraph) Play() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || len(g.samples) == 0 {
		return
	}
	g.playing = true
}

// Pause suspends output. No-op when already paused.
func (g *PCMGraph) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.playing = false
}

// Seek moves the position, clamping to the loaded duration.
func (g *PCMGraph) Seek(seconds float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.samples) == 0 {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	maxFrames := len(g.samples) / FrameSamples
	frame := int(seconds / FrameDuration.Seconds())
	if frame > maxFrames {
		frame = maxFrames
	}
	g.frame = frame
}

// SetGain sets the linear output gain, clamped to [0, 1].
func (g *PCMGraph) SetGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	if gain > 1 {
		gain = 1
	}
	g.mu.Lock()
	g.gain = gain
	g.mu.Unlock()
}

// Position returns the current position in seconds.
func (g *PCMGraph) Position() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return float64(g.frame) * FrameDuration.Seconds()
}

// Duration returns the loaded duration in seconds, 0 when idle.
func (g *PCMGraph) Duration() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return float64(len(g.samples)) / float64(SampleRate*Channels)
}

// FrequencyData returns the analyser's frequency snapshot, nil when
// nothing is loaded.
func (g *PCMGraph) FrequencyData() []float64 {
	g.mu.Lock()
	loaded := len(g.samples) > 0
	g.mu.Unlock()
	if !loaded {
		return nil
	}
	return g.analyser.Frequency()
}

// WaveformData returns the analyser's waveform snapshot, nil when nothing
// is loaded.
func (g *PCMGraph) WaveformData() []float64 {
	g.mu.Lock()
	loaded := len(g.samples) > 0
	g.mu.Unlock()
	if !loaded {
		return nil
	}
	return g.analyser.Waveform()
}

// SetOnEnded registers the end-of-media callback.
func (g *PCMGraph) SetOnEnded(fn func()) {
	g.mu.Lock()
	g.onEnded = fn
	g.mu.Unlock()
}

// Close stops the pacing loop and releases the graph.
func (g *PCMGraph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.playing = false
	g.samples = nil
	if g.loopCancel != nil {
		g.loopCancel()
		g.loopCancel = nil
	}
	return nil
}

// decodeToPCM runs ffmpeg to decode a URL or path to interleaved stereo
// int16 samples at SampleRate.
func decodeToPCM(ctx context.Context, ffmpegPath, url string) ([]int16, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-i", url,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprintf("%d", SampleRate),
		"-ac", fmt.Sprintf("%d", Channels),
		"-loglevel", "error",
		"pipe:1",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode failed: %w: %s", err, stderr.String())
	}

	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}
	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
	}
	return samples, nil
}
