package player

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"driftfm/model"
)

// fakeGraph is an in-memory Graph for session tests.
type fakeGraph struct {
	mu       sync.Mutex
	loaded   string
	playing  bool
	position float64
	duration float64
	gain     float64
	loadErr  error
	seeks    []float64
	onEnded  func()
}

func (g *fakeGraph) Load(ctx context.Context, url string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loadErr != nil {
		return g.loadErr
	}
	g.loaded = url
	g.position = 0
	g.duration = 180
	return nil
}

func (g *fakeGraph) Play() {
	g.mu.Lock()
	g.playing = true
	g.mu.Unlock()
}

func (g *fakeGraph) Pause() {
	g.mu.Lock()
	g.playing = false
	g.mu.Unlock()
}

func (g *fakeGraph) Seek(seconds float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	if seconds > g.duration {
		seconds = g.duration
	}
	g.position = seconds
	g.seeks = append(g.seeks, seconds)
}

func (g *fakeGraph) SetGain(gain float64) {
	g.mu.Lock()
	g.gain = gain
	g.mu.Unlock()
}

func (g *fakeGraph) Position() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.position
}

func (g *fakeGraph) Duration() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.duration
}

func (g *fakeGraph) FrequencyData() []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loaded == "" {
		return nil
	}
	return []float64{0.5, 0.25, 0.25}
}

func (g *fakeGraph) WaveformData() []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loaded == "" {
		return nil
	}
	return []float64{0, 0.1, -0.1}
}

func (g *fakeGraph) SetOnEnded(fn func()) {
	g.mu.Lock()
	g.onEnded = fn
	g.mu.Unlock()
}

func (g *fakeGraph) Close() error { return nil }

func (g *fakeGraph) setPosition(p float64) {
	g.mu.Lock()
	g.position = p
	g.mu.Unlock()
}

func (g *fakeGraph) isPlaying() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.playing
}

func (g *fakeGraph) gainValue() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gain
}

// fakeService is an in-memory catalog Service.
type fakeService struct {
	mu          sync.Mutex
	streamErr   error
	related     []model.Track
	relatedErr  error
	relatedGate map[int64]chan struct{} // optional per-track gate to delay fetches
	plays       []int64
}

func (s *fakeService) StreamURL(ctx context.Context, trackID int64) (model.StreamURL, error) {
	s.mu.Lock()
	err := s.streamErr
	s.mu.Unlock()
	if err != nil {
		return model.StreamURL{}, err
	}
	return model.StreamURL{
		URL:              fmt.Sprintf("https://cdn.example.com/stream/%d", trackID),
		ExpiresInSeconds: 3600,
	}, nil
}

func (s *fakeService) ReportPlay(ctx context.Context, trackID int64) error {
	s.mu.Lock()
	s.plays = append(s.plays, trackID)
	s.mu.Unlock()
	return nil
}

func (s *fakeService) Related(ctx context.Context, trackID int64, limit int) ([]model.Track, error) {
	s.mu.Lock()
	gate := s.relatedGate[trackID]
	err := s.relatedErr
	related := make([]model.Track, len(s.related))
	copy(related, s.related)
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if len(related) > limit {
		related = related[:limit]
	}
	return related, nil
}

func (s *fakeService) playedTracks() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.plays))
	copy(out, s.plays)
	return out
}

// fakeClock is a mutex-guarded test clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func track(id int64) model.Track {
	return model.Track{ID: id, Title: fmt.Sprintf("Track %d", id), Artist: "Artist"}
}

func newTestSession(t *testing.T) (*Session, *fakeGraph, *fakeService, *fakeClock) {
	t.Helper()
	graph := &fakeGraph{}
	svc := &fakeService{}
	s := NewSession(graph, svc, Options{RelatedLimit: 5})
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.now = clock.Now
	t.Cleanup(func() { s.Close() })
	return s, graph, svc, clock
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPlayTrackStartsPlayback(t *testing.T) {
	s, graph, svc, _ := newTestSession(t)

	s.PlayTrack(track(1), false)

	waitFor(t, "playing state", func() bool {
		return s.Snapshot().State == StatePlaying
	})
	if graph.loaded == "" {
		t.Error("graph never loaded a stream URL")
	}
	waitFor(t, "play event report", func() bool {
		plays := svc.playedTracks()
		return len(plays) == 1 && plays[0] == 1
	})
}

func TestPlayTrackAutoExtendsEmptyQueue(t *testing.T) {
	s, _, svc, _ := newTestSession(t)
	svc.related = []model.Track{track(10), track(11), track(12)}

	s.PlayTrack(track(1), false)

	waitFor(t, "queue auto-extension", func() bool {
		snap := s.Snapshot()
		return len(snap.Queue) == 4 && snap.QueueIndex == 0
	})
	snap := s.Snapshot()
	if snap.Queue[0].ID != 1 {
		t.Errorf("queue head = %d, want the played track", snap.Queue[0].ID)
	}
}

func TestPlayTrackSkipQueueExtend(t *testing.T) {
	s, _, svc, _ := newTestSession(t)
	svc.related = []model.Track{track(10)}

	s.PlayTrack(track(1), true)

	waitFor(t, "playing state", func() bool {
		return s.Snapshot().State == StatePlaying
	})
	// Give any (incorrect) extension a chance to land.
	time.Sleep(50 * time.Millisecond)
	if n := len(s.Snapshot().Queue); n != 1 {
		t.Errorf("queue length = %d, want 1 when extension is skipped", n)
	}
}

func TestPlayTrackStreamURLFailure(t *testing.T) {
	s, graph, svc, _ := newTestSession(t)
	svc.streamErr = fmt.Errorf("catalog unreachable")

	s.PlayTrack(track(1), false)

	waitFor(t, "error state", func() bool {
		return s.Snapshot().State == StateError
	})
	snap := s.Snapshot()
	if snap.Error == "" {
		t.Error("error state carries no message")
	}
	if snap.IsPlaying {
		t.Error("session reports playing after a failed play")
	}
	if graph.isPlaying() {
		t.Error("graph is playing after a failed play")
	}
}

func TestStaleRelatedFetchDiscarded(t *testing.T) {
	s, _, svc, _ := newTestSession(t)
	gate := make(chan struct{})
	svc.mu.Lock()
	svc.related = []model.Track{track(100)}
	svc.relatedGate = map[int64]chan struct{}{1: gate}
	svc.mu.Unlock()

	// Play track 1; its extension fetch blocks on the gate.
	s.PlayTrack(track(1), false)
	waitFor(t, "track 1 playing", func() bool {
		snap := s.Snapshot()
		return snap.CurrentTrack != nil && snap.CurrentTrack.ID == 1 && snap.State == StatePlaying
	})

	// Supersede it with track 2 before the stale fetch resolves.
	s.PlayTrack(track(2), false)
	waitFor(t, "track 2 queue", func() bool {
		snap := s.Snapshot()
		return snap.CurrentTrack != nil && snap.CurrentTrack.ID == 2 && len(snap.Queue) == 2
	})

	close(gate)
	time.Sleep(50 * time.Millisecond)

	snap := s.Snapshot()
	if snap.Queue[0].ID != 2 {
		t.Errorf("queue head = %d; the stale fetch for track 1 overwrote a newer queue", snap.Queue[0].ID)
	}
}

func TestQueueIndexStaysInBounds(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	tracks := []model.Track{track(1), track(2), track(3)}

	s.SetQueue(tracks)
	waitFor(t, "first track playing", func() bool {
		return s.Snapshot().State == StatePlaying
	})

	check := func(op string) {
		snap := s.Snapshot()
		if len(snap.Queue) > 0 && (snap.QueueIndex < 0 || snap.QueueIndex >= len(snap.Queue)) {
			t.Fatalf("after %s: queue index %d out of bounds for queue of %d", op, snap.QueueIndex, len(snap.Queue))
		}
	}

	for i := 0; i < 5; i++ {
		s.SkipForward()
		check("SkipForward")
	}
	// Saturates at the last index rather than wrapping.
	if got := s.Snapshot().QueueIndex; got != 2 {
		t.Errorf("index after repeated SkipForward = %d, want 2", got)
	}

	for i := 0; i < 5; i++ {
		s.SkipBackward()
		check("SkipBackward")
	}

	s.ToggleShuffle()
	for i := 0; i < 10; i++ {
		s.SkipForward()
		check("shuffled SkipForward")
	}

	s.AddToQueue(track(4))
	check("AddToQueue")
}

func TestToggleRepeatCycles(t *testing.T) {
	s, _, _, _ := newTestSession(t)

	if got := s.Snapshot().Repeat; got != RepeatOff {
		t.Fatalf("initial repeat = %s, want off", got)
	}
	s.ToggleRepeat()
	if got := s.Snapshot().Repeat; got != RepeatAll {
		t.Errorf("after 1 toggle repeat = %s, want all", got)
	}
	s.ToggleRepeat()
	if got := s.Snapshot().Repeat; got != RepeatOne {
		t.Errorf("after 2 toggles repeat = %s, want one", got)
	}
	s.ToggleRepeat()
	if got := s.Snapshot().Repeat; got != RepeatOff {
		t.Errorf("after 3 toggles repeat = %s, want off", got)
	}
}

func TestSkipBackwardRestartsMidTrack(t *testing.T) {
	s, graph, _, _ := newTestSession(t)
	s.SetQueue([]model.Track{track(1), track(2), track(3)})
	waitFor(t, "playing", func() bool { return s.Snapshot().State == StatePlaying })

	s.SkipForward()
	s.SkipForward()
	waitFor(t, "index 2", func() bool { return s.Snapshot().QueueIndex == 2 })

	graph.setPosition(10)
	s.SkipBackward()

	if got := s.Snapshot().QueueIndex; got != 2 {
		t.Errorf("queue index = %d after mid-track back-skip, want 2", got)
	}
	graph.mu.Lock()
	restarted := len(graph.seeks) > 0 && graph.seeks[len(graph.seeks)-1] == 0
	graph.mu.Unlock()
	if !restarted {
		t.Error("mid-track back-skip did not seek to 0")
	}
}

func TestSkipBackwardNavigatesEarlyInTrack(t *testing.T) {
	s, graph, _, _ := newTestSession(t)
	s.SetQueue([]model.Track{track(1), track(2), track(3)})
	waitFor(t, "playing", func() bool { return s.Snapshot().State == StatePlaying })

	s.SkipForward()
	s.SkipForward()
	waitFor(t, "index 2", func() bool { return s.Snapshot().QueueIndex == 2 })

	graph.setPosition(1)
	s.SkipBackward()

	waitFor(t, "previous track playing", func() bool {
		snap := s.Snapshot()
		return snap.QueueIndex == 1 && snap.CurrentTrack != nil && snap.CurrentTrack.ID == 2 && snap.State == StatePlaying
	})
}

func TestTrackEndRepeatOne(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	s.SetQueue([]model.Track{track(1), track(2)})
	waitFor(t, "playing", func() bool { return s.Snapshot().State == StatePlaying })

	s.ToggleRepeat() // all
	s.ToggleRepeat() // one

	before := s.Snapshot()
	s.handleTrackEnd()

	waitFor(t, "replay of the same track", func() bool {
		snap := s.Snapshot()
		return snap.State == StatePlaying && snap.CurrentTrack.ID == before.CurrentTrack.ID
	})
	if got := s.Snapshot().QueueIndex; got != before.QueueIndex {
		t.Errorf("queue index changed on repeat-one: %d -> %d", before.QueueIndex, got)
	}
}

func TestTrackEndAdvances(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	s.SetQueue([]model.Track{track(1), track(2), track(3)})
	waitFor(t, "playing", func() bool { return s.Snapshot().State == StatePlaying })

	s.handleTrackEnd()

	waitFor(t, "advance to next track", func() bool {
		snap := s.Snapshot()
		return snap.QueueIndex == 1 && snap.CurrentTrack != nil && snap.CurrentTrack.ID == 2 && snap.State == StatePlaying
	})
}

func TestTrackEndRepeatAllWraps(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	s.SetQueue([]model.Track{track(1), track(2)})
	waitFor(t, "playing", func() bool { return s.Snapshot().State == StatePlaying })

	s.ToggleRepeat() // all
	s.SkipForward()
	waitFor(t, "last index", func() bool { return s.Snapshot().QueueIndex == 1 })

	s.handleTrackEnd()

	waitFor(t, "wrap to queue head", func() bool {
		snap := s.Snapshot()
		return snap.QueueIndex == 0 && snap.CurrentTrack != nil && snap.CurrentTrack.ID == 1 && snap.State == StatePlaying
	})
}

func TestTrackEndExtendsExhaustedQueue(t *testing.T) {
	s, _, svc, _ := newTestSession(t)
	s.SetQueue([]model.Track{track(1), track(2)})
	waitFor(t, "playing", func() bool { return s.Snapshot().State == StatePlaying })

	s.SkipForward()
	waitFor(t, "last index", func() bool { return s.Snapshot().QueueIndex == 1 })

	svc.mu.Lock()
	svc.related = []model.Track{track(20), track(21), track(22)}
	svc.mu.Unlock()

	s.handleTrackEnd()

	waitFor(t, "queue extension and advance", func() bool {
		snap := s.Snapshot()
		return len(snap.Queue) == 5 && snap.QueueIndex == 2 &&
			snap.CurrentTrack != nil && snap.CurrentTrack.ID == 20 && snap.State == StatePlaying
	})
}

func TestTrackEndExtensionFailureGoesIdle(t *testing.T) {
	s, _, svc, _ := newTestSession(t)
	s.SetQueue([]model.Track{track(1)})
	waitFor(t, "playing", func() bool { return s.Snapshot().State == StatePlaying })

	svc.mu.Lock()
	svc.relatedErr = fmt.Errorf("recommendation service down")
	svc.mu.Unlock()

	s.handleTrackEnd()

	waitFor(t, "idle state", func() bool {
		return s.Snapshot().State == StateIdle
	})
}

func TestStillListeningGuard(t *testing.T) {
	s, graph, _, clock := newTestSession(t)
	s.PlayTrack(track(1), true)
	waitFor(t, "playing", func() bool { return s.Snapshot().State == StatePlaying })

	// Under the threshold: nothing happens.
	clock.Advance(2 * time.Hour)
	s.checkStillListening()
	if snap := s.Snapshot(); snap.ShowStillListeningPrompt || snap.State != StatePlaying {
		t.Fatalf("guard fired early: %+v", snap)
	}

	// Past three cumulative hours: force-pause and prompt.
	clock.Advance(61 * time.Minute)
	s.checkStillListening()
	snap := s.Snapshot()
	if !snap.ShowStillListeningPrompt {
		t.Error("prompt not raised after 3h of continuous play")
	}
	if snap.State != StatePaused {
		t.Errorf("state = %s after guard, want paused", snap.State)
	}
	if graph.isPlaying() {
		t.Error("graph still playing after guard force-pause")
	}

	// Confirmation clears the prompt, resets the timer and resumes.
	s.ConfirmStillListening()
	snap = s.Snapshot()
	if snap.ShowStillListeningPrompt {
		t.Error("prompt not cleared by confirmation")
	}
	if snap.State != StatePlaying {
		t.Errorf("state = %s after confirmation, want playing", snap.State)
	}

	// The timer restarted from zero.
	clock.Advance(time.Hour)
	s.checkStillListening()
	if snap := s.Snapshot(); snap.ShowStillListeningPrompt {
		t.Error("guard fired again before a fresh 3h elapsed")
	}
}

func TestVolumeMuteIndependence(t *testing.T) {
	s, graph, _, _ := newTestSession(t)
	s.PlayTrack(track(1), true)
	waitFor(t, "playing", func() bool { return s.Snapshot().State == StatePlaying })

	s.SetVolume(40)
	if g := graph.gainValue(); g != 0.4 {
		t.Errorf("gain = %v after SetVolume(40), want 0.4", g)
	}

	s.ToggleMute()
	if g := graph.gainValue(); g != 0 {
		t.Errorf("gain = %v while muted, want 0", g)
	}
	if v := s.Snapshot().Volume; v != 40 {
		t.Errorf("stored volume = %d while muted, want 40", v)
	}

	s.ToggleMute()
	if g := graph.gainValue(); g != 0.4 {
		t.Errorf("gain = %v after unmute, want 0.4 restored", g)
	}
}

func TestVisualizationAccessorsIdle(t *testing.T) {
	s, _, _, _ := newTestSession(t)

	if data := s.FrequencyData(); data != nil {
		t.Errorf("FrequencyData = %v with no track loaded, want nil", data)
	}
	if data := s.WaveformData(); data != nil {
		t.Errorf("WaveformData = %v with no track loaded, want nil", data)
	}
	if avg := s.AverageFrequency(); avg != 0 {
		t.Errorf("AverageFrequency = %v with no track loaded, want 0", avg)
	}
}

func TestAverageFrequency(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	s.PlayTrack(track(1), true)
	waitFor(t, "playing", func() bool { return s.Snapshot().State == StatePlaying })

	// fakeGraph reports bins {0.5, 0.25, 0.25}.
	want := (0.5 + 0.25 + 0.25) / 3
	if avg := s.AverageFrequency(); avg != want {
		t.Errorf("AverageFrequency = %v, want %v", avg, want)
	}
}

func TestSetQueueEmptyGoesIdle(t *testing.T) {
	s, graph, _, _ := newTestSession(t)
	s.SetQueue([]model.Track{track(1)})
	waitFor(t, "playing", func() bool { return s.Snapshot().State == StatePlaying })

	s.SetQueue(nil)

	snap := s.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("state = %s after clearing the queue, want idle", snap.State)
	}
	if graph.isPlaying() {
		t.Error("graph still playing after the queue was cleared")
	}
}

func TestPauseResumeIdempotent(t *testing.T) {
	s, graph, _, _ := newTestSession(t)
	s.PlayTrack(track(1), true)
	waitFor(t, "playing", func() bool { return s.Snapshot().State == StatePlaying })

	s.Pause()
	s.Pause()
	if s.Snapshot().State != StatePaused {
		t.Fatal("double pause broke the paused state")
	}
	if graph.isPlaying() {
		t.Error("graph playing while paused")
	}

	s.Resume()
	s.Resume()
	if s.Snapshot().State != StatePlaying {
		t.Fatal("double resume broke the playing state")
	}

	s.TogglePlayPause()
	if s.Snapshot().State != StatePaused {
		t.Error("toggle from playing did not pause")
	}
	s.TogglePlayPause()
	if s.Snapshot().State != StatePlaying {
		t.Error("toggle from paused did not resume")
	}
}

func TestSubscribeReceivesStateChanges(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	sub := s.Subscribe()
	defer s.Unsubscribe(sub)

	s.SetVolume(25)

	select {
	case snap := <-sub:
		if snap.Volume != 25 {
			t.Errorf("snapshot volume = %d, want 25", snap.Volume)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered after a state change")
	}
}
