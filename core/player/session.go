package player

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"driftfm/logger"
	"driftfm/model"
)

// State names the transport state.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateError   State = "error"
)

// RepeatMode controls track-end behavior.
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatAll RepeatMode = "all"
	RepeatOne RepeatMode = "one"
)

// restartThreshold is how far into a track a back-skip restarts it instead
// of navigating to the previous one.
const restartThreshold = 3.0 // seconds

// Snapshot is a point-in-time copy of the session state. UI surfaces only
// ever see snapshots; mutation goes through the control operations.
type Snapshot struct {
	CurrentTrack             *model.Track  `json:"currentTrack"`
	State                    State         `json:"state"`
	IsPlaying                bool          `json:"isPlaying"`
	IsLoading                bool          `json:"isLoading"`
	IsBuffering              bool          `json:"isBuffering"`
	CurrentTime              float64       `json:"currentTime"`
	Duration                 float64       `json:"duration"`
	Volume                   int           `json:"volume"`
	Muted                    bool          `json:"isMuted"`
	Queue                    []model.Track `json:"queue"`
	QueueIndex               int           `json:"queueIndex"`
	Shuffle                  bool          `json:"shuffle"`
	Repeat                   RepeatMode    `json:"repeat"`
	Error                    string        `json:"error,omitempty"`
	ShowStillListeningPrompt bool          `json:"showStillListeningPrompt"`
}

// Options tunes a session.
type Options struct {
	RelatedLimit        int           // Queue-extension batch size; default 10
	StillListeningAfter time.Duration // Guard threshold; default 3h
	Volume              int           // Initial volume 0-100; default 70
}

// queueExtendMode selects what the unified queue-extension policy does with
// fetched related tracks.
type queueExtendMode int

const (
	// extendReplace rebuilds the queue as [current, related...]. Used when
	// a single track is played without an existing queue.
	extendReplace queueExtendMode = iota
	// extendAppendAdvance appends related tracks and continues playback
	// into the first appended one. Used when the queue runs out.
	extendAppendAdvance
)

// Session is the single shared playback session: one current track, one
// queue, one transport state. All control operations are safe for
// concurrent use; async work (URL resolution, related-track fetches) is
// tagged with the track it was issued for and discarded when stale.
type Session struct {
	graph        Graph
	svc          Service
	relatedLimit int
	stillAfter   time.Duration

	mu       sync.Mutex
	current  *model.Track
	queue    []model.Track
	index    int
	state    State
	volume   int
	muted    bool
	shuffle  bool
	repeat   RepeatMode
	errMsg   string
	prompt   bool
	playSeq  uint64
	listened time.Duration // accumulated continuous play time
	playFrom time.Time     // start of the current playing stretch

	now func() time.Time
	rng *rand.Rand

	subs map[chan Snapshot]struct{}

	guardCancel context.CancelFunc
}

// NewSession creates the playback session and starts the
// continuous-listening guard. Call Close at application shutdown.
func NewSession(graph Graph, svc Service, opts Options) *Session {
	if opts.RelatedLimit <= 0 {
		opts.RelatedLimit = 10
	}
	if opts.StillListeningAfter <= 0 {
		opts.StillListeningAfter = 3 * time.Hour
	}
	if opts.Volume <= 0 || opts.Volume > 100 {
		opts.Volume = 70
	}

	s := &Session{
		graph:        graph,
		svc:          svc,
		relatedLimit: opts.RelatedLimit,
		stillAfter:   opts.StillListeningAfter,
		state:        StateIdle,
		volume:       opts.Volume,
		repeat:       RepeatOff,
		now:          time.Now,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		subs:         make(map[chan Snapshot]struct{}),
	}

	graph.SetOnEnded(s.handleTrackEnd)

	ctx, cancel := context.WithCancel(context.Background())
	s.guardCancel = cancel
	go s.runListeningGuard(ctx)

	return s
}

// Close tears the session down.
func (s *Session) Close() error {
	s.guardCancel()
	return s.graph.Close()
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	queue := make([]model.Track, len(s.queue))
	copy(queue, s.queue)

	var current *model.Track
	if s.current != nil {
		c := *s.current
		current = &c
	}

	return Snapshot{
		CurrentTrack:             current,
		State:                    s.state,
		IsPlaying:                s.state == StatePlaying,
		IsLoading:                s.state == StateLoading,
		IsBuffering:              s.state == StateLoading,
		CurrentTime:              s.graph.Position(),
		Duration:                 s.graph.Duration(),
		Volume:                   s.volume,
		Muted:                    s.muted,
		Queue:                    queue,
		QueueIndex:               s.index,
		Shuffle:                  s.shuffle,
		Repeat:                   s.repeat,
		Error:                    s.errMsg,
		ShowStillListeningPrompt: s.prompt,
	}
}

// Subscribe registers a state observer. The channel receives a snapshot
// after every state change; slow observers miss intermediate states rather
// than blocking the session.
func (s *Session) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, 8)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes a state observer.
func (s *Session) Unsubscribe(ch chan Snapshot) {
	s.mu.Lock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
	s.mu.Unlock()
}

func (s *Session) emit() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	for ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	s.mu.Unlock()
}

// PlayTrack makes track current and starts playback. A fresh signed stream
// URL is requested for every play. When the queue is empty or holds only
// this track and skipQueueExtend is false, the queue is rebuilt as
// [track, related...] so single-track plays still get continuous playback.
// Failures surface through the error state, never as a panic or return
// value; the caller re-invokes PlayTrack to retry.
func (s *Session) PlayTrack(track model.Track, skipQueueExtend bool) {
	s.mu.Lock()
	s.playSeq++
	seq := s.playSeq
	s.current = &track
	s.state = StateLoading
	s.errMsg = ""
	s.prompt = false
	if len(s.queue) == 0 {
		s.queue = []model.Track{track}
		s.index = 0
	} else {
		for i := range s.queue {
			if s.queue[i].ID == track.ID {
				s.index = i
				break
			}
		}
	}
	needExtend := !skipQueueExtend && len(s.queue) <= 1
	s.mu.Unlock()
	s.emit()

	go s.startPlayback(seq, track, needExtend)
}

func (s *Session) startPlayback(seq uint64, track model.Track, extend bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	streamURL, err := s.svc.StreamURL(ctx, track.ID)
	if err != nil {
		s.failPlayback(seq, track.ID, fmt.Sprintf("stream URL resolution failed: %v", err))
		return
	}

	if err := s.graph.Load(ctx, streamURL.URL); err != nil {
		s.failPlayback(seq, track.ID, fmt.Sprintf("decode failed: %v", err))
		return
	}

	s.mu.Lock()
	if seq != s.playSeq {
		// A newer PlayTrack superseded this one while we were loading.
		s.mu.Unlock()
		return
	}
	s.state = StatePlaying
	s.playFrom = s.now()
	s.applyGainLocked()
	s.mu.Unlock()

	s.graph.Play()
	s.emit()

	// Best-effort play-history report; not awaited for UI purposes.
	go func() {
		rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer rcancel()
		if err := s.svc.ReportPlay(rctx, track.ID); err != nil {
			logger.Debug("play event report failed",
				logger.Int64("trackId", track.ID),
				logger.ErrorField(err))
		}
	}()

	if extend {
		go s.extendQueue(track.ID, extendReplace)
	}
}

func (s *Session) failPlayback(seq uint64, trackID int64, msg string) {
	s.mu.Lock()
	if seq != s.playSeq {
		s.mu.Unlock()
		return
	}
	s.state = StateError
	s.errMsg = msg
	s.mu.Unlock()

	logger.Warn("playback failed",
		logger.Int64("trackId", trackID),
		logger.String("error", msg))
	s.emit()
}

// extendQueue is the one queue-extension policy. It fetches related tracks
// for forTrackID and applies them according to mode; results are discarded
// when the current track changed while the fetch was in flight. Fetch
// failures are logged and swallowed; playback just stops extending.
func (s *Session) extendQueue(forTrackID int64, mode queueExtendMode) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	related, err := s.svc.Related(ctx, forTrackID, s.relatedLimit)
	if err != nil {
		logger.Warn("related tracks fetch failed",
			logger.Int64("trackId", forTrackID),
			logger.ErrorField(err))
		s.settleAfterFailedExtend(forTrackID, mode)
		return
	}
	if len(related) == 0 {
		s.settleAfterFailedExtend(forTrackID, mode)
		return
	}

	s.mu.Lock()
	if s.current == nil || s.current.ID != forTrackID {
		// Stale fetch: a newer PlayTrack owns the queue now.
		s.mu.Unlock()
		return
	}

	var next *model.Track
	switch mode {
	case extendReplace:
		queue := make([]model.Track, 0, 1+len(related))
		queue = append(queue, *s.current)
		queue = append(queue, related...)
		s.queue = queue
		s.index = 0
	case extendAppendAdvance:
		s.queue = append(s.queue, related...)
		s.index = len(s.queue) - len(related)
		track := s.queue[s.index]
		next = &track
	}
	s.mu.Unlock()
	s.emit()

	if next != nil {
		s.PlayTrack(*next, true)
	}
}

// settleAfterFailedExtend parks the transport when a track ended and no
// related tracks could be fetched: the queue is exhausted, so the session
// goes idle instead of crashing or spinning.
func (s *Session) settleAfterFailedExtend(forTrackID int64, mode queueExtendMode) {
	if mode != extendAppendAdvance {
		return
	}
	s.mu.Lock()
	if s.current != nil && s.current.ID == forTrackID && s.state == StatePlaying {
		s.state = StateIdle
		s.noteStoppedLocked()
	}
	s.mu.Unlock()
	s.emit()
}

// Pause suspends playback. Idempotent.
func (s *Session) Pause() {
	s.mu.Lock()
	if s.state == StatePlaying {
		s.state = StatePaused
		s.noteStoppedLocked()
	}
	s.mu.Unlock()
	s.graph.Pause()
	s.emit()
}

// Resume continues playback of the current track. Idempotent.
func (s *Session) Resume() {
	s.mu.Lock()
	if s.current == nil || s.state != StatePaused {
		s.mu.Unlock()
		return
	}
	s.state = StatePlaying
	s.playFrom = s.now()
	s.mu.Unlock()
	s.graph.Play()
	s.emit()
}

// TogglePlayPause flips between playing and paused.
func (s *Session) TogglePlayPause() {
	s.mu.Lock()
	playing := s.state == StatePlaying
	s.mu.Unlock()
	if playing {
		s.Pause()
	} else {
		s.Resume()
	}
}

// Seek moves the play position. Out-of-range values are clamped by the
// graph, not here.
func (s *Session) Seek(seconds float64) {
	s.graph.Seek(seconds)
	s.emit()
}

// SetVolume sets the volume on a 0-100 linear scale.
func (s *Session) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	s.mu.Lock()
	s.volume = volume
	s.applyGainLocked()
	s.mu.Unlock()
	s.emit()
}

// ToggleMute flips the mute flag. The stored volume is untouched, so
// unmuting restores the prior level.
func (s *Session) ToggleMute() {
	s.mu.Lock()
	s.muted = !s.muted
	s.applyGainLocked()
	s.mu.Unlock()
	s.emit()
}

func (s *Session) applyGainLocked() {
	if s.muted {
		s.graph.SetGain(0)
		return
	}
	s.graph.SetGain(float64(s.volume) / 100.0)
}

// ToggleShuffle flips the shuffle flag. The queue order itself is never
// reordered; only SkipForward consults the flag, so repeat-all still
// cycles the original order.
func (s *Session) ToggleShuffle() {
	s.mu.Lock()
	s.shuffle = !s.shuffle
	s.mu.Unlock()
	s.emit()
}

// ToggleRepeat cycles off -> all -> one -> off.
func (s *Session) ToggleRepeat() {
	s.mu.Lock()
	switch s.repeat {
	case RepeatOff:
		s.repeat = RepeatAll
	case RepeatAll:
		s.repeat = RepeatOne
	default:
		s.repeat = RepeatOff
	}
	s.mu.Unlock()
	s.emit()
}

// SkipForward advances in the queue: a uniformly random index under
// shuffle, otherwise the next index, saturating at the end.
func (s *Session) SkipForward() {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	if s.shuffle {
		s.index = s.rng.Intn(len(s.queue))
	} else if s.index < len(s.queue)-1 {
		s.index++
	}
	track := s.queue[s.index]
	s.mu.Unlock()

	s.PlayTrack(track, true)
}

// SkipBackward restarts the current track when more than three seconds
// have elapsed, otherwise navigates to the previous queue entry if one
// exists.
func (s *Session) SkipBackward() {
	if s.graph.Position() > restartThreshold {
		s.graph.Seek(0)
		s.emit()
		return
	}

	s.mu.Lock()
	if s.index == 0 || len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	s.index--
	track := s.queue[s.index]
	s.mu.Unlock()

	s.PlayTrack(track, true)
}

// AddToQueue appends a track to the queue.
func (s *Session) AddToQueue(track model.Track) {
	s.mu.Lock()
	s.queue = append(s.queue, track)
	s.mu.Unlock()
	s.emit()
}

// SetQueue replaces the queue wholesale, resets the index and immediately
// begins playing the first track.
func (s *Session) SetQueue(tracks []model.Track) {
	s.mu.Lock()
	s.queue = make([]model.Track, len(tracks))
	copy(s.queue, tracks)
	s.index = 0
	if len(tracks) == 0 {
		s.current = nil
		s.state = StateIdle
		s.noteStoppedLocked()
		s.mu.Unlock()
		s.graph.Pause()
		s.emit()
		return
	}
	first := tracks[0]
	s.mu.Unlock()

	s.PlayTrack(first, false)
}

// handleTrackEnd is the end-of-media handler registered with the graph.
func (s *Session) handleTrackEnd() {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	current := *s.current

	switch {
	case s.repeat == RepeatOne:
		// Replay the same track; the queue index does not move.
		s.mu.Unlock()
		s.PlayTrack(current, true)

	case s.index < len(s.queue)-1:
		s.index++
		track := s.queue[s.index]
		s.mu.Unlock()
		s.PlayTrack(track, true)

	case s.repeat == RepeatAll && len(s.queue) > 0:
		s.index = 0
		track := s.queue[0]
		s.mu.Unlock()
		s.PlayTrack(track, true)

	default:
		// Repeat off at the end of the queue: the queue is a living
		// structure, so fetch more and keep going.
		s.mu.Unlock()
		s.extendQueue(current.ID, extendAppendAdvance)
	}
}

// noteStoppedLocked folds the current playing stretch into the accumulated
// continuous-listening time.
func (s *Session) noteStoppedLocked() {
	if !s.playFrom.IsZero() {
		s.listened += s.now().Sub(s.playFrom)
		s.playFrom = time.Time{}
	}
}

// runListeningGuard checks once per minute whether continuous playback has
// exceeded the threshold.
func (s *Session) runListeningGuard(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkStillListening()
		}
	}
}

// checkStillListening force-pauses and raises the still-listening prompt
// once cumulative continuous play passes the threshold. The UI calls
// ConfirmStillListening to clear the prompt and resume.
func (s *Session) checkStillListening() {
	s.mu.Lock()
	if s.state != StatePlaying {
		s.mu.Unlock()
		return
	}
	elapsed := s.listened + s.now().Sub(s.playFrom)
	if elapsed < s.stillAfter {
		s.mu.Unlock()
		return
	}
	s.noteStoppedLocked()
	s.state = StatePaused
	s.prompt = true
	s.mu.Unlock()

	s.graph.Pause()
	logger.Info("continuous-listening guard triggered",
		logger.Duration("listened", elapsed))
	s.emit()
}

// ConfirmStillListening clears the prompt, resets the listening timer and
// resumes playback.
func (s *Session) ConfirmStillListening() {
	s.mu.Lock()
	s.prompt = false
	s.listened = 0
	if s.current == nil {
		s.mu.Unlock()
		s.emit()
		return
	}
	s.state = StatePlaying
	s.playFrom = s.now()
	s.mu.Unlock()

	s.graph.Play()
	s.emit()
}

// FrequencyData returns a frequency snapshot from the graph, nil when no
// track is loaded. Read-only; intended to be polled per animation frame.
func (s *Session) FrequencyData() []float64 {
	return s.graph.FrequencyData()
}

// WaveformData returns a waveform snapshot from the graph, nil when no
// track is loaded.
func (s *Session) WaveformData() []float64 {
	return s.graph.WaveformData()
}

// AverageFrequency returns the mean of the frequency bins, 0 when no track
// is loaded.
func (s *Session) AverageFrequency() float64 {
	bins := s.graph.FrequencyData()
	if len(bins) == 0 {
		return 0
	}
	var sum float64
	for _, v := range bins {
		sum += v
	}
	return sum / float64(len(bins))
}
