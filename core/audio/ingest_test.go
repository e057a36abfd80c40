package audio

import (
	"context"
	"testing"
	"time"
)

func TestIngestorRunsJob(t *testing.T) {
	store := newFakeStore()
	p := NewPipeline(&fakeProcessor{meta: testMeta(), loudness: -11}, store, t.TempDir())
	in := NewIngestor(p, okDownloader(t), 2)

	done := make(chan ProcessingResult, 1)
	in.OnDone = func(job Job, result ProcessingResult) {
		done <- result
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in.Start(ctx)

	job := Job{ID: "job-1", TrackID: 7, SourceKey: "audio/seven.flac"}
	if err := in.Enqueue(job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case result := <-done:
		if !result.Success {
			t.Fatalf("job failed: %s", result.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job did not complete")
	}

	st := in.Status("job-1")
	if st == nil || st.State != JobCompleted {
		t.Fatalf("job status = %+v, want completed", st)
	}

	// Once the first job finished, the same track may be processed again.
	if err := in.Enqueue(Job{ID: "job-2", TrackID: 7, SourceKey: "audio/seven.flac"}); err != nil {
		t.Fatalf("re-enqueue after completion: %v", err)
	}
}

func TestIngestorSerializesSameTrack(t *testing.T) {
	p := NewPipeline(&fakeProcessor{meta: testMeta()}, newFakeStore(), t.TempDir())
	in := NewIngestor(p, okDownloader(t), 2)
	// Workers deliberately not started: both jobs stay queued.

	if err := in.Enqueue(Job{ID: "a", TrackID: 9, SourceKey: "x.flac"}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := in.Enqueue(Job{ID: "b", TrackID: 9, SourceKey: "x.flac"}); err != ErrTrackBusy {
		t.Fatalf("second enqueue err = %v, want ErrTrackBusy", err)
	}
	// A different track id is fine.
	if err := in.Enqueue(Job{ID: "c", TrackID: 10, SourceKey: "y.flac"}); err != nil {
		t.Fatalf("distinct track enqueue: %v", err)
	}
}

func TestIngestorUnknownJobStatus(t *testing.T) {
	p := NewPipeline(&fakeProcessor{meta: testMeta()}, newFakeStore(), t.TempDir())
	in := NewIngestor(p, okDownloader(t), 1)
	if st := in.Status("nope"); st != nil {
		t.Errorf("status for unknown job = %+v, want nil", st)
	}
}
