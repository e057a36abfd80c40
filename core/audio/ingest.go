package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"driftfm/logger"
)

// Job states reported by the ingest worker pool.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job is one pending pipeline run.
type Job struct {
	ID        string
	TrackID   int64
	SourceKey string
}

// JobStatus is the observable state of a job.
type JobStatus struct {
	Job        Job               `json:"job"`
	State      string            `json:"state"`
	Error      string            `json:"error,omitempty"`
	Result     *ProcessingResult `json:"result,omitempty"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
	FinishedAt time.Time         `json:"finishedAt,omitempty"`
}

// ErrTrackBusy is returned when a job for the same track id is already
// queued or running. Scratch paths are keyed by track id, so concurrent
// runs for one track are unsafe.
var ErrTrackBusy = fmt.Errorf("track is already being processed")

// Ingestor runs pipeline jobs on a bounded worker pool. Distinct track ids
// process in parallel; identical track ids are rejected while in flight.
type Ingestor struct {
	pipeline *Pipeline
	download Downloader
	workers  int

	jobs chan Job
	wg   sync.WaitGroup

	mu       sync.Mutex
	inflight map[int64]struct{}
	status   map[string]*JobStatus

	// OnDone, when set, is invoked after every job with its result. Used by
	// callers to update catalog records. Runs on the worker goroutine.
	OnDone func(job Job, result ProcessingResult)
}

// NewIngestor creates an ingest worker pool over the given pipeline.
func NewIngestor(pipeline *Pipeline, download Downloader, workers int) *Ingestor {
	if workers <= 0 {
		workers = 1
	}
	return &Ingestor{
		pipeline: pipeline,
		download: download,
		workers:  workers,
		jobs:     make(chan Job, 64),
		inflight: make(map[int64]struct{}),
		status:   make(map[string]*JobStatus),
	}
}

// Start launches the workers. They exit when ctx is cancelled.
func (in *Ingestor) Start(ctx context.Context) {
	for i := 0; i < in.workers; i++ {
		in.wg.Add(1)
		go func(workerID int) {
			defer in.wg.Done()
			in.worker(ctx, workerID)
		}(i)
	}
	logger.Info("ingest workers started", logger.Int("workers", in.workers))
}

// Wait blocks until all workers have exited.
func (in *Ingestor) Wait() {
	in.wg.Wait()
}

// Enqueue queues a job. Returns ErrTrackBusy when the track already has a
// job queued or running.
func (in *Ingestor) Enqueue(job Job) error {
	in.mu.Lock()
	if _, busy := in.inflight[job.TrackID]; busy {
		in.mu.Unlock()
		return ErrTrackBusy
	}
	in.inflight[job.TrackID] = struct{}{}
	in.status[job.ID] = &JobStatus{
		Job:        job,
		State:      JobQueued,
		EnqueuedAt: time.Now(),
	}
	in.mu.Unlock()

	select {
	case in.jobs <- job:
		return nil
	default:
		in.mu.Lock()
		delete(in.inflight, job.TrackID)
		delete(in.status, job.ID)
		in.mu.Unlock()
		return fmt.Errorf("ingest queue is full")
	}
}

// Status returns the status of a job, or nil when unknown.
func (in *Ingestor) Status(jobID string) *JobStatus {
	in.mu.Lock()
	defer in.mu.Unlock()
	if st, ok := in.status[jobID]; ok {
		copied := *st
		return &copied
	}
	return nil
}

func (in *Ingestor) worker(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-in.jobs:
			if !ok {
				return
			}

			in.setState(job.ID, JobRunning, nil)
			logger.Info("processing track",
				logger.Int("worker", workerID),
				logger.String("jobId", job.ID),
				logger.Int64("trackId", job.TrackID),
				logger.String("sourceKey", job.SourceKey))

			result := in.pipeline.Process(ctx, job.TrackID, job.SourceKey, in.download)

			in.mu.Lock()
			delete(in.inflight, job.TrackID)
			in.mu.Unlock()

			if result.Success {
				in.setState(job.ID, JobCompleted, &result)
			} else {
				in.setState(job.ID, JobFailed, &result)
				logger.Error("track processing failed",
					logger.String("jobId", job.ID),
					logger.Int64("trackId", job.TrackID),
					logger.String("error", result.Err))
			}

			if in.OnDone != nil {
				in.OnDone(job, result)
			}
		}
	}
}

func (in *Ingestor) setState(jobID, state string, result *ProcessingResult) {
	in.mu.Lock()
	defer in.mu.Unlock()
	st, ok := in.status[jobID]
	if !ok {
		return
	}
	st.State = state
	if result != nil {
		st.Result = result
		st.Error = result.Err
		st.FinishedAt = time.Now()
	}
}
