package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"driftfm/core/audio"
	"driftfm/db"
	"driftfm/logger"
	"driftfm/model"
	"driftfm/repository"
	"driftfm/storage"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var ingestWatch bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest local audio files into the catalog",
	Long: `Uploads local audio files as originals, creates catalog rows and runs
the transcoding pipeline over them. With --watch, keeps running and
ingests every audio file dropped into the inbox directory.`,
	Run: func(cmd *cobra.Command, args []string) {
		if !ingestWatch && len(args) == 0 {
			logger.Fatal("nothing to do: pass files or --watch")
		}
		if err := runIngest(args); err != nil {
			logger.Fatal("ingest failed", logger.ErrorField(err))
		}
	},
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "watch the inbox directory for new files")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(files []string) error {
	store, err := storage.NewClient(cfg)
	if err != nil {
		return err
	}

	if err := db.ConnectDB(cfg); err != nil {
		return err
	}
	defer db.CloseDB()
	if err := db.InitDB(); err != nil {
		return err
	}

	trackRepo := repository.NewMySQLTrackRepository()

	processor := audio.NewFFmpegProcessor(cfg.FFmpegPath)
	pipeline := audio.NewPipeline(processor, store, cfg.ScratchDir)
	ingestor := audio.NewIngestor(pipeline, store.Download, cfg.IngestWorkers)

	// Track completion so batch mode can exit once everything settles.
	var pending sync.WaitGroup
	ingestor.OnDone = func(job audio.Job, result audio.ProcessingResult) {
		defer pending.Done()
		if !result.Success {
			trackRepo.UpdateStatus(job.TrackID, model.TrackStatusFailed)
			fmt.Fprintf(os.Stderr, "FAILED  %s: %s\n", job.SourceKey, result.Err)
			return
		}
		meta := result.Metadata
		if err := trackRepo.UpdateAfterProcessing(job.TrackID,
			float32(meta.DurationMs)/1000.0, meta.SampleRate, meta.Loudness,
			model.TrackStatusCompleted); err != nil {
			logger.Error("failed to record processing result",
				logger.Int64("trackId", job.TrackID),
				logger.ErrorField(err))
		}
		fmt.Printf("OK      %s (%.1fs, %.1f LUFS)\n",
			job.SourceKey, float64(meta.DurationMs)/1000.0, meta.Loudness)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ingestor.Start(ctx)

	submit := func(path string) {
		pending.Add(1)
		if err := submitFile(ctx, store, trackRepo, ingestor, path); err != nil {
			pending.Done()
			fmt.Fprintf(os.Stderr, "SKIPPED %s: %v\n", path, err)
		}
	}

	for _, path := range files {
		submit(path)
	}

	if !ingestWatch {
		pending.Wait()
		return nil
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	logger.Info("watching inbox", logger.String("dir", cfg.InboxDir))
	if err := audio.WatchInbox(ctx, cfg.InboxDir, submit); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// submitFile uploads one local file as a source object, creates its
// catalog row and queues the pipeline job.
func submitFile(ctx context.Context, store *storage.Client, trackRepo repository.TrackRepository, ingestor *audio.Ingestor, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	base := filepath.Base(path)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	sourceKey := fmt.Sprintf("sources/%s-%s%s", title, uuid.NewString()[:8], strings.ToLower(filepath.Ext(base)))

	if err := store.Upload(ctx, sourceKey, data, "application/octet-stream"); err != nil {
		return fmt.Errorf("upload source: %w", err)
	}

	track := &model.Track{
		Title:     title,
		SourceKey: sourceKey,
		Status:    model.TrackStatusProcessing,
	}
	id, err := trackRepo.CreateTrack(track)
	if err != nil {
		store.Delete(ctx, sourceKey)
		return fmt.Errorf("create track: %w", err)
	}

	job := audio.Job{ID: uuid.NewString(), TrackID: id, SourceKey: sourceKey}
	if err := ingestor.Enqueue(job); err != nil {
		trackRepo.UpdateStatus(id, model.TrackStatusFailed)
		return fmt.Errorf("enqueue: %w", err)
	}

	logger.Info("queued for ingestion",
		logger.Int64("trackId", id),
		logger.String("file", path),
		logger.String("sourceKey", sourceKey))
	return nil
}
