package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"driftfm/cache"
	"driftfm/config"
	"driftfm/core/audio"
	"driftfm/db"
	"driftfm/logger"
	"driftfm/model"
	"driftfm/repository"
	"driftfm/storage"

	"github.com/gorilla/mux"
)

// Start wires the catalog service together and runs the HTTP server until
// SIGINT/SIGTERM.
func Start(cfg *config.Config) error {
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

	if err := db.ConnectGormDB(cfg); err != nil {
		return err
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.PlayEvent{}, &model.Like{}); err != nil {
		return err
	}

	// Redis is an optimization, not a dependency; run without it.
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Warn("redis unavailable, caching disabled", logger.ErrorField(err))
	} else {
		defer cache.CloseRedis()
	}

	trackRepo := repository.NewMySQLTrackRepository()
	engagementRepo := repository.NewGormEngagementRepository(db.GormDB)

	processor := audio.NewFFmpegProcessor(cfg.FFmpegPath)
	pipeline := audio.NewPipeline(processor, store, cfg.ScratchDir)
	ingestor := audio.NewIngestor(pipeline, store.Download, cfg.IngestWorkers)
	ingestor.OnDone = func(job audio.Job, result audio.ProcessingResult) {
		finishTrack(trackRepo, job, result)
	}

	ctx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	ingestor.Start(ctx)

	apiHandler := NewAPIHandler(trackRepo, engagementRepo, store, pipeline, ingestor, cfg)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/api/tracks", apiHandler.GetTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}", apiHandler.GetTrackHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}", apiHandler.DeleteTrackHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/tracks/{id}/stream-url", apiHandler.StreamURLHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/play", apiHandler.ReportPlayHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}/related", apiHandler.RelatedTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/like", apiHandler.GetLikeHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/like", apiHandler.PutLikeHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/tracks/{id}/like", apiHandler.DeleteLikeHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/upload", apiHandler.UploadTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/jobs/{id}", apiHandler.JobStatusHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/health", apiHandler.HealthHandler).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	cancelWorkers()
	logger.Info("server stopped")
	return nil
}

// finishTrack records a pipeline outcome on the catalog row.
func finishTrack(trackRepo repository.TrackRepository, job audio.Job, result audio.ProcessingResult) {
	if !result.Success {
		if err := trackRepo.UpdateStatus(job.TrackID, model.TrackStatusFailed); err != nil {
			logger.Error("failed to mark track failed",
				logger.Int64("trackId", job.TrackID),
				logger.ErrorField(err))
		}
		return
	}

	meta := result.Metadata
	err := trackRepo.UpdateAfterProcessing(job.TrackID,
		float32(meta.DurationMs)/1000.0, meta.SampleRate, meta.Loudness,
		model.TrackStatusCompleted)
	if err != nil {
		logger.Error("failed to record processing result",
			logger.Int64("trackId", job.TrackID),
			logger.ErrorField(err))
	}
}

// corsMiddleware mirrors the permissive CORS policy of the web frontend.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Listener-ID, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
