package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"driftfm/logger"
	"driftfm/model"
)

// Downloader fetches the raw bytes of a source object. Injecting it keeps
// the pipeline decoupled from the storage client.
type Downloader func(ctx context.Context, key string) ([]byte, error)

// ObjectStore is the slice of the storage client the pipeline needs.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// ProcessingResult is the tagged outcome of one pipeline run. Errors are
// carried as data so batch workers can keep going after one failure; no
// error ever crosses the pipeline boundary as a Go error.
type ProcessingResult struct {
	Success  bool
	Variants []model.QualityVariant
	Metadata *model.AudioMetadata
	Err      string
}

func failure(format string, args ...interface{}) ProcessingResult {
	return ProcessingResult{Err: fmt.Sprintf(format, args...)}
}

// Pipeline converts one uploaded audio file into normalized multi-bitrate
// variants in object storage.
type Pipeline struct {
	proc       Processor
	store      ObjectStore
	scratchDir string
}

// NewPipeline creates a transcoding pipeline rooted at scratchDir.
func NewPipeline(proc Processor, store ObjectStore, scratchDir string) *Pipeline {
	return &Pipeline{
		proc:       proc,
		store:      store,
		scratchDir: scratchDir,
	}
}

// VariantKey derives the storage key of one quality tier from the source
// key. Pure and deterministic; the only place variant naming lives.
func VariantKey(sourceKey string, q model.Quality) string {
	dir := path.Dir(sourceKey)
	base := strings.TrimSuffix(path.Base(sourceKey), path.Ext(sourceKey))
	name := base + q.KeySuffix() + ".mp3"
	if dir == "." {
		return name
	}
	return dir + "/" + name
}

// Process runs the full pipeline for one track: download, inspect, measure
// loudness, then transcode/upload one variant per tier. Scratch files are
// removed on every exit path. Calls for the same track id must be
// serialized by the caller; distinct track ids are safe in parallel.
func (p *Pipeline) Process(ctx context.Context, trackID int64, sourceKey string, download Downloader) ProcessingResult {
	work, err := os.MkdirTemp(p.scratchDir, fmt.Sprintf("track-%d-", trackID))
	if err != nil {
		if err := os.MkdirAll(p.scratchDir, 0755); err != nil {
			return failure("create scratch dir: %v", err)
		}
		work, err = os.MkdirTemp(p.scratchDir, fmt.Sprintf("track-%d-", trackID))
		if err != nil {
			return failure("create scratch dir: %v", err)
		}
	}
	defer os.RemoveAll(work)

	data, err := download(ctx, sourceKey)
	if err != nil {
		return failure("download source %s: %v", sourceKey, err)
	}

	srcPath := filepath.Join(work, "source"+path.Ext(sourceKey))
	if err := os.WriteFile(srcPath, data, 0644); err != nil {
		return failure("write scratch source: %v", err)
	}

	meta, err := p.proc.Inspect(srcPath)
	if err != nil {
		return failure("inspect: %v", err)
	}

	// Loudness measurement failure is deliberately non-fatal: substitute a
	// conservative default and keep going.
	lufs, err := p.proc.MeasureLoudness(srcPath)
	if err != nil {
		logger.Warn("loudness measurement failed, using default",
			logger.Int64("trackId", trackID),
			logger.Float64("default", DefaultLoudness),
			logger.ErrorField(err))
		lufs = DefaultLoudness
	}
	meta.Loudness = lufs

	variants := make([]model.QualityVariant, 0, len(model.Qualities))
	for _, q := range model.Qualities {
		outPath := filepath.Join(work, "variant"+q.KeySuffix()+".mp3")

		if err := p.proc.Transcode(srcPath, outPath, q.Bitrate(), true); err != nil {
			return failure("transcode %s: %v", q, err)
		}

		encoded, err := os.ReadFile(outPath)
		if err != nil {
			return failure("read encoded %s: %v", q, err)
		}

		key := VariantKey(sourceKey, q)
		if err := p.store.Upload(ctx, key, encoded, "audio/mpeg"); err != nil {
			return failure("upload %s: %v", key, err)
		}

		// Drop the scratch copy as soon as it is uploaded to bound disk
		// usage under sustained ingestion.
		os.Remove(outPath)

		variants = append(variants, model.QualityVariant{
			Quality: q,
			Key:     key,
			Bitrate: q.Bitrate(),
		})

		logger.Debug("variant uploaded",
			logger.Int64("trackId", trackID),
			logger.String("quality", string(q)),
			logger.String("key", key),
			logger.Int("size", len(encoded)))
	}

	logger.Info("track processed",
		logger.Int64("trackId", trackID),
		logger.String("sourceKey", sourceKey),
		logger.Int64("durationMs", meta.DurationMs),
		logger.Float64("loudness", meta.Loudness))

	return ProcessingResult{
		Success:  true,
		Variants: variants,
		Metadata: meta,
	}
}

// DeleteVariants removes every tier-specific object derived from sourceKey.
// Deletion is idempotent; missing objects are not an error.
func (p *Pipeline) DeleteVariants(ctx context.Context, sourceKey string) error {
	var errs []error
	for _, q := range model.Qualities {
		if err := p.store.Delete(ctx, VariantKey(sourceKey, q)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
