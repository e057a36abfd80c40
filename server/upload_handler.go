package server

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"driftfm/core/audio"
	"driftfm/logger"
	"driftfm/model"

	"github.com/google/uuid"
)

// maxUploadSize bounds one multipart upload (200 MB covers lossless
// masters of long tracks).
const maxUploadSize = 200 << 20

var nonAlphaNumeric = regexp.MustCompile(`[^a-zA-Z0-9_\-\.]`)
var multipleSpaces = regexp.MustCompile(`\s+`)

// safeObjectName builds a storage-safe base name from track metadata.
func safeObjectName(title, artist string) string {
	if strings.TrimSpace(title) == "" {
		title = "Untitled_Track"
	}

	var parts []string
	if strings.TrimSpace(artist) != "" {
		parts = append(parts, strings.TrimSpace(artist))
	}
	parts = append(parts, strings.TrimSpace(title))

	base := strings.Join(parts, " - ")
	base = multipleSpaces.ReplaceAllString(base, "_")
	base = nonAlphaNumeric.ReplaceAllString(base, "")

	if len(base) > 120 {
		base = base[:120]
	}
	if base == "" {
		base = "track"
	}
	return base
}

// allowedUploadExts are the source formats the pipeline accepts.
var allowedUploadExts = map[string]bool{
	".mp3":  true,
	".flac": true,
	".wav":  true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".opus": true,
}

// UploadTrackHandler receives one audio file, stores the original and
// enqueues a transcoding job. The response carries the catalog row in
// 'processing' state plus the job id for polling.
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedUploadExts[ext] {
		writeError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("unsupported audio format %q", ext))
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}
	artist := strings.TrimSpace(r.FormValue("artist"))
	album := strings.TrimSpace(r.FormValue("album"))
	genre := strings.TrimSpace(r.FormValue("genre"))

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	sourceKey := fmt.Sprintf("sources/%s-%s%s", safeObjectName(title, artist), uuid.NewString()[:8], ext)
	if err := h.store.Upload(r.Context(), sourceKey, data, "application/octet-stream"); err != nil {
		logger.Error("source upload failed",
			logger.String("key", sourceKey),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	track := &model.Track{
		Title:     title,
		Artist:    artist,
		Album:     album,
		Genre:     genre,
		SourceKey: sourceKey,
		Status:    model.TrackStatusProcessing,
	}
	id, err := h.trackRepo.CreateTrack(track)
	if err != nil {
		h.store.Delete(r.Context(), sourceKey)
		writeError(w, http.StatusInternalServerError, "failed to create track")
		return
	}
	track.ID = id

	job := audio.Job{ID: uuid.NewString(), TrackID: id, SourceKey: sourceKey}
	if err := h.ingestor.Enqueue(job); err != nil {
		logger.Error("ingest enqueue failed",
			logger.Int64("trackId", id),
			logger.ErrorField(err))
		h.trackRepo.UpdateStatus(id, model.TrackStatusFailed)
		writeError(w, http.StatusServiceUnavailable, "ingest queue is full")
		return
	}

	logger.Info("upload accepted",
		logger.Int64("trackId", id),
		logger.String("jobId", job.ID),
		logger.String("sourceKey", sourceKey),
		logger.Int("size", len(data)))

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"track": track,
		"jobId": job.ID,
	})
}
