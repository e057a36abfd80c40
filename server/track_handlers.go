package server

import (
	"net/http"
	"strconv"
	"time"

	"driftfm/cache"
	"driftfm/core/audio"
	"driftfm/logger"
	"driftfm/model"
)

// StreamURLHandler resolves a quality variant to a fresh signed URL.
// Cached URLs are reused only while their remaining lifetime is safely
// inside the signature's validity.
func (h *APIHandler) StreamURLHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := trackID(w, r)
	if !ok {
		return
	}

	quality := model.Quality(r.URL.Query().Get("quality"))
	if quality == "" {
		quality = model.QualityHigh
	}
	if !quality.Valid() {
		writeError(w, http.StatusBadRequest, "unknown quality tier")
		return
	}

	track, err := h.trackRepo.GetTrackByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load track")
		return
	}
	if track == nil {
		writeError(w, http.StatusNotFound, "track not found")
		return
	}
	if track.Status != model.TrackStatusCompleted {
		writeError(w, http.StatusConflict, "track is not ready for streaming")
		return
	}

	if cached, _ := cache.GetStreamURL(id, quality); cached != nil {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	key := audio.VariantKey(track.SourceKey, quality)
	signed, err := h.store.SignedStreamURL(r.Context(), key, h.cfg.StreamURLTTL)
	if err != nil {
		logger.Error("presign failed",
			logger.Int64("trackId", id),
			logger.String("key", key),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to sign stream URL")
		return
	}

	ttl := h.cfg.StreamURLTTL
	if ttl <= 0 || ttl > time.Hour {
		ttl = time.Hour
	}
	out := model.StreamURL{URL: signed, ExpiresInSeconds: int(ttl.Seconds())}
	cache.SetStreamURL(id, quality, out)

	writeJSON(w, http.StatusOK, out)
}

// ReportPlayHandler records a play event.
func (h *APIHandler) ReportPlayHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := trackID(w, r)
	if !ok {
		return
	}

	if err := h.engagementRepo.RecordPlay(r.Context(), id, listenerID(r)); err != nil {
		logger.Warn("play event insert failed",
			logger.Int64("trackId", id),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to record play")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RelatedTracksHandler returns the recommendation list for a track.
func (h *APIHandler) RelatedTracksHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := trackID(w, r)
	if !ok {
		return
	}

	limit := h.cfg.RelatedTracksLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 50 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	if cached, _ := cache.GetRelated(id); cached != nil {
		if len(cached) > limit {
			cached = cached[:limit]
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"tracks": cached})
		return
	}

	tracks, err := h.trackRepo.GetRelatedTracks(id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query related tracks")
		return
	}

	flat := make([]model.Track, 0, len(tracks))
	for _, t := range tracks {
		flat = append(flat, *t)
	}
	cache.SetRelated(id, flat)

	writeJSON(w, http.StatusOK, map[string]interface{}{"tracks": flat})
}

// GetLikeHandler reports whether the requesting listener likes the track.
func (h *APIHandler) GetLikeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := trackID(w, r)
	if !ok {
		return
	}

	liked, err := h.engagementRepo.IsLiked(r.Context(), id, listenerID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query like")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"liked": liked})
}

// PutLikeHandler marks the track liked. Idempotent.
func (h *APIHandler) PutLikeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := trackID(w, r)
	if !ok {
		return
	}

	if err := h.engagementRepo.Like(r.Context(), id, listenerID(r)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record like")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteLikeHandler removes the listener's like. Idempotent.
func (h *APIHandler) DeleteLikeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := trackID(w, r)
	if !ok {
		return
	}

	if err := h.engagementRepo.Unlike(r.Context(), id, listenerID(r)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove like")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteTrackHandler removes a track, its variants and its original
// upload from storage, then the catalog row.
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := trackID(w, r)
	if !ok {
		return
	}

	track, err := h.trackRepo.GetTrackByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load track")
		return
	}
	if track == nil {
		writeError(w, http.StatusNotFound, "track not found")
		return
	}

	if err := h.pipeline.DeleteVariants(r.Context(), track.SourceKey); err != nil {
		logger.Warn("variant cleanup failed",
			logger.Int64("trackId", id),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to delete variants")
		return
	}
	if err := h.store.Delete(r.Context(), track.SourceKey); err != nil {
		logger.Warn("source cleanup failed",
			logger.Int64("trackId", id),
			logger.ErrorField(err))
	}

	if err := h.trackRepo.DeleteTrack(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete track")
		return
	}
	cache.InvalidateTrack(id)

	w.WriteHeader(http.StatusNoContent)
}
