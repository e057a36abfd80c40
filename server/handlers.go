package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"driftfm/config"
	"driftfm/core/audio"
	"driftfm/repository"
	"driftfm/storage"

	"github.com/gorilla/mux"
)

// APIHandler holds the dependencies of every API endpoint.
type APIHandler struct {
	trackRepo      repository.TrackRepository
	engagementRepo repository.EngagementRepository
	store          *storage.Client
	pipeline       *audio.Pipeline
	ingestor       *audio.Ingestor
	cfg            *config.Config
}

// NewAPIHandler creates the API handler.
func NewAPIHandler(
	trackRepo repository.TrackRepository,
	engagementRepo repository.EngagementRepository,
	store *storage.Client,
	pipeline *audio.Pipeline,
	ingestor *audio.Ingestor,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		trackRepo:      trackRepo,
		engagementRepo: engagementRepo,
		store:          store,
		pipeline:       pipeline,
		ingestor:       ingestor,
		cfg:            cfg,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// trackID parses the {id} path variable. Writes the error response itself
// and returns ok=false when the id is malformed.
func trackID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid track id")
		return 0, false
	}
	return id, true
}

// listenerID identifies the requesting device for likes and play history.
// Anonymous requests fall back to a shared bucket.
func listenerID(r *http.Request) string {
	if id := r.Header.Get("X-Listener-ID"); id != "" {
		return id
	}
	return "anonymous"
}

// HealthHandler reports liveness.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetTracksHandler lists the catalog.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.trackRepo.GetAllTracks()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tracks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tracks": tracks})
}

// GetTrackHandler returns one track.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, track)
}

// JobStatusHandler reports the state of one ingest job.
func (h *APIHandler) JobStatusHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	status := h.ingestor.Status(jobID)
	if status == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}
