package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"driftfm/model"
)

func TestStreamURL(t *testing.T) {
	var gotPath, gotQuality, gotListener string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuality = r.URL.Query().Get("quality")
		gotListener = r.Header.Get("X-Listener-ID")
		json.NewEncoder(w).Encode(model.StreamURL{
			URL:              "https://cdn.example.com/audio/7_high.mp3?sig=abc",
			ExpiresInSeconds: 3600,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "device-1")
	out, err := c.StreamURLQuality(context.Background(), 7, model.QualityHigh)
	if err != nil {
		t.Fatalf("StreamURLQuality: %v", err)
	}
	if gotPath != "/api/tracks/7/stream-url" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuality != "high" {
		t.Errorf("quality param = %q, want high", gotQuality)
	}
	if gotListener != "device-1" {
		t.Errorf("listener header = %q, want device-1", gotListener)
	}
	if out.ExpiresInSeconds != 3600 || !strings.Contains(out.URL, "7_high.mp3") {
		t.Errorf("unexpected stream URL payload: %+v", out)
	}

	// Default quality omits the parameter.
	if _, err := c.StreamURL(context.Background(), 7); err != nil {
		t.Fatalf("StreamURL: %v", err)
	}
	if gotQuality != "" {
		t.Errorf("default-quality request sent quality=%q", gotQuality)
	}
}

func TestStreamURLEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.StreamURL{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if _, err := c.StreamURL(context.Background(), 7); err == nil {
		t.Fatal("expected an error for an empty stream URL")
	}
}

func TestAPIErrorMessageSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "track not found"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.Track(context.Background(), 99)
	if err == nil {
		t.Fatal("expected an error for a 404")
	}
	if !strings.Contains(err.Error(), "track not found") {
		t.Errorf("error %q does not carry the API message", err)
	}
}

func TestReportPlay(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "device-1")
	if err := c.ReportPlay(context.Background(), 42); err != nil {
		t.Fatalf("ReportPlay: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/tracks/42/play" {
		t.Errorf("got %s %s, want POST /api/tracks/42/play", gotMethod, gotPath)
	}
}

func TestRelated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("limit param = %q, want 5", r.URL.Query().Get("limit"))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"tracks": []model.Track{
				{ID: 2, Title: "Second"},
				{ID: 3, Title: "Third"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	tracks, err := c.Related(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(tracks) != 2 || tracks[0].ID != 2 || tracks[1].ID != 3 {
		t.Errorf("unexpected related tracks: %+v", tracks)
	}
}

func TestLikeLifecycle(t *testing.T) {
	liked := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Listener-ID") + r.URL.Path
		switch r.Method {
		case http.MethodPut:
			liked[key] = true
			w.WriteHeader(http.StatusNoContent)
		case http.MethodDelete:
			delete(liked, key)
			w.WriteHeader(http.StatusNoContent)
		default:
			json.NewEncoder(w).Encode(map[string]bool{"liked": liked[key]})
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "device-1")
	ctx := context.Background()

	if got, _ := c.IsLiked(ctx, 5); got {
		t.Error("track liked before any Like call")
	}
	if err := c.Like(ctx, 5); err != nil {
		t.Fatalf("Like: %v", err)
	}
	if got, _ := c.IsLiked(ctx, 5); !got {
		t.Error("IsLiked false after Like")
	}
	if err := c.Unlike(ctx, 5); err != nil {
		t.Fatalf("Unlike: %v", err)
	}
	if got, _ := c.IsLiked(ctx, 5); got {
		t.Error("IsLiked true after Unlike")
	}
}

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing multipart form: %v", err)
		}
		if r.FormValue("title") != "Night Drive" || r.FormValue("artist") != "Mira" {
			t.Errorf("metadata fields = %q / %q", r.FormValue("title"), r.FormValue("artist"))
		}
		f, _, err := r.FormFile("audio")
		if err != nil {
			t.Fatalf("audio part missing: %v", err)
		}
		f.Close()

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"track": model.Track{ID: 11, Title: "Night Drive", Status: model.TrackStatusProcessing},
			"jobId": "job-abc",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "device-1")
	track, jobID, err := c.Upload(context.Background(), "Night Drive", "Mira", strings.NewReader("fake flac bytes"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if track.ID != 11 || track.Status != model.TrackStatusProcessing {
		t.Errorf("unexpected track: %+v", track)
	}
	if jobID != "job-abc" {
		t.Errorf("jobID = %q, want job-abc", jobID)
	}
}

func TestJobStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/jobs/job-abc" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"state": "completed"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	state, err := c.JobStatus(context.Background(), "job-abc")
	if err != nil {
		t.Fatalf("JobStatus: %v", err)
	}
	if state != "completed" {
		t.Errorf("state = %q, want completed", state)
	}
}
