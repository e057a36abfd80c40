// Package catalog is the HTTP client for the track catalog API. The
// playback engine talks to the backend only through this client, so a
// headless player can point at any deployment.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"driftfm/model"
)

// Client calls the catalog API.
type Client struct {
	baseURL    string
	listenerID string
	httpClient *http.Client
}

// NewClient creates a catalog client for the API at baseURL.
// listenerID identifies this device for likes and play history.
func NewClient(baseURL, listenerID string) *Client {
	return &Client{
		baseURL:    baseURL,
		listenerID: listenerID,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SetTimeout overrides the request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating %s %s request: %w", method, path, err)
	}
	if c.listenerID != "" {
		req.Header.Set("X-Listener-ID", c.listenerID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends the request and decodes a JSON response into out when out is
// non-nil. Non-2xx statuses come back as errors carrying the API message.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s returned %d: %s", req.URL.Path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s returned %d", req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}

// StreamURL resolves a fresh signed stream URL for trackID at the given
// quality. An empty quality falls back to the server default.
func (c *Client) StreamURLQuality(ctx context.Context, trackID int64, quality model.Quality) (model.StreamURL, error) {
	path := fmt.Sprintf("/api/tracks/%d/stream-url", trackID)
	if quality != "" {
		path += "?quality=" + url.QueryEscape(string(quality))
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return model.StreamURL{}, err
	}

	var out model.StreamURL
	if err := c.do(req, &out); err != nil {
		return model.StreamURL{}, err
	}
	if out.URL == "" {
		return model.StreamURL{}, fmt.Errorf("stream URL response for track %d is empty", trackID)
	}
	return out, nil
}

// StreamURL resolves a stream URL at the default quality. Satisfies the
// playback engine's service interface.
func (c *Client) StreamURL(ctx context.Context, trackID int64) (model.StreamURL, error) {
	return c.StreamURLQuality(ctx, trackID, "")
}

// ReportPlay records a play event for trackID.
func (c *Client) ReportPlay(ctx context.Context, trackID int64) error {
	req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf("/api/tracks/%d/play", trackID), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Related returns up to limit tracks recommended after trackID.
func (c *Client) Related(ctx context.Context, trackID int64, limit int) ([]model.Track, error) {
	path := fmt.Sprintf("/api/tracks/%d/related?limit=%d", trackID, limit)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Tracks []model.Track `json:"tracks"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Tracks, nil
}

// Track fetches a single track's metadata.
func (c *Client) Track(ctx context.Context, trackID int64) (*model.Track, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/api/tracks/%d", trackID), nil)
	if err != nil {
		return nil, err
	}

	var out model.Track
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Tracks lists the catalog.
func (c *Client) Tracks(ctx context.Context) ([]model.Track, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/tracks", nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Tracks []model.Track `json:"tracks"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Tracks, nil
}

// IsLiked reports whether this listener has liked trackID.
func (c *Client) IsLiked(ctx context.Context, trackID int64) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/api/tracks/%d/like", trackID), nil)
	if err != nil {
		return false, err
	}

	var out struct {
		Liked bool `json:"liked"`
	}
	if err := c.do(req, &out); err != nil {
		return false, err
	}
	return out.Liked, nil
}

// Like marks trackID as liked by this listener. Idempotent.
func (c *Client) Like(ctx context.Context, trackID int64) error {
	req, err := c.newRequest(ctx, http.MethodPut, fmt.Sprintf("/api/tracks/%d/like", trackID), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Unlike removes this listener's like from trackID. Idempotent.
func (c *Client) Unlike(ctx context.Context, trackID int64) error {
	req, err := c.newRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/tracks/%d/like", trackID), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Upload pushes an audio file into the ingest pipeline. It returns the
// created track and the ingest job id for polling.
func (c *Client) Upload(ctx context.Context, title, artist string, audio io.Reader) (*model.Track, string, error) {
	// The upload endpoint takes multipart form data; everything else on
	// this client is JSON.
	body, contentType, err := buildUploadBody(title, artist, audio)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", body)
	if err != nil {
		return nil, "", fmt.Errorf("creating upload request: %w", err)
	}
	if c.listenerID != "" {
		req.Header.Set("X-Listener-ID", c.listenerID)
	}
	req.Header.Set("Content-Type", contentType)

	var out struct {
		Track model.Track `json:"track"`
		JobID string      `json:"jobId"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, "", err
	}
	return &out.Track, out.JobID, nil
}

// JobStatus polls an ingest job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return "", err
	}

	var out struct {
		State string `json:"state"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.State, nil
}
