package player

import (
	"context"

	"driftfm/model"
)

// Service is the slice of the catalog API the playback engine consumes.
type Service interface {
	// StreamURL resolves a fresh signed stream URL for a track. URLs are
	// never reused across plays.
	StreamURL(ctx context.Context, trackID int64) (model.StreamURL, error)
	// ReportPlay records a play event. Best-effort; failures are logged
	// and swallowed.
	ReportPlay(ctx context.Context, trackID int64) error
	// Related returns up to limit recommended tracks for queue extension.
	Related(ctx context.Context, trackID int64, limit int) ([]model.Track, error)
}
