package repository

import (
	"database/sql"
	"fmt"
	"time"

	"driftfm/db"
	"driftfm/model"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(track *model.Track) (int64, error)
	GetTrackByID(id int64) (*model.Track, error)
	GetTrackBySourceKey(sourceKey string) (*model.Track, error)
	GetAllTracks() ([]*model.Track, error)
	// UpdateAfterProcessing records the analysis results and flips the
	// track's status once the transcoding pipeline finishes.
	UpdateAfterProcessing(trackID int64, duration float32, sampleRate int, loudness float64, status string) error
	UpdateStatus(trackID int64, status string) error
	// GetRelatedTracks returns completed tracks sharing artist or genre
	// with the given track, newest first, excluding the track itself.
	GetRelatedTracks(trackID int64, limit int) ([]*model.Track, error)
	DeleteTrack(trackID int64) error
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository() TrackRepository {
	return &mysqlTrackRepository{DB: db.DB}
}

const trackColumns = `id, title, artist, album, genre, source_key, cover_url, duration, sample_rate, loudness, status, created_at, updated_at`

func scanTrack(row interface{ Scan(...interface{}) error }) (*model.Track, error) {
	track := &model.Track{}
	err := row.Scan(&track.ID, &track.Title, &track.Artist, &track.Album, &track.Genre,
		&track.SourceKey, &track.CoverURL, &track.Duration, &track.SampleRate,
		&track.Loudness, &track.Status, &track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return track, nil
}

// CreateTrack adds a new track to the database.
func (r *mysqlTrackRepository) CreateTrack(track *model.Track) (int64, error) {
	query := `INSERT INTO tracks (title, artist, album, genre, source_key, cover_url, duration, sample_rate, loudness, status, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	status := track.Status
	if status == "" {
		status = model.TrackStatusProcessing
	}
	res, err := stmt.Exec(track.Title, track.Artist, track.Album, track.Genre,
		track.SourceKey, track.CoverURL, track.Duration, track.SampleRate,
		track.Loudness, status, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateTrack: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateTrack: %w", err)
	}
	return id, nil
}

// GetTrackByID retrieves a track by its ID. Returns (nil, nil) when the
// track does not exist.
func (r *mysqlTrackRepository) GetTrackByID(id int64) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`
	track, err := scanTrack(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan track by ID %d: %w", id, err)
	}
	return track, nil
}

// GetTrackBySourceKey retrieves a track by the storage key of its
// original upload. Returns (nil, nil) when no track matches.
func (r *mysqlTrackRepository) GetTrackBySourceKey(sourceKey string) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE source_key = ?`
	track, err := scanTrack(r.DB.QueryRow(query, sourceKey))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan track by source key %s: %w", sourceKey, err)
	}
	return track, nil
}

// GetAllTracks retrieves all tracks, newest first.
func (r *mysqlTrackRepository) GetAllTracks() ([]*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks ORDER BY created_at DESC`
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in GetAllTracks: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetAllTracks: %w", err)
	}

	return tracks, nil
}

// UpdateAfterProcessing records the pipeline's measurements.
func (r *mysqlTrackRepository) UpdateAfterProcessing(trackID int64, duration float32, sampleRate int, loudness float64, status string) error {
	query := `UPDATE tracks SET duration = ?, sample_rate = ?, loudness = ?, status = ?, updated_at = ? WHERE id = ?`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for UpdateAfterProcessing: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(duration, sampleRate, loudness, status, time.Now(), trackID)
	if err != nil {
		return fmt.Errorf("failed to execute UpdateAfterProcessing for track ID %d: %w", trackID, err)
	}
	return nil
}

// UpdateStatus flips only the status column.
func (r *mysqlTrackRepository) UpdateStatus(trackID int64, status string) error {
	query := `UPDATE tracks SET status = ?, updated_at = ? WHERE id = ?`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for UpdateStatus: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(status, time.Now(), trackID)
	if err != nil {
		return fmt.Errorf("failed to execute UpdateStatus for track ID %d: %w", trackID, err)
	}
	return nil
}

// GetRelatedTracks implements the recommendation query: completed tracks
// by the same artist or in the same genre, newest first.
func (r *mysqlTrackRepository) GetRelatedTracks(trackID int64, limit int) ([]*model.Track, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT ` + trackColumns + ` FROM tracks
	           WHERE id != ? AND status = ?
	             AND (artist = (SELECT artist FROM tracks WHERE id = ?)
	               OR genre  = (SELECT genre  FROM tracks WHERE id = ?))
	           ORDER BY created_at DESC LIMIT ?`
	rows, err := r.DB.Query(query, trackID, model.TrackStatusCompleted, trackID, trackID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query related tracks for ID %d: %w", trackID, err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in GetRelatedTracks: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetRelatedTracks: %w", err)
	}

	return tracks, nil
}

// DeleteTrack removes the track row. Storage objects are the caller's
// responsibility.
func (r *mysqlTrackRepository) DeleteTrack(trackID int64) error {
	stmt, err := r.DB.Prepare(`DELETE FROM tracks WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for DeleteTrack: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.Exec(trackID); err != nil {
		return fmt.Errorf("failed to execute DeleteTrack for track ID %d: %w", trackID, err)
	}
	return nil
}
