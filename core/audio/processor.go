package audio

import (
	"fmt"

	"driftfm/model"
)

// Loudness normalization targets. Every variant is normalized independently
// to the same integrated loudness so quality switches do not jump in level.
const (
	LoudnessTarget = -14.0 // LUFS, integrated
	TruePeakMax    = -1.5  // dBTP ceiling
	LoudnessRange  = 11.0  // LRA
	// DefaultLoudness is substituted when measurement yields no parseable
	// result. Measurement failure must not block ingestion.
	DefaultLoudness = -23.0
)

// Processor defines the media analysis and encoding operations the
// transcoding pipeline depends on.
type Processor interface {
	// Inspect extracts container/stream metadata. Fails with *AnalysisError
	// when the file is not decodable audio.
	Inspect(path string) (*model.AudioMetadata, error)
	// MeasureLoudness runs a loudness analysis pass and returns the
	// integrated loudness in LUFS.
	MeasureLoudness(path string) (float64, error)
	// Transcode re-encodes to the target bitrate, applying loudness
	// normalization when normalize is set. Fails with *TranscodeError.
	Transcode(inputPath, outputPath, bitrate string, normalize bool) error
}

// AnalysisError reports an unreadable or unsupported audio file.
type AnalysisError struct {
	Path string
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("audio analysis failed for %s: %v", e.Path, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// TranscodeError reports an encoder failure.
type TranscodeError struct {
	Path string
	Err  error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode failed for %s: %v", e.Path, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }
