package model

// AudioMetadata describes a raw uploaded audio object as measured during
// ingestion. Immutable once the source has been transcoded.
type AudioMetadata struct {
	DurationMs int64   `json:"durationMs"`
	Bitrate    int     `json:"bitrate"` // kbps
	SampleRate int     `json:"sampleRate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Loudness   float64 `json:"loudness"` // Integrated loudness, LUFS
}

// Quality names one of the fixed encoding tiers.
type Quality string

const (
	QualityLow    Quality = "low"    // 128k
	QualityMedium Quality = "medium" // 256k
	QualityHigh   Quality = "high"   // 320k
)

// Qualities lists all tiers in ascending bitrate order. Every completed
// track has exactly one variant per tier.
var Qualities = []Quality{QualityLow, QualityMedium, QualityHigh}

// Bitrate returns the ffmpeg bitrate string for the tier.
func (q Quality) Bitrate() string {
	switch q {
	case QualityLow:
		return "128k"
	case QualityMedium:
		return "256k"
	case QualityHigh:
		return "320k"
	}
	return ""
}

// KeySuffix returns the storage key suffix for the tier.
func (q Quality) KeySuffix() string {
	switch q {
	case QualityLow:
		return "_low"
	case QualityMedium:
		return "_med"
	case QualityHigh:
		return "_high"
	}
	return ""
}

// Valid reports whether q is one of the defined tiers.
func (q Quality) Valid() bool {
	return q == QualityLow || q == QualityMedium || q == QualityHigh
}

// QualityVariant is one encoded rendition of a source at a fixed tier.
type QualityVariant struct {
	Quality Quality `json:"quality"`
	Key     string  `json:"key"`     // Object storage key, derived from the source key
	Bitrate string  `json:"bitrate"` // e.g. "128k"
}
