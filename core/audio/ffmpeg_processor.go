package audio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"driftfm/logger"
	"driftfm/model"
)

// FFmpegProcessor implements the Processor interface using ffmpeg/ffprobe
// subprocesses. The external tools operate on seekable file handles, which
// is why the pipeline works through scratch files rather than streams.
type FFmpegProcessor struct {
	ffmpegPath string
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
func NewFFmpegProcessor(ffmpegPath string) *FFmpegProcessor {
	return &FFmpegProcessor{ffmpegPath: ffmpegPath}
}

// FFmpegPath returns the configured ffmpeg binary path.
func (p *FFmpegProcessor) FFmpegPath() string { return p.ffmpegPath }

func (p *FFmpegProcessor) ffprobePath() string {
	return strings.Replace(p.ffmpegPath, "ffmpeg", "ffprobe", 1)
}

// ffprobeOutput defines the structure of the ffprobe JSON output we read.
type ffprobeOutput struct {
	Streams []struct {
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		BitRate    string `json:"bit_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// Inspect runs ffprobe over the file and extracts duration, bitrate, sample
// rate, channel count and codec name.
func (p *FFmpegProcessor) Inspect(path string) (*model.AudioMetadata, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name,sample_rate,channels,bit_rate",
		"-show_entries", "format=duration,bit_rate",
		"-of", "json",
		path,
	}

	cmd := exec.Command(p.ffprobePath(), args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &AnalysisError{Path: path, Err: fmt.Errorf("ffprobe: %w: %s", err, stderr.String())}
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(out.Bytes(), &probe); err != nil {
		return nil, &AnalysisError{Path: path, Err: fmt.Errorf("unmarshal ffprobe output: %w", err)}
	}

	if len(probe.Streams) == 0 {
		return nil, &AnalysisError{Path: path, Err: fmt.Errorf("no audio streams found")}
	}

	durationSec, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil || durationSec <= 0 {
		return nil, &AnalysisError{Path: path, Err: fmt.Errorf("no usable duration in ffprobe output: %q", probe.Format.Duration)}
	}

	stream := probe.Streams[0]
	sampleRate, _ := strconv.Atoi(stream.SampleRate)

	// Stream-level bitrate is missing for some containers; fall back to the
	// format-level value.
	bitrateStr := stream.BitRate
	if bitrateStr == "" {
		bitrateStr = probe.Format.BitRate
	}
	bitrateBps, _ := strconv.Atoi(bitrateStr)

	return &model.AudioMetadata{
		DurationMs: int64(durationSec * 1000),
		Bitrate:    bitrateBps / 1000,
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
	}, nil
}

// MeasureLoudness runs the loudnorm analysis pass and parses the integrated
// loudness from its JSON summary on stderr.
func (p *FFmpegProcessor) MeasureLoudness(path string) (float64, error) {
	filter := fmt.Sprintf("loudnorm=I=%g:TP=%g:LRA=%g:print_format=json",
		LoudnessTarget, TruePeakMax, LoudnessRange)

	args := []string{
		"-hide_banner",
		"-i", path,
		"-af", filter,
		"-f", "null",
		"-",
	}

	cmd := exec.Command(p.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("loudnorm pass failed for %s: %w", path, err)
	}

	return parseLoudnorm(stderr.String())
}

// parseLoudnorm extracts input_i from the JSON block loudnorm prints at the
// end of the ffmpeg stderr output.
func parseLoudnorm(output string) (float64, error) {
	idx := strings.LastIndex(output, "{")
	if idx < 0 {
		return 0, fmt.Errorf("no loudnorm JSON block in ffmpeg output")
	}

	var summary struct {
		InputI string `json:"input_i"`
	}
	if err := json.Unmarshal([]byte(output[idx:]), &summary); err != nil {
		return 0, fmt.Errorf("unmarshal loudnorm output: %w", err)
	}

	lufs, err := strconv.ParseFloat(summary.InputI, 64)
	if err != nil {
		return 0, fmt.Errorf("parse input_i %q: %w", summary.InputI, err)
	}
	return lufs, nil
}

// Transcode re-encodes inputPath to outputPath at the target bitrate. When
// normalize is set the loudnorm filter runs in the same pass.
func (p *FFmpegProcessor) Transcode(inputPath, outputPath, bitrate string, normalize bool) error {
	args := []string{
		"-y",
		"-i", inputPath,
	}

	if normalize {
		filter := fmt.Sprintf("loudnorm=I=%g:TP=%g:LRA=%g",
			LoudnessTarget, TruePeakMax, LoudnessRange)
		args = append(args, "-af", filter)
	}

	args = append(args,
		"-c:a", "libmp3lame",
		"-b:a", bitrate,
		outputPath,
	)

	cmd := exec.Command(p.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("executing ffmpeg transcode",
		logger.String("input", inputPath),
		logger.String("output", outputPath),
		logger.String("bitrate", bitrate),
		logger.Bool("normalize", normalize))

	if err := cmd.Run(); err != nil {
		return &TranscodeError{Path: inputPath, Err: fmt.Errorf("%w: %s", err, stderr.String())}
	}
	return nil
}
