package services

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	targetContainer  = "mp4"
	targetVideoCodec = "h264"
	targetAudioCodec = "aac"
)

// hardware encoder profiles checked in order of preference
var hardwareEncoders = []string{"h264_nvenc", "h264_vaapi", "h264_qsv", "h264_videotoolbox"}

// driverFailureMarkers identify accelerator/driver failures in ffmpeg stderr
// that warrant a software-encoder retry. Anything else is fatal.
var driverFailureMarkers = []string{
	"cuda", "nvenc", "nvdec", "vaapi", "qsv", "videotoolbox",
	"no capable devices", "cannot load", "device creation failed",
	"driver does not support", "hwaccel",
}

// Transcoder normalizes a downloaded container to the target codec pair.
type Transcoder interface {
	Convert(ctx context.Context, path string, onProgress func(pct float64), cancelled func() bool) (string, error)
	ProbePlayable(ctx context.Context, path string) error
}

// TranscodeEngine drives ffmpeg/ffprobe subprocesses with a two-attempt
// hardware-then-software pipeline and streaming progress parsing.
type TranscodeEngine struct {
	ffmpegPath  string
	ffprobePath string
	hwEncoder   string // resolved once at construction, empty when none found

	// test hooks
	runPass       func(ctx context.Context, src, dst, encoder string, duration float64, onProgress func(float64), cancelled func() bool) (string, error)
	probeDuration func(ctx context.Context, path string) (float64, error)
}

// NewTranscodeEngine resolves tool paths and detects a usable hardware
// encoder profile.
func NewTranscodeEngine(ffmpegPath, ffprobePath string) *TranscodeEngine {
	e := &TranscodeEngine{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
	e.hwEncoder = e.detectHardwareEncoder()
	e.runPass = e.runEncode
	e.probeDuration = e.ProbeDuration
	return e
}

// detectHardwareEncoder scans ffmpeg's encoder list for a known accelerated
// h264 encoder.
func (e *TranscodeEngine) detectHardwareEncoder() string {
	out, err := exec.Command(e.ffmpegPath, "-hide_banner", "-encoders").Output()
	if err != nil {
		return ""
	}
	listing := string(out)
	for _, enc := range hardwareEncoders {
		if strings.Contains(listing, " "+enc+" ") {
			return enc
		}
	}
	return ""
}

// ProbeDuration returns the media duration in seconds via ffprobe.
func (e *TranscodeEngine) ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w", err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return dur, nil
}

// ProbeAudioCodec returns the codec name of the first audio stream.
func (e *TranscodeEngine) ProbeAudioCodec(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "quiet",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ProbePlayable verifies the file is non-empty and ffprobe can read it.
func (e *TranscodeEngine) ProbePlayable(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("file %s is empty", path)
	}
	if _, err := e.ProbeDuration(ctx, path); err != nil {
		return fmt.Errorf("file %s is not playable: %w", path, err)
	}
	return nil
}

// Convert re-encodes path to the target container/codec pair, writing to a
// temporary file and atomically replacing the source on success. Returns the
// final output path. Progress is reported as 0-100 via onProgress; the
// caller remaps it into the item's overall range. Cancellation is polled per
// progress line.
func (e *TranscodeEngine) Convert(ctx context.Context, path string, onProgress func(pct float64), cancelled func() bool) (string, error) {
	duration, err := e.probeDuration(ctx, path)
	if err != nil {
		return "", Wrap(ErrTranscode, "probe source duration", err)
	}

	outPath := strings.TrimSuffix(path, filepath.Ext(path)) + "." + targetContainer
	tmpPath := filepath.Join(filepath.Dir(path), ".transcode-"+filepath.Base(outPath))

	encoder := e.hwEncoder
	if encoder == "" {
		encoder = "libx264"
	}

	stderrText, err := e.runPass(ctx, path, tmpPath, encoder, duration, onProgress, cancelled)
	if err != nil {
		if IsCancelled(err) {
			os.Remove(tmpPath)
			return "", err
		}
		if encoder != "libx264" && isDriverFailure(stderrText) {
			log.Printf("Hardware encoder %s failed (%v), retrying with libx264", encoder, err)
			os.Remove(tmpPath)
			stderrText, err = e.runPass(ctx, path, tmpPath, "libx264", duration, onProgress, cancelled)
		}
		if err != nil {
			os.Remove(tmpPath)
			if IsCancelled(err) {
				return "", err
			}
			return "", Wrap(ErrTranscode, lastStderrLine(stderrText), err)
		}
	}

	// Non-fatal: the audio stream should already be the target codec.
	if codec, probeErr := e.ProbeAudioCodec(ctx, tmpPath); probeErr == nil && codec != targetAudioCodec {
		log.Printf("Transcoded output %s has audio codec %s, expected %s", tmpPath, codec, targetAudioCodec)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return "", Wrap(ErrTranscode, "replace output", err)
	}
	if outPath != path {
		if err := os.Remove(path); err != nil {
			log.Printf("Could not remove pre-transcode source %s: %v", path, err)
		}
	}
	onProgress(100)
	return outPath, nil
}

// runEncode executes a single ffmpeg pass, streaming -progress key=value
// pairs from stdout. Returns captured stderr text alongside any error.
func (e *TranscodeEngine) runEncode(ctx context.Context, src, dst, encoder string, duration float64, onProgress func(float64), cancelled func() bool) (string, error) {
	args := []string{
		"-y", "-hide_banner",
		"-i", src,
		"-c:v", encoder,
		"-c:a", targetAudioCodec,
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		"-f", targetContainer,
		dst,
	}

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	if err := cmd.Start(); err != nil {
		return stderr.String(), err
	}

	wasCancelled := false
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if cancelled() {
			wasCancelled = true
			_ = cmd.Process.Kill()
			break
		}
		if pct, ok := parseEncodeProgress(line, duration); ok {
			onProgress(pct)
		}
	}

	err = cmd.Wait()
	if wasCancelled {
		return stderr.String(), Wrap(ErrCancelled, "transcode aborted", nil)
	}
	if err != nil {
		return stderr.String(), fmt.Errorf("ffmpeg %s: %w", encoder, err)
	}
	return stderr.String(), nil
}

// parseEncodeProgress converts one -progress key=value line into a 0-100
// percentage using the elapsed-time keys.
func parseEncodeProgress(line string, duration float64) (float64, bool) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found || duration <= 0 {
		return 0, false
	}
	var elapsed float64
	switch key {
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds in current ffmpeg releases.
		us, err := strconv.ParseFloat(value, 64)
		if err != nil || us < 0 {
			return 0, false
		}
		elapsed = us / 1e6
	case "out_time":
		elapsed = parseClockTime(value)
		if elapsed < 0 {
			return 0, false
		}
	default:
		return 0, false
	}
	pct := elapsed / duration * 100
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// parseClockTime parses HH:MM:SS.micro into seconds, -1 on malformed input.
func parseClockTime(value string) float64 {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return -1
	}
	hours, err1 := strconv.Atoi(parts[0])
	mins, err2 := strconv.Atoi(parts[1])
	secs, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return -1
	}
	return float64(hours*3600+mins*60) + secs
}

// isDriverFailure reports whether ffmpeg stderr indicates an accelerator or
// driver failure rather than a source problem.
func isDriverFailure(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range driverFailureMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func lastStderrLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[len(lines)-1]) == "" {
		return "encode failed"
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

// CleanupTempArtifacts removes leftover temp files from prior failed
// transcode attempts in the given directory.
func CleanupTempArtifacts(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".transcode-") {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
}
