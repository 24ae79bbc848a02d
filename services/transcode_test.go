package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEncodeProgress(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		duration float64
		expected float64
		ok       bool
	}{
		{"out_time_us halfway", "out_time_us=60000000", 120, 50, true},
		{"out_time_ms carries microseconds too", "out_time_ms=60000000", 120, 50, true},
		{"out_time clock format", "out_time=00:01:00.000000", 120, 50, true},
		{"clamped at 100", "out_time_us=500000000", 120, 100, true},
		{"negative value rejected", "out_time_us=-1", 120, 0, false},
		{"other key ignored", "speed=2.5x", 120, 0, false},
		{"no separator", "progress continue", 120, 0, false},
		{"zero duration", "out_time_us=60000000", 0, 0, false},
		{"malformed clock", "out_time=junk", 120, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pct, ok := parseEncodeProgress(tt.line, tt.duration)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.expected, pct, 0.01)
			}
		})
	}
}

func TestParseClockTime(t *testing.T) {
	assert.InDelta(t, 3661.5, parseClockTime("01:01:01.500000"), 0.001)
	assert.InDelta(t, 0, parseClockTime("00:00:00.000000"), 0.001)
	assert.Equal(t, float64(-1), parseClockTime("1:00"))
	assert.Equal(t, float64(-1), parseClockTime("aa:bb:cc"))
}

func TestIsDriverFailure(t *testing.T) {
	tests := []struct {
		name     string
		stderr   string
		expected bool
	}{
		{"cuda failure", "Cannot load libcuda.so.1: CUDA driver not found", true},
		{"nvenc missing", "Driver does not support the required nvenc API version", true},
		{"vaapi device", "Device creation failed: -542398533", true},
		{"source corrupt", "Invalid data found when processing input", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isDriverFailure(tt.stderr))
		})
	}
}

func TestLastStderrLine(t *testing.T) {
	assert.Equal(t, "final error", lastStderrLine("warning one\nwarning two\nfinal error\n"))
	assert.Equal(t, "encode failed", lastStderrLine(""))
}

// passRecorder captures runPass invocations for fallback assertions.
type passRecorder struct {
	encoders []string
	results  []func(dst string) (string, error)
}

func (r *passRecorder) run(ctx context.Context, src, dst, encoder string, duration float64, onProgress func(float64), cancelled func() bool) (string, error) {
	idx := len(r.encoders)
	r.encoders = append(r.encoders, encoder)
	return r.results[idx](dst)
}

func newHookedEngine(rec *passRecorder) *TranscodeEngine {
	e := &TranscodeEngine{ffmpegPath: "ffmpeg", ffprobePath: "ffprobe", hwEncoder: "h264_nvenc"}
	e.runPass = rec.run
	e.probeDuration = func(ctx context.Context, path string) (float64, error) { return 120, nil }
	return e
}

func TestConvertFallsBackToSoftwareOnDriverFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "video.webm")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	rec := &passRecorder{results: []func(string) (string, error){
		func(dst string) (string, error) {
			return "Cannot load libcuda.so.1", fmt.Errorf("ffmpeg h264_nvenc: exit status 1")
		},
		func(dst string) (string, error) {
			return "", os.WriteFile(dst, []byte("encoded"), 0o644)
		},
	}}
	engine := newHookedEngine(rec)

	var lastPct float64
	out, err := engine.Convert(context.Background(), src, func(pct float64) { lastPct = pct }, func() bool { return false })

	require.NoError(t, err)
	assert.Equal(t, []string{"h264_nvenc", "libx264"}, rec.encoders)
	assert.Equal(t, filepath.Join(dir, "video.mp4"), out)
	assert.FileExists(t, out)
	assert.NoFileExists(t, src)
	assert.Equal(t, float64(100), lastPct)
}

func TestConvertNonDriverFailureDoesNotRetry(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "video.webm")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	rec := &passRecorder{results: []func(string) (string, error){
		func(dst string) (string, error) {
			return "Invalid data found when processing input", fmt.Errorf("ffmpeg h264_nvenc: exit status 1")
		},
	}}
	engine := newHookedEngine(rec)

	_, err := engine.Convert(context.Background(), src, func(float64) {}, func() bool { return false })

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTranscode)
	assert.Len(t, rec.encoders, 1)
	assert.FileExists(t, src)
}

func TestConvertCancelledSkipsRetry(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "video.webm")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	rec := &passRecorder{results: []func(string) (string, error){
		func(dst string) (string, error) {
			return "Cannot load libcuda.so.1", Wrap(ErrCancelled, "transcode aborted", nil)
		},
	}}
	engine := newHookedEngine(rec)

	_, err := engine.Convert(context.Background(), src, func(float64) {}, func() bool { return true })

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Len(t, rec.encoders, 1)
}

func TestCleanupTempArtifacts(t *testing.T) {
	dir := t.TempDir()
	temp := filepath.Join(dir, ".transcode-video.mp4")
	keep := filepath.Join(dir, "video.mp4")
	require.NoError(t, os.WriteFile(temp, nil, 0o644))
	require.NoError(t, os.WriteFile(keep, nil, 0o644))

	CleanupTempArtifacts(dir)

	assert.NoFileExists(t, temp)
	assert.FileExists(t, keep)
}
