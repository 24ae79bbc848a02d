package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"downpour/types"
)

func TestParseDownloadProgress(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		ok       bool
		progress float64
		speed    string
		eta      string
	}{
		{
			name:     "full progress line",
			line:     "[download]  42.7% of ~10.51MiB at 2.12MiB/s ETA 00:12",
			ok:       true,
			progress: 42.7,
			speed:    "2.12MiB/s",
			eta:      "00:12",
		},
		{
			name:     "hundred percent",
			line:     "[download] 100% of 10.51MiB in 00:05 at 2.00MiB/s",
			ok:       true,
			progress: 100,
			speed:    "2.00MiB/s",
		},
		{
			name:     "no speed or eta",
			line:     "[download]  12.0% of 3.00MiB",
			ok:       true,
			progress: 12,
		},
		{name: "destination line", line: "[download] Destination: /tmp/file.webm", ok: false},
		{name: "unrelated line", line: "[info] Downloading 1 format(s): 251", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := parseDownloadProgress(tt.line)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, "downloading", ev.Status)
			assert.InDelta(t, tt.progress, ev.Progress, 0.001)
			assert.Equal(t, tt.speed, ev.Speed)
			assert.Equal(t, tt.eta, ev.ETA)
		})
	}
}

func TestParseDestination(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected string
		ok       bool
	}{
		{"download destination", "[download] Destination: /tmp/song.webm", "/tmp/song.webm", true},
		{"audio extraction", "[ExtractAudio] Destination: /tmp/song.mp3", "/tmp/song.mp3", true},
		{"merger output", `[Merger] Merging formats into "/tmp/video.mp4"`, "/tmp/video.mp4", true},
		{"already downloaded", "[download] /tmp/song.mp3 has already been downloaded", "/tmp/song.mp3", true},
		{"progress line", "[download]  42.7% of 10MiB", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest, ok := parseDestination(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, dest)
		})
	}
}

func TestParseFormats(t *testing.T) {
	size := int64(1000)
	approx := int64(2000)
	raw := []ytdlpFmt{
		{FormatID: "sb0", Ext: "mhtml", VCodec: "none", ACodec: "none"},
		{FormatID: "251", Ext: "webm", VCodec: "none", ACodec: "opus", FilesizeApprox: &approx},
		{FormatID: "248", Ext: "webm", VCodec: "vp9", ACodec: "none", Height: 1080, Filesize: &size},
		{FormatID: "247", Ext: "webm", VCodec: "vp9", ACodec: "none", Height: 720},
		{FormatID: "136", Ext: "mp4", VCodec: "avc1", ACodec: "none", Height: 720},
		// Duplicate of 247's height+ext pair, must collapse
		{FormatID: "302", Ext: "webm", VCodec: "vp9", ACodec: "none", Height: 720},
	}

	formats := parseFormats(raw)
	require.Len(t, formats, 4)

	// Video sorted by height descending, audio last
	assert.Equal(t, "248", formats[0].FormatID)
	assert.Equal(t, "1080p", formats[0].Resolution)
	assert.Equal(t, types.FormatVideo, formats[0].FormatType)
	assert.Equal(t, size, *formats[0].Filesize)

	assert.Equal(t, types.FormatVideo, formats[1].FormatType)
	assert.Equal(t, types.FormatVideo, formats[2].FormatType)
	assert.ElementsMatch(t, []string{"247", "136"}, []string{formats[1].FormatID, formats[2].FormatID})

	assert.Equal(t, "251", formats[3].FormatID)
	assert.Equal(t, types.FormatAudio, formats[3].FormatType)
	assert.Equal(t, "Audio", formats[3].Resolution)
	assert.Equal(t, approx, *formats[3].Filesize)
}

func TestParseFormatsResolutionFromFormatNote(t *testing.T) {
	formats := parseFormats([]ytdlpFmt{
		{FormatID: "hls-1", Ext: "mp4", VCodec: "avc1", ACodec: "aac", FormatNote: "720p HLS"},
	})
	require.Len(t, formats, 1)
	assert.Equal(t, "720p HLS", formats[0].Resolution)
}

func TestNewestMediaFile(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "older.mp3")
	newer := filepath.Join(dir, "newer.mp3")
	partial := filepath.Join(dir, "incomplete.mp4.part")
	hidden := filepath.Join(dir, ".transcode-x.mp4")
	for _, p := range []string{older, newer, partial, hidden} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	base := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, base, base))
	require.NoError(t, os.Chtimes(partial, base.Add(2*time.Hour), base.Add(2*time.Hour)))

	assert.Equal(t, newer, newestMediaFile(dir))
}

func TestResolveOutputFilePrefersAudioExtension(t *testing.T) {
	y := NewYTDLPService("yt-dlp")
	dir := t.TempDir()
	converted := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(converted, []byte("x"), 0o644))

	path, err := y.resolveOutputFile(filepath.Join(dir, "song.webm"), DownloadOptions{
		IsAudioOnly: true,
		AudioCodec:  "mp3",
		OutputDir:   dir,
	})
	require.NoError(t, err)
	assert.Equal(t, converted, path)
}

func TestResolveOutputFileFallsBackToNewest(t *testing.T) {
	y := NewYTDLPService("yt-dlp")
	dir := t.TempDir()
	only := filepath.Join(dir, "video.mp4")
	require.NoError(t, os.WriteFile(only, []byte("x"), 0o644))

	path, err := y.resolveOutputFile("", DownloadOptions{OutputDir: dir})
	require.NoError(t, err)
	assert.Equal(t, only, path)
}

func TestResolveOutputFileEmptyDirFails(t *testing.T) {
	y := NewYTDLPService("yt-dlp")
	_, err := y.resolveOutputFile("", DownloadOptions{OutputDir: t.TempDir()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)
}
