package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMetadataFromPathFallback(t *testing.T) {
	ls := &libraryService{}

	meta := ls.extractMetadataFromPath("Radiohead/OK Computer/03 - Exit Music.mp3")
	assert.Equal(t, "Radiohead", meta.Artist)
	assert.Equal(t, "OK Computer", meta.Album)
	assert.Equal(t, "Exit Music", meta.Title)
	assert.Equal(t, 3, meta.TrackNumber)

	// Flat file has no directory context
	meta = ls.extractMetadataFromPath("Song.mp3")
	assert.Equal(t, "", meta.Artist)
	assert.Equal(t, "Song", meta.Title)
}

func TestGetContentType(t *testing.T) {
	ls := NewLibraryService()
	tests := []struct {
		path     string
		expected string
	}{
		{"a/b/song.mp3", "audio/mpeg"},
		{"song.M4A", "audio/mp4"},
		{"song.flac", "audio/flac"},
		{"video.mp4", "video/mp4"},
		{"video.mkv", "video/x-matroska"},
		{"video.webm", "video/webm"},
		{"notes.txt", "application/octet-stream"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ls.GetContentType(tt.path), tt.path)
	}
}

func TestValidateFilePath(t *testing.T) {
	ls := NewLibraryService()

	assert.NoError(t, ls.ValidateFilePath("Artist/Album/01 - Song.mp3"))
	assert.Error(t, ls.ValidateFilePath("../escape.mp3"))
	assert.Error(t, ls.ValidateFilePath("/etc/passwd"))
	assert.Error(t, ls.ValidateFilePath("   "))
}

func TestScanMediaFiles(t *testing.T) {
	ls := NewLibraryService()
	root := t.TempDir()

	albumDir := filepath.Join(root, "Artist", "Album")
	require.NoError(t, os.MkdirAll(albumDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(albumDir, "01 - Song.mp3"), []byte("notrealaudio"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "clip.mp4"), []byte("video"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("skip"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".transcode-x.mp4"), []byte("skip"), 0o644))

	files, err := ls.ScanMediaFiles(root)
	require.NoError(t, err)
	require.Len(t, files, 2)

	byName := make(map[string]int)
	for i, f := range files {
		byName[f.Filename] = i
	}
	require.Contains(t, byName, "01 - Song.mp3")
	require.Contains(t, byName, "clip.mp4")

	song := files[byName["01 - Song.mp3"]]
	assert.Equal(t, "mp3", song.Format)
	// Not parseable as audio, so metadata falls back to the path layout
	require.NotNil(t, song.Metadata)
	assert.Equal(t, "Artist", song.Metadata.Artist)
	assert.Equal(t, "Album", song.Metadata.Album)
	assert.Equal(t, "Song", song.Metadata.Title)

	clip := files[byName["clip.mp4"]]
	assert.Equal(t, "mp4", clip.Format)
	assert.Nil(t, clip.Metadata)
}
