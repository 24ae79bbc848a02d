package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"downpour/types"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"invalid characters stripped", `AC/DC: Back <in> Black?`, "ACDC Back in Black"},
		{"whitespace collapsed", "too   many    spaces", "too many spaces"},
		{"edge dots and spaces trimmed", " .hidden. ", "hidden"},
		{"clean name untouched", "01 - Song Title", "01 - Song Title"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeFilename(tt.input)
			assert.Equal(t, tt.expected, result)
			// Sanitizing twice must not change the result further
			assert.Equal(t, result, SanitizeFilename(result))
		})
	}
}

func TestInferArtistAlbum(t *testing.T) {
	tests := []struct {
		name           string
		meta           types.MediaMetadata
		expectedArtist string
		expectedAlbum  string
		expectedTitle  string
	}{
		{
			name:           "dash separator splits artist and title",
			meta:           types.MediaMetadata{Title: "Radiohead - Karma Police"},
			expectedArtist: "Radiohead",
			expectedAlbum:  "Singles",
			expectedTitle:  "Karma Police",
		},
		{
			name:           "single colon separator splits too",
			meta:           types.MediaMetadata{Title: "Björk: Hyperballad"},
			expectedArtist: "Björk",
			expectedAlbum:  "Singles",
			expectedTitle:  "Hyperballad",
		},
		{
			name:           "album field wins over playlist",
			meta:           types.MediaMetadata{Title: "Artist - Song", Album: "OK Computer", Playlist: "My Mix"},
			expectedArtist: "Artist",
			expectedAlbum:  "OK Computer",
			expectedTitle:  "Song",
		},
		{
			name:           "playlist used as album",
			meta:           types.MediaMetadata{Title: "Artist - Song", Playlist: "In Rainbows"},
			expectedArtist: "Artist",
			expectedAlbum:  "In Rainbows",
			expectedTitle:  "Song",
		},
		{
			name:           "generic playlist name rejected",
			meta:           types.MediaMetadata{Title: "Artist - Song", Playlist: "Uploads"},
			expectedArtist: "Artist",
			expectedAlbum:  "Singles",
			expectedTitle:  "Song",
		},
		{
			name:           "album parsed from description",
			meta:           types.MediaMetadata{Title: "Artist - Song", Description: "Taken from \"Amnesiac\" album, out now"},
			expectedArtist: "Artist",
			expectedAlbum:  "Amnesiac",
			expectedTitle:  "Song",
		},
		{
			name:           "album colon line in description",
			meta:           types.MediaMetadata{Title: "Artist - Song", Description: "Album: Kid A\nYear: 2000"},
			expectedArtist: "Artist",
			expectedAlbum:  "Kid A",
			expectedTitle:  "Song",
		},
		{
			name:           "from-suffix stripped from title",
			meta:           types.MediaMetadata{Title: "Artist - Song (from The Bends)"},
			expectedArtist: "Artist",
			expectedAlbum:  "The Bends",
			expectedTitle:  "Song",
		},
		{
			name:           "no artist falls back to uploader for both",
			meta:           types.MediaMetadata{Title: "Just A Song", Uploader: "SomeChannel"},
			expectedArtist: "SomeChannel",
			expectedAlbum:  "SomeChannel",
			expectedTitle:  "Just A Song",
		},
		{
			name:           "channel fallback when uploader empty",
			meta:           types.MediaMetadata{Title: "Just A Song", Channel: "TheChannel"},
			expectedArtist: "TheChannel",
			expectedAlbum:  "TheChannel",
			expectedTitle:  "Just A Song",
		},
		{
			name:           "nothing known at all",
			meta:           types.MediaMetadata{Title: "Just A Song"},
			expectedArtist: "",
			expectedAlbum:  "YouTube",
			expectedTitle:  "Just A Song",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			artist, album, title := InferArtistAlbum(&tt.meta)
			assert.Equal(t, tt.expectedArtist, artist)
			assert.Equal(t, tt.expectedAlbum, album)
			assert.Equal(t, tt.expectedTitle, title)
		})
	}
}

func TestNextTrackNumber(t *testing.T) {
	t.Run("empty directory starts at 01", func(t *testing.T) {
		assert.Equal(t, "01", NextTrackNumber(t.TempDir()))
	})

	t.Run("missing directory starts at 01", func(t *testing.T) {
		assert.Equal(t, "01", NextTrackNumber("/nonexistent/path"))
	})

	t.Run("continues after highest existing prefix", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"01 - First.mp3", "03 - Third.mp3", "notes.txt"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
		}
		assert.Equal(t, "04", NextTrackNumber(dir))
	})

	t.Run("ignores files without prefix", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "Song.mp3"), nil, 0o644))
		assert.Equal(t, "01", NextTrackNumber(dir))
	})

	t.Run("only audio files count", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"01 - Song.mp3", "05 - Clip.mp4", "07 - Cover.txt"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
		}
		assert.Equal(t, "02", NextTrackNumber(dir))
	})
}

func TestPlan(t *testing.T) {
	downloadDir := t.TempDir()
	musicDir := t.TempDir()
	moviesDir := t.TempDir()
	planner := NewPlacementPlanner(downloadDir, musicDir, moviesDir)

	t.Run("plain download goes flat", func(t *testing.T) {
		item := &types.QueueItem{Title: "Some Video", IsAudioOnly: true}
		plan := planner.Plan(item, &types.MediaMetadata{Title: "Some Video"})
		assert.Equal(t, downloadDir, plan.Dir)
		assert.Equal(t, "%(title)s.%(ext)s", plan.Template)
		assert.False(t, plan.InLibrary)
	})

	t.Run("video to library goes to movies", func(t *testing.T) {
		item := &types.QueueItem{Title: "A Film", SendToLibrary: true}
		plan := planner.Plan(item, &types.MediaMetadata{Title: "A Film"})
		assert.Equal(t, moviesDir, plan.Dir)
		assert.False(t, plan.InLibrary)
	})

	t.Run("audio to library builds artist album tree", func(t *testing.T) {
		item := &types.QueueItem{Title: "Artist - Song", IsAudioOnly: true, SendToLibrary: true}
		meta := &types.MediaMetadata{Title: "Artist - Song", Album: "The Album"}
		plan := planner.Plan(item, meta)
		assert.Equal(t, filepath.Join(musicDir, "Artist", "The Album"), plan.Dir)
		assert.Equal(t, "01 - %(title)s.%(ext)s", plan.Template)
		assert.True(t, plan.InLibrary)
		assert.Equal(t, "01 - Song.mp3", plan.LibraryFilename(".mp3"))
	})

	t.Run("audio without artist falls back to flat music dir", func(t *testing.T) {
		item := &types.QueueItem{Title: "Lone Track", IsAudioOnly: true, SendToLibrary: true}
		plan := planner.Plan(item, &types.MediaMetadata{Title: "Lone Track"})
		assert.Equal(t, musicDir, plan.Dir)
		assert.False(t, plan.InLibrary)
	})
}
