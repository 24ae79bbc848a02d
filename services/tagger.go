package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/dhowden/tag"

	"downpour/types"
)

// TagMetadata is the tag set written into a finished audio file.
type TagMetadata struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
}

// Tagger writes container-level metadata into finished audio files.
type Tagger interface {
	Tag(ctx context.Context, path string, meta TagMetadata) error
	ReadTags(path string) (*types.AudioMetadata, error)
}

// FFmpegTagger rewrites tags with a stream-copy ffmpeg pass.
type FFmpegTagger struct {
	ffmpegPath string
}

func NewFFmpegTagger(ffmpegPath string) *FFmpegTagger {
	return &FFmpegTagger{ffmpegPath: ffmpegPath}
}

// Tag writes meta into the file at path without re-encoding. The rewrite
// goes through a temp file in the same directory so a failed pass never
// clobbers the original.
func (t *FFmpegTagger) Tag(ctx context.Context, path string, meta TagMetadata) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmpPath := filepath.Join(dir, ".tagged-"+base)

	args := []string{
		"-y",
		"-i", path,
		"-c", "copy",
	}
	if meta.Title != "" {
		args = append(args, "-metadata", "title="+meta.Title)
	}
	if meta.Artist != "" {
		args = append(args, "-metadata", "artist="+meta.Artist)
	}
	if meta.Album != "" {
		args = append(args, "-metadata", "album="+meta.Album)
	}
	if meta.AlbumArtist != "" {
		args = append(args, "-metadata", "album_artist="+meta.AlbumArtist)
	}
	args = append(args, tmpPath)

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(tmpPath)
		return Wrap(ErrTagging, lastStderrLine(stderr.String()), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return Wrap(ErrTagging, "replace tagged file", err)
	}

	// Read-back is a sanity check only, a tag library that cannot parse
	// the container must not fail the pipeline.
	if readBack, err := t.ReadTags(path); err != nil {
		log.Printf("Tag verification skipped for %s: %v", base, err)
	} else if readBack.Artist != meta.Artist {
		log.Printf("Tag verification mismatch for %s: artist %q != %q", base, readBack.Artist, meta.Artist)
	}
	return nil
}

// ReadTags reads container-level tags from an audio file.
func (t *FFmpegTagger) ReadTags(path string) (*types.AudioMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("read tags from %s: %w", filepath.Base(path), err)
	}
	track, _ := m.Track()
	return &types.AudioMetadata{
		Title:       m.Title(),
		Artist:      m.Artist(),
		Album:       m.Album(),
		TrackNumber: track,
	}, nil
}
