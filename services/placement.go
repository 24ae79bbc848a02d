package services

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"downpour/types"
)

// PlacementPlan is the resolved destination for one download.
type PlacementPlan struct {
	Dir         string
	Template    string // output filename template, %(ext)s style left to the fetcher
	Artist      string
	Album       string
	Title       string // may differ from the item title after inference
	TrackNumber string // "01".."NNN", empty when not in the organized music tree
	InLibrary   bool   // true when placed under the organized music tree
}

// PlacementPlanner derives output directories and filename templates from the
// media kind, the send-to-library flag and extracted metadata.
type PlacementPlanner struct {
	downloadDir string
	musicDir    string
	moviesDir   string
}

// NewPlacementPlanner creates a planner rooted at the configured directories.
func NewPlacementPlanner(downloadDir, musicDir, moviesDir string) *PlacementPlanner {
	return &PlacementPlanner{
		downloadDir: downloadDir,
		musicDir:    musicDir,
		moviesDir:   moviesDir,
	}
}

// genericAlbumNames never qualify as album titles when taken from a playlist.
var genericAlbumNames = map[string]struct{}{
	"uploads": {}, "videos": {}, "playlist": {}, "music": {}, "songs": {}, "tracks": {},
}

var (
	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespaceRuns       = regexp.MustCompile(`\s+`)
	trackPrefixPattern   = regexp.MustCompile(`^(\d{2,3}) - `)
	albumFromDescription = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bAlbum:\s*([^\n\r]+)`),
		regexp.MustCompile(`(?i)\bfrom\s+"([^"]+)"\s+album`),
		regexp.MustCompile(`(?i)\bon\s+"([^"]+)"\s+album`),
	}
	albumSuffixPattern = regexp.MustCompile(`\s*[(\[]from ([^)\]]+)[)\]]\s*$`)
)

// SanitizeFilename strips characters unsafe on network filesystems, trims
// edge spaces and dots, and collapses internal whitespace runs. Idempotent.
func SanitizeFilename(name string) string {
	cleaned := invalidFilenameChars.ReplaceAllString(name, "")
	cleaned = whitespaceRuns.ReplaceAllString(cleaned, " ")
	return strings.Trim(cleaned, " .")
}

// InferArtistAlbum applies the audio artist/album inference heuristics against
// extracted metadata. First match wins; the exact precedence is deliberate.
func InferArtistAlbum(meta *types.MediaMetadata) (artist, album, title string) {
	title = meta.Title

	// 1. Split the title on " - " or a single ": " into artist and title.
	if idx := strings.Index(title, " - "); idx > 0 {
		artist = strings.TrimSpace(title[:idx])
		title = strings.TrimSpace(title[idx+3:])
	} else if strings.Count(title, ": ") == 1 {
		idx := strings.Index(title, ": ")
		artist = strings.TrimSpace(title[:idx])
		title = strings.TrimSpace(title[idx+2:])
	}

	// 2. Album straight from the extractor's album field.
	if meta.Album != "" {
		album = meta.Album
	}

	// 3. Playlist name, unless generic.
	if album == "" && meta.Playlist != "" {
		if _, generic := genericAlbumNames[strings.ToLower(strings.TrimSpace(meta.Playlist))]; !generic {
			album = meta.Playlist
		}
	}

	// 4. Album parsed out of the description text.
	if album == "" {
		for _, re := range albumFromDescription {
			if m := re.FindStringSubmatch(meta.Description); m != nil {
				album = strings.TrimSpace(m[1])
				break
			}
		}
	}

	// 5. "(from X)" / "[from X]" title suffix, stripped from the title.
	if album == "" {
		if m := albumSuffixPattern.FindStringSubmatch(title); m != nil {
			album = strings.TrimSpace(m[1])
			title = strings.TrimSpace(albumSuffixPattern.ReplaceAllString(title, ""))
		}
	}

	// 6. Fallbacks. "Singles" whenever an artist was determined at all.
	if album == "" {
		switch {
		case artist != "":
			album = "Singles"
		case meta.Uploader != "":
			album = meta.Uploader
		case meta.Channel != "":
			album = meta.Channel
		default:
			album = "YouTube"
		}
	}

	if artist == "" {
		if meta.Uploader != "" {
			artist = meta.Uploader
		} else {
			artist = meta.Channel
		}
	}

	return artist, album, title
}

// NextTrackNumber scans dir for audio files with a leading "NN - " or
// "NNN - " prefix and returns max(existing)+1 zero-padded to two digits.
// Defaults to "01" when nothing matches or the directory is unreadable.
func NextTrackNumber(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "01"
	}
	max := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		format, ok := mediaExtensions[strings.ToLower(filepath.Ext(name))]
		if !ok || !isAudioFormat(format) {
			continue
		}
		if m := trackPrefixPattern.FindStringSubmatch(name); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > max {
				max = n
			}
		}
	}
	return fmt.Sprintf("%02d", max+1)
}

// Plan resolves the destination directory and filename template for an item.
// The directory is not created here; the pipeline validates it through the
// mount layer before fetching.
func (p *PlacementPlanner) Plan(item *types.QueueItem, meta *types.MediaMetadata) PlacementPlan {
	plan := PlacementPlan{Title: item.Title}

	if !item.SendToLibrary {
		plan.Dir = p.downloadDir
		plan.Template = "%(title)s.%(ext)s"
		return plan
	}

	if !item.IsAudioOnly {
		plan.Dir = p.moviesDir
		plan.Template = "%(title)s.%(ext)s"
		return plan
	}

	artist, album, title := InferArtistAlbum(meta)
	plan.Artist = artist
	plan.Album = album
	plan.Title = title

	if artist == "" || album == "" {
		// Cannot build an artist/album tree without both; flat music dir.
		plan.Dir = p.musicDir
		plan.Template = "%(title)s.%(ext)s"
		return plan
	}

	plan.Dir = filepath.Join(p.musicDir, SanitizeFilename(artist), SanitizeFilename(album))
	plan.TrackNumber = NextTrackNumber(plan.Dir)
	plan.Template = plan.TrackNumber + " - %(title)s.%(ext)s"
	plan.InLibrary = true
	return plan
}

// LibraryFilename is the canonical name an organized audio file must carry.
func (p PlacementPlan) LibraryFilename(ext string) string {
	return fmt.Sprintf("%s - %s%s", p.TrackNumber, SanitizeFilename(p.Title), ext)
}
