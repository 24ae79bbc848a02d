package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"downpour/types"
)

const maxPlaylistEntries = 50

// ProgressEvent is one progress callback invocation from the fetcher.
type ProgressEvent struct {
	Status   string // "downloading" or "processing"
	Progress float64
	Speed    string
	ETA      string
}

// DownloadOptions are the declarative options handed to the fetch collaborator.
type DownloadOptions struct {
	URL            string
	FormatID       string
	IsAudioOnly    bool
	AudioQuality   string
	AudioCodec     string
	OutputDir      string
	OutputTemplate string
}

// Extractor is the extraction/fetch collaborator contract.
type Extractor interface {
	Analyze(ctx context.Context, url string) (*types.AnalyzeResponse, error)
	ExtractMetadata(ctx context.Context, url string) (*types.MediaMetadata, error)
	Download(ctx context.Context, opts DownloadOptions, hook func(ProgressEvent), cancelled func() bool) (string, error)
}

// YTDLPService drives the yt-dlp binary as a subprocess.
type YTDLPService struct {
	binPath string
}

// NewYTDLPService creates a client for the given yt-dlp binary path.
func NewYTDLPService(binPath string) *YTDLPService {
	return &YTDLPService{binPath: binPath}
}

// ytdlpInfo mirrors the subset of yt-dlp's -J output the service consumes.
type ytdlpInfo struct {
	ID          string       `json:"id"`
	Type        string       `json:"_type"`
	Title       string       `json:"title"`
	Thumbnail   string       `json:"thumbnail"`
	Duration    float64      `json:"duration"`
	Uploader    string       `json:"uploader"`
	Channel     string       `json:"channel"`
	Description string       `json:"description"`
	Album       string       `json:"album"`
	Playlist    string       `json:"playlist"`
	Entries     []ytdlpEntry `json:"entries"`
	Formats     []ytdlpFmt   `json:"formats"`
}

type ytdlpEntry struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	WebpageURL string  `json:"webpage_url"`
	Thumbnail  string  `json:"thumbnail"`
	Duration   float64 `json:"duration"`
}

type ytdlpFmt struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	VCodec         string   `json:"vcodec"`
	ACodec         string   `json:"acodec"`
	Height         int      `json:"height"`
	Filesize       *int64   `json:"filesize"`
	FilesizeApprox *int64   `json:"filesize_approx"`
	FormatNote     string   `json:"format_note"`
	FPS            *float64 `json:"fps"`
}

// Analyze extracts metadata for a URL without downloading.
func (y *YTDLPService) Analyze(ctx context.Context, url string) (*types.AnalyzeResponse, error) {
	info, err := y.extractInfo(ctx, url, true)
	if err != nil {
		return nil, Wrap(ErrExtraction, "analyze "+url, err)
	}

	if info.Type == "playlist" || len(info.Entries) > 0 {
		return y.analyzePlaylist(ctx, info)
	}

	resp := &types.AnalyzeResponse{
		ID:       info.ID,
		Title:    titleOr(info.Title, "Unknown"),
		Uploader: info.Uploader,
		Formats:  parseFormats(info.Formats),
	}
	if info.Thumbnail != "" {
		resp.Thumbnail = &info.Thumbnail
	}
	if info.Duration > 0 {
		d := int64(info.Duration)
		resp.Duration = &d
	}
	return resp, nil
}

func (y *YTDLPService) analyzePlaylist(ctx context.Context, info *ytdlpInfo) (*types.AnalyzeResponse, error) {
	resp := &types.AnalyzeResponse{
		ID:            info.ID,
		Title:         titleOr(info.Title, "Unknown Playlist"),
		IsPlaylist:    true,
		PlaylistCount: len(info.Entries),
		PlaylistTitle: info.Title,
	}
	if info.Thumbnail != "" {
		resp.Thumbnail = &info.Thumbnail
	}

	entries := info.Entries
	if len(entries) > maxPlaylistEntries {
		entries = entries[:maxPlaylistEntries]
	}
	for idx, entry := range entries {
		item := types.PlaylistEntry{
			ID:    entry.ID,
			Title: titleOr(entry.Title, "Unknown"),
			URL:   entryURL(entry),
			Index: idx + 1,
		}
		if entry.Thumbnail != "" {
			thumb := entry.Thumbnail
			item.Thumbnail = &thumb
		}
		if entry.Duration > 0 {
			d := int64(entry.Duration)
			item.Duration = &d
		}
		resp.PlaylistItems = append(resp.PlaylistItems, item)
		if resp.Thumbnail == nil && entry.Thumbnail != "" {
			thumb := entry.Thumbnail
			resp.Thumbnail = &thumb
		}
	}

	// Format descriptors come from the first entry.
	if len(info.Entries) > 0 {
		if first := entryURL(info.Entries[0]); first != "" {
			if firstInfo, err := y.extractInfo(ctx, first, false); err == nil {
				resp.Formats = parseFormats(firstInfo.Formats)
			}
		}
	}
	return resp, nil
}

// ExtractMetadata pulls the fields the pipeline's inference step needs,
// without downloading.
func (y *YTDLPService) ExtractMetadata(ctx context.Context, url string) (*types.MediaMetadata, error) {
	info, err := y.extractInfo(ctx, url, false)
	if err != nil {
		return nil, Wrap(ErrExtraction, "extract metadata for "+url, err)
	}
	return &types.MediaMetadata{
		ID:          info.ID,
		Title:       info.Title,
		Uploader:    info.Uploader,
		Channel:     info.Channel,
		Description: info.Description,
		Album:       info.Album,
		Playlist:    info.Playlist,
		Duration:    info.Duration,
	}, nil
}

func (y *YTDLPService) extractInfo(ctx context.Context, url string, flatPlaylist bool) (*ytdlpInfo, error) {
	args := []string{"-J", "--no-warnings"}
	if flatPlaylist {
		args = append(args, "--flat-playlist")
	} else {
		args = append(args, "--no-playlist")
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, y.binPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("yt-dlp: %s: %w", firstLine(stderr.String()), err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("parse yt-dlp output: %w", err)
	}
	return &info, nil
}

// parseFormats filters, dedupes and sorts raw format descriptors: codec-less
// entries are skipped, duplicate height+ext video formats collapse to one,
// video sorts by height descending with audio entries last.
func parseFormats(raw []ytdlpFmt) []types.MediaFormat {
	var parsed []types.MediaFormat
	seenResolutions := make(map[string]struct{})

	for _, f := range raw {
		hasVideo := f.VCodec != "" && f.VCodec != "none"
		hasAudio := f.ACodec != "" && f.ACodec != "none"
		if !hasVideo && !hasAudio {
			continue
		}

		mf := types.MediaFormat{
			FormatID:   f.FormatID,
			Ext:        f.Ext,
			FormatNote: f.FormatNote,
			FPS:        f.FPS,
		}
		if f.Filesize != nil {
			mf.Filesize = f.Filesize
		} else {
			mf.Filesize = f.FilesizeApprox
		}
		if hasVideo {
			mf.VCodec = f.VCodec
			mf.FormatType = types.FormatVideo
			if f.Height > 0 {
				mf.Resolution = fmt.Sprintf("%dp", f.Height)
			} else if f.FormatNote != "" {
				mf.Resolution = f.FormatNote
			} else {
				mf.Resolution = "Unknown"
			}
		} else {
			mf.FormatType = types.FormatAudio
			mf.Resolution = "Audio"
		}
		if hasAudio {
			mf.ACodec = f.ACodec
		}

		if hasVideo && f.Height > 0 {
			key := fmt.Sprintf("%d_%s", f.Height, f.Ext)
			if _, seen := seenResolutions[key]; seen {
				continue
			}
			seenResolutions[key] = struct{}{}
		}
		parsed = append(parsed, mf)
	}

	sort.SliceStable(parsed, func(i, j int) bool {
		a, b := parsed[i], parsed[j]
		if a.FormatType != b.FormatType {
			return a.FormatType == types.FormatVideo
		}
		if a.FormatType == types.FormatAudio {
			return false
		}
		return resolutionHeight(a.Resolution) > resolutionHeight(b.Resolution)
	})
	return parsed
}

var digitsPattern = regexp.MustCompile(`(\d+)`)

func resolutionHeight(resolution string) int {
	m := digitsPattern.FindStringSubmatch(resolution)
	if m == nil {
		return 0
	}
	var n int
	fmt.Sscanf(m[1], "%d", &n)
	return n
}

// downloadProgressPattern matches yt-dlp's --newline progress output, e.g.
// "[download]  42.7% of ~10.51MiB at 2.12MiB/s ETA 00:12"
var downloadProgressPattern = regexp.MustCompile(`^\[download\]\s+(\d+(?:\.\d+)?)%(?:.*?\bat\s+(\S+))?(?:.*?\bETA\s+(\S+))?`)

// destinationPatterns capture the output filename as yt-dlp announces it,
// including post-processing renames.
var destinationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\[download\] Destination: (.+)$`),
	regexp.MustCompile(`^\[ExtractAudio\] Destination: (.+)$`),
	regexp.MustCompile(`^\[Merger\] Merging formats into "(.+)"$`),
	regexp.MustCompile(`^\[download\] (.+) has already been downloaded$`),
}

// Download fetches the media described by opts, streaming progress through
// hook and polling cancelled on every progress line. Returns the final file
// path.
func (y *YTDLPService) Download(ctx context.Context, opts DownloadOptions, hook func(ProgressEvent), cancelled func() bool) (string, error) {
	outputTemplate := filepath.Join(opts.OutputDir, opts.OutputTemplate)

	args := []string{
		"-o", outputTemplate,
		"--newline",
		"--no-warnings",
		"--no-playlist",
	}

	if opts.IsAudioOnly {
		codec := opts.AudioCodec
		if codec == "" {
			codec = "mp3"
		}
		quality := opts.AudioQuality
		if quality == "" {
			quality = "192"
		}
		args = append(args, "-f", "bestaudio/best", "-x", "--audio-format", codec)
		// "best" quality for m4a means no re-encode, so no quality flag.
		if !(codec == "m4a" && quality == "best") {
			args = append(args, "--audio-quality", quality)
		}
	} else {
		format := "best"
		if opts.FormatID != "" {
			format = opts.FormatID + "+bestaudio/best"
		}
		args = append(args, "-f", format, "--merge-output-format", "mp4")
	}
	args = append(args, opts.URL)

	cmd := exec.CommandContext(ctx, y.binPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", Wrap(ErrFetch, "open yt-dlp stdout", err)
	}
	if err := cmd.Start(); err != nil {
		return "", Wrap(ErrFetch, "start yt-dlp", err)
	}

	var destination string
	wasCancelled := false
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if cancelled() {
			wasCancelled = true
			_ = cmd.Process.Kill()
			break
		}
		if dest, ok := parseDestination(line); ok {
			destination = dest
			continue
		}
		if ev, ok := parseDownloadProgress(line); ok {
			hook(ev)
		}
	}

	err = cmd.Wait()
	if wasCancelled {
		return "", Wrap(ErrCancelled, "fetch aborted", nil)
	}
	if err != nil {
		return "", Wrap(ErrFetch, firstLine(stderr.String()), err)
	}

	// Post-processing is done once the process exits.
	hook(ProgressEvent{Status: "processing", Progress: 100})

	return y.resolveOutputFile(destination, opts)
}

// parseDestination extracts the announced output path from a yt-dlp line.
func parseDestination(line string) (string, bool) {
	for _, re := range destinationPatterns {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// parseDownloadProgress extracts percent/speed/eta from a progress line.
func parseDownloadProgress(line string) (ProgressEvent, bool) {
	m := downloadProgressPattern.FindStringSubmatch(line)
	if m == nil {
		return ProgressEvent{}, false
	}
	var pct float64
	fmt.Sscanf(m[1], "%f", &pct)
	return ProgressEvent{
		Status:   "downloading",
		Progress: pct,
		Speed:    m[2],
		ETA:      m[3],
	}, true
}

// resolveOutputFile finds the actual downloaded file. The reported
// destination may carry a pre-postprocessing extension; audio extraction in
// particular rewrites it to the target codec.
func (y *YTDLPService) resolveOutputFile(destination string, opts DownloadOptions) (string, error) {
	if destination != "" {
		if opts.IsAudioOnly {
			codec := opts.AudioCodec
			if codec == "" {
				codec = "mp3"
			}
			converted := strings.TrimSuffix(destination, filepath.Ext(destination)) + "." + codec
			if _, err := os.Stat(converted); err == nil {
				return converted, nil
			}
		}
		if _, err := os.Stat(destination); err == nil {
			return destination, nil
		}
	}

	// Fallback: most recently modified non-temporary file in the output dir.
	if newest := newestMediaFile(opts.OutputDir); newest != "" {
		return newest, nil
	}
	return "", Wrap(ErrFetch, "could not locate downloaded file", nil)
}

// newestMediaFile returns the most recently modified file in dir, skipping
// incomplete-download artifacts. Empty string when none.
func newestMediaFile(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var newest string
	var newestMod int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest = filepath.Join(dir, name)
			newestMod = mod
		}
	}
	return newest
}

func entryURL(e ytdlpEntry) string {
	if e.URL != "" {
		return e.URL
	}
	return e.WebpageURL
}

func titleOr(title, fallback string) string {
	if title == "" {
		return fallback
	}
	return title
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if s == "" {
		return "yt-dlp failed"
	}
	return s
}
