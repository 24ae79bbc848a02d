package services

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"downpour/types"
)

// Progress spans per stage. Fetch owns 0-95, transcode 95-99, finalization
// snaps to 100 when the queue marks the item completed.
const (
	fetchProgressCeiling     = 95.0
	transcodeProgressFloor   = 95.0
	transcodeProgressCeiling = 99.0
)

// Pipeline executes a single queue item end to end. All collaborators are
// injected so tests can substitute fakes.
type Pipeline struct {
	extractor  Extractor
	transcoder Transcoder
	tagger     Tagger
	planner    *PlacementPlanner
	mounts     *MountGuard
	bridge     *ProgressBridge
	cancels    *CancelSet
}

func NewPipeline(extractor Extractor, transcoder Transcoder, tagger Tagger, planner *PlacementPlanner, mounts *MountGuard, bridge *ProgressBridge, cancels *CancelSet) *Pipeline {
	return &Pipeline{
		extractor:  extractor,
		transcoder: transcoder,
		tagger:     tagger,
		planner:    planner,
		mounts:     mounts,
		bridge:     bridge,
		cancels:    cancels,
	}
}

// Execute runs the item through extraction, placement, fetch, renaming,
// tagging and optional transcoding. It returns the final file path. Errors
// carry a marker from the taxonomy in errors.go; a cancelled item always
// surfaces ErrCancelled regardless of which stage noticed.
func (p *Pipeline) Execute(ctx context.Context, item *types.QueueItem) (string, error) {
	cancelled := func() bool { return p.cancels.Contains(item.ID) }

	if cancelled() {
		return "", Wrap(ErrCancelled, "before extraction", nil)
	}

	meta, err := p.extractor.ExtractMetadata(ctx, item.URL)
	if err != nil {
		// Fatal for the item: without metadata an audio-to-library item
		// would land in the wrong place untagged. Retry is cheap.
		return "", err
	}

	if cancelled() {
		return "", Wrap(ErrCancelled, "before placement", nil)
	}

	plan := p.planner.Plan(item, meta)
	if err := p.mounts.EnsureDir(plan.Dir); err != nil {
		return "", err
	}

	if cancelled() {
		return "", Wrap(ErrCancelled, "before fetch", nil)
	}

	path, err := p.fetch(ctx, item, plan, cancelled)
	if err != nil {
		return "", err
	}

	path, err = p.finalizePlacement(item, plan, path)
	if err != nil {
		return "", err
	}

	if item.IsAudioOnly && plan.Artist != "" {
		p.tagAudio(ctx, path, plan)
	}

	if !item.IsAudioOnly && item.ConvertVideo {
		path, err = p.convertVideo(ctx, item, path, cancelled)
		if err != nil {
			return "", err
		}
	}

	if cancelled() {
		return "", Wrap(ErrCancelled, "after processing", nil)
	}
	return path, nil
}

func (p *Pipeline) fetch(ctx context.Context, item *types.QueueItem, plan PlacementPlan, cancelled func() bool) (string, error) {
	opts := DownloadOptions{
		URL:            item.URL,
		FormatID:       item.FormatID,
		IsAudioOnly:    item.IsAudioOnly,
		OutputDir:      plan.Dir,
		OutputTemplate: plan.Template,
	}
	if item.AudioQuality != nil {
		opts.AudioQuality = *item.AudioQuality
	}
	if item.AudioCodec != nil {
		opts.AudioCodec = *item.AudioCodec
	}

	hook := func(ev ProgressEvent) {
		update := ProgressUpdate{ItemID: item.ID}
		if ev.Status == "processing" {
			update.Status = types.StatusProcessing
			update.Progress = fetchProgressCeiling
		} else {
			update.Status = types.StatusDownloading
			update.Progress = ev.Progress * fetchProgressCeiling / 100.0
			if ev.Speed != "" {
				speed := ev.Speed
				update.Speed = &speed
			}
			if ev.ETA != "" {
				eta := ev.ETA
				update.ETA = &eta
			}
		}
		p.bridge.Push(update)
	}

	var path string
	err := p.mounts.WithRetry(func() error {
		var fetchErr error
		path, fetchErr = p.extractor.Download(ctx, opts, hook, cancelled)
		return fetchErr
	}, plan.Dir, 3)
	return path, err
}

// finalizePlacement renames library tracks to their canonical numbered name
// and relaxes permissions so the media server's user can read them.
func (p *Pipeline) finalizePlacement(item *types.QueueItem, plan PlacementPlan, path string) (string, error) {
	if plan.InLibrary {
		target := filepath.Join(plan.Dir, plan.LibraryFilename(filepath.Ext(path)))
		if path != target {
			if _, err := os.Stat(target); err == nil {
				log.Printf("Library target already exists, keeping %s", filepath.Base(path))
			} else if err := os.Rename(path, target); err != nil {
				log.Printf("Could not rename %s into library form: %v", filepath.Base(path), err)
			} else {
				path = target
			}
		}
	}

	// Best effort; the library may be served by another uid.
	_ = os.Chmod(path, 0o664)
	_ = os.Chmod(filepath.Dir(path), 0o775)
	return path, nil
}

// tagAudio writes artist/album/title tags. Tagging failures never fail the
// item, the file is already complete and playable.
func (p *Pipeline) tagAudio(ctx context.Context, path string, plan PlacementPlan) {
	album := plan.Album
	if album == "" {
		album = "Singles"
	}
	err := p.tagger.Tag(ctx, path, TagMetadata{
		Title:       plan.Title,
		Artist:      plan.Artist,
		Album:       album,
		AlbumArtist: plan.Artist,
	})
	if err != nil {
		log.Printf("Tagging failed for %s: %v", filepath.Base(path), err)
		return
	}
	// The tag rewrite goes through a temp file, so permissions need resetting.
	_ = os.Chmod(path, 0o664)
}

func (p *Pipeline) convertVideo(ctx context.Context, item *types.QueueItem, path string, cancelled func() bool) (string, error) {
	// Already-conformant files skip the encode entirely.
	if strings.EqualFold(filepath.Ext(path), ".mp4") {
		if err := p.transcoder.ProbePlayable(ctx, path); err == nil {
			return path, nil
		}
	}

	CleanupTempArtifacts(filepath.Dir(path))

	onProgress := func(pct float64) {
		span := transcodeProgressCeiling - transcodeProgressFloor
		p.bridge.Push(ProgressUpdate{
			ItemID:   item.ID,
			Status:   types.StatusProcessing,
			Progress: transcodeProgressFloor + pct*span/100.0,
		})
	}

	converted, err := p.transcoder.Convert(ctx, path, onProgress, cancelled)
	if err != nil {
		if IsCancelled(err) {
			return "", err
		}
		// Best-effort policy: the original download is still a valid
		// deliverable when conversion fails.
		log.Printf("Transcode failed for %s, keeping original container: %v", filepath.Base(path), err)
		return path, nil
	}
	return converted, nil
}
