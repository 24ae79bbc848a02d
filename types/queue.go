package types

import "time"

// DownloadStatus represents the lifecycle state of a queue item
type DownloadStatus string

const (
	StatusQueued      DownloadStatus = "queued"
	StatusDownloading DownloadStatus = "downloading"
	StatusProcessing  DownloadStatus = "processing"
	StatusCompleted   DownloadStatus = "completed"
	StatusFailed      DownloadStatus = "failed"
	StatusCancelled   DownloadStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state
func (s DownloadStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// DownloadRequest is the payload for queueing a new download
type DownloadRequest struct {
	URL           string  `json:"url" binding:"required"`
	VideoID       string  `json:"video_id"`
	Title         string  `json:"title" binding:"required"`
	Thumbnail     *string `json:"thumbnail,omitempty"`
	FormatID      string  `json:"format_id"`
	FormatLabel   string  `json:"format_label"`
	IsAudioOnly   bool    `json:"is_audio_only"`
	AudioQuality  *string `json:"audio_quality,omitempty"` // e.g. "320", "192", "128"
	AudioCodec    *string `json:"audio_codec,omitempty"`   // e.g. "mp3", "m4a"
	SendToLibrary bool    `json:"send_to_library"`
	ConvertVideo  bool    `json:"convert_video"`
}

// QueueItem represents one requested download and its lifecycle state
type QueueItem struct {
	ID            string         `json:"id"`
	VideoID       string         `json:"video_id"`
	URL           string         `json:"url"`
	Title         string         `json:"title"`
	Thumbnail     *string        `json:"thumbnail,omitempty"`
	FormatID      string         `json:"format_id"`
	FormatLabel   string         `json:"format_label"`
	IsAudioOnly   bool           `json:"is_audio_only"`
	AudioQuality  *string        `json:"audio_quality,omitempty"`
	AudioCodec    *string        `json:"audio_codec,omitempty"`
	SendToLibrary bool           `json:"send_to_library"`
	ConvertVideo  bool           `json:"convert_video"`
	Status        DownloadStatus `json:"status"`
	Progress      float64        `json:"progress"`
	Speed         *string        `json:"speed,omitempty"`
	ETA           *string        `json:"eta,omitempty"`
	Error         *string        `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	FilePath      *string        `json:"file_path,omitempty"`
}

// Clone returns a copy of the item safe to hand outside the queue lock
func (q *QueueItem) Clone() *QueueItem {
	c := *q
	return &c
}

// QueueSnapshot is the full queue state returned by list operations
type QueueSnapshot struct {
	Items           []*QueueItem `json:"items"`
	ActiveDownloads int          `json:"active_downloads"`
	CompletedCount  int          `json:"completed_count"`
	FailedCount     int          `json:"failed_count"`
}
