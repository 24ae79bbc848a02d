package types

// FormatType distinguishes video and audio format descriptors
type FormatType string

const (
	FormatVideo FormatType = "video"
	FormatAudio FormatType = "audio"
)

// MediaFormat describes one downloadable format reported by the extractor
type MediaFormat struct {
	FormatID   string     `json:"format_id"`
	Ext        string     `json:"ext"`
	Resolution string     `json:"resolution,omitempty"`
	Filesize   *int64     `json:"filesize,omitempty"`
	FormatNote string     `json:"format_note,omitempty"`
	FPS        *float64   `json:"fps,omitempty"`
	VCodec     string     `json:"vcodec,omitempty"`
	ACodec     string     `json:"acodec,omitempty"`
	FormatType FormatType `json:"format_type"`
}

// PlaylistEntry is one entry of an analyzed playlist
type PlaylistEntry struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Thumbnail *string `json:"thumbnail,omitempty"`
	Duration  *int64  `json:"duration,omitempty"`
	Index     int     `json:"index"`
}

// AnalyzeRequest is the payload for URL analysis
type AnalyzeRequest struct {
	URL string `json:"url" binding:"required"`
}

// AnalyzeResponse is the result of analyzing a URL without downloading
type AnalyzeResponse struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Thumbnail     *string         `json:"thumbnail,omitempty"`
	Duration      *int64          `json:"duration,omitempty"`
	Uploader      string          `json:"uploader,omitempty"`
	IsPlaylist    bool            `json:"is_playlist"`
	PlaylistCount int             `json:"playlist_count,omitempty"`
	PlaylistTitle string          `json:"playlist_title,omitempty"`
	PlaylistItems []PlaylistEntry `json:"playlist_items,omitempty"`
	Formats       []MediaFormat   `json:"formats"`
}

// MediaMetadata is the extracted (no-download) metadata used by the pipeline
type MediaMetadata struct {
	ID          string
	Title       string
	Uploader    string
	Channel     string
	Description string
	Album       string
	Playlist    string
	Duration    float64
}

// LibraryFile represents a discovered media file in the download or library tree
type LibraryFile struct {
	Filename string         `json:"filename"`
	Path     string         `json:"path"`
	Size     int64          `json:"size"`
	Format   string         `json:"format"`
	Metadata *AudioMetadata `json:"metadata,omitempty"`
}

// AudioMetadata represents container-level tags read from an audio file
type AudioMetadata struct {
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	TrackNumber int    `json:"track_number,omitempty"`
}
