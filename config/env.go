package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

var Env = map[string]string{
	"DOWNLOAD_DIR": os.Getenv("DOWNLOAD_DIR"),
	"MUSIC_DIR":    os.Getenv("MUSIC_DIR"),
	"MOVIES_DIR":   os.Getenv("MOVIES_DIR"),
}

// GetDownloadDir returns the flat download directory. The user settings file
// wins over the environment.
func GetDownloadDir() string {
	if path := loadUserSettings().DownloadDir; path != "" {
		return path
	}
	if path := Env["DOWNLOAD_DIR"]; path != "" {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if can't get home dir
		return filepath.Join(".", "downloads")
	}
	return filepath.Join(homeDir, "Downloads", "Downpour")
}

// GetMusicDir returns the root of the organized music library.
func GetMusicDir() string {
	if path := loadUserSettings().MusicDir; path != "" {
		return path
	}
	if path := Env["MUSIC_DIR"]; path != "" {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "music")
	}
	return filepath.Join(homeDir, "Music")
}

// GetMoviesDir returns the root of the movie library.
func GetMoviesDir() string {
	if path := loadUserSettings().MoviesDir; path != "" {
		return path
	}
	if path := Env["MOVIES_DIR"]; path != "" {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "movies")
	}
	return filepath.Join(homeDir, "Movies")
}

// GetCORSOrigins returns the browser origins allowed by the API.
func GetCORSOrigins() []string {
	raw := os.Getenv("CORS_ORIGINS")
	if raw == "" {
		raw = "http://localhost:3000,http://localhost:5173,http://localhost:5174" // React dev defaults
	}
	return strings.Split(raw, ",")
}

// GetYTDLPPath returns the yt-dlp binary path.
func GetYTDLPPath() string {
	if path := os.Getenv("YTDLP_PATH"); path != "" {
		return path
	}
	return "yt-dlp"
}

// GetFFmpegPath returns the ffmpeg binary path.
func GetFFmpegPath() string {
	if path := os.Getenv("FFMPEG_PATH"); path != "" {
		return path
	}
	return "ffmpeg"
}

// GetFFprobePath returns the ffprobe binary path.
func GetFFprobePath() string {
	if path := os.Getenv("FFPROBE_PATH"); path != "" {
		return path
	}
	return "ffprobe"
}

// UserSettings represents the user's personal settings
type UserSettings struct {
	DownloadDir string `json:"download_dir"`
	MusicDir    string `json:"music_dir"`
	MoviesDir   string `json:"movies_dir"`
}

// SettingsFilePath returns the path to the settings file
func SettingsFilePath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".downpour-settings.json")
}

// loadUserSettings reads the settings file, zero-valued when missing or
// unreadable.
func loadUserSettings() UserSettings {
	data, err := os.ReadFile(SettingsFilePath())
	if err != nil {
		return UserSettings{}
	}

	var settings UserSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return UserSettings{}
	}
	return settings
}
