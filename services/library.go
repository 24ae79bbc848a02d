package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dhowden/tag"

	"downpour/types"
)

var mediaExtensions = map[string]string{
	".mp3":  "mp3",
	".m4a":  "m4a",
	".flac": "flac",
	".opus": "opus",
	".ogg":  "ogg",
	".mp4":  "mp4",
	".mkv":  "mkv",
	".webm": "webm",
}

// LibraryService interface defines methods for browsing finished media files
type LibraryService interface {
	ScanMediaFiles(rootPath string) ([]types.LibraryFile, error)
	ExtractAudioMetadata(filePath string) *types.AudioMetadata
	ValidateFilePath(path string) error
	GetContentType(filePath string) string
}

// libraryService implements the LibraryService interface
type libraryService struct{}

// NewLibraryService creates a new library service
func NewLibraryService() LibraryService {
	return &libraryService{}
}

// ScanMediaFiles recursively scans a directory for media files
func (ls *libraryService) ScanMediaFiles(rootPath string) ([]types.LibraryFile, error) {
	var files []types.LibraryFile

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Printf("Error accessing path %s: %v", path, err)
			return nil // Continue walking, don't fail entire scan
		}
		if info.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		format, ok := mediaExtensions[ext]
		if !ok {
			return nil
		}
		// Skip in-flight transcode and tagging artifacts.
		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}

		relativePath, err := filepath.Rel(rootPath, path)
		if err != nil {
			relativePath = path
		}

		file := types.LibraryFile{
			Filename: info.Name(),
			Path:     relativePath,
			Size:     info.Size(),
			Format:   format,
		}
		if isAudioFormat(format) {
			file.Metadata = ls.ExtractAudioMetadata(path)
		}
		files = append(files, file)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func isAudioFormat(format string) bool {
	switch format {
	case "mp3", "m4a", "flac", "opus", "ogg":
		return true
	}
	return false
}

// GetContentType returns the appropriate MIME type for a media file
func (ls *libraryService) GetContentType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	case ".opus", ".ogg":
		return "audio/ogg"
	case ".mp4":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}

// ExtractAudioMetadata extracts metadata from an audio file with fallback logic
func (ls *libraryService) ExtractAudioMetadata(filePath string) *types.AudioMetadata {
	file, err := os.Open(filePath)
	if err != nil {
		log.Printf("Warning: Could not open audio file %s: %v", filePath, err)
		return ls.extractMetadataFromPath(filePath)
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		log.Printf("Warning: Could not parse audio metadata from %s: %v", filePath, err)
		return ls.extractMetadataFromPath(filePath)
	}

	metadata := &types.AudioMetadata{
		Title:  meta.Title(),
		Artist: meta.Artist(),
		Album:  meta.Album(),
	}
	track, _ := meta.Track()
	metadata.TrackNumber = track

	// Use filename fallback for missing fields
	if metadata.Title == "" || metadata.Artist == "" || metadata.Album == "" {
		fallback := ls.extractMetadataFromPath(filePath)
		if metadata.Title == "" {
			metadata.Title = fallback.Title
		}
		if metadata.Artist == "" {
			metadata.Artist = fallback.Artist
		}
		if metadata.Album == "" {
			metadata.Album = fallback.Album
		}
		if metadata.TrackNumber == 0 {
			metadata.TrackNumber = fallback.TrackNumber
		}
	}
	return metadata
}

// extractMetadataFromPath extracts metadata from file path as fallback.
// Library layout is Artist/Album/NN - Title.ext.
func (ls *libraryService) extractMetadataFromPath(filePath string) *types.AudioMetadata {
	metadata := &types.AudioMetadata{}

	parts := strings.Split(filepath.ToSlash(filePath), "/")
	filename := filepath.Base(filePath)

	if len(parts) >= 3 {
		metadata.Artist = parts[len(parts)-3]
	}
	if len(parts) >= 2 {
		metadata.Album = parts[len(parts)-2]
	}

	title := strings.TrimSuffix(filename, filepath.Ext(filename))
	re := regexp.MustCompile(`^(\d+)[\.\-\s]+(.+)`)
	if matches := re.FindStringSubmatch(title); len(matches) > 2 {
		title = matches[2]
		if trackNum, err := strconv.Atoi(matches[1]); err == nil {
			metadata.TrackNumber = trackNum
		}
	}
	metadata.Title = title
	return metadata
}

// ValidateFilePath checks for path traversal attempts and other security issues
func (ls *libraryService) ValidateFilePath(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("path traversal not allowed")
	}
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("absolute paths not allowed")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path not allowed")
	}
	return nil
}
