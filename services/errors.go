package services

import (
	"errors"
	"fmt"
)

// Sentinel markers for pipeline failure classification. Every error that
// escapes a pipeline stage is tagged with exactly one of these so the queue
// manager can map it to a terminal status without inspecting message text.
var (
	ErrValidation       = errors.New("validation error")
	ErrCancelled        = errors.New("download cancelled")
	ErrMountUnavailable = errors.New("mount unavailable")
	ErrExtraction       = errors.New("extraction error")
	ErrFetch            = errors.New("fetch error")
	ErrTranscode        = errors.New("transcode error")
	ErrTagging          = errors.New("tagging error")
)

// Wrap tags err with the given marker and a human-readable detail string.
func Wrap(marker error, detail string, err error) error {
	if marker == nil {
		marker = ErrFetch
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsCancelled reports whether err represents a user-initiated cancellation
// rather than a genuine failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
