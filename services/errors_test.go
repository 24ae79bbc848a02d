package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapTagsWithMarker(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(ErrFetch, "HTTP request", cause)

	assert.ErrorIs(t, err, ErrFetch)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "HTTP request")

	// Without a cause the marker and detail survive alone
	err = Wrap(ErrMountUnavailable, "nfs down", nil)
	assert.ErrorIs(t, err, ErrMountUnavailable)
	assert.NotErrorIs(t, err, ErrFetch)
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(Wrap(ErrCancelled, "user abort", nil)))
	assert.False(t, IsCancelled(Wrap(ErrFetch, "boom", nil)))
	assert.False(t, IsCancelled(nil))
}
