package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs
	ErrInvalidURL = errors.New("invalid image URL")

	// ErrDownloadFailed is returned when a fetch errors, times out, or answers non-2xx
	ErrDownloadFailed = errors.New("failed to download image")

	// ErrNotAnImage is returned when the declared content type is not image/*
	ErrNotAnImage = errors.New("URL does not point to an image")

	// ErrDispatchFailed is returned when the job was stored but could not be handed to a worker
	ErrDispatchFailed = errors.New("failed to schedule job")
)

// ImageError names the URL a submission failed on
type ImageError struct {
	URL string
	Err error
}

func (e *ImageError) Error() string {
	switch {
	case errors.Is(e.Err, ErrDownloadFailed):
		return fmt.Sprintf("failed to download image from %s", e.URL)
	case errors.Is(e.Err, ErrNotAnImage):
		return fmt.Sprintf("URL does not point to an image: %s", e.URL)
	case errors.Is(e.Err, ErrInvalidURL):
		return fmt.Sprintf("invalid image URL: %s", e.URL)
	default:
		return fmt.Sprintf("%s: %v", e.URL, e.Err)
	}
}

func (e *ImageError) Unwrap() error {
	return e.Err
}
