// Package faceswap transplants the face found in a selfie onto the face found
// in a base image.
package faceswap

import (
	"context"
	"errors"
)

// Failure reasons. Their text is recorded verbatim on failed jobs.
var (
	ErrNoFaceInBase    = errors.New("no_face_detected_in_base")
	ErrNoFaceInSelfie  = errors.New("no_face_detected_in_selfie")
	ErrUnreadableInput = errors.New("unreadable_input")
)

// Composer produces outputPath from the two input images or fails with a
// named reason. Implementations need not be deterministic.
type Composer interface {
	Compose(ctx context.Context, basePath, selfiePath, outputPath string) error
}

// ComposerFunc adapts a function to the Composer interface
type ComposerFunc func(ctx context.Context, basePath, selfiePath, outputPath string) error

func (f ComposerFunc) Compose(ctx context.Context, basePath, selfiePath, outputPath string) error {
	return f(ctx, basePath, selfiePath, outputPath)
}
