package faceswap

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	_ "golang.org/x/image/webp"
)

// Swapper is the default Composer
type Swapper struct {
	detector Detector
	feather  float64
	logger   *slog.Logger
}

// NewSwapper creates a Swapper. feather is the fraction of the face ellipse
// radius over which the pasted face fades out; values outside (0,1] fall back to 0.25.
func NewSwapper(detector Detector, feather float64, logger *slog.Logger) *Swapper {
	if feather <= 0 || feather > 1 {
		feather = 0.25
	}
	return &Swapper{
		detector: detector,
		feather:  feather,
		logger:   logger,
	}
}

// Compose writes a PNG to outputPath with the selfie face blended over the base face
func (s *Swapper) Compose(ctx context.Context, basePath, selfiePath, outputPath string) error {
	base, err := decodeImage(basePath)
	if err != nil {
		s.logger.Warn("Failed to decode base image",
			slog.String("path", basePath),
			slog.String("error", err.Error()),
		)
		return ErrUnreadableInput
	}

	selfie, err := decodeImage(selfiePath)
	if err != nil {
		s.logger.Warn("Failed to decode selfie image",
			slog.String("path", selfiePath),
			slog.String("error", err.Error()),
		)
		return ErrUnreadableInput
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	baseBox, ok := s.detector.Detect(base)
	if !ok {
		return ErrNoFaceInBase
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	selfieBox, ok := s.detector.Detect(selfie)
	if !ok {
		return ErrNoFaceInSelfie
	}

	s.logger.Debug("Faces detected",
		slog.String("base_box", baseBox.String()),
		slog.String("selfie_box", selfieBox.String()),
	)

	if err := ctx.Err(); err != nil {
		return err
	}

	out := blendFace(base, selfie, selfieBox, baseBox, s.feather)

	return writePNG(outputPath, out)
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// writePNG encodes to a temp file in the same directory and renames it into
// place, so the static handler never serves a partial image.
func writePNG(path string, img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".faceswap-*.png")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode output image: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set output image permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write output image: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move output image into place: %w", err)
	}
	return nil
}
