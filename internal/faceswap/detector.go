package faceswap

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"

	pigo "github.com/esimov/pigo/core"
)

// Detector finds the most prominent face in an image
type Detector interface {
	Detect(img image.Image) (image.Rectangle, bool)
}

// DetectorOptions tunes the pigo cascade run
type DetectorOptions struct {
	MinSize      int
	MaxSize      int // 0 means the shorter image side
	ShiftFactor  float64
	ScaleFactor  float64
	IoUThreshold float64
	MinQuality   float32
}

// DefaultDetectorOptions mirrors the values recommended by the pigo authors
func DefaultDetectorOptions() DetectorOptions {
	return DetectorOptions{
		MinSize:      20,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinQuality:   5.0,
	}
}

// PigoDetector detects faces with a pigo pixel-intensity cascade
type PigoDetector struct {
	classifier *pigo.Pigo
	opts       DetectorOptions
}

// CascadeSource is where the pigo "facefinder" cascade can be downloaded
const CascadeSource = "https://github.com/esimov/pigo/raw/master/cascade/facefinder"

// LoadPigoDetector reads a cascade file (e.g. "facefinder") from disk
func LoadPigoDetector(cascadePath string, opts DetectorOptions) (*PigoDetector, error) {
	cascade, err := os.ReadFile(cascadePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read cascade file: %w (download it from %s)", err, CascadeSource)
		}
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade file: %w", err)
	}

	return &PigoDetector{classifier: classifier, opts: opts}, nil
}

// Detect returns the bounding box of the largest face above the quality threshold
func (d *PigoDetector) Detect(img image.Image) (image.Rectangle, bool) {
	bounds := img.Bounds()
	cols, rows := bounds.Dx(), bounds.Dy()

	maxSize := d.opts.MaxSize
	if maxSize <= 0 {
		maxSize = min(cols, rows)
	}

	params := pigo.CascadeParams{
		MinSize:     d.opts.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: d.opts.ShiftFactor,
		ScaleFactor: d.opts.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(img),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.opts.IoUThreshold)

	var best *pigo.Detection
	for i := range dets {
		if dets[i].Q < d.opts.MinQuality {
			continue
		}
		if best == nil || dets[i].Scale > best.Scale {
			best = &dets[i]
		}
	}
	if best == nil {
		return image.Rectangle{}, false
	}

	half := best.Scale / 2
	box := image.Rect(best.Col-half, best.Row-half, best.Col+half, best.Row+half).
		Add(bounds.Min).
		Intersect(bounds)
	if box.Empty() {
		return image.Rectangle{}, false
	}
	return box, true
}
