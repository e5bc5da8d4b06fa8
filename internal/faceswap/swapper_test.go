package faceswap

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sizeDetector reports a face only for images of a known width
type sizeDetector map[int]image.Rectangle

func (d sizeDetector) Detect(img image.Image) (image.Rectangle, bool) {
	r, ok := d[img.Bounds().Dx()]
	return r, ok
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writeTestPNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSwapper_Compose(t *testing.T) {
	dir := t.TempDir()

	// base: dark image with a mid-grey "face" square
	base := solid(100, 80, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
	baseFace := image.Rect(30, 20, 70, 60)
	for y := baseFace.Min.Y; y < baseFace.Max.Y; y++ {
		for x := baseFace.Min.X; x < baseFace.Max.X; x++ {
			base.SetNRGBA(x, y, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
		}
	}

	// selfie: face with a bright left half and a dark right half
	selfie := solid(60, 60, color.NRGBA{R: 0, G: 0, B: 0, A: 255})
	selfieFace := image.Rect(10, 10, 50, 50)
	for y := selfieFace.Min.Y; y < selfieFace.Max.Y; y++ {
		for x := selfieFace.Min.X; x < selfieFace.Max.X; x++ {
			v := uint8(40)
			if x < 30 {
				v = 220
			}
			selfie.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}

	basePath := writeTestPNG(t, dir, "base.png", base)
	selfiePath := writeTestPNG(t, dir, "selfie.png", selfie)
	outPath := filepath.Join(dir, "job_abc.png")

	swapper := NewSwapper(sizeDetector{100: baseFace, 60: selfieFace}, 0.3, testLogger())
	require.NoError(t, swapper.Compose(context.Background(), basePath, selfiePath, outPath))

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	out, err := png.Decode(f)
	require.NoError(t, err)

	assert.Equal(t, base.Bounds(), out.Bounds())

	// outside the face box the base is untouched
	r, _, _, _ := out.At(5, 5).RGBA()
	assert.Equal(t, uint32(10*0x101), r)

	// inside, the selfie's left/right contrast shows through
	left, _, _, _ := out.At(40, 40).RGBA()
	right, _, _, _ := out.At(60, 40).RGBA()
	assert.Greater(t, left, right)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".faceswap-", "temp file left behind")
	}
}

func TestSwapper_ComposeFailures(t *testing.T) {
	dir := t.TempDir()
	basePath := writeTestPNG(t, dir, "base.png", solid(100, 80, color.NRGBA{A: 255}))
	selfiePath := writeTestPNG(t, dir, "selfie.png", solid(60, 60, color.NRGBA{A: 255}))
	garbage := filepath.Join(dir, "garbage.jpeg")
	require.NoError(t, os.WriteFile(garbage, []byte("<html>not an image</html>"), 0o644))

	faceBox := image.Rect(10, 10, 40, 40)

	tests := []struct {
		name     string
		detector Detector
		base     string
		selfie   string
		wantErr  error
	}{
		{
			name:     "no face in base",
			detector: sizeDetector{60: faceBox},
			base:     basePath,
			selfie:   selfiePath,
			wantErr:  ErrNoFaceInBase,
		},
		{
			name:     "no face in selfie",
			detector: sizeDetector{100: faceBox},
			base:     basePath,
			selfie:   selfiePath,
			wantErr:  ErrNoFaceInSelfie,
		},
		{
			name:     "undecodable base",
			detector: sizeDetector{100: faceBox, 60: faceBox},
			base:     garbage,
			selfie:   selfiePath,
			wantErr:  ErrUnreadableInput,
		},
		{
			name:     "missing selfie",
			detector: sizeDetector{100: faceBox, 60: faceBox},
			base:     basePath,
			selfie:   filepath.Join(dir, "nope.png"),
			wantErr:  ErrUnreadableInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(dir, "out.png")
			err := NewSwapper(tt.detector, 0, testLogger()).Compose(context.Background(), tt.base, tt.selfie, out)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantErr.Error(), err.Error())
			assert.NoFileExists(t, out)
		})
	}
}

func TestSwapper_ComposeCanceled(t *testing.T) {
	dir := t.TempDir()
	basePath := writeTestPNG(t, dir, "base.png", solid(100, 80, color.NRGBA{A: 255}))
	selfiePath := writeTestPNG(t, dir, "selfie.png", solid(60, 60, color.NRGBA{A: 255}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	box := image.Rect(10, 10, 40, 40)
	err := NewSwapper(sizeDetector{100: box, 60: box}, 0, testLogger()).
		Compose(ctx, basePath, selfiePath, filepath.Join(dir, "out.png"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestMaskAlpha(t *testing.T) {
	assert.Equal(t, 1.0, maskAlpha(0, 0.25))
	assert.Equal(t, 1.0, maskAlpha(0.75, 0.25))
	assert.InDelta(t, 0.5, maskAlpha(0.875, 0.25), 1e-9)
	assert.Equal(t, 0.0, maskAlpha(1, 0.25))
	assert.Equal(t, 1.0, maskAlpha(0.99, 0))
}

func TestLoadPigoDetector_MissingFile(t *testing.T) {
	_, err := LoadPigoDetector(filepath.Join(t.TempDir(), "facefinder"), DefaultDetectorOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read cascade file")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), CascadeSource)
}

func TestComposerFunc(t *testing.T) {
	var called bool
	var c Composer = ComposerFunc(func(ctx context.Context, b, s, o string) error {
		called = b == "b" && s == "s" && o == "o"
		return nil
	})
	require.NoError(t, c.Compose(context.Background(), "b", "s", "o"))
	assert.True(t, called)
}
