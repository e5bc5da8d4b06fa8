package faceswap

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// blendFace scales the selfie face region onto the base face region and
// mixes it in through an elliptical mask whose outer band fades linearly.
// The face is shifted toward the mean colour of the region it replaces.
func blendFace(base, selfie image.Image, src, dst image.Rectangle, feather float64) *image.NRGBA {
	out := image.NewNRGBA(base.Bounds())
	draw.Draw(out, out.Bounds(), base, base.Bounds().Min, draw.Src)

	src = src.Intersect(selfie.Bounds())
	dst = dst.Intersect(out.Bounds())
	if src.Empty() || dst.Empty() {
		return out
	}

	w, h := dst.Dx(), dst.Dy()
	face := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(face, face.Bounds(), selfie, src, draw.Src, nil)

	mask := make([]float64, w*h)
	cx, cy := float64(w)/2, float64(h)/2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := (float64(x) + 0.5 - cx) / cx
			dy := (float64(y) + 0.5 - cy) / cy
			mask[y*w+x] = maskAlpha(math.Sqrt(dx*dx+dy*dy), feather)
		}
	}

	shift := meanShift(out, face, dst, mask)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := mask[y*w+x]
			if a == 0 {
				continue
			}
			px, py := dst.Min.X+x, dst.Min.Y+y
			bc := out.NRGBAAt(px, py)
			fc := face.NRGBAAt(x, y)
			out.SetNRGBA(px, py, color.NRGBA{
				R: mix(bc.R, float64(fc.R)+shift[0], a),
				G: mix(bc.G, float64(fc.G)+shift[1], a),
				B: mix(bc.B, float64(fc.B)+shift[2], a),
				A: bc.A,
			})
		}
	}

	return out
}

// maskAlpha is 1 inside radius 1-feather, 0 outside radius 1, linear between.
func maskAlpha(r, feather float64) float64 {
	if r >= 1 {
		return 0
	}
	if feather <= 0 {
		return 1
	}
	inner := 1 - feather
	if r <= inner {
		return 1
	}
	return (1 - r) / feather
}

// meanShift returns base mean minus face mean per channel over the masked area
func meanShift(base, face *image.NRGBA, dst image.Rectangle, mask []float64) [3]float64 {
	var bs, fs [3]float64
	var total float64
	w := dst.Dx()
	for i, a := range mask {
		if a == 0 {
			continue
		}
		x, y := i%w, i/w
		bc := base.NRGBAAt(dst.Min.X+x, dst.Min.Y+y)
		fc := face.NRGBAAt(x, y)
		bs[0] += a * float64(bc.R)
		bs[1] += a * float64(bc.G)
		bs[2] += a * float64(bc.B)
		fs[0] += a * float64(fc.R)
		fs[1] += a * float64(fc.G)
		fs[2] += a * float64(fc.B)
		total += a
	}
	if total == 0 {
		return [3]float64{}
	}
	return [3]float64{
		(bs[0] - fs[0]) / total,
		(bs[1] - fs[1]) / total,
		(bs[2] - fs[2]) / total,
	}
}

func mix(base uint8, face, alpha float64) uint8 {
	v := float64(base)*(1-alpha) + face*alpha
	return uint8(math.Round(math.Max(0, math.Min(255, v))))
}
