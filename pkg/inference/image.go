package inference

import (
	"encoding/base64"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/hatseye/hatseye/pkg/frame"
)

// Downscale returns img scaled so its longest side is at most maxDim,
// preserving aspect ratio. Smaller images are returned unchanged.
func Downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}
	if w >= h {
		h = h * maxDim / w
		w = maxDim
	} else {
		w = w * maxDim / h
		h = maxDim
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// EncodeImageBase64 downscales img and encodes it as base64 JPEG.
func EncodeImageBase64(img image.Image, maxDim, quality int) (string, error) {
	data, err := frame.EncodeJPEG(Downscale(img, maxDim), quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
