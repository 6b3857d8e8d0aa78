package uploads

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"net/http"

	"github.com/rotisserie/eris"
	"golang.org/x/image/draw"
)

// DefaultMaxDimension is the default maximum width or height for stored images.
const DefaultMaxDimension = 1024

// DefaultMaxPixels bounds width*height of an accepted upload. Decoding
// allocates the full raster before downscaling, so this caps memory per request.
const DefaultMaxPixels = 24_000_000

// JPEGQuality is the compression quality for JPEG output.
const JPEGQuality = 85

// ErrUnsupportedFormat is returned for uploads that are not JPEG or PNG.
var ErrUnsupportedFormat = eris.New("unsupported image format")

// ErrTooManyPixels is returned for uploads whose header declares more than
// the allowed number of pixels.
var ErrTooManyPixels = eris.New("image has too many pixels")

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// Image is a normalized upload ready to be written to disk.
type Image struct {
	Data   []byte
	Width  int
	Height int
}

// Normalize sniffs the format from the bytes, rejects images declaring more
// than maxPixels, downscales anything larger than maxDim, flattens
// transparency onto white and re-encodes as JPEG.
func Normalize(data []byte, maxDim, maxPixels int) (*Image, error) {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	detected := http.DetectContentType(data)
	if !allowedMIME[detected] {
		return nil, eris.Wrapf(ErrUnsupportedFormat, "uploads: detected %s", detected)
	}

	// Only the header is read here.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "uploads: decode image header")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, eris.Wrapf(ErrTooManyPixels, "uploads: %dx%d", cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "uploads: decode image")
	}

	img = fit(img, maxDim)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, eris.Wrap(err, "uploads: encode jpeg")
	}

	b := img.Bounds()
	return &Image{Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// fit scales img down so neither side exceeds maxDim, keeping the aspect
// ratio, and composites it over an opaque white canvas.
func fit(img image.Image, maxDim int) image.Image {
	src := img.Bounds()
	w, h := src.Dx(), src.Dy()

	newW, newH := w, h
	if w > maxDim || h > maxDim {
		if w > h {
			newW = maxDim
			newH = max(1, int(float64(h)*float64(maxDim)/float64(w)))
		} else {
			newH = maxDim
			newW = max(1, int(float64(w)*float64(maxDim)/float64(h)))
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if newW == w && newH == h {
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)
	return dst
}
