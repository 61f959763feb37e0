package service

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// BigImageThreshold is the longest edge above which uploads get a "-scaled" primary
const BigImageThreshold = 2560

// ImageSize is a named rendition generated for every image upload
type ImageSize struct {
	Label  string `mapstructure:"label"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
	Crop   bool   `mapstructure:"crop"`
}

var DefaultImageSizes = []ImageSize{
	{Label: "thumbnail", Width: 150, Height: 150, Crop: true},
	{Label: "medium", Width: 300, Height: 300},
	{Label: "large", Width: 1024, Height: 1024},
}

// fitSize scales w x h down to fit the box while keeping the aspect ratio
func fitSize(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}

	rw := float64(maxW) / float64(w)
	rh := float64(maxH) / float64(h)
	r := min(rw, rh)

	return max(1, int(float64(w)*r+0.5)), max(1, int(float64(h)*r+0.5))
}

func scale(src image.Image, sr image.Rectangle, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, sr, draw.Src, nil)
	return dst
}

// makeVariant renders one size. ok is false when the source is too small for it.
func makeVariant(src image.Image, s ImageSize) (img image.Image, ok bool) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	if w <= s.Width && h <= s.Height {
		return nil, false
	}

	if !s.Crop {
		nw, nh := fitSize(w, h, s.Width, s.Height)
		return scale(src, b, nw, nh), true
	}

	cw, ch := min(s.Width, w), min(s.Height, h)

	// centre crop with the target aspect ratio
	sw, sh := w, int(float64(w)*float64(ch)/float64(cw))
	if sh > h {
		sw, sh = int(float64(h)*float64(cw)/float64(ch)), h
	}

	x0 := b.Min.X + (w-sw)/2
	y0 := b.Min.Y + (h-sh)/2

	return scale(src, image.Rect(x0, y0, x0+sw, y0+sh), cw, ch), true
}

func encodeImage(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer

	var err error
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 82})
	case "png":
		err = png.Encode(&buf, img)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	default:
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s image, %w", format, err)
	}

	return buf.Bytes(), nil
}
