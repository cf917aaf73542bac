package images

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Scaled returns the dimensions w×h shrunk uniformly so that their product
// does not exceed side². Dimensions already within the target are unchanged.
func Scaled(w, h, side int) (int, int) {
	actual := float64(w) * float64(h)
	target := float64(side) * float64(side)
	if actual <= target || actual == 0 {
		return w, h
	}
	f := math.Sqrt(target / actual)
	nw, nh := max(1, int(float64(w)*f)), max(1, int(float64(h)*f))
	// a side floored to one pixel leaves the other to carry the whole area
	if area := max(1, side*side); nw*nh > area {
		if nw == 1 {
			nh = area
		} else {
			nw = area
		}
	}
	return nw, nh
}

// Downscale decodes data, shrinks it to fit side² pixels and re-encodes it
// as PNG. It reports false when data is not a decodable image.
func Downscale(data []byte, side int) ([]byte, bool) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	b := src.Bounds()
	w, h := Scaled(b.Dx(), b.Dy(), side)

	var out image.Image = src
	if w != b.Dx() || h != b.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

// DataURL wraps PNG bytes for an image_url content part.
func DataURL(pngData []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
}
