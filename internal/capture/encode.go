package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	"golang.org/x/image/draw"
)

const dataURLPrefix = "data:image/jpeg;base64,"

// render crops frame around the zoom centre, scales the window to
// width×height and encodes it as JPEG.
func render(frame image.Image, srcW, srcH int, zoom float64, width, height, quality int) ([]byte, error) {
	if frame == nil {
		return nil, errors.New("no frame")
	}
	if srcW <= 0 || srcH <= 0 {
		b := frame.Bounds()
		srcW, srcH = b.Dx(), b.Dy()
	}
	dst, err := scaleCrop(frame, Crop(srcW, srcH, zoom), width, height)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// scaleCrop resamples the fractional window r of frame onto a width×height
// image. Sampling is clipped to the pixels r touches.
func scaleCrop(frame image.Image, r Rect, width, height int) (*image.RGBA, error) {
	origin := frame.Bounds().Min
	sr := r.Bounds(origin).Intersect(frame.Bounds())
	if sr.Empty() {
		return nil, fmt.Errorf("crop window outside %v", frame.Bounds())
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Transform(dst, r.Transform(origin, width, height), frame, sr, draw.Src, nil)
	return dst, nil
}

// DataURL wraps JPEG bytes the way plain storage holds them.
func DataURL(jpegBytes []byte) string {
	return dataURLPrefix + base64.StdEncoding.EncodeToString(jpegBytes)
}

// DecodeDataURL reverses DataURL. A bare base64 string is accepted too.
func DecodeDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, errors.New("malformed data url")
		}
		if !strings.Contains(s[:i], ";base64") {
			return nil, errors.New("data url is not base64")
		}
		s = s[i+1:]
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return b, nil
}
