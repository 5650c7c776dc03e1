// Package imaging parses inline image data URIs and compresses photos so
// they fit inside a single spreadsheet cell.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	_ "image/gif"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

const (
	// MaxDimension caps both output dimensions.
	MaxDimension = 1200
	// PrimaryQuality is the first JPEG quality tried.
	PrimaryQuality = 80
	// FallbackQuality is used once when the primary result is too long.
	FallbackQuality = 60
	// SoftLimit is the data-URI length above which the fallback is used.
	SoftLimit = 45000
)

var (
	ErrMalformedDataURI = errors.New("malformed data uri")
	ErrUnsupportedImage = errors.New("unsupported image format")
)

var allowedMimes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/gif":  true,
	"image/webp": true,
}

// ParseDataURI splits "data:<mime>;base64,<payload>" into its mime type and
// decoded bytes. Only image mime types are accepted.
func ParseDataURI(s string) (string, []byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return "", nil, fmt.Errorf("%w: missing data: prefix", ErrMalformedDataURI)
	}
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return "", nil, fmt.Errorf("%w: missing payload separator", ErrMalformedDataURI)
	}
	header := s[len("data:"):comma]
	if !strings.HasSuffix(header, ";base64") {
		return "", nil, fmt.Errorf("%w: payload is not base64", ErrMalformedDataURI)
	}
	mime := strings.ToLower(strings.TrimSuffix(header, ";base64"))
	if !allowedMimes[mime] {
		return "", nil, fmt.Errorf("%w: mime type %q", ErrMalformedDataURI, mime)
	}
	payload := s[comma+1:]
	if payload == "" {
		return "", nil, fmt.Errorf("%w: empty payload", ErrMalformedDataURI)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedDataURI, err)
	}
	return mime, data, nil
}

// EncodeDataURI is the inverse of ParseDataURI.
func EncodeDataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Decode reads png, jpeg, gif, and webp images.
func Decode(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err == nil {
		return img, nil
	}
	if decoded, webpErr := webp.Decode(bytes.NewReader(raw)); webpErr == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
}

// FitWithin scales (w, h) down so neither side exceeds max. It never scales up.
func FitWithin(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}

// Result is a compressed image ready to be stored in a cell.
type Result struct {
	DataURI string `json:"dataUrl"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Quality int    `json:"quality"`
}

// Length is the number of characters the cell will hold.
func (r Result) Length() int { return len(r.DataURI) }

// Compress downsizes an image to MaxDimension and re-encodes it as JPEG. If
// the result exceeds SoftLimit characters it is encoded once more at
// FallbackQuality and that result is returned regardless of size.
func Compress(raw []byte) (Result, error) {
	src, err := Decode(raw)
	if err != nil {
		return Result{}, err
	}
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return Result{}, fmt.Errorf("%w: empty image", ErrUnsupportedImage)
	}

	w, h := FitWithin(b.Dx(), b.Dy(), MaxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha; paint white first so transparent areas stay light.
	xdraw.Draw(dst, dst.Bounds(), image.White, image.Point{}, xdraw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)

	uri, err := encodeJPEG(dst, PrimaryQuality)
	if err != nil {
		return Result{}, err
	}
	quality := PrimaryQuality
	if len(uri) > SoftLimit {
		if uri, err = encodeJPEG(dst, FallbackQuality); err != nil {
			return Result{}, err
		}
		quality = FallbackQuality
	}
	return Result{DataURI: uri, Width: w, Height: h, Quality: quality}, nil
}

// CompressDataURI runs Compress on the payload of a data URI.
func CompressDataURI(uri string) (Result, error) {
	_, data, err := ParseDataURI(uri)
	if err != nil {
		return Result{}, err
	}
	return Compress(data)
}

func encodeJPEG(img image.Image, quality int) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return EncodeDataURI("image/jpeg", buf.Bytes()), nil
}
