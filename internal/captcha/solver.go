// Package captcha recognises the six glyph image challenge shown on the
// portal login page, offline, with a fixed linear classifier.
package captcha

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"
)

const (
	// ImageWidth and ImageHeight are the canvas size of a portal CAPTCHA.
	ImageWidth  = 200
	ImageHeight = 40

	// Length is the number of glyphs in every challenge.
	Length = 6

	glyphPitch = 25
	jitter     = 5
)

var ErrImageSize = errors.New("unexpected captcha image size")

// Solver turns CAPTCHA images into best-effort guesses. It holds no mutable
// state and is safe for concurrent use.
type Solver struct {
	model *Model
}

// NewSolver creates a solver backed by model
func NewSolver(model *Model) *Solver {
	return &Solver{model: model}
}

// Solve returns the six character guess for a CAPTCHA image. The input may
// be raw image bytes, a base64 string, or a data URI.
func (s *Solver) Solve(input []byte) (string, error) {
	preds, err := s.Predict(input)
	if err != nil {
		return "", err
	}

	guess := make([]byte, len(preds))
	for i, p := range preds {
		guess[i] = p.Char
	}
	return string(guess), nil
}

// Predict classifies every glyph of the image, left to right.
func (s *Solver) Predict(input []byte) ([]Prediction, error) {
	raw, err := DecodeInput(input)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode captcha image: %w", err)
	}

	sat, err := saturation(img)
	if err != nil {
		return nil, err
	}

	preds := make([]Prediction, Length)
	for i := 0; i < Length; i++ {
		features := binarize(sat, blockBounds(i))
		preds[i] = s.model.Classify(&features)
	}
	return preds, nil
}

// DecodeInput normalises the accepted encodings to raw image bytes.
func DecodeInput(input []byte) ([]byte, error) {
	if isImage(input) {
		return input, nil
	}

	text := strings.TrimSpace(string(input))
	if strings.HasPrefix(text, "data:") {
		comma := strings.IndexByte(text, ',')
		if comma < 0 || !strings.Contains(text[:comma], ";base64") {
			return nil, fmt.Errorf("unsupported captcha data uri")
		}
		text = text[comma+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("failed to decode captcha base64: %w", err)
	}
	return raw, nil
}

func isImage(b []byte) bool {
	return bytes.HasPrefix(b, []byte("\x89PNG\r\n\x1a\n")) ||
		bytes.HasPrefix(b, []byte("\xff\xd8\xff")) ||
		bytes.HasPrefix(b, []byte("GIF8"))
}

// saturation maps every pixel to round((max-min)/max*255) over its RGB
// channels, 0 for black. Coloured ink scores high, the grey noise low.
func saturation(img image.Image) (*[ImageHeight][ImageWidth]uint8, error) {
	b := img.Bounds()
	if b.Dx() != ImageWidth || b.Dy() != ImageHeight {
		return nil, fmt.Errorf("%w: %dx%d, want %dx%d", ErrImageSize, b.Dx(), b.Dy(), ImageWidth, ImageHeight)
	}

	var out [ImageHeight][ImageWidth]uint8
	for y := 0; y < ImageHeight; y++ {
		for x := 0; x < ImageWidth; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			hi := max(c.R, c.G, c.B)
			lo := min(c.R, c.G, c.B)
			if hi == 0 {
				continue
			}
			out[y][x] = uint8(math.Round(float64(hi-lo) / float64(hi) * 255))
		}
	}
	return &out, nil
}

// blockBounds returns the slice of glyph i. Glyphs sit 25px apart and odd
// glyphs are rendered 5px lower than even ones.
func blockBounds(i int) image.Rectangle {
	x0 := (i+1)*glyphPitch + 2
	y0 := 8 + jitter*(i%2)
	return image.Rect(x0, y0, x0+BlockWidth, y0+BlockHeight)
}

// binarize thresholds a block against its own mean intensity.
func binarize(sat *[ImageHeight][ImageWidth]uint8, r image.Rectangle) [FeatureCount]float32 {
	var sum int
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			sum += int(sat[y][x])
		}
	}
	mean := float64(sum) / float64(FeatureCount)

	var features [FeatureCount]float32
	i := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if float64(sat[y][x]) > mean {
				features[i] = 1
			}
			i++
		}
	}
	return features
}
