package captcha

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chewxy/math32"
)

// Alphabet is the label set of the classifier, in class index order. The
// glyphs I, O, 0 and 1 never appear in a portal CAPTCHA.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	// NumClasses is the number of classifier outputs.
	NumClasses = len(Alphabet)

	// BlockWidth and BlockHeight are the dimensions of one glyph slice.
	BlockWidth  = 24
	BlockHeight = 22

	// FeatureCount is the length of a flattened glyph slice.
	FeatureCount = BlockWidth * BlockHeight
)

// modelMagic prefixes the binary weight artifact.
var modelMagic = [4]byte{'C', 'D', 'C', 'M'}

var ErrModelShape = errors.New("captcha model has unexpected shape")

// Model is a single layer softmax classifier. Weights are stored feature
// major: weights[f][c] is the contribution of feature f to class c.
type Model struct {
	weights [FeatureCount][NumClasses]float32
	bias    [NumClasses]float32
}

// Prediction is the classifier's answer for one glyph.
type Prediction struct {
	Char       byte    `json:"char"`
	Confidence float32 `json:"confidence"`
}

// NewModel builds a model from flat buffers. weights must hold
// FeatureCount*NumClasses values in feature-major order.
func NewModel(weights, bias []float32) (*Model, error) {
	if len(weights) != FeatureCount*NumClasses {
		return nil, fmt.Errorf("%w: %d weights, want %d", ErrModelShape, len(weights), FeatureCount*NumClasses)
	}
	if len(bias) != NumClasses {
		return nil, fmt.Errorf("%w: %d biases, want %d", ErrModelShape, len(bias), NumClasses)
	}

	m := &Model{}
	for f := 0; f < FeatureCount; f++ {
		copy(m.weights[f][:], weights[f*NumClasses:(f+1)*NumClasses])
	}
	copy(m.bias[:], bias)
	return m, nil
}

// LoadModel reads the binary artifact: magic, uint32 feature count, uint32
// class count, weights, then biases, all little endian.
func LoadModel(r io.Reader) (*Model, error) {
	br := bufio.NewReader(r)

	var header struct {
		Magic    [4]byte
		Features uint32
		Classes  uint32
	}
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read model header: %w", err)
	}
	if header.Magic != modelMagic {
		return nil, fmt.Errorf("not a captcha model file")
	}
	if header.Features != FeatureCount || header.Classes != uint32(NumClasses) {
		return nil, fmt.Errorf("%w: %dx%d, want %dx%d", ErrModelShape, header.Features, header.Classes, FeatureCount, NumClasses)
	}

	m := &Model{}
	if err := binary.Read(br, binary.LittleEndian, &m.weights); err != nil {
		return nil, fmt.Errorf("failed to read model weights: %w", err)
	}
	if err := binary.Read(br, binary.LittleEndian, &m.bias); err != nil {
		return nil, fmt.Errorf("failed to read model bias: %w", err)
	}
	return m, nil
}

// LoadModelFile opens and reads a model artifact from disk.
func LoadModelFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open captcha model: %w", err)
	}
	defer f.Close()
	return LoadModel(f)
}

// WriteTo serializes the model in the format read by LoadModel.
func (m *Model) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	header := struct {
		Magic    [4]byte
		Features uint32
		Classes  uint32
	}{modelMagic, FeatureCount, uint32(NumClasses)}

	for _, v := range []interface{}{header, &m.weights, &m.bias} {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return 0, err
		}
	}
	n := int64(12 + 4*(FeatureCount*NumClasses+NumClasses))
	return n, bw.Flush()
}

// Classify returns the most probable glyph for a binarized block together
// with its softmax probability.
func (m *Model) Classify(features *[FeatureCount]float32) Prediction {
	var logits [NumClasses]float32
	copy(logits[:], m.bias[:])
	for f, x := range features {
		if x == 0 {
			continue
		}
		row := &m.weights[f]
		for c := range logits {
			logits[c] += x * row[c]
		}
	}

	probs := softmax(logits)
	best := 0
	for c := 1; c < NumClasses; c++ {
		if probs[c] > probs[best] {
			best = c
		}
	}
	return Prediction{Char: Alphabet[best], Confidence: probs[best]}
}

func softmax(logits [NumClasses]float32) [NumClasses]float32 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	var out [NumClasses]float32
	var sum float32
	for i, v := range logits {
		out[i] = math32.Exp(v - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
