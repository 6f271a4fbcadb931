package captcha

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModelShape(t *testing.T) {
	_, err := NewModel(make([]float32, 10), make([]float32, NumClasses))
	assert.ErrorIs(t, err, ErrModelShape)

	_, err = NewModel(make([]float32, FeatureCount*NumClasses), make([]float32, NumClasses+1))
	assert.ErrorIs(t, err, ErrModelShape)
}

func TestLoadModelRoundTrip(t *testing.T) {
	m := templateModel(t)
	m.bias[3] = 0.25

	var buf bytes.Buffer
	n, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	loaded, err := LoadModel(&buf)
	require.NoError(t, err)
	assert.Equal(t, m.weights, loaded.weights)
	assert.Equal(t, m.bias, loaded.bias)
}

func TestLoadModelRejectsForeignFiles(t *testing.T) {
	_, err := LoadModel(bytes.NewReader([]byte("PK\x03\x04 zip header padding")))
	assert.Error(t, err)

	header := []byte{'C', 'D', 'C', 'M', 1, 0, 0, 0, 33, 0, 0, 0}
	_, err = LoadModel(bytes.NewReader(header))
	assert.ErrorIs(t, err, ErrModelShape)
}

func TestClassifyUsesBias(t *testing.T) {
	bias := make([]float32, NumClasses)
	bias[5] = 3
	m, err := NewModel(make([]float32, FeatureCount*NumClasses), bias)
	require.NoError(t, err)

	var empty [FeatureCount]float32
	p := m.Classify(&empty)
	assert.Equal(t, Alphabet[5], p.Char)
}
