package vecstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVector(t *testing.T) {
	t.Run("unit length", func(t *testing.T) {
		v := NormalizeVector([]float32{3, 4})
		assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
		assert.InDelta(t, 0.8, float64(v[1]), 1e-6)
		assert.InDelta(t, 1.0, float64(norm(v)), 1e-6)
	})

	t.Run("zero vector stays zero", func(t *testing.T) {
		v := NormalizeVector([]float32{0, 0, 0})
		assert.Equal(t, []float32{0, 0, 0}, v)
	})

	t.Run("empty vector", func(t *testing.T) {
		assert.Empty(t, NormalizeVector(nil))
	})
}

func TestCosine(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{1, 0}
	c := []float32{0, 1}
	d := []float32{-1, 0}

	assert.InDelta(t, 1.0, float64(cosine(a, b, norm(a))), 1e-6)
	assert.InDelta(t, 0.0, float64(cosine(a, c, norm(a))), 1e-6)
	assert.InDelta(t, -1.0, float64(cosine(a, d, norm(a))), 1e-6)

	// Mismatched lengths score zero.
	assert.Zero(t, cosine(a, []float32{1, 0, 0}, norm(a)))
}

func TestEncodeDecodeFloat32s(t *testing.T) {
	original := []float32{0.5, -1.25, 3.75, 0}

	blob := encodeFloat32s(original)
	require.Len(t, blob, 16)

	decoded, err := decodeFloat32s(blob)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeFloat32s_CorruptLength(t *testing.T) {
	_, err := decodeFloat32s([]byte{1, 2, 3})
	assert.Error(t, err)

	_, err = decodeFloat32sInto(nil, []byte{1, 2, 3, 4, 5})
	assert.Error(t, err)
}

func TestDecodeFloat32sInto_ReusesBuffer(t *testing.T) {
	blob := encodeFloat32s([]float32{1, 2, 3, 4})

	buf := make([]float32, 0, 8)
	decoded, err := decodeFloat32sInto(buf, blob)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, decoded)

	// A second decode into the same buffer reuses its backing array.
	smaller := encodeFloat32s([]float32{9, 8})
	decoded2, err := decodeFloat32sInto(decoded, smaller)
	require.NoError(t, err)
	assert.Equal(t, []float32{9, 8}, decoded2)
}
