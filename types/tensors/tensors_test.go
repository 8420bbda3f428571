package tensors

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFlatDataAndDimensions(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	require.Equal(t, 2, tensor.Rank())
	require.Equal(t, []int{2, 3}, tensor.Dimensions())
	require.Equal(t, 6, tensor.Size())
	assert.Equal(t, float32(6), tensor.At(1, 2))

	err := exceptions.TryCatch[error](func() {
		_ = FromFlatDataAndDimensions([]float32{1, 2, 3}, 2, 3)
	})
	require.Error(t, err)
}

func TestVector(t *testing.T) {
	// [batch=2, frames=2, vocab=3]
	tensor := FromFlatDataAndDimensions([]float32{
		0, 1, 2,
		3, 4, 5,
		6, 7, 8,
		9, 10, 11,
	}, 2, 2, 3)
	assert.Equal(t, []float32{3, 4, 5}, tensor.Vector(0, 1))
	assert.Equal(t, []float32{6, 7, 8}, tensor.Vector(1, 0))

	tensor.Vector(1, 1)[0] = 42 // Aliases the underlying data.
	assert.Equal(t, float32(42), tensor.At(1, 1, 0))
}

func TestSetAndEqual(t *testing.T) {
	a := Zeros(2, 2)
	b := Zeros(2, 2)
	require.True(t, a.Equal(b))
	a.Set(1.5, 0, 1)
	require.False(t, a.Equal(b))
	b.Set(1.5, 0, 1)
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(Zeros(4)))
}
