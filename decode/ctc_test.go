package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vislang/slt/types/tensors"
)

// peakedLogits builds [1, frames, vocab] logits where each frame
// strongly prefers the given symbol.
func peakedLogits(t *testing.T, frames []int32, vocab int) *tensors.Tensor {
	t.Helper()
	data := make([]float32, len(frames)*vocab)
	for f, sym := range frames {
		require.Less(t, int(sym), vocab)
		data[f*vocab+int(sym)] = 10
	}
	return tensors.FromFlatDataAndDimensions(data, 1, len(frames), vocab)
}

func TestDecodeCollapsesRepeatsAndBlanks(t *testing.T) {
	logits := peakedLogits(t, []int32{1, 1, 0, 2, 2, 3}, 4)
	seqs, err := NewDecoder().Decode(logits, nil)
	require.NoError(t, err)
	require.Len(t, seqs, 1)
	assert.Equal(t, []int32{1, 2, 3}, seqs[0])
}

func TestDecodeBlankSeparatesRepeats(t *testing.T) {
	logits := peakedLogits(t, []int32{2, 0, 2}, 4)
	seqs, err := NewDecoder().WithBeamSize(3).Decode(logits, nil)
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 2}, seqs[0])
}

func TestDecodeRespectsInputLengths(t *testing.T) {
	// Only the first two frames are valid; the trailing 3 is padding.
	logits := peakedLogits(t, []int32{1, 1, 3}, 4)
	seqs, err := NewDecoder().Decode(logits, []int{2})
	require.NoError(t, err)
	assert.Equal(t, []int32{1}, seqs[0])
}

func TestDecodeAllBlanks(t *testing.T) {
	logits := peakedLogits(t, []int32{0, 0, 0}, 4)
	seqs, err := NewDecoder().WithBeamSize(2).Decode(logits, nil)
	require.NoError(t, err)
	assert.Empty(t, seqs[0])
}

func TestDecodeValidation(t *testing.T) {
	logits := peakedLogits(t, []int32{1}, 4)

	_, err := NewDecoder().WithBeamSize(0).Decode(logits, nil)
	assert.Error(t, err)

	_, err = NewDecoder().Decode(tensors.Zeros(2, 2), nil)
	assert.Error(t, err)

	_, err = NewDecoder().Decode(logits, []int{1, 1})
	assert.Error(t, err)

	_, err = NewDecoder().Decode(logits, []int{7})
	assert.Error(t, err)

	_, err = NewDecoder().WithBlank(9).Decode(logits, nil)
	assert.Error(t, err)
}
