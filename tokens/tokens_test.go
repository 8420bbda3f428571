package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVocabularyDecode(t *testing.T) {
	v := NewVocabulary([]string{"<blank>", "HELLO", "WORLD"})
	require.Equal(t, 3, v.Len())
	assert.Equal(t, "HELLO WORLD", v.Decode([]int32{1, 2}))
	assert.Equal(t, []string{"HELLO", "WORLD HELLO"}, v.BatchDecode([][]int32{{1}, {2, 1}}))
	assert.Equal(t, UnknownToken, v.Word(99))
	assert.False(t, v.LowerCase())

	id, ok := v.Lookup("WORLD")
	require.True(t, ok)
	assert.Equal(t, int32(2), id)
	_, ok = v.Lookup("MISSING")
	assert.False(t, ok)
}

func TestVocabularyLowerCase(t *testing.T) {
	v := NewVocabulary([]string{"<blank>", "HELLO"}).WithLowerCase(true)
	assert.True(t, v.LowerCase())
	assert.Equal(t, "hello", v.Decode([]int32{1}))
}
