package textmetrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelTokenize(t *testing.T) {
	assert.Equal(t, []string{"MY", "HOUSE"}, Word.Tokenize(" MY  HOUSE "))
	assert.Equal(t, []string{"a", "b", "c"}, Char.Tokenize("ab c"))
	assert.Empty(t, Word.Tokenize(""))
}

func TestWERListPerfect(t *testing.T) {
	res := WERList([]string{"MY HOUSE", "GOOD MORNING"}, []string{"MY HOUSE", "GOOD MORNING"})
	assert.Zero(t, res.WER)
	assert.Equal(t, 4, res.RefTokens)
}

func TestWERListCounts(t *testing.T) {
	// 1 substitution, 1 deletion, 1 insertion over 8 reference tokens.
	hyps := []string{"a x c d", "e f g h extra"}
	refs := []string{"a b c d missing", "e f g"}
	res := WERList(hyps, refs)
	assert.Equal(t, 1, res.Substitutions)
	assert.Equal(t, 1, res.Deletions)
	assert.Equal(t, 1, res.Insertions)
	assert.Equal(t, 8, res.RefTokens)
	assert.InDelta(t, 100.0*3.0/8.0, res.WER, 1e-9)
}

func TestWERListSingleSubstitutionRate(t *testing.T) {
	res := WERList([]string{"a b c d e f g h i X"}, []string{"a b c d e f g h i j"})
	assert.InDelta(t, 10.0, res.WER, 1e-9)
}

func TestBleuCeiling(t *testing.T) {
	refs := []string{"the cat sat on the mat", "a stitch in time"}
	scores := Bleu(refs, refs, Word)
	assert.InDelta(t, 100, scores.Bleu1, 1e-9)
	assert.InDelta(t, 100, scores.Bleu4, 1e-9)
	assert.InDelta(t, 100, scores.Map()["bleu4"], 1e-9)
}

func TestBleuBrevityPenalty(t *testing.T) {
	scores := Bleu([]string{"the cat sat"}, []string{"the cat"}, Word)
	want := 100 * math.Exp(1-3.0/2.0)
	assert.InDelta(t, want, scores.Bleu1, 1e-6)
	assert.InDelta(t, want, scores.Bleu2, 1e-6)
	// No trigram in a two-token hypothesis.
	assert.Zero(t, scores.Bleu3)
	assert.Zero(t, scores.Bleu4)
}

func TestBleuCharLevel(t *testing.T) {
	scores := Bleu([]string{"abcd"}, []string{"abcd"}, Char)
	assert.InDelta(t, 100, scores.Bleu4, 1e-9)
}

func TestRougeCeiling(t *testing.T) {
	refs := []string{"the cat sat on the mat"}
	assert.InDelta(t, 100, Rouge(refs, refs, Word), 1e-9)
}

func TestRougePartial(t *testing.T) {
	got := Rouge([]string{"a b c"}, []string{"a b"}, Word)
	precision, recall := 1.0, 2.0/3.0
	beta2 := rougeBeta * rougeBeta
	want := 100 * (1 + beta2) * precision * recall / (recall + beta2*precision)
	require.InDelta(t, want, got, 1e-6)

	assert.Zero(t, Rouge([]string{"a"}, []string{"z"}, Word))
}
