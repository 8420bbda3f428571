// Copyright 2026 The VisLang Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vislang/slt/tokens"
	"github.com/vislang/slt/types/tensors"
)

// glossLogits builds [1, frames, vocab] logits whose best path decodes
// to ids, padding with blanks. The ids must not contain adjacent
// repeats, so a greedy decode recovers them exactly.
func glossLogits(t *testing.T, ids []int32, frames, vocab int) *tensors.Tensor {
	t.Helper()
	require.LessOrEqual(t, len(ids), frames)
	data := make([]float32, frames*vocab)
	for f := 0; f < frames; f++ {
		sym := int32(0)
		if f < len(ids) {
			sym = ids[f]
			require.Less(t, int(sym), vocab)
		}
		data[f*vocab+int(sym)] = 12
	}
	return tensors.FromFlatDataAndDimensions(data, 1, frames, vocab)
}

// evalModel scripts per-sample gloss logits, keyed by the first sample
// name of the batch, and echoes the batch text references on generate.
type evalModel struct {
	logits   map[string]map[string]*tensors.Tensor // sample name -> head -> logits
	loss     float64
	training bool
}

func (m *evalModel) Forward(batch *Batch) (*Output, error) {
	return &Output{
		TotalLoss:   m.loss,
		GlossLogits: m.logits[batch.Names[0]],
		State:       batch.TextRefs,
	}, nil
}

func (m *evalModel) SetTraining(training bool) bool {
	previous := m.training
	m.training = training
	return previous
}

func (m *evalModel) GenerateText(state any, cfg GenerateConfig) ([]string, error) {
	refs := state.([]string)
	return append([]string{}, refs...), nil
}

func devVocabulary() *tokens.Vocabulary {
	words := []string{"<blank>"}
	for i := 1; i <= 30; i++ {
		words = append(words, fmt.Sprintf("w%02d", i))
	}
	return tokens.NewVocabulary(words).WithLowerCase(true)
}

func idsToText(v *tokens.Vocabulary, ids []int32) string {
	return v.Decode(ids)
}

func TestEvaluatorRecognitionResultsTable(t *testing.T) {
	vocab := devVocabulary()
	refIDs := []int32{1, 2, 3}
	hypIDs := []int32{1, 2, 4} // one substitution

	model := &evalModel{
		loss: 2.5,
		logits: map[string]map[string]*tensors.Tensor{
			"dev_0001": {"gloss": glossLogits(t, hypIDs, 5, vocab.Len())},
		},
		training: true,
	}
	ds := &sliceDataset{name: "dev", batches: []*Batch{{
		Names:     []string{"dev_0001"},
		GlossRefs: []string{idsToText(vocab, refIDs)},
	}}}

	resultsPath := filepath.Join(t.TempDir(), "results.json")
	ev := NewEvaluator(model, vocab).
		WithRecognition(3).
		WithResultsPath(resultsPath)

	summary, err := ev.Run(ds, 7)
	require.NoError(t, err)

	// One substitution over three reference tokens.
	assert.InDelta(t, 100.0/3, summary.WER, 1e-9)
	assert.InDelta(t, summary.WER, summary.Averages["wer"], 1e-9)
	assert.InDelta(t, 2.5, summary.Averages["loss"], 1e-9)

	// Inference mode for the pass, restored afterwards.
	assert.True(t, model.training)

	data, err := os.ReadFile(resultsPath)
	require.NoError(t, err)
	var results map[string]map[string]string
	require.NoError(t, json.Unmarshal(data, &results))

	entry := results["dev_0001"]
	require.NotNil(t, entry)
	// Lower-cased tokenizer output is scored and stored upper-cased.
	assert.Equal(t, "W01 W02 W04", entry["gloss_gls_hyp"])
	assert.Equal(t, "W01 W02 W03", entry["gls_ref"])
}

func TestEvaluatorTakesMinimumWERAcrossHeads(t *testing.T) {
	vocab := devVocabulary()
	refIDs := make([]int32, 20)
	for i := range refIDs {
		refIDs[i] = int32(i + 1)
	}
	// "gloss" head: 2 substitutions over 20 tokens -> 10% WER.
	// "fused" head: 5 substitutions over 20 tokens -> 25% WER.
	glossIDs := append([]int32{}, refIDs...)
	glossIDs[3], glossIDs[11] = 25, 26
	fusedIDs := append([]int32{}, refIDs...)
	for i, sub := range []int32{21, 22, 23, 24, 25} {
		fusedIDs[i*4] = sub
	}

	model := &evalModel{
		loss: 1,
		logits: map[string]map[string]*tensors.Tensor{
			"dev_0001": {
				"gloss": glossLogits(t, glossIDs, 25, vocab.Len()),
				"fused": glossLogits(t, fusedIDs, 25, vocab.Len()),
			},
		},
	}
	ds := &sliceDataset{name: "dev", batches: []*Batch{{
		Names:     []string{"dev_0001"},
		GlossRefs: []string{idsToText(vocab, refIDs)},
	}}}

	summary, err := NewEvaluator(model, vocab).WithRecognition(1).Run(ds, 1)
	require.NoError(t, err)

	assert.InDelta(t, 10, summary.WER, 1e-9)
	assert.InDelta(t, 10, summary.WERByHead["gloss"].WER, 1e-9)
	assert.InDelta(t, 25, summary.WERByHead["fused"].WER, 1e-9)
	assert.InDelta(t, 10, summary.Averages["wer"], 1e-9)
}

func TestEvaluatorPerfectTranslation(t *testing.T) {
	vocab := devVocabulary()
	model := &evalModel{loss: 1}
	ds := &sliceDataset{name: "dev", batches: []*Batch{
		{
			Names:    []string{"dev_0001"},
			TextRefs: []string{"the weather stays nice today"},
		},
		{
			Names:    []string{"dev_0002"},
			TextRefs: []string{"tomorrow it will rain in the north"},
		},
	}}

	summary, err := NewEvaluator(model, vocab).
		WithTranslation(GenerateConfig{MaxLength: 30, BeamSize: 5, LengthPenalty: 1}).
		Run(ds, 1)
	require.NoError(t, err)

	assert.InDelta(t, 100, summary.Bleu.Bleu1, 1e-9)
	assert.InDelta(t, 100, summary.Bleu.Bleu4, 1e-9)
	assert.InDelta(t, 100, summary.Rouge, 1e-9)
	assert.InDelta(t, 100, summary.Averages["bleu4"], 1e-9)
	assert.InDelta(t, 100, summary.Averages["rouge"], 1e-9)
}

func TestEvaluatorTranslationRequiresGenerator(t *testing.T) {
	model := &lossModel{losses: []float64{1}} // does not implement Generator
	ds := &sliceDataset{name: "dev", batches: batchesOfSize(1)}

	_, err := NewEvaluator(model, devVocabulary()).
		WithTranslation(GenerateConfig{MaxLength: 10, BeamSize: 1, LengthPenalty: 1}).
		Run(ds, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Generator")
}

func TestEvaluatorDeterministic(t *testing.T) {
	vocab := devVocabulary()
	model := &evalModel{
		loss: 3,
		logits: map[string]map[string]*tensors.Tensor{
			"dev_0001": {"gloss": glossLogits(t, []int32{1, 2, 3}, 6, vocab.Len())},
			"dev_0002": {"gloss": glossLogits(t, []int32{4, 5}, 6, vocab.Len())},
		},
	}
	batches := []*Batch{
		{
			Names:     []string{"dev_0001"},
			GlossRefs: []string{idsToText(vocab, []int32{1, 2, 3})},
			TextRefs:  []string{"good morning"},
		},
		{
			Names:     []string{"dev_0002"},
			GlossRefs: []string{idsToText(vocab, []int32{4, 6})},
			TextRefs:  []string{"good evening"},
		},
	}

	dir := t.TempDir()
	run := func(path string) (*Summary, []byte) {
		ds := &sliceDataset{name: "dev", batches: batches}
		ev := NewEvaluator(model, vocab).
			WithRecognition(5).
			WithTranslation(GenerateConfig{MaxLength: 30, BeamSize: 3, LengthPenalty: 1}).
			WithResultsPath(path)
		summary, err := ev.Run(ds, 2)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		return summary, data
	}

	first, firstData := run(filepath.Join(dir, "a.json"))
	second, secondData := run(filepath.Join(dir, "b.json"))

	assert.Equal(t, first.Averages, second.Averages)
	assert.Equal(t, first.WERByHead, second.WERByHead)
	assert.Equal(t, firstData, secondData, "results files must be byte-identical across runs")
	assert.True(t, strings.HasSuffix(string(firstData), "\n"))
}
