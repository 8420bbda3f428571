// Copyright 2026 The VisLang Authors. SPDX-License-Identifier: Apache-2.0

// sltdemo trains a toy per-frame sign classifier on a synthetic gloss
// dataset and evaluates it with the full recognition/translation
// scoring pipeline: CTC decoding, word error rate, BLEU and ROUGE.
//
// The model is deliberately tiny (an emission matrix trained with
// gradient descent), but it exercises the same drivers, progress
// display and plot collection a real sign-language model would.
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/vislang/slt/tokens"
	"github.com/vislang/slt/train"
	"github.com/vislang/slt/train/commandline"
	"github.com/vislang/slt/types/tensors"
	"github.com/vislang/slt/ui/plots"
)

var (
	flagEpochs      = flag.Int("epochs", 5, "Number of training epochs.")
	flagBatches     = flag.Int("batches", 120, "Number of training batches per epoch.")
	flagEvalBatches = flag.Int("eval_batches", 30, "Number of evaluation batches.")
	flagLR          = flag.Float64("lr", 0.5, "Learning rate.")
	flagBeam        = flag.Int("beam", 3, "CTC beam width used for recognition scoring.")
	flagResultsDir  = flag.String("results_dir", "", "Directory to write evaluation results and plot points to. "+
		"If left empty, a temporary directory is created.")
)

// glossWords is the toy gloss vocabulary; id 0 is the CTC blank.
var glossWords = []string{
	"<blank>",
	"MORGEN", "HEUTE", "WETTER", "REGEN", "SONNE",
	"WIND", "NORD", "SUED", "KALT", "WARM",
}

const framesPerGloss = 3

// synthDataset produces batches of one sample each: a random gloss
// sequence rendered as one-hot frames, each gloss held for a few
// frames. Batches are pre-generated, so every pass sees the same data.
type synthDataset struct {
	name    string
	batches []*train.Batch
	next    int
}

func newSynthDataset(name string, vocab *tokens.Vocabulary, numBatches int, seed uint64) *synthDataset {
	rng := rand.New(rand.NewPCG(seed, 0))
	ds := &synthDataset{name: name}
	for b := 0; b < numBatches; b++ {
		numGlosses := 3 + rng.IntN(4)
		ids := make([]int32, numGlosses)
		for i := range ids {
			for {
				ids[i] = 1 + int32(rng.IntN(vocab.Len()-1))
				if i == 0 || ids[i] != ids[i-1] {
					break
				}
			}
		}
		frames := len(ids) * framesPerGloss
		data := make([]float32, frames*vocab.Len())
		for f := 0; f < frames; f++ {
			data[f*vocab.Len()+int(ids[f/framesPerGloss])] = 1
		}
		glossText := vocab.Decode(ids)
		ds.batches = append(ds.batches, &train.Batch{
			Names:     []string{fmt.Sprintf("%s_%04d", name, b+1)},
			Inputs:    []*tensors.Tensor{tensors.FromFlatDataAndDimensions(data, 1, frames, vocab.Len())},
			GlossRefs: []string{glossText},
			TextRefs:  []string{strings.ToLower(glossText)},
		})
	}
	return ds
}

func (ds *synthDataset) Name() string { return ds.name }
func (ds *synthDataset) Reset()       { ds.next = 0 }
func (ds *synthDataset) Len() int     { return len(ds.batches) }

func (ds *synthDataset) Yield() (*train.Batch, error) {
	if ds.next >= len(ds.batches) {
		return nil, io.EOF
	}
	batch := ds.batches[ds.next]
	ds.next++
	return batch, nil
}

// frameModel classifies each frame independently with an emission
// matrix: weights[i][j] is the logit of gloss j given an input frame
// showing gloss i. Trained with per-frame softmax cross-entropy, it
// converges to a (noisy) identity mapping that the CTC decoder then
// collapses into the gloss sequence.
type frameModel struct {
	vocab    int
	weights  [][]float64
	grad     [][]float64
	training bool

	// Forward pass cache consumed by Backward.
	frameSyms  []int
	frameProbs [][]float64
}

func newFrameModel(vocab int) *frameModel {
	m := &frameModel{vocab: vocab}
	m.weights = newMatrix(vocab)
	m.grad = newMatrix(vocab)
	return m
}

func newMatrix(n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
	}
	return rows
}

func (m *frameModel) Forward(batch *train.Batch) (*train.Output, error) {
	x := batch.Inputs[0]
	frames := x.Dim(1)
	logits := tensors.Zeros(1, frames, m.vocab)

	var loss float64
	m.frameSyms = m.frameSyms[:0]
	m.frameProbs = m.frameProbs[:0]
	for f := 0; f < frames; f++ {
		row := x.Vector(0, f)
		sym := argmax(row)
		scores := m.weights[sym]

		// Stable softmax over the emission row.
		maxScore := scores[0]
		for _, s := range scores[1:] {
			maxScore = math.Max(maxScore, s)
		}
		probs := make([]float64, m.vocab)
		var sum float64
		for j, s := range scores {
			probs[j] = math.Exp(s - maxScore)
			sum += probs[j]
		}
		out := logits.Vector(0, f)
		for j := range probs {
			probs[j] /= sum
			out[j] = float32(scores[j])
		}
		loss -= math.Log(probs[sym])

		m.frameSyms = append(m.frameSyms, sym)
		m.frameProbs = append(m.frameProbs, probs)
	}
	loss /= float64(frames)

	return &train.Output{
		TotalLoss:    loss,
		GlossLogits:  map[string]*tensors.Tensor{"gloss": logits},
		InputLengths: []int{frames},
		State:        batch.TextRefs,
	}, nil
}

func (m *frameModel) Backward() error {
	frames := float64(len(m.frameSyms))
	for f, sym := range m.frameSyms {
		for j, p := range m.frameProbs[f] {
			g := p
			if j == sym {
				g -= 1
			}
			m.grad[sym][j] += g / frames
		}
	}
	return nil
}

func (m *frameModel) SetTraining(training bool) bool {
	previous := m.training
	m.training = training
	return previous
}

// GenerateText is a stand-in decoder: it echoes the reference text, so
// translation scoring runs end to end with ceiling scores.
func (m *frameModel) GenerateText(state any, cfg train.GenerateConfig) ([]string, error) {
	refs := state.([]string)
	return append([]string{}, refs...), nil
}

func argmax(row []float32) int {
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return best
}

// sgd is plain gradient descent over the frameModel's emission matrix.
type sgd struct {
	model *frameModel
	lr    float64
}

func (o *sgd) ZeroGrad() {
	for _, row := range o.model.grad {
		for j := range row {
			row[j] = 0
		}
	}
}

func (o *sgd) ClipGradNorm(maxNorm float64) float64 {
	var sumSq float64
	for _, row := range o.model.grad {
		for _, g := range row {
			sumSq += g * g
		}
	}
	norm := math.Sqrt(sumSq)
	if norm > maxNorm && norm > 0 {
		scale := maxNorm / norm
		for _, row := range o.model.grad {
			for j := range row {
				row[j] *= scale
			}
		}
	}
	return norm
}

func (o *sgd) Step() {
	for i, row := range o.model.weights {
		for j := range row {
			row[j] -= o.lr * o.model.grad[i][j]
		}
	}
}

func (o *sgd) LearningRate() float64 { return o.lr }

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	err := exceptions.TryCatch[error](run)
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}

func run() {
	resultsDir := *flagResultsDir
	if resultsDir == "" {
		resultsDir = must.M1(os.MkdirTemp("", "sltdemo-"))
	}
	fmt.Printf("Results directory: %s\n", resultsDir)

	vocab := tokens.NewVocabulary(glossWords)
	trainDS := newSynthDataset("train", vocab, *flagBatches, 42)
	devDS := newSynthDataset("dev", vocab, *flagEvalBatches, 67)

	model := newFrameModel(vocab.Len())
	optimizer := &sgd{model: model, lr: *flagLR}

	loop := train.NewLoop(model, optimizer)
	loop.Epochs = *flagEpochs
	commandline.AttachProgressBar(loop)

	pointsFile := filepath.Join(resultsDir, plots.TrainingPlotFileName)
	pointsWriter, errReport := plots.CreatePointsWriter(pointsFile)
	plotter := plots.NewPlotterChannel(pointsWriter)
	plots.AttachToLoop(loop, 10, plotter)

	resultsFile := filepath.Join(resultsDir, fmt.Sprintf("dev_results-%s.json", uuid.NewString()))
	evaluator := train.NewEvaluator(model, vocab).
		WithRecognition(*flagBeam).
		WithTranslation(train.GenerateConfig{MaxLength: 30, BeamSize: *flagBeam, LengthPenalty: 1}).
		WithEpochs(*flagEpochs).
		WithResultsPath(resultsFile)
	commandline.AttachEvaluationBar(evaluator)
	plots.AttachToEvaluator(evaluator, plotter)

	for epoch := 1; epoch <= *flagEpochs; epoch++ {
		trainDS.Reset()
		averages := must.M1(loop.RunEpoch(trainDS, epoch))
		devDS.Reset()
		summary := must.M1(evaluator.Run(devDS, epoch))
		klog.Infof("Epoch %d: train loss=%.4f dev loss=%.4f wer=%.2f bleu4=%.2f rouge=%.2f",
			epoch, averages["loss"], summary.Averages["loss"], summary.WER, summary.Bleu.Bleu4, summary.Rouge)
	}

	close(pointsWriter)
	must.M(<-errReport)

	points := must.M1(plots.LoadPoints(pointsFile))
	fmt.Println(plots.NewPoints(points).TableForMetrics())
	fmt.Printf("Evaluation results written to %s\n", resultsFile)
}
