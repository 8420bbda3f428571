// Copyright 2026 The VisLang Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"k8s.io/klog/v2"

	"github.com/vislang/slt/decode"
	"github.com/vislang/slt/textmetrics"
	"github.com/vislang/slt/tokens"
	"github.com/vislang/slt/train/metrics"
)

// worstWER bounds the reported overall word error rate: the
// min-across-heads reduction starts here, so an evaluation with no
// decodable output reports 200.
const worstWER = 200

// EvalStartFn is the type of Evaluator OnStart hooks.
type EvalStartFn func(ev *Evaluator, ds Dataset) error

// EvalStepFn is the type of Evaluator OnStep hooks, called per batch.
type EvalStepFn func(ev *Evaluator) error

// EvalEndFn is the type of Evaluator OnEnd hooks.
type EvalEndFn func(ev *Evaluator) error

// Summary holds the corpus-level scores of one evaluation pass.
type Summary struct {
	// WER is the minimum word error rate across recognition heads.
	// Only meaningful when recognition scoring ran.
	WER float64

	// WERByHead breaks the word error rate down per recognition head.
	WERByHead map[string]textmetrics.WERResult

	// Bleu holds BLEU-1..4 of the translation output.
	// Only meaningful when translation scoring ran.
	Bleu textmetrics.BleuScores

	// Rouge is the ROUGE-L score of the translation output.
	Rouge float64

	// Averages are the global averages of every meter recorded during
	// the pass (loss, wer, bleu1..4, rouge).
	Averages map[string]float64
}

// Evaluator runs evaluation passes: one full pass over a dataset with
// parameter updates disabled, decoding recognition and/or translation
// output and scoring it corpus-level at the end.
//
// Configure it with the With* methods before calling Run.
type Evaluator struct {
	// Model under evaluation. Never mutated beyond the scoped switch to
	// inference mode.
	Model Model

	// Tokenizer maps decoded symbol sequences to text.
	Tokenizer tokens.Tokenizer

	// Decoder used for recognition scoring; nil disables recognition.
	Decoder *decode.Decoder

	// Generate configures translation scoring; nil disables it. The
	// model must implement Generator when set.
	Generate *GenerateConfig

	// Level is the token granularity of BLEU and ROUGE.
	Level textmetrics.Level

	// ResultsPath, when non-empty, receives the full per-sample results
	// table as JSON at the end of the pass, overwriting any existing
	// file.
	ResultsPath string

	// Epochs is the total number of epochs of the run, for progress
	// headers. Optional.
	Epochs int

	// Meters aggregates the pass's scalar metrics. Recreated per Run.
	Meters *metrics.Set

	// LoopStep and EndStep describe progress through the current pass.
	// EndStep is -1 when the dataset does not report its length.
	LoopStep int
	EndStep  int

	// Epoch being evaluated, as passed to Run.
	Epoch int

	onStart *priorityHooks[*hookWithName[EvalStartFn]]
	onStep  *priorityHooks[*hookWithName[EvalStepFn]]
	onEnd   *priorityHooks[*hookWithName[EvalEndFn]]
}

// NewEvaluator creates an evaluator with recognition and translation
// scoring disabled and word-level text metrics.
func NewEvaluator(model Model, tok tokens.Tokenizer) *Evaluator {
	return &Evaluator{
		Model:     model,
		Tokenizer: tok,
		Level:     textmetrics.Word,
		onStart:   newPriorityHooks[*hookWithName[EvalStartFn]](),
		onStep:    newPriorityHooks[*hookWithName[EvalStepFn]](),
		onEnd:     newPriorityHooks[*hookWithName[EvalEndFn]](),
	}
}

// WithRecognition enables recognition scoring with a CTC decoder of the
// given beam width. It returns the evaluator so calls can be chained.
func (ev *Evaluator) WithRecognition(beamSize int) *Evaluator {
	ev.Decoder = decode.NewDecoder().WithBeamSize(beamSize)
	return ev
}

// WithDecoder enables recognition scoring with a fully configured
// decoder (e.g. a non-zero blank id).
func (ev *Evaluator) WithDecoder(d *decode.Decoder) *Evaluator {
	ev.Decoder = d
	return ev
}

// WithTranslation enables translation scoring with the given generation
// configuration.
func (ev *Evaluator) WithTranslation(cfg GenerateConfig) *Evaluator {
	ev.Generate = &cfg
	return ev
}

// WithLevel sets the BLEU/ROUGE token granularity.
func (ev *Evaluator) WithLevel(level textmetrics.Level) *Evaluator {
	ev.Level = level
	return ev
}

// WithResultsPath sets the file the per-sample results table is written
// to. Empty disables the write.
func (ev *Evaluator) WithResultsPath(path string) *Evaluator {
	ev.ResultsPath = path
	return ev
}

// WithEpochs sets the total number of epochs, for progress headers.
func (ev *Evaluator) WithEpochs(epochs int) *Evaluator {
	ev.Epochs = epochs
	return ev
}

// OnStart adds a hook with the given priority and name to the start of
// a pass.
func (ev *Evaluator) OnStart(name string, priority Priority, fn EvalStartFn) {
	ev.onStart.Add(priority, &hookWithName[EvalStartFn]{name: name, fn: fn})
}

// OnStep adds a hook called after each batch.
func (ev *Evaluator) OnStep(name string, priority Priority, fn EvalStepFn) {
	ev.onStep.Add(priority, &hookWithName[EvalStepFn]{name: name, fn: fn})
}

// OnEnd adds a hook called after the last batch of a pass.
func (ev *Evaluator) OnEnd(name string, priority Priority, fn EvalEndFn) {
	ev.onEnd.Add(priority, &hookWithName[EvalEndFn]{name: name, fn: fn})
}

func (ev *Evaluator) startHooks(ds Dataset) (err error) {
	ev.onStart.Enumerate(func(hook *hookWithName[EvalStartFn]) {
		if err != nil {
			return
		}
		err = hook.fn(ev, ds)
		if err != nil {
			err = errors.WithMessagef(err, "OnStart(hook %q)", hook.name)
		}
	})
	return
}

func (ev *Evaluator) stepHooks() (err error) {
	ev.onStep.Enumerate(func(hook *hookWithName[EvalStepFn]) {
		if err != nil {
			return
		}
		err = hook.fn(ev)
		if err != nil {
			err = errors.WithMessagef(err, "OnStep(hook %q)", hook.name)
		}
	})
	return
}

func (ev *Evaluator) endHooks() (err error) {
	ev.onEnd.Enumerate(func(hook *hookWithName[EvalEndFn]) {
		if err != nil {
			return
		}
		err = hook.fn(ev)
		if err != nil {
			err = errors.WithMessagef(err, "OnEnd(hook %q)", hook.name)
		}
	})
	return
}

// Run evaluates the model over exactly one pass of the dataset and
// returns the corpus-level scores.
//
// The model is switched to inference mode for the duration of the pass
// and restored on every exit path, including early errors. Recognition
// scoring decodes every gloss head of every batch through the CTC
// decoder and the tokenizer; translation scoring calls the model's
// GenerateText; both accumulate per-sample hypothesis/reference strings
// keyed by sample name, each branch filling its own fields of the same
// entry.
func (ev *Evaluator) Run(ds Dataset, epoch int) (*Summary, error) {
	if ev.Decoder != nil && ev.Tokenizer == nil {
		return nil, errors.Errorf("recognition scoring requires a tokenizer")
	}
	var generator Generator
	if ev.Generate != nil {
		var ok bool
		generator, ok = ev.Model.(Generator)
		if !ok {
			return nil, errors.Errorf("translation scoring requires the model to implement train.Generator")
		}
	}

	ev.Meters = metrics.NewSet()
	ev.Meters.AddMeter("loss", metrics.NewMeter(metrics.DefaultWindow))
	ev.Epoch = epoch
	ev.LoopStep = 0
	ev.EndStep = -1
	if withLen, ok := ds.(HasLen); ok {
		ev.EndStep = withLen.Len()
	}

	previous := ev.Model.SetTraining(false)
	defer ev.Model.SetTraining(previous)

	if err := ev.startHooks(ds); err != nil {
		return nil, err
	}

	// Results table: sample name -> hypothesis/reference fields. Sample
	// names and head names are tracked explicitly, in first-seen order
	// for names and sorted for heads.
	results := make(map[string]map[string]string)
	var nameOrder []string
	heads := make(map[string]struct{})

	sampleEntry := func(name string) map[string]string {
		entry, ok := results[name]
		if !ok {
			entry = make(map[string]string)
			results[name] = entry
			nameOrder = append(nameOrder, name)
		}
		return entry
	}

	for {
		batch, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "Evaluator.Run(%d): failed reading from dataset %q (step=%d)",
				epoch, ds.Name(), ev.LoopStep)
		}
		output, err := ev.Model.Forward(batch)
		if err != nil {
			return nil, errors.WithMessagef(err, "Evaluator.Run(%d): forward pass failed (step=%d)", epoch, ev.LoopStep)
		}

		if ev.Decoder != nil {
			headNames := maps.Keys(output.GlossLogits)
			slices.Sort(headNames)
			for _, head := range headNames {
				sequences, err := ev.Decoder.Decode(output.GlossLogits[head], output.InputLengths)
				if err != nil {
					return nil, errors.WithMessagef(err, "Evaluator.Run(%d): CTC decoding head %q failed", epoch, head)
				}
				hypotheses := ev.Tokenizer.BatchDecode(sequences)
				heads[head] = struct{}{}
				for i, name := range batch.Names {
					hyp, ref := hypotheses[i], batch.GlossRefs[i]
					if ev.Tokenizer.LowerCase() {
						hyp, ref = strings.ToUpper(hyp), strings.ToUpper(ref)
					}
					entry := sampleEntry(name)
					entry[head+"_gls_hyp"] = hyp
					entry["gls_ref"] = ref
				}
			}
		}

		if generator != nil {
			generated, err := generator.GenerateText(output.State, *ev.Generate)
			if err != nil {
				return nil, errors.WithMessagef(err, "Evaluator.Run(%d): text generation failed (step=%d)", epoch, ev.LoopStep)
			}
			for i, name := range batch.Names {
				entry := sampleEntry(name)
				entry["txt_hyp"] = generated[i]
				entry["txt_ref"] = batch.TextRefs[i]
			}
		}

		ev.Meters.Update("loss", output.TotalLoss)
		if err := ev.stepHooks(); err != nil {
			return nil, err
		}
		ev.LoopStep++
	}

	summary := &Summary{}
	if ev.Decoder != nil {
		summary.WER = worstWER
		summary.WERByHead = make(map[string]textmetrics.WERResult, len(heads))
		headNames := maps.Keys(heads)
		slices.Sort(headNames)
		for _, head := range headNames {
			hypotheses := make([]string, len(nameOrder))
			references := make([]string, len(nameOrder))
			for i, name := range nameOrder {
				hypotheses[i] = results[name][head+"_gls_hyp"]
				references[i] = results[name]["gls_ref"]
			}
			res := textmetrics.WERList(hypotheses, references)
			summary.WERByHead[head] = res
			summary.WER = min(summary.WER, res.WER)
		}
		ev.Meters.Update("wer", summary.WER)
	}

	if ev.ResultsPath != "" {
		if err := writeResults(ev.ResultsPath, results); err != nil {
			return nil, err
		}
		klog.V(1).Infof("Wrote %d evaluation results to %s", len(results), ev.ResultsPath)
	}

	if generator != nil {
		hypotheses := make([]string, len(nameOrder))
		references := make([]string, len(nameOrder))
		for i, name := range nameOrder {
			hypotheses[i] = results[name]["txt_hyp"]
			references[i] = results[name]["txt_ref"]
		}
		summary.Bleu = textmetrics.Bleu(references, hypotheses, ev.Level)
		summary.Rouge = textmetrics.Rouge(references, hypotheses, ev.Level)
		bleuMap := summary.Bleu.Map()
		for _, key := range []string{"bleu1", "bleu2", "bleu3", "bleu4"} {
			ev.Meters.Update(key, bleuMap[key])
		}
		ev.Meters.Update("rouge", summary.Rouge)
	}

	if err := ev.endHooks(); err != nil {
		return nil, err
	}
	summary.Averages = ev.Meters.GlobalAverages()
	klog.V(1).Infof("Eval epoch %d averaged results: %s", epoch, ev.Meters)
	return summary, nil
}

// writeResults serializes the per-sample results table as indented
// JSON, overwriting path. Map keys are written sorted, so identical
// passes produce byte-identical files.
func writeResults(path string, results map[string]map[string]string) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to serialize results table")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return errors.Wrapf(err, "failed to write results to %q", path)
	}
	return nil
}
