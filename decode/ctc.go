// Copyright 2026 The VisLang Authors. SPDX-License-Identifier: Apache-2.0

// Package decode implements CTC (connectionist temporal classification)
// decoding: collapsing frame-level symbol logits into discrete symbol
// sequences with a prefix beam search tolerant of repeated and blank
// frames.
package decode

import (
	"math"
	"sort"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/vislang/slt/types/tensors"
)

// Decoder configures CTC beam-search decoding.
// The zero configuration from NewDecoder performs best-path (greedy)
// decoding: a beam of width one.
type Decoder struct {
	beamSize int
	blank    int32
}

// NewDecoder creates a decoder with beam width 1 and blank id 0.
func NewDecoder() *Decoder {
	return &Decoder{beamSize: 1, blank: 0}
}

// WithBeamSize sets the beam width. It returns the decoder so calls can
// be chained.
func (d *Decoder) WithBeamSize(beamSize int) *Decoder {
	d.beamSize = beamSize
	return d
}

// WithBlank sets the blank symbol id.
func (d *Decoder) WithBlank(blank int32) *Decoder {
	d.blank = blank
	return d
}

// BeamSize returns the configured beam width.
func (d *Decoder) BeamSize() int { return d.beamSize }

func (d *Decoder) validate() error {
	if d.beamSize < 1 {
		return errors.Errorf("beam size must be >= 1, got %d", d.beamSize)
	}
	if d.blank < 0 {
		return errors.Errorf("blank id must be >= 0, got %d", d.blank)
	}
	return nil
}

// Decode runs CTC prefix beam search over a [batch, frames, vocab]
// logits tensor and returns one symbol sequence per batch entry, with
// repeats collapsed and blanks removed.
//
// inputLengths gives the number of valid frames per entry; nil means
// all frames are valid.
func (d *Decoder) Decode(logits *tensors.Tensor, inputLengths []int) (sequences [][]int32, err error) {
	if err = d.validate(); err != nil {
		return nil, errors.WithMessagef(err, "invalid CTC decoder config")
	}
	if logits == nil || logits.Rank() != 3 {
		return nil, errors.Errorf("CTC decode requires [batch, frames, vocab] logits, got %v", logits)
	}
	batch, frames, vocab := logits.Dim(0), logits.Dim(1), logits.Dim(2)
	if int(d.blank) >= vocab {
		return nil, errors.Errorf("blank id %d out of range for vocab size %d", d.blank, vocab)
	}
	if inputLengths != nil && len(inputLengths) != batch {
		return nil, errors.Errorf("got %d input lengths for batch size %d", len(inputLengths), batch)
	}

	err = exceptions.TryCatch[error](func() {
		sequences = make([][]int32, batch)
		for b := 0; b < batch; b++ {
			length := frames
			if inputLengths != nil {
				length = inputLengths[b]
				if length < 0 || length > frames {
					exceptions.Panicf("input length %d out of range for %d frames", length, frames)
				}
			}
			sequences[b] = d.decodeSample(logits, b, length, vocab)
		}
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "CTC decode failed")
	}
	return sequences, nil
}

// beamEntry tracks one prefix hypothesis. Probabilities are in log
// space, split by whether the prefix currently ends in a blank frame.
type beamEntry struct {
	prefix     []int32
	logPBlank  float64
	logPSymbol float64
}

func (e *beamEntry) total() float64 {
	return logSumExp(e.logPBlank, e.logPSymbol)
}

func (d *Decoder) decodeSample(logits *tensors.Tensor, b, length, vocab int) []int32 {
	beams := map[string]*beamEntry{
		"": {prefix: nil, logPBlank: 0, logPSymbol: math.Inf(-1)},
	}
	logProbs := make([]float64, vocab)
	for t := 0; t < length; t++ {
		frameLogSoftmax(logits.Vector(b, t), logProbs)
		next := make(map[string]*beamEntry, len(beams)*2)
		for key, beam := range beams {
			// Blank extends the prefix unchanged.
			lpBlank := logProbs[d.blank]
			entry := fetch(next, key, beam.prefix)
			entry.logPBlank = logSumExp(entry.logPBlank, beam.total()+lpBlank)

			for v := 0; v < vocab; v++ {
				if int32(v) == d.blank {
					continue
				}
				lp := logProbs[v]
				last := len(beam.prefix) - 1
				if last >= 0 && beam.prefix[last] == int32(v) {
					// A repeat without an intervening blank collapses.
					same := fetch(next, key, beam.prefix)
					same.logPSymbol = logSumExp(same.logPSymbol, beam.logPSymbol+lp)
					// Only the blank-terminated mass starts a new symbol.
					extended := append(append([]int32{}, beam.prefix...), int32(v))
					extEntry := fetch(next, prefixKey(extended), extended)
					extEntry.logPSymbol = logSumExp(extEntry.logPSymbol, beam.logPBlank+lp)
				} else {
					extended := append(append([]int32{}, beam.prefix...), int32(v))
					extEntry := fetch(next, prefixKey(extended), extended)
					extEntry.logPSymbol = logSumExp(extEntry.logPSymbol, beam.total()+lp)
				}
			}
		}
		beams = prune(next, d.beamSize)
	}

	var best *beamEntry
	for _, beam := range beams {
		if best == nil || beam.total() > best.total() {
			best = beam
		}
	}
	if best == nil || len(best.prefix) == 0 {
		return []int32{}
	}
	return best.prefix
}

func fetch(beams map[string]*beamEntry, key string, prefix []int32) *beamEntry {
	entry, ok := beams[key]
	if !ok {
		entry = &beamEntry{prefix: prefix, logPBlank: math.Inf(-1), logPSymbol: math.Inf(-1)}
		beams[key] = entry
	}
	return entry
}

func prune(beams map[string]*beamEntry, beamSize int) map[string]*beamEntry {
	if len(beams) <= beamSize {
		return beams
	}
	entries := make([]*beamEntry, 0, len(beams))
	for _, e := range beams {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].total() > entries[j].total() })
	kept := make(map[string]*beamEntry, beamSize)
	for _, e := range entries[:beamSize] {
		kept[prefixKey(e.prefix)] = e
	}
	return kept
}

func prefixKey(prefix []int32) string {
	buf := make([]byte, 0, 4*len(prefix))
	for _, v := range prefix {
		buf = append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
	return string(buf)
}

// frameLogSoftmax writes the log-softmax of one frame of logits into
// out, so the search operates on normalized log probabilities.
func frameLogSoftmax(frame []float32, out []float64) {
	maxLogit := math.Inf(-1)
	for _, v := range frame {
		if float64(v) > maxLogit {
			maxLogit = float64(v)
		}
	}
	var sum float64
	for _, v := range frame {
		sum += math.Exp(float64(v) - maxLogit)
	}
	logSum := maxLogit + math.Log(sum)
	for i, v := range frame {
		out[i] = float64(v) - logSum
	}
}

func logSumExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}
