// Copyright 2026 The VisLang Authors. SPDX-License-Identifier: Apache-2.0

package textmetrics

import (
	"math"
	"strings"

	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/stat"
)

const maxBleuOrder = 4

// BleuScores holds cumulative BLEU-1 to BLEU-4 on a 0-100 scale.
type BleuScores struct {
	Bleu1 float64
	Bleu2 float64
	Bleu3 float64
	Bleu4 float64
}

// Map returns the scores keyed the way the evaluation driver reports
// them ("bleu1".."bleu4").
func (b BleuScores) Map() map[string]float64 {
	return map[string]float64{
		"bleu1": b.Bleu1,
		"bleu2": b.Bleu2,
		"bleu3": b.Bleu3,
		"bleu4": b.Bleu4,
	}
}

// Bleu computes corpus-level cumulative BLEU-1..4 at the given level:
// modified n-gram precisions clipped against the reference, combined by
// geometric mean and scaled by the brevity penalty.
func Bleu(references, hypotheses []string, level Level) BleuScores {
	if len(hypotheses) != len(references) {
		exceptions.Panicf("textmetrics.Bleu: %d hypotheses vs %d references", len(hypotheses), len(references))
	}
	var matches, totals [maxBleuOrder]float64
	var hypLen, refLen int
	for i, hyp := range hypotheses {
		hypTokens := level.Tokenize(hyp)
		refTokens := level.Tokenize(references[i])
		hypLen += len(hypTokens)
		refLen += len(refTokens)
		for n := 1; n <= maxBleuOrder; n++ {
			m, t := clippedNgramMatches(hypTokens, refTokens, n)
			matches[n-1] += m
			totals[n-1] += t
		}
	}

	brevity := 1.0
	if hypLen < refLen && hypLen > 0 {
		brevity = math.Exp(1 - float64(refLen)/float64(hypLen))
	}

	precisions := make([]float64, 0, maxBleuOrder)
	var scores [maxBleuOrder]float64
	for n := 1; n <= maxBleuOrder; n++ {
		if totals[n-1] == 0 || matches[n-1] == 0 {
			// Geometric mean collapses to zero from here on.
			break
		}
		precisions = append(precisions, matches[n-1]/totals[n-1])
		scores[n-1] = 100 * brevity * stat.GeometricMean(precisions, nil)
	}
	return BleuScores{Bleu1: scores[0], Bleu2: scores[1], Bleu3: scores[2], Bleu4: scores[3]}
}

func clippedNgramMatches(hyp, ref []string, n int) (matches, total float64) {
	hypCounts := ngramCounts(hyp, n)
	refCounts := ngramCounts(ref, n)
	for gram, count := range hypCounts {
		total += float64(count)
		if refCount := refCounts[gram]; refCount < count {
			matches += float64(refCount)
		} else {
			matches += float64(count)
		}
	}
	return
}

func ngramCounts(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+n], "\x1f")]++
	}
	return counts
}
