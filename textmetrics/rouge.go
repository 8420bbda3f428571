// Copyright 2026 The VisLang Authors. SPDX-License-Identifier: Apache-2.0

package textmetrics

import (
	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/stat"
)

// rougeBeta weights recall over precision in the ROUGE-L F-score, the
// value used by the reference ROUGE implementation.
const rougeBeta = 1.2

// Rouge computes the corpus mean ROUGE-L F-score at the given level, on
// a 0-100 scale.
func Rouge(references, hypotheses []string, level Level) float64 {
	if len(hypotheses) != len(references) {
		exceptions.Panicf("textmetrics.Rouge: %d hypotheses vs %d references", len(hypotheses), len(references))
	}
	if len(hypotheses) == 0 {
		return 0
	}
	scores := make([]float64, len(hypotheses))
	for i, hyp := range hypotheses {
		scores[i] = rougeL(level.Tokenize(hyp), level.Tokenize(references[i]))
	}
	return 100 * stat.Mean(scores, nil)
}

// rougeL returns the sentence-level ROUGE-L F-score in [0, 1].
func rougeL(hyp, ref []string) float64 {
	if len(hyp) == 0 || len(ref) == 0 {
		return 0
	}
	lcs := float64(lcsLength(hyp, ref))
	if lcs == 0 {
		return 0
	}
	precision := lcs / float64(len(hyp))
	recall := lcs / float64(len(ref))
	beta2 := rougeBeta * rougeBeta
	return (1 + beta2) * precision * recall / (recall + beta2*precision)
}

func lcsLength(a, b []string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
		for j := range curr {
			curr[j] = 0
		}
	}
	return prev[len(b)]
}
