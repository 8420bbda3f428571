// Copyright 2026 The VisLang Authors. SPDX-License-Identifier: Apache-2.0

package textmetrics

import (
	"strings"

	"github.com/gomlx/exceptions"
)

// WERResult holds corpus-level word error rate statistics. The rates
// are percentages of the total number of reference tokens.
type WERResult struct {
	WER     float64
	SubRate float64
	DelRate float64
	InsRate float64

	// Raw counts over the whole corpus.
	RefTokens     int
	Substitutions int
	Deletions     int
	Insertions    int
}

// WERList computes corpus-level word error rate over aligned
// hypothesis/reference pairs: the token-level edit distance summed over
// all pairs, divided by the total reference length.
//
// Both slices must have the same length; a mismatch is a programmer
// error and panics.
func WERList(hypotheses, references []string) WERResult {
	if len(hypotheses) != len(references) {
		exceptions.Panicf("textmetrics.WERList: %d hypotheses vs %d references", len(hypotheses), len(references))
	}
	var res WERResult
	for i, hyp := range hypotheses {
		subs, dels, ins := editOps(strings.Fields(hyp), strings.Fields(references[i]))
		res.Substitutions += subs
		res.Deletions += dels
		res.Insertions += ins
		res.RefTokens += len(strings.Fields(references[i]))
	}
	if res.RefTokens == 0 {
		return res
	}
	n := float64(res.RefTokens)
	res.SubRate = 100 * float64(res.Substitutions) / n
	res.DelRate = 100 * float64(res.Deletions) / n
	res.InsRate = 100 * float64(res.Insertions) / n
	res.WER = res.SubRate + res.DelRate + res.InsRate
	return res
}

// editOps returns the substitution/deletion/insertion counts of a
// minimal edit script turning ref into hyp. Deletions are reference
// tokens the hypothesis missed, insertions are extra hypothesis tokens.
func editOps(hyp, ref []string) (subs, dels, ins int) {
	type cell struct {
		cost             int
		subs, dels, inss int
	}
	prev := make([]cell, len(hyp)+1)
	curr := make([]cell, len(hyp)+1)
	for j := 1; j <= len(hyp); j++ {
		prev[j] = cell{cost: j, inss: j}
	}
	for i := 1; i <= len(ref); i++ {
		curr[0] = cell{cost: i, dels: i}
		for j := 1; j <= len(hyp); j++ {
			if ref[i-1] == hyp[j-1] {
				curr[j] = prev[j-1]
				continue
			}
			sub := prev[j-1]
			del := prev[j]
			insert := curr[j-1]
			switch {
			case sub.cost <= del.cost && sub.cost <= insert.cost:
				curr[j] = cell{cost: sub.cost + 1, subs: sub.subs + 1, dels: sub.dels, inss: sub.inss}
			case del.cost <= insert.cost:
				curr[j] = cell{cost: del.cost + 1, subs: del.subs, dels: del.dels + 1, inss: del.inss}
			default:
				curr[j] = cell{cost: insert.cost + 1, subs: insert.subs, dels: insert.dels, inss: insert.inss + 1}
			}
		}
		prev, curr = curr, prev
	}
	final := prev[len(hyp)]
	return final.subs, final.dels, final.inss
}
