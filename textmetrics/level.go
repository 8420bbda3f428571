// Copyright 2026 The VisLang Authors. SPDX-License-Identifier: Apache-2.0

// Package textmetrics implements the corpus-level text similarity
// scores used to evaluate gloss recognition and translation: word error
// rate (WERList), BLEU-1..4 (Bleu) and ROUGE-L (Rouge).
package textmetrics

import "strings"

// Level selects the token granularity for BLEU and ROUGE: whitespace
// separated words or individual characters.
type Level string

const (
	Word Level = "word"
	Char Level = "char"
)

// Tokenize splits a sentence at this level. Char level yields one token
// per non-space rune.
func (l Level) Tokenize(s string) []string {
	if l == Char {
		tokens := make([]string, 0, len(s))
		for _, r := range s {
			if r == ' ' {
				continue
			}
			tokens = append(tokens, string(r))
		}
		return tokens
	}
	return strings.Fields(s)
}
