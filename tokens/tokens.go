// Copyright 2026 The VisLang Authors. SPDX-License-Identifier: Apache-2.0

// Package tokens converts between symbol-index sequences and text.
package tokens

import (
	"strings"
)

// UnknownToken is rendered for ids outside the vocabulary.
const UnknownToken = "<unk>"

// Tokenizer decodes symbol-index sequences into text.
//
// LowerCase reports whether the tokenizer produces lower-cased text; the
// evaluation driver normalizes hypotheses and references to upper case
// before scoring when it does.
type Tokenizer interface {
	// BatchDecode maps each id sequence to its text form.
	BatchDecode(ids [][]int32) []string

	// LowerCase reports whether decoded text is lower-cased.
	LowerCase() bool
}

// Vocabulary is a Tokenizer backed by a fixed word list: id i decodes to
// words[i], and decoded sequences are space-joined.
type Vocabulary struct {
	words     []string
	byWord    map[string]int32
	lowerCase bool
}

// NewVocabulary creates a tokenizer over the given word list.
func NewVocabulary(words []string) *Vocabulary {
	v := &Vocabulary{
		words:  append([]string{}, words...),
		byWord: make(map[string]int32, len(words)),
	}
	for i, w := range v.words {
		v.byWord[w] = int32(i)
	}
	return v
}

// WithLowerCase configures the vocabulary to emit lower-cased words.
// It returns the vocabulary so calls can be chained.
func (v *Vocabulary) WithLowerCase(lowerCase bool) *Vocabulary {
	v.lowerCase = lowerCase
	return v
}

// Len returns the vocabulary size.
func (v *Vocabulary) Len() int { return len(v.words) }

// Word returns the word for an id, or UnknownToken if out of range.
func (v *Vocabulary) Word(id int32) string {
	if id < 0 || int(id) >= len(v.words) {
		return UnknownToken
	}
	if v.lowerCase {
		return strings.ToLower(v.words[id])
	}
	return v.words[id]
}

// Lookup returns the id of a word and whether it is in the vocabulary.
func (v *Vocabulary) Lookup(word string) (int32, bool) {
	id, ok := v.byWord[word]
	return id, ok
}

// Decode maps one id sequence to its space-joined text form.
func (v *Vocabulary) Decode(ids []int32) string {
	words := make([]string, len(ids))
	for i, id := range ids {
		words[i] = v.Word(id)
	}
	return strings.Join(words, " ")
}

// BatchDecode implements Tokenizer.
func (v *Vocabulary) BatchDecode(ids [][]int32) []string {
	texts := make([]string, len(ids))
	for i, seq := range ids {
		texts[i] = v.Decode(seq)
	}
	return texts
}

// LowerCase implements Tokenizer.
func (v *Vocabulary) LowerCase() bool { return v.lowerCase }
