// Copyright 2026 The VisLang Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"github.com/vislang/slt/types/tensors"
)

// Batch is the unit of data yielded by a Dataset: a group of named
// samples with their input tensors and reference sequences. Drivers
// treat batches as read-only.
type Batch struct {
	// Names identifies each sample; results tables are keyed on them.
	Names []string

	// Inputs are the model input tensors. Their layout is a contract
	// between the dataset and the model, opaque to the drivers.
	Inputs []*tensors.Tensor

	// GlossRefs are the reference gloss sequences, one per sample.
	GlossRefs []string

	// TextRefs are the reference translation texts, one per sample.
	TextRefs []string
}

// Dataset provides data one batch at a time.
//
// The drivers pull batches strictly in order with no overlap between
// I/O and computation; any buffering or parallel prefetch belongs
// inside the Dataset implementation.
type Dataset interface {
	// Name identifies the dataset. Used for debugging, pretty-printing
	// and progress headers.
	Name() string

	// Reset restarts the dataset from the beginning. Can be called after
	// io.EOF is reached, for instance when running another evaluation on
	// a test dataset.
	Reset()

	// Yield returns the next batch, or io.EOF once the dataset is
	// exhausted. Any other error interrupts the pass and is returned to
	// the caller.
	Yield() (*Batch, error)
}

// HasLen allows a dataset to report its number of batches, which lets
// progress displays show bounds. It's optional.
type HasLen interface {
	// Len returns the number of batches in one pass.
	Len() int
}

// HasShortName allows a dataset to specify a short name (used when
// displaying a short version of metric names). It defaults to the first
// 3 letters of the dataset name.
//
// It's optional.
type HasShortName interface {
	// ShortName returns the short name of the dataset.
	ShortName() string
}
