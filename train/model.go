// Copyright 2026 The VisLang Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"github.com/vislang/slt/types/tensors"
)

// Output is the result of one forward pass. It is ephemeral: the
// drivers consume it per batch and discard it.
type Output struct {
	// TotalLoss is the scalar training loss of the batch.
	TotalLoss float64

	// GlossLogits maps recognition head names to their [batch, frames,
	// vocab] logits. Models with a single head use one entry; the
	// evaluation driver scores every head and reports the best.
	GlossLogits map[string]*tensors.Tensor

	// InputLengths gives the number of valid logit frames per sample,
	// after whatever temporal subsampling the model applies.
	InputLengths []int

	// State is whatever the model needs back to generate translation
	// text for this batch (e.g. encoder memory). Opaque to the drivers.
	State any
}

// Model is the forward-pass surface the drivers depend on. The model's
// internals (architecture, loss composition, device) are not this
// package's concern.
type Model interface {
	// Forward runs one forward pass over the batch.
	Forward(batch *Batch) (*Output, error)

	// SetTraining switches between training and inference mode (gradient
	// tracking, dropout, etc.) and returns the previous mode, so scoped
	// switches can restore it.
	SetTraining(training bool) (previous bool)
}

// BackpropModel is a Model that can back-propagate the loss of its last
// forward pass. The training driver requires it.
type BackpropModel interface {
	Model

	// Backward back-propagates from the last Forward's total loss,
	// accumulating gradients for the optimizer.
	Backward() error
}

// GenerateConfig configures translation text generation. The zero value
// means the model's defaults.
type GenerateConfig struct {
	// MaxLength bounds the generated sequence length. 0 means the model
	// default.
	MaxLength int

	// BeamSize is the generation beam width. 0 means the model default.
	BeamSize int

	// LengthPenalty rescales beam scores by length. 0 means no penalty.
	LengthPenalty float64
}

// Generator is the text-generation entry point of a translation-capable
// model.
type Generator interface {
	// GenerateText decodes translation text from the transformer state of
	// a forward pass, one string per sample.
	GenerateText(state any, cfg GenerateConfig) ([]string, error)
}

// Optimizer updates model parameters from accumulated gradients.
type Optimizer interface {
	// ZeroGrad clears accumulated gradients.
	ZeroGrad()

	// Step applies one parameter update.
	Step()

	// ClipGradNorm rescales gradients so their global norm is at most
	// maxNorm, returning the pre-clip norm.
	ClipGradNorm(maxNorm float64) float64

	// LearningRate returns the current learning rate of the first
	// parameter group.
	LearningRate() float64
}
