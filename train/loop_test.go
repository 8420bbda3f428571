// Copyright 2026 The VisLang Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceDataset yields one pre-built batch per step.
type sliceDataset struct {
	name    string
	batches []*Batch
	next    int
}

func (ds *sliceDataset) Name() string { return ds.name }
func (ds *sliceDataset) Reset()       { ds.next = 0 }
func (ds *sliceDataset) Len() int     { return len(ds.batches) }

func (ds *sliceDataset) Yield() (*Batch, error) {
	if ds.next >= len(ds.batches) {
		return nil, io.EOF
	}
	batch := ds.batches[ds.next]
	ds.next++
	return batch, nil
}

// lossModel returns a scripted loss sequence, one value per forward
// call, and counts the calls it receives.
type lossModel struct {
	losses   []float64
	forwards int
	backward int
	training bool
}

func (m *lossModel) Forward(batch *Batch) (*Output, error) {
	loss := m.losses[m.forwards%len(m.losses)]
	m.forwards++
	return &Output{TotalLoss: loss}, nil
}

func (m *lossModel) Backward() error {
	m.backward++
	return nil
}

func (m *lossModel) SetTraining(training bool) bool {
	previous := m.training
	m.training = training
	return previous
}

type countingOptimizer struct {
	steps   int
	zeros   int
	clipped []float64
	lr      float64
}

func (o *countingOptimizer) ZeroGrad() { o.zeros++ }
func (o *countingOptimizer) Step()     { o.steps++ }

func (o *countingOptimizer) ClipGradNorm(maxNorm float64) float64 {
	o.clipped = append(o.clipped, maxNorm)
	return maxNorm
}

func (o *countingOptimizer) LearningRate() float64 { return o.lr }

func batchesOfSize(n int) []*Batch {
	batches := make([]*Batch, n)
	for i := range batches {
		batches[i] = &Batch{Names: []string{"sample"}}
	}
	return batches
}

func TestRunEpochAveragesLoss(t *testing.T) {
	model := &lossModel{losses: []float64{4, 2, 0, 6}}
	optimizer := &countingOptimizer{lr: 1e-3}
	loop := NewLoop(model, optimizer)
	ds := &sliceDataset{name: "train", batches: batchesOfSize(4)}

	averages, err := loop.RunEpoch(ds, 1)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, averages["loss"], 1e-9)
	assert.InDelta(t, 1e-3, averages["lr"], 1e-12)
	assert.Equal(t, 4, model.forwards)
	assert.Equal(t, 4, model.backward)
	assert.Equal(t, 4, optimizer.steps)
	assert.Equal(t, 4, optimizer.zeros)
	assert.True(t, model.training)
}

func TestRunEpochClipsWithConfiguredNorm(t *testing.T) {
	model := &lossModel{losses: []float64{1}}
	optimizer := &countingOptimizer{}
	loop := NewLoop(model, optimizer)
	loop.ClipNorm = 5
	ds := &sliceDataset{name: "train", batches: batchesOfSize(2)}

	_, err := loop.RunEpoch(ds, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 5}, optimizer.clipped)
}

func TestRunEpochDivergence(t *testing.T) {
	for _, badLoss := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		model := &lossModel{losses: []float64{1, badLoss, 1}}
		optimizer := &countingOptimizer{}
		loop := NewLoop(model, optimizer)
		ds := &sliceDataset{name: "train", batches: batchesOfSize(3)}

		_, err := loop.RunEpoch(ds, 1)
		require.Error(t, err)
		assert.True(t, IsDiverged(err))

		var diverged *DivergedError
		require.ErrorAs(t, err, &diverged)
		assert.Equal(t, 1, diverged.Step)

		// The offending batch must not reach the optimizer.
		assert.Equal(t, 1, model.backward)
		assert.Equal(t, 1, optimizer.steps)
	}
}

func TestLoopHookOrderAndPriorities(t *testing.T) {
	model := &lossModel{losses: []float64{1}}
	loop := NewLoop(model, &countingOptimizer{})
	ds := &sliceDataset{name: "train", batches: batchesOfSize(2)}

	var trace []string
	loop.OnStart("late", 10, func(loop *Loop, ds Dataset) error {
		trace = append(trace, "start-late")
		return nil
	})
	loop.OnStart("early", -10, func(loop *Loop, ds Dataset) error {
		trace = append(trace, "start-early")
		return nil
	})
	loop.OnStep("step", 0, func(loop *Loop) error {
		trace = append(trace, "step")
		return nil
	})
	loop.OnEnd("end", 0, func(loop *Loop) error {
		trace = append(trace, "end")
		return nil
	})

	_, err := loop.RunEpoch(ds, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"start-early", "start-late", "step", "step", "end"}, trace)
}

func TestEveryNSteps(t *testing.T) {
	model := &lossModel{losses: []float64{1}}
	loop := NewLoop(model, &countingOptimizer{})
	ds := &sliceDataset{name: "train", batches: batchesOfSize(7)}

	var calls []int
	EveryNSteps(loop, 3, "spy", 0, func(loop *Loop) error {
		calls = append(calls, loop.LoopStep)
		return nil
	})

	_, err := loop.RunEpoch(ds, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5}, calls)
}

func TestNTimesDuringLoop(t *testing.T) {
	model := &lossModel{losses: []float64{1}}
	loop := NewLoop(model, &countingOptimizer{})
	ds := &sliceDataset{name: "train", batches: batchesOfSize(10)}

	var calls []int
	NTimesDuringLoop(loop, 2, "spy", 0, func(loop *Loop) error {
		calls = append(calls, loop.LoopStep)
		return nil
	})

	_, err := loop.RunEpoch(ds, 1)
	require.NoError(t, err)

	// Spread over the pass, always including the last step.
	assert.Equal(t, []int{0, 4, 9}, calls)
}
