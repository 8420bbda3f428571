// Copyright 2026 The VisLang Authors. SPDX-License-Identifier: Apache-2.0

// Package train implements the two drivers of a gloss-recognition /
// translation model: an epoch-level training loop (Loop) and an
// epoch-level evaluation pass (Evaluator) that decodes model outputs
// into text and aggregates corpus-level metrics.
//
// The model, optimizer, tokenizer, CTC decoder and metric functions are
// external collaborators behind small interfaces; the drivers are
// sequential glue that iterates a Dataset, calls out to them and
// aggregates scalars into a metrics.Set.
package train

import (
	"io"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/vislang/slt/train/metrics"
)

// Priority for hooks, the lowest values are run first. Defaults to 0,
// but negative values are ok.
type Priority int

// OnStartFn is the type of OnStart hooks.
type OnStartFn func(loop *Loop, ds Dataset) error

// OnStepFn is the type of OnStep hooks, called after each batch.
type OnStepFn func(loop *Loop) error

// OnEndFn is the type of OnEnd hooks.
type OnEndFn func(loop *Loop) error

// Loop runs one training pass per RunEpoch call, mutating the model
// parameters through the optimizer and aggregating per-batch scalars.
//
// In itself it doesn't do much beyond the gradient-descent step
// sequence, but one can attach functionality to it -- progress bars,
// plotting tools, early-stopping strategies. The public attributes are
// meant for reading only.
type Loop struct {
	// Model being trained.
	Model BackpropModel

	// Optimizer applying parameter updates.
	Optimizer Optimizer

	// ClipNorm is the global gradient norm ceiling applied before each
	// optimizer step. Defaults to 1.0.
	ClipNorm float64

	// Epochs is the total number of epochs of the run, used in progress
	// headers. Optional.
	Epochs int

	// Meters aggregates the pass's scalar metrics. Recreated at the
	// start of every RunEpoch; hooks may read it during the pass.
	Meters *metrics.Set

	// LoopStep currently being executed, starting from StartStep.
	LoopStep int

	// StartStep is the value of LoopStep at the start of the current
	// pass.
	StartStep int

	// EndStep is one-past the last step of the pass, or -1 when the
	// dataset does not report its length.
	EndStep int

	// Epoch being run, as passed to RunEpoch.
	Epoch int

	// TrainStepDurations collected during the pass.
	TrainStepDurations []time.Duration

	// SharedData allows cross-tools to publish and consume information.
	// Keys and semantics of their values are not specified by the loop.
	SharedData map[string]any

	// Registered hooks.
	onStart *priorityHooks[*hookWithName[OnStartFn]]
	onStep  *priorityHooks[*hookWithName[OnStepFn]]
	onEnd   *priorityHooks[*hookWithName[OnEndFn]]
}

// NewLoop creates a training loop for the given model and optimizer.
func NewLoop(model BackpropModel, optimizer Optimizer) *Loop {
	return &Loop{
		Model:      model,
		Optimizer:  optimizer,
		ClipNorm:   1.0,
		SharedData: make(map[string]any),
		onStart:    newPriorityHooks[*hookWithName[OnStartFn]](),
		onStep:     newPriorityHooks[*hookWithName[OnStepFn]](),
		onEnd:      newPriorityHooks[*hookWithName[OnEndFn]](),
	}
}

// OnStart adds a hook with the given priority and name (for error
// reporting) to the start of a pass.
func (loop *Loop) OnStart(name string, priority Priority, fn OnStartFn) {
	loop.onStart.Add(priority, &hookWithName[OnStartFn]{name: name, fn: fn})
}

// OnStep adds a hook called after each batch's optimizer step.
func (loop *Loop) OnStep(name string, priority Priority, fn OnStepFn) {
	loop.onStep.Add(priority, &hookWithName[OnStepFn]{name: name, fn: fn})
}

// OnEnd adds a hook called after the last batch of a pass.
func (loop *Loop) OnEnd(name string, priority Priority, fn OnEndFn) {
	loop.onEnd.Add(priority, &hookWithName[OnEndFn]{name: name, fn: fn})
}

func (loop *Loop) start(ds Dataset) (err error) {
	loop.onStart.Enumerate(func(hook *hookWithName[OnStartFn]) {
		if err != nil {
			// After the first error stop.
			return
		}
		err = hook.fn(loop, ds)
		if err != nil {
			err = errors.WithMessagef(err, "OnStart(hook %q)", hook.name)
		}
	})
	return
}

func (loop *Loop) stepHooks() (err error) {
	loop.onStep.Enumerate(func(hook *hookWithName[OnStepFn]) {
		if err != nil {
			return
		}
		err = hook.fn(loop)
		if err != nil {
			err = errors.WithMessagef(err, "OnStep(hook %q)", hook.name)
		}
	})
	return
}

func (loop *Loop) end() (err error) {
	loop.onEnd.Enumerate(func(hook *hookWithName[OnEndFn]) {
		if err != nil {
			return
		}
		err = hook.fn(loop)
		if err != nil {
			err = errors.WithMessagef(err, "OnEnd(hook %q)", hook.name)
		}
	})
	return
}

// RunEpoch runs exactly one training pass over the dataset: per batch
// it clears gradients, runs the forward pass, back-propagates, clips
// the global gradient norm to ClipNorm and applies one optimizer step,
// recording the batch loss and the current learning rate.
//
// A NaN or infinite loss interrupts the pass with a *DivergedError
// before the backward pass and the optimizer step, leaving parameters
// untouched by the offending batch.
//
// It returns the global average of every recorded metric.
func (loop *Loop) RunEpoch(ds Dataset, epoch int) (map[string]float64, error) {
	loop.Meters = metrics.NewSet()
	loop.Meters.AddMeter("loss", metrics.NewMeter(metrics.DefaultWindow))
	loop.Meters.AddMeter("lr", metrics.NewMeter(1).WithFormat("%.6f (%.6f)"))

	loop.Epoch = epoch
	loop.StartStep = loop.LoopStep
	loop.EndStep = -1
	if withLen, ok := ds.(HasLen); ok {
		loop.EndStep = loop.StartStep + withLen.Len()
	}
	loop.TrainStepDurations = loop.TrainStepDurations[:0]

	loop.Model.SetTraining(true)
	if err := loop.start(ds); err != nil {
		return nil, err
	}

	for {
		batch, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "Loop.RunEpoch(%d): failed reading from dataset %q (step=%d)",
				epoch, ds.Name(), loop.LoopStep)
		}
		if err = loop.step(batch); err != nil {
			return nil, err
		}
		loop.LoopStep++
	}

	if err := loop.end(); err != nil {
		return nil, errors.WithMessagef(err, "Loop.RunEpoch(%d): failed end (step=%d)", epoch, loop.LoopStep)
	}
	klog.V(1).Infof("Train epoch %d averaged results: %s", epoch, loop.Meters)
	return loop.Meters.GlobalAverages(), nil
}

func (loop *Loop) step(batch *Batch) error {
	startTime := time.Now()
	defer func() {
		loop.TrainStepDurations = append(loop.TrainStepDurations, time.Since(startTime))
	}()

	loop.Optimizer.ZeroGrad()
	output, err := loop.Model.Forward(batch)
	if err != nil {
		return errors.WithMessagef(err, "Loop.RunEpoch: forward pass failed (step=%d)", loop.LoopStep)
	}
	loss := output.TotalLoss
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return &DivergedError{Step: loop.LoopStep, Loss: loss}
	}
	if err = loop.Model.Backward(); err != nil {
		return errors.WithMessagef(err, "Loop.RunEpoch: backward pass failed (step=%d)", loop.LoopStep)
	}
	loop.Optimizer.ClipGradNorm(loop.ClipNorm)
	loop.Optimizer.Step()

	loop.Meters.Update("loss", loss)
	loop.Meters.Update("lr", loop.Optimizer.LearningRate())
	return loop.stepHooks()
}

// MedianTrainStepDuration returns the median duration of each training
// step. It returns 1 millisecond if no training step was recorded (to
// avoid potential division by 0).
//
// It sorts and mutates loop.TrainStepDurations.
func (loop *Loop) MedianTrainStepDuration() time.Duration {
	if len(loop.TrainStepDurations) == 0 {
		return time.Millisecond
	}
	times := append([]time.Duration{}, loop.TrainStepDurations...)
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times[len(times)/2]
}

// hookWithName stores a hook name and function.
type hookWithName[F any] struct {
	name string
	fn   F
}

// priorityHooks organizes hooks for type H per priority.
type priorityHooks[H any] struct {
	hooks map[Priority][]H
}

func newPriorityHooks[H any]() *priorityHooks[H] {
	return &priorityHooks[H]{hooks: make(map[Priority][]H)}
}

// Add hook at the given priority.
func (h *priorityHooks[H]) Add(priority Priority, hook H) {
	h.hooks[priority] = append(h.hooks[priority], hook)
}

// Enumerate calls fn for all registered hooks in priority order.
func (h *priorityHooks[H]) Enumerate(fn func(hook H)) {
	keys := make([]Priority, 0, len(h.hooks))
	for key := range h.hooks {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, key := range keys {
		for _, hook := range h.hooks[key] {
			fn(hook)
		}
	}
}
