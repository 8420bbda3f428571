// Copyright 2026 The VisLang Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	stderrors "errors"
	"fmt"
)

// DivergedError reports that optimization diverged: the forward pass
// produced a NaN or infinite loss. The training driver returns it
// before the backward pass and the optimizer step, so model parameters
// are exactly as they were before the offending batch. The caller
// decides whether to abort, checkpoint, or retry with a smaller
// learning rate.
type DivergedError struct {
	// Step is the loop step at which the loss diverged.
	Step int

	// Loss is the offending loss value (NaN, +Inf or -Inf).
	Loss float64
}

func (e *DivergedError) Error() string {
	return fmt.Sprintf("training diverged at step %d: loss is %f", e.Step, e.Loss)
}

// IsDiverged reports whether err is (or wraps) a DivergedError.
func IsDiverged(err error) bool {
	var diverged *DivergedError
	return stderrors.As(err, &diverged)
}
