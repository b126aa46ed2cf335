package worker

import "errors"

// ErrTaskPanicked wraps a panic recovered from a task.
var ErrTaskPanicked = errors.New("task panicked")
