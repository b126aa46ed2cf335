package service

import (
	"errors"
	"fmt"

	"github.com/okian/callscore/internal/domain/model"
)

// Sentinel error kinds for the service lifecycle.
var (
	// ErrNotInitialized is returned by operations called before Init or Start.
	ErrNotInitialized = errors.New("service not initialized")
	// ErrRunInProgress is returned when an evaluation run is already active.
	ErrRunInProgress = fmt.Errorf("evaluation run already in progress: %w", model.ErrConflict)
)
