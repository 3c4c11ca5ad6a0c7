package services

import (
	"errors"
	"fmt"
)

var (
	// ErrAdapterUnavailable marks a single model failing to score or
	// update. It is always recovered locally: the remaining models carry
	// the request or the batch.
	ErrAdapterUnavailable = errors.New("model adapter unavailable")

	// ErrInvalidWeightVector marks a weight vector that fails to sum to
	// one after clipping. This is a programming or configuration error and
	// is never silently renormalized a second time.
	ErrInvalidWeightVector = errors.New("invalid weight vector")

	// ErrUpdateTimeout marks an adapter update exceeding its bound. It is
	// a flavor of ErrAdapterUnavailable, so either sentinel matches it.
	ErrUpdateTimeout = fmt.Errorf("%w: update timed out", ErrAdapterUnavailable)

	// ErrUnknownExperiment marks an assignment request for an experiment
	// that was never defined. Surfaced to the caller, never defaulted.
	ErrUnknownExperiment = errors.New("unknown experiment")
)
