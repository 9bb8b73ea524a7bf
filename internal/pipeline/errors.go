// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import "errors"

var (
	// ErrInvalidConfig rejects a pipeline whose configuration cannot
	// produce a meaningful run.
	ErrInvalidConfig = errors.New("invalid pipeline configuration")

	// ErrDiscoveryUnavailable marks a run that failed because the paper
	// source could not be queried. No later stage runs: an unreachable
	// index is indistinguishable from a quiet topic, so a partial result
	// would be misleading.
	ErrDiscoveryUnavailable = errors.New("discovery unavailable")

	// ErrRunInProgress rejects a Run call while a previous run is still
	// executing.
	ErrRunInProgress = errors.New("a run is already in progress")
)
