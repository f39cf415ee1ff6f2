// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orcherr defines the orchestrator's error taxonomy.
//
// Every component-internal error belongs to one of seven kinds. Recoverable
// kinds (unreachable backend, backend rejection, JSON invalid, deadline
// exceeded) are handled locally by the component that raised them and never
// need to reach this package directly; the sentinels here exist for the
// kinds that legitimately escape a component and must be recognized by a
// caller via errors.Is.
package orcherr

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per taxonomy kind that can escape a component.
var (
	// ErrUnreachable marks a TCP/HTTP failure on a probe or inference call.
	ErrUnreachable = errors.New("backend unreachable")

	// ErrBackendRejection marks a non-2xx response from a backend that was
	// not recovered by the format-retry path.
	ErrBackendRejection = errors.New("backend rejected request")

	// ErrSchemaInvalid marks JSON output that failed validation and could
	// not be repaired within the configured attempt budget.
	ErrSchemaInvalid = errors.New("output failed schema validation")

	// ErrNoCapacity marks the case where no healthy node or cluster can
	// serve a request. Fatal for the current request.
	ErrNoCapacity = errors.New("no healthy backend available")

	// ErrCoordinatorStart marks a failed RPC coordinator subprocess launch.
	// Fatal for the current request; the coordinator moves to Failed.
	ErrCoordinatorStart = errors.New("rpc coordinator failed to start")

	// ErrDeadlineExceeded marks a per-task or total deadline cancellation.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrInvariant marks an internal invariant violation. Always logged at
	// error level before being surfaced; registry state must not be
	// silently corrupted when this occurs.
	ErrInvariant = errors.New("internal invariant violation")
)

// Wrap attaches component, node, and task context to err without losing the
// ability to unwrap to one of the sentinels above via errors.Is.
func Wrap(err error, component, nodeURL, taskID string) error {
	if err == nil {
		return nil
	}
	switch {
	case nodeURL != "" && taskID != "":
		return fmt.Errorf("%s: node=%s task=%s: %w", component, nodeURL, taskID, err)
	case nodeURL != "":
		return fmt.Errorf("%s: node=%s: %w", component, nodeURL, err)
	case taskID != "":
		return fmt.Errorf("%s: task=%s: %w", component, taskID, err)
	default:
		return fmt.Errorf("%s: %w", component, err)
	}
}
