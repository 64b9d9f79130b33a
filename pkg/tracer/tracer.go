/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package tracer describes the contract for the access-trace producer
// that observes which file pages an application touches during launch
// and emits the CSV rows packer.LoadFromCSV consumes. Building that
// producer (a syscall-interception tracer, akin in shape to the
// teacher's pkg/fanotify.Fanotifier: spawn, then drain a stream of
// observed paths) is out of scope here; this package only fixes the
// interface so the rest of the system has something concrete to build
// against.
package tracer

import "context"

// AccessEvent is one observed touch of a file-backed page.
type AccessEvent struct {
	Path        string
	Offset      uint64
	AccessOrder uint32
}

// Tracer observes application launch and reports the pages it faults
// in, in access order. A concrete implementation would typically wrap
// fanotify or ptrace the way the teacher's analyzer/fanotify package
// wraps fanotify for the snapshotter's own prefetch-list generation.
type Tracer interface {
	// Start begins observing the target process or mount namespace.
	Start(ctx context.Context) error
	// Events returns the channel of observed accesses; it is closed
	// when the tracer stops producing events, whether by Stop or by
	// the traced process exiting on its own.
	Events() <-chan AccessEvent
	// Stop ends tracing and releases any kernel-side resources
	// (fanotify fd, ptrace attachment, etc).
	Stop() error
}
