/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package errdefs

import (
	"github.com/pkg/errors"
)

// Error kinds from spec.md §7. Call sites wrap one of these sentinels with
// github.com/pkg/errors so the kind survives errors.Is while the wrapped
// message carries call-specific context.
var (
	// ErrInvalidInput covers null paths, unaligned addresses, and
	// too-many-files/too-long-path conditions. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidBundle covers bad magic, unsupported version, size
	// mismatch, or CRC mismatch. Surfaced from Load and Verify; never
	// auto-recovered.
	ErrInvalidBundle = errors.New("invalid bundle")

	// ErrIO covers open/read/write/map failures. Warm-up degrades this to
	// a logged warning; build and load propagate it.
	ErrIO = errors.New("i/o error")

	// ErrOutOfMemory covers allocation or hash-table growth failure.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrKernel covers unexpected ioctl failures or a fault-handle read
	// returning short. The fault handler logs and continues; it never
	// crashes the process over this.
	ErrKernel = errors.New("kernel interface error")

	// ErrCacheMiss marks a fault that had to be resolved by the zero-fill
	// policy: either synthesized (enabled) or deliberately left
	// unsatisfied (disabled), letting the application's fault recur.
	ErrCacheMiss = errors.New("cache miss")

	// ErrUnsupportedPlatform is returned by every faulthandler entry
	// point on non-Linux builds, where userfaultfd does not exist.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrAlreadyExists marks an operation that would duplicate state the
	// caller already holds (e.g. registering the same region twice).
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound marks a lookup (region, bundle entry) that found nothing.
	ErrNotFound = errors.New("not found")

	// ErrClosed marks an operation attempted on a handler/bundle that has
	// already been torn down.
	ErrClosed = errors.New("already closed")
)

// IsInvalidInput returns true if err (or a wrapped cause) is ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsInvalidBundle returns true if err (or a wrapped cause) is ErrInvalidBundle.
func IsInvalidBundle(err error) bool { return errors.Is(err, ErrInvalidBundle) }

// IsIO returns true if err (or a wrapped cause) is ErrIO.
func IsIO(err error) bool { return errors.Is(err, ErrIO) }

// IsOutOfMemory returns true if err (or a wrapped cause) is ErrOutOfMemory.
func IsOutOfMemory(err error) bool { return errors.Is(err, ErrOutOfMemory) }

// IsKernel returns true if err (or a wrapped cause) is ErrKernel.
func IsKernel(err error) bool { return errors.Is(err, ErrKernel) }

// IsCacheMiss returns true if err (or a wrapped cause) is ErrCacheMiss.
func IsCacheMiss(err error) bool { return errors.Is(err, ErrCacheMiss) }

// IsAlreadyExists returns true if err (or a wrapped cause) is ErrAlreadyExists.
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

// IsNotFound returns true if err (or a wrapped cause) is ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUnsupportedPlatform returns true if err (or a wrapped cause) is ErrUnsupportedPlatform.
func IsUnsupportedPlatform(err error) bool { return errors.Is(err, ErrUnsupportedPlatform) }

// IsClosed returns true if err (or a wrapped cause) is ErrClosed.
func IsClosed(err error) bool { return errors.Is(err, ErrClosed) }
