/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package preload describes the contract for the dynamic-linker
// preload shim: a LD_PRELOAD (or Android linker namespace) library
// that intercepts an application's own mmap(2)/munmap(2) calls via
// PLT hooking and redirects file-backed requests through the agent's
// mmap_file hook before falling back to the original libc symbols.
// Building that shim is out of scope here — it is necessarily a cgo
// or pure-C component loaded into a foreign process's address space —
// but this package fixes the Go-side shape of the hooks the shim
// records. The agent exposes Go-level OnMmap/OnMunmap hooks; it has no
// cgo //export entry points.
package preload

// MmapFunc and MunmapFunc mirror the original mmap(2)/munmap(2)
// signatures the shim intercepts, matching the PLT hook typedefs
// (mmap_func_t, munmap_func_t) from the reference implementation so a
// C caller's argument order needs no translation at the boundary.
type MmapFunc func(addr uintptr, length uintptr, prot, flags, fd int, offset int64) (uintptr, error)
type MunmapFunc func(addr, length uintptr) error

// Hooks is what the preload shim installs once at load time: the
// original libc symbols it intercepted, recorded so BigCache's
// mapping façade can fall back to them for any request it bypasses.
type Hooks interface {
	// SetMmapHook records the real mmap(2) so a bypassed request can
	// still be satisfied normally.
	SetMmapHook(original MmapFunc)
	// SetMunmapHook records the real munmap(2).
	SetMunmapHook(original MunmapFunc)
}
