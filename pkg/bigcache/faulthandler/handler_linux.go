/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

//go:build linux

package faulthandler

import (
	"encoding/binary"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/containerd/log"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/bigcache-project/bigcache/internal/constant"
	"github.com/bigcache-project/bigcache/pkg/bigcache/format"
	"github.com/bigcache-project/bigcache/pkg/bigcache/loader"
	"github.com/bigcache-project/bigcache/pkg/errdefs"
)

// uffd_msg is defined by the kernel as a native-endian struct; every
// real userfaultfd(2) target (x86-64, arm64) is little-endian.
var hostEndian = binary.LittleEndian

// golang.org/x/sys/unix has no UFFDIO_* wrappers; the raw ioctl numbers
// below are the kernel's _IOWR/_IOR encodings for linux/userfaultfd.h,
// following the hand-defined constants used for the same purpose in
// other userfaultfd-driving Go code in the wild.
const (
	_UFFD_API = 0xAA

	_UFFDIO_API        = 0xc018aa3f
	_UFFDIO_REGISTER   = 0xc020aa00
	_UFFDIO_UNREGISTER = 0x8010aa01
	_UFFDIO_COPY       = 0xc028aa03
	_UFFDIO_ZEROPAGE   = 0xc020aa04

	_UFFD_EVENT_PAGEFAULT = 0x12
	_UFFD_EVENT_FORK      = 0x13
	_UFFD_EVENT_REMAP     = 0x14
	_UFFD_EVENT_REMOVE    = 0x15
	_UFFD_EVENT_UNMAP     = 0x16

	_UFFD_PAGEFAULT_FLAG_WRITE = 1 << 0
	_UFFD_PAGEFAULT_FLAG_WP    = 1 << 1

	_UFFDIO_REGISTER_MODE_MISSING = 1 << 0

	uffdMsgSize = 32
)

type uffdioAPI struct {
	api      uint64
	features uint64
	ioctls   uint64
}

var _ [24]byte = [unsafe.Sizeof(uffdioAPI{})]byte{}

type uffdioRange struct {
	start uint64
	len   uint64
}

type uffdioRegister struct {
	rng    uffdioRange
	mode   uint64
	ioctls uint64
}

var _ [32]byte = [unsafe.Sizeof(uffdioRegister{})]byte{}

type uffdioCopy struct {
	dst   uint64
	src   uint64
	len   uint64
	mode  uint64
	copy_ int64
}

var _ [40]byte = [unsafe.Sizeof(uffdioCopy{})]byte{}

type uffdioZeropage struct {
	rng      uffdioRange
	mode     uint64
	zeropage int64
}

var _ [32]byte = [unsafe.Sizeof(uffdioZeropage{})]byte{}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Handler is the Linux userfaultfd-backed page-fault handler. One
// Handler owns one userfaultfd descriptor and one event-loop goroutine
// pinned to its own OS thread; Region bookkeeping and Stats are
// protected by separate mutexes, matching the concurrency split in
// the bundle loader.
type Handler struct {
	bundle *loader.Bundle
	cfg    Config

	uffd       int
	zeroPage   []byte
	shutdownRd int
	shutdownWr int

	regionsMu sync.Mutex
	regions   []*Region

	statsMu sync.Mutex
	stats   Stats

	state   int32 // atomic State
	joined  chan struct{}
}

// New opens /dev/userfaultfd-equivalent via the userfaultfd(2) syscall
// in non-blocking, close-on-exec mode and negotiates the UFFDIO_API
// handshake. The handler starts in StateCreated; call Start to launch
// the event loop.
func New(bundle *loader.Bundle, cfg Config) (*Handler, error) {
	if bundle == nil {
		return nil, errors.Wrap(errdefs.ErrInvalidInput, "faulthandler: nil bundle")
	}

	fd, _, errno := unix.Syscall(unix.SYS_USERFAULTFD, uintptr(unix.O_CLOEXEC|unix.O_NONBLOCK), 0, 0)
	if errno != 0 {
		return nil, errors.Wrapf(errdefs.ErrKernel, "faulthandler: userfaultfd(2): %v", errno)
	}
	uffd := int(fd)

	api := uffdioAPI{api: _UFFD_API}
	if err := ioctl(uffd, _UFFDIO_API, unsafe.Pointer(&api)); err != nil {
		unix.Close(uffd)
		return nil, errors.Wrapf(errdefs.ErrKernel, "faulthandler: UFFDIO_API: %v", err)
	}

	rd, wr, err := newShutdownPipe()
	if err != nil {
		unix.Close(uffd)
		return nil, err
	}

	return &Handler{
		bundle:     bundle,
		cfg:        cfg,
		uffd:       uffd,
		zeroPage:   make([]byte, constant.PageSize),
		shutdownRd: rd,
		shutdownWr: wr,
		joined:     make(chan struct{}),
	}, nil
}

func newShutdownPipe() (int, int, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return 0, 0, errors.Wrapf(errdefs.ErrKernel, "faulthandler: pipe2: %v", err)
	}
	return fds[0], fds[1], nil
}

func (h *Handler) State() State {
	return State(atomic.LoadInt32(&h.state))
}

// RegisterRegion registers [base, base+size) with UFFDIO_REGISTER in
// MISSING mode and records the region's backing source for fault
// resolution. base must already be page-aligned; size is rounded up
// to a page boundary.
func (h *Handler) RegisterRegion(base, size uintptr, originPath string, originOffsetBase uint64) (*Region, error) {
	if base&uintptr(constant.PageMask) != 0 {
		return nil, errors.Wrapf(errdefs.ErrInvalidInput, "faulthandler: base %#x is not page-aligned", base)
	}
	alignedSize := uintptr(format.PageAlign(uint64(size)))

	reg := uffdioRegister{
		rng:  uffdioRange{start: uint64(base), len: uint64(alignedSize)},
		mode: _UFFDIO_REGISTER_MODE_MISSING,
	}
	if err := ioctl(h.uffd, _UFFDIO_REGISTER, unsafe.Pointer(&reg)); err != nil {
		return nil, errors.Wrapf(errdefs.ErrKernel, "faulthandler: UFFDIO_REGISTER %#x+%#x: %v", base, alignedSize, err)
	}

	r := &Region{Base: base, Size: alignedSize, OriginPath: originPath, OriginOffsetBase: originOffsetBase}
	h.regionsMu.Lock()
	h.regions = append(h.regions, r)
	h.regionsMu.Unlock()
	return r, nil
}

// UnregisterRegion reverses RegisterRegion.
func (h *Handler) UnregisterRegion(base uintptr) error {
	h.regionsMu.Lock()
	idx := -1
	for i, r := range h.regions {
		if r.Base == base {
			idx = i
			break
		}
	}
	var size uintptr
	if idx >= 0 {
		size = h.regions[idx].Size
		h.regions = append(h.regions[:idx], h.regions[idx+1:]...)
	}
	h.regionsMu.Unlock()

	if idx < 0 {
		return errors.Wrapf(errdefs.ErrNotFound, "faulthandler: no region registered at %#x", base)
	}

	rng := uffdioRange{start: uint64(base), len: uint64(size)}
	if err := ioctl(h.uffd, _UFFDIO_UNREGISTER, unsafe.Pointer(&rng)); err != nil {
		return errors.Wrapf(errdefs.ErrKernel, "faulthandler: UFFDIO_UNREGISTER %#x: %v", base, err)
	}
	return nil
}

func (h *Handler) regionFor(addr uintptr) *Region {
	h.regionsMu.Lock()
	defer h.regionsMu.Unlock()
	for _, r := range h.regions {
		if r.contains(addr) {
			return r
		}
	}
	return nil
}

// Start launches the event-loop goroutine. The goroutine locks itself
// to its OS thread for the lifetime of the handler, the same way the
// teacher pins its fuse request-processing loop.
func (h *Handler) Start() error {
	if !atomic.CompareAndSwapInt32(&h.state, int32(StateCreated), int32(StateStarted)) {
		return errors.Wrap(errdefs.ErrInvalidInput, "faulthandler: Start called out of order")
	}
	go h.run()
	return nil
}

// Stop requests the event loop to exit and blocks until it has joined.
func (h *Handler) Stop() error {
	if !atomic.CompareAndSwapInt32(&h.state, int32(StateRunning), int32(StateStopRequested)) &&
		!atomic.CompareAndSwapInt32(&h.state, int32(StateStarted), int32(StateStopRequested)) {
		return nil
	}
	var b [1]byte
	unix.Write(h.shutdownWr, b[:])
	<-h.joined
	atomic.StoreInt32(&h.state, int32(StateJoined))
	return nil
}

// Destroy releases the userfaultfd descriptor and shutdown pipe. Stop
// must have returned (or Start never called) before Destroy runs.
func (h *Handler) Destroy() error {
	unix.Close(h.shutdownRd)
	unix.Close(h.shutdownWr)
	err := unix.Close(h.uffd)
	atomic.StoreInt32(&h.state, int32(StateDestroyed))
	if err != nil {
		return errors.Wrapf(errdefs.ErrKernel, "faulthandler: close uffd: %v", err)
	}
	return nil
}

func (h *Handler) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(h.joined)

	atomic.CompareAndSwapInt32(&h.state, int32(StateStarted), int32(StateRunning))

	fds := []unix.PollFd{
		{Fd: int32(h.uffd), Events: unix.POLLIN},
		{Fd: int32(h.shutdownRd), Events: unix.POLLIN},
	}
	const pollTimeoutMillis = 1000
	buf := make([]byte, uffdMsgSize*16)

	for {
		n, err := unix.Poll(fds, pollTimeoutMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.L.Errorf("faulthandler: poll: %v", err)
			continue
		}
		if n == 0 {
			continue
		}
		if fds[1].Revents&unix.POLLIN != 0 {
			return
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		nr, err := unix.Read(h.uffd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			log.L.Errorf("faulthandler: read uffd: %v", err)
			continue
		}
		for off := 0; off+uffdMsgSize <= nr; off += uffdMsgSize {
			h.handleMsg(buf[off : off+uffdMsgSize])
		}
	}
}

func (h *Handler) handleMsg(msg []byte) {
	event := msg[0]
	switch event {
	case _UFFD_EVENT_PAGEFAULT:
		flags := hostEndian.Uint64(msg[8:16])
		addr := uintptr(hostEndian.Uint64(msg[16:24]))
		h.handleFault(addr, flags)
	case _UFFD_EVENT_FORK, _UFFD_EVENT_REMAP, _UFFD_EVENT_REMOVE, _UFFD_EVENT_UNMAP:
		log.L.Debugf("faulthandler: dropping event type %#x", event)
	default:
		log.L.Debugf("faulthandler: unknown event type %#x", event)
	}
}

// resolvePage maps a faulting page address to its source bytes: a hit
// borrows straight from the bundle's mapping, a miss falls back to the
// handler's zero page. Kept free of syscalls so it can be exercised
// directly in tests without a real userfaultfd.
func resolvePage(bundle *loader.Bundle, region *Region, pageAddr uintptr, zeroPage []byte) (src []byte, hit bool) {
	fileOffset := region.OriginOffsetBase + uint64(pageAddr-region.Base)
	if bundleOff, ok := bundle.LookupOffset(region.OriginPath, fileOffset); ok {
		data := bundle.Data()
		if bundleOff+constant.PageSize <= uint64(len(data)) {
			return data[bundleOff : bundleOff+constant.PageSize], true
		}
	}
	return zeroPage, false
}

func (h *Handler) handleFault(addr uintptr, flags uint64) {
	h.bumpStat(func(s *Stats) { s.TotalFaults++ })

	pageAddr := addr &^ uintptr(constant.PageMask)
	region := h.regionFor(pageAddr)
	if region == nil {
		log.L.Warnf("faulthandler: fault at %#x outside any registered region", addr)
		return
	}

	src, hit := resolvePage(h.bundle, region, pageAddr, h.zeroPage)

	if hit {
		h.bumpStat(func(s *Stats) { s.CacheHits++ })
	} else if !h.cfg.EnableZeroFill {
		h.bumpStat(func(s *Stats) { s.CacheMisses++ })
		return
	} else {
		h.bumpStat(func(s *Stats) { s.ZeroFills++ })
	}

	cp := uffdioCopy{
		dst:  uint64(pageAddr),
		src:  uint64(uintptr(unsafe.Pointer(&src[0]))),
		len:  constant.PageSize,
		mode: 0,
	}
	if err := ioctl(h.uffd, _UFFDIO_COPY, unsafe.Pointer(&cp)); err != nil {
		if err == unix.EEXIST {
			// another thread's fault on the same page already resolved it.
			return
		}
		h.bumpStat(func(s *Stats) { s.CopyErrors++ })
		log.L.Warnf("faulthandler: UFFDIO_COPY %#x: %v", pageAddr, err)
	}
}

func (h *Handler) bumpStat(f func(s *Stats)) {
	if !h.cfg.EnableStats {
		return
	}
	h.statsMu.Lock()
	f(&h.stats)
	h.statsMu.Unlock()
}

// Stats returns a point-in-time snapshot of the fault counters.
func (h *Handler) Stats() Stats {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return h.stats
}
