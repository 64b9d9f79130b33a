/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

//go:build !linux

package faulthandler

import (
	"github.com/pkg/errors"

	"github.com/bigcache-project/bigcache/pkg/bigcache/loader"
	"github.com/bigcache-project/bigcache/pkg/errdefs"
)

// Handler is the non-Linux stub: userfaultfd is a Linux-only facility,
// so every method here fails with ErrUnsupportedPlatform.
type Handler struct{}

func New(bundle *loader.Bundle, cfg Config) (*Handler, error) {
	return nil, errors.Wrap(errdefs.ErrUnsupportedPlatform, "faulthandler: userfaultfd requires linux")
}

func (h *Handler) RegisterRegion(base, size uintptr, originPath string, originOffsetBase uint64) (*Region, error) {
	return nil, errors.Wrap(errdefs.ErrUnsupportedPlatform, "faulthandler: userfaultfd requires linux")
}

func (h *Handler) UnregisterRegion(base uintptr) error {
	return errors.Wrap(errdefs.ErrUnsupportedPlatform, "faulthandler: userfaultfd requires linux")
}

func (h *Handler) Start() error {
	return errors.Wrap(errdefs.ErrUnsupportedPlatform, "faulthandler: userfaultfd requires linux")
}

func (h *Handler) Stop() error {
	return errors.Wrap(errdefs.ErrUnsupportedPlatform, "faulthandler: userfaultfd requires linux")
}

func (h *Handler) Destroy() error {
	return errors.Wrap(errdefs.ErrUnsupportedPlatform, "faulthandler: userfaultfd requires linux")
}

func (h *Handler) State() State {
	return StateDestroyed
}

func (h *Handler) Stats() Stats {
	return Stats{}
}
