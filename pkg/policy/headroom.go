/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package policy

import (
	"context"
	"sync"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/resources"
)

// HeadroomTracker hands the capacity the orchestrator observes for the
// queue it is currently scheduling to the backfill policy. The
// orchestrator writes it before each queue's selection loop.
type HeadroomTracker struct {
	mu        sync.Mutex
	available resources.Resources
}

// NewHeadroomTracker creates an empty tracker.
func NewHeadroomTracker() *HeadroomTracker {
	return &HeadroomTracker{}
}

// Set records the capacity available to the queue under scheduling.
func (t *HeadroomTracker) Set(available resources.Resources) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.available = available
}

// Get reports the last recorded capacity.
func (t *HeadroomTracker) Get(ctx context.Context) resources.Resources {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.available
}
