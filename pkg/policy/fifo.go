/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package policy

import (
	"context"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// fifoPolicy dispatches in arrival order.
type fifoPolicy struct{}

// NewFifoPolicy creates the first-in-first-out policy.
func NewFifoPolicy() Policy {
	return &fifoPolicy{}
}

func (p *fifoPolicy) Name() string {
	return KindFifo
}

// SelectNext picks the minimum queue position, breaking ties by the
// earliest enqueue time.
func (p *fifoPolicy) SelectNext(ctx context.Context, queue *types.JobQueue, pending []*types.Job) (*types.Job, error) {
	var best *types.Job
	for _, job := range pending {
		if best == nil || fifoLess(job, best) {
			best = job
		}
	}
	return best, nil
}

// ShouldPreempt never nominates a victim.
func (p *fifoPolicy) ShouldPreempt(ctx context.Context, running []*types.Job, incoming *types.Job) *types.Job {
	return nil
}
