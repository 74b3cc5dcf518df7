/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package policy

import (
	"context"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// priorityPolicy dispatches the highest-priority pending job and can
// nominate low-priority running jobs for preemption. The threshold
// keeps small priority differences from causing churn.
type priorityPolicy struct {
	preemptThreshold int
}

// NewPriorityPolicy creates the priority policy with the given
// preemption threshold.
func NewPriorityPolicy(preemptThreshold int) Policy {
	return &priorityPolicy{preemptThreshold: preemptThreshold}
}

func (p *priorityPolicy) Name() string {
	return KindPriority
}

// SelectNext picks the maximum priority, breaking ties in FIFO order.
func (p *priorityPolicy) SelectNext(ctx context.Context, queue *types.JobQueue, pending []*types.Job) (*types.Job, error) {
	var best *types.Job
	for _, job := range pending {
		if best == nil || job.Priority > best.Priority ||
			(job.Priority == best.Priority && fifoLess(job, best)) {
			best = job
		}
	}
	return best, nil
}

// ShouldPreempt nominates the running job of minimum priority when the
// incoming job outranks it by at least the threshold.
func (p *priorityPolicy) ShouldPreempt(ctx context.Context, running []*types.Job, incoming *types.Job) *types.Job {
	var victim *types.Job
	for _, job := range running {
		if victim == nil || job.Priority < victim.Priority {
			victim = job
		}
	}
	if victim == nil || incoming.Priority < victim.Priority+p.preemptThreshold {
		return nil
	}
	return victim
}
