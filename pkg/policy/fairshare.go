/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package policy

import (
	"context"
	"time"

	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

const fairShareHistoryLimit = 1000

// Resource-time weights. GPUs dominate the score since they are the
// scarce dimension on training clusters.
const (
	weightCPUCore   = 1.0
	weightGPU       = 10.0
	weightMemoryGiB = 0.1
)

// fairSharePolicy scores each user by the resource-time they consumed
// inside the lookback window and dispatches the job of the least-served
// user. Ties fall back to FIFO order.
type fairSharePolicy struct {
	store  store.Store
	window time.Duration
	clock  clock.PassiveClock
}

// NewFairSharePolicy creates the fair-share policy with the given
// usage lookback window.
func NewFairSharePolicy(s store.Store, window time.Duration) Policy {
	return &fairSharePolicy{store: s, window: window, clock: clock.RealClock{}}
}

func (p *fairSharePolicy) Name() string {
	return KindFairShare
}

func (p *fairSharePolicy) SelectNext(ctx context.Context, queue *types.JobQueue, pending []*types.Job) (*types.Job, error) {
	if len(pending) == 0 {
		return nil, nil
	}
	usage, err := p.usageByUser(ctx, queue.ProjectId)
	if err != nil {
		return nil, err
	}
	var best *types.Job
	for _, job := range pending {
		if best == nil {
			best = job
			continue
		}
		jobScore, bestScore := usage[job.UserId], usage[best.UserId]
		if jobScore < bestScore || (jobScore == bestScore && fifoLess(job, best)) {
			best = job
		}
	}
	return best, nil
}

// ShouldPreempt never nominates a victim.
func (p *fairSharePolicy) ShouldPreempt(ctx context.Context, running []*types.Job, incoming *types.Job) *types.Job {
	return nil
}

// usageByUser sums weighted resource-time per user over the window.
// Running jobs count from their start (clamped to the window) to now;
// finished jobs count the overlap of their runtime with the window.
func (p *fairSharePolicy) usageByUser(ctx context.Context, projectId string) (map[string]float64, error) {
	now := p.clock.Now()
	windowStart := now.Add(-p.window)
	usage := map[string]float64{}

	running, err := p.store.ListJobs(ctx, store.JobFilter{
		ProjectId: projectId,
		Statuses:  []types.JobStatus{types.JobRunning},
	})
	if err != nil {
		return nil, err
	}
	finished, err := p.store.ListJobs(ctx, store.JobFilter{
		ProjectId: projectId,
		Statuses:  []types.JobStatus{types.JobSucceeded, types.JobFailed, types.JobCancelled, types.JobTimeout},
		OrderBy:   []string{"finished_at desc"},
		Limit:     fairShareHistoryLimit,
	})
	if err != nil {
		return nil, err
	}

	for _, job := range append(running, finished...) {
		if !job.StartedAt.Valid {
			continue
		}
		start := job.StartedAt.Time
		end := now
		if job.FinishedAt.Valid {
			end = job.FinishedAt.Time
		}
		if end.Before(windowStart) {
			continue
		}
		if start.Before(windowStart) {
			start = windowStart
		}
		if !end.After(start) {
			continue
		}
		seconds := end.Sub(start).Seconds()
		usage[job.UserId] += resourceScalar(job) * seconds
	}
	klog.V(5).Infof("fair-share usage for project %s: %v", projectId, usage)
	return usage, nil
}

// resourceScalar collapses a job's request triple into one number.
func resourceScalar(job *types.Job) float64 {
	request := job.Request()
	return request.CPUCores()*weightCPUCore +
		float64(request.GPU)*weightGPU +
		request.MemoryGiB()*weightMemoryGiB
}
