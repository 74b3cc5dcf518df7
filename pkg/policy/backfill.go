/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package policy

import (
	"context"
	"sort"

	slurmdriver "github.com/AMD-AIG-AIMA/FLEET/pkg/driver/slurm"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/resources"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// backfillPolicy wraps a base policy. When the base pick does not fit
// the current headroom, the capacity stays reserved for it and smaller
// bounded-runtime jobs are run in the gap instead.
type backfillPolicy struct {
	base     Policy
	headroom func(ctx context.Context) resources.Resources
}

// NewBackfillPolicy wraps the base policy with backfilling against the
// given headroom supplier.
func NewBackfillPolicy(base Policy, headroom func(ctx context.Context) resources.Resources) Policy {
	return &backfillPolicy{base: base, headroom: headroom}
}

func (p *backfillPolicy) Name() string {
	return KindBackfill + ":" + p.base.Name()
}

func (p *backfillPolicy) SelectNext(ctx context.Context, queue *types.JobQueue, pending []*types.Job) (*types.Job, error) {
	pick, err := p.base.SelectNext(ctx, queue, pending)
	if err != nil || pick == nil || p.headroom == nil {
		return pick, err
	}
	available := p.headroom(ctx)
	if pick.Request().Leq(available) {
		return pick, nil
	}

	// The pick waits for capacity. Fill the gap with the oldest job
	// that fits and whose runtime is bounded, so it cannot delay the
	// reserved pick indefinitely.
	candidates := make([]*types.Job, 0, len(pending))
	for _, job := range pending {
		if job == pick {
			continue
		}
		if job.Request().Leq(available) && hasBoundedRuntime(job) {
			candidates = append(candidates, job)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return fifoLess(candidates[i], candidates[j]) })
	return candidates[0], nil
}

func (p *backfillPolicy) ShouldPreempt(ctx context.Context, running []*types.Job, incoming *types.Job) *types.Job {
	return p.base.ShouldPreempt(ctx, running, incoming)
}

// hasBoundedRuntime reports whether the job declares a nonzero time
// limit in its executor configuration.
func hasBoundedRuntime(job *types.Job) bool {
	cfg, err := job.GetExecutorConfig()
	if err != nil {
		return false
	}
	switch v := cfg["time_limit"].(type) {
	case string:
		minutes, err := slurmdriver.ParseTimeLimit(v)
		return err == nil && minutes > 0
	case float64:
		return v > 0
	}
	return false
}
