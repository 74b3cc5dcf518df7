/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/resources"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// Policy orders a queue's pending jobs. Implementations read their
// inputs and return a choice; they never mutate persistent state.
type Policy interface {
	Name() string
	// SelectNext returns the job to dispatch next, or nil when nothing
	// in the pending set should run.
	SelectNext(ctx context.Context, queue *types.JobQueue, pending []*types.Job) (*types.Job, error)
	// ShouldPreempt nominates a running victim for the incoming job,
	// or nil when no preemption is warranted.
	ShouldPreempt(ctx context.Context, running []*types.Job, incoming *types.Job) *types.Job
}

const (
	KindFifo      = "fifo"
	KindPriority  = "priority"
	KindFairShare = "fairshare"
	KindBackfill  = "backfill"
)

// Options carries the tunables and collaborators policies draw on.
type Options struct {
	Store store.Store
	// PreemptThreshold is the priority gap required before the
	// priority policy nominates a victim.
	PreemptThreshold int
	// FairShareWindow is the usage lookback for fair-share scoring.
	FairShareWindow time.Duration
	// Headroom reports the capacity currently available for dispatch;
	// the backfill policy consults it.
	Headroom func(ctx context.Context) resources.Resources
}

// New maps a configured policy name to its implementation. Backfill
// wraps a base policy named after a colon, e.g. "backfill:priority";
// a bare "backfill" wraps fifo.
func New(name string, opts Options) (Policy, error) {
	kind, base, _ := strings.Cut(name, ":")
	switch kind {
	case KindFifo, "":
		return NewFifoPolicy(), nil
	case KindPriority:
		return NewPriorityPolicy(opts.PreemptThreshold), nil
	case KindFairShare:
		return NewFairSharePolicy(opts.Store, opts.FairShareWindow), nil
	case KindBackfill:
		if base == "" {
			base = KindFifo
		}
		inner, err := New(base, opts)
		if err != nil {
			return nil, err
		}
		return NewBackfillPolicy(inner, opts.Headroom), nil
	default:
		return nil, fmt.Errorf("unknown scheduling policy %q", name)
	}
}

// fifoLess is the base ordering shared by the policies: lower queue
// position first, then earlier enqueue time.
func fifoLess(a, b *types.Job) bool {
	if a.QueuePosition != b.QueuePosition {
		return a.QueuePosition < b.QueuePosition
	}
	if a.EnqueuedAt.Valid && b.EnqueuedAt.Valid && !a.EnqueuedAt.Time.Equal(b.EnqueuedAt.Time) {
		return a.EnqueuedAt.Time.Before(b.EnqueuedAt.Time)
	}
	return a.Id < b.Id
}
