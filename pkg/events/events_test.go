/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

func TestPublishFansOutInOrder(t *testing.T) {
	p := NewPublisher()
	var seen []string
	p.Subscribe(HandlerFunc(func(ctx context.Context, change *JobStatusChange) {
		seen = append(seen, "first:"+change.JobId)
	}))
	p.Subscribe(HandlerFunc(func(ctx context.Context, change *JobStatusChange) {
		seen = append(seen, "second:"+change.JobId)
	}))

	p.Publish(context.Background(), &JobStatusChange{JobId: "job-1"})
	assert.Equal(t, []string{"first:job-1", "second:job-1"}, seen)
}

func TestPublishIsolatesPanickingHandler(t *testing.T) {
	p := NewPublisher()
	var delivered bool
	p.Subscribe(HandlerFunc(func(ctx context.Context, change *JobStatusChange) {
		panic("subscriber bug")
	}))
	p.Subscribe(HandlerFunc(func(ctx context.Context, change *JobStatusChange) {
		delivered = true
	}))

	require.NotPanics(t, func() {
		p.Publish(context.Background(), &JobStatusChange{JobId: "job-1"})
	})
	assert.True(t, delivered)
}

func TestNewJobStatusChangeRunProjection(t *testing.T) {
	job := &types.Job{
		JobId:     "job-1",
		ProjectId: "proj-a",
		UserId:    "alice",
		JobType:   types.JobTypeTraining,
		RunId:     store.NullString("run-7"),
	}
	change := NewJobStatusChange(job, types.JobRunning, types.JobSucceeded, "")
	assert.Equal(t, "run-7", change.RunId)
	assert.Equal(t, types.RunStateFinished, change.RunState)
	assert.False(t, change.Timestamp.IsZero())

	// QUEUED has no run-state projection.
	change = NewJobStatusChange(job, types.JobPending, types.JobQueued, "")
	assert.Equal(t, types.RunState(""), change.RunState)

	// A job without a linked run projects nothing.
	job.RunId = store.NullString("")
	change = NewJobStatusChange(job, types.JobRunning, types.JobSucceeded, "")
	assert.Empty(t, change.RunId)
}
