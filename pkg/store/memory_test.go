/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

func newJob(jobId, projectId, queueId string, status types.JobStatus, position int) *types.Job {
	return &types.Job{
		JobId:         jobId,
		Name:          jobId,
		ProjectId:     projectId,
		UserId:        "u1",
		JobType:       types.JobTypeTraining,
		Executor:      types.ExecutorKubernetes,
		QueueId:       NullString(queueId),
		Status:        status,
		QueuePosition: position,
		CreationTime:  NullTime(time.Now().UTC()),
	}
}

// TestJobCRUD tests basic job persistence semantics
func TestJobCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	job := newJob("j1", "p1", "q1", types.JobQueued, 1)
	require.NoError(t, s.CreateJob(ctx, job))
	assert.True(t, commonerrors.IsAlreadyExist(s.CreateJob(ctx, newJob("j1", "p1", "q1", types.JobQueued, 1))))

	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ProjectId)

	// a mutation without Update must not leak into the store
	got.Status = types.JobRunning
	again, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, types.JobQueued, again.Status)

	got.Status = types.JobRunning
	require.NoError(t, s.UpdateJob(ctx, got))
	again, err = s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, types.JobRunning, again.Status)

	_, err = s.GetJob(ctx, "missing")
	assert.True(t, commonerrors.IsNotFound(err))

	require.NoError(t, s.SetJobDeleted(ctx, "j1"))
	jobs, err := s.ListJobs(ctx, JobFilter{ProjectId: "p1"})
	require.NoError(t, err)
	assert.Empty(t, jobs)
	jobs, err = s.ListJobs(ctx, JobFilter{ProjectId: "p1", IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

// TestListJobsFilter tests the filter dimensions and ordering
func TestListJobsFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i := 1; i <= 3; i++ {
		job := newJob(fmt.Sprintf("q-%d", i), "p1", "q1", types.JobQueued, i)
		job.EnqueuedAt = NullTime(time.Date(2026, 8, 1, 10, i, 0, 0, time.UTC))
		require.NoError(t, s.CreateJob(ctx, job))
	}
	running := newJob("r-1", "p1", "q1", types.JobRunning, 0)
	require.NoError(t, s.CreateJob(ctx, running))
	other := newJob("o-1", "p2", "q2", types.JobQueued, 1)
	require.NoError(t, s.CreateJob(ctx, other))

	jobs, err := s.ListJobs(ctx, JobFilter{
		QueueId:  "q1",
		Statuses: []types.JobStatus{types.JobQueued},
		OrderBy:  []string{"queue_position asc"},
	})
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "q-1", jobs[0].JobId)
	assert.Equal(t, "q-3", jobs[2].JobId)

	cnt, err := s.CountJobs(ctx, JobFilter{ProjectId: "p1", Statuses: []types.JobStatus{types.JobRunning}})
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)

	next, err := s.NextQueuePosition(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, 4, next)

	// terminal jobs do not hold their position
	done, err := s.GetJob(ctx, "q-3")
	require.NoError(t, err)
	done.Status = types.JobCancelled
	require.NoError(t, s.UpdateJob(ctx, done))
	next, err = s.NextQueuePosition(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, 3, next)
}

// TestAtomicRollback tests that a failed transaction leaves no trace
func TestAtomicRollback(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateProjectQuota(ctx, &types.ProjectQuota{ProjectId: "p1", CpuLimitMilli: 4000}))

	err := s.Atomic(ctx, func(ctx context.Context, tx Store) error {
		quota, err := tx.GetProjectQuota(ctx, "p1")
		if err != nil {
			return err
		}
		quota.CpuUsedMilli = 2000
		if err = tx.UpdateProjectQuota(ctx, quota); err != nil {
			return err
		}
		if err = tx.CreateJob(ctx, newJob("j1", "p1", "q1", types.JobQueued, 1)); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	quota, err := s.GetProjectQuota(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), quota.CpuUsedMilli)
	_, err = s.GetJob(ctx, "j1")
	assert.True(t, commonerrors.IsNotFound(err))
}

// TestAtomicCommit tests that a successful transaction persists all writes
func TestAtomicCommit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateQueue(ctx, &types.JobQueue{QueueId: "q1", Name: "default", ProjectId: "p1", Enabled: true}))

	err := s.Atomic(ctx, func(ctx context.Context, tx Store) error {
		queue, err := tx.GetQueue(ctx, "q1")
		if err != nil {
			return err
		}
		queue.PendingJobs++
		queue.TotalJobs++
		if err = tx.UpdateQueue(ctx, queue); err != nil {
			return err
		}
		return tx.CreateJob(ctx, newJob("j1", "p1", "q1", types.JobQueued, 1))
	})
	require.NoError(t, err)

	queue, err := s.GetQueue(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, 1, queue.PendingJobs)
	job, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, types.JobQueued, job.Status)
}

// TestQueueByName tests project-scoped queue lookup
func TestQueueByName(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateQueue(ctx, &types.JobQueue{QueueId: "q1", Name: "default", ProjectId: "p1"}))
	require.NoError(t, s.CreateQueue(ctx, &types.JobQueue{QueueId: "q2", Name: "default", ProjectId: "p2"}))

	queue, err := s.GetQueueByName(ctx, "p2", "default")
	require.NoError(t, err)
	assert.Equal(t, "q2", queue.QueueId)

	_, err = s.GetQueueByName(ctx, "p3", "default")
	assert.True(t, commonerrors.IsNotFound(err))
}

// TestProjectVdcQuotaUniqueness tests the (project, vdc) uniqueness constraint
func TestProjectVdcQuotaUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateProjectVdcQuota(ctx, &types.ProjectVdcQuota{ProjectId: "p1", VdcId: "v1"}))
	assert.True(t, commonerrors.IsAlreadyExist(s.CreateProjectVdcQuota(ctx, &types.ProjectVdcQuota{ProjectId: "p1", VdcId: "v1"})))
	require.NoError(t, s.CreateProjectVdcQuota(ctx, &types.ProjectVdcQuota{ProjectId: "p1", VdcId: "v2"}))

	quotas, err := s.ListProjectVdcQuotas(ctx, "v1")
	require.NoError(t, err)
	assert.Len(t, quotas, 1)
}
