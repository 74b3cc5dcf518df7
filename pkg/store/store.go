/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package store

import (
	"context"
	"time"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// JobFilter narrows job list and count queries. Zero values mean the
// dimension is not filtered.
type JobFilter struct {
	ProjectId      string
	UserId         string
	QueueId        string
	VdcId          string
	ClusterId      string
	Executor       string
	Statuses       []types.JobStatus
	FinishedBefore time.Time
	IncludeDeleted bool
	OrderBy        []string
	Limit          int
	Offset         int
}

// Store is the persistent control-plane state. All counter mutations
// happen inside Atomic; reads inside Atomic observe and lock current
// rows so concurrent transitions on the same entities serialize.
type Store interface {
	// Atomic runs fn in a single transaction. Entity reads made through
	// tx take row locks; the transaction commits when fn returns nil and
	// rolls back otherwise.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	CreateJob(ctx context.Context, job *types.Job) error
	GetJob(ctx context.Context, jobId string) (*types.Job, error)
	UpdateJob(ctx context.Context, job *types.Job) error
	ListJobs(ctx context.Context, filter JobFilter) ([]*types.Job, error)
	CountJobs(ctx context.Context, filter JobFilter) (int, error)
	SetJobDeleted(ctx context.Context, jobId string) error
	// NextQueuePosition returns max(queue_position)+1 over the queue's
	// non-terminal jobs, starting at 1 for an empty queue.
	NextQueuePosition(ctx context.Context, queueId string) (int, error)

	CreateQueue(ctx context.Context, queue *types.JobQueue) error
	GetQueue(ctx context.Context, queueId string) (*types.JobQueue, error)
	GetQueueByName(ctx context.Context, projectId, name string) (*types.JobQueue, error)
	UpdateQueue(ctx context.Context, queue *types.JobQueue) error
	ListQueues(ctx context.Context, projectId string) ([]*types.JobQueue, error)
	SetQueueDeleted(ctx context.Context, queueId string) error

	CreateProjectQuota(ctx context.Context, quota *types.ProjectQuota) error
	GetProjectQuota(ctx context.Context, projectId string) (*types.ProjectQuota, error)
	UpdateProjectQuota(ctx context.Context, quota *types.ProjectQuota) error
	ListProjectQuotas(ctx context.Context) ([]*types.ProjectQuota, error)

	CreateVdc(ctx context.Context, vdc *types.Vdc) error
	GetVdc(ctx context.Context, vdcId string) (*types.Vdc, error)
	UpdateVdc(ctx context.Context, vdc *types.Vdc) error
	ListVdcs(ctx context.Context) ([]*types.Vdc, error)

	CreateCluster(ctx context.Context, cluster *types.Cluster) error
	GetCluster(ctx context.Context, clusterId string) (*types.Cluster, error)
	UpdateCluster(ctx context.Context, cluster *types.Cluster) error
	ListClusters(ctx context.Context, vdcId string) ([]*types.Cluster, error)

	CreateProjectVdcQuota(ctx context.Context, quota *types.ProjectVdcQuota) error
	GetProjectVdcQuota(ctx context.Context, projectId, vdcId string) (*types.ProjectVdcQuota, error)
	UpdateProjectVdcQuota(ctx context.Context, quota *types.ProjectVdcQuota) error
	ListProjectVdcQuotas(ctx context.Context, vdcId string) ([]*types.ProjectVdcQuota, error)

	Close()
}
