/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"k8s.io/klog/v2"

	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/resources"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// resourceQuotaProvisioner is implemented by the kubernetes quota
// provider; other providers need no backing object.
type resourceQuotaProvisioner interface {
	CreateResourceQuota(ctx context.Context, projectId string, limits resources.Resources, maxConcurrent int) error
}

// CreateQueue registers a new per-project queue.
func (s *Service) CreateQueue(ctx context.Context, queue *types.JobQueue) error {
	if queue == nil || queue.Name == "" || queue.ProjectId == "" {
		return commonerrors.NewBadRequest("queue name and project_id are required")
	}
	if queue.QueueId == "" {
		queue.QueueId = uuid.NewString()
	}
	return s.store.CreateQueue(ctx, queue)
}

// UpdateQueue persists changed queue settings.
func (s *Service) UpdateQueue(ctx context.Context, queue *types.JobQueue) error {
	if queue == nil || queue.QueueId == "" {
		return commonerrors.NewBadRequest("queue id is required")
	}
	return s.store.UpdateQueue(ctx, queue)
}

// GetQueue returns one queue by id.
func (s *Service) GetQueue(ctx context.Context, queueId string) (*types.JobQueue, error) {
	return s.store.GetQueue(ctx, queueId)
}

// ListQueues returns the queues of a project, all projects when empty.
func (s *Service) ListQueues(ctx context.Context, projectId string) ([]*types.JobQueue, error) {
	return s.store.ListQueues(ctx, projectId)
}

// DeleteQueue soft-deletes a queue. A queue still holding live jobs
// cannot be deleted.
func (s *Service) DeleteQueue(ctx context.Context, queueId string) error {
	live, err := s.store.CountJobs(ctx, store.JobFilter{
		QueueId:  queueId,
		Statuses: []types.JobStatus{types.JobQueued, types.JobRunning},
	})
	if err != nil {
		return err
	}
	if live > 0 {
		return commonerrors.NewForbidden(fmt.Sprintf("queue %s still has %d live jobs", queueId, live))
	}
	return s.store.SetQueueDeleted(ctx, queueId)
}

// CreateProjectQuota provisions a project's quota row and, when the
// admission authority lives in Kubernetes, the backing ResourceQuota.
func (s *Service) CreateProjectQuota(ctx context.Context, projectQuota *types.ProjectQuota) error {
	if projectQuota == nil || projectQuota.ProjectId == "" {
		return commonerrors.NewBadRequest("project_id is required")
	}
	if err := s.store.CreateProjectQuota(ctx, projectQuota); err != nil {
		return err
	}
	if provisioner, ok := s.provider.(resourceQuotaProvisioner); ok {
		if err := provisioner.CreateResourceQuota(ctx, projectQuota.ProjectId, projectQuota.Limit(), projectQuota.MaxConcurrent); err != nil {
			klog.ErrorS(err, "failed to provision backing resource quota", "project", projectQuota.ProjectId)
		}
	}
	return nil
}

// UpdateProjectQuota changes a project's limits. Usage counters are
// owned by the dispatch path and the audit sweep, so only the limit
// columns are taken from the request.
func (s *Service) UpdateProjectQuota(ctx context.Context, updated *types.ProjectQuota) error {
	if updated == nil || updated.ProjectId == "" {
		return commonerrors.NewBadRequest("project_id is required")
	}
	return s.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		row, err := tx.GetProjectQuota(ctx, updated.ProjectId)
		if err != nil {
			return err
		}
		row.EnforceQuota = updated.EnforceQuota
		row.CpuLimitMilli = updated.CpuLimitMilli
		row.MemoryLimitBytes = updated.MemoryLimitBytes
		row.GpuLimit = updated.GpuLimit
		row.MaxConcurrent = updated.MaxConcurrent
		row.MaxTraining = updated.MaxTraining
		row.MaxInference = updated.MaxInference
		row.MaxWorkflow = updated.MaxWorkflow
		return tx.UpdateProjectQuota(ctx, row)
	})
}

// GetProjectQuota returns a project's quota row.
func (s *Service) GetProjectQuota(ctx context.Context, projectId string) (*types.ProjectQuota, error) {
	return s.store.GetProjectQuota(ctx, projectId)
}

// CreateVdc registers a virtual data center.
func (s *Service) CreateVdc(ctx context.Context, vdc *types.Vdc) error {
	if vdc == nil || vdc.Name == "" {
		return commonerrors.NewBadRequest("vdc name is required")
	}
	if vdc.VdcId == "" {
		vdc.VdcId = uuid.NewString()
	}
	return s.store.CreateVdc(ctx, vdc)
}

// UpdateVdc persists changed VDC settings.
func (s *Service) UpdateVdc(ctx context.Context, vdc *types.Vdc) error {
	if vdc == nil || vdc.VdcId == "" {
		return commonerrors.NewBadRequest("vdc id is required")
	}
	return s.store.UpdateVdc(ctx, vdc)
}

// GetVdc returns one VDC by id.
func (s *Service) GetVdc(ctx context.Context, vdcId string) (*types.Vdc, error) {
	return s.store.GetVdc(ctx, vdcId)
}

// ListVdcs returns all VDCs.
func (s *Service) ListVdcs(ctx context.Context) ([]*types.Vdc, error) {
	return s.store.ListVdcs(ctx)
}

// CreateProjectVdcQuota grants a project an allocation inside a VDC.
func (s *Service) CreateProjectVdcQuota(ctx context.Context, allocation *types.ProjectVdcQuota) error {
	if allocation == nil || allocation.ProjectId == "" || allocation.VdcId == "" {
		return commonerrors.NewBadRequest("project_id and vdc_id are required")
	}
	if _, err := s.store.GetVdc(ctx, allocation.VdcId); err != nil {
		return err
	}
	return s.store.CreateProjectVdcQuota(ctx, allocation)
}

// UpdateProjectVdcQuota changes an allocation's limits; usage counters
// stay untouched, same as UpdateProjectQuota.
func (s *Service) UpdateProjectVdcQuota(ctx context.Context, updated *types.ProjectVdcQuota) error {
	if updated == nil || updated.ProjectId == "" || updated.VdcId == "" {
		return commonerrors.NewBadRequest("project_id and vdc_id are required")
	}
	return s.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		row, err := tx.GetProjectVdcQuota(ctx, updated.ProjectId, updated.VdcId)
		if err != nil {
			return err
		}
		row.Priority = updated.Priority
		row.EnforceQuota = updated.EnforceQuota
		row.CpuLimitMilli = updated.CpuLimitMilli
		row.MemoryLimitBytes = updated.MemoryLimitBytes
		row.GpuLimit = updated.GpuLimit
		row.MaxConcurrent = updated.MaxConcurrent
		row.MaxTraining = updated.MaxTraining
		row.MaxInference = updated.MaxInference
		row.MaxWorkflow = updated.MaxWorkflow
		return tx.UpdateProjectVdcQuota(ctx, row)
	})
}

// RegisterCluster adds a backend target to a VDC.
func (s *Service) RegisterCluster(ctx context.Context, cluster *types.Cluster) error {
	if cluster == nil || cluster.Name == "" {
		return commonerrors.NewBadRequest("cluster name is required")
	}
	switch types.Executor(cluster.ClusterType) {
	case types.ExecutorKubernetes, types.ExecutorSlurm:
	default:
		return commonerrors.NewBadRequest(fmt.Sprintf("unknown cluster type %q", cluster.ClusterType))
	}
	if cluster.VdcId.Valid {
		if _, err := s.store.GetVdc(ctx, cluster.VdcId.String); err != nil {
			return err
		}
	}
	if cluster.ClusterId == "" {
		cluster.ClusterId = uuid.NewString()
	}
	if cluster.Status == "" {
		cluster.Status = string(types.ClusterHealthy)
	}
	return s.store.CreateCluster(ctx, cluster)
}

// UpdateCluster persists changed cluster settings.
func (s *Service) UpdateCluster(ctx context.Context, cluster *types.Cluster) error {
	if cluster == nil || cluster.ClusterId == "" {
		return commonerrors.NewBadRequest("cluster id is required")
	}
	return s.store.UpdateCluster(ctx, cluster)
}

// ListClusters returns the clusters of a VDC, all clusters when empty.
func (s *Service) ListClusters(ctx context.Context, vdcId string) ([]*types.Cluster, error) {
	return s.store.ListClusters(ctx, vdcId)
}

// ClusterHeartbeat records a liveness report from a cluster agent. The
// selector treats a cluster whose heartbeat goes stale as ineligible.
func (s *Service) ClusterHeartbeat(ctx context.Context, clusterId string, status types.ClusterStatus, used resources.Resources) error {
	if clusterId == "" {
		return commonerrors.NewBadRequest("cluster id is required")
	}
	return s.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		cluster, err := tx.GetCluster(ctx, clusterId)
		if err != nil {
			return err
		}
		cluster.Status = string(status)
		cluster.SetUsed(used)
		cluster.LastHeartbeat = pq.NullTime{Time: s.clock.Now(), Valid: true}
		return tx.UpdateCluster(ctx, cluster)
	})
}
