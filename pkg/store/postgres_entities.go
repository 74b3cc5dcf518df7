/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package store

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// CreateQueue inserts a new queue row.
func (s *postgresStore) CreateQueue(ctx context.Context, queue *types.JobQueue) error {
	if queue == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	if err := s.orm(ctx).Create(queue).Error; err != nil {
		klog.ErrorS(err, "failed to insert queue", "id", queue.QueueId)
		return err
	}
	return nil
}

// GetQueue fetches one queue by id, locked for update inside a transaction.
func (s *postgresStore) GetQueue(ctx context.Context, queueId string) (*types.JobQueue, error) {
	queue := &types.JobQueue{}
	err := s.locked(s.orm(ctx)).Where("queue_id = ? AND is_deleted = false", queueId).First(queue).Error
	if err != nil {
		return nil, s.notFound(err, "JobQueue", queueId)
	}
	return queue, nil
}

// GetQueueByName fetches a project's queue by display name.
func (s *postgresStore) GetQueueByName(ctx context.Context, projectId, name string) (*types.JobQueue, error) {
	queue := &types.JobQueue{}
	err := s.locked(s.orm(ctx)).
		Where("project_id = ? AND name = ? AND is_deleted = false", projectId, name).
		First(queue).Error
	if err != nil {
		return nil, s.notFound(err, "JobQueue", name)
	}
	return queue, nil
}

// UpdateQueue writes the full queue row back by primary key.
func (s *postgresStore) UpdateQueue(ctx context.Context, queue *types.JobQueue) error {
	if queue == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	queue.UpdateTime = NullTime(time.Now().UTC())
	return s.orm(ctx).Save(queue).Error
}

// ListQueues returns a project's queues, all projects when empty.
func (s *postgresStore) ListQueues(ctx context.Context, projectId string) ([]*types.JobQueue, error) {
	var queues []*types.JobQueue
	tx := s.orm(ctx).Where("is_deleted = false")
	if projectId != "" {
		tx = tx.Where("project_id = ?", projectId)
	}
	err := tx.Order("priority desc, id asc").Find(&queues).Error
	return queues, err
}

// SetQueueDeleted soft-deletes a queue.
func (s *postgresStore) SetQueueDeleted(ctx context.Context, queueId string) error {
	result := s.orm(ctx).Model(&types.JobQueue{}).Where("queue_id = ?", queueId).
		Updates(map[string]interface{}{"is_deleted": true, "update_time": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return commonerrors.NewNotFound("JobQueue", queueId)
	}
	return nil
}

// CreateProjectQuota inserts a project quota row.
func (s *postgresStore) CreateProjectQuota(ctx context.Context, quota *types.ProjectQuota) error {
	if quota == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	return s.orm(ctx).Create(quota).Error
}

// GetProjectQuota fetches a project's single-tier quota, locked inside
// a transaction.
func (s *postgresStore) GetProjectQuota(ctx context.Context, projectId string) (*types.ProjectQuota, error) {
	quota := &types.ProjectQuota{}
	err := s.locked(s.orm(ctx)).Where("project_id = ?", projectId).First(quota).Error
	if err != nil {
		return nil, s.notFound(err, "ProjectQuota", projectId)
	}
	return quota, nil
}

// UpdateProjectQuota writes the quota row back by primary key.
func (s *postgresStore) UpdateProjectQuota(ctx context.Context, quota *types.ProjectQuota) error {
	if quota == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	quota.UpdateTime = NullTime(time.Now().UTC())
	return s.orm(ctx).Save(quota).Error
}

// ListProjectQuotas returns every project quota.
func (s *postgresStore) ListProjectQuotas(ctx context.Context) ([]*types.ProjectQuota, error) {
	var quotas []*types.ProjectQuota
	err := s.orm(ctx).Order("project_id asc").Find(&quotas).Error
	return quotas, err
}

// CreateVdc inserts a VDC row.
func (s *postgresStore) CreateVdc(ctx context.Context, vdc *types.Vdc) error {
	if vdc == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	return s.orm(ctx).Create(vdc).Error
}

// GetVdc fetches one VDC, locked inside a transaction.
func (s *postgresStore) GetVdc(ctx context.Context, vdcId string) (*types.Vdc, error) {
	vdc := &types.Vdc{}
	err := s.locked(s.orm(ctx)).Where("vdc_id = ?", vdcId).First(vdc).Error
	if err != nil {
		return nil, s.notFound(err, "Vdc", vdcId)
	}
	return vdc, nil
}

// UpdateVdc writes the VDC row back by primary key.
func (s *postgresStore) UpdateVdc(ctx context.Context, vdc *types.Vdc) error {
	if vdc == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	vdc.UpdateTime = NullTime(time.Now().UTC())
	return s.orm(ctx).Save(vdc).Error
}

// ListVdcs returns every VDC.
func (s *postgresStore) ListVdcs(ctx context.Context) ([]*types.Vdc, error) {
	var vdcs []*types.Vdc
	err := s.orm(ctx).Order("vdc_id asc").Find(&vdcs).Error
	return vdcs, err
}

// CreateCluster inserts a cluster row.
func (s *postgresStore) CreateCluster(ctx context.Context, cluster *types.Cluster) error {
	if cluster == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	return s.orm(ctx).Create(cluster).Error
}

// GetCluster fetches one cluster, locked inside a transaction.
func (s *postgresStore) GetCluster(ctx context.Context, clusterId string) (*types.Cluster, error) {
	cluster := &types.Cluster{}
	err := s.locked(s.orm(ctx)).Where("cluster_id = ?", clusterId).First(cluster).Error
	if err != nil {
		return nil, s.notFound(err, "Cluster", clusterId)
	}
	return cluster, nil
}

// UpdateCluster writes the cluster row back by primary key.
func (s *postgresStore) UpdateCluster(ctx context.Context, cluster *types.Cluster) error {
	if cluster == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	cluster.UpdateTime = NullTime(time.Now().UTC())
	return s.orm(ctx).Save(cluster).Error
}

// ListClusters returns a VDC's clusters, all clusters when vdcId is empty.
func (s *postgresStore) ListClusters(ctx context.Context, vdcId string) ([]*types.Cluster, error) {
	var clusters []*types.Cluster
	tx := s.orm(ctx)
	if vdcId != "" {
		tx = tx.Where("vdc_id = ?", vdcId)
	}
	err := tx.Order("cluster_id asc").Find(&clusters).Error
	return clusters, err
}

// CreateProjectVdcQuota inserts a two-tier quota row.
func (s *postgresStore) CreateProjectVdcQuota(ctx context.Context, quota *types.ProjectVdcQuota) error {
	if quota == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	return s.orm(ctx).Create(quota).Error
}

// GetProjectVdcQuota fetches the quota a project holds in one VDC,
// locked inside a transaction.
func (s *postgresStore) GetProjectVdcQuota(ctx context.Context, projectId, vdcId string) (*types.ProjectVdcQuota, error) {
	quota := &types.ProjectVdcQuota{}
	err := s.locked(s.orm(ctx)).
		Where("project_id = ? AND vdc_id = ?", projectId, vdcId).
		First(quota).Error
	if err != nil {
		return nil, s.notFound(err, "ProjectVdcQuota", projectId+"/"+vdcId)
	}
	return quota, nil
}

// UpdateProjectVdcQuota writes the quota row back by primary key.
func (s *postgresStore) UpdateProjectVdcQuota(ctx context.Context, quota *types.ProjectVdcQuota) error {
	if quota == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	quota.UpdateTime = NullTime(time.Now().UTC())
	return s.orm(ctx).Save(quota).Error
}

// ListProjectVdcQuotas returns the quotas inside one VDC, or all rows
// when vdcId is empty.
func (s *postgresStore) ListProjectVdcQuotas(ctx context.Context, vdcId string) ([]*types.ProjectVdcQuota, error) {
	var quotas []*types.ProjectVdcQuota
	tx := s.orm(ctx)
	if vdcId != "" {
		tx = tx.Where("vdc_id = ?", vdcId)
	}
	err := tx.Order("priority desc, project_id asc").Find(&quotas).Error
	return quotas, err
}
