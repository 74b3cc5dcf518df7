/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package quota

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/resources"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// localProvider accounts quota in the ProjectQuota table. Reserve and
// Release mutate counters under a row lock; a project without a quota
// row is unmetered and always admitted.
type localProvider struct {
	store store.Store
}

// NewLocalProvider creates the store-backed provider.
func NewLocalProvider(s store.Store) Provider {
	return &localProvider{store: s}
}

// GetQuota returns the projection of the project's quota row.
func (p *localProvider) GetQuota(ctx context.Context, projectId string) (*Snapshot, error) {
	quota, err := p.store.GetProjectQuota(ctx, projectId)
	if err != nil {
		return nil, err
	}
	return snapshotOf(quota), nil
}

func snapshotOf(quota *types.ProjectQuota) *Snapshot {
	return &Snapshot{
		Limit:         quota.Limit(),
		Used:          quota.Used(),
		MaxConcurrent: quota.MaxConcurrent,
		RunningJobs:   quota.RunningJobs,
		EnforceQuota:  quota.EnforceQuota,
	}
}

// Check is the read-only projection of Reserve. A passing Check does
// not guarantee the later Reserve succeeds.
func (p *localProvider) Check(ctx context.Context, projectId string, request resources.Resources, jobType types.JobType) bool {
	quota, err := p.store.GetProjectQuota(ctx, projectId)
	if err != nil {
		return commonerrors.IsNotFound(err)
	}
	ok, _ := checkQuotaRow(quota, request, jobType)
	return ok
}

// Reserve re-reads the quota row under lock, tests the request and
// increments the counters in one transaction. Counters move even when
// enforce_quota is off so usage stays observable.
func (p *localProvider) Reserve(ctx context.Context, projectId string, request resources.Resources, jobType types.JobType) (bool, string, error) {
	admitted := false
	reason := ""
	err := p.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		quota, err := tx.GetProjectQuota(ctx, projectId)
		if err != nil {
			if commonerrors.IsNotFound(err) {
				admitted = true
				return nil
			}
			return err
		}
		if ok, why := checkQuotaRow(quota, request, jobType); !ok {
			reason = why
			return nil
		}
		quota.SetUsed(quota.Used().Add(request))
		quota.RunningJobs++
		quota.AddTypeRunning(jobType, 1)
		if err = tx.UpdateProjectQuota(ctx, quota); err != nil {
			return err
		}
		admitted = true
		return nil
	})
	if err != nil {
		return false, "", err
	}
	if !admitted {
		klog.V(4).Infof("quota reservation rejected for project %s: %s", projectId, reason)
	}
	return admitted, reason, nil
}

// Release decrements the counters, saturating at zero so a duplicate
// release cannot drive them negative.
func (p *localProvider) Release(ctx context.Context, projectId string, request resources.Resources, jobType types.JobType) error {
	return p.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		quota, err := tx.GetProjectQuota(ctx, projectId)
		if err != nil {
			return commonerrors.IgnoreNotFound(err)
		}
		quota.SetUsed(quota.Used().Sub(request))
		if quota.RunningJobs > 0 {
			quota.RunningJobs--
		}
		quota.AddTypeRunning(jobType, -1)
		return tx.UpdateProjectQuota(ctx, quota)
	})
}

// Sync is a no-op; the table is the authority.
func (p *localProvider) Sync(ctx context.Context) error {
	return nil
}

// checkQuotaRow applies the full admission test including per-type caps.
func checkQuotaRow(quota *types.ProjectQuota, request resources.Resources, jobType types.JobType) (bool, string) {
	if !quota.EnforceQuota {
		return true, ""
	}
	if ok, reason := checkSnapshot(snapshotOf(quota), request); !ok {
		return false, reason
	}
	if cap := quota.TypeCap(jobType); cap > 0 && quota.TypeRunning(jobType) >= cap {
		return false, fmt.Sprintf("insufficient quota: %s jobs", jobType)
	}
	return true, ""
}
