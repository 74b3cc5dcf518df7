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

// VdcManager layers the two-tier admission used when VDC routing is
// enabled: the VDC pool itself, then the project's allocation within
// it. Both reservations commit in one transaction.
type VdcManager struct {
	store store.Store
}

// NewVdcManager creates the manager.
func NewVdcManager(s store.Store) *VdcManager {
	return &VdcManager{store: s}
}

// Reserve admits the request against the VDC pool and the project's
// VDC allocation, incrementing both counter sets atomically. A project
// without an allocation in the VDC is rejected.
func (m *VdcManager) Reserve(ctx context.Context, projectId, vdcId string, request resources.Resources, jobType types.JobType) (bool, string, error) {
	admitted := false
	reason := ""
	err := m.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		vdc, err := tx.GetVdc(ctx, vdcId)
		if err != nil {
			return err
		}
		if !vdc.Enabled {
			reason = "vdc is disabled"
			return nil
		}
		limit, err := m.effectiveLimit(ctx, tx, vdc)
		if err != nil {
			return err
		}
		if why := exceededComponent(vdc.Used(), request, limit); why != "" {
			reason = "insufficient vdc capacity: " + why
			return nil
		}

		allocation, err := tx.GetProjectVdcQuota(ctx, projectId, vdcId)
		if err != nil {
			if commonerrors.IsNotFound(err) {
				reason = fmt.Sprintf("project %s has no allocation in vdc %s", projectId, vdcId)
				return nil
			}
			return err
		}
		if ok, why := checkVdcAllocation(allocation, request, jobType); !ok {
			reason = why
			return nil
		}

		vdc.SetUsed(vdc.Used().Add(request))
		if err = tx.UpdateVdc(ctx, vdc); err != nil {
			return err
		}
		allocation.SetUsed(allocation.Used().Add(request))
		allocation.RunningJobs++
		allocation.AddTypeRunning(jobType, 1)
		if err = tx.UpdateProjectVdcQuota(ctx, allocation); err != nil {
			return err
		}
		admitted = true
		return nil
	})
	if err != nil {
		return false, "", err
	}
	if !admitted {
		klog.V(4).Infof("vdc reservation rejected for project %s in vdc %s: %s", projectId, vdcId, reason)
	}
	return admitted, reason, nil
}

// Release decrements both counter sets, saturating at zero.
func (m *VdcManager) Release(ctx context.Context, projectId, vdcId string, request resources.Resources, jobType types.JobType) error {
	return m.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		vdc, err := tx.GetVdc(ctx, vdcId)
		if err == nil {
			vdc.SetUsed(vdc.Used().Sub(request))
			if err = tx.UpdateVdc(ctx, vdc); err != nil {
				return err
			}
		} else if !commonerrors.IsNotFound(err) {
			return err
		}

		allocation, err := tx.GetProjectVdcQuota(ctx, projectId, vdcId)
		if err != nil {
			return commonerrors.IgnoreNotFound(err)
		}
		allocation.SetUsed(allocation.Used().Sub(request))
		if allocation.RunningJobs > 0 {
			allocation.RunningJobs--
		}
		allocation.AddTypeRunning(jobType, -1)
		return tx.UpdateProjectVdcQuota(ctx, allocation)
	})
}

// effectiveLimit resolves the VDC's capacity: the override quota when
// set, else the sum of its clusters' capacities, scaled by the
// overcommit ratio.
func (m *VdcManager) effectiveLimit(ctx context.Context, tx store.Store, vdc *types.Vdc) (resources.Resources, error) {
	limit := vdc.Limit()
	if limit.IsZero() {
		clusters, err := tx.ListClusters(ctx, vdc.VdcId)
		if err != nil {
			return resources.Resources{}, err
		}
		for _, cluster := range clusters {
			limit = limit.Add(cluster.Capacity())
		}
	}
	if vdc.OvercommitRatio > 1 {
		limit = resources.Resources{
			CPUMilli:    int64(float64(limit.CPUMilli) * vdc.OvercommitRatio),
			MemoryBytes: int64(float64(limit.MemoryBytes) * vdc.OvercommitRatio),
			GPU:         int64(float64(limit.GPU) * vdc.OvercommitRatio),
		}
	}
	return limit, nil
}

// exceededComponent returns the first component the request would push
// past the limit, or empty. Zero limit components are unlimited.
func exceededComponent(used, request, limit resources.Resources) string {
	if limit.CPUMilli > 0 && used.CPUMilli+request.CPUMilli > limit.CPUMilli {
		return "cpu"
	}
	if limit.MemoryBytes > 0 && used.MemoryBytes+request.MemoryBytes > limit.MemoryBytes {
		return "memory"
	}
	if limit.GPU > 0 && used.GPU+request.GPU > limit.GPU {
		return "gpu"
	}
	return ""
}

func checkVdcAllocation(allocation *types.ProjectVdcQuota, request resources.Resources, jobType types.JobType) (bool, string) {
	if !allocation.EnforceQuota {
		return true, ""
	}
	if why := exceededComponent(allocation.Used(), request, allocation.Limit()); why != "" {
		return false, "insufficient quota: " + why
	}
	if allocation.MaxConcurrent > 0 && allocation.RunningJobs >= allocation.MaxConcurrent {
		return false, "insufficient quota: concurrent jobs"
	}
	if typeCap := allocation.TypeCap(jobType); typeCap > 0 && allocation.TypeRunning(jobType) >= typeCap {
		return false, fmt.Sprintf("insufficient quota: %s jobs", jobType)
	}
	return true, ""
}
