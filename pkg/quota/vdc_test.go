/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package quota

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/resources"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

type vdcFixture struct {
	store   store.Store
	manager *VdcManager
}

func newVdcFixture(t *testing.T, vdc *types.Vdc, allocation *types.ProjectVdcQuota, clusters ...*types.Cluster) *vdcFixture {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.CreateVdc(ctx, vdc))
	if allocation != nil {
		require.NoError(t, s.CreateProjectVdcQuota(ctx, allocation))
	}
	for _, cluster := range clusters {
		require.NoError(t, s.CreateCluster(ctx, cluster))
	}
	return &vdcFixture{store: s, manager: NewVdcManager(s)}
}

func testVdc(vdcId string) *types.Vdc {
	return &types.Vdc{
		VdcId:            vdcId,
		Name:             vdcId,
		Enabled:          true,
		CpuLimitMilli:    8000,
		MemoryLimitBytes: 32 << 30,
		GpuLimit:         8,
	}
}

func testAllocation(projectId, vdcId string) *types.ProjectVdcQuota {
	return &types.ProjectVdcQuota{
		ProjectId:        projectId,
		VdcId:            vdcId,
		EnforceQuota:     true,
		CpuLimitMilli:    4000,
		MemoryLimitBytes: 16 << 30,
		GpuLimit:         4,
	}
}

func TestVdcReserveCommitsBothTiers(t *testing.T) {
	ctx := context.Background()
	f := newVdcFixture(t, testVdc("vdc-1"), testAllocation("proj-a", "vdc-1"))

	request := resources.Resources{CPUMilli: 2000, MemoryBytes: 8 << 30, GPU: 2}
	ok, reason, err := f.manager.Reserve(ctx, "proj-a", "vdc-1", request, types.JobTypeTraining)
	require.NoError(t, err)
	require.True(t, ok, reason)

	vdc, err := f.store.GetVdc(ctx, "vdc-1")
	require.NoError(t, err)
	assert.Equal(t, request, vdc.Used())

	allocation, err := f.store.GetProjectVdcQuota(ctx, "proj-a", "vdc-1")
	require.NoError(t, err)
	assert.Equal(t, request, allocation.Used())
	assert.Equal(t, 1, allocation.RunningJobs)
	assert.Equal(t, 1, allocation.RunningTraining)
}

func TestVdcReserveProjectTierRejectLeavesVdcUntouched(t *testing.T) {
	ctx := context.Background()
	f := newVdcFixture(t, testVdc("vdc-1"), testAllocation("proj-a", "vdc-1"))

	// Fits the VDC pool but exceeds the project allocation.
	request := resources.Resources{CPUMilli: 6000}
	ok, reason, err := f.manager.Reserve(ctx, "proj-a", "vdc-1", request, types.JobTypeTraining)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "insufficient quota: cpu", reason)

	vdc, err := f.store.GetVdc(ctx, "vdc-1")
	require.NoError(t, err)
	assert.True(t, vdc.Used().IsZero())
}

func TestVdcReservePoolExhausted(t *testing.T) {
	ctx := context.Background()
	vdc := testVdc("vdc-1")
	vdc.GpuUsed = 7
	allocation := testAllocation("proj-a", "vdc-1")
	allocation.GpuLimit = 8
	f := newVdcFixture(t, vdc, allocation)

	ok, reason, err := f.manager.Reserve(ctx, "proj-a", "vdc-1", resources.Resources{GPU: 2}, types.JobTypeTraining)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "insufficient vdc capacity: gpu", reason)
}

func TestVdcCapacityFromClusters(t *testing.T) {
	ctx := context.Background()
	vdc := testVdc("vdc-1")
	vdc.CpuLimitMilli = 0
	vdc.MemoryLimitBytes = 0
	vdc.GpuLimit = 0
	allocation := testAllocation("proj-a", "vdc-1")
	allocation.EnforceQuota = false
	clusterA := &types.Cluster{
		ClusterId: "cl-a", Name: "cl-a", VdcId: store.NullString("vdc-1"),
		ClusterType: string(types.ExecutorKubernetes), Enabled: true,
		CpuCapacityMilli: 4000, MemoryCapacityBytes: 8 << 30, GpuCapacity: 2,
	}
	clusterB := &types.Cluster{
		ClusterId: "cl-b", Name: "cl-b", VdcId: store.NullString("vdc-1"),
		ClusterType: string(types.ExecutorKubernetes), Enabled: true,
		CpuCapacityMilli: 4000, MemoryCapacityBytes: 8 << 30, GpuCapacity: 2,
	}
	f := newVdcFixture(t, vdc, allocation, clusterA, clusterB)

	// Summed capacity is 8 cores; 8 fits, anything more does not.
	ok, reason, err := f.manager.Reserve(ctx, "proj-a", "vdc-1", resources.Resources{CPUMilli: 8000}, types.JobTypeTraining)
	require.NoError(t, err)
	require.True(t, ok, reason)

	ok, reason, err = f.manager.Reserve(ctx, "proj-a", "vdc-1", resources.Resources{CPUMilli: 1}, types.JobTypeTraining)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "insufficient vdc capacity: cpu", reason)
}

func TestVdcOvercommitRatio(t *testing.T) {
	ctx := context.Background()
	vdc := testVdc("vdc-1")
	vdc.OvercommitRatio = 1.5
	allocation := testAllocation("proj-a", "vdc-1")
	allocation.EnforceQuota = false
	f := newVdcFixture(t, vdc, allocation)

	// 8000 milli scaled by 1.5 admits 12000.
	ok, reason, err := f.manager.Reserve(ctx, "proj-a", "vdc-1", resources.Resources{CPUMilli: 12000}, types.JobTypeTraining)
	require.NoError(t, err)
	assert.True(t, ok, reason)
}

func TestVdcMissingAllocation(t *testing.T) {
	ctx := context.Background()
	f := newVdcFixture(t, testVdc("vdc-1"), nil)

	ok, reason, err := f.manager.Reserve(ctx, "proj-a", "vdc-1", resources.Resources{CPUMilli: 1000}, types.JobTypeTraining)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "no allocation")
}

func TestVdcDisabled(t *testing.T) {
	ctx := context.Background()
	vdc := testVdc("vdc-1")
	vdc.Enabled = false
	f := newVdcFixture(t, vdc, testAllocation("proj-a", "vdc-1"))

	ok, reason, err := f.manager.Reserve(ctx, "proj-a", "vdc-1", resources.Resources{CPUMilli: 1000}, types.JobTypeTraining)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "vdc is disabled", reason)
}

func TestVdcReleaseSaturates(t *testing.T) {
	ctx := context.Background()
	f := newVdcFixture(t, testVdc("vdc-1"), testAllocation("proj-a", "vdc-1"))

	request := resources.Resources{CPUMilli: 2000, GPU: 1}
	ok, _, err := f.manager.Reserve(ctx, "proj-a", "vdc-1", request, types.JobTypeTraining)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.manager.Release(ctx, "proj-a", "vdc-1", request, types.JobTypeTraining))
	require.NoError(t, f.manager.Release(ctx, "proj-a", "vdc-1", request, types.JobTypeTraining))

	vdc, err := f.store.GetVdc(ctx, "vdc-1")
	require.NoError(t, err)
	assert.True(t, vdc.Used().IsZero())

	allocation, err := f.store.GetProjectVdcQuota(ctx, "proj-a", "vdc-1")
	require.NoError(t, err)
	assert.True(t, allocation.Used().IsZero())
	assert.Equal(t, 0, allocation.RunningJobs)
	assert.Equal(t, 0, allocation.RunningTraining)
}
