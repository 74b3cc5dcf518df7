/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package selector

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/resources"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func healthyCluster(clusterId string) *types.Cluster {
	return &types.Cluster{
		ClusterId:           clusterId,
		Name:                clusterId,
		VdcId:               store.NullString("vdc-1"),
		ClusterType:         string(types.ExecutorKubernetes),
		Status:              string(types.ClusterHealthy),
		Enabled:             true,
		Weight:              1,
		CpuCapacityMilli:    16000,
		MemoryCapacityBytes: 64 << 30,
		GpuCapacity:         8,
		LastHeartbeat:       pq.NullTime{Time: testNow, Valid: true},
	}
}

func selectorJob(jobId string) *types.Job {
	job := &types.Job{
		JobId:     jobId,
		Name:      jobId,
		ProjectId: "proj-a",
		UserId:    "user-a",
		JobType:   types.JobTypeTraining,
		Executor:  types.ExecutorKubernetes,
		Status:    types.JobQueued,
	}
	job.SetRequest(resources.Resources{CPUMilli: 2000, MemoryBytes: 4 << 30, GPU: 1})
	return job
}

func newTestSelector(t *testing.T, clusters ...*types.Cluster) (*Selector, store.Store) {
	s := store.NewMemoryStore()
	for _, cluster := range clusters {
		require.NoError(t, s.CreateCluster(context.Background(), cluster))
	}
	sel := NewSelector(s)
	sel.heartbeatHorizon = 5 * time.Minute
	sel.clock = testingclock.NewFakePassiveClock(testNow)
	return sel, s
}

func TestSelectLoadBalancing(t *testing.T) {
	// Two healthy label-matching clusters; the one at 20% cpu wins
	// over the one at 80%.
	busy := healthyCluster("cl-1")
	busy.CpuUsedMilli = 12800
	idle := healthyCluster("cl-2")
	idle.CpuUsedMilli = 3200
	sel, _ := newTestSelector(t, busy, idle)

	chosen, err := sel.Select(context.Background(), selectorJob("job-1"), "vdc-1", types.StrategyLoadBalancing)
	require.NoError(t, err)
	assert.Equal(t, "cl-2", chosen.ClusterId)
}

func TestSelectFiltering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *types.Cluster)
	}{
		{name: "disabled", mutate: func(c *types.Cluster) { c.Enabled = false }},
		{name: "unhealthy", mutate: func(c *types.Cluster) { c.Status = string(types.ClusterUnavailable) }},
		{name: "wrong type", mutate: func(c *types.Cluster) { c.ClusterType = string(types.ExecutorSlurm) }},
		{name: "insufficient capacity", mutate: func(c *types.Cluster) { c.GpuCapacity = 0 }},
		{name: "missing label", mutate: func(c *types.Cluster) { c.SetLabels(map[string]string{"tier": "dev"}) }},
		{name: "total job cap", mutate: func(c *types.Cluster) { c.MaxTotalJobs = 2; c.RunningJobs = 2 }},
		{name: "stale heartbeat", mutate: func(c *types.Cluster) {
			c.LastHeartbeat = pq.NullTime{Time: testNow.Add(-time.Hour), Valid: true}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cluster := healthyCluster("cl-1")
			cluster.SetLabels(map[string]string{"tier": "prod"})
			tt.mutate(cluster)
			sel, _ := newTestSelector(t, cluster)

			job := selectorJob("job-1")
			job.SetRequiredLabels(map[string]string{"tier": "prod"})
			_, err := sel.Select(context.Background(), job, "vdc-1", types.StrategyLoadBalancing)
			assert.True(t, commonerrors.IsNoCandidate(err), "expected NoCandidate, got %v", err)
		})
	}
}

func TestSelectMaxJobsPerUser(t *testing.T) {
	cluster := healthyCluster("cl-1")
	cluster.MaxJobsPerUser = 1
	sel, s := newTestSelector(t, cluster)

	running := selectorJob("job-running")
	running.Status = types.JobRunning
	running.ClusterId = store.NullString("cl-1")
	require.NoError(t, s.CreateJob(context.Background(), running))

	_, err := sel.Select(context.Background(), selectorJob("job-2"), "vdc-1", types.StrategyLoadBalancing)
	assert.True(t, commonerrors.IsNoCandidate(err))

	// Another user is not throttled.
	other := selectorJob("job-3")
	other.UserId = "user-b"
	chosen, err := sel.Select(context.Background(), other, "vdc-1", types.StrategyLoadBalancing)
	require.NoError(t, err)
	assert.Equal(t, "cl-1", chosen.ClusterId)
}

func TestSelectResourceFit(t *testing.T) {
	// cl-1 has far more headroom than the request; cl-2 fits snugly.
	roomy := healthyCluster("cl-1")
	snug := healthyCluster("cl-2")
	snug.CpuCapacityMilli = 2500
	snug.MemoryCapacityBytes = 5 << 30
	snug.GpuCapacity = 1
	sel, _ := newTestSelector(t, roomy, snug)

	chosen, err := sel.Select(context.Background(), selectorJob("job-1"), "vdc-1", types.StrategyResourceFit)
	require.NoError(t, err)
	assert.Equal(t, "cl-2", chosen.ClusterId)
}

func TestSelectPriority(t *testing.T) {
	low := healthyCluster("cl-1")
	low.Priority = 10
	low.Weight = 1
	high := healthyCluster("cl-2")
	high.Priority = 5
	high.Weight = 4
	sel, _ := newTestSelector(t, low, high)

	chosen, err := sel.Select(context.Background(), selectorJob("job-1"), "vdc-1", types.StrategyPriority)
	require.NoError(t, err)
	assert.Equal(t, "cl-2", chosen.ClusterId)
}

func TestSelectAffinity(t *testing.T) {
	a := healthyCluster("cl-a")
	a.Priority = 1
	b := healthyCluster("cl-b")
	b.Priority = 9
	sel, _ := newTestSelector(t, a, b)

	job := selectorJob("job-1")
	job.SetPreferredClusters([]string{"cl-a", "cl-b"})
	chosen, err := sel.Select(context.Background(), job, "vdc-1", types.StrategyAffinity)
	require.NoError(t, err)
	assert.Equal(t, "cl-b", chosen.ClusterId)
}

func TestSelectAffinityFallback(t *testing.T) {
	// The preferred cluster is unavailable; affinity falls back to
	// load balancing over the remaining candidates.
	preferred := healthyCluster("cl-3")
	preferred.Status = string(types.ClusterUnavailable)
	busy := healthyCluster("cl-1")
	busy.CpuUsedMilli = 12800
	idle := healthyCluster("cl-2")
	idle.CpuUsedMilli = 3200
	sel, _ := newTestSelector(t, preferred, busy, idle)

	job := selectorJob("job-5")
	job.SetPreferredClusters([]string{"cl-3"})
	chosen, err := sel.Select(context.Background(), job, "vdc-1", types.StrategyAffinity)
	require.NoError(t, err)
	assert.Equal(t, "cl-2", chosen.ClusterId)
}

func TestSelectCostOptimized(t *testing.T) {
	cheap := healthyCluster("cl-1")
	cheap.CostPerGpuHour = 1.5
	pricey := healthyCluster("cl-2")
	pricey.CostPerGpuHour = 4.0
	free := healthyCluster("cl-3")
	sel, _ := newTestSelector(t, cheap, pricey, free)

	chosen, err := sel.Select(context.Background(), selectorJob("job-1"), "vdc-1", types.StrategyCostOptimized)
	require.NoError(t, err)
	assert.Equal(t, "cl-1", chosen.ClusterId)

	// With no cluster declaring costs the strategy degrades to load
	// balancing.
	cheap.CostPerGpuHour = 0
	pricey.CostPerGpuHour = 0
	sel2, _ := newTestSelector(t, cheap, pricey)
	chosen, err = sel2.Select(context.Background(), selectorJob("job-2"), "vdc-1", types.StrategyCostOptimized)
	require.NoError(t, err)
	assert.Equal(t, "cl-1", chosen.ClusterId)
}

func TestSelectDeterministicTieBreak(t *testing.T) {
	a := healthyCluster("cl-b")
	b := healthyCluster("cl-a")
	sel, _ := newTestSelector(t, a, b)

	for i := 0; i < 5; i++ {
		chosen, err := sel.Select(context.Background(), selectorJob("job-1"), "vdc-1", types.StrategyLoadBalancing)
		require.NoError(t, err)
		assert.Equal(t, "cl-a", chosen.ClusterId)
	}
}
