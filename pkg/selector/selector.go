/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package selector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/config"
	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// Selector places a job on one of a VDC's clusters. Filtering yields
// the candidate set; the configured strategy ranks it.
type Selector struct {
	store            store.Store
	heartbeatHorizon time.Duration
	clock            clock.PassiveClock
}

// NewSelector creates the selector with the configured heartbeat
// staleness horizon.
func NewSelector(s store.Store) *Selector {
	return &Selector{
		store:            s,
		heartbeatHorizon: time.Duration(config.GetHeartbeatStaleSecond()) * time.Second,
		clock:            clock.RealClock{},
	}
}

// Select filters the VDC's clusters to candidates and applies the
// strategy. An empty candidate set fails with NoCandidate.
func (s *Selector) Select(ctx context.Context, job *types.Job, vdcId string, strategy types.SelectionStrategy) (*types.Cluster, error) {
	clusters, err := s.store.ListClusters(ctx, vdcId)
	if err != nil {
		return nil, err
	}
	candidates, err := s.filter(ctx, job, clusters)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, commonerrors.NewNoCandidate(fmt.Sprintf("no candidate cluster for job %s", job.JobId))
	}
	// Sorting by cluster id first makes every strategy's tie-break
	// deterministic.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ClusterId < candidates[j].ClusterId })

	chosen := s.apply(job, candidates, strategy)
	klog.V(4).Infof("selected cluster %s for job %s via %s", chosen.ClusterId, job.JobId, strategy)
	return chosen, nil
}

func (s *Selector) filter(ctx context.Context, job *types.Job, clusters []*types.Cluster) ([]*types.Cluster, error) {
	request := job.Request()
	required := job.GetRequiredLabels()
	now := s.clock.Now()

	candidates := make([]*types.Cluster, 0, len(clusters))
	for _, cluster := range clusters {
		if !cluster.Enabled || cluster.Status != string(types.ClusterHealthy) {
			continue
		}
		if cluster.ClusterType != string(job.Executor) {
			continue
		}
		if !request.Leq(cluster.Available()) {
			continue
		}
		if !labelsSubset(required, cluster.GetLabels()) {
			continue
		}
		if cluster.MaxTotalJobs > 0 && cluster.RunningJobs >= cluster.MaxTotalJobs {
			continue
		}
		if s.heartbeatHorizon > 0 && cluster.LastHeartbeat.Valid &&
			now.Sub(cluster.LastHeartbeat.Time) > s.heartbeatHorizon {
			continue
		}
		if cluster.MaxJobsPerUser > 0 {
			count, err := s.store.CountJobs(ctx, store.JobFilter{
				ClusterId: cluster.ClusterId,
				UserId:    job.UserId,
				Statuses:  []types.JobStatus{types.JobRunning},
			})
			if err != nil {
				return nil, err
			}
			if count >= cluster.MaxJobsPerUser {
				continue
			}
		}
		candidates = append(candidates, cluster)
	}
	return candidates, nil
}

func (s *Selector) apply(job *types.Job, candidates []*types.Cluster, strategy types.SelectionStrategy) *types.Cluster {
	switch strategy {
	case types.StrategyResourceFit:
		return minByScore(candidates, func(c *types.Cluster) float64 { return resourceFitScore(job, c) })
	case types.StrategyPriority:
		return minByScore(candidates, func(c *types.Cluster) float64 { return -float64(c.Priority) * c.Weight })
	case types.StrategyAffinity:
		return s.applyAffinity(job, candidates)
	case types.StrategyCostOptimized:
		return s.applyCostOptimized(job, candidates)
	default:
		return minByScore(candidates, loadBalancingScore)
	}
}

// applyAffinity picks the highest-priority cluster among the job's
// preferred clusters, falling back to load balancing when none of them
// survived filtering.
func (s *Selector) applyAffinity(job *types.Job, candidates []*types.Cluster) *types.Cluster {
	preferred := job.GetPreferredClusters()
	intersection := lo.Filter(candidates, func(c *types.Cluster, _ int) bool {
		return lo.Contains(preferred, c.ClusterId)
	})
	if len(intersection) == 0 {
		return minByScore(candidates, loadBalancingScore)
	}
	return minByScore(intersection, func(c *types.Cluster) float64 { return -float64(c.Priority) })
}

// applyCostOptimized ranks clusters that declare costs by the request's
// hourly price, falling back to load balancing when none declare any.
func (s *Selector) applyCostOptimized(job *types.Job, candidates []*types.Cluster) *types.Cluster {
	priced := lo.Filter(candidates, func(c *types.Cluster, _ int) bool {
		return c.CostPerCpuHour > 0 || c.CostPerMemoryHour > 0 || c.CostPerGpuHour > 0
	})
	if len(priced) == 0 {
		return minByScore(candidates, loadBalancingScore)
	}
	request := job.Request()
	return minByScore(priced, func(c *types.Cluster) float64 {
		return request.CPUCores()*c.CostPerCpuHour +
			request.MemoryGiB()*c.CostPerMemoryHour +
			float64(request.GPU)*c.CostPerGpuHour
	})
}

// minByScore returns the first candidate with the lowest score; the
// caller pre-sorts by cluster id so ties stay deterministic.
func minByScore(candidates []*types.Cluster, score func(*types.Cluster) float64) *types.Cluster {
	best := candidates[0]
	bestScore := score(best)
	for _, c := range candidates[1:] {
		if s := score(c); s < bestScore {
			best = c
			bestScore = s
		}
	}
	return best
}

// loadBalancingScore weights utilization percentages 30/30/40 with GPU
// heaviest. A dimension the cluster does not provide contributes zero.
func loadBalancingScore(c *types.Cluster) float64 {
	return 0.3*usagePercent(c.CpuUsedMilli, c.CpuCapacityMilli) +
		0.3*usagePercent(c.MemoryUsedBytes, c.MemoryCapacityBytes) +
		0.4*usagePercent(c.GpuUsed, c.GpuCapacity)
}

// resourceFitScore sums the normalized distance between available and
// requested capacity over the dimensions the job actually requests.
func resourceFitScore(job *types.Job, c *types.Cluster) float64 {
	request := job.Request()
	available := c.Available()
	score := 0.0
	if request.CPUMilli > 0 {
		score += absFloat(float64(available.CPUMilli-request.CPUMilli)) / float64(request.CPUMilli)
	}
	if request.MemoryBytes > 0 {
		score += absFloat(float64(available.MemoryBytes-request.MemoryBytes)) / float64(request.MemoryBytes)
	}
	if request.GPU > 0 {
		score += absFloat(float64(available.GPU-request.GPU)) / float64(request.GPU)
	}
	return score
}

func labelsSubset(required, labels map[string]string) bool {
	for key, value := range required {
		if labels[key] != value {
			return false
		}
	}
	return true
}

func usagePercent(used, capacity int64) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(used) / float64(capacity) * 100
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
