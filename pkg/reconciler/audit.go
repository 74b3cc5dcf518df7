/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package reconciler

import (
	"context"

	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/metrics"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/resources"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// usageAgg is the authoritative usage recomputed from RUNNING jobs.
type usageAgg struct {
	used    resources.Resources
	running int
	byType  map[types.JobType]int
}

func newUsageAgg() *usageAgg {
	return &usageAgg{byType: map[types.JobType]int{}}
}

func (a *usageAgg) add(job *types.Job) {
	a.used = a.used.Add(job.Request())
	a.running++
	a.byType[job.JobType]++
}

// Audit recomputes every counter from the job table and corrects
// drift, then soft-deletes expired terminal jobs.
func (r *Reconciler) Audit(ctx context.Context) error {
	if err := r.auditCounters(ctx); err != nil {
		return err
	}
	return r.sweepExpired(ctx)
}

func (r *Reconciler) auditCounters(ctx context.Context) error {
	running, err := r.store.ListJobs(ctx, store.JobFilter{
		Statuses: []types.JobStatus{types.JobRunning},
	})
	if err != nil {
		return err
	}
	queued, err := r.store.ListJobs(ctx, store.JobFilter{
		Statuses: []types.JobStatus{types.JobQueued},
	})
	if err != nil {
		return err
	}

	byProject := map[string]*usageAgg{}
	byProjectVdc := map[string]*usageAgg{}
	byVdc := map[string]resources.Resources{}
	byCluster := map[string]*usageAgg{}
	queueRunning := map[string]int{}
	for _, job := range running {
		agg := byProject[job.ProjectId]
		if agg == nil {
			agg = newUsageAgg()
			byProject[job.ProjectId] = agg
		}
		agg.add(job)
		if job.VdcId.Valid {
			key := job.ProjectId + "/" + job.VdcId.String
			pv := byProjectVdc[key]
			if pv == nil {
				pv = newUsageAgg()
				byProjectVdc[key] = pv
			}
			pv.add(job)
			byVdc[job.VdcId.String] = byVdc[job.VdcId.String].Add(job.Request())
		}
		if job.ClusterId.Valid {
			cl := byCluster[job.ClusterId.String]
			if cl == nil {
				cl = newUsageAgg()
				byCluster[job.ClusterId.String] = cl
			}
			cl.add(job)
		}
		if job.QueueId.Valid {
			queueRunning[job.QueueId.String]++
		}
	}
	queuePending := map[string]int{}
	for _, job := range queued {
		if job.QueueId.Valid {
			queuePending[job.QueueId.String]++
		}
	}

	if err = r.auditProjectQuotas(ctx, byProject); err != nil {
		return err
	}
	if err = r.auditVdcQuotas(ctx, byVdc, byProjectVdc); err != nil {
		return err
	}
	if err = r.auditClusters(ctx, byCluster); err != nil {
		return err
	}
	return r.auditQueues(ctx, queueRunning, queuePending)
}

func (r *Reconciler) auditProjectQuotas(ctx context.Context, byProject map[string]*usageAgg) error {
	quotas, err := r.store.ListProjectQuotas(ctx)
	if err != nil {
		return err
	}
	for _, quota := range quotas {
		agg := byProject[quota.ProjectId]
		if agg == nil {
			agg = newUsageAgg()
		}
		if quota.Used() == agg.used && quota.RunningJobs == agg.running &&
			quota.RunningTraining == agg.byType[types.JobTypeTraining] &&
			quota.RunningInference == agg.byType[types.JobTypeInference] &&
			quota.RunningWorkflow == agg.byType[types.JobTypeWorkflow] {
			continue
		}
		projectId := quota.ProjectId
		err = r.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
			row, err := tx.GetProjectQuota(ctx, projectId)
			if err != nil {
				return err
			}
			klog.Infof("quota audit correcting project %s: used %s -> %s, running %d -> %d",
				projectId, row.Used(), agg.used, row.RunningJobs, agg.running)
			row.SetUsed(agg.used)
			row.RunningJobs = agg.running
			row.RunningTraining = agg.byType[types.JobTypeTraining]
			row.RunningInference = agg.byType[types.JobTypeInference]
			row.RunningWorkflow = agg.byType[types.JobTypeWorkflow]
			return tx.UpdateProjectQuota(ctx, row)
		})
		if err != nil {
			return err
		}
		metrics.QuotaAuditCorrectionCnt.Inc()
	}
	return nil
}

func (r *Reconciler) auditVdcQuotas(ctx context.Context, byVdc map[string]resources.Resources, byProjectVdc map[string]*usageAgg) error {
	vdcs, err := r.store.ListVdcs(ctx)
	if err != nil {
		return err
	}
	for _, vdc := range vdcs {
		expected := byVdc[vdc.VdcId]
		if vdc.Used() == expected {
			continue
		}
		vdcId := vdc.VdcId
		err = r.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
			row, err := tx.GetVdc(ctx, vdcId)
			if err != nil {
				return err
			}
			klog.Infof("quota audit correcting vdc %s: used %s -> %s", vdcId, row.Used(), expected)
			row.SetUsed(expected)
			return tx.UpdateVdc(ctx, row)
		})
		if err != nil {
			return err
		}
		metrics.QuotaAuditCorrectionCnt.Inc()
	}

	allocations, err := r.store.ListProjectVdcQuotas(ctx, "")
	if err != nil {
		return err
	}
	for _, allocation := range allocations {
		agg := byProjectVdc[allocation.ProjectId+"/"+allocation.VdcId]
		if agg == nil {
			agg = newUsageAgg()
		}
		if allocation.Used() == agg.used && allocation.RunningJobs == agg.running {
			continue
		}
		projectId, vdcId := allocation.ProjectId, allocation.VdcId
		err = r.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
			row, err := tx.GetProjectVdcQuota(ctx, projectId, vdcId)
			if err != nil {
				return err
			}
			klog.Infof("quota audit correcting allocation %s/%s: used %s -> %s",
				projectId, vdcId, row.Used(), agg.used)
			row.SetUsed(agg.used)
			row.RunningJobs = agg.running
			row.RunningTraining = agg.byType[types.JobTypeTraining]
			row.RunningInference = agg.byType[types.JobTypeInference]
			row.RunningWorkflow = agg.byType[types.JobTypeWorkflow]
			return tx.UpdateProjectVdcQuota(ctx, row)
		})
		if err != nil {
			return err
		}
		metrics.QuotaAuditCorrectionCnt.Inc()
	}
	return nil
}

func (r *Reconciler) auditClusters(ctx context.Context, byCluster map[string]*usageAgg) error {
	clusters, err := r.store.ListClusters(ctx, "")
	if err != nil {
		return err
	}
	for _, cluster := range clusters {
		agg := byCluster[cluster.ClusterId]
		if agg == nil {
			agg = newUsageAgg()
		}
		if cluster.Used() == agg.used && cluster.RunningJobs == agg.running {
			continue
		}
		clusterId := cluster.ClusterId
		err = r.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
			row, err := tx.GetCluster(ctx, clusterId)
			if err != nil {
				return err
			}
			klog.Infof("quota audit correcting cluster %s: used %s -> %s, running %d -> %d",
				clusterId, row.Used(), agg.used, row.RunningJobs, agg.running)
			row.SetUsed(agg.used)
			row.RunningJobs = agg.running
			return tx.UpdateCluster(ctx, row)
		})
		if err != nil {
			return err
		}
		metrics.QuotaAuditCorrectionCnt.Inc()
	}
	return nil
}

func (r *Reconciler) auditQueues(ctx context.Context, queueRunning, queuePending map[string]int) error {
	queues, err := r.store.ListQueues(ctx, "")
	if err != nil {
		return err
	}
	for _, queue := range queues {
		running := queueRunning[queue.QueueId]
		pending := queuePending[queue.QueueId]
		if queue.RunningJobs == running && queue.PendingJobs == pending {
			continue
		}
		klog.Infof("quota audit correcting queue %s: running %d -> %d, pending %d -> %d",
			queue.QueueId, queue.RunningJobs, running, queue.PendingJobs, pending)
		queue.RunningJobs = running
		queue.PendingJobs = pending
		if err = r.store.UpdateQueue(ctx, queue); err != nil {
			return err
		}
		metrics.QuotaAuditCorrectionCnt.Inc()
	}
	return nil
}

// sweepExpired soft-deletes terminal jobs older than the configured
// TTL. A zero TTL disables the sweep.
func (r *Reconciler) sweepExpired(ctx context.Context) error {
	if r.jobTTL <= 0 {
		return nil
	}
	cutoff := r.clock.Now().Add(-r.jobTTL)
	expired, err := r.store.ListJobs(ctx, store.JobFilter{
		Statuses:       []types.JobStatus{types.JobSucceeded, types.JobFailed, types.JobCancelled, types.JobTimeout},
		FinishedBefore: cutoff,
	})
	if err != nil {
		return err
	}
	for _, job := range expired {
		if err = r.store.SetJobDeleted(ctx, job.JobId); err != nil {
			return err
		}
		klog.V(2).Infof("soft-deleted expired job %s finished at %s", job.JobId, job.FinishedAt.Time)
	}
	if len(expired) > 0 {
		klog.Infof("soft-deleted %d expired jobs", len(expired))
	}
	return nil
}
