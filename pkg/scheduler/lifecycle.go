/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package scheduler

import (
	"context"

	"github.com/lib/pq"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/backoff"
	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// Complete moves a job into a terminal state and runs the completion
// hook: queue and cluster counters drop inside the transaction, quota
// releases follow, subscribers are notified. Completing a job already
// in a terminal state is a no-op.
func (o *Orchestrator) Complete(ctx context.Context, jobId string, to types.JobStatus, reason string) error {
	now := o.clock.Now()
	var finished *types.Job
	var from types.JobStatus
	wasRunning := false

	err := o.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		job, err := tx.GetJob(ctx, jobId)
		if err != nil {
			return err
		}
		if job.IsEnd() {
			return nil
		}
		if !types.CanTransition(job.Status, to) {
			klog.Infof("ignoring %s -> %s for job %s", job.Status, to, jobId)
			return nil
		}
		from = job.Status
		wasRunning = from == types.JobRunning
		job.Status = to
		job.FinishedAt = pq.NullTime{Time: now, Valid: true}
		if reason != "" {
			job.ErrorMessage = store.NullString(reason)
		}
		if err = tx.UpdateJob(ctx, job); err != nil {
			return err
		}

		if job.QueueId.Valid {
			queue, err := tx.GetQueue(ctx, job.QueueId.String)
			if err != nil {
				if !commonerrors.IsNotFound(err) {
					return err
				}
			} else {
				if wasRunning {
					queue.RunningJobs = clampInt(queue.RunningJobs - 1)
				} else {
					queue.PendingJobs = clampInt(queue.PendingJobs - 1)
				}
				if err = tx.UpdateQueue(ctx, queue); err != nil {
					return err
				}
			}
		}
		if wasRunning && job.ClusterId.Valid {
			cluster, err := tx.GetCluster(ctx, job.ClusterId.String)
			if err != nil {
				if !commonerrors.IsNotFound(err) {
					return err
				}
			} else {
				cluster.SetUsed(cluster.Used().Sub(job.Request()))
				cluster.RunningJobs = clampInt(cluster.RunningJobs - 1)
				if err = tx.UpdateCluster(ctx, cluster); err != nil {
					return err
				}
			}
		}
		finished = job
		return nil
	})
	if err != nil || finished == nil {
		return err
	}

	if wasRunning {
		request := finished.Request()
		if err := o.provider.Release(ctx, finished.ProjectId, request, finished.JobType); err != nil {
			klog.ErrorS(err, "failed to release quota on completion", "job", jobId)
		}
		if o.vdcRouting && finished.VdcId.Valid && o.vdcs != nil {
			if err := o.vdcs.Release(ctx, finished.ProjectId, finished.VdcId.String, request, finished.JobType); err != nil {
				klog.ErrorS(err, "failed to release vdc quota on completion", "job", jobId)
			}
		}
	}
	o.publish(ctx, finished, from, to, reason)
	klog.Infof("job %s completed: %s -> %s", jobId, from, to)
	return nil
}

// Cancel stops a job on behalf of a caller. RUNNING jobs are cancelled
// at the backend first; a job the backend no longer knows is treated
// as cancelled. Cancelling a terminal job is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, jobId, reason string) error {
	job, err := o.store.GetJob(ctx, jobId)
	if err != nil {
		return err
	}
	if job.IsEnd() {
		return nil
	}
	if job.Status == types.JobRunning && job.ExternalId.Valid {
		drv, err := o.registry.Get(job.Executor)
		if err != nil {
			return err
		}
		err = backoff.TransientRetry(func() error {
			cctx, cancel := context.WithTimeout(ctx, o.submitTimeout)
			defer cancel()
			return drv.Cancel(cctx, job.ExternalId.String)
		}, o.submitRetry, o.retryInterval)
		if err != nil && !commonerrors.IsNotFound(err) {
			return err
		}
	}
	return o.Complete(ctx, jobId, types.JobCancelled, reason)
}
