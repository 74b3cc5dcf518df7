/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package scheduler

import (
	"context"
	"fmt"
	"math"

	"github.com/lib/pq"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/backoff"
	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/metrics"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/resources"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// TryDispatch attempts to move one QUEUED job to RUNNING: reserve
// quota, optionally select a cluster, submit to the backend, persist.
// Every reservation made before a failure is released before returning,
// so a false outcome leaves no partial state.
func (o *Orchestrator) TryDispatch(ctx context.Context, job *types.Job, queue *types.JobQueue) DispatchResult {
	metrics.DispatchAttemptCnt.WithLabelValues(string(job.Executor)).Inc()

	request, err := o.extractRequest(job)
	if err != nil {
		return o.failQueuedJob(ctx, job, err.Error())
	}
	drv, err := o.registry.Get(job.Executor)
	if err != nil {
		return o.failQueuedJob(ctx, job, err.Error())
	}

	admitted, reason, err := o.provider.Reserve(ctx, job.ProjectId, request, job.JobType)
	if err != nil {
		return o.recordWaitReason(ctx, job, fmt.Sprintf("quota reserve failed: %v", err))
	}
	if !admitted {
		return o.recordWaitReason(ctx, job, reason)
	}
	vdcReserved := false
	release := func() {
		if err := o.provider.Release(ctx, job.ProjectId, request, job.JobType); err != nil {
			klog.ErrorS(err, "failed to release quota", "job", job.JobId)
		}
		if vdcReserved {
			if err := o.vdcs.Release(ctx, job.ProjectId, job.VdcId.String, request, job.JobType); err != nil {
				klog.ErrorS(err, "failed to release vdc quota", "job", job.JobId)
			}
		}
	}

	var cluster *types.Cluster
	if o.vdcRouting && job.VdcId.Valid {
		cluster, err = o.routeToCluster(ctx, job, request, &vdcReserved)
		if err != nil {
			release()
			return o.recordWaitReason(ctx, job, err.Error())
		}
	}

	var externalId string
	err = backoff.TransientRetry(func() error {
		sctx, cancel := context.WithTimeout(ctx, o.submitTimeout)
		defer cancel()
		id, serr := drv.Submit(sctx, job)
		if serr != nil {
			return serr
		}
		externalId = id
		return nil
	}, o.submitRetry, o.retryInterval)
	if err != nil {
		release()
		if commonerrors.IsDriverPermanent(err) || commonerrors.IsConfigInvalid(err) {
			return o.failQueuedJob(ctx, job, err.Error())
		}
		return o.recordSubmitFailure(ctx, job, err.Error())
	}

	if err = o.persistRunning(ctx, job, request, externalId, cluster); err != nil {
		release()
		// The backend may now be running a job the store does not know
		// about; cancel best-effort before retrying next tick.
		cctx, cancel := context.WithTimeout(ctx, o.submitTimeout)
		if cerr := drv.Cancel(cctx, externalId); cerr != nil && !commonerrors.IsNotFound(cerr) {
			klog.ErrorS(cerr, "failed to cancel orphaned submission", "job", job.JobId, "external", externalId)
		}
		cancel()
		return o.recordWaitReason(ctx, job, fmt.Sprintf("failed to persist dispatch: %v", err))
	}
	o.publish(ctx, job, types.JobQueued, types.JobRunning, "")
	klog.Infof("job %s dispatched to %s as %s", job.JobId, job.Executor, externalId)
	return dispatched()
}

// routeToCluster reserves the two-tier VDC quota and selects a cluster.
func (o *Orchestrator) routeToCluster(ctx context.Context, job *types.Job, request resources.Resources, vdcReserved *bool) (*types.Cluster, error) {
	vdcId := job.VdcId.String
	admitted, reason, err := o.vdcs.Reserve(ctx, job.ProjectId, vdcId, request, job.JobType)
	if err != nil {
		return nil, err
	}
	if !admitted {
		return nil, fmt.Errorf("%s", reason)
	}
	*vdcReserved = true

	strategy := types.StrategyLoadBalancing
	if vdc, err := o.store.GetVdc(ctx, vdcId); err == nil && vdc.DefaultStrategy.Valid {
		strategy = types.SelectionStrategy(vdc.DefaultStrategy.String)
	}
	return o.selector.Select(ctx, job, vdcId, strategy)
}

// persistRunning commits the QUEUED→RUNNING transition together with
// the cluster counters. The job row is re-read under lock so a cancel
// racing the submit is not overwritten.
func (o *Orchestrator) persistRunning(ctx context.Context, job *types.Job, request resources.Resources, externalId string, cluster *types.Cluster) error {
	now := o.clock.Now()
	return o.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		fresh, err := tx.GetJob(ctx, job.JobId)
		if err != nil {
			return err
		}
		if fresh.Status != types.JobQueued {
			return commonerrors.NewInternalError(fmt.Sprintf("job %s left QUEUED during dispatch: %s", job.JobId, fresh.Status))
		}
		fresh.Status = types.JobRunning
		fresh.ExternalId = store.NullString(externalId)
		fresh.StartedAt = pq.NullTime{Time: now, Valid: true}
		fresh.ErrorMessage = store.NullString("")
		fresh.SyncFailures = 0
		fresh.DispatchCount = job.DispatchCount
		fresh.SetRequest(request)
		if cluster != nil {
			fresh.ClusterId = store.NullString(cluster.ClusterId)
		}
		if err = tx.UpdateJob(ctx, fresh); err != nil {
			return err
		}
		*job = *fresh
		if cluster == nil {
			return nil
		}
		locked, err := tx.GetCluster(ctx, cluster.ClusterId)
		if err != nil {
			return err
		}
		locked.SetUsed(locked.Used().Add(request))
		locked.RunningJobs++
		return tx.UpdateCluster(ctx, locked)
	})
}

// recordWaitReason keeps the job QUEUED and stores the latest reason
// so GetJob can surface it. These attempts do not count against the
// dispatch retry budget.
func (o *Orchestrator) recordWaitReason(ctx context.Context, job *types.Job, reason string) DispatchResult {
	job.ErrorMessage = store.NullString(reason)
	if err := o.store.UpdateJob(ctx, job); err != nil {
		klog.ErrorS(err, "failed to record wait reason", "job", job.JobId)
	}
	return requeued(reason)
}

// recordSubmitFailure counts a transient backend failure and fails the
// job outright once the retry budget is spent.
func (o *Orchestrator) recordSubmitFailure(ctx context.Context, job *types.Job, reason string) DispatchResult {
	job.DispatchCount++
	job.ErrorMessage = store.NullString(reason)
	if err := o.store.UpdateJob(ctx, job); err != nil {
		klog.ErrorS(err, "failed to record submit failure", "job", job.JobId)
	}
	maxRetry := job.MaxRetry
	if maxRetry <= 0 {
		maxRetry = o.maxRetry
	}
	if job.DispatchCount >= maxRetry {
		return o.failQueuedJob(ctx, job, fmt.Sprintf("max dispatch retries exceeded: %s", reason))
	}
	return requeued(reason)
}

// failQueuedJob moves a not-yet-running job to FAILED. No quota is held
// at this point, so nothing is released.
func (o *Orchestrator) failQueuedJob(ctx context.Context, job *types.Job, reason string) DispatchResult {
	now := o.clock.Now()
	err := o.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		fresh, err := tx.GetJob(ctx, job.JobId)
		if err != nil {
			return err
		}
		if fresh.IsEnd() {
			return nil
		}
		fresh.Status = types.JobFailed
		fresh.FinishedAt = pq.NullTime{Time: now, Valid: true}
		fresh.ErrorMessage = store.NullString(reason)
		fresh.DispatchCount = job.DispatchCount
		if err = tx.UpdateJob(ctx, fresh); err != nil {
			return err
		}
		*job = *fresh
		return nil
	})
	if err != nil {
		klog.ErrorS(err, "failed to fail job", "job", job.JobId)
		return requeued(reason)
	}
	o.publish(ctx, job, types.JobQueued, types.JobFailed, reason)
	klog.Infof("job %s failed before dispatch: %s", job.JobId, reason)
	return failed(reason)
}

// extractRequest resolves the job's resource request from its columns,
// falling back to the executor configuration.
func (o *Orchestrator) extractRequest(job *types.Job) (resources.Resources, error) {
	if request := job.Request(); !request.IsZero() {
		return request, nil
	}
	cfg, err := job.GetExecutorConfig()
	if err != nil {
		return resources.Resources{}, commonerrors.NewBadRequest(fmt.Sprintf("invalid executor config: %v", err))
	}
	request, err := resources.Parse(configQuantity(cfg["cpu"]), configQuantity(cfg["memory"]), configQuantity(cfg["gpu"]))
	if err != nil {
		return resources.Resources{}, commonerrors.NewBadRequest(err.Error())
	}
	job.SetRequest(request)
	return request, nil
}

// configQuantity renders a JSON config value as a quantity string.
func configQuantity(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == math.Trunc(v) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func resourcesUnbounded() resources.Resources {
	return resources.Resources{
		CPUMilli:    math.MaxInt64,
		MemoryBytes: math.MaxInt64,
		GPU:         math.MaxInt64,
	}
}
