/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package reconciler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/config"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/driver"
	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/metrics"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/scheduler"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// Reconciler polls the backends for every RUNNING job and drives
// terminal transitions through the orchestrator's completion hook. It
// also hosts the cron-driven quota audit sweep.
type Reconciler struct {
	store        store.Store
	registry     *driver.Registry
	orchestrator *scheduler.Orchestrator

	clock             clock.WithTicker
	tick              time.Duration
	readTimeout       time.Duration
	syncFailThreshold int
	jobTTL            time.Duration
}

// NewReconciler builds the reconciler from its collaborators and
// process configuration.
func NewReconciler(s store.Store, registry *driver.Registry, orchestrator *scheduler.Orchestrator) *Reconciler {
	return &Reconciler{
		store:             s,
		registry:          registry,
		orchestrator:      orchestrator,
		clock:             clock.RealClock{},
		tick:              time.Duration(config.GetReconcileTickSecond()) * time.Second,
		readTimeout:       time.Duration(config.GetDriverReadTimeoutSecond()) * time.Second,
		syncFailThreshold: config.GetStatusSyncFailThreshold(),
		jobTTL:            time.Duration(config.GetJobTTLSecond()) * time.Second,
	}
}

// Run drives the reconcile tick and the audit cron until the context
// ends.
func (r *Reconciler) Run(ctx context.Context) {
	auditCron := cron.New()
	if _, err := auditCron.AddFunc(config.GetQuotaAuditCron(), func() {
		if err := r.Audit(ctx); err != nil {
			klog.ErrorS(err, "quota audit sweep failed")
		}
	}); err != nil {
		klog.ErrorS(err, "invalid quota audit schedule")
	} else {
		auditCron.Start()
		defer auditCron.Stop()
	}

	ticker := r.clock.NewTicker(r.tick)
	defer ticker.Stop()
	klog.Infof("reconciler tick every %s", r.tick)
	for {
		select {
		case <-ctx.Done():
			klog.Infof("reconciler loop stopped")
			return
		case <-ticker.C():
			if err := r.Tick(ctx); err != nil {
				klog.ErrorS(err, "reconcile tick failed")
			}
		}
	}
}

// Tick reconciles every RUNNING job once. A failure on one job never
// stops the loop.
func (r *Reconciler) Tick(ctx context.Context) error {
	start := r.clock.Now()
	defer func() {
		metrics.ReconcileDuration.Observe(r.clock.Since(start).Seconds())
	}()

	running, err := r.store.ListJobs(ctx, store.JobFilter{
		Statuses: []types.JobStatus{types.JobRunning},
		OrderBy:  []string{"started_at asc"},
	})
	if err != nil {
		return err
	}
	for _, job := range running {
		if err := r.syncJob(ctx, job); err != nil {
			klog.ErrorS(err, "failed to sync job", "job", job.JobId)
		}
	}
	return nil
}

// syncJob reads the backend state of one RUNNING job and applies it.
func (r *Reconciler) syncJob(ctx context.Context, job *types.Job) error {
	if !job.ExternalId.Valid {
		// Should not happen for a RUNNING job; fail it so quota is
		// returned rather than leaked.
		return r.orchestrator.Complete(ctx, job.JobId, types.JobFailed, "running job has no backend handle")
	}
	drv, err := r.registry.Get(job.Executor)
	if err != nil {
		return r.recordSyncFailure(ctx, job, err)
	}

	rctx, cancel := context.WithTimeout(ctx, r.readTimeout)
	status, err := drv.Status(rctx, job.ExternalId.String)
	cancel()
	if err != nil {
		if commonerrors.IsNotFound(err) {
			return r.orchestrator.Complete(ctx, job.JobId, types.JobFailed, "backend object not found")
		}
		metrics.ReconcileErrorCnt.Inc()
		return r.recordSyncFailure(ctx, job, err)
	}

	if job.SyncFailures > 0 {
		job.SyncFailures = 0
		if err = r.store.UpdateJob(ctx, job); err != nil {
			return err
		}
	}
	if !types.IsTerminal(status) {
		return nil
	}
	return r.orchestrator.Complete(ctx, job.JobId, status, "")
}

// recordSyncFailure counts a consecutive read failure and fails the
// job once the threshold is crossed.
func (r *Reconciler) recordSyncFailure(ctx context.Context, job *types.Job, cause error) error {
	job.SyncFailures++
	klog.V(2).Infof("status read %d/%d failed for job %s: %v",
		job.SyncFailures, r.syncFailThreshold, job.JobId, cause)
	if err := r.store.UpdateJob(ctx, job); err != nil {
		return err
	}
	if job.SyncFailures >= r.syncFailThreshold {
		return r.orchestrator.Complete(ctx, job.JobId, types.JobFailed, "status-sync failed")
	}
	return nil
}
