/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/config"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/driver"
	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/events"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/metrics"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/policy"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/quota"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/selector"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

const defaultQueueName = "default"

// Orchestrator owns the scheduling loop: enqueue, tick, dispatch and
// cancellation. It is constructed once at process start and holds no
// global state.
type Orchestrator struct {
	store     store.Store
	registry  *driver.Registry
	provider  quota.Provider
	vdcs      *quota.VdcManager
	selector  *selector.Selector
	policy    policy.Policy
	publisher *events.Publisher
	headroom  *policy.HeadroomTracker

	clock         clock.WithTicker
	tick          time.Duration
	submitTimeout time.Duration
	submitRetry   int
	retryInterval time.Duration
	maxRetry      int
	vdcRouting    bool

	// policies caches per-VDC default policies by name. Only the tick
	// goroutine touches it.
	policies map[string]policy.Policy
}

// Options carries the orchestrator's collaborators. Selector, VdcManager
// and Headroom are optional; the rest are required.
type Options struct {
	Store      store.Store
	Registry   *driver.Registry
	Provider   quota.Provider
	VdcManager *quota.VdcManager
	Selector   *selector.Selector
	Policy     policy.Policy
	Publisher  *events.Publisher
	Headroom   *policy.HeadroomTracker
}

// NewOrchestrator builds the orchestrator from its collaborators and
// process configuration.
func NewOrchestrator(opts Options) *Orchestrator {
	return &Orchestrator{
		store:         opts.Store,
		registry:      opts.Registry,
		provider:      opts.Provider,
		vdcs:          opts.VdcManager,
		selector:      opts.Selector,
		policy:        opts.Policy,
		publisher:     opts.Publisher,
		headroom:      opts.Headroom,
		clock:         clock.RealClock{},
		tick:          time.Duration(config.GetSchedulerTickSecond()) * time.Second,
		submitTimeout: time.Duration(config.GetDriverSubmitTimeoutSecond()) * time.Second,
		submitRetry:   config.GetDriverSubmitRetryCount(),
		retryInterval: 2 * time.Second,
		maxRetry:      config.GetMaxDispatchRetry(),
		vdcRouting:    config.IsVdcRoutingEnable(),
		policies:      map[string]policy.Policy{},
	}
}

// Run drives the scheduling tick until the context ends.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := o.clock.NewTicker(o.tick)
	defer ticker.Stop()
	klog.Infof("scheduler tick every %s with policy %s", o.tick, o.policy.Name())
	for {
		select {
		case <-ctx.Done():
			klog.Infof("scheduler loop stopped")
			return
		case <-ticker.C():
			if err := o.Tick(ctx); err != nil {
				klog.ErrorS(err, "scheduling tick failed")
			}
		}
	}
}

// Enqueue admits a validated job into its project's default queue and
// persists it as QUEUED. Submission handlers call this concurrently.
func (o *Orchestrator) Enqueue(ctx context.Context, job *types.Job) error {
	now := o.clock.Now()
	err := o.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		queue, err := o.defaultQueue(ctx, tx, job.ProjectId)
		if err != nil {
			return err
		}
		position, err := tx.NextQueuePosition(ctx, queue.QueueId)
		if err != nil {
			return err
		}
		job.QueueId = store.NullString(queue.QueueId)
		job.QueuePosition = position
		job.EnqueuedAt = pq.NullTime{Time: now, Valid: true}
		job.Status = types.JobQueued
		if job.MaxRetry == 0 {
			job.MaxRetry = o.maxRetry
		}
		if err = tx.CreateJob(ctx, job); err != nil {
			return err
		}
		queue.TotalJobs++
		queue.PendingJobs++
		return tx.UpdateQueue(ctx, queue)
	})
	if err != nil {
		return err
	}
	o.publish(ctx, job, types.JobPending, types.JobQueued, "")
	klog.Infof("job %s enqueued at position %d in project %s", job.JobId, job.QueuePosition, job.ProjectId)
	return nil
}

// defaultQueue resolves the project's default queue, creating it on
// first use.
func (o *Orchestrator) defaultQueue(ctx context.Context, tx store.Store, projectId string) (*types.JobQueue, error) {
	queue, err := tx.GetQueueByName(ctx, projectId, defaultQueueName)
	if err == nil {
		return queue, nil
	}
	if !commonerrors.IsNotFound(err) {
		return nil, err
	}
	queue = &types.JobQueue{
		QueueId:   uuid.NewString(),
		Name:      defaultQueueName,
		ProjectId: projectId,
		Enabled:   true,
	}
	if err = tx.CreateQueue(ctx, queue); err != nil {
		return nil, err
	}
	klog.Infof("created default queue %s for project %s", queue.QueueId, projectId)
	return queue, nil
}

// Tick runs one scheduling pass over all queues in descending priority.
func (o *Orchestrator) Tick(ctx context.Context) error {
	queues, err := o.store.ListQueues(ctx, "")
	if err != nil {
		return err
	}
	for _, queue := range queues {
		if !queue.Enabled {
			continue
		}
		if err := o.scheduleQueue(ctx, queue); err != nil {
			klog.ErrorS(err, "failed to schedule queue", "queue", queue.QueueId)
		}
	}
	return nil
}

func (o *Orchestrator) scheduleQueue(ctx context.Context, queue *types.JobQueue) error {
	pending, err := o.store.ListJobs(ctx, store.JobFilter{
		QueueId:  queue.QueueId,
		Statuses: []types.JobStatus{types.JobQueued},
		OrderBy:  []string{"queue_position asc"},
	})
	if err != nil {
		return err
	}
	metrics.QueueDepthGauge.WithLabelValues(queue.Name).Set(float64(len(pending)))
	if len(pending) == 0 {
		return nil
	}
	if queue.MaxConcurrentJobs > 0 && queue.RunningJobs >= queue.MaxConcurrentJobs {
		return o.refreshQueued(ctx, queue, "queue at max concurrency")
	}
	o.setHeadroom(ctx, queue.ProjectId)
	pol := o.queuePolicy(ctx, pending)

	for len(pending) > 0 {
		if queue.MaxConcurrentJobs > 0 && queue.RunningJobs >= queue.MaxConcurrentJobs {
			break
		}
		job, err := pol.SelectNext(ctx, queue, pending)
		if err != nil {
			return err
		}
		if job == nil {
			break
		}
		// Check is a cheap projection; Reserve inside TryDispatch stays
		// the authority. A failing projection skips the dispatch attempt
		// but still offers the job to the preemption hook.
		if request, rerr := o.extractRequest(job); rerr == nil &&
			!o.provider.Check(ctx, job.ProjectId, request, job.JobType) {
			result := o.recordWaitReason(ctx, job, "insufficient quota")
			metrics.DispatchOutcomeCnt.WithLabelValues(result.Kind.String()).Inc()
			o.maybePreempt(ctx, queue, job, pol)
			pending = removeJob(pending, job)
			continue
		}
		result := o.TryDispatch(ctx, job, queue)
		metrics.DispatchOutcomeCnt.WithLabelValues(result.Kind.String()).Inc()
		switch result.Kind {
		case OutcomeDispatched:
			queue.RunningJobs++
			queue.PendingJobs = clampInt(queue.PendingJobs - 1)
			if err = o.store.UpdateQueue(ctx, queue); err != nil {
				return err
			}
			o.setHeadroom(ctx, queue.ProjectId)
		case OutcomeQueued:
			o.maybePreempt(ctx, queue, job, pol)
		case OutcomeFailed:
			queue.PendingJobs = clampInt(queue.PendingJobs - 1)
			if err = o.store.UpdateQueue(ctx, queue); err != nil {
				return err
			}
		}
		// A failed attempt never blocks the next candidate.
		pending = removeJob(pending, job)
	}
	return o.refreshQueued(ctx, queue, "")
}

// queuePolicy resolves the policy ordering this pending set. When every
// pending job targets the same VDC and that VDC declares a default
// policy, the declaration wins; otherwise the process-wide policy runs.
func (o *Orchestrator) queuePolicy(ctx context.Context, pending []*types.Job) policy.Policy {
	if !o.vdcRouting {
		return o.policy
	}
	vdcId := ""
	for _, job := range pending {
		if !job.VdcId.Valid {
			return o.policy
		}
		if vdcId == "" {
			vdcId = job.VdcId.String
		} else if vdcId != job.VdcId.String {
			return o.policy
		}
	}
	if vdcId == "" {
		return o.policy
	}
	vdc, err := o.store.GetVdc(ctx, vdcId)
	if err != nil || !vdc.DefaultPolicy.Valid || vdc.DefaultPolicy.String == "" {
		return o.policy
	}
	return o.policyByName(vdc.DefaultPolicy.String)
}

// policyByName builds and caches a policy for a VDC's declared default.
func (o *Orchestrator) policyByName(name string) policy.Policy {
	if p, ok := o.policies[name]; ok {
		return p
	}
	opts := policy.Options{
		Store:            o.store,
		PreemptThreshold: config.GetPreemptThreshold(),
		FairShareWindow:  time.Duration(config.GetFairShareWindowSecond()) * time.Second,
	}
	if o.headroom != nil {
		opts.Headroom = o.headroom.Get
	}
	p, err := policy.New(name, opts)
	if err != nil {
		klog.ErrorS(err, "invalid vdc default policy, using process policy", "policy", name)
		p = o.policy
	}
	o.policies[name] = p
	return p
}

// maybePreempt asks the policy for a victim on behalf of a job that
// could not dispatch; the victim is cancelled and the incoming job
// waits for the next tick.
func (o *Orchestrator) maybePreempt(ctx context.Context, queue *types.JobQueue, incoming *types.Job, pol policy.Policy) {
	running, err := o.store.ListJobs(ctx, store.JobFilter{
		QueueId:  queue.QueueId,
		Statuses: []types.JobStatus{types.JobRunning},
	})
	if err != nil || len(running) == 0 {
		return
	}
	victim := pol.ShouldPreempt(ctx, running, incoming)
	if victim == nil {
		return
	}
	klog.Infof("preempting job %s (priority %d) for job %s (priority %d)",
		victim.JobId, victim.Priority, incoming.JobId, incoming.Priority)
	if err = o.Cancel(ctx, victim.JobId, "preempted by higher priority job"); err != nil {
		klog.ErrorS(err, "failed to preempt", "job", victim.JobId)
	}
}

// refreshQueued renumbers the queue positions of the still-queued jobs
// and records the wait reason where one is known.
func (o *Orchestrator) refreshQueued(ctx context.Context, queue *types.JobQueue, reason string) error {
	queued, err := o.store.ListJobs(ctx, store.JobFilter{
		QueueId:  queue.QueueId,
		Statuses: []types.JobStatus{types.JobQueued},
		OrderBy:  []string{"queue_position asc"},
	})
	if err != nil {
		return err
	}
	for i, job := range queued {
		position := i + 1
		changed := job.QueuePosition != position
		if reason != "" && job.ErrorMessage.String != reason {
			job.ErrorMessage = store.NullString(reason)
			changed = true
		}
		if !changed {
			continue
		}
		job.QueuePosition = position
		if err = o.store.UpdateJob(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// setHeadroom publishes the project's remaining quota to the backfill
// policy, when one is wired.
func (o *Orchestrator) setHeadroom(ctx context.Context, projectId string) {
	if o.headroom == nil {
		return
	}
	snapshot, err := o.provider.GetQuota(ctx, projectId)
	if err != nil {
		// An unmetered project has effectively unbounded headroom.
		o.headroom.Set(resourcesUnbounded())
		return
	}
	o.headroom.Set(snapshot.Available())
}

func (o *Orchestrator) publish(ctx context.Context, job *types.Job, from, to types.JobStatus, reason string) {
	metrics.StatusTransitionCnt.WithLabelValues(string(to)).Inc()
	if o.publisher == nil {
		return
	}
	o.publisher.Publish(ctx, events.NewJobStatusChange(job, from, to, reason))
}

func removeJob(jobs []*types.Job, target *types.Job) []*types.Job {
	out := jobs[:0]
	for _, job := range jobs {
		if job.JobId != target.JobId {
			out = append(out, job)
		}
	}
	return out
}

func clampInt(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
