/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/driver"
	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/events"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/policy"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/quota"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/resources"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/selector"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

type fakeDriver struct {
	mu             sync.Mutex
	attempts       int
	submits        int
	submitErr      error
	submitFailures int
	statuses       map[string]types.JobStatus
	cancelled      []string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{statuses: map[string]types.JobStatus{}}
}

func (d *fakeDriver) Submit(ctx context.Context, job *types.Job) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.submitFailures > 0 {
		d.submitFailures--
		return "", commonerrors.NewDriverTransient("backend unavailable")
	}
	if d.submitErr != nil {
		return "", d.submitErr
	}
	d.submits++
	externalId := fmt.Sprintf("ext-%d", d.submits)
	d.statuses[externalId] = types.JobRunning
	return externalId, nil
}

func (d *fakeDriver) Status(ctx context.Context, externalId string) (types.JobStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	status, ok := d.statuses[externalId]
	if !ok {
		return "", commonerrors.NewNotFound("job", externalId)
	}
	return status, nil
}

func (d *fakeDriver) Cancel(ctx context.Context, externalId string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.statuses[externalId]; !ok {
		return commonerrors.NewNotFound("job", externalId)
	}
	d.cancelled = append(d.cancelled, externalId)
	d.statuses[externalId] = types.JobCancelled
	return nil
}

func (d *fakeDriver) Logs(ctx context.Context, externalId string) (string, error) {
	return "", nil
}

func (d *fakeDriver) Metrics(ctx context.Context, externalId string) (map[string]interface{}, error) {
	return nil, nil
}

type fixture struct {
	store store.Store
	drv   *fakeDriver
	o     *Orchestrator
}

func newFixture(t *testing.T, policyName string, preemptThreshold int) *fixture {
	s := store.NewMemoryStore()
	drv := newFakeDriver()
	registry := driver.NewRegistry()
	registry.Register(types.ExecutorKubernetes, drv)
	pol, err := policy.New(policyName, policy.Options{Store: s, PreemptThreshold: preemptThreshold})
	require.NoError(t, err)
	o := NewOrchestrator(Options{
		Store:     s,
		Registry:  registry,
		Provider:  quota.NewLocalProvider(s),
		Policy:    pol,
		Publisher: events.NewPublisher(),
	})
	o.retryInterval = time.Millisecond
	return &fixture{store: s, drv: drv, o: o}
}

func (f *fixture) createQuota(t *testing.T, maxConcurrent int) {
	require.NoError(t, f.store.CreateProjectQuota(context.Background(), &types.ProjectQuota{
		ProjectId:        "proj-a",
		EnforceQuota:     true,
		CpuLimitMilli:    4000,
		MemoryLimitBytes: 8 << 30,
		GpuLimit:         2,
		MaxConcurrent:    maxConcurrent,
	}))
}

func testJob(id string, priority int) *types.Job {
	job := &types.Job{
		JobId:          id,
		Name:           id,
		ProjectId:      "proj-a",
		UserId:         "alice",
		JobType:        types.JobTypeTraining,
		Executor:       types.ExecutorKubernetes,
		Priority:       priority,
		ExecutorConfig: `{"image": "busybox"}`,
		Status:         types.JobPending,
	}
	job.SetRequest(resources.Resources{CPUMilli: 2000, MemoryBytes: 4 << 30, GPU: 1})
	return job
}

func TestEnqueueCreatesDefaultQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, policy.KindFifo, 0)

	first := testJob("job-1", 0)
	require.NoError(t, f.o.Enqueue(ctx, first))
	assert.Equal(t, types.JobQueued, first.Status)
	assert.Equal(t, 1, first.QueuePosition)
	require.True(t, first.QueueId.Valid)

	queue, err := f.store.GetQueueByName(ctx, "proj-a", defaultQueueName)
	require.NoError(t, err)
	assert.Equal(t, first.QueueId.String, queue.QueueId)
	assert.Equal(t, 1, queue.PendingJobs)

	second := testJob("job-2", 0)
	require.NoError(t, f.o.Enqueue(ctx, second))
	assert.Equal(t, 2, second.QueuePosition)
	assert.Equal(t, queue.QueueId, second.QueueId.String)
}

func TestDispatchRunsJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, policy.KindFifo, 0)
	f.createQuota(t, 0)

	job := testJob("job-1", 0)
	require.NoError(t, f.o.Enqueue(ctx, job))
	require.NoError(t, f.o.Tick(ctx))

	got, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobRunning, got.Status)
	assert.Equal(t, "ext-1", got.ExternalId.String)
	assert.True(t, got.StartedAt.Valid)

	snapshot, err := f.o.provider.GetQuota(ctx, "proj-a")
	require.NoError(t, err)
	assert.Equal(t, job.Request(), snapshot.Used)
	assert.Equal(t, 1, snapshot.RunningJobs)

	queue, err := f.store.GetQueue(ctx, got.QueueId.String)
	require.NoError(t, err)
	assert.Equal(t, 1, queue.RunningJobs)
	assert.Equal(t, 0, queue.PendingJobs)
}

func TestDispatchQuotaBlocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, policy.KindFifo, 0)
	require.NoError(t, f.store.CreateProjectQuota(ctx, &types.ProjectQuota{
		ProjectId:     "proj-a",
		EnforceQuota:  true,
		CpuLimitMilli: 1000,
	}))

	job := testJob("job-1", 0)
	require.NoError(t, f.o.Enqueue(ctx, job))
	require.NoError(t, f.o.Tick(ctx))

	got, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobQueued, got.Status)
	assert.Contains(t, got.ErrorMessage.String, "insufficient quota")
	assert.Equal(t, 0, f.drv.submits)

	snapshot, err := f.o.provider.GetQuota(ctx, "proj-a")
	require.NoError(t, err)
	assert.True(t, snapshot.Used.IsZero())
}

func TestCompleteReleasesQuota(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, policy.KindFifo, 0)
	f.createQuota(t, 0)

	job := testJob("job-1", 0)
	require.NoError(t, f.o.Enqueue(ctx, job))
	require.NoError(t, f.o.Tick(ctx))

	require.NoError(t, f.o.Complete(ctx, "job-1", types.JobSucceeded, ""))
	got, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobSucceeded, got.Status)
	assert.True(t, got.FinishedAt.Valid)

	snapshot, err := f.o.provider.GetQuota(ctx, "proj-a")
	require.NoError(t, err)
	assert.True(t, snapshot.Used.IsZero())
	assert.Equal(t, 0, snapshot.RunningJobs)

	queue, err := f.store.GetQueue(ctx, got.QueueId.String)
	require.NoError(t, err)
	assert.Equal(t, 0, queue.RunningJobs)

	// Completing again is a no-op.
	require.NoError(t, f.o.Complete(ctx, "job-1", types.JobFailed, "late"))
	got, err = f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobSucceeded, got.Status)
}

func TestCancelRunningJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, policy.KindFifo, 0)
	f.createQuota(t, 0)

	job := testJob("job-1", 0)
	require.NoError(t, f.o.Enqueue(ctx, job))
	require.NoError(t, f.o.Tick(ctx))

	require.NoError(t, f.o.Cancel(ctx, "job-1", "cancelled by alice"))
	got, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobCancelled, got.Status)
	assert.Equal(t, "cancelled by alice", got.ErrorMessage.String)
	assert.Equal(t, []string{"ext-1"}, f.drv.cancelled)

	// Cancelling a terminal job is a no-op.
	require.NoError(t, f.o.Cancel(ctx, "job-1", "again"))
	assert.Len(t, f.drv.cancelled, 1)
}

func TestQueueMaxConcurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, policy.KindFifo, 0)
	f.createQuota(t, 0)

	first := testJob("job-1", 0)
	require.NoError(t, f.o.Enqueue(ctx, first))

	queue, err := f.store.GetQueue(ctx, first.QueueId.String)
	require.NoError(t, err)
	queue.MaxConcurrentJobs = 1
	require.NoError(t, f.store.UpdateQueue(ctx, queue))

	second := testJob("job-2", 0)
	require.NoError(t, f.o.Enqueue(ctx, second))
	require.NoError(t, f.o.Tick(ctx))

	got, err := f.store.GetJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, types.JobQueued, got.Status)

	require.NoError(t, f.o.Tick(ctx))
	got, err = f.store.GetJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, types.JobQueued, got.Status)
	assert.Equal(t, "queue at max concurrency", got.ErrorMessage.String)

	require.NoError(t, f.o.Complete(ctx, "job-1", types.JobSucceeded, ""))
	require.NoError(t, f.o.Tick(ctx))
	got, err = f.store.GetJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, types.JobRunning, got.Status)
}

func TestSubmitRetryBudget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, policy.KindFifo, 0)
	f.createQuota(t, 0)
	f.drv.submitErr = commonerrors.NewDriverTransient("backend unavailable")

	job := testJob("job-1", 0)
	job.MaxRetry = 2
	require.NoError(t, f.o.Enqueue(ctx, job))

	require.NoError(t, f.o.Tick(ctx))
	got, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobQueued, got.Status)
	assert.Equal(t, 1, got.DispatchCount)

	// The failed reservation must have been rolled back.
	snapshot, err := f.o.provider.GetQuota(ctx, "proj-a")
	require.NoError(t, err)
	assert.True(t, snapshot.Used.IsZero())

	require.NoError(t, f.o.Tick(ctx))
	got, err = f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, got.Status)
	assert.Contains(t, got.ErrorMessage.String, "max dispatch retries exceeded")
}

func TestPermanentSubmitFailureFailsFast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, policy.KindFifo, 0)
	f.createQuota(t, 0)
	f.drv.submitErr = commonerrors.NewDriverPermanent("image not found")

	job := testJob("job-1", 0)
	require.NoError(t, f.o.Enqueue(ctx, job))
	require.NoError(t, f.o.Tick(ctx))

	got, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, got.Status)
	assert.Contains(t, got.ErrorMessage.String, "image not found")
}

func TestPreemptionCancelsVictim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, policy.KindPriority, 10)
	f.createQuota(t, 1)

	low := testJob("job-low", 0)
	require.NoError(t, f.o.Enqueue(ctx, low))
	require.NoError(t, f.o.Tick(ctx))
	got, err := f.store.GetJob(ctx, "job-low")
	require.NoError(t, err)
	require.Equal(t, types.JobRunning, got.Status)

	high := testJob("job-high", 20)
	require.NoError(t, f.o.Enqueue(ctx, high))
	require.NoError(t, f.o.Tick(ctx))

	victim, err := f.store.GetJob(ctx, "job-low")
	require.NoError(t, err)
	assert.Equal(t, types.JobCancelled, victim.Status)
	assert.Equal(t, "preempted by higher priority job", victim.ErrorMessage.String)

	// The incoming job lands on the next pass, once the slot is free.
	require.NoError(t, f.o.Tick(ctx))
	got, err = f.store.GetJob(ctx, "job-high")
	require.NoError(t, err)
	assert.Equal(t, types.JobRunning, got.Status)
}

func TestVdcRoutingDispatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, policy.KindFifo, 0)
	f.createQuota(t, 0)
	f.o.vdcRouting = true
	f.o.vdcs = quota.NewVdcManager(f.store)
	f.o.selector = selector.NewSelector(f.store)

	require.NoError(t, f.store.CreateVdc(ctx, &types.Vdc{
		VdcId: "vdc-1", Name: "vdc-1", Enabled: true,
	}))
	require.NoError(t, f.store.CreateCluster(ctx, &types.Cluster{
		ClusterId:           "cl-1",
		Name:                "cl-1",
		VdcId:               store.NullString("vdc-1"),
		ClusterType:         string(types.ExecutorKubernetes),
		Status:              string(types.ClusterHealthy),
		Enabled:             true,
		CpuCapacityMilli:    16000,
		MemoryCapacityBytes: 64 << 30,
		GpuCapacity:         8,
	}))
	require.NoError(t, f.store.CreateProjectVdcQuota(ctx, &types.ProjectVdcQuota{
		ProjectId:        "proj-a",
		VdcId:            "vdc-1",
		EnforceQuota:     true,
		CpuLimitMilli:    8000,
		MemoryLimitBytes: 32 << 30,
		GpuLimit:         4,
	}))

	job := testJob("job-1", 0)
	job.VdcId = store.NullString("vdc-1")
	require.NoError(t, f.o.Enqueue(ctx, job))
	require.NoError(t, f.o.Tick(ctx))

	got, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, types.JobRunning, got.Status)
	assert.Equal(t, "cl-1", got.ClusterId.String)

	cluster, err := f.store.GetCluster(ctx, "cl-1")
	require.NoError(t, err)
	assert.Equal(t, job.Request(), cluster.Used())
	assert.Equal(t, 1, cluster.RunningJobs)

	vdc, err := f.store.GetVdc(ctx, "vdc-1")
	require.NoError(t, err)
	assert.Equal(t, job.Request(), vdc.Used())

	require.NoError(t, f.o.Complete(ctx, "job-1", types.JobSucceeded, ""))
	cluster, err = f.store.GetCluster(ctx, "cl-1")
	require.NoError(t, err)
	assert.True(t, cluster.Used().IsZero())
	vdc, err = f.store.GetVdc(ctx, "vdc-1")
	require.NoError(t, err)
	assert.True(t, vdc.Used().IsZero())
}

func TestVdcAllocationMissingKeepsJobQueued(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, policy.KindFifo, 0)
	f.createQuota(t, 0)
	f.o.vdcRouting = true
	f.o.vdcs = quota.NewVdcManager(f.store)
	f.o.selector = selector.NewSelector(f.store)

	require.NoError(t, f.store.CreateVdc(ctx, &types.Vdc{
		VdcId: "vdc-1", Name: "vdc-1", Enabled: true,
	}))

	job := testJob("job-1", 0)
	job.VdcId = store.NullString("vdc-1")
	require.NoError(t, f.o.Enqueue(ctx, job))
	require.NoError(t, f.o.Tick(ctx))

	got, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobQueued, got.Status)
	assert.Contains(t, got.ErrorMessage.String, "no allocation in vdc")

	// The project-tier reservation must not leak while the job waits.
	snapshot, err := f.o.provider.GetQuota(ctx, "proj-a")
	require.NoError(t, err)
	assert.True(t, snapshot.Used.IsZero())
}

func TestTransientSubmitFailureRetriedInPlace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, policy.KindFifo, 0)
	f.createQuota(t, 0)
	f.drv.submitFailures = 2

	job := testJob("job-1", 0)
	require.NoError(t, f.o.Enqueue(ctx, job))
	require.NoError(t, f.o.Tick(ctx))

	got, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobRunning, got.Status)
	// Two transient failures are absorbed within the attempt, so the
	// dispatch retry budget is untouched.
	assert.Equal(t, 3, f.drv.attempts)
	assert.Equal(t, 0, got.DispatchCount)
}

type countingProvider struct {
	quota.Provider
	mu       sync.Mutex
	checks   int
	reserves int
}

func (p *countingProvider) Check(ctx context.Context, projectId string, request resources.Resources, jobType types.JobType) bool {
	p.mu.Lock()
	p.checks++
	p.mu.Unlock()
	return p.Provider.Check(ctx, projectId, request, jobType)
}

func (p *countingProvider) Reserve(ctx context.Context, projectId string, request resources.Resources, jobType types.JobType) (bool, string, error) {
	p.mu.Lock()
	p.reserves++
	p.mu.Unlock()
	return p.Provider.Reserve(ctx, projectId, request, jobType)
}

func TestQuotaCheckShortCircuitsReserve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, policy.KindFifo, 0)
	require.NoError(t, f.store.CreateProjectQuota(ctx, &types.ProjectQuota{
		ProjectId:     "proj-a",
		EnforceQuota:  true,
		CpuLimitMilli: 1000,
	}))
	provider := &countingProvider{Provider: f.o.provider}
	f.o.provider = provider

	job := testJob("job-1", 0)
	require.NoError(t, f.o.Enqueue(ctx, job))
	require.NoError(t, f.o.Tick(ctx))

	got, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobQueued, got.Status)
	assert.Contains(t, got.ErrorMessage.String, "insufficient quota")
	assert.Equal(t, 1, provider.checks)
	assert.Equal(t, 0, provider.reserves)
	assert.Equal(t, 0, f.drv.attempts)
}

func TestVdcDefaultPolicyOrdersQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, policy.KindFifo, 0)
	f.createQuota(t, 1)
	f.o.vdcRouting = true
	f.o.vdcs = quota.NewVdcManager(f.store)
	f.o.selector = selector.NewSelector(f.store)

	require.NoError(t, f.store.CreateVdc(ctx, &types.Vdc{
		VdcId:         "vdc-1",
		Name:          "vdc-1",
		Enabled:       true,
		DefaultPolicy: store.NullString(policy.KindPriority),
	}))
	require.NoError(t, f.store.CreateCluster(ctx, &types.Cluster{
		ClusterId:           "cl-1",
		Name:                "cl-1",
		VdcId:               store.NullString("vdc-1"),
		ClusterType:         string(types.ExecutorKubernetes),
		Status:              string(types.ClusterHealthy),
		Enabled:             true,
		CpuCapacityMilli:    16000,
		MemoryCapacityBytes: 64 << 30,
		GpuCapacity:         8,
	}))
	require.NoError(t, f.store.CreateProjectVdcQuota(ctx, &types.ProjectVdcQuota{
		ProjectId:        "proj-a",
		VdcId:            "vdc-1",
		EnforceQuota:     true,
		CpuLimitMilli:    8000,
		MemoryLimitBytes: 32 << 30,
		GpuLimit:         4,
	}))

	low := testJob("job-low", 0)
	low.VdcId = store.NullString("vdc-1")
	require.NoError(t, f.o.Enqueue(ctx, low))
	high := testJob("job-high", 20)
	high.VdcId = store.NullString("vdc-1")
	require.NoError(t, f.o.Enqueue(ctx, high))

	// The process policy is fifo, which would dispatch job-low first;
	// the VDC's declared default orders by priority instead.
	require.NoError(t, f.o.Tick(ctx))

	got, err := f.store.GetJob(ctx, "job-high")
	require.NoError(t, err)
	assert.Equal(t, types.JobRunning, got.Status)
	got, err = f.store.GetJob(ctx, "job-low")
	require.NoError(t, err)
	assert.Equal(t, types.JobQueued, got.Status)
}
