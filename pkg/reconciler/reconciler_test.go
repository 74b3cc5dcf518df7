/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package reconciler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/clock"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/driver"
	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/events"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/policy"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/quota"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/resources"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/scheduler"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

type stubDriver struct {
	mu        sync.Mutex
	submits   int
	statuses  map[string]types.JobStatus
	statusErr error
}

func newStubDriver() *stubDriver {
	return &stubDriver{statuses: map[string]types.JobStatus{}}
}

func (d *stubDriver) Submit(ctx context.Context, job *types.Job) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submits++
	externalId := fmt.Sprintf("ext-%d", d.submits)
	d.statuses[externalId] = types.JobRunning
	return externalId, nil
}

func (d *stubDriver) Status(ctx context.Context, externalId string) (types.JobStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.statusErr != nil {
		return "", d.statusErr
	}
	status, ok := d.statuses[externalId]
	if !ok {
		return "", commonerrors.NewNotFound("job", externalId)
	}
	return status, nil
}

func (d *stubDriver) Cancel(ctx context.Context, externalId string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.statuses, externalId)
	return nil
}

func (d *stubDriver) Logs(ctx context.Context, externalId string) (string, error) {
	return "", nil
}

func (d *stubDriver) Metrics(ctx context.Context, externalId string) (map[string]interface{}, error) {
	return nil, nil
}

func (d *stubDriver) setStatus(externalId string, status types.JobStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses[externalId] = status
}

func (d *stubDriver) forget(externalId string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.statuses, externalId)
}

type reconcilerFixture struct {
	store store.Store
	drv   *stubDriver
	o     *scheduler.Orchestrator
	r     *Reconciler
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	s := store.NewMemoryStore()
	drv := newStubDriver()
	registry := driver.NewRegistry()
	registry.Register(types.ExecutorKubernetes, drv)
	pol, err := policy.New(policy.KindFifo, policy.Options{Store: s})
	require.NoError(t, err)
	o := scheduler.NewOrchestrator(scheduler.Options{
		Store:     s,
		Registry:  registry,
		Provider:  quota.NewLocalProvider(s),
		Policy:    pol,
		Publisher: events.NewPublisher(),
	})
	r := NewReconciler(s, registry, o)
	r.clock = clock.RealClock{}
	r.readTimeout = time.Second
	r.syncFailThreshold = 3
	return &reconcilerFixture{store: s, drv: drv, o: o, r: r}
}

// runJob enqueues and dispatches one job, returning its external id.
func (f *reconcilerFixture) runJob(t *testing.T, jobId string) string {
	ctx := context.Background()
	job := &types.Job{
		JobId:          jobId,
		Name:           jobId,
		ProjectId:      "proj-a",
		UserId:         "alice",
		JobType:        types.JobTypeTraining,
		Executor:       types.ExecutorKubernetes,
		ExecutorConfig: `{"image": "busybox"}`,
		Status:         types.JobPending,
	}
	job.SetRequest(resources.Resources{CPUMilli: 1000, MemoryBytes: 2 << 30, GPU: 1})
	require.NoError(t, f.o.Enqueue(ctx, job))
	require.NoError(t, f.o.Tick(ctx))
	got, err := f.store.GetJob(ctx, jobId)
	require.NoError(t, err)
	require.Equal(t, types.JobRunning, got.Status)
	return got.ExternalId.String
}

func TestReconcileTerminalTransition(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	externalId := f.runJob(t, "job-1")

	// Still running at the backend, nothing changes.
	require.NoError(t, f.r.Tick(ctx))
	got, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobRunning, got.Status)

	f.drv.setStatus(externalId, types.JobSucceeded)
	require.NoError(t, f.r.Tick(ctx))
	got, err = f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobSucceeded, got.Status)
	assert.True(t, got.FinishedAt.Valid)

	snapshot, err := quota.NewLocalProvider(f.store).GetQuota(ctx, "proj-a")
	require.NoError(t, err)
	assert.True(t, snapshot.Used.IsZero())

	// A second pass over the terminal job is a no-op.
	require.NoError(t, f.r.Tick(ctx))
	again, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, got.FinishedAt.Time, again.FinishedAt.Time)
}

func TestReconcileBackendObjectGone(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	externalId := f.runJob(t, "job-1")

	f.drv.forget(externalId)
	require.NoError(t, f.r.Tick(ctx))

	got, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, got.Status)
	assert.Equal(t, "backend object not found", got.ErrorMessage.String)
}

func TestReconcileSyncFailureThreshold(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	f.runJob(t, "job-1")
	f.drv.statusErr = commonerrors.NewDriverTransient("api server unavailable")

	for i := 1; i < f.r.syncFailThreshold; i++ {
		require.NoError(t, f.r.Tick(ctx))
		got, err := f.store.GetJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, types.JobRunning, got.Status)
		assert.Equal(t, i, got.SyncFailures)
	}

	require.NoError(t, f.r.Tick(ctx))
	got, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, got.Status)
	assert.Equal(t, "status-sync failed", got.ErrorMessage.String)
}

func TestReconcileSyncFailureResets(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	f.runJob(t, "job-1")

	f.drv.statusErr = commonerrors.NewDriverTransient("api server unavailable")
	require.NoError(t, f.r.Tick(ctx))
	got, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, 1, got.SyncFailures)

	f.drv.statusErr = nil
	require.NoError(t, f.r.Tick(ctx))
	got, err = f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobRunning, got.Status)
	assert.Equal(t, 0, got.SyncFailures)
}

func TestAuditCorrectsCounterDrift(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	require.NoError(t, f.store.CreateProjectQuota(ctx, &types.ProjectQuota{
		ProjectId:     "proj-a",
		EnforceQuota:  true,
		CpuLimitMilli: 8000,
	}))
	f.runJob(t, "job-1")

	// Inject drift the way a crash between store writes would.
	row, err := f.store.GetProjectQuota(ctx, "proj-a")
	require.NoError(t, err)
	row.SetUsed(resources.Resources{CPUMilli: 7000, MemoryBytes: 99 << 30, GPU: 5})
	row.RunningJobs = 4
	require.NoError(t, f.store.UpdateProjectQuota(ctx, row))

	job, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	queue, err := f.store.GetQueue(ctx, job.QueueId.String)
	require.NoError(t, err)
	queue.RunningJobs = 9
	queue.PendingJobs = 9
	require.NoError(t, f.store.UpdateQueue(ctx, queue))

	require.NoError(t, f.r.Audit(ctx))

	row, err = f.store.GetProjectQuota(ctx, "proj-a")
	require.NoError(t, err)
	assert.Equal(t, job.Request(), row.Used())
	assert.Equal(t, 1, row.RunningJobs)
	assert.Equal(t, 1, row.RunningTraining)

	queue, err = f.store.GetQueue(ctx, job.QueueId.String)
	require.NoError(t, err)
	assert.Equal(t, 1, queue.RunningJobs)
	assert.Equal(t, 0, queue.PendingJobs)
}

func TestSweepExpiredJobs(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	f.r.jobTTL = time.Hour

	externalId := f.runJob(t, "job-1")
	f.drv.setStatus(externalId, types.JobSucceeded)
	require.NoError(t, f.r.Tick(ctx))

	// Fresh terminal jobs survive the sweep.
	require.NoError(t, f.r.Audit(ctx))
	fresh, err := f.store.ListJobs(ctx, store.JobFilter{ProjectId: "proj-a"})
	require.NoError(t, err)
	require.Len(t, fresh, 1)

	job, err := f.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	job.FinishedAt.Time = job.FinishedAt.Time.Add(-2 * time.Hour)
	require.NoError(t, f.store.UpdateJob(ctx, job))

	require.NoError(t, f.r.Audit(ctx))
	remaining, err := f.store.ListJobs(ctx, store.JobFilter{ProjectId: "proj-a"})
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
