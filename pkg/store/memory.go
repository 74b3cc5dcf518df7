/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// memoryData holds every table. Rows are stored by value so that a
// caller mutating a returned struct cannot corrupt the store without
// an explicit Update call.
type memoryData struct {
	jobs          map[string]types.Job
	queues        map[string]types.JobQueue
	projectQuotas map[string]types.ProjectQuota
	vdcs          map[string]types.Vdc
	clusters      map[string]types.Cluster
	pvQuotas      map[string]types.ProjectVdcQuota
	nextId        int64
}

// memoryStore is an in-process Store for tests and single-node
// development. Atomic serializes on one mutex and restores a snapshot
// when the transaction function fails, matching the rollback the
// PostgreSQL store gets for free.
type memoryStore struct {
	mu   *sync.Mutex
	data *memoryData
	inTx bool
}

// NewMemoryStore creates an empty in-process Store.
func NewMemoryStore() Store {
	return &memoryStore{
		mu: &sync.Mutex{},
		data: &memoryData{
			jobs:          map[string]types.Job{},
			queues:        map[string]types.JobQueue{},
			projectQuotas: map[string]types.ProjectQuota{},
			vdcs:          map[string]types.Vdc{},
			clusters:      map[string]types.Cluster{},
			pvQuotas:      map[string]types.ProjectVdcQuota{},
			nextId:        1,
		},
	}
}

// Close is a no-op for the in-memory store.
func (m *memoryStore) Close() {}

// Atomic serializes fn on the store mutex and rolls back on error.
func (m *memoryStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if m.inTx {
		return fn(ctx, m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.data.snapshot()
	view := &memoryStore{mu: m.mu, data: m.data, inTx: true}
	if err := fn(ctx, view); err != nil {
		*m.data = *snapshot
		return err
	}
	return nil
}

func (d *memoryData) snapshot() *memoryData {
	copied := &memoryData{
		jobs:          make(map[string]types.Job, len(d.jobs)),
		queues:        make(map[string]types.JobQueue, len(d.queues)),
		projectQuotas: make(map[string]types.ProjectQuota, len(d.projectQuotas)),
		vdcs:          make(map[string]types.Vdc, len(d.vdcs)),
		clusters:      make(map[string]types.Cluster, len(d.clusters)),
		pvQuotas:      make(map[string]types.ProjectVdcQuota, len(d.pvQuotas)),
		nextId:        d.nextId,
	}
	for k, v := range d.jobs {
		copied.jobs[k] = v
	}
	for k, v := range d.queues {
		copied.queues[k] = v
	}
	for k, v := range d.projectQuotas {
		copied.projectQuotas[k] = v
	}
	for k, v := range d.vdcs {
		copied.vdcs[k] = v
	}
	for k, v := range d.clusters {
		copied.clusters[k] = v
	}
	for k, v := range d.pvQuotas {
		copied.pvQuotas[k] = v
	}
	return copied
}

func (m *memoryStore) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *memoryStore) assignId() int64 {
	id := m.data.nextId
	m.data.nextId++
	return id
}

// CreateJob inserts a job.
func (m *memoryStore) CreateJob(ctx context.Context, job *types.Job) error {
	if job == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	defer m.lock()()
	if _, ok := m.data.jobs[job.JobId]; ok {
		return commonerrors.NewAlreadyExist("job " + job.JobId)
	}
	if job.Id == 0 {
		job.Id = m.assignId()
	}
	m.data.jobs[job.JobId] = *job
	return nil
}

// GetJob fetches a job by id.
func (m *memoryStore) GetJob(ctx context.Context, jobId string) (*types.Job, error) {
	defer m.lock()()
	job, ok := m.data.jobs[jobId]
	if !ok {
		return nil, commonerrors.NewNotFound("Job", jobId)
	}
	return &job, nil
}

// UpdateJob replaces the stored job row.
func (m *memoryStore) UpdateJob(ctx context.Context, job *types.Job) error {
	if job == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	defer m.lock()()
	if _, ok := m.data.jobs[job.JobId]; !ok {
		return commonerrors.NewNotFound("Job", job.JobId)
	}
	job.UpdateTime = NullTime(time.Now().UTC())
	m.data.jobs[job.JobId] = *job
	return nil
}

// SetJobDeleted soft-deletes a job.
func (m *memoryStore) SetJobDeleted(ctx context.Context, jobId string) error {
	defer m.lock()()
	job, ok := m.data.jobs[jobId]
	if !ok {
		return commonerrors.NewNotFound("Job", jobId)
	}
	job.IsDeleted = true
	m.data.jobs[jobId] = job
	return nil
}

// ListJobs runs a filtered, ordered select over the job table.
func (m *memoryStore) ListJobs(ctx context.Context, filter JobFilter) ([]*types.Job, error) {
	defer m.lock()()
	var jobs []*types.Job
	for _, job := range m.data.jobs {
		if matchJob(&job, filter) {
			row := job
			jobs = append(jobs, &row)
		}
	}
	sortJobs(jobs, jobOrderBy(filter))
	if filter.Offset > 0 {
		if filter.Offset >= len(jobs) {
			return nil, nil
		}
		jobs = jobs[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(jobs) {
		jobs = jobs[:filter.Limit]
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the filter.
func (m *memoryStore) CountJobs(ctx context.Context, filter JobFilter) (int, error) {
	defer m.lock()()
	cnt := 0
	for _, job := range m.data.jobs {
		if matchJob(&job, filter) {
			cnt++
		}
	}
	return cnt, nil
}

// NextQueuePosition computes max(queue_position)+1 over live jobs.
func (m *memoryStore) NextQueuePosition(ctx context.Context, queueId string) (int, error) {
	defer m.lock()()
	maxPos := 0
	for _, job := range m.data.jobs {
		if job.IsDeleted || ParseNullString(job.QueueId) != queueId {
			continue
		}
		if types.IsTerminal(job.Status) {
			continue
		}
		if job.QueuePosition > maxPos {
			maxPos = job.QueuePosition
		}
	}
	return maxPos + 1, nil
}

func matchJob(job *types.Job, filter JobFilter) bool {
	if !filter.IncludeDeleted && job.IsDeleted {
		return false
	}
	if filter.ProjectId != "" && job.ProjectId != filter.ProjectId {
		return false
	}
	if filter.UserId != "" && job.UserId != filter.UserId {
		return false
	}
	if filter.QueueId != "" && ParseNullString(job.QueueId) != filter.QueueId {
		return false
	}
	if filter.VdcId != "" && ParseNullString(job.VdcId) != filter.VdcId {
		return false
	}
	if filter.ClusterId != "" && ParseNullString(job.ClusterId) != filter.ClusterId {
		return false
	}
	if filter.Executor != "" && string(job.Executor) != filter.Executor {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if job.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !filter.FinishedBefore.IsZero() {
		if !job.FinishedAt.Valid || !job.FinishedAt.Time.Before(filter.FinishedBefore) {
			return false
		}
	}
	return true
}

func sortJobs(jobs []*types.Job, orderBy []string) {
	sort.SliceStable(jobs, func(i, j int) bool {
		for _, clause := range orderBy {
			field, desc := parseOrderClause(clause)
			cmp := compareJobField(jobs[i], jobs[j], field)
			if cmp == 0 {
				continue
			}
			if desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return jobs[i].Id < jobs[j].Id
	})
}

func parseOrderClause(clause string) (string, bool) {
	parts := strings.Fields(strings.ToLower(clause))
	if len(parts) == 0 {
		return "", false
	}
	return parts[0], len(parts) > 1 && parts[1] == "desc"
}

func compareJobField(a, b *types.Job, field string) int {
	switch field {
	case "queue_position":
		return a.QueuePosition - b.QueuePosition
	case "priority":
		return a.Priority - b.Priority
	case "enqueued_at":
		return compareTime(ParseNullTime(a.EnqueuedAt), ParseNullTime(b.EnqueuedAt))
	case "finished_at":
		return compareTime(ParseNullTime(a.FinishedAt), ParseNullTime(b.FinishedAt))
	case "creation_time":
		return compareTime(ParseNullTime(a.CreationTime), ParseNullTime(b.CreationTime))
	case "id":
		return int(a.Id - b.Id)
	}
	return 0
}

func compareTime(a, b time.Time) int {
	if a.Before(b) {
		return -1
	}
	if a.After(b) {
		return 1
	}
	return 0
}

// CreateQueue inserts a queue.
func (m *memoryStore) CreateQueue(ctx context.Context, queue *types.JobQueue) error {
	if queue == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	defer m.lock()()
	if _, ok := m.data.queues[queue.QueueId]; ok {
		return commonerrors.NewAlreadyExist("queue " + queue.QueueId)
	}
	if queue.Id == 0 {
		queue.Id = m.assignId()
	}
	m.data.queues[queue.QueueId] = *queue
	return nil
}

// GetQueue fetches a queue by id.
func (m *memoryStore) GetQueue(ctx context.Context, queueId string) (*types.JobQueue, error) {
	defer m.lock()()
	queue, ok := m.data.queues[queueId]
	if !ok || queue.IsDeleted {
		return nil, commonerrors.NewNotFound("JobQueue", queueId)
	}
	return &queue, nil
}

// GetQueueByName fetches a project's queue by display name.
func (m *memoryStore) GetQueueByName(ctx context.Context, projectId, name string) (*types.JobQueue, error) {
	defer m.lock()()
	for _, queue := range m.data.queues {
		if queue.ProjectId == projectId && queue.Name == name && !queue.IsDeleted {
			row := queue
			return &row, nil
		}
	}
	return nil, commonerrors.NewNotFound("JobQueue", name)
}

// UpdateQueue replaces the stored queue row.
func (m *memoryStore) UpdateQueue(ctx context.Context, queue *types.JobQueue) error {
	if queue == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	defer m.lock()()
	if _, ok := m.data.queues[queue.QueueId]; !ok {
		return commonerrors.NewNotFound("JobQueue", queue.QueueId)
	}
	queue.UpdateTime = NullTime(time.Now().UTC())
	m.data.queues[queue.QueueId] = *queue
	return nil
}

// ListQueues returns a project's queues ordered by priority.
func (m *memoryStore) ListQueues(ctx context.Context, projectId string) ([]*types.JobQueue, error) {
	defer m.lock()()
	var queues []*types.JobQueue
	for _, queue := range m.data.queues {
		if queue.IsDeleted {
			continue
		}
		if projectId != "" && queue.ProjectId != projectId {
			continue
		}
		row := queue
		queues = append(queues, &row)
	}
	sort.SliceStable(queues, func(i, j int) bool {
		if queues[i].Priority != queues[j].Priority {
			return queues[i].Priority > queues[j].Priority
		}
		return queues[i].Id < queues[j].Id
	})
	return queues, nil
}

// SetQueueDeleted soft-deletes a queue.
func (m *memoryStore) SetQueueDeleted(ctx context.Context, queueId string) error {
	defer m.lock()()
	queue, ok := m.data.queues[queueId]
	if !ok {
		return commonerrors.NewNotFound("JobQueue", queueId)
	}
	queue.IsDeleted = true
	m.data.queues[queueId] = queue
	return nil
}

// CreateProjectQuota inserts a project quota.
func (m *memoryStore) CreateProjectQuota(ctx context.Context, quota *types.ProjectQuota) error {
	if quota == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	defer m.lock()()
	if _, ok := m.data.projectQuotas[quota.ProjectId]; ok {
		return commonerrors.NewAlreadyExist("quota for project " + quota.ProjectId)
	}
	if quota.Id == 0 {
		quota.Id = m.assignId()
	}
	m.data.projectQuotas[quota.ProjectId] = *quota
	return nil
}

// GetProjectQuota fetches a project's single-tier quota.
func (m *memoryStore) GetProjectQuota(ctx context.Context, projectId string) (*types.ProjectQuota, error) {
	defer m.lock()()
	quota, ok := m.data.projectQuotas[projectId]
	if !ok {
		return nil, commonerrors.NewNotFound("ProjectQuota", projectId)
	}
	return &quota, nil
}

// UpdateProjectQuota replaces the stored quota row.
func (m *memoryStore) UpdateProjectQuota(ctx context.Context, quota *types.ProjectQuota) error {
	if quota == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	defer m.lock()()
	if _, ok := m.data.projectQuotas[quota.ProjectId]; !ok {
		return commonerrors.NewNotFound("ProjectQuota", quota.ProjectId)
	}
	quota.UpdateTime = NullTime(time.Now().UTC())
	m.data.projectQuotas[quota.ProjectId] = *quota
	return nil
}

// ListProjectQuotas returns every project quota.
func (m *memoryStore) ListProjectQuotas(ctx context.Context) ([]*types.ProjectQuota, error) {
	defer m.lock()()
	var quotas []*types.ProjectQuota
	for _, quota := range m.data.projectQuotas {
		row := quota
		quotas = append(quotas, &row)
	}
	sort.SliceStable(quotas, func(i, j int) bool { return quotas[i].ProjectId < quotas[j].ProjectId })
	return quotas, nil
}

// CreateVdc inserts a VDC.
func (m *memoryStore) CreateVdc(ctx context.Context, vdc *types.Vdc) error {
	if vdc == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	defer m.lock()()
	if _, ok := m.data.vdcs[vdc.VdcId]; ok {
		return commonerrors.NewAlreadyExist("vdc " + vdc.VdcId)
	}
	if vdc.Id == 0 {
		vdc.Id = m.assignId()
	}
	m.data.vdcs[vdc.VdcId] = *vdc
	return nil
}

// GetVdc fetches one VDC.
func (m *memoryStore) GetVdc(ctx context.Context, vdcId string) (*types.Vdc, error) {
	defer m.lock()()
	vdc, ok := m.data.vdcs[vdcId]
	if !ok {
		return nil, commonerrors.NewNotFound("Vdc", vdcId)
	}
	return &vdc, nil
}

// UpdateVdc replaces the stored VDC row.
func (m *memoryStore) UpdateVdc(ctx context.Context, vdc *types.Vdc) error {
	if vdc == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	defer m.lock()()
	if _, ok := m.data.vdcs[vdc.VdcId]; !ok {
		return commonerrors.NewNotFound("Vdc", vdc.VdcId)
	}
	vdc.UpdateTime = NullTime(time.Now().UTC())
	m.data.vdcs[vdc.VdcId] = *vdc
	return nil
}

// ListVdcs returns every VDC.
func (m *memoryStore) ListVdcs(ctx context.Context) ([]*types.Vdc, error) {
	defer m.lock()()
	var vdcs []*types.Vdc
	for _, vdc := range m.data.vdcs {
		row := vdc
		vdcs = append(vdcs, &row)
	}
	sort.SliceStable(vdcs, func(i, j int) bool { return vdcs[i].VdcId < vdcs[j].VdcId })
	return vdcs, nil
}

// CreateCluster inserts a cluster.
func (m *memoryStore) CreateCluster(ctx context.Context, cluster *types.Cluster) error {
	if cluster == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	defer m.lock()()
	if _, ok := m.data.clusters[cluster.ClusterId]; ok {
		return commonerrors.NewAlreadyExist("cluster " + cluster.ClusterId)
	}
	if cluster.Id == 0 {
		cluster.Id = m.assignId()
	}
	m.data.clusters[cluster.ClusterId] = *cluster
	return nil
}

// GetCluster fetches one cluster.
func (m *memoryStore) GetCluster(ctx context.Context, clusterId string) (*types.Cluster, error) {
	defer m.lock()()
	cluster, ok := m.data.clusters[clusterId]
	if !ok {
		return nil, commonerrors.NewNotFound("Cluster", clusterId)
	}
	return &cluster, nil
}

// UpdateCluster replaces the stored cluster row.
func (m *memoryStore) UpdateCluster(ctx context.Context, cluster *types.Cluster) error {
	if cluster == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	defer m.lock()()
	if _, ok := m.data.clusters[cluster.ClusterId]; !ok {
		return commonerrors.NewNotFound("Cluster", cluster.ClusterId)
	}
	cluster.UpdateTime = NullTime(time.Now().UTC())
	m.data.clusters[cluster.ClusterId] = *cluster
	return nil
}

// ListClusters returns a VDC's clusters, all clusters when vdcId is empty.
func (m *memoryStore) ListClusters(ctx context.Context, vdcId string) ([]*types.Cluster, error) {
	defer m.lock()()
	var clusters []*types.Cluster
	for _, cluster := range m.data.clusters {
		if vdcId != "" && ParseNullString(cluster.VdcId) != vdcId {
			continue
		}
		row := cluster
		clusters = append(clusters, &row)
	}
	sort.SliceStable(clusters, func(i, j int) bool { return clusters[i].ClusterId < clusters[j].ClusterId })
	return clusters, nil
}

func pvQuotaKey(projectId, vdcId string) string {
	return projectId + "/" + vdcId
}

// CreateProjectVdcQuota inserts a two-tier quota.
func (m *memoryStore) CreateProjectVdcQuota(ctx context.Context, quota *types.ProjectVdcQuota) error {
	if quota == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	defer m.lock()()
	key := pvQuotaKey(quota.ProjectId, quota.VdcId)
	if _, ok := m.data.pvQuotas[key]; ok {
		return commonerrors.NewAlreadyExist("vdc quota " + key)
	}
	if quota.Id == 0 {
		quota.Id = m.assignId()
	}
	m.data.pvQuotas[key] = *quota
	return nil
}

// GetProjectVdcQuota fetches the quota a project holds in one VDC.
func (m *memoryStore) GetProjectVdcQuota(ctx context.Context, projectId, vdcId string) (*types.ProjectVdcQuota, error) {
	defer m.lock()()
	quota, ok := m.data.pvQuotas[pvQuotaKey(projectId, vdcId)]
	if !ok {
		return nil, commonerrors.NewNotFound("ProjectVdcQuota", pvQuotaKey(projectId, vdcId))
	}
	return &quota, nil
}

// UpdateProjectVdcQuota replaces the stored quota row.
func (m *memoryStore) UpdateProjectVdcQuota(ctx context.Context, quota *types.ProjectVdcQuota) error {
	if quota == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	defer m.lock()()
	key := pvQuotaKey(quota.ProjectId, quota.VdcId)
	if _, ok := m.data.pvQuotas[key]; !ok {
		return commonerrors.NewNotFound("ProjectVdcQuota", key)
	}
	quota.UpdateTime = NullTime(time.Now().UTC())
	m.data.pvQuotas[key] = *quota
	return nil
}

// ListProjectVdcQuotas returns the quotas inside one VDC, all rows
// when vdcId is empty.
func (m *memoryStore) ListProjectVdcQuotas(ctx context.Context, vdcId string) ([]*types.ProjectVdcQuota, error) {
	defer m.lock()()
	var quotas []*types.ProjectVdcQuota
	for _, quota := range m.data.pvQuotas {
		if vdcId != "" && quota.VdcId != vdcId {
			continue
		}
		row := quota
		quotas = append(quotas, &row)
	}
	sort.SliceStable(quotas, func(i, j int) bool {
		if quotas[i].Priority != quotas[j].Priority {
			return quotas[i].Priority > quotas[j].Priority
		}
		return quotas[i].ProjectId < quotas[j].ProjectId
	})
	return quotas, nil
}
