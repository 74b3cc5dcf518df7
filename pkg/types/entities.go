/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package types

import (
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/resources"
)

// JobQueue is a per-project queue. The counters are advisory and are
// recomputed from the job table by the audit sweep.
type JobQueue struct {
	Id                int64       `db:"id" gorm:"column:id;primaryKey"`
	QueueId           string      `db:"queue_id" gorm:"column:queue_id"`
	Name              string      `db:"name" gorm:"column:name"`
	ProjectId         string      `db:"project_id" gorm:"column:project_id"`
	Priority          int         `db:"priority" gorm:"column:priority"`
	Enabled           bool        `db:"enabled" gorm:"column:enabled"`
	MaxConcurrentJobs int         `db:"max_concurrent_jobs" gorm:"column:max_concurrent_jobs"`
	TotalJobs         int         `db:"total_jobs" gorm:"column:total_jobs"`
	RunningJobs       int         `db:"running_jobs" gorm:"column:running_jobs"`
	PendingJobs       int         `db:"pending_jobs" gorm:"column:pending_jobs"`
	IsDeleted         bool        `db:"is_deleted" gorm:"column:is_deleted"`
	CreationTime      pq.NullTime `db:"creation_time" gorm:"column:creation_time"`
	UpdateTime        pq.NullTime `db:"update_time" gorm:"column:update_time"`
}

func (JobQueue) TableName() string {
	return "job_queue"
}

// ProjectQuota is the single-tier quota for a project. Limits of zero
// mean unlimited for that component.
type ProjectQuota struct {
	Id               int64       `db:"id" gorm:"column:id;primaryKey"`
	ProjectId        string      `db:"project_id" gorm:"column:project_id"`
	EnforceQuota     bool        `db:"enforce_quota" gorm:"column:enforce_quota"`
	CpuLimitMilli    int64       `db:"cpu_limit_milli" gorm:"column:cpu_limit_milli"`
	MemoryLimitBytes int64       `db:"memory_limit_bytes" gorm:"column:memory_limit_bytes"`
	GpuLimit         int64       `db:"gpu_limit" gorm:"column:gpu_limit"`
	MaxConcurrent    int         `db:"max_concurrent" gorm:"column:max_concurrent"`
	CpuUsedMilli     int64       `db:"cpu_used_milli" gorm:"column:cpu_used_milli"`
	MemoryUsedBytes  int64       `db:"memory_used_bytes" gorm:"column:memory_used_bytes"`
	GpuUsed          int64       `db:"gpu_used" gorm:"column:gpu_used"`
	RunningJobs      int         `db:"running_jobs" gorm:"column:running_jobs"`
	MaxTraining      int         `db:"max_training" gorm:"column:max_training"`
	MaxInference     int         `db:"max_inference" gorm:"column:max_inference"`
	MaxWorkflow      int         `db:"max_workflow" gorm:"column:max_workflow"`
	RunningTraining  int         `db:"running_training" gorm:"column:running_training"`
	RunningInference int         `db:"running_inference" gorm:"column:running_inference"`
	RunningWorkflow  int         `db:"running_workflow" gorm:"column:running_workflow"`
	CreationTime     pq.NullTime `db:"creation_time" gorm:"column:creation_time"`
	UpdateTime       pq.NullTime `db:"update_time" gorm:"column:update_time"`
}

func (ProjectQuota) TableName() string {
	return "project_quota"
}

// Limit returns the quota's resource limits as a triple.
func (q *ProjectQuota) Limit() resources.Resources {
	return resources.Resources{
		CPUMilli:    q.CpuLimitMilli,
		MemoryBytes: q.MemoryLimitBytes,
		GPU:         q.GpuLimit,
	}
}

// Used returns the quota's used counters as a triple.
func (q *ProjectQuota) Used() resources.Resources {
	return resources.Resources{
		CPUMilli:    q.CpuUsedMilli,
		MemoryBytes: q.MemoryUsedBytes,
		GPU:         q.GpuUsed,
	}
}

// SetUsed writes the triple back to the used counters.
func (q *ProjectQuota) SetUsed(r resources.Resources) {
	q.CpuUsedMilli = r.CPUMilli
	q.MemoryUsedBytes = r.MemoryBytes
	q.GpuUsed = r.GPU
}

// TypeCap returns the per-type running-job cap, zero meaning unlimited.
func (q *ProjectQuota) TypeCap(jobType JobType) int {
	switch jobType {
	case JobTypeTraining:
		return q.MaxTraining
	case JobTypeInference:
		return q.MaxInference
	case JobTypeWorkflow:
		return q.MaxWorkflow
	}
	return 0
}

// TypeRunning returns the per-type running-job counter.
func (q *ProjectQuota) TypeRunning(jobType JobType) int {
	switch jobType {
	case JobTypeTraining:
		return q.RunningTraining
	case JobTypeInference:
		return q.RunningInference
	case JobTypeWorkflow:
		return q.RunningWorkflow
	}
	return 0
}

// AddTypeRunning adjusts the per-type running-job counter, clamping at zero.
func (q *ProjectQuota) AddTypeRunning(jobType JobType, delta int) {
	switch jobType {
	case JobTypeTraining:
		q.RunningTraining = clampInt(q.RunningTraining + delta)
	case JobTypeInference:
		q.RunningInference = clampInt(q.RunningInference + delta)
	case JobTypeWorkflow:
		q.RunningWorkflow = clampInt(q.RunningWorkflow + delta)
	}
}

// Vdc is a virtual data center aggregating clusters. A zero quota
// limit means the limit falls back to the summed cluster capacities.
type Vdc struct {
	Id                int64          `db:"id" gorm:"column:id;primaryKey"`
	VdcId             string         `db:"vdc_id" gorm:"column:vdc_id"`
	Name              string         `db:"name" gorm:"column:name"`
	Enabled           bool           `db:"enabled" gorm:"column:enabled"`
	CpuLimitMilli     int64          `db:"cpu_limit_milli" gorm:"column:cpu_limit_milli"`
	MemoryLimitBytes  int64          `db:"memory_limit_bytes" gorm:"column:memory_limit_bytes"`
	GpuLimit          int64          `db:"gpu_limit" gorm:"column:gpu_limit"`
	CpuUsedMilli      int64          `db:"cpu_used_milli" gorm:"column:cpu_used_milli"`
	MemoryUsedBytes   int64          `db:"memory_used_bytes" gorm:"column:memory_used_bytes"`
	GpuUsed           int64          `db:"gpu_used" gorm:"column:gpu_used"`
	OvercommitRatio   float64        `db:"overcommit_ratio" gorm:"column:overcommit_ratio"`
	DefaultPolicy     sql.NullString `db:"default_policy" gorm:"column:default_policy"`
	DefaultStrategy   sql.NullString `db:"default_strategy" gorm:"column:default_strategy"`
	Description       sql.NullString `db:"description" gorm:"column:description"`
	CreationTime      pq.NullTime    `db:"creation_time" gorm:"column:creation_time"`
	UpdateTime        pq.NullTime    `db:"update_time" gorm:"column:update_time"`
}

func (Vdc) TableName() string {
	return "vdc"
}

// Limit returns the VDC's override quota as a triple.
func (v *Vdc) Limit() resources.Resources {
	return resources.Resources{
		CPUMilli:    v.CpuLimitMilli,
		MemoryBytes: v.MemoryLimitBytes,
		GPU:         v.GpuLimit,
	}
}

// Used returns the VDC's used counters as a triple.
func (v *Vdc) Used() resources.Resources {
	return resources.Resources{
		CPUMilli:    v.CpuUsedMilli,
		MemoryBytes: v.MemoryUsedBytes,
		GPU:         v.GpuUsed,
	}
}

// SetUsed writes the triple back to the used counters.
func (v *Vdc) SetUsed(r resources.Resources) {
	v.CpuUsedMilli = r.CPUMilli
	v.MemoryUsedBytes = r.MemoryBytes
	v.GpuUsed = r.GPU
}

// Cluster is a concrete backend target inside a VDC.
type Cluster struct {
	Id                  int64          `db:"id" gorm:"column:id;primaryKey"`
	ClusterId           string         `db:"cluster_id" gorm:"column:cluster_id"`
	Name                string         `db:"name" gorm:"column:name"`
	VdcId               sql.NullString `db:"vdc_id" gorm:"column:vdc_id"`
	ClusterType         string         `db:"cluster_type" gorm:"column:cluster_type"`
	Endpoint            string         `db:"endpoint" gorm:"column:endpoint"`
	ConnectionConfig    sql.NullString `db:"connection_config" gorm:"column:connection_config"`
	CpuCapacityMilli    int64          `db:"cpu_capacity_milli" gorm:"column:cpu_capacity_milli"`
	MemoryCapacityBytes int64          `db:"memory_capacity_bytes" gorm:"column:memory_capacity_bytes"`
	GpuCapacity         int64          `db:"gpu_capacity" gorm:"column:gpu_capacity"`
	CpuUsedMilli        int64          `db:"cpu_used_milli" gorm:"column:cpu_used_milli"`
	MemoryUsedBytes     int64          `db:"memory_used_bytes" gorm:"column:memory_used_bytes"`
	GpuUsed             int64          `db:"gpu_used" gorm:"column:gpu_used"`
	Status              string         `db:"status" gorm:"column:status"`
	LastHeartbeat       pq.NullTime    `db:"last_heartbeat" gorm:"column:last_heartbeat"`
	Enabled             bool           `db:"enabled" gorm:"column:enabled"`
	Priority            int            `db:"priority" gorm:"column:priority"`
	Weight              float64        `db:"weight" gorm:"column:weight"`
	Labels              sql.NullString `db:"labels" gorm:"column:labels"`
	MaxJobsPerUser      int            `db:"max_jobs_per_user" gorm:"column:max_jobs_per_user"`
	MaxTotalJobs        int            `db:"max_total_jobs" gorm:"column:max_total_jobs"`
	RunningJobs         int            `db:"running_jobs" gorm:"column:running_jobs"`
	CostPerCpuHour      float64        `db:"cost_per_cpu_hour" gorm:"column:cost_per_cpu_hour"`
	CostPerMemoryHour   float64        `db:"cost_per_memory_hour" gorm:"column:cost_per_memory_hour"`
	CostPerGpuHour      float64        `db:"cost_per_gpu_hour" gorm:"column:cost_per_gpu_hour"`
	CreationTime        pq.NullTime    `db:"creation_time" gorm:"column:creation_time"`
	UpdateTime          pq.NullTime    `db:"update_time" gorm:"column:update_time"`
}

func (Cluster) TableName() string {
	return "cluster"
}

// Capacity returns the cluster's total capacity as a triple.
func (c *Cluster) Capacity() resources.Resources {
	return resources.Resources{
		CPUMilli:    c.CpuCapacityMilli,
		MemoryBytes: c.MemoryCapacityBytes,
		GPU:         c.GpuCapacity,
	}
}

// Used returns the cluster's usage counters as a triple.
func (c *Cluster) Used() resources.Resources {
	return resources.Resources{
		CPUMilli:    c.CpuUsedMilli,
		MemoryBytes: c.MemoryUsedBytes,
		GPU:         c.GpuUsed,
	}
}

// SetUsed writes the triple back to the usage counters.
func (c *Cluster) SetUsed(r resources.Resources) {
	c.CpuUsedMilli = r.CPUMilli
	c.MemoryUsedBytes = r.MemoryBytes
	c.GpuUsed = r.GPU
}

// Available returns the remaining capacity, saturating at zero.
func (c *Cluster) Available() resources.Resources {
	return c.Capacity().Sub(c.Used())
}

// GetLabels decodes the cluster label map.
func (c *Cluster) GetLabels() map[string]string {
	if !c.Labels.Valid || c.Labels.String == "" {
		return nil
	}
	labels := map[string]string{}
	if err := json.Unmarshal([]byte(c.Labels.String), &labels); err != nil {
		return nil
	}
	return labels
}

// SetLabels encodes the cluster label map.
func (c *Cluster) SetLabels(labels map[string]string) {
	if len(labels) == 0 {
		c.Labels = sql.NullString{}
		return
	}
	data, _ := json.Marshal(labels)
	c.Labels = sql.NullString{String: string(data), Valid: true}
}

// ProjectVdcQuota is the quota a project holds inside one VDC.
// (project_id, vdc_id) is unique.
type ProjectVdcQuota struct {
	Id               int64       `db:"id" gorm:"column:id;primaryKey"`
	ProjectId        string      `db:"project_id" gorm:"column:project_id"`
	VdcId            string      `db:"vdc_id" gorm:"column:vdc_id"`
	Priority         int         `db:"priority" gorm:"column:priority"`
	EnforceQuota     bool        `db:"enforce_quota" gorm:"column:enforce_quota"`
	CpuLimitMilli    int64       `db:"cpu_limit_milli" gorm:"column:cpu_limit_milli"`
	MemoryLimitBytes int64       `db:"memory_limit_bytes" gorm:"column:memory_limit_bytes"`
	GpuLimit         int64       `db:"gpu_limit" gorm:"column:gpu_limit"`
	MaxConcurrent    int         `db:"max_concurrent" gorm:"column:max_concurrent"`
	CpuUsedMilli     int64       `db:"cpu_used_milli" gorm:"column:cpu_used_milli"`
	MemoryUsedBytes  int64       `db:"memory_used_bytes" gorm:"column:memory_used_bytes"`
	GpuUsed          int64       `db:"gpu_used" gorm:"column:gpu_used"`
	RunningJobs      int         `db:"running_jobs" gorm:"column:running_jobs"`
	MaxTraining      int         `db:"max_training" gorm:"column:max_training"`
	MaxInference     int         `db:"max_inference" gorm:"column:max_inference"`
	MaxWorkflow      int         `db:"max_workflow" gorm:"column:max_workflow"`
	RunningTraining  int         `db:"running_training" gorm:"column:running_training"`
	RunningInference int         `db:"running_inference" gorm:"column:running_inference"`
	RunningWorkflow  int         `db:"running_workflow" gorm:"column:running_workflow"`
	CreationTime     pq.NullTime `db:"creation_time" gorm:"column:creation_time"`
	UpdateTime       pq.NullTime `db:"update_time" gorm:"column:update_time"`
}

func (ProjectVdcQuota) TableName() string {
	return "project_vdc_quota"
}

// Limit returns the quota's resource limits as a triple.
func (q *ProjectVdcQuota) Limit() resources.Resources {
	return resources.Resources{
		CPUMilli:    q.CpuLimitMilli,
		MemoryBytes: q.MemoryLimitBytes,
		GPU:         q.GpuLimit,
	}
}

// Used returns the quota's used counters as a triple.
func (q *ProjectVdcQuota) Used() resources.Resources {
	return resources.Resources{
		CPUMilli:    q.CpuUsedMilli,
		MemoryBytes: q.MemoryUsedBytes,
		GPU:         q.GpuUsed,
	}
}

// SetUsed writes the triple back to the used counters.
func (q *ProjectVdcQuota) SetUsed(r resources.Resources) {
	q.CpuUsedMilli = r.CPUMilli
	q.MemoryUsedBytes = r.MemoryBytes
	q.GpuUsed = r.GPU
}

// TypeCap returns the per-type running-job cap, zero meaning unlimited.
func (q *ProjectVdcQuota) TypeCap(jobType JobType) int {
	switch jobType {
	case JobTypeTraining:
		return q.MaxTraining
	case JobTypeInference:
		return q.MaxInference
	case JobTypeWorkflow:
		return q.MaxWorkflow
	}
	return 0
}

// TypeRunning returns the per-type running-job counter.
func (q *ProjectVdcQuota) TypeRunning(jobType JobType) int {
	switch jobType {
	case JobTypeTraining:
		return q.RunningTraining
	case JobTypeInference:
		return q.RunningInference
	case JobTypeWorkflow:
		return q.RunningWorkflow
	}
	return 0
}

// AddTypeRunning adjusts the per-type running-job counter, clamping at zero.
func (q *ProjectVdcQuota) AddTypeRunning(jobType JobType, delta int) {
	switch jobType {
	case JobTypeTraining:
		q.RunningTraining = clampInt(q.RunningTraining + delta)
	case JobTypeInference:
		q.RunningInference = clampInt(q.RunningInference + delta)
	case JobTypeWorkflow:
		q.RunningWorkflow = clampInt(q.RunningWorkflow + delta)
	}
}

func clampInt(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
