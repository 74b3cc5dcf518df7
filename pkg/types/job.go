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

// Job is the primary scheduled entity. Resource requests are stored
// denormalized in integer columns so quota arithmetic never touches
// the opaque executor config.
type Job struct {
	Id                 int64          `db:"id" gorm:"column:id;primaryKey"`
	JobId              string         `db:"job_id" gorm:"column:job_id"`
	Name               string         `db:"name" gorm:"column:name"`
	ProjectId          string         `db:"project_id" gorm:"column:project_id"`
	UserId             string         `db:"user_id" gorm:"column:user_id"`
	RunId              sql.NullString `db:"run_id" gorm:"column:run_id"`
	JobType            JobType        `db:"job_type" gorm:"column:job_type"`
	Executor           Executor       `db:"executor" gorm:"column:executor"`
	VdcId              sql.NullString `db:"vdc_id" gorm:"column:vdc_id"`
	ClusterId          sql.NullString `db:"cluster_id" gorm:"column:cluster_id"`
	QueueId            sql.NullString `db:"queue_id" gorm:"column:queue_id"`
	ExternalId         sql.NullString `db:"external_id" gorm:"column:external_id"`
	CpuRequestMilli    int64          `db:"cpu_request_milli" gorm:"column:cpu_request_milli"`
	MemoryRequestBytes int64          `db:"memory_request_bytes" gorm:"column:memory_request_bytes"`
	GpuRequest         int64          `db:"gpu_request" gorm:"column:gpu_request"`
	Priority           int            `db:"priority" gorm:"column:priority"`
	ExecutorConfig     string         `db:"executor_config" gorm:"column:executor_config"`
	PreferredClusters  sql.NullString `db:"preferred_clusters" gorm:"column:preferred_clusters"`
	RequiredLabels     sql.NullString `db:"required_labels" gorm:"column:required_labels"`
	QueuePosition      int            `db:"queue_position" gorm:"column:queue_position"`
	Status             JobStatus      `db:"status" gorm:"column:status"`
	EnqueuedAt         pq.NullTime    `db:"enqueued_at" gorm:"column:enqueued_at"`
	SubmittedAt        pq.NullTime    `db:"submitted_at" gorm:"column:submitted_at"`
	StartedAt          pq.NullTime    `db:"started_at" gorm:"column:started_at"`
	FinishedAt         pq.NullTime    `db:"finished_at" gorm:"column:finished_at"`
	ExitCode           sql.NullInt64  `db:"exit_code" gorm:"column:exit_code"`
	ErrorMessage       sql.NullString `db:"error_message" gorm:"column:error_message"`
	DispatchCount      int            `db:"dispatch_count" gorm:"column:dispatch_count"`
	MaxRetry           int            `db:"max_retry" gorm:"column:max_retry"`
	SyncFailures       int            `db:"sync_failures" gorm:"column:sync_failures"`
	Metrics            sql.NullString `db:"metrics" gorm:"column:metrics"`
	Outputs            sql.NullString `db:"outputs" gorm:"column:outputs"`
	Tags               sql.NullString `db:"tags" gorm:"column:tags"`
	IsDeleted          bool           `db:"is_deleted" gorm:"column:is_deleted"`
	CreationTime       pq.NullTime    `db:"creation_time" gorm:"column:creation_time"`
	UpdateTime         pq.NullTime    `db:"update_time" gorm:"column:update_time"`
}

// TableName implements the gorm naming convention.
func (Job) TableName() string {
	return "job"
}

// IsEnd reports whether the job has reached a terminal status.
func (j *Job) IsEnd() bool {
	return IsTerminal(j.Status)
}

// Request returns the denormalized resource request as a triple.
func (j *Job) Request() resources.Resources {
	return resources.Resources{
		CPUMilli:    j.CpuRequestMilli,
		MemoryBytes: j.MemoryRequestBytes,
		GPU:         j.GpuRequest,
	}
}

// SetRequest writes the triple back to the denormalized columns.
func (j *Job) SetRequest(r resources.Resources) {
	j.CpuRequestMilli = r.CPUMilli
	j.MemoryRequestBytes = r.MemoryBytes
	j.GpuRequest = r.GPU
}

// GetExecutorConfig decodes the opaque executor document. The scheduler
// core never interprets it; only the matching backend driver does.
func (j *Job) GetExecutorConfig() (map[string]interface{}, error) {
	if j.ExecutorConfig == "" {
		return map[string]interface{}{}, nil
	}
	config := map[string]interface{}{}
	if err := json.Unmarshal([]byte(j.ExecutorConfig), &config); err != nil {
		return nil, err
	}
	return config, nil
}

// GetPreferredClusters decodes the ordered placement hint list.
func (j *Job) GetPreferredClusters() []string {
	if !j.PreferredClusters.Valid || j.PreferredClusters.String == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(j.PreferredClusters.String), &ids); err != nil {
		return nil
	}
	return ids
}

// SetPreferredClusters encodes the ordered placement hint list.
func (j *Job) SetPreferredClusters(ids []string) {
	if len(ids) == 0 {
		j.PreferredClusters = sql.NullString{}
		return
	}
	data, _ := json.Marshal(ids)
	j.PreferredClusters = sql.NullString{String: string(data), Valid: true}
}

// GetRequiredLabels decodes the label constraints a candidate cluster
// must satisfy.
func (j *Job) GetRequiredLabels() map[string]string {
	if !j.RequiredLabels.Valid || j.RequiredLabels.String == "" {
		return nil
	}
	labels := map[string]string{}
	if err := json.Unmarshal([]byte(j.RequiredLabels.String), &labels); err != nil {
		return nil
	}
	return labels
}

// SetRequiredLabels encodes the label constraints.
func (j *Job) SetRequiredLabels(labels map[string]string) {
	if len(labels) == 0 {
		j.RequiredLabels = sql.NullString{}
		return
	}
	data, _ := json.Marshal(labels)
	j.RequiredLabels = sql.NullString{String: string(data), Valid: true}
}
