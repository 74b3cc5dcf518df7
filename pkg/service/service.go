/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/driver"
	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/quota"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/resources"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/scheduler"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// Service is the inbound command surface the API tier calls. It
// validates synchronously and hands admitted jobs to the orchestrator.
type Service struct {
	store        store.Store
	registry     *driver.Registry
	orchestrator *scheduler.Orchestrator
	provider     quota.Provider
	clock        clock.Clock
}

// NewService builds the command service.
func NewService(s store.Store, registry *driver.Registry, orchestrator *scheduler.Orchestrator, provider quota.Provider) *Service {
	return &Service{
		store:        s,
		registry:     registry,
		orchestrator: orchestrator,
		provider:     provider,
		clock:        clock.RealClock{},
	}
}

// SubmitJobRequest is one job submission from the API tier.
type SubmitJobRequest struct {
	Name              string                 `json:"name"`
	ProjectId         string                 `json:"project_id"`
	UserId            string                 `json:"user_id"`
	RunId             string                 `json:"run_id,omitempty"`
	JobType           types.JobType          `json:"job_type"`
	Executor          types.Executor         `json:"executor"`
	Priority          int                    `json:"priority,omitempty"`
	VdcId             string                 `json:"vdc_id,omitempty"`
	CpuRequest        string                 `json:"cpu_request,omitempty"`
	MemoryRequest     string                 `json:"memory_request,omitempty"`
	GpuRequest        string                 `json:"gpu_request,omitempty"`
	ExecutorConfig    map[string]interface{} `json:"executor_config"`
	PreferredClusters []string               `json:"preferred_clusters,omitempty"`
	RequiredLabels    map[string]string      `json:"required_labels,omitempty"`
	Tags              map[string]string      `json:"tags,omitempty"`
}

// SubmitJob validates the request, persists the job as QUEUED and
// returns it. Validation failures surface synchronously; nothing is
// persisted for a rejected request.
func (s *Service) SubmitJob(ctx context.Context, req *SubmitJobRequest) (*types.Job, error) {
	if req == nil {
		return nil, commonerrors.NewBadRequest("the input is empty")
	}
	if err := s.validateSubmit(req); err != nil {
		return nil, err
	}
	request, err := resources.Parse(req.CpuRequest, req.MemoryRequest, req.GpuRequest)
	if err != nil {
		return nil, commonerrors.NewBadRequest(err.Error())
	}
	configData, err := json.Marshal(req.ExecutorConfig)
	if err != nil {
		return nil, commonerrors.NewBadRequest(fmt.Sprintf("invalid executor config: %v", err))
	}

	job := &types.Job{
		JobId:          uuid.NewString(),
		Name:           req.Name,
		ProjectId:      req.ProjectId,
		UserId:         req.UserId,
		JobType:        req.JobType,
		Executor:       req.Executor,
		Priority:       req.Priority,
		ExecutorConfig: string(configData),
		Status:         types.JobPending,
	}
	job.SetRequest(request)
	if req.RunId != "" {
		job.RunId = store.NullString(req.RunId)
	}
	if req.VdcId != "" {
		job.VdcId = store.NullString(req.VdcId)
	}
	if len(req.PreferredClusters) > 0 {
		job.SetPreferredClusters(req.PreferredClusters)
	}
	if len(req.RequiredLabels) > 0 {
		job.SetRequiredLabels(req.RequiredLabels)
	}
	if len(req.Tags) > 0 {
		data, _ := json.Marshal(req.Tags)
		job.Tags = store.NullString(string(data))
	}

	if err = s.orchestrator.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) validateSubmit(req *SubmitJobRequest) error {
	if req.Name == "" {
		return commonerrors.NewBadRequest("job name is required")
	}
	if req.ProjectId == "" || req.UserId == "" {
		return commonerrors.NewBadRequest("project_id and user_id are required")
	}
	switch req.JobType {
	case types.JobTypeTraining, types.JobTypeInference, types.JobTypeWorkflow:
	default:
		return commonerrors.NewBadRequest(fmt.Sprintf("unknown job type %q", req.JobType))
	}
	switch req.Executor {
	case types.ExecutorKubernetes, types.ExecutorSlurm:
	default:
		return commonerrors.NewBadRequest(fmt.Sprintf("unknown executor %q", req.Executor))
	}
	if _, err := s.registry.Get(req.Executor); err != nil {
		return err
	}
	if len(req.ExecutorConfig) == 0 {
		return commonerrors.NewBadRequest("executor config is required")
	}
	return nil
}

// CancelJob stops a job on behalf of a caller.
func (s *Service) CancelJob(ctx context.Context, jobId, callerId string) error {
	if jobId == "" {
		return commonerrors.NewBadRequest("job id is required")
	}
	klog.Infof("job %s cancel requested by %s", jobId, callerId)
	return s.orchestrator.Cancel(ctx, jobId, fmt.Sprintf("cancelled by %s", callerId))
}

// GetJob returns one job by id.
func (s *Service) GetJob(ctx context.Context, jobId string) (*types.Job, error) {
	if jobId == "" {
		return nil, commonerrors.NewBadRequest("job id is required")
	}
	return s.store.GetJob(ctx, jobId)
}

// ListJobs returns the jobs matching the filter.
func (s *Service) ListJobs(ctx context.Context, filter store.JobFilter) ([]*types.Job, error) {
	return s.store.ListJobs(ctx, filter)
}

// CountJobs returns the number of jobs matching the filter.
func (s *Service) CountJobs(ctx context.Context, filter store.JobFilter) (int, error) {
	return s.store.CountJobs(ctx, filter)
}
