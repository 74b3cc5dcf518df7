/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/driver"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/events"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/policy"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/quota"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/scheduler"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/service"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

type noopDriver struct{}

func (noopDriver) Submit(ctx context.Context, job *types.Job) (string, error) { return "ext-1", nil }
func (noopDriver) Status(ctx context.Context, externalId string) (types.JobStatus, error) {
	return types.JobRunning, nil
}
func (noopDriver) Cancel(ctx context.Context, externalId string) error { return nil }
func (noopDriver) Logs(ctx context.Context, externalId string) (string, error) {
	return "", nil
}
func (noopDriver) Metrics(ctx context.Context, externalId string) (map[string]interface{}, error) {
	return nil, nil
}

func newTestEngine(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	s := store.NewMemoryStore()
	registry := driver.NewRegistry()
	registry.Register(types.ExecutorKubernetes, noopDriver{})
	pol, err := policy.New(policy.KindFifo, policy.Options{Store: s})
	require.NoError(t, err)
	provider := quota.NewLocalProvider(s)
	o := scheduler.NewOrchestrator(scheduler.Options{
		Store:     s,
		Registry:  registry,
		Provider:  provider,
		Policy:    pol,
		Publisher: events.NewPublisher(),
	})
	return NewEngine(NewHandler(service.NewService(s, registry, o, provider)))
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "alice")
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)
	return recorder
}

func TestSubmitJobEndpoint(t *testing.T) {
	engine := newTestEngine(t)

	recorder := doJSON(t, engine, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"name":            "train-llama",
		"project_id":      "proj-a",
		"job_type":        "Training",
		"executor":        "Kubernetes",
		"cpu_request":     "2",
		"memory_request":  "4Gi",
		"gpu_request":     "1",
		"executor_config": map[string]interface{}{"image": "busybox"},
	})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var job types.Job
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &job))
	assert.NotEmpty(t, job.JobId)
	assert.Equal(t, types.JobQueued, job.Status)
	assert.Equal(t, "alice", job.UserId)

	recorder = doJSON(t, engine, http.MethodGet, "/api/v1/jobs/"+job.JobId, nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, engine, http.MethodDelete, "/api/v1/jobs/"+job.JobId, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	recorder = doJSON(t, engine, http.MethodGet, "/api/v1/jobs/"+job.JobId, nil)
	var cancelled types.Job
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &cancelled))
	assert.Equal(t, types.JobCancelled, cancelled.Status)
}

func TestSubmitJobEndpointRejectsBadRequest(t *testing.T) {
	engine := newTestEngine(t)

	recorder := doJSON(t, engine, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"name":            "bad",
		"project_id":      "proj-a",
		"job_type":        "Rendering",
		"executor":        "Kubernetes",
		"executor_config": map[string]interface{}{"image": "busybox"},
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	var response errResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Contains(t, response.Message, "unknown job type")
}

func TestGetJobEndpointNotFound(t *testing.T) {
	engine := newTestEngine(t)
	recorder := doJSON(t, engine, http.MethodGet, "/api/v1/jobs/no-such-job", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestClusterEndpoints(t *testing.T) {
	engine := newTestEngine(t)

	recorder := doJSON(t, engine, http.MethodPost, "/api/v1/clusters", map[string]interface{}{
		"Name":             "cl-1",
		"ClusterId":        "cl-1",
		"ClusterType":      "Kubernetes",
		"CpuCapacityMilli": 16000,
	})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	recorder = doJSON(t, engine, http.MethodPost, "/api/v1/clusters/cl-1/heartbeat", map[string]interface{}{
		"status":      "Healthy",
		"cpu_used":    "4",
		"memory_used": "8Gi",
		"gpu_used":    "2",
	})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	recorder = doJSON(t, engine, http.MethodGet, "/api/v1/clusters", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var clusters []types.Cluster
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &clusters))
	require.Len(t, clusters, 1)
	assert.True(t, clusters[0].LastHeartbeat.Valid)
}
