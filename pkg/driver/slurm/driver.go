/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package slurm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/config"
	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/httpclient"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/stringutil"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

const (
	apiPrefix = "/slurm/v0.0.40"

	headerUserName  = "X-SLURM-USER-NAME"
	headerUserToken = "X-SLURM-USER-TOKEN"
)

// Driver dispatches jobs to a Slurm cluster through its REST API. The
// credential is a "user:token" pair presented on every request.
type Driver struct {
	client        httpclient.Interface
	endpoint      string
	userName      string
	userToken     string
	account       string
	partition     string
	logDir        string
	readTimeout   time.Duration
	submitTimeout time.Duration
}

// NewDriver builds the production driver from process configuration.
func NewDriver() (*Driver, error) {
	endpoint := config.GetSlurmEndpoint()
	if endpoint == "" {
		return nil, fmt.Errorf("slurm endpoint is not configured")
	}
	user, token, ok := stringutil.SplitPair(config.GetSlurmCredential(), ":")
	if !ok || user == "" || token == "" {
		return nil, fmt.Errorf("slurm credential must be user:token")
	}
	return NewDriverWithClient(httpclient.NewHttpClient(), endpoint, user, token), nil
}

// NewDriverWithClient wires an existing HTTP client, used by tests.
func NewDriverWithClient(client httpclient.Interface, endpoint, user, token string) *Driver {
	return &Driver{
		client:        client,
		endpoint:      strings.TrimRight(endpoint, "/"),
		userName:      user,
		userToken:     token,
		account:       config.GetSlurmAccount(),
		partition:     config.GetSlurmPartition(),
		logDir:        config.GetSlurmLogDir(),
		readTimeout:   time.Duration(config.GetDriverReadTimeoutSecond()) * time.Second,
		submitTimeout: time.Duration(config.GetDriverSubmitTimeoutSecond()) * time.Second,
	}
}

func (d *Driver) headers() []string {
	return []string{headerUserName, d.userName, headerUserToken, d.userToken}
}

func (d *Driver) url(path string) string {
	return d.endpoint + apiPrefix + path
}

// jobDocument is the v0.0.40 submit payload body under "job".
type jobDocument struct {
	Name                    string            `json:"name"`
	Account                 string            `json:"account,omitempty"`
	Partition               string            `json:"partition,omitempty"`
	Nodes                   int32             `json:"nodes,omitempty"`
	CpusPerTask             int32             `json:"cpus_per_task,omitempty"`
	MemoryPerNode           int64             `json:"memory_per_node,omitempty"`
	TimeLimit               int64             `json:"time_limit"`
	Gres                    string            `json:"gres,omitempty"`
	CurrentWorkingDirectory string            `json:"current_working_directory,omitempty"`
	Environment             []string          `json:"environment"`
	StandardOutput          string            `json:"standard_output,omitempty"`
	StandardError           string            `json:"standard_error,omitempty"`
	Comment                 string            `json:"comment,omitempty"`
}

type submitRequest struct {
	Job    *jobDocument `json:"job"`
	Script string       `json:"script"`
}

type submitResponse struct {
	JobId  int64      `json:"job_id"`
	Errors []apiError `json:"errors"`
}

type apiError struct {
	Error       string `json:"error"`
	Description string `json:"description"`
}

// jobState tolerates both the v0.0.40 array form and the older scalar.
type jobState []string

func (s *jobState) UnmarshalJSON(data []byte) error {
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*s = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*s = []string{one}
	return nil
}

type jobInfo struct {
	JobId     int64    `json:"job_id"`
	JobState  jobState `json:"job_state"`
	ExitCode  any      `json:"exit_code,omitempty"`
	StartTime any      `json:"start_time,omitempty"`
	EndTime   any      `json:"end_time,omitempty"`
	Nodes     string   `json:"nodes,omitempty"`
}

type jobInfoResponse struct {
	Jobs   []jobInfo  `json:"jobs"`
	Errors []apiError `json:"errors"`
}

// Submit builds the job document plus sbatch script and posts them.
func (d *Driver) Submit(ctx context.Context, job *types.Job) (string, error) {
	cfg, err := parseExecutorConfig(job)
	if err != nil {
		return "", err
	}
	doc, script, err := d.buildSubmission(job, cfg)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, d.submitTimeout)
	defer cancel()
	result, err := d.client.Post(ctx, d.url("/job/submit"), &submitRequest{Job: doc, Script: script}, d.headers()...)
	if err != nil {
		return "", commonerrors.NewDriverTransient(err.Error())
	}
	if !result.IsSuccess() {
		return "", d.classify(result)
	}
	rsp := &submitResponse{}
	if err = json.Unmarshal(result.Body, rsp); err != nil {
		return "", commonerrors.NewDriverPermanent(fmt.Sprintf("unexpected submit response: %v", err))
	}
	if len(rsp.Errors) > 0 {
		return "", commonerrors.NewDriverPermanent(rsp.Errors[0].Description)
	}
	externalId := fmt.Sprintf("%d", rsp.JobId)
	klog.Infof("submitted %s job %s as slurm job %s", job.JobType, job.JobId, externalId)
	return externalId, nil
}

// Status reads the live job. Slurm purges completed jobs from the
// queue, so 404 and an empty jobs array both mean SUCCEEDED.
func (d *Driver) Status(ctx context.Context, externalId string) (types.JobStatus, error) {
	info, err := d.readJob(ctx, externalId)
	if err != nil {
		return "", err
	}
	if info == nil || len(info.JobState) == 0 {
		return types.JobSucceeded, nil
	}
	return MapState(info.JobState[0]), nil
}

// Cancel deletes the job from the queue; already purged is success.
func (d *Driver) Cancel(ctx context.Context, externalId string) error {
	ctx, cancel := context.WithTimeout(ctx, d.submitTimeout)
	defer cancel()
	result, err := d.client.Delete(ctx, d.url("/job/"+externalId), d.headers()...)
	if err != nil {
		return commonerrors.NewDriverTransient(err.Error())
	}
	if result.IsSuccess() || result.StatusCode == http.StatusNotFound {
		return nil
	}
	return d.classify(result)
}

// Logs returns the deterministic output path hint; the REST API does
// not stream log bodies.
func (d *Driver) Logs(ctx context.Context, externalId string) (string, error) {
	return filepath.Join(d.logDir, externalId+".out"), nil
}

// Metrics reports the live queue record for the job.
func (d *Driver) Metrics(ctx context.Context, externalId string) (map[string]interface{}, error) {
	info, err := d.readJob(ctx, externalId)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return map[string]interface{}{"state": string(types.JobSucceeded)}, nil
	}
	metrics := map[string]interface{}{
		"nodes": info.Nodes,
	}
	if len(info.JobState) > 0 {
		metrics["state"] = info.JobState[0]
	}
	if info.ExitCode != nil {
		metrics["exit_code"] = info.ExitCode
	}
	if info.StartTime != nil {
		metrics["start_time"] = info.StartTime
	}
	if info.EndTime != nil {
		metrics["end_time"] = info.EndTime
	}
	return metrics, nil
}

func (d *Driver) readJob(ctx context.Context, externalId string) (*jobInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, d.readTimeout)
	defer cancel()
	result, err := d.client.Get(ctx, d.url("/job/"+externalId), d.headers()...)
	if err != nil {
		return nil, commonerrors.NewDriverTransient(err.Error())
	}
	if result.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if !result.IsSuccess() {
		return nil, d.classify(result)
	}
	rsp := &jobInfoResponse{}
	if err = json.Unmarshal(result.Body, rsp); err != nil {
		return nil, commonerrors.NewDriverPermanent(fmt.Sprintf("unexpected job response: %v", err))
	}
	if len(rsp.Jobs) == 0 {
		return nil, nil
	}
	return &rsp.Jobs[0], nil
}

// classify follows the driver error taxonomy: 5xx is retryable, other
// 4xx is permanent. 404 is special-cased by the callers.
func (d *Driver) classify(result *httpclient.Result) error {
	if result.StatusCode >= 500 {
		return commonerrors.NewDriverTransient(result.String())
	}
	return commonerrors.NewDriverPermanent(result.String())
}
