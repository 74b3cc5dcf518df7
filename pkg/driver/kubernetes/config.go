/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package kubernetes

import (
	"encoding/json"
	"fmt"

	corev1 "k8s.io/api/core/v1"

	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// envVar is one container environment entry. Either Value or the
// SecretName/SecretKey pair is set.
type envVar struct {
	Name       string `json:"name"`
	Value      string `json:"value,omitempty"`
	SecretName string `json:"secret_name,omitempty"`
	SecretKey  string `json:"secret_key,omitempty"`
}

// volumeSpec mounts either a host path or a PVC into the container.
type volumeSpec struct {
	Name      string `json:"name"`
	MountPath string `json:"mount_path"`
	HostPath  string `json:"host_path,omitempty"`
	ClaimName string `json:"claim_name,omitempty"`
	ReadOnly  bool   `json:"read_only,omitempty"`
}

// serviceSpec exposes an inference deployment inside the cluster.
type serviceSpec struct {
	Port       int32 `json:"port"`
	TargetPort int32 `json:"target_port,omitempty"`
}

// workflowStep is one sequenced step of a simplified workflow.
type workflowStep struct {
	Name    string `json:"name"`
	Command string `json:"command"`
}

// executorConfig is the Kubernetes-shaped view of a job's opaque
// executor document.
type executorConfig struct {
	Image         string              `json:"image"`
	Command       []string            `json:"command,omitempty"`
	Args          []string            `json:"args,omitempty"`
	WorkingDir    string              `json:"working_dir,omitempty"`
	Env           []envVar            `json:"env,omitempty"`
	Cpu           string              `json:"cpu,omitempty"`
	Memory        string              `json:"memory,omitempty"`
	Gpu           int64               `json:"gpu,omitempty"`
	CpuLimit      string              `json:"cpu_limit,omitempty"`
	MemoryLimit   string              `json:"memory_limit,omitempty"`
	Volumes       []volumeSpec        `json:"volumes,omitempty"`
	NodeSelector  map[string]string   `json:"node_selector,omitempty"`
	Tolerations   []corev1.Toleration `json:"tolerations,omitempty"`
	RestartPolicy string              `json:"restart_policy,omitempty"`
	BackoffLimit  *int32              `json:"backoff_limit,omitempty"`
	TTLSeconds    *int32              `json:"ttl_seconds_after_finished,omitempty"`
	Replicas      int32               `json:"replicas,omitempty"`
	Service       *serviceSpec        `json:"service,omitempty"`
	Templates     []workflowStep      `json:"templates,omitempty"`
}

// parseExecutorConfig decodes and validates the executor document for
// the job's type. Missing required fields fail with ConfigInvalid.
func parseExecutorConfig(job *types.Job) (*executorConfig, error) {
	if job.ExecutorConfig == "" {
		return nil, commonerrors.NewConfigInvalid("executor_config is empty")
	}
	cfg := &executorConfig{}
	if err := json.Unmarshal([]byte(job.ExecutorConfig), cfg); err != nil {
		return nil, commonerrors.NewConfigInvalid(fmt.Sprintf("executor_config is not valid json: %v", err))
	}
	switch job.JobType {
	case types.JobTypeTraining:
		if cfg.Image == "" {
			return nil, commonerrors.NewConfigInvalid("training job requires image")
		}
	case types.JobTypeInference:
		if cfg.Image == "" {
			return nil, commonerrors.NewConfigInvalid("inference job requires image")
		}
	case types.JobTypeWorkflow:
		if cfg.Image == "" {
			return nil, commonerrors.NewConfigInvalid("workflow job requires image")
		}
		if len(cfg.Templates) == 0 {
			return nil, commonerrors.NewConfigInvalid("workflow job requires templates")
		}
		for i, step := range cfg.Templates {
			if step.Name == "" || step.Command == "" {
				return nil, commonerrors.NewConfigInvalid(fmt.Sprintf("workflow template %d requires name and command", i))
			}
		}
	default:
		return nil, commonerrors.NewConfigInvalid("unknown job type " + string(job.JobType))
	}
	return cfg, nil
}
