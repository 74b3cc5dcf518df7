/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package slurm

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/stringutil"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// workflowStep is one sequenced step of a simplified workflow.
type workflowStep struct {
	Name   string `json:"name"`
	Script string `json:"script"`
}

// executorConfig is the Slurm-shaped view of a job's opaque executor
// document.
type executorConfig struct {
	Script     string            `json:"script"`
	Account    string            `json:"account,omitempty"`
	Partition  string            `json:"partition,omitempty"`
	Nodes      int32             `json:"nodes,omitempty"`
	Cpus       int32             `json:"cpus,omitempty"`
	Memory     string            `json:"memory,omitempty"`
	TimeLimit  string            `json:"time_limit,omitempty"`
	Gpus       int64             `json:"gpus,omitempty"`
	Modules    []string          `json:"modules,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	WorkingDir string            `json:"working_dir,omitempty"`
	Templates  []workflowStep    `json:"templates,omitempty"`
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
	case types.JobTypeTraining, types.JobTypeInference:
		if cfg.Script == "" {
			return nil, commonerrors.NewConfigInvalid(strings.ToLower(string(job.JobType)) + " job requires script")
		}
	case types.JobTypeWorkflow:
		if len(cfg.Templates) == 0 {
			return nil, commonerrors.NewConfigInvalid("workflow job requires templates")
		}
		for i, step := range cfg.Templates {
			if step.Name == "" || step.Script == "" {
				return nil, commonerrors.NewConfigInvalid(fmt.Sprintf("workflow template %d requires name and script", i))
			}
		}
	default:
		return nil, commonerrors.NewConfigInvalid("unknown job type " + string(job.JobType))
	}
	return cfg, nil
}

// buildSubmission translates the executor document into a v0.0.40 job
// document plus an inline sbatch script.
func (d *Driver) buildSubmission(job *types.Job, cfg *executorConfig) (*jobDocument, string, error) {
	timeLimit, err := ParseTimeLimit(cfg.TimeLimit)
	if err != nil {
		return nil, "", commonerrors.NewConfigInvalid(err.Error())
	}
	// persistent services run without a wall clock
	if job.JobType == types.JobTypeInference {
		timeLimit = 0
	}
	memoryMB, err := ParseMemoryMB(cfg.Memory)
	if err != nil {
		return nil, "", commonerrors.NewConfigInvalid(err.Error())
	}

	account := cfg.Account
	if account == "" {
		account = d.account
	}
	partition := cfg.Partition
	if partition == "" {
		partition = d.partition
	}

	name := stringutil.Slugify(job.Name, 50)
	doc := &jobDocument{
		Name:                    name,
		Account:                 account,
		Partition:               partition,
		Nodes:                   cfg.Nodes,
		CpusPerTask:             cfg.Cpus,
		MemoryPerNode:           memoryMB,
		TimeLimit:               timeLimit,
		CurrentWorkingDirectory: cfg.WorkingDir,
		Environment:             buildEnvironment(cfg.Env),
		StandardOutput:          filepath.Join(d.logDir, "%j.out"),
		StandardError:           filepath.Join(d.logDir, "%j.err"),
		Comment:                 job.JobId,
	}
	if cfg.Gpus > 0 {
		doc.Gres = fmt.Sprintf("gpu:%d", cfg.Gpus)
	}
	return doc, d.buildScript(name, cfg), nil
}

// buildEnvironment renders env pairs deterministically; slurmrestd
// rejects submissions with a null environment, so PATH is always set.
func buildEnvironment(env map[string]string) []string {
	entries := []string{"PATH=/bin:/usr/bin:/usr/local/bin"}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		entries = append(entries, k+"="+env[k])
	}
	return entries
}

// buildScript renders the inline sbatch script: module loads first,
// then either the user script or the sequenced workflow templates.
func (d *Driver) buildScript(name string, cfg *executorConfig) string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	b.WriteString("set -e\n")
	for _, module := range cfg.Modules {
		fmt.Fprintf(&b, "module load %s\n", module)
	}
	if len(cfg.Templates) == 0 {
		b.WriteString(cfg.Script)
		b.WriteString("\n")
		return b.String()
	}
	fmt.Fprintf(&b, "echo \"workflow %s: %d steps\"\n", name, len(cfg.Templates))
	for i, step := range cfg.Templates {
		fmt.Fprintf(&b, "echo \"step %d/%d: %s\"\n", i+1, len(cfg.Templates), step.Name)
		b.WriteString(step.Script)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "echo \"workflow %s: done\"\n", name)
	return b.String()
}
