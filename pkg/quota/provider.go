/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package quota

import (
	"context"
	"fmt"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/resources"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// Snapshot is a read-only projection of a project's quota.
type Snapshot struct {
	Limit         resources.Resources `json:"limit"`
	Used          resources.Resources `json:"used"`
	MaxConcurrent int                 `json:"max_concurrent"`
	RunningJobs   int                 `json:"running_jobs"`
	EnforceQuota  bool                `json:"enforce_quota"`
}

// Available returns the remaining headroom, saturating at zero.
func (s *Snapshot) Available() resources.Resources {
	return s.Limit.Sub(s.Used)
}

// Provider admits and accounts resource usage for a project. Check is
// a read-only projection; Reserve is the single authority and must be
// atomic with the persistent store. A false Reserve leaves no partial
// reservation behind.
type Provider interface {
	GetQuota(ctx context.Context, projectId string) (*Snapshot, error)
	Check(ctx context.Context, projectId string, request resources.Resources, jobType types.JobType) bool
	Reserve(ctx context.Context, projectId string, request resources.Resources, jobType types.JobType) (bool, string, error)
	Release(ctx context.Context, projectId string, request resources.Resources, jobType types.JobType) error
	// Sync refreshes provider state from an external authority; the
	// default implementation is a no-op.
	Sync(ctx context.Context) error
}

const (
	KindLocal      = "local"
	KindKubernetes = "kubernetes"
	KindSlurm      = "slurm"
)

// NewProvider maps a configured provider kind to its implementation.
func NewProvider(kind string, s store.Store) (Provider, error) {
	switch kind {
	case KindLocal, "":
		return NewLocalProvider(s), nil
	case KindKubernetes:
		return NewKubernetesProvider()
	case KindSlurm:
		return NewSlurmProvider()
	default:
		return nil, fmt.Errorf("unknown quota provider kind %q", kind)
	}
}

// checkSnapshot applies the admission arithmetic shared by providers.
// A zero limit component means that dimension is unlimited.
func checkSnapshot(snapshot *Snapshot, request resources.Resources) (bool, string) {
	if !snapshot.EnforceQuota {
		return true, ""
	}
	used := snapshot.Used
	limit := snapshot.Limit
	if limit.CPUMilli > 0 && used.CPUMilli+request.CPUMilli > limit.CPUMilli {
		return false, "insufficient quota: cpu"
	}
	if limit.MemoryBytes > 0 && used.MemoryBytes+request.MemoryBytes > limit.MemoryBytes {
		return false, "insufficient quota: memory"
	}
	if limit.GPU > 0 && used.GPU+request.GPU > limit.GPU {
		return false, "insufficient quota: gpu"
	}
	if snapshot.MaxConcurrent > 0 && snapshot.RunningJobs >= snapshot.MaxConcurrent {
		return false, "insufficient quota: concurrent jobs"
	}
	return true, ""
}
