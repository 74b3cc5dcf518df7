/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package driver

import (
	"k8s.io/klog/v2"

	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// Registry maps executors to configured drivers. An executor without a
// registered driver is unavailable and submissions to it fail fast.
type Registry struct {
	drivers map[types.Executor]Driver
}

// NewRegistry creates an empty driver registry.
func NewRegistry() *Registry {
	return &Registry{drivers: map[types.Executor]Driver{}}
}

// Register binds a driver to an executor.
func (r *Registry) Register(executor types.Executor, d Driver) {
	r.drivers[executor] = d
	klog.Infof("registered %s driver", executor)
}

// Get returns the driver for an executor, or ExecutorUnavailable.
func (r *Registry) Get(executor types.Executor) (Driver, error) {
	d, ok := r.drivers[executor]
	if !ok {
		return nil, commonerrors.NewExecutorUnavailable(string(executor))
	}
	return d, nil
}

// Executors lists the registered executors.
func (r *Registry) Executors() []types.Executor {
	executors := make([]types.Executor, 0, len(r.drivers))
	for executor := range r.drivers {
		executors = append(executors, executor)
	}
	return executors
}
