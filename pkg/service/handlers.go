/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package service

import (
	"context"

	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/events"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// RunStore updates the lifecycle state of a linked run. The run system
// lives outside this process; only the state projection crosses over.
type RunStore interface {
	UpdateRunState(ctx context.Context, runId string, state types.RunState) error
}

// NewAuditLogHandler returns a subscriber that writes every job
// transition to the process log.
func NewAuditLogHandler() events.Handler {
	return events.HandlerFunc(func(ctx context.Context, change *events.JobStatusChange) {
		klog.InfoS("job status change",
			"job", change.JobId,
			"project", change.ProjectId,
			"user", change.UserId,
			"from", change.From,
			"to", change.To,
			"reason", change.Reason,
		)
	})
}

// NewRunStateHandler returns a subscriber that mirrors job transitions
// onto the linked run, when the job carries one.
func NewRunStateHandler(runs RunStore) events.Handler {
	return events.HandlerFunc(func(ctx context.Context, change *events.JobStatusChange) {
		if change.RunId == "" || change.RunState == "" {
			return
		}
		if err := runs.UpdateRunState(ctx, change.RunId, change.RunState); err != nil {
			klog.ErrorS(err, "failed to update linked run", "run", change.RunId, "state", change.RunState)
		}
	})
}
