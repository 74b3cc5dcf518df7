/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package events

import (
	"context"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// JobStatusChange describes one job transition. RunState carries the
// linked-run projection when the job is bound to a run and the new
// status maps to a run state.
type JobStatusChange struct {
	JobId     string          `json:"job_id"`
	ProjectId string          `json:"project_id"`
	UserId    string          `json:"user_id"`
	RunId     string          `json:"run_id,omitempty"`
	JobType   types.JobType   `json:"job_type"`
	From      types.JobStatus `json:"from"`
	To        types.JobStatus `json:"to"`
	RunState  types.RunState  `json:"run_state,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Handler consumes job status changes. Handlers must not block; slow
// consumers should buffer internally.
type Handler interface {
	HandleJobStatusChange(ctx context.Context, change *JobStatusChange)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, change *JobStatusChange)

func (f HandlerFunc) HandleJobStatusChange(ctx context.Context, change *JobStatusChange) {
	f(ctx, change)
}

// Publisher fans job status changes out to subscribers. A panicking
// handler is isolated from the others.
type Publisher struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewPublisher creates an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Subscribe registers a handler for all future changes.
func (p *Publisher) Subscribe(handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, handler)
}

// Publish delivers the change to every subscriber in order.
func (p *Publisher) Publish(ctx context.Context, change *JobStatusChange) {
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now()
	}
	p.mu.RLock()
	handlers := make([]Handler, len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.RUnlock()
	for _, handler := range handlers {
		p.deliver(ctx, handler, change)
	}
}

func (p *Publisher) deliver(ctx context.Context, handler Handler, change *JobStatusChange) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("event handler panic on job %s: %v", change.JobId, r)
		}
	}()
	handler.HandleJobStatusChange(ctx, change)
}

// NewJobStatusChange builds the change record for a transition,
// filling the linked-run projection when one applies.
func NewJobStatusChange(job *types.Job, from, to types.JobStatus, reason string) *JobStatusChange {
	change := &JobStatusChange{
		JobId:     job.JobId,
		ProjectId: job.ProjectId,
		UserId:    job.UserId,
		JobType:   job.JobType,
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	if job.RunId.Valid {
		change.RunId = job.RunId.String
		if state, ok := types.RunStateForJobStatus(to); ok {
			change.RunState = state
		}
	}
	return change
}
