/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package scheduler

// OutcomeKind discriminates the result of a dispatch attempt. Expected
// scheduling outcomes are values, not errors.
type OutcomeKind int

const (
	// OutcomeDispatched means the job reached the backend and is RUNNING.
	OutcomeDispatched OutcomeKind = iota
	// OutcomeQueued means the job stays QUEUED and the next tick retries.
	OutcomeQueued
	// OutcomeFailed means the job entered FAILED.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDispatched:
		return "dispatched"
	case OutcomeQueued:
		return "queued"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// DispatchResult is the outcome of one TryDispatch attempt.
type DispatchResult struct {
	Kind   OutcomeKind
	Reason string
}

func dispatched() DispatchResult {
	return DispatchResult{Kind: OutcomeDispatched}
}

func requeued(reason string) DispatchResult {
	return DispatchResult{Kind: OutcomeQueued, Reason: reason}
}

func failed(reason string) DispatchResult {
	return DispatchResult{Kind: OutcomeFailed, Reason: reason}
}
