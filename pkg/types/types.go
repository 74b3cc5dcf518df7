/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package types

// JobStatus is the lifecycle state of a scheduled job.
type JobStatus string

const (
	JobPending   JobStatus = "Pending"
	JobQueued    JobStatus = "Queued"
	JobRunning   JobStatus = "Running"
	JobSucceeded JobStatus = "Succeeded"
	JobFailed    JobStatus = "Failed"
	JobCancelled JobStatus = "Cancelled"
	JobTimeout   JobStatus = "Timeout"
)

// JobType classifies what kind of workload a job runs.
type JobType string

const (
	JobTypeTraining  JobType = "Training"
	JobTypeInference JobType = "Inference"
	JobTypeWorkflow  JobType = "Workflow"
)

// Executor identifies the backend platform a job is dispatched to.
type Executor string

const (
	ExecutorKubernetes Executor = "Kubernetes"
	ExecutorSlurm      Executor = "Slurm"
)

// ClusterStatus is the operational state of a concrete backend cluster.
type ClusterStatus string

const (
	ClusterHealthy     ClusterStatus = "Healthy"
	ClusterDegraded    ClusterStatus = "Degraded"
	ClusterUnavailable ClusterStatus = "Unavailable"
	ClusterMaintenance ClusterStatus = "Maintenance"
)

// ClusterType mirrors Executor for cluster records.
type ClusterType = Executor

// RunState is the state of an experiment run linked to a job.
type RunState string

const (
	RunStateRunning  RunState = "RUNNING"
	RunStateFinished RunState = "FINISHED"
	RunStateCrashed  RunState = "CRASHED"
	RunStateKilled   RunState = "KILLED"
)

// SelectionStrategy names a cluster selection strategy within a VDC.
type SelectionStrategy string

const (
	StrategyLoadBalancing SelectionStrategy = "load_balancing"
	StrategyResourceFit   SelectionStrategy = "resource_fit"
	StrategyPriority      SelectionStrategy = "priority"
	StrategyAffinity      SelectionStrategy = "affinity"
	StrategyCostOptimized SelectionStrategy = "cost_optimized"
)

// terminalStatuses enumerates the states a job can never leave.
var terminalStatuses = map[JobStatus]struct{}{
	JobSucceeded: {},
	JobFailed:    {},
	JobCancelled: {},
	JobTimeout:   {},
}

// validTransitions is the job state machine. A transition absent from
// this map is forbidden; in particular nothing leaves a terminal state.
var validTransitions = map[JobStatus][]JobStatus{
	JobPending: {JobQueued, JobCancelled},
	JobQueued:  {JobRunning, JobCancelled, JobFailed},
	JobRunning: {JobSucceeded, JobFailed, JobCancelled, JobTimeout},
}

// IsTerminal reports whether the status is final.
func IsTerminal(status JobStatus) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to JobStatus) bool {
	if from == to {
		return false
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RunStateForJobStatus maps a job status to the linked run's state.
// The second return is false for statuses that leave the run untouched.
func RunStateForJobStatus(status JobStatus) (RunState, bool) {
	switch status {
	case JobRunning:
		return RunStateRunning, true
	case JobSucceeded:
		return RunStateFinished, true
	case JobFailed, JobTimeout:
		return RunStateCrashed, true
	case JobCancelled:
		return RunStateKilled, true
	default:
		return "", false
	}
}

// IsRunTerminal reports whether the run state is final.
func IsRunTerminal(state RunState) bool {
	return state == RunStateFinished || state == RunStateCrashed || state == RunStateKilled
}
