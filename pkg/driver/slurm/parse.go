/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package slurm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// ParseTimeLimit converts a Slurm time limit into integer minutes.
// Accepted forms: "HH:MM:SS", "MM:SS", plain minutes, "UNLIMITED" (0).
// Partial minutes round up.
func ParseTimeLimit(value string) (int64, error) {
	s := strings.TrimSpace(value)
	if s == "" || strings.EqualFold(s, "UNLIMITED") {
		return 0, nil
	}
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		minutes, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil || minutes < 0 {
			return 0, fmt.Errorf("invalid time limit %q", value)
		}
		return minutes, nil
	case 2:
		minutes, err1 := strconv.ParseInt(parts[0], 10, 64)
		seconds, err2 := strconv.ParseInt(parts[1], 10, 64)
		if err1 != nil || err2 != nil || minutes < 0 || seconds < 0 {
			return 0, fmt.Errorf("invalid time limit %q", value)
		}
		if seconds > 0 {
			minutes++
		}
		return minutes, nil
	case 3:
		hours, err1 := strconv.ParseInt(parts[0], 10, 64)
		minutes, err2 := strconv.ParseInt(parts[1], 10, 64)
		seconds, err3 := strconv.ParseInt(parts[2], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil || hours < 0 || minutes < 0 || seconds < 0 {
			return 0, fmt.Errorf("invalid time limit %q", value)
		}
		total := hours*60 + minutes
		if seconds > 0 {
			total++
		}
		return total, nil
	}
	return 0, fmt.Errorf("invalid time limit %q", value)
}

// ParseMemoryMB converts a memory string with GB/MB/TB suffixes into
// megabytes. A bare number is already megabytes.
func ParseMemoryMB(value string) (int64, error) {
	s := strings.TrimSpace(strings.ToUpper(value))
	if s == "" {
		return 0, nil
	}
	factor := int64(1)
	switch {
	case strings.HasSuffix(s, "TB"):
		factor = 1024 * 1024
		s = strings.TrimSuffix(s, "TB")
	case strings.HasSuffix(s, "GB"):
		factor = 1024
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "T"):
		factor = 1024 * 1024
		s = strings.TrimSuffix(s, "T")
	case strings.HasSuffix(s, "G"):
		factor = 1024
		s = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "M"):
		s = strings.TrimSuffix(s, "M")
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid memory %q", value)
	}
	return int64(n * float64(factor)), nil
}

// MapState translates a Slurm job state string into a job status.
func MapState(state string) types.JobStatus {
	switch strings.ToUpper(state) {
	case "PENDING", "CONFIGURING", "SUSPENDED", "REQUEUED":
		return types.JobQueued
	case "RUNNING", "COMPLETING":
		return types.JobRunning
	case "COMPLETED":
		return types.JobSucceeded
	case "FAILED", "NODE_FAIL", "OUT_OF_MEMORY", "BOOT_FAIL", "DEADLINE":
		return types.JobFailed
	case "CANCELLED", "PREEMPTED":
		return types.JobCancelled
	case "TIMEOUT":
		return types.JobTimeout
	default:
		return types.JobRunning
	}
}
