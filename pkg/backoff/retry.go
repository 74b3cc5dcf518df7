/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package backoff

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
)

// Retry executes an operation with exponential backoff until it succeeds
// or the maximum elapsed time is reached.
func Retry(op backoff.Operation, maxElapsedTime, maxInterval time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsedTime
	b.MaxInterval = maxInterval
	if err := backoff.Retry(op, b); err != nil {
		return err
	}
	return nil
}

// TransientRetry executes an operation with fixed-interval retries,
// continuing only while the error is a transient driver failure.
func TransientRetry(op backoff.Operation, count int, interval time.Duration) error {
	var err error
	for i := 0; i < count; i++ {
		if err = op(); err == nil {
			return nil
		}
		if i == count-1 || !commonerrors.IsDriverTransient(err) {
			return err
		}
		time.Sleep(interval)
	}
	return err
}
