/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package backoff

import (
	"fmt"
	"testing"
	"time"

	"gotest.tools/assert"

	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
)

func TestRetryEventuallySucceeds(t *testing.T) {
	attempts := 0
	err := Retry(func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("not yet")
		}
		return nil
	}, time.Second, 10*time.Millisecond)
	assert.NilError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestTransientRetryStopsOnPermanent(t *testing.T) {
	attempts := 0
	err := TransientRetry(func() error {
		attempts++
		return commonerrors.NewDriverPermanent("bad request body")
	}, 5, time.Millisecond)
	assert.Assert(t, commonerrors.IsDriverPermanent(err))
	assert.Equal(t, 1, attempts)
}

func TestTransientRetryExhaustsBudget(t *testing.T) {
	attempts := 0
	err := TransientRetry(func() error {
		attempts++
		return commonerrors.NewDriverTransient("connection refused")
	}, 3, time.Millisecond)
	assert.Assert(t, commonerrors.IsDriverTransient(err))
	assert.Equal(t, 3, attempts)
}
