/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package driver

import (
	"context"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// Driver is the uniform surface over backend platforms. Submit returns
// the backend-assigned external id; the remaining operations address
// the job through that id.
type Driver interface {
	Submit(ctx context.Context, job *types.Job) (string, error)
	Status(ctx context.Context, externalId string) (types.JobStatus, error)
	Cancel(ctx context.Context, externalId string) error
	Logs(ctx context.Context, externalId string) (string, error)
	Metrics(ctx context.Context, externalId string) (map[string]interface{}, error)
}
