/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/config"
	slurmdriver "github.com/AMD-AIG-AIMA/FLEET/pkg/driver/slurm"
	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/httpclient"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/resources"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/stringutil"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// slurmProvider projects account-association limits from the Slurm
// REST API. Reserve and Release are no-ops: the Slurm controller
// enforces association limits at submission time.
type slurmProvider struct {
	client    httpclient.Interface
	endpoint  string
	userName  string
	userToken string
	cache     *gocache.Cache
}

// NewSlurmProvider builds the provider from process configuration.
func NewSlurmProvider() (Provider, error) {
	endpoint := config.GetSlurmEndpoint()
	if endpoint == "" {
		return nil, fmt.Errorf("slurm endpoint is not configured")
	}
	user, token, ok := stringutil.SplitPair(config.GetSlurmCredential(), ":")
	if !ok || user == "" || token == "" {
		return nil, fmt.Errorf("slurm credential must be user:token")
	}
	return NewSlurmProviderWithClient(httpclient.NewHttpClient(), endpoint, user, token), nil
}

// NewSlurmProviderWithClient wires an existing HTTP client, used by tests.
func NewSlurmProviderWithClient(client httpclient.Interface, endpoint, user, token string) Provider {
	return &slurmProvider{
		client:    client,
		endpoint:  strings.TrimRight(endpoint, "/"),
		userName:  user,
		userToken: token,
		cache:     gocache.New(snapshotTTL, snapshotSweep),
	}
}

type accountResponse struct {
	Accounts []struct {
		Name         string `json:"name"`
		Associations []struct {
			MaxTres string `json:"max_tres"`
		} `json:"associations"`
	} `json:"accounts"`
}

// GetQuota reads the account matching the project and parses its TRES
// limit string. Live usage is not exposed on this path, so Used stays
// zero and admission is limit-only.
func (p *slurmProvider) GetQuota(ctx context.Context, projectId string) (*Snapshot, error) {
	if cached, ok := p.cache.Get(projectId); ok {
		return cached.(*Snapshot), nil
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(config.GetDriverReadTimeoutSecond())*time.Second)
	defer cancel()
	result, err := p.client.Get(ctx, p.endpoint+"/slurm/v0.0.40/accounts/"+projectId,
		"X-SLURM-USER-NAME", p.userName, "X-SLURM-USER-TOKEN", p.userToken)
	if err != nil {
		return nil, commonerrors.NewDriverTransient(err.Error())
	}
	if result.StatusCode == http.StatusNotFound {
		return nil, commonerrors.NewNotFound("ProjectQuota", projectId)
	}
	if !result.IsSuccess() {
		return nil, commonerrors.NewDriverTransient(result.String())
	}
	rsp := &accountResponse{}
	if err = json.Unmarshal(result.Body, rsp); err != nil {
		return nil, commonerrors.NewDriverPermanent(fmt.Sprintf("unexpected account response: %v", err))
	}
	if len(rsp.Accounts) == 0 {
		return nil, commonerrors.NewNotFound("ProjectQuota", projectId)
	}

	snapshot := &Snapshot{EnforceQuota: true}
	for _, assoc := range rsp.Accounts[0].Associations {
		if assoc.MaxTres == "" {
			continue
		}
		limit, err := ParseTRES(assoc.MaxTres)
		if err != nil {
			return nil, err
		}
		snapshot.Limit = limit
		break
	}
	p.cache.SetDefault(projectId, snapshot)
	return snapshot, nil
}

// Check delegates to capacity arithmetic on the projection.
func (p *slurmProvider) Check(ctx context.Context, projectId string, request resources.Resources, jobType types.JobType) bool {
	snapshot, err := p.GetQuota(ctx, projectId)
	if err != nil {
		return commonerrors.IsNotFound(err)
	}
	ok, _ := checkSnapshot(snapshot, request)
	return ok
}

// Reserve is a capacity check only; slurmctld is the authority.
func (p *slurmProvider) Reserve(ctx context.Context, projectId string, request resources.Resources, jobType types.JobType) (bool, string, error) {
	snapshot, err := p.GetQuota(ctx, projectId)
	if err != nil {
		if commonerrors.IsNotFound(err) {
			return true, "", nil
		}
		return false, "", err
	}
	ok, reason := checkSnapshot(snapshot, request)
	return ok, reason, nil
}

// Release is a no-op; the association usage drops when jobs end.
func (p *slurmProvider) Release(ctx context.Context, projectId string, request resources.Resources, jobType types.JobType) error {
	return nil
}

// Sync drops the snapshot cache.
func (p *slurmProvider) Sync(ctx context.Context) error {
	p.cache.Flush()
	return nil
}

// ParseTRES parses Slurm's trackable-resource format, e.g.
// "cpu=100,mem=500G,gres/gpu=16".
func ParseTRES(value string) (resources.Resources, error) {
	r := resources.Resources{}
	for _, field := range strings.Split(value, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, raw, ok := stringutil.SplitPair(field, "=")
		if !ok {
			return resources.Resources{}, fmt.Errorf("invalid tres entry %q", field)
		}
		switch strings.ToLower(key) {
		case "cpu":
			cores, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return resources.Resources{}, fmt.Errorf("invalid tres cpu %q", raw)
			}
			r.CPUMilli = cores * 1000
		case "mem":
			mb, err := slurmdriver.ParseMemoryMB(raw)
			if err != nil {
				return resources.Resources{}, err
			}
			r.MemoryBytes = mb * 1024 * 1024
		case "gres/gpu":
			gpus, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return resources.Resources{}, fmt.Errorf("invalid tres gpu %q", raw)
			}
			r.GPU = gpus
		}
	}
	return r, nil
}
