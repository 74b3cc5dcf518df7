/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "k8s.io/apimachinery/pkg/api/errors"

	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/resources"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/service"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

const headerUserId = "X-User-Id"

// Handler adapts the command service to HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler creates the HTTP handler over the command service.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

type handleFunc func(*gin.Context) (interface{}, error)

// handle executes fn and writes either its response or the error
// envelope carried by the coded error.
func handle(c *gin.Context, fn handleFunc) {
	response, err := fn(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if response == nil {
		c.Status(http.StatusOK)
		return
	}
	c.JSON(http.StatusOK, response)
}

type errResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func abortWithError(c *gin.Context, err error) {
	var statusErr *apierrors.StatusError
	if errors.As(err, &statusErr) {
		status := statusErr.Status()
		c.AbortWithStatusJSON(int(status.Code), errResponse{
			Code:    string(status.Reason),
			Message: status.Message,
		})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, errResponse{Message: err.Error()})
}

func callerId(c *gin.Context) string {
	if user := c.GetHeader(headerUserId); user != "" {
		return user
	}
	return "anonymous"
}

// SubmitJob handles POST /jobs.
func (h *Handler) SubmitJob(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		req := &service.SubmitJobRequest{}
		if err := c.ShouldBindJSON(req); err != nil {
			return nil, commonerrors.NewBadRequest(err.Error())
		}
		if req.UserId == "" {
			req.UserId = c.GetHeader(headerUserId)
		}
		return h.svc.SubmitJob(c.Request.Context(), req)
	})
}

// GetJob handles GET /jobs/:job_id.
func (h *Handler) GetJob(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		return h.svc.GetJob(c.Request.Context(), c.Param("job_id"))
	})
}

// ListJobs handles GET /jobs.
func (h *Handler) ListJobs(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		filter := store.JobFilter{
			ProjectId: c.Query("project_id"),
			UserId:    c.Query("user_id"),
			QueueId:   c.Query("queue_id"),
			VdcId:     c.Query("vdc_id"),
			ClusterId: c.Query("cluster_id"),
		}
		if status := c.Query("status"); status != "" {
			filter.Statuses = []types.JobStatus{types.JobStatus(status)}
		}
		return h.svc.ListJobs(c.Request.Context(), filter)
	})
}

// CancelJob handles DELETE /jobs/:job_id.
func (h *Handler) CancelJob(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		return nil, h.svc.CancelJob(c.Request.Context(), c.Param("job_id"), callerId(c))
	})
}

// CreateQueue handles POST /queues.
func (h *Handler) CreateQueue(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		queue := &types.JobQueue{}
		if err := c.ShouldBindJSON(queue); err != nil {
			return nil, commonerrors.NewBadRequest(err.Error())
		}
		if err := h.svc.CreateQueue(c.Request.Context(), queue); err != nil {
			return nil, err
		}
		return queue, nil
	})
}

// UpdateQueue handles PATCH /queues/:queue_id.
func (h *Handler) UpdateQueue(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		queue := &types.JobQueue{}
		if err := c.ShouldBindJSON(queue); err != nil {
			return nil, commonerrors.NewBadRequest(err.Error())
		}
		queue.QueueId = c.Param("queue_id")
		if err := h.svc.UpdateQueue(c.Request.Context(), queue); err != nil {
			return nil, err
		}
		return queue, nil
	})
}

// GetQueue handles GET /queues/:queue_id.
func (h *Handler) GetQueue(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		return h.svc.GetQueue(c.Request.Context(), c.Param("queue_id"))
	})
}

// ListQueues handles GET /queues.
func (h *Handler) ListQueues(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		return h.svc.ListQueues(c.Request.Context(), c.Query("project_id"))
	})
}

// DeleteQueue handles DELETE /queues/:queue_id.
func (h *Handler) DeleteQueue(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		return nil, h.svc.DeleteQueue(c.Request.Context(), c.Param("queue_id"))
	})
}

// CreateProjectQuota handles POST /quotas.
func (h *Handler) CreateProjectQuota(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		quota := &types.ProjectQuota{}
		if err := c.ShouldBindJSON(quota); err != nil {
			return nil, commonerrors.NewBadRequest(err.Error())
		}
		if err := h.svc.CreateProjectQuota(c.Request.Context(), quota); err != nil {
			return nil, err
		}
		return quota, nil
	})
}

// UpdateProjectQuota handles PATCH /quotas/:project_id.
func (h *Handler) UpdateProjectQuota(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		quota := &types.ProjectQuota{}
		if err := c.ShouldBindJSON(quota); err != nil {
			return nil, commonerrors.NewBadRequest(err.Error())
		}
		quota.ProjectId = c.Param("project_id")
		if err := h.svc.UpdateProjectQuota(c.Request.Context(), quota); err != nil {
			return nil, err
		}
		return quota, nil
	})
}

// GetProjectQuota handles GET /quotas/:project_id.
func (h *Handler) GetProjectQuota(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		return h.svc.GetProjectQuota(c.Request.Context(), c.Param("project_id"))
	})
}

// CreateVdc handles POST /vdcs.
func (h *Handler) CreateVdc(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		vdc := &types.Vdc{}
		if err := c.ShouldBindJSON(vdc); err != nil {
			return nil, commonerrors.NewBadRequest(err.Error())
		}
		if err := h.svc.CreateVdc(c.Request.Context(), vdc); err != nil {
			return nil, err
		}
		return vdc, nil
	})
}

// UpdateVdc handles PATCH /vdcs/:vdc_id.
func (h *Handler) UpdateVdc(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		vdc := &types.Vdc{}
		if err := c.ShouldBindJSON(vdc); err != nil {
			return nil, commonerrors.NewBadRequest(err.Error())
		}
		vdc.VdcId = c.Param("vdc_id")
		if err := h.svc.UpdateVdc(c.Request.Context(), vdc); err != nil {
			return nil, err
		}
		return vdc, nil
	})
}

// GetVdc handles GET /vdcs/:vdc_id.
func (h *Handler) GetVdc(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		return h.svc.GetVdc(c.Request.Context(), c.Param("vdc_id"))
	})
}

// ListVdcs handles GET /vdcs.
func (h *Handler) ListVdcs(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		return h.svc.ListVdcs(c.Request.Context())
	})
}

// CreateVdcAllocation handles POST /vdcs/:vdc_id/quotas.
func (h *Handler) CreateVdcAllocation(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		allocation := &types.ProjectVdcQuota{}
		if err := c.ShouldBindJSON(allocation); err != nil {
			return nil, commonerrors.NewBadRequest(err.Error())
		}
		allocation.VdcId = c.Param("vdc_id")
		if err := h.svc.CreateProjectVdcQuota(c.Request.Context(), allocation); err != nil {
			return nil, err
		}
		return allocation, nil
	})
}

// UpdateVdcAllocation handles PATCH /vdcs/:vdc_id/quotas/:project_id.
func (h *Handler) UpdateVdcAllocation(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		allocation := &types.ProjectVdcQuota{}
		if err := c.ShouldBindJSON(allocation); err != nil {
			return nil, commonerrors.NewBadRequest(err.Error())
		}
		allocation.VdcId = c.Param("vdc_id")
		allocation.ProjectId = c.Param("project_id")
		if err := h.svc.UpdateProjectVdcQuota(c.Request.Context(), allocation); err != nil {
			return nil, err
		}
		return allocation, nil
	})
}

// RegisterCluster handles POST /clusters.
func (h *Handler) RegisterCluster(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		cluster := &types.Cluster{}
		if err := c.ShouldBindJSON(cluster); err != nil {
			return nil, commonerrors.NewBadRequest(err.Error())
		}
		if err := h.svc.RegisterCluster(c.Request.Context(), cluster); err != nil {
			return nil, err
		}
		return cluster, nil
	})
}

// UpdateCluster handles PATCH /clusters/:cluster_id.
func (h *Handler) UpdateCluster(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		cluster := &types.Cluster{}
		if err := c.ShouldBindJSON(cluster); err != nil {
			return nil, commonerrors.NewBadRequest(err.Error())
		}
		cluster.ClusterId = c.Param("cluster_id")
		if err := h.svc.UpdateCluster(c.Request.Context(), cluster); err != nil {
			return nil, err
		}
		return cluster, nil
	})
}

// ListClusters handles GET /clusters.
func (h *Handler) ListClusters(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		return h.svc.ListClusters(c.Request.Context(), c.Query("vdc_id"))
	})
}

// heartbeatRequest is the liveness report a cluster agent posts.
type heartbeatRequest struct {
	Status     types.ClusterStatus `json:"status"`
	CpuUsed    string              `json:"cpu_used"`
	MemoryUsed string              `json:"memory_used"`
	GpuUsed    string              `json:"gpu_used"`
}

// ClusterHeartbeat handles POST /clusters/:cluster_id/heartbeat.
func (h *Handler) ClusterHeartbeat(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		req := &heartbeatRequest{}
		if err := c.ShouldBindJSON(req); err != nil {
			return nil, commonerrors.NewBadRequest(err.Error())
		}
		used, err := resources.Parse(req.CpuUsed, req.MemoryUsed, req.GpuUsed)
		if err != nil {
			return nil, commonerrors.NewBadRequest(err.Error())
		}
		return nil, h.svc.ClusterHeartbeat(c.Request.Context(), c.Param("cluster_id"), req.Status, used)
	})
}
