/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package api

import (
	"github.com/gin-gonic/gin"

	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
)

const routerRootPath = "/api/v1"

// NewEngine builds the gin engine with every route registered.
func NewEngine(h *Handler) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.NoRoute(func(c *gin.Context) {
		abortWithError(c, commonerrors.NewNotFoundWithMessage(c.Request.RequestURI+" not found"))
	})
	InitRouters(engine, h)
	return engine
}

// InitRouters registers the scheduler API routes.
func InitRouters(e *gin.Engine, h *Handler) {
	root := e.Group(routerRootPath)
	{
		jobs := root.Group("/jobs")
		{
			jobs.POST("", h.SubmitJob)
			jobs.GET("", h.ListJobs)
			jobs.GET("/:job_id", h.GetJob)
			jobs.DELETE("/:job_id", h.CancelJob)
		}

		queues := root.Group("/queues")
		{
			queues.POST("", h.CreateQueue)
			queues.GET("", h.ListQueues)
			queues.GET("/:queue_id", h.GetQueue)
			queues.PATCH("/:queue_id", h.UpdateQueue)
			queues.DELETE("/:queue_id", h.DeleteQueue)
		}

		quotas := root.Group("/quotas")
		{
			quotas.POST("", h.CreateProjectQuota)
			quotas.GET("/:project_id", h.GetProjectQuota)
			quotas.PATCH("/:project_id", h.UpdateProjectQuota)
		}

		vdcs := root.Group("/vdcs")
		{
			vdcs.POST("", h.CreateVdc)
			vdcs.GET("", h.ListVdcs)
			vdcs.GET("/:vdc_id", h.GetVdc)
			vdcs.PATCH("/:vdc_id", h.UpdateVdc)
			vdcs.POST("/:vdc_id/quotas", h.CreateVdcAllocation)
			vdcs.PATCH("/:vdc_id/quotas/:project_id", h.UpdateVdcAllocation)
		}

		clusters := root.Group("/clusters")
		{
			clusters.POST("", h.RegisterCluster)
			clusters.GET("", h.ListClusters)
			clusters.PATCH("/:cluster_id", h.UpdateCluster)
			clusters.POST("/:cluster_id/heartbeat", h.ClusterHeartbeat)
		}
	}
}
