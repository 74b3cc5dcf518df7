/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"
)

var (
	DispatchAttemptCnt = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleet",
		Subsystem: "scheduler",
		Name:      "dispatch_attempt_total",
		Help:      "Total number of dispatch attempts",
	}, []string{"executor"})
	DispatchOutcomeCnt = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleet",
		Subsystem: "scheduler",
		Name:      "dispatch_outcome_total",
		Help:      "Total number of dispatch outcomes by kind",
	}, []string{"outcome"})
	QueueDepthGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fleet",
		Subsystem: "scheduler",
		Name:      "queue_depth",
		Help:      "Number of queued jobs per queue",
	}, []string{"queue"})
	StatusTransitionCnt = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleet",
		Subsystem: "scheduler",
		Name:      "job_status_transition_total",
		Help:      "Total number of job status transitions",
	}, []string{"to"})
	ReconcileErrorCnt = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fleet",
		Subsystem: "reconciler",
		Name:      "sync_error_total",
		Help:      "Total number of backend status read failures",
	})
	ReconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fleet",
		Subsystem: "reconciler",
		Name:      "tick_duration_seconds",
		Help:      "Duration of reconcile ticks in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	QuotaAuditCorrectionCnt = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fleet",
		Subsystem: "reconciler",
		Name:      "quota_audit_correction_total",
		Help:      "Total number of quota counter corrections by the audit sweep",
	})
)

func init() {
	prometheus.MustRegister(DispatchAttemptCnt)
	prometheus.MustRegister(DispatchOutcomeCnt)
	prometheus.MustRegister(QueueDepthGauge)
	prometheus.MustRegister(StatusTransitionCnt)
	prometheus.MustRegister(ReconcileErrorCnt)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(QuotaAuditCorrectionCnt)
}

// StartServer exposes /metrics on the given port.
func StartServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		addr := fmt.Sprintf(":%d", port)
		klog.Infof("metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			klog.Errorf("metrics server stopped: %v", err)
		}
	}()
}
