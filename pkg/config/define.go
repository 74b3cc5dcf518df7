/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package config

const (
	// scheduler
	schedulerPrefix         = "scheduler."
	schedulerTickSecond     = schedulerPrefix + "tick_second"
	reconcileTickSecond     = schedulerPrefix + "reconcile_tick_second"
	schedulerPolicy         = schedulerPrefix + "policy"
	quotaProviderKind       = schedulerPrefix + "quota_provider"
	vdcRoutingEnable        = schedulerPrefix + "vdc_routing_enable"
	preemptThreshold        = schedulerPrefix + "preempt_threshold"
	maxDispatchRetry        = schedulerPrefix + "max_dispatch_retry"
	statusSyncFailThreshold = schedulerPrefix + "status_sync_fail_threshold"
	quotaAuditCron          = schedulerPrefix + "quota_audit_cron"
	jobTTLSecond            = schedulerPrefix + "job_ttl_second"
	fairShareWindowSecond   = schedulerPrefix + "fair_share_window_second"

	// driver
	driverPrefix               = "driver."
	driverReadTimeoutSecond    = driverPrefix + "read_timeout_second"
	driverSubmitTimeoutSecond  = driverPrefix + "submit_timeout_second"
	driverSubmitRetryCount     = driverPrefix + "submit_retry_count"
	heartbeatStaleSecond       = driverPrefix + "heartbeat_stale_second"
	driverLogTailLines         = driverPrefix + "log_tail_lines"
	driverBackoffLimit         = driverPrefix + "backoff_limit"
	driverTTLAfterFinishSecond = driverPrefix + "ttl_after_finished_second"

	// kubernetes executor
	kubernetesPrefix          = "kubernetes."
	kubernetesEnable          = kubernetesPrefix + "enable"
	kubernetesKubeconfig      = kubernetesPrefix + "kubeconfig"
	kubernetesNamespace       = kubernetesPrefix + "namespace"
	kubernetesGpuResourceName = kubernetesPrefix + "gpu_resource_name"

	// slurm executor
	slurmPrefix     = "slurm."
	slurmEnable     = slurmPrefix + "enable"
	slurmEndpoint   = slurmPrefix + "endpoint"
	slurmSecretPath = slurmPrefix + "secret_path"
	slurmAccount    = slurmPrefix + "account"
	slurmPartition  = slurmPrefix + "partition"
	slurmLogDir     = slurmPrefix + "log_dir"

	// db
	dbPrefix               = "db."
	dbEnable               = dbPrefix + "enable"
	dbSecretPath           = dbPrefix + "secret_path"
	dbSslMode              = dbPrefix + "ssl_mode"
	dbMaxOpenConns         = dbPrefix + "max_open_conns"
	dbMaxIdleConns         = dbPrefix + "max_idle_conns"
	dbMaxLifetime          = dbPrefix + "max_life_time_second"
	dbMaxIdleTimeSecond    = dbPrefix + "max_idle_time_second"
	dbConnectTimeoutSecond = dbPrefix + "connect_timeout_second"
	dbRequestTimeoutSecond = dbPrefix + "request_timeout_second"

	// api
	apiPrefix = "api."
	apiEnable = apiPrefix + "enable"
	apiPort   = apiPrefix + "port"

	// metrics
	metricsPrefix = "metrics."
	metricsEnable = metricsPrefix + "enable"
	metricsPort   = metricsPrefix + "port"

	// health_check
	healthCheckPrefix = "health_check."
	healthCheckEnable = healthCheckPrefix + "enable"
	healthCheckPort   = healthCheckPrefix + "port"
)
