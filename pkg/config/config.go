/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// SetValue sets a configuration value for the specified key.
func SetValue(key string, value any) {
	viper.Set(key, value)
}

// LoadConfig loads configuration from the specified file path.
func LoadConfig(path string) error {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	return viper.ReadInConfig()
}

func getString(key, defaultValue string) string {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetString(key)
}

func getBool(key string, defaultValue bool) bool {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetBool(key)
}

func getInt(key string, defaultValue int) int {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetInt(key)
}

func getFromFile(configPath, item string) string {
	path := getString(configPath, "")
	data, err := os.ReadFile(filepath.Join(path, item))
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(data), "\r\n")
}

// GetSchedulerTickSecond returns the scheduling tick interval in seconds.
func GetSchedulerTickSecond() int {
	return getInt(schedulerTickSecond, 5)
}

// GetReconcileTickSecond returns the reconcile tick interval in seconds.
func GetReconcileTickSecond() int {
	return getInt(reconcileTickSecond, 15)
}

// GetSchedulerPolicy returns the default scheduling policy name.
func GetSchedulerPolicy() string {
	return getString(schedulerPolicy, "fifo")
}

// GetQuotaProviderKind returns the default quota provider kind.
func GetQuotaProviderKind() string {
	return getString(quotaProviderKind, "local")
}

// IsVdcRoutingEnable returns whether VDC routing is enabled.
func IsVdcRoutingEnable() bool {
	return getBool(vdcRoutingEnable, false)
}

// GetPreemptThreshold returns the priority gap required before a running
// job may be nominated as a preemption victim.
func GetPreemptThreshold() int {
	return getInt(preemptThreshold, 10)
}

// GetMaxDispatchRetry returns the number of transient submit failures
// tolerated before a job is failed outright.
func GetMaxDispatchRetry() int {
	return getInt(maxDispatchRetry, 10)
}

// GetStatusSyncFailThreshold returns the number of consecutive status
// read failures tolerated before a running job is marked failed.
func GetStatusSyncFailThreshold() int {
	return getInt(statusSyncFailThreshold, 5)
}

// GetQuotaAuditCron returns the cron schedule of the quota audit sweep.
func GetQuotaAuditCron() string {
	return getString(quotaAuditCron, "@every 5m")
}

// GetJobTTLSecond returns the TTL in seconds for terminal jobs before
// the audit sweep soft-deletes them. Zero disables TTL cleanup.
func GetJobTTLSecond() int {
	return getInt(jobTTLSecond, 0)
}

// GetFairShareWindowSecond returns the lookback window for fair-share usage.
func GetFairShareWindowSecond() int {
	return getInt(fairShareWindowSecond, 3600)
}

// GetDriverReadTimeoutSecond returns the timeout for backend status reads.
func GetDriverReadTimeoutSecond() int {
	return getInt(driverReadTimeoutSecond, 10)
}

// GetDriverSubmitTimeoutSecond returns the timeout for backend submits and cancels.
func GetDriverSubmitTimeoutSecond() int {
	return getInt(driverSubmitTimeoutSecond, 30)
}

// GetDriverSubmitRetryCount returns how many in-place attempts a
// backend submit or cancel gets while the failure stays transient.
func GetDriverSubmitRetryCount() int {
	return getInt(driverSubmitRetryCount, 3)
}

// GetHeartbeatStaleSecond returns the horizon after which a cluster
// without a heartbeat is treated as unavailable.
func GetHeartbeatStaleSecond() int {
	return getInt(heartbeatStaleSecond, 300)
}

// GetDriverLogTailLines returns how many log lines drivers fetch.
func GetDriverLogTailLines() int {
	return getInt(driverLogTailLines, 1000)
}

// GetDriverBackoffLimit returns the default Kubernetes Job backoff limit.
func GetDriverBackoffLimit() int {
	return getInt(driverBackoffLimit, 3)
}

// GetDriverTTLAfterFinishSecond returns the default Kubernetes Job TTL after finish.
func GetDriverTTLAfterFinishSecond() int {
	return getInt(driverTTLAfterFinishSecond, 86400)
}

// IsKubernetesEnable returns whether the Kubernetes executor is configured.
func IsKubernetesEnable() bool {
	return getBool(kubernetesEnable, false)
}

// GetKubernetesKubeconfig returns the kubeconfig file path; empty means in-cluster.
func GetKubernetesKubeconfig() string {
	return getString(kubernetesKubeconfig, "")
}

// GetKubernetesNamespace returns the namespace jobs are dispatched into.
func GetKubernetesNamespace() string {
	return getString(kubernetesNamespace, "fleet-jobs")
}

// GetKubernetesGpuResourceName returns the extended resource name used
// for GPU requests on pod specs.
func GetKubernetesGpuResourceName() string {
	return getString(kubernetesGpuResourceName, "amd.com/gpu")
}

// IsSlurmEnable returns whether the Slurm executor is configured.
func IsSlurmEnable() bool {
	return getBool(slurmEnable, false)
}

// GetSlurmEndpoint returns the Slurm REST endpoint.
func GetSlurmEndpoint() string {
	return getString(slurmEndpoint, "")
}

// GetSlurmCredential returns the user:token credential for the Slurm REST API.
func GetSlurmCredential() string {
	return getFromFile(slurmSecretPath, "credential")
}

// GetSlurmAccount returns the default Slurm account.
func GetSlurmAccount() string {
	return getString(slurmAccount, "")
}

// GetSlurmPartition returns the default Slurm partition.
func GetSlurmPartition() string {
	return getString(slurmPartition, "")
}

// GetSlurmLogDir returns the directory Slurm job logs are written to.
func GetSlurmLogDir() string {
	return getString(slurmLogDir, "/var/log/slurm")
}

// IsDBEnable returns whether the database is enabled.
func IsDBEnable() bool {
	return getBool(dbEnable, false)
}

// GetDBHost returns the database host address.
func GetDBHost() string {
	return getFromFile(dbSecretPath, "host")
}

// GetDBPort returns the database port number.
func GetDBPort() int {
	data := getFromFile(dbSecretPath, "port")
	n, err := strconv.Atoi(data)
	if err != nil {
		return 0
	}
	return n
}

// GetDBName returns the database name.
func GetDBName() string {
	return getFromFile(dbSecretPath, "dbname")
}

// GetDBUser returns the database username.
func GetDBUser() string {
	return getFromFile(dbSecretPath, "user")
}

// GetDBPassword returns the database password.
func GetDBPassword() string {
	return getFromFile(dbSecretPath, "password")
}

// GetDBSslMode returns the database SSL mode.
func GetDBSslMode() string {
	return getString(dbSslMode, "require")
}

// GetDBMaxOpenConns returns the maximum number of open database connections.
func GetDBMaxOpenConns() int {
	return getInt(dbMaxOpenConns, 100)
}

// GetDBMaxIdleConns returns the maximum number of idle database connections.
func GetDBMaxIdleConns() int {
	return getInt(dbMaxIdleConns, 10)
}

// GetDBMaxLifetimeSecond returns the maximum lifetime of database connections in seconds.
func GetDBMaxLifetimeSecond() int {
	return getInt(dbMaxLifetime, 600)
}

// GetDBMaxIdleTimeSecond returns the maximum idle time of database connections in seconds.
func GetDBMaxIdleTimeSecond() int {
	return getInt(dbMaxIdleTimeSecond, 60)
}

// GetDBConnectTimeoutSecond returns the database connection timeout in seconds.
func GetDBConnectTimeoutSecond() int {
	return getInt(dbConnectTimeoutSecond, 10)
}

// GetDBRequestTimeoutSecond returns the database request timeout in seconds.
func GetDBRequestTimeoutSecond() int {
	return getInt(dbRequestTimeoutSecond, 20)
}

// IsAPIEnable returns whether the HTTP API is served.
func IsAPIEnable() bool {
	return getBool(apiEnable, true)
}

// GetAPIPort returns the port the HTTP API listens on.
func GetAPIPort() int {
	return getInt(apiPort, 8080)
}

// IsMetricsEnable returns whether the metrics endpoint is enabled.
func IsMetricsEnable() bool {
	return getBool(metricsEnable, true)
}

// GetMetricsPort returns the port for the metrics endpoint.
func GetMetricsPort() int {
	return getInt(metricsPort, 9090)
}

// IsHealthCheckEnabled returns whether health checks are enabled.
func IsHealthCheckEnabled() bool {
	return getBool(healthCheckEnable, true)
}

// GetHealthCheckPort returns the port for health check endpoint.
func GetHealthCheckPort() int {
	return getInt(healthCheckPort, 0)
}
