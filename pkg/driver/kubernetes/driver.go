/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package kubernetes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/config"
	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/stringutil"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

const noPodsSentinel = "no pods found"

// Driver dispatches jobs onto a Kubernetes cluster. Training jobs map
// to batch Jobs, inference to Deployments (plus an optional Service)
// and workflows to a ConfigMap with a sequencing controller Job.
type Driver struct {
	client           kubernetes.Interface
	namespace        string
	gpuResourceName  string
	backoffLimit     int
	ttlAfterFinished int
	logTailLines     int
	readTimeout      time.Duration
	submitTimeout    time.Duration
}

// NewDriver builds the production driver from process configuration.
// An empty kubeconfig path selects in-cluster credentials.
func NewDriver() (*Driver, error) {
	var restCfg *rest.Config
	var err error
	if path := config.GetKubernetesKubeconfig(); path != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", path)
	} else {
		restCfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load kubernetes config: %v", err)
	}
	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, err
	}
	return NewDriverWithClient(client, config.GetKubernetesNamespace()), nil
}

// NewDriverWithClient wires an existing clientset, used by tests.
func NewDriverWithClient(client kubernetes.Interface, namespace string) *Driver {
	return &Driver{
		client:           client,
		namespace:        namespace,
		gpuResourceName:  config.GetKubernetesGpuResourceName(),
		backoffLimit:     config.GetDriverBackoffLimit(),
		ttlAfterFinished: config.GetDriverTTLAfterFinishSecond(),
		logTailLines:     config.GetDriverLogTailLines(),
		readTimeout:      time.Duration(config.GetDriverReadTimeoutSecond()) * time.Second,
		submitTimeout:    time.Duration(config.GetDriverSubmitTimeoutSecond()) * time.Second,
	}
}

// ExternalName derives the deterministic Kubernetes object name for a
// job, so a retried submit targets the same object.
func ExternalName(job *types.Job) string {
	return stringutil.Slugify(job.Name, 50) + "-" + stringutil.FirstN(job.JobId, 8)
}

// Submit creates the backend objects for the job and returns the
// object name as external id. AlreadyExists is idempotent success.
func (d *Driver) Submit(ctx context.Context, job *types.Job) (string, error) {
	cfg, err := parseExecutorConfig(job)
	if err != nil {
		return "", err
	}
	name := ExternalName(job)
	ctx, cancel := context.WithTimeout(ctx, d.submitTimeout)
	defer cancel()

	switch job.JobType {
	case types.JobTypeTraining:
		err = d.submitTraining(ctx, name, job, cfg)
	case types.JobTypeInference:
		err = d.submitInference(ctx, name, job, cfg)
	case types.JobTypeWorkflow:
		err = d.submitWorkflow(ctx, name, job, cfg)
	default:
		return "", commonerrors.NewConfigInvalid("unknown job type " + string(job.JobType))
	}
	if err != nil {
		return "", err
	}
	klog.Infof("submitted %s job %s as %s/%s", job.JobType, job.JobId, d.namespace, name)
	return name, nil
}

func (d *Driver) submitTraining(ctx context.Context, name string, job *types.Job, cfg *executorConfig) error {
	obj, err := d.buildJob(name, job, cfg)
	if err != nil {
		return err
	}
	_, err = d.client.BatchV1().Jobs(d.namespace).Create(ctx, obj, metav1.CreateOptions{})
	return d.ignoreConflict(err, name)
}

func (d *Driver) submitInference(ctx context.Context, name string, job *types.Job, cfg *executorConfig) error {
	deployment, err := d.buildDeployment(name, job, cfg)
	if err != nil {
		return err
	}
	_, err = d.client.AppsV1().Deployments(d.namespace).Create(ctx, deployment, metav1.CreateOptions{})
	if err = d.ignoreConflict(err, name); err != nil {
		return err
	}
	if cfg.Service == nil {
		return nil
	}
	_, err = d.client.CoreV1().Services(d.namespace).Create(ctx, d.buildService(name, job, cfg.Service), metav1.CreateOptions{})
	return d.ignoreConflict(err, name)
}

func (d *Driver) submitWorkflow(ctx context.Context, name string, job *types.Job, cfg *executorConfig) error {
	definition, err := json.Marshal(cfg.Templates)
	if err != nil {
		return commonerrors.NewConfigInvalid(fmt.Sprintf("workflow templates are not serializable: %v", err))
	}
	_, err = d.client.CoreV1().ConfigMaps(d.namespace).Create(ctx,
		d.buildWorkflowConfigMap(name, job, string(definition)), metav1.CreateOptions{})
	if err = d.ignoreConflict(err, name); err != nil {
		return err
	}
	controller, err := d.buildWorkflowJob(name, job, cfg)
	if err != nil {
		return err
	}
	_, err = d.client.BatchV1().Jobs(d.namespace).Create(ctx, controller, metav1.CreateOptions{})
	return d.ignoreConflict(err, name)
}

func (d *Driver) ignoreConflict(err error, name string) error {
	if err == nil {
		return nil
	}
	if k8serrors.IsAlreadyExists(err) {
		klog.Infof("object %s/%s already exists, treating as submitted", d.namespace, name)
		return nil
	}
	return classify(err)
}

// Status reads the batch Job or, when absent, the Deployment backing
// the external id and maps the observed state.
func (d *Driver) Status(ctx context.Context, externalId string) (types.JobStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, d.readTimeout)
	defer cancel()

	batchJob, err := d.client.BatchV1().Jobs(d.namespace).Get(ctx, externalId, metav1.GetOptions{})
	if err == nil {
		switch {
		case batchJob.Status.Succeeded > 0:
			return types.JobSucceeded, nil
		case batchJob.Status.Failed > 0:
			return types.JobFailed, nil
		case batchJob.Status.Active > 0:
			return types.JobRunning, nil
		default:
			return types.JobPending, nil
		}
	}
	if !k8serrors.IsNotFound(err) {
		return "", classify(err)
	}

	deployment, err := d.client.AppsV1().Deployments(d.namespace).Get(ctx, externalId, metav1.GetOptions{})
	if err != nil {
		if k8serrors.IsNotFound(err) {
			return "", commonerrors.NewNotFound("Job", externalId)
		}
		return "", classify(err)
	}
	replicas := int32(1)
	if deployment.Spec.Replicas != nil {
		replicas = *deployment.Spec.Replicas
	}
	switch {
	case deployment.Status.ReadyReplicas == replicas:
		return types.JobRunning, nil
	case deployment.Status.UnavailableReplicas > 0:
		return types.JobPending, nil
	default:
		return types.JobQueued, nil
	}
}

// Cancel deletes the backend objects with background propagation. An
// already deleted object counts as success.
func (d *Driver) Cancel(ctx context.Context, externalId string) error {
	ctx, cancel := context.WithTimeout(ctx, d.submitTimeout)
	defer cancel()

	propagation := metav1.DeletePropagationBackground
	opts := metav1.DeleteOptions{PropagationPolicy: &propagation}

	err := d.client.BatchV1().Jobs(d.namespace).Delete(ctx, externalId, opts)
	if err == nil {
		return nil
	}
	if !k8serrors.IsNotFound(err) {
		return classify(err)
	}
	err = d.client.AppsV1().Deployments(d.namespace).Delete(ctx, externalId, opts)
	if err == nil || k8serrors.IsNotFound(err) {
		return nil
	}
	return classify(err)
}

// Logs tails the first pod belonging to the external id.
func (d *Driver) Logs(ctx context.Context, externalId string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.readTimeout)
	defer cancel()

	pod, err := d.findPod(ctx, externalId)
	if err != nil {
		return "", err
	}
	if pod == "" {
		return noPodsSentinel, nil
	}
	tail := int64(d.logTailLines)
	raw, err := d.client.CoreV1().Pods(d.namespace).
		GetLogs(pod, &corev1.PodLogOptions{TailLines: &tail}).Do(ctx).Raw()
	if err != nil {
		return "", classify(err)
	}
	return string(raw), nil
}

func (d *Driver) findPod(ctx context.Context, externalId string) (string, error) {
	for _, selector := range []string{"job-name=" + externalId, labelApp + "=" + externalId} {
		pods, err := d.client.CoreV1().Pods(d.namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
		if err != nil {
			return "", classify(err)
		}
		if len(pods.Items) > 0 {
			return pods.Items[0].Name, nil
		}
	}
	return "", nil
}

// Metrics reports the backend counters for the external id.
func (d *Driver) Metrics(ctx context.Context, externalId string) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, d.readTimeout)
	defer cancel()

	batchJob, err := d.client.BatchV1().Jobs(d.namespace).Get(ctx, externalId, metav1.GetOptions{})
	if err == nil {
		metrics := map[string]interface{}{
			"active":    batchJob.Status.Active,
			"succeeded": batchJob.Status.Succeeded,
			"failed":    batchJob.Status.Failed,
		}
		if batchJob.Status.StartTime != nil {
			metrics["start_time"] = batchJob.Status.StartTime.Time
		}
		if batchJob.Status.CompletionTime != nil {
			metrics["completion_time"] = batchJob.Status.CompletionTime.Time
		}
		return metrics, nil
	}
	if !k8serrors.IsNotFound(err) {
		return nil, classify(err)
	}
	deployment, err := d.client.AppsV1().Deployments(d.namespace).Get(ctx, externalId, metav1.GetOptions{})
	if err != nil {
		if k8serrors.IsNotFound(err) {
			return nil, commonerrors.NewNotFound("Job", externalId)
		}
		return nil, classify(err)
	}
	return map[string]interface{}{
		"replicas":           deployment.Status.Replicas,
		"ready_replicas":     deployment.Status.ReadyReplicas,
		"available_replicas": deployment.Status.AvailableReplicas,
	}, nil
}

// classify translates a client-go error into the driver error
// taxonomy: 5xx and transport failures are retryable, other 4xx are
// permanent. 404 and 409 are special-cased by the callers.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if commonerrors.IsFleet(err) {
		return err
	}
	if statusErr, ok := err.(*k8serrors.StatusError); ok {
		code := statusErr.ErrStatus.Code
		if code >= 400 && code < 500 {
			return commonerrors.NewDriverPermanent(statusErr.Error())
		}
		return commonerrors.NewDriverTransient(statusErr.Error())
	}
	return commonerrors.NewDriverTransient(err.Error())
}
