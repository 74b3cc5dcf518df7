/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package kubernetes

import (
	"fmt"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"

	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

const (
	labelApp       = "app"
	labelJobId     = "fleet.amd.com/job-id"
	labelProjectId = "fleet.amd.com/project-id"
	labelJobType   = "fleet.amd.com/job-type"

	workflowMountPath = "/etc/workflow"
)

func (d *Driver) commonLabels(name string, job *types.Job) map[string]string {
	return map[string]string{
		labelApp:       name,
		labelJobId:     job.JobId,
		labelProjectId: job.ProjectId,
		labelJobType:   strings.ToLower(string(job.JobType)),
	}
}

// buildContainer translates the executor document into a container spec.
func (d *Driver) buildContainer(name string, cfg *executorConfig) (corev1.Container, []corev1.Volume, error) {
	requests := corev1.ResourceList{}
	limits := corev1.ResourceList{}
	if cfg.Cpu != "" {
		q, err := resource.ParseQuantity(cfg.Cpu)
		if err != nil {
			return corev1.Container{}, nil, commonerrors.NewConfigInvalid(fmt.Sprintf("invalid cpu %q: %v", cfg.Cpu, err))
		}
		requests[corev1.ResourceCPU] = q
	}
	if cfg.Memory != "" {
		q, err := resource.ParseQuantity(cfg.Memory)
		if err != nil {
			return corev1.Container{}, nil, commonerrors.NewConfigInvalid(fmt.Sprintf("invalid memory %q: %v", cfg.Memory, err))
		}
		requests[corev1.ResourceMemory] = q
	}
	if cfg.CpuLimit != "" {
		q, err := resource.ParseQuantity(cfg.CpuLimit)
		if err != nil {
			return corev1.Container{}, nil, commonerrors.NewConfigInvalid(fmt.Sprintf("invalid cpu limit %q: %v", cfg.CpuLimit, err))
		}
		limits[corev1.ResourceCPU] = q
	}
	if cfg.MemoryLimit != "" {
		q, err := resource.ParseQuantity(cfg.MemoryLimit)
		if err != nil {
			return corev1.Container{}, nil, commonerrors.NewConfigInvalid(fmt.Sprintf("invalid memory limit %q: %v", cfg.MemoryLimit, err))
		}
		limits[corev1.ResourceMemory] = q
	}
	if cfg.Gpu > 0 {
		// extended resources must be specified in both requests and limits
		q := *resource.NewQuantity(cfg.Gpu, resource.DecimalSI)
		requests[corev1.ResourceName(d.gpuResourceName)] = q
		limits[corev1.ResourceName(d.gpuResourceName)] = q
	}

	var env []corev1.EnvVar
	for _, e := range cfg.Env {
		if e.SecretName != "" {
			env = append(env, corev1.EnvVar{
				Name: e.Name,
				ValueFrom: &corev1.EnvVarSource{
					SecretKeyRef: &corev1.SecretKeySelector{
						LocalObjectReference: corev1.LocalObjectReference{Name: e.SecretName},
						Key:                  e.SecretKey,
					},
				},
			})
		} else {
			env = append(env, corev1.EnvVar{Name: e.Name, Value: e.Value})
		}
	}

	var mounts []corev1.VolumeMount
	var volumes []corev1.Volume
	for _, v := range cfg.Volumes {
		mounts = append(mounts, corev1.VolumeMount{Name: v.Name, MountPath: v.MountPath, ReadOnly: v.ReadOnly})
		volume := corev1.Volume{Name: v.Name}
		if v.ClaimName != "" {
			volume.PersistentVolumeClaim = &corev1.PersistentVolumeClaimVolumeSource{
				ClaimName: v.ClaimName,
				ReadOnly:  v.ReadOnly,
			}
		} else {
			volume.HostPath = &corev1.HostPathVolumeSource{Path: v.HostPath}
		}
		volumes = append(volumes, volume)
	}

	container := corev1.Container{
		Name:       name,
		Image:      cfg.Image,
		Command:    cfg.Command,
		Args:       cfg.Args,
		WorkingDir: cfg.WorkingDir,
		Env:        env,
		Resources: corev1.ResourceRequirements{
			Requests: requests,
			Limits:   limits,
		},
		VolumeMounts: mounts,
	}
	return container, volumes, nil
}

// buildJob emits the batch Job for a training workload.
func (d *Driver) buildJob(name string, job *types.Job, cfg *executorConfig) (*batchv1.Job, error) {
	container, volumes, err := d.buildContainer(name, cfg)
	if err != nil {
		return nil, err
	}
	backoffLimit := int32(d.backoffLimit)
	if cfg.BackoffLimit != nil {
		backoffLimit = *cfg.BackoffLimit
	}
	ttl := int32(d.ttlAfterFinished)
	if cfg.TTLSeconds != nil {
		ttl = *cfg.TTLSeconds
	}
	restartPolicy := corev1.RestartPolicyNever
	if cfg.RestartPolicy != "" {
		restartPolicy = corev1.RestartPolicy(cfg.RestartPolicy)
	}
	labels := d.commonLabels(name, job)
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: d.namespace,
			Labels:    labels,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            ptr.To(backoffLimit),
			TTLSecondsAfterFinished: ptr.To(ttl),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					RestartPolicy: restartPolicy,
					Containers:    []corev1.Container{container},
					Volumes:       volumes,
					NodeSelector:  cfg.NodeSelector,
					Tolerations:   cfg.Tolerations,
				},
			},
		},
	}, nil
}

// buildDeployment emits the Deployment for an inference workload.
func (d *Driver) buildDeployment(name string, job *types.Job, cfg *executorConfig) (*appsv1.Deployment, error) {
	container, volumes, err := d.buildContainer(name, cfg)
	if err != nil {
		return nil, err
	}
	replicas := cfg.Replicas
	if replicas <= 0 {
		replicas = 1
	}
	labels := d.commonLabels(name, job)
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: d.namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(replicas),
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{labelApp: name}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers:   []corev1.Container{container},
					Volumes:      volumes,
					NodeSelector: cfg.NodeSelector,
					Tolerations:  cfg.Tolerations,
				},
			},
		},
	}, nil
}

// buildService emits the Service fronting an inference deployment.
func (d *Driver) buildService(name string, job *types.Job, svc *serviceSpec) *corev1.Service {
	targetPort := svc.TargetPort
	if targetPort == 0 {
		targetPort = svc.Port
	}
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: d.namespace,
			Labels:    d.commonLabels(name, job),
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{labelApp: name},
			Ports: []corev1.ServicePort{{
				Port:       svc.Port,
				TargetPort: intstr.FromInt32(targetPort),
			}},
		},
	}
}

// buildWorkflowConfigMap stores the workflow definition next to the
// controller job that executes it.
func (d *Driver) buildWorkflowConfigMap(name string, job *types.Job, definition string) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name + "-workflow",
			Namespace: d.namespace,
			Labels:    d.commonLabels(name, job),
		},
		Data: map[string]string{
			"workflow.json": definition,
		},
	}
}

// buildWorkflowJob emits the controller Job sequencing the templates.
// Each step runs to completion before the next starts; any failing step
// fails the whole workflow through the shell's errexit.
func (d *Driver) buildWorkflowJob(name string, job *types.Job, cfg *executorConfig) (*batchv1.Job, error) {
	script := renderWorkflowScript(name, cfg.Templates)
	controllerCfg := *cfg
	controllerCfg.Command = []string{"/bin/sh", "-c", script}
	controllerCfg.Args = nil
	controllerCfg.Volumes = append(controllerCfg.Volumes, volumeSpec{
		Name:      "workflow-definition",
		MountPath: workflowMountPath,
		ReadOnly:  true,
	})
	wfJob, err := d.buildJob(name, job, &controllerCfg)
	if err != nil {
		return nil, err
	}
	// the definition volume is a configmap, not a hostpath
	for i := range wfJob.Spec.Template.Spec.Volumes {
		if wfJob.Spec.Template.Spec.Volumes[i].Name == "workflow-definition" {
			wfJob.Spec.Template.Spec.Volumes[i] = corev1.Volume{
				Name: "workflow-definition",
				VolumeSource: corev1.VolumeSource{
					ConfigMap: &corev1.ConfigMapVolumeSource{
						LocalObjectReference: corev1.LocalObjectReference{Name: name + "-workflow"},
					},
				},
			}
		}
	}
	return wfJob, nil
}

func renderWorkflowScript(name string, steps []workflowStep) string {
	var b strings.Builder
	b.WriteString("set -e\n")
	fmt.Fprintf(&b, "echo \"workflow %s: %d steps\"\n", name, len(steps))
	for i, step := range steps {
		fmt.Fprintf(&b, "echo \"step %d/%d: %s\"\n", i+1, len(steps), step.Name)
		b.WriteString(step.Command)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "echo \"workflow %s: done\"\n", name)
	return b.String()
}
