/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package quota

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/config"
	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/resources"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

const (
	resourceQuotaName = "fleet-quota"

	snapshotTTL   = 30 * time.Second
	snapshotSweep = time.Minute
)

// kubernetesProvider projects namespaced ResourceQuota objects. The
// project id doubles as the namespace. Reserve and Release are no-ops:
// the apiserver accounts usage when pods are admitted and terminated.
type kubernetesProvider struct {
	client          kubernetes.Interface
	gpuResourceName corev1.ResourceName
	cache           *gocache.Cache
}

// NewKubernetesProvider builds the provider from process configuration.
func NewKubernetesProvider() (Provider, error) {
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
	return NewKubernetesProviderWithClient(client), nil
}

// NewKubernetesProviderWithClient wires an existing clientset, used by tests.
func NewKubernetesProviderWithClient(client kubernetes.Interface) Provider {
	return &kubernetesProvider{
		client:          client,
		gpuResourceName: corev1.ResourceName(config.GetKubernetesGpuResourceName()),
		cache:           gocache.New(snapshotTTL, snapshotSweep),
	}
}

// GetQuota reads the project namespace's ResourceQuota, serving a
// short-lived cache to keep admission off the apiserver hot path.
func (p *kubernetesProvider) GetQuota(ctx context.Context, projectId string) (*Snapshot, error) {
	if cached, ok := p.cache.Get(projectId); ok {
		return cached.(*Snapshot), nil
	}
	quota, err := p.client.CoreV1().ResourceQuotas(projectId).Get(ctx, resourceQuotaName, metav1.GetOptions{})
	if err != nil {
		if k8serrors.IsNotFound(err) {
			return nil, commonerrors.NewNotFound("ProjectQuota", projectId)
		}
		return nil, err
	}
	snapshot := p.project(quota)
	p.cache.SetDefault(projectId, snapshot)
	return snapshot, nil
}

func (p *kubernetesProvider) project(quota *corev1.ResourceQuota) *Snapshot {
	snapshot := &Snapshot{EnforceQuota: true}
	snapshot.Limit = p.fromResourceList(quota.Status.Hard)
	snapshot.Used = p.fromResourceList(quota.Status.Used)
	if hardPods, ok := quota.Status.Hard[corev1.ResourcePods]; ok {
		snapshot.MaxConcurrent = int(hardPods.Value())
	}
	if usedPods, ok := quota.Status.Used[corev1.ResourcePods]; ok {
		snapshot.RunningJobs = int(usedPods.Value())
	}
	return snapshot
}

func (p *kubernetesProvider) fromResourceList(list corev1.ResourceList) resources.Resources {
	r := resources.Resources{}
	if cpu, ok := list[corev1.ResourceRequestsCPU]; ok {
		r.CPUMilli = cpu.MilliValue()
	} else if cpu, ok := list[corev1.ResourceCPU]; ok {
		r.CPUMilli = cpu.MilliValue()
	}
	if mem, ok := list[corev1.ResourceRequestsMemory]; ok {
		r.MemoryBytes = mem.Value()
	} else if mem, ok := list[corev1.ResourceMemory]; ok {
		r.MemoryBytes = mem.Value()
	}
	if gpu, ok := list[corev1.ResourceName("requests."+string(p.gpuResourceName))]; ok {
		r.GPU = gpu.Value()
	} else if gpu, ok := list[p.gpuResourceName]; ok {
		r.GPU = gpu.Value()
	}
	return r
}

// Check delegates to capacity arithmetic on the projection.
func (p *kubernetesProvider) Check(ctx context.Context, projectId string, request resources.Resources, jobType types.JobType) bool {
	snapshot, err := p.GetQuota(ctx, projectId)
	if err != nil {
		return commonerrors.IsNotFound(err)
	}
	ok, _ := checkSnapshot(snapshot, request)
	return ok
}

// Reserve is a capacity check only; the apiserver is the authority.
func (p *kubernetesProvider) Reserve(ctx context.Context, projectId string, request resources.Resources, jobType types.JobType) (bool, string, error) {
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

// Release is a no-op; usage drops when the pods terminate.
func (p *kubernetesProvider) Release(ctx context.Context, projectId string, request resources.Resources, jobType types.JobType) error {
	return nil
}

// Sync drops the snapshot cache so the next read observes the apiserver.
func (p *kubernetesProvider) Sync(ctx context.Context) error {
	p.cache.Flush()
	return nil
}

// CreateResourceQuota provisions the quota object for a project
// namespace. Used by the administrative surface, not by admission.
func (p *kubernetesProvider) CreateResourceQuota(ctx context.Context, projectId string, limits resources.Resources, maxConcurrent int) error {
	hard := corev1.ResourceList{}
	if limits.CPUMilli > 0 {
		hard[corev1.ResourceRequestsCPU] = *resource.NewMilliQuantity(limits.CPUMilli, resource.DecimalSI)
	}
	if limits.MemoryBytes > 0 {
		hard[corev1.ResourceRequestsMemory] = *resource.NewQuantity(limits.MemoryBytes, resource.BinarySI)
	}
	if limits.GPU > 0 {
		hard[corev1.ResourceName("requests."+string(p.gpuResourceName))] = *resource.NewQuantity(limits.GPU, resource.DecimalSI)
	}
	if maxConcurrent > 0 {
		hard[corev1.ResourcePods] = *resource.NewQuantity(int64(maxConcurrent), resource.DecimalSI)
	}
	quota := &corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{Name: resourceQuotaName, Namespace: projectId},
		Spec:       corev1.ResourceQuotaSpec{Hard: hard},
	}
	_, err := p.client.CoreV1().ResourceQuotas(projectId).Create(ctx, quota, metav1.CreateOptions{})
	if k8serrors.IsAlreadyExists(err) {
		klog.Infof("resource quota for project %s already exists", projectId)
		return nil
	}
	return err
}
