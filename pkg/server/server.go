/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/api"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/config"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/driver"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/driver/kubernetes"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/driver/slurm"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/events"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/metrics"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/policy"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/quota"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/reconciler"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/scheduler"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/selector"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/service"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/store"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

// Server wires the scheduler process together: store, drivers, quota
// provider, orchestrator, reconciler and the HTTP API. Everything is
// constructed here once; no package keeps global state.
type Server struct {
	opts   *Options
	ctx    context.Context
	cancel context.CancelFunc

	store        store.Store
	registry     *driver.Registry
	provider     quota.Provider
	orchestrator *scheduler.Orchestrator
	reconciler   *reconciler.Reconciler
	httpServer   *http.Server
	isInited     bool
}

// NewServer creates and returns a new Server instance.
func NewServer() (*Server, error) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	s := &Server{
		opts:   &Options{},
		ctx:    ctx,
		cancel: cancel,
	}
	if err := s.init(); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// init performs the initial setup of the server including flag parsing,
// configuration loading and the construction of every component.
func (s *Server) init() error {
	gin.SetMode(gin.ReleaseMode)
	var err error
	if err = s.opts.InitFlags(); err != nil {
		klog.ErrorS(err, "failed to parse flags")
		return err
	}
	if err = s.initConfig(); err != nil {
		klog.ErrorS(err, "failed to init config")
		return err
	}
	if err = s.initStore(); err != nil {
		klog.ErrorS(err, "failed to init store")
		return err
	}
	if err = s.initDrivers(); err != nil {
		klog.ErrorS(err, "failed to init drivers")
		return err
	}
	if err = s.initScheduler(); err != nil {
		klog.ErrorS(err, "failed to init scheduler")
		return err
	}
	s.isInited = true
	return nil
}

// initConfig loads the server configuration from the specified config file path.
func (s *Server) initConfig() error {
	fullPath, err := filepath.Abs(s.opts.Config)
	if err != nil {
		return err
	}
	if err = config.LoadConfig(fullPath); err != nil {
		return fmt.Errorf("config path: %s, err: %v", fullPath, err)
	}
	return nil
}

// initStore opens the postgres store when the database is enabled and
// falls back to the in-memory store otherwise.
func (s *Server) initStore() error {
	if !config.IsDBEnable() {
		klog.Infof("database disabled, using in-memory store")
		s.store = store.NewMemoryStore()
		return nil
	}
	var err error
	s.store, err = store.NewPostgresStore()
	return err
}

// initDrivers registers a driver per enabled executor backend.
func (s *Server) initDrivers() error {
	s.registry = driver.NewRegistry()
	if config.IsKubernetesEnable() {
		d, err := kubernetes.NewDriver()
		if err != nil {
			return fmt.Errorf("kubernetes driver: %v", err)
		}
		s.registry.Register(types.ExecutorKubernetes, d)
		klog.Infof("kubernetes executor registered, namespace %s", config.GetKubernetesNamespace())
	}
	if config.IsSlurmEnable() {
		d, err := slurm.NewDriver()
		if err != nil {
			return fmt.Errorf("slurm driver: %v", err)
		}
		s.registry.Register(types.ExecutorSlurm, d)
		klog.Infof("slurm executor registered, endpoint %s", config.GetSlurmEndpoint())
	}
	return nil
}

// initScheduler builds the quota provider, scheduling policy,
// orchestrator and reconciler.
func (s *Server) initScheduler() error {
	var err error
	if s.provider, err = quota.NewProvider(config.GetQuotaProviderKind(), s.store); err != nil {
		return fmt.Errorf("quota provider: %v", err)
	}

	headroom := policy.NewHeadroomTracker()
	pol, err := policy.New(config.GetSchedulerPolicy(), policy.Options{
		Store:            s.store,
		PreemptThreshold: config.GetPreemptThreshold(),
		FairShareWindow:  time.Duration(config.GetFairShareWindowSecond()) * time.Second,
		Headroom:         headroom.Get,
	})
	if err != nil {
		return fmt.Errorf("scheduling policy: %v", err)
	}

	publisher := events.NewPublisher()
	publisher.Subscribe(service.NewAuditLogHandler())

	opts := scheduler.Options{
		Store:     s.store,
		Registry:  s.registry,
		Provider:  s.provider,
		Policy:    pol,
		Publisher: publisher,
		Headroom:  headroom,
	}
	if config.IsVdcRoutingEnable() {
		opts.VdcManager = quota.NewVdcManager(s.store)
		opts.Selector = selector.NewSelector(s.store)
	}
	s.orchestrator = scheduler.NewOrchestrator(opts)
	s.reconciler = reconciler.NewReconciler(s.store, s.registry, s.orchestrator)
	return nil
}

// Start runs the scheduling loops and serves the HTTP endpoints. It
// blocks until the process receives a termination signal.
func (s *Server) Start() {
	if !s.isInited {
		klog.Errorf("please init scheduler server first")
		return
	}
	klog.Infof("starting fleet scheduler")

	go s.orchestrator.Run(s.ctx)
	go s.reconciler.Run(s.ctx)

	if config.IsMetricsEnable() {
		metrics.StartServer(config.GetMetricsPort())
	}
	if config.IsHealthCheckEnabled() && config.GetHealthCheckPort() > 0 {
		s.startHealthServer()
	}
	if config.IsAPIEnable() {
		go func() {
			if err := s.startHttpServer(); err != nil && err != http.ErrServerClosed {
				klog.ErrorS(err, "failed to start http-server")
				os.Exit(-1)
			}
		}()
	}

	<-s.ctx.Done()
	s.Stop()
}

// Stop gracefully shuts down the HTTP server, the loops and the store.
func (s *Server) Stop() {
	s.cancel()
	if s.httpServer != nil {
		klog.Info("shutting down http server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			klog.ErrorS(err, "failed to shutdown http server")
		}
	}
	s.store.Close()
	klog.Info("scheduler is stopped")
	klog.Flush()
}

// startHttpServer initializes and starts the HTTP API server.
func (s *Server) startHttpServer() error {
	if config.GetAPIPort() <= 0 {
		return fmt.Errorf("the api port is not defined")
	}
	svc := service.NewService(s.store, s.registry, s.orchestrator, s.provider)
	engine := api.NewEngine(api.NewHandler(svc))
	addr := fmt.Sprintf(":%d", config.GetAPIPort())
	s.httpServer = &http.Server{Addr: addr, Handler: engine}
	klog.Infof("http-server listen port: %d", config.GetAPIPort())
	return s.httpServer.ListenAndServe()
}

// startHealthServer exposes /healthz and /readyz on the health port.
func (s *Server) startHealthServer() {
	mux := http.NewServeMux()
	ok := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
	mux.HandleFunc("/healthz", ok)
	mux.HandleFunc("/readyz", ok)
	go func() {
		addr := fmt.Sprintf(":%d", config.GetHealthCheckPort())
		klog.Infof("health check listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			klog.Errorf("health server stopped: %v", err)
		}
	}()
}
