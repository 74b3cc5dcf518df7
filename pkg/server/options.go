/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package server

import (
	"flag"
	"fmt"

	"k8s.io/klog/v2"
)

// Options holds the command line options of the scheduler process.
type Options struct {
	Config string
}

// InitFlags initializes the command line flags for the application.
// It must be called once before the configuration is loaded.
func (opt *Options) InitFlags() error {
	klog.InitFlags(nil)
	flag.StringVar(&opt.Config, "config", "", "Path to the fleet config.yaml")
	flag.Parse()
	if opt.Config == "" {
		return fmt.Errorf("the config path is not defined")
	}
	return nil
}
