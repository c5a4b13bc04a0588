// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"os"
	"time"
)

// Config mirrors config.yaml. Zero values fall back to the defaults
// applied in applyDefaults.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Storage struct {
		Path     string `yaml:"path"`
		InMemory bool   `yaml:"in_memory"`
	} `yaml:"storage"`

	Registry struct {
		TTLMinutes int `yaml:"ttl_minutes"`
	} `yaml:"registry"`

	Collective struct {
		WindowMinutes int `yaml:"window_minutes"`
	} `yaml:"collective"`

	Housekeeping struct {
		IntervalSeconds int `yaml:"interval_seconds"`
		StaleAfterHours int `yaml:"stale_after_hours"`
	} `yaml:"housekeeping"`

	Websocket struct {
		MessageRate   float64 `yaml:"message_rate"`
		MessageBurst  int     `yaml:"message_burst"`
		MaxFrameBytes int64   `yaml:"max_frame_bytes"`
	} `yaml:"websocket"`

	Tracing struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"tracing"`
}

// applyEnvOverrides lets the environment win over config.yaml for the
// two settings a deployment most often varies per instance.
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("MOODMIRROR_PORT"); port != "" {
		c.Server.Port = port
	}
	if dir := os.Getenv("MOODMIRROR_DATA_DIR"); dir != "" {
		c.Storage.Path = dir
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8000"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./data/moodmirror"
	}
	if c.Registry.TTLMinutes <= 0 {
		c.Registry.TTLMinutes = 30
	}
	if c.Collective.WindowMinutes <= 0 {
		c.Collective.WindowMinutes = 10
	}
	if c.Housekeeping.IntervalSeconds <= 0 {
		c.Housekeeping.IntervalSeconds = 30
	}
	if c.Housekeeping.StaleAfterHours <= 0 {
		c.Housekeeping.StaleAfterHours = 24
	}
	if c.Websocket.MessageRate <= 0 {
		c.Websocket.MessageRate = 10
	}
	if c.Websocket.MessageBurst <= 0 {
		c.Websocket.MessageBurst = 20
	}
	if c.Websocket.MaxFrameBytes <= 0 {
		c.Websocket.MaxFrameBytes = 4096
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = "localhost:4317"
	}
}

func (c *Config) registryTTL() time.Duration {
	return time.Duration(c.Registry.TTLMinutes) * time.Minute
}

func (c *Config) collectiveWindow() time.Duration {
	return time.Duration(c.Collective.WindowMinutes) * time.Minute
}

func (c *Config) housekeepingInterval() time.Duration {
	return time.Duration(c.Housekeeping.IntervalSeconds) * time.Second
}

func (c *Config) staleAfter() time.Duration {
	return time.Duration(c.Housekeeping.StaleAfterHours) * time.Hour
}
