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
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	healthURL        string // Base URL of the server; empty derives it from config
	healthJSONOutput bool   // Output as JSON
	healthTimeout    string // Per-request timeout (e.g., "5s")
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// healthCmd probes a running server's liveness endpoint and system
// health snapshot over HTTP.
//
// # Examples
//
//	moodmirror health                              # Probe localhost on the configured port
//	moodmirror health --json                       # JSON output for scripting
//	moodmirror health --url http://mirror:8000     # Probe a remote instance
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of a running mood mirror server",
	Long: `Probes a running server over HTTP: first the liveness endpoint,
then the system health snapshot (recent reading volume, active
sessions, open websocket connections, storage totals).

Examples:
  moodmirror health                            # Probe localhost on the configured port
  moodmirror health --json                     # JSON output for automation
  moodmirror health --url http://mirror:8000   # Probe a remote instance
  moodmirror health -t 2s                      # Shorter request timeout

Exits non-zero when the server is unreachable.`,
	Run: runHealthCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().StringVar(&healthURL, "url", "",
		"Base URL of the server (default http://localhost:<server.port>)")
	healthCmd.Flags().BoolVar(&healthJSONOutput, "json", false,
		"Output as JSON for scripting")
	healthCmd.Flags().StringVarP(&healthTimeout, "timeout", "t", "5s",
		"Per-request timeout (e.g., 2s, 500ms)")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runHealthCommand(cmd *cobra.Command, args []string) {
	timeout, err := time.ParseDuration(healthTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid timeout %q: %v\n", healthTimeout, err)
		os.Exit(1)
	}

	baseURL := healthURL
	if baseURL == "" {
		baseURL = "http://localhost:" + config.Server.Port
	}

	client := &http.Client{Timeout: timeout}
	snapshot, err := probeServerHealth(client, baseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server at %s is unreachable: %v\n", baseURL, err)
		os.Exit(1)
	}

	if healthJSONOutput {
		outputHealthSnapshotJSON(snapshot)
		return
	}
	outputHealthSnapshot(baseURL, snapshot)
}

// probeServerHealth checks liveness, then fetches the system health
// snapshot. Returns the decoded snapshot body.
func probeServerHealth(client *http.Client, baseURL string) (map[string]any, error) {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("liveness check returned %s", resp.Status)
	}

	resp, err = client.Get(baseURL + "/api/system/health")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("system health returned %s", resp.Status)
	}

	var snapshot map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode system health: %w", err)
	}
	return snapshot, nil
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

func outputHealthSnapshotJSON(snapshot map[string]any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snapshot); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		os.Exit(1)
	}
}

func outputHealthSnapshot(baseURL string, snapshot map[string]any) {
	fmt.Printf("Server:              %s\n", baseURL)

	health, _ := snapshot["health"].(map[string]any)
	if status, ok := health["status"].(string); ok {
		fmt.Printf("Status:              %s\n", status)
	}
	if activity, ok := health["activity"].(map[string]any); ok {
		fmt.Printf("Readings (last 1h):  %.0f\n", numberField(activity, "recent_readings_1h"))
		fmt.Printf("Active sessions:     %.0f\n", numberField(activity, "active_sessions"))
		fmt.Printf("Readings/minute:     %.2f\n", numberField(activity, "readings_per_minute_1h"))
	}
	if database, ok := health["database"].(map[string]any); ok {
		fmt.Printf("Stored readings:     %.0f\n", numberField(database, "total_emotion_readings"))
		fmt.Printf("Stored sessions:     %.0f\n", numberField(database, "total_sessions"))
	}
	fmt.Printf("Open connections:    %.0f\n", numberField(snapshot, "connections"))
}

// numberField reads a numeric field from decoded JSON, zero when
// missing or not a number.
func numberField(m map[string]any, key string) float64 {
	v, _ := m[key].(float64)
	return v
}
