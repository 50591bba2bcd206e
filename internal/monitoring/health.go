// Package monitoring serves health and status endpoints for a process
// hosting streaming sessions.
package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/23skdu/longbow-warble/internal/logger"
)

// HealthStatus is the report served on /status.
type HealthStatus struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    time.Duration `json:"uptime"`
	System    SystemInfo    `json:"system"`
	Sessions  []SessionInfo `json:"sessions"`
	Alerts    []Alert       `json:"alerts"`
}

// SystemInfo contains process-level information.
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	MemoryMB     int    `json:"memory_mb"`
	MemoryUsedMB int    `json:"memory_used_mb"`
}

// SessionInfo describes one active streaming session.
type SessionInfo struct {
	ID            string    `json:"id"`
	Layers        int       `json:"layers"`
	Dim           int       `json:"dim"`
	Steps         int64     `json:"steps"`
	LastStep      time.Time `json:"last_step"`
	FramesPerSec  float64   `json:"frames_per_sec"`
	AvgStepMillis float64   `json:"avg_step_ms"`
}

// Alert is a recorded operational condition.
type Alert struct {
	Level     string    `json:"level"` // info, warning, error, critical
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthMonitor tracks sessions and serves health endpoints.
type HealthMonitor struct {
	startTime time.Time
	server    *http.Server
	log       *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*sessionStats
	alerts   []Alert
}

type sessionStats struct {
	info      SessionInfo
	firstStep time.Time
	totalStep time.Duration
}

// NewHealthMonitor creates an empty monitor.
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{
		startTime: time.Now(),
		sessions:  make(map[string]*sessionStats),
		log:       logger.Log.With("monitoring"),
	}
}

// Start serves /health, /healthz, /status and /metrics on addr. Blocks.
func (hm *HealthMonitor) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hm.handleHealth)
	mux.HandleFunc("/healthz", hm.handleHealth)
	mux.HandleFunc("/status", hm.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())

	hm.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	hm.log.Info("health monitor starting", "addr", addr)
	return hm.server.ListenAndServe()
}

// Stop shuts the server down.
func (hm *HealthMonitor) Stop(ctx context.Context) error {
	if hm.server != nil {
		return hm.server.Shutdown(ctx)
	}
	return nil
}

// RegisterSession adds a session to the registry.
func (hm *HealthMonitor) RegisterSession(id string, layers, dim int) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.sessions[id] = &sessionStats{
		info: SessionInfo{ID: id, Layers: layers, Dim: dim},
	}
}

// UnregisterSession removes a session.
func (hm *HealthMonitor) UnregisterSession(id string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	delete(hm.sessions, id)
}

// RecordStep records one completed step for a session.
func (hm *HealthMonitor) RecordStep(id string, duration time.Duration) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	s, ok := hm.sessions[id]
	if !ok {
		return
	}
	now := time.Now()
	if s.info.Steps == 0 {
		s.firstStep = now
	}
	s.info.Steps++
	s.info.LastStep = now
	s.totalStep += duration

	if elapsed := now.Sub(s.firstStep).Seconds(); elapsed > 0 {
		s.info.FramesPerSec = float64(s.info.Steps) / elapsed
	}
	s.info.AvgStepMillis = float64(s.totalStep.Milliseconds()) / float64(s.info.Steps)

	if duration > 100*time.Millisecond {
		hm.addAlertLocked("warning", "stream", "slow step: "+duration.String())
	}
}

// AddAlert records a new alert.
func (hm *HealthMonitor) AddAlert(level, component, message string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.addAlertLocked(level, component, message)
}

func (hm *HealthMonitor) addAlertLocked(level, component, message string) {
	hm.alerts = append(hm.alerts, Alert{
		Level:     level,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	})
	if len(hm.alerts) > 100 {
		hm.alerts = hm.alerts[1:]
	}
	hm.log.Warn("alert", "level", level, "component", component, "message", message)
}

// Status assembles the current health report.
func (hm *HealthMonitor) Status() HealthStatus {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	status := "healthy"
	for _, a := range hm.alerts {
		if a.Level == "critical" {
			status = "critical"
			break
		}
		if a.Level == "error" {
			status = "degraded"
		}
	}

	sessions := make([]SessionInfo, 0, len(hm.sessions))
	for _, s := range hm.sessions {
		sessions = append(sessions, s.info)
	}
	alerts := make([]Alert, len(hm.alerts))
	copy(alerts, hm.alerts)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		Uptime:    time.Since(hm.startTime),
		System: SystemInfo{
			GoVersion:    runtime.Version(),
			OS:           runtime.GOOS,
			Arch:         runtime.GOARCH,
			NumCPU:       runtime.NumCPU(),
			MemoryMB:     int(m.Sys / 1024 / 1024),
			MemoryUsedMB: int(m.Alloc / 1024 / 1024),
		},
		Sessions: sessions,
		Alerts:   alerts,
	}
}

func (hm *HealthMonitor) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := hm.Status()
	if status.Status == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]string{
		"status":    status.Status,
		"timestamp": status.Timestamp.Format(time.RFC3339),
	})
}

func (hm *HealthMonitor) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(hm.Status())
}
