package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSessionRegistry(t *testing.T) {
	hm := NewHealthMonitor()

	hm.RegisterSession("a", 4, 128)
	hm.RegisterSession("b", 2, 64)

	status := hm.Status()
	if len(status.Sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(status.Sessions))
	}

	hm.UnregisterSession("a")
	status = hm.Status()
	if len(status.Sessions) != 1 || status.Sessions[0].ID != "b" {
		t.Fatalf("unregister left %+v", status.Sessions)
	}
}

func TestRecordStep(t *testing.T) {
	hm := NewHealthMonitor()
	hm.RegisterSession("s", 4, 128)

	for i := 0; i < 5; i++ {
		hm.RecordStep("s", 2*time.Millisecond)
	}
	// Unknown session ids are ignored.
	hm.RecordStep("missing", time.Millisecond)

	status := hm.Status()
	if len(status.Sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(status.Sessions))
	}
	s := status.Sessions[0]
	if s.Steps != 5 {
		t.Errorf("steps = %d, want 5", s.Steps)
	}
	if s.LastStep.IsZero() {
		t.Error("last step not recorded")
	}
}

func TestSlowStepAlert(t *testing.T) {
	hm := NewHealthMonitor()
	hm.RegisterSession("s", 1, 8)

	hm.RecordStep("s", 250*time.Millisecond)

	status := hm.Status()
	if len(status.Alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(status.Alerts))
	}
	if status.Alerts[0].Level != "warning" {
		t.Errorf("alert level = %q, want warning", status.Alerts[0].Level)
	}
	// Warnings alone do not degrade health.
	if status.Status != "healthy" {
		t.Errorf("status = %q, want healthy", status.Status)
	}
}

func TestStatusLevels(t *testing.T) {
	hm := NewHealthMonitor()
	if got := hm.Status().Status; got != "healthy" {
		t.Fatalf("fresh status = %q, want healthy", got)
	}

	hm.AddAlert("error", "flight", "publish failed")
	if got := hm.Status().Status; got != "degraded" {
		t.Errorf("status = %q, want degraded", got)
	}

	hm.AddAlert("critical", "stream", "session wedged")
	if got := hm.Status().Status; got != "critical" {
		t.Errorf("status = %q, want critical", got)
	}
}

func TestAlertsBounded(t *testing.T) {
	hm := NewHealthMonitor()
	for i := 0; i < 150; i++ {
		hm.AddAlert("info", "test", "noise")
	}
	if n := len(hm.Status().Alerts); n > 100 {
		t.Errorf("alert list grew to %d, cap is 100", n)
	}
}

func TestHealthHandler(t *testing.T) {
	hm := NewHealthMonitor()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	hm.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("healthy monitor returned %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", body["status"])
	}

	hm.AddAlert("critical", "stream", "down")
	rec = httptest.NewRecorder()
	hm.handleHealth(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("critical monitor returned %d, want 503", rec.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	hm := NewHealthMonitor()
	hm.RegisterSession("s", 3, 16)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	hm.handleStatus(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(status.Sessions) != 1 || status.Sessions[0].Dim != 16 {
		t.Errorf("sessions = %+v", status.Sessions)
	}
	if status.System.NumCPU < 1 {
		t.Errorf("num cpu = %d", status.System.NumCPU)
	}
}
