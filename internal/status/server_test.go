package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/pi2rec/vadrec/internal/eventlog"
)

func newTestServer(t *testing.T) (*Server, *Hub) {
	t.Helper()
	events, err := eventlog.NewLogger(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = events.Close() })

	hub := NewHub()
	version := func() VersionInfo {
		return VersionInfo{Current: "1.2.3"}
	}
	return NewServer(0, hub, events, version), hub
}

func TestHandleStatus(t *testing.T) {
	srv, hub := newTestServer(t)
	hub.ShowRecording()
	hub.ShowLevels([]int{100, 9000, 30, 4}, 9000)

	rec := httptest.NewRecorder()
	srv.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}

	var resp struct {
		State   string      `json:"state"`
		Levels  []int       `json:"levels"`
		Peak    int         `json:"peak"`
		Version VersionInfo `json:"version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	if resp.State != StateRecording {
		t.Errorf("got state %q, want recording", resp.State)
	}
	if resp.Peak != 9000 {
		t.Errorf("got peak %d, want 9000", resp.Peak)
	}
	if len(resp.Levels) != 4 {
		t.Errorf("got %d levels, want 4", len(resp.Levels))
	}
	if resp.Version.Current != "1.2.3" {
		t.Errorf("got version %q, want 1.2.3", resp.Version.Current)
	}
}

func TestHandleEvents(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.events.LogAudio(eventlog.AudioOverflow, "overflow")
	srv.events.LogAudio(eventlog.AudioStall, "stall")

	rec := httptest.NewRecorder()
	srv.handleEvents(rec, httptest.NewRequest(http.MethodGet, "/api/events?n=1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}

	var resp struct {
		Events []eventlog.Event `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(resp.Events))
	}
	if resp.Events[0].Type != eventlog.AudioStall {
		t.Errorf("got %q, want newest event first", resp.Events[0].Type)
	}
}

func TestHandleEventsRejectsBadCount(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleEvents(rec, httptest.NewRequest(http.MethodGet, "/api/events?n=-3", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rec.Code)
	}
}

func TestHubStateTransitions(t *testing.T) {
	hub := NewHub()

	if hub.State() != StateReady {
		t.Errorf("got initial state %q, want ready", hub.State())
	}

	hub.ShowRecording()
	if hub.State() != StateRecording {
		t.Errorf("got state %q, want recording", hub.State())
	}

	hub.ShowReady()
	if hub.State() != StateReady {
		t.Errorf("got state %q, want ready", hub.State())
	}
}

func TestCheckOrigin(t *testing.T) {
	cases := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "recorder:8080", true},
		{"http://localhost:8080", "recorder:8080", true},
		{"http://127.0.0.1", "recorder:8080", true},
		{"http://recorder:3000", "recorder:8080", true},
		{"http://192.168.1.20", "recorder:8080", true},
		{"http://evil.example.com", "recorder:8080", false},
		{"http://8.8.8.8", "recorder:8080", false},
		{"://bad", "recorder:8080", false},
	}

	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Host = c.host
		if c.origin != "" {
			r.Header.Set("Origin", c.origin)
		}
		if got := checkOrigin(r); got != c.want {
			t.Errorf("origin %q: got %v, want %v", c.origin, got, c.want)
		}
	}
}
