package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LBBNetwork/JeopardyRingInPublic/shared"
)

type staticSource shared.Snapshot

func (s staticSource) Snapshot() shared.Snapshot { return shared.Snapshot(s) }

func TestStatusMux(t *testing.T) {
	winner := 2
	mux := NewMux(staticSource{DeviceID: "dev", Status: "ACTIVE", Winner: &winner})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/healthz = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/state = %d", rec.Code)
	}
	var snap shared.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode /state: %v", err)
	}
	if snap.DeviceID != "dev" || snap.Winner == nil || *snap.Winner != 2 {
		t.Fatalf("/state = %+v", snap)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/state", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /state = %d", rec.Code)
	}

	Rounds.Inc()
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "ringin_rounds_total") {
		t.Fatalf("/metrics missing ringin_rounds_total")
	}
}
