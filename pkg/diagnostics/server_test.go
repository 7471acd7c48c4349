package diagnostics_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/traceroot-ai/traceroot-sdk/pkg/config"
	"github.com/traceroot-ai/traceroot-sdk/pkg/diagnostics"
)

const statusEndpoint = "/traceroot/status"

type stubSnapshotProvider struct {
	snapshot diagnostics.Snapshot
}

func (s stubSnapshotProvider) Snapshot() diagnostics.Snapshot {
	return s.snapshot
}

func TestHandleStatusReturnsSnapshot(t *testing.T) {
	t.Parallel()

	//nolint:revive
	provider := stubSnapshotProvider{
		snapshot: diagnostics.Snapshot{
			ServiceName:  "test",
			Environment:  "staging",
			OTLPEndpoint: "http://collector:4318/v1/traces",
			Exports: map[string]bool{
				"span_cloud": true,
				"log_cloud":  false,
			},
			TraceExporter: diagnostics.ExporterStatus{
				Protocol:      "grpc",
				Endpoint:      "collector:4317",
				LastError:     "boom",
				LastErrorTime: time.Date(2024, 12, 5, 12, 0, 0, 0, time.UTC),
			},
		},
	}

	cfg := config.DefaultConfig()
	cfg.EnableDiagnostics = true
	cfg.DiagnosticsAddr = "127.0.0.1:0"

	server := diagnostics.NewServer(cfg, provider)

	req := httptest.NewRequest(http.MethodGet, statusEndpoint, nil)
	rr := httptest.NewRecorder()

	server.HandleStatus(rr, req)

	res := rr.Result()

	defer func() {
		err := res.Body.Close()
		if err != nil {
			t.Fatalf("close response body: %v", err)
		}
	}()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: got %d", res.StatusCode)
	}

	var snapshot diagnostics.Snapshot

	err := json.NewDecoder(res.Body).Decode(&snapshot)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if snapshot.TraceExporter.Endpoint != "collector:4317" {
		t.Fatalf("expected endpoint collector:4317, got %s", snapshot.TraceExporter.Endpoint)
	}

	if snapshot.TraceExporter.LastError != "boom" {
		t.Fatalf("expected last error boom, got %s", snapshot.TraceExporter.LastError)
	}

	if !snapshot.Exports["span_cloud"] {
		t.Fatal("expected span_cloud export to be reported")
	}

	if snapshot.Timestamp.IsZero() {
		t.Fatal("expected handler to stamp the snapshot timestamp")
	}
}

func TestHandleStatusAuth(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Token = "secret"

	server := diagnostics.NewServer(cfg, stubSnapshotProvider{})

	req := httptest.NewRequest(http.MethodGet, statusEndpoint, nil)
	rr := httptest.NewRecorder()

	server.HandleStatus(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when missing auth, got %d", rr.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, statusEndpoint, bytes.NewBuffer(nil))
	req2.Header.Set("Authorization", "Bearer secret")

	rr2 := httptest.NewRecorder()
	server.HandleStatus(rr2, req2)

	if rr2.Code != http.StatusOK {
		t.Fatalf("expected 200 with auth, got %d", rr2.Code)
	}
}

func TestServerStartRequiresAddr(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.DiagnosticsAddr = ""

	server := diagnostics.NewServer(cfg, stubSnapshotProvider{})

	err := server.Start(context.Background())
	if err == nil {
		t.Fatal("expected error when address is empty")
	}
}
