package config_test

import (
	"context"
	"testing"

	"github.com/traceroot-ai/traceroot-sdk/pkg/config"
)

func TestNormalizeForcesLogCloudOff(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.EnableSpanCloudExport = false
	cfg.EnableLogCloudExport = true

	normalized := config.Normalize(cfg)

	if normalized.EnableLogCloudExport {
		t.Fatal("expected log cloud export forced off")
	}
}

func TestNormalizeLeavesLogCloudOnWhenSpanCloudOn(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.EnableSpanCloudExport = true
	cfg.EnableLogCloudExport = true

	normalized := config.Normalize(cfg)

	if !normalized.EnableLogCloudExport {
		t.Fatal("expected log cloud export untouched")
	}
}

func TestNormalizeDefaultsProtocol(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.OTLPProtocol = ""

	normalized := config.Normalize(cfg)

	if normalized.OTLPProtocol != config.ProtocolHTTP {
		t.Fatalf("unexpected protocol: %q", normalized.OTLPProtocol)
	}
}

func TestValidateRejectsUnknownProtocol(t *testing.T) {
	t.Setenv("TRACEROOT_OTLP_PROTOCOL", "carrier-pigeon")

	_, err := config.Load(context.Background(), config.EnvLoader{})
	if err == nil {
		t.Fatal("expected error for unknown protocol")
	}

	if !config.IsParseError(err) {
		t.Fatalf("expected ParseError, got %T: %v", err, err)
	}
}

func TestValidateRejectsEmptyEndpoint(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.OTLPEndpoint = ""

	if err := config.Validate(cfg); err == nil {
		t.Fatal("expected error for empty otlp_endpoint")
	}
}

func TestValidateAllowsMissingTokenAndServiceName(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestCloudExportActive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		spanCloud bool
		localMode bool
		want      bool
	}{
		{"cloud", true, false, true},
		{"local mode", true, true, false},
		{"span cloud off", false, false, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			cfg.EnableSpanCloudExport = tc.spanCloud
			cfg.LocalMode = tc.localMode

			if got := cfg.CloudExportActive(); got != tc.want {
				t.Fatalf("CloudExportActive: got %v want %v", got, tc.want)
			}
		})
	}
}

func TestLogGroupPrefersName(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.ServiceName = "svc"

	if got := cfg.LogGroup(); got != "svc" {
		t.Fatalf("unexpected log group: %q", got)
	}

	cfg.Name = "customer-hash"

	if got := cfg.LogGroup(); got != "customer-hash" {
		t.Fatalf("unexpected log group: %q", got)
	}
}
