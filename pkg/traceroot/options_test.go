package traceroot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/traceroot-ai/traceroot-sdk/internal/constants"
	"github.com/traceroot-ai/traceroot-sdk/pkg/config"
)

func buildOptions(opts ...Option) options {
	settings := defaultOptions()
	for _, opt := range opts {
		opt(&settings)
	}

	return settings
}

func TestLoadConfigWithConfigAppliesInvariants(t *testing.T) {
	t.Parallel()

	settings := buildOptions(WithConfig(config.Config{
		ServiceName:           "checkout",
		OTLPEndpoint:          "http://collector:4318/v1/traces",
		EnableSpanCloudExport: false,
		EnableLogCloudExport:  true,
	}))

	cfg, err := settings.loadConfig(context.Background())
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}

	if cfg.EnableLogCloudExport {
		t.Fatal("expected log cloud export forced off when span cloud export is off")
	}

	if cfg.OTLPProtocol != config.ProtocolHTTP {
		t.Fatalf("expected default protocol, got %q", cfg.OTLPProtocol)
	}
}

func TestLoadConfigWithConfigRejectsUnknownProtocol(t *testing.T) {
	t.Parallel()

	settings := buildOptions(WithConfig(config.Config{
		OTLPEndpoint: "http://collector:4318/v1/traces",
		OTLPProtocol: "websocket",
	}))

	_, err := settings.loadConfig(context.Background())
	if err == nil {
		t.Fatal("expected error for unsupported protocol")
	}

	if !config.IsParseError(err) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestLoadConfigLayersSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, constants.ConfigFileName)

	yaml := `service_name: file-svc
environment: file-env
enable_span_cloud_export: "no"
`

	err := os.WriteFile(path, []byte(yaml), 0o600)
	if err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("TRACEROOT_SERVICE_NAME", "env-svc")

	settings := buildOptions(
		WithConfigFile(path),
		WithEnvironment("staging"),
	)

	cfg, err := settings.loadConfig(context.Background())
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}

	if cfg.ServiceName != "env-svc" {
		t.Fatalf("expected env var to win, got service name %q", cfg.ServiceName)
	}

	if cfg.Environment != "staging" {
		t.Fatalf("expected override to beat the file, got environment %q", cfg.Environment)
	}

	if cfg.EnableSpanCloudExport {
		t.Fatal("expected quoted falsy literal to disable span cloud export")
	}

	if cfg.EnableLogCloudExport {
		t.Fatal("expected log cloud export forced off when span cloud export is off")
	}

	if cfg.OTLPEndpoint != constants.DefaultOTLPEndpoint {
		t.Fatalf("expected default endpoint, got %q", cfg.OTLPEndpoint)
	}
}

func TestFileWatcherPathExplicit(t *testing.T) {
	t.Parallel()

	settings := buildOptions(WithConfigFile("/etc/traceroot/config.yaml"))

	if got := settings.fileWatcherPath(); got != "/etc/traceroot/config.yaml" {
		t.Fatalf("unexpected watcher path %q", got)
	}
}

func TestFileWatcherPathDiscovers(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, constants.ConfigFileName)

	err := os.WriteFile(path, []byte("service_name: checkout\n"), 0o600)
	if err != nil {
		t.Fatalf("write config file: %v", err)
	}

	settings := buildOptions(WithConfigSearchPath(dir))

	if got := settings.fileWatcherPath(); got != path {
		t.Fatalf("expected discovered path %q, got %q", path, got)
	}
}

func TestFileWatcherPathWithoutFileLoader(t *testing.T) {
	t.Parallel()

	settings := buildOptions(WithLoaders(config.EnvLoader{}))

	if got := settings.fileWatcherPath(); got != "" {
		t.Fatalf("expected empty watcher path, got %q", got)
	}
}
