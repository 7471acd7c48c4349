// Package config resolves the traceroot configuration from environment
// variables, programmatic overrides, and the .traceroot-config.yaml file.
package config

import (
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config is the canonical configuration consumed by the traceroot runtime.
// The struct is intentionally flat: every knob is a top-level field whose
// yaml tag doubles as its file key and, upper-cased with the TRACEROOT_
// prefix, as its environment variable name.
type Config struct {
	// Token authenticates against the verification endpoint. Required only
	// when cloud export is active; checked at that point, not at load time.
	Token string `yaml:"token" json:"token"`

	// Name identifies the telemetry destination. The credential exchange
	// overrides it with the per-customer hash.
	Name string `yaml:"name" json:"name"`

	ServiceName      string `yaml:"service_name"       json:"service_name"`
	GitHubOwner      string `yaml:"github_owner"       json:"github_owner"`
	GitHubRepoName   string `yaml:"github_repo_name"   json:"github_repo_name"`
	GitHubCommitHash string `yaml:"github_commit_hash" json:"github_commit_hash"`

	AWSRegion    string `yaml:"aws_region"    json:"aws_region"`
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	OTLPProtocol string `yaml:"otlp_protocol" json:"otlp_protocol"`
	Environment  string `yaml:"environment"   json:"environment"`

	VerificationEndpoint string `yaml:"verification_endpoint" json:"verification_endpoint"`

	EnableSpanConsoleExport bool `yaml:"enable_span_console_export" json:"enable_span_console_export"`
	EnableLogConsoleExport  bool `yaml:"enable_log_console_export"  json:"enable_log_console_export"`
	EnableSpanCloudExport   bool `yaml:"enable_span_cloud_export"   json:"enable_span_cloud_export"`
	EnableLogCloudExport    bool `yaml:"enable_log_cloud_export"    json:"enable_log_cloud_export"`

	// LocalMode keeps every telemetry pipe pointed at OTLPEndpoint and skips
	// the credential exchange entirely.
	LocalMode bool `yaml:"local_mode" json:"local_mode"`

	EnableRuntimeMetrics bool   `yaml:"enable_runtime_metrics" json:"enable_runtime_metrics"`
	EnableDiagnostics    bool   `yaml:"enable_diagnostics"     json:"enable_diagnostics"`
	DiagnosticsAddr      string `yaml:"diagnostics_addr"       json:"diagnostics_addr"`
}

// CloudExportActive reports whether telemetry leaves the host for the managed
// backend, which is what gates the credential exchange.
func (c Config) CloudExportActive() bool {
	return c.EnableSpanCloudExport && !c.LocalMode
}

// LogGroup returns the destination log group: the credential hash when one
// was assigned, the service name otherwise.
func (c Config) LogGroup() string {
	if c.Name != "" {
		return c.Name
	}

	return c.ServiceName
}

// LogStream derives the per-deployment stream name.
func (c Config) LogStream() string {
	return c.ServiceName + "-" + c.Environment
}

// ResourceAttributes returns the service identity propagated on every span,
// log record, and metric.
func (c Config) ResourceAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(c.ServiceName),
		attribute.String("service.github_owner", c.GitHubOwner),
		attribute.String("service.github_repo_name", c.GitHubRepoName),
		attribute.String("service.environment", c.Environment),
	}
	if c.GitHubCommitHash != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(c.GitHubCommitHash))
	}

	return attrs
}
