package config

import "context"

// Overrides carries configuration values supplied programmatically at init.
// Nil fields contribute nothing, so only knobs the caller explicitly set take
// part in the merge; an explicit false still counts as set.
type Overrides struct {
	Token                *string
	Name                 *string
	ServiceName          *string
	GitHubOwner          *string
	GitHubRepoName       *string
	GitHubCommitHash     *string
	AWSRegion            *string
	OTLPEndpoint         *string
	OTLPProtocol         *string
	Environment          *string
	VerificationEndpoint *string

	EnableSpanConsoleExport *bool
	EnableLogConsoleExport  *bool
	EnableSpanCloudExport   *bool
	EnableLogCloudExport    *bool
	LocalMode               *bool
	EnableRuntimeMetrics    *bool
	EnableDiagnostics       *bool
	DiagnosticsAddr         *string
}

// Load implements Loader.
func (o Overrides) Load(_ context.Context) (map[string]any, error) {
	values := map[string]any{}

	putString(values, "token", o.Token)
	putString(values, "name", o.Name)
	putString(values, "service_name", o.ServiceName)
	putString(values, "github_owner", o.GitHubOwner)
	putString(values, "github_repo_name", o.GitHubRepoName)
	putString(values, "github_commit_hash", o.GitHubCommitHash)
	putString(values, "aws_region", o.AWSRegion)
	putString(values, "otlp_endpoint", o.OTLPEndpoint)
	putString(values, "otlp_protocol", o.OTLPProtocol)
	putString(values, "environment", o.Environment)
	putString(values, "verification_endpoint", o.VerificationEndpoint)
	putString(values, "diagnostics_addr", o.DiagnosticsAddr)

	putBool(values, "enable_span_console_export", o.EnableSpanConsoleExport)
	putBool(values, "enable_log_console_export", o.EnableLogConsoleExport)
	putBool(values, "enable_span_cloud_export", o.EnableSpanCloudExport)
	putBool(values, "enable_log_cloud_export", o.EnableLogCloudExport)
	putBool(values, "local_mode", o.LocalMode)
	putBool(values, "enable_runtime_metrics", o.EnableRuntimeMetrics)
	putBool(values, "enable_diagnostics", o.EnableDiagnostics)

	if len(values) == 0 {
		return nil, newLoaderSkipError()
	}

	return values, nil
}

func putString(values map[string]any, key string, value *string) {
	if value != nil {
		values[key] = *value
	}
}

func putBool(values map[string]any, key string, value *bool) {
	if value != nil {
		values[key] = *value
	}
}
