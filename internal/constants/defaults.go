// Package constants provides common constants used across the traceroot project.
package constants

import "time"

const (
	// DefaultTimeout is the default timeout for requests.
	DefaultTimeout = 5 * time.Second
	// DefaultShutdownTimeout is the default timeout for shutdown operations.
	DefaultShutdownTimeout = 30 * time.Second

	// ConfigFileName is the well-known configuration file discovered on disk.
	ConfigFileName = ".traceroot-config.yaml"
	// ConfigSearchDepth bounds how many directory levels the config discovery walks.
	ConfigSearchDepth = 4

	// EnvPrefix prefixes every environment variable read by the SDK.
	EnvPrefix = "TRACEROOT_"

	// DefaultVerificationEndpoint exchanges a token for telemetry credentials.
	DefaultVerificationEndpoint = "https://api.test.traceroot.ai/v1/verify/credentials"
	// DefaultOTLPEndpoint receives telemetry when no credential exchange rewires it.
	DefaultOTLPEndpoint = "http://localhost:4318/v1/traces"
	// DefaultAWSRegion hosts the managed telemetry backend.
	DefaultAWSRegion = "us-west-2"
	// DefaultEnvironment tags telemetry when the caller does not set one.
	DefaultEnvironment = "development"
	// DefaultDiagnosticsAddr serves the local status endpoint.
	DefaultDiagnosticsAddr = "127.0.0.1:14318"

	// CredentialRefreshLeeway renews credentials this long before they expire.
	CredentialRefreshLeeway = 30 * time.Minute
	// CredentialFallbackTTL bounds credential lifetime when the backend omits an expiry.
	CredentialFallbackTTL = 12 * time.Hour
	// CredentialRefreshInterval paces the background credential refresher.
	CredentialRefreshInterval = 30 * time.Minute

	// DefaultRetryAttempts is the default number of retries for recoverable operations.
	DefaultRetryAttempts = 3
	// DefaultRetryDelay is the default delay between retry attempts.
	DefaultRetryDelay = time.Second
)
