package config

import (
	"github.com/traceroot-ai/traceroot-sdk/internal/constants"
)

// DefaultConfig returns a Config populated with the documented defaults.
// Cloud export is on and console export is off, mirroring the hosted
// product's out-of-the-box behavior.
func DefaultConfig() Config {
	return Config{
		AWSRegion:            constants.DefaultAWSRegion,
		OTLPEndpoint:         constants.DefaultOTLPEndpoint,
		OTLPProtocol:         ProtocolHTTP,
		Environment:          constants.DefaultEnvironment,
		VerificationEndpoint: constants.DefaultVerificationEndpoint,

		EnableSpanConsoleExport: false,
		EnableLogConsoleExport:  false,
		EnableSpanCloudExport:   true,
		EnableLogCloudExport:    true,
		LocalMode:               false,

		EnableRuntimeMetrics: false,
		EnableDiagnostics:    false,
		DiagnosticsAddr:      constants.DefaultDiagnosticsAddr,
	}
}
