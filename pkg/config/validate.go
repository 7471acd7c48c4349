package config

import (
	"strings"

	"github.com/hyp3rd/ewrap"
)

// OTLP transport protocols accepted by otlp_protocol.
const (
	ProtocolHTTP = "http"
	ProtocolGRPC = "grpc"
)

// Normalize applies cross-field rules after per-field resolution. Log cloud
// export rides on the span pipeline, so disabling span cloud export from any
// source forces log cloud export off too.
func Normalize(cfg Config) Config {
	if !cfg.EnableSpanCloudExport {
		cfg.EnableLogCloudExport = false
	}

	if cfg.OTLPProtocol == "" {
		cfg.OTLPProtocol = ProtocolHTTP
	}

	cfg.OTLPProtocol = strings.ToLower(cfg.OTLPProtocol)

	return cfg
}

// Validate asserts that the config meets baseline expectations. Token and
// service_name are deliberately not demanded here: features that need them
// raise a MissingFieldError when they are first used.
func Validate(cfg Config) error {
	switch cfg.OTLPProtocol {
	case ProtocolHTTP, ProtocolGRPC:
	default:
		return newParseError("otlp_protocol", "config",
			"unsupported otlp_protocol %q", cfg.OTLPProtocol)
	}

	if cfg.OTLPEndpoint == "" {
		return invalidConfigError("otlp_endpoint is required")
	}

	if cfg.CloudExportActive() && cfg.VerificationEndpoint == "" {
		return invalidConfigError("verification_endpoint is required for cloud export")
	}

	if cfg.EnableDiagnostics && cfg.DiagnosticsAddr == "" {
		return invalidConfigError("diagnostics_addr is required when diagnostics are enabled")
	}

	return nil
}

func invalidConfigError(format string, args ...any) error {
	return ewrap.Newf("invalid configuration: "+format, args...)
}
