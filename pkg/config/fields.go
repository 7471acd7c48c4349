package config

import (
	"strings"

	"github.com/traceroot-ai/traceroot-sdk/internal/constants"
)

// FieldKind tells loaders how to parse a raw string for a field.
type FieldKind int

// Field kinds understood by the loaders.
const (
	FieldString FieldKind = iota
	FieldBool
)

// Field describes one configuration knob: its yaml key, the environment
// variable that overrides it, and how string sources parse it.
type Field struct {
	Key  string
	Env  string
	Kind FieldKind
}

func field(key string, kind FieldKind) Field {
	return Field{
		Key:  key,
		Env:  constants.EnvPrefix + strings.ToUpper(key),
		Kind: kind,
	}
}

// Fields enumerates every configuration knob in declaration order.
func Fields() []Field {
	return []Field{
		field("token", FieldString),
		field("name", FieldString),
		field("service_name", FieldString),
		field("github_owner", FieldString),
		field("github_repo_name", FieldString),
		field("github_commit_hash", FieldString),
		field("aws_region", FieldString),
		field("otlp_endpoint", FieldString),
		field("otlp_protocol", FieldString),
		field("environment", FieldString),
		field("verification_endpoint", FieldString),
		field("enable_span_console_export", FieldBool),
		field("enable_log_console_export", FieldBool),
		field("enable_span_cloud_export", FieldBool),
		field("enable_log_cloud_export", FieldBool),
		field("local_mode", FieldBool),
		field("enable_runtime_metrics", FieldBool),
		field("enable_diagnostics", FieldBool),
		field("diagnostics_addr", FieldString),
	}
}

// ParseBool maps the accepted boolean literals onto their values. The empty
// string counts as false so that a variable set to "" disables a toggle. Any
// other literal is a *ParseError.
func ParseBool(field, source, raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	default:
		return false, newParseError(field, source,
			"parse %s from %s: unrecognized boolean literal %q", field, source, raw)
	}
}
