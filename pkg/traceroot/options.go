package traceroot

import (
	"context"

	"github.com/traceroot-ai/traceroot-sdk/internal/constants"
	"github.com/traceroot-ai/traceroot-sdk/pkg/config"
	"github.com/traceroot-ai/traceroot-sdk/pkg/logging"
)

// Option mutates initialization settings.
type Option func(*options)

type options struct {
	overrideConfig *config.Config
	loaders        []config.Loader
	overrides      config.Overrides
	configFile     string
	searchDir      string
	internal       logging.Adapter
	watchConfig    bool
}

func defaultOptions() options {
	return options{
		watchConfig: true,
	}
}

func (o options) loadConfig(ctx context.Context) (config.Config, error) {
	if o.overrideConfig != nil {
		cfg := config.Normalize(*o.overrideConfig)

		err := config.Validate(cfg)
		if err != nil {
			return config.Config{}, err
		}

		return cfg, nil
	}

	return config.Load(ctx, o.configLoaders()...)
}

func (o options) configLoaders() []config.Loader {
	if len(o.loaders) > 0 {
		return o.loaders
	}

	return []config.Loader{
		config.FileLoader{Path: o.configFile, SearchDir: o.searchDir},
		o.overrides,
		config.EnvLoader{},
	}
}

// fileWatcherPath resolves the file the config watcher should observe.
func (o options) fileWatcherPath() string {
	for _, loader := range o.configLoaders() {
		fl, ok := loader.(config.FileLoader)
		if !ok {
			continue
		}

		if fl.Path != "" {
			return fl.Path
		}

		depth := fl.SearchDepth
		if depth <= 0 {
			depth = constants.ConfigSearchDepth
		}

		if path, found := config.LocateConfigFile(fl.SearchDir, depth); found {
			return path
		}

		return constants.ConfigFileName
	}

	return ""
}

// WithConfig provides a fully resolved configuration and bypasses loaders.
// The cross-field invariants are still applied.
func WithConfig(cfg config.Config) Option {
	return func(opt *options) {
		opt.overrideConfig = &cfg
	}
}

// WithLoaders replaces the default loader chain.
func WithLoaders(loaders ...config.Loader) Option {
	return func(opt *options) {
		opt.loaders = append([]config.Loader{}, loaders...)
	}
}

// WithConfigFile pins the configuration file instead of discovering it.
func WithConfigFile(path string) Option {
	return func(opt *options) {
		opt.configFile = path
	}
}

// WithConfigSearchPath sets the directory config discovery starts from.
func WithConfigSearchPath(dir string) Option {
	return func(opt *options) {
		opt.searchDir = dir
	}
}

// WithInternalLogger routes the SDK's own diagnostics through adapter.
func WithInternalLogger(adapter logging.Adapter) Option {
	return func(opt *options) {
		opt.internal = adapter
	}
}

// WithConfigWatcher toggles file-based config hot reload. Enabled by default.
func WithConfigWatcher(enabled bool) Option {
	return func(opt *options) {
		opt.watchConfig = enabled
	}
}

// WithToken sets the TraceRoot API token.
func WithToken(token string) Option {
	return func(opt *options) {
		opt.overrides.Token = &token
	}
}

// WithName sets the telemetry name reported to the backend.
func WithName(name string) Option {
	return func(opt *options) {
		opt.overrides.Name = &name
	}
}

// WithServiceName sets the instrumented service's name.
func WithServiceName(name string) Option {
	return func(opt *options) {
		opt.overrides.ServiceName = &name
	}
}

// WithGitHubOwner sets the repository owner recorded on telemetry.
func WithGitHubOwner(owner string) Option {
	return func(opt *options) {
		opt.overrides.GitHubOwner = &owner
	}
}

// WithGitHubRepoName sets the repository name recorded on telemetry.
func WithGitHubRepoName(repo string) Option {
	return func(opt *options) {
		opt.overrides.GitHubRepoName = &repo
	}
}

// WithGitHubCommitHash sets the commit hash recorded on telemetry.
func WithGitHubCommitHash(hash string) Option {
	return func(opt *options) {
		opt.overrides.GitHubCommitHash = &hash
	}
}

// WithAWSRegion sets the region of the managed backend.
func WithAWSRegion(region string) Option {
	return func(opt *options) {
		opt.overrides.AWSRegion = &region
	}
}

// WithOTLPEndpoint sets the OTLP endpoint used when no credential exchange
// rewires it.
func WithOTLPEndpoint(endpoint string) Option {
	return func(opt *options) {
		opt.overrides.OTLPEndpoint = &endpoint
	}
}

// WithOTLPProtocol selects the OTLP transport, http or grpc.
func WithOTLPProtocol(protocol string) Option {
	return func(opt *options) {
		opt.overrides.OTLPProtocol = &protocol
	}
}

// WithEnvironment tags telemetry with the deployment environment.
func WithEnvironment(environment string) Option {
	return func(opt *options) {
		opt.overrides.Environment = &environment
	}
}

// WithVerificationEndpoint sets the credential exchange endpoint.
func WithVerificationEndpoint(endpoint string) Option {
	return func(opt *options) {
		opt.overrides.VerificationEndpoint = &endpoint
	}
}

// WithSpanConsoleExport toggles printing spans to stdout.
func WithSpanConsoleExport(enabled bool) Option {
	return func(opt *options) {
		opt.overrides.EnableSpanConsoleExport = &enabled
	}
}

// WithLogConsoleExport toggles printing log records to stdout.
func WithLogConsoleExport(enabled bool) Option {
	return func(opt *options) {
		opt.overrides.EnableLogConsoleExport = &enabled
	}
}

// WithSpanCloudExport toggles exporting spans to the telemetry backend.
func WithSpanCloudExport(enabled bool) Option {
	return func(opt *options) {
		opt.overrides.EnableSpanCloudExport = &enabled
	}
}

// WithLogCloudExport toggles exporting log records to the telemetry backend.
func WithLogCloudExport(enabled bool) Option {
	return func(opt *options) {
		opt.overrides.EnableLogCloudExport = &enabled
	}
}

// WithLocalMode keeps telemetry on the locally configured OTLP endpoint and
// skips the credential exchange.
func WithLocalMode(enabled bool) Option {
	return func(opt *options) {
		opt.overrides.LocalMode = &enabled
	}
}

// WithRuntimeMetrics toggles Go runtime metric collection.
func WithRuntimeMetrics(enabled bool) Option {
	return func(opt *options) {
		opt.overrides.EnableRuntimeMetrics = &enabled
	}
}

// WithDiagnostics toggles the local status endpoint.
func WithDiagnostics(enabled bool) Option {
	return func(opt *options) {
		opt.overrides.EnableDiagnostics = &enabled
	}
}

// WithDiagnosticsAddr sets the listen address of the status endpoint.
func WithDiagnosticsAddr(addr string) Option {
	return func(opt *options) {
		opt.overrides.DiagnosticsAddr = &addr
	}
}
