package config

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyp3rd/ewrap"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/traceroot-ai/traceroot-sdk/internal/constants"
)

const errMsgUnableToReadConfigFromPath = "read config file %q"

// Loader transforms external sources into configuration maps that are decoded onto Config.
type Loader interface {
	Load(ctx context.Context) (map[string]any, error)
}

// LoaderFunc adapts ordinary functions into Loader.
type LoaderFunc func(ctx context.Context) (map[string]any, error)

// Load implements Loader.
func (lf LoaderFunc) Load(ctx context.Context) (map[string]any, error) {
	return lf(ctx)
}

type loaderSkipError struct {
	err *ewrap.Error
}

func newLoaderSkipError() error {
	return &loaderSkipError{err: ewrap.New("config loader skip")}
}

// Error implements error.
func (l *loaderSkipError) Error() string {
	if l == nil || l.err == nil {
		return ""
	}

	return l.err.Error()
}

// Unwrap implements errors.Wrapper.
func (l *loaderSkipError) Unwrap() error {
	if l == nil {
		return nil
	}

	return l.err
}

// Is implements errors.Is.
func (*loaderSkipError) Is(target error) bool {
	_, ok := target.(*loaderSkipError)

	return ok
}

func isLoaderSkipError(err error) bool {
	if err == nil {
		return false
	}

	var target *loaderSkipError

	return errors.As(err, &target)
}

// DefaultLoaders returns the standard source chain: config file, then
// programmatic overrides, then environment variables. Later loaders win per
// field, which yields the env > overrides > file > defaults precedence.
func DefaultLoaders(overrides Overrides) []Loader {
	return []Loader{
		FileLoader{},
		overrides,
		EnvLoader{},
	}
}

// Load runs loaders sequentially, layering their fields over DefaultConfig(),
// then applies cross-field rules and validates the result. A field keeps the
// last value any loader supplied for it; untouched fields keep their default.
func Load(ctx context.Context, loaders ...Loader) (Config, error) {
	cfg := DefaultConfig()

	for _, loader := range loaders {
		if loader == nil {
			continue
		}

		values, err := loader.Load(ctx)
		if err != nil {
			if isLoaderSkipError(err) {
				continue
			}

			return Config{}, err
		}

		if len(values) == 0 {
			continue
		}

		source := loaderSource(loader)

		values, err = coerceBooleans(source, values)
		if err != nil {
			return Config{}, err
		}

		err = decodeInto(&cfg, values)
		if err != nil {
			return Config{}, wrapParseError(err, "", source, "decode config")
		}
	}

	cfg = Normalize(cfg)

	err := Validate(cfg)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loaderSource(loader Loader) string {
	switch loader.(type) {
	case FileLoader, *FileLoader:
		return "file"
	case EnvLoader, *EnvLoader:
		return "env"
	case Overrides, *Overrides:
		return "overrides"
	default:
		return "loader"
	}
}

// coerceBooleans parses string values destined for boolean fields so that a
// quoted literal in YAML behaves exactly like an environment variable.
func coerceBooleans(source string, values map[string]any) (map[string]any, error) {
	for _, f := range Fields() {
		if f.Kind != FieldBool {
			continue
		}

		raw, ok := values[f.Key]
		if !ok {
			continue
		}

		literal, ok := raw.(string)
		if !ok {
			continue
		}

		parsed, err := ParseBool(f.Key, source, literal)
		if err != nil {
			return nil, err
		}

		values[f.Key] = parsed
	}

	return values, nil
}

func decodeInto(target *Config, input map[string]any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "yaml",
		Result:  target,
	})
	if err != nil {
		return ewrap.Wrap(err, "create decoder")
	}

	err = decoder.Decode(input)
	if err != nil {
		return ewrap.Wrap(err, "decode config")
	}

	return nil
}

// FileLoader loads configuration from a YAML file. With no explicit Path it
// discovers .traceroot-config.yaml starting at SearchDir (the working
// directory by default): the directory itself, then subdirectories, then
// parent directories, each bounded by SearchDepth levels. A file that does
// not exist contributes nothing.
type FileLoader struct {
	Path        string
	FS          fs.FS
	SearchDir   string
	SearchDepth int
}

// Load implements Loader.
func (fl FileLoader) Load(_ context.Context) (map[string]any, error) {
	path := fl.Path
	if path == "" {
		if fl.FS != nil {
			path = constants.ConfigFileName
		} else {
			located, ok := LocateConfigFile(fl.SearchDir, fl.depth())
			if !ok {
				return nil, newLoaderSkipError()
			}

			path = located
		}
	}

	data, err := readFile(fl.FS, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newLoaderSkipError()
		}

		return nil, ewrap.Wrapf(err, errMsgUnableToReadConfigFromPath, path)
	}

	var out map[string]any

	err = yaml.Unmarshal(data, &out)
	if err != nil {
		return nil, wrapParseError(err, "", "file", "unmarshal yaml "+path)
	}

	return pruneNil(sanitizeMap(out)), nil
}

func (fl FileLoader) depth() int {
	if fl.SearchDepth > 0 {
		return fl.SearchDepth
	}

	return constants.ConfigSearchDepth
}

func readFile(fsys fs.FS, path string) ([]byte, error) {
	if fsys != nil {
		bytes, err := fs.ReadFile(fsys, filepath.Clean(path))
		if err != nil {
			return nil, ewrap.Wrapf(err, errMsgUnableToReadConfigFromPath, path)
		}

		return bytes, nil
	}

	bytes, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, ewrap.Wrapf(err, errMsgUnableToReadConfigFromPath, path)
	}

	return bytes, nil
}

// EnvLoader reads configuration overrides from TRACEROOT_* environment
// variables. Only registered fields are consulted; a variable that is set,
// even to the empty string, contributes its field.
type EnvLoader struct {
	Prefix string
}

// Load implements Loader.
func (el EnvLoader) Load(ctx context.Context) (map[string]any, error) {
	prefix := el.Prefix
	if prefix == "" {
		prefix = constants.EnvPrefix
	}

	result := map[string]any{}

	for _, f := range Fields() {
		select {
		case <-ctx.Done():
			return nil, ewrap.Wrap(ctx.Err(), "context canceled")
		default:
		}

		raw, ok := os.LookupEnv(prefix + strings.ToUpper(f.Key))
		if !ok {
			continue
		}

		switch f.Kind {
		case FieldBool:
			parsed, err := ParseBool(f.Key, "env", raw)
			if err != nil {
				return nil, err
			}

			result[f.Key] = parsed
		default:
			result[f.Key] = raw
		}
	}

	if len(result) == 0 {
		return nil, newLoaderSkipError()
	}

	return result, nil
}

func sanitizeMap(in map[string]any) map[string]any {
	data, err := json.Marshal(in)
	if err != nil {
		return in
	}

	var out map[string]any

	err = json.Unmarshal(data, &out)
	if err != nil {
		return in
	}

	return out
}

// pruneNil drops keys whose value is nil so a bare `token:` line in YAML
// leaves the field to lower-precedence sources.
func pruneNil(in map[string]any) map[string]any {
	for key, value := range in {
		if value == nil {
			delete(in, key)
		}
	}

	return in
}
