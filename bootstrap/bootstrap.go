// Package bootstrap wires configuration, logging, metrics and type
// manifests into a ready-to-use App.
package bootstrap

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/artpar/statekit/adapters/clock"
	"github.com/artpar/statekit/adapters/idgen"
	"github.com/artpar/statekit/adapters/metrics"
	"github.com/artpar/statekit/config"
	"github.com/artpar/statekit/core/schema"
	"github.com/artpar/statekit/core/state"
	"github.com/artpar/statekit/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// App holds the wired dependencies.
type App struct {
	Holder  *config.Holder
	Metrics *metrics.Collector

	// Registry holds the metrics of this App. It is nil when metrics are
	// disabled.
	Registry *prometheus.Registry

	IDs   ports.IDGenerator
	Clock ports.Clock

	logOut io.Writer

	mu         sync.RWMutex
	logger     zerolog.Logger
	config     *config.Config
	schemaPath string
	pinned     bool
	manifest   schema.Manifest
	types      map[string]*state.Type
}

// Options configures New.
type Options struct {
	// ConfigPath is a YAML or TOML file. Empty or missing falls back to
	// environment variables.
	ConfigPath string

	// SchemaPath overrides schema.path from the config.
	SchemaPath string

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer

	// Clock drives date defaults. Defaults to wall-clock time.
	Clock ports.Clock

	// Metrics enables metrics even when the config leaves them off.
	Metrics bool
}

// New loads configuration and builds the App. Types are loaded when a
// schema path is configured.
func New(opts Options) (*App, error) {
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}

	a := &App{
		Clock:  opts.Clock,
		logOut: opts.LogOutput,
	}

	cfg, err := a.loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	a.config = cfg
	a.logger = SetupLogger(cfg.Logging, opts.LogOutput)
	a.logger.Debug().Str("config", opts.ConfigPath).Msg("initializing statekit")

	if cfg.Metrics.Enabled || opts.Metrics {
		a.Registry = prometheus.NewRegistry()
		a.Metrics = metrics.NewWithRegistry(a.Registry)
		a.logger.Debug().Msg("prometheus metrics enabled")
	}

	ids, err := NewIDGenerator(cfg.Identity)
	if err != nil {
		return nil, fmt.Errorf("init id generator: %w", err)
	}
	a.IDs = ids

	a.schemaPath = cfg.Schema.Path
	if opts.SchemaPath != "" {
		a.schemaPath = opts.SchemaPath
		a.pinned = true
	}
	if a.schemaPath != "" {
		if err := a.LoadTypes(a.schemaPath); err != nil {
			return nil, err
		}
	}

	if a.Holder != nil {
		a.Holder.OnChange(a.applyConfig)
		if a.Metrics != nil {
			a.Holder.OnReload(a.Metrics.ConfigReloaded)
		}
	}

	return a, nil
}

// loadConfig uses a Holder when path names an existing file so the
// config can be watched later.
func (a *App) loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	if _, err := os.Stat(path); err != nil {
		return config.LoadWithFallback(path)
	}

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		return nil, err
	}
	a.Holder = h
	return h.Get(), nil
}

// Log returns the current logger.
func (a *App) Log() zerolog.Logger {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.logger
}

// Config returns the current configuration.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

// SchemaPath returns the manifest path types are loaded from.
func (a *App) SchemaPath() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.schemaPath
}

// LoadTypes parses the manifest at path and replaces the loaded types.
// On error the previous types stay in place.
func (a *App) LoadTypes(path string) error {
	m, err := schema.Load(path)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	opts := schema.BuildOptions{
		ExtraProperties: state.Policy(a.Config().Schema.ExtraProperties),
		Clock:           a.Clock,
	}
	if a.Metrics != nil {
		opts.Observer = a.Metrics
	}

	types, err := schema.Resolve(m, opts)
	if err != nil {
		return fmt.Errorf("build schema: %w", err)
	}

	log := a.Log()
	for _, w := range schema.Lint(m, knownDataTypes) {
		log.Warn().Str("path", path).Msg(w)
	}

	a.mu.Lock()
	a.manifest = m
	a.types = types
	a.schemaPath = path
	a.mu.Unlock()

	log.Info().Str("path", path).Int("types", len(types)).Msg("types loaded")
	return nil
}

var knownDataTypes = []string{"string", "date", "array", "object"}

// Manifest returns the manifest the current types were built from.
func (a *App) Manifest() schema.Manifest {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.manifest
}

// TypeNames returns the names of the loaded types, sorted.
func (a *App) TypeNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.types))
	for name := range a.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Type returns a loaded type by name.
func (a *App) Type(name string) (*state.Type, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(a.types) == 0 {
		return nil, fmt.Errorf("no types loaded: set schema.path or pass a manifest")
	}
	t, ok := a.types[name]
	if !ok {
		return nil, fmt.Errorf("unknown type %q", name)
	}
	return t, nil
}

// NewState creates an instance of the named type with the App's logger
// and id generator.
func (a *App) NewState(typeName string, attrs map[string]any) (*state.State, error) {
	t, err := a.Type(typeName)
	if err != nil {
		return nil, err
	}

	return state.New(t, attrs,
		state.WithLogger(a.Log()),
		state.WithIDGenerator(a.IDs),
	)
}

// WatchConfig reloads the config file on change. Logging settings apply
// immediately; a changed schema path or policy reloads the types.
func (a *App) WatchConfig() error {
	if a.Holder == nil {
		return fmt.Errorf("no config file to watch")
	}
	return a.Holder.WatchFile()
}

func (a *App) applyConfig(cfg *config.Config) {
	a.mu.Lock()
	old := a.config
	a.config = cfg
	a.logger = SetupLogger(cfg.Logging, a.logOut)
	a.mu.Unlock()

	path := a.SchemaPath()
	if !a.pinned && cfg.Schema.Path != old.Schema.Path {
		path = cfg.Schema.Path
	}
	if path == "" {
		return
	}
	if path == a.SchemaPath() && cfg.Schema.ExtraProperties == old.Schema.ExtraProperties {
		return
	}

	if err := a.LoadTypes(path); err != nil {
		log := a.Log()
		log.Error().Err(err).Msg("reload types failed, keeping old types")
	}
}

// Shutdown stops watchers.
func (a *App) Shutdown() {
	if a.Holder != nil {
		a.Holder.Stop()
	}
}

// SetupLogger builds a logger from the logging config. Unknown levels
// fall back to info.
func SetupLogger(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		return zerolog.New(output).Level(level).With().Timestamp().Logger()
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// NewIDGenerator returns the cid generator named by the identity config.
func NewIDGenerator(cfg config.IdentityConfig) (ports.IDGenerator, error) {
	return idgen.ByName(cfg.Generator, cfg.Prefix, cfg.Length)
}
