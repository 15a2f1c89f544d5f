// Package config holds gomatrixbase's ambient configuration: which
// StateStore backend to use, the optional NATS JetStream fan-out
// subject, and the Sentry DSN for swallowed per-event error capture.
// The struct shape, yaml tags, and Defaults(opts) method mirror
// dendrite's own setup/config package (see config_clientapi.go) even
// though gomatrixbase has nothing like dendrite's multi-component
// config tree to assemble — a caller embedding this module in a larger
// program is expected to embed Config the same way dendrite's top-level
// Dendrite struct embeds ClientAPI, SyncAPI, and friends.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v2"
)

// StoreBackend selects which store/* implementation WireStateStore (in
// the caller's own main, not this package — config has no import on
// store/sqlitestore or store/memstore to avoid forcing mattn/go-sqlite3
// on every consumer) should construct.
type StoreBackend string

const (
	StoreBackendMemory StoreBackend = "memory"
	StoreBackendSQLite StoreBackend = "sqlite"
)

// DefaultOpts mirrors dendrite's DefaultOpts: flags that change what
// Defaults fills in, rather than config a deployment would set per
// environment.
type DefaultOpts struct {
	// Generate is set by a config-generation tool to fill in
	// illustrative placeholder values rather than leaving fields empty.
	// Nothing in this module sets it.
	Generate bool
}

// Config is the root configuration struct. A caller loads it from YAML
// via Load, or constructs one directly and calls Defaults.
type Config struct {
	// Store selects the StateStore backend.
	Store StoreConfig `yaml:"store"`

	// NATS configures the optional subscriber/natsbus fan-out. Leaving
	// URL empty disables natsbus entirely — a Client then only notifies
	// its in-process Subscriber.
	NATS NATSConfig `yaml:"nats"`

	// Sentry holds Sentry settings. Verify rejects Enabled without a DSN;
	// no code in this module captures to Sentry, and swallowed per-event
	// errors are only logged via logrus.
	Sentry SentryConfig `yaml:"sentry"`

	// Metrics holds the metrics toggle. internal/metrics registers its
	// collectors at package init whatever this is set to.
	Metrics MetricsConfig `yaml:"metrics"`
}

// StoreConfig selects and parametrizes the StateStore backend.
type StoreConfig struct {
	Backend StoreBackend `yaml:"backend"`
	// ConnectionString is the sqlite3 DSN when Backend is "sqlite"
	// (e.g. "file:gomatrixbase.db?_txlock=immediate"); ignored for
	// "memory".
	ConnectionString string `yaml:"connection_string"`
	// CacheMaxCost bounds the ristretto cache store/cached wraps the
	// backend in, in approximate bytes. Defaults replaces zero with
	// 1<<26 (64MiB); negative values fail Verify.
	CacheMaxCost int64 `yaml:"cache_max_cost"`
}

func (s *StoreConfig) Defaults(opts DefaultOpts) {
	if s.Backend == "" {
		s.Backend = StoreBackendMemory
	}
	if opts.Generate && s.Backend == StoreBackendSQLite && s.ConnectionString == "" {
		s.ConnectionString = "file:gomatrixbase.db?_txlock=immediate"
	}
	if s.CacheMaxCost == 0 {
		s.CacheMaxCost = 1 << 26 // 64MiB, ristretto's own example default order of magnitude.
	}
}

func (s *StoreConfig) Verify(configErrs *ConfigErrors) {
	switch s.Backend {
	case StoreBackendMemory, StoreBackendSQLite:
	default:
		configErrs.Add(fmt.Sprintf("store.backend %q is not one of %q, %q", s.Backend, StoreBackendMemory, StoreBackendSQLite))
	}
	if s.Backend == StoreBackendSQLite && s.ConnectionString == "" {
		configErrs.Add("store.connection_string must be set when store.backend is \"sqlite\"")
	}
	if s.CacheMaxCost < 0 {
		configErrs.Add("store.cache_max_cost must not be negative")
	}
}

// NATSConfig configures subscriber/natsbus.
type NATSConfig struct {
	// URL is the NATS server URL (e.g. "nats://localhost:4222"). Empty
	// disables natsbus.
	URL string `yaml:"url"`
	// SubjectPrefix defaults to "gomatrixbase". natsbus.Connect does not
	// read it: the Bus always publishes on natsbus.Subject.
	SubjectPrefix string `yaml:"subject_prefix"`
	// DurableName names a JetStream durable consumer for a companion
	// process. Nothing in this module reads it; natsbus creates no
	// consumers.
	DurableName string `yaml:"durable_name"`
}

func (n *NATSConfig) Defaults(DefaultOpts) {
	if n.SubjectPrefix == "" {
		n.SubjectPrefix = "gomatrixbase"
	}
}

func (n *NATSConfig) Verify(configErrs *ConfigErrors) {
	if n.URL == "" {
		return
	}
	if !strings.HasPrefix(n.URL, "nats://") && !strings.HasPrefix(n.URL, "tls://") {
		configErrs.Add(fmt.Sprintf("nats.url %q must start with nats:// or tls://", n.URL))
	}
}

// SentryConfig configures getsentry/sentry-go capture.
type SentryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	// Environment tags every captured exception, e.g. "production".
	Environment string `yaml:"environment"`
}

func (s *SentryConfig) Verify(configErrs *ConfigErrors) {
	if !s.Enabled {
		return
	}
	if s.DSN == "" {
		configErrs.Add("sentry.dsn must be set when sentry.enabled is true")
		return
	}
	if _, err := url.Parse(s.DSN); err != nil {
		configErrs.Add(fmt.Sprintf("sentry.dsn is not a valid URL: %s", err))
	}
}

// MetricsConfig toggles Prometheus metrics registration.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

func (m *MetricsConfig) Defaults(DefaultOpts) {
	m.Enabled = true
}

// Defaults fills in every field Config doesn't require a caller to set
// explicitly, the same two-phase Defaults-then-Verify flow dendrite's
// own config packages use.
func (c *Config) Defaults(opts DefaultOpts) {
	c.Store.Defaults(opts)
	c.NATS.Defaults(opts)
	c.Metrics.Defaults(opts)
}

// Verify checks the config for invalid combinations, collecting every
// problem found rather than failing fast on the first one — matching
// dendrite's ConfigErrors accumulation pattern so a caller sees every
// mistake in one pass.
func (c *Config) Verify() error {
	var configErrs ConfigErrors
	c.Store.Verify(&configErrs)
	c.NATS.Verify(&configErrs)
	c.Sentry.Verify(&configErrs)
	if len(configErrs) > 0 {
		return configErrs
	}
	return nil
}

// Load parses YAML config bytes, applies Defaults, and Verifies the
// result.
func Load(data []byte, opts DefaultOpts) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parsing yaml: %w", err)
	}
	c.Defaults(opts)
	if err := c.Verify(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ConfigErrors accumulates every config validation problem found by a
// Verify pass, the same accumulate-then-report shape config_clientapi.go's
// Verify(configErrs *ConfigErrors) signature expects of its caller.
type ConfigErrors []string

// Add appends a problem description.
func (e *ConfigErrors) Add(msg string) {
	*e = append(*e, msg)
}

func (e ConfigErrors) Error() string {
	return fmt.Sprintf("invalid config: %s", strings.Join(e, "\n"))
}
