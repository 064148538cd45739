package config

import (
	"fmt"
	"os"
	"time"
)

const (
	// Environment variables that may carry PEM key material directly,
	// so keys never have to touch disk on CI runners.
	EnvJumpKey   = "JUMPSHIP_JUMP_KEY"
	EnvTargetKey = "JUMPSHIP_TARGET_KEY"

	DefaultHealthPath   = "/health"
	DefaultMaxAttempts  = 10
	DefaultPollInterval = 2 * time.Second
	DefaultSettleDelay  = 5 * time.Second
	DefaultLogLines     = 20
	DefaultConcurrency  = 4
)

// Key locates private key material: a file path, an environment
// variable holding PEM, or both (the environment wins). The material is
// read once at startup and never written to disk or logs.
type Key struct {
	Path   string
	EnvVar string
}

// Present reports whether any key material was supplied at all, so
// callers can fall back to another credential instead of failing.
func (k Key) Present() bool {
	if k.Path != "" {
		return true
	}
	return k.EnvVar != "" && os.Getenv(k.EnvVar) != ""
}

// Load resolves the key material.
func (k Key) Load() ([]byte, error) {
	if k.EnvVar != "" {
		if pem := os.Getenv(k.EnvVar); pem != "" {
			return []byte(pem), nil
		}
	}
	if k.Path == "" {
		return nil, fmt.Errorf("no key material: neither %s nor a key file was provided", k.EnvVar)
	}
	// #nosec G304 -- path is operator-supplied configuration
	data, err := os.ReadFile(k.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return data, nil
}

// HostConfig describes one hop of the relay chain.
type HostConfig struct {
	Addr string
	Port int
	User string
	Key  Key
}

// ProbeConfig is the health polling shape applied to every target
// unless the manifest overrides it.
type ProbeConfig struct {
	Host         string
	Port         int
	Path         string
	MaxAttempts  int
	PollInterval time.Duration
	SettleDelay  time.Duration
	LogLines     int
}

// Config is built once at startup from flags, environment, and an
// optional targets manifest, then passed to each component; nothing
// reads ambient globals mid-run.
type Config struct {
	Jump   HostConfig
	Target *HostConfig // nil means a single-hop chain
	Probe  ProbeConfig

	Concurrency   int
	MetricsListen string
	JSONOutput    bool
}

// WithDefaults fills zero probe fields.
func (p ProbeConfig) WithDefaults() ProbeConfig {
	if p.Path == "" {
		p.Path = DefaultHealthPath
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.PollInterval == 0 {
		p.PollInterval = DefaultPollInterval
	}
	if p.SettleDelay == 0 {
		p.SettleDelay = DefaultSettleDelay
	}
	if p.LogLines == 0 {
		p.LogLines = DefaultLogLines
	}
	return p
}

// Validate checks the parts every run needs. Target-specific fields are
// validated when targets are built.
func (c *Config) Validate() error {
	if c.Jump.Addr == "" {
		return fmt.Errorf("jump host address is required")
	}
	if c.Jump.User == "" {
		return fmt.Errorf("jump host user is required")
	}
	if c.Target != nil {
		if c.Target.Addr == "" {
			return fmt.Errorf("target host address is required when a target hop is configured")
		}
		if c.Target.User == "" {
			c.Target.User = c.Jump.User
		}
	}
	if c.Probe.MaxAttempts < 0 {
		return fmt.Errorf("max attempts cannot be negative")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency cannot be negative")
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	c.Probe = c.Probe.WithDefaults()
	return nil
}
