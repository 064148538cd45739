package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses Go duration strings ("2s", "500ms") from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ManifestProbe is the per-target or default probe shape in a manifest.
type ManifestProbe struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	Path         string   `yaml:"path"`
	MaxAttempts  int      `yaml:"maxAttempts"`
	PollInterval Duration `yaml:"pollInterval"`
	SettleDelay  Duration `yaml:"settleDelay"`
	LogLines     int      `yaml:"logLines"`
}

// ManifestTarget is one workload entry in a targets manifest.
type ManifestTarget struct {
	Service   string         `yaml:"service"`
	Namespace string         `yaml:"namespace"`
	Kind      string         `yaml:"kind"`
	Image     string         `yaml:"image"`
	Health    *ManifestProbe `yaml:"health"`
}

// ManifestDefaults apply to every target that does not override them.
type ManifestDefaults struct {
	Namespace string         `yaml:"namespace"`
	Kind      string         `yaml:"kind"`
	Health    *ManifestProbe `yaml:"health"`
}

// Manifest is a YAML file describing a multi-target pipeline run.
type Manifest struct {
	Defaults ManifestDefaults `yaml:"defaults"`
	Targets  []ManifestTarget `yaml:"targets"`
}

// LoadManifest reads and validates a targets manifest.
func LoadManifest(path string) (*Manifest, error) {
	// #nosec G304 -- path is operator-supplied configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse targets manifest: %w", err)
	}

	if len(m.Targets) == 0 {
		return nil, fmt.Errorf("targets manifest %s lists no targets", path)
	}
	for i, t := range m.Targets {
		if t.Service == "" {
			return nil, fmt.Errorf("target %d has no service name", i)
		}
		if t.Image == "" {
			return nil, fmt.Errorf("target %s has no image", t.Service)
		}
		if t.Namespace == "" && m.Defaults.Namespace == "" {
			return nil, fmt.Errorf("target %s has no namespace and no default is set", t.Service)
		}
	}
	return &m, nil
}

// Resolve applies defaults to one manifest target and returns the
// effective fields.
func (m *Manifest) Resolve(t ManifestTarget) (service, namespace, kind, image string, probe ManifestProbe) {
	service = t.Service
	image = t.Image
	namespace = t.Namespace
	if namespace == "" {
		namespace = m.Defaults.Namespace
	}
	kind = t.Kind
	if kind == "" {
		kind = m.Defaults.Kind
	}

	if m.Defaults.Health != nil {
		probe = *m.Defaults.Health
	}
	if t.Health != nil {
		if t.Health.Host != "" {
			probe.Host = t.Health.Host
		}
		if t.Health.Port != 0 {
			probe.Port = t.Health.Port
		}
		if t.Health.Path != "" {
			probe.Path = t.Health.Path
		}
		if t.Health.MaxAttempts != 0 {
			probe.MaxAttempts = t.Health.MaxAttempts
		}
		if t.Health.PollInterval != 0 {
			probe.PollInterval = t.Health.PollInterval
		}
		if t.Health.SettleDelay != 0 {
			probe.SettleDelay = t.Health.SettleDelay
		}
		if t.Health.LogLines != 0 {
			probe.LogLines = t.Health.LogLines
		}
	}
	return service, namespace, kind, image, probe
}
