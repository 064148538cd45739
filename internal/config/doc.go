// Package config builds the run configuration once at startup from
// flags, environment-sourced key material, and an optional YAML targets
// manifest, and validates it before any component runs.
package config
