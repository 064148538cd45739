package handlers

import (
	"fmt"
	"os"

	"github.com/halcyonops/jumpship/internal/config"
	"github.com/halcyonops/jumpship/internal/platform/ssh"
	"github.com/halcyonops/jumpship/internal/util/prerequisites"
)

// checkAllTools runs all prerequisite checks (for testing injection).
var checkAllTools = prerequisites.CheckAll

// Doctor checks the local environment: client tools in PATH and, when
// key paths or key environment variables are set, that the key material
// parses as a usable private key. Key contents are never printed.
func Doctor(jumpKeyPath, targetKeyPath string) error {
	results := checkAllTools()
	for _, r := range results.Results {
		if r.Found {
			fmt.Printf("  ok       %-8s %s %s\n", r.Tool.Name, r.Path, r.Version)
			continue
		}
		status := "optional"
		if r.Tool.Required {
			status = "MISSING"
		}
		fmt.Printf("  %-8s %-8s %s (%s)\n", status, r.Tool.Name, r.Tool.Description, r.Tool.InstallURL)
	}

	keyErr := false
	for _, key := range []struct {
		label string
		key   config.Key
	}{
		{"jump key", config.Key{Path: jumpKeyPath, EnvVar: config.EnvJumpKey}},
		{"target key", config.Key{Path: targetKeyPath, EnvVar: config.EnvTargetKey}},
	} {
		if !key.key.Present() {
			fmt.Printf("  -        %-11s not configured\n", key.label)
			continue
		}
		if err := checkKey(key.key); err != nil {
			keyErr = true
			fmt.Printf("  BAD      %-11s %v\n", key.label, err)
			continue
		}
		fmt.Printf("  ok       %s\n", key.label)
	}

	if results.HasErrors() {
		return results.Error()
	}
	if keyErr {
		return fmt.Errorf("key material is not usable")
	}
	fmt.Fprintln(os.Stdout, "environment looks good")
	return nil
}

// checkKey loads and parses one key without retaining it.
func checkKey(key config.Key) error {
	pem, err := key.Load()
	if err != nil {
		return err
	}
	_, err = ssh.ParseCredential(pem)
	return err
}
