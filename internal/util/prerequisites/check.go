// Package prerequisites provides utilities for checking required client tools.
package prerequisites

import (
	"fmt"
	"os/exec"
	"strings"
)

// Tool represents a client tool that may be required.
type Tool struct {
	// Name is the binary name to look for in PATH.
	Name string

	// Required indicates if this tool is mandatory.
	Required bool

	// Description explains what the tool is used for.
	Description string

	// InstallURL provides a URL for installation instructions.
	InstallURL string
}

// VerifyTools returns the tools needed for local image verification.
// docker is required to start the probe container.
func VerifyTools() []Tool {
	return []Tool{
		{
			Name:        "docker",
			Required:    true,
			Description: "Required for starting local probe containers during image verification",
			InstallURL:  "https://docs.docker.com/engine/install/",
		},
	}
}

// OptionalTools returns tools that are useful but not required. The
// relay speaks SSH natively, so the ssh client is only for manual
// debugging of the hop chain.
func OptionalTools() []Tool {
	return []Tool{
		{
			Name:        "ssh",
			Required:    false,
			Description: "Useful for manually debugging jump and target host connectivity",
			InstallURL:  "https://www.openssh.com/",
		},
	}
}

// CheckResult contains the result of checking a single tool.
type CheckResult struct {
	Tool    Tool
	Found   bool
	Path    string
	Version string
}

// CheckResults contains the results of checking multiple tools.
type CheckResults struct {
	Results []CheckResult
	Missing []Tool
}

// HasErrors returns true if any required tools are missing.
func (r *CheckResults) HasErrors() bool {
	for _, tool := range r.Missing {
		if tool.Required {
			return true
		}
	}
	return false
}

// Error returns an error if any required tools are missing.
func (r *CheckResults) Error() error {
	var missing []string
	for _, tool := range r.Missing {
		if tool.Required {
			missing = append(missing, fmt.Sprintf("%s (%s)", tool.Name, tool.InstallURL))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
}

// Check verifies that the specified tools are available.
func Check(tools []Tool) *CheckResults {
	results := &CheckResults{}

	for _, tool := range tools {
		result := CheckResult{Tool: tool}

		path, err := exec.LookPath(tool.Name)
		if err == nil {
			result.Found = true
			result.Path = path
			// Try to get version (best effort)
			result.Version = getToolVersion(tool.Name)
		} else {
			results.Missing = append(results.Missing, tool)
		}

		results.Results = append(results.Results, result)
	}

	return results
}

// CheckAll checks all tools (verification + optional).
func CheckAll() *CheckResults {
	verify := VerifyTools()
	optional := OptionalTools()
	all := make([]Tool, 0, len(verify)+len(optional))
	all = append(all, verify...)
	all = append(all, optional...)
	return Check(all)
}

// getToolVersion attempts to get the version of a tool.
// Returns empty string if version cannot be determined.
func getToolVersion(name string) string {
	// Common version flags to try
	versionFlags := []string{"--version", "version", "-v"}

	for _, flag := range versionFlags {
		// #nosec G204 - name comes from trusted Tool definitions, not user input
		cmd := exec.Command(name, flag)
		output, err := cmd.Output()
		if err == nil {
			// Return first line of output, trimmed
			lines := strings.Split(string(output), "\n")
			if len(lines) > 0 {
				return strings.TrimSpace(lines[0])
			}
		}
	}

	return ""
}
