package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks settings every task run depends on. Task-specific
// requirements (API key presence, Blender paths) are validated by the
// command that needs them so read-only commands keep working.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Server.URL) == "" {
		problems = append(problems, "server.url must not be empty")
	} else if !strings.HasPrefix(c.Server.URL, "http://") && !strings.HasPrefix(c.Server.URL, "https://") {
		problems = append(problems, fmt.Sprintf("server.url %q must start with http:// or https://", c.Server.URL))
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be console or json", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q must be debug, info, warn or error", c.Logging.Level))
	}

	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		problems = append(problems, "paths.work_dir must not be empty")
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

// RequireAPIKey fails when no asset database credential is configured.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.Server.APIKey) == "" {
		return fmt.Errorf("server.api_key is required (set %s)", EnvAPIKey)
	}
	return nil
}

// RequireBlender fails when neither a Blender install directory nor a
// direct binary path is configured.
func (c *Config) RequireBlender() error {
	if strings.TrimSpace(c.Paths.BlendersDir) == "" && strings.TrimSpace(c.Paths.BlenderBinary) == "" {
		return fmt.Errorf("paths.blenders_dir or paths.blender_binary is required (set %s or %s)", EnvBlendersPath, EnvBlenderPath)
	}
	return nil
}
