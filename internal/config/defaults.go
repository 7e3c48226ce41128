package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultServerURL      = "https://www.blenderkit.com"
	defaultRequestTimeout = 30
	defaultRetryAttempts  = 5
	defaultMaxAssets      = 100
	defaultProcessTimeout = 3600
	defaultCaptionModel   = "gpt-4o-mini"
)

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		Server: Server{
			URL:            defaultServerURL,
			RequestTimeout: defaultRequestTimeout,
			RetryAttempts:  defaultRetryAttempts,
		},
		Paths: Paths{
			WorkDir:       defaultWorkDir(),
			DownloadCache: filepath.Join(defaultWorkDir(), "downloads"),
			ResultsDir:    filepath.Join(defaultWorkDir(), "results"),
			LogDir:        filepath.Join(defaultWorkDir(), "logs"),
		},
		Tasks: Tasks{
			MaxAssets:      defaultMaxAssets,
			ProcessTimeout: defaultProcessTimeout,
			Verbosity:      1,
		},
		Caption: Caption{
			Model:          defaultCaptionModel,
			TimeoutSeconds: 60,
		},
		History: History{
			Enabled: true,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}

func defaultWorkDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "bkt")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "bkt")
	}
	return filepath.Join(home, ".cache", "bkt")
}
