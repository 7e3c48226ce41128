package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeTasks()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.BlendersDir, err = expandPath(c.Paths.BlendersDir); err != nil {
		return fmt.Errorf("paths.blenders_dir: %w", err)
	}
	if c.Paths.BlenderBinary, err = expandPath(c.Paths.BlenderBinary); err != nil {
		return fmt.Errorf("paths.blender_binary: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.DownloadCache, err = expandPath(c.Paths.DownloadCache); err != nil {
		return fmt.Errorf("paths.download_cache_dir: %w", err)
	}
	if c.Paths.ResultsDir, err = expandPath(c.Paths.ResultsDir); err != nil {
		return fmt.Errorf("paths.results_dir: %w", err)
	}
	if c.Paths.TemplatesDir, err = expandPath(c.Paths.TemplatesDir); err != nil {
		return fmt.Errorf("paths.templates_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.History.Path) != "" {
		if c.History.Path, err = expandPath(c.History.Path); err != nil {
			return fmt.Errorf("history.path: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.URL = strings.TrimRight(strings.TrimSpace(c.Server.URL), "/")
	c.Server.APIKey = strings.TrimSpace(c.Server.APIKey)
	c.Server.CommentAPIKey = strings.TrimSpace(c.Server.CommentAPIKey)
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = defaultRequestTimeout
	}
	if c.Server.RetryAttempts <= 0 {
		c.Server.RetryAttempts = defaultRetryAttempts
	}
}

func (c *Config) normalizeTasks() {
	c.Tasks.AssetBaseID = strings.TrimSpace(c.Tasks.AssetBaseID)
	if c.Tasks.MaxAssets <= 0 {
		c.Tasks.MaxAssets = defaultMaxAssets
	}
	if c.Tasks.ProcessTimeout <= 0 {
		c.Tasks.ProcessTimeout = defaultProcessTimeout
	}
	if c.Tasks.Verbosity < 0 {
		c.Tasks.Verbosity = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
