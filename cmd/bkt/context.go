package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/config"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/history"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/logging"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/blender"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/blenderkit"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/llm"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/tasks"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// buildRuntime assembles the shared task runtime: asset database client,
// Blender runner, install directory, run ledger and the optional captioning
// and commenting clients. The cleanup closes the ledger.
func (c *commandContext) buildRuntime(task string) (*tasks.Runtime, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, services.Wrap(services.ErrConfiguration, task, "load config", "", err)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, nil, services.Wrap(services.ErrConfiguration, task, "", err.Error(), nil)
	}

	logger, err := logging.NewFromConfig(cfg, task)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrConfiguration, task, "build logger", "", err)
	}

	client, err := blenderkit.New(cfg.Server.URL, cfg.Server.APIKey,
		blenderkit.WithLogger(logger),
		blenderkit.WithAttempts(cfg.Server.RetryAttempts))
	if err != nil {
		return nil, nil, services.Wrap(services.ErrConfiguration, task, "build api client", "", err)
	}

	rt := tasks.NewRuntime(cfg, logger)
	rt.DB = client
	rt.Runner = blender.NewRunner(blender.WithLogger(logger))

	if dir := cfg.Paths.BlendersDir; dir != "" {
		installed, err := blender.ScanInstallDir(dir)
		if err != nil {
			if cfg.Paths.BlenderBinary == "" {
				return nil, nil, services.Wrap(services.ErrConfiguration, task, "scan blender installs", "", err)
			}
			logger.Warn("blender install dir unusable, relying on blender_binary", "dir", dir, "error", err)
		} else {
			rt.Blenders = installed
		}
	}

	cleanup := func() {}
	if cfg.History.Enabled {
		store, err := history.Open(cfg.HistoryPath())
		if err != nil {
			logger.Warn("run ledger unavailable, continuing without it", "error", err)
		} else {
			rt.History = store
			cleanup = func() { _ = store.Close() }
		}
	}

	if cfg.Caption.APIKey != "" {
		rt.Captioner = llm.NewClient(llm.Config{
			APIKey:         cfg.Caption.APIKey,
			BaseURL:        cfg.Caption.BaseURL,
			Model:          cfg.Caption.Model,
			TimeoutSeconds: cfg.Caption.TimeoutSeconds,
		})
	}

	if key := cfg.Server.CommentAPIKey; key != "" {
		commenter, err := blenderkit.New(cfg.Server.URL, key,
			blenderkit.WithLogger(logger),
			blenderkit.WithAttempts(cfg.Server.RetryAttempts))
		if err != nil {
			cleanup()
			return nil, nil, services.Wrap(services.ErrConfiguration, task, "build comment client", "", err)
		}
		rt.Commenter = commenter
	}

	return rt, cleanup, nil
}

// requireBlender gates the commands that launch Blender; report and caption
// runs work without an install.
func (c *commandContext) requireBlender(task string) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, task, "load config", "", err)
	}
	if err := cfg.RequireBlender(); err != nil {
		return services.Wrap(services.ErrConfiguration, task, "", err.Error(), nil)
	}
	return nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
