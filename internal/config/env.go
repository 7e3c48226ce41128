package config

import (
	"strconv"
	"strings"
)

// Environment variable names honored for compatibility with the CI job
// definitions that predate the config file.
const (
	EnvServer        = "BLENDERKIT_SERVER"
	EnvAPIKey        = "BLENDERKIT_API_KEY"
	EnvCommentAPIKey = "TEXTYBOT_API_KEY"
	EnvBlendersPath  = "BLENDERS_PATH"
	EnvBlenderPath   = "BLENDER_PATH"
	EnvAssetBaseID   = "ASSET_BASE_ID"
	EnvMaxAssetCount = "MAX_ASSET_COUNT"
	EnvSkipUpload    = "SKIP_UPLOAD"
	EnvCaptionAPIKey = "OPENAI_API_KEY"
	EnvCaptionModel  = "OPENAI_MODEL"
)

// applyEnv layers process environment values over the file-based config.
// The lookup function is injected so tests never touch the real environment.
func (c *Config) applyEnv(lookup func(string) string) {
	setString := func(dst *string, key string) {
		if value := strings.TrimSpace(lookup(key)); value != "" {
			*dst = value
		}
	}

	setString(&c.Server.URL, EnvServer)
	setString(&c.Server.APIKey, EnvAPIKey)
	setString(&c.Server.CommentAPIKey, EnvCommentAPIKey)
	setString(&c.Paths.BlendersDir, EnvBlendersPath)
	setString(&c.Paths.BlenderBinary, EnvBlenderPath)
	setString(&c.Tasks.AssetBaseID, EnvAssetBaseID)
	setString(&c.Caption.APIKey, EnvCaptionAPIKey)
	setString(&c.Caption.Model, EnvCaptionModel)

	if value := strings.TrimSpace(lookup(EnvMaxAssetCount)); value != "" {
		if count, err := strconv.Atoi(value); err == nil && count > 0 {
			c.Tasks.MaxAssets = count
		}
	}
	if value := strings.TrimSpace(lookup(EnvSkipUpload)); value != "" {
		c.Tasks.SkipUpload = parseBool(value)
	}
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
