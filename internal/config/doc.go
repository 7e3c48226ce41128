// Package config loads, validates, and normalizes bkt configuration from a
// TOML file layered with environment variable overrides.
package config
