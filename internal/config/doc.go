// Package config provides the run configuration for snapcrawl: built-in
// defaults, SNAPCRAWL_* environment overrides (optionally from a .env
// file), the per-site YAML configuration file and validation.
package config
