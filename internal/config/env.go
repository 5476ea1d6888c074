package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix is the prefix of every environment variable snapcrawl reads.
const EnvPrefix = "SNAPCRAWL_"

// DefaultEnvFile is the dotenv file read from the working directory.
const DefaultEnvFile = ".env"

// LoadEnv returns the SNAPCRAWL_* variables of the process environment.
// Variables that are unset in the environment are taken from the given
// dotenv files when present; missing files are ignored.
func LoadEnv(files ...string) (map[string]string, error) {
	env := make(map[string]string)

	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		fileEnv, err := godotenv.Read(existing...)
		if err != nil {
			return nil, fmt.Errorf("failed to read env file: %w", err)
		}
		for k, v := range fileEnv {
			if strings.HasPrefix(k, EnvPrefix) {
				env[k] = v
			}
		}
	}

	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}
	return env, nil
}

// ApplyEnv overrides defaults with values from env, as returned by LoadEnv.
// Recognized keys, without the SNAPCRAWL_ prefix: ARCHIVE_DIR, INDEX_FORMAT,
// USER_AGENT, MAX_DEPTH, MAX_PAGES, CRAWL_DELAY, TIMEOUT, RESPECT_ROBOTS.
func (c *Config) ApplyEnv(env map[string]string) error {
	for key, value := range env {
		name := strings.TrimPrefix(key, EnvPrefix)
		var err error
		switch name {
		case "ARCHIVE_DIR":
			c.ArchiveDir = value
		case "INDEX_FORMAT":
			c.IndexFormat = value
		case "USER_AGENT":
			c.UserAgent = value
		case "MAX_DEPTH":
			c.MaxDepth, err = strconv.Atoi(value)
		case "MAX_PAGES":
			c.MaxPages, err = strconv.Atoi(value)
		case "CRAWL_DELAY":
			c.CrawlDelay, err = time.ParseDuration(value)
		case "TIMEOUT":
			c.Timeout, err = time.ParseDuration(value)
		case "RESPECT_ROBOTS":
			c.RespectRobots, err = strconv.ParseBool(value)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, value, err)
		}
	}
	return nil
}
