package xcross

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Config holds raw key=value settings from the config file and environment.
type Config struct {
	Values map[string]string
}

// defaultConfigPath is $XDG_CONFIG_HOME/xcross/xcross.conf.
func defaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "xcross", "xcross.conf")
}

// loadConfig reads path (a missing file is not an error) and applies
// environment overrides.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, val, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			val = strings.Trim(strings.TrimSpace(val), `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to open %s: %w", path, err)
	}

	mergeEnvOverrides(cfg)
	return cfg, nil
}

// mergeEnvOverrides copies XCROSS_* and R2_* variables over file values.
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, "XCROSS_") && !strings.HasPrefix(env, "R2_") {
			continue
		}
		if key, val, ok := strings.Cut(env, "="); ok {
			cfg.Values[key] = val
		}
	}
}

// initConfig derives the global settings from cfg.
func initConfig(cfg *Config) error {
	CacheDir = cfg.Values["XCROSS_CACHE_DIR"]
	if CacheDir == "" {
		CacheDir = filepath.Join(xdg.CacheHome, "xcross")
	}

	MirrorURL = cfg.Values["XCROSS_MIRROR"]
	if MirrorURL == "" {
		MirrorURL = defaultMirror
	}
	debugf("=> Using mirror: %s", MirrorURL)

	HostTriple = cfg.Values["XCROSS_HOST"]
	if HostTriple == "" {
		host, ok := detectHost()
		if !ok {
			return fmt.Errorf("could not determine the host triple; set XCROSS_HOST")
		}
		HostTriple = host
	}

	Jobs = 4
	if v := cfg.Values["XCROSS_JOBS"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid XCROSS_JOBS %q: want a positive integer", v)
		}
		Jobs = n
	}

	if cfg.Values["XCROSS_DEBUG"] == "1" {
		Debug = true
	}
	return nil
}

// HTTPTimeout is the total transfer timeout; zero means none.
func (c *Config) HTTPTimeout() time.Duration {
	v := c.Values["XCROSS_HTTP_TIMEOUT"]
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		debugf("ignoring invalid XCROSS_HTTP_TIMEOUT %q", v)
		return 0
	}
	return time.Duration(secs) * time.Second
}
