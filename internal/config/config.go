// Package config reads the config.ini generated by the node's build system.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// DefaultPath is where the build places config.ini, relative to the build
// directory.
const DefaultPath = "test/config.ini"

// Environment is the [environment] section.
type Environment struct {
	SrcDir   string
	BuildDir string
	ExeExt   string
}

// Config is a parsed config.ini.
type Config struct {
	Path        string // absolute path of the file
	Environment Environment

	// Components maps the [components] keys, e.g. ENABLE_BITCOIND, to
	// their values.
	Components map[string]bool
}

// Load parses the config file at path.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config file path: %w", err)
	}

	file, err := ini.Load(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	env := file.Section("environment")
	cfg := &Config{
		Path: abs,
		Environment: Environment{
			SrcDir:   env.Key("SRCDIR").String(),
			BuildDir: env.Key("BUILDDIR").String(),
			ExeExt:   env.Key("EXEEXT").String(),
		},
		Components: make(map[string]bool),
	}
	if cfg.Environment.SrcDir == "" {
		return nil, fmt.Errorf("config file %s: [environment] SRCDIR is not set", abs)
	}
	if cfg.Environment.BuildDir == "" {
		return nil, fmt.Errorf("config file %s: [environment] BUILDDIR is not set", abs)
	}

	for _, key := range file.Section("components").Keys() {
		enabled, err := key.Bool()
		if err != nil {
			return nil, fmt.Errorf("config file %s: [components] %s: %w", abs, key.Name(), err)
		}
		cfg.Components[strings.ToUpper(key.Name())] = enabled
	}

	return cfg, nil
}

// Enabled reports whether a build component is enabled.
func (c *Config) Enabled(component string) bool {
	return c.Components[strings.ToUpper(component)]
}

// DaemonEnabled reports whether the node daemon was built.
func (c *Config) DaemonEnabled() bool {
	return c.Enabled("ENABLE_BITCOIND")
}

// TestsDir is the directory holding the functional test scripts.
func (c *Config) TestsDir() string {
	return filepath.Join(c.Environment.SrcDir, "test", "functional")
}

// CacheDir is the directory holding the cached chains.
func (c *Config) CacheDir() string {
	return filepath.Join(c.Environment.BuildDir, "test", "cache")
}

// Flag is passed on to every test script.
func (c *Config) Flag() string {
	return "--configfile=" + c.Path
}
