// Package config handles coxy.toml interpreter configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/coxy/vm"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "coxy.toml"

// Config represents a coxy.toml configuration.
type Config struct {
	VM    VMSection    `toml:"vm"`
	GC    GCSection    `toml:"gc"`
	Debug DebugSection `toml:"debug"`
	Cache CacheSection `toml:"cache"`

	// Dir is the directory containing the coxy.toml file (set at load time).
	// Empty for Default.
	Dir string `toml:"-"`
}

// VMSection configures the interpreter.
type VMSection struct {
	MaxFrames int `toml:"max_frames"`
}

// GCSection configures the collector.
type GCSection struct {
	InitialThreshold int     `toml:"initial_threshold"`
	GrowFactor       float64 `toml:"grow_factor"`
	Stress           bool    `toml:"stress"`
	Log              bool    `toml:"log"`
}

// DebugSection enables tracing output.
type DebugSection struct {
	Trace     bool `toml:"trace"`
	PrintCode bool `toml:"print_code"`
}

// CacheSection configures the compiled script cache.
type CacheSection struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the configuration used when no coxy.toml is found.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load parses coxy.toml from the given directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses a configuration file at an explicit path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.applyDefaults()
	return &c, nil
}

// FindAndLoad walks up from startDir to find a coxy.toml file,
// then loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (c *Config) validate() error {
	switch {
	case c.VM.MaxFrames < 0:
		return fmt.Errorf("vm.max_frames must not be negative, got %d", c.VM.MaxFrames)
	case c.GC.InitialThreshold < 0:
		return fmt.Errorf("gc.initial_threshold must not be negative, got %d", c.GC.InitialThreshold)
	case c.GC.GrowFactor != 0 && c.GC.GrowFactor <= 1:
		return fmt.Errorf("gc.grow_factor must be greater than 1, got %g", c.GC.GrowFactor)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.VM.MaxFrames == 0 {
		c.VM.MaxFrames = vm.DefaultMaxFrames
	}
	if c.GC.InitialThreshold == 0 {
		c.GC.InitialThreshold = vm.DefaultInitialThreshold
	}
	if c.GC.GrowFactor == 0 {
		c.GC.GrowFactor = vm.DefaultGrowFactor
	}
}

// CachePath returns the cache database path. Relative paths are resolved
// against Dir; the default is .coxy/cache.db.
func (c *Config) CachePath() string {
	path := c.Cache.Path
	if path == "" {
		path = filepath.Join(".coxy", "cache.db")
	}
	if filepath.IsAbs(path) || c.Dir == "" {
		return path
	}
	return filepath.Join(c.Dir, path)
}

// VMConfig converts the file settings into interpreter settings.
func (c *Config) VMConfig() vm.Config {
	return vm.Config{
		MaxFrames: c.VM.MaxFrames,
		GC: vm.GCConfig{
			InitialThreshold: c.GC.InitialThreshold,
			GrowFactor:       c.GC.GrowFactor,
			Stress:           c.GC.Stress,
			Log:              c.GC.Log,
		},
		Trace:     c.Debug.Trace,
		PrintCode: c.Debug.PrintCode,
	}
}
