// Package config loads the qybridge YAML configuration.
package config

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Logs configures the rotating log file. An empty Directory keeps logging
// on stderr only.
type Logs struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

// Config holds settings shared by the CLI and the server.
type Config struct {
	Port         int    `yaml:"port"`
	DeviceNumber uint8  `yaml:"deviceNumber"`
	Template     string `yaml:"template"`
	// RequireTemplate refuses to write pattern files without a template.
	RequireTemplate bool `yaml:"requireTemplate"`
	Strict          bool `yaml:"strict"`
	SkipCorrupt     bool `yaml:"skipCorrupt"`
	Concurrency     int  `yaml:"concurrency"`
	// MaxUploadMB bounds request bodies on the HTTP API.
	MaxUploadMB int  `yaml:"maxUploadMB"`
	Logs        Logs `yaml:"logs"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.NumCPU()
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = 1
	}
	if c.Logs.MaxSizeMB <= 0 {
		c.Logs.MaxSizeMB = 25
	}
	if c.Logs.MaxAgeDays <= 0 {
		c.Logs.MaxAgeDays = 7
	}
	if c.Logs.MaxBackups <= 0 {
		c.Logs.MaxBackups = 5
	}
	c.DeviceNumber &= 0x0F
}

// Load reads a YAML configuration file. Relative paths inside it resolve
// against the file's directory. A missing file at the default location is
// not an error when optional is set.
func Load(path string, optional bool) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return cfg, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, err
	}

	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	cfg.Template = resolvePath(cfg.Template)
	cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)

	cfg.applyDefaults()
	return cfg, nil
}

// LoadTemplate reads the configured template file, returning nil when none
// is configured.
func (c Config) LoadTemplate() ([]byte, error) {
	if c.Template == "" {
		return nil, nil
	}
	return os.ReadFile(c.Template)
}
