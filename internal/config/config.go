// Package config handles jverify.toml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/BurntSushi/toml"

	"jverify/internal/oracle"
	"jverify/pkg/verifier"
)

const FileName = "jverify.toml"

// Config represents a jverify.toml file.
type Config struct {
	ForceStackMaps bool `toml:"force-stackmaps"`
	MaxIterations  int  `toml:"max-iterations"`
	Workers        int  `toml:"workers"`

	// Classes extends the class hierarchy, keyed by internal name.
	Classes map[string]Class `toml:"classes"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-"`
}

// Class is a [classes] entry.
type Class struct {
	Super      string   `toml:"super"`
	Interfaces []string `toml:"interfaces"`
	Interface  bool     `toml:"interface"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{Workers: runtime.NumCPU()}
}

// Load parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse decodes a configuration document. path is only used in messages.
func Parse(path string, data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	if c.MaxIterations < 0 {
		return nil, fmt.Errorf("%s: max-iterations must not be negative", path)
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	c.Path = path
	return c, nil
}

// Find looks for jverify.toml in dir and its parents. It returns the
// default configuration when there is none.
func Find(dir string) (*Config, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Verifier returns the engine settings.
func (c *Config) Verifier() verifier.Config {
	return verifier.Config{
		ForceStackMaps: c.ForceStackMaps,
		MaxIterations:  c.MaxIterations,
	}
}

// OracleClasses converts [classes] into class-table entries, sorted by name.
func (c *Config) OracleClasses() []oracle.Class {
	names := make([]string, 0, len(c.Classes))
	for name := range c.Classes {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]oracle.Class, 0, len(names))
	for _, name := range names {
		cl := c.Classes[name]
		out = append(out, oracle.Class{
			Name:       name,
			Super:      cl.Super,
			Interfaces: cl.Interfaces,
			Interface:  cl.Interface,
		})
	}
	return out
}
