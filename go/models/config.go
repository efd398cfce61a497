package models

import (
	"os"

	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"
	"gopkg.in/yaml.v3"
)

const ConfigName = "imgdump.yaml"

// Config holds imgdump defaults. Command-line flags override every field.
type Config struct {
	Color    string   `yaml:"color"`
	Sort     string   `yaml:"sort"`
	Jobs     int      `yaml:"jobs"`
	Verbose  int      `yaml:"verbose"`
	JSON     bool     `yaml:"json"`
	Sections []string `yaml:"sections"`
}

func DefaultConfig() *Config {
	return &Config{
		Color:    "auto",
		Sort:     "addr",
		Jobs:     4,
		Verbose:  1,
		Sections: []string{"segments", "symbols", "sections"},
	}
}

func (c *Config) Validate() error {
	switch c.Color {
	case "auto", "always", "never":
	default:
		return errors.Errorf("invalid color mode %q", c.Color)
	}
	switch c.Sort {
	case "addr", "name":
	default:
		return errors.Errorf("invalid sort order %q", c.Sort)
	}
	if c.Jobs < 1 {
		return errors.Errorf("jobs must be positive, got %d", c.Jobs)
	}
	for _, s := range c.Sections {
		switch s {
		case "segments", "symbols", "sections":
		default:
			return errors.Errorf("unknown table %q", s)
		}
	}
	return nil
}

// ParseConfig overlays YAML data onto the defaults.
func ParseConfig(data []byte) (*Config, error) {
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadConfig reads path, or the first imgdump.yaml in the user and system
// config folders when path is empty. A missing default file is not an error.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config")
		}
		return ParseConfig(data)
	}
	dirs := configdir.New("objimage", "imgdump")
	if folder := dirs.QueryFolderContainsFile(ConfigName); folder != nil {
		data, err := folder.ReadFile(ConfigName)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", folder.Path)
		}
		return ParseConfig(data)
	}
	return DefaultConfig(), nil
}
