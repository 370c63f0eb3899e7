package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectConfig holds project-level settings loaded from rubyastgen.yml.
// Command-line flags that are set explicitly take precedence.
type ProjectConfig struct {
	OutputDir string `yaml:"outputDir,omitempty"`
	Exclude   string `yaml:"exclude,omitempty"`
	Filter    string `yaml:"filter,omitempty"`
	Workers   int    `yaml:"workers,omitempty"`
	Manifest  string `yaml:"manifest,omitempty"`
	Hook      string `yaml:"hook,omitempty"`
	Debug     bool   `yaml:"debug,omitempty"`
}

// Load attempts to read rubyastgen.yml or rubyastgen.yaml from the given
// directory. Returns a zero-value config (not an error) if no config file
// exists.
func Load(dir string) (*ProjectConfig, error) {
	for _, name := range []string{"rubyastgen.yml", "rubyastgen.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg ProjectConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		if cfg.Workers < 0 {
			return nil, fmt.Errorf("config %s: workers must not be negative", path)
		}
		return &cfg, nil
	}
	return &ProjectConfig{}, nil
}
