// Package config locates and loads the Peregrine project configuration.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/peregrine-check/peregrine/internal/analyzer"
)

// binaryName is the analyzer executable shipped alongside the client.
const binaryName = "peregrine.bin"

// Config is the project configuration read from peregrine.yml (or
// peregrine.yaml) in the project root.
type Config struct {
	ProjectRoot string

	SourceDirectories []string `mapstructure:"source_directories"`
	Exclude           []string `mapstructure:"exclude"`
	Binary            string   `mapstructure:"binary"`
	LogDirectory      string   `mapstructure:"log_directory"`
}

// Load reads the configuration for the project rooted at the current
// working directory. A missing config file is not an error; defaults apply.
func Load() (*Config, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("cannot determine project root: %w", err)
	}
	return LoadAt(root)
}

// LoadAt reads the configuration for the project rooted at root.
func LoadAt(root string) (*Config, error) {
	v := viper.New()

	v.SetDefault("source_directories", []string{"."})

	v.SetConfigName("peregrine")
	v.SetConfigType("yaml")
	v.AddConfigPath(root)

	v.SetEnvPrefix("PEREGRINE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.ProjectRoot = root

	if len(config.SourceDirectories) == 0 {
		return nil, fmt.Errorf("configuration lists no source directories")
	}
	return &config, nil
}

// ResolveBinary locates the analyzer executable: the configured override if
// any, else peregrine.bin next to the running executable, else PATH. A
// missing binary is a fatal configuration error.
func (c *Config) ResolveBinary() (string, error) {
	if c.Binary != "" {
		if _, err := os.Stat(c.Binary); err != nil {
			return "", fmt.Errorf("configured binary %q cannot be used: %w", c.Binary, err)
		}
		return c.Binary, nil
	}

	if executable, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(executable), binaryName)
		if _, err := os.Stat(sibling); err == nil {
			return sibling, nil
		}
	}

	if located, err := exec.LookPath(binaryName); err == nil {
		return located, nil
	}
	return "", fmt.Errorf("cannot locate a Peregrine binary to run")
}

// ResolveLogDirectory returns the daemon log directory, creating it if
// needed.
func (c *Config) ResolveLogDirectory() (string, error) {
	directory := c.LogDirectory
	if directory == "" {
		directory = filepath.Join(c.ProjectRoot, ".peregrine")
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return "", fmt.Errorf("cannot create log directory: %w", err)
	}
	return directory, nil
}

// ServerIdentifier names the daemon instance in user-facing messages.
func (c *Config) ServerIdentifier() string {
	return filepath.Base(c.ProjectRoot)
}

// ServerArguments builds the daemon argument set for this project.
func (c *Config) ServerArguments(logDirectory string) analyzer.Arguments {
	sources := make([]string, 0, len(c.SourceDirectories))
	for _, directory := range c.SourceDirectories {
		if filepath.IsAbs(directory) {
			sources = append(sources, directory)
			continue
		}
		sources = append(sources, filepath.Join(c.ProjectRoot, directory))
	}
	return analyzer.Arguments{
		LogPath:     logDirectory,
		GlobalRoot:  c.ProjectRoot,
		SourcePaths: sources,
		Excludes:    c.Exclude,
	}
}
