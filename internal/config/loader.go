package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".sitemark"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile reads and validates a YAML site configuration file.
// A missing file yields ErrConfigNotFound; whether that is fatal is up to
// the caller.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cf := File{Sites: map[string]SiteConfig{}}
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cf.validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	if cf.Sites == nil {
		cf.Sites = map[string]SiteConfig{}
	}
	return &cf, nil
}

// FindConfigFile returns the configuration file to load, or "" if there is none.
// An explicit configPath is used only if it exists. Otherwise the first
// existing file among searchPaths() wins.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if exists(configPath) {
			return configPath
		}
		return ""
	}

	for _, candidate := range searchPaths() {
		if exists(candidate) {
			return candidate
		}
	}
	return ""
}

// searchPaths lists the implicit configuration locations in priority order:
// the current directory, the home directory, then the XDG config directory.
func searchPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, DefaultConfigFile))
	}
	return append(paths, filepath.Join(XDGConfigDir(), "config.yaml"))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
