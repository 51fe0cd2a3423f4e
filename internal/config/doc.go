// Package config provides configuration structures and utilities for sitemark.
// It defines the crawl settings, the event pipeline limits, output preferences,
// and the optional per-site YAML configuration file.
package config
