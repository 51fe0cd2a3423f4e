package model

import (
	"fmt"
	"strings"
)

// RenderMode is the fetch strategy chosen for a site.
// It is computed once per site and never changes during a run.
type RenderMode int

const (
	// PlainFetch fetches pages with a plain HTTP GET.
	PlainFetch RenderMode = iota

	// ScriptedFetch renders pages in a headless browser so scripts run
	// before the document is captured.
	ScriptedFetch
)

// String returns the name used in logs, config files, and the database.
func (m RenderMode) String() string {
	switch m {
	case PlainFetch:
		return "plain"
	case ScriptedFetch:
		return "scripted"
	default:
		return "unknown"
	}
}

// ParseRenderMode converts a name produced by String back to a RenderMode.
func ParseRenderMode(s string) (RenderMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "ssr":
		return PlainFetch, nil
	case "scripted", "spa":
		return ScriptedFetch, nil
	default:
		return PlainFetch, fmt.Errorf("unknown render mode %q", s)
	}
}
