package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/nao1215/sitemark/internal/fetch"
	"github.com/nao1215/sitemark/internal/model"
)

// ScriptMarker is the substring that marks a document as script-rendered.
const ScriptMarker = "<script>"

// ModeAuto asks Select to classify the site instead of using an override.
const ModeAuto = "auto"

// Detect classifies a document body.
func Detect(body string) model.RenderMode {
	if strings.Contains(body, ScriptMarker) {
		return model.ScriptedFetch
	}
	return model.PlainFetch
}

// Classify fetches rootURL once with f and classifies its body.
func Classify(ctx context.Context, f fetch.Fetcher, rootURL string) (model.RenderMode, error) {
	resp, err := f.Fetch(ctx, rootURL)
	if err != nil {
		return model.PlainFetch, fmt.Errorf("failed to classify %s: %w", rootURL, err)
	}
	return Detect(string(resp.Body)), nil
}

// Select returns the render mode named by override, or classifies rootURL
// when override is empty or "auto".
func Select(ctx context.Context, f fetch.Fetcher, rootURL, override string) (model.RenderMode, error) {
	if override == "" || strings.EqualFold(override, ModeAuto) {
		return Classify(ctx, f, rootURL)
	}
	return model.ParseRenderMode(override)
}
