package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/martinemde/webpilot/agentloop"
)

func TestRenderNodes(t *testing.T) {
	nodes := []visibleNode{
		{Kind: "text", Text: "  Welcome   to\n the shop "},
		{ID: 1, Kind: "link", Text: "Paperclips"},
		{Kind: "text", Text: "   "},
		{ID: 2, Kind: "input", Text: "Search"},
		{ID: 3, Kind: "button", Text: "Go"},
		{ID: 4, Kind: "select", Text: ""},
	}
	want := "Welcome to the shop\n" +
		"<link id=1>Paperclips</link>\n" +
		"<input id=2>Search</input>\n" +
		"<button id=3>Go</button>\n" +
		"<select id=4></select>"
	assert.Equal(t, want, renderNodes(nodes))
}

func TestRenderNodesEmpty(t *testing.T) {
	assert.Equal(t, "", renderNodes(nil))
	assert.Equal(t, "", renderNodes([]visibleNode{{Kind: "text", Text: "\n\t"}}))
}

func TestScrollMetricsProgress(t *testing.T) {
	tests := []struct {
		name string
		in   scrollMetrics
		want agentloop.ScrollProgress
	}{
		{"top", scrollMetrics{ScrollY: 0, ScrollHeight: 3000, InnerHeight: 1000}, agentloop.ScrollProgress{Fraction: 0, Offset: 0, Total: 3000}},
		{"middle", scrollMetrics{ScrollY: 1000, ScrollHeight: 3000, InnerHeight: 1000}, agentloop.ScrollProgress{Fraction: 0.5, Offset: 1000, Total: 3000}},
		{"bottom", scrollMetrics{ScrollY: 2000, ScrollHeight: 3000, InnerHeight: 1000}, agentloop.ScrollProgress{Fraction: 1, Offset: 2000, Total: 3000}},
		{"short page", scrollMetrics{ScrollY: 0, ScrollHeight: 500, InnerHeight: 1000}, agentloop.ScrollProgress{Fraction: 0, Offset: 0, Total: 500}},
		{"overscroll", scrollMetrics{ScrollY: 2500, ScrollHeight: 3000, InnerHeight: 1000}, agentloop.ScrollProgress{Fraction: 1, Offset: 2500, Total: 3000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.progress())
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.NavigationTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ViewportWidth = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SettleTimeout = -1
	assert.Error(t, cfg.Validate())
}
