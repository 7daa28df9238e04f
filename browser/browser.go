// Package browser implements the agent's Actuator on a Chrome instance
// driven through the DevTools protocol with go-rod.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/martinemde/webpilot/agentloop"
)

// Config controls how Chrome is launched or attached.
type Config struct {
	Headless          bool          `mapstructure:"headless"`
	Bin               string        `mapstructure:"bin"`         // Chrome binary; empty lets the launcher find or fetch one
	ControlURL        string        `mapstructure:"control_url"` // attach to a running Chrome instead of launching
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	SettleTimeout     time.Duration `mapstructure:"settle_timeout"`
	ViewportWidth     int           `mapstructure:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height"`
}

// DefaultConfig returns a headless configuration with a desktop viewport.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		NavigationTimeout: 30 * time.Second,
		SettleTimeout:     5 * time.Second,
		ViewportWidth:     1280,
		ViewportHeight:    1024,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("browser navigation_timeout must be positive, got %s", c.NavigationTimeout)
	}
	if c.SettleTimeout < 0 {
		return fmt.Errorf("browser settle_timeout must not be negative, got %s", c.SettleTimeout)
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive, got %dx%d", c.ViewportWidth, c.ViewportHeight)
	}
	return nil
}

// Browser is a single Chrome tab exposed as an agentloop.Actuator.
type Browser struct {
	cfg      Config
	logger   *zap.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	mu       sync.Mutex
}

var _ agentloop.Actuator = (*Browser)(nil)
var _ agentloop.Resetter = (*Browser)(nil)

// Option configures a Browser.
type Option func(*Browser)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Browser) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Launch starts (or attaches to) Chrome and opens a blank tab.
func Launch(ctx context.Context, cfg Config, opts ...Option) (*Browser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Browser{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}

	controlURL := cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(cfg.Headless).Context(ctx)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		b.launcher = l
		controlURL = u
	}

	b.browser = rod.New().ControlURL(controlURL)
	if err := b.browser.Connect(); err != nil {
		b.cleanup()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		b.cleanup()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             cfg.ViewportWidth,
		Height:            cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		b.cleanup()
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	b.page = page
	b.logger.Debug("browser ready", zap.String("control_url", controlURL), zap.Bool("headless", cfg.Headless))
	return b, nil
}

// Visit navigates the tab to url and waits for the page to settle.
func (b *Browser) Visit(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.page.Context(ctx).Timeout(b.cfg.NavigationTimeout).Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	b.settle(ctx)
	return nil
}

// Scroll moves the viewport by one window height.
func (b *Browser) Scroll(ctx context.Context, direction agentloop.ScrollDirection) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	sign := 1
	if direction == agentloop.ScrollUp {
		sign = -1
	}
	if _, err := b.page.Context(ctx).Eval(`(sign) => window.scrollBy(0, sign * window.innerHeight)`, sign); err != nil {
		return fmt.Errorf("scroll %s: %w", direction, err)
	}
	return nil
}

// Click clicks the element numbered elementID by the last VisibleElements.
func (b *Browser) Click(ctx context.Context, elementID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	el, err := b.element(ctx, elementID)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click element %d: %w", elementID, err)
	}
	b.settle(ctx)
	return nil
}

// Type replaces the content of the element numbered elementID with text,
// pressing Enter afterwards when submit is set.
func (b *Browser) Type(ctx context.Context, elementID int, text string, submit bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	el, err := b.element(ctx, elementID)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		b.logger.Debug("select text before typing", zap.Int("element", elementID), zap.Error(err))
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("type into element %d: %w", elementID, err)
	}
	if submit {
		if err := el.Type(input.Enter); err != nil {
			return fmt.Errorf("submit element %d: %w", elementID, err)
		}
		b.settle(ctx)
	}
	return nil
}

// Back navigates back in the tab history.
func (b *Browser) Back(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.page.Context(ctx).NavigateBack(); err != nil {
		return fmt.Errorf("navigate back: %w", err)
	}
	b.settle(ctx)
	return nil
}

// Forward navigates forward in the tab history.
func (b *Browser) Forward(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.page.Context(ctx).NavigateForward(); err != nil {
		return fmt.Errorf("navigate forward: %w", err)
	}
	b.settle(ctx)
	return nil
}

// Location returns the tab's current URL.
func (b *Browser) Location(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, err := b.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// ScrollProgress reports how far down the page the viewport is.
func (b *Browser) ScrollProgress(ctx context.Context) (agentloop.ScrollProgress, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, err := b.page.Context(ctx).Eval(scrollMetricsJS)
	if err != nil {
		return agentloop.ScrollProgress{}, fmt.Errorf("read scroll position: %w", err)
	}
	var m scrollMetrics
	if err := json.Unmarshal([]byte(res.Value.Str()), &m); err != nil {
		return agentloop.ScrollProgress{}, fmt.Errorf("decode scroll position: %w", err)
	}
	return m.progress(), nil
}

// VisibleElements renders the viewport and renumbers interactive elements.
// Ids from earlier renders are invalid afterwards.
func (b *Browser) VisibleElements(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, err := b.page.Context(ctx).Eval(simplifyJS, idAttribute)
	if err != nil {
		return "", fmt.Errorf("simplify page: %w", err)
	}
	var nodes []visibleNode
	if err := json.Unmarshal([]byte(res.Value.Str()), &nodes); err != nil {
		return "", fmt.Errorf("decode simplified page: %w", err)
	}
	return renderNodes(nodes), nil
}

// Reset returns the tab to about:blank.
func (b *Browser) Reset(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.page.Context(ctx).Timeout(b.cfg.NavigationTimeout).Navigate("about:blank"); err != nil {
		return fmt.Errorf("reset tab: %w", err)
	}
	return nil
}

// Close shuts the tab and, when it was launched here, Chrome itself.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	if b.page != nil {
		if err := b.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close tab: %w", err))
		}
		b.page = nil
	}
	if b.launcher != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chrome: %w", err))
		}
	}
	b.cleanup()
	return errors.Join(errs...)
}

func (b *Browser) cleanup() {
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
		b.launcher = nil
	}
}

// element finds a numbered element without waiting for it to appear.
func (b *Browser) element(ctx context.Context, elementID int) (*rod.Element, error) {
	els, err := b.page.Context(ctx).Elements(fmt.Sprintf(`[%s="%d"]`, idAttribute, elementID))
	if err != nil {
		return nil, fmt.Errorf("find element %d: %w", elementID, err)
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("no element with id %d in the current view", elementID)
	}
	return els.First(), nil
}

// settle waits for the page to stop changing. Pages that never go quiet
// are used as they are.
func (b *Browser) settle(ctx context.Context) {
	if b.cfg.SettleTimeout == 0 {
		return
	}
	if err := b.page.Context(ctx).Timeout(b.cfg.SettleTimeout).WaitStable(300 * time.Millisecond); err != nil {
		b.logger.Debug("page did not settle", zap.Error(err))
	}
}
