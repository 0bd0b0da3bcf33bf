package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ScreenshotConfig controls image captures.
type ScreenshotConfig struct {
	// Format is "jpeg" or "png".
	Format string
	// Quality applies to jpeg only (0..100).
	Quality int64
	// MaxDimension is the largest width or height a full-page capture may have.
	MaxDimension float64
}

// ChromeConfig configures the Chrome process.
type ChromeConfig struct {
	ExecPath string
	// UserDataDir is the profile directory used by persistent (non-incognito) sessions.
	UserDataDir string
	NoSandbox   bool
	Screenshot  ScreenshotConfig
}

// Chrome launches sessions on headless Chrome. Incognito sessions share one
// browser process, each in its own browser context. Persistent sessions start a
// dedicated process on the shared profile directory; since that process locks the
// directory, persistent sessions run one at a time.
type Chrome struct {
	cfg             ChromeConfig
	logger          *zap.Logger
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	profile         *semaphore.Weighted
	contexts        atomic.Int64
}

// NewChrome starts the shared browser process.
func NewChrome(ctx context.Context, cfg ChromeConfig, logger *zap.Logger) (*Chrome, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Screenshot.Format == "" {
		cfg.Screenshot.Format = "jpeg"
	}
	if cfg.Screenshot.MaxDimension <= 0 {
		cfg.Screenshot.MaxDimension = 32767
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg, "")...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx, chromedp.WithErrorf(logger.Sugar().Errorf))
	stop := forwardCancel(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	stop()
	if err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Chrome{
		cfg:             cfg,
		logger:          logger,
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		profile:         semaphore.NewWeighted(1),
	}, nil
}

func allocatorOptions(cfg ChromeConfig, userDataDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if userDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(userDataDir))
	}
	return opts
}

// Close stops the shared browser process.
func (c *Chrome) Close() error {
	if c == nil {
		return nil
	}
	err := chromedp.Cancel(c.browserCtx)
	c.browserCancel()
	c.allocatorCancel()
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// Version returns the browser product string, e.g. "HeadlessChrome/126.0.0.0".
func (c *Chrome) Version(ctx context.Context) (string, error) {
	bc := chromedp.FromContext(c.browserCtx)
	if bc == nil || bc.Browser == nil {
		return "", fmt.Errorf("browser is not running")
	}
	_, product, _, _, _, err := cdpbrowser.GetVersion().Do(cdp.WithExecutor(ctx, bc.Browser))
	if err != nil {
		return "", fmt.Errorf("browser version: %w", err)
	}
	return product, nil
}

// Contexts is the number of open session contexts.
func (c *Chrome) Contexts() int {
	return int(c.contexts.Load())
}

// IsConnected reports whether the shared browser is still running.
func (c *Chrome) IsConnected() bool {
	return c.browserCtx.Err() == nil
}

// NewSession opens an incognito context on the shared browser or a persistent
// browser on the profile directory.
func (c *Chrome) NewSession(ctx context.Context, opts SessionOptions) (Session, error) {
	if opts.Browser.Incognito {
		return c.newIncognito(ctx, opts)
	}
	return c.newPersistent(ctx, opts)
}

func (c *Chrome) newIncognito(ctx context.Context, opts SessionOptions) (Session, error) {
	proxy := opts.Proxy
	tabCtx, cancel := chromedp.NewContext(c.browserCtx, chromedp.WithNewBrowserContext(
		func(p *target.CreateBrowserContextParams) *target.CreateBrowserContextParams {
			if proxy.Server != "" {
				p = p.WithProxyServer(proxy.Server)
				if proxy.Bypass != "" {
					p = p.WithProxyBypassList(proxy.Bypass)
				}
			}
			return p
		},
	))
	s := newCDPSession(tabCtx, cancel, opts, c.cfg.Screenshot)
	c.contexts.Add(1)
	s.onClose = func() { c.contexts.Add(-1) }
	if err := s.start(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (c *Chrome) newPersistent(ctx context.Context, opts SessionOptions) (Session, error) {
	if c.cfg.UserDataDir == "" {
		return nil, fmt.Errorf("persistent sessions need a user data directory")
	}
	if err := os.MkdirAll(c.cfg.UserDataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create profile directory: %w", err)
	}

	if err := c.acquireProfile(ctx); err != nil {
		return nil, err
	}
	allocOpts := allocatorOptions(c.cfg, c.cfg.UserDataDir)
	if opts.Proxy.Server != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy.Server))
		if opts.Proxy.Bypass != "" {
			allocOpts = append(allocOpts, chromedp.Flag("proxy-bypass-list", strings.TrimSpace(opts.Proxy.Bypass)))
		}
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, cancel := chromedp.NewContext(allocatorCtx, chromedp.WithErrorf(c.logger.Sugar().Errorf))

	s := newCDPSession(tabCtx, cancel, opts, c.cfg.Screenshot)
	c.contexts.Add(1)
	s.onClose = func() {
		allocatorCancel()
		c.contexts.Add(-1)
		c.profile.Release(1)
	}
	if err := s.start(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// acquireProfile waits for the profile directory until ctx ends.
func (c *Chrome) acquireProfile(ctx context.Context) error {
	if err := c.profile.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for profile directory: %w", err)
	}
	return nil
}

// forwardCancel cancels the child operation when parent ends first.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func screenshotFormat(format string) page.CaptureScreenshotFormat {
	if strings.EqualFold(format, "png") {
		return page.CaptureScreenshotFormatPng
	}
	return page.CaptureScreenshotFormatJpeg
}
