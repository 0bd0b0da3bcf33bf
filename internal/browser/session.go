package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/scrapper/internal/params"
	"github.com/JakeFAU/scrapper/internal/scraper"
)

const contentScript = `(document.doctype ? new XMLSerializer().serializeToString(document.doctype) : '') +
(document.documentElement ? document.documentElement.outerHTML : '')`

var lifecycleNames = map[params.WaitUntil]string{
	params.WaitDOMContentLoaded: "DOMContentLoaded",
	params.WaitLoad:             "load",
	params.WaitNetworkIdle:      "networkIdle",
}

// cdpSession drives one chromedp tab.
type cdpSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	opts        SessionOptions
	shot        ScreenshotConfig
	stopForward func()
	onClose     func()
	closeOnce   sync.Once

	mu        sync.Mutex
	allow     map[string]struct{}
	authTried map[fetch.RequestID]struct{}
	lifecycle map[cdp.LoaderID]map[string]struct{}
	notify    chan struct{}
}

func newCDPSession(ctx context.Context, cancel context.CancelFunc, opts SessionOptions, shot ScreenshotConfig) *cdpSession {
	return &cdpSession{
		ctx:         ctx,
		cancel:      cancel,
		opts:        opts,
		shot:        shot,
		stopForward: func() {},
		authTried:   make(map[fetch.RequestID]struct{}),
		lifecycle:   make(map[cdp.LoaderID]map[string]struct{}),
		notify:      make(chan struct{}),
	}
}

// start opens the tab and applies the immutable session options.
func (s *cdpSession) start(ctx context.Context) error {
	s.stopForward = forwardCancel(ctx, s.cancel)
	chromedp.ListenTarget(s.ctx, s.onEvent)

	b := s.opts.Browser
	tasks := chromedp.Tasks{
		page.SetLifecycleEventsEnabled(true),
		network.Enable(),
	}
	if b.Device != nil {
		tasks = append(tasks, chromedp.Emulate(*b.Device))
	} else {
		tasks = append(tasks, emulation.SetDeviceMetricsOverride(b.ViewportWidth, b.ViewportHeight, 1, false).
			WithScreenWidth(b.ScreenWidth).
			WithScreenHeight(b.ScreenHeight))
		if b.UserAgent != "" {
			tasks = append(tasks, emulation.SetUserAgentOverride(b.UserAgent))
		}
	}
	if b.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(b.Locale))
	}
	if b.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(b.Timezone))
	}
	if len(b.ExtraHTTPHeaders) > 0 {
		headers := make(network.Headers, len(b.ExtraHTTPHeaders))
		for k, v := range b.ExtraHTTPHeaders {
			headers[k] = v
		}
		tasks = append(tasks, network.SetExtraHTTPHeaders(headers))
	}
	if b.IgnoreHTTPSErrors {
		tasks = append(tasks, security.SetIgnoreCertificateErrors(true))
	}
	if s.hasCredentials() {
		tasks = append(tasks, fetch.Enable().WithHandleAuthRequests(true))
	}

	if err := chromedp.Run(s.ctx, tasks); err != nil {
		return fmt.Errorf("configure session: %w", err)
	}
	return nil
}

// Close tears down the tab, its browser context and any owned process.
func (s *cdpSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.stopForward()
		if cerr := chromedp.Cancel(s.ctx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = fmt.Errorf("close session: %w", cerr)
		}
		s.cancel()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return err
}

func (s *cdpSession) hasCredentials() bool {
	return s.opts.Browser.HTTPCredentials != nil || s.opts.Proxy.Credentials() != nil
}

func (s *cdpSession) executor() context.Context {
	c := chromedp.FromContext(s.ctx)
	if c == nil || c.Target == nil {
		return s.ctx
	}
	return cdp.WithExecutor(s.ctx, c.Target)
}

func (s *cdpSession) onEvent(ev any) {
	switch e := ev.(type) {
	case *page.EventLifecycleEvent:
		s.recordLifecycle(e.LoaderID, e.Name)
	case *fetch.EventRequestPaused:
		go s.continueOrFail(e)
	case *fetch.EventAuthRequired:
		go s.answerAuth(e)
	}
}

func (s *cdpSession) recordLifecycle(loader cdp.LoaderID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, ok := s.lifecycle[loader]
	if !ok {
		names = make(map[string]struct{})
		s.lifecycle[loader] = names
	}
	names[name] = struct{}{}
	close(s.notify)
	s.notify = make(chan struct{})
}

func (s *cdpSession) reached(loader cdp.LoaderID, name string) (bool, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lifecycle[loader][name]
	return ok, s.notify
}

func (s *cdpSession) allowed(rt network.ResourceType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allow == nil {
		return true
	}
	_, ok := s.allow[strings.ToLower(string(rt))]
	return ok
}

func (s *cdpSession) continueOrFail(e *fetch.EventRequestPaused) {
	ctx := s.executor()
	if s.allowed(e.ResourceType) {
		_ = fetch.ContinueRequest(e.RequestID).Do(ctx)
		return
	}
	_ = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
}

func (s *cdpSession) answerAuth(e *fetch.EventAuthRequired) {
	creds := s.opts.Browser.HTTPCredentials
	if e.AuthChallenge != nil && e.AuthChallenge.Source == fetch.AuthChallengeSourceProxy {
		creds = s.opts.Proxy.Credentials()
	}

	resp := &fetch.AuthChallengeResponse{Response: fetch.AuthChallengeResponseResponseDefault}
	if creds != nil {
		s.mu.Lock()
		_, retried := s.authTried[e.RequestID]
		s.authTried[e.RequestID] = struct{}{}
		s.mu.Unlock()
		if retried {
			// The credentials were rejected once; do not loop.
			resp.Response = fetch.AuthChallengeResponseResponseCancelAuth
		} else {
			resp = &fetch.AuthChallengeResponse{
				Response: fetch.AuthChallengeResponseResponseProvideCredentials,
				Username: creds.Username,
				Password: creds.Password,
			}
		}
	}
	_ = fetch.ContinueWithAuth(e.RequestID, resp).Do(s.executor())
}

// AddInitScript registers source for every new document.
func (s *cdpSession) AddInitScript(source string) error {
	err := chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(source).Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("add init script: %w", err)
	}
	return nil
}

// SetResourceFilter intercepts every request and aborts those not in allow.
func (s *cdpSession) SetResourceFilter(allow []string) error {
	set := make(map[string]struct{}, len(allow))
	for _, rt := range allow {
		set[strings.ToLower(rt)] = struct{}{}
	}
	s.mu.Lock()
	s.allow = set
	s.mu.Unlock()

	if err := chromedp.Run(s.ctx, fetch.Enable().WithHandleAuthRequests(s.hasCredentials())); err != nil {
		return fmt.Errorf("enable request interception: %w", err)
	}
	return nil
}

// Navigate loads rawURL and waits for the lifecycle event matching until.
func (s *cdpSession) Navigate(rawURL string, until params.WaitUntil, timeout time.Duration) error {
	ctx, cancel := s.ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, timeout)
	}
	defer cancel()

	var loader cdp.LoaderID
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, loaderID, errorText, _, err := page.Navigate(rawURL).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return errors.New(errorText)
		}
		loader = loaderID
		return nil
	}))
	if err != nil {
		return s.navigationError(ctx, rawURL, err)
	}

	name, ok := lifecycleNames[until]
	if !ok || loader == "" {
		return nil
	}
	for {
		done, changed := s.reached(loader, name)
		if done {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return s.navigationError(ctx, rawURL, ctx.Err())
		}
	}
}

func (s *cdpSession) navigationError(ctx context.Context, rawURL string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && s.ctx.Err() == nil {
		return scraper.NavigationTimeoutError(rawURL, err)
	}
	return scraper.UpstreamError("navigate", rawURL, err)
}

// Evaluate runs expr, awaiting a returned promise.
func (s *cdpSession) Evaluate(expr string, res any) error {
	err := chromedp.Run(s.ctx, chromedp.Evaluate(expr, res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

// Content returns the serialized document including its doctype.
func (s *cdpSession) Content() (string, error) {
	var html string
	if err := s.Evaluate(contentScript, &html); err != nil {
		return "", fmt.Errorf("page content: %w", err)
	}
	return html, nil
}

// Title returns the document title.
func (s *cdpSession) Title() (string, error) {
	var title string
	if err := chromedp.Run(s.ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("page title: %w", err)
	}
	return title, nil
}

// URL returns the current location.
func (s *cdpSession) URL() (string, error) {
	var loc string
	if err := chromedp.Run(s.ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("page url: %w", err)
	}
	return loc, nil
}

// Screenshot captures the page. A full capture whose content exceeds the
// configured maximum dimension returns ErrScreenshotTooLarge.
func (s *cdpSession) Screenshot(full bool) ([]byte, error) {
	var buf []byte
	err := chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		capture := page.CaptureScreenshot().WithFormat(screenshotFormat(s.shot.Format))
		if capture.Format == page.CaptureScreenshotFormatJpeg && s.shot.Quality > 0 {
			capture = capture.WithQuality(s.shot.Quality)
		}
		if full {
			_, _, _, _, _, size, err := page.GetLayoutMetrics().Do(ctx)
			if err != nil {
				return err
			}
			if size == nil {
				return errors.New("layout metrics without content size")
			}
			if size.Width > s.shot.MaxDimension || size.Height > s.shot.MaxDimension {
				return ErrScreenshotTooLarge
			}
			capture = capture.
				WithCaptureBeyondViewport(true).
				WithClip(&page.Viewport{Width: size.Width, Height: size.Height, Scale: 1})
		}
		var err error
		buf, err = capture.Do(ctx)
		return err
	}))
	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, ErrScreenshotTooLarge), full && strings.Contains(err.Error(), "larger than"):
		return nil, ErrScreenshotTooLarge
	default:
		return nil, fmt.Errorf("screenshot: %w", err)
	}
}
