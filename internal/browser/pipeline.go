package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapper/internal/metrics"
	"github.com/JakeFAU/scrapper/internal/params"
	"github.com/JakeFAU/scrapper/internal/scraper"
)

// settleSteps is the number of scroll increments during the settle phase.
const settleSteps = 10

// Scripts supplies the init and user scripts a pipeline injects.
type Scripts interface {
	Stealth() []string
	UserScript(name string) (string, error)
}

// Limiter paces navigations per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Steps is the per-request input of a pipeline run.
type Steps struct {
	URL     string
	Common  params.Common
	Browser params.Browser
	// InitScripts run in every new document after the stealth scripts.
	InitScripts []string
}

// Capture is what a pipeline run leaves behind for extraction.
type Capture struct {
	// URL is the page location after redirects.
	URL        string
	Title      string
	Content    string
	Screenshot []byte
}

// Pipeline drives a page through navigation, settling and capture.
type Pipeline struct {
	scripts Scripts
	limiter Limiter
	logger  *zap.Logger
}

// NewPipeline builds a pipeline. limiter may be nil.
func NewPipeline(scripts Scripts, limiter Limiter, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{scripts: scripts, limiter: limiter, logger: logger}
}

// Run executes the pipeline on page. The page is left on the loaded document so
// extraction scripts can run against it afterwards.
func (p *Pipeline) Run(ctx context.Context, page Page, steps Steps) (*Capture, error) {
	if steps.Common.Stealth && p.scripts != nil {
		for _, src := range p.scripts.Stealth() {
			if err := page.AddInitScript(src); err != nil {
				return nil, stageError("stealth", steps.URL, err)
			}
		}
	}
	for _, src := range steps.InitScripts {
		if err := page.AddInitScript(src); err != nil {
			return nil, stageError("init-scripts", steps.URL, err)
		}
	}
	if len(steps.Browser.Resource) > 0 {
		if err := page.SetResourceFilter(steps.Browser.Resource); err != nil {
			return nil, stageError("resource-filter", steps.URL, err)
		}
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, steps.URL); err != nil {
			return nil, stageError("rate-limit", steps.URL, err)
		}
	}
	if err := page.Navigate(steps.URL, steps.Browser.WaitUntil, steps.Browser.Timeout); err != nil {
		return nil, stageError("navigate", steps.URL, err)
	}

	if err := settle(ctx, page, steps.Browser.Sleep, steps.Browser.ScrollDown); err != nil {
		return nil, stageError("settle", steps.URL, err)
	}

	if err := p.runUserScripts(page, steps.Common.UserScripts); err != nil {
		return nil, stageError("user-scripts", steps.URL, err)
	}
	if steps.Common.UserScriptsTimeout > 0 {
		if err := sleep(ctx, steps.Common.UserScriptsTimeout); err != nil {
			return nil, stageError("user-scripts", steps.URL, err)
		}
	}

	return p.capture(page, steps)
}

func (p *Pipeline) runUserScripts(page Page, names []string) error {
	for _, name := range names {
		if p.scripts == nil {
			return fmt.Errorf("user script %q: no script library", name)
		}
		src, err := p.scripts.UserScript(name)
		if err != nil {
			return err
		}
		if err := page.Evaluate(src, nil); err != nil {
			return fmt.Errorf("user script %q: %w", name, err)
		}
	}
	return nil
}

func (p *Pipeline) capture(page Page, steps Steps) (*Capture, error) {
	out := &Capture{}
	var err error
	if out.Content, err = page.Content(); err != nil {
		return nil, stageError("content", steps.URL, err)
	}
	if out.Title, err = page.Title(); err != nil {
		return nil, stageError("content", steps.URL, err)
	}
	if out.URL, err = page.URL(); err != nil || out.URL == "" {
		out.URL = steps.URL
	}

	if steps.Common.Screenshot {
		if out.Screenshot, err = p.screenshot(page, steps.URL); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// screenshot captures the full page and falls back to the viewport only when the
// page is too large to capture.
func (p *Pipeline) screenshot(page Page, url string) ([]byte, error) {
	shot, err := page.Screenshot(true)
	if errors.Is(err, ErrScreenshotTooLarge) {
		metrics.ObserveScreenshotFallback()
		p.logger.Info("full page screenshot too large, capturing viewport", zap.String("url", url))
		shot, err = page.Screenshot(false)
	}
	if err != nil {
		return nil, stageError("screenshot", url, err)
	}
	return shot, nil
}

// settle waits d in equal steps, scrolling a tenth of scroll on each step, and
// returns to the top when a scroll was requested.
func settle(ctx context.Context, page Page, d time.Duration, scroll int64) error {
	if d <= 0 {
		return nil
	}
	step := d / settleSteps
	dy := float64(scroll) / settleSteps
	for range settleSteps {
		if scroll > 0 {
			if err := page.Evaluate(fmt.Sprintf("window.scrollBy(0, %g)", dy), nil); err != nil {
				return err
			}
		}
		if err := sleep(ctx, step); err != nil {
			return err
		}
	}
	if scroll > 0 {
		return page.Evaluate("window.scrollTo(0, 0)", nil)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stageError keeps tagged errors as they are and tags the rest as upstream failures.
func stageError(stage, url string, err error) error {
	var se *scraper.Error
	if errors.As(err, &se) {
		return err
	}
	return scraper.UpstreamError(stage, url, err)
}
