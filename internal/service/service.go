// Package service runs scrape requests end to end: cache lookup, a browser session
// from the pool, the page pipeline, extraction, refinement, and the cache write.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/scrapper/internal/browser"
	"github.com/JakeFAU/scrapper/internal/cache"
	"github.com/JakeFAU/scrapper/internal/clock/system"
	"github.com/JakeFAU/scrapper/internal/content"
	"github.com/JakeFAU/scrapper/internal/extract"
	"github.com/JakeFAU/scrapper/internal/links"
	"github.com/JakeFAU/scrapper/internal/metrics"
	"github.com/JakeFAU/scrapper/internal/params"
	"github.com/JakeFAU/scrapper/internal/scraper"
	"github.com/JakeFAU/scrapper/internal/storage/postgres"
)

// EventResultStored names the notification sent after a result is cached.
const EventResultStored = "result.stored"

// Sessions hands out browser sessions under the concurrency limit.
type Sessions interface {
	WithSession(ctx context.Context, opts browser.SessionOptions, fn func(ctx context.Context, page browser.Page) error) error
}

// Runner drives a page through the processing pipeline.
type Runner interface {
	Run(ctx context.Context, page browser.Page, steps browser.Steps) (*browser.Capture, error)
}

// Indexer records stored results.
type Indexer interface {
	Record(ctx context.Context, e postgres.Entry) error
}

// Publisher sends result notifications.
type Publisher interface {
	Publish(ctx context.Context, name string, payload any) (string, error)
}

// Clock supplies result dates.
type Clock interface {
	Now() time.Time
}

// Notification is the payload published for every stored result.
type Notification struct {
	ID        string             `json:"id"`
	Kind      scraper.ResultKind `json:"kind"`
	URL       string             `json:"url"`
	ResultURI string             `json:"resultUri"`
}

// Options wires a Service. Index and Publisher are optional.
type Options struct {
	Cache     *cache.Store
	Sessions  Sessions
	Pipeline  Runner
	Extractor *extract.Extractor
	Index     Indexer
	Publisher Publisher
	Clock     Clock
	// Coalesce shares one browser run among concurrent identical cacheable requests.
	Coalesce bool
	// RequestTimeout bounds a shared run. Zero derives the bound from the request's
	// own navigation, sleep, and script timeouts.
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// sharedRunSlack is added to the derived bound of a shared run.
const sharedRunSlack = 30 * time.Second

// Service executes scrape requests.
type Service struct {
	cache     *cache.Store
	sessions  Sessions
	pipeline  Runner
	extractor *extract.Extractor
	index     Indexer
	publisher Publisher
	clock     Clock
	coalesce  bool
	timeout   time.Duration
	group     singleflight.Group
	refine    func(title, raw string) (string, error)
	logger    *zap.Logger
}

// New validates opts and returns a Service.
func New(opts Options) (*Service, error) {
	if opts.Cache == nil {
		return nil, errors.New("cache is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("session pool is required")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if opts.Extractor == nil {
		opts.Extractor = extract.New(nil)
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		cache:     opts.Cache,
		sessions:  opts.Sessions,
		pipeline:  opts.Pipeline,
		extractor: opts.Extractor,
		index:     opts.Index,
		publisher: opts.Publisher,
		clock:     opts.Clock,
		coalesce:  opts.Coalesce,
		timeout:   opts.RequestTimeout,
		refine:    content.Refine,
		logger:    opts.Logger,
	}, nil
}

// Origin is the inbound request as seen by the HTTP layer.
type Origin struct {
	// BaseURL is scheme://host of the service, used for result and screenshot URIs.
	BaseURL string
	Path    string
	Query   url.Values
}

// Response is a serialized result.
type Response struct {
	ID   string
	Body []byte
	// Cached is true when Body came from the cache without running a browser.
	Cached bool
}

// Article extracts the main article of req.URL.
func (s *Service) Article(ctx context.Context, origin Origin, req params.ArticleRequest) (*Response, error) {
	return s.serve(ctx, scraper.KindArticle, origin, req.Request, s.extractor.InitScripts(),
		func(page browser.Page, b base, capture *browser.Capture) (any, error) {
			art, err := s.extractor.Article(page, capture.URL, req.Readability)
			if err != nil {
				return nil, err
			}
			return s.articleResult(b, art)
		})
}

// Links extracts the story links of req.URL.
func (s *Service) Links(ctx context.Context, origin Origin, req params.LinksRequest) (*Response, error) {
	return s.serve(ctx, scraper.KindLinks, origin, req.Request, nil,
		func(page browser.Page, b base, capture *browser.Capture) (any, error) {
			records, err := s.extractor.Links(page, capture.URL)
			if err != nil {
				return nil, err
			}
			th := links.Thresholds{TextLen: req.LinkParser.TextLenThreshold, Words: req.LinkParser.WordsThreshold}
			return &scraper.LinksResult{
				ID:            b.id,
				URL:           b.url,
				Domain:        b.domain,
				Date:          b.date,
				Query:         b.query,
				Meta:          b.meta,
				ResultURI:     b.resultURI,
				Title:         &capture.Title,
				Links:         links.Extract(req.URL, records, th),
				FullContent:   b.fullContent,
				ScreenshotURI: b.screenshotURI,
			}, nil
		})
}

// Page fetches req.URL without extraction.
func (s *Service) Page(ctx context.Context, origin Origin, req params.Request) (*Response, error) {
	return s.serve(ctx, scraper.KindPage, origin, req, nil,
		func(_ browser.Page, b base, capture *browser.Capture) (any, error) {
			return &scraper.PageResult{
				ID:            b.id,
				URL:           b.url,
				Domain:        b.domain,
				Date:          b.date,
				Query:         b.query,
				Meta:          b.meta,
				ResultURI:     b.resultURI,
				Title:         &capture.Title,
				FullContent:   b.fullContent,
				ScreenshotURI: b.screenshotURI,
			}, nil
		})
}

// Result returns a cached result body.
func (s *Service) Result(ctx context.Context, id string) ([]byte, error) {
	body, ok := s.cache.Get(ctx, id)
	if !ok {
		return nil, scraper.NotFoundError(id)
	}
	return body, nil
}

// Screenshot returns a cached screenshot and its media type.
func (s *Service) Screenshot(ctx context.Context, id string) ([]byte, string, error) {
	data, ok := s.cache.GetScreenshot(ctx, id)
	if !ok {
		return nil, "", scraper.NotFoundError(id)
	}
	return data, s.cache.ContentType(), nil
}

// base holds the fields shared by every result kind.
type base struct {
	id            string
	url           string
	domain        string
	date          string
	query         map[string][]string
	meta          scraper.Meta
	resultURI     string
	fullContent   *string
	screenshotURI *string
}

type extractFunc func(page browser.Page, b base, capture *browser.Capture) (any, error)

type outcome struct {
	resp *Response
}

func (s *Service) serve(ctx context.Context, kind scraper.ResultKind, origin Origin, req params.Request,
	initScripts []string, fn extractFunc,
) (*Response, error) {
	id := s.cache.Key(origin.Path, origin.Query)
	if req.Common.Cache {
		if body, ok := s.cache.Get(ctx, id); ok {
			return &Response{ID: id, Body: body, Cached: true}, nil
		}
	}

	if !s.coalesce || !req.Common.Cache {
		return s.produce(ctx, kind, id, origin, req, initScripts, fn)
	}

	// The shared run outlives any single caller; each caller waits only as long
	// as its own context allows.
	ch := s.group.DoChan(id, func() (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s run panicked: %v", kind, r)
			}
		}()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sharedTimeout(req))
		defer cancel()
		resp, err := s.produce(runCtx, kind, id, origin, req, initScripts, fn)
		if err != nil {
			return nil, err
		}
		return outcome{resp: resp}, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug("coalesced identical request", zap.String("id", id))
		}
		resp := *res.Val.(outcome).resp
		return &resp, nil
	case <-ctx.Done():
		return nil, scraper.UpstreamError("wait", req.URL, ctx.Err())
	}
}

// sharedTimeout bounds a coalesced run that no caller can cancel.
func (s *Service) sharedTimeout(req params.Request) time.Duration {
	if s.timeout > 0 {
		return s.timeout
	}
	return req.Browser.Timeout + req.Browser.Sleep + req.Common.UserScriptsTimeout + sharedRunSlack
}

func (s *Service) produce(ctx context.Context, kind scraper.ResultKind, id string, origin Origin, req params.Request,
	initScripts []string, fn extractFunc,
) (*Response, error) {
	start := time.Now()
	var (
		result  any
		shot    []byte
		pageURL string
	)
	steps := browser.Steps{URL: req.URL, Common: req.Common, Browser: req.Browser, InitScripts: initScripts}
	opts := browser.SessionOptions{Browser: req.Browser, Proxy: req.Proxy}
	err := s.sessions.WithSession(ctx, opts, func(ctx context.Context, page browser.Page) error {
		capture, err := s.pipeline.Run(ctx, page, steps)
		if err != nil {
			return err
		}
		pageURL = capture.URL
		shot = capture.Screenshot
		result, err = fn(page, s.base(id, origin, req, capture), capture)
		return err
	})
	if err != nil {
		metrics.ObservePipeline(string(kind), string(scraper.KindOf(err)), time.Since(start))
		s.logFailure(kind, req.URL, err)
		return nil, err
	}
	metrics.ObservePipeline(string(kind), "ok", time.Since(start))

	body, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal %s result: %w", kind, err)
	}
	if err := s.cache.Put(ctx, id, body, shot); err != nil {
		s.logger.Warn("cache write failed", zap.String("id", id), zap.Error(err))
	}
	s.announce(ctx, kind, id, pageURL, origin)
	return &Response{ID: id, Body: body}, nil
}

func (s *Service) base(id string, origin Origin, req params.Request, capture *browser.Capture) base {
	b := base{
		id:        id,
		url:       capture.URL,
		domain:    links.RegistrableDomain(capture.URL),
		date:      system.Stamp(s.clock.Now()),
		query:     cloneQuery(origin.Query),
		meta:      content.SocialMeta(capture.Content),
		resultURI: origin.BaseURL + "/result/" + id,
	}
	if req.Common.FullContent {
		b.fullContent = &capture.Content
	}
	if req.Common.Screenshot {
		uri := origin.BaseURL + "/screenshot/" + id
		b.screenshotURI = &uri
	}
	return b
}

func (s *Service) articleResult(b base, art *extract.Article) (*scraper.ArticleResult, error) {
	body := art.Content
	if body != "" {
		refined, err := s.refine(art.Title, body)
		if err != nil {
			return nil, scraper.ExtractionError("refine", b.url, "Couldn't refine the article content: "+err.Error())
		}
		body = refined
	}
	res := &scraper.ArticleResult{
		ID:            b.id,
		URL:           b.url,
		Domain:        b.domain,
		Date:          b.date,
		Query:         b.query,
		Meta:          b.meta,
		ResultURI:     b.resultURI,
		Title:         scraper.StringPtr(art.Title),
		Byline:        scraper.StringPtr(art.Byline),
		Content:       scraper.StringPtr(body),
		TextContent:   scraper.StringPtr(art.TextContent),
		Excerpt:       scraper.StringPtr(art.Excerpt),
		Lang:          scraper.StringPtr(art.Lang),
		Dir:           scraper.StringPtr(art.Dir),
		SiteName:      scraper.StringPtr(art.SiteName),
		PublishedTime: scraper.StringPtr(art.PublishedTime),
		FullContent:   b.fullContent,
		ScreenshotURI: b.screenshotURI,
	}
	if art.Length > 0 {
		length := art.Length
		res.Length = &length
	}
	return res, nil
}

// announce records and publishes a stored result. Failures are logged only.
func (s *Service) announce(ctx context.Context, kind scraper.ResultKind, id, pageURL string, origin Origin) {
	if s.index != nil {
		entry := postgres.Entry{
			ID:        id,
			Kind:      string(kind),
			URL:       pageURL,
			Domain:    links.RegistrableDomain(pageURL),
			CreatedAt: s.clock.Now(),
		}
		if err := s.index.Record(ctx, entry); err != nil {
			s.logger.Warn("result index write failed", zap.String("id", id), zap.Error(err))
		}
	}
	if s.publisher != nil {
		note := Notification{ID: id, Kind: kind, URL: pageURL, ResultURI: origin.BaseURL + "/result/" + id}
		if _, err := s.publisher.Publish(ctx, EventResultStored, note); err != nil {
			s.logger.Warn("result notification failed", zap.String("id", id), zap.Error(err))
		}
	}
}

func (s *Service) logFailure(kind scraper.ResultKind, rawURL string, err error) {
	fields := []zap.Field{
		zap.String("endpoint", string(kind)),
		zap.String("url", rawURL),
		zap.String("kind", string(scraper.KindOf(err))),
		zap.Error(err),
	}
	var se *scraper.Error
	if errors.As(err, &se) && se.Stage != "" {
		fields = append(fields, zap.String("stage", se.Stage))
	}
	s.logger.Error("scrape failed", fields...)
}

func cloneQuery(q url.Values) map[string][]string {
	out := make(map[string][]string, len(q))
	maps.Copy(out, q)
	return out
}
