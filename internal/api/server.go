package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapper/internal/clock/system"
	"github.com/JakeFAU/scrapper/internal/metrics"
	"github.com/JakeFAU/scrapper/internal/params"
	"github.com/JakeFAU/scrapper/internal/service"
)

// Scraper runs scrape requests and reads cached results.
type Scraper interface {
	Article(ctx context.Context, origin service.Origin, req params.ArticleRequest) (*service.Response, error)
	Links(ctx context.Context, origin service.Origin, req params.LinksRequest) (*service.Response, error)
	Page(ctx context.Context, origin service.Origin, req params.Request) (*service.Response, error)
	Result(ctx context.Context, id string) ([]byte, error)
	Screenshot(ctx context.Context, id string) ([]byte, string, error)
}

// BrowserInfo reports the state of the shared browser.
type BrowserInfo interface {
	Version(ctx context.Context) (string, error)
	Contexts() int
	IsConnected() bool
}

// Options wires a Server. Browser and Users are optional.
type Options struct {
	Scraper Scraper
	Parser  *params.Parser
	Browser BrowserInfo
	// Limit is the session pool size reported by /ping.
	Limit    int
	Revision string
	// Users enables basic authentication when non-nil.
	Users *Htpasswd
	// RequestTimeout bounds every request; zero disables it.
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Server wires HTTP handlers to the scrape service.
type Server struct {
	router  chi.Router
	scraper Scraper
	parser  *params.Parser
	browser BrowserInfo
	limit   int
	rev     string
	logger  *zap.Logger
	now     func() time.Time
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := opts.Parser
	if parser == nil {
		parser = params.NewParser(nil)
	}
	s := &Server{
		scraper: opts.Scraper,
		parser:  parser,
		browser: opts.Browser,
		limit:   opts.Limit,
		rev:     opts.Revision,
		logger:  logger,
		now:     system.New().Now,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	if opts.RequestTimeout > 0 {
		r.Use(timeoutMiddleware(opts.RequestTimeout))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		if opts.Users != nil {
			r.Use(basicAuthMiddleware(opts.Users))
		}
		r.Get("/", s.index)
		r.Get("/ping", s.ping)
		r.Route("/api", func(r chi.Router) {
			r.Get("/article", s.article)
			r.Get("/links", s.links)
			r.Get("/page", s.page)
		})
		r.Get("/result/{id}", s.result)
		r.Get("/screenshot/{id}", s.screenshot)
		r.Get("/view/{id}", s.view)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type endpointDoc struct {
	Path    string `json:"path"`
	Summary string `json:"summary"`
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     "scrapper",
		"revision": s.rev,
		"endpoints": []endpointDoc{
			{Path: "/api/article?url=", Summary: "Parse the article from the given URL"},
			{Path: "/api/links?url=", Summary: "Parse news links from the given URL"},
			{Path: "/api/page?url=", Summary: "Fetch any page from the given URL without extraction"},
			{Path: "/result/{id}", Summary: "Cached result as JSON"},
			{Path: "/screenshot/{id}", Summary: "Cached screenshot"},
			{Path: "/view/{id}", Summary: "Cached result rendered as HTML"},
			{Path: "/ping", Summary: "Browser state"},
		},
	})
}

type pingData struct {
	BrowserType    string    `json:"browserType"`
	BrowserVersion string    `json:"browserVersion"`
	Contexts       int       `json:"contexts"`
	Limit          int       `json:"limit"`
	IsConnected    bool      `json:"isConnected"`
	Now            time.Time `json:"now"`
	Revision       string    `json:"revision"`
}

func (s *Server) ping(w http.ResponseWriter, r *http.Request) {
	data := pingData{
		BrowserType: "chromium",
		Limit:       s.limit,
		Now:         s.now(),
		Revision:    s.rev,
	}
	if s.browser != nil {
		version, err := s.browser.Version(r.Context())
		if err != nil {
			s.logger.Warn("browser version unavailable", zap.Error(err))
		}
		data.BrowserVersion = version
		data.Contexts = s.browser.Contexts()
		data.IsConnected = s.browser.IsConnected()
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) article(w http.ResponseWriter, r *http.Request) {
	req, err := s.parser.ParseArticle(r.URL.Query())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	resp, err := s.scraper.Article(r.Context(), origin(r), req)
	s.writeResult(w, resp, err)
}

func (s *Server) links(w http.ResponseWriter, r *http.Request) {
	req, err := s.parser.ParseLinks(r.URL.Query())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	resp, err := s.scraper.Links(r.Context(), origin(r), req)
	s.writeResult(w, resp, err)
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	req, err := s.parser.ParsePage(r.URL.Query())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	resp, err := s.scraper.Page(r.Context(), origin(r), req)
	s.writeResult(w, resp, err)
}

func (s *Server) result(w http.ResponseWriter, r *http.Request) {
	body, err := s.scraper.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func (s *Server) screenshot(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.scraper.Screenshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("write screenshot failed", zap.Error(err))
	}
}

func (s *Server) writeResult(w http.ResponseWriter, resp *service.Response, err error) {
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if resp.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	writeRaw(w, http.StatusOK, resp.Body)
}

// origin describes the inbound request for result URIs and cache keys.
func origin(r *http.Request) service.Origin {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return service.Origin{
		BaseURL: scheme + "://" + r.Host,
		Path:    r.URL.Path,
		Query:   r.URL.Query(),
	}
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}
