// Package params turns request query strings into immutable option structs.
// Every field is validated here so that no browser work starts for a malformed request.
package params

import (
	"time"

	"github.com/chromedp/chromedp/device"
)

// WaitUntil selects the event that marks navigation as complete.
type WaitUntil string

// Navigation completion conditions.
const (
	WaitLoad             WaitUntil = "load"
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitNetworkIdle      WaitUntil = "networkidle"
	WaitCommit           WaitUntil = "commit"
)

// Common holds scraper settings shared by all endpoints.
type Common struct {
	Cache              bool
	FullContent        bool
	Stealth            bool
	Screenshot         bool
	UserScripts        []string
	UserScriptsTimeout time.Duration
}

// Credentials is a username/password pair for HTTP or proxy authentication.
type Credentials struct {
	Username string
	Password string
}

// Browser holds the per-request browser session configuration.
type Browser struct {
	Incognito         bool
	Timeout           time.Duration
	WaitUntil         WaitUntil
	Sleep             time.Duration
	Resource          []string
	ViewportWidth     int64
	ViewportHeight    int64
	ScreenWidth       int64
	ScreenHeight      int64
	ScrollDown        int64
	IgnoreHTTPSErrors bool
	UserAgent         string
	Locale            string
	Timezone          string
	HTTPCredentials   *Credentials
	ExtraHTTPHeaders  map[string]string
	Device            *device.Info
}

// Proxy holds optional proxy settings.
type Proxy struct {
	Server   string
	Bypass   string
	Username string
	Password string
}

// Credentials returns the proxy credentials, or nil when none were given.
func (p Proxy) Credentials() *Credentials {
	if p.Username == "" && p.Password == "" {
		return nil
	}
	return &Credentials{Username: p.Username, Password: p.Password}
}

// Readability tunes the article DOM-analysis step.
type Readability struct {
	MaxElemsToParse int
	NbTopCandidates int
	CharThreshold   int
}

// LinkParser tunes link group approval.
type LinkParser struct {
	TextLenThreshold int
	WordsThreshold   int
}

// Request is the validated request shared by every endpoint.
type Request struct {
	URL     string
	Common  Common
	Browser Browser
	Proxy   Proxy
}

// ArticleRequest is a validated article extraction request.
type ArticleRequest struct {
	Request
	Readability Readability
}

// LinksRequest is a validated link extraction request.
type LinksRequest struct {
	Request
	LinkParser LinkParser
}

// Defaults applied when a query parameter is absent.
const (
	DefaultTimeout          = 60 * time.Second
	DefaultViewportWidth    = 414
	DefaultViewportHeight   = 896
	DefaultScreenWidth      = 828
	DefaultScreenHeight     = 1792
	DefaultNbTopCandidates  = 5
	DefaultCharThreshold    = 500
	DefaultTextLenThreshold = 40
	DefaultWordsThreshold   = 3
)

// ResourceTypes lists the accepted values of the resource whitelist.
var ResourceTypes = []string{
	"document", "stylesheet", "image", "media", "font", "script", "texttrack",
	"xhr", "fetch", "eventsource", "websocket", "manifest", "other",
}
