package params

import (
	"bufio"
	"net/textproto"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/scrapper/internal/scraper"
)

// ScriptLookup reports whether a named user script exists in the script directory.
type ScriptLookup interface {
	HasUserScript(name string) bool
}

// Parser validates query strings into request structs.
type Parser struct {
	scripts ScriptLookup
}

// NewParser returns a Parser that checks user script names against scripts.
func NewParser(scripts ScriptLookup) *Parser {
	return &Parser{scripts: scripts}
}

// ParseArticle validates an article request.
func (p *Parser) ParseArticle(q url.Values) (ArticleRequest, error) {
	req, err := p.parseRequest(q)
	if err != nil {
		return ArticleRequest{}, err
	}
	rp, err := parseReadability(q)
	if err != nil {
		return ArticleRequest{}, err
	}
	return ArticleRequest{Request: req, Readability: rp}, nil
}

// ParseLinks validates a links request.
func (p *Parser) ParseLinks(q url.Values) (LinksRequest, error) {
	req, err := p.parseRequest(q)
	if err != nil {
		return LinksRequest{}, err
	}
	lp, err := parseLinkParser(q)
	if err != nil {
		return LinksRequest{}, err
	}
	return LinksRequest{Request: req, LinkParser: lp}, nil
}

// ParsePage validates a fetch-only page request.
func (p *Parser) ParsePage(q url.Values) (Request, error) {
	return p.parseRequest(q)
}

func (p *Parser) parseRequest(q url.Values) (Request, error) {
	target, err := parseURL(q)
	if err != nil {
		return Request{}, err
	}
	common, err := p.parseCommon(q)
	if err != nil {
		return Request{}, err
	}
	browser, err := parseBrowser(q)
	if err != nil {
		return Request{}, err
	}
	return Request{
		URL:     target,
		Common:  common,
		Browser: browser,
		Proxy:   parseProxy(q),
	}, nil
}

func parseURL(q url.Values) (string, error) {
	raw := strings.TrimSpace(q.Get("url"))
	if raw == "" {
		return "", scraper.ValidationError("url", "Field required", nil)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", scraper.ValidationError("url", "URL is invalid", raw)
	}
	return raw, nil
}

func (p *Parser) parseCommon(q url.Values) (Common, error) {
	var c Common
	var err error
	if c.Cache, err = boolParam(q, "cache", true); err != nil {
		return Common{}, err
	}
	if c.FullContent, err = boolParam(q, "full-content", false); err != nil {
		return Common{}, err
	}
	if c.Stealth, err = boolParam(q, "stealth", false); err != nil {
		return Common{}, err
	}
	if c.Screenshot, err = boolParam(q, "screenshot", false); err != nil {
		return Common{}, err
	}
	if c.UserScriptsTimeout, err = millisParam(q, "user-scripts-timeout", 0); err != nil {
		return Common{}, err
	}
	for _, name := range splitList(q.Get("user-scripts")) {
		if p.scripts == nil || !p.scripts.HasUserScript(name) {
			return Common{}, scraper.ValidationError("user-scripts", "User script not found", name)
		}
		c.UserScripts = append(c.UserScripts, name)
	}
	return c, nil
}

//nolint:gocognit // one branch per query field
func parseBrowser(q url.Values) (Browser, error) {
	b := Browser{
		WaitUntil: WaitDOMContentLoaded,
	}
	var err error
	if b.Incognito, err = boolParam(q, "incognito", true); err != nil {
		return Browser{}, err
	}
	if b.Timeout, err = millisParam(q, "timeout", DefaultTimeout); err != nil {
		return Browser{}, err
	}
	if raw := q.Get("wait-until"); raw != "" {
		w := WaitUntil(strings.ToLower(raw))
		if !slices.Contains([]WaitUntil{WaitLoad, WaitDOMContentLoaded, WaitNetworkIdle, WaitCommit}, w) {
			return Browser{}, scraper.ValidationError(
				"wait-until", "Input should be 'load', 'domcontentloaded', 'networkidle' or 'commit'", raw)
		}
		b.WaitUntil = w
	}
	if b.Sleep, err = millisParam(q, "sleep", 0); err != nil {
		return Browser{}, err
	}
	for _, r := range splitList(q.Get("resource")) {
		r = strings.ToLower(r)
		if !slices.Contains(ResourceTypes, r) {
			return Browser{}, scraper.ValidationError("resource", "Unknown resource type", r)
		}
		b.Resource = append(b.Resource, r)
	}
	if b.ViewportWidth, err = intParam(q, "viewport-width", DefaultViewportWidth, 1); err != nil {
		return Browser{}, err
	}
	if b.ViewportHeight, err = intParam(q, "viewport-height", DefaultViewportHeight, 1); err != nil {
		return Browser{}, err
	}
	if b.ScreenWidth, err = intParam(q, "screen-width", DefaultScreenWidth, 1); err != nil {
		return Browser{}, err
	}
	if b.ScreenHeight, err = intParam(q, "screen-height", DefaultScreenHeight, 1); err != nil {
		return Browser{}, err
	}
	if b.ScrollDown, err = intParam(q, "scroll-down", 0, 0); err != nil {
		return Browser{}, err
	}
	if b.IgnoreHTTPSErrors, err = boolParam(q, "ignore-https-errors", true); err != nil {
		return Browser{}, err
	}
	b.UserAgent = strings.TrimSpace(q.Get("user-agent"))
	b.Locale = strings.TrimSpace(q.Get("locale"))
	b.Timezone = strings.TrimSpace(q.Get("timezone"))

	if raw := q.Get("http-credentials"); raw != "" {
		creds, cerr := parseCredentials(raw)
		if cerr != nil {
			return Browser{}, cerr
		}
		b.HTTPCredentials = creds
	}
	if lines := q["extra-http-headers"]; len(lines) > 0 {
		headers, herr := parseHeaders(lines)
		if herr != nil {
			return Browser{}, herr
		}
		b.ExtraHTTPHeaders = headers
	}
	if name := q.Get("device"); name != "" {
		info, ok := LookupDevice(name)
		if !ok {
			return Browser{}, scraper.ValidationError("device", "Device not found", name)
		}
		b.Device = &info
	}
	return b, nil
}

func parseProxy(q url.Values) Proxy {
	return Proxy{
		Server:   strings.TrimSpace(q.Get("proxy-server")),
		Bypass:   strings.TrimSpace(q.Get("proxy-bypass")),
		Username: q.Get("proxy-username"),
		Password: q.Get("proxy-password"),
	}
}

func parseReadability(q url.Values) (Readability, error) {
	maxElems, err := intParam(q, "max-elems-to-parse", 0, 0)
	if err != nil {
		return Readability{}, err
	}
	top, err := intParam(q, "nb-top-candidates", DefaultNbTopCandidates, 0)
	if err != nil {
		return Readability{}, err
	}
	chars, err := intParam(q, "char-threshold", DefaultCharThreshold, 0)
	if err != nil {
		return Readability{}, err
	}
	return Readability{
		MaxElemsToParse: int(maxElems),
		NbTopCandidates: int(top),
		CharThreshold:   int(chars),
	}, nil
}

func parseLinkParser(q url.Values) (LinkParser, error) {
	textLen, err := intParam(q, "text-len-threshold", DefaultTextLenThreshold, 0)
	if err != nil {
		return LinkParser{}, err
	}
	words, err := intParam(q, "words-threshold", DefaultWordsThreshold, 0)
	if err != nil {
		return LinkParser{}, err
	}
	return LinkParser{TextLenThreshold: int(textLen), WordsThreshold: int(words)}, nil
}

func parseCredentials(raw string) (*Credentials, error) {
	u, err := url.Parse("http://" + raw + "@localhost")
	if err != nil || u.User == nil {
		return nil, scraper.ValidationError("http-credentials", "Invalid HTTP credentials", raw)
	}
	password, _ := u.User.Password()
	return &Credentials{Username: u.User.Username(), Password: password}, nil
}

func parseHeaders(lines []string) (map[string]string, error) {
	block := strings.Join(lines, "\r\n") + "\r\n\r\n"
	reader := textproto.NewReader(bufio.NewReader(strings.NewReader(block)))
	mime, err := reader.ReadMIMEHeader()
	if err != nil || len(mime) == 0 {
		return nil, scraper.ValidationError("extra-http-headers", "Invalid HTTP header", lines)
	}
	headers := make(map[string]string, len(mime))
	for k, values := range mime {
		headers[k] = strings.Join(values, ", ")
	}
	return headers, nil
}

func boolParam(q url.Values, name string, def bool) (bool, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on", "y", "t":
		return true, nil
	case "0", "false", "no", "off", "n", "f":
		return false, nil
	}
	return false, scraper.ValidationError(name, "Input should be a valid boolean", raw)
}

func intParam(q url.Values, name string, def, minValue int64) (int64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, scraper.ValidationError(name, "Input should be a valid integer", raw)
	}
	if v < minValue {
		return 0, scraper.ValidationError(name, "Input should be greater than or equal to "+strconv.FormatInt(minValue, 10), raw)
	}
	return v, nil
}

func millisParam(q url.Values, name string, def time.Duration) (time.Duration, error) {
	ms, err := intParam(q, name, def.Milliseconds(), 0)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
