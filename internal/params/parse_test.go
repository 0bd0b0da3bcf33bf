package params

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrapper/internal/scraper"
)

type scriptSet map[string]bool

func (s scriptSet) HasUserScript(name string) bool { return s[name] }

func query(pairs ...string) url.Values {
	q := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		q.Add(pairs[i], pairs[i+1])
	}
	return q
}

func TestParseArticleDefaults(t *testing.T) {
	t.Parallel()

	p := NewParser(scriptSet{})
	req, err := p.ParseArticle(query("url", "https://example.com/a"))
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/a", req.URL)
	assert.True(t, req.Common.Cache)
	assert.False(t, req.Common.FullContent)
	assert.False(t, req.Common.Screenshot)
	assert.True(t, req.Browser.Incognito)
	assert.Equal(t, 60*time.Second, req.Browser.Timeout)
	assert.Equal(t, WaitDOMContentLoaded, req.Browser.WaitUntil)
	assert.Equal(t, int64(414), req.Browser.ViewportWidth)
	assert.Equal(t, int64(896), req.Browser.ViewportHeight)
	assert.Equal(t, int64(828), req.Browser.ScreenWidth)
	assert.Equal(t, int64(1792), req.Browser.ScreenHeight)
	assert.True(t, req.Browser.IgnoreHTTPSErrors)
	assert.Nil(t, req.Browser.Device)
	assert.Nil(t, req.Proxy.Credentials())
	assert.Equal(t, Readability{MaxElemsToParse: 0, NbTopCandidates: 5, CharThreshold: 500}, req.Readability)
}

func TestParseLinksThresholds(t *testing.T) {
	t.Parallel()

	p := NewParser(nil)
	req, err := p.ParseLinks(query("url", "http://example.com", "text-len-threshold", "10", "words-threshold", "0"))
	require.NoError(t, err)
	assert.Equal(t, LinkParser{TextLenThreshold: 10, WordsThreshold: 0}, req.LinkParser)

	def, err := p.ParseLinks(query("url", "http://example.com"))
	require.NoError(t, err)
	assert.Equal(t, LinkParser{TextLenThreshold: 40, WordsThreshold: 3}, def.LinkParser)
}

func TestParseBrowserOptions(t *testing.T) {
	t.Parallel()

	q := query(
		"url", "https://example.com",
		"incognito", "no",
		"timeout", "1500",
		"wait-until", "networkidle",
		"sleep", "250",
		"resource", "document, Script",
		"scroll-down", "500",
		"http-credentials", "user:p%40ss",
		"extra-http-headers", "X-One: 1",
		"extra-http-headers", "x-two: a b",
		"device", "iphone x",
		"proxy-server", "http://proxy:3128",
		"proxy-username", "bob",
		"stealth", "1",
	)
	req, err := NewParser(nil).ParsePage(q)
	require.NoError(t, err)

	assert.False(t, req.Browser.Incognito)
	assert.Equal(t, 1500*time.Millisecond, req.Browser.Timeout)
	assert.Equal(t, WaitNetworkIdle, req.Browser.WaitUntil)
	assert.Equal(t, 250*time.Millisecond, req.Browser.Sleep)
	assert.Equal(t, []string{"document", "script"}, req.Browser.Resource)
	assert.Equal(t, int64(500), req.Browser.ScrollDown)
	require.NotNil(t, req.Browser.HTTPCredentials)
	assert.Equal(t, Credentials{Username: "user", Password: "p@ss"}, *req.Browser.HTTPCredentials)
	assert.Equal(t, map[string]string{"X-One": "1", "X-Two": "a b"}, req.Browser.ExtraHTTPHeaders)
	require.NotNil(t, req.Browser.Device)
	assert.Equal(t, "iPhone X", req.Browser.Device.Name)
	assert.True(t, req.Common.Stealth)
	assert.Equal(t, &Credentials{Username: "bob"}, req.Proxy.Credentials())
}

func TestParseValidationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		q     url.Values
		field string
	}{
		{name: "missing url", q: query(), field: "url"},
		{name: "bad scheme", q: query("url", "ftp://example.com"), field: "url"},
		{name: "no host", q: query("url", "https://"), field: "url"},
		{name: "negative timeout", q: query("url", "https://e.com", "timeout", "-1"), field: "timeout"},
		{name: "not an int", q: query("url", "https://e.com", "sleep", "soon"), field: "sleep"},
		{name: "bad bool", q: query("url", "https://e.com", "cache", "maybe"), field: "cache"},
		{name: "bad wait", q: query("url", "https://e.com", "wait-until", "idle"), field: "wait-until"},
		{name: "bad resource", q: query("url", "https://e.com", "resource", "images"), field: "resource"},
		{name: "zero viewport", q: query("url", "https://e.com", "viewport-width", "0"), field: "viewport-width"},
		{name: "bad header", q: query("url", "https://e.com", "extra-http-headers", "no colon"), field: "extra-http-headers"},
		{name: "unknown device", q: query("url", "https://e.com", "device", "Nokia 3310"), field: "device"},
		{name: "unknown script", q: query("url", "https://e.com", "user-scripts", "ok.js,missing.js"), field: "user-scripts"},
		{name: "negative threshold", q: query("url", "https://e.com", "char-threshold", "-5"), field: "char-threshold"},
	}

	p := NewParser(scriptSet{"ok.js": true})
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := p.ParseArticle(tc.q)
			require.Error(t, err)
			var serr *scraper.Error
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, scraper.KindValidation, serr.Kind)
			assert.Equal(t, tc.field, serr.Field)
		})
	}
}

func TestParseUserScripts(t *testing.T) {
	t.Parallel()

	p := NewParser(scriptSet{"a.js": true, "b.js": true})
	req, err := p.ParsePage(query("url", "https://e.com", "user-scripts", "a.js, b.js", "user-scripts-timeout", "2000"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.js", "b.js"}, req.Common.UserScripts)
	assert.Equal(t, 2*time.Second, req.Common.UserScriptsTimeout)
}

func TestLookupDevice(t *testing.T) {
	t.Parallel()

	info, ok := LookupDevice("Pixel 2")
	require.True(t, ok)
	assert.True(t, info.Mobile)
	assert.Contains(t, DeviceNames(), "Pixel 2")

	_, ok = LookupDevice("toaster")
	assert.False(t, ok)
}
