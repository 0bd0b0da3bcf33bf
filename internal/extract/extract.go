// Package extract runs the DOM-analysis step on a loaded page: Readability for
// articles and the link collector for link pages.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/JakeFAU/scrapper/internal/browser"
	"github.com/JakeFAU/scrapper/internal/content"
	"github.com/JakeFAU/scrapper/internal/params"
	"github.com/JakeFAU/scrapper/internal/scraper"
	"github.com/JakeFAU/scrapper/internal/scripts"
)

const noArticle = "The page doesn't contain any articles."

// ReadabilitySource supplies the in-page Readability.js, when configured.
type ReadabilitySource interface {
	Readability() (string, bool)
}

// Article is the Readability output before refinement.
type Article struct {
	Title         string `json:"title"`
	Byline        string `json:"byline"`
	Dir           string `json:"dir"`
	Lang          string `json:"lang"`
	Content       string `json:"content"`
	TextContent   string `json:"textContent"`
	Length        int    `json:"length"`
	Excerpt       string `json:"excerpt"`
	SiteName      string `json:"siteName"`
	PublishedTime string `json:"publishedTime"`
}

// Extractor evaluates extraction scripts against pages.
type Extractor struct {
	readability string
}

// New returns an extractor. Without an in-page Readability script, articles are
// parsed from the captured HTML with go-readability.
func New(src ReadabilitySource) *Extractor {
	e := &Extractor{}
	if src != nil {
		e.readability, _ = src.Readability()
	}
	return e
}

// InPage reports whether articles are parsed inside the browser.
func (e *Extractor) InPage() bool {
	return e.readability != ""
}

// InitScripts are the scripts an article page needs before navigation.
func (e *Extractor) InitScripts() []string {
	if !e.InPage() {
		return nil
	}
	return []string{e.readability}
}

// Article removes hidden content from the page and parses the main article.
func (e *Extractor) Article(page browser.Page, pageURL string, opts params.Readability) (*Article, error) {
	if err := page.Evaluate(scripts.Cleanup(), nil); err != nil {
		return nil, scraper.UpstreamError("cleanup", pageURL, err)
	}
	if e.InPage() {
		return e.inPageArticle(page, pageURL, opts)
	}
	html, err := page.Content()
	if err != nil {
		return nil, scraper.UpstreamError("cleanup", pageURL, err)
	}
	return ParseArticle(html, pageURL, opts)
}

func (e *Extractor) inPageArticle(page browser.Page, pageURL string, opts params.Readability) (*Article, error) {
	expr, err := scripts.Article(scripts.ArticleOptions{
		MaxElemsToParse: opts.MaxElemsToParse,
		NbTopCandidates: opts.NbTopCandidates,
		CharThreshold:   opts.CharThreshold,
	})
	if err != nil {
		return nil, scraper.UpstreamError("readability", pageURL, err)
	}
	var raw json.RawMessage
	if err := page.Evaluate(expr, &raw); err != nil {
		return nil, scraper.UpstreamError("readability", pageURL, err)
	}
	if msg, failed := scriptError(raw); failed {
		return nil, scraper.ExtractionError("readability", pageURL, msg)
	}
	var article Article
	if err := json.Unmarshal(raw, &article); err != nil {
		return nil, scraper.UpstreamError("readability", pageURL, fmt.Errorf("decode article: %w", err))
	}
	if strings.TrimSpace(article.Content) == "" || strings.TrimSpace(article.TextContent) == "" {
		return nil, scraper.ExtractionError("readability", pageURL, noArticle)
	}
	return &article, nil
}

// ParseArticle parses html with go-readability.
func ParseArticle(html, pageURL string, opts params.Readability) (*Article, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, scraper.UpstreamError("readability", pageURL, err)
	}
	parser := readability.NewParser()
	parser.MaxElemsToParse = opts.MaxElemsToParse
	if opts.NbTopCandidates > 0 {
		parser.NTopCandidates = opts.NbTopCandidates
	}
	if opts.CharThreshold > 0 {
		parser.CharThresholds = opts.CharThreshold
	}

	parsed, err := parser.Parse(strings.NewReader(html), u)
	if err != nil {
		return nil, scraper.ExtractionError("readability", pageURL, "Readability couldn't parse the page: "+err.Error())
	}
	if strings.TrimSpace(parsed.TextContent) == "" {
		return nil, scraper.ExtractionError("readability", pageURL, noArticle)
	}

	article := &Article{
		Title:       parsed.Title,
		Byline:      parsed.Byline,
		Content:     parsed.Content,
		TextContent: parsed.TextContent,
		Length:      parsed.Length,
		Excerpt:     parsed.Excerpt,
		SiteName:    parsed.SiteName,
	}
	if info, err := content.ParsePage(html); err == nil {
		article.Lang = info.Lang
		article.Dir = info.Dir
	}
	return article, nil
}

// Links runs the link collector and returns the raw candidates.
func (e *Extractor) Links(page browser.Page, pageURL string) ([]scraper.LinkRecord, error) {
	var raw json.RawMessage
	if err := page.Evaluate(scripts.Links(), &raw); err != nil {
		return nil, scraper.UpstreamError("links", pageURL, err)
	}
	return DecodeLinks(raw, pageURL)
}

// DecodeLinks decodes the link collector output, which is either a list of
// records or an {err} object.
func DecodeLinks(raw []byte, pageURL string) ([]scraper.LinkRecord, error) {
	if msg, failed := scriptError(raw); failed {
		return nil, scraper.ExtractionError("links", pageURL, msg)
	}
	var records []scraper.LinkRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, scraper.UpstreamError("links", pageURL, fmt.Errorf("decode links: %w", err))
	}
	return records, nil
}

// scriptError reports the message of an {err} result.
func scriptError(raw []byte) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "script returned no result", true
	}
	if trimmed[0] != '{' {
		return "", false
	}
	var out struct {
		Err *string `json:"err"`
	}
	if err := json.Unmarshal(trimmed, &out); err != nil || out.Err == nil {
		return "", false
	}
	if *out.Err == "" {
		return "script failed", true
	}
	return *out.Err, true
}
