// Package scraper defines the result types and errors shared across the scrapper subsystems.
package scraper

// ResultKind names the endpoint family that produced a cached result.
type ResultKind string

// Result kinds persisted alongside cache entries.
const (
	KindArticle ResultKind = "article"
	KindLinks   ResultKind = "links"
	KindPage    ResultKind = "page"
)

// Meta holds social meta tags grouped by protocol ("og", "twitter").
type Meta map[string]map[string]string

// ArticleResult is returned by the article endpoint and persisted in the cache.
type ArticleResult struct {
	ID            string              `json:"id"`
	URL           string              `json:"url"`
	Domain        string              `json:"domain"`
	Date          string              `json:"date"`
	Query         map[string][]string `json:"query"`
	Meta          Meta                `json:"meta"`
	ResultURI     string              `json:"resultUri"`
	Title         *string             `json:"title,omitempty"`
	Byline        *string             `json:"byline,omitempty"`
	Content       *string             `json:"content,omitempty"`
	TextContent   *string             `json:"textContent,omitempty"`
	Excerpt       *string             `json:"excerpt,omitempty"`
	Lang          *string             `json:"lang,omitempty"`
	Dir           *string             `json:"dir,omitempty"`
	Length        *int                `json:"length,omitempty"`
	SiteName      *string             `json:"siteName,omitempty"`
	PublishedTime *string             `json:"publishedTime,omitempty"`
	FullContent   *string             `json:"fullContent,omitempty"`
	ScreenshotURI *string             `json:"screenshotUri,omitempty"`
}

// LinkRecord is a raw link candidate reported by the in-page link script.
type LinkRecord struct {
	Pos           int    `json:"pos"`
	Href          string `json:"href"`
	URL           string `json:"url"`
	Text          string `json:"text"`
	CSSSel        string `json:"cssSel"`
	Color         string `json:"color"`
	Font          string `json:"font"`
	ParentPadding string `json:"parentPadding"`
	ParentMargin  string `json:"parentMargin"`
	ParentBgColor string `json:"parentBgColor"`
}

// Link is a story link in the final links result.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// LinksResult is returned by the links endpoint and persisted in the cache.
type LinksResult struct {
	ID            string              `json:"id"`
	URL           string              `json:"url"`
	Domain        string              `json:"domain"`
	Date          string              `json:"date"`
	Query         map[string][]string `json:"query"`
	Meta          Meta                `json:"meta"`
	ResultURI     string              `json:"resultUri"`
	Title         *string             `json:"title,omitempty"`
	Links         []Link              `json:"links"`
	FullContent   *string             `json:"fullContent,omitempty"`
	ScreenshotURI *string             `json:"screenshotUri,omitempty"`
}

// PageResult is returned by the fetch-only page endpoint.
type PageResult struct {
	ID            string              `json:"id"`
	URL           string              `json:"url"`
	Domain        string              `json:"domain"`
	Date          string              `json:"date"`
	Query         map[string][]string `json:"query"`
	Meta          Meta                `json:"meta"`
	ResultURI     string              `json:"resultUri"`
	Title         *string             `json:"title,omitempty"`
	FullContent   *string             `json:"fullContent,omitempty"`
	ScreenshotURI *string             `json:"screenshotUri,omitempty"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
