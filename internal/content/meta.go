package content

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/scrapper/internal/scraper"
)

// PageInfo is metadata read from a full page document.
type PageInfo struct {
	Meta scraper.Meta
	Lang string
	Dir  string
}

// ParsePage reads social meta tags and the document language from full page HTML.
func ParsePage(page string) (PageInfo, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return PageInfo{}, fmt.Errorf("parse page: %w", err)
	}
	root := doc.Find("html").First()
	lang, _ := root.Attr("lang")
	dir, _ := root.Attr("dir")
	return PageInfo{
		Meta: socialMeta(doc),
		Lang: strings.TrimSpace(lang),
		Dir:  strings.TrimSpace(dir),
	}, nil
}

// SocialMeta returns Open Graph and Twitter card tags grouped by protocol.
// Groups without any tag are omitted.
func SocialMeta(page string) scraper.Meta {
	info, err := ParsePage(page)
	if err != nil {
		return scraper.Meta{}
	}
	return info.Meta
}

func socialMeta(doc *goquery.Document) scraper.Meta {
	og := map[string]string{}
	twitter := map[string]string{}
	doc.Find("meta").Each(func(_ int, el *goquery.Selection) {
		content, ok := el.Attr("content")
		if !ok {
			return
		}
		if prop, ok := el.Attr("property"); ok {
			if key, found := strings.CutPrefix(prop, "og:"); found && key != "" {
				og[key] = content
			}
		}
		if name, ok := el.Attr("name"); ok {
			if key, found := strings.CutPrefix(name, "twitter:"); found && key != "" {
				twitter[key] = content
			}
		}
	})

	meta := scraper.Meta{}
	if len(og) > 0 {
		meta["og"] = og
	}
	if len(twitter) > 0 {
		meta["twitter"] = twitter
	}
	return meta
}
