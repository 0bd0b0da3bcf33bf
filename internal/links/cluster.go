// Package links selects "story" links from the raw link candidates of a page.
//
// Candidates are grouped by their rendering signature (CSS selector, color, font and
// the parent's padding, margin and background). A group is kept or dropped as a
// whole depending on the median text length and word count of its members.
package links

import (
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/montanaflynn/stats"
	"golang.org/x/net/publicsuffix"

	"github.com/JakeFAU/scrapper/internal/scraper"
)

// acceptableTextLen stops the longest-line scan once a line is this long.
const acceptableTextLen = 40

// Thresholds are the strict lower bounds a group's medians must exceed.
type Thresholds struct {
	TextLen int
	Words   int
}

// Group is a set of candidates sharing one rendering signature.
type Group struct {
	Key         string
	Links       []scraper.LinkRecord
	MedianLen   float64
	MedianWords float64
	Approved    bool
}

// Extract filters candidates to the page's registrable domain, approves groups by
// threshold and returns the survivors in document order.
func Extract(pageURL string, candidates []scraper.LinkRecord, th Thresholds) []scraper.Link {
	domain := RegistrableDomain(pageURL)
	kept := make([]scraper.LinkRecord, 0, len(candidates))
	for _, c := range candidates {
		if allowedDomain(c.Href, domain) {
			kept = append(kept, c)
		}
	}

	var approved []scraper.LinkRecord
	for _, g := range GroupLinks(kept, th) {
		if g.Approved {
			approved = append(approved, g.Links...)
		}
	}
	sort.SliceStable(approved, func(i, j int) bool { return approved[i].Pos < approved[j].Pos })

	out := make([]scraper.Link, 0, len(approved))
	for _, l := range approved {
		out = append(out, scraper.Link{URL: l.URL, Text: LongestLine(l.Text)})
	}
	return out
}

// GroupLinks partitions links by signature, in order of first appearance, and
// computes each group's statistics.
func GroupLinks(links []scraper.LinkRecord, th Thresholds) []Group {
	index := map[string]int{}
	var groups []Group
	for _, l := range links {
		key := Signature(l)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Links = append(groups[i].Links, l)
	}
	for i := range groups {
		groups[i].MedianLen, groups[i].MedianWords = medians(groups[i].Links)
		groups[i].Approved = groups[i].MedianLen > float64(th.TextLen) && groups[i].MedianWords > float64(th.Words)
	}
	return groups
}

// Signature joins the six rendering fields that identify a link template.
func Signature(l scraper.LinkRecord) string {
	return strings.Join([]string{l.CSSSel, l.Color, l.Font, l.ParentPadding, l.ParentMargin, l.ParentBgColor}, "|")
}

func medians(group []scraper.LinkRecord) (float64, float64) {
	lengths := make(stats.Float64Data, 0, len(group))
	words := make(stats.Float64Data, 0, len(group))
	for _, l := range group {
		lengths = append(lengths, float64(utf8.RuneCountInString(l.Text)))
		words = append(words, float64(len(strings.Fields(l.Text))))
	}
	// Median only fails on empty input, and groups are never empty.
	ml, _ := stats.Median(lengths)
	mw, _ := stats.Median(words)
	return ml, mw
}

// LongestLine returns the longest line of text, stopping early at the first line
// longer than 40 characters.
func LongestLine(text string) string {
	best := ""
	for _, line := range splitLines(text) {
		if utf8.RuneCountInString(line) > utf8.RuneCountInString(best) {
			best = line
		}
		if utf8.RuneCountInString(best) > acceptableTextLen {
			break
		}
	}
	return best
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
}

// RegistrableDomain returns the eTLD+1 of a URL's host, or the bare host when it
// has none (IP addresses, localhost).
func RegistrableDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

// allowedDomain keeps relative links and absolute links on the same registrable domain.
func allowedDomain(href, domain string) bool {
	if !strings.HasPrefix(href, "http") {
		return true
	}
	return RegistrableDomain(href) == domain
}
