package content

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarity(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "a", "kitten", "héllo wörld", strings.Repeat("ab", 50)} {
		assert.InDelta(t, 1.0, Similarity(s, s), 1e-9, "identity for %q", s)
	}
	assert.InDelta(t, 0.0, Similarity("abc", "xyz"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("ab", "cd"), 1e-9)
	assert.InDelta(t, 1-3.0/7.0, Similarity("kitten", "sitting"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("", "abc"), 1e-9)
	assert.InDelta(t, Similarity("flaw", "lawn"), Similarity("lawn", "flaw"), 1e-9)
}

func TestRefineScenario(t *testing.T) {
	t.Parallel()

	out, err := Refine("Real content here",
		`<div>ok</div><p>x</p><article><p>Real content here with enough words.</p></article>`)
	require.NoError(t, err)
	assert.Equal(t, `<article><h1>Real content here</h1><p>Real content here with enough words.</p></article>`, out)
}

func TestRefineDropsJunkBlocks(t *testing.T) {
	t.Parallel()

	out, err := Refine("Story", `<p>Share</p><div> 12 345 </div><p>two words</p><div><span>1</span></div>`)
	require.NoError(t, err)
	assert.NotContains(t, out, "Share")
	assert.NotContains(t, out, "345")
	assert.Contains(t, out, "<p>two words</p>")
}

func TestRefineKeepsStructuralBlocks(t *testing.T) {
	t.Parallel()

	blocks := []string{
		`<p><img src="a.png"/></p>`,
		`<div><h4>x</h4></div>`,
		`<div><ul><li>1</li></ul></div>`,
		`<div><table><tbody><tr><td>1</td></tr></tbody></table></div>`,
		`<div><form></form></div>`,
		`<p><code>x</code></p>`,
		`<div><pre>1</pre></div>`,
		`<div><video></video></div>`,
	}
	for _, block := range blocks {
		out, err := Refine("Unrelated", block)
		require.NoError(t, err)
		assert.Contains(t, out, block, "block was removed")
	}
}

func TestRefineAdoptsMatchingHeading(t *testing.T) {
	t.Parallel()

	raw := `<article><h2>The Quick, Brown Fox!</h2><p>It jumped over the lazy dog today.</p></article>`
	out, err := Refine("the quick brown fox - Daily News", raw)
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Find("h2").Length(), "heading moved to the title")
	assert.Equal(t, "The Quick, Brown Fox!", doc.Find("article > h1").Text())
}

func TestRefineIgnoresDistantHeading(t *testing.T) {
	t.Parallel()

	filler := `<p>` + strings.Repeat("word ", 80) + `</p>`
	raw := `<article>` + filler + `<h1>Headline</h1><p>More text after it.</p></article>`
	out, err := Refine("Headline", raw)
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Find("h1").Length(), "heading past the text limit stays in place")
}

func TestRefineSingleArticleWithTitleFirst(t *testing.T) {
	t.Parallel()

	inputs := []string{
		``,
		`<p>Plain paragraph with many words inside.</p>`,
		`<section><p>Nested content block with words.</p></section><article><p>Second block of words.</p></article>`,
		`<article><p>Existing article with several words.</p></article>`,
		`text node only`,
	}
	for _, raw := range inputs {
		out, err := Refine("A <b>title</b>", raw)
		require.NoError(t, err)

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
		require.NoError(t, err)
		top := doc.Find("body").Children()
		require.Equal(t, 1, top.Length(), "input %q -> %q", raw, out)
		require.True(t, top.Is("article"))
		first := top.Children().First()
		assert.True(t, first.Is("h1"))
		assert.Equal(t, "A <b>title</b>", first.Text(), "title is escaped text")
	}
}

func TestParsePageMeta(t *testing.T) {
	t.Parallel()

	page := `<html lang="en" dir="ltr"><head>
<meta property="og:title" content="OG Title">
<meta property="og:" content="ignored">
<meta property="og:image" content="https://example.com/a.png">
<meta name="twitter:card" content="summary">
<meta name="twitter:site">
<meta name="description" content="not social">
</head><body></body></html>`

	info, err := ParsePage(page)
	require.NoError(t, err)
	assert.Equal(t, "en", info.Lang)
	assert.Equal(t, "ltr", info.Dir)
	assert.Equal(t, map[string]string{"title": "OG Title", "image": "https://example.com/a.png"}, info.Meta["og"])
	assert.Equal(t, map[string]string{"card": "summary"}, info.Meta["twitter"])

	assert.Empty(t, SocialMeta(`<html><head><title>x</title></head></html>`))
}
