package scrape

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// nonContentSelectors lists elements removed before text extraction.
const nonContentSelectors = "script, style, noscript, header, footer, meta, link"

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// Clean parses HTML and returns the page title and its visible text. Text
// nodes are trimmed and joined with single spaces, then whitespace runs are
// collapsed.
func Clean(html []byte) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", "", eris.Wrap(err, "scrape: parse html")
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find(nonContentSelectors).Remove()

	var parts []string
	collectText(doc.Selection, &parts)
	text = multiSpaceRe.ReplaceAllString(strings.Join(parts, " "), " ")
	return title, text, nil
}

func collectText(s *goquery.Selection, parts *[]string) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		switch goquery.NodeName(c) {
		case "#text":
			if t := strings.TrimSpace(c.Text()); t != "" {
				*parts = append(*parts, t)
			}
		case "#comment":
		default:
			collectText(c, parts)
		}
	})
}
