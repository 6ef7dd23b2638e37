package fetch

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxPageSize bounds how much of a landing page is parsed.
const maxPageSize = 2 << 20

type linkSelector struct {
	selector string
	attr     string
}

var videoLinks = []linkSelector{
	{`meta[property="og:video:secure_url"]`, "content"},
	{`meta[property="og:video:url"]`, "content"},
	{`meta[property="og:video"]`, "content"},
	{`video[src]`, "src"},
	{`video source[src]`, "src"},
	{`source[src]`, "src"},
}

var audioLinks = []linkSelector{
	{`meta[property="og:audio:secure_url"]`, "content"},
	{`meta[property="og:audio:url"]`, "content"},
	{`meta[property="og:audio"]`, "content"},
	{`audio[src]`, "src"},
	{`audio source[src]`, "src"},
	{`source[src]`, "src"},
}

// findMediaLink parses an HTML page and returns the absolute URL of the
// first media reference matching kind.
func findMediaLink(page io.Reader, pageURL string, kind Kind) (string, error) {
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(page, maxPageSize))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	selectors := videoLinks
	if kind == KindAudio {
		selectors = audioLinks
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	for _, ls := range selectors {
		v, ok := doc.Find(ls.selector).First().Attr(ls.attr)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			continue
		}
		ref, err := url.Parse(v)
		if err != nil {
			continue
		}
		link := base.ResolveReference(ref)
		if link.Scheme != "http" && link.Scheme != "https" {
			continue
		}
		return link.String(), nil
	}

	return "", ErrNoMediaLink
}
