package hider

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

var ErrInvalidSelector = errors.New("invalid CSS selector")

const hiddenStyle = "display: none"

// Document is the DOM query capability the hider needs from a page.
type Document interface {
	Hostname() string
	// Hide hides every element matching selector and returns how many matched.
	Hide(selector string) (int, error)
}

// HTMLDocument is a parsed HTML page.
type HTMLDocument struct {
	doc      *goquery.Document
	hostname string
}

// NewHTMLDocument parses r as the page served from pageURL.
func NewHTMLDocument(r io.Reader, pageURL *url.URL) (*HTMLDocument, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return FromGoquery(doc, pageURL), nil
}

// FromGoquery wraps an already parsed document.
func FromGoquery(doc *goquery.Document, pageURL *url.URL) *HTMLDocument {
	hostname := ""
	if pageURL != nil {
		hostname = strings.ToLower(pageURL.Hostname())
	}
	return &HTMLDocument{doc: doc, hostname: hostname}
}

func (d *HTMLDocument) Hostname() string {
	return d.hostname
}

func (d *HTMLDocument) Hide(selector string) (int, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidSelector, selector, err)
	}

	matched := d.doc.FindMatcher(matcher)
	matched.Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		if strings.Contains(style, hiddenStyle) {
			return
		}

		style = strings.TrimSpace(style)
		if style != "" && !strings.HasSuffix(style, ";") {
			style += ";"
		}
		if style != "" {
			style += " "
		}
		s.SetAttr("style", style+hiddenStyle+" !important;")
	})

	return matched.Length(), nil
}

// HTML renders the document back to markup.
func (d *HTMLDocument) HTML() (string, error) {
	return d.doc.Html()
}
