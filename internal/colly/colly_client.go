package colly

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"siteguard/internal/config"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"
)

var ErrNoResponse = errors.New("page fetch returned no response")

// Page is a fetched document.
type Page struct {
	URL         *url.URL
	StatusCode  int
	ContentType string
	Body        []byte
}

// NewCollector returns a synchronous collector configured from cfg.
func NewCollector(ctx context.Context, cfg config.CollyConfig) *colly.Collector {
	c := colly.NewCollector(
		colly.MaxDepth(cfg.MaxRedirects),
		colly.MaxBodySize(cfg.MaxSize),
		colly.IgnoreRobotsTxt(),
		colly.AllowURLRevisit(),
		colly.UserAgent(cfg.UserAgent),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(cfg.TimeOut)
	return c
}

// FetchPage downloads rawURL and returns the final response after redirects.
func FetchPage(ctx context.Context, cfg config.CollyConfig, rawURL string) (*Page, error) {
	c := NewCollector(ctx, cfg)

	var (
		page     *Page
		fetchErr error
	)
	c.OnResponse(func(r *colly.Response) {
		page = &Page{
			URL:         r.Request.URL,
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        r.Body,
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("fetch %s: status %d: %w", rawURL, r.StatusCode, err)
	})

	if err := c.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if page == nil {
		return nil, ErrNoResponse
	}

	log.Debug().Str("url", page.URL.String()).Int("status", page.StatusCode).Int("bytes", len(page.Body)).Msg("Page fetched")
	return page, nil
}
