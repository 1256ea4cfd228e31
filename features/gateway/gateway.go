package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"
	"sync"

	"siteguard/features/hider"
	"siteguard/features/rules"
	"siteguard/internal/collector"
	"siteguard/internal/config"

	"github.com/ory/graceful"
	"github.com/rs/zerolog/log"
)

const (
	HeaderRule   = "X-Siteguard-Rule"
	HeaderHidden = "X-Siteguard-Hidden"
)

var ErrNotProxyRequest = errors.New("gateway only serves absolute-form proxy requests")

// Matcher finds the installed rule that blocks a URL, if any.
type Matcher interface {
	Match(rawURL string) (rules.Rule, bool)
}

// Gateway is a forward HTTP proxy that enforces the installed rule table and
// hides blocked elements in the HTML it relays.
type Gateway struct {
	cfg     config.GatewayConfig
	matcher Matcher
	source  hider.Source
	hider   *hider.Hider
	proxy   *httputil.ReverseProxy
	dialer  net.Dialer
	metrics *collector.MetricsCollector
}

func New(cfg config.GatewayConfig, matcher Matcher, source hider.Source, h *hider.Hider) *Gateway {
	g := &Gateway{
		cfg:     cfg,
		matcher: matcher,
		source:  source,
		hider:   h,
		dialer:  net.Dialer{Timeout: cfg.DialTimeout},
		metrics: collector.Get(),
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = g.dialer.DialContext

	g.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			if g.rewriting() {
				// Upstream must answer uncompressed for the body to be rewritten.
				pr.Out.Header.Del("Accept-Encoding")
			}
		},
		Transport:      transport,
		ModifyResponse: g.modifyResponse,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			g.metrics.GatewayRequest("error")
			log.Warn().Err(err).Str("url", r.URL.String()).Msg("Upstream request failed")
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		},
	}
	return g
}

func (g *Gateway) rewriting() bool {
	return g.cfg.HideElements && g.source != nil && g.hider != nil
}

// Server returns an http.Server for the gateway with graceful's defaults.
func (g *Gateway) Server() *http.Server {
	return graceful.WithDefaults(&http.Server{
		Addr:    ":" + strconv.Itoa(g.cfg.Port),
		Handler: g,
	})
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		if g.block(w, r.Host) {
			return
		}
		g.tunnel(w, r)
		return
	}

	if !r.URL.IsAbs() || r.URL.Host == "" {
		g.metrics.GatewayRequest("rejected")
		http.Error(w, ErrNotProxyRequest.Error(), http.StatusBadRequest)
		return
	}
	if g.block(w, r.URL.String()) {
		return
	}

	g.metrics.GatewayRequest("allowed")
	g.proxy.ServeHTTP(w, r)
}

func (g *Gateway) block(w http.ResponseWriter, target string) bool {
	rule, ok := g.matcher.Match(target)
	if !ok {
		return false
	}

	g.metrics.GatewayRequest("blocked")
	log.Debug().Str("target", target).Int("rule", rule.ID).Str("filter", rule.Condition.URLFilter).Msg("Request blocked")

	w.Header().Set(HeaderRule, strconv.Itoa(rule.ID))
	http.Error(w, fmt.Sprintf("blocked by rule %d (%s)", rule.ID, rule.Condition.URLFilter), http.StatusForbidden)
	return true
}

func (g *Gateway) tunnel(w http.ResponseWriter, r *http.Request) {
	upstream, err := g.dialer.DialContext(r.Context(), "tcp", r.Host)
	if err != nil {
		g.metrics.GatewayRequest("error")
		log.Warn().Err(err).Str("host", r.Host).Msg("Tunnel dial failed")
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		_ = upstream.Close()
		http.Error(w, "tunneling not supported", http.StatusInternalServerError)
		return
	}
	client, buf, err := hj.Hijack()
	if err != nil {
		_ = upstream.Close()
		log.Error().Err(err).Msg("Failed to hijack connection")
		return
	}
	g.metrics.GatewayRequest("tunneled")

	if _, err := client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		_ = client.Close()
		_ = upstream.Close()
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(upstream, buf)
		closeWrite(upstream)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(client, upstream)
		closeWrite(client)
	}()
	wg.Wait()

	_ = client.Close()
	_ = upstream.Close()
}

func closeWrite(c net.Conn) {
	if tcp, ok := c.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}
}

func isHTML(resp *http.Response) bool {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && mediaType == "text/html"
}

// modifyResponse runs the element hider over HTML responses. Bodies that are
// encoded or larger than MaxBodySize pass through untouched.
func (g *Gateway) modifyResponse(resp *http.Response) error {
	if !g.rewriting() || !isHTML(resp) || resp.Header.Get("Content-Encoding") != "" {
		return nil
	}

	limit := g.cfg.MaxBodySize
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return err
	}
	if int64(len(body)) > limit {
		resp.Body = readCloser{io.MultiReader(bytes.NewReader(body), resp.Body), resp.Body}
		log.Debug().Str("url", resp.Request.URL.String()).Msg("Response too large to rewrite")
		return nil
	}
	_ = resp.Body.Close()

	out, hidden, err := g.rewrite(resp.Request.Context(), resp, body)
	if err != nil {
		log.Warn().Err(err).Str("url", resp.Request.URL.String()).Msg("Failed to rewrite page, relaying original")
		out = body
	}

	resp.Body = io.NopCloser(bytes.NewReader(out))
	resp.ContentLength = int64(len(out))
	resp.Header.Set("Content-Length", strconv.Itoa(len(out)))
	if hidden > 0 {
		resp.Header.Set(HeaderHidden, strconv.Itoa(hidden))
	}
	return nil
}

func (g *Gateway) rewrite(ctx context.Context, resp *http.Response, body []byte) ([]byte, int, error) {
	s, err := g.source.View(ctx)
	if err != nil {
		return nil, 0, err
	}

	plan := g.hider.PlanSettings(strings.ToLower(resp.Request.URL.Hostname()), s)
	if len(plan.Targets) == 0 {
		return body, 0, nil
	}

	doc, err := hider.NewHTMLDocument(bytes.NewReader(body), resp.Request.URL)
	if err != nil {
		return nil, 0, err
	}
	report := g.hider.Apply(doc, plan)
	if report.Total() == 0 {
		return body, 0, nil
	}

	html, err := doc.HTML()
	if err != nil {
		return nil, 0, err
	}
	g.metrics.GatewayRequest("rewritten")
	return []byte(html), report.Total(), nil
}

type readCloser struct {
	io.Reader
	io.Closer
}
