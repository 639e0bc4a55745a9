// Package static renders pages with a plain HTTP fetch through colly. It
// serves sites and tests that need no script execution.
package static

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/publication-harvester/internal/crawler"
	"github.com/JakeFAU/publication-harvester/internal/policy/ratelimit"
)

// Config tunes the static renderer.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Limiter   *ratelimit.Limiter
	Transport http.RoundTripper
}

// Renderer fetches pages with colly.
type Renderer struct {
	base    *colly.Collector
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	mu      sync.Mutex
}

// New builds a static renderer.
func New(cfg Config, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	base := colly.NewCollector(colly.UserAgent(cfg.UserAgent))
	// Retries re-request the same URL.
	base.AllowURLRevisit = true
	base.IgnoreRobotsTxt = true
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          16,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: cfg.Timeout,
			ForceAttemptHTTP2:     true,
		}
	}
	base.WithTransport(transport)
	base.SetRequestTimeout(cfg.Timeout)

	return &Renderer{base: base, limiter: cfg.Limiter, logger: logger}
}

// Render fetches rawURL and returns its body as markup.
func (r *Renderer) Render(ctx context.Context, rawURL string) (crawler.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.limiter.Wait(ctx, rawURL); err != nil {
		return crawler.Page{}, fmt.Errorf("render budget: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return crawler.Page{}, err
	}

	collector := r.base.Clone()
	collector.Context = ctx
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() { resultCh <- res })
	}

	collector.OnResponse(func(resp *colly.Response) {
		send(fetchResult{page: crawler.Page{
			URL:        rawURL,
			FinalURL:   resp.Request.URL.String(),
			StatusCode: resp.StatusCode,
			Markup:     string(resp.Body),
		}})
	})
	collector.OnError(func(resp *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		if resp != nil && resp.StatusCode != 0 {
			err = fmt.Errorf("status %d: %w", resp.StatusCode, err)
		}
		send(fetchResult{err: err})
	})

	visitErr := collector.Visit(rawURL)
	collector.Wait()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return crawler.Page{}, classify(ctx, rawURL, res.err)
		}
		return res.page, nil
	default:
		if visitErr != nil {
			return crawler.Page{}, classify(ctx, rawURL, visitErr)
		}
		return crawler.Page{}, fmt.Errorf("render %s: no response", rawURL)
	}
}

// Close implements crawler.Renderer.
func (r *Renderer) Close(context.Context) error { return nil }

type fetchResult struct {
	page crawler.Page
	err  error
}

func classify(ctx context.Context, rawURL string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("render %s: %w", rawURL, ctxErr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("render %s: %w: %w", rawURL, crawler.ErrRenderTimeout, err)
	}
	return fmt.Errorf("render %s: %w", rawURL, err)
}
