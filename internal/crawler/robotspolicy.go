package crawler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const robotsAuditLimit = 2000

var markupTag = regexp.MustCompile(`<[^>]+>`)

// RobotsConfig configures a RobotsPolicy.
type RobotsConfig struct {
	Enabled       bool
	RobotsURL     string
	UserAgent     string
	FallbackDelay time.Duration
}

// RobotsState is the per-session robots snapshot.
type RobotsState struct {
	Fetched     bool
	Unavailable bool
	CrawlDelay  time.Duration
	group       *robotstxt.Group
}

// RobotsPolicy answers fetch permission and crawl delay questions for one site.
// The directives are fetched through the session renderer once, on first use.
type RobotsPolicy struct {
	cfg      RobotsConfig
	renderer Renderer
	logger   *zap.Logger

	mu    sync.Mutex
	state RobotsState
}

// NewRobotsPolicy builds a policy. The renderer is only used when enforcement is enabled.
func NewRobotsPolicy(cfg RobotsConfig, renderer Renderer, logger *zap.Logger) *RobotsPolicy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotsPolicy{cfg: cfg, renderer: renderer, logger: logger}
}

// RobotsURLFor derives the robots.txt location for a site URL.
func RobotsURLFor(siteURL string) (string, error) {
	u, err := url.Parse(siteURL)
	if err != nil {
		return "", fmt.Errorf("parse site url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("site url %q must be absolute", siteURL)
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}).String(), nil
}

// Load fetches and parses robots.txt. Only the first call does any work.
// Failures mark the policy unavailable for the rest of the session.
func (p *RobotsPolicy) Load(ctx context.Context) RobotsState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Fetched || !p.cfg.Enabled {
		return p.state
	}
	p.state.Fetched = true

	if err := p.load(ctx); err != nil {
		p.state.Unavailable = true
		p.logger.Warn("robots.txt unavailable; allowing all paths",
			zap.String("robots_url", p.cfg.RobotsURL),
			zap.Error(err),
		)
	}
	return p.state
}

func (p *RobotsPolicy) load(ctx context.Context) error {
	if p.renderer == nil {
		return errors.New("no renderer")
	}
	page, err := p.renderer.Render(ctx, p.cfg.RobotsURL)
	if err != nil {
		return fmt.Errorf("render robots: %w", err)
	}
	text := stripMarkup(page.Markup)
	if text == "" {
		return errors.New("robots.txt is empty")
	}
	p.logger.Info("robots.txt directives", zap.String("content", truncate(text, robotsAuditLimit)))

	data, err := robotstxt.FromString(text)
	if err != nil {
		return fmt.Errorf("parse robots: %w", err)
	}
	group := data.FindGroup(p.cfg.UserAgent)
	delay := time.Duration(0)
	if group != nil {
		delay = group.CrawlDelay
	}
	if delay <= 0 {
		if wildcard := data.FindGroup("*"); wildcard != nil {
			delay = wildcard.CrawlDelay
		}
	}
	p.state.group = group
	p.state.CrawlDelay = delay
	return nil
}

// CanFetch reports whether rawURL may be fetched. Disabled or unavailable
// policies allow everything.
func (p *RobotsPolicy) CanFetch(ctx context.Context, rawURL string) bool {
	state := p.Load(ctx)
	if !p.cfg.Enabled || state.Unavailable || state.group == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return state.group.Test(u.RequestURI())
}

// CrawlDelay returns the parsed crawl delay, or the fallback when none applies.
func (p *RobotsPolicy) CrawlDelay(ctx context.Context) time.Duration {
	state := p.Load(ctx)
	if p.cfg.Enabled && !state.Unavailable && state.CrawlDelay > 0 {
		return state.CrawlDelay
	}
	return p.cfg.FallbackDelay
}

// stripMarkup removes the document wrapper a browser puts around plain text.
func stripMarkup(markup string) string {
	text := html.UnescapeString(markupTag.ReplaceAllString(markup, "\n"))
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n... (truncated)"
}
