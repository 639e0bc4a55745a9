// Package chromedp renders pages in headless Chrome.
package chromedp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/publication-harvester/internal/crawler"
	"github.com/JakeFAU/publication-harvester/internal/policy/ratelimit"
)

// Config tunes the browser session.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	SettleDelay  time.Duration
	Headless     bool
	WindowWidth  int
	WindowHeight int
	ExecPath     string
	Limiter      *ratelimit.Limiter
}

// Renderer drives one browser tab. Renders are serialized.
type Renderer struct {
	cfg             Config
	allocatorCancel context.CancelFunc
	tabCtx          context.Context
	tabCancel       context.CancelFunc
	logger          *zap.Logger

	mu     sync.Mutex
	meta   atomic.Pointer[responseMeta]
	closed bool
}

// New launches the browser and opens the session tab.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.NoSandbox,
		chromedp.UserAgent(cfg.UserAgent),
	)
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocatorCtx)

	r := &Renderer{
		cfg:             cfg,
		allocatorCancel: allocatorCancel,
		tabCtx:          tabCtx,
		tabCancel:       tabCancel,
		logger:          logger,
	}
	// The first Run allocates the browser; it must use the tab context itself
	// so the process outlives the warmup timeout.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp start: %w", err)
	}
	chromedp.ListenTarget(tabCtx, r.recordResponse)

	warmCtx, cancelWarm := context.WithTimeout(tabCtx, cfg.Timeout)
	defer cancelWarm()
	stopForward := forwardCancel(ctx, cancelWarm)
	defer stopForward()
	if err := chromedp.Run(warmCtx, network.Enable(), emulation.SetUserAgentOverride(cfg.UserAgent)); err != nil {
		tabCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	logger.Info("browser ready", zap.Bool("headless", cfg.Headless))
	return r, nil
}

// Render navigates the tab to rawURL and returns the settled DOM.
func (r *Renderer) Render(ctx context.Context, rawURL string) (crawler.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return crawler.Page{}, crawler.ErrRendererUnavailable
	}

	if err := r.cfg.Limiter.Wait(ctx, rawURL); err != nil {
		return crawler.Page{}, fmt.Errorf("render budget: %w", err)
	}

	taskCtx, cancelTask := context.WithTimeout(r.tabCtx, r.cfg.Timeout)
	defer cancelTask()
	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	meta := &responseMeta{}
	r.meta.Store(meta)

	var html, location string
	tasks := chromedp.Tasks{
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if r.cfg.SettleDelay > 0 {
		tasks = append(tasks, chromedp.Sleep(r.cfg.SettleDelay))
	}
	tasks = append(tasks,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return crawler.Page{}, fmt.Errorf("render %s: %w", rawURL, ctxErr)
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			return crawler.Page{}, fmt.Errorf("render %s: %w", rawURL, crawler.ErrRenderTimeout)
		}
		return crawler.Page{}, fmt.Errorf("render %s: %w", rawURL, err)
	}

	if location == "" {
		location = rawURL
	}
	r.logger.Debug("rendered page",
		zap.String("url", rawURL),
		zap.String("final_url", location),
		zap.Int("status", meta.status()),
	)
	return crawler.Page{
		URL:        rawURL,
		FinalURL:   location,
		StatusCode: meta.status(),
		Markup:     html,
	}, nil
}

// Close shuts down the tab and the browser process.
func (r *Renderer) Close(_ context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.tabCancel()
	r.allocatorCancel()
	r.logger.Info("browser closed")
	return nil
}

type responseMeta struct {
	statusCode atomic.Int64
}

func (m *responseMeta) status() int {
	return int(m.statusCode.Load())
}

// recordResponse captures the status of the first document response of the current render.
func (r *Renderer) recordResponse(ev interface{}) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument {
		return
	}
	if meta := r.meta.Load(); meta != nil {
		meta.statusCode.CompareAndSwap(0, resp.Response.Status)
	}
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
