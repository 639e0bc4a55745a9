package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const browserRobots = `<html><head></head><body><pre style="word-wrap: break-word; white-space: pre-wrap;">User-agent: *
Crawl-delay: 5
Disallow: /en/persons/

User-agent: harvester
Disallow: /private/
</pre></body></html>`

func robotsConfig() RobotsConfig {
	return RobotsConfig{
		Enabled:       true,
		RobotsURL:     "https://portal.example/robots.txt",
		UserAgent:     "harvester",
		FallbackDelay: 3 * time.Second,
	}
}

func TestRobotsPolicyParsesRenderedDirectives(t *testing.T) {
	t.Parallel()

	renderer := new(MockRenderer)
	renderer.On("Render", mock.Anything, "https://portal.example/robots.txt").
		Return(Page{Markup: browserRobots}, nil).Once()

	policy := NewRobotsPolicy(robotsConfig(), renderer, zap.NewNop())
	ctx := context.Background()

	require.False(t, policy.CanFetch(ctx, "https://portal.example/private/report?page=1"))
	require.True(t, policy.CanFetch(ctx, "https://portal.example/en/publications?page=0"))
	require.Equal(t, 5*time.Second, policy.CrawlDelay(ctx), "identity group has no delay so the wildcard delay applies")

	state := policy.Load(ctx)
	require.True(t, state.Fetched)
	require.False(t, state.Unavailable)
	renderer.AssertNumberOfCalls(t, "Render", 1)
}

func TestRobotsPolicyUnavailableAllowsAll(t *testing.T) {
	t.Parallel()

	renderer := new(MockRenderer)
	renderer.On("Render", mock.Anything, mock.Anything).
		Return(Page{}, errors.New("net::ERR_CONNECTION_REFUSED")).Once()

	policy := NewRobotsPolicy(robotsConfig(), renderer, zap.NewNop())
	ctx := context.Background()

	require.True(t, policy.CanFetch(ctx, "https://portal.example/private/x"))
	require.Equal(t, 3*time.Second, policy.CrawlDelay(ctx))
	require.True(t, policy.Load(ctx).Unavailable)
	renderer.AssertNumberOfCalls(t, "Render", 1)
}

func TestRobotsPolicyEmptyBodyIsUnavailable(t *testing.T) {
	t.Parallel()

	renderer := new(MockRenderer)
	renderer.On("Render", mock.Anything, mock.Anything).
		Return(Page{Markup: "<html><head></head><body></body></html>"}, nil).Once()

	policy := NewRobotsPolicy(robotsConfig(), renderer, zap.NewNop())
	require.True(t, policy.Load(context.Background()).Unavailable)
	require.True(t, policy.CanFetch(context.Background(), "https://portal.example/private/x"))
}

func TestRobotsPolicyDisabledNeverFetches(t *testing.T) {
	t.Parallel()

	renderer := new(MockRenderer)
	cfg := robotsConfig()
	cfg.Enabled = false
	policy := NewRobotsPolicy(cfg, renderer, zap.NewNop())

	require.True(t, policy.CanFetch(context.Background(), "https://portal.example/private/x"))
	require.Equal(t, 3*time.Second, policy.CrawlDelay(context.Background()))
	renderer.AssertNotCalled(t, "Render", mock.Anything, mock.Anything)
}

func TestRobotsURLFor(t *testing.T) {
	t.Parallel()

	got, err := RobotsURLFor("https://pureportal.coventry.ac.uk/en/organisations/x/publications/?page=0")
	require.NoError(t, err)
	require.Equal(t, "https://pureportal.coventry.ac.uk/robots.txt", got)

	_, err = RobotsURLFor("not a url")
	require.Error(t, err)
}

func TestStripMarkup(t *testing.T) {
	t.Parallel()

	require.Equal(t, "User-agent: *\nDisallow: /a&b", stripMarkup("<pre>User-agent: *\n\n  Disallow: /a&amp;b</pre>"))
	require.Len(t, truncate(string(make([]byte, 2500)), robotsAuditLimit), robotsAuditLimit+len("\n... (truncated)"))
}
