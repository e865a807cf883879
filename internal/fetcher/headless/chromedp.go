// Package headless contains the automated transport, which renders pages in
// a headless Chrome driven by chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/harvest"
	"github.com/JakeFAU/harvester/internal/identity"
)

const (
	defaultPageLoadTimeout = 30 * time.Second
	// maxScrollRounds bounds feeds that never stop growing.
	maxScrollRounds = 200

	scrollHeightJS = `document.body.scrollHeight`
	scrollBottomJS = `window.scrollTo(0, document.body.scrollHeight)`
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	PageLoadTimeout time.Duration
	ScrollWaitMin   time.Duration
	ScrollWaitMax   time.Duration
	// ExecPath overrides Chrome discovery.
	ExecPath string
	// Headful shows the browser window, for debugging.
	Headful bool
}

// Identities hands out the user agent and headers for each session.
type Identities interface {
	Next() identity.Identity
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithSleeper replaces the timer used between scroll rounds.
func WithSleeper(s harvest.Sleeper) Option {
	return func(f *Fetcher) { f.sleeper = s }
}

// Fetcher implements harvest.Fetcher using chromedp. Every Fetch launches
// and tears down its own browser, so no state is shared between URLs.
type Fetcher struct {
	cfg        Config
	identities Identities
	sleeper    harvest.Sleeper
	logger     *zap.Logger
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config, identities Identities, logger *zap.Logger, opts ...Option) (*Fetcher, error) {
	if cfg.ScrollWaitMin < 0 || cfg.ScrollWaitMax < cfg.ScrollWaitMin {
		return nil, fmt.Errorf("scroll wait bounds must satisfy 0 <= min <= max")
	}
	if cfg.PageLoadTimeout <= 0 {
		cfg.PageLoadTimeout = defaultPageLoadTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if identities == nil {
		identities = identity.NewProvider(nil, logger)
	}
	f := &Fetcher{
		cfg:        cfg,
		identities: identities,
		sleeper:    harvest.TimerSleeper{},
		logger:     logger.Named("automated"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Fetch launches a browser, navigates, optionally scrolls to the end and
// returns the rendered DOM. A browser that cannot start yields
// *harvest.AutomationSetupError.
func (f *Fetcher) Fetch(ctx context.Context, request harvest.FetchRequest) (harvest.Page, error) {
	id := f.identities.Next()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, f.allocatorOptions(id.UserAgent)...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	// An empty Run starts the browser; failures here are setup failures.
	if err := chromedp.Run(browserCtx); err != nil {
		if ctx.Err() != nil {
			return harvest.Page{}, fmt.Errorf("automated fetch canceled: %w", ctx.Err())
		}
		return harvest.Page{}, &harvest.AutomationSetupError{Err: err}
	}

	meta := newResponseMeta()
	chromedp.ListenTarget(browserCtx, meta.captureEvent)

	start := time.Now()
	finalURL, err := f.navigate(browserCtx, request.URL, id)
	if err != nil {
		if ctx.Err() != nil {
			return harvest.Page{}, fmt.Errorf("automated fetch canceled: %w", ctx.Err())
		}
		return harvest.Page{}, err
	}

	if request.ScrollToEnd {
		f.logger.Info("scrolling to end", zap.String("url", request.URL))
		rounds := scrollToEnd(browserCtx, evaluate, f.sleeper, f.scrollWait, f.logger)
		f.logger.Debug("scrolling complete", zap.String("url", request.URL), zap.Int("rounds", rounds))
	}

	var html string
	if err := chromedp.Run(browserCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return harvest.Page{}, &harvest.TransportError{Kind: harvest.KindNetwork, URL: request.URL, Err: err}
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(request.URL, finalURL)
	if headers == nil {
		headers = http.Header{}
	}

	return harvest.Page{
		RequestedURL: request.URL,
		FinalURL:     responseURL,
		StatusCode:   status,
		ContentType:  domContentType(headers.Get("Content-Type")),
		Headers:      headers,
		Body:         []byte(html),
		Duration:     time.Since(start),
	}, nil
}

func (f *Fetcher) allocatorOptions(userAgent string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1366, 900),
	)
	if f.cfg.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	} else {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	if f.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ExecPath))
	}
	return opts
}

// navigate loads the page within the page-load timeout.
func (f *Fetcher) navigate(ctx context.Context, url string, id identity.Identity) (string, error) {
	navCtx, cancel := context.WithTimeout(ctx, f.cfg.PageLoadTimeout)
	defer cancel()

	var finalURL string
	err := chromedp.Run(navCtx,
		networkSetupAction(id),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)
	if err == nil {
		return finalURL, nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(navCtx.Err(), context.DeadlineExceeded) {
		return "", &harvest.TransportError{Kind: harvest.KindTimeout, URL: url, Err: err}
	}
	return "", &harvest.TransportError{Kind: harvest.KindNetwork, URL: url, Err: err}
}

func (f *Fetcher) scrollWait() time.Duration {
	span := f.cfg.ScrollWaitMax - f.cfg.ScrollWaitMin
	if span <= 0 {
		return f.cfg.ScrollWaitMin
	}
	return f.cfg.ScrollWaitMin + rand.N(span+1)
}

func networkSetupAction(id identity.Identity) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if id.UserAgent != "" {
			override := emulation.SetUserAgentOverride(id.UserAgent)
			if lang := id.Headers.Get("Accept-Language"); lang != "" {
				override = override.WithAcceptLanguage(lang)
			}
			if err := override.Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if extra := toNetworkHeaders(id.Headers); len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// evaluator runs a JavaScript expression in the page.
type evaluator func(ctx context.Context, expr string, res any) error

func evaluate(ctx context.Context, expr string, res any) error {
	return chromedp.Run(ctx, chromedp.Evaluate(expr, res))
}

// scrollToEnd scrolls to the bottom until the document height stops
// growing. Any failure ends scrolling with a warning; the page is still
// usable. It returns the number of scroll rounds taken.
func scrollToEnd(
	ctx context.Context,
	eval evaluator,
	sleeper harvest.Sleeper,
	wait func() time.Duration,
	logger *zap.Logger,
) int {
	var last int64
	if err := eval(ctx, scrollHeightJS, &last); err != nil {
		logger.Warn("scroll failed", zap.Error(err))
		return 0
	}
	for round := 1; round <= maxScrollRounds; round++ {
		if err := eval(ctx, scrollBottomJS, nil); err != nil {
			logger.Warn("scroll failed", zap.Error(err))
			return round
		}
		if err := sleeper.Sleep(ctx, wait()); err != nil {
			logger.Warn("scroll interrupted", zap.Error(err))
			return round
		}
		var height int64
		if err := eval(ctx, scrollHeightJS, &height); err != nil {
			logger.Warn("scroll failed", zap.Error(err))
			return round
		}
		if height == last {
			return round
		}
		last = height
	}
	logger.Warn("scroll stopped at round limit", zap.Int("rounds", maxScrollRounds))
	return maxScrollRounds
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

// capture keeps the first document response, which is the navigation
// itself; later documents come from frames.
func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, cloneHeader(m.headers), m.url
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	status, headers, url := m.snapshot()
	switch {
	case finalURL != "":
		url = finalURL
	case url != "":
	default:
		url = requestURL
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

// domContentType keeps the server's media type but always declares UTF-8,
// the encoding of the serialized DOM. The server's own value stays in Headers.
func domContentType(serverValue string) string {
	mediaType, _, err := mime.ParseMediaType(serverValue)
	if err != nil || mediaType == "" {
		mediaType = "text/html"
	}
	return mime.FormatMediaType(mediaType, map[string]string{"charset": "utf-8"})
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	return src.Clone()
}

// toNetworkHeaders converts identity headers for CDP. User-Agent is applied
// through emulation instead.
func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 || http.CanonicalHeaderKey(key) == "User-Agent" {
			continue
		}
		headers[key] = strings.Join(values, ", ")
	}
	return headers
}
