// Package collyfetcher implements the direct transport using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/harvest"
	"github.com/JakeFAU/harvester/internal/identity"
)

const (
	defaultTimeout     = 20 * time.Second
	defaultMaxBodySize = 32 << 20
)

// Config controls collector behavior.
type Config struct {
	Timeout time.Duration
	// JitterMin and JitterMax bound the random pause taken before each request.
	JitterMin time.Duration
	JitterMax time.Duration
	// MaxBodySize caps the bytes read from a response body. Bodies that hit
	// the cap are kept truncated and logged.
	MaxBodySize int
}

// Identities hands out the headers sent with each request.
type Identities interface {
	Next() identity.Identity
}

// Limiter throttles requests per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithLimiter throttles every request through l.
func WithLimiter(l Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithSleeper replaces the timer used for politeness jitter.
func WithSleeper(s harvest.Sleeper) Option {
	return func(f *Fetcher) { f.sleeper = s }
}

// WithTransport replaces the HTTP round tripper shared by all requests.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) { f.baseCollector.WithTransport(rt) }
}

// Fetcher implements harvest.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	identities    Identities
	limiter       Limiter
	sleeper       harvest.Sleeper
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. The base collector is shared by every request;
// each Fetch works on a clone so callbacks never leak between URLs.
func New(cfg Config, identities Identities, logger *zap.Logger, opts ...Option) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	if cfg.JitterMax < cfg.JitterMin {
		cfg.JitterMax = cfg.JitterMin
	}
	if identities == nil {
		identities = identity.NewProvider(nil, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	c.MaxBodySize = cfg.MaxBodySize

	f := &Fetcher{
		cfg:           cfg,
		identities:    identities,
		sleeper:       harvest.TimerSleeper{},
		logger:        logger.Named("direct"),
		baseCollector: c,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch executes a single HTTP GET using Colly. Non-2xx responses and
// transport failures come back as *harvest.TransportError.
func (f *Fetcher) Fetch(ctx context.Context, request harvest.FetchRequest) (harvest.Page, error) {
	if err := f.pause(ctx); err != nil {
		return harvest.Page{}, err
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, request.URL); err != nil {
			return harvest.Page{}, err
		}
	}

	var (
		page     harvest.Page
		fetchErr error
	)
	id := f.identities.Next()
	start := time.Now()
	collector := f.buildCollector(request, id, start, &page, &fetchErr)

	f.logger.Debug("direct request", zap.String("url", request.URL), zap.String("user_agent", id.UserAgent))
	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return harvest.Page{}, err
	}
	if page.StatusCode < http.StatusOK || page.StatusCode >= http.StatusMultipleChoices {
		return harvest.Page{}, &harvest.TransportError{
			Kind:       harvest.KindHTTPStatus,
			URL:        request.URL,
			StatusCode: page.StatusCode,
		}
	}
	return page, nil
}

// pause sleeps a random duration within the configured jitter window.
func (f *Fetcher) pause(ctx context.Context) error {
	d := f.jitter()
	if d <= 0 {
		return nil
	}
	if err := f.sleeper.Sleep(ctx, d); err != nil {
		return fmt.Errorf("politeness pause: %w", err)
	}
	return nil
}

func (f *Fetcher) jitter() time.Duration {
	span := f.cfg.JitterMax - f.cfg.JitterMin
	if span <= 0 {
		return f.cfg.JitterMin
	}
	return f.cfg.JitterMin + rand.N(span+1)
}

func (f *Fetcher) buildCollector(
	request harvest.FetchRequest,
	id identity.Identity,
	start time.Time,
	page *harvest.Page,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = id.UserAgent
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true

	f.configureCollectorHooks(collector, request, id, start, page, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request harvest.FetchRequest,
	id identity.Identity,
	start time.Time,
	page *harvest.Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(id.Headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		finalURL := request.URL
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		if len(r.Body) >= f.cfg.MaxBodySize {
			f.logger.Warn("response body truncated at size limit",
				zap.String("url", finalURL),
				zap.Int("limit_bytes", f.cfg.MaxBodySize))
		}
		*page = harvest.Page{
			RequestedURL: request.URL,
			FinalURL:     finalURL,
			StatusCode:   r.StatusCode,
			ContentType:  headers.Get("Content-Type"),
			Headers:      headers,
			Body:         append([]byte(nil), r.Body...),
			Duration:     time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("direct fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			err = *fetchErr
		}
		if err != nil {
			return classify(url, err)
		}
		return nil
	}
}

func classify(url string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &harvest.TransportError{Kind: harvest.KindTimeout, URL: url, Err: err}
	}
	return &harvest.TransportError{Kind: harvest.KindNetwork, URL: url, Err: err}
}

func copyHeaders(headers http.Header, r *colly.Request) {
	if headers == nil || r.Headers == nil {
		return
	}
	for key, values := range headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
