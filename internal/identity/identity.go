// Package identity supplies randomized browser-like request identities.
package identity

import (
	"errors"
	"math/rand/v2"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// FallbackUserAgent is used whenever the pool cannot produce an agent.
const FallbackUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0"

// Header values sent with every identity.
const (
	AcceptLanguage = "en-US,en;q=0.9,pt-BR;q=0.8,pt;q=0.7"
	Referer        = "https://www.google.com/"
	Accept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
)

// ErrEmptyPool is returned by a Source with no user agents.
var ErrEmptyPool = errors.New("user agent pool is empty")

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36 Edg/129.0.0.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:131.0) Gecko/20100101 Firefox/131.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14.7; rv:131.0) Gecko/20100101 Firefox/131.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:131.0) Gecko/20100101 Firefox/131.0",
}

// Identity is the user agent and header set for one request.
type Identity struct {
	UserAgent string
	Headers   http.Header
}

// Source yields a user agent string.
type Source interface {
	UserAgent() (string, error)
}

// Pool picks uniformly from a fixed list of user agents.
type Pool struct {
	agents []string
}

// NewPool returns a Pool over agents, or the built-in desktop pool when agents is empty.
func NewPool(agents []string) *Pool {
	cleaned := make([]string, 0, len(agents))
	for _, a := range agents {
		if a != "" {
			cleaned = append(cleaned, a)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, defaultUserAgents...)
	}
	return &Pool{agents: cleaned}
}

// UserAgent returns a random agent from the pool.
func (p *Pool) UserAgent() (string, error) {
	if p == nil || len(p.agents) == 0 {
		return "", ErrEmptyPool
	}
	return p.agents[rand.IntN(len(p.agents))], nil
}

// Provider builds identities. It is safe for concurrent use.
type Provider struct {
	source Source
	logger *zap.Logger
	// warnOnce keeps a broken source from flooding the log once per request.
	warnOnce sync.Once
}

// NewProvider wraps source. A nil source always yields the fallback identity.
func NewProvider(source Source, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{source: source, logger: logger.Named("identity")}
}

// Next returns a fresh identity. It never fails.
func (p *Provider) Next() Identity {
	ua := FallbackUserAgent
	if p != nil && p.source != nil {
		picked, err := p.source.UserAgent()
		switch {
		case err != nil:
			p.warnOnce.Do(func() {
				p.logger.Warn("user agent source failed, using fallback identity", zap.Error(err))
			})
		case picked == "":
			p.warnOnce.Do(func() {
				p.logger.Warn("user agent source returned empty agent, using fallback identity")
			})
		default:
			ua = picked
		}
	}
	return build(ua)
}

// Fallback returns the fixed identity used when no source is available.
func Fallback() Identity {
	return build(FallbackUserAgent)
}

func build(ua string) Identity {
	h := http.Header{}
	h.Set("User-Agent", ua)
	h.Set("Accept", Accept)
	h.Set("Accept-Language", AcceptLanguage)
	h.Set("Referer", Referer)
	return Identity{UserAgent: ua, Headers: h}
}
