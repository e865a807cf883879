package harvest

import (
	"strings"

	whatwgUrl "github.com/nlnwa/whatwg-url/url"
)

// FallbackPrefix names outputs whose URL has no usable host.
const FallbackPrefix = "site_unknown"

var urlParser = whatwgUrl.NewParser(whatwgUrl.WithPercentEncodeSinglePercentSign())

// DomainPrefix derives a filename stem from the URL's host: lowercased, a
// leading "www." removed and dots replaced with underscores.
func DomainPrefix(rawURL string) string {
	parsed, err := urlParser.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return FallbackPrefix
	}
	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return FallbackPrefix
	}
	return strings.ReplaceAll(host, ".", "_")
}
