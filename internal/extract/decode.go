package extract

import (
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// minDetectConfidence is the chardet score below which the HTML5 default
// guess is kept.
const minDetectConfidence = 30

// toUTF8 converts body to UTF-8. The Content-Type header, a BOM or a <meta>
// declaration win; otherwise chardet guesses.
func toUTF8(body []byte, contentType string) lookup[[]byte] {
	if len(body) == 0 {
		return notFound[[]byte]()
	}
	name := detectCharset(body, contentType)
	if name == "utf-8" {
		return found(body)
	}
	enc, _ := charset.Lookup(name)
	if enc == nil {
		return notFound[[]byte]()
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return notFound[[]byte]()
	}
	return found(decoded)
}

func detectCharset(body []byte, contentType string) string {
	_, name, certain := charset.DetermineEncoding(body, contentType)
	if certain || name == "utf-8" || hasMetaCharset(body) {
		return name
	}
	result, err := chardet.NewHtmlDetector().DetectBest(body)
	if err != nil || result == nil || result.Confidence < minDetectConfidence {
		return name
	}
	if _, detected := charset.Lookup(result.Charset); detected != "" {
		return detected
	}
	return name
}

// hasMetaCharset reports whether the document head declares its encoding,
// in which case DetermineEncoding already honored it.
func hasMetaCharset(body []byte) bool {
	const prescan = 1024
	head := body
	if len(head) > prescan {
		head = head[:prescan]
	}
	lower := strings.ToLower(string(head))
	return strings.Contains(lower, "<meta") && strings.Contains(lower, "charset")
}
