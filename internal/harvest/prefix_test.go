package harvest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainPrefix(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{"mixed case with www", "https://www.Example.com/page", "example_com"},
		{"subdomain kept", "http://docs.python.org/3/", "docs_python_org"},
		{"port dropped", "https://example.org:8443/a", "example_org"},
		{"only leading www stripped", "https://shop.www.example.com", "shop_www_example_com"},
		{"relative url", "/just/a/path", FallbackPrefix},
		{"garbage", "not a url", FallbackPrefix},
		{"empty", "", FallbackPrefix},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, DomainPrefix(tc.input))
		})
	}
}
