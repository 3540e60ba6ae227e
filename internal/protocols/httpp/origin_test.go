package httpp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchOrigin(t *testing.T) {
	for _, ca := range []struct {
		name        string
		origin      string
		allowOrigin string
		expected    string
	}{
		{
			"nothing allowed",
			"http://example.com",
			"",
			"",
		},
		{
			"everything allowed, no origin",
			"",
			"*",
			"*",
		},
		{
			"everything allowed",
			"https://example.com",
			"*",
			"*",
		},
		{
			"exact",
			"https://example.org",
			"https://example.org",
			"https://example.org",
		},
		{
			"different host",
			"http://another.com",
			"http://example.com",
			"",
		},
		{
			"different scheme",
			"https://example.com",
			"http://example.com",
			"",
		},
		{
			"default port",
			"http://example.com",
			"http://example.com:80",
			"http://example.com",
		},
		{
			"wildcard subdomain",
			"https://editor.example.org",
			"https://*.example.org",
			"https://editor.example.org",
		},
		{
			"wildcard parent domain",
			"https://example.org",
			"https://*.example.org",
			"https://example.org",
		},
		{
			"wildcard mismatch",
			"https://example.com",
			"https://*.example.org",
			"",
		},
		{
			"invalid origin",
			"example.com",
			"http://example.com",
			"",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			v, ok := matchOrigin(ca.origin, ca.allowOrigin)
			require.Equal(t, ca.expected != "", ok)
			require.Equal(t, ca.expected, v)
		})
	}
}
