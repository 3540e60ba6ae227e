package httpp

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCredentials(t *testing.T) {
	for _, ca := range []struct {
		name   string
		header []string
		user   string
		pass   string
	}{
		{
			"none",
			nil,
			"",
			"",
		},
		{
			"basic",
			[]string{"Basic bXl1c2VyOm15cGFzcw=="},
			"myuser",
			"mypass",
		},
		{
			"bearer",
			[]string{"Bearer myuser:mypass"},
			"myuser",
			"mypass",
		},
		{
			"bearer with colon in pass",
			[]string{"Bearer myuser:my:pass"},
			"myuser",
			"my:pass",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			h := &http.Request{
				URL:    &url.URL{},
				Header: http.Header{},
			}
			if ca.header != nil {
				h.Header["Authorization"] = ca.header
			}

			user, pass := Credentials(h)
			require.Equal(t, ca.user, user)
			require.Equal(t, ca.pass, pass)
		})
	}
}
