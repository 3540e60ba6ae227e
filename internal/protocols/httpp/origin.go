package httpp

import (
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

func parseOrigin(s string) (*url.URL, bool) {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, false
	}

	if u.Port() == "" {
		if port, ok := defaultPorts[u.Scheme]; ok {
			u.Host = net.JoinHostPort(u.Host, port)
		}
	}

	return u, true
}

// hostPattern converts a host with wildcards into a regular expression.
// "*." also matches the parent domain.
func hostPattern(host string) *regexp.Regexp {
	p := regexp.QuoteMeta(host)
	p = strings.ReplaceAll(p, `\*\.`, `(.*\.)?`)
	p = strings.ReplaceAll(p, `\*`, `.*`)
	return regexp.MustCompile("^" + p + "$")
}

// matchOrigin returns the value of Access-Control-Allow-Origin
// for the Origin of a request, or false if the origin is not allowed.
func matchOrigin(origin string, allowOrigin string) (string, bool) {
	switch {
	case allowOrigin == "":
		return "", false

	case allowOrigin == "*":
		return "*", true
	}

	ou, ok := parseOrigin(origin)
	if !ok {
		return "", false
	}

	au, ok := parseOrigin(allowOrigin)
	if !ok || au.Scheme != ou.Scheme {
		return "", false
	}

	if au.Host == ou.Host ||
		(strings.Contains(au.Host, "*") && hostPattern(au.Host).MatchString(ou.Host)) {
		return origin, true
	}

	return "", false
}

// withOrigin adds the CORS headers to responses.
func withOrigin(h http.Handler, allowOrigin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v, ok := matchOrigin(r.Header.Get("Origin"), allowOrigin); ok {
			w.Header().Set("Access-Control-Allow-Origin", v)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		h.ServeHTTP(w, r)
	})
}
