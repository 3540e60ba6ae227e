package httpp

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Credentials returns the user and password of a request.
// Both "Authorization: Basic" and "Authorization: Bearer user:pass" are accepted.
func Credentials(r *http.Request) (string, string) {
	for _, v := range r.Header.Values("Authorization") {
		token, ok := strings.CutPrefix(v, "Bearer ")
		if !ok {
			continue
		}

		if user, pass, ok := strings.Cut(token, ":"); ok {
			return user, pass
		}
	}

	user, pass, _ := r.BasicAuth()
	return user, pass
}

// RemoteAddr returns the address of a client,
// using the IP reported by trusted proxies when present.
func RemoteAddr(ctx *gin.Context) string {
	_, port, _ := net.SplitHostPort(ctx.Request.RemoteAddr)
	return net.JoinHostPort(ctx.ClientIP(), port)
}
