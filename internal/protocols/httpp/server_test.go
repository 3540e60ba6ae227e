package httpp

import (
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/bluenviron/mediatrim/internal/test"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, allowOrigin string) *Server {
	s := &Server{
		Address:      "localhost:4555",
		AllowOrigin:  allowOrigin,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Parent:       test.NilLogger,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("ok")) //nolint:errcheck
		}),
	}
	err := s.Initialize()
	require.NoError(t, err)
	return s
}

func TestServerFilterEmptyPath(t *testing.T) {
	s := newTestServer(t, "")
	defer s.Close()

	conn, err := net.Dial("tcp", "localhost:4555")
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("OPTIONS http://localhost HTTP/1.1\n" +
		"Host: localhost:4555\n" +
		"User-Agent: Go-http-client/1.1\n\n"))
	require.NoError(t, err)

	buf := make([]byte, 12)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 400", string(buf))
}

func TestServerHeaders(t *testing.T) {
	s := newTestServer(t, "https://*.example.org")
	defer s.Close()

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()
	hc := &http.Client{Transport: tr}

	req, err := http.NewRequest(http.MethodGet, "http://localhost:4555/v1/info", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://editor.example.org")

	res, err := hc.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "mediatrim", res.Header.Get("Server"))
	require.Equal(t, "https://editor.example.org", res.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", res.Header.Get("Access-Control-Allow-Credentials"))

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
}

func TestServerInvalidTimeouts(t *testing.T) {
	s := &Server{
		Address: "localhost:4555",
		Parent:  test.NilLogger,
	}
	err := s.Initialize()
	require.EqualError(t, err, "invalid ReadTimeout")

	s.ReadTimeout = 10 * time.Second
	err = s.Initialize()
	require.EqualError(t, err, "invalid WriteTimeout")
}
