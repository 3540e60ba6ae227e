// Package httpp contains the HTTP server shared by the API and the metrics exporter.
package httpp

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bluenviron/mediatrim/internal/logger"
)

const idleTimeout = 30 * time.Second

// Server is a HTTP server that
// allocates and closes its own listener,
// filters invalid requests, logs exchanges and exits on panic.
type Server struct {
	Address      string
	AllowOrigin  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Handler      http.Handler
	Parent       logger.Writer

	ln    net.Listener
	inner *http.Server
}

// Initialize initializes a Server.
func (s *Server) Initialize() error {
	if s.ReadTimeout <= 0 {
		return fmt.Errorf("invalid ReadTimeout")
	}
	if s.WriteTimeout <= 0 {
		return fmt.Errorf("invalid WriteTimeout")
	}

	network, address := "tcp", s.Address
	if path, ok := strings.CutPrefix(s.Address, "unix://"); ok {
		network, address = "unix", path
		os.Remove(address)
	}

	var err error
	s.ln, err = net.Listen(network, address)
	if err != nil {
		return err
	}

	if network == "unix" {
		os.Chmod(address, 0o755) //nolint:errcheck
	}

	// outermost first
	h := withWriteDeadline(
		withRecovery(
			withLogging(
				withServerHeader(
					withOrigin(
						filterRequests(s.Handler),
						s.AllowOrigin)),
				s.Parent)),
		s.WriteTimeout)

	s.inner = &http.Server{
		Handler:     h,
		ReadTimeout: s.ReadTimeout,
		IdleTimeout: idleTimeout,
		ErrorLog:    log.New(io.Discard, "", 0),
	}

	go s.inner.Serve(s.ln)

	return nil
}

// Close closes the listener and all open connections.
func (s *Server) Close() {
	ctx, ctxCancel := context.WithCancel(context.Background())
	ctxCancel()
	s.inner.Shutdown(ctx)

	// Shutdown() may have been called before Serve()
	s.ln.Close()
}
