package httpp

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httputil"
	"os"
	"runtime"
	"time"

	"github.com/bluenviron/mediatrim/internal/logger"
)

// filterRequests rejects requests whose path is not absolute.
func filterRequests(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.URL.Path) == 0 || r.URL.Path[0] != '/' {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func withServerHeader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "mediatrim")
		h.ServeHTTP(w, r)
	})
}

// withRecovery exits the process when a handler panics,
// since net/http would otherwise swallow the panic.
// https://github.com/golang/go/issues/16542
func withRecovery(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				stack := make([]byte, 1<<20)
				n := runtime.Stack(stack, true)
				fmt.Fprintf(os.Stderr, "panic: %v\n\n%s", err, stack[:n])
				os.Exit(1)
			}
		}()
		h.ServeHTTP(w, r)
	})
}

type recordingWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *recordingWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.size += n
	return n, err
}

func (w *recordingWriter) dump() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\n", w.status, http.StatusText(w.status))
	w.Header().Write(&buf) //nolint:errcheck
	buf.WriteByte('\n')
	if w.size != 0 {
		fmt.Fprintf(&buf, "(body of %d bytes)", w.size)
	}
	return buf.String()
}

// withLogging dumps requests and responses at debug level.
func withLogging(h http.Handler, l logger.Writer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l.Log(logger.Debug, "[conn %v] %s %s", r.RemoteAddr, r.Method, r.URL.Path)

		req, _ := httputil.DumpRequest(r, true)
		l.Log(logger.Debug, "[conn %v] [c->s] %s", r.RemoteAddr, req)

		rw := &recordingWriter{ResponseWriter: w}
		h.ServeHTTP(rw, r)

		l.Log(logger.Debug, "[conn %v] [s->c] %s", r.RemoteAddr, rw.dump())
	})
}

type deadlineWriter struct {
	http.ResponseWriter
	rc      *http.ResponseController
	timeout time.Duration
}

func (w *deadlineWriter) WriteHeader(statusCode int) {
	w.rc.SetWriteDeadline(time.Now().Add(w.timeout)) //nolint:errcheck
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *deadlineWriter) Write(p []byte) (int, error) {
	w.rc.SetWriteDeadline(time.Now().Add(w.timeout)) //nolint:errcheck
	return w.ResponseWriter.Write(p)
}

// withWriteDeadline moves the write deadline forward before every write,
// so that long output listings do not time out.
func withWriteDeadline(h http.Handler, timeout time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(&deadlineWriter{
			ResponseWriter: w,
			rc:             http.NewResponseController(w),
			timeout:        timeout,
		}, r)
	})
}
