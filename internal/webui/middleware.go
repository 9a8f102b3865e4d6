package webui

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/httprate"
	"github.com/pixeltube/basecamp/internal/logging"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes the websocket upgrade through to the server's writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, rec.status)
	})
}

// submitRateLimit limits form submissions per client address.
func submitRateLimit() func(http.Handler) http.Handler {
	return httprate.Limit(
		SubmitLimit,
		SubmitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(SubmitWindow.Seconds())))
			http.Error(w, "Too many submissions, try again later.", http.StatusTooManyRequests)
		}),
	)
}
