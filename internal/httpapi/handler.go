package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// observe counts every request by route pattern and writes the access log.
// The query string is never logged: /sub carries the subscription URL there,
// and that URL usually embeds an access token.
func (s *server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		pattern := "(unmatched)"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		s.opt.Metrics.IncRequest(r.Method+" "+pattern, status)

		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			return
		}
		entry := s.opt.Logger.WithFields(logrus.Fields{
			"request_id": requestID(r),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     status,
			"bytes":      ww.BytesWritten(),
			"dur":        time.Since(start).Round(time.Millisecond),
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("http request")
			return
		}
		entry.Info("http request")
	})
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
