package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// logRequests attaches a request-scoped logger to the context, then logs and
// records each completed request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrap := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		logger := log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		start := time.Now()
		next.ServeHTTP(wrap, r)
		elapsed := time.Since(start)

		status := wrap.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.metrics.ObserveRequest(route, status, elapsed.Seconds())

		var event *zerolog.Event
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		} else {
			event = logger.Info()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.RequestURI()).
			Int("status", status).
			Int("bytes", wrap.BytesWritten()).
			Dur("duration", elapsed).
			Msg("HTTP request")
	})
}
