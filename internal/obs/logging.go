package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/apotek-admin/internal/common"
)

// NewLogger builds the process logger from OBS_LOG_FORMAT and OBS_LOG_LEVEL.
// "console" or "text" selects the human readable writer; anything else is JSON.
// Unknown levels fall back to info.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.DurationFieldUnit = time.Millisecond
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stdout
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// RequestLogger writes one "http_request" line per request. Handlers can
// reach a logger carrying the request and trace ids via zerolog.Ctx.
type RequestLogger struct {
	Logger zerolog.Logger
}

func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fields := l.Logger.With().Str("request_id", middleware.GetReqID(r.Context()))
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			fields = fields.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		reqLogger := fields.Logger()

		recorder := NewStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(recorder, r.WithContext(reqLogger.WithContext(r.Context())))

		status := recorder.Status()
		var evt *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			evt = reqLogger.Error()
		case status >= http.StatusBadRequest:
			evt = reqLogger.Warn()
		default:
			evt = reqLogger.Info()
		}
		evt = evt.
			Str("method", r.Method).
			Str("route", routeOf(r)).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration_ms", time.Since(start)).
			Int64("bytes", recorder.BytesWritten())
		if ip := common.ClientIP(r); ip != "" {
			evt = evt.Str("client_ip", ip)
		}
		if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
			evt = evt.Str("user_agent", ua)
		}
		evt.Msg("http_request")
	})
}
