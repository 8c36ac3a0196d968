package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/framebus/internal/logging"
)

// HTTPLoggingMiddleware logs each request once it completes. The level
// follows the status: errors at error, client mistakes at warn, preflights
// and event streams at debug.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	next(ctx)

	status := ctx.Status()
	attrs := []slog.Attr{
		slog.String("method", ctx.Method()),
		slog.String("path", ctx.URL().Path),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if q := ctx.URL().RawQuery; q != "" && !strings.Contains(q, "auth=") {
		attrs = append(attrs, slog.String("query", q))
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}

	level := slog.LevelInfo
	switch {
	case status >= http.StatusInternalServerError:
		level = slog.LevelError
	case status >= http.StatusBadRequest:
		level = slog.LevelWarn
	case ctx.Method() == http.MethodOptions, strings.HasSuffix(ctx.URL().Path, "stream"), ctx.URL().Path == "/api/events":
		level = slog.LevelDebug
	}
	logging.GetLogger("http").LogAttrs(ctx.Context(), level, "HTTP request completed", attrs...)
}
