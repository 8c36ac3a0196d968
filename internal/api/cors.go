package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// CORSConfig holds the headers sent on every response.
type CORSConfig struct {
	AllowOrigin  string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// DefaultCORSConfig allows any origin. The API is meant for dashboards on
// the local network.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigin:  "*",
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Authorization", "Accept", "Last-Event-ID"},
		MaxAge:       86400,
	}
}

func (c CORSConfig) headers() [][2]string {
	return [][2]string{
		{"Access-Control-Allow-Origin", c.AllowOrigin},
		{"Access-Control-Allow-Methods", strings.Join(c.AllowMethods, ", ")},
		{"Access-Control-Allow-Headers", strings.Join(c.AllowHeaders, ", ")},
		{"Access-Control-Max-Age", strconv.Itoa(c.MaxAge)},
	}
}

// NewCORSMiddleware sets the CORS headers on every huma response.
func NewCORSMiddleware(config CORSConfig) func(huma.Context, func(huma.Context)) {
	headers := config.headers()
	return func(ctx huma.Context, next func(huma.Context)) {
		for _, h := range headers {
			ctx.SetHeader(h[0], h[1])
		}
		if ctx.Method() == http.MethodOptions {
			ctx.SetStatus(http.StatusNoContent)
			return
		}
		next(ctx)
	}
}

// AddCORSHandler answers preflight requests. huma only sees requests that
// match a registered operation, so OPTIONS needs its own route.
func AddCORSHandler(mux *http.ServeMux, config CORSConfig) {
	headers := config.headers()
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, _ *http.Request) {
		for _, h := range headers {
			w.Header().Set(h[0], h[1])
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
