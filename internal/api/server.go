package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/framebus/internal/api/models"
	"github.com/smazurov/framebus/internal/config"
	"github.com/smazurov/framebus/internal/events"
	"github.com/smazurov/framebus/internal/logging"
	"github.com/smazurov/framebus/internal/sim"
	"github.com/smazurov/framebus/internal/version"
	"github.com/smazurov/framebus/pkg/eventbus"
)

const authRealm = `Basic realm="framebus"`

// Simulation is what the API reads from and controls.
type Simulation interface {
	Stats() eventbus.Stats
	Channel(id eventbus.TypeID) (eventbus.ChannelInfo, bool)
	Summary() sim.Summary
	Scenario() config.Scenario
	Reload(sc config.Scenario) error
}

// Options configures the API server.
type Options struct {
	AuthUsername string
	AuthPassword string
	Simulation   Simulation
	Events       *events.Bus
	// MetricsHandler is mounted at /metrics when set. It never requires auth.
	MetricsHandler http.Handler
}

// Server serves the HTTP API over a huma instance.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	sim        Simulation
	eventBus   *events.Bus
	logger     *slog.Logger
}

// NewServer registers every route on a fresh mux.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()
	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	cfg := huma.DefaultConfig("framebus API", version.Get().Version)
	cfg.Info.Description = "Inspect and steer a frame-driven event bus simulation"
	cfg.Servers = []*huma.Server{}
	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {Type: "http", Scheme: "basic"},
	}

	api := humago.New(mux, cfg)
	s := &Server{
		api:      api,
		mux:      mux,
		sim:      opts.Simulation,
		eventBus: opts.Events,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(s.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	s.registerRoutes()
	if s.eventBus != nil {
		s.registerSSERoutes()
		s.registerLogStreamRoute()
	}
	s.registerLogRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// API returns the huma instance.
func (s *Server) API() huma.API {
	return s.api
}

// Start listens on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr, "docs", "http://"+addr+"/docs")
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
// Open event streams are closed when ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Stopping API server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if op := ctx.Operation(); op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		// EventSource cannot set headers, so streams may pass ?auth=base64(user:pass).
		encoded, ok := strings.CutPrefix(ctx.Header("Authorization"), "Basic ")
		if !ok {
			encoded = ctx.Query("auth")
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		user, pass, found := strings.Cut(string(decoded), ":")

		switch {
		case encoded == "":
			s.unauthorized(ctx, "Authentication required")
		case err != nil || !found:
			s.unauthorized(ctx, "Invalid credentials format")
		case subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1:
			s.unauthorized(ctx, "Invalid credentials")
		default:
			next(ctx)
		}
	}
}

func (s *Server) unauthorized(ctx huma.Context, msg string) {
	ctx.SetHeader("WWW-Authenticate", authRealm)
	huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg)
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		resp := &models.HealthResponse{Body: models.HealthData{Status: "ok", Message: "API is healthy"}}
		if s.sim != nil {
			resp.Body.Frames = s.sim.Summary().Frames
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		return &models.VersionResponse{Body: version.Get()}, nil
	})

	if s.sim == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "get-bus",
		Method:      http.MethodGet,
		Path:        "/api/bus",
		Summary:     "Bus statistics",
		Description: "Arena usage, counters and per-channel state of the running bus",
		Tags:        []string{"bus"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.BusResponse, error) {
		return &models.BusResponse{Body: s.sim.Stats()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-channel",
		Method:      http.MethodGet,
		Path:        "/api/bus/channels/{id}",
		Summary:     "Channel",
		Tags:        []string{"bus"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, in *models.ChannelRequest) (*models.ChannelResponse, error) {
		info, ok := s.sim.Channel(eventbus.TypeID(in.ID))
		if !ok {
			return nil, huma.Error404NotFound("channel not registered")
		}
		return &models.ChannelResponse{Body: info}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-summary",
		Method:      http.MethodGet,
		Path:        "/api/summary",
		Summary:     "Simulation summary",
		Description: "Totals and consumer state since the current scenario was applied",
		Tags:        []string{"simulation"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.SummaryResponse, error) {
		return &models.SummaryResponse{Body: s.sim.Summary()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-scenario",
		Method:      http.MethodGet,
		Path:        "/api/scenario",
		Summary:     "Current scenario",
		Tags:        []string{"simulation"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.ScenarioResponse, error) {
		return &models.ScenarioResponse{Body: s.sim.Scenario()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "put-scenario",
		Method:      http.MethodPut,
		Path:        "/api/scenario",
		Summary:     "Replace scenario",
		Description: "Queue a new scenario. It takes effect at the start of the next frame.",
		Tags:        []string{"simulation"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(_ context.Context, in *models.ScenarioRequest) (*models.ReloadResponse, error) {
		if err := s.sim.Reload(in.Body); err != nil {
			return nil, huma.Error422UnprocessableEntity("scenario rejected", err)
		}
		return &models.ReloadResponse{Body: models.ReloadData{
			Status:  "queued",
			Message: "Scenario applies at the next frame",
		}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "plan-scenario",
		Method:      http.MethodPost,
		Path:        "/api/plan",
		Summary:     "Capacity plan",
		Description: "Measure the worst-case frame of a scenario on a scratch bus",
		Tags:        []string{"simulation"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(_ context.Context, in *models.ScenarioRequest) (*models.PlanResponse, error) {
		report, err := sim.Plan(in.Body)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("scenario rejected", err)
		}
		return &models.PlanResponse{Body: models.PlanData{
			PlanReport: report,
			Fits:       report.Fits(),
			Headroom:   report.Headroom(),
		}}, nil
	})
}

func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
