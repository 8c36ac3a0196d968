package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/framebus/internal/api/models"
	"github.com/smazurov/framebus/internal/events"
	"github.com/smazurov/framebus/internal/logging"
)

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent logs",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, in *models.LogsRequest) (*models.LogsResponse, error) {
		entries := filterEntries(logging.Recent(), in.Module, in.Limit)
		return &models.LogsResponse{Body: models.LogsData{Entries: entries, Count: len(entries)}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logs/level",
		Summary:     "Set log level",
		Description: "Change the level of one module, or the global level when module is empty",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(_ context.Context, in *models.LogLevelRequest) (*models.LogLevelResponse, error) {
		if err := logging.SetLevel(in.Body.Module, in.Body.Level); err != nil {
			return nil, huma.Error422UnprocessableEntity("invalid level", err)
		}
		s.logger.Info("Log level changed", "target", in.Body.Module, "level", in.Body.Level)
		return &models.LogLevelResponse{Body: in.Body}, nil
	})
}

// filterEntries keeps entries of module (all when empty) and trims to the
// newest limit (all when zero).
func filterEntries(entries []logging.Entry, module string, limit int) []logging.Entry {
	out := make([]logging.Entry, 0, len(entries))
	for _, e := range entries {
		if module == "" || e.Module == module {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (s *Server) registerLogStreamRoute() {
	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log stream",
		Description: "Sends the captured history first, then new entries as they are logged",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntry{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe first so nothing logged while replaying is lost.
		eventCh := make(chan any, 256)
		unsubscribe := events.SubscribeToChannel[events.LogEntry](s.eventBus, eventCh)
		defer unsubscribe()

		for _, e := range logging.Recent() {
			if err := send.Data(events.LogEntry{Entry: e}); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}
