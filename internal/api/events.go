package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/framebus/internal/events"
)

// diagnosticTypes maps SSE event names to payload types.
var diagnosticTypes = map[string]any{
	"frame-processed":   events.FrameProcessed{},
	"channel-created":   events.ChannelCreated{},
	"post-failed":       events.PostFailed{},
	"payload-reset":     events.PayloadReset{},
	"scenario-reloaded": events.ScenarioReloaded{},
}

func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Diagnostics stream",
		Description: "Frames, channel creation, failed posts, payload resets and scenario reloads as they happen",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, diagnosticTypes, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// One frame produces several events, so the buffer covers a burst.
		eventCh := make(chan any, 64)
		unsubscribe := events.SubscribeDiagnostics(s.eventBus, eventCh)
		defer unsubscribe()

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
