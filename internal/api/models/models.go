// Package models holds the request and response shapes of the HTTP API.
package models

import (
	"github.com/smazurov/framebus/internal/config"
	"github.com/smazurov/framebus/internal/logging"
	"github.com/smazurov/framebus/internal/sim"
	"github.com/smazurov/framebus/internal/version"
	"github.com/smazurov/framebus/pkg/eventbus"
)

type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
	Frames  uint64 `json:"frames" example:"1200" doc:"Frames run by the current scenario"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionResponse struct {
	Body version.Info
}

// Bus models
type BusResponse struct {
	Body eventbus.Stats
}

type ChannelRequest struct {
	ID uint32 `path:"id" example:"0" doc:"Event type identifier"`
}

type ChannelResponse struct {
	Body eventbus.ChannelInfo
}

type SummaryResponse struct {
	Body sim.Summary
}

// Scenario models
type ScenarioResponse struct {
	Body config.Scenario
}

type ScenarioRequest struct {
	Body config.Scenario
}

type ReloadData struct {
	Status  string `json:"status" example:"queued" doc:"Reload status"`
	Message string `json:"message" example:"Scenario applies at the next frame" doc:"Status message"`
}

type ReloadResponse struct {
	Body ReloadData
}

type PlanData struct {
	sim.PlanReport
	Fits     bool    `json:"fits" doc:"Whether the worst-case frame posts without loss"`
	Headroom float64 `json:"headroom" example:"0.75" doc:"Unused fraction of the payload arena"`
}

type PlanResponse struct {
	Body PlanData
}

// Log models
type LogsRequest struct {
	Module string `query:"module" example:"eventbus" doc:"Only entries from this module"`
	Limit  int    `query:"limit" minimum:"0" example:"100" doc:"Return at most this many of the newest entries"`
}

type LogsData struct {
	Entries []logging.Entry `json:"entries" doc:"Captured entries, oldest first"`
	Count   int             `json:"count" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}

type LogLevelData struct {
	Module string `json:"module,omitempty" example:"eventbus" doc:"Module name, empty for the global level"`
	Level  string `json:"level" enum:"debug,info,warn,error" doc:"New level"`
}

type LogLevelRequest struct {
	Body LogLevelData
}

type LogLevelResponse struct {
	Body LogLevelData
}
