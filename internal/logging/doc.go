// Package logging provides per-module structured loggers on top of log/slog.
//
// Call Initialize once at startup, then ask for a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"eventbus": "debug",
//			"api":      "warn",
//		},
//	})
//
//	logger := logging.GetLogger("sim")
//	logger.Info("Frame processed", "frame", n, "records", delivered)
//
// Loggers handed out before Initialize are cached and pick up their level
// when Initialize runs, because every module owns a slog.LevelVar.
//
// Records go to stdout when it is a terminal, pipe, socket or file, and to
// the systemd journal when journald is reachable. Every record is also kept in
// a bounded History that the HTTP API serves to clients.
//
// Journal entries carry SYSLOG_IDENTIFIER=framebus and one upper-case field
// per attribute:
//
//	journalctl -t framebus MODULE=eventbus
//	journalctl -t framebus -p warning
//
// TOML layout:
//
//	[logging]
//	level = "info"
//	format = "json"
//
//	[logging.modules]
//	eventbus = "debug"
package logging
