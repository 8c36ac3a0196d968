package sim

import (
	"context"
	"log/slog"
	"time"

	"github.com/smazurov/framebus/internal/config"
)

// Watch reloads the simulator whenever the scenario file at path changes.
// Call Stop on the returned watcher to end it.
func (s *Simulator) Watch(ctx context.Context, path string, logger *slog.Logger, debounce time.Duration) (*config.Watcher[config.Scenario], error) {
	opts := []config.WatcherOption[config.Scenario]{
		config.WithErrorHandler[config.Scenario](func(err error) {
			s.publishReload(config.Scenario{Name: s.Scenario().Name}, err)
		}),
	}
	if debounce > 0 {
		opts = append(opts, config.WithDebounce[config.Scenario](debounce))
	}

	w := config.NewConfigWatcher(path, config.LoadScenario, logger, opts...)
	w.OnReload(func(sc config.Scenario) {
		// Rejections are logged and published by Reload.
		_ = s.Reload(sc)
	})
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}
