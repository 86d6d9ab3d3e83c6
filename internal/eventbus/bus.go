package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Sumatoshi-tech/codefang-index/internal/errs"
)

// Plugin consumes file events. HandleEvent returning a validation-shaped
// error blocks the operation that emitted the event; any other error is
// logged and suppressed.
type Plugin interface {
	Name() string
	HandleEvent(ctx context.Context, ev Event) error
}

// Bus fans events out to plugins concurrently.
type Bus struct {
	Logger *slog.Logger

	plugins []Plugin
}

// Register adds a plugin. Not safe for concurrent use; call during setup,
// before the first Emit.
func (b *Bus) Register(p Plugin) {
	b.plugins = append(b.plugins, p)
}

// Emit delivers the event to every plugin in parallel and joins them. Only
// validation errors propagate; everything else is isolated per plugin.
func (b *Bus) Emit(ctx context.Context, ev Event) error {
	if len(b.plugins) == 0 {
		return nil
	}

	results := make([]error, len(b.plugins))

	var wg sync.WaitGroup

	for i, p := range b.plugins {
		wg.Add(1)

		go func(i int, p Plugin) {
			defer wg.Done()

			results[i] = p.HandleEvent(ctx, ev)
		}(i, p)
	}

	wg.Wait()

	var validationErr error

	for i, err := range results {
		if err == nil {
			continue
		}

		if errors.Is(err, errs.ErrValidation) {
			if validationErr == nil {
				validationErr = err
			}

			continue
		}

		b.logger().WarnContext(ctx, "plugin failed",
			slog.String("plugin", b.plugins[i].Name()),
			slog.String("event", string(ev.Type)),
			slog.Any("error", err))
	}

	return validationErr
}

func (b *Bus) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}

	return slog.Default()
}
