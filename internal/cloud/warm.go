package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// WarmAll refreshes the cached credentials of every registered provider. A failing provider
// does not stop the others; their errors are joined.
func WarmAll(ctx context.Context, r *Registry) error {
	var errs []error
	for _, p := range r.All() {
		if err := p.Warm(ctx); err != nil {
			slog.WarnContext(ctx, "cloud: warm failed", "provider", p.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		slog.DebugContext(ctx, "cloud: warmed", "provider", p.Name())
	}
	return errors.Join(errs...)
}
