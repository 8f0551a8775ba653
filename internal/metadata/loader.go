package metadata

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/admitly/admissions/pkg/options"
)

// Loader resolves the catalog for one form mount.
type Loader struct {
	primary   Source
	fallback  Source
	timeout   time.Duration
	logger    *slog.Logger
	fallbacks *prometheus.CounterVec
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithTimeout bounds the primary fetch.
func WithTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithFallbackCounter counts fallbacks by primary source name.
func WithFallbackCounter(c *prometheus.CounterVec) LoaderOption {
	return func(l *Loader) {
		l.fallbacks = c
	}
}

// NewLoader creates a loader. A nil fallback means the embedded defaults.
func NewLoader(primary, fallback Source, opts ...LoaderOption) *Loader {
	if fallback == nil {
		fallback = Embedded()
	}
	l := &Loader{
		primary:  primary,
		fallback: fallback,
		logger:   slog.Default().With("component", "metadata"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches the catalog once. It never fails: a primary error yields the
// fallback catalog, and a failing fallback yields the bundled defaults.
func (l *Loader) Load(ctx context.Context) options.Catalog {
	if l.primary == nil {
		return l.loadFallback(ctx)
	}

	fetchCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	catalog, err := l.primary.Load(fetchCtx)
	if err == nil && len(catalog) > 0 {
		return catalog
	}
	if err == nil {
		l.logger.Warn("metadata source returned no option sets, using fallback",
			"source", l.primary.Name(),
			"fallback", l.fallback.Name(),
		)
	} else {
		l.logger.Warn("metadata fetch failed, using fallback",
			"source", l.primary.Name(),
			"fallback", l.fallback.Name(),
			"error", err,
		)
	}
	if l.fallbacks != nil {
		l.fallbacks.WithLabelValues(l.primary.Name()).Inc()
	}
	return l.loadFallback(ctx)
}

func (l *Loader) loadFallback(ctx context.Context) options.Catalog {
	catalog, err := l.fallback.Load(ctx)
	if err == nil {
		return catalog
	}
	l.logger.Error("metadata fallback failed, using bundled defaults",
		"fallback", l.fallback.Name(),
		"error", err,
	)
	return Defaults()
}
