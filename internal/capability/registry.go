package capability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/driftframe/uiscript/internal/logging"
)

// Tier classifies an element kind.
type Tier uint8

const (
	TierNotAllowed Tier = iota
	TierCore
	TierExtended
)

// String returns the string representation of the tier.
func (t Tier) String() string {
	switch t {
	case TierCore:
		return "core"
	case TierExtended:
		return "extended"
	default:
		return "not_allowed"
	}
}

// ErrNotAllowed is returned for kinds outside both tiers.
var ErrNotAllowed = errors.New("element kind is not allowed")

// LoadError wraps an Extended tier materialization failure.
type LoadError struct {
	Kind string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load extended tier for kind %q: %v", e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader materializes the Extended tier. The default loader is a no-op;
// hosts that back extended kinds with lazily fetched renderer modules
// plug their own in.
type Loader func(ctx context.Context) error

// coreKinds are available from construction.
var coreKinds = []string{
	"div", "span", "p", "a", "button", "input", "textarea", "select",
	"option", "label", "form", "img", "ul", "ol", "li", "table", "thead",
	"tbody", "tr", "td", "th", "h1", "h2", "h3", "h4", "h5", "h6",
	"header", "footer", "nav", "section", "main", "article", "aside",
}

// extendedKinds are materialized on first reference.
var extendedKinds = []string{
	"video", "audio", "canvas", "svg", "picture", "source", "track",
	"dialog", "details", "summary", "progress", "meter",
}

// deniedKinds can execute or embed foreign content. They are rejected
// unconditionally and there is deliberately no way to configure them in.
var deniedKinds = map[string]struct{}{
	"script":   {},
	"iframe":   {},
	"object":   {},
	"embed":    {},
	"applet":   {},
	"frame":    {},
	"frameset": {},
	"base":     {},
	"link":     {},
	"meta":     {},
}

// Options customizes the kind sets. Additions that collide with the
// denied set are silently discarded.
type Options struct {
	ExtraCore     []string
	ExtraExtended []string
	Loader        Loader
}

// Stats reports tier sizes and load state.
type Stats struct {
	CoreCount          int     `json:"core_count"`
	ExtendedCount      int     `json:"extended_count"`
	ExtendedLoaded     bool    `json:"extended_loaded"`
	CorePercentage     float64 `json:"core_percentage"`
	ExtendedPercentage float64 `json:"extended_percentage"`
}

// Registry answers whether a kind is creatable and whether its tier is
// currently materialized. Safe for concurrent use: the kind sets are
// immutable after construction and the load cache is single-flight.
type Registry struct {
	core     map[string]struct{}
	extended map[string]struct{}

	loadOnce sync.Once
	loadErr  error
	loaded   atomic.Bool
	loader   Loader

	log *logging.Logger
}

// NewRegistry creates a registry with the built-in tiers plus any options.
func NewRegistry(opts Options, log *logging.Logger) *Registry {
	if log == nil {
		log = logging.NewNop()
	}

	r := &Registry{
		core:     make(map[string]struct{}, len(coreKinds)+len(opts.ExtraCore)),
		extended: make(map[string]struct{}, len(extendedKinds)+len(opts.ExtraExtended)),
		loader:   opts.Loader,
		log:      log.Component("capability"),
	}

	for _, k := range coreKinds {
		r.core[k] = struct{}{}
	}
	for _, k := range extendedKinds {
		r.extended[k] = struct{}{}
	}
	for _, k := range opts.ExtraCore {
		if _, denied := deniedKinds[k]; !denied {
			r.core[k] = struct{}{}
		}
	}
	for _, k := range opts.ExtraExtended {
		if _, denied := deniedKinds[k]; !denied {
			r.extended[k] = struct{}{}
		}
	}

	return r
}

// TierOf returns the tier of a kind. Matching is exact-string and
// case-sensitive: a caller using the wrong case requested a kind the
// whitelist does not contain.
func (r *Registry) TierOf(kind string) Tier {
	if _, ok := r.core[kind]; ok {
		return TierCore
	}
	if _, ok := r.extended[kind]; ok {
		return TierExtended
	}
	return TierNotAllowed
}

// IsAllowed reports whether the kind belongs to either tier.
func (r *Registry) IsAllowed(kind string) bool {
	return r.TierOf(kind) != TierNotAllowed
}

// IsLoaded reports whether the kind's tier is currently materialized.
func (r *Registry) IsLoaded(kind string) bool {
	switch r.TierOf(kind) {
	case TierCore:
		return true
	case TierExtended:
		return r.loaded.Load()
	default:
		return false
	}
}

// EnsureLoaded guarantees the kind's tier is materialized. Core kinds
// succeed immediately. The first Extended reference materializes the whole
// Extended tier once; concurrent callers block on the same in-flight load
// and share its result.
func (r *Registry) EnsureLoaded(ctx context.Context, kind string) error {
	switch r.TierOf(kind) {
	case TierCore:
		return nil
	case TierNotAllowed:
		return fmt.Errorf("%w: %q", ErrNotAllowed, kind)
	}

	r.loadOnce.Do(func() {
		if r.loader != nil {
			if err := r.loader(ctx); err != nil {
				r.loadErr = &LoadError{Kind: kind, Err: err}
				r.log.Warn("extended tier load failed",
					zap.String("kind", kind), zap.Error(r.loadErr))
				return
			}
		}
		r.loaded.Store(true)
		r.log.Debug("extended tier materialized", zap.String("trigger", kind))
	})

	return r.loadErr
}

// Preload materializes the Extended tier ahead of first use. Intended for
// idle time; never required for correctness. The returned channel receives
// the load result and is then closed.
func (r *Registry) Preload(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		if len(r.extended) == 0 {
			done <- nil
			return
		}
		var trigger string
		for k := range r.extended {
			trigger = k
			break
		}
		done <- r.EnsureLoaded(ctx, trigger)
	}()
	return done
}

// Stats returns tier sizes and load state.
func (r *Registry) Stats() Stats {
	core := len(r.core)
	extended := len(r.extended)
	total := core + extended

	s := Stats{
		CoreCount:      core,
		ExtendedCount:  extended,
		ExtendedLoaded: r.loaded.Load(),
	}
	if total > 0 {
		s.CorePercentage = float64(core) / float64(total) * 100
		s.ExtendedPercentage = float64(extended) / float64(total) * 100
	}
	return s
}
