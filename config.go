package stackz

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Call describes an inbound call as seen by filters and the server protocol.
type Call struct {
	Header http.Header
	Method string
	// Path is the raw request path.
	Path string
	// Route is the matched route template when the host knows it up front,
	// e.g. "/users/{id}" or "/users/:id".
	Route string
}

// Filter reports whether a call must not be traced at all.
type Filter func(call *Call) bool

// TagFunc produces a tag value at span start. Errors and panics omit the tag.
type TagFunc func(ctx context.Context) (string, error)

// TagSource is a named TagFunc.
type TagSource struct {
	Func TagFunc
	Name Tag
}

// Config holds everything a Tracer reads while tracing. It is built once by
// New and never mutated afterwards.
type Config struct {
	Logger       *zap.Logger
	Scopes       ScopeManager
	Filters      []Filter
	Tags         []TagSource
	Patterns     []Pattern
	ClientRoutes []Route
}

// Option configures a Tracer.
type Option func(*Config)

// WithLogger sets the logger for instrumentation diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithScopeManager replaces the stack-backed ScopeManager.
func WithScopeManager(m ScopeManager) Option {
	return func(c *Config) {
		if m != nil {
			c.Scopes = m
		}
	}
}

// WithFilter adds a predicate that suppresses tracing for matching calls.
func WithFilter(f Filter) Option {
	return func(c *Config) {
		if f != nil {
			c.Filters = append(c.Filters, f)
		}
	}
}

// WithPathPrefixFilter suppresses tracing for paths starting with prefix.
func WithPathPrefixFilter(prefix string) Option {
	return WithFilter(func(call *Call) bool {
		return strings.HasPrefix(call.Path, prefix)
	})
}

// WithTag adds a tag evaluated at the start of every span.
func WithTag(name Tag, fn TagFunc) Option {
	return func(c *Config) {
		if name != "" && fn != nil {
			c.Tags = append(c.Tags, TagSource{Name: name, Func: fn})
		}
	}
}

// WithStaticTag adds a tag with a fixed value to every span.
func WithStaticTag(name Tag, value string) Option {
	return WithTag(name, func(context.Context) (string, error) { return value, nil })
}

// WithPatterns adds path tag patterns. They run before DefaultPatterns, in
// the order given.
func WithPatterns(patterns ...Pattern) Option {
	return func(c *Config) {
		c.Patterns = append(c.Patterns, patterns...)
	}
}

// WithPattern adds a single path tag pattern. It panics on a bad expression,
// like regexp.MustCompile; use NewPattern with WithPatterns to handle errors.
func WithPattern(tag Tag, expr string) Option {
	return WithPatterns(MustPattern(tag, expr))
}

// WithClientRoutes declares outbound routes used to name client spans and
// tag their parameters.
func WithClientRoutes(routes ...Route) Option {
	return func(c *Config) {
		c.ClientRoutes = append(c.ClientRoutes, routes...)
	}
}

// WithClientRoute declares one outbound route.
func WithClientRoute(method, template string) Option {
	return WithClientRoutes(MustRoute(method, template))
}

func newConfig(opts []Option) *Config {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Scopes == nil {
		cfg.Scopes = NewStackScopes(cfg.Logger)
	}
	cfg.Patterns = append(cfg.Patterns, DefaultPatterns()...)
	return cfg
}

// filtered reports whether any filter excludes call. A panicking filter
// counts as not matching.
func (c *Config) filtered(call *Call) bool {
	for i, f := range c.Filters {
		if c.runFilter(i, f, call) {
			return true
		}
	}
	return false
}

func (c *Config) runFilter(i int, f Filter, call *Call) (excluded bool) {
	defer func() {
		if r := recover(); r != nil {
			c.Logger.Warn("trace filter panicked", zap.Int("filter", i), zap.Any("panic", r))
			excluded = false
		}
	}()
	return f(call)
}
