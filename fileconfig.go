package stackz

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format is a configuration file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var (
	// ErrUnsupportedFormat reports a configuration encoding other than YAML or JSON.
	ErrUnsupportedFormat = errors.New("stackz: unsupported config format")

	// ErrConfigLoad reports a configuration file that could not be read or parsed.
	ErrConfigLoad = errors.New("stackz: config load failed")
)

// FileConfig is the declarative part of a Tracer's configuration.
//
//	patterns:
//	  - tag: ORDER
//	    expr: "order-[0-9]+"
//	client_routes:
//	  - method: GET
//	    template: /users/{id}
//	filters:
//	  - /health
//	tags:
//	  service: checkout
type FileConfig struct {
	Patterns     []PatternConfig   `koanf:"patterns"`
	ClientRoutes []RouteConfig     `koanf:"client_routes"`
	Filters      []string          `koanf:"filters"`
	Tags         map[string]string `koanf:"tags"`
}

// PatternConfig declares one tag pattern.
type PatternConfig struct {
	Tag  string `koanf:"tag"`
	Expr string `koanf:"expr"`
}

// RouteConfig declares one outbound route.
type RouteConfig struct {
	Method   string `koanf:"method"`
	Template string `koanf:"template"`
}

// LoadFile reads a YAML or JSON configuration file, picking the parser by
// extension.
func LoadFile(path string) (*FileConfig, error) {
	var format Format
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		format = FormatYAML
	case ".json":
		format = FormatJSON
	default:
		return nil, fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigLoad, err)
	}
	return LoadBytes(data, format)
}

// LoadBytes parses configuration held in memory. Empty data yields an empty
// FileConfig.
func LoadBytes(data []byte, format Format) (*FileConfig, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	fc := &FileConfig{}
	if len(data) == 0 {
		return fc, nil
	}
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigLoad, err)
	}
	if err := k.UnmarshalWithConf("", fc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigLoad, err)
	}
	return fc, nil
}

// Options converts the file configuration into Tracer options. Every pattern
// is compiled and every route parsed up front; the first failure is returned.
func (fc *FileConfig) Options() ([]Option, error) {
	if fc == nil {
		return nil, nil
	}
	var opts []Option

	patterns := make([]Pattern, 0, len(fc.Patterns))
	for _, pc := range fc.Patterns {
		p, err := NewPattern(pc.Tag, pc.Expr)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	if len(patterns) > 0 {
		opts = append(opts, WithPatterns(patterns...))
	}

	routes := make([]Route, 0, len(fc.ClientRoutes))
	for _, rc := range fc.ClientRoutes {
		r, err := ParseRoute(rc.Method, rc.Template)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	if len(routes) > 0 {
		opts = append(opts, WithClientRoutes(routes...))
	}

	for _, prefix := range fc.Filters {
		if prefix != "" {
			opts = append(opts, WithPathPrefixFilter(prefix))
		}
	}
	for _, name := range slices.Sorted(maps.Keys(fc.Tags)) {
		opts = append(opts, WithStaticTag(name, fc.Tags[name]))
	}
	return opts, nil
}
