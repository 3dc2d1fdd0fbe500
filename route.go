package stackz

import (
	"fmt"
	"net/http"
	"strings"
)

// SegmentKind distinguishes fixed path text from route parameters.
type SegmentKind int

const (
	// Literal segments must match the concrete path exactly.
	Literal SegmentKind = iota
	// Parameter segments capture the concrete segment under Value.
	Parameter
)

// Segment is one slash-separated part of a path or route template.
type Segment struct {
	// Value is the literal text or the parameter name.
	Value string
	// Raw is the segment as written, e.g. "{id}" or ":id".
	Raw      string
	Kind     SegmentKind
	catchAll bool
}

// ParseSegments splits path on "/" and classifies each segment.
// "{name}", ":name", "*name" and "{name...}" are parameters; the last two
// are catch-alls and never match a fixed number of concrete segments.
func ParseSegments(path string) []Segment {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	segments := make([]Segment, len(parts))
	for i, part := range parts {
		segments[i] = parseSegment(part)
	}
	return segments
}

func parseSegment(raw string) Segment {
	switch {
	case len(raw) > 2 && raw[0] == '{' && raw[len(raw)-1] == '}':
		name := raw[1 : len(raw)-1]
		if name == "$" {
			// net/http end-of-path anchor.
			return Segment{Kind: Literal, Raw: raw}
		}
		if trimmed, ok := strings.CutSuffix(name, "..."); ok {
			return Segment{Kind: Parameter, Value: trimmed, Raw: raw, catchAll: true}
		}
		return Segment{Kind: Parameter, Value: name, Raw: raw}
	case len(raw) > 1 && raw[0] == ':':
		return Segment{Kind: Parameter, Value: raw[1:], Raw: raw}
	case len(raw) > 1 && raw[0] == '*':
		return Segment{Kind: Parameter, Value: raw[1:], Raw: raw, catchAll: true}
	default:
		return Segment{Kind: Literal, Value: raw, Raw: raw}
	}
}

// Route is a declared route template, optionally bound to a method.
type Route struct {
	Method   string
	Template string
	Segments []Segment
}

// ParseRoute parses template into a Route. An empty method matches any method.
func ParseRoute(method, template string) (Route, error) {
	if template == "" {
		return Route{}, fmt.Errorf("%w: empty template", ErrInvalidRoute)
	}
	return Route{
		Method:   strings.ToUpper(method),
		Template: template,
		Segments: ParseSegments(template),
	}, nil
}

// MustRoute is like ParseRoute but panics on an invalid declaration.
func MustRoute(method, template string) Route {
	r, err := ParseRoute(method, template)
	if err != nil {
		panic(err)
	}
	return r
}

// GetRoute declares a GET route.
func GetRoute(template string) Route { return MustRoute(http.MethodGet, template) }

// PostRoute declares a POST route.
func PostRoute(template string) Route { return MustRoute(http.MethodPost, template) }

// PutRoute declares a PUT route.
func PutRoute(template string) Route { return MustRoute(http.MethodPut, template) }

// MatchResult is the outcome of comparing a template against a concrete path.
type MatchResult struct {
	Tags map[Tag]string
	// Path is the concrete path with parameter positions restored to their
	// template tokens.
	Path    string
	Matched bool
}

// Match compares the template against fully resolved concrete segments.
//
// Segment counts must be equal and every literal must match exactly. The
// concrete path may not itself contain parameters. The rewritten Path is built
// by segment index, so a parameter value that happens to equal some other
// literal segment never disturbs that segment.
func (r Route) Match(concrete []Segment) MatchResult {
	if len(concrete) != len(r.Segments) {
		return MatchResult{}
	}
	for _, c := range concrete {
		if c.Kind == Parameter {
			return MatchResult{}
		}
	}

	tags := make(map[Tag]string)
	out := make([]string, len(r.Segments))
	for i, seg := range r.Segments {
		value := concrete[i].Raw
		switch seg.Kind {
		case Literal:
			if seg.Value != value {
				return MatchResult{}
			}
			out[i] = value
		case Parameter:
			if seg.catchAll {
				return MatchResult{}
			}
			tags[seg.Value] = value
			out[i] = seg.Raw
		}
	}
	return MatchResult{Matched: true, Tags: tags, Path: "/" + strings.Join(out, "/")}
}

// MatchPath matches the template against a concrete request path.
func (r Route) MatchPath(path string) MatchResult {
	return r.Match(ParseSegments(path))
}

// MatchRequest matches method and path. An empty route method matches any.
func (r Route) MatchRequest(method, path string) MatchResult {
	if r.Method != "" && !strings.EqualFold(r.Method, method) {
		return MatchResult{}
	}
	return r.MatchPath(path)
}

// MatchRoutes returns the first declared route matching method and path.
func MatchRoutes(routes []Route, method, path string) (Route, MatchResult, bool) {
	for _, r := range routes {
		if res := r.MatchRequest(method, path); res.Matched {
			return r, res, true
		}
	}
	return Route{}, MatchResult{}, false
}

// routeFromPattern turns a net/http ServeMux pattern ("GET host/path/{id}")
// into a Route. Host-qualified patterns keep only the path.
func routeFromPattern(pattern string) (Route, bool) {
	if pattern == "" {
		return Route{}, false
	}
	method := ""
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		method, pattern = pattern[:i], strings.TrimLeft(pattern[i+1:], " ")
	}
	if i := strings.IndexByte(pattern, '/'); i > 0 {
		pattern = pattern[i:]
	}
	r, err := ParseRoute(method, pattern)
	if err != nil {
		return Route{}, false
	}
	return r, true
}
