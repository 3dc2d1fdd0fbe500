package stackz

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// UUIDTag is the tag name used by the default pattern table.
const UUIDTag Tag = "UUID"

var (
	// Canonical 8-4-4-4-12 UUID/GUID text, either case.
	uuidPattern = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)

	// Text already rewritten into a placeholder.
	placeholderPattern = regexp.MustCompile(`<[^<>]*>`)
)

// Pattern pairs a tag name with the expression whose matches are tagged.
type Pattern struct {
	Regexp *regexp.Regexp
	Tag    Tag
}

// NewPattern compiles expr into a Pattern.
func NewPattern(tag Tag, expr string) (Pattern, error) {
	if tag == "" {
		return Pattern{}, fmt.Errorf("%w: empty tag name for %q", ErrInvalidPattern, expr)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: %s: %w", ErrInvalidPattern, tag, err)
	}
	return Pattern{Tag: tag, Regexp: re}, nil
}

// MustPattern is like NewPattern but panics on a bad expression.
func MustPattern(tag Tag, expr string) Pattern {
	p, err := NewPattern(tag, expr)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultPatterns returns the fallback table: a single entry recognizing UUIDs.
func DefaultPatterns() []Pattern {
	return []Pattern{{Tag: UUIDTag, Regexp: uuidPattern}}
}

// PathAndTags is a rewritten path and the values extracted from it.
type PathAndTags struct {
	Tags map[Tag]string
	Path string
}

// piece is a run of path text. Placeholders are never scanned.
type piece struct {
	text        string
	placeholder bool
}

// ExtractPathTags rewrites path into a low-cardinality form.
//
// Patterns are applied in order. Each one scans the path as rewritten by the
// previous ones, left to right, taking non-overlapping matches. The first match
// of a tag name is recorded under the bare name and later ones under name_0,
// name_1 and so on; every match is replaced by "<" + recorded name + ">".
// Existing placeholders are left alone, so extracting twice with the same table
// finds nothing new.
func ExtractPathTags(path string, patterns []Pattern) PathAndTags {
	tags := make(map[Tag]string)
	if len(patterns) == 0 || path == "" {
		return PathAndTags{Path: path, Tags: tags}
	}

	pieces := splitPlaceholders(path)
	seen := make(map[Tag]int, len(patterns))

	for _, p := range patterns {
		if p.Regexp == nil || p.Tag == "" {
			continue
		}
		next := make([]piece, 0, len(pieces))
		for _, pc := range pieces {
			if pc.placeholder {
				next = append(next, pc)
				continue
			}
			matches := p.Regexp.FindAllStringIndex(pc.text, -1)
			if len(matches) == 0 {
				next = append(next, pc)
				continue
			}
			last := 0
			for _, m := range matches {
				if m[0] == m[1] {
					// Empty matches carry no value.
					continue
				}
				name := indexedTag(p.Tag, seen[p.Tag])
				seen[p.Tag]++
				tags[name] = pc.text[m[0]:m[1]]

				if m[0] > last {
					next = append(next, piece{text: pc.text[last:m[0]]})
				}
				next = append(next, piece{text: "<" + name + ">", placeholder: true})
				last = m[1]
			}
			if last < len(pc.text) {
				next = append(next, piece{text: pc.text[last:]})
			}
		}
		pieces = next
	}

	var b strings.Builder
	b.Grow(len(path))
	for _, pc := range pieces {
		b.WriteString(pc.text)
	}
	return PathAndTags{Path: b.String(), Tags: tags}
}

// indexedTag names the i-th occurrence of tag.
func indexedTag(tag Tag, i int) Tag {
	if i == 0 {
		return tag
	}
	return tag + "_" + strconv.Itoa(i-1)
}

func splitPlaceholders(path string) []piece {
	locs := placeholderPattern.FindAllStringIndex(path, -1)
	if len(locs) == 0 {
		return []piece{{text: path}}
	}
	pieces := make([]piece, 0, 2*len(locs)+1)
	last := 0
	for _, l := range locs {
		if l[0] > last {
			pieces = append(pieces, piece{text: path[last:l[0]]})
		}
		pieces = append(pieces, piece{text: path[l[0]:l[1]], placeholder: true})
		last = l[1]
	}
	if last < len(path) {
		pieces = append(pieces, piece{text: path[last:]})
	}
	return pieces
}

// UUIDFromPath replaces the first UUID found in path with <UUID>.
// It reports the UUID and whether one was found.
func UUIDFromPath(path string) (rewritten, uuid string, ok bool) {
	loc := uuidPattern.FindStringIndex(path)
	if loc == nil {
		return path, "", false
	}
	uuid = path[loc[0]:loc[1]]
	return path[:loc[0]] + "<" + UUIDTag + ">" + path[loc[1]:], uuid, true
}
