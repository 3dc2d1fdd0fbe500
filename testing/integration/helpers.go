// Package integration exercises stackz across packages and processes.
package integration

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/stackz"
	"github.com/zoobzio/stackz/recorder"
)

// MockCollector wraps a recorder collector with test utilities.
// Collection is synchronous so spans are visible as soon as they finish.
type MockCollector struct {
	*recorder.Collector
	t        *testing.T
	mu       sync.Mutex
	exported []recorder.Span
}

// NewMockCollector creates a collector for testing.
func NewMockCollector(t *testing.T, name string, bufferSize int) *MockCollector {
	collector := recorder.NewCollector(name, bufferSize)
	collector.SetSyncMode(true)
	return &MockCollector{Collector: collector, t: t}
}

// GetAll returns every span collected so far without losing any.
func (m *MockCollector) GetAll() []recorder.Span {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exported = append(m.exported, m.Collector.Export()...)
	all := make([]recorder.Span, len(m.exported))
	copy(all, m.exported)
	return all
}

// WaitForSpans waits until at least expected spans were collected.
func (m *MockCollector) WaitForSpans(expected int, timeout time.Duration) []recorder.Span {
	deadline := time.Now().Add(timeout)
	for {
		spans := m.GetAll()
		if len(spans) >= expected {
			return spans
		}
		if time.Now().After(deadline) {
			m.t.Errorf("Timeout waiting for spans: expected %d, got %d", expected, len(spans))
			return spans
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// AssertSpanNamed returns the first span named name.
func (m *MockCollector) AssertSpanNamed(name string) *recorder.Span {
	spans := m.GetAll()
	for i := range spans {
		if spans[i].Name == name {
			return &spans[i]
		}
	}
	m.t.Errorf("Span named '%s' not found", name)
	return nil
}

// AssertParentChild verifies parent-child relationship.
func (m *MockCollector) AssertParentChild(parentName, childName string) {
	parent, child := m.AssertSpanNamed(parentName), m.AssertSpanNamed(childName)
	if parent == nil || child == nil {
		return
	}
	if child.ParentID != parent.SpanID {
		m.t.Errorf("Parent-child relationship broken: %s is not parent of %s. Child ParentID=%s, Parent SpanID=%s",
			parentName, childName, child.ParentID, parent.SpanID)
	}
	if child.TraceID != parent.TraceID {
		m.t.Errorf("Trace ID mismatch: parent=%s, child=%s", parent.TraceID, child.TraceID)
	}
}

// NewTracer returns a tracer recording into a fresh MockCollector.
// Both are released when the test ends.
func NewTracer(t *testing.T, opts ...stackz.Option) (*stackz.Tracer, *MockCollector) {
	t.Helper()
	rec := recorder.New()
	collector := NewMockCollector(t, t.Name(), 10000)
	rec.AddCollector(collector.Collector)
	t.Cleanup(func() {
		collector.Close()
		rec.Close()
	})
	return stackz.New(rec, opts...), collector
}

// SpanTree represents a hierarchical view of spans.
type SpanTree struct {
	Span     recorder.Span
	Children []*SpanTree
}

// BuildSpanTree constructs a tree from flat span list.
func BuildSpanTree(spans []recorder.Span) []*SpanTree {
	nodes := make(map[string]*SpanTree, len(spans))
	for i := range spans {
		nodes[spans[i].SpanID] = &SpanTree{Span: spans[i]}
	}

	var roots []*SpanTree
	for i := range spans {
		node := nodes[spans[i].SpanID]
		if parent, ok := nodes[spans[i].ParentID]; ok {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}
	return roots
}

// PrintSpanTree formats span tree for debugging.
func PrintSpanTree(trees []*SpanTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *SpanTree, depth int) {
	fmt.Fprintf(sb, "%s%s\n", strings.Repeat("  ", depth), node.Span.Name)
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}

// TraceAnalyzer provides trace-level assertions.
type TraceAnalyzer struct {
	spans  []recorder.Span
	byID   map[string]recorder.Span
	byName map[string][]recorder.Span
	trees  []*SpanTree
}

// NewTraceAnalyzer creates an analyzer for a set of spans.
func NewTraceAnalyzer(spans []recorder.Span) *TraceAnalyzer {
	a := &TraceAnalyzer{
		spans:  spans,
		byID:   make(map[string]recorder.Span, len(spans)),
		byName: make(map[string][]recorder.Span),
	}
	for _, s := range spans {
		a.byID[s.SpanID] = s
		a.byName[s.Name] = append(a.byName[s.Name], s)
	}
	a.trees = BuildSpanTree(spans)
	return a
}

// GetSpan retrieves span by ID.
func (a *TraceAnalyzer) GetSpan(spanID string) (recorder.Span, bool) {
	s, ok := a.byID[spanID]
	return s, ok
}

// GetSpansByName retrieves all spans with given name.
func (a *TraceAnalyzer) GetSpansByName(name string) []recorder.Span {
	return a.byName[name]
}

// CountTrees returns number of root spans.
func (a *TraceAnalyzer) CountTrees() int {
	return len(a.trees)
}

// Root walks up from span to the root of its tree.
func (a *TraceAnalyzer) Root(span recorder.Span) recorder.Span {
	for {
		parent, ok := a.byID[span.ParentID]
		if !ok {
			return span
		}
		span = parent
	}
}

// VerifyChain checks that the first span of each name is the child of the
// previous one.
func (a *TraceAnalyzer) VerifyChain(names ...string) error {
	if len(names) < 2 {
		return fmt.Errorf("chain requires at least 2 spans")
	}
	var prev *recorder.Span
	for i, name := range names {
		spans := a.GetSpansByName(name)
		if len(spans) == 0 {
			return fmt.Errorf("span '%s' not found", name)
		}
		span := spans[0]
		if prev != nil {
			if span.ParentID != prev.SpanID {
				return fmt.Errorf("broken chain: %s is not child of %s", name, names[i-1])
			}
			if span.TraceID != prev.TraceID {
				return fmt.Errorf("broken chain: %s left trace %s", name, prev.TraceID)
			}
		}
		prev = &span
	}
	return nil
}
