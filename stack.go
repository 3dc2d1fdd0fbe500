package stackz

import (
	"sync"
)

// entry is one activation of a span. Stack identity is decided by entry
// pointer, never by comparing Span values: backends may return spans that are
// not comparable, and distinct no-op spans compare equal.
type entry struct {
	span Span
}

// Stack is the ordered set of active spans of one lineage. The last element is
// the innermost, currently active span.
//
// A Stack belongs to exactly one lineage. Push and Pop are guarded so misuse
// cannot corrupt memory, but two goroutines sharing a Stack still corrupt each
// other's parent linkage; spawn children with Fork.
type Stack struct {
	entries []*entry
	mu      sync.Mutex
}

// NewStack returns a stack seeded with the given spans, outermost first.
func NewStack(seed ...Span) *Stack {
	s := &Stack{entries: make([]*entry, 0, 4)}
	for _, span := range seed {
		if span != nil {
			s.entries = append(s.entries, &entry{span: span})
		}
	}
	return s
}

// Push makes span the active span.
func (s *Stack) Push(span Span) {
	s.push(span)
}

func (s *Stack) push(span Span) *entry {
	if s == nil || span == nil {
		return nil
	}
	e := &entry{span: span}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return e
}

// Pop removes and returns the active span.
// It reports false on an empty stack and never panics.
func (s *Stack) Pop() (Span, bool) {
	e, ok := s.pop()
	if !ok {
		return nil, false
	}
	return e.span, true
}

func (s *Stack) pop() (*entry, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	if n == 0 {
		return nil, false
	}
	e := s.entries[n-1]
	s.entries[n-1] = nil
	s.entries = s.entries[:n-1]
	return e, true
}

// Peek returns the active span without removing it.
func (s *Stack) Peek() (Span, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return nil, false
	}
	return s.entries[len(s.entries)-1].span, true
}

// Len returns the number of active spans.
func (s *Stack) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Snapshot returns a new, independent stack seeded with at most the innermost
// span of s. The child learns its immediate parent and nothing else.
func (s *Stack) Snapshot() *Stack {
	if top, ok := s.Peek(); ok {
		return NewStack(top)
	}
	return NewStack()
}

// popUntil pops entries above e and then e itself, returning the spans that
// were above it, innermost first. If e is not on the stack nothing is removed
// and found is false.
func (s *Stack) popUntil(e *entry) (above []Span, found bool) {
	if s == nil || e == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i] == e {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	for i := len(s.entries) - 1; i > idx; i-- {
		above = append(above, s.entries[i].span)
	}
	for i := idx; i < len(s.entries); i++ {
		s.entries[i] = nil
	}
	s.entries = s.entries[:idx]
	return above, true
}

// Drain empties the stack, returning its spans innermost first.
func (s *Stack) Drain() []Span {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Span, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		out = append(out, s.entries[i].span)
		s.entries[i] = nil
	}
	s.entries = s.entries[:0]
	return out
}
