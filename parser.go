package xmlstream

import "strings"

// ParseEventKind classifies a structural parse event.
type ParseEventKind uint8

const (
	// RootOpened fires once, when the outermost start tag is complete.
	RootOpened ParseEventKind = iota + 1
	// ChildCompleted fires when a direct child of the root closes. Deep
	// descendants are not reported individually; they arrive as subtrees
	// of the reported child.
	ChildCompleted
	// RootClosed fires when the root's end tag closes the document.
	RootClosed
)

// ParseEvent is a structural event produced by ElementStream.
type ParseEvent struct {
	Kind    ParseEventKind
	Element *Element
}

// ElementStream is the incremental push parser. Feed it byte chunks of
// arbitrary size; it accumulates a partial element tree across calls and
// reports structural events in document order. Parsing is all-or-nothing
// for the remainder of the connection: after the first failure every Feed
// returns the same error.
type ElementStream struct {
	tok   tokenizer
	stack []*Element
	root  *Element

	rootOpen   bool
	rootClosed bool
	err        error
}

// NewElementStream returns a parser enforcing the given limits (zero
// fields fall back to defaults).
func NewElementStream(limits Limits) *ElementStream {
	return &ElementStream{tok: tokenizer{limits: limits.withDefaults()}}
}

// Root returns the root placeholder once RootOpened has fired. Completed
// direct children are handed to the caller and never attached to it, so
// an unbounded connection does not accumulate memory.
func (s *ElementStream) Root() *Element {
	return s.root
}

// Feed appends a chunk and returns every structural event it completes, in
// order. When the chunk contains malformed input the events preceding the
// failure are still returned, together with the terminal *ParseError.
func (s *ElementStream) Feed(p []byte) ([]ParseEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tok.feed(p)

	var events []ParseEvent
	for {
		t, ok, err := s.tok.next()
		if err != nil {
			s.err = err
			return events, s.err
		}
		if !ok {
			if err := s.checkPendingText(); err != nil {
				s.err = err
				return events, s.err
			}
			return events, nil
		}
		if err := s.apply(t, &events); err != nil {
			s.err = err
			return events, s.err
		}
	}
}

// checkPendingText rejects buffered character data that can never become
// legal. The tokenizer holds a text run until markup follows it, so
// non-whitespace outside the document element must be failed here; waiting
// for the next '<' would let garbage sit unreported until the connection
// ends.
func (s *ElementStream) checkPendingText() error {
	if len(s.stack) > 0 {
		return nil
	}
	if strings.TrimSpace(string(s.tok.pendingText())) == "" {
		return nil
	}
	if s.rootClosed {
		return parseErrorf("text after document end")
	}
	return parseErrorf("text outside document element")
}

func (s *ElementStream) apply(t token, events *[]ParseEvent) error {
	switch t.kind {
	case tokenStart:
		return s.applyStart(t, events)
	case tokenEnd:
		if len(s.stack) == 0 {
			if s.rootClosed {
				return parseErrorf("end tag </%s> after document end", t.name)
			}
			return parseErrorf("end tag </%s> with no open element", t.name)
		}
		top := s.stack[len(s.stack)-1]
		if top.Name != t.name {
			return parseErrorf("mismatched end tag: </%s> closes <%s>", t.name, top.Name)
		}
		s.closeTop(events)
	case tokenText:
		if len(s.stack) == 0 {
			if strings.TrimSpace(t.text) != "" {
				if s.rootClosed {
					return parseErrorf("text after document end")
				}
				return parseErrorf("text outside document element")
			}
			return nil
		}
		s.stack[len(s.stack)-1].AddText(t.text)
	}
	return nil
}

func (s *ElementStream) applyStart(t token, events *[]ParseEvent) error {
	if s.rootClosed {
		return parseErrorf("element <%s> after document end", t.name)
	}
	if limit := s.tok.limits.MaxDepth; limit > 0 && len(s.stack)+1 > limit {
		return parseErrorf("element nesting exceeds depth %d", limit)
	}

	elem := &Element{Name: t.name, Attrs: t.attrs}
	s.stack = append(s.stack, elem)
	if !s.rootOpen {
		s.rootOpen = true
		s.root = elem
		*events = append(*events, ParseEvent{Kind: RootOpened, Element: elem})
	}
	if t.selfClosing {
		s.closeTop(events)
	}
	return nil
}

// closeTop pops the innermost open element: the root closing ends the
// document, a depth-1 element is surfaced as a completed child, anything
// deeper is attached to its parent.
func (s *ElementStream) closeTop(events *[]ParseEvent) {
	top := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]

	switch len(s.stack) {
	case 0:
		s.rootClosed = true
		*events = append(*events, ParseEvent{Kind: RootClosed, Element: s.root})
	case 1:
		*events = append(*events, ParseEvent{Kind: ChildCompleted, Element: top})
	default:
		parent := s.stack[len(s.stack)-1]
		parent.Children = append(parent.Children, top)
	}
}
