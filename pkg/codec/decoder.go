package codec

import "fmt"

// Decoder is the format-neutral reader contract (§4.5 "Decoder contract").
type Decoder interface {
	Root(name string) error
	Element() (string, error)
	PeekElement() (string, bool)
	End() error
	Value(search string) (string, error)
	ValueExtended() (string, error)
	BeginSubstream() error
	EndSubstream() error
	Path() string
}

// substreamFrame marks a nested scope's barrier: the decoder must not
// read past `end` while the frame is active (§4.5 "Sub-streams stack").
type substreamFrame struct {
	end int // exclusive index into items
}

// StreamDecoder is the shared cursor over a parsed neutral event stream.
// Concrete wire formats parse into []Item and hand it to NewStreamDecoder;
// every format then shares this one cursor implementation, which is what
// makes cross-format equivalence (§8) mechanical rather than format-
// specific.
type StreamDecoder struct {
	items            []Item
	pos              int
	stack            []substreamFrame
	path             []string
	pendingExtension []Item
}

// NewStreamDecoder wraps a parsed item stream.
func NewStreamDecoder(items []Item) *StreamDecoder {
	return &StreamDecoder{items: items}
}

// Path returns the current slash-delimited field chain, for PathError.
func (d *StreamDecoder) Path() string {
	out := ""
	for _, p := range d.path {
		out += "/" + p
	}
	if out == "" {
		return "/"
	}
	return out
}

func (d *StreamDecoder) limit() int {
	if len(d.stack) == 0 {
		return len(d.items)
	}
	return d.stack[len(d.stack)-1].end
}

func (d *StreamDecoder) wrap(err error) error {
	return &PathError{Path: d.Path(), Err: err}
}

func (d *StreamDecoder) peek() (Item, bool) {
	if d.pos >= d.limit() {
		return Item{}, false
	}
	return d.items[d.pos], true
}

// Root consumes the top element and asserts its name.
func (d *StreamDecoder) Root(name string) error {
	it, ok := d.peek()
	if !ok || it.Kind != RootItem {
		return d.wrap(fmt.Errorf("%w: expected root element", ErrUnexpectedItem))
	}
	if it.Name != name {
		return d.wrap(fmt.Errorf("%w: want %q, got %q", ErrNameMismatch, name, it.Name))
	}
	d.pos++
	d.path = append(d.path, it.Name)
	return nil
}

// Element consumes the next child BeginElement and returns its name.
func (d *StreamDecoder) Element() (string, error) {
	it, ok := d.peek()
	if !ok || it.Kind != BeginElement {
		return "", d.wrap(fmt.Errorf("%w: expected element", ErrUnexpectedItem))
	}
	d.pos++
	d.path = append(d.path, it.Name)
	return it.Name, nil
}

// PeekElement reports the next child's name without consuming it.
func (d *StreamDecoder) PeekElement() (string, bool) {
	it, ok := d.peek()
	if !ok || it.Kind != BeginElement {
		return "", false
	}
	return it.Name, true
}

// PeekField reports the next child's name if it is a Field, without
// consuming it. Used by adapters that need to recognize one specific
// field (e.g. Bundle's "fullUrl") among a run of fields whose names
// aren't known ahead of time.
func (d *StreamDecoder) PeekField() (string, bool) {
	it, ok := d.peek()
	if !ok || it.Kind != Field {
		return "", false
	}
	return it.Name, true
}

// Subtree consumes the remainder of the element most recently opened by
// Element(), including its matching EndElement, and returns a copy of
// the items it contained (exclusive of that EndElement). Adapters that
// hold heterogeneous sub-resources without decoding them eagerly (e.g.
// Bundle's arena of entries, resolved at query time) use this instead of
// discarding the subtree the way skipSubtree does.
func (d *StreamDecoder) Subtree() ([]Item, error) {
	start := d.pos
	depth := 1
	i := d.pos
	limit := d.limit()
	for i < limit && depth > 0 {
		switch d.items[i].Kind {
		case BeginElement:
			depth++
		case EndElement:
			depth--
		}
		i++
	}
	if depth != 0 {
		return nil, d.wrap(fmt.Errorf("%w: unterminated element", ErrIllegalNesting))
	}
	items := append([]Item{}, d.items[start:i-1]...)
	d.pos = i - 1
	if err := d.End(); err != nil {
		return nil, err
	}
	return items, nil
}

// End consumes one EndElement, plus any pending sub-stream barrier it
// closes: if the cursor stands at the end of the innermost open scope,
// that scope is closed first.
func (d *StreamDecoder) End() error {
	if n := len(d.stack); n > 0 && d.pos == d.stack[n-1].end {
		d.stack = d.stack[:n-1]
	}
	it, ok := d.peek()
	if !ok || it.Kind != EndElement {
		return d.wrap(fmt.Errorf("%w: expected end element", ErrUnexpectedItem))
	}
	d.pos++
	if len(d.path) > 0 {
		d.path = d.path[:len(d.path)-1]
	}
	return nil
}

// Value consumes one Field, optionally asserting its name, and returns
// its value.
func (d *StreamDecoder) Value(search string) (string, error) {
	it, ok := d.peek()
	if !ok || it.Kind != Field {
		return "", d.wrap(fmt.Errorf("%w: expected field", ErrUnexpectedItem))
	}
	if search != "" && it.Name != search {
		return "", d.wrap(fmt.Errorf("%w: want %q, got %q", ErrElementOutOfOrder, search, it.Name))
	}
	d.pos++
	return it.Value, nil
}

// ValueExtended consumes one Field and stages its extension list (if
// any) as pending; it does not enter the extension by itself. A
// following BeginSubstream splices the pending list into the stream at
// the cursor and opens a sub-stream scope bounding it, so subsequent
// decoder calls read from the extension items until the scope is closed.
// Callers that ignore the extension simply never open the scope;
// HasPendingExtension reports whether one is available.
func (d *StreamDecoder) ValueExtended() (string, error) {
	it, ok := d.peek()
	if !ok || it.Kind != Field {
		return "", d.wrap(fmt.Errorf("%w: expected field", ErrUnexpectedItem))
	}
	d.pos++
	d.pendingExtension = it.Extension
	return it.Value, nil
}

// HasPendingExtension reports whether the last ValueExtended call found a
// non-empty extension list not yet entered via BeginSubstream.
func (d *StreamDecoder) HasPendingExtension() bool {
	return len(d.pendingExtension) > 0
}

// BeginSubstream opens a nested scope. If ValueExtended staged a pending
// extension list, that list is spliced into the stream at the cursor and
// the scope bounds exactly that splice (§4.5 "install its extension list
// as a nested stream"). Otherwise the cursor must stand at a
// BeginElement: the scope is bounded by that element's matching
// EndElement (which itself lies outside the scope), preventing the
// caller from reading events past that scope (§4.5 "Sub-streams stack").
func (d *StreamDecoder) BeginSubstream() error {
	if len(d.pendingExtension) > 0 {
		ext := d.pendingExtension
		d.pendingExtension = nil
		head := append([]Item{}, d.items[:d.pos]...)
		tail := append([]Item{}, d.items[d.pos:]...)
		d.items = append(append(head, ext...), tail...)
		d.stack = append(d.stack, substreamFrame{end: d.pos + len(ext)})
		return nil
	}
	end := d.matchingEnd(d.pos)
	if end < 0 {
		return d.wrap(fmt.Errorf("%w: no matching end element", ErrIllegalNesting))
	}
	d.stack = append(d.stack, substreamFrame{end: end})
	return nil
}

// EndSubstream closes the most recently opened sub-stream scope, jumping
// the cursor to its end.
func (d *StreamDecoder) EndSubstream() error {
	if len(d.stack) == 0 {
		return d.wrap(fmt.Errorf("%w: no open sub-stream", ErrSubstreamBarrier))
	}
	frame := d.stack[len(d.stack)-1]
	d.stack = d.stack[:len(d.stack)-1]
	d.pos = frame.end
	return nil
}

// matchingEnd finds the index of the EndElement matching the BeginElement
// stream starting at from, tracking nesting depth.
func (d *StreamDecoder) matchingEnd(from int) int {
	depth := 0
	for i := from; i < len(d.items); i++ {
		switch d.items[i].Kind {
		case BeginElement:
			depth++
		case EndElement:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
