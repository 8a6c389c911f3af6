package codec

import "fmt"

// Encoder is the format-neutral writer contract (§4.5 "Encoder contract").
type Encoder interface {
	Root(name string) error
	Element(name string) error
	Field(name, value string) error
	Attrib(name, value string) error
	Array(name string) error
	End() error
	Inline(items []Item) error
	ResourceVec(name string, vecs [][]Item) error
	Items() []Item
}

// encState tracks what kind of scope the encoder is currently inside, to
// reject illegal nesting (§4.5: "array in array without element, field
// with no parent element, etc.").
type encState int

const (
	stateRoot encState = iota
	stateElement
	stateArray
)

type encFrame struct {
	state encState
	name  string
}

// StreamEncoder is the shared builder over the neutral event stream.
// Concrete formats call Serialize(enc.Items()) to produce wire bytes.
type StreamEncoder struct {
	items []Item
	stack []encFrame
}

// NewStreamEncoder constructs an empty encoder.
func NewStreamEncoder() *StreamEncoder {
	return &StreamEncoder{}
}

// Items returns the accumulated event stream.
func (e *StreamEncoder) Items() []Item { return e.items }

func (e *StreamEncoder) top() (encFrame, bool) {
	if len(e.stack) == 0 {
		return encFrame{}, false
	}
	return e.stack[len(e.stack)-1], true
}

// Root emits the Root marker and opens the root element's scope.
func (e *StreamEncoder) Root(name string) error {
	if len(e.stack) != 0 {
		return fmt.Errorf("%w: root must be first", ErrIllegalNesting)
	}
	e.items = append(e.items, Item{Kind: RootItem, Name: name})
	e.stack = append(e.stack, encFrame{state: stateElement, name: name})
	return nil
}

// Element opens a child element under the current scope.
func (e *StreamEncoder) Element(name string) error {
	if _, ok := e.top(); !ok {
		return fmt.Errorf("%w: element with no parent scope", ErrIllegalNesting)
	}
	e.items = append(e.items, Item{Kind: BeginElement, Name: name})
	e.stack = append(e.stack, encFrame{state: stateElement, name: name})
	return nil
}

// Field emits a scalar field under the current element.
func (e *StreamEncoder) Field(name, value string) error {
	top, ok := e.top()
	if !ok || top.state == stateRoot {
		return fmt.Errorf("%w: field with no parent element", ErrIllegalNesting)
	}
	e.items = append(e.items, Item{Kind: Field, Name: name, Value: value})
	return nil
}

// Attrib emits an attribute-shaped scalar. The neutral stream has no
// separate attribute item, so this is the same plain Field that
// Field(name, value) emits, with no extension attached.
func (e *StreamEncoder) Attrib(name, value string) error {
	return e.Field(name, value)
}

// Array opens a repeated scope; only legal directly under an element
// (arrays cannot directly nest without an intervening element, per §4.5).
func (e *StreamEncoder) Array(name string) error {
	top, ok := e.top()
	if !ok || top.state == stateArray {
		return fmt.Errorf("%w: array in array without an intervening element", ErrIllegalNesting)
	}
	e.stack = append(e.stack, encFrame{state: stateArray, name: name})
	return nil
}

// End closes the innermost open scope (element or array).
func (e *StreamEncoder) End() error {
	top, ok := e.top()
	if !ok {
		return fmt.Errorf("%w: end with no open scope", ErrIllegalNesting)
	}
	e.stack = e.stack[:len(e.stack)-1]
	if top.state == stateElement {
		e.items = append(e.items, Item{Kind: EndElement})
	}
	return nil
}

// Inline emits a nested payload without its own name wrapper — the items
// are appended directly into the current scope (§4.5 "emit a nested
// payload without a name wrapper").
func (e *StreamEncoder) Inline(items []Item) error {
	if _, ok := e.top(); !ok {
		return fmt.Errorf("%w: inline with no parent scope", ErrIllegalNesting)
	}
	e.items = append(e.items, items...)
	return nil
}

// ResourceVec emits a contained list of resources (§4.5 encoder contract):
// each vec is a complete BeginElement..EndElement item run, wrapped in an
// Array(name)/End() pair.
func (e *StreamEncoder) ResourceVec(name string, vecs [][]Item) error {
	if err := e.Array(name); err != nil {
		return err
	}
	for _, vec := range vecs {
		if err := e.Inline(vec); err != nil {
			return err
		}
	}
	return e.End()
}

// AttachExtension attaches items as the extension list of the most
// recently emitted Field, for encoders reproducing the "_k" / nested
// extension convention (§4.5 extension rule).
func (e *StreamEncoder) AttachExtension(items []Item) error {
	for i := len(e.items) - 1; i >= 0; i-- {
		if e.items[i].Kind == Field {
			e.items[i].Extension = items
			return nil
		}
	}
	return fmt.Errorf("%w: no preceding field to attach an extension to", ErrIllegalNesting)
}
