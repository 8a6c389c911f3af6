package codec

import "fmt"

// Fields tracks a declared list of child field names and enforces that a
// decoder consumes them in declared order (§4.5 "Decoder contract"): a
// call naming the wrong next field yields ErrElementOutOfOrder; finishing
// before every declared field was observed yields ErrMissingField.
type Fields struct {
	declared []string
	idx      int
}

// NewFields declares the expected field order for one element's children.
func NewFields(names ...string) *Fields {
	return &Fields{declared: names}
}

// Next asserts that name is the next declared field and advances the
// cursor. Pass "" to accept whichever field is next (used when the caller
// does not care which optional field arrived).
func (f *Fields) Next(name string) error {
	if f.idx >= len(f.declared) {
		return fmt.Errorf("%w: no more fields declared, got %q", ErrElementOutOfOrder, name)
	}
	want := f.declared[f.idx]
	if name != "" && name != want {
		return fmt.Errorf("%w: want %q, got %q", ErrElementOutOfOrder, want, name)
	}
	f.idx++
	return nil
}

// Skip advances past the next declared field without asserting its name,
// for optional fields the caller chooses not to read.
func (f *Fields) Skip() {
	if f.idx < len(f.declared) {
		f.idx++
	}
}

// Done reports whether every declared field was consumed.
func (f *Fields) Done() error {
	if f.idx < len(f.declared) {
		return fmt.Errorf("%w: %q", ErrMissingField, f.declared[f.idx])
	}
	return nil
}

// Remaining reports how many declared fields are still unconsumed.
func (f *Fields) Remaining() int {
	return len(f.declared) - f.idx
}
