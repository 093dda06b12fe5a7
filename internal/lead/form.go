package lead

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrNoRecord      = errors.New("no lead record loaded")
	ErrUnknownField  = errors.New("unknown form field")
	ErrRequiredField = errors.New("required field is empty")
)

// Form is the controlled state behind the lead capture form. It holds only
// local, transient values; the session owns the pending record itself.
type Form struct {
	loadedID uint64
	loaded   bool
	layout   Layout
	values   map[string]string
	required []string
}

// NewForm returns an empty form. Fields named in required must be filled
// before Submit succeeds; by default every field may be left empty.
func NewForm(required ...string) *Form {
	return &Form{layout: LayoutCombined, values: map[string]string{}, required: slices.Clone(required)}
}

// Load seeds the form from a pending record. Values are reset only when id
// differs from the currently loaded record, so repeated notifications for the
// same record keep the visitor's edits.
func (f *Form) Load(id uint64, r Record) bool {
	if f.loaded && f.loadedID == id {
		return false
	}
	f.loadedID = id
	f.loaded = true
	f.layout = r.Layout()
	f.values = make(map[string]string, len(f.layout.Fields()))
	for _, field := range f.layout.Fields() {
		f.values[field] = r.Get(field)
	}
	return true
}

// Loaded reports whether a record is loaded and its identity.
func (f *Form) Loaded() (uint64, bool) {
	return f.loadedID, f.loaded
}

func (f *Form) Layout() Layout { return f.layout }

// Fields returns the visible field names in display order.
func (f *Form) Fields() []string { return f.layout.Fields() }

func (f *Form) Required(field string) bool {
	return slices.Contains(f.required, field)
}

func (f *Form) Value(field string) string { return f.values[field] }

// Set edits a single visible field.
func (f *Form) Set(field, value string) error {
	if !f.loaded {
		return ErrNoRecord
	}
	if !slices.Contains(f.layout.Fields(), field) {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	f.values[field] = value
	return nil
}

// Values returns a copy of the current local state.
func (f *Form) Values() Record {
	out := make(Record, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Submit packages the current values. The form is cleared on success; a
// missing required value leaves it loaded so the visitor can fix it.
func (f *Form) Submit() (Record, error) {
	if !f.loaded {
		return nil, ErrNoRecord
	}
	for _, field := range f.required {
		if !slices.Contains(f.layout.Fields(), field) {
			continue
		}
		if f.values[field] == "" {
			return nil, fmt.Errorf("%w: %s", ErrRequiredField, field)
		}
	}
	out := f.Values()
	f.reset()
	return out, nil
}

// Cancel discards local state without producing a record.
func (f *Form) Cancel() {
	f.reset()
}

func (f *Form) reset() {
	f.loaded = false
	f.loadedID = 0
	f.layout = LayoutCombined
	f.values = map[string]string{}
}
