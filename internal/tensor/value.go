package tensor

import (
	"fmt"
	"strings"
)

// Value is anything a trace operation can materialize to:
// a dense tensor or a composite struct of named fields.
// The set is closed; trace evaluation switches exhaustively over it.
type Value interface {
	isValue()
	// Signature renders a stable structural type signature, used in
	// gradient cache keys ("f64[2]", "{a:f64[];b:f64[]}").
	Signature() string
}

func (t *RawTensor) isValue() {}
func (s *Struct) isValue()    {}

// Signature implements Value.
func (t *RawTensor) Signature() string {
	return t.String()
}

// ShapeOf returns the shape of a tensor-valued Value.
// Composite values have no shape; ok is false for them.
func ShapeOf(v Value) (Shape, bool) {
	t, ok := v.(*RawTensor)
	if !ok {
		return nil, false
	}
	return t.Shape(), true
}

// Struct is a composite value with named fields in insertion order.
// Fields may themselves be composite.
type Struct struct {
	names  []string
	fields map[string]Value
}

// NewStruct creates an empty composite value.
func NewStruct() *Struct {
	return &Struct{fields: make(map[string]Value)}
}

// Set adds or replaces a field and returns the struct for chaining.
func (s *Struct) Set(name string, v Value) *Struct {
	if _, ok := s.fields[name]; !ok {
		s.names = append(s.names, name)
	}
	s.fields[name] = v
	return s
}

// Field returns the named field value.
func (s *Struct) Field(name string) (Value, bool) {
	v, ok := s.fields[name]
	return v, ok
}

// Names returns the field names in insertion order.
func (s *Struct) Names() []string {
	return s.names
}

// Signature implements Value. Two structs share a signature exactly when
// they have the same fields with structurally identical values.
func (s *Struct) Signature() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, name := range s.names {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%s:%s", name, s.fields[name].Signature())
	}
	b.WriteByte('}')
	return b.String()
}

// String renders the signature.
func (s *Struct) String() string {
	return s.Signature()
}
