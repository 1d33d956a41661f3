package checkpoint

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Encoder collects the named fields of one component.
type Encoder struct {
	fields map[string]yaml.Node
}

func newEncoder() *Encoder {
	return &Encoder{fields: make(map[string]yaml.Node)}
}

// Encode stores v under name. v must be encodable by gopkg.in/yaml.v3.
func (e *Encoder) Encode(name string, v any) error {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return fmt.Errorf("encode field %q: %w", name, err)
	}
	e.fields[name] = n
	return nil
}

// Decoder reads the named fields of one component.
type Decoder struct {
	fields map[string]yaml.Node
}

// Decode decodes the field name into v. A missing field or a value that
// does not fit v is a schema mismatch.
func (d *Decoder) Decode(name string, v any) error {
	n, ok := d.fields[name]
	if !ok {
		return fmt.Errorf("%w: field %q missing", ErrSchemaMismatch, name)
	}
	if err := n.Decode(v); err != nil {
		return fmt.Errorf("%w: field %q: %v", ErrSchemaMismatch, name, err)
	}
	return nil
}
