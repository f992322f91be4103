package tree

import (
	"fmt"

	"github.com/brianv0/gavo-sub002/internal/dtype"
)

// Field is one column declaration of a table schema.
type Field struct {
	// Name is the FIELD name attribute; ID its ID attribute, if any.
	Name string
	ID   string
	Unit string
	UCD  string
	// Type is the resolved (datatype, arraysize) descriptor.
	Type dtype.Type
	// Null is the null literal configured via VALUES/@null, or "".
	Null string
}

// Designation returns the best human-readable handle for the field.
func (f *Field) Designation() string {
	if f.Name != "" {
		return f.Name
	}
	if f.ID != "" {
		return f.ID
	}
	return "unnamed field"
}

// Schema is the ordered column list of one TABLE. The positional index of
// a field is its slot in every row tuple. Immutable once built.
type Schema struct {
	Fields []Field
}

// Len reports the number of columns.
func (s *Schema) Len() int {
	return len(s.Fields)
}

// FieldFromElement resolves a FIELD or PARAM element into a Field.
func FieldFromElement(t *Tree, ref Ref) (Field, error) {
	node := t.Node(ref)
	typ, err := dtype.Resolve(node.Attr("datatype"), node.Attr("arraysize"))
	if err != nil {
		return Field{}, fmt.Errorf("field %q: %w", node.Attr("name"), err)
	}
	f := Field{
		Name: node.Attr("name"),
		ID:   node.Attr("ID"),
		Unit: node.Attr("unit"),
		UCD:  node.Attr("ucd"),
		Type: typ,
	}
	// The last VALUES child wins, as in the reference implementation.
	for _, v := range t.ChildrenOf(ref, TagValues) {
		if null := t.Node(v).Attr("null"); null != "" {
			f.Null = null
		}
	}
	return f, nil
}

// SchemaFromTable builds the schema of a TABLE element from its FIELD
// children. Call it once the FIELD children are completely parsed.
func SchemaFromTable(t *Tree, table Ref) (*Schema, error) {
	fields := t.ChildrenOf(table, TagField)
	s := &Schema{Fields: make([]Field, 0, len(fields))}
	for _, ref := range fields {
		f, err := FieldFromElement(t, ref)
		if err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, f)
	}
	return s, nil
}
