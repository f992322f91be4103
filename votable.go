// Package votable reads and writes IVOA VOTable documents with
// streaming, bounded-memory table access.
//
// Reading is a single forward pass: NewReader wraps a byte stream,
// NextTable yields each TABLE together with a lazy RowReader over its
// serialized rows. Rows are decoded on demand in all three table
// serializations (TABLEDATA, BINARY, BINARY2). Writing mirrors this:
// a Writer emits document structure eagerly and streams table rows
// through a compiled encoder without buffering the table.
package votable

import (
	"github.com/brianv0/gavo-sub002/internal/coding"
	"github.com/brianv0/gavo-sub002/internal/dtype"
	"github.com/brianv0/gavo-sub002/internal/tree"
)

// Field is one column declaration of a table.
type Field = tree.Field

// Schema is the ordered column list of one table.
type Schema = tree.Schema

// Row is one decoded table row, one slot per schema field, nil for NULL.
type Row = coding.Row

// WireFormat selects one of the VOTable table serializations.
type WireFormat = coding.WireFormat

// The supported table serializations.
const (
	TableData = coding.TableData
	Binary    = coding.Binary
	Binary2   = coding.Binary2
)

// NewField builds a column declaration from its VOTable attributes.
func NewField(name, datatype, arraysize string) (Field, error) {
	typ, err := dtype.Resolve(datatype, arraysize)
	if err != nil {
		return Field{}, err
	}
	return Field{Name: name, Type: typ}, nil
}

// MustField is NewField for statically known declarations; it panics on
// a bad datatype or arraysize.
func MustField(name, datatype, arraysize string) Field {
	f, err := NewField(name, datatype, arraysize)
	if err != nil {
		panic(err)
	}
	return f
}

// Param is a PARAM declaration with its value decoded to the native
// type of the declaration.
type Param struct {
	Field Field
	Value any
}

// Info is one INFO element.
type Info struct {
	Name  string
	Value string
	Text  string
}

// Table is the metadata view of one parsed TABLE element.
type Table struct {
	doc    *tree.Tree
	ref    tree.Ref
	schema *tree.Schema
	format WireFormat
}

// Name returns the TABLE name attribute.
func (t *Table) Name() string {
	return t.doc.Node(t.ref).Attr("name")
}

// ID returns the TABLE ID attribute, or "".
func (t *Table) ID() string {
	return t.doc.Node(t.ref).Attr("ID")
}

// Attr returns any attribute of the TABLE element.
func (t *Table) Attr(name string) string {
	return t.doc.Node(t.ref).Attr(name)
}

// Schema returns the table's column list.
func (t *Table) Schema() *Schema {
	return t.schema
}

// Format reports the serialization the table's DATA uses.
func (t *Table) Format() WireFormat {
	return t.format
}

// Description returns the text of the table's DESCRIPTION child, or "".
func (t *Table) Description() string {
	if ref, ok := t.doc.FirstChild(t.ref, tree.TagDescr); ok {
		return t.doc.Node(ref).Text
	}
	return ""
}

// Params decodes the PARAM children of the table.
func (t *Table) Params() ([]Param, error) {
	return paramsOf(t.doc, t.ref)
}

func paramsOf(doc *tree.Tree, ref tree.Ref) ([]Param, error) {
	var out []Param
	for _, p := range doc.ChildrenOf(ref, tree.TagParam) {
		f, err := tree.FieldFromElement(doc, p)
		if err != nil {
			return nil, err
		}
		v, err := coding.DecodeParamValue(&f, doc.Node(p).Attr("value"))
		if err != nil {
			return nil, err
		}
		out = append(out, Param{Field: f, Value: v})
	}
	return out, nil
}

func infosOf(doc *tree.Tree, ref tree.Ref) []Info {
	var out []Info
	for _, i := range doc.ChildrenOf(ref, tree.TagInfo) {
		node := doc.Node(i)
		out = append(out, Info{
			Name:  node.Attr("name"),
			Value: node.Attr("value"),
			Text:  node.Text,
		})
	}
	return out
}

// Infos returns the INFO children of the table.
func (t *Table) Infos() []Info {
	return infosOf(t.doc, t.ref)
}
