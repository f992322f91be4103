// Package coding compiles table schemas into per-row encode/decode
// routines for the three VOTable wire formats.
//
// Compilation selects one primitive codec per column from a closed
// dispatch keyed by (datatype, shape, format) and composes them into a
// single row codec applied to every row of a table. A compiled codec is
// immutable and safe for shared read-only use.
//
// Row values use these Go types: boolean bool, bit uint8, unsignedByte
// uint8, short int16, int int32, long int64, float float32, double
// float64, floatComplex complex64, doubleComplex complex128, char and
// unicodeChar string (scalars and character arrays alike). Arrays are
// typed slices of the element type. NULL is untyped nil. Inside numeric
// arrays nulls stay in-band (NaN for floating point, the configured
// sentinel for integers), matching the wire formats themselves.
package coding

import (
	"bytes"
	"fmt"

	"github.com/brianv0/gavo-sub002/internal/dtype"
	"github.com/brianv0/gavo-sub002/internal/tree"
	verrors "github.com/brianv0/gavo-sub002/errors"
)

// WireFormat selects one of the VOTable table serializations.
type WireFormat uint8

const (
	TableData WireFormat = iota
	Binary
	Binary2
)

// String returns the DATA child tag for the format.
func (f WireFormat) String() string {
	switch f {
	case TableData:
		return "TABLEDATA"
	case Binary:
		return "BINARY"
	case Binary2:
		return "BINARY2"
	default:
		return "unknown"
	}
}

// ParseWireFormat resolves a DATA child tag into a wire format.
func ParseWireFormat(tag string) (WireFormat, error) {
	switch tag {
	case tree.TagTableData:
		return TableData, nil
	case tree.TagBinary:
		return Binary, nil
	case tree.TagBinary2:
		return Binary2, nil
	case tree.TagFITS:
		return 0, verrors.New(verrors.ErrUnsupportedEncoding, "FITS-embedded DATA is not supported")
	default:
		return 0, verrors.Newf(verrors.ErrBadVOTable, "unknown table serialization %q", tag)
	}
}

// Row is one decoded table row: one slot per schema field, nil for NULL.
type Row []any

// fieldCodec is the compiled codec of a single column.
type fieldCodec struct {
	name string
	typ  dtype.Type
	// TABLEDATA: cell text to value and back.
	decText func(cell string) (any, error)
	encText func(dst *bytes.Buffer, v any) error
	// BINARY/BINARY2 payload (without the BINARY2 mask).
	decBin func(cur *Cursor) (any, error)
	encBin func(dst *bytes.Buffer, v any) error
	// skipBin consumes the payload of a BINARY2-masked field.
	skipBin func(cur *Cursor) error
}

// RowCodec encodes and decodes the rows of one table in one wire format.
// Stateless after compilation.
type RowCodec struct {
	format    WireFormat
	fields    []fieldCodec
	maskBytes int
}

// Format returns the wire format the codec was compiled for.
func (c *RowCodec) Format() WireFormat {
	return c.format
}

// Len reports the number of columns.
func (c *RowCodec) Len() int {
	return len(c.fields)
}

// Compile builds the row codec for schema in the given format.
func Compile(schema *tree.Schema, format WireFormat) (*RowCodec, error) {
	c := &RowCodec{
		format: format,
		fields: make([]fieldCodec, 0, len(schema.Fields)),
	}
	if format == Binary2 {
		c.maskBytes = (len(schema.Fields) + 7) / 8
	}
	for i := range schema.Fields {
		f := &schema.Fields[i]
		fc, err := compileField(f, format)
		if err != nil {
			return nil, err
		}
		c.fields = append(c.fields, fc)
	}
	return c, nil
}

func compileField(f *tree.Field, format WireFormat) (fieldCodec, error) {
	fc := fieldCodec{name: f.Designation(), typ: f.Type}
	var err error
	switch format {
	case TableData:
		fc.decText, fc.encText, err = compileTextField(f)
	case Binary:
		fc.decBin, fc.encBin, err = compileBinaryField(f, false)
	case Binary2:
		fc.decBin, fc.encBin, err = compileBinaryField(f, true)
		if err == nil {
			fc.skipBin = compileBinarySkip(f.Type)
		}
	default:
		err = verrors.Newf(verrors.ErrUnsupportedEncoding, "unknown wire format %d", format)
	}
	if err != nil {
		if ce, ok := err.(*verrors.Codec); ok && ce.Field == "" {
			ce.Field = fc.name
		}
		return fieldCodec{}, err
	}
	return fc, nil
}

// badLiteral wraps a conversion failure for one field.
func badLiteral(field, value string, err error) error {
	return verrors.BadLiteral(field, value, err)
}

func unsupported(f *tree.Field, format WireFormat) error {
	return &verrors.Codec{
		Code:    verrors.ErrUnsupportedEncoding,
		Message: fmt.Sprintf("no %s codec for datatype %s arraysize %q", format, f.Type.Kind, f.Type.Arraysize()),
		Field:   f.Designation(),
	}
}

func missingNull(name string) error {
	return &verrors.Codec{
		Code:    verrors.ErrMissingNull,
		Message: "NULL value but no null literal configured",
		Field:   name,
	}
}
