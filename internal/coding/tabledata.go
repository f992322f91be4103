package coding

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/brianv0/gavo-sub002/internal/dtype"
	"github.com/brianv0/gavo-sub002/internal/tree"
	verrors "github.com/brianv0/gavo-sub002/errors"
)

// DecodeTextRow converts the TD cell texts of one TR into a row.
func (c *RowCodec) DecodeTextRow(cells []string) (Row, error) {
	if len(cells) != len(c.fields) {
		return nil, verrors.Newf(verrors.ErrBadVOTable,
			"row has %d cells, schema has %d fields", len(cells), len(c.fields))
	}
	row := make(Row, len(c.fields))
	for i := range c.fields {
		v, err := c.fields[i].decText(cells[i])
		if err != nil {
			return nil, badLiteral(c.fields[i].name, cells[i], err)
		}
		row[i] = v
	}
	return row, nil
}

// EncodeTextRow appends one <TR> element for row to dst.
func (c *RowCodec) EncodeTextRow(dst *bytes.Buffer, row Row) error {
	if len(row) != len(c.fields) {
		return verrors.Newf(verrors.ErrBadVOTable,
			"row has %d values, schema has %d fields", len(row), len(c.fields))
	}
	dst.WriteString("<TR>")
	for i := range c.fields {
		dst.WriteString("<TD>")
		if err := c.fields[i].encText(dst, row[i]); err != nil {
			return err
		}
		dst.WriteString("</TD>")
	}
	dst.WriteString("</TR>\n")
	return nil
}

// writeEscaped appends s with the XML text specials escaped.
func writeEscaped(dst *bytes.Buffer, s string) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			dst.WriteString("&amp;")
		case '<':
			dst.WriteString("&lt;")
		case '>':
			dst.WriteString("&gt;")
		default:
			dst.WriteByte(s[i])
		}
	}
}

func compileTextField(f *tree.Field) (func(string) (any, error), func(*bytes.Buffer, any) error, error) {
	if f.Type.IsScalar() || f.Type.Kind.IsCharLike() {
		return compileTextScalar(f)
	}
	return compileTextArray(f)
}

// compileTextScalar also covers char/unicodeChar arrays, which TABLEDATA
// treats as plain strings regardless of arraysize.
func compileTextScalar(f *tree.Field) (func(string) (any, error), func(*bytes.Buffer, any) error, error) {
	kind := f.Type.Kind
	null := f.Null
	switch kind {
	case dtype.Boolean:
		dec := func(cell string) (any, error) {
			v, isNull, err := parseBoolLiteral(cell)
			if err != nil {
				return nil, err
			}
			if isNull {
				return nil, nil
			}
			return v, nil
		}
		enc := func(dst *bytes.Buffer, v any) error {
			switch b := v.(type) {
			case nil:
				dst.WriteByte('?')
			case bool:
				if b {
					dst.WriteByte('T')
				} else {
					dst.WriteByte('F')
				}
			default:
				return badLiteral(f.Designation(), stringify(v), errBadBool)
			}
			return nil
		}
		return dec, enc, nil

	case dtype.Bit, dtype.UnsignedByte, dtype.Short, dtype.Int, dtype.Long:
		dec := func(cell string) (any, error) {
			if cell == "" || (null != "" && cell == null) {
				return nil, nil
			}
			return parseScalar(kind, cell)
		}
		enc := func(dst *bytes.Buffer, v any) error {
			if v == nil {
				dst.WriteString(null)
				return nil
			}
			n, ok := intValue(v)
			if !ok {
				return badLiteral(f.Designation(), stringify(v), errNotNumeric)
			}
			if kind == dtype.UnsignedByte {
				dst.WriteString(strconv.FormatUint(uint64(uint8(n)), 10))
			} else {
				dst.WriteString(strconv.FormatInt(n, 10))
			}
			return nil
		}
		return dec, enc, nil

	case dtype.Float, dtype.Double:
		bits := 64
		if kind == dtype.Float {
			bits = 32
		}
		dec := func(cell string) (any, error) {
			// NaN is representable but propagates as NULL, like the
			// configured null literal.
			if cell == "" || cell == "NaN" || (null != "" && cell == null) {
				return nil, nil
			}
			return parseScalar(kind, cell)
		}
		enc := func(dst *bytes.Buffer, v any) error {
			if v == nil {
				// No dedicated null token for floats unless configured.
				if null != "" {
					dst.WriteString(null)
				} else {
					dst.WriteString("NaN")
				}
				return nil
			}
			fv, ok := floatValue(v)
			if !ok {
				return badLiteral(f.Designation(), stringify(v), errNotNumeric)
			}
			dst.WriteString(formatFloat(fv, bits))
			return nil
		}
		return dec, enc, nil

	case dtype.FloatComplex, dtype.DoubleComplex:
		bits := 64
		if kind == dtype.FloatComplex {
			bits = 32
		}
		dec := func(cell string) (any, error) {
			if cell == "" || (null != "" && cell == null) {
				return nil, nil
			}
			v, err := parseComplexLiteral(kind, cell)
			if err != nil {
				return nil, err
			}
			cv, _ := complexValue(v)
			if math.IsNaN(real(cv)) || math.IsNaN(imag(cv)) {
				return nil, nil
			}
			return v, nil
		}
		enc := func(dst *bytes.Buffer, v any) error {
			if v == nil {
				dst.WriteString("NaN NaN")
				return nil
			}
			cv, ok := complexValue(v)
			if !ok {
				return badLiteral(f.Designation(), stringify(v), errNotNumeric)
			}
			dst.WriteString(formatFloat(real(cv), bits))
			dst.WriteByte(' ')
			dst.WriteString(formatFloat(imag(cv), bits))
			return nil
		}
		return dec, enc, nil

	case dtype.Char, dtype.UnicodeChar:
		fixedLen := 0
		if f.Type.Shape == dtype.Fixed {
			fixedLen = f.Type.FixedLen()
		}
		dec := func(cell string) (any, error) {
			if cell == "" {
				return nil, nil
			}
			if null != "" && cell == null {
				return nil, nil
			}
			return cell, nil
		}
		enc := func(dst *bytes.Buffer, v any) error {
			if v == nil {
				return nil
			}
			s, ok := v.(string)
			if !ok {
				return badLiteral(f.Designation(), stringify(v), errNotNumeric)
			}
			if fixedLen > 0 {
				if kind == dtype.UnicodeChar {
					s = string(utf16.Decode(trimUTF16(utf16.Encode([]rune(s)), fixedLen, ' ')))
				} else {
					s = trimString(s, fixedLen, ' ')
				}
			}
			writeEscaped(dst, s)
			return nil
		}
		return dec, enc, nil
	}
	return nil, nil, unsupported(f, TableData)
}

func compileTextArray(f *tree.Field) (func(string) (any, error), func(*bytes.Buffer, any) error, error) {
	kind := f.Type.Kind
	fixedLen := -1
	if f.Type.Shape == dtype.Fixed {
		fixedLen = f.Type.FixedLen()
	}

	if kind == dtype.Bit {
		dec := func(cell string) (any, error) {
			bits := make([]uint8, 0, len(cell))
			for i := 0; i < len(cell); i++ {
				switch cell[i] {
				case '0':
					bits = append(bits, 0)
				case '1':
					bits = append(bits, 1)
				}
			}
			return bits, nil
		}
		enc := func(dst *bytes.Buffer, v any) error {
			bits, err := bitSlice(f.Designation(), v)
			if err != nil {
				return err
			}
			bits = trimBits(bits, fixedLen)
			for _, b := range bits {
				dst.WriteByte('0' + b)
			}
			return nil
		}
		return dec, enc, nil
	}

	// An empty cell decodes to an empty array, not to an array of nulls;
	// this per-type decision must be preserved.
	dec := func(cell string) (any, error) {
		var tokens []string
		if kind.IsComplex() {
			tokens = pairTokens(strings.Fields(cell))
		} else {
			tokens = strings.Fields(cell)
		}
		return parseTokenSlice(kind, tokens)
	}

	null := f.Null
	enc := func(dst *bytes.Buffer, v any) error {
		elems, ok := anySlice(v)
		if !ok {
			return badLiteral(f.Designation(), stringify(v), errNotNumeric)
		}
		elems = trimElems(elems, fixedLen)
		for i, e := range elems {
			if i > 0 {
				dst.WriteByte(' ')
			}
			if err := encodeArrayElem(dst, f, kind, e, null); err != nil {
				return err
			}
		}
		return nil
	}
	return dec, enc, nil
}

// pairTokens joins consecutive tokens into "re im" pairs; a trailing
// unpaired token stands alone.
func pairTokens(tokens []string) []string {
	out := make([]string, 0, (len(tokens)+1)/2)
	for i := 0; i < len(tokens); i += 2 {
		if i+1 < len(tokens) {
			out = append(out, tokens[i]+" "+tokens[i+1])
		} else {
			out = append(out, tokens[i])
		}
	}
	return out
}

// parseTokenSlice builds the typed slice for an array cell.
func parseTokenSlice(kind dtype.Kind, tokens []string) (any, error) {
	switch kind {
	case dtype.Boolean:
		out := make([]bool, 0, len(tokens))
		for _, t := range tokens {
			v, isNull, err := parseBoolLiteral(t)
			if err != nil {
				return nil, err
			}
			// In-band: '?' inside an array degrades to false.
			out = append(out, v && !isNull)
		}
		return out, nil
	case dtype.UnsignedByte:
		return parseNumSlice[uint8](kind, tokens)
	case dtype.Short:
		return parseNumSlice[int16](kind, tokens)
	case dtype.Int:
		return parseNumSlice[int32](kind, tokens)
	case dtype.Long:
		return parseNumSlice[int64](kind, tokens)
	case dtype.Float:
		return parseNumSlice[float32](kind, tokens)
	case dtype.Double:
		return parseNumSlice[float64](kind, tokens)
	case dtype.FloatComplex:
		return parseNumSlice[complex64](kind, tokens)
	case dtype.DoubleComplex:
		return parseNumSlice[complex128](kind, tokens)
	}
	return nil, errNotNumeric
}

func parseNumSlice[T any](kind dtype.Kind, tokens []string) ([]T, error) {
	out := make([]T, 0, len(tokens))
	for _, t := range tokens {
		v, err := parseScalar(kind, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v.(T))
	}
	return out, nil
}

// trimElems applies the fixed-arraysize trim/pad law with a NULL padder.
func trimElems(elems []any, fixedLen int) []any {
	if fixedLen < 0 {
		return elems
	}
	if len(elems) > fixedLen {
		return elems[:fixedLen]
	}
	for len(elems) < fixedLen {
		elems = append(elems, nil)
	}
	return elems
}

// encodeArrayElem writes one array element; NULL elements stay in-band.
func encodeArrayElem(dst *bytes.Buffer, f *tree.Field, kind dtype.Kind, v any, null string) error {
	if v == nil {
		switch {
		case kind == dtype.Float || kind == dtype.Double:
			dst.WriteString("NaN")
		case kind.IsComplex():
			dst.WriteString("NaN NaN")
		case kind == dtype.Boolean:
			dst.WriteByte('?')
		case null != "":
			dst.WriteString(null)
		default:
			return missingNull(f.Designation())
		}
		return nil
	}
	switch kind {
	case dtype.Boolean:
		b, ok := v.(bool)
		if !ok {
			return badLiteral(f.Designation(), stringify(v), errBadBool)
		}
		if b {
			dst.WriteByte('T')
		} else {
			dst.WriteByte('F')
		}
	case dtype.Float:
		fv, ok := floatValue(v)
		if !ok {
			return badLiteral(f.Designation(), stringify(v), errNotNumeric)
		}
		dst.WriteString(formatFloat(fv, 32))
	case dtype.Double:
		fv, ok := floatValue(v)
		if !ok {
			return badLiteral(f.Designation(), stringify(v), errNotNumeric)
		}
		dst.WriteString(formatFloat(fv, 64))
	case dtype.FloatComplex, dtype.DoubleComplex:
		bits := 64
		if kind == dtype.FloatComplex {
			bits = 32
		}
		cv, ok := complexValue(v)
		if !ok {
			return badLiteral(f.Designation(), stringify(v), errNotNumeric)
		}
		dst.WriteString(formatFloat(real(cv), bits))
		dst.WriteByte(' ')
		dst.WriteString(formatFloat(imag(cv), bits))
	default:
		n, ok := intValue(v)
		if !ok {
			return badLiteral(f.Designation(), stringify(v), errNotNumeric)
		}
		dst.WriteString(strconv.FormatInt(n, 10))
	}
	return nil
}

// anySlice widens a typed slice (or []any) into []any for encoding.
func anySlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil:
		return nil, true
	case []any:
		return s, true
	case []bool:
		return widen(s), true
	case []uint8:
		return widen(s), true
	case []int16:
		return widen(s), true
	case []int32:
		return widen(s), true
	case []int64:
		return widen(s), true
	case []float32:
		return widen(s), true
	case []float64:
		return widen(s), true
	case []complex64:
		return widen(s), true
	case []complex128:
		return widen(s), true
	}
	return nil, false
}

func widen[T any](s []T) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func bitSlice(field string, v any) ([]uint8, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case []uint8:
		return s, nil
	case []any:
		out := make([]uint8, 0, len(s))
		for _, e := range s {
			n, ok := intValue(e)
			if !ok || n < 0 || n > 1 {
				return nil, badLiteral(field, stringify(e), errBadBit)
			}
			out = append(out, uint8(n))
		}
		return out, nil
	}
	return nil, badLiteral(field, stringify(v), errBadBit)
}

func trimBits(bits []uint8, fixedLen int) []uint8 {
	if fixedLen < 0 {
		return bits
	}
	if len(bits) > fixedLen {
		return bits[:fixedLen]
	}
	for len(bits) < fixedLen {
		bits = append(bits, 0)
	}
	return bits
}

func stringify(v any) string {
	if v == nil {
		return "<nil>"
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
