package coding

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strings"
	"unicode/utf16"

	"github.com/brianv0/gavo-sub002/internal/dtype"
	"github.com/brianv0/gavo-sub002/internal/tree"
	verrors "github.com/brianv0/gavo-sub002/errors"
)

// DecodeBinaryRow reads one row from cur. io.EOF marks a clean end of the
// table: the stream ended exactly at a row boundary. Ending anywhere else
// inside the row is a truncated-record error.
func (c *RowCodec) DecodeBinaryRow(cur *Cursor) (Row, error) {
	start := cur.Consumed()
	var mask []byte
	if c.maskBytes > 0 {
		m, err := cur.Take(c.maskBytes)
		if err != nil {
			if errors.Is(err, io.EOF) && cur.Consumed() == start {
				return nil, io.EOF
			}
			return nil, truncated(err)
		}
		mask = append(mask[:0], m...)
	}
	row := make(Row, len(c.fields))
	for i := range c.fields {
		f := &c.fields[i]
		if mask != nil && mask[i/8]&(0x80>>(i%8)) != 0 {
			// The payload bytes are still present and must be consumed;
			// BINARY2 is positionally identical to BINARY.
			if err := f.skipBin(cur); err != nil {
				return nil, truncated(err)
			}
			row[i] = nil
			continue
		}
		v, err := f.decBin(cur)
		if err != nil {
			if i == 0 && c.maskBytes == 0 && errors.Is(err, io.EOF) && cur.Consumed() == start {
				return nil, io.EOF
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, truncated(err)
			}
			return nil, badLiteral(f.name, "", err)
		}
		row[i] = v
	}
	return row, nil
}

func truncated(err error) error {
	return verrors.Wrap(verrors.ErrTruncatedRecord, "binary stream ended mid-row", err)
}

// EncodeBinaryRow appends the packed bytes of one row to dst, including
// the BINARY2 null mask when the codec was compiled for that format.
func (c *RowCodec) EncodeBinaryRow(dst *bytes.Buffer, row Row) error {
	if len(row) != len(c.fields) {
		return verrors.Newf(verrors.ErrBadVOTable,
			"row has %d values, schema has %d fields", len(row), len(c.fields))
	}
	if c.maskBytes > 0 {
		mask := make([]byte, c.maskBytes)
		for i, v := range row {
			if v == nil {
				mask[i/8] |= 0x80 >> (i % 8)
			}
		}
		dst.Write(mask)
	}
	for i := range c.fields {
		if err := c.fields[i].encBin(dst, row[i]); err != nil {
			return err
		}
	}
	return nil
}

// elemCodec packs and unpacks one array element of a numeric kind.
type elemCodec struct {
	width int
	put   func(dst *bytes.Buffer, v any) error
	get   func(b []byte) any
}

func elemCodecFor(kind dtype.Kind) (elemCodec, bool) {
	switch kind {
	case dtype.Boolean:
		return elemCodec{width: 1,
			put: func(dst *bytes.Buffer, v any) error {
				b, ok := v.(bool)
				if !ok {
					return errBadBool
				}
				if b {
					dst.WriteByte('T')
				} else {
					dst.WriteByte('F')
				}
				return nil
			},
			get: func(b []byte) any { return b[0] == 'T' || b[0] == 't' || b[0] == '1' },
		}, true
	case dtype.UnsignedByte:
		return intElem(kind, 1), true
	case dtype.Short:
		return intElem(kind, 2), true
	case dtype.Int:
		return intElem(kind, 4), true
	case dtype.Long:
		return intElem(kind, 8), true
	case dtype.Float:
		return elemCodec{width: 4,
			put: func(dst *bytes.Buffer, v any) error {
				f, ok := floatValue(v)
				if !ok {
					return errNotNumeric
				}
				return putUint(dst, 4, uint64(math.Float32bits(float32(f))))
			},
			get: func(b []byte) any { return math.Float32frombits(binary.BigEndian.Uint32(b)) },
		}, true
	case dtype.Double:
		return elemCodec{width: 8,
			put: func(dst *bytes.Buffer, v any) error {
				f, ok := floatValue(v)
				if !ok {
					return errNotNumeric
				}
				return putUint(dst, 8, math.Float64bits(f))
			},
			get: func(b []byte) any { return math.Float64frombits(binary.BigEndian.Uint64(b)) },
		}, true
	case dtype.FloatComplex:
		return elemCodec{width: 8,
			put: func(dst *bytes.Buffer, v any) error {
				c, ok := complexValue(v)
				if !ok {
					return errNotNumeric
				}
				if err := putUint(dst, 4, uint64(math.Float32bits(float32(real(c))))); err != nil {
					return err
				}
				return putUint(dst, 4, uint64(math.Float32bits(float32(imag(c)))))
			},
			get: func(b []byte) any {
				re := math.Float32frombits(binary.BigEndian.Uint32(b))
				im := math.Float32frombits(binary.BigEndian.Uint32(b[4:]))
				return complex(re, im)
			},
		}, true
	case dtype.DoubleComplex:
		return elemCodec{width: 16,
			put: func(dst *bytes.Buffer, v any) error {
				c, ok := complexValue(v)
				if !ok {
					return errNotNumeric
				}
				if err := putUint(dst, 8, math.Float64bits(real(c))); err != nil {
					return err
				}
				return putUint(dst, 8, math.Float64bits(imag(c)))
			},
			get: func(b []byte) any {
				re := math.Float64frombits(binary.BigEndian.Uint64(b))
				im := math.Float64frombits(binary.BigEndian.Uint64(b[8:]))
				return complex(re, im)
			},
		}, true
	}
	return elemCodec{}, false
}

func intElem(kind dtype.Kind, width int) elemCodec {
	return elemCodec{width: width,
		put: func(dst *bytes.Buffer, v any) error {
			n, ok := intValue(v)
			if !ok {
				return errNotNumeric
			}
			return putUint(dst, width, uint64(n))
		},
		get: func(b []byte) any {
			var u uint64
			for _, bb := range b {
				u = u<<8 | uint64(bb)
			}
			// Sign-extend through the declared width.
			if kind != dtype.UnsignedByte && width < 8 && u >= 1<<(width*8-1) {
				return makeInt(kind, int64(u)-1<<(width*8))
			}
			return makeInt(kind, int64(u))
		},
	}
}

func putUint(dst *bytes.Buffer, width int, u uint64) error {
	for i := width - 1; i >= 0; i-- {
		dst.WriteByte(byte(u >> (8 * i)))
	}
	return nil
}

// putCount writes the 4-byte unsigned big-endian element count that
// precedes every variable-length value.
func putCount(dst *bytes.Buffer, n int) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	dst.Write(b[:])
}

func takeCount(cur *Cursor) (int, error) {
	b, err := cur.Take(4)
	if err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint32(b)), nil
}

// compileBinaryField builds the BINARY payload codec of one field.
// binary2 selects mask-based null handling: encoders write zero-filled
// placeholders for NULL instead of sentinels, and decoders skip sentinel
// comparison (the mask is authoritative).
func compileBinaryField(f *tree.Field, binary2 bool) (func(*Cursor) (any, error), func(*bytes.Buffer, any) error, error) {
	kind := f.Type.Kind
	name := f.Designation()

	// Parse the configured null sentinel, if any.
	var sentinel any
	if f.Null != "" && !binary2 {
		v, err := parseScalar(kind, f.Null)
		if err != nil {
			return nil, nil, badLiteral(name, f.Null, err)
		}
		sentinel = v
	}

	if f.Type.IsScalar() {
		return compileBinaryScalar(f, name, sentinel, binary2)
	}
	switch kind {
	case dtype.Char, dtype.UnicodeChar:
		if f.Type.IsMultiDim() {
			// String arrays are not representable in the packed formats.
			return nil, nil, unsupported(f, Binary)
		}
		return compileBinaryString(f, name, sentinel, binary2)
	case dtype.Bit:
		return compileBinaryBits(f, name, binary2)
	default:
		return compileBinaryArray(f, name, binary2)
	}
}

func compileBinaryScalar(f *tree.Field, name string, sentinel any, binary2 bool) (func(*Cursor) (any, error), func(*bytes.Buffer, any) error, error) {
	kind := f.Type.Kind
	switch kind {
	case dtype.Boolean:
		dec := func(cur *Cursor) (any, error) {
			b, err := cur.Take(1)
			if err != nil {
				return nil, err
			}
			switch b[0] {
			case 'T', 't', '1':
				return true, nil
			case 'F', 'f', '0':
				return false, nil
			case '?', ' ', 0:
				return nil, nil
			default:
				return nil, errBadBool
			}
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
				return badLiteral(name, stringify(v), errBadBool)
			}
			return nil
		}
		return dec, enc, nil

	case dtype.Bit:
		dec := func(cur *Cursor) (any, error) {
			b, err := cur.Take(1)
			if err != nil {
				return nil, err
			}
			return b[0] & 1, nil
		}
		enc := func(dst *bytes.Buffer, v any) error {
			if v == nil {
				if !binary2 {
					return missingNull(name)
				}
				dst.WriteByte(0)
				return nil
			}
			n, ok := intValue(v)
			if !ok || n < 0 || n > 1 {
				return badLiteral(name, stringify(v), errBadBit)
			}
			dst.WriteByte(byte(n))
			return nil
		}
		return dec, enc, nil

	case dtype.Char:
		dec := func(cur *Cursor) (any, error) {
			b, err := cur.Take(1)
			if err != nil {
				return nil, err
			}
			if b[0] == 0 {
				return nil, nil
			}
			s := string(b)
			if sentinel != nil && s == sentinel.(string) {
				return nil, nil
			}
			return s, nil
		}
		enc := func(dst *bytes.Buffer, v any) error {
			if v == nil {
				dst.WriteByte(0)
				return nil
			}
			s, ok := v.(string)
			if !ok || len(s) != 1 {
				return badLiteral(name, stringify(v), errNotNumeric)
			}
			dst.WriteByte(s[0])
			return nil
		}
		return dec, enc, nil

	case dtype.UnicodeChar:
		dec := func(cur *Cursor) (any, error) {
			b, err := cur.Take(2)
			if err != nil {
				return nil, err
			}
			u := binary.BigEndian.Uint16(b)
			if u == 0 {
				return nil, nil
			}
			return string(utf16.Decode([]uint16{u})), nil
		}
		enc := func(dst *bytes.Buffer, v any) error {
			if v == nil {
				dst.Write([]byte{0, 0})
				return nil
			}
			s, ok := v.(string)
			if !ok {
				return badLiteral(name, stringify(v), errNotNumeric)
			}
			units := utf16.Encode([]rune(s))
			if len(units) != 1 {
				return badLiteral(name, s, errNotNumeric)
			}
			return putUint(dst, 2, uint64(units[0]))
		}
		return dec, enc, nil
	}

	ec, ok := elemCodecFor(kind)
	if !ok {
		return nil, nil, unsupported(f, Binary)
	}
	isFloat := kind == dtype.Float || kind == dtype.Double
	isComplex := kind.IsComplex()

	dec := func(cur *Cursor) (any, error) {
		b, err := cur.Take(ec.width)
		if err != nil {
			return nil, err
		}
		v := ec.get(b)
		if isFloat {
			if fv, _ := floatValue(v); math.IsNaN(fv) {
				return nil, nil
			}
		}
		if isComplex {
			if cv, _ := complexValue(v); math.IsNaN(real(cv)) || math.IsNaN(imag(cv)) {
				return nil, nil
			}
		}
		if sentinel != nil && v == sentinel {
			return nil, nil
		}
		return v, nil
	}
	enc := func(dst *bytes.Buffer, v any) error {
		if v == nil {
			switch {
			case isFloat || isComplex:
				return encodeNaN(dst, kind)
			case sentinel != nil:
				return ec.put(dst, sentinel)
			case binary2:
				return putZeros(dst, ec.width)
			default:
				return missingNull(name)
			}
		}
		if err := ec.put(dst, v); err != nil {
			return badLiteral(name, stringify(v), err)
		}
		return nil
	}
	return dec, enc, nil
}

func encodeNaN(dst *bytes.Buffer, kind dtype.Kind) error {
	switch kind {
	case dtype.Float:
		return putUint(dst, 4, uint64(math.Float32bits(float32(math.NaN()))))
	case dtype.Double:
		return putUint(dst, 8, math.Float64bits(math.NaN()))
	case dtype.FloatComplex:
		nan := uint64(math.Float32bits(float32(math.NaN())))
		if err := putUint(dst, 4, nan); err != nil {
			return err
		}
		return putUint(dst, 4, nan)
	default:
		nan := math.Float64bits(math.NaN())
		if err := putUint(dst, 8, nan); err != nil {
			return err
		}
		return putUint(dst, 8, nan)
	}
}

func putZeros(dst *bytes.Buffer, n int) error {
	for i := 0; i < n; i++ {
		dst.WriteByte(0)
	}
	return nil
}

// compileBinaryString handles char and unicodeChar runs: fixed runs are
// padded (spaces in BINARY, NULs in BINARY2), variable runs carry a
// code-unit count prefix.
func compileBinaryString(f *tree.Field, name string, sentinel any, binary2 bool) (func(*Cursor) (any, error), func(*bytes.Buffer, any) error, error) {
	wide := f.Type.Kind == dtype.UnicodeChar
	pad := byte(' ')
	if binary2 {
		pad = 0
	}

	if f.Type.Shape == dtype.Fixed {
		n := f.Type.FixedLen()
		dec := func(cur *Cursor) (any, error) {
			width := n
			if wide {
				width = 2 * n
			}
			b, err := cur.Take(width)
			if err != nil {
				return nil, err
			}
			s := decodeRun(b, wide)
			s = strings.TrimRight(s, " \x00")
			if s == "" {
				return nil, nil
			}
			if sentinel != nil && s == sentinel.(string) {
				return nil, nil
			}
			return s, nil
		}
		enc := func(dst *bytes.Buffer, v any) error {
			s, err := stringValue(name, v)
			if err != nil {
				return err
			}
			if v == nil {
				return putRun(dst, "", wide, n, 0)
			}
			return putRun(dst, s, wide, n, pad)
		}
		return dec, enc, nil
	}

	dec := func(cur *Cursor) (any, error) {
		count, err := takeCount(cur)
		if err != nil {
			return nil, err
		}
		width := count
		if wide {
			width = 2 * count
		}
		b, err := cur.Take(width)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		s := decodeRun(b, wide)
		if s == "" {
			// Mirrors the reference decoder: an absent variable-length
			// string is an empty string, not NULL.
			return "", nil
		}
		if sentinel != nil && s == sentinel.(string) {
			return nil, nil
		}
		return s, nil
	}
	enc := func(dst *bytes.Buffer, v any) error {
		s, err := stringValue(name, v)
		if err != nil {
			return err
		}
		if wide {
			units := utf16.Encode([]rune(s))
			putCount(dst, len(units))
			for _, u := range units {
				if err := putUint(dst, 2, uint64(u)); err != nil {
					return err
				}
			}
			return nil
		}
		putCount(dst, len(s))
		dst.WriteString(s)
		return nil
	}
	return dec, enc, nil
}

func stringValue(name string, v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return "", badLiteral(name, stringify(v), errNotNumeric)
	}
}

func decodeRun(b []byte, wide bool) string {
	if !wide {
		return string(b)
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(units))
}

func putRun(dst *bytes.Buffer, s string, wide bool, fixedLen int, pad byte) error {
	if !wide {
		dst.WriteString(trimString(s, fixedLen, pad))
		return nil
	}
	units := trimUTF16(utf16.Encode([]rune(s)), fixedLen, uint16(pad))
	for _, u := range units {
		if err := putUint(dst, 2, uint64(u)); err != nil {
			return err
		}
	}
	return nil
}

// compileBinaryBits packs bit arrays eight per byte, most significant bit
// first, zero-padding the final byte.
func compileBinaryBits(f *tree.Field, name string, binary2 bool) (func(*Cursor) (any, error), func(*bytes.Buffer, any) error, error) {
	fixed := f.Type.Shape == dtype.Fixed
	n := f.Type.FixedLen()

	dec := func(cur *Cursor) (any, error) {
		count := n
		if !fixed {
			var err error
			count, err = takeCount(cur)
			if err != nil {
				return nil, err
			}
		}
		b, err := cur.Take((count + 7) / 8)
		if err != nil {
			if errors.Is(err, io.EOF) && !fixed {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		bits := make([]uint8, count)
		for i := 0; i < count; i++ {
			if b[i/8]&(0x80>>(i%8)) != 0 {
				bits[i] = 1
			}
		}
		return bits, nil
	}
	enc := func(dst *bytes.Buffer, v any) error {
		bits, err := bitSlice(name, v)
		if err != nil {
			return err
		}
		if v == nil && !binary2 {
			return missingNull(name)
		}
		if fixed {
			bits = trimBits(bits, n)
		} else {
			putCount(dst, len(bits))
		}
		packed := make([]byte, (len(bits)+7)/8)
		for i, bit := range bits {
			if bit != 0 {
				packed[i/8] |= 0x80 >> (i % 8)
			}
		}
		dst.Write(packed)
		return nil
	}
	return dec, enc, nil
}

// compileBinaryArray handles numeric and boolean arrays.
func compileBinaryArray(f *tree.Field, name string, binary2 bool) (func(*Cursor) (any, error), func(*bytes.Buffer, any) error, error) {
	kind := f.Type.Kind
	ec, ok := elemCodecFor(kind)
	if !ok {
		return nil, nil, unsupported(f, Binary)
	}
	fixed := f.Type.Shape == dtype.Fixed
	n := f.Type.FixedLen()

	dec := func(cur *Cursor) (any, error) {
		count := n
		if !fixed {
			var err error
			count, err = takeCount(cur)
			if err != nil {
				return nil, err
			}
		}
		elems := make([]any, count)
		for i := 0; i < count; i++ {
			b, err := cur.Take(ec.width)
			if err != nil {
				// After a count prefix the row has started; a fixed
				// array leaves io.EOF intact so an end of stream at a
				// row boundary stays a clean end of table.
				if errors.Is(err, io.EOF) && !fixed {
					err = io.ErrUnexpectedEOF
				}
				return nil, err
			}
			elems[i] = ec.get(b)
		}
		return narrowSlice(kind, elems), nil
	}
	enc := func(dst *bytes.Buffer, v any) error {
		elems, ok := anySlice(v)
		if !ok {
			return badLiteral(name, stringify(v), errNotNumeric)
		}
		if fixed {
			elems = trimElems(elems, n)
		} else {
			putCount(dst, len(elems))
		}
		for _, e := range elems {
			if e == nil {
				// In-band element nulls: NaN for floating point; packed
				// formats have nothing else to offer inside arrays.
				switch {
				case kind == dtype.Float || kind == dtype.Double || kind.IsComplex():
					if err := encodeNaN(dst, kind); err != nil {
						return err
					}
					continue
				case binary2:
					if err := putZeros(dst, ec.width); err != nil {
						return err
					}
					continue
				default:
					return missingNull(name)
				}
			}
			if err := ec.put(dst, e); err != nil {
				return badLiteral(name, stringify(e), err)
			}
		}
		return nil
	}
	return dec, enc, nil
}

// narrowSlice turns []any of uniform elements back into the typed slice
// decode promises.
func narrowSlice(kind dtype.Kind, elems []any) any {
	switch kind {
	case dtype.Boolean:
		return narrow[bool](elems)
	case dtype.UnsignedByte:
		return narrow[uint8](elems)
	case dtype.Short:
		return narrow[int16](elems)
	case dtype.Int:
		return narrow[int32](elems)
	case dtype.Long:
		return narrow[int64](elems)
	case dtype.Float:
		return narrow[float32](elems)
	case dtype.Double:
		return narrow[float64](elems)
	case dtype.FloatComplex:
		return narrow[complex64](elems)
	case dtype.DoubleComplex:
		return narrow[complex128](elems)
	}
	return elems
}

func narrow[T any](elems []any) []T {
	out := make([]T, len(elems))
	for i, e := range elems {
		out[i] = e.(T)
	}
	return out
}

// compileBinarySkip consumes the payload of a BINARY2-masked field.
func compileBinarySkip(t dtype.Type) func(cur *Cursor) error {
	if w, ok := t.Width(); ok {
		return func(cur *Cursor) error { return cur.Skip(w) }
	}
	elemWidth := t.Kind.ElemWidth()
	isBit := t.Kind == dtype.Bit
	return func(cur *Cursor) error {
		count, err := takeCount(cur)
		if err != nil {
			return err
		}
		width := count * elemWidth
		if isBit {
			width = (count + 7) / 8
		}
		if err := cur.Skip(width); err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		return nil
	}
}
