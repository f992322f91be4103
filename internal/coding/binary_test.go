package coding

import (
	"bytes"
	"io"
	"math"
	"reflect"
	"testing"

	verrors "github.com/brianv0/gavo-sub002/errors"
)

func encodeRows(t *testing.T, codec *RowCodec, rows []Row) []byte {
	t.Helper()
	var buf bytes.Buffer
	for i, row := range rows {
		if err := codec.EncodeBinaryRow(&buf, row); err != nil {
			t.Fatalf("EncodeBinaryRow(row %d): %v", i, err)
		}
	}
	return buf.Bytes()
}

func decodeRows(t *testing.T, codec *RowCodec, data []byte) []Row {
	t.Helper()
	cur := NewCursor(bytes.NewReader(data))
	var rows []Row
	for {
		row, err := codec.DecodeBinaryRow(cur)
		if err == io.EOF {
			return rows
		}
		if err != nil {
			t.Fatalf("DecodeBinaryRow(row %d): %v", len(rows), err)
		}
		rows = append(rows, row)
	}
}

func TestBinary_SentinelRow(t *testing.T) {
	schema := mkSchema(
		mkField(t, "b", "unsignedByte", "", "255"),
		mkField(t, "s", "short", "", "0"),
	)
	codec := mustCompile(t, schema, Binary)

	rows := []Row{
		{nil, nil},
		{uint8(5), int16(300)},
	}
	got := encodeRows(t, codec, rows)
	want := []byte{0xFF, 0x00, 0x00, 0x05, 0x01, 0x2C}
	if !bytes.Equal(got, want) {
		t.Fatalf("encoded % X, want % X", got, want)
	}

	back := decodeRows(t, codec, got)
	if len(back) != 2 {
		t.Fatalf("decoded %d rows, want 2", len(back))
	}
	if back[0][0] != nil || back[0][1] != nil {
		t.Errorf("row 0 = %#v, want nils", back[0])
	}
	if back[1][0] != uint8(5) || back[1][1] != int16(300) {
		t.Errorf("row 1 = %#v", back[1])
	}
}

func TestBinary_FixedCharPadding(t *testing.T) {
	schema := mkSchema(mkField(t, "tag", "char", "4", ""))
	codec := mustCompile(t, schema, Binary)

	got := encodeRows(t, codec, []Row{{"abc"}})
	want := []byte{'a', 'b', 'c', ' '}
	if !bytes.Equal(got, want) {
		t.Fatalf("encoded % X, want % X", got, want)
	}

	back := decodeRows(t, codec, got)
	if back[0][0] != "abc" {
		t.Errorf("decoded %#v, want %q (trailing pad stripped)", back[0][0], "abc")
	}
}

func TestBinary2_MaskRow(t *testing.T) {
	schema := mkSchema(
		mkField(t, "b", "unsignedByte", "", ""),
		mkField(t, "s", "short", "", ""),
	)
	codec := mustCompile(t, schema, Binary2)

	got := encodeRows(t, codec, []Row{{nil, int16(7)}})
	want := []byte{0x80, 0x00, 0x00, 0x07}
	if !bytes.Equal(got, want) {
		t.Fatalf("encoded % X, want % X", got, want)
	}

	back := decodeRows(t, codec, got)
	if back[0][0] != nil {
		t.Errorf("masked field = %#v, want nil", back[0][0])
	}
	if back[0][1] != int16(7) {
		t.Errorf("field 1 = %#v, want int16(7)", back[0][1])
	}
}

func TestBinary2_MaskLayout(t *testing.T) {
	// Nine fields need two mask bytes; bit i covers field i, MSB first.
	sf := mkSchema(
		mkField(t, "f0", "unsignedByte", "", ""),
		mkField(t, "f1", "unsignedByte", "", ""),
		mkField(t, "f2", "unsignedByte", "", ""),
		mkField(t, "f3", "unsignedByte", "", ""),
		mkField(t, "f4", "unsignedByte", "", ""),
		mkField(t, "f5", "unsignedByte", "", ""),
		mkField(t, "f6", "unsignedByte", "", ""),
		mkField(t, "f7", "unsignedByte", "", ""),
		mkField(t, "f8", "unsignedByte", "", ""),
	)
	codec := mustCompile(t, sf, Binary2)

	row := make(Row, 9)
	for i := range row {
		row[i] = uint8(i)
	}
	row[0] = nil
	row[8] = nil

	got := encodeRows(t, codec, []Row{row})
	if len(got) != 2+9 {
		t.Fatalf("encoded %d bytes, want 11", len(got))
	}
	if got[0] != 0x80 || got[1] != 0x80 {
		t.Errorf("mask = % X, want 80 80", got[:2])
	}

	back := decodeRows(t, codec, got)
	for i, v := range back[0] {
		switch i {
		case 0, 8:
			if v != nil {
				t.Errorf("field %d = %#v, want nil", i, v)
			}
		default:
			if v != uint8(i) {
				t.Errorf("field %d = %#v, want %d", i, v, i)
			}
		}
	}
}

func TestBinary2_MaskWidthProperty(t *testing.T) {
	// One mask bit per field, MSB first, ceil(n/8) mask bytes, for any
	// field count.
	for n := 0; n <= 200; n++ {
		schema := mkSchema()
		for i := 0; i < n; i++ {
			schema.Fields = append(schema.Fields, mkField(t, "f", "unsignedByte", "", ""))
		}
		codec := mustCompile(t, schema, Binary2)

		row := make(Row, n)
		for i := range row {
			if i%3 == 0 {
				row[i] = nil
			} else {
				row[i] = uint8(i % 251)
			}
		}
		data := encodeRows(t, codec, []Row{row})
		maskLen := (n + 7) / 8
		if len(data) != maskLen+n {
			t.Fatalf("n=%d: encoded %d bytes, want %d", n, len(data), maskLen+n)
		}
		for i := 0; i < n; i++ {
			bit := data[i/8]&(0x80>>(i%8)) != 0
			if bit != (row[i] == nil) {
				t.Fatalf("n=%d: mask bit %d = %v, value %#v", n, i, bit, row[i])
			}
		}
		if n == 0 {
			continue
		}
		back := decodeRows(t, codec, data)
		if len(back) != 1 {
			t.Fatalf("n=%d: decoded %d rows, want 1", n, len(back))
		}
		if !reflect.DeepEqual(back[0], row) {
			t.Fatalf("n=%d: round trip mismatch", n)
		}
	}
}

func TestBinary_RoundTripScalars(t *testing.T) {
	tests := []struct {
		name      string
		datatype  string
		arraysize string
		value     any
	}{
		{"boolean", "boolean", "", true},
		{"unsignedByte", "unsignedByte", "", uint8(200)},
		{"short min", "short", "", int16(math.MinInt16)},
		{"short max", "short", "", int16(math.MaxInt16)},
		{"int", "int", "", int32(-123456)},
		{"long", "long", "", int64(math.MaxInt64)},
		{"float", "float", "", float32(0.5)},
		{"double", "double", "", 2.25},
		{"floatComplex", "floatComplex", "", complex64(complex(1, -2))},
		{"doubleComplex", "doubleComplex", "", complex(3.5, 4.5)},
		{"char scalar", "char", "", "x"},
		{"unicodeChar scalar", "unicodeChar", "", "é"},
		{"variable char", "char", "*", "hello"},
		{"fixed unicode", "unicodeChar", "3", "héj"},
		{"int array", "int", "3", []int32{1, -2, 3}},
		{"variable doubles", "double", "*", []float64{0.5, 1.5}},
		{"empty variable", "double", "*", []float64{}},
		{"boolean array", "boolean", "2", []bool{true, false}},
		{"bit run", "bit", "12", []uint8{1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0}},
		{"variable bits", "bit", "*", []uint8{1, 1, 0}},
	}

	for _, format := range []WireFormat{Binary, Binary2} {
		for _, tt := range tests {
			t.Run(format.String()+"/"+tt.name, func(t *testing.T) {
				schema := mkSchema(mkField(t, "v", tt.datatype, tt.arraysize, ""))
				codec := mustCompile(t, schema, format)
				data := encodeRows(t, codec, []Row{{tt.value}})
				back := decodeRows(t, codec, data)
				if len(back) != 1 {
					t.Fatalf("decoded %d rows, want 1", len(back))
				}
				if !reflect.DeepEqual(back[0][0], tt.value) {
					t.Errorf("round trip %#v -> %#v", tt.value, back[0][0])
				}
			})
		}
	}
}

func TestBinary2_NullRoundTripAllKinds(t *testing.T) {
	tests := []struct {
		datatype  string
		arraysize string
	}{
		{"boolean", ""},
		{"unsignedByte", ""},
		{"short", ""},
		{"int", ""},
		{"long", ""},
		{"float", ""},
		{"double", ""},
		{"floatComplex", ""},
		{"doubleComplex", ""},
		{"char", ""},
		{"char", "4"},
		{"char", "*"},
		{"int", "3"},
		{"double", "*"},
		{"bit", "5"},
	}

	for _, tt := range tests {
		t.Run(tt.datatype+"/"+tt.arraysize, func(t *testing.T) {
			schema := mkSchema(mkField(t, "v", tt.datatype, tt.arraysize, ""))
			codec := mustCompile(t, schema, Binary2)
			data := encodeRows(t, codec, []Row{{nil}})
			back := decodeRows(t, codec, data)
			if back[0][0] != nil {
				t.Errorf("null round trip gave %#v, want nil", back[0][0])
			}
		})
	}
}

func TestBinary_FloatNullIsNaN(t *testing.T) {
	schema := mkSchema(mkField(t, "v", "double", "", ""))
	codec := mustCompile(t, schema, Binary)
	data := encodeRows(t, codec, []Row{{nil}})
	if len(data) != 8 {
		t.Fatalf("encoded %d bytes, want 8", len(data))
	}
	if !math.IsNaN(math.Float64frombits(beUint64(data))) {
		t.Fatalf("null double encoded % X, want NaN bits", data)
	}
	back := decodeRows(t, codec, data)
	if back[0][0] != nil {
		t.Errorf("NaN decoded to %#v, want nil", back[0][0])
	}
}

func beUint64(b []byte) uint64 {
	var u uint64
	for _, bb := range b {
		u = u<<8 | uint64(bb)
	}
	return u
}

func TestBinary_MissingNullRepresentation(t *testing.T) {
	schema := mkSchema(mkField(t, "v", "int", "", ""))
	codec := mustCompile(t, schema, Binary)
	var buf bytes.Buffer
	err := codec.EncodeBinaryRow(&buf, Row{nil})
	if !verrors.IsCode(err, verrors.ErrMissingNull) {
		t.Fatalf("error = %v, want missing-null-representation", err)
	}
}

func TestBinary_CleanEOFAtRowBoundary(t *testing.T) {
	schema := mkSchema(mkField(t, "v", "int", "", ""))
	codec := mustCompile(t, schema, Binary)

	cur := NewCursor(bytes.NewReader(nil))
	if _, err := codec.DecodeBinaryRow(cur); err != io.EOF {
		t.Fatalf("empty stream error = %v, want io.EOF", err)
	}

	cur = NewCursor(bytes.NewReader([]byte{0, 0, 0, 1}))
	if _, err := codec.DecodeBinaryRow(cur); err != nil {
		t.Fatalf("first row error: %v", err)
	}
	if _, err := codec.DecodeBinaryRow(cur); err != io.EOF {
		t.Fatalf("boundary error = %v, want io.EOF", err)
	}
}

func TestBinary_CleanEOFFixedArrayFirstColumn(t *testing.T) {
	// A fixed-size array in the first column must still let the stream
	// end cleanly between rows.
	tests := []struct {
		name      string
		datatype  string
		arraysize string
		row       Row
	}{
		{"int array", "int", "3", Row{[]int32{1, 2, 3}}},
		{"boolean array", "boolean", "2", Row{[]bool{true, false}}},
		{"double array", "double", "2", Row{[]float64{0.5, 1.5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := mkSchema(mkField(t, "v", tt.datatype, tt.arraysize, ""))
			codec := mustCompile(t, schema, Binary)
			data := encodeRows(t, codec, []Row{tt.row})
			cur := NewCursor(bytes.NewReader(data))
			if _, err := codec.DecodeBinaryRow(cur); err != nil {
				t.Fatalf("first row error: %v", err)
			}
			if _, err := codec.DecodeBinaryRow(cur); err != io.EOF {
				t.Fatalf("boundary error = %v, want io.EOF", err)
			}

			// Ending inside the array is still a truncated record.
			cur = NewCursor(bytes.NewReader(data[:len(data)-1]))
			if _, err := codec.DecodeBinaryRow(cur); !verrors.IsCode(err, verrors.ErrTruncatedRecord) {
				t.Fatalf("mid-array error = %v, want truncated-record", err)
			}
		})
	}
}

func TestBinary_TruncatedRecord(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
		data   []byte
		format WireFormat
	}{
		{"mid scalar", []string{"int"}, []byte{0, 0}, Binary},
		{"between fields", []string{"int", "int"}, []byte{0, 0, 0, 1}, Binary},
		{"mid count prefix", []string{"double:*"}, []byte{0, 0}, Binary},
		{"after count prefix", []string{"double:*"}, []byte{0, 0, 0, 2, 1, 2}, Binary},
		{"empty binary2 stream", []string{"int"}, nil, Binary2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := make([]struct{ d, a string }, len(tt.fields))
			for i, spec := range tt.fields {
				fields[i].d = spec
				if j := bytes.IndexByte([]byte(spec), ':'); j >= 0 {
					fields[i].d, fields[i].a = spec[:j], spec[j+1:]
				}
			}
			schema := mkSchema()
			for i, f := range fields {
				schema.Fields = append(schema.Fields, mkField(t, string(rune('a'+i)), f.d, f.a, ""))
			}
			codec := mustCompile(t, schema, tt.format)
			cur := NewCursor(bytes.NewReader(tt.data))
			var err error
			for err == nil {
				_, err = codec.DecodeBinaryRow(cur)
			}
			if tt.format == Binary2 && len(tt.data) == 0 {
				// An empty BINARY2 stream is a clean end, not truncation.
				if err != io.EOF {
					t.Fatalf("error = %v, want io.EOF", err)
				}
				return
			}
			if !verrors.IsCode(err, verrors.ErrTruncatedRecord) {
				t.Fatalf("error = %v, want truncated-record", err)
			}
		})
	}
}

func TestBinary_BitPacking(t *testing.T) {
	schema := mkSchema(mkField(t, "flags", "bit", "12", ""))
	codec := mustCompile(t, schema, Binary)

	bits := []uint8{1, 0, 1, 0, 0, 0, 0, 1, 1, 1, 0, 0}
	got := encodeRows(t, codec, []Row{{bits}})
	// MSB first: 10100001 1100(0000)
	want := []byte{0xA1, 0xC0}
	if !bytes.Equal(got, want) {
		t.Fatalf("packed % X, want % X", got, want)
	}
}

func TestBinary_VariableCountPrefix(t *testing.T) {
	schema := mkSchema(mkField(t, "v", "short", "*", ""))
	codec := mustCompile(t, schema, Binary)

	got := encodeRows(t, codec, []Row{{[]int16{1, 2, 3}}})
	want := []byte{0, 0, 0, 3, 0, 1, 0, 2, 0, 3}
	if !bytes.Equal(got, want) {
		t.Fatalf("encoded % X, want % X", got, want)
	}
}

func TestBinary_VariableStringStaysEmpty(t *testing.T) {
	// A zero-length variable char value is an empty string on decode,
	// not NULL: the count prefix cannot distinguish the two.
	schema := mkSchema(mkField(t, "s", "char", "*", ""))
	codec := mustCompile(t, schema, Binary)
	data := encodeRows(t, codec, []Row{{""}})
	back := decodeRows(t, codec, data)
	if back[0][0] != "" {
		t.Errorf("decoded %#v, want empty string", back[0][0])
	}
}

func TestBinary_TrimPadFixedArray(t *testing.T) {
	schema := mkSchema(mkField(t, "v", "double", "3", ""))
	codec := mustCompile(t, schema, Binary)

	data := encodeRows(t, codec, []Row{{[]float64{1, 2}}})
	if len(data) != 24 {
		t.Fatalf("encoded %d bytes, want 24", len(data))
	}
	back := decodeRows(t, codec, data)
	got := back[0][0].([]float64)
	if got[0] != 1 || got[1] != 2 || !math.IsNaN(got[2]) {
		t.Errorf("decoded %#v, want [1 2 NaN]", got)
	}
}

func TestBinary_MultiDimCharUnsupported(t *testing.T) {
	schema := mkSchema(mkField(t, "names", "char", "8x*", ""))
	if _, err := Compile(schema, Binary); !verrors.IsCode(err, verrors.ErrUnsupportedEncoding) {
		t.Fatalf("error = %v, want unsupported-encoding", err)
	}
}

func TestCursor_TakeAndSkip(t *testing.T) {
	cur := NewCursor(bytes.NewReader([]byte{1, 2, 3, 4, 5}))
	b, err := cur.Take(2)
	if err != nil || !bytes.Equal(b, []byte{1, 2}) {
		t.Fatalf("Take(2) = % X, %v", b, err)
	}
	if err := cur.Skip(2); err != nil {
		t.Fatalf("Skip(2): %v", err)
	}
	b, err = cur.Take(1)
	if err != nil || b[0] != 5 {
		t.Fatalf("Take(1) = % X, %v", b, err)
	}
	if cur.Consumed() != 5 {
		t.Errorf("Consumed() = %d, want 5", cur.Consumed())
	}
	if _, err := cur.Take(1); err != io.EOF {
		t.Errorf("Take at end = %v, want io.EOF", err)
	}
	cur = NewCursor(bytes.NewReader([]byte{1}))
	if _, err := cur.Take(2); err != io.ErrUnexpectedEOF {
		t.Errorf("partial Take = %v, want io.ErrUnexpectedEOF", err)
	}
}
