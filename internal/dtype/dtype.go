// Package dtype resolves VOTable (datatype, arraysize) declarations into
// type descriptors: element kind, array shape, and wire widths.
package dtype

import (
	"strconv"
	"strings"

	verrors "github.com/brianv0/gavo-sub002/errors"
)

// Kind identifies a VOTable primitive datatype.
type Kind uint8

const (
	Boolean Kind = iota
	Bit
	UnsignedByte
	Short
	Int
	Long
	Char
	UnicodeChar
	Float
	Double
	FloatComplex
	DoubleComplex
)

var kindNames = map[string]Kind{
	"boolean":       Boolean,
	"bit":           Bit,
	"unsignedByte":  UnsignedByte,
	"short":         Short,
	"int":           Int,
	"long":          Long,
	"char":          Char,
	"unicodeChar":   UnicodeChar,
	"float":         Float,
	"double":        Double,
	"floatComplex":  FloatComplex,
	"doubleComplex": DoubleComplex,
}

// String returns the VOTable name of the datatype.
func (k Kind) String() string {
	for name, kind := range kindNames {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// ElemWidth returns the BINARY width in bytes of one element of kind k.
// Bit is reported as 1; bit arrays pack eight elements per byte.
func (k Kind) ElemWidth() int {
	switch k {
	case Boolean, Bit, UnsignedByte, Char:
		return 1
	case Short, UnicodeChar:
		return 2
	case Int, Float:
		return 4
	case Long, Double, FloatComplex:
		return 8
	case DoubleComplex:
		return 16
	}
	return 0
}

// IsComplex reports whether values of kind k are complex numbers.
func (k Kind) IsComplex() bool {
	return k == FloatComplex || k == DoubleComplex
}

// IsCharLike reports whether arrays of kind k are handled as strings.
func (k Kind) IsCharLike() bool {
	return k == Char || k == UnicodeChar
}

// ShapeKind classifies the arraysize declaration of a field.
type ShapeKind uint8

const (
	// Scalar is a single value (arraysize absent or "1").
	Scalar ShapeKind = iota
	// Fixed is an array with a static element count.
	Fixed
	// Variable is an array whose last dimension is "*".
	Variable
)

// Type is the resolved descriptor for one FIELD or PARAM declaration.
// It is immutable once constructed.
type Type struct {
	Kind  Kind
	Shape ShapeKind
	// Dims holds the declared dimensions. For Fixed shapes it is every
	// dimension; for Variable shapes it is the fixed prefix (possibly
	// empty), the variable last dimension being implied.
	Dims []int
}

// Resolve turns a (datatype, arraysize) attribute pair into a Type.
func Resolve(datatype, arraysize string) (Type, error) {
	kind, ok := kindNames[datatype]
	if !ok {
		return Type{}, verrors.Newf(verrors.ErrUnknownDatatype, "unknown datatype %q", datatype)
	}
	shape, dims, err := parseArraysize(arraysize)
	if err != nil {
		return Type{}, err
	}
	return Type{Kind: kind, Shape: shape, Dims: dims}, nil
}

// parseArraysize implements the grammar
// "" | "1" | N | NxM... | Nx...x* | "*", where only the last dimension
// may be variable.
func parseArraysize(arraysize string) (ShapeKind, []int, error) {
	s := strings.TrimSpace(arraysize)
	if s == "" || s == "1" {
		return Scalar, nil, nil
	}
	shape := Fixed
	if strings.HasSuffix(s, "*") {
		shape = Variable
		s = strings.TrimSuffix(s, "*")
		s = strings.TrimSuffix(s, "x")
		if s == "" {
			return Variable, nil, nil
		}
	}
	parts := strings.Split(s, "x")
	dims := make([]int, 0, len(parts))
	for _, part := range parts {
		if strings.Contains(part, "*") {
			return 0, nil, verrors.Newf(verrors.ErrBadArraysize,
				"only the last dimension may be variable in %q", arraysize)
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, nil, verrors.Newf(verrors.ErrBadArraysize, "bad arraysize %q", arraysize)
		}
		dims = append(dims, n)
	}
	return shape, dims, nil
}

// FixedLen returns the static element count of a Fixed shape.
// For Variable shapes it returns the product of the fixed prefix
// dimensions (1 when there is none); for scalars it returns 1.
func (t Type) FixedLen() int {
	n := 1
	for _, d := range t.Dims {
		n *= d
	}
	return n
}

// Width returns the static BINARY byte width of the field and whether one
// exists. Variable shapes have none.
func (t Type) Width() (int, bool) {
	switch t.Shape {
	case Scalar:
		return t.Kind.ElemWidth(), true
	case Fixed:
		if t.Kind == Bit {
			return (t.FixedLen() + 7) / 8, true
		}
		return t.Kind.ElemWidth() * t.FixedLen(), true
	default:
		return 0, false
	}
}

// IsScalar reports whether the field holds a single value.
func (t Type) IsScalar() bool {
	return t.Shape == Scalar
}

// IsMultiDim reports whether more than one dimension was declared.
func (t Type) IsMultiDim() bool {
	if t.Shape == Variable {
		return len(t.Dims) > 0
	}
	return len(t.Dims) > 1
}

// Arraysize renders the descriptor back into an arraysize attribute value,
// or "" for scalars.
func (t Type) Arraysize() string {
	switch t.Shape {
	case Scalar:
		return ""
	case Fixed:
		return joinDims(t.Dims)
	default:
		if len(t.Dims) == 0 {
			return "*"
		}
		return joinDims(t.Dims) + "x*"
	}
}

func joinDims(dims []int) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, "x")
}
