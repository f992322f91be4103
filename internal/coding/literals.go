package coding

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/brianv0/gavo-sub002/internal/dtype"
)

var (
	errBadBool    = errors.New("bad boolean literal")
	errBadBit     = errors.New("bad bit literal")
	errNotNumeric = errors.New("not a numeric value")
)

// parseBoolLiteral implements the TABLEDATA boolean table: {t,1,true} /
// {f,0,false} case-insensitively, '?' and empty meaning NULL.
func parseBoolLiteral(s string) (v bool, null bool, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "1", "true":
		return true, false, nil
	case "f", "0", "false":
		return false, false, nil
	case "?", "":
		return false, true, nil
	default:
		return false, false, errBadBool
	}
}

// intLimits returns the width in bits and signedness for integer kinds.
func intLimits(kind dtype.Kind) (bits int, signed bool) {
	switch kind {
	case dtype.UnsignedByte:
		return 8, false
	case dtype.Short:
		return 16, true
	case dtype.Int:
		return 32, true
	case dtype.Long:
		return 64, true
	}
	return 0, false
}

// parseIntLiteral parses a decimal or 0x-prefixed hexadecimal integer
// literal, folding hex values through two's complement at the declared
// width for signed kinds.
func parseIntLiteral(kind dtype.Kind, s string) (int64, error) {
	bits, signed := intLimits(kind)
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		u, err := strconv.ParseUint(rest, 16, bits)
		if err != nil {
			return 0, err
		}
		if signed && bits < 64 && u >= 1<<(bits-1) {
			return int64(u) - 1<<bits, nil
		}
		return int64(u), nil
	}
	if signed {
		return strconv.ParseInt(s, 10, bits)
	}
	u, err := strconv.ParseUint(s, 10, bits)
	return int64(u), err
}

// makeInt boxes an int64 into the Go type of the integer kind.
func makeInt(kind dtype.Kind, v int64) any {
	switch kind {
	case dtype.UnsignedByte:
		return uint8(v)
	case dtype.Short:
		return int16(v)
	case dtype.Int:
		return int32(v)
	default:
		return v
	}
}

// intValue unboxes any integer-kind value.
func intValue(v any) (int64, bool) {
	switch n := v.(type) {
	case uint8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if i, ok := intValue(v); ok {
		return float64(i), true
	}
	return 0, false
}

func complexValue(v any) (complex128, bool) {
	switch n := v.(type) {
	case complex64:
		return complex128(n), true
	case complex128:
		return n, true
	}
	if f, ok := floatValue(v); ok {
		return complex(f, 0), true
	}
	return 0, false
}

// formatFloat renders a floating point value the way VOTable cells
// expect: "NaN", "+Inf"/"-Inf", and always a decimal point or exponent
// on finite values.
func formatFloat(v float64, bits int) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	s := strconv.FormatFloat(v, 'g', -1, bits)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// parseScalar converts one literal token into the native value of kind,
// with no null handling; the per-format decoders layer that on.
func parseScalar(kind dtype.Kind, s string) (any, error) {
	switch kind {
	case dtype.Boolean:
		v, null, err := parseBoolLiteral(s)
		if err != nil || null {
			if err == nil {
				err = errBadBool
			}
			return nil, err
		}
		return v, nil
	case dtype.Bit:
		switch s {
		case "0":
			return uint8(0), nil
		case "1":
			return uint8(1), nil
		}
		n, err := strconv.ParseUint(s, 10, 8)
		if err != nil || n > 1 {
			return nil, errBadBit
		}
		return uint8(n), nil
	case dtype.UnsignedByte, dtype.Short, dtype.Int, dtype.Long:
		n, err := parseIntLiteral(kind, s)
		if err != nil {
			return nil, err
		}
		return makeInt(kind, n), nil
	case dtype.Float:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case dtype.Double:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return f, nil
	case dtype.FloatComplex, dtype.DoubleComplex:
		return parseComplexLiteral(kind, s)
	case dtype.Char, dtype.UnicodeChar:
		return s, nil
	}
	return nil, fmt.Errorf("no literal form for %s", kind)
}

// parseComplexLiteral reads "re im" (a lone token meaning "re 0").
func parseComplexLiteral(kind dtype.Kind, s string) (any, error) {
	parts := strings.Fields(s)
	var re, im float64
	var err error
	switch len(parts) {
	case 1:
		re, err = strconv.ParseFloat(parts[0], 64)
	case 2:
		re, err = strconv.ParseFloat(parts[0], 64)
		if err == nil {
			im, err = strconv.ParseFloat(parts[1], 64)
		}
	default:
		err = errNotNumeric
	}
	if err != nil {
		return nil, err
	}
	if kind == dtype.FloatComplex {
		return complex64(complex(re, im)), nil
	}
	return complex(re, im), nil
}

// trimString pads s to length with pad, or truncates it from the end,
// reproducing the fixed-arraysize trim/pad law.
func trimString(s string, length int, pad byte) string {
	if len(s) < length {
		return s + strings.Repeat(string(pad), length-len(s))
	}
	return s[:length]
}

// trimUTF16 applies the trim/pad law in UTF-16 code units.
func trimUTF16(units []uint16, length int, pad uint16) []uint16 {
	for len(units) < length {
		units = append(units, pad)
	}
	return units[:length]
}
