package coding

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/brianv0/gavo-sub002/internal/tree"
	verrors "github.com/brianv0/gavo-sub002/errors"
)

// DecodeParamValue converts a PARAM/@value attribute into the native
// value of the param's declared type. The attribute text follows the
// same literal rules as a TABLEDATA cell.
func DecodeParamValue(f *tree.Field, value string) (any, error) {
	dec, _, err := compileTextField(f)
	if err != nil {
		return nil, err
	}
	v, err := dec(value)
	if err != nil {
		return nil, badLiteral(f.Designation(), value, err)
	}
	return v, nil
}

// EncodeParamValue renders a native value as a PARAM/@value attribute.
func EncodeParamValue(f *tree.Field, v any) (string, error) {
	_, enc, err := compileTextField(f)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := enc(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// GuessParamType proposes (datatype, arraysize) attributes for a value
// destined for a PARAM. Sequences are assumed homogeneous; nested
// sequences build up multi-dim arraysizes with the variable axis only
// allowed outermost.
func GuessParamType(v any) (datatype, arraysize string, err error) {
	switch val := v.(type) {
	case nil:
		return "double", "", nil
	case bool:
		return "boolean", "", nil
	case uint8:
		return "unsignedByte", "", nil
	case int16:
		return "short", "", nil
	case int32:
		return "int", "", nil
	case int, int64:
		return "long", "", nil
	case float32:
		return "float", "", nil
	case float64:
		return "double", "", nil
	case complex64:
		return "floatComplex", "", nil
	case complex128:
		return "doubleComplex", "", nil
	case string:
		return "char", "*", nil
	case []string:
		if len(val) == 0 {
			return "char", "0", nil
		}
		longest := 0
		for _, s := range val {
			if len(s) > longest {
				longest = len(s)
			}
		}
		return "char", fmt.Sprintf("%dx%d", longest, len(val)), nil
	}

	elems, ok := anySlice(v)
	if !ok {
		return "", "", verrors.Newf(verrors.ErrUnknownDatatype,
			"no VOTable type for value of type %T", v)
	}
	if len(elems) == 0 {
		return "char", "0", nil
	}
	elemType, inner, err := GuessParamType(elems[0])
	if err != nil {
		return "", "", err
	}
	arraysize, err = combineArraysize(inner, strconv.Itoa(len(elems)))
	return elemType, arraysize, err
}

// combineArraysize appends an outer axis to an existing arraysize.
func combineArraysize(inner, outer string) (string, error) {
	if inner == "" {
		return outer, nil
	}
	if inner[len(inner)-1] == '*' {
		return "", verrors.New(verrors.ErrBadArraysize,
			"arrays of variable-length arrays are not allowed")
	}
	return inner + "x" + outer, nil
}
