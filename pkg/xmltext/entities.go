package xmltext

import (
	"bytes"
	"unicode/utf8"
)

var standardEntities = map[string]string{
	"lt":   "<",
	"gt":   ">",
	"amp":  "&",
	"apos": "'",
	"quot": "\"",
}

// appendUnescaped appends data to dst with the five predefined entities
// and numeric character references resolved.
func appendUnescaped(dst []byte, data []byte) ([]byte, error) {
	for i := 0; i < len(data); i++ {
		if data[i] != '&' {
			dst = append(dst, data[i])
			continue
		}
		consumed, replacement, r, isNumeric, err := parseEntityRef(data, i)
		if err != nil {
			return nil, err
		}
		if isNumeric {
			dst = utf8.AppendRune(dst, r)
		} else {
			dst = append(dst, replacement...)
		}
		i += consumed - 1
	}
	return dst, nil
}

func parseEntityRef(data []byte, start int) (int, string, rune, bool, error) {
	if start+1 >= len(data) {
		return 0, "", 0, false, errInvalidEntity
	}
	semi := bytes.IndexByte(data[start+1:], ';')
	if semi < 0 {
		return 0, "", 0, false, errInvalidEntity
	}
	semi += start + 1
	if semi == start+1 {
		return 0, "", 0, false, errInvalidEntity
	}
	ref := data[start+1 : semi]
	if ref[0] == '#' {
		r, err := parseNumericEntity(ref)
		if err != nil {
			return 0, "", 0, false, err
		}
		return semi - start + 1, "", r, true, nil
	}
	replacement, ok := standardEntities[string(ref)]
	if !ok {
		return 0, "", 0, false, errInvalidEntity
	}
	return semi - start + 1, replacement, 0, false, nil
}

func parseNumericEntity(ref []byte) (rune, error) {
	if len(ref) < 2 {
		return 0, errInvalidCharRef
	}
	base := 10
	start := 1
	if ref[1] == 'x' || ref[1] == 'X' {
		base = 16
		start = 2
	}
	if start >= len(ref) {
		return 0, errInvalidCharRef
	}
	var value uint64
	for i := start; i < len(ref); i++ {
		b := ref[i]
		var digit byte
		switch {
		case b >= '0' && b <= '9':
			digit = b - '0'
		case base == 16 && b >= 'a' && b <= 'f':
			digit = b - 'a' + 10
		case base == 16 && b >= 'A' && b <= 'F':
			digit = b - 'A' + 10
		default:
			return 0, errInvalidCharRef
		}
		value = value*uint64(base) + uint64(digit)
		if value > utf8.MaxRune {
			return 0, errInvalidCharRef
		}
	}
	r := rune(value)
	if r == 0 || (r >= 0xD800 && r <= 0xDFFF) {
		return 0, errInvalidCharRef
	}
	return r, nil
}
