package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestCodec_ErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Codec
		want []string
	}{
		{
			"code and message",
			New(ErrBadVOTable, "no root element"),
			[]string{"[bad-votable]", "no root element"},
		},
		{
			"field and value",
			BadLiteral("ra", "twelve", errors.New("bad syntax")),
			[]string{"[bad-literal]", "(field ra)", `(value "twelve")`, "bad syntax"},
		},
		{
			"location",
			&Codec{Code: ErrParse, Message: "malformed XML", Line: 3, Column: 9},
			[]string{"at line 3, column 9"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, part := range tt.want {
				if !strings.Contains(msg, part) {
					t.Errorf("Error() = %q, missing %q", msg, part)
				}
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	inner := errors.New("cause")
	err := Wrap(ErrTruncatedRecord, "stream ended mid-row", inner)

	if got := CodeOf(err); got != ErrTruncatedRecord {
		t.Errorf("CodeOf = %q, want %q", got, ErrTruncatedRecord)
	}
	if !IsCode(err, ErrTruncatedRecord) {
		t.Error("IsCode missed matching code")
	}
	if IsCode(err, ErrBadLiteral) {
		t.Error("IsCode matched wrong code")
	}
	if !errors.Is(err, inner) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("CodeOf on a plain error should be empty")
	}
}
