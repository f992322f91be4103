package xmlstream

import (
	"io"
	"strings"
	"testing"
)

type event struct {
	kind EventKind
	tag  string
	text string
}

func collect(t *testing.T, input string) []event {
	t.Helper()
	r, err := NewReader(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	var out []event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		e := event{kind: ev.Kind, tag: ev.Tag, text: string(ev.Text)}
		if e.kind == CharData && len(out) > 0 && out[len(out)-1].kind == CharData {
			out[len(out)-1].text += e.text
			continue
		}
		out = append(out, e)
	}
}

func TestReader_PrefixStripping(t *testing.T) {
	input := `<vot:VOTABLE xmlns:vot="http://www.ivoa.net/xml/VOTable/v1.3">` +
		`<vot:RESOURCE/></vot:VOTABLE>`
	got := collect(t, input)
	want := []event{
		{kind: StartElement, tag: "VOTABLE"},
		{kind: StartElement, tag: "RESOURCE"},
		{kind: EndElement, tag: "RESOURCE"},
		{kind: EndElement, tag: "VOTABLE"},
	}
	if len(got) != len(want) {
		t.Fatalf("events = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i].kind != want[i].kind || got[i].tag != want[i].tag {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReader_NamespaceAttributesDropped(t *testing.T) {
	input := `<VOTABLE xmlns="x" xmlns:xsi="y" xsi:schemaLocation="z" version="1.3"/>`
	r, err := NewReader(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	ev, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(ev.Attrs) != 1 || ev.Attrs[0].Name != "version" || ev.Attrs[0].Value != "1.3" {
		t.Errorf("attrs = %+v, want only version", ev.Attrs)
	}
}

func TestReader_SelfClosingSynthesizesEnd(t *testing.T) {
	got := collect(t, `<a><b/></a>`)
	want := []event{
		{kind: StartElement, tag: "a"},
		{kind: StartElement, tag: "b"},
		{kind: EndElement, tag: "b"},
		{kind: EndElement, tag: "a"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].kind != want[i].kind || got[i].tag != want[i].tag {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReader_CommentsAndPIsSkipped(t *testing.T) {
	got := collect(t, "<?xml version=\"1.0\"?><!-- hi --><a>x</a>")
	if len(got) != 3 || got[0].tag != "a" || got[1].text != "x" {
		t.Fatalf("events = %+v", got)
	}
}

func TestReader_NestingErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"mismatched end", "<a></b>"},
		{"unclosed at eof", "<a><b></b>"},
		{"stray end", "</a>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(strings.NewReader(tt.input), Options{})
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}
			for {
				_, err := r.Next()
				if err == io.EOF {
					t.Fatal("input accepted, want nesting error")
				}
				if err != nil {
					return
				}
			}
		})
	}
}

func TestReader_Depth(t *testing.T) {
	r, err := NewReader(strings.NewReader("<a><b></b></a>"), Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	depths := []int{1, 2, 1, 0}
	for i, want := range depths {
		if _, err := r.Next(); err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if got := r.Depth(); got != want {
			t.Errorf("Depth after event %d = %d, want %d", i, got, want)
		}
	}
}
