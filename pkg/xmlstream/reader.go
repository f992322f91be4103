// Package xmlstream provides a forward-only XML event stream for VOTable
// parsing: Start(tag, attrs), Data(text) and End(tag) events with
// namespace prefixes stripped.
//
// VOTable practice treats all VOTable namespace versions as equivalent
// and attaches no meaning to prefixes, so tags and attribute names are
// reduced to their local parts and namespace declarations are dropped.
package xmlstream

import (
	"bytes"
	"errors"
	"io"

	"github.com/brianv0/gavo-sub002/pkg/xmltext"
)

// EventKind identifies the kind of a stream event.
type EventKind uint8

const (
	// StartElement opens an element.
	StartElement EventKind = iota
	// CharData carries a piece of character data. Long text arrives as
	// several consecutive CharData events.
	CharData
	// EndElement closes the most recently opened element.
	EndElement
)

// Attr is one attribute with its namespace prefix stripped.
type Attr struct {
	Name  string
	Value string
}

// Event is one parse event. Text aliases reader buffers and is only valid
// until the next Next call; Tag and Attrs are stable strings.
type Event struct {
	Kind   EventKind
	Tag    string
	Attrs  []Attr
	Text   []byte
	Line   int
	Column int
}

// Get returns the value of the named attribute of a StartElement event.
func (e *Event) Get(name string) (string, bool) {
	for _, attr := range e.Attrs {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

var (
	errNilReader = errors.New("nil XML reader")
	errBadNest   = errors.New("unbalanced element nesting")
)

// Options configures a Reader.
type Options struct {
	// ChunkSize is the tokenizer read granularity. Zero selects the
	// xmltext default (1 MiB).
	ChunkSize int
}

// Reader turns a byte stream into VOTable parse events. It owns the
// underlying reader exclusively and is not restartable.
type Reader struct {
	dec        *xmltext.Decoder
	names      map[string]string
	stack      []string
	attrBuf    []Attr
	pendingEnd string
	hasPending bool
	lastLine   int
	lastColumn int
}

// NewReader creates an event reader for r.
func NewReader(r io.Reader, opts Options) (*Reader, error) {
	if r == nil {
		return nil, errNilReader
	}
	return &Reader{
		dec: xmltext.NewDecoder(r, xmltext.Options{ChunkSize: opts.ChunkSize}),
		names: map[string]string{
			"VOTABLE": "VOTABLE", "RESOURCE": "RESOURCE", "TABLE": "TABLE",
			"FIELD": "FIELD", "PARAM": "PARAM", "DATA": "DATA",
			"TABLEDATA": "TABLEDATA", "TR": "TR", "TD": "TD",
			"STREAM": "STREAM", "VALUES": "VALUES", "INFO": "INFO",
		},
	}, nil
}

// Next returns the next event. io.EOF signals a clean end of input.
func (r *Reader) Next() (Event, error) {
	if r == nil || r.dec == nil {
		return Event{}, errNilReader
	}
	if r.hasPending {
		r.hasPending = false
		return r.endEvent(r.pendingEnd), nil
	}
	for {
		tok, err := r.dec.Next()
		if err != nil {
			if err == io.EOF && len(r.stack) > 0 {
				return Event{}, &xmltext.SyntaxError{
					Offset: r.dec.InputOffset(),
					Line:   r.lastLine, Column: r.lastColumn,
					Err: errBadNest,
				}
			}
			return Event{}, err
		}
		r.lastLine = tok.Line
		r.lastColumn = tok.Column
		switch tok.Kind {
		case xmltext.KindStartElement:
			return r.startEvent(tok), nil
		case xmltext.KindEndElement:
			tag := r.localName(tok.Name)
			if len(r.stack) == 0 || r.stack[len(r.stack)-1] != tag {
				return Event{}, &xmltext.SyntaxError{
					Offset: r.dec.InputOffset(),
					Line:   tok.Line, Column: tok.Column,
					Err: errBadNest,
				}
			}
			r.stack = r.stack[:len(r.stack)-1]
			return r.endEvent(tag), nil
		case xmltext.KindCharData, xmltext.KindCDATA:
			return Event{
				Kind: CharData,
				Text: tok.Text,
				Line: tok.Line, Column: tok.Column,
			}, nil
		default:
			// Comments, PIs and directives carry no table content.
			continue
		}
	}
}

// Depth reports how many elements are currently open.
func (r *Reader) Depth() int {
	n := len(r.stack)
	if r.hasPending {
		n++
	}
	return n
}

// Pos returns the line and column of the most recent event.
func (r *Reader) Pos() (line, column int) {
	return r.lastLine, r.lastColumn
}

func (r *Reader) startEvent(tok *xmltext.Token) Event {
	tag := r.localName(tok.Name)
	r.attrBuf = r.attrBuf[:0]
	for _, attr := range tok.Attrs {
		name, keep := attrName(attr.Name)
		if !keep {
			continue
		}
		r.attrBuf = append(r.attrBuf, Attr{Name: name, Value: string(attr.Value)})
	}
	if tok.SelfClosing {
		r.pendingEnd = tag
		r.hasPending = true
	} else {
		r.stack = append(r.stack, tag)
	}
	return Event{
		Kind:  StartElement,
		Tag:   tag,
		Attrs: r.attrBuf,
		Line:  tok.Line, Column: tok.Column,
	}
}

func (r *Reader) endEvent(tag string) Event {
	return Event{Kind: EndElement, Tag: tag, Line: r.lastLine, Column: r.lastColumn}
}

// localName interns the prefix-stripped element name.
func (r *Reader) localName(raw []byte) string {
	if i := bytes.LastIndexByte(raw, ':'); i >= 0 {
		raw = raw[i+1:]
	}
	if s, ok := r.names[string(raw)]; ok {
		return s
	}
	s := string(raw)
	r.names[s] = s
	return s
}

// attrName strips namespace handling from an attribute name the way
// VOTable parsers do: xmlns declarations and prefixed attributes are
// dropped entirely.
func attrName(raw []byte) (string, bool) {
	if string(raw) == "xmlns" {
		return "", false
	}
	if bytes.IndexByte(raw, ':') >= 0 {
		return "", false
	}
	return string(raw), true
}
