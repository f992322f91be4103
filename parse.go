package votable

import (
	"errors"
	"io"
	"strings"

	verrors "github.com/brianv0/gavo-sub002/errors"
	"github.com/brianv0/gavo-sub002/internal/coding"
	"github.com/brianv0/gavo-sub002/internal/tree"
	"github.com/brianv0/gavo-sub002/pkg/xmlstream"
	"github.com/brianv0/gavo-sub002/pkg/xmltext"
)

// ReadOptions configures document reading.
type ReadOptions struct {
	// ChunkSize is the parser read granularity in bytes. Zero selects
	// the default (1 MiB).
	ChunkSize int
}

// Reader is a single forward pass over one VOTable document. It owns
// the underlying reader exclusively. Metadata elements are accumulated
// into an element tree as they are parsed; table rows are never stored,
// they stream through the RowReader handed out by NextTable.
type Reader struct {
	events  *xmlstream.Reader
	doc     *tree.Tree
	stack   []tree.Ref
	text    strings.Builder
	active  *RowReader
	started bool
	err     error
}

// NewReader starts parsing a VOTable document from r.
func NewReader(r io.Reader) (*Reader, error) {
	return NewReaderWithOptions(r, ReadOptions{})
}

// NewReaderWithOptions starts parsing with explicit configuration.
func NewReaderWithOptions(r io.Reader, opts ReadOptions) (*Reader, error) {
	events, err := xmlstream.NewReader(r, xmlstream.Options{ChunkSize: opts.ChunkSize})
	if err != nil {
		return nil, err
	}
	return &Reader{events: events, doc: tree.New()}, nil
}

// NextTable advances to the next TABLE with data and returns its
// metadata and a lazy row reader. Rows of a previous table that were
// not consumed are skipped. io.EOF signals the clean end of the
// document.
func (p *Reader) NextTable() (*Table, *RowReader, error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	if p.active != nil {
		if err := p.active.drain(); err != nil {
			// A row decode error is confined to its table; skip to the
			// end of the DATA element and keep parsing. XML-level
			// errors are fatal.
			if verrors.IsCode(err, verrors.ErrParse) {
				return nil, nil, p.fail(err)
			}
			if ferr := p.active.finish(); ferr != nil {
				return nil, nil, p.fail(ferr)
			}
		}
		// The row reader consumed the DATA end tag.
		p.stack = p.stack[:len(p.stack)-1]
		p.active = nil
	}
	for {
		ev, err := p.events.Next()
		if err != nil {
			if err == io.EOF {
				if !p.started {
					return nil, nil, p.fail(verrors.New(verrors.ErrBadVOTable, "no VOTABLE root element"))
				}
				p.err = io.EOF
				return nil, nil, io.EOF
			}
			return nil, nil, p.fail(parseError(err))
		}
		switch ev.Kind {
		case xmlstream.StartElement:
			if !p.started {
				if ev.Tag != tree.TagVOTable {
					return nil, nil, p.fail(verrors.Newf(verrors.ErrBadVOTable,
						"root element is %s, expected VOTABLE", ev.Tag))
				}
				p.started = true
			}
			ref := p.doc.Add(p.parent(), ev.Tag, treeAttrs(ev.Attrs))
			if target, ok := ev.Get("ref"); ok && target != "" {
				p.doc.IDs().Want(target, ref)
			}
			p.stack = append(p.stack, ref)
			p.text.Reset()
			if ev.Tag == tree.TagData {
				table, rows, err := p.beginData(ref)
				if err != nil {
					return nil, nil, p.fail(err)
				}
				p.active = rows
				return table, rows, nil
			}
		case xmlstream.CharData:
			p.text.Write(ev.Text)
		case xmlstream.EndElement:
			ref := p.stack[len(p.stack)-1]
			p.stack = p.stack[:len(p.stack)-1]
			if txt := strings.TrimSpace(p.text.String()); txt != "" {
				p.doc.Node(ref).Text = txt
			}
			p.text.Reset()
		}
	}
}

// Dangling returns the referenced IDs that never got a definition, in
// sorted order. Only meaningful once NextTable has returned io.EOF.
func (p *Reader) Dangling() []string {
	return p.doc.IDs().Resolve()
}

// Lookup resolves an ID to the element's tag, for reference checking.
func (p *Reader) Lookup(id string) (string, bool) {
	ref, ok := p.doc.IDs().Lookup(id)
	if !ok {
		return "", false
	}
	return p.doc.Node(ref).Tag, true
}

// Infos returns the INFO elements seen so far at VOTABLE and RESOURCE
// level.
func (p *Reader) Infos() []Info {
	var out []Info
	p.doc.Walk(0, func(ref tree.Ref, e *tree.Element) bool {
		if e.Tag == tree.TagInfo {
			parent := p.doc.Node(e.Parent)
			if parent != nil && (parent.Tag == tree.TagVOTable || parent.Tag == tree.TagResource) {
				out = append(out, Info{Name: e.Attr("name"), Value: e.Attr("value"), Text: e.Text})
			}
		}
		return true
	})
	return out
}

// Params decodes the PARAM elements declared at VOTABLE and RESOURCE
// level so far.
func (p *Reader) Params() ([]Param, error) {
	var out []Param
	var firstErr error
	p.doc.Walk(0, func(ref tree.Ref, e *tree.Element) bool {
		if e.Tag != tree.TagParam {
			return true
		}
		parent := p.doc.Node(e.Parent)
		if parent == nil || (parent.Tag != tree.TagVOTable && parent.Tag != tree.TagResource) {
			return true
		}
		f, err := tree.FieldFromElement(p.doc, ref)
		if err == nil {
			var v any
			v, err = coding.DecodeParamValue(&f, e.Attr("value"))
			if err == nil {
				out = append(out, Param{Field: f, Value: v})
			}
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return out, firstErr
}

func (p *Reader) parent() tree.Ref {
	if len(p.stack) == 0 {
		return tree.NoRef
	}
	return p.stack[len(p.stack)-1]
}

func (p *Reader) fail(err error) error {
	if p.err == nil || p.err == io.EOF {
		p.err = err
	}
	return err
}

// beginData inspects the serialization child of an open DATA element
// and builds the row reader for it.
func (p *Reader) beginData(dataRef tree.Ref) (*Table, *RowReader, error) {
	tableRef := p.doc.Node(dataRef).Parent
	if tableRef == tree.NoRef || p.doc.Node(tableRef).Tag != tree.TagTable {
		return nil, nil, verrors.New(verrors.ErrBadVOTable, "DATA outside a TABLE element")
	}
	schema, err := tree.SchemaFromTable(p.doc, tableRef)
	if err != nil {
		return nil, nil, err
	}

	// Advance to the serialization element, tolerating whitespace.
	for {
		ev, err := p.events.Next()
		if err != nil {
			return nil, nil, parseError(err)
		}
		switch ev.Kind {
		case xmlstream.CharData:
			continue
		case xmlstream.EndElement:
			return nil, nil, verrors.New(verrors.ErrBadVOTable, "DATA element without a serialization child")
		case xmlstream.StartElement:
			format, err := coding.ParseWireFormat(ev.Tag)
			if err != nil {
				return nil, nil, err
			}
			p.doc.Add(dataRef, ev.Tag, treeAttrs(ev.Attrs))
			codec, err := coding.Compile(schema, format)
			if err != nil {
				return nil, nil, err
			}
			table := &Table{doc: p.doc, ref: tableRef, schema: schema, format: format}
			return table, newRowReader(p.events, codec, format), nil
		}
	}
}

func treeAttrs(attrs []xmlstream.Attr) []tree.Attr {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]tree.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = tree.Attr{Name: a.Name, Value: a.Value}
	}
	return out
}

// parseError normalizes tokenizer errors into the package error shape,
// keeping the source position.
func parseError(err error) error {
	var se *xmltext.SyntaxError
	if errors.As(err, &se) {
		return &verrors.Codec{
			Code: verrors.ErrParse, Message: "malformed XML",
			Line: se.Line, Column: se.Column, Err: err,
		}
	}
	return verrors.Wrap(verrors.ErrParse, "malformed XML", err)
}
