package votable

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"io"
	"iter"
	"strconv"

	verrors "github.com/brianv0/gavo-sub002/errors"
	"github.com/brianv0/gavo-sub002/internal/coding"
)

// WriteOptions configures document writing.
type WriteOptions struct {
	// NoXMLDecl suppresses the leading XML declaration.
	NoXMLDecl bool
	// RowLimit, when positive, arms overflow reporting: if a table
	// delivers RowLimit or more rows, OverflowInfo is written at
	// RESOURCE level after the table.
	RowLimit     int
	OverflowInfo Info
}

const votableNamespace = "http://www.ivoa.net/xml/VOTable/v1.3"

// Writer emits one VOTable document incrementally. Structure elements
// are written eagerly; table rows stream through a compiled encoder,
// so memory use is bounded by one row regardless of table size.
//
// The element protocol is BeginResource, then any number of
// BeginTable/TableWriter cycles and WriteInfo calls, then Close.
type Writer struct {
	w       *bufio.Writer
	opts    WriteOptions
	err     error
	started bool
	inRes   bool
	table   *TableWriter
}

// NewWriter creates a document writer on w.
func NewWriter(w io.Writer) *Writer {
	return NewWriterWithOptions(w, WriteOptions{})
}

// NewWriterWithOptions creates a document writer with explicit
// configuration.
func NewWriterWithOptions(w io.Writer, opts WriteOptions) *Writer {
	return &Writer{w: bufio.NewWriter(w), opts: opts}
}

func (w *Writer) start() {
	if w.started {
		return
	}
	w.started = true
	if !w.opts.NoXMLDecl {
		w.w.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	}
	w.w.WriteString("<VOTABLE version=\"1.3\" xmlns=\"" + votableNamespace + "\">\n")
}

// BeginResource opens a RESOURCE element. Every table lives inside
// one.
func (w *Writer) BeginResource() error {
	if w.err != nil {
		return w.err
	}
	w.start()
	if w.inRes {
		return w.fail(verrors.New(verrors.ErrBadVOTable, "RESOURCE already open"))
	}
	w.inRes = true
	w.w.WriteString("<RESOURCE>\n")
	return w.w.Flush()
}

// EndResource closes the open RESOURCE element.
func (w *Writer) EndResource() error {
	if w.err != nil {
		return w.err
	}
	if !w.inRes {
		return w.fail(verrors.New(verrors.ErrBadVOTable, "no open RESOURCE"))
	}
	if w.table != nil {
		return w.fail(verrors.New(verrors.ErrBadVOTable, "table still open"))
	}
	w.inRes = false
	w.w.WriteString("</RESOURCE>\n")
	return w.w.Flush()
}

// WriteInfo emits an INFO element at the current level.
func (w *Writer) WriteInfo(info Info) error {
	if w.err != nil {
		return w.err
	}
	w.start()
	writeInfoElement(w.w, info)
	return w.w.Flush()
}

func writeInfoElement(b *bufio.Writer, info Info) {
	b.WriteString("<INFO name=\"")
	writeAttrEscaped(b, info.Name)
	b.WriteString("\" value=\"")
	writeAttrEscaped(b, info.Value)
	if info.Text == "" {
		b.WriteString("\"/>\n")
		return
	}
	b.WriteString("\">")
	writeTextEscaped(b, info.Text)
	b.WriteString("</INFO>\n")
}

// BeginTable opens a TABLE in the current RESOURCE, writes its FIELD
// declarations, and returns the row writer for it. KnownRows, when
// non-negative, is emitted as the nrows attribute.
func (w *Writer) BeginTable(name string, schema *Schema, format WireFormat, knownRows int) (*TableWriter, error) {
	if w.err != nil {
		return nil, w.err
	}
	if !w.inRes {
		return nil, w.fail(verrors.New(verrors.ErrBadVOTable, "BeginTable outside a RESOURCE"))
	}
	if w.table != nil {
		return nil, w.fail(verrors.New(verrors.ErrBadVOTable, "previous table still open"))
	}
	codec, err := coding.Compile(schema, format)
	if err != nil {
		return nil, w.fail(err)
	}

	b := w.w
	b.WriteString("<TABLE")
	if name != "" {
		b.WriteString(" name=\"")
		writeAttrEscaped(b, name)
		b.WriteString("\"")
	}
	if knownRows >= 0 {
		b.WriteString(" nrows=\"" + strconv.Itoa(knownRows) + "\"")
	}
	b.WriteString(">\n")
	for i := range schema.Fields {
		writeFieldElement(b, &schema.Fields[i])
	}
	b.WriteString("<DATA>")
	tw := &TableWriter{doc: w, codec: codec, format: format}
	switch format {
	case TableData:
		b.WriteString("<TABLEDATA>\n")
	case Binary:
		b.WriteString("<BINARY><STREAM encoding=\"base64\">\n")
		tw.b64 = newBase64LineWriter(b)
	case Binary2:
		b.WriteString("<BINARY2><STREAM encoding=\"base64\">\n")
		tw.b64 = newBase64LineWriter(b)
	}
	if err := b.Flush(); err != nil {
		return nil, w.fail(err)
	}
	w.table = tw
	return tw, nil
}

// WriteTable streams a whole table in one call, pulling rows from the
// sequence as they are produced. A row-source error aborts the table
// with its elements balanced and is returned; the document writer
// stays usable.
func (w *Writer) WriteTable(name string, schema *Schema, format WireFormat, rows iter.Seq2[Row, error]) error {
	tw, err := w.BeginTable(name, schema, format, -1)
	if err != nil {
		return err
	}
	for row, rerr := range rows {
		if rerr != nil {
			tw.abort()
			return rerr
		}
		if err := tw.WriteRow(row); err != nil {
			return err
		}
	}
	return tw.Close()
}

func writeFieldElement(b *bufio.Writer, f *Field) {
	b.WriteString("<FIELD name=\"")
	writeAttrEscaped(b, f.Name)
	b.WriteString("\" datatype=\"" + f.Type.Kind.String() + "\"")
	if as := f.Type.Arraysize(); as != "" {
		b.WriteString(" arraysize=\"" + as + "\"")
	}
	if f.ID != "" {
		b.WriteString(" ID=\"")
		writeAttrEscaped(b, f.ID)
		b.WriteString("\"")
	}
	if f.Unit != "" {
		b.WriteString(" unit=\"")
		writeAttrEscaped(b, f.Unit)
		b.WriteString("\"")
	}
	if f.UCD != "" {
		b.WriteString(" ucd=\"")
		writeAttrEscaped(b, f.UCD)
		b.WriteString("\"")
	}
	if f.Null == "" {
		b.WriteString("/>\n")
		return
	}
	b.WriteString("><VALUES null=\"")
	writeAttrEscaped(b, f.Null)
	b.WriteString("\"/></FIELD>\n")
}

func (w *Writer) fail(err error) error {
	if w.err == nil {
		w.err = err
	}
	return err
}

// Close finishes the document. An open table or resource is closed
// first.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	w.start()
	if w.table != nil {
		if err := w.table.Close(); err != nil {
			return err
		}
	}
	if w.inRes {
		if err := w.EndResource(); err != nil {
			return err
		}
	}
	w.w.WriteString("</VOTABLE>\n")
	if err := w.w.Flush(); err != nil {
		return w.fail(err)
	}
	return nil
}

// TableWriter streams the rows of one table. Rows are encoded and
// flushed as they arrive; nothing is retained between calls.
type TableWriter struct {
	doc    *Writer
	codec  *coding.RowCodec
	format WireFormat
	b64    *base64LineWriter
	rows   int
	closed bool
	buf    bytes.Buffer
}

// WriteRow encodes and emits one row. On an encode error the table is
// closed with the elements balanced and the error is returned; the
// writer refuses further rows.
func (t *TableWriter) WriteRow(row Row) error {
	if t.doc.err != nil {
		return t.doc.err
	}
	if t.closed {
		return verrors.New(verrors.ErrBadVOTable, "table already closed")
	}
	t.buf.Reset()
	var err error
	if t.format == TableData {
		err = t.codec.EncodeTextRow(&t.buf, row)
	} else {
		err = t.codec.EncodeBinaryRow(&t.buf, row)
	}
	if err != nil {
		// Keep the document well-formed: close the table around the
		// partial data before reporting. The document writer stays
		// usable, so the caller can still finish or add tables.
		t.abort()
		return err
	}
	if t.format == TableData {
		t.doc.w.Write(t.buf.Bytes())
	} else {
		t.b64.Write(t.buf.Bytes())
	}
	t.rows++
	return nil
}

// Rows reports how many rows have been written.
func (t *TableWriter) Rows() int {
	return t.rows
}

// Close ends the table, closing DATA and TABLE and emitting the
// overflow INFO when the row limit was reached.
func (t *TableWriter) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.doc.table = nil
	t.closeElements()
	if err := t.doc.w.Flush(); err != nil {
		return t.doc.fail(err)
	}
	if t.doc.opts.RowLimit > 0 && t.rows >= t.doc.opts.RowLimit {
		writeInfoElement(t.doc.w, t.doc.opts.OverflowInfo)
		return t.doc.w.Flush()
	}
	return nil
}

// abort ends the table early with its elements balanced. No overflow
// INFO is written for an aborted table.
func (t *TableWriter) abort() {
	t.closeElements()
	t.doc.w.Flush()
	t.doc.table = nil
	t.closed = true
}

func (t *TableWriter) closeElements() {
	b := t.doc.w
	switch t.format {
	case TableData:
		b.WriteString("</TABLEDATA>")
	case Binary:
		t.b64.Close()
		b.WriteString("</STREAM></BINARY>")
	case Binary2:
		t.b64.Close()
		b.WriteString("</STREAM></BINARY2>")
	}
	b.WriteString("</DATA></TABLE>\n")
}

// base64LineWriter encodes its input as base64 broken into 64-column
// lines, the layout common in VOTable STREAMs.
type base64LineWriter struct {
	w   *bufio.Writer
	buf [48]byte
	n   int
}

func newBase64LineWriter(w *bufio.Writer) *base64LineWriter {
	return &base64LineWriter{w: w}
}

func (b *base64LineWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		n := copy(b.buf[b.n:], p)
		b.n += n
		p = p[n:]
		if b.n == len(b.buf) {
			b.flushLine(b.buf[:])
			b.n = 0
		}
	}
	return total, nil
}

// Close flushes a final partial line.
func (b *base64LineWriter) Close() error {
	if b.n > 0 {
		b.flushLine(b.buf[:b.n])
		b.n = 0
	}
	return nil
}

func (b *base64LineWriter) flushLine(group []byte) {
	var line [64]byte
	base64.StdEncoding.Encode(line[:base64.StdEncoding.EncodedLen(len(group))], group)
	b.w.Write(line[:base64.StdEncoding.EncodedLen(len(group))])
	b.w.WriteByte('\n')
}

// writeAttrEscaped writes s with the XML attribute specials escaped.
func writeAttrEscaped(b *bufio.Writer, s string) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteByte(s[i])
		}
	}
}

func writeTextEscaped(b *bufio.Writer, s string) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		default:
			b.WriteByte(s[i])
		}
	}
}
