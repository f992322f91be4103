package votable

import (
	"bytes"
	"encoding/base64"
	"io"
	"iter"

	verrors "github.com/brianv0/gavo-sub002/errors"
	"github.com/brianv0/gavo-sub002/internal/coding"
	"github.com/brianv0/gavo-sub002/internal/tree"
	"github.com/brianv0/gavo-sub002/pkg/xmlstream"
)

// RowReader streams the decoded rows of one table. It is lazy: no row
// is decoded before Next is called, and only one row is materialized
// at a time. A decode error is sticky; the table cannot be resumed
// past it.
type RowReader struct {
	events *xmlstream.Reader
	codec  *coding.RowCodec
	format WireFormat

	done bool
	err  error

	// TABLEDATA state.
	cells []string
	cell  bytes.Buffer

	// BINARY/BINARY2 state.
	started bool
	cur     *coding.Cursor
	stream  *streamReader
}

func newRowReader(events *xmlstream.Reader, codec *coding.RowCodec, format WireFormat) *RowReader {
	return &RowReader{events: events, codec: codec, format: format}
}

// NumFields reports the number of columns per row.
func (r *RowReader) NumFields() int {
	return r.codec.Len()
}

// Next returns the next row. io.EOF signals the clean end of the
// table's data.
func (r *RowReader) Next() (Row, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.done {
		return nil, io.EOF
	}
	var row Row
	var err error
	if r.format == TableData {
		row, err = r.nextText()
	} else {
		row, err = r.nextBinary()
	}
	if err == io.EOF {
		r.done = true
		if ferr := r.finish(); ferr != nil {
			r.err = ferr
			return nil, ferr
		}
		return nil, io.EOF
	}
	if err != nil {
		r.err = err
		return nil, err
	}
	return row, nil
}

// Rows iterates the remaining rows. A decode error is yielded once,
// with a nil row, and ends the sequence.
func (r *RowReader) Rows() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for {
			row, err := r.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// nextText reads one TR worth of TD cells and decodes them.
func (r *RowReader) nextText() (Row, error) {
	// Wait for the TR open, or the end of TABLEDATA.
	for {
		ev, err := r.events.Next()
		if err != nil {
			return nil, parseError(err)
		}
		if ev.Kind == xmlstream.EndElement && ev.Tag == tree.TagTableData {
			return nil, io.EOF
		}
		if ev.Kind == xmlstream.StartElement {
			if ev.Tag != tree.TagTR {
				return nil, verrors.Newf(verrors.ErrBadVOTable, "unexpected element %s in TABLEDATA", ev.Tag)
			}
			break
		}
		// Whitespace between rows.
	}

	r.cells = r.cells[:0]
	for {
		ev, err := r.events.Next()
		if err != nil {
			return nil, parseError(err)
		}
		switch ev.Kind {
		case xmlstream.StartElement:
			if ev.Tag != tree.TagTD {
				return nil, verrors.Newf(verrors.ErrBadVOTable, "unexpected element %s in TR", ev.Tag)
			}
			r.cell.Reset()
		case xmlstream.CharData:
			r.cell.Write(ev.Text)
		case xmlstream.EndElement:
			switch ev.Tag {
			case tree.TagTD:
				r.cells = append(r.cells, r.cell.String())
			case tree.TagTR:
				return r.codec.DecodeTextRow(r.cells)
			}
		}
	}
}

// nextBinary decodes one packed row, opening the base64 STREAM on the
// first call.
func (r *RowReader) nextBinary() (Row, error) {
	if !r.started {
		if err := r.openStream(); err != nil {
			return nil, err
		}
	}
	if r.cur == nil {
		// Empty table: no STREAM element at all.
		return nil, io.EOF
	}
	return r.codec.DecodeBinaryRow(r.cur)
}

func (r *RowReader) openStream() error {
	r.started = true
	for {
		ev, err := r.events.Next()
		if err != nil {
			return parseError(err)
		}
		switch ev.Kind {
		case xmlstream.CharData:
			continue
		case xmlstream.EndElement:
			// BINARY closed without a STREAM: zero rows.
			return nil
		case xmlstream.StartElement:
			if ev.Tag != tree.TagStream {
				return verrors.Newf(verrors.ErrBadVOTable, "unexpected element %s in %s", ev.Tag, r.format)
			}
			if enc, _ := ev.Get("encoding"); enc != "base64" {
				return verrors.Newf(verrors.ErrUnsupportedEncoding,
					"can only read %s data from base64 encoded streams", r.format)
			}
			r.stream = &streamReader{events: r.events}
			r.cur = coding.NewCursor(base64.NewDecoder(base64.StdEncoding, r.stream))
			return nil
		}
	}
}

// finish consumes events up to and including the DATA end tag so the
// document reader can continue after the table.
func (r *RowReader) finish() error {
	for {
		ev, err := r.events.Next()
		if err != nil {
			return parseError(err)
		}
		if ev.Kind == xmlstream.EndElement && ev.Tag == tree.TagData {
			return nil
		}
	}
}

// drain skips all remaining rows.
func (r *RowReader) drain() error {
	for {
		if _, err := r.Next(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// streamReader exposes the character data of one STREAM element as a
// byte stream, dropping XML whitespace so base64 decoding sees only
// alphabet bytes. It ends at the STREAM end tag.
type streamReader struct {
	events *xmlstream.Reader
	buf    []byte
	pos    int
	done   bool
}

func (s *streamReader) Read(p []byte) (int, error) {
	for s.pos >= len(s.buf) {
		if s.done {
			return 0, io.EOF
		}
		ev, err := s.events.Next()
		if err != nil {
			return 0, parseError(err)
		}
		switch ev.Kind {
		case xmlstream.CharData:
			s.buf = s.buf[:0]
			s.pos = 0
			for _, b := range ev.Text {
				switch b {
				case ' ', '\t', '\n', '\r':
				default:
					s.buf = append(s.buf, b)
				}
			}
		case xmlstream.EndElement:
			s.done = true
		case xmlstream.StartElement:
			return 0, verrors.Newf(verrors.ErrBadVOTable, "unexpected element %s in STREAM", ev.Tag)
		}
	}
	n := copy(p, s.buf[s.pos:])
	s.pos += n
	return n, nil
}
