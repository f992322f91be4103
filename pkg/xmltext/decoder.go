// Package xmltext implements an incremental XML tokenizer over chunked
// reads. It never materializes the document: input is consumed in
// fixed-size chunks and long character data is delivered in bounded
// pieces, which keeps memory use independent of document size.
//
// The tokenizer covers the XML subset VOTable documents use: elements,
// attributes, character data, CDATA, comments, processing instructions
// and a single DOCTYPE directive. DTD entity definitions are not
// expanded.
package xmltext

import (
	"bytes"
	"io"
)

// DefaultChunkSize is the read granularity when none is configured.
const DefaultChunkSize = 1 << 20

// DefaultMaxTokenSize bounds a single markup token (tag, comment, PI).
// Character data is exempt; it is emitted in pieces instead.
const DefaultMaxTokenSize = 16 << 20

// Options configures a Decoder.
type Options struct {
	// ChunkSize is the read granularity in bytes. Defaults to
	// DefaultChunkSize when zero.
	ChunkSize int
	// MaxTokenSize bounds a single markup token. Defaults to
	// DefaultMaxTokenSize when zero.
	MaxTokenSize int
}

// Decoder is an incremental XML tokenizer. It is not safe for concurrent
// use.
type Decoder struct {
	r        io.Reader
	buf      []byte
	pos      int
	eof      bool
	offset   int64
	line     int
	column   int
	chunk    int
	maxToken int
	textBuf  []byte
	nameBuf  []byte
	attrBuf  []byte
	spans    []attrSpan
	attrs    []Attr
	tok      Token
}

type attrSpan struct {
	nameStart, nameEnd int
	valStart, valEnd   int
}

// NewDecoder creates a tokenizer reading from r.
func NewDecoder(r io.Reader, opts Options) *Decoder {
	d := &Decoder{}
	d.Reset(r, opts)
	return d
}

// Reset prepares the decoder for a new input stream, reusing buffers.
func (d *Decoder) Reset(r io.Reader, opts Options) {
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	maxToken := opts.MaxTokenSize
	if maxToken <= 0 {
		maxToken = DefaultMaxTokenSize
	}
	d.r = r
	d.buf = d.buf[:0]
	d.pos = 0
	d.eof = false
	d.offset = 0
	d.line = 1
	d.column = 1
	d.chunk = chunk
	d.maxToken = maxToken
}

// InputOffset returns the number of input bytes consumed so far.
func (d *Decoder) InputOffset() int64 {
	return d.offset
}

// Next returns the next token. The returned token and its byte slices are
// valid until the following Next call. io.EOF signals a clean end of
// input.
func (d *Decoder) Next() (*Token, error) {
	if d == nil || d.r == nil {
		return nil, errNilReader
	}
	if err := d.need(1); err != nil {
		return nil, err
	}
	d.tok = Token{Line: d.line, Column: d.column}
	d.textBuf = d.textBuf[:0]
	d.nameBuf = d.nameBuf[:0]
	d.attrBuf = d.attrBuf[:0]
	d.spans = d.spans[:0]
	if d.buf[d.pos] == '<' {
		if err := d.readMarkup(); err != nil {
			return nil, d.syntaxErr(err)
		}
		return &d.tok, nil
	}
	if err := d.readCharData(); err != nil {
		return nil, d.syntaxErr(err)
	}
	return &d.tok, nil
}

func (d *Decoder) syntaxErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*SyntaxError); ok {
		return err
	}
	if err == io.EOF {
		err = errUnexpectedEOF
	}
	return &SyntaxError{Offset: d.offset, Line: d.tok.Line, Column: d.tok.Column, Err: err}
}

// need ensures at least n unconsumed bytes are buffered. It returns io.EOF
// only when no byte at all is available.
func (d *Decoder) need(n int) error {
	for len(d.buf)-d.pos < n {
		if d.eof {
			if len(d.buf)-d.pos == 0 {
				return io.EOF
			}
			return errUnexpectedEOF
		}
		if err := d.fill(); err != nil {
			return err
		}
	}
	return nil
}

// fill reads one more chunk, compacting the window first.
func (d *Decoder) fill() error {
	if d.pos > 0 {
		n := copy(d.buf, d.buf[d.pos:])
		d.buf = d.buf[:n]
		d.pos = 0
	}
	start := len(d.buf)
	if cap(d.buf)-start < d.chunk {
		grown := make([]byte, start, start+d.chunk)
		copy(grown, d.buf)
		d.buf = grown
	}
	n, err := d.r.Read(d.buf[start : start+d.chunk])
	d.buf = d.buf[:start+n]
	if err == io.EOF {
		d.eof = true
		return nil
	}
	return err
}

// advance consumes n bytes, maintaining offset and line/column tracking.
func (d *Decoder) advance(n int) {
	for _, b := range d.buf[d.pos : d.pos+n] {
		if b == '\n' {
			d.line++
			d.column = 1
		} else {
			d.column++
		}
	}
	d.pos += n
	d.offset += int64(n)
}

// find returns the window-relative index of the first occurrence of seq at
// or after the current position, refilling as needed.
func (d *Decoder) find(seq []byte) (int, error) {
	from := 0
	for {
		if i := bytes.Index(d.buf[d.pos+from:], seq); i >= 0 {
			return from + i, nil
		}
		if d.eof {
			return -1, errUnexpectedEOF
		}
		avail := len(d.buf) - d.pos
		if avail > d.maxToken {
			return -1, errInvalidToken
		}
		// Re-scan only the tail that could still contain a prefix of seq.
		from = avail - len(seq) + 1
		if from < 0 {
			from = 0
		}
		if err := d.fill(); err != nil {
			return -1, err
		}
	}
}

func (d *Decoder) readCharData() error {
	for {
		if i := bytes.IndexByte(d.buf[d.pos:], '<'); i >= 0 {
			return d.emitCharData(i)
		}
		if d.eof {
			return d.emitCharData(len(d.buf) - d.pos)
		}
		if len(d.buf)-d.pos >= d.chunk {
			// Emit a bounded piece, holding back a trailing partial
			// entity reference.
			n := len(d.buf) - d.pos
			piece := d.buf[d.pos : d.pos+n]
			if amp := bytes.LastIndexByte(piece, '&'); amp >= 0 {
				if bytes.IndexByte(piece[amp:], ';') < 0 {
					n = amp
				}
			}
			if n > 0 {
				return d.emitCharData(n)
			}
			// A lone '&' heads the window; need the rest of the entity.
			if len(d.buf)-d.pos > d.maxToken {
				return errInvalidEntity
			}
		}
		if err := d.fill(); err != nil {
			return err
		}
	}
}

func (d *Decoder) emitCharData(n int) error {
	raw := d.buf[d.pos : d.pos+n]
	var err error
	if bytes.IndexByte(raw, '&') >= 0 {
		d.textBuf, err = appendUnescaped(d.textBuf, raw)
		if err != nil {
			return err
		}
	} else {
		d.textBuf = append(d.textBuf, raw...)
	}
	d.advance(n)
	d.tok.Kind = KindCharData
	d.tok.Text = d.textBuf
	return nil
}

func (d *Decoder) readMarkup() error {
	d.advance(1) // '<'
	if err := d.need(1); err != nil {
		return err
	}
	switch d.buf[d.pos] {
	case '?':
		return d.readPI()
	case '!':
		return d.readBang()
	case '/':
		return d.readEndElement()
	default:
		return d.readStartElement()
	}
}

func (d *Decoder) readPI() error {
	d.advance(1) // '?'
	end, err := d.find([]byte("?>"))
	if err != nil {
		return err
	}
	d.textBuf = append(d.textBuf, d.buf[d.pos:d.pos+end]...)
	d.advance(end + 2)
	d.tok.Kind = KindPI
	d.tok.Text = d.textBuf
	return nil
}

func (d *Decoder) readBang() error {
	d.advance(1) // '!'
	if err := d.need(2); err != nil {
		return err
	}
	if bytes.HasPrefix(d.buf[d.pos:], []byte("--")) {
		d.advance(2)
		end, err := d.find([]byte("-->"))
		if err != nil {
			return errInvalidComment
		}
		if bytes.Contains(d.buf[d.pos:d.pos+end], []byte("--")) {
			return errInvalidComment
		}
		d.textBuf = append(d.textBuf, d.buf[d.pos:d.pos+end]...)
		d.advance(end + 3)
		d.tok.Kind = KindComment
		d.tok.Text = d.textBuf
		return nil
	}
	if err := d.need(7); err == nil && bytes.HasPrefix(d.buf[d.pos:], []byte("[CDATA[")) {
		d.advance(7)
		end, err := d.find([]byte("]]>"))
		if err != nil {
			return err
		}
		d.textBuf = append(d.textBuf, d.buf[d.pos:d.pos+end]...)
		d.advance(end + 3)
		d.tok.Kind = KindCDATA
		d.tok.Text = d.textBuf
		return nil
	}
	return d.readDirective()
}

// readDirective consumes a <!DOCTYPE ...> directive, tracking bracket
// nesting for an internal subset and skipping quoted literals.
func (d *Decoder) readDirective() error {
	depth := 0
	var quote byte
	for {
		if err := d.need(1); err != nil {
			return err
		}
		b := d.buf[d.pos]
		switch {
		case quote != 0:
			if b == quote {
				quote = 0
			}
		case b == '"' || b == '\'':
			quote = b
		case b == '[':
			depth++
		case b == ']':
			depth--
		case b == '>' && depth <= 0:
			d.advance(1)
			d.tok.Kind = KindDirective
			d.tok.Text = d.textBuf
			return nil
		}
		d.textBuf = append(d.textBuf, b)
		d.advance(1)
		if len(d.textBuf) > d.maxToken {
			return errInvalidToken
		}
	}
}

func (d *Decoder) readEndElement() error {
	d.advance(1) // '/'
	if err := d.readName(&d.nameBuf); err != nil {
		return err
	}
	if err := d.skipSpace(); err != nil {
		return err
	}
	if d.buf[d.pos] != '>' {
		return errInvalidToken
	}
	d.advance(1)
	d.tok.Kind = KindEndElement
	d.tok.Name = d.nameBuf
	return nil
}

func (d *Decoder) readStartElement() error {
	if err := d.readName(&d.nameBuf); err != nil {
		return err
	}
	for {
		if err := d.skipSpace(); err != nil {
			return err
		}
		switch d.buf[d.pos] {
		case '>':
			d.advance(1)
			return d.finishStartElement(false)
		case '/':
			d.advance(1)
			if err := d.need(1); err != nil {
				return err
			}
			if d.buf[d.pos] != '>' {
				return errInvalidToken
			}
			d.advance(1)
			return d.finishStartElement(true)
		}
		if err := d.readAttr(); err != nil {
			return err
		}
	}
}

func (d *Decoder) finishStartElement(selfClosing bool) error {
	if cap(d.attrs) < len(d.spans) {
		d.attrs = make([]Attr, 0, len(d.spans))
	}
	d.attrs = d.attrs[:0]
	for _, s := range d.spans {
		d.attrs = append(d.attrs, Attr{
			Name:  d.attrBuf[s.nameStart:s.nameEnd],
			Value: d.attrBuf[s.valStart:s.valEnd],
		})
	}
	d.tok.Kind = KindStartElement
	d.tok.Name = d.nameBuf
	d.tok.Attrs = d.attrs
	d.tok.SelfClosing = selfClosing
	return nil
}

func (d *Decoder) readAttr() error {
	var s attrSpan
	s.nameStart = len(d.attrBuf)
	if err := d.readName(&d.attrBuf); err != nil {
		return err
	}
	s.nameEnd = len(d.attrBuf)
	if err := d.skipSpace(); err != nil {
		return err
	}
	if d.buf[d.pos] != '=' {
		return errInvalidAttr
	}
	d.advance(1)
	if err := d.skipSpace(); err != nil {
		return err
	}
	quote := d.buf[d.pos]
	if quote != '"' && quote != '\'' {
		return errInvalidAttr
	}
	d.advance(1)
	end, err := d.find([]byte{quote})
	if err != nil {
		return errInvalidAttr
	}
	raw := d.buf[d.pos : d.pos+end]
	s.valStart = len(d.attrBuf)
	if bytes.IndexByte(raw, '&') >= 0 {
		d.attrBuf, err = appendUnescaped(d.attrBuf, raw)
		if err != nil {
			return err
		}
	} else {
		d.attrBuf = append(d.attrBuf, raw...)
	}
	s.valEnd = len(d.attrBuf)
	d.advance(end + 1)
	d.spans = append(d.spans, s)
	return nil
}

// readName appends an XML name to *dst, consuming it from the input.
func (d *Decoder) readName(dst *[]byte) error {
	if err := d.need(1); err != nil {
		return err
	}
	if !isNameStart(d.buf[d.pos]) {
		return errInvalidName
	}
	start := len(*dst)
	for {
		b := d.buf[d.pos]
		if !isNameByte(b) {
			break
		}
		*dst = append(*dst, b)
		d.advance(1)
		if err := d.need(1); err != nil {
			return err
		}
	}
	if len(*dst) == start {
		return errInvalidName
	}
	return nil
}

func (d *Decoder) skipSpace() error {
	for {
		if err := d.need(1); err != nil {
			return err
		}
		switch d.buf[d.pos] {
		case ' ', '\t', '\r', '\n':
			d.advance(1)
		default:
			return nil
		}
	}
}

func isNameStart(b byte) bool {
	return b == '_' || b == ':' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b >= 0x80
}

func isNameByte(b byte) bool {
	return isNameStart(b) || b == '-' || b == '.' || (b >= '0' && b <= '9')
}
