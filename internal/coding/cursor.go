package coding

import "io"

// Cursor is a pull-based byte source for binary row decoding. It buffers
// just enough of the underlying reader to serve one request at a time,
// so decoding never needs the whole stream in memory.
type Cursor struct {
	r        io.Reader
	buf      []byte
	pos      int
	eof      bool
	consumed int64
}

// NewCursor wraps r, typically a base64 decoder over STREAM text.
func NewCursor(r io.Reader) *Cursor {
	return &Cursor{r: r}
}

// Consumed reports how many bytes have been taken so far.
func (c *Cursor) Consumed() int64 {
	return c.consumed
}

// Take returns the next n bytes. It returns io.EOF when the stream is
// exhausted exactly at the request boundary with nothing buffered, and
// io.ErrUnexpectedEOF when it ends partway through the request. The
// returned slice is valid until the next Take call.
func (c *Cursor) Take(n int) ([]byte, error) {
	for len(c.buf)-c.pos < n && !c.eof {
		if err := c.fill(n); err != nil {
			return nil, err
		}
	}
	avail := len(c.buf) - c.pos
	if avail < n {
		if avail == 0 {
			return nil, io.EOF
		}
		return nil, io.ErrUnexpectedEOF
	}
	out := c.buf[c.pos : c.pos+n]
	c.pos += n
	c.consumed += int64(n)
	return out, nil
}

// Skip discards the next n bytes.
func (c *Cursor) Skip(n int) error {
	for n > 0 {
		step := n
		if step > 64*1024 {
			step = 64 * 1024
		}
		if _, err := c.Take(step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

func (c *Cursor) fill(want int) error {
	if c.pos > 0 {
		n := copy(c.buf, c.buf[c.pos:])
		c.buf = c.buf[:n]
		c.pos = 0
	}
	grow := want
	if grow < 4096 {
		grow = 4096
	}
	start := len(c.buf)
	if cap(c.buf)-start < grow {
		next := make([]byte, start, start+grow)
		copy(next, c.buf)
		c.buf = next
	}
	n, err := c.r.Read(c.buf[start : start+grow])
	c.buf = c.buf[:start+n]
	if err == io.EOF {
		c.eof = true
		return nil
	}
	return err
}
