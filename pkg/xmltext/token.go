package xmltext

// Attr is one attribute of a start element. Name and Value alias decoder
// buffers and stay valid only until the next Next call.
type Attr struct {
	Name  []byte
	Value []byte
}

// Token is a view of the next XML token. All byte slices alias decoder
// buffers and stay valid only until the next Next call.
type Token struct {
	Kind Kind
	// Name is the element name for start and end elements, including any
	// namespace prefix.
	Name []byte
	// Attrs are the attributes of a start element, values unescaped.
	Attrs []Attr
	// Text is the payload of CharData, CDATA, Comment, PI and Directive
	// tokens. Long character data is delivered in bounded pieces; adjacent
	// CharData/CDATA tokens belong to the same text node.
	Text []byte
	// SelfClosing marks a start element written as <tag/>.
	SelfClosing bool
	Line        int
	Column      int
}

// Get returns the unescaped value of the named attribute.
func (t *Token) Get(name string) ([]byte, bool) {
	for _, attr := range t.Attrs {
		if string(attr.Name) == name {
			return attr.Value, true
		}
	}
	return nil, false
}
