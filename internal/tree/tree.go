// Package tree holds the generic VOTable element tree and the
// per-document identifier registry.
//
// Elements live in an arena and refer to each other by index, never by
// pointer, so cross-references (including forward references) cannot
// create ownership cycles. Tag-specialized behavior is a view over the
// same node shape, not a subclass.
package tree

// Well-known VOTable tags. Any other tag still parses into a generic
// element; the codec just attaches no meaning to it.
const (
	TagVOTable   = "VOTABLE"
	TagResource  = "RESOURCE"
	TagTable     = "TABLE"
	TagField     = "FIELD"
	TagParam     = "PARAM"
	TagGroup     = "GROUP"
	TagValues    = "VALUES"
	TagData      = "DATA"
	TagTableData = "TABLEDATA"
	TagBinary    = "BINARY"
	TagBinary2   = "BINARY2"
	TagFITS      = "FITS"
	TagStream    = "STREAM"
	TagTR        = "TR"
	TagTD        = "TD"
	TagInfo      = "INFO"
	TagLink      = "LINK"
	TagDescr     = "DESCRIPTION"
	TagMin       = "MIN"
	TagMax       = "MAX"
	TagOption    = "OPTION"
	TagFieldRef  = "FIELDref"
	TagParamRef  = "PARAMref"
)

// Ref addresses an element inside its Tree. NoRef is the null reference.
type Ref int

// NoRef is the absent element reference.
const NoRef Ref = -1

// Attr is one element attribute.
type Attr struct {
	Name  string
	Value string
}

// Element is the generic tree node shared by all tags.
type Element struct {
	Tag      string
	Attrs    []Attr
	Children []Ref
	Text     string
	Parent   Ref
}

// Get returns the value of the named attribute.
func (e *Element) Get(name string) (string, bool) {
	for _, attr := range e.Attrs {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

// Attr returns the named attribute value or "".
func (e *Element) Attr(name string) string {
	v, _ := e.Get(name)
	return v
}

// SetAttr replaces or appends the named attribute.
func (e *Element) SetAttr(name, value string) {
	for i := range e.Attrs {
		if e.Attrs[i].Name == name {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
}

// Tree is an arena of elements belonging to one document.
type Tree struct {
	nodes []Element
	ids   *Registry
}

// New creates an empty tree with its own identifier registry.
func New() *Tree {
	return &Tree{ids: NewRegistry()}
}

// IDs returns the document's identifier registry.
func (t *Tree) IDs() *Registry {
	return t.ids
}

// Add appends a new element under parent (NoRef for the root) and
// registers its ID attribute, if any.
func (t *Tree) Add(parent Ref, tag string, attrs []Attr) Ref {
	ref := Ref(len(t.nodes))
	t.nodes = append(t.nodes, Element{
		Tag:    tag,
		Attrs:  append([]Attr(nil), attrs...),
		Parent: parent,
	})
	if parent != NoRef {
		p := &t.nodes[parent]
		p.Children = append(p.Children, ref)
	}
	if id := t.nodes[ref].Attr("ID"); id != "" {
		t.ids.Register(id, ref)
	}
	return ref
}

// Node returns the element addressed by ref.
func (t *Tree) Node(ref Ref) *Element {
	if ref < 0 || int(ref) >= len(t.nodes) {
		return nil
	}
	return &t.nodes[ref]
}

// Len reports the number of elements in the arena.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// ChildrenOf iterates the direct children of ref carrying the given tag.
func (t *Tree) ChildrenOf(ref Ref, tag string) []Ref {
	node := t.Node(ref)
	if node == nil {
		return nil
	}
	var out []Ref
	for _, c := range node.Children {
		if t.nodes[c].Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// FirstChild returns the first direct child of ref with the given tag.
func (t *Tree) FirstChild(ref Ref, tag string) (Ref, bool) {
	node := t.Node(ref)
	if node == nil {
		return NoRef, false
	}
	for _, c := range node.Children {
		if t.nodes[c].Tag == tag {
			return c, true
		}
	}
	return NoRef, false
}

// Walk visits ref and its descendants in document order.
func (t *Tree) Walk(ref Ref, visit func(Ref, *Element) bool) {
	node := t.Node(ref)
	if node == nil || !visit(ref, node) {
		return
	}
	for _, c := range node.Children {
		t.Walk(c, visit)
	}
}
