package tree

import (
	"fmt"
	"sort"
)

// Registry maps element IDs to arena references for one document.
//
// During a single forward pass a ref= attribute may point at an element
// that has not been parsed yet; Lookup legitimately misses then. Callers
// record the reference and re-resolve once the tree is complete (see
// Resolve). The registry is exclusively owned by its document and is
// single-writer state.
type Registry struct {
	byID    map[string]Ref
	pending map[string][]Ref
	next    int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Ref)}
}

// Register binds id to ref. Re-registering an id keeps the first binding,
// matching the lenient stance real VOTables require.
func (r *Registry) Register(id string, ref Ref) {
	if _, exists := r.byID[id]; exists {
		return
	}
	r.byID[id] = ref
}

// Lookup resolves id. A miss is not an error while the document is still
// being parsed.
func (r *Registry) Lookup(id string) (Ref, bool) {
	ref, ok := r.byID[id]
	return ref, ok
}

// Want records that holder references id, for later resolution.
func (r *Registry) Want(id string, holder Ref) {
	if r.pending == nil {
		r.pending = make(map[string][]Ref)
	}
	r.pending[id] = append(r.pending[id], holder)
}

// Resolve re-checks every recorded forward reference now that the tree is
// complete and returns the ids that still dangle, sorted.
func (r *Registry) Resolve() []string {
	var dangling []string
	for id := range r.pending {
		if _, ok := r.byID[id]; !ok {
			dangling = append(dangling, id)
		}
	}
	sort.Strings(dangling)
	return dangling
}

// GetOrMakeID returns the id already bound to ref, or synthesizes a fresh
// one, binds it, and returns it. Synthetic ids are monotonic and never
// collide with registered ones, so repeated calls are idempotent.
func (r *Registry) GetOrMakeID(t *Tree, ref Ref) string {
	node := t.Node(ref)
	if node == nil {
		return ""
	}
	if id := node.Attr("ID"); id != "" {
		return id
	}
	for {
		id := fmt.Sprintf("ndmpc%d", r.next)
		r.next++
		if _, taken := r.byID[id]; !taken {
			r.byID[id] = ref
			node.SetAttr("ID", id)
			return id
		}
	}
}
