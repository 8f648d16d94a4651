package state

import (
	"slices"

	"github.com/willibrandon/ChronoTrace/pkg/trace"
)

// ListType is the type tag of list-bodied objects
const ListType = "list"

// Object is a heap object. Exactly one of List and Members is the body:
// Members is nil for list objects.
type Object struct {
	Ptr     trace.Pointer
	Type    string
	List    []trace.Value
	Members *Bindings
}

// NewListObject creates a list-bodied object
func NewListObject(p trace.Pointer, elems []trace.Value) *Object {
	list := make([]trace.Value, len(elems))
	copy(list, elems)
	return &Object{Ptr: p, Type: ListType, List: list}
}

// NewRecordObject creates a record-bodied object
func NewRecordObject(p trace.Pointer, typ string, members ...trace.Binding) *Object {
	return &Object{Ptr: p, Type: typ, Members: NewBindings(members...)}
}

// IsList reports whether the body is a sequence
func (o *Object) IsList() bool {
	return o.Members == nil
}

// Clone returns a deep copy
func (o *Object) Clone() *Object {
	c := &Object{Ptr: o.Ptr, Type: o.Type}
	if o.IsList() {
		c.List = slices.Clone(o.List)
		if c.List == nil {
			c.List = []trace.Value{}
		}
	} else {
		c.Members = o.Members.Clone()
	}
	return c
}

// Equal compares identity, type and body including modification stamps
func (o *Object) Equal(x *Object) bool {
	if o.Ptr != x.Ptr || o.Type != x.Type || o.IsList() != x.IsList() {
		return false
	}
	if !o.IsList() {
		return o.Members.Equal(x.Members)
	}
	return slices.EqualFunc(o.List, x.List, sameValue)
}

// Heap maps pointer identities to objects and tracks which pointers are
// directly held by variables of live frames.
type Heap struct {
	objects map[trace.Pointer]*Object
	named   map[trace.Pointer]struct{}
}

// NewHeap creates an empty heap
func NewHeap() *Heap {
	return &Heap{
		objects: make(map[trace.Pointer]*Object),
		named:   make(map[trace.Pointer]struct{}),
	}
}

// Get returns the object stored under p
func (h *Heap) Get(p trace.Pointer) (*Object, bool) {
	if h == nil {
		return nil, false
	}
	o, ok := h.objects[p]
	return o, ok
}

// Put stores o under its pointer, replacing any previous object
func (h *Heap) Put(o *Object) {
	h.objects[o.Ptr] = o
}

// Delete removes the object stored under p
func (h *Heap) Delete(p trace.Pointer) {
	delete(h.objects, p)
}

// Len returns the number of live objects
func (h *Heap) Len() int {
	if h == nil {
		return 0
	}
	return len(h.objects)
}

// Pointers returns the live pointers in ascending order
func (h *Heap) Pointers() []trace.Pointer {
	if h == nil {
		return nil
	}
	ptrs := make([]trace.Pointer, 0, len(h.objects))
	for p := range h.objects {
		ptrs = append(ptrs, p)
	}
	slices.Sort(ptrs)
	return ptrs
}

// UpdateNamedReferences recomputes the named-reference set from every
// argument and local of every frame. Pointers stored inside heap objects are
// not followed.
func (h *Heap) UpdateNamedReferences(s *Stack) {
	named := make(map[trace.Pointer]struct{})
	collect := func(_ string, v trace.Value) bool {
		if p, ok := v.AsPointer(); ok {
			named[p] = struct{}{}
		}
		return true
	}
	for _, f := range s.Frames() {
		f.Args.Range(collect)
		f.Locals.Range(collect)
	}
	h.named = named
}

// IsNamed reports whether p is held by a variable of a live frame
func (h *Heap) IsNamed(p trace.Pointer) bool {
	if h == nil {
		return false
	}
	_, ok := h.named[p]
	return ok
}

// NamedReferences returns the named-reference set in ascending order
func (h *Heap) NamedReferences() []trace.Pointer {
	if h == nil {
		return nil
	}
	ptrs := make([]trace.Pointer, 0, len(h.named))
	for p := range h.named {
		ptrs = append(ptrs, p)
	}
	slices.Sort(ptrs)
	return ptrs
}

// Clone returns a deep copy including the named-reference set
func (h *Heap) Clone() *Heap {
	c := &Heap{
		objects: make(map[trace.Pointer]*Object, len(h.objects)),
		named:   make(map[trace.Pointer]struct{}, len(h.named)),
	}
	for p, o := range h.objects {
		c.objects[p] = o.Clone()
	}
	for p := range h.named {
		c.named[p] = struct{}{}
	}
	return c
}

// Equal compares objects and named references
func (h *Heap) Equal(o *Heap) bool {
	if len(h.objects) != len(o.objects) || len(h.named) != len(o.named) {
		return false
	}
	for p, obj := range h.objects {
		other, ok := o.objects[p]
		if !ok || !obj.Equal(other) {
			return false
		}
	}
	for p := range h.named {
		if _, ok := o.named[p]; !ok {
			return false
		}
	}
	return true
}
