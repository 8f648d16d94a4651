package state

import (
	"github.com/speakeasy-api/openapi/sequencedmap"
	"github.com/willibrandon/ChronoTrace/pkg/trace"
)

// Bindings is an insertion-ordered mapping from names to values. It backs
// frame arguments, frame locals and record object bodies. The zero value is
// an empty mapping ready to use.
type Bindings struct {
	m *sequencedmap.Map[string, trace.Value]
}

// NewBindings builds a mapping from bindings in order. Later duplicates
// overwrite earlier values in place.
func NewBindings(bs ...trace.Binding) *Bindings {
	b := &Bindings{}
	for _, x := range bs {
		b.Set(x.Name, x.Value)
	}
	return b
}

func (b *Bindings) init() {
	if b.m == nil {
		b.m = sequencedmap.New[string, trace.Value]()
	}
}

// Set inserts or overwrites name. Overwrites keep the original position.
func (b *Bindings) Set(name string, v trace.Value) {
	b.init()
	b.m.Set(name, v)
}

// Get looks up name
func (b *Bindings) Get(name string) (trace.Value, bool) {
	if b == nil || b.m == nil {
		return trace.Value{}, false
	}
	return b.m.Get(name)
}

// Delete removes name if present
func (b *Bindings) Delete(name string) {
	if b == nil || b.m == nil {
		return
	}
	b.m.Delete(name)
}

// Len returns the number of bindings
func (b *Bindings) Len() int {
	if b == nil || b.m == nil {
		return 0
	}
	return b.m.Len()
}

// Range calls fn for each binding in insertion order until fn returns false
func (b *Bindings) Range(fn func(name string, v trace.Value) bool) {
	if b == nil || b.m == nil {
		return
	}
	for name, v := range b.m.All() {
		if !fn(name, v) {
			return
		}
	}
}

// Names returns the bound names in insertion order
func (b *Bindings) Names() []string {
	names := make([]string, 0, b.Len())
	b.Range(func(name string, _ trace.Value) bool {
		names = append(names, name)
		return true
	})
	return names
}

// Entries returns the bindings in insertion order
func (b *Bindings) Entries() []trace.Binding {
	out := make([]trace.Binding, 0, b.Len())
	b.Range(func(name string, v trace.Value) bool {
		out = append(out, trace.Binding{Name: name, Value: v})
		return true
	})
	return out
}

// Clone returns an independent copy
func (b *Bindings) Clone() *Bindings {
	return NewBindings(b.Entries()...)
}

// Equal compares names, order and values (stamps included)
func (b *Bindings) Equal(o *Bindings) bool {
	x, y := b.Entries(), o.Entries()
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i].Name != y[i].Name || !sameValue(x[i].Value, y[i].Value) {
			return false
		}
	}
	return true
}

// sameValue is Equal plus the modification stamp.
func sameValue(a, b trace.Value) bool {
	if !a.Equal(b) {
		return false
	}
	as, aok := a.ModifiedAt()
	bs, bok := b.ModifiedAt()
	return aok == bok && as == bs
}
