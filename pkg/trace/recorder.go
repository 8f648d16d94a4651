package trace

// Recorder collects log entries in order.
type Recorder interface {
	RecordEntry(e Entry) error
	GetEntries() []Entry
	Clear()
}

// InMemoryRecorder is a Recorder that keeps entries in a slice. Its helper
// methods build well-formed entries and are what tests and examples use to
// script a trace by hand.
type InMemoryRecorder struct {
	entries     []Entry
	annotations []Annotation
}

// NewInMemoryRecorder creates an empty recorder
func NewInMemoryRecorder() *InMemoryRecorder {
	return &InMemoryRecorder{entries: []Entry{}}
}

func (r *InMemoryRecorder) RecordEntry(e Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *InMemoryRecorder) GetEntries() []Entry {
	return r.entries
}

func (r *InMemoryRecorder) Clear() {
	r.entries = []Entry{}
	r.annotations = nil
}

// Annotate adds static annotation metadata to the recorded document
func (r *InMemoryRecorder) Annotate(a ...Annotation) *InMemoryRecorder {
	r.annotations = append(r.annotations, a...)
	return r
}

// Document returns the recorded log and annotations as a Document
func (r *InMemoryRecorder) Document() *Document {
	return &Document{Log: r.entries, Annotations: r.annotations}
}

func (r *InMemoryRecorder) add(e Entry) *InMemoryRecorder {
	r.entries = append(r.entries, e)
	return r
}

// Line records a line event
func (r *InMemoryRecorder) Line(line int) *InMemoryRecorder {
	return r.add(LineEntry(line))
}

// PushFrame records entry into function with its initial bindings
func (r *InMemoryRecorder) PushFrame(function string, line int, locals ...Binding) *InMemoryRecorder {
	return r.add(PushFrameEntry(function, line, locals...))
}

// PopFrame records a return from the current frame
func (r *InMemoryRecorder) PopFrame() *InMemoryRecorder {
	return r.add(Entry{Op: OpPopFrame})
}

// Return records the current frame's return value
func (r *InMemoryRecorder) Return(v Value) *InMemoryRecorder {
	return r.add(Entry{Op: OpReturn, Value: v})
}

// NewLocal records a new local in the current frame
func (r *InMemoryRecorder) NewLocal(name string, v Value) *InMemoryRecorder {
	return r.add(Entry{Op: OpNewLocal, Name: name, Value: v})
}

// UpdateLocal records an assignment to an existing local
func (r *InMemoryRecorder) UpdateLocal(name string, v Value) *InMemoryRecorder {
	return r.add(Entry{Op: OpUpdateLocal, Name: name, Value: v})
}

// NewList records allocation of a list object
func (r *InMemoryRecorder) NewList(p Pointer, elems ...Value) *InMemoryRecorder {
	return r.add(NewListEntry(p, elems...))
}

// NewRecord records allocation of a record object
func (r *InMemoryRecorder) NewRecord(p Pointer, typ string, members ...Binding) *InMemoryRecorder {
	return r.add(NewRecordEntry(p, typ, members...))
}

// ModifyPos records a list slot write
func (r *InMemoryRecorder) ModifyPos(p Pointer, pos int, v Value) *InMemoryRecorder {
	return r.add(Entry{Op: OpModifyPos, Pointer: p, Pos: pos, Value: v})
}

// ModifyKey records a record member write
func (r *InMemoryRecorder) ModifyKey(p Pointer, key string, v Value) *InMemoryRecorder {
	return r.add(Entry{Op: OpModifyKey, Pointer: p, Key: key, Value: v})
}

// Delete records an object becoming unreachable
func (r *InMemoryRecorder) Delete(p Pointer) *InMemoryRecorder {
	return r.add(Entry{Op: OpDelete, Pointer: p})
}

// Batch records entries to be applied as one step
func (r *InMemoryRecorder) Batch(entries ...Entry) *InMemoryRecorder {
	return r.add(Entry{Op: OpBatch, Batch: entries})
}

// Bind pairs a name with a value
func Bind(name string, v Value) Binding {
	return Binding{Name: name, Value: v}
}

// LineEntry builds a line entry
func LineEntry(line int) Entry {
	return Entry{Op: OpLine, Line: line}
}

// PushFrameEntry builds a pushFrame entry
func PushFrameEntry(function string, line int, locals ...Binding) Entry {
	return Entry{Op: OpPushFrame, Function: function, Line: line, Locals: locals}
}

// NewListEntry builds a "new" entry with a list body
func NewListEntry(p Pointer, elems ...Value) Entry {
	if elems == nil {
		elems = []Value{}
	}
	return Entry{Op: OpNew, Pointer: p, Object: &ObjectLiteral{Type: "list", IsList: true, Elements: elems}}
}

// NewRecordEntry builds a "new" entry with a record body
func NewRecordEntry(p Pointer, typ string, members ...Binding) Entry {
	return Entry{Op: OpNew, Pointer: p, Object: &ObjectLiteral{Type: typ, Members: members}}
}

// Numbers is shorthand for a list of numeric values
func Numbers(ns ...float64) []Value {
	out := make([]Value, len(ns))
	for i, n := range ns {
		out[i] = Number(n)
	}
	return out
}
