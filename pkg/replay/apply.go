package replay

import (
	"errors"
	"fmt"

	"github.com/willibrandon/ChronoTrace/pkg/state"
	"github.com/willibrandon/ChronoTrace/pkg/trace"
)

var (
	// ErrContractViolation indicates a log entry that cannot be applied to
	// the current state: the producer broke the log contract.
	ErrContractViolation = errors.New("trace contract violation")
	// ErrEngineFailed is returned by navigation after a contract violation
	// until the engine is reset.
	ErrEngineFailed = errors.New("engine failed")
)

// State is everything replay mutates: the call stack, the heap, global
// bindings and the current line.
type State struct {
	Stack   *state.Stack
	Heap    *state.Heap
	Globals *state.Bindings
	Line    int
}

// NewState returns the before-start state
func NewState() *State {
	return &State{
		Stack:   state.NewStack(),
		Heap:    state.NewHeap(),
		Globals: state.NewBindings(),
		Line:    -1,
	}
}

// Clone returns a deep copy
func (s *State) Clone() *State {
	return &State{
		Stack:   s.Stack.Clone(),
		Heap:    s.Heap.Clone(),
		Globals: s.Globals.Clone(),
		Line:    s.Line,
	}
}

// Equal compares two states including modification stamps
func (s *State) Equal(o *State) bool {
	return s.Line == o.Line &&
		s.Stack.Equal(o.Stack) &&
		s.Heap.Equal(o.Heap) &&
		s.Globals.Equal(o.Globals)
}

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrContractViolation, fmt.Sprintf(format, args...))
}

// Apply mutates s by one log entry. step is only used to stamp written
// values. Named references are not recomputed here.
func Apply(s *State, e trace.Entry, step int) error {
	switch e.Op {
	case trace.OpLine:
		s.Line = e.Line

	case trace.OpPushFrame:
		s.Stack.Push(state.NewFrame(e.Function, e.Locals...))
		s.Line = e.Line

	case trace.OpNewLocal, trace.OpUpdateLocal:
		top, ok := s.Stack.Top()
		if !ok {
			return violation("%s %q with no frame", e.Op, e.Name)
		}
		top.Locals.Set(e.Name, e.Value.Stamp(step))

	case trace.OpNewGlobal, trace.OpUpdateGlobal:
		s.Globals.Set(e.Name, e.Value.Stamp(step))

	case trace.OpReturn:
		top, ok := s.Stack.Top()
		if !ok {
			return violation("return with no frame")
		}
		rv := e.Value.Stamp(step)
		top.ReturnValue = &rv

	case trace.OpPopFrame:
		if _, err := s.Stack.Pop(); err != nil {
			return fmt.Errorf("%w: %w", ErrContractViolation, err)
		}

	case trace.OpNew:
		if e.Object == nil {
			return violation("new #%d without body", e.Pointer)
		}
		if e.Object.IsList {
			s.Heap.Put(state.NewListObject(e.Pointer, e.Object.Elements))
		} else {
			s.Heap.Put(state.NewRecordObject(e.Pointer, e.Object.Type, e.Object.Members...))
		}

	case trace.OpModifyPos:
		obj, err := listObject(s.Heap, e)
		if err != nil {
			return err
		}
		v := e.Value.Stamp(step)
		switch {
		case e.Pos >= 0 && e.Pos < len(obj.List):
			obj.List[e.Pos] = v
		case e.Pos == len(obj.List):
			obj.List = append(obj.List, v)
		default:
			return violation("modifyPos #%d position %d out of range [0, %d]", e.Pointer, e.Pos, len(obj.List))
		}

	case trace.OpReset:
		obj, err := listObject(s.Heap, e)
		if err != nil {
			return err
		}
		list := make([]trace.Value, len(e.Elements))
		for i, v := range e.Elements {
			list[i] = v.Stamp(step)
		}
		obj.List = list

	case trace.OpModifyKey, trace.OpAddKey:
		obj, err := recordObject(s.Heap, e)
		if err != nil {
			return err
		}
		obj.Members.Set(e.Key, e.Value.Stamp(step))

	case trace.OpRemoveKey:
		obj, err := recordObject(s.Heap, e)
		if err != nil {
			return err
		}
		obj.Members.Delete(e.Key)

	case trace.OpDelete:
		if _, ok := s.Heap.Get(e.Pointer); !ok {
			return violation("delete of missing object #%d", e.Pointer)
		}
		s.Heap.Delete(e.Pointer)

	case trace.OpBatch:
		for i, nested := range e.Batch {
			if err := Apply(s, nested, step); err != nil {
				return fmt.Errorf("batch[%d]: %w", i, err)
			}
		}

	default:
		return violation("unknown op %d", e.Op)
	}
	return nil
}

func listObject(h *state.Heap, e trace.Entry) (*state.Object, error) {
	obj, ok := h.Get(e.Pointer)
	if !ok {
		return nil, violation("%s on missing object #%d", e.Op, e.Pointer)
	}
	if !obj.IsList() {
		return nil, violation("%s on %s object #%d", e.Op, obj.Type, e.Pointer)
	}
	return obj, nil
}

func recordObject(h *state.Heap, e trace.Entry) (*state.Object, error) {
	obj, ok := h.Get(e.Pointer)
	if !ok {
		return nil, violation("%s on missing object #%d", e.Op, e.Pointer)
	}
	if obj.IsList() {
		return nil, violation("%s on list object #%d", e.Op, e.Pointer)
	}
	return obj, nil
}
