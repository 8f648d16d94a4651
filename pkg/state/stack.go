package state

import (
	"errors"

	"github.com/willibrandon/ChronoTrace/pkg/trace"
)

// ErrEmptyStack is returned when popping a stack with no frames
var ErrEmptyStack = errors.New("pop on empty call stack")

// Frame is one activation record
type Frame struct {
	MethodName string
	Args       *Bindings
	Locals     *Bindings

	// ReturnValue is nil until the frame records a return.
	ReturnValue *trace.Value
}

// NewFrame creates a frame whose arguments are args
func NewFrame(methodName string, args ...trace.Binding) *Frame {
	return &Frame{
		MethodName: methodName,
		Args:       NewBindings(args...),
		Locals:     NewBindings(),
	}
}

// Lookup resolves name against locals first, then arguments
func (f *Frame) Lookup(name string) (trace.Value, bool) {
	if v, ok := f.Locals.Get(name); ok {
		return v, true
	}
	return f.Args.Get(name)
}

// Variables returns arguments then locals; a local shadows an argument of
// the same name and takes the argument's position.
func (f *Frame) Variables() []trace.Binding {
	all := NewBindings(f.Args.Entries()...)
	f.Locals.Range(func(name string, v trace.Value) bool {
		all.Set(name, v)
		return true
	})
	return all.Entries()
}

// Clone returns a deep copy of the frame
func (f *Frame) Clone() *Frame {
	c := &Frame{
		MethodName: f.MethodName,
		Args:       f.Args.Clone(),
		Locals:     f.Locals.Clone(),
	}
	if f.ReturnValue != nil {
		rv := *f.ReturnValue
		c.ReturnValue = &rv
	}
	return c
}

// Equal compares two frames including modification stamps
func (f *Frame) Equal(o *Frame) bool {
	if f.MethodName != o.MethodName || !f.Args.Equal(o.Args) || !f.Locals.Equal(o.Locals) {
		return false
	}
	if (f.ReturnValue == nil) != (o.ReturnValue == nil) {
		return false
	}
	return f.ReturnValue == nil || sameValue(*f.ReturnValue, *o.ReturnValue)
}

// Stack is the call stack, innermost frame last
type Stack struct {
	frames []*Frame
}

// NewStack creates an empty stack
func NewStack() *Stack {
	return &Stack{}
}

// Push adds a frame on top
func (s *Stack) Push(f *Frame) {
	s.frames = append(s.frames, f)
}

// Pop removes the top frame
func (s *Stack) Pop() (*Frame, error) {
	if len(s.frames) == 0 {
		return nil, ErrEmptyStack
	}
	top := s.frames[len(s.frames)-1]
	s.frames[len(s.frames)-1] = nil
	s.frames = s.frames[:len(s.frames)-1]
	return top, nil
}

// Top returns the innermost frame
func (s *Stack) Top() (*Frame, bool) {
	if s == nil || len(s.frames) == 0 {
		return nil, false
	}
	return s.frames[len(s.frames)-1], true
}

// Depth returns the number of live frames
func (s *Stack) Depth() int {
	if s == nil {
		return 0
	}
	return len(s.frames)
}

// Frames returns the frames outermost first. The slice must not be modified.
func (s *Stack) Frames() []*Frame {
	if s == nil {
		return nil
	}
	return s.frames
}

// Clone returns a deep copy of the stack
func (s *Stack) Clone() *Stack {
	c := &Stack{frames: make([]*Frame, len(s.frames))}
	for i, f := range s.frames {
		c.frames[i] = f.Clone()
	}
	return c
}

// Equal compares two stacks frame by frame
func (s *Stack) Equal(o *Stack) bool {
	if s.Depth() != o.Depth() {
		return false
	}
	for i := range s.frames {
		if !s.frames[i].Equal(o.frames[i]) {
			return false
		}
	}
	return true
}
