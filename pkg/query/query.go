// Package query answers presentation questions about a replay state: which
// members of a heap object are pointer edges, which locals index into an
// array, and which names in the current frame refer to which objects.
//
// Every function takes the stack, heap and annotations it reads explicitly
// and never mutates them.
package query

import (
	"path/filepath"
	"strings"

	"github.com/willibrandon/ChronoTrace/pkg/state"
	"github.com/willibrandon/ChronoTrace/pkg/trace"
)

// ArrayIndex labels dimension Dimension of an array with the current value
// of index variable Var.
type ArrayIndex struct {
	Var       string
	Value     float64
	Dimension int
}

// Edge is a member pointer from one heap object to another
type Edge struct {
	From   trace.Pointer
	Member string
	To     trace.Pointer
}

// MemberPointers returns the member-pointer annotations whose class name
// equals the type tag of the object at ptr. It is empty for dead pointers.
func MemberPointers(heap *state.Heap, annotations []trace.Annotation, ptr trace.Pointer) []trace.MemberPointer {
	obj, ok := heap.Get(ptr)
	if !ok {
		return nil
	}
	var out []trace.MemberPointer
	for _, a := range annotations {
		if a.Kind != trace.MemberPointerAnnotation {
			continue
		}
		if a.MemberPointer.ClassName == obj.Type {
			out = append(out, *a.MemberPointer)
		}
	}
	return out
}

// MemberEdges returns an edge for every annotated member of the object at
// ptr that currently holds a non-null pointer.
func MemberEdges(heap *state.Heap, annotations []trace.Annotation, ptr trace.Pointer) []Edge {
	obj, ok := heap.Get(ptr)
	if !ok || obj.IsList() {
		return nil
	}
	var edges []Edge
	for _, mp := range MemberPointers(heap, annotations, ptr) {
		v, ok := obj.Members.Get(mp.Member)
		if !ok {
			continue
		}
		to, ok := v.AsPointer()
		if !ok || to == trace.NullPointer {
			continue
		}
		edges = append(edges, Edge{From: ptr, Member: mp.Member, To: to})
	}
	return edges
}

// ArrayIndices returns, for the top frame only, the index variables whose
// array-index annotation names an array variable currently holding ptr.
// Locals are visited in insertion order and annotations in declaration
// order. Index variables that do not hold a number are skipped.
func ArrayIndices(stack *state.Stack, annotations []trace.Annotation, ptr trace.Pointer) []ArrayIndex {
	frame, ok := stack.Top()
	if !ok {
		return nil
	}

	var out []ArrayIndex
	frame.Locals.Range(func(name string, local trace.Value) bool {
		for _, a := range annotations {
			if a.Kind != trace.ArrayIndexAnnotation {
				continue
			}
			ai := a.ArrayIndex
			if ai.FuncName != frame.MethodName || ai.Var != name {
				continue
			}
			arr, ok := frame.Lookup(ai.Array)
			if !ok {
				continue
			}
			if p, ok := arr.AsPointer(); !ok || p != ptr {
				continue
			}
			n, ok := local.AsNumber()
			if !ok {
				continue
			}
			out = append(out, ArrayIndex{Var: name, Value: n, Dimension: ai.Dimension})
		}
		return true
	})
	return out
}

// NamedReferences maps each pointer held by a variable of the top frame to
// the names holding it, arguments before locals.
func NamedReferences(stack *state.Stack) map[trace.Pointer][]string {
	refs := make(map[trace.Pointer][]string)
	frame, ok := stack.Top()
	if !ok {
		return refs
	}
	for _, b := range frame.Variables() {
		if p, ok := b.Value.AsPointer(); ok {
			refs[p] = append(refs[p], b.Name)
		}
	}
	return refs
}

// FastForward reports whether calls to funcName are annotated as not worth
// animating, or match one of the skip patterns. Patterns use filepath.Match
// syntax; a trailing "..." matches any suffix.
func FastForward(annotations []trace.Annotation, funcName string, patterns ...string) bool {
	for _, a := range annotations {
		if a.Kind == trace.FastForwardAnnotation && a.FastForward.FuncName == funcName {
			return true
		}
	}
	for _, pattern := range patterns {
		if matchesFunction(funcName, pattern) {
			return true
		}
	}
	return false
}

func matchesFunction(funcName, pattern string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "..."); ok {
		return strings.HasPrefix(funcName, prefix)
	}
	matched, _ := filepath.Match(pattern, funcName)
	return matched
}
