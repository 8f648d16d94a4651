package query

import (
	"slices"
	"testing"

	"github.com/willibrandon/ChronoTrace/pkg/state"
	"github.com/willibrandon/ChronoTrace/pkg/trace"
)

func linkedList() (*state.Stack, *state.Heap) {
	heap := state.NewHeap()
	heap.Put(state.NewRecordObject(100, "Node", trace.Bind("val", trace.Number(1)), trace.Bind("next", trace.Ptr(101))))
	heap.Put(state.NewRecordObject(101, "Node", trace.Bind("val", trace.Number(2)), trace.Bind("next", trace.Ptr(trace.NullPointer))))
	heap.Put(state.NewListObject(200, trace.Numbers(4, 5, 6)))

	stack := state.NewStack()
	frame := state.NewFrame("walk", trace.Bind("head", trace.Ptr(100)))
	frame.Locals.Set("cur", trace.Ptr(100))
	frame.Locals.Set("xs", trace.Ptr(200))
	stack.Push(frame)
	return stack, heap
}

func TestMemberPointers(t *testing.T) {
	_, heap := linkedList()
	annotations := []trace.Annotation{
		trace.NewMemberPointer("Node", "next"),
		trace.NewArrayIndex("walk", "xs", "i", 0),
		trace.NewMemberPointer("Tree", "left"),
		trace.NewMemberPointer("Node", "prev"),
	}

	got := MemberPointers(heap, annotations, 100)
	if len(got) != 2 || got[0].Member != "next" || got[1].Member != "prev" {
		t.Errorf("Expected Node.next and Node.prev in order, got %v", got)
	}
	if got := MemberPointers(heap, annotations, 200); len(got) != 0 {
		t.Errorf("Expected no annotations for a list, got %v", got)
	}
	if got := MemberPointers(heap, annotations, 999); got != nil {
		t.Errorf("Expected nothing for a dead pointer, got %v", got)
	}
}

func TestMemberEdges(t *testing.T) {
	_, heap := linkedList()
	annotations := []trace.Annotation{
		trace.NewMemberPointer("Node", "next"),
		trace.NewMemberPointer("Node", "val"),
		trace.NewMemberPointer("Node", "missing"),
	}

	edges := MemberEdges(heap, annotations, 100)
	want := []Edge{{From: 100, Member: "next", To: 101}}
	if !slices.Equal(edges, want) {
		t.Errorf("Expected %v, got %v", want, edges)
	}

	// next is null on the tail
	if edges := MemberEdges(heap, annotations, 101); len(edges) != 0 {
		t.Errorf("Expected no edges from the tail, got %v", edges)
	}
}

func TestArrayIndices(t *testing.T) {
	stack, _ := linkedList()
	top, _ := stack.Top()
	top.Locals.Set("j", trace.Number(1))
	top.Locals.Set("i", trace.Number(2))
	top.Locals.Set("label", trace.String("row"))

	annotations := []trace.Annotation{
		trace.NewArrayIndex("walk", "xs", "i", 0),
		trace.NewArrayIndex("walk", "xs", "j", 1),
		trace.NewArrayIndex("other", "xs", "i", 0),
		trace.NewArrayIndex("walk", "ys", "i", 0),
		trace.NewArrayIndex("walk", "xs", "label", 0),
	}

	got := ArrayIndices(stack, annotations, 200)
	// locals are visited in insertion order: j before i
	want := []ArrayIndex{{Var: "j", Value: 1, Dimension: 1}, {Var: "i", Value: 2, Dimension: 0}}
	if !slices.Equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if got := ArrayIndices(stack, annotations, 100); len(got) != 0 {
		t.Errorf("Expected no indices for a pointer not held by xs, got %v", got)
	}
	if got := ArrayIndices(state.NewStack(), annotations, 200); got != nil {
		t.Errorf("Expected nothing with an empty stack, got %v", got)
	}
}

func TestArrayIndicesResolveArgumentArrays(t *testing.T) {
	stack := state.NewStack()
	frame := state.NewFrame("sum", trace.Bind("arr", trace.Ptr(300)))
	frame.Locals.Set("k", trace.Number(0))
	stack.Push(frame)

	got := ArrayIndices(stack, []trace.Annotation{trace.NewArrayIndex("sum", "arr", "k", 0)}, 300)
	if len(got) != 1 || got[0].Var != "k" {
		t.Errorf("Expected index k into argument arr, got %v", got)
	}
}

func TestArrayIndicesTopFrameOnly(t *testing.T) {
	stack, _ := linkedList()
	outer, _ := stack.Top()
	outer.Locals.Set("i", trace.Number(0))
	stack.Push(state.NewFrame("walk"))

	annotations := []trace.Annotation{trace.NewArrayIndex("walk", "xs", "i", 0)}
	if got := ArrayIndices(stack, annotations, 200); len(got) != 0 {
		t.Errorf("Expected outer frame to be ignored, got %v", got)
	}
}

func TestNamedReferences(t *testing.T) {
	stack, _ := linkedList()
	refs := NamedReferences(stack)

	if got := refs[100]; !slices.Equal(got, []string{"head", "cur"}) {
		t.Errorf("Expected #100 named head, cur; got %v", got)
	}
	if got := refs[200]; !slices.Equal(got, []string{"xs"}) {
		t.Errorf("Expected #200 named xs, got %v", got)
	}
	if _, ok := refs[101]; ok {
		t.Error("Expected #101 not to be named")
	}

	if refs := NamedReferences(state.NewStack()); len(refs) != 0 {
		t.Errorf("Expected empty map for empty stack, got %v", refs)
	}
}

func TestQueriesDoNotMutate(t *testing.T) {
	stack, heap := linkedList()
	stackBefore, heapBefore := stack.Clone(), heap.Clone()
	annotations := []trace.Annotation{
		trace.NewMemberPointer("Node", "next"),
		trace.NewArrayIndex("walk", "xs", "cur", 0),
	}

	MemberPointers(heap, annotations, 100)
	MemberEdges(heap, annotations, 100)
	ArrayIndices(stack, annotations, 200)
	NamedReferences(stack)

	if !stack.Equal(stackBefore) || !heap.Equal(heapBefore) {
		t.Error("Expected queries to leave stack and heap untouched")
	}
}

func TestFastForward(t *testing.T) {
	annotations := []trace.Annotation{trace.NewFastForward("print_list")}

	tests := []struct {
		funcName string
		patterns []string
		want     bool
	}{
		{"print_list", nil, true},
		{"merge", nil, false},
		{"helper_swap", []string{"helper_*"}, true},
		{"pkg.inner.fn", []string{"pkg.inner..."}, true},
		{"pkg.outer", []string{"pkg.inner..."}, false},
		{"sort", []string{"[", "sort"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.funcName, func(t *testing.T) {
			if got := FastForward(annotations, tt.funcName, tt.patterns...); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}
