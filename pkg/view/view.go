// Package view turns a replay state into a presentation model: which heap
// objects are tables, which form a pointer graph, and how every value is
// labelled at the current step.
package view

import (
	"fmt"
	"strconv"

	"github.com/willibrandon/ChronoTrace/pkg/query"
	"github.com/willibrandon/ChronoTrace/pkg/state"
	"github.com/willibrandon/ChronoTrace/pkg/trace"
)

// Kind is how a heap object is presented
type Kind int

const (
	// Array1D is a list with no pointer elements
	Array1D Kind = iota
	// Array2D is a list whose every element points to a live Array1D
	Array2D
	// Graph is a record with member-pointer annotations
	Graph
	// Record is any other record
	Record
	// List is any other list
	List
)

// String returns the string representation of the Kind
func (k Kind) String() string {
	switch k {
	case Array1D:
		return "array"
	case Array2D:
		return "matrix"
	case Graph:
		return "node"
	case Record:
		return "record"
	case List:
		return "list"
	default:
		return "unknown"
	}
}

// Source is the read side of a replay engine
type Source interface {
	Cursor() int
	Stack() *state.Stack
	Heap() *state.Heap
	Annotations() []trace.Annotation
}

// Cell is one formatted value
type Cell struct {
	Text string
	// Modified is set when the value was written at the current step.
	Modified bool
	// Ref is the target when the value is a pointer.
	Ref   trace.Pointer
	IsRef bool
}

// Field is a named cell of a record
type Field struct {
	Name string
	Cell Cell
}

// Table lays out an Array1D or Array2D. Headers and RowHeaders carry the
// index variables currently pointing at each position.
type Table struct {
	Headers    []string
	RowHeaders []string
	Rows       [][]Cell
}

// Node is a graph vertex
type Node struct {
	Ptr   trace.Pointer
	Label string
	Names []string
}

// Object is a presented heap object
type Object struct {
	Ptr   trace.Pointer
	Kind  Kind
	Type  string
	Names []string
	Table *Table
	// Fields holds record members; Items holds elements of a plain list.
	Fields []Field
	Items  []Cell
}

// Heap is the presentation of the whole heap at one step
type Heap struct {
	Step    int
	Objects []Object
	Nodes   []Node
	Edges   []query.Edge
}

// FormatValue formats v and marks it when it was written at step
func FormatValue(v trace.Value, step int) Cell {
	c := Cell{Text: v.String(), Modified: step >= 0 && v.ModifiedAtStep(step)}
	if p, ok := v.AsPointer(); ok {
		c.Ref, c.IsRef = p, true
		if p == trace.NullPointer {
			c.Text = "null"
		}
	}
	return c
}

// Classify decides how the object at ptr is presented. ok is false for a
// dead pointer.
func Classify(heap *state.Heap, annotations []trace.Annotation, ptr trace.Pointer) (kind Kind, ok bool) {
	obj, ok := heap.Get(ptr)
	if !ok {
		return 0, false
	}
	if !obj.IsList() {
		if len(query.MemberPointers(heap, annotations, ptr)) > 0 {
			return Graph, true
		}
		return Record, true
	}
	if isArray1D(obj) {
		return Array1D, true
	}
	if isArray2D(heap, obj) {
		return Array2D, true
	}
	return List, true
}

func isArray1D(obj *state.Object) bool {
	for _, v := range obj.List {
		if v.Kind() == trace.KindPointer {
			return false
		}
	}
	return true
}

func isArray2D(heap *state.Heap, obj *state.Object) bool {
	for _, v := range obj.List {
		row, ok := rowOf(heap, v)
		if !ok || !isArray1D(row) {
			return false
		}
	}
	return true
}

func rowOf(heap *state.Heap, v trace.Value) (*state.Object, bool) {
	p, ok := v.AsPointer()
	if !ok {
		return nil, false
	}
	obj, ok := heap.Get(p)
	if !ok || !obj.IsList() {
		return nil, false
	}
	return obj, true
}

// Build lays out the heap of src. Objects held by a variable come first in
// ascending pointer order, then the rest. Rows of a matrix are shown inside
// it, not on their own, unless a variable holds them. Graph records become
// nodes and edges instead of objects.
func Build(src Source) *Heap {
	heap := src.Heap()
	stack := src.Stack()
	annotations := src.Annotations()
	step := src.Cursor()
	names := query.NamedReferences(stack)

	out := &Heap{Step: step}
	kinds := make(map[trace.Pointer]Kind, heap.Len())
	consumed := make(map[trace.Pointer]bool)

	for _, p := range heap.Pointers() {
		kind, _ := Classify(heap, annotations, p)
		kinds[p] = kind
		switch kind {
		case Graph:
			consumed[p] = true
			out.Nodes = append(out.Nodes, buildNode(heap, annotations, p, names[p]))
			out.Edges = append(out.Edges, query.MemberEdges(heap, annotations, p)...)
		case Array2D:
			obj, _ := heap.Get(p)
			for _, v := range obj.List {
				if row, ok := v.AsPointer(); ok {
					consumed[row] = true
				}
			}
		}
	}

	add := func(p trace.Pointer) {
		obj, ok := heap.Get(p)
		if !ok {
			return
		}
		o := Object{Ptr: p, Kind: kinds[p], Type: obj.Type, Names: names[p]}
		indices := query.ArrayIndices(stack, annotations, p)
		switch o.Kind {
		case Array1D:
			o.Table = buildArray(obj, indices, step)
		case Array2D:
			o.Table = buildMatrix(heap, obj, indices, step)
		case Record:
			obj.Members.Range(func(name string, v trace.Value) bool {
				o.Fields = append(o.Fields, Field{Name: name, Cell: FormatValue(v, step)})
				return true
			})
		case List:
			for _, v := range obj.List {
				o.Items = append(o.Items, FormatValue(v, step))
			}
		}
		out.Objects = append(out.Objects, o)
	}

	shown := make(map[trace.Pointer]bool)
	for _, p := range heap.NamedReferences() {
		if kinds[p] == Graph {
			continue
		}
		if _, ok := heap.Get(p); !ok {
			continue
		}
		shown[p] = true
		add(p)
	}
	for _, p := range heap.Pointers() {
		if shown[p] || consumed[p] {
			continue
		}
		add(p)
	}
	return out
}

func buildNode(heap *state.Heap, annotations []trace.Annotation, p trace.Pointer, names []string) Node {
	obj, _ := heap.Get(p)
	edge := make(map[string]bool)
	for _, mp := range query.MemberPointers(heap, annotations, p) {
		edge[mp.Member] = true
	}
	label := ""
	obj.Members.Range(func(name string, v trace.Value) bool {
		if edge[name] {
			return true
		}
		if label != "" {
			label += "\n"
		}
		label += name + ": " + v.String()
		return true
	})
	if label == "" {
		label = "..."
	}
	return Node{Ptr: p, Label: label, Names: names}
}

// indexLabels maps positions of one dimension to the index variables
// pointing at them.
func indexLabels(indices []query.ArrayIndex, dimension int) map[int][]string {
	labels := make(map[int][]string)
	for _, ix := range indices {
		if ix.Dimension != dimension {
			continue
		}
		pos := int(ix.Value)
		if float64(pos) != ix.Value {
			continue
		}
		labels[pos] = append(labels[pos], ix.Var)
	}
	return labels
}

func header(pos int, labels map[int][]string) string {
	h := strconv.Itoa(pos)
	for _, name := range labels[pos] {
		h += " " + name
	}
	return h
}

func buildArray(obj *state.Object, indices []query.ArrayIndex, step int) *Table {
	labels := indexLabels(indices, 0)
	t := &Table{Rows: [][]Cell{make([]Cell, len(obj.List))}}
	for i, v := range obj.List {
		t.Headers = append(t.Headers, header(i, labels))
		t.Rows[0][i] = FormatValue(v, step)
	}
	return t
}

func buildMatrix(heap *state.Heap, obj *state.Object, indices []query.ArrayIndex, step int) *Table {
	rowLabels := indexLabels(indices, 0)
	colLabels := indexLabels(indices, 1)

	t := &Table{}
	cols := 0
	for i, v := range obj.List {
		row, _ := rowOf(heap, v)
		cells := make([]Cell, len(row.List))
		for j, x := range row.List {
			cells[j] = FormatValue(x, step)
		}
		cols = max(cols, len(cells))
		t.Rows = append(t.Rows, cells)
		t.RowHeaders = append(t.RowHeaders, header(i, rowLabels))
	}
	for j := 0; j < cols; j++ {
		t.Headers = append(t.Headers, header(j, colLabels))
	}
	return t
}

// Title is the one-line heading of an object
func (o Object) Title() string {
	title := fmt.Sprintf("#%d %s", o.Ptr, o.Kind)
	if o.Kind == Record {
		title = fmt.Sprintf("#%d %s", o.Ptr, o.Type)
	}
	for i, name := range o.Names {
		if i == 0 {
			title += " ("
		} else {
			title += ", "
		}
		title += name
		if i == len(o.Names)-1 {
			title += ")"
		}
	}
	return title
}
