package view

import (
	"bytes"
	"slices"
	"strings"
	"testing"

	"github.com/willibrandon/ChronoTrace/pkg/replay"
	"github.com/willibrandon/ChronoTrace/pkg/state"
	"github.com/willibrandon/ChronoTrace/pkg/trace"
)

func engineAtEnd(t *testing.T, doc *trace.Document) *replay.Engine {
	t.Helper()
	e, err := replay.NewFromDocument(doc)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	if err := e.Continue(nil); err != nil {
		t.Fatalf("Failed to replay: %v", err)
	}
	return e
}

func TestClassify(t *testing.T) {
	heap := state.NewHeap()
	heap.Put(state.NewListObject(1, trace.Numbers(1, 2)))
	heap.Put(state.NewListObject(2, trace.Numbers(3, 4)))
	heap.Put(state.NewListObject(3, []trace.Value{trace.Ptr(1), trace.Ptr(2)}))
	heap.Put(state.NewListObject(4, []trace.Value{trace.Ptr(1), trace.Number(5)}))
	heap.Put(state.NewListObject(5, []trace.Value{trace.Ptr(1), trace.Ptr(99)}))
	heap.Put(state.NewRecordObject(6, "Node", trace.Bind("next", trace.Ptr(0))))
	heap.Put(state.NewRecordObject(7, "Point", trace.Bind("x", trace.Number(0))))
	heap.Put(state.NewListObject(8, nil))

	annotations := []trace.Annotation{trace.NewMemberPointer("Node", "next")}

	tests := []struct {
		ptr  trace.Pointer
		want Kind
	}{
		{1, Array1D},
		{3, Array2D},
		{4, List},
		{5, List},
		{6, Graph},
		{7, Record},
		{8, Array1D},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			got, ok := Classify(heap, annotations, tt.ptr)
			if !ok {
				t.Fatalf("Expected #%d to be live", tt.ptr)
			}
			if got != tt.want {
				t.Errorf("#%d: expected %s, got %s", tt.ptr, tt.want, got)
			}
		})
	}

	if _, ok := Classify(heap, annotations, 42); ok {
		t.Error("Expected dead pointer to be unclassified")
	}
}

func TestFormatValue(t *testing.T) {
	c := FormatValue(trace.Number(3).Stamp(5), 5)
	if c.Text != "3" || !c.Modified || c.IsRef {
		t.Errorf("Unexpected cell %+v", c)
	}
	if c := FormatValue(trace.Number(3).Stamp(4), 5); c.Modified {
		t.Error("Expected value written earlier not to be marked")
	}
	if c := FormatValue(trace.Ptr(100), 0); !c.IsRef || c.Ref != 100 || c.Text != "#100" {
		t.Errorf("Unexpected pointer cell %+v", c)
	}
	if c := FormatValue(trace.Ptr(0), 0); c.Text != "null" {
		t.Errorf("Expected null pointer text, got %s", c.Text)
	}
}

func TestBuildOrdersNamedFirst(t *testing.T) {
	doc := trace.NewInMemoryRecorder().
		PushFrame("f", 1).
		NewList(100, trace.Numbers(1)...).
		NewList(50, trace.Numbers(2)...).
		NewList(300, trace.Numbers(3)...).
		NewLocal("b", trace.Ptr(300)).
		NewLocal("a", trace.Ptr(100)).
		Document()
	h := Build(engineAtEnd(t, doc))

	var order []trace.Pointer
	for _, o := range h.Objects {
		order = append(order, o.Ptr)
	}
	if want := []trace.Pointer{100, 300, 50}; !slices.Equal(order, want) {
		t.Errorf("Expected order %v, got %v", want, order)
	}
	if !slices.Equal(h.Objects[0].Names, []string{"a"}) {
		t.Errorf("Expected #100 named a, got %v", h.Objects[0].Names)
	}
}

func TestBuildMatrixConsumesRows(t *testing.T) {
	doc := trace.NewInMemoryRecorder().
		Annotate(
			trace.NewArrayIndex("f", "grid", "r", 0),
			trace.NewArrayIndex("f", "grid", "c", 1),
		).
		PushFrame("f", 1).
		NewList(11, trace.Numbers(1, 2)...).
		NewList(12, trace.Numbers(3, 4, 5)...).
		NewList(10, trace.Ptr(11), trace.Ptr(12)).
		NewLocal("grid", trace.Ptr(10)).
		NewLocal("r", trace.Number(1)).
		NewLocal("c", trace.Number(2)).
		ModifyPos(12, 2, trace.Number(9)).
		Document()
	e := engineAtEnd(t, doc)
	h := Build(e)

	if len(h.Objects) != 1 {
		t.Fatalf("Expected rows to be consumed by the matrix, got %d objects", len(h.Objects))
	}
	m := h.Objects[0]
	if m.Kind != Array2D || m.Table == nil {
		t.Fatalf("Expected a matrix table, got %+v", m)
	}
	if want := []string{"0", "1", "2 c"}; !slices.Equal(m.Table.Headers, want) {
		t.Errorf("Expected headers %v, got %v", want, m.Table.Headers)
	}
	if want := []string{"0", "1 r"}; !slices.Equal(m.Table.RowHeaders, want) {
		t.Errorf("Expected row headers %v, got %v", want, m.Table.RowHeaders)
	}
	if len(m.Table.Rows[0]) != 2 || len(m.Table.Rows[1]) != 3 {
		t.Errorf("Expected ragged rows of 2 and 3, got %d and %d", len(m.Table.Rows[0]), len(m.Table.Rows[1]))
	}
	if !m.Table.Rows[1][2].Modified {
		t.Error("Expected the last write to be marked")
	}

	var buf bytes.Buffer
	if err := h.Render(&buf, RenderOptions{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "#10 matrix (grid)") {
		t.Errorf("Expected matrix title, got:\n%s", out)
	}
	if !strings.Contains(out, "9*") {
		t.Errorf("Expected modified marker, got:\n%s", out)
	}
}

func TestBuildGraph(t *testing.T) {
	doc := trace.NewInMemoryRecorder().
		Annotate(trace.NewMemberPointer("Node", "next")).
		PushFrame("f", 1).
		NewRecord(2, "Node", trace.Bind("val", trace.Number(2)), trace.Bind("next", trace.Ptr(0))).
		NewRecord(1, "Node", trace.Bind("val", trace.Number(1)), trace.Bind("next", trace.Ptr(2))).
		NewLocal("head", trace.Ptr(1)).
		Document()
	h := Build(engineAtEnd(t, doc))

	if len(h.Objects) != 0 {
		t.Errorf("Expected graph nodes not to be listed as objects, got %d", len(h.Objects))
	}
	if len(h.Nodes) != 2 {
		t.Fatalf("Expected 2 nodes, got %d", len(h.Nodes))
	}
	if h.Nodes[0].Ptr != 1 || h.Nodes[0].Label != "val: 1" {
		t.Errorf("Unexpected node %+v", h.Nodes[0])
	}
	if len(h.Edges) != 1 || h.Edges[0].From != 1 || h.Edges[0].To != 2 {
		t.Errorf("Expected a single edge 1 -> 2, got %v", h.Edges)
	}

	var buf bytes.Buffer
	if err := h.Render(&buf, RenderOptions{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "#1 -next-> #2") {
		t.Errorf("Expected edge in output, got:\n%s", buf.String())
	}
}

func TestRenderTruncates(t *testing.T) {
	doc := trace.NewInMemoryRecorder().
		PushFrame("f", 1).
		NewRecord(1, "Point", trace.Bind("label", trace.String(strings.Repeat("x", 200)))).
		Document()
	h := Build(engineAtEnd(t, doc))

	var buf bytes.Buffer
	if err := h.Render(&buf, RenderOptions{Width: 40}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		if len([]rune(line)) > 40 {
			t.Errorf("Expected line truncated to 40 columns, got %d: %q", len([]rune(line)), line)
		}
	}
}

func TestRenderEmpty(t *testing.T) {
	h := Build(engineAtEnd(t, &trace.Document{}))
	var buf bytes.Buffer
	if err := h.Render(&buf, RenderOptions{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Heap is empty") {
		t.Errorf("Unexpected output: %s", buf.String())
	}
}

func TestRenderStack(t *testing.T) {
	doc := trace.NewInMemoryRecorder().
		PushFrame("main", 1).
		PushFrame("sq", 5, trace.Bind("n", trace.Number(3))).
		Return(trace.Number(9)).
		Document()
	e := engineAtEnd(t, doc)

	var buf bytes.Buffer
	if err := RenderStack(&buf, e.Stack(), e.Globals(), e.Cursor(), RenderOptions{}); err != nil {
		t.Fatalf("RenderStack failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"#0 main", "#1 sq", "n = 3", "return: 9*"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}
