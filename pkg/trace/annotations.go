package trace

import (
	"encoding/json"
	"fmt"
)

// AnnotationKind identifies the kind of inference record
type AnnotationKind int

const (
	// MemberPointerAnnotation marks a class member to be drawn as an edge
	MemberPointerAnnotation AnnotationKind = iota
	// ArrayIndexAnnotation marks a local as an index into an array variable
	ArrayIndexAnnotation
	// FastForwardAnnotation marks a function to be skipped during play
	FastForwardAnnotation
)

// String returns the wire type of the AnnotationKind
func (k AnnotationKind) String() string {
	switch k {
	case MemberPointerAnnotation:
		return "memberPointer"
	case ArrayIndexAnnotation:
		return "arrayIndex"
	case FastForwardAnnotation:
		return "fastForward"
	default:
		return "unknown"
	}
}

// MemberPointer declares that Member of objects typed ClassName is a pointer edge.
type MemberPointer struct {
	ClassName string `json:"className"`
	Member    string `json:"member"`
}

// ArrayIndex declares that, inside FuncName, local Var indexes dimension
// Dimension (0 = row/outer, 1 = column/inner) of the array held by Array.
type ArrayIndex struct {
	FuncName  string `json:"funcName"`
	Array     string `json:"array"`
	Var       string `json:"var"`
	Dimension int    `json:"index"`
}

// FastForward declares that calls to FuncName are not worth animating.
type FastForward struct {
	FuncName string `json:"funcName"`
}

// Annotation is one static inference record. Exactly one of the payload
// pointers is set, matching Kind.
type Annotation struct {
	Kind          AnnotationKind
	MemberPointer *MemberPointer
	ArrayIndex    *ArrayIndex
	FastForward   *FastForward
}

// NewMemberPointer builds a member-pointer annotation
func NewMemberPointer(className, member string) Annotation {
	return Annotation{Kind: MemberPointerAnnotation, MemberPointer: &MemberPointer{ClassName: className, Member: member}}
}

// NewArrayIndex builds an array-index annotation
func NewArrayIndex(funcName, array, indexVar string, dimension int) Annotation {
	return Annotation{Kind: ArrayIndexAnnotation, ArrayIndex: &ArrayIndex{FuncName: funcName, Array: array, Var: indexVar, Dimension: dimension}}
}

// NewFastForward builds a fast-forward annotation
func NewFastForward(funcName string) Annotation {
	return Annotation{Kind: FastForwardAnnotation, FastForward: &FastForward{FuncName: funcName}}
}

type wireAnnotation struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeAnnotations decodes the "infer" list. Records of unknown type are
// dropped: annotations only guide presentation.
func DecodeAnnotations(raw json.RawMessage) ([]Annotation, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var wire []wireAnnotation
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("annotations: %w", err)
	}

	out := make([]Annotation, 0, len(wire))
	for i, w := range wire {
		var a Annotation
		switch w.Type {
		case "memberPointer":
			a.Kind = MemberPointerAnnotation
			a.MemberPointer = &MemberPointer{}
			if err := json.Unmarshal(w.Data, a.MemberPointer); err != nil {
				return nil, fmt.Errorf("annotation %d: %w", i, err)
			}
		case "arrayIndex":
			a.Kind = ArrayIndexAnnotation
			a.ArrayIndex = &ArrayIndex{}
			if err := json.Unmarshal(w.Data, a.ArrayIndex); err != nil {
				return nil, fmt.Errorf("annotation %d: %w", i, err)
			}
		case "fastForward":
			a.Kind = FastForwardAnnotation
			a.FastForward = &FastForward{}
			if err := json.Unmarshal(w.Data, a.FastForward); err != nil {
				return nil, fmt.Errorf("annotation %d: %w", i, err)
			}
		default:
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// MarshalJSON encodes the annotation as {"type": ..., "data": ...}
func (a Annotation) MarshalJSON() ([]byte, error) {
	var data any
	switch a.Kind {
	case MemberPointerAnnotation:
		data = a.MemberPointer
	case ArrayIndexAnnotation:
		data = a.ArrayIndex
	case FastForwardAnnotation:
		data = a.FastForward
	default:
		return nil, fmt.Errorf("unknown annotation kind %d", a.Kind)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireAnnotation{Type: a.Kind.String(), Data: raw})
}
