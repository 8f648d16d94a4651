package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Pointer is a heap object identity assigned by the tracer.
// Pointer 0 is the null pointer.
type Pointer int64

// NullPointer is what the tracer emits for None.
const NullPointer Pointer = 0

// Kind identifies which payload slot of a Value is populated
type Kind uint8

const (
	// KindNone is the absent value
	KindNone Kind = iota
	// KindBool holds a boolean
	KindBool
	// KindNumber holds a float64
	KindNumber
	// KindPointer holds a heap pointer
	KindPointer
	// KindString holds text
	KindString
)

// String returns the string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindPointer:
		return "pointer"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Value is a tagged union of the scalar kinds a trace can bind to a
// variable, list slot or record member.
type Value struct {
	kind Kind
	b    bool
	n    float64
	p    Pointer
	s    string

	// stamp is the step index + 1 at which the value was written, 0 if never.
	stamp int
}

// None returns the absent value
func None() Value { return Value{} }

// Bool returns a boolean value
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Ptr returns a pointer value
func Ptr(p Pointer) Value { return Value{kind: KindPointer, p: p} }

// String returns a string value
func String(s string) Value { return Value{kind: KindString, s: s} }

// Kind reports which payload is populated
func (v Value) Kind() Kind { return v.kind }

// IsNone reports whether v is the absent value
func (v Value) IsNone() bool { return v.kind == KindNone }

// AsBool returns the boolean payload
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the numeric payload
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsPointer returns the pointer payload
func (v Value) AsPointer() (Pointer, bool) { return v.p, v.kind == KindPointer }

// AsString returns the string payload
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Stamp returns a copy of v marked as modified at step.
func (v Value) Stamp(step int) Value {
	v.stamp = step + 1
	return v
}

// ModifiedAt returns the step the value was last written at, if stamped.
func (v Value) ModifiedAt() (int, bool) {
	if v.stamp == 0 {
		return 0, false
	}
	return v.stamp - 1, true
}

// ModifiedAtStep reports whether the value was written at exactly step.
func (v Value) ModifiedAtStep(step int) bool {
	at, ok := v.ModifiedAt()
	return ok && at == step
}

// Equal compares payloads. The modification stamp is ignored.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNone:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindPointer:
		return v.p == o.p
	case KindString:
		return v.s == o.s
	}
	return false
}

// String renders the value the way the stack view shows it.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case KindPointer:
		return "#" + strconv.FormatInt(int64(v.p), 10)
	case KindString:
		return strconv.Quote(v.s)
	default:
		return "null"
	}
}

// DecodeWire builds a Value from the (isPointer, payload) wire pair.
// payload is a decoded JSON scalar: nil, string, bool, float64 or json.Number.
func DecodeWire(isPointer bool, payload any) (Value, error) {
	if isPointer {
		p, err := toPointer(payload)
		if err != nil {
			return Value{}, err
		}
		return Ptr(p), nil
	}

	switch x := payload.(type) {
	case nil:
		return None(), nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", x, err)
		}
		return Number(f), nil
	default:
		return Value{}, fmt.Errorf("unsupported wire payload %T", payload)
	}
}

func toPointer(payload any) (Pointer, error) {
	switch x := payload.(type) {
	case int:
		return Pointer(x), nil
	case int64:
		return Pointer(x), nil
	case Pointer:
		return x, nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("pointer payload %v is not integral", x)
		}
		return Pointer(int64(x)), nil
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("invalid pointer %q: %w", x, err)
		}
		return Pointer(i), nil
	case nil:
		return NullPointer, nil
	default:
		return 0, fmt.Errorf("unsupported pointer payload %T", payload)
	}
}

// UnmarshalJSON decodes the two-element [isPointer, payload] wire pair.
func (v *Value) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("value: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("value: expected [isPointer, payload], got %d elements", len(pair))
	}
	var isPointer bool
	if err := json.Unmarshal(pair[0], &isPointer); err != nil {
		return fmt.Errorf("value: isPointer: %w", err)
	}
	payload, err := decodeScalar(pair[1])
	if err != nil {
		return fmt.Errorf("value: payload: %w", err)
	}
	decoded, err := DecodeWire(isPointer, payload)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}
	*v = decoded
	return nil
}

// MarshalJSON encodes the value as its wire pair. The stamp is not encoded.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindPointer:
		return json.Marshal([]any{true, int64(v.p)})
	case KindBool:
		return json.Marshal([]any{false, v.b})
	case KindNumber:
		return json.Marshal([]any{false, v.n})
	case KindString:
		return json.Marshal([]any{false, v.s})
	default:
		return json.Marshal([]any{false, nil})
	}
}

func decodeScalar(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return nil, err
	}
	return x, nil
}
