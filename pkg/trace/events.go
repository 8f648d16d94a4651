package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownOp is returned when a log entry carries an unrecognized op tag
var ErrUnknownOp = errors.New("unknown op")

// Op is the operation tag of a log entry
type Op int

const (
	OpLine Op = iota
	OpPushFrame
	OpNewLocal
	OpUpdateLocal
	OpReturn
	OpPopFrame
	OpNew
	OpModifyPos
	OpModifyKey
	OpAddKey
	OpRemoveKey
	OpReset
	OpNewGlobal
	OpUpdateGlobal
	OpDelete
	OpBatch
)

var opNames = [...]string{
	OpLine:         "line",
	OpPushFrame:    "pushFrame",
	OpNewLocal:     "newLocal",
	OpUpdateLocal:  "updateLocal",
	OpReturn:       "return",
	OpPopFrame:     "popFrame",
	OpNew:          "new",
	OpModifyPos:    "modifyPos",
	OpModifyKey:    "modifyKey",
	OpAddKey:       "addKey",
	OpRemoveKey:    "removeKey",
	OpReset:        "reset",
	OpNewGlobal:    "newGlobal",
	OpUpdateGlobal: "updateGlobal",
	OpDelete:       "delete",
	OpBatch:        "batch",
}

// String returns the wire tag of the Op
func (op Op) String() string {
	if op >= 0 && int(op) < len(opNames) {
		return opNames[op]
	}
	return "Unknown"
}

// ParseOp maps a wire tag to its Op
func ParseOp(tag string) (Op, error) {
	for i, name := range opNames {
		if name == tag {
			return Op(i), nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownOp, tag)
}

// Binding is one named value in an ordered collection
type Binding struct {
	Name  string
	Value Value
}

// ObjectLiteral is the payload of a "new" entry.
type ObjectLiteral struct {
	// Type is "list" for list bodies, otherwise the record's type tag.
	Type     string
	IsList   bool
	Elements []Value
	Members  []Binding
}

// Entry is one decoded log entry. Which fields are meaningful depends on Op:
//
//	line                     Line
//	pushFrame                Function, Line, Locals
//	newLocal/updateLocal     Name, Value
//	newGlobal/updateGlobal   Name, Value
//	return                   Value
//	new                      Pointer, Object
//	modifyPos                Pointer, Pos, Value
//	modifyKey/addKey         Pointer, Key, Value
//	removeKey                Pointer, Key
//	reset                    Pointer, Elements
//	delete                   Pointer
//	batch                    Batch
type Entry struct {
	Op       Op
	Line     int
	Function string
	Locals   []Binding
	Name     string
	Value    Value
	Pointer  Pointer
	Pos      int
	Key      string
	Object   *ObjectLiteral
	Elements []Value
	Batch    []Entry
}

type wireEntry struct {
	Op   string          `json:"op"`
	Info json.RawMessage `json:"info"`
}

type wireFrame struct {
	Function string          `json:"function"`
	Line     int             `json:"line"`
	Locals   json.RawMessage `json:"locals"`
}

type wireRecord struct {
	Type    string          `json:"type"`
	Members json.RawMessage `json:"members"`
}

// UnmarshalJSON decodes an {"op": ..., "info": ...} entry
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	op, err := ParseOp(w.Op)
	if err != nil {
		return err
	}
	decoded := Entry{Op: op}
	if err := decoded.decodeInfo(w.Info); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	*e = decoded
	return nil
}

func (e *Entry) decodeInfo(info json.RawMessage) error {
	switch e.Op {
	case OpLine:
		return json.Unmarshal(info, &e.Line)

	case OpPushFrame:
		var f wireFrame
		if err := json.Unmarshal(info, &f); err != nil {
			return err
		}
		locals, err := decodeBindings(f.Locals)
		if err != nil {
			return fmt.Errorf("locals: %w", err)
		}
		e.Function, e.Line, e.Locals = f.Function, f.Line, locals
		return nil

	case OpNewLocal, OpUpdateLocal, OpNewGlobal, OpUpdateGlobal:
		parts, err := splitTuple(info, 2)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(parts[0], &e.Name); err != nil {
			return fmt.Errorf("name: %w", err)
		}
		return json.Unmarshal(parts[1], &e.Value)

	case OpReturn:
		return json.Unmarshal(info, &e.Value)

	case OpPopFrame:
		return nil

	case OpNew:
		parts, err := splitTuple(info, 2)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(parts[0], &e.Pointer); err != nil {
			return fmt.Errorf("pointer: %w", err)
		}
		obj, err := decodeObjectLiteral(parts[1])
		if err != nil {
			return err
		}
		e.Object = obj
		return nil

	case OpModifyPos:
		parts, err := splitTuple(info, 3)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(parts[0], &e.Pointer); err != nil {
			return fmt.Errorf("pointer: %w", err)
		}
		if err := json.Unmarshal(parts[1], &e.Pos); err != nil {
			return fmt.Errorf("position: %w", err)
		}
		return json.Unmarshal(parts[2], &e.Value)

	case OpModifyKey, OpAddKey:
		parts, err := splitTuple(info, 3)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(parts[0], &e.Pointer); err != nil {
			return fmt.Errorf("pointer: %w", err)
		}
		if e.Key, err = decodeKey(parts[1]); err != nil {
			return fmt.Errorf("key: %w", err)
		}
		return json.Unmarshal(parts[2], &e.Value)

	case OpRemoveKey:
		parts, err := splitTuple(info, 2)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(parts[0], &e.Pointer); err != nil {
			return fmt.Errorf("pointer: %w", err)
		}
		if e.Key, err = decodeKey(parts[1]); err != nil {
			return fmt.Errorf("key: %w", err)
		}
		return nil

	case OpReset:
		parts, err := splitTuple(info, 2)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(parts[0], &e.Pointer); err != nil {
			return fmt.Errorf("pointer: %w", err)
		}
		e.Elements = []Value{}
		return json.Unmarshal(parts[1], &e.Elements)

	case OpDelete:
		return json.Unmarshal(info, &e.Pointer)

	case OpBatch:
		e.Batch = []Entry{}
		return json.Unmarshal(info, &e.Batch)
	}
	return fmt.Errorf("%w %d", ErrUnknownOp, e.Op)
}

// MarshalJSON encodes the entry in the tracer's wire format
func (e Entry) MarshalJSON() ([]byte, error) {
	var info any
	switch e.Op {
	case OpLine:
		info = e.Line
	case OpPushFrame:
		locals, err := encodeBindings(e.Locals)
		if err != nil {
			return nil, err
		}
		info = wireFrame{Function: e.Function, Line: e.Line, Locals: locals}
	case OpNewLocal, OpUpdateLocal, OpNewGlobal, OpUpdateGlobal:
		info = []any{e.Name, e.Value}
	case OpReturn:
		info = e.Value
	case OpPopFrame:
		info = nil
	case OpNew:
		if e.Object == nil {
			return nil, errors.New("new: missing object")
		}
		if e.Object.IsList {
			info = []any{e.Pointer, nonNilValues(e.Object.Elements)}
		} else {
			members, err := encodeBindings(e.Object.Members)
			if err != nil {
				return nil, err
			}
			info = []any{e.Pointer, wireRecord{Type: e.Object.Type, Members: members}}
		}
	case OpModifyPos:
		info = []any{e.Pointer, e.Pos, e.Value}
	case OpModifyKey, OpAddKey:
		info = []any{e.Pointer, e.Key, e.Value}
	case OpRemoveKey:
		info = []any{e.Pointer, e.Key}
	case OpReset:
		info = []any{e.Pointer, nonNilValues(e.Elements)}
	case OpDelete:
		info = e.Pointer
	case OpBatch:
		batch := e.Batch
		if batch == nil {
			batch = []Entry{}
		}
		info = batch
	default:
		return nil, fmt.Errorf("%w %d", ErrUnknownOp, e.Op)
	}

	raw, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEntry{Op: e.Op.String(), Info: raw})
}

// decodeKey accepts any JSON scalar as a record key. Non-string keys take
// their literal text, matching how the tracer names the members of a new
// record (2 becomes "2", true becomes "true").
func decodeKey(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", errors.New("missing key")
	}
	switch trimmed[0] {
	case '"':
		var key string
		if err := json.Unmarshal(trimmed, &key); err != nil {
			return "", err
		}
		return key, nil
	case '[', '{':
		return "", fmt.Errorf("expected scalar, got %s", trimmed)
	}
	var scalar any
	if err := json.Unmarshal(trimmed, &scalar); err != nil {
		return "", err
	}
	return string(trimmed), nil
}

func nonNilValues(vs []Value) []Value {
	if vs == nil {
		return []Value{}
	}
	return vs
}

func splitTuple(info json.RawMessage, n int) ([]json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(info, &parts); err != nil {
		return nil, err
	}
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d elements, got %d", n, len(parts))
	}
	return parts, nil
}

func decodeObjectLiteral(raw json.RawMessage) (*ObjectLiteral, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		elems := []Value{}
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, fmt.Errorf("list body: %w", err)
		}
		return &ObjectLiteral{Type: "list", IsList: true, Elements: elems}, nil
	}

	var rec wireRecord
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return nil, fmt.Errorf("record body: %w", err)
	}
	members, err := decodeBindings(rec.Members)
	if err != nil {
		return nil, fmt.Errorf("members: %w", err)
	}
	return &ObjectLiteral{Type: rec.Type, Members: members}, nil
}

// decodeBindings decodes a JSON object of wire pairs keeping key order.
func decodeBindings(raw json.RawMessage) ([]Binding, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var out []Binding
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected key, got %v", keyTok)
		}
		var v Value
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, Binding{Name: name, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeBindings(bs []Binding) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, b := range bs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(b.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(b.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
