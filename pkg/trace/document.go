package trace

import (
	"encoding/json"
	"fmt"
	"io"
)

// RunError describes why the tracer stopped early. A document may carry
// both an error and a partial log (timeouts, runtime exceptions).
type RunError struct {
	Type string `json:"type,omitempty"`
	Line int    `json:"line,omitempty"`
	Msg  string `json:"msg"`
}

func (e *RunError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s at line %d: %s", e.Type, e.Line, e.Msg)
	}
	if e.Type != "" {
		return e.Type + ": " + e.Msg
	}
	return e.Msg
}

// Document is the tracer's output: the event log plus annotation metadata.
type Document struct {
	Error       *RunError
	Log         []Entry
	Annotations []Annotation
}

type wireDocument struct {
	Error *RunError       `json:"error"`
	Log   []Entry         `json:"log"`
	Infer json.RawMessage `json:"infer"`
}

// UnmarshalJSON decodes the {"error", "log", "infer"} envelope
func (d *Document) UnmarshalJSON(data []byte) error {
	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	annotations, err := DecodeAnnotations(w.Infer)
	if err != nil {
		return err
	}
	*d = Document{Error: w.Error, Log: w.Log, Annotations: annotations}
	return nil
}

// MarshalJSON encodes the document envelope
func (d Document) MarshalJSON() ([]byte, error) {
	log := d.Log
	if log == nil {
		log = []Entry{}
	}
	annotations := d.Annotations
	if annotations == nil {
		annotations = []Annotation{}
	}
	infer, err := json.Marshal(annotations)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireDocument{Error: d.Error, Log: log, Infer: infer})
}

// ReadDocument decodes a single JSON document from r
func ReadDocument(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode trace document: %w", err)
	}
	return &doc, nil
}

// ParseDocument decodes a JSON document held in memory
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode trace document: %w", err)
	}
	return &doc, nil
}
