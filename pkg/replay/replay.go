package replay

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/willibrandon/ChronoTrace/pkg/query"
	"github.com/willibrandon/ChronoTrace/pkg/state"
	"github.com/willibrandon/ChronoTrace/pkg/trace"
)

// Replayer interface defines the navigation and inspection operations a
// presentation layer drives.
type Replayer interface {
	// Step applies the next log entry. It reports false when no entry remains.
	Step() (bool, error)

	// StepBack moves to the previous step
	StepBack() error

	// StepOver runs the call about to be entered to completion
	StepOver() error

	// StepOut runs until the current frame returns
	StepOut() error

	// Seek moves to the given step index, clamped to [-1, Len()-1]
	Seek(idx int) error

	// Continue steps until check matches the entry just applied
	Continue(check func(idx int, e trace.Entry) bool) error

	// Reset returns to before-start
	Reset()

	// Cursor returns the index of the last applied entry, -1 before start
	Cursor() int

	// Line returns the current source line, -1 when unknown
	Line() int

	// Len returns the number of log entries
	Len() int

	// Entry returns the log entry at idx
	Entry(idx int) (trace.Entry, bool)

	HasFinished() bool
	IsAboutToEnterFunction() bool

	Stack() *state.Stack
	Heap() *state.Heap
	Globals() *state.Bindings
	Annotations() []trace.Annotation

	MemberPointerAnnotations(ptr trace.Pointer) []trace.MemberPointer
	ArrayIndexAnnotations(ptr trace.Pointer) []query.ArrayIndex
	TopFrameNamedReferences() map[trace.Pointer][]string
}

// Options configures an Engine
type Options struct {
	// CheckpointInterval is the number of steps between state snapshots used
	// to speed up backward navigation. Zero disables checkpoints.
	CheckpointInterval int

	// CheckpointCacheSize bounds the number of retained snapshots.
	CheckpointCacheSize int

	// Logger receives trace-level events per applied entry. Nil discards them.
	Logger *zerolog.Logger
}

// DefaultOptions returns the default engine options
func DefaultOptions() Options {
	return Options{
		CheckpointInterval:  DefaultCheckpointInterval,
		CheckpointCacheSize: DefaultCheckpointCacheSize,
	}
}

// WithCheckpoints sets the checkpoint interval and cache size
func WithCheckpoints(interval, size int) func(*Options) {
	return func(opts *Options) {
		opts.CheckpointInterval = interval
		opts.CheckpointCacheSize = size
	}
}

// WithLogger sets the engine logger
func WithLogger(l zerolog.Logger) func(*Options) {
	return func(opts *Options) {
		opts.Logger = &l
	}
}

// Engine replays an immutable event log. It owns the stack and heap it
// reconstructs; callers must treat what Stack and Heap return as read-only.
// An Engine is not safe for concurrent use; see Synchronized.
type Engine struct {
	log         []trace.Entry
	annotations []trace.Annotation

	st     *State
	cursor int

	// failure is the contract violation that stopped replay, if any.
	failure error

	checkpoints *checkpointCache
	logger      zerolog.Logger
}

// New creates an engine at before-start over log and annotations
func New(entries []trace.Entry, annotations []trace.Annotation, opts ...func(*Options)) (*Engine, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.CheckpointInterval < 0 || options.CheckpointCacheSize < 0 {
		return nil, fmt.Errorf("checkpoint interval and cache size must not be negative")
	}

	checkpoints, err := newCheckpointCache(options.CheckpointInterval, options.CheckpointCacheSize)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if options.Logger != nil {
		logger = *options.Logger
	}

	return &Engine{
		log:         entries,
		annotations: annotations,
		st:          NewState(),
		cursor:      -1,
		checkpoints: checkpoints,
		logger:      logger.With().Str("component", "replay").Logger(),
	}, nil
}

// NewFromDocument creates an engine over a decoded trace document
func NewFromDocument(doc *trace.Document, opts ...func(*Options)) (*Engine, error) {
	return New(doc.Log, doc.Annotations, opts...)
}

// Step applies the entry after the cursor and recomputes named references.
// Past the last entry it is a no-op returning false.
func (e *Engine) Step() (bool, error) {
	if e.failure != nil {
		return false, fmt.Errorf("%w: %w", ErrEngineFailed, e.failure)
	}
	next := e.cursor + 1
	if next >= len(e.log) {
		return false, nil
	}

	entry := e.log[next]
	if err := Apply(e.st, entry, next); err != nil {
		failure := fmt.Errorf("step %d (%s): %w", next, entry.Op, err)
		e.logger.Error().Err(err).Int("step", next).Str("op", entry.Op.String()).Msg("replay stopped")
		e.rollback()
		e.failure = failure
		return false, failure
	}
	e.cursor = next
	e.st.Heap.UpdateNamedReferences(e.st.Stack)

	e.logger.Trace().
		Int("step", next).
		Str("op", entry.Op.String()).
		Int("depth", e.st.Stack.Depth()).
		Int("objects", e.st.Heap.Len()).
		Msg("applied")

	if e.checkpoints.due(next) {
		e.checkpoints.add(next, e.st)
		e.logger.Debug().Int("step", next).Int("retained", e.checkpoints.len()).Msg("checkpoint")
	}
	return true, nil
}

// StepBack moves to cursor-1 by restoring the nearest earlier checkpoint, or
// before-start, and replaying forward. It is a no-op at before-start.
func (e *Engine) StepBack() error {
	if e.cursor < 0 {
		return nil
	}
	return e.Seek(e.cursor - 1)
}

// Seek moves to step idx. Moving backward restores and replays; moving
// forward steps.
func (e *Engine) Seek(idx int) error {
	if idx < -1 {
		idx = -1
	}
	if idx > len(e.log)-1 {
		idx = len(e.log) - 1
	}
	if idx == e.cursor && e.failure == nil {
		return nil
	}
	if idx < e.cursor || e.failure != nil {
		e.restore(idx)
	}
	for e.cursor < idx {
		if _, err := e.Step(); err != nil {
			return err
		}
	}
	return nil
}

// rollback rebuilds the state at the cursor after a partially applied
// entry. Every entry up to the cursor applied cleanly before, so replaying
// them again cannot fail.
func (e *Engine) rollback() {
	cursor := e.cursor
	e.restore(cursor)
	for e.cursor < cursor {
		if _, err := e.Step(); err != nil {
			return
		}
	}
}

// restore rewinds to the latest checkpoint at or before idx, or to
// before-start when there is none.
func (e *Engine) restore(idx int) {
	e.failure = nil
	if cp, ok := e.checkpoints.nearest(idx); ok {
		e.st = cp.State.Clone()
		e.cursor = cp.StepIdx
		e.logger.Debug().Int("target", idx).Int("from", cp.StepIdx).Msg("restored checkpoint")
		return
	}
	e.Reset()
}

// Reset returns to before-start: cursor and line -1, empty stack, heap and
// globals. Checkpoints survive since they derive from the immutable log.
func (e *Engine) Reset() {
	e.st = NewState()
	e.cursor = -1
	e.failure = nil
}

// StepOver runs the call about to be entered until its matching popFrame
// has been applied. It is a no-op unless IsAboutToEnterFunction.
func (e *Engine) StepOver() error {
	if !e.IsAboutToEnterFunction() {
		return nil
	}
	depth := 0
	moved := false
	for e.cursor < len(e.log)-1 {
		op := e.log[e.cursor+1].Op
		ok, err := e.Step()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		switch op {
		case trace.OpPushFrame:
			depth++
		case trace.OpPopFrame:
			depth--
			moved = true
		}
		if depth == 0 && moved {
			break
		}
	}
	return nil
}

// StepOut runs until the current top frame has been popped. It is a no-op
// with an empty stack.
func (e *Engine) StepOut() error {
	depth := e.st.Stack.Depth()
	if depth == 0 {
		return nil
	}
	for e.st.Stack.Depth() >= depth {
		ok, err := e.Step()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	return nil
}

// Continue steps until check matches the entry just applied or the log
// ends. A nil check runs to the end.
func (e *Engine) Continue(check func(idx int, entry trace.Entry) bool) error {
	for {
		ok, err := e.Step()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if check != nil && check(e.cursor, e.log[e.cursor]) {
			return nil
		}
	}
}

// Cursor returns the index of the last applied entry, -1 before start
func (e *Engine) Cursor() int {
	return e.cursor
}

// Line returns the current source line, -1 when unknown
func (e *Engine) Line() int {
	return e.st.Line
}

// Len returns the number of log entries
func (e *Engine) Len() int {
	return len(e.log)
}

// Entry returns the log entry at idx
func (e *Engine) Entry(idx int) (trace.Entry, bool) {
	if idx < 0 || idx >= len(e.log) {
		return trace.Entry{}, false
	}
	return e.log[idx], true
}

// Failure returns the contract violation that stopped replay, if any
func (e *Engine) Failure() error {
	return e.failure
}

// HasFinished reports whether no entry remains to be applied
func (e *Engine) HasFinished() bool {
	return e.cursor >= len(e.log)-1
}

// IsAboutToEnterFunction reports whether the next entry pushes a frame.
// It is false at and before the first step.
func (e *Engine) IsAboutToEnterFunction() bool {
	if e.cursor <= 0 {
		return false
	}
	next := e.cursor + 1
	return next < len(e.log) && e.log[next].Op == trace.OpPushFrame
}

// Stack returns the live call stack
func (e *Engine) Stack() *state.Stack {
	return e.st.Stack
}

// Heap returns the live heap
func (e *Engine) Heap() *state.Heap {
	return e.st.Heap
}

// Globals returns the global bindings
func (e *Engine) Globals() *state.Bindings {
	return e.st.Globals
}

// Annotations returns the static annotation metadata
func (e *Engine) Annotations() []trace.Annotation {
	return e.annotations
}

// Snapshot returns a deep copy of the current state
func (e *Engine) Snapshot() *State {
	return e.st.Clone()
}

// MemberPointerAnnotations returns the member-pointer annotations matching
// the type of the object at ptr
func (e *Engine) MemberPointerAnnotations(ptr trace.Pointer) []trace.MemberPointer {
	return query.MemberPointers(e.st.Heap, e.annotations, ptr)
}

// ArrayIndexAnnotations returns the index labels that apply to ptr in the
// top frame
func (e *Engine) ArrayIndexAnnotations(ptr trace.Pointer) []query.ArrayIndex {
	return query.ArrayIndices(e.st.Stack, e.annotations, ptr)
}

// TopFrameNamedReferences maps pointers held by the top frame to their names
func (e *Engine) TopFrameNamedReferences() map[trace.Pointer][]string {
	return query.NamedReferences(e.st.Stack)
}
