package replay

import (
	"sync"

	"github.com/willibrandon/ChronoTrace/pkg/trace"
)

// Synchronized serializes navigation against reads so that a player
// goroutine can step while another goroutine renders. Stack and heap
// mutation is not atomic, so reads go through View.
type Synchronized struct {
	mu     sync.Mutex
	engine *Engine
}

// NewSynchronized wraps engine
func NewSynchronized(engine *Engine) *Synchronized {
	return &Synchronized{engine: engine}
}

// View runs fn with exclusive access to the engine. fn must not retain
// the engine or anything it returns beyond the call.
func (s *Synchronized) View(fn func(e *Engine)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.engine)
}

// Update runs fn with exclusive access and returns its error
func (s *Synchronized) Update(fn func(e *Engine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.engine)
}

// Step applies the next entry under the lock
func (s *Synchronized) Step() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Step()
}

// StepBack moves one entry back under the lock
func (s *Synchronized) StepBack() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.StepBack()
}

// StepOver steps past the call about to be entered
func (s *Synchronized) StepOver() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.StepOver()
}

// StepOut runs until the current frame returns
func (s *Synchronized) StepOut() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.StepOut()
}

// Seek moves the cursor to idx
func (s *Synchronized) Seek(idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Seek(idx)
}

// Reset returns to before-start
func (s *Synchronized) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.Reset()
}

// Cursor returns the index of the last applied entry
func (s *Synchronized) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Cursor()
}

// HasFinished reports whether every entry has been applied
func (s *Synchronized) HasFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.HasFinished()
}

// IsAboutToEnterFunction reports whether the next entry pushes a frame
func (s *Synchronized) IsAboutToEnterFunction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.IsAboutToEnterFunction()
}

// Next returns the entry that the next Step would apply
func (s *Synchronized) Next() (trace.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Entry(s.engine.Cursor() + 1)
}
