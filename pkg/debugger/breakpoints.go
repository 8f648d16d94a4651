package debugger

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/willibrandon/ChronoTrace/pkg/trace"
)

// BreakpointType defines the type of breakpoint
type BreakpointType int

const (
	// LineBreakpoint breaks when a source line is reached
	LineBreakpoint BreakpointType = iota
	// FunctionBreakpoint breaks at a function entry
	FunctionBreakpoint
	// OpBreakpoint breaks at a specific log operation
	OpBreakpoint
	// Watchpoint breaks when a variable is written
	Watchpoint
)

// String returns the string representation of the BreakpointType
func (t BreakpointType) String() string {
	switch t {
	case LineBreakpoint:
		return "line"
	case FunctionBreakpoint:
		return "function"
	case OpBreakpoint:
		return "op"
	case Watchpoint:
		return "watch"
	default:
		return "unknown"
	}
}

// Breakpoint represents a location to stop at during replay
type Breakpoint struct {
	ID       int
	Type     BreakpointType
	Line     int      // For LineBreakpoint
	Function string   // For FunctionBreakpoint
	Op       trace.Op // For OpBreakpoint
	Variable string   // For Watchpoint
	Enabled  bool
	Hits     int
}

// String describes where the breakpoint stops
func (bp Breakpoint) String() string {
	switch bp.Type {
	case LineBreakpoint:
		return fmt.Sprintf("line %d", bp.Line)
	case FunctionBreakpoint:
		return fmt.Sprintf("func %s", bp.Function)
	case Watchpoint:
		return fmt.Sprintf("watch %s", bp.Variable)
	default:
		return fmt.Sprintf("op %s", bp.Op)
	}
}

// matches reports whether applying e triggers the breakpoint
func (bp *Breakpoint) matches(e trace.Entry) bool {
	switch bp.Type {
	case LineBreakpoint:
		if (e.Op == trace.OpLine || e.Op == trace.OpPushFrame) && e.Line == bp.Line {
			return true
		}
	case FunctionBreakpoint:
		if e.Op == trace.OpPushFrame && e.Function == bp.Function {
			return true
		}
	case OpBreakpoint:
		if e.Op == bp.Op {
			return true
		}
	case Watchpoint:
		switch e.Op {
		case trace.OpNewLocal, trace.OpUpdateLocal, trace.OpNewGlobal, trace.OpUpdateGlobal:
			if e.Name == bp.Variable {
				return true
			}
		}
	}
	for _, nested := range e.Batch {
		if bp.matches(nested) {
			return true
		}
	}
	return false
}

// BreakpointManager manages breakpoints for the debugger. It is safe for
// concurrent use by the CLI and a running Player.
type BreakpointManager struct {
	mu          sync.RWMutex
	breakpoints []*Breakpoint
	nextID      int
}

// NewBreakpointManager creates a new breakpoint manager
func NewBreakpointManager() *BreakpointManager {
	return &BreakpointManager{
		breakpoints: make([]*Breakpoint, 0),
		nextID:      1,
	}
}

// ParseLocation parses "line:<n>", a bare line number, "func:<name>",
// "op:<tag>" or "watch:<name>" into an unregistered breakpoint
func ParseLocation(location string) (*Breakpoint, error) {
	bp := &Breakpoint{Enabled: true}

	switch {
	case strings.HasPrefix(location, "func:"):
		bp.Type = FunctionBreakpoint
		bp.Function = strings.TrimPrefix(location, "func:")
		if bp.Function == "" {
			return nil, fmt.Errorf("missing function name")
		}
	case strings.HasPrefix(location, "watch:"):
		bp.Type = Watchpoint
		bp.Variable = strings.TrimPrefix(location, "watch:")
		if bp.Variable == "" {
			return nil, fmt.Errorf("missing variable name")
		}
	case strings.HasPrefix(location, "op:"):
		op, err := trace.ParseOp(strings.TrimPrefix(location, "op:"))
		if err != nil {
			return nil, err
		}
		bp.Type = OpBreakpoint
		bp.Op = op
	default:
		line, err := strconv.Atoi(strings.TrimPrefix(location, "line:"))
		if err != nil {
			return nil, fmt.Errorf("invalid breakpoint location %q", location)
		}
		if line <= 0 {
			return nil, fmt.Errorf("invalid line number: %d", line)
		}
		bp.Type = LineBreakpoint
		bp.Line = line
	}
	return bp, nil
}

// AddBreakpoint adds a breakpoint at the specified location
func (bm *BreakpointManager) AddBreakpoint(location string) (*Breakpoint, error) {
	bp, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	bp.ID = bm.nextID
	bm.nextID++
	bm.breakpoints = append(bm.breakpoints, bp)
	return bp, nil
}

// AddWatchpoint stops replay whenever variable is written
func (bm *BreakpointManager) AddWatchpoint(variable string) (*Breakpoint, error) {
	return bm.AddBreakpoint("watch:" + variable)
}

// GetWatchpoints returns a snapshot of the watchpoints
func (bm *BreakpointManager) GetWatchpoints() []Breakpoint {
	var out []Breakpoint
	for _, bp := range bm.GetBreakpoints() {
		if bp.Type == Watchpoint {
			out = append(out, bp)
		}
	}
	return out
}

// GetBreakpoints returns a snapshot of all breakpoints
func (bm *BreakpointManager) GetBreakpoints() []Breakpoint {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	out := make([]Breakpoint, len(bm.breakpoints))
	for i, bp := range bm.breakpoints {
		out[i] = *bp
	}
	return out
}

// RemoveBreakpoint removes a breakpoint by ID
func (bm *BreakpointManager) RemoveBreakpoint(id int) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	for i, bp := range bm.breakpoints {
		if bp.ID == id {
			bm.breakpoints = append(bm.breakpoints[:i], bm.breakpoints[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("breakpoint %d not found", id)
}

// EnableBreakpoint enables a breakpoint by ID
func (bm *BreakpointManager) EnableBreakpoint(id int) error {
	return bm.setEnabled(id, true)
}

// DisableBreakpoint disables a breakpoint by ID
func (bm *BreakpointManager) DisableBreakpoint(id int) error {
	return bm.setEnabled(id, false)
}

func (bm *BreakpointManager) setEnabled(id int, enabled bool) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	for _, bp := range bm.breakpoints {
		if bp.ID == id {
			bp.Enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("breakpoint %d not found", id)
}

// CheckBreakpoint returns the first enabled breakpoint triggered by
// applying e and counts the hit
func (bm *BreakpointManager) CheckBreakpoint(e trace.Entry) (Breakpoint, bool) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	for _, bp := range bm.breakpoints {
		if !bp.Enabled {
			continue
		}
		if bp.matches(e) {
			bp.Hits++
			return *bp, true
		}
	}
	return Breakpoint{}, false
}
