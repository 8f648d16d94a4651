package debugger

import (
	"testing"

	"github.com/willibrandon/ChronoTrace/pkg/trace"
)

func TestNewBreakpointManager(t *testing.T) {
	bm := NewBreakpointManager()
	if bm == nil {
		t.Fatal("NewBreakpointManager returned nil")
	}

	if bm.nextID != 1 {
		t.Errorf("Expected nextID to be 1, got %d", bm.nextID)
	}

	if len(bm.breakpoints) != 0 {
		t.Errorf("Expected 0 breakpoints, got %d", len(bm.breakpoints))
	}
}

func TestAddBreakpoint(t *testing.T) {
	bm := NewBreakpointManager()

	testCases := []struct {
		name     string
		location string
		wantType BreakpointType
	}{
		{
			name:     "Line breakpoint",
			location: "line:42",
			wantType: LineBreakpoint,
		},
		{
			name:     "Bare line number",
			location: "7",
			wantType: LineBreakpoint,
		},
		{
			name:     "Function breakpoint",
			location: "func:main",
			wantType: FunctionBreakpoint,
		},
		{
			name:     "Op breakpoint",
			location: "op:modifyPos",
			wantType: OpBreakpoint,
		},
		{
			name:     "Watchpoint",
			location: "watch:total",
			wantType: Watchpoint,
		},
	}

	for i, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bp, err := bm.AddBreakpoint(tc.location)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if bp.Type != tc.wantType {
				t.Errorf("Expected type %v, got %v", tc.wantType, bp.Type)
			}

			if bp.ID != i+1 {
				t.Errorf("Expected ID %d, got %d", i+1, bp.ID)
			}

			if !bp.Enabled {
				t.Error("Breakpoint should be enabled by default")
			}
		})
	}

	// Check that all breakpoints are stored
	if len(bm.breakpoints) != len(testCases) {
		t.Errorf("Expected %d breakpoints, got %d", len(testCases), len(bm.breakpoints))
	}
}

func TestAddBreakpointInvalid(t *testing.T) {
	bm := NewBreakpointManager()

	for _, location := range []string{"invalid", "line:x", "line:0", "-3", "func:", "op:teleport", "watch:"} {
		if _, err := bm.AddBreakpoint(location); err == nil {
			t.Errorf("Expected error for %q", location)
		}
	}

	if len(bm.GetBreakpoints()) != 0 {
		t.Error("Invalid breakpoints should not be stored")
	}
	if bm.nextID != 1 {
		t.Errorf("Invalid breakpoints should not consume IDs, nextID is %d", bm.nextID)
	}
}

func TestRemoveBreakpoint(t *testing.T) {
	bm := NewBreakpointManager()

	// Add breakpoints
	bp1, _ := bm.AddBreakpoint("line:10")
	bp2, _ := bm.AddBreakpoint("func:main")

	// Remove the first breakpoint
	err := bm.RemoveBreakpoint(bp1.ID)
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	// Check remaining breakpoints
	breakpoints := bm.GetBreakpoints()
	if len(breakpoints) != 1 {
		t.Fatalf("Expected 1 breakpoint, got %d", len(breakpoints))
	}

	if breakpoints[0].ID != bp2.ID {
		t.Errorf("Expected remaining breakpoint ID %d, got %d", bp2.ID, breakpoints[0].ID)
	}

	// Try to remove a non-existent breakpoint
	err = bm.RemoveBreakpoint(999)
	if err == nil {
		t.Error("Expected error when removing non-existent breakpoint, got nil")
	}
}

func TestEnableDisableBreakpoint(t *testing.T) {
	bm := NewBreakpointManager()

	// Add a breakpoint
	bp, _ := bm.AddBreakpoint("line:10")

	// Disable it
	err := bm.DisableBreakpoint(bp.ID)
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	// Check it's disabled
	breakpoints := bm.GetBreakpoints()
	if breakpoints[0].Enabled {
		t.Error("Breakpoint should be disabled")
	}

	// Enable it
	err = bm.EnableBreakpoint(bp.ID)
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	// Check it's enabled
	breakpoints = bm.GetBreakpoints()
	if !breakpoints[0].Enabled {
		t.Error("Breakpoint should be enabled")
	}

	// Try to enable/disable a non-existent breakpoint
	if err := bm.EnableBreakpoint(999); err == nil {
		t.Error("Expected error when enabling non-existent breakpoint, got nil")
	}
	if err := bm.DisableBreakpoint(999); err == nil {
		t.Error("Expected error when disabling non-existent breakpoint, got nil")
	}
}

func TestCheckBreakpoint(t *testing.T) {
	bm := NewBreakpointManager()

	// Add different types of breakpoints
	if _, err := bm.AddBreakpoint("func:testFunc"); err != nil {
		t.Fatalf("Failed to add breakpoint: %v", err)
	}
	if _, err := bm.AddBreakpoint("op:popFrame"); err != nil {
		t.Fatalf("Failed to add breakpoint: %v", err)
	}
	if _, err := bm.AddBreakpoint("line:12"); err != nil {
		t.Fatalf("Failed to add breakpoint: %v", err)
	}
	if _, err := bm.AddWatchpoint("total"); err != nil {
		t.Fatalf("Failed to add watchpoint: %v", err)
	}

	// Disable the first breakpoint
	if err := bm.DisableBreakpoint(1); err != nil {
		t.Fatalf("Failed to disable breakpoint: %v", err)
	}

	testCases := []struct {
		name   string
		entry  trace.Entry
		want   bool
		wantID int
	}{
		{"disabled function", trace.PushFrameEntry("testFunc", 3), false, 0},
		{"op", trace.Entry{Op: trace.OpPopFrame}, true, 2},
		{"line", trace.LineEntry(12), true, 3},
		{"frame entry line", trace.PushFrameEntry("other", 12), true, 3},
		{"other line", trace.LineEntry(13), false, 0},
		{"watched write", trace.Entry{Op: trace.OpUpdateLocal, Name: "total", Value: trace.Number(1)}, true, 4},
		{"unwatched write", trace.Entry{Op: trace.OpUpdateLocal, Name: "i", Value: trace.Number(1)}, false, 0},
		{"batch", trace.Entry{Op: trace.OpBatch, Batch: []trace.Entry{trace.LineEntry(12)}}, true, 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bp, hit := bm.CheckBreakpoint(tc.entry)
			if hit != tc.want {
				t.Fatalf("CheckBreakpoint(%s) = %v, want %v", tc.entry.Op, hit, tc.want)
			}
			if hit && bp.ID != tc.wantID {
				t.Errorf("Expected breakpoint %d, got %d", tc.wantID, bp.ID)
			}
		})
	}

	for _, bp := range bm.GetBreakpoints() {
		if bp.ID == 3 && bp.Hits != 3 {
			t.Errorf("Expected 3 hits on line breakpoint, got %d", bp.Hits)
		}
	}
}

func TestGetWatchpoints(t *testing.T) {
	bm := NewBreakpointManager()

	if _, err := bm.AddBreakpoint("line:10"); err != nil {
		t.Fatalf("Failed to add breakpoint: %v", err)
	}
	if _, err := bm.AddWatchpoint("x"); err != nil {
		t.Fatalf("Failed to add watchpoint: %v", err)
	}
	if _, err := bm.AddWatchpoint("y"); err != nil {
		t.Fatalf("Failed to add watchpoint: %v", err)
	}

	watchpoints := bm.GetWatchpoints()
	if len(watchpoints) != 2 {
		t.Errorf("Expected 2 watchpoints, got %d", len(watchpoints))
	}
	if watchpoints[0].String() != "watch x" {
		t.Errorf("Unexpected description %q", watchpoints[0].String())
	}
}
