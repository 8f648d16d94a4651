package debugger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/willibrandon/ChronoTrace/pkg/replay"
	"github.com/willibrandon/ChronoTrace/pkg/trace"
	"github.com/willibrandon/ChronoTrace/pkg/view"
)

const prompt = "(chrono) "

// Options configures the CLI
type Options struct {
	// In and Out default to the process's stdin and stdout.
	In  io.Reader
	Out io.Writer

	// HistoryFile persists line-editing history between sessions.
	HistoryFile string

	// Color enables ANSI highlighting when Out is a terminal.
	Color bool

	// Width truncates heap and stack lines. Zero uses the terminal width.
	Width int

	PlayInterval  time.Duration
	SkipFunctions []string
}

// CLI represents the command-line interface for the debugger
type CLI struct {
	engine    *replay.Synchronized
	bpManager *BreakpointManager
	opts      Options
	out       io.Writer
	color     bool
	running   bool
	logger    zerolog.Logger
}

// NewCLI creates a new CLI instance
func NewCLI(engine *replay.Engine, opts Options) *CLI {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	color := false
	width := opts.Width
	if f, ok := opts.Out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		color = opts.Color
		if width == 0 {
			width = view.TerminalWidth(f)
		}
	}
	opts.Width = width

	return &CLI{
		engine:    replay.NewSynchronized(engine),
		bpManager: NewBreakpointManager(),
		opts:      opts,
		out:       opts.Out,
		color:     color,
		running:   true,
		logger:    log.With().Str("component", "cli").Logger(),
	}
}

// Breakpoints returns the breakpoint manager
func (c *CLI) Breakpoints() *BreakpointManager {
	return c.bpManager
}

// Start begins the command loop. Line editing and history are used when
// input is a terminal.
func (c *CLI) Start() error {
	c.printf("ChronoTrace Debugger CLI\n")
	c.engine.View(func(e *replay.Engine) {
		c.printf("Loaded trace with %d entries\n", e.Len())
	})
	c.printHelp()

	if f, ok := c.opts.In.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return c.lineLoop()
	}

	scanner := bufio.NewScanner(c.opts.In)
	for c.running && scanner.Scan() {
		c.Execute(scanner.Text())
	}
	return scanner.Err()
}

func (c *CLI) lineLoop() error {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if c.opts.HistoryFile != "" {
		if f, err := os.Open(c.opts.HistoryFile); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
		defer func() {
			if f, err := os.Create(c.opts.HistoryFile); err == nil {
				_, _ = ln.WriteHistory(f)
				_ = f.Close()
			}
		}()
	}

	for c.running {
		input, err := ln.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if errors.Is(err, io.EOF) {
			c.printf("\n")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read command: %w", err)
		}
		if strings.TrimSpace(input) != "" {
			ln.AppendHistory(input)
		}
		c.Execute(input)
	}
	return nil
}

func (c *CLI) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *CLI) highlight(s string) string {
	if !c.color {
		return s
	}
	return "\033[1;33m" + s + "\033[0m"
}

func (c *CLI) renderOptions() view.RenderOptions {
	return view.RenderOptions{Width: c.opts.Width, Color: c.color}
}

// printHelp displays available commands
func (c *CLI) printHelp() {
	c.printf("\nAvailable commands:\n")
	c.printf("  step (s) [n]        - Apply the next entry (n times)\n")
	c.printf("  back (b)            - Step backward one entry\n")
	c.printf("  next (n)            - Step over the call about to be entered\n")
	c.printf("  out (o)             - Run until the current function returns\n")
	c.printf("  continue (c)        - Run until a breakpoint or the end\n")
	c.printf("  goto (g) <step>     - Jump to a step (-1 is before start)\n")
	c.printf("  reset (r)           - Return to before start\n")
	c.printf("  play (pl)           - Animate until a breakpoint, the end or Ctrl-C\n")
	c.printf("\nInspection:\n")
	c.printf("  info (i)            - Show the current position\n")
	c.printf("  stack (st)          - Show the call stack\n")
	c.printf("  heap (hp)           - Show heap objects\n")
	c.printf("  print (p) <name>    - Print a variable of the current frame or a global\n")
	c.printf("\nBreakpoints:\n")
	c.printf("  breakpoint (bp) <line:n|func:name|op:tag> - Set a breakpoint\n")
	c.printf("  watch (w) <name>    - Stop when a variable is written\n")
	c.printf("  bp list | remove <id> | enable <id> | disable <id>\n")
	c.printf("\nGeneral commands:\n")
	c.printf("  help (h)            - Show this help message\n")
	c.printf("  quit (q)            - Exit the debugger\n")
}

// Execute runs one command line. It reports false once the user quits.
func (c *CLI) Execute(input string) bool {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return c.running
	}

	cmd := parts[0]
	args := parts[1:]
	c.logger.Debug().Str("command", cmd).Strs("args", args).Msg("execute")

	switch cmd {
	case "h", "help":
		c.printHelp()
	case "s", "step":
		c.handleStep(args)
	case "b", "back":
		c.navigate("Stepped back", (*replay.Engine).StepBack)
	case "n", "next":
		c.handleNext()
	case "o", "out":
		c.navigate("Stepped out", (*replay.Engine).StepOut)
	case "c", "continue":
		c.handleContinue()
	case "g", "goto":
		c.handleGoto(args)
	case "r", "reset":
		c.engine.Reset()
		c.printf("Reset to before start\n")
	case "pl", "play":
		_, _ = c.Play()
	case "i", "info":
		c.handleInfo()
	case "st", "stack":
		c.handleStack()
	case "hp", "heap":
		c.handleHeap()
	case "p", "print":
		c.handlePrint(args)
	case "bp", "breakpoint":
		c.handleBreakpointCommand(args)
	case "w", "watch":
		c.handleWatch(args)
	case "q", "quit", "exit":
		c.running = false
	default:
		c.printf("Unknown command: %s\n", cmd)
		c.printHelp()
	}
	return c.running
}

// formatEntry returns a one-line description of a log entry
func formatEntry(e trace.Entry) string {
	switch e.Op {
	case trace.OpLine:
		return fmt.Sprintf("line %d", e.Line)
	case trace.OpPushFrame:
		return fmt.Sprintf("call %s (line %d)", e.Function, e.Line)
	case trace.OpPopFrame:
		return "return from frame"
	case trace.OpNewLocal, trace.OpUpdateLocal, trace.OpNewGlobal, trace.OpUpdateGlobal:
		return fmt.Sprintf("%s %s = %s", e.Op, e.Name, e.Value)
	case trace.OpReturn:
		return fmt.Sprintf("return %s", e.Value)
	case trace.OpNew:
		if e.Object != nil && !e.Object.IsList {
			return fmt.Sprintf("new #%d %s", e.Pointer, e.Object.Type)
		}
		return fmt.Sprintf("new #%d list", e.Pointer)
	case trace.OpModifyPos:
		return fmt.Sprintf("#%d[%d] = %s", e.Pointer, e.Pos, e.Value)
	case trace.OpModifyKey, trace.OpAddKey:
		return fmt.Sprintf("#%d.%s = %s", e.Pointer, e.Key, e.Value)
	case trace.OpRemoveKey:
		return fmt.Sprintf("del #%d.%s", e.Pointer, e.Key)
	case trace.OpReset:
		return fmt.Sprintf("reset #%d (%d elements)", e.Pointer, len(e.Elements))
	case trace.OpDelete:
		return fmt.Sprintf("delete #%d", e.Pointer)
	case trace.OpBatch:
		return fmt.Sprintf("batch of %d", len(e.Batch))
	default:
		return e.Op.String()
	}
}

// printPosition reports the step the engine is at. The caller holds the
// engine.
func (c *CLI) printPosition(e *replay.Engine) {
	if e.Cursor() < 0 {
		c.printf("[before start] %d entries\n", e.Len())
		return
	}
	entry, _ := e.Entry(e.Cursor())
	c.printf("[step %d/%d] line %d: %s\n", e.Cursor(), e.Len()-1, e.Line(), formatEntry(entry))
	if e.HasFinished() {
		c.printf("Reached end of trace\n")
	}
}

func (c *CLI) navigate(what string, op func(*replay.Engine) error) {
	err := c.engine.Update(func(e *replay.Engine) error {
		before := e.Cursor()
		if err := op(e); err != nil {
			return err
		}
		if e.Cursor() == before {
			c.printf("Nothing to do at this position\n")
			return nil
		}
		c.printf("%s: ", what)
		c.printPosition(e)
		return nil
	})
	if err != nil {
		c.printf("Error: %v\n", err)
	}
}

// handleStep applies the next entry, optionally several times
func (c *CLI) handleStep(args []string) {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			c.printf("Invalid step count: %s\n", args[0])
			return
		}
		n = v
	}

	err := c.engine.Update(func(e *replay.Engine) error {
		for i := 0; i < n; i++ {
			ok, err := e.Step()
			if err != nil {
				return err
			}
			if !ok {
				c.printf("Already at end of trace\n")
				return nil
			}
		}
		c.printPosition(e)
		return nil
	})
	if err != nil {
		c.printf("Error stepping forward: %v\n", err)
	}
}

func (c *CLI) handleNext() {
	if !c.engine.IsAboutToEnterFunction() {
		c.printf("Not about to enter a function; use step\n")
		return
	}
	c.navigate("Stepped over", (*replay.Engine).StepOver)
}

// handleContinue runs until a breakpoint or the end of the trace
func (c *CLI) handleContinue() {
	c.printf("Continuing...\n")
	err := c.engine.Update(func(e *replay.Engine) error {
		var hit *Breakpoint
		err := e.Continue(func(_ int, entry trace.Entry) bool {
			if bp, ok := c.bpManager.CheckBreakpoint(entry); ok {
				hit = &bp
				return true
			}
			return false
		})
		if err != nil {
			return err
		}
		if hit != nil {
			c.printf("%s\n", c.highlight(fmt.Sprintf("Breakpoint %d hit: %s", hit.ID, hit)))
		}
		c.printPosition(e)
		return nil
	})
	if err != nil {
		c.printf("Error continuing: %v\n", err)
	}
}

func (c *CLI) handleGoto(args []string) {
	if len(args) < 1 {
		c.printf("Usage: goto <step>\n")
		return
	}
	step, err := strconv.Atoi(args[0])
	if err != nil {
		c.printf("Invalid step: %v\n", err)
		return
	}
	err = c.engine.Update(func(e *replay.Engine) error {
		if err := e.Seek(step); err != nil {
			return err
		}
		c.printPosition(e)
		return nil
	})
	if err != nil {
		c.printf("Error seeking: %v\n", err)
	}
}

// Play animates until a breakpoint, the end, a replay failure or Ctrl-C,
// printing each step. Ctrl-C interrupts playback only. The returned error
// is the failure that stopped replay, if any.
func (c *CLI) Play() (Stop, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	player := NewPlayer(c.engine, c.bpManager, PlayerOptions{
		Interval:      c.opts.PlayInterval,
		SkipFunctions: c.opts.SkipFunctions,
		OnStep:        c.printPosition,
	})
	result, err := player.Play(ctx)
	if err != nil {
		c.printf("Error during playback: %v\n", err)
		return result, err
	}
	switch result.Reason {
	case StopBreakpoint:
		c.printf("%s\n", c.highlight(fmt.Sprintf("Breakpoint %d hit: %s", result.Breakpoint.ID, result.Breakpoint)))
	case StopCancelled:
		c.printf("Playback interrupted at step %d\n", result.Step)
	}
	return result, nil
}

// handleInfo shows the current position and engine status
func (c *CLI) handleInfo() {
	c.engine.View(func(e *replay.Engine) {
		c.printPosition(e)
		c.printf("  Stack depth: %d\n", e.Stack().Depth())
		c.printf("  Heap objects: %d\n", e.Heap().Len())
		if next, ok := e.Entry(e.Cursor() + 1); ok {
			c.printf("  Next: %s\n", formatEntry(next))
		}
		if e.IsAboutToEnterFunction() {
			c.printf("  About to enter a function (next steps over it)\n")
		}
		if err := e.Failure(); err != nil {
			c.printf("  Replay stopped: %v\n", err)
		}
	})
}

func (c *CLI) handleStack() {
	var err error
	c.engine.View(func(e *replay.Engine) {
		err = view.RenderStack(c.out, e.Stack(), e.Globals(), e.Cursor(), c.renderOptions())
	})
	if err != nil {
		c.printf("Error rendering stack: %v\n", err)
	}
}

func (c *CLI) handleHeap() {
	var err error
	c.engine.View(func(e *replay.Engine) {
		err = view.Build(e).Render(c.out, c.renderOptions())
	})
	if err != nil {
		c.printf("Error rendering heap: %v\n", err)
	}
}

// handlePrint prints the value of a variable, and the object it points to
func (c *CLI) handlePrint(args []string) {
	if len(args) < 1 {
		c.printf("Usage: print <name>\n")
		return
	}
	name := args[0]

	c.engine.View(func(e *replay.Engine) {
		var (
			v  trace.Value
			ok bool
		)
		if top, live := e.Stack().Top(); live {
			v, ok = top.Lookup(name)
		}
		if !ok {
			v, ok = e.Globals().Get(name)
		}
		if !ok {
			c.printf("No variable named '%s' in the current frame\n", name)
			return
		}
		c.printf("%s = %s\n", name, v)

		p, isPtr := v.AsPointer()
		if !isPtr {
			return
		}
		for _, o := range view.Build(e).Objects {
			if o.Ptr == p {
				c.printf("  %s\n", o.Title())
				return
			}
		}
	})
}

// handleBreakpointCommand handles all breakpoint-related commands
func (c *CLI) handleBreakpointCommand(args []string) {
	if len(args) == 0 {
		c.printf("Usage: breakpoint <line:n|func:name|op:tag> or <command> [args]\n")
		c.printf("Commands: list, remove, enable, disable\n")
		return
	}

	command := args[0]
	if command == "list" {
		c.handleListBreakpoints()
		return
	}

	var toggle func(int) error
	var done string
	switch command {
	case "remove":
		toggle, done = c.bpManager.RemoveBreakpoint, "Removed"
	case "enable":
		toggle, done = c.bpManager.EnableBreakpoint, "Enabled"
	case "disable":
		toggle, done = c.bpManager.DisableBreakpoint, "Disabled"
	default:
		bp, err := c.bpManager.AddBreakpoint(command)
		if err != nil {
			c.printf("Error setting breakpoint: %v\n", err)
			return
		}
		c.printf("Breakpoint %d set at %s\n", bp.ID, bp)
		return
	}

	if len(args) < 2 {
		c.printf("Usage: bp %s <id>\n", command)
		return
	}
	id, err := strconv.Atoi(args[1])
	if err != nil {
		c.printf("Invalid breakpoint ID: %v\n", err)
		return
	}
	if err := toggle(id); err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	c.printf("%s breakpoint %d\n", done, id)
}

func (c *CLI) handleListBreakpoints() {
	breakpoints := c.bpManager.GetBreakpoints()
	if len(breakpoints) == 0 {
		c.printf("No breakpoints\n")
		return
	}
	c.printf("\nBreakpoints:\n")
	for _, bp := range breakpoints {
		status := "enabled"
		if !bp.Enabled {
			status = "disabled"
		}
		c.printf("%d: %s [%s] hits=%d\n", bp.ID, bp, status, bp.Hits)
	}
}

// handleWatch handles the watch command
func (c *CLI) handleWatch(args []string) {
	if len(args) < 1 {
		c.printf("Usage: watch <name>\n")
		return
	}
	bp, err := c.bpManager.AddWatchpoint(args[0])
	if err != nil {
		c.printf("Error adding watchpoint: %v\n", err)
		return
	}
	c.printf("Watchpoint %d set on '%s'\n", bp.ID, bp.Variable)
}
