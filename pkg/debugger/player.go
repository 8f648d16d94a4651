package debugger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/willibrandon/ChronoTrace/pkg/query"
	"github.com/willibrandon/ChronoTrace/pkg/replay"
	"github.com/willibrandon/ChronoTrace/pkg/trace"
)

// StopReason says why playback stopped
type StopReason int

const (
	// StopFinished means the last entry was applied
	StopFinished StopReason = iota
	// StopBreakpoint means an enabled breakpoint was hit
	StopBreakpoint
	// StopCancelled means the context was cancelled
	StopCancelled
	// StopFailed means replay hit a contract violation
	StopFailed
)

// String returns the string representation of the StopReason
func (r StopReason) String() string {
	switch r {
	case StopFinished:
		return "finished"
	case StopBreakpoint:
		return "breakpoint"
	case StopCancelled:
		return "cancelled"
	case StopFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stop describes where playback stopped
type Stop struct {
	Reason     StopReason
	Step       int
	Breakpoint Breakpoint
}

// PlayerOptions configures a Player
type PlayerOptions struct {
	// Interval is the delay between steps. Zero plays as fast as possible.
	Interval time.Duration

	// SkipFunctions are patterns of functions stepped over instead of
	// animated, in addition to fast-forward annotations.
	SkipFunctions []string

	// OnStep is called with exclusive engine access after every advance.
	OnStep func(e *replay.Engine)
}

// Player animates replay on a timer. The engine stays usable from other
// goroutines while playing since every access goes through Synchronized.
type Player struct {
	engine      *replay.Synchronized
	breakpoints *BreakpointManager
	opts        PlayerOptions
	logger      zerolog.Logger
}

// NewPlayer creates a player over engine. breakpoints may be nil.
func NewPlayer(engine *replay.Synchronized, breakpoints *BreakpointManager, opts PlayerOptions) *Player {
	if breakpoints == nil {
		breakpoints = NewBreakpointManager()
	}
	return &Player{
		engine:      engine,
		breakpoints: breakpoints,
		opts:        opts,
		logger:      log.With().Str("component", "player").Logger(),
	}
}

// Play advances until the trace ends, a breakpoint is hit, replay fails or
// ctx is cancelled.
func (p *Player) Play(ctx context.Context) (Stop, error) {
	var tick <-chan time.Time
	if p.opts.Interval > 0 {
		ticker := time.NewTicker(p.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	p.logger.Debug().Dur("interval", p.opts.Interval).Int("from", p.engine.Cursor()).Msg("play")
	for {
		if err := ctx.Err(); err != nil {
			return Stop{Reason: StopCancelled, Step: p.engine.Cursor()}, nil
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				return Stop{Reason: StopCancelled, Step: p.engine.Cursor()}, nil
			case <-tick:
			}
		}

		stop, done, err := p.Advance()
		if err != nil || done {
			p.logger.Debug().Str("reason", stop.Reason.String()).Int("step", stop.Step).Msg("stopped")
			return stop, err
		}
	}
}

// Advance performs one animation step: a single step, or a step over when
// the next call is one not worth animating. done is set when playback
// should stop.
func (p *Player) Advance() (stop Stop, done bool, err error) {
	err = p.engine.Update(func(e *replay.Engine) error {
		next, ok := e.Entry(e.Cursor() + 1)
		if !ok {
			stop, done = Stop{Reason: StopFinished, Step: e.Cursor()}, true
			return nil
		}

		var stepErr error
		if e.IsAboutToEnterFunction() && p.skip(e.Annotations(), next.Function) {
			p.logger.Trace().Str("function", next.Function).Msg("fast-forward")
			stepErr = e.StepOver()
		} else {
			_, stepErr = e.Step()
		}
		if stepErr != nil {
			stop, done = Stop{Reason: StopFailed, Step: e.Cursor()}, true
			return stepErr
		}

		if p.opts.OnStep != nil {
			p.opts.OnStep(e)
		}

		applied, _ := e.Entry(e.Cursor())
		if bp, hit := p.breakpoints.CheckBreakpoint(applied); hit {
			stop, done = Stop{Reason: StopBreakpoint, Step: e.Cursor(), Breakpoint: bp}, true
			return nil
		}
		if e.HasFinished() {
			stop, done = Stop{Reason: StopFinished, Step: e.Cursor()}, true
		}
		return nil
	})
	return stop, done, err
}

func (p *Player) skip(annotations []trace.Annotation, function string) bool {
	return query.FastForward(annotations, function, p.opts.SkipFunctions...)
}
