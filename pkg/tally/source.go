package tally

import (
	"context"
	"time"
)

const DefaultInterval = 2 * time.Second

// States in cycle order
var States = []State{Off, Program, Preview, ProgramPreview}

// Source yields tally states. ok is false when the source is exhausted.
type Source interface {
	Next() (state State, ok bool)
}

// Cycle - endless, restartable sequence over a fixed list of states
type Cycle struct {
	states []State
	pos    int
}

func NewCycle(states ...State) *Cycle {
	if len(states) == 0 {
		states = States
	}
	return &Cycle{states: states}
}

func (c *Cycle) Next() (State, bool) {
	state := c.states[c.pos]
	if c.pos++; c.pos == len(c.states) {
		c.pos = 0
	}
	return state, true
}

func (c *Cycle) Reset() {
	c.pos = 0
}

type single struct {
	state State
	done  bool
}

// Single - source with exactly one draw
func Single(state State) Source {
	return &single{state: state}
}

func (s *single) Next() (State, bool) {
	if s.done {
		return 0, false
	}
	s.done = true
	return s.state, true
}

// Run draws states from src and passes them to fn, waiting interval between
// draws. Returns nil when src is exhausted and ctx.Err() on cancel.
func Run(ctx context.Context, src Source, interval time.Duration, fn func(State) error) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	var timer *time.Timer

	for {
		state, ok := src.Next()
		if !ok {
			return nil
		}

		if timer == nil {
			if err := ctx.Err(); err != nil {
				return err
			}
			timer = time.NewTimer(interval)
			defer timer.Stop()
		} else {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				timer.Reset(interval)
			}
		}

		if err := fn(state); err != nil {
			return err
		}
	}
}
