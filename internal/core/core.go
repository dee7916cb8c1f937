// Package core is not a RISC-V core. The cycle-accurate hardware model the bus coordinator was
// built to drive is explicitly out of scope; this package is a minimal scripted stand-in that
// plays back a fixed sequence of AXI signal assertions, for callers that want a scripted
// multi-clock scenario instead of hand-written per-clock calls. The CLI's run command and the
// bus coordinator's tests do not use it; they tick the coordinator directly.
package core

import (
	"strconv"

	"github.com/jvorob/cse502/internal/axi"
)

// Step is one simulated clock's worth of scripted core behavior: the inputs to present to the
// bus coordinator, and an optional assertion against the coordinator's response.
type Step struct {
	Inputs axi.Inputs

	// Assert, if non-nil, is run against the coordinator's Outputs for this clock. Returning
	// a non-nil error aborts the script.
	Assert func(axi.Outputs) error
}

// Script is an ordered sequence of Steps, replayed one clock at a time by Run.
type Script []Step

// Runner drives a Script against anything shaped like a bus coordinator's Tick method.
type Runner struct {
	Tick func(clk int, in axi.Inputs) axi.Outputs
}

// Run plays back every step in order, starting at the given clock, and returns the clock value
// immediately after the last step. It stops and returns an error as soon as a step's Assert
// fails.
func (r Runner) Run(startClk int, script Script) (int, error) {
	clk := startClk

	for i, step := range script {
		out := r.Tick(clk, step.Inputs)
		clk++

		if step.Assert != nil {
			if err := step.Assert(out); err != nil {
				return clk, &ScriptError{Index: i, Err: err}
			}
		}
	}

	return clk, nil
}

// ScriptError reports which step of a Script failed its assertion.
type ScriptError struct {
	Index int
	Err   error
}

func (e *ScriptError) Error() string {
	return "core: script step " + strconv.Itoa(e.Index) + ": " + e.Err.Error()
}

func (e *ScriptError) Unwrap() error { return e.Err }
