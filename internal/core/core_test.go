package core

import (
	"errors"
	"testing"

	"github.com/jvorob/cse502/internal/axi"
)

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	var seen []int

	runner := Runner{
		Tick: func(clk int, in axi.Inputs) axi.Outputs {
			seen = append(seen, clk)
			return axi.Outputs{ARReady: true}
		},
	}

	script := Script{
		{Inputs: axi.Inputs{}, Assert: func(o axi.Outputs) error {
			if !o.ARReady {
				return errors.New("expected ARReady")
			}
			return nil
		}},
		{Inputs: axi.Inputs{Reset: true}},
	}

	end, err := runner.Run(10, script)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if end != 12 {
		t.Errorf("end clock: got %d, want 12", end)
	}

	if len(seen) != 2 || seen[0] != 10 || seen[1] != 11 {
		t.Errorf("unexpected clock sequence: %v", seen)
	}
}

func TestRunner_Run_AssertFailure(t *testing.T) {
	t.Parallel()

	runner := Runner{
		Tick: func(clk int, in axi.Inputs) axi.Outputs { return axi.Outputs{} },
	}

	script := Script{
		{Assert: func(o axi.Outputs) error { return errors.New("boom") }},
	}

	_, err := runner.Run(0, script)

	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("got %v, want *ScriptError", err)
	}

	if scriptErr.Index != 0 {
		t.Errorf("index: got %d, want 0", scriptErr.Index)
	}
}
