package dram

import "testing"

func TestFixedLatencyModel_CompletesAfterLatency(t *testing.T) {
	t.Parallel()

	m := NewFixedLatencyModel(4, 8)

	var completedAt uint64
	var completedLine uint64

	m.OnReadComplete(func(line, cycle uint64) {
		completedLine = line
		completedAt = cycle
	})

	if !m.Submit(false, 0x40) {
		t.Fatal("Submit refused with empty queue")
	}

	for cycle := uint64(1); cycle <= 3; cycle++ {
		m.Update(cycle)
	}

	if completedAt != 0 {
		t.Fatalf("completed early at cycle %d", completedAt)
	}

	m.Update(5)

	if completedLine != 0x40 || completedAt != 5 {
		t.Errorf("got line %#x at cycle %d, want 0x40 at 5", completedLine, completedAt)
	}
}

func TestFixedLatencyModel_Backpressure(t *testing.T) {
	t.Parallel()

	m := NewFixedLatencyModel(100, 1)

	if !m.Submit(false, 0x0) {
		t.Fatal("first submit should be accepted")
	}

	if m.WillAccept(0x40) {
		t.Error("WillAccept should report false once queueDepth is reached")
	}

	if m.Submit(true, 0x40) {
		t.Error("Submit should refuse once queueDepth is reached")
	}
}
