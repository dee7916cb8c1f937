package devices

import (
	"bytes"
	"testing"
)

func TestTable_Match(t *testing.T) {
	t.Parallel()

	table := NewTable()
	clint := NewCLINT(0x70AEEF00, 0x1000)
	uart := NewUARTLite(0x70BEEF00, 0xC0000, &bytes.Buffer{})

	table.Register(clint)
	table.Register(uart)

	if got := table.Match(0x70AEEF10); got != Device(clint) {
		t.Errorf("CLINT: got %v, want %v", got, clint)
	}

	if got := table.Match(0x70BEEF04); got != Device(uart) {
		t.Errorf("UART: got %v, want %v", got, uart)
	}

	if got := table.Match(0x1000); got != nil {
		t.Errorf("unmapped address: got %v, want nil", got)
	}
}

func TestCLINT_ReadsZero(t *testing.T) {
	t.Parallel()

	c := NewCLINT(0x1000, 0x1000)
	c.Write(0x1000, 0xffffffffffffffff, 0xff)

	if got := c.Read(0x1000); got != 0 {
		t.Errorf("got %#x, want 0", got)
	}
}

func TestUARTLite_TransmitsOnTXFIFO(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	u := NewUARTLite(0x1000, 0xC0000, &buf)

	// TXFIFO is offset 1 (4-byte granularity); with strb selecting the low half the write
	// targets offset 1 directly, and the transmitted byte comes from the low byte of data.
	u.Write(0x1004, uint64('A'), strobeLow)

	if got := buf.String(); got != "A" {
		t.Errorf("got %q, want %q", got, "A")
	}
}

func TestUARTLite_TransmitsOnTXFIFO_HighStrobe(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	u := NewUARTLite(0x1000, 0xC0000, &buf)

	// RX_FIFO is offset 0; a high-strobe write advances the register offset by one, landing
	// on TXFIFO, and the transmitted byte comes from the high word of data.
	u.Write(0x1000, uint64('B')<<32, strobeHigh)

	if got := buf.String(); got != "B" {
		t.Errorf("got %q, want %q", got, "B")
	}
}

func TestUARTLite_StatusAlwaysZero(t *testing.T) {
	t.Parallel()

	u := NewUARTLite(0x1000, 0xC0000, &bytes.Buffer{})

	if got := u.Read(0x1000 + 4*uartStatus); got != 0 {
		t.Errorf("got %#x, want 0", got)
	}
}
