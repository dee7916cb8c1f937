// Package devices implements the harness's memory-mapped I/O devices: a stub CLINT that
// accepts writes and always reads back zero, and a UART-Lite transmitter that prints
// transmitted bytes to an io.Writer. Both are dispatched from the bus by linear address-range
// match, mirroring the original hardware.cpp device table.
package devices

import (
	"fmt"
	"io"

	"github.com/jvorob/cse502/internal/log"
)

// Device is a memory-mapped peripheral occupying a contiguous address range on the bus.
type Device interface {
	// Base and Size describe the device's address range: [Base, Base+Size).
	Base() uint64
	Size() uint64

	// Read returns the 64-bit value at the given bus address.
	Read(addr uint64) uint64

	// Write applies a 64-bit write with AXI-style byte-lane strobe bits to the given bus
	// address. Only the bits selected by strb are meaningful in data.
	Write(addr uint64, data uint64, strb uint16)
}

// Table is an ordered list of devices, matched by linear scan in registration order — there
// are never more than a handful of devices, so there is no need for anything fancier.
type Table struct {
	devices []Device
	log     *log.Logger
}

// NewTable creates an empty device table.
func NewTable() *Table {
	return &Table{log: log.DefaultLogger()}
}

// Register adds a device to the table.
func (t *Table) Register(d Device) {
	t.log.Info("Registering device", "base", fmt.Sprintf("%#x", d.Base()), "size", fmt.Sprintf("%#x", d.Size()))
	t.devices = append(t.devices, d)
}

// Match returns the device whose range contains addr, or nil if no device claims it.
func (t *Table) Match(addr uint64) Device {
	for _, d := range t.devices {
		if addr >= d.Base() && addr < d.Base()+d.Size() {
			return d
		}
	}

	return nil
}

// CLINT is a stub core-local interruptor: it accepts writes silently and always reads back
// zero. The harness does not model timer/software interrupts through CLINT registers; RTC
// ticks are delivered directly, see package tick.
type CLINT struct {
	base, size uint64
}

// NewCLINT creates a CLINT device at the given address range.
func NewCLINT(base, size uint64) *CLINT {
	return &CLINT{base: base, size: size}
}

func (c *CLINT) Base() uint64 { return c.base }
func (c *CLINT) Size() uint64 { return c.size }

func (c *CLINT) Read(addr uint64) uint64 { return 0 }

func (c *CLINT) Write(addr uint64, data uint64, strb uint16) {}

// UART-Lite register offsets, 4-byte granularity within the 8-byte bus word.
const (
	uartRxFIFO = 0
	uartTxFIFO = 1
	uartStatus = 2
	uartCtrl   = 3
)

// Strobe patterns selecting the low or high 32-bit half of a write-data beat.
const (
	strobeLow  = 0x0F
	strobeHigh = 0xF0
)

// UARTLite is a transmit-only UART-Lite: writes to its TX FIFO register print the transmitted
// byte to out, and its status register always reads back zero (i.e. "not full, nothing
// pending"), since the harness never drives received data in.
type UARTLite struct {
	base, size uint64
	out        io.Writer
	log        *log.Logger
}

// NewUARTLite creates a UART-Lite device writing transmitted bytes to out.
func NewUARTLite(base, size uint64, out io.Writer) *UARTLite {
	return &UARTLite{base: base, size: size, out: out, log: log.DefaultLogger()}
}

func (u *UARTLite) Base() uint64 { return u.base }
func (u *UARTLite) Size() uint64 { return u.size }

func (u *UARTLite) Read(addr uint64) uint64 {
	offset := (addr - u.base) / 4

	switch offset {
	case uartStatus:
		return 0
	default:
		u.log.Warn("UART-Lite: unsupported read offset", "offset", offset)
		return 0
	}
}

func (u *UARTLite) Write(addr uint64, data uint64, strb uint16) {
	offset := (addr - u.base) / 4

	// word is the 32-bit half of the 64-bit beat the strobe selects: the low half for 0x0F,
	// the high half (and the next register) for 0xF0.
	word := uint32(data)

	switch strb {
	case strobeHigh:
		offset++
		word = uint32(data >> 32)
	case strobeLow:
		// register addressed directly, low word already selected above.
	default:
		u.log.Warn("UART-Lite: unsupported write strobe", "strb", fmt.Sprintf("%#x", strb))
		return
	}

	switch offset {
	case uartTxFIFO:
		fmt.Fprintf(u.out, "%c", byte(word))
	case uartCtrl:
		// no behavior modeled.
	default:
		u.log.Warn("UART-Lite: unsupported write offset", "offset", offset)
	}
}
