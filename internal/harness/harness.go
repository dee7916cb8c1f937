// Package harness assembles the Physical Memory Store, Page-Table Walker, Device Table, DRAM
// model and Bus Coordinator into the top-level object a simulated core drives, exposing the
// external interface the core and its ecall/TLS handling code depend on.
package harness

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jvorob/cse502/internal/axi"
	"github.com/jvorob/cse502/internal/bus"
	"github.com/jvorob/cse502/internal/devices"
	"github.com/jvorob/cse502/internal/dram"
	"github.com/jvorob/cse502/internal/loader"
	"github.com/jvorob/cse502/internal/log"
	"github.com/jvorob/cse502/internal/mem"
	"github.com/jvorob/cse502/internal/tick"
)

// ErrProtocol is the sentinel for fatal harness-level configuration and setup errors.
var ErrProtocol = errors.New("harness: protocol violation")

// ProtocolError plays the role of Verilated::gotFinish(true) in the original harness: a fatal
// condition that should stop the simulation rather than be silently tolerated.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("%s: %s", ErrProtocol, e.Reason) }

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// Harness composes the memory store, optional page table, bus coordinator and RTC into the
// object a simulated core's testbench drives one clock at a time.
type Harness struct {
	cfg   Config
	store *mem.Store
	pt    *mem.PageTable // nil when cfg.UseVirtualMemory is false.
	bus   *bus.Coordinator
	rtc   *tick.RTC
	image loader.Image

	ecallBrk uint64
	errno    uint64 // virtual address of the guest's errno slot, or 0 if unknown.

	finished   bool
	finishCode int

	log *log.Logger
}

// current is the process-wide singleton, set by New, mirroring System::sys in the original
// harness. The device hooks in internal/devices take no harness handle and do not read it;
// nothing in this repository reads it outside this package's tests.
var current *Harness

// Current returns the most recently constructed Harness, or nil if none exists yet.
func Current() *Harness { return current }

// New builds a complete harness: store, page table (if configured), device table, DRAM model,
// bus coordinator and RTC, loads image from r, and sets it as the process-wide current
// harness.
func New(cfg Config, r io.ReaderAt, dramLatency uint64, dramQueueDepth int) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := mem.NewStore(cfg.RAMSize, cfg.FullSystem, cfg.UseVirtualMemory)
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}

	h := &Harness{
		cfg:   cfg,
		store: store,
		log:   log.DefaultLogger(),
	}

	if cfg.UseVirtualMemory {
		root := store.Allocate()
		h.pt = mem.NewPageTable(store, root)
	}

	if err := h.loadImage(r); err != nil {
		_ = store.Close()
		return nil, err
	}

	table := devices.NewTable()
	table.Register(devices.NewCLINT(cfg.CLINTBase, cfg.CLINTSize))
	table.Register(devices.NewUARTLite(cfg.UARTBase, cfg.UARTSize, os.Stdout))

	model := dram.NewFixedLatencyModel(dramLatency, dramQueueDepth)
	h.bus = bus.New(store, model, table)
	h.rtc = tick.NewRTC(cfg.PsPerClock)

	current = h

	return h, nil
}

func (h *Harness) loadImage(r io.ReaderAt) error {
	if h.cfg.FullSystem {
		rd, ok := r.(io.Reader)
		if !ok {
			rd = io.NewSectionReader(r, 0, 1<<62)
		}

		img, err := loader.LoadRaw(h.store, rd)
		if err != nil {
			return err
		}

		h.image = img
		h.ecallBrk = img.MaxAddr

		return nil
	}

	img, err := loader.LoadELF(h.store, h.pt, r)
	if err != nil {
		return err
	}

	h.image = img
	h.ecallBrk = img.MaxAddr

	if img.ErrnoOffset != nil {
		h.errno = *img.ErrnoOffset
	}

	stackTop := h.cfg.RAMSize - loader.StackReserve
	if err := loader.SetupStack(h.store, h.pt, stackTop, os.Args); err != nil {
		return err
	}

	// address zero prefaulted by SetupStack.
	return nil
}

// EcallBrk returns the initial program break: the page-rounded end of the loaded image.
func (h *Harness) EcallBrk() uint64 { return h.ecallBrk }

// SetErrno writes v to the guest's errno slot (if a TLS segment provided one) and invalidates
// the owning line on the bus, so a core that has the line cached observes the write.
func (h *Harness) SetErrno(v int32) error {
	if h.errno == 0 {
		return nil
	}

	phys := h.errno

	if h.pt != nil {
		var err error

		phys, err = h.pt.VirtToPhy(h.errno)
		if err != nil {
			return fmt.Errorf("harness: SetErrno: %w", err)
		}
	}

	if err := h.store.Write64(phys&^7, uint64(uint32(v))); err != nil {
		return fmt.Errorf("harness: SetErrno: %w", err)
	}

	h.bus.Invalidate(phys)

	return nil
}

// Tick drives one clock of the bus coordinator, and the RTC once per simulated clock: the bus
// is driven twice per clock (a negative edge that drains handshakes, a positive edge that
// advances state), but the RTC strobes at a fixed real-time rate independent of that two-phase
// split, so it only ticks on the positive edge.
func (h *Harness) Tick(clk int, in axi.Inputs) axi.Outputs {
	out := h.bus.Tick(clk, in)

	if !in.Reset && clk%2 == 0 {
		out.Hz32768Timer = h.rtc.Tick()
	}

	return out
}

// Finish marks the simulation as over, analogous to Verilated::gotFinish(true): callers that
// observe a fatal error call this instead of panicking so a CLI driver or test can decide how
// to react.
func (h *Harness) Finish(code int) {
	h.finished = true
	h.finishCode = code
}

// Finished reports whether Finish has been called, and with what code.
func (h *Harness) Finished() (bool, int) { return h.finished, h.finishCode }

// Close releases the harness's memory store.
func (h *Harness) Close() error { return h.store.Close() }

// String summarizes the harness for the CLI's final report.
func (h *Harness) String() string {
	return fmt.Sprintf("harness{ramsize=%#x entry=%#x maxAddr=%#x finished=%v}",
		h.cfg.RAMSize, h.image.Entry, h.image.MaxAddr, h.finished)
}
