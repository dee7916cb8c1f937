// Package bus implements the Bus Coordinator: the per-clock AXI state machine that brokers
// read and write transactions between a simulated core and the harness's memory store, DRAM
// timing model, and memory-mapped devices.
package bus

// bus.go holds the Coordinator's per-clock state machine.

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jvorob/cse502/internal/axi"
	"github.com/jvorob/cse502/internal/devices"
	"github.com/jvorob/cse502/internal/dram"
	"github.com/jvorob/cse502/internal/log"
	"github.com/jvorob/cse502/internal/mem"
)

// ErrProtocol is the sentinel wrapped by the protocol violations this package detects: a burst
// shape the bus does not support, a line already outstanding, or a DRAM refusal of a read.
// Tick logs each one and drops the offending request; it does not end the simulation.
var ErrProtocol = errors.New("bus: protocol violation")

// ProtocolError carries the offending address alongside ErrProtocol.
type ProtocolError struct {
	Reason string
	Addr   uint64
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s at %#x", ErrProtocol, e.Reason, e.Addr)
}

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// tag identifies an in-flight transaction: the original (unaligned, for read bursts
// mid-line-rotated) address and the AXI ID it must be returned under.
type tag struct {
	orig uint64
	id   uint8
	isAW bool // true if this tag belongs to a write rather than a read.
}

// beat is one queued response data/response beat.
type beat struct {
	data uint64
	id   uint8
	last bool
}

// Coordinator is the bus's per-clock state machine: it accepts AR/AW/W beats from the core,
// dispatches them to devices or the DRAM model, and drains completions back out over R/B/AC,
// one handshake per channel per clock.
type Coordinator struct {
	store   *mem.Store
	dram    dram.Model
	devices *devices.Table

	inflight map[uint64]tag // keyed by aligned line.

	rQueue     []beat
	bQueue     []uint8
	snoopQueue []uint64

	// wAddr/wCount track an in-progress write burst: the address latched from AW, and how
	// many W beats remain before the burst is complete. wTotal is the number of beats the
	// burst started with (8 for a DRAM INCR burst, 1 for a single-beat MMIO store), used to
	// recover which beat is currently arriving from wCount's countdown.
	wAddr  uint64
	wCount int
	wTotal int
	wInTLB bool // latched AW accepted, waiting for W beats.

	inReset bool

	log *log.Logger
}

// New creates a bus coordinator over the given store, DRAM model and device table.
func New(store *mem.Store, d dram.Model, devs *devices.Table) *Coordinator {
	c := &Coordinator{
		store:    store,
		dram:     d,
		devices:  devs,
		inflight: make(map[uint64]tag),
		log:      log.DefaultLogger(),
	}

	d.OnReadComplete(c.onDRAMReadComplete)
	d.OnWriteComplete(c.onDRAMWriteComplete)

	return c
}

// Tick drives one clock of the bus given the core's outputs as inputs, returning the
// coordinator's outputs for the core to sample. clk's parity selects negative vs. positive
// edge processing, matching a two-phase simulation clock: odd clocks drain exactly one
// handshake per channel (negative edge), even clocks do everything else (positive edge).
func (c *Coordinator) Tick(clk int, in axi.Inputs) axi.Outputs {
	if in.Reset {
		return c.reset(in)
	}

	if clk%2 != 0 {
		return c.negEdge(in)
	}

	return c.posEdge(clk, in)
}

func (c *Coordinator) reset(in axi.Inputs) axi.Outputs {
	if in.AR.Valid || in.AW.Valid {
		c.log.Warn("AR/AW asserted during reset, dropping")
	}

	c.inflight = make(map[uint64]tag)
	c.rQueue = nil
	c.bQueue = nil
	c.snoopQueue = nil
	c.wCount = 0
	c.wTotal = 0
	c.wInTLB = false
	c.inReset = true

	return axi.Outputs{
		ARReady: true,
		AWReady: true,
		WReady:  true,
	}
}

// negEdge drains exactly one handshake per channel: whatever was presented as "valid" on the
// previous positive edge and accepted by our ready is popped from its queue here, nothing else
// happens. This mirrors two-phase RTL clocking, where combinational outputs settle on one edge
// and state updates on the other.
func (c *Coordinator) negEdge(in axi.Inputs) axi.Outputs {
	c.inReset = false

	out := axi.Outputs{
		ARReady: true,
		AWReady: !c.wInTLB,
		WReady:  c.wInTLB,
	}

	out.R = c.headR()
	out.B = c.headB()
	out.AC = c.headAC()

	if out.R.Valid && in.RReady {
		c.rQueue = c.rQueue[1:]
	}

	if out.B.Valid && in.BReady {
		c.bQueue = c.bQueue[1:]
	}

	if out.AC.Valid && in.ACReady {
		c.snoopQueue = c.snoopQueue[1:]
	}

	return out
}

// posEdge is the bulk of the bus coordinator: it steps the DRAM model, validates and accepts
// new AR/AW requests, absorbs W beats, short-circuits MMIO reads/writes to the device table,
// and otherwise submits to DRAM.
func (c *Coordinator) posEdge(clk int, in axi.Inputs) axi.Outputs {
	c.dram.Update(uint64(clk))

	out := axi.Outputs{
		ARReady: true,
		AWReady: !c.wInTLB,
		WReady:  c.wInTLB,
	}

	if in.AR.Valid {
		if err := c.acceptAR(in.AR); err != nil {
			c.log.Error("AR rejected", "err", err)
		}
	}

	if in.AW.Valid && !c.wInTLB {
		if err := c.acceptAW(in.AW); err != nil {
			c.log.Error("AW rejected", "err", err)
		}
	}

	if in.W.Valid && c.wInTLB {
		c.absorbW(in.W)
	}

	out.R = c.headR()
	out.B = c.headB()
	out.AC = c.headAC()

	return out
}

func (c *Coordinator) headR() axi.RChannel {
	if len(c.rQueue) == 0 {
		return axi.RChannel{}
	}

	b := c.rQueue[0]

	return axi.RChannel{Valid: true, Data: b.data, ID: b.id, Last: b.last}
}

func (c *Coordinator) headB() axi.BChannel {
	if len(c.bQueue) == 0 {
		return axi.BChannel{}
	}

	return axi.BChannel{Valid: true, ID: c.bQueue[0]}
}

func (c *Coordinator) headAC() axi.ACChannel {
	if len(c.snoopQueue) == 0 {
		return axi.ACChannel{}
	}

	return axi.ACChannel{Valid: true, Addr: c.snoopQueue[0], Snoop: axi.MakeInvalid}
}

// acceptAR validates a read-address request (WRAP burst, len 7, in bounds, not already
// outstanding), and either short-circuits it to the device table or submits it to DRAM.
func (c *Coordinator) acceptAR(ar axi.ARChannel) error {
	if ar.Burst != axi.BurstWrap || ar.Len != axi.BurstLen-1 {
		return &ProtocolError{Reason: "AR burst shape unsupported", Addr: ar.Addr}
	}

	line := axi.AlignLine(ar.Addr)

	if _, outstanding := c.inflight[uint64(line)]; outstanding {
		return &ProtocolError{Reason: "line already outstanding", Addr: ar.Addr}
	}

	if dev := c.devices.Match(ar.Addr); dev != nil {
		data := dev.Read(ar.Addr)
		c.rQueue = append(c.rQueue, beat{data: data, id: ar.ID, last: true})

		return nil
	}

	if _, err := c.store.TranslateBusAddr(ar.Addr); err != nil {
		return fmt.Errorf("%w", err)
	}

	if !c.dram.WillAccept(uint64(line)) {
		return &ProtocolError{Reason: "DRAM refused a WillAccept-checked read", Addr: ar.Addr}
	}

	c.inflight[uint64(line)] = tag{orig: ar.Addr, id: ar.ID}

	if !c.dram.Submit(false, uint64(line)) {
		delete(c.inflight, uint64(line))
		return &ProtocolError{Reason: "DRAM refused a WillAccept-checked read", Addr: ar.Addr}
	}

	return nil
}

// acceptAW validates a write-address request and latches its address, awaiting the W beats
// that follow. An address matching the device table is a single-beat MMIO store — it skips
// the INCR/len-7 burst-shape assertion and the DRAM bounds check entirely, matching
// hardware.cpp's write_one, which latches w_count=1 for a device write instead of forcing it
// through the 8-beat DRAM line protocol. Anything else must be an INCR burst of length 8
// targeting an in-bounds DRAM line.
func (c *Coordinator) acceptAW(aw axi.AWChannel) error {
	line := axi.AlignLine(aw.Addr)

	if _, outstanding := c.inflight[uint64(line)]; outstanding {
		return &ProtocolError{Reason: "line already outstanding", Addr: aw.Addr}
	}

	if dev := c.devices.Match(aw.Addr); dev != nil {
		c.wAddr = aw.Addr
		c.wTotal = 1
		c.wCount = 1
		c.wInTLB = true
		c.inflight[uint64(line)] = tag{orig: aw.Addr, id: aw.ID, isAW: true}

		return nil
	}

	if aw.Burst != axi.BurstIncr || aw.Len != axi.BurstLen-1 {
		return &ProtocolError{Reason: "AW burst shape unsupported", Addr: aw.Addr}
	}

	if _, err := c.store.TranslateBusAddr(aw.Addr); err != nil {
		return fmt.Errorf("%w", err)
	}

	c.wAddr = aw.Addr
	c.wTotal = axi.BurstLen
	c.wCount = axi.BurstLen
	c.wInTLB = true
	c.inflight[uint64(line)] = tag{orig: aw.Addr, id: aw.ID, isAW: true}

	return nil
}

// absorbW accepts one write-data beat, dispatching to the device table (MMIO writes complete
// immediately, with no DRAM round trip) or buffering into the store for a DRAM write once the
// burst completes.
func (c *Coordinator) absorbW(w axi.WChannel) {
	line := axi.AlignLine(c.wAddr)
	beatAddr := c.wAddr + uint64(c.wTotal-c.wCount)*axi.BeatBytes

	if dev := c.devices.Match(beatAddr); dev != nil {
		dev.Write(beatAddr, w.Data, w.Strb)
	} else if phys, err := c.store.TranslateBusAddr(beatAddr); err == nil {
		_ = c.store.Write64(phys, w.Data)
	} else {
		c.log.Error("W beat out of bounds", "addr", beatAddr, "err", err)
	}

	c.wCount--

	if c.wCount > 0 {
		return
	}

	c.wInTLB = false

	if c.devices.Match(c.wAddr) != nil {
		t := c.inflight[uint64(line)]
		c.bQueue = append(c.bQueue, t.id)
		delete(c.inflight, uint64(line))

		return
	}

	if !c.dram.Submit(true, uint64(line)) {
		c.log.Error("DRAM refused write submission", "line", line)
	}
}

// onDRAMReadComplete fires when the DRAM model finishes a read for a line. It rotates the
// eight beats of the line so the wrapping burst starts at the originally-requested address,
// as a WRAP burst core expects.
func (c *Coordinator) onDRAMReadComplete(line uint64, cycle uint64) {
	t, ok := c.inflight[line]
	if !ok {
		c.log.Error("DRAM read completion for unknown line", "line", line)
		return
	}

	delete(c.inflight, line)

	phys, err := c.store.TranslateBusAddr(line)
	if err != nil {
		c.log.Error("reading completed line", "err", err)
		return
	}

	region, err := c.store.HostPointer(phys)
	if err != nil {
		c.log.Error("reading completed line", "err", err)
		return
	}

	for i := uint64(0); i < axi.BurstLen; i++ {
		offset := (t.orig + i*axi.BeatBytes) & axi.LineMask

		data := binary.LittleEndian.Uint64(region[offset : offset+8])

		c.rQueue = append(c.rQueue, beat{data: data, id: t.id, last: i == axi.BurstLen-1})
	}
}

// onDRAMWriteComplete fires when the DRAM model finishes a write for a line, enqueuing the
// write response and then the snoop invalidation, in that order.
func (c *Coordinator) onDRAMWriteComplete(line uint64, cycle uint64) {
	t, ok := c.inflight[line]
	if !ok {
		c.log.Error("DRAM write completion for unknown line", "line", line)
		return
	}

	delete(c.inflight, line)

	c.bQueue = append(c.bQueue, t.id)
	c.snoopQueue = append(c.snoopQueue, line)
}

// Invalidate enqueues a MakeInvalid snoop on the AC channel for the line containing phys,
// without waiting for DRAM. internal/harness calls it after writing guest memory out of band
// (e.g. SetErrno) so a core that has the line cached drops its copy. The in-flight map is
// not touched.
func (c *Coordinator) Invalidate(phys uint64) {
	line := uint64(axi.AlignLine(phys))
	c.snoopQueue = append(c.snoopQueue, line)
}
