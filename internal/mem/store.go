// Package mem implements the harness's physical memory store and page-table walker: the
// shared-memory-backed RAM region, its parallel virtual-address view, the physical-page
// allocator and the 4-level page table built lazily over on-demand-allocated pages.
package mem

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/jvorob/cse502/internal/log"
)

const (
	// PageSize is the unit of physical-page allocation and page-table translation.
	PageSize = 4096

	// DRAMOffset is the guest-visible base address of DRAM in full-system mode.
	DRAMOffset = 0x8000_0000
)

// Store owns the byte-addressable physical memory region of a simulated machine. It is
// backed by a shared anonymous memory object (a Linux memfd) so a second, virtual-address
// view can alias the same pages, mirroring the dual-view trick used by the C++ harness this
// was distilled from.
type Store struct {
	region []byte // ramsize bytes, backs physical addresses 0..ramsize.
	virt   []byte // present only when virtual memory is enabled; re-mapped window-by-window.

	fd         int
	ramsize    uint64
	dramOffset uint64

	alloc *allocator

	log *log.Logger
}

// ErrBounds is returned when an access's aligned window would fall outside the store.
var ErrBounds = errors.New("mem: access out of bounds")

// BoundsError carries the offending address for ErrBounds.
type BoundsError struct {
	Addr    uint64
	RAMSize uint64
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("%s: addr %#x is beyond end of memory at %#x", ErrBounds, e.Addr, e.RAMSize)
}

func (e *BoundsError) Is(target error) bool {
	return target == ErrBounds
}

// NewStore creates a physical memory store of ramsize bytes. When fullSystem is true, bus
// addresses are expected to start at DRAMOffset and are translated down before indexing the
// region. When useVirtualMemory is true, a second, initially-unreadable virtual view is
// mapped alongside the physical region for the page-table walker to populate.
func NewStore(ramsize uint64, fullSystem, useVirtualMemory bool) (*Store, error) {
	if ramsize == 0 || ramsize%PageSize != 0 {
		return nil, fmt.Errorf("mem: ramsize %d must be a non-zero multiple of %d", ramsize, PageSize)
	}

	fd, err := unix.MemfdCreate("cse502-harness-ram", 0)
	if err != nil {
		return nil, fmt.Errorf("mem: memfd_create: %w", err)
	}

	if err := unix.Ftruncate(fd, int64(ramsize)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mem: ftruncate: %w", err)
	}

	region, err := unix.Mmap(fd, 0, int(ramsize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mem: mmap region: %w", err)
	}

	s := &Store{
		region:  region,
		fd:      fd,
		ramsize: ramsize,
		alloc:   newAllocator(ramsize / PageSize),
		log:     log.DefaultLogger(),
	}

	if fullSystem {
		s.dramOffset = DRAMOffset
	}

	if useVirtualMemory {
		virt, err := unix.Mmap(-1, 0, int(ramsize), unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			_ = unix.Munmap(region)
			_ = unix.Close(fd)
			return nil, fmt.Errorf("mem: mmap virtual view: %w", err)
		}

		s.virt = virt
	}

	return s, nil
}

// Close releases the store's mappings and backing file descriptor.
func (s *Store) Close() error {
	var errs []error

	if s.virt != nil {
		errs = append(errs, unix.Munmap(s.virt))
	}

	errs = append(errs, unix.Munmap(s.region))
	errs = append(errs, unix.Close(s.fd))

	return errors.Join(errs...)
}

// RAMSize returns the size of the physical region, in bytes.
func (s *Store) RAMSize() uint64 { return s.ramsize }

// DRAMOffset returns the guest-visible base address applied to bus addresses, or 0 outside
// full-system mode.
func (s *Store) DRAMOffset() uint64 { return s.dramOffset }

// TranslateBusAddr maps a bus address (as seen on the AXI AR/AW channels) to a physical
// offset into the region, applying the full-system DRAM offset and bounds-checking the
// aligned 64-byte line the address belongs to. It is fatal (a *BoundsError) for the line to
// exceed the store.
func (s *Store) TranslateBusAddr(busAddr uint64) (uint64, error) {
	if busAddr < s.dramOffset {
		return 0, &BoundsError{Addr: busAddr, RAMSize: s.ramsize}
	}

	phys := busAddr - s.dramOffset

	if phys&^63 > s.ramsize-64 {
		return 0, &BoundsError{Addr: busAddr, RAMSize: s.ramsize}
	}

	return phys, nil
}

// Read64 reads a little-endian 64-bit word at the given physical offset.
func (s *Store) Read64(phys uint64) (uint64, error) {
	if phys+8 > uint64(len(s.region)) {
		return 0, &BoundsError{Addr: phys, RAMSize: s.ramsize}
	}

	return leUint64(s.region[phys : phys+8]), nil
}

// Write64 writes a little-endian 64-bit word at the given physical offset.
func (s *Store) Write64(phys uint64, v uint64) error {
	if phys+8 > uint64(len(s.region)) {
		return &BoundsError{Addr: phys, RAMSize: s.ramsize}
	}

	putLeUint64(s.region[phys:phys+8], v)

	return nil
}

// WriteBytes copies src into the physical region starting at phys.
func (s *Store) WriteBytes(phys uint64, src []byte) (int, error) {
	if phys+uint64(len(src)) > uint64(len(s.region)) {
		return 0, &BoundsError{Addr: phys, RAMSize: s.ramsize}
	}

	return copy(s.region[phys:], src), nil
}

// HostPointer returns the live backing slice for a physical offset, sized to the remainder of
// the region. Callers that hold onto it observe later writes through Write64/WriteBytes.
func (s *Store) HostPointer(phys uint64) ([]byte, error) {
	if phys > uint64(len(s.region)) {
		return nil, &BoundsError{Addr: phys, RAMSize: s.ramsize}
	}

	return s.region[phys:], nil
}

// VirtAt returns the live backing slice for a virtual address, through the second,
// page-table-mapped view. It panics if virtual memory was not enabled; callers should only
// reach it after a successful PageTable.VirtToPhy call, which guarantees the page is mapped.
func (s *Store) VirtAt(v uint64) []byte {
	if s.virt == nil {
		panic("mem: VirtAt: virtual memory is not enabled")
	}

	return s.virt[v:]
}

// mapLeaf installs the physical frame at phys into the virtual view at the 4KiB page
// containing v. It is called exactly once per leaf allocation by the page-table walker.
//
// golang.org/x/sys/unix's Mmap wrapper always lets the kernel choose the address, so
// MAP_FIXED-ing a specific window of an existing mapping means dropping to the raw syscall,
// the same way the original harness calls mmap(2) with an explicit target address over the
// same shared-memory file descriptor.
func (s *Store) mapLeaf(v, phys uint64) error {
	base := v &^ (PageSize - 1)
	physBase := phys &^ (PageSize - 1)
	addr := uintptr(unsafe.Pointer(&s.virt[0])) + uintptr(base)

	r1, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		addr,
		PageSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_FIXED,
		uintptr(s.fd),
		uintptr(physBase),
	)
	if errno != 0 {
		return fmt.Errorf("mem: mmap leaf at virt %#x phys %#x: %w", v, phys, errno)
	}

	if r1 != addr {
		return fmt.Errorf("mem: mmap leaf: kernel placed mapping at %#x, wanted %#x", r1, addr)
	}

	return nil
}

// Allocate returns a uniformly random, previously-unused physical page number and marks it
// used. There is no corresponding deallocation: pages live for the whole simulation.
func (s *Store) Allocate() uint64 {
	return s.alloc.allocate()
}
