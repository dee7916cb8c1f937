// Package loader bootstraps a simulated guest's memory: it loads a raw binary or ELF image,
// mirroring the C++ harness's load_binary, and lays out the initial stack with
// argc/argv/envp the way a kernel would before handing control to entry.
package loader

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"

	"github.com/jvorob/cse502/internal/log"
	"github.com/jvorob/cse502/internal/mem"
)

// ErrImageLoader is the sentinel wrapped by every error this package returns for malformed
// input or an image that does not fit the configured memory.
var ErrImageLoader = errors.New("loader error")

// ProtocolError marks an ELF program header type the loader does not know how to handle,
// playing the same "fatal, ask the model to finish" role as the harness's bus-level errors.
type ProtocolError struct {
	Type elf.ProgType
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("loader: unexpected program header type %s", e.Type)
}

func (e *ProtocolError) Is(target error) bool { return target == ErrImageLoader }

// StackPages is the number of 4KiB pages pre-faulted below the initial stack pointer, matching
// the original harness's STACK_PAGES.
const StackPages = 100

// StackReserve is how far below the top of RAM the initial stack pointer is placed.
const StackReserve = 4 * 1024 * 1024 // 4 MiB

// Image describes a loaded program: its entry point and the extent of memory the loader wrote.
// MaxAddr, page-rounded up, becomes the initial program break in non-full-system mode.
type Image struct {
	Entry   uint64
	MaxAddr uint64

	// ErrnoOffset is the guest virtual address of the thread-local "errno" slot, derived from
	// a PT_TLS segment's Vaddr+0x20. Nil if no TLS segment was present.
	ErrnoOffset *uint64
}

var log_ = log.DefaultLogger()

// LoadRaw reads a flat binary image into physical memory starting at offset 0, the full-system
// path where the guest itself owns address translation and entry is fixed at the DRAM base.
func LoadRaw(store *mem.Store, r io.Reader) (Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %w", ErrImageLoader, err)
	}

	n, err := store.WriteBytes(0, data)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %w", ErrImageLoader, err)
	}

	log_.Info("Loaded raw image", "bytes", n)

	return Image{Entry: store.DRAMOffset(), MaxAddr: alignUp(uint64(n))}, nil
}

// LoadELF loads an ELF image's PT_LOAD segments through a page table, faulting in every guest
// page a segment touches before copying its file bytes into the virtual view — the bytes
// beyond Filesz are left as the zeroed pages anonymous shared memory already provides.
// PT_GNU_STACK, PT_NOTE, PT_GNU_RELRO and PT_DYNAMIC are silently skipped; any other
// unrecognized segment type is a fatal *ProtocolError. A PT_TLS segment records ErrnoOffset.
func LoadELF(store *mem.Store, pt *mem.PageTable, r io.ReaderAt) (Image, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %w", ErrImageLoader, err)
	}
	defer f.Close()

	var img Image

	if len(f.Progs) == 0 {
		if err := loadFlatSection(f, store, pt, &img); err != nil {
			return Image{}, err
		}

		img.Entry = f.Entry
		img.MaxAddr = alignUp(img.MaxAddr)

		return img, nil
	}

	for _, prog := range f.Progs {
		switch prog.Type {
		case elf.PT_LOAD:
			if err := loadSegment(prog, store, pt, &img); err != nil {
				return Image{}, err
			}
		case elf.PT_TLS:
			off := prog.Vaddr + 0x20
			img.ErrnoOffset = &off
			log_.Info("Found TLS segment", "vaddr", fmt.Sprintf("%#x", prog.Vaddr), "errnoOffset", fmt.Sprintf("%#x", off))
		case elf.PT_GNU_STACK, elf.PT_NOTE, elf.PT_GNU_RELRO, elf.PT_DYNAMIC:
			// No meaning for a full-memory, no-dynamic-linker guest.
		default:
			return Image{}, fmt.Errorf("%w", &ProtocolError{Type: prog.Type})
		}
	}

	img.Entry = f.Entry
	img.MaxAddr = alignUp(img.MaxAddr)

	return img, nil
}

func loadSegment(prog *elf.Prog, store *mem.Store, pt *mem.PageTable, img *Image) error {
	log_.Info("Loading ELF segment",
		"offset", prog.Off, "filesz", prog.Filesz, "memsz", prog.Memsz, "vaddr", fmt.Sprintf("%#x", prog.Vaddr))

	data := make([]byte, prog.Filesz)
	if _, err := prog.ReadAt(data, 0); err != nil {
		return fmt.Errorf("%w: reading segment: %w", ErrImageLoader, err)
	}

	if err := writeThroughPageTable(store, pt, prog.Vaddr, data, prog.Memsz); err != nil {
		return err
	}

	if end := prog.Vaddr + prog.Memsz; end > img.MaxAddr {
		img.MaxAddr = end
	}

	return nil
}

// writeThroughPageTable faults in every guest page spanning [vaddr, vaddr+memsz) and copies
// data (which may be shorter than memsz) into the virtual view byte by byte, since the
// underlying physical frames are not necessarily contiguous.
func writeThroughPageTable(store *mem.Store, pt *mem.PageTable, vaddr uint64, data []byte, memsz uint64) error {
	if pt == nil {
		// No page table: the virtual address is the physical offset directly.
		if _, err := store.WriteBytes(vaddr, data); err != nil {
			return fmt.Errorf("%w: %w", ErrImageLoader, err)
		}

		return nil
	}

	end := vaddr + memsz

	for page := vaddr &^ (mem.PageSize - 1); page < end; page += mem.PageSize {
		if _, err := pt.VirtToPhy(page); err != nil {
			return fmt.Errorf("%w: faulting segment page %#x: %w", ErrImageLoader, page, err)
		}
	}

	for i, b := range data {
		store.VirtAt(vaddr + uint64(i))[0] = b
	}

	return nil
}

func loadFlatSection(f *elf.File, store *mem.Store, pt *mem.PageTable, img *Image) error {
	for _, sec := range f.Sections {
		if sec.Type != elf.SHT_PROGBITS || sec.Flags&elf.SHF_EXECINSTR == 0 {
			continue
		}

		data, err := sec.Data()
		if err != nil {
			return fmt.Errorf("%w: reading section %s: %w", ErrImageLoader, sec.Name, err)
		}

		if err := writeThroughPageTable(store, pt, 0, data, uint64(len(data))); err != nil {
			return err
		}

		img.MaxAddr = uint64(len(data))

		return nil
	}

	return fmt.Errorf("%w: no loadable program headers or executable sections", ErrImageLoader)
}

func alignUp(addr uint64) uint64 {
	return (addr + mem.PageSize - 1) &^ (mem.PageSize - 1)
}
