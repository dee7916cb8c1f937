package loader

import (
	"fmt"

	"github.com/jvorob/cse502/internal/mem"
)

// SetupStack lays out an initial argc/argv/envp stack frame below stackTop, pre-faulting
// StackPages pages below the stack pointer and one page at virtual address zero (a
// placeholder for an eventual AT_RANDOM auxv entry; see the TODO below).
//
// pt may be nil: with virtual memory disabled, stackTop and every guest address below it are
// physical offsets directly (§4.B's identity-map path), so faulting in a page is a no-op and
// stack bytes are written straight into the store instead of through PageTable.VirtToPhy and
// Store.VirtAt.
//
// TODO: auxv is not populated, so a guest's _dl_random reads a null pointer. Prefaulting page 0
// only avoids a translation fault, it does not supply real random bytes.
func SetupStack(store *mem.Store, pt *mem.PageTable, stackTop uint64, argv []string) error {
	fault := func(v uint64) error { return nil }
	writeByte := func(v uint64, b byte) { _, _ = store.WriteBytes(v, []byte{b}) }

	if pt != nil {
		fault = func(v uint64) error {
			_, err := pt.VirtToPhy(v)
			return err
		}
		writeByte = func(v uint64, b byte) { store.VirtAt(v)[0] = b }
	}

	for n := uint64(1); n <= StackPages; n++ {
		if err := fault(stackTop - mem.PageSize*n); err != nil {
			return fmt.Errorf("%w: faulting stack page %d: %w", ErrImageLoader, n, err)
		}
	}

	argc := uint64(len(argv))

	phys := stackTop

	if pt != nil {
		var err error

		phys, err = pt.VirtToPhy(stackTop)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrImageLoader, err)
		}
	}

	// Layout at stackTop: [argc][argv[0..argc-1]][envp (0)][env array terminator (0)]
	if err := store.Write64(phys, argc); err != nil {
		return fmt.Errorf("%w: %w", ErrImageLoader, err)
	}

	dst := stackTop + 8 + 8*argc + 8 + 8

	if err := store.Write64(phys+8*(argc+1), 0); err != nil { // envp
		return fmt.Errorf("%w: %w", ErrImageLoader, err)
	}

	if err := store.Write64(phys+8*(argc+2), 0); err != nil { // env array terminator
		return fmt.Errorf("%w: %w", ErrImageLoader, err)
	}

	for i, arg := range argv {
		if err := store.Write64(phys+8*(uint64(i)+1), dst); err != nil {
			return fmt.Errorf("%w: %w", ErrImageLoader, err)
		}

		for _, b := range append([]byte(arg), 0) {
			if err := fault(dst); err != nil {
				return fmt.Errorf("%w: faulting argv[%d]: %w", ErrImageLoader, i, err)
			}

			writeByte(dst, b)
			dst++
		}
	}

	if err := fault(0); err != nil {
		return fmt.Errorf("%w: prefaulting address zero: %w", ErrImageLoader, err)
	}

	return nil
}
