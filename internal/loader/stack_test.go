package loader

import (
	"testing"

	"github.com/jvorob/cse502/internal/mem"
)

func newTestStoreAndPT(t *testing.T, ramsize uint64) (*mem.Store, *mem.PageTable) {
	t.Helper()

	store, err := mem.NewStore(ramsize, false, true)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })

	root := store.Allocate()

	return store, mem.NewPageTable(store, root)
}

func TestSetupStack(t *testing.T) {
	t.Parallel()

	const ramsize = 16 * 1024 * 1024
	store, pt := newTestStoreAndPT(t, ramsize)

	stackTop := ramsize - StackReserve

	if err := SetupStack(store, pt, stackTop, []string{"guest", "-x"}); err != nil {
		t.Fatalf("SetupStack: %v", err)
	}

	phys, err := pt.VirtToPhy(stackTop)
	if err != nil {
		t.Fatalf("VirtToPhy: %v", err)
	}

	argc, err := store.Read64(phys)
	if err != nil {
		t.Fatalf("Read64: %v", err)
	}

	if argc != 2 {
		t.Errorf("argc: got %d, want 2", argc)
	}

	argv0Ptr, err := store.Read64(phys + 8)
	if err != nil {
		t.Fatalf("Read64: %v", err)
	}

	if got := string(store.VirtAt(argv0Ptr)[:5]); got != "guest" {
		t.Errorf("argv[0]: got %q, want %q", got, "guest")
	}
}

// TestSetupStack_NoPageTable covers user-mode without HAVETLB: virtual addresses are physical
// offsets directly, and SetupStack must not dereference a nil *mem.PageTable.
func TestSetupStack_NoPageTable(t *testing.T) {
	t.Parallel()

	const ramsize = 16 * 1024 * 1024

	store, err := mem.NewStore(ramsize, false, false)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	stackTop := ramsize - StackReserve

	if err := SetupStack(store, nil, stackTop, []string{"guest", "-x"}); err != nil {
		t.Fatalf("SetupStack: %v", err)
	}

	argc, err := store.Read64(stackTop)
	if err != nil {
		t.Fatalf("Read64: %v", err)
	}

	if argc != 2 {
		t.Errorf("argc: got %d, want 2", argc)
	}

	argv0Ptr, err := store.Read64(stackTop + 8)
	if err != nil {
		t.Fatalf("Read64: %v", err)
	}

	host, err := store.HostPointer(argv0Ptr)
	if err != nil {
		t.Fatalf("HostPointer: %v", err)
	}

	if got := string(host[:5]); got != "guest" {
		t.Errorf("argv[0]: got %q, want %q", got, "guest")
	}
}
