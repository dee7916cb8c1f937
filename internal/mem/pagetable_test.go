package mem

import "testing"

func TestPageTable_VirtToPhy_AllocatesLazily(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 256*PageSize, false, true)

	root := s.Allocate()
	pt := NewPageTable(s, root)

	phys1, err := pt.VirtToPhy(0x1000)
	if err != nil {
		t.Fatalf("VirtToPhy: %v", err)
	}

	phys2, err := pt.VirtToPhy(0x1004)
	if err != nil {
		t.Fatalf("VirtToPhy: %v", err)
	}

	if phys1&^(PageSize-1) != phys2&^(PageSize-1) {
		t.Errorf("addresses in the same guest page mapped to different frames: %#x != %#x", phys1, phys2)
	}

	if phys2-phys1 != 4 {
		t.Errorf("got offset delta %d, want 4", phys2-phys1)
	}
}

func TestPageTable_VirtToPhy_DistinctPagesDistinctFrames(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 256*PageSize, false, true)

	root := s.Allocate()
	pt := NewPageTable(s, root)

	a, err := pt.VirtToPhy(0x2000)
	if err != nil {
		t.Fatalf("VirtToPhy: %v", err)
	}

	b, err := pt.VirtToPhy(0x400000) // crosses a second-level boundary.
	if err != nil {
		t.Fatalf("VirtToPhy: %v", err)
	}

	if a&^(PageSize-1) == b&^(PageSize-1) {
		t.Errorf("distinct guest pages mapped to the same frame: %#x", a)
	}
}

func TestPageTable_VirtToPhy_Idempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 256*PageSize, false, true)

	root := s.Allocate()
	pt := NewPageTable(s, root)

	first, err := pt.VirtToPhy(0x3040)
	if err != nil {
		t.Fatalf("VirtToPhy: %v", err)
	}

	second, err := pt.VirtToPhy(0x3040)
	if err != nil {
		t.Fatalf("VirtToPhy: %v", err)
	}

	if first != second {
		t.Errorf("repeated translation of the same address changed: %#x != %#x", first, second)
	}
}
