package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/jvorob/cse502/internal/mem"
)

func TestLoadRaw(t *testing.T) {
	t.Parallel()

	store, err := mem.NewStore(mem.PageSize, true, false)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	data := []byte{0xde, 0xad, 0xbe, 0xef}

	img, err := LoadRaw(store, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("LoadRaw: %v", err)
	}

	if img.Entry != mem.DRAMOffset {
		t.Errorf("entry: got %#x, want %#x", img.Entry, mem.DRAMOffset)
	}

	got, err := store.Read64(0)
	if err != nil {
		t.Fatalf("Read64: %v", err)
	}

	if byte(got) != 0xde || byte(got>>8) != 0xad {
		t.Errorf("unexpected memory contents: %#x", got)
	}
}

// buildMinimalELF assembles a bare ELF64 executable with a single PT_LOAD segment
// containing code, entirely by hand since the standard library only reads ELF, not writes it.
func buildMinimalELF(vaddr uint64, entry uint64, code []byte) []byte {
	const ehsize = 64
	const phsize = 56

	phoff := uint64(ehsize)
	dataOff := phoff + phsize

	var buf bytes.Buffer

	// e_ident
	buf.Write([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0})
	buf.Write(make([]byte, 8))

	binary.Write(&buf, binary.LittleEndian, uint16(2))  // e_type = ET_EXEC
	binary.Write(&buf, binary.LittleEndian, uint16(62)) // e_machine = EM_X86_64 (placeholder)
	binary.Write(&buf, binary.LittleEndian, uint32(1))  // e_version
	binary.Write(&buf, binary.LittleEndian, entry)
	binary.Write(&buf, binary.LittleEndian, phoff)
	binary.Write(&buf, binary.LittleEndian, uint64(0)) // e_shoff
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // e_flags
	binary.Write(&buf, binary.LittleEndian, uint16(ehsize))
	binary.Write(&buf, binary.LittleEndian, uint16(phsize))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // e_phnum
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_shentsize
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_shnum
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_shstrndx

	// program header: PT_LOAD
	binary.Write(&buf, binary.LittleEndian, uint32(1)) // p_type = PT_LOAD
	binary.Write(&buf, binary.LittleEndian, uint32(5)) // p_flags = R+X
	binary.Write(&buf, binary.LittleEndian, dataOff)   // p_offset
	binary.Write(&buf, binary.LittleEndian, vaddr)     // p_vaddr
	binary.Write(&buf, binary.LittleEndian, vaddr)     // p_paddr
	binary.Write(&buf, binary.LittleEndian, uint64(len(code))) // p_filesz
	binary.Write(&buf, binary.LittleEndian, uint64(len(code))) // p_memsz
	binary.Write(&buf, binary.LittleEndian, uint64(0x1000))    // p_align

	buf.Write(code)

	return buf.Bytes()
}

func TestLoadELF_SinglePTLoad(t *testing.T) {
	t.Parallel()

	const ramsize = 16 * 1024 * 1024
	store, err := mem.NewStore(ramsize, false, true)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	root := store.Allocate()
	pt := mem.NewPageTable(store, root)

	const vaddr = 0x10000
	code := []byte{0x90, 0x90, 0xc3}

	elfBytes := buildMinimalELF(vaddr, vaddr, code)

	img, err := LoadELF(store, pt, bytes.NewReader(elfBytes))
	if err != nil {
		t.Fatalf("LoadELF: %v", err)
	}

	if img.Entry != vaddr {
		t.Errorf("entry: got %#x, want %#x", img.Entry, vaddr)
	}

	phys, err := pt.VirtToPhy(vaddr)
	if err != nil {
		t.Fatalf("VirtToPhy: %v", err)
	}

	got, err := store.Read64(phys)
	if err != nil {
		t.Fatalf("Read64: %v", err)
	}

	if byte(got) != code[0] || byte(got>>8) != code[1] {
		t.Errorf("unexpected code contents: %#x", got)
	}
}

func TestLoadELF_BadFile(t *testing.T) {
	t.Parallel()

	store, err := mem.NewStore(mem.PageSize, true, false)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	_, err = LoadELF(store, nil, bytes.NewReader([]byte("not an elf")))
	if !errors.Is(err, ErrImageLoader) {
		t.Errorf("got %v, want %v", err, ErrImageLoader)
	}
}
