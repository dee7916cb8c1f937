package mem

import "encoding/binary"

// The bus and physical memory are little-endian throughout, matching the RISC-V-style core
// this harness drives.
var byteOrder = binary.LittleEndian

func leUint64(b []byte) uint64 { return byteOrder.Uint64(b) }

func putLeUint64(b []byte, v uint64) { byteOrder.PutUint64(b, v) }
