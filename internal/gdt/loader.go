package gdt

import (
	"encoding/binary"
	"unsafe"
)

// Load installs table as the running CPU's GDT, reloads every segment
// register (CS via the far-return trick since MOV cannot target CS
// directly, SS/DS/ES/FS/GS directly), and loads the TSS selector —
// the same sequence and selector values init_gdt() in the reference
// kernel uses (kernel code/data at ring 0, the remaining segment
// registers zeroed since long mode ignores them for anything but
// FS/GS base, which this kernel sets through MSRs instead).
//
// Load must run with interrupts disabled and is not safe to call
// concurrently with itself — there is exactly one GDT/TSS pair for the
// lifetime of the kernel, installed once during boot.
func Load(table []Entry, tssSelector Selector) {
	// LGDT's memory operand is a packed 10-byte record (2-byte limit
	// immediately followed by the 8-byte base, no padding), which a Go
	// struct cannot guarantee the layout of on its own, so it is built
	// by hand here instead of declaring a tablePointer struct.
	var ptr [10]byte
	binary.LittleEndian.PutUint16(ptr[0:2], uint16(len(table)*8-1))
	binary.LittleEndian.PutUint64(ptr[2:10], tableAddr(table))

	lgdt(&ptr[0])
	reloadSegments(uint16(KernelCodeSelector), uint16(KernelDataSelector))
	loadTR(uint16(tssSelector))
}

func tableAddr(table []Entry) uint64 {
	if len(table) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&table[0])))
}
