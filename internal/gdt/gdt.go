// Package gdt builds the kernel's Global Descriptor Table and Task
// State Segment and loads them onto the running CPU.
//
// The descriptor fields mirror tinyrange-cc/internal/hv/kvm's
// kvmSegment (Base/Limit/Selector/Type/Present/Dpl/Db/S/L/G) — that
// struct models the exact same x86-64 segment-descriptor bit layout
// for KVM's ioctl ABI; here the same fields are packed directly into
// the real in-memory GDT wire format instead of a syscall struct,
// grounded on the table init.rs's init_gdt() builds (kernel code/data,
// user data/code, then the TSS descriptor, added in that order).
package gdt

// Selector is a segment selector: an index into the GDT plus a
// requested privilege level.
type Selector uint16

// NewSelector builds a selector for the descriptor at index idx
// requested at privilege level rpl (0 = ring 0, 3 = ring 3).
func NewSelector(idx uint16, rpl uint8) Selector {
	return Selector(idx<<3 | uint16(rpl&0x3))
}

// Table indices, fixed by construction order: null descriptor first,
// then kernel code/data, then user data/code (data before code,
// because SYSCALL/SYSRET derive both selectors from a single base
// index and expect that order — see internal/syscallentry), then the
// TSS descriptor spanning two slots.
const (
	idxNull = iota
	idxKernelCode
	idxKernelData
	idxUserData
	idxUserCode
	idxTSS // occupies idxTSS and idxTSS+1 (a TSS descriptor is 16 bytes)
)

var (
	// KernelCodeSelector and friends are the fixed selectors this
	// kernel uses once the GDT is loaded; callers outside this package
	// (internal/syscallentry, internal/thread) reference these instead
	// of raw indices.
	KernelCodeSelector = NewSelector(idxKernelCode, 0)
	KernelDataSelector = NewSelector(idxKernelData, 0)
	UserDataSelector   = NewSelector(idxUserData, 3)
	UserCodeSelector   = NewSelector(idxUserCode, 3)
	TSSSelector        = NewSelector(idxTSS, 0)
)

// Entry is one raw 8-byte GDT descriptor slot. A TSS descriptor
// occupies two consecutive Entry slots.
type Entry uint64

// descriptor flag bits, named the way kvmSegment names its fields
// rather than as bare magic numbers.
const (
	accessPresent = 1 << 7
	accessS       = 1 << 4 // 1 = code/data, 0 = system descriptor
	accessExec    = 1 << 3
	accessRW      = 1 << 1 // readable (code) / writable (data)

	flagGranularity = 1 << 3 // limit scaled by 4 KiB
	flagLongMode    = 1 << 1
	flagDB          = 1 << 2 // 32-bit default operand size; must be 0 when flagLongMode is set

	sysTypeTSSAvailable = 0x9
)

func accessByte(present bool, dpl uint8, s bool, exec bool, rw bool, sysType uint8) byte {
	var b byte
	if present {
		b |= accessPresent
	}
	b |= (dpl & 0x3) << 5
	if s {
		b |= accessS
		if exec {
			b |= accessExec
		}
		if rw {
			b |= accessRW
		}
	} else {
		b |= sysType & 0xf
	}
	return b
}

func flagsNibble(granularity, longMode, db bool) byte {
	var f byte
	if granularity {
		f |= flagGranularity
	}
	if longMode {
		f |= flagLongMode
	}
	if db {
		f |= flagDB
	}
	return f
}

// segmentDescriptor packs a flat (base 0, limit ignored in long mode)
// code or data descriptor, matching kernel_code_segment()/
// kernel_data_segment()/user_code_segment()/user_data_segment() in the
// reference kernel: base and limit are always zero for these, because
// 64-bit mode only consults the access/flags bits for code and data
// segments (FS/GS base is set through MSRs elsewhere, not through
// this table).
func segmentDescriptor(dpl uint8, exec bool, longMode bool) Entry {
	access := accessByte(true, dpl, true, exec, true, 0)
	flags := flagsNibble(true, longMode, !longMode && exec)
	return Entry(uint64(access)<<40 | uint64(flags)<<52)
}

func kernelCodeSegment() Entry { return segmentDescriptor(0, true, true) }
func kernelDataSegment() Entry { return segmentDescriptor(0, false, false) }
func userDataSegment() Entry   { return segmentDescriptor(3, false, false) }
func userCodeSegment() Entry   { return segmentDescriptor(3, true, true) }

// tssDescriptor packs the 16-byte TSS system descriptor spanning two
// consecutive Entry slots, base set to the TSS's linear address and
// limit set to its size minus one (no paging beyond identity mapping
// assumed at this stage, so base is a plain virtual/physical address).
func tssDescriptor(base uint64, limit uint32) [2]Entry {
	access := accessByte(true, 0, false, false, false, sysTypeTSSAvailable)
	low := uint64(limit&0xffff) |
		(base&0xffffff)<<16 |
		uint64(access)<<40 |
		(uint64(limit>>16)&0xf)<<48 |
		((base>>24)&0xff)<<56
	high := (base >> 32) & 0xffffffff
	return [2]Entry{Entry(low), Entry(high)}
}

// numSlots is the physical GDT size: six logical descriptors (null,
// kernel code, kernel data, user data, user code, TSS), with the TSS
// descriptor alone occupying two 8-byte slots since it carries a
// 64-bit base address.
const numSlots = idxTSS + 2

// Descriptors builds the full GDT for a TSS located at tssBase. This
// is pure data construction — no privileged instruction is issued —
// so it is fully unit-testable without hardware.
func Descriptors(tssBase uint64) [numSlots]Entry {
	var table [numSlots]Entry
	table[idxNull] = 0
	table[idxKernelCode] = kernelCodeSegment()
	table[idxKernelData] = kernelDataSegment()
	table[idxUserData] = userDataSegment()
	table[idxUserCode] = userCodeSegment()
	tss := tssDescriptor(tssBase, tssLimit)
	table[idxTSS] = tss[0]
	table[idxTSS+1] = tss[1]
	return table
}
