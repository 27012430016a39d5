package gdt

import "unsafe"

// TSS mirrors the x86-64 Task State Segment layout (Intel SDM Vol. 3A
// §8.7, figure 8-11): only the privilege stack table's rsp0 entry is
// actually used by this kernel, but the struct is laid out in full so its size
// (and therefore tssLimit) matches hardware's expectations exactly.
type TSS struct {
	reserved0           uint32
	privilegeStackTable [3]uint64 // rsp0, rsp1, rsp2
	reserved1           uint64
	ist                 [7]uint64 // ist1..ist7
	reserved2           uint64
	reserved3           uint16
	ioMapBaseAddress    uint16
}

// tssLimit is sizeof(TSS)-1, the value the TSS descriptor's limit
// field must carry.
const tssLimit = uint32(unsafe.Sizeof(TSS{}) - 1)

// RSP0 returns the current ring-0 entry stack pointer: the value the
// CPU loads into RSP on any privilege-level-elevating transition
// (interrupt, exception, or syscall with no IST). internal/syscallentry
// and internal/thread both read and write this field directly as
// threads are created and switched.
func (t *TSS) RSP0() uint64 {
	return t.privilegeStackTable[0]
}

// SetRSP0 updates the ring-0 entry stack pointer, called once per
// thread switch and once during kickoff when a new thread's kernel
// stack becomes the active one.
func (t *TSS) SetRSP0(rsp0 uint64) {
	t.privilegeStackTable[0] = rsp0
}
