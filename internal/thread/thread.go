// Package thread represents kernel and user threads and switches the
// CPU between them. Ported from
// original_source/os/kernel/src/thread/thread.rs: the stack-slot
// layout and old_rsp0 bookkeeping are kept exactly, translated from a
// growable Vec<u64> into a fixed-length Go slice (see DESIGN.md's
// open-question decision on the uninitialized-aliasing concern that
// choice resolves).
package thread

import (
	"unsafe"

	"hhutos/internal/frame"
	"hhutos/internal/gdt"
)

// StackSizePages matches the reference kernel's STACK_SIZE_PAGES.
const StackSizePages = 16

const stackWords = StackSizePages * frame.PageSize / 8

// UserStackAddress is the fixed user-stack virtual address, matching
// USER_STACK_ADDRESS. Nothing in this package uses it:
// prepareUserPromotion points the user rsp at the user stack slice's
// own address, and no code here maps a stack at this address.
const UserStackAddress = 0x400000000000

// deadReturnAddress is the sentinel return address prepare_kernel_stack
// writes at the very top of a fresh stack: a thread must never
// actually return into kickoff_kernel_thread/kickoff_user_thread's
// caller, so landing here means the scheduler's exit path was skipped.
const deadReturnAddress = 0x00DEAD00

// EntryFunc is the function a new thread begins executing.
type EntryFunc func()

// AddressSpace is the subset of address-space bookkeeping threads
// need: the CR3 value to load on switch. Full paging/VM mapping is a
// peripheral collaborator out of scope for this core.
type AddressSpace interface {
	PageTableAddress() uint64
}

// Thread is one schedulable unit of execution: a kernel stack plus,
// for user threads, a second user-mode stack and a reference to the
// address space it runs in.
type Thread struct {
	id           uint64
	kernelStack  []uint64 // always len == stackWords, never appended to
	userStack    []uint64 // nil/empty for a kernel thread
	addressSpace AddressSpace
	oldRSP0      uint64
	entry        EntryFunc
}

// NewKernelThread builds a thread that runs entirely in ring 0, its
// kernel stack pre-populated with a synthetic initial frame so it is
// indistinguishable from a thread that was merely preempted.
func NewKernelThread(id uint64, addressSpace AddressSpace, entry EntryFunc) *Thread {
	t := &Thread{
		id:           id,
		kernelStack:  make([]uint64, stackWords),
		addressSpace: addressSpace,
		entry:        entry,
	}
	t.prepareKernelStack()
	return t
}

// NewUserThread builds a thread with both a kernel stack (used only
// while in ring 0, e.g. servicing a syscall) and a user stack. The user
// stack is a Go slice allocated here; this constructor does not map it
// into addressSpace — page table manipulation is a peripheral
// collaborator, not this package's job.
func NewUserThread(id uint64, addressSpace AddressSpace, entry EntryFunc) *Thread {
	t := &Thread{
		id:           id,
		kernelStack:  make([]uint64, stackWords),
		userStack:    make([]uint64, stackWords),
		addressSpace: addressSpace,
		entry:        entry,
	}
	t.prepareKernelStack()
	return t
}

// ID returns the thread's scheduler-assigned identifier.
func (t *Thread) ID() uint64 { return t.id }

// IsKernelThread reports whether t never enters user mode, mirroring
// is_kernel_thread()'s capacity(user_stack)==0 check (translated to a
// length check since the Go slice is never grown after construction).
func (t *Thread) IsKernelThread() bool {
	return len(t.userStack) == 0
}

// kernelStackTop returns the address of the highest word of the
// kernel stack — kernel_stack_addr()'s "capacity-1" slot — the value
// installed into the TSS's rsp0 field when this thread is kicked off
// or switched to.
func (t *Thread) kernelStackTop() uint64 {
	return sliceAddr(t.kernelStack) + uint64(len(t.kernelStack)-1)*8
}

func sliceAddr(s []uint64) uint64 {
	if len(s) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&s[0])))
}

// prepareKernelStack writes the synthetic initial frame
// thread_kernel_start expects to pop: from the top down, a dead return
// address, the real entry point (kickoffKernelThread), a starting
// RFLAGS with interrupts enabled, then zeroed r8-r15, rax-rdx, rsi,
// rdi, rbp — exactly prepare_kernel_stack()'s slot assignment, ported
// index-for-index. oldRSP0 ends up pointing at the rbp slot, the
// lowest address thread_kernel_start pops.
func (t *Thread) prepareKernelStack() {
	n := len(t.kernelStack)
	s := t.kernelStack

	s[n-1] = deadReturnAddress
	s[n-2] = kickoffKernelThreadAddr()
	s[n-3] = 0x202 // rflags: IF set

	s[n-4] = 0  // r8
	s[n-5] = 0  // r9
	s[n-6] = 0  // r10
	s[n-7] = 0  // r11
	s[n-8] = 0  // r12
	s[n-9] = 0  // r13
	s[n-10] = 0 // r14
	s[n-11] = 0 // r15

	s[n-12] = 0 // rax
	s[n-13] = 0 // rbx
	s[n-14] = 0 // rcx
	s[n-15] = 0 // rdx

	s[n-16] = 0 // rsi
	s[n-17] = 0 // rdi
	s[n-18] = 0 // rbp

	t.oldRSP0 = sliceAddr(s) + uint64(n-18)*8
}

// prepareUserPromotion overwrites the top seven slots of the synthetic
// frame so that, instead of returning into the kernel entry closure
// directly, threadUserStart pops the preloaded rdi and lands on an
// IRETQ frame that promotes the thread to ring 3 at kickoffUserThread.
// Mirrors switch_to_user_mode()'s slot rewrite: slots n-7 through n-1
// are rewritten, and the slots below them (r12-r15, rax-rdx, rsi, rdi,
// rbp from prepareKernelStack) are left as they were. Pure data
// construction, split out from
// switchToUserMode below so it can be unit-tested without the
// trailing iretq ever executing.
func (t *Thread) prepareUserPromotion() {
	n := len(t.kernelStack)
	s := t.kernelStack

	s[n-7] = 0                           // rdi
	s[n-6] = kickoffUserThreadAddr()     // rip (kickoffUserThread)
	s[n-5] = uint64(gdt.UserCodeSelector) // cs
	s[n-4] = 0x202                       // rflags
	s[n-3] = sliceAddr(t.userStack) + uint64(len(t.userStack)-1)*8 // rsp
	s[n-2] = uint64(gdt.UserDataSelector) // ss
	s[n-1] = deadReturnAddress

	t.oldRSP0 = sliceAddr(s) + uint64(n-7)*8
}

// switchToUserMode calls prepareUserPromotion and then issues the
// actual ring-3 transition via threadUserStart. Never returns.
func (t *Thread) switchToUserMode() {
	t.prepareUserPromotion()
	threadUserStart(t.oldRSP0)
}
