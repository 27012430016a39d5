package thread

// RSP0Setter is the minimal TSS surface this package needs: the one
// field a context switch actually touches. internal/gdt.TSS satisfies
// this directly; tests substitute a fake.
type RSP0Setter interface {
	SetRSP0(uint64)
}

// activeTSS is the one TSS this kernel installs during boot
// (internal/gdt.Load); StartFirst and every Switch keep its rsp0
// field current for whichever thread is about to run in ring 0 —
// tss_set_rsp0()'s target in the reference kernel's thread_switch. The
// same *gdt.TSS instance is separately handed to
// syscallentry.SetActiveTSS by the boot sequencer, since the naked
// SYSCALL trampoline needs its own raw-pointer route to rsp0 that does
// not go through this interface.
var activeTSS RSP0Setter

// SetActiveTSS wires the TSS instance Switch/StartFirst update on
// every transition. Must be called once during boot before the first
// thread runs.
func SetActiveTSS(t RSP0Setter) {
	activeTSS = t
}

// StartFirst transfers control to thread for the very first time. It
// never returns — thread_kernel_start (asm_amd64.s) pops the synthetic
// frame prepareKernelStack built and falls straight into
// kickoffKernelThread.
func StartFirst(t *Thread) {
	activeTSS.SetRSP0(t.kernelStackTop())
	threadKernelStart(t.oldRSP0)
}

// Switch saves current's register state onto its own kernel stack,
// records current's new stack pointer in current.oldRSP0, and resumes
// next — installing next's kernel stack top into the TSS and loading
// its address space's page tables, exactly as thread_switch does.
// Returns once current is resumed by some future Switch call.
func Switch(current, next *Thread) {
	threadSwitch(&current.oldRSP0, next.oldRSP0, next.kernelStackTop(), next.addressSpace.PageTableAddress())
}
