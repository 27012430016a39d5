package thread

import "reflect"

// Scheduler is the subset of scheduling policy the kickoff path needs:
// which thread is running, marking the first thread as the steady
// state, and tearing a thread down once its entry function returns.
// Scheduling policy itself (run queues, preemption) is a peripheral
// collaborator — this interface is the only contract
// internal/thread has on it, mirrored by internal/boot's own Scheduler
// collaborator interface.
type Scheduler interface {
	CurrentThread() *Thread
	SetInit()
	Exit()
}

// activeScheduler is set once during boot; the kickoff entry points
// below are called from assembly with no way to thread a parameter
// through, so they reach it via this package-level handle, the same
// shape original_source's kickoff_kernel_thread uses a global
// `scheduler()` accessor for.
var activeScheduler Scheduler

// SetScheduler installs the scheduler kickoffKernelThread and
// kickoffUserThread consult. Must be called before the first thread is
// started.
func SetScheduler(s Scheduler) {
	activeScheduler = s
}

// kickoffKernelThread is the Go-level landing pad
// thread_kernel_start's synthetic stack frame returns into. It mirrors
// kickoff_kernel_thread(): fetch the current thread from the
// scheduler, mark the scheduler initialized, run the thread's entry
// closure (or promote it to user mode first, for a user thread), then
// tell the scheduler this thread is done.
func kickoffKernelThread() {
	s := activeScheduler
	t := s.CurrentThread()
	s.SetInit()

	if t.IsKernelThread() {
		t.entry()
	} else {
		t.switchToUserMode()
	}

	s.Exit()
}

// kickoffUserThread is switchToUserMode's synthetic IRETQ frame's
// landing pad: by the time this runs the CPU is already executing at
// ring 3, so all that is left is to invoke the entry closure. It then
// returns: unlike kickoff_user_thread()'s entry()-then-usr_thread_exit()
// shape, it does not issue the SyscallThreadExit syscall itself.
func kickoffUserThread() {
	s := activeScheduler
	t := s.CurrentThread()
	t.entry()
	// No thread-exit syscall is issued here; this Go-level stub exists
	// for parity with the reference kernel's structure and as the
	// documented contract for what a freestanding build's assembly
	// trampoline calls after iretq.
}

// kickoffKernelThreadAddr and kickoffUserThreadAddr return the raw
// code addresses prepareKernelStack and prepareUserPromotion
// (thread.go) write into the synthetic stack frames that
// asm_amd64.s's trampolines pop. Go has no `&funcName` address-of syntax
// for this, so the address is recovered through reflect the way other
// freestanding Go kernels (see iansmith-mazarin's linkname-based
// function-pointer capture) obtain a callable raw address from a Go
// function value.
func kickoffKernelThreadAddr() uint64 {
	return uint64(reflect.ValueOf(kickoffKernelThread).Pointer())
}

func kickoffUserThreadAddr() uint64 {
	return uint64(reflect.ValueOf(kickoffUserThread).Pointer())
}
