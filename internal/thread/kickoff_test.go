package thread

import "testing"

type fakeScheduler struct {
	current    *Thread
	initCalled bool
	exitCalled bool
}

func (f *fakeScheduler) CurrentThread() *Thread { return f.current }
func (f *fakeScheduler) SetInit()               { f.initCalled = true }
func (f *fakeScheduler) Exit()                  { f.exitCalled = true }

// kickoffKernelThread's user-thread branch calls switchToUserMode,
// which issues a real iretq — not something a hosted test can safely
// exercise. Only the kernel-thread branch is covered here; the
// register-contract half of thread promotion is documented, not
// tested (see asm_amd64.s).
func TestKickoffKernelThreadRunsEntryAndExits(t *testing.T) {
	ran := false
	th := NewKernelThread(1, fakeAddressSpace{}, func() { ran = true })
	sched := &fakeScheduler{current: th}
	SetScheduler(sched)

	kickoffKernelThread()

	if !ran {
		t.Error("entry closure was not called")
	}
	if !sched.initCalled {
		t.Error("SetInit() was not called")
	}
	if !sched.exitCalled {
		t.Error("Exit() was not called")
	}
}

func TestKickoffAddressesAreStable(t *testing.T) {
	if kickoffKernelThreadAddr() == 0 {
		t.Error("kickoffKernelThreadAddr() = 0, want a valid code address")
	}
	if kickoffUserThreadAddr() == 0 {
		t.Error("kickoffUserThreadAddr() = 0, want a valid code address")
	}
	if kickoffKernelThreadAddr() == kickoffUserThreadAddr() {
		t.Error("kickoffKernelThreadAddr and kickoffUserThreadAddr must differ")
	}
}
