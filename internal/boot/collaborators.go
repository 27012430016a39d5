// Package boot orders the steps that take a freshly entered CPU from
// "multiboot2 handed us a pointer" to "the first shell thread is
// running", calling out to collaborators it only knows as interfaces.
// Sequencer itself owns none of their implementations — paging policy,
// frame allocation, scheduling policy and every peripheral device are
// supplied by the caller, the same separation tinyrange-cc draws
// between its chipset (owns device lifecycle) and the devices
// themselves (own their own state).
package boot

import (
	"hhutos/internal/acpi"
	"hhutos/internal/frame"
	"hhutos/internal/logging"
	"hhutos/internal/thread"
)

// Device is one peripheral collaborator with a start/stop/reset
// lifecycle: serial, terminal, ACPI, timer, PS/2, APIC. Named and
// shaped after tinyrange-cc/internal/chipset/device.go's
// ChangeDeviceState — this core has no port-IO/MMIO dispatch of its
// own to add on top, so only the lifecycle half of that interface
// survives the adaptation.
type Device struct {
	Name string
	Impl ChangeDeviceState
}

// ChangeDeviceState is the lifecycle every Device implementation
// exposes.
type ChangeDeviceState interface {
	Start() error
	Stop() error
	Reset() error
}

// ACPIHandoffReceiver is implemented by whichever entry in cfg.Devices
// represents the ACPI collaborator. Start type-asserts for it once the
// RSDP address is known (right after the multiboot2 info is loaded)
// and, when present, hands it the Handoff before that device's own
// Start runs — Sequencer never needs to know which Devices entry is
// "the ACPI one" by name.
type ACPIHandoffReceiver interface {
	SetACPIHandoff(h acpi.Handoff)
}

// EFIRuntime receives the UEFI runtime system table's physical
// address once it is known, however it ends up known: handed back
// directly by EFIBootServices.ExitBootServices when this kernel exits
// boot services itself, or reconstructed from the multiboot2 info's
// stored EFI system table pointer when boot services were already
// exited before this kernel started. Optional — nil if the caller has
// no use for UEFI runtime services.
type EFIRuntime interface {
	SetRuntimeTable(addr uint64)
}

// Logger is the subset of internal/logging's package-level API the
// sequencer depends on, expressed as an interface so step 1 ("install
// the logger") can be exercised against a fake in tests instead of
// mutating the real package-global sink list.
type Logger interface {
	Register(sink logging.Sink)
	Lock()
}

// Allocator seeds the global heap allocator over a single physical
// range once the bootstrap heap region has been chosen.
type Allocator interface {
	Init(heap frame.Range) error
}

// PhysicalMemory seeds the frame allocator with the reduced region
// list plus the first address above which frames are free to hand
// out.
type PhysicalMemory interface {
	Init(regions []frame.Range, firstFreeAbove uint64) error
}

// AddressSpace is the paging collaborator's per-space handle: the CR3
// value threads load on switch (embedding thread.AddressSpace so a
// *boot.AddressSpace satisfies both this package and internal/thread
// without duplication), plus the mapping operation the sequencer and
// later the loader use to install the kernel image, heap, and
// per-thread user stacks.
type AddressSpace interface {
	thread.AddressSpace
	Map(rng frame.Range, kind SpaceKind, flags MapFlags) error
}

// SpaceKind distinguishes a mapping meant for kernel-only access from
// one a ring-3 thread may touch.
type SpaceKind int

const (
	SpaceKernel SpaceKind = iota
	SpaceUser
)

// MapFlags mirrors the handful of page-table bits AddressSpace.Map
// cares about; the collaborator owns the full page-table format.
type MapFlags struct {
	Writable bool
}

// AddressSpaceFactory constructs address spaces: the one shared
// kernel address space every kernel thread runs in, and a fresh space
// per user thread.
type AddressSpaceFactory interface {
	KernelAddressSpace() AddressSpace
	CreateAddressSpace() (AddressSpace, error)
}

// Scheduler is the full policy collaborator the sequencer hands
// control to once boot finishes: thread readiness, the run loop
// (Start never returns on a real kernel), and the
// CurrentThread/SetInit/Exit trio internal/thread's kickoff functions
// call through thread.Scheduler. Embedding that interface keeps the
// two packages' expectations of "the scheduler" from drifting apart.
type Scheduler interface {
	thread.Scheduler

	Ready(t *thread.Thread)
	Start() error
	Join(id uint64)
}

// EFIBootServices models the UEFI boot-services handoff as a
// collaborator rather than a concrete UEFI binding: the boot
// sequencer only needs to ask "give me the runtime system table and
// final memory map" without this package knowing anything about the
// EFI calling convention itself. kind is the EFI memory type to
// request the exited-region be reclassified as (LOADER_DATA per the
// unchanged contract).
type EFIBootServices interface {
	ExitBootServices(kind uint32) (runtimeTable uint64, mapBuf []byte, descriptorSize uint32, err error)
}
