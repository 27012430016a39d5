package boot

import (
	"fmt"
	"unsafe"

	"hhutos/internal/acpi"
	"hhutos/internal/frame"
	"hhutos/internal/gdt"
	"hhutos/internal/logging"
	"hhutos/internal/memmap"
	"hhutos/internal/syscallentry"
	"hhutos/internal/thread"
)

// Config gathers every collaborator and constant the fixed boot order
// needs. Every field is supplied by the caller — Sequencer.Start
// itself owns none of this state, matching the way tinyrange-cc's
// chipset is handed already-constructed devices rather than
// constructing them itself.
type Config struct {
	// Magic and Info are exactly what the multiboot2-compliant loader
	// places in rax/rbx, already copied into a Go-visible byte slice
	// by the caller's assembly entry stub.
	Magic uint32
	Info  []byte

	// NullPage and KernelImage are the two fixed reservations cut out
	// of the scanned region list before it reaches PhysicalMemory,
	// matching the unchanged
	// cut(cut(cut(raw, null_page), kernel_image), bootstrap_heap) rule.
	NullPage    frame.Range
	KernelImage frame.Range

	Logger   Logger
	LogSinks []logging.Sink
	Build    BuildInfo

	Allocator      Allocator
	PhysicalMemory PhysicalMemory
	AddressSpaces  AddressSpaceFactory

	// TSS is the single process-wide Task State Segment; its rsp0 is
	// written by the context-switch and first-launch trampolines, not
	// by this package (see internal/thread).
	TSS *gdt.TSS

	// EFI is consulted only if the multiboot2 info says boot services
	// were still live; nil otherwise.
	EFI EFIBootServices

	// EFIExitKind is the EFI memory type ExitBootServices is asked to
	// reclassify the exited region as (LOADER_DATA per the unchanged
	// contract); the caller supplies the numeric value so this package
	// doesn't need its own copy of the UEFI memory-type table.
	EFIExitKind uint32

	// Firmware receives the UEFI runtime system table address once
	// Start has it, whichever of the two ways it was obtained. Nil if
	// the caller has no UEFI runtime collaborator.
	Firmware EFIRuntime

	// Devices are brought up strictly in order: serial, terminal,
	// ACPI, IDT, syscall MSRs, APIC, timer, PS/2 — the unchanged fixed
	// order.
	Devices []Device

	// EnableInterrupts is called once every device in Devices has
	// started, i.e. once the IDT and APIC are known valid — "enable
	// interrupts only once the IDT and APIC are valid."
	EnableInterrupts func()

	Scheduler  Scheduler
	ShellEntry thread.EntryFunc
}

// Sequencer runs the fixed ten-step boot order once, end to end. It
// holds no state of its own between steps — there is exactly one boot
// per kernel lifetime.
type Sequencer struct{}

// Start runs every step in order, returning the first fatal error
// encountered. Its caller, Entry, logs the error through whatever sink
// survived and halts — every boot failure is unconditionally fatal by
// contract.
//
// On a real boot Start never returns on success either: the last step
// hands control to Scheduler.Start, which does not return. Keeping
// the sequencing logic itself callable against fakes from a hosted Go
// test is why it is expressed as an ordinary function returning error
// rather than the `-> !` entry symbol itself; the genuinely
// non-returning entry point is Entry below, a thin wrapper that calls
// Start and halts if it ever comes back.
func (Sequencer) Start(cfg Config) error {
	// Step 1: install the logger. Must not allocate — sinks are
	// registered before anything below touches the heap. Locking
	// immediately after matches the reference kernel registering every
	// expected sink up front, then never allowing more.
	for _, sink := range cfg.LogSinks {
		cfg.Logger.Register(sink)
	}
	cfg.Logger.Lock()

	// Step 2: validate the multiboot2 magic and load the info
	// structure.
	info, err := memmap.LoadInfo(cfg.Magic, cfg.Info)
	if err != nil {
		return fmt.Errorf("boot: load multiboot2 info: %w", err)
	}

	// A missing RSDP is fatal, the same as every other boot-time
	// collaborator failure: there is no ACPI without it. Resolved here,
	// right after the info structure is available, so the device loop
	// in step 8 can hand it to whichever device is the ACPI collaborator.
	rsdpAddr, ok := info.RSDPAddress()
	if !ok {
		return fmt.Errorf("boot: %w", acpi.ErrNoRSDP)
	}
	acpiHandoff, err := acpi.NewHandoff(uint64(rsdpAddr))
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	// Steps 3 and 4 are interleaved: if UEFI boot services are still
	// live, ExitBootServices is what produces the final memory map, so
	// the exit call has to happen before scanning can run even though
	// it is nominally the later step. The unchanged constraint — exit
	// before GDT install — still holds, since both run before step 5
	// below.
	regions, heap, runtimeTable, err := scanMemory(info, cfg)
	if err != nil {
		return fmt.Errorf("boot: scan memory map: %w", err)
	}
	firmwareKnown := runtimeTable != 0
	if firmwareKnown && cfg.Firmware != nil {
		cfg.Firmware.SetRuntimeTable(runtimeTable)
	}

	if err := cfg.Allocator.Init(heap); err != nil {
		return fmt.Errorf("boot: init bootstrap heap: %w", err)
	}

	// Format-string logging is safe from here on; log build metadata
	// exactly where the reference kernel logs its version banner
	// (after the heap exists).
	logging.WithSource("boot").Infof("%s", cfg.Build.String())
	if cmdline, ok := info.CommandLine(); ok {
		// Logged verbatim, never parsed — the only configuration
		// surface this core has, and it isn't this core's to interpret.
		logging.WithSource("boot").Infof("command line: %s", cmdline)
	}

	// Step 5: install GDT/TSS, reload segment registers.
	table := gdt.Descriptors(tssAddr(cfg.TSS))
	gdt.Load(table[:], gdt.TSSSelector)
	syscallentry.SetActiveTSS(cfg.TSS)
	thread.SetActiveTSS(cfg.TSS)

	// Step 6: reduce the raw region list to what's actually available
	// and hand it to the frame allocator.
	available := memmap.Cut(memmap.Cut(memmap.Cut(regions, cfg.NullPage), cfg.KernelImage), heap)
	if err := cfg.PhysicalMemory.Init(available, uint64(heap.End)); err != nil {
		return fmt.Errorf("boot: init physical memory: %w", err)
	}

	// Step 7: create the kernel address space. CR3 is not written here:
	// the only CR3 load in this core is in thread.Switch, which loads
	// the page tables of the thread being switched to.
	kernelSpace := cfg.AddressSpaces.KernelAddressSpace()

	// Step 8: bring up devices in the caller-supplied order, handing
	// the ACPI collaborator its RSDP handoff first, then enable
	// interrupts only once every device — including the IDT and APIC —
	// is up.
	for _, d := range cfg.Devices {
		if recv, ok := d.Impl.(ACPIHandoffReceiver); ok {
			recv.SetACPIHandoff(acpiHandoff)
		}
		if err := d.Impl.Start(); err != nil {
			return fmt.Errorf("boot: start device %q: %w", d.Name, err)
		}
	}
	if cfg.EnableInterrupts != nil {
		cfg.EnableInterrupts()
	}

	// Step 9: resurrect the UEFI runtime system table from the
	// multiboot2 info, if step 4 didn't already hand one back directly.
	if !firmwareKnown {
		if addr, ok := info.EFISystemTable64(); ok && cfg.Firmware != nil {
			cfg.Firmware.SetRuntimeTable(uint64(addr))
		}
	}

	// Step 10: create the initial shell thread, ready it, and start
	// the scheduler. The scheduler owns the run loop from here.
	initThread := thread.NewKernelThread(0, kernelSpace, cfg.ShellEntry)
	thread.SetScheduler(cfg.Scheduler)
	cfg.Scheduler.Ready(initThread)
	if err := cfg.Scheduler.Start(); err != nil {
		return fmt.Errorf("boot: start scheduler: %w", err)
	}
	return nil
}

// Entry is the real, genuinely non-returning boot target: the
// assembly stub that receives control from the multiboot2-compliant
// loader with the magic in one register and the info pointer in
// another copies both into cfg, calls Entry, and never regains
// control. A failed Start is logged through whatever sink survived
// and then halted on rather than propagated, since there is no caller
// left to hand an error to once control has left the loader.
//
// Entry itself still needs a host: building the linker script and
// minimal runtime bootstrap that let a Go binary run with no OS under
// it is infrastructure outside any one package here, so this function
// is the boundary this repository stops at — everything above it
// (Sequencer.Start and its collaborators) is what gets exercised by
// tests.
//
// Entry cannot itself be exercised by a hosted test: halt executes HLT
// and STI, both privileged instructions that fault in ring 3. Its
// contract is documented here rather than tested, the same boundary
// drawn around syscallentry's assembly trampoline.
func Entry(cfg Config) {
	if err := (Sequencer{}).Start(cfg); err != nil {
		cfg.Logger.Lock() // idempotent if step 1 already locked it
		logging.WithSource("boot").Errorf("fatal boot error: %v", err)
	}
	for {
		halt()
	}
}

// scanMemory picks whichever of the three memory-map sources applies
// and runs the generic scanner over it. Resolving boot services first
// (when live) and falling back through the embedded-UEFI-map tag to
// the native multiboot2 map mirrors the reference kernel's own
// priority order for "which map is authoritative". The returned
// runtimeTable is the UEFI runtime system table address handed back by
// ExitBootServices, or 0 if this path wasn't taken — scanMemory is the
// only place that ever calls ExitBootServices, so it's the only place
// that can produce this value directly.
func scanMemory(info *memmap.Info, cfg Config) (regions []frame.Range, heap frame.Range, runtimeTable uint64, err error) {
	if info.EFIBootServicesNotExited() {
		if cfg.EFI == nil {
			return nil, frame.Range{}, 0, fmt.Errorf("boot services are live but no EFIBootServices collaborator was supplied")
		}
		table, mapBuf, descriptorSize, err := cfg.EFI.ExitBootServices(cfg.EFIExitKind)
		if err != nil {
			return nil, frame.Range{}, 0, fmt.Errorf("exit boot services: %w", err)
		}
		src := memmap.NewEFILiveSource(mapBuf, uint64(descriptorSize))
		regions, heap, err = memmap.Scan(src, uint64(cfg.KernelImage.End))
		return regions, heap, table, err
	}

	if src, ok := memmap.NewEFIMultiboot2Source(info); ok {
		regions, heap, err = memmap.Scan(src, uint64(cfg.KernelImage.End))
		return regions, heap, 0, err
	}

	if src, ok := memmap.NewMultiboot2NativeSource(info); ok {
		regions, heap, err = memmap.Scan(src, uint64(cfg.KernelImage.End))
		return regions, heap, 0, err
	}

	return nil, frame.Range{}, 0, fmt.Errorf("no memory map tag present in multiboot2 info")
}

func tssAddr(t *gdt.TSS) uint64 {
	return uint64(uintptr(unsafe.Pointer(t)))
}
