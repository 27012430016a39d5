package boot

import (
	"encoding/binary"
	"errors"
	"testing"

	"hhutos/internal/acpi"
	"hhutos/internal/frame"
	"hhutos/internal/gdt"
	"hhutos/internal/logging"
	"hhutos/internal/thread"
)

const mb2Magic = 0x36d76289

const (
	tagMemoryMap                = 6
	tagEFIBootServicesNotExited = 18
	tagACPINewRSDP              = 15
)

func buildTag(buf []byte, typ uint32, body []byte) []byte {
	size := uint32(8 + len(body))
	hdr := make([]byte, 8)
	binary.LittleEndian.PutUint32(hdr[0:4], typ)
	binary.LittleEndian.PutUint32(hdr[4:8], size)
	buf = append(buf, hdr...)
	buf = append(buf, body...)
	for len(buf)%8 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

func buildInfo(tags []byte) []byte {
	total := 8 + len(tags) + 8
	out := make([]byte, 8)
	binary.LittleEndian.PutUint32(out[0:4], uint32(total))
	out = append(out, tags...)
	out = append(out, make([]byte, 8)...)
	return out
}

func mbMemEntry(base, length uint64, typ uint32) []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint64(b[0:8], base)
	binary.LittleEndian.PutUint64(b[8:16], length)
	binary.LittleEndian.PutUint32(b[16:20], typ)
	return b
}

// efiDescriptor builds one raw 40-byte EFI_MEMORY_DESCRIPTOR-shaped
// entry: 4-byte type, 4-byte padding, then PhysicalStart, VirtualStart,
// NumberOfPages, Attribute as 8-byte fields.
func efiDescriptor(typ uint32, start, pages uint64) []byte {
	b := make([]byte, 40)
	binary.LittleEndian.PutUint32(b[0:4], typ)
	binary.LittleEndian.PutUint64(b[8:16], start)
	binary.LittleEndian.PutUint64(b[24:32], pages)
	return b
}

func minimalMB2Info() []byte {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint32(body[0:4], 24) // entry size
	// one huge usable region, comfortably above any kernel image used
	// in these tests and large enough to host the bootstrap heap.
	body = append(body, mbMemEntry(0x200000, 0x10000000, 1)...)

	var tags []byte
	tags = buildTag(tags, tagMemoryMap, body)
	tags = buildTag(tags, tagACPINewRSDP, []byte{1})
	return buildInfo(tags)
}

// minimalMB2InfoNoRSDP is identical to minimalMB2Info but omits the
// RSDP tag, for exercising the "no ACPI" fatal path.
func minimalMB2InfoNoRSDP() []byte {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint32(body[0:4], 24)
	body = append(body, mbMemEntry(0x200000, 0x10000000, 1)...)

	var tags []byte
	tags = buildTag(tags, tagMemoryMap, body)
	return buildInfo(tags)
}

// efiLiveMB2Info builds an info blob with boot services still live (no
// memory-map tag of its own — scanMemory resolves the live EFI
// memory map through the EFIBootServices collaborator instead), but
// still carrying an RSDP tag since that resolution is independent of
// which memory-map source applies.
func efiLiveMB2Info() []byte {
	var tags []byte
	tags = buildTag(tags, tagEFIBootServicesNotExited, nil)
	tags = buildTag(tags, tagACPINewRSDP, []byte{1})
	return buildInfo(tags)
}

type fakeLogger struct {
	registered []logging.Sink
	locked     bool
}

func (f *fakeLogger) Register(s logging.Sink) { f.registered = append(f.registered, s) }
func (f *fakeLogger) Lock()                   { f.locked = true }

type fakeAllocator struct{ initHeap frame.Range }

func (f *fakeAllocator) Init(heap frame.Range) error {
	f.initHeap = heap
	return nil
}

type fakePhysicalMemory struct {
	regions        []frame.Range
	firstFreeAbove uint64
}

func (f *fakePhysicalMemory) Init(regions []frame.Range, firstFreeAbove uint64) error {
	f.regions = regions
	f.firstFreeAbove = firstFreeAbove
	return nil
}

type fakeAddressSpace struct{ cr3 uint64 }

func (f fakeAddressSpace) PageTableAddress() uint64 { return f.cr3 }
func (f fakeAddressSpace) Map(frame.Range, SpaceKind, MapFlags) error {
	return nil
}

type fakeAddressSpaceFactory struct{}

func (fakeAddressSpaceFactory) KernelAddressSpace() AddressSpace {
	return fakeAddressSpace{cr3: 0x1000}
}
func (fakeAddressSpaceFactory) CreateAddressSpace() (AddressSpace, error) {
	return fakeAddressSpace{}, nil
}

type fakeScheduler struct {
	current    *thread.Thread
	readied    []*thread.Thread
	started    bool
	initCalled bool
}

func (f *fakeScheduler) CurrentThread() *thread.Thread { return f.current }
func (f *fakeScheduler) SetInit()                      { f.initCalled = true }
func (f *fakeScheduler) Exit()                         {}
func (f *fakeScheduler) Ready(t *thread.Thread)        { f.readied = append(f.readied, t) }
func (f *fakeScheduler) Start() error                  { f.started = true; return nil }
func (f *fakeScheduler) Join(uint64)                   {}

type fakeDevice struct {
	name    string
	started bool
	fail    bool
	handoff acpi.Handoff
}

func (f *fakeDevice) Start() error {
	f.started = true
	if f.fail {
		return errors.New("boom")
	}
	return nil
}
func (f *fakeDevice) Stop() error  { return nil }
func (f *fakeDevice) Reset() error { return nil }

// SetACPIHandoff makes every fakeDevice satisfy ACPIHandoffReceiver,
// mirroring how an ACPI device would be the one Devices entry that
// actually implements this optional interface.
func (f *fakeDevice) SetACPIHandoff(h acpi.Handoff) { f.handoff = h }

type fakeFirmware struct {
	addr uint64
	set  bool
}

func (f *fakeFirmware) SetRuntimeTable(addr uint64) {
	f.addr = addr
	f.set = true
}

type fakeEFIBootServices struct {
	runtimeTable   uint64
	mapBuf         []byte
	descriptorSize uint32
	fail           bool
}

func (f *fakeEFIBootServices) ExitBootServices(kind uint32) (uint64, []byte, uint32, error) {
	if f.fail {
		return 0, nil, 0, errors.New("exit boot services failed")
	}
	return f.runtimeTable, f.mapBuf, f.descriptorSize, nil
}

func baseConfig() (Config, *fakeScheduler, *fakeLogger) {
	sched := &fakeScheduler{}
	logger := &fakeLogger{}
	return Config{
		Magic:          mb2Magic,
		Info:           minimalMB2Info(),
		NullPage:       frame.Range{Start: 0, End: frame.PageSize},
		KernelImage:    frame.Range{Start: 0x100000, End: 0x140000},
		Logger:         logger,
		LogSinks:       nil,
		Build:          BuildInfo{ModuleVersion: "test"},
		Allocator:      &fakeAllocator{},
		PhysicalMemory: &fakePhysicalMemory{},
		AddressSpaces:  fakeAddressSpaceFactory{},
		TSS:            &gdt.TSS{},
		Scheduler:      sched,
		ShellEntry:     func() {},
	}, sched, logger
}

func TestSequencerStartRunsAllStepsAndStartsScheduler(t *testing.T) {
	cfg, sched, logger := baseConfig()
	dev := &fakeDevice{name: "serial"}
	cfg.Devices = []Device{{Name: "serial", Impl: dev}}
	interruptsEnabled := false
	cfg.EnableInterrupts = func() { interruptsEnabled = true }

	if err := (Sequencer{}).Start(cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !logger.locked {
		t.Error("logger was never locked")
	}
	if !dev.started {
		t.Error("device was never started")
	}
	if !interruptsEnabled {
		t.Error("EnableInterrupts was never called")
	}
	if !sched.started {
		t.Error("scheduler.Start() was never called")
	}
	if len(sched.readied) != 1 {
		t.Fatalf("len(readied) = %d, want 1", len(sched.readied))
	}
	if sched.readied[0].ID() != 0 {
		t.Errorf("initial thread id = %d, want 0", sched.readied[0].ID())
	}
}

func TestSequencerStartFailsOnBadMagic(t *testing.T) {
	cfg, _, _ := baseConfig()
	cfg.Magic = 0xbadc0de
	if err := (Sequencer{}).Start(cfg); err == nil {
		t.Fatal("expected error for bad multiboot2 magic")
	}
}

func TestSequencerStartFailsWhenDeviceFails(t *testing.T) {
	cfg, _, _ := baseConfig()
	dev := &fakeDevice{name: "serial", fail: true}
	cfg.Devices = []Device{{Name: "serial", Impl: dev}}
	if err := (Sequencer{}).Start(cfg); err == nil {
		t.Fatal("expected error when a device fails to start")
	}
}

func TestSequencerStartFailsWhenRSDPMissing(t *testing.T) {
	cfg, _, _ := baseConfig()
	cfg.Info = minimalMB2InfoNoRSDP()
	err := (Sequencer{}).Start(cfg)
	if err == nil {
		t.Fatal("expected error when no RSDP tag is present")
	}
	if !errors.Is(err, acpi.ErrNoRSDP) {
		t.Errorf("Start() error = %v, want wrapping acpi.ErrNoRSDP", err)
	}
}

func TestSequencerStartDeliversACPIHandoffToDevices(t *testing.T) {
	cfg, _, _ := baseConfig()
	acpiDev := &fakeDevice{name: "acpi"}
	cfg.Devices = []Device{{Name: "acpi", Impl: acpiDev}}

	if err := (Sequencer{}).Start(cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if acpiDev.handoff.RSDPAddress == 0 {
		t.Error("ACPI device never received a non-zero RSDP handoff")
	}
}

func TestSequencerStartExitsLiveBootServicesAndSetsFirmwareTable(t *testing.T) {
	cfg, _, _ := baseConfig()
	cfg.Info = efiLiveMB2Info()

	var mapBuf []byte
	mapBuf = append(mapBuf, efiDescriptor(7 /* conventional memory */, 0x200000, 0x10000)...)
	cfg.EFI = &fakeEFIBootServices{
		runtimeTable:   0xdeadbeef,
		mapBuf:         mapBuf,
		descriptorSize: 40,
	}
	firmware := &fakeFirmware{}
	cfg.Firmware = firmware

	if err := (Sequencer{}).Start(cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !firmware.set || firmware.addr != 0xdeadbeef {
		t.Errorf("firmware.addr = 0x%x, set = %v; want 0xdeadbeef, true", firmware.addr, firmware.set)
	}
}

func TestSequencerStartFailsWhenBootServicesLiveButNoCollaborator(t *testing.T) {
	cfg, _, _ := baseConfig()
	cfg.Info = efiLiveMB2Info()
	cfg.EFI = nil
	if err := (Sequencer{}).Start(cfg); err == nil {
		t.Fatal("expected error when boot services are live but no EFIBootServices collaborator was supplied")
	}
}

func TestSequencerStartPassesReducedRegionsToPhysicalMemory(t *testing.T) {
	cfg, _, _ := baseConfig()
	pm := &fakePhysicalMemory{}
	cfg.PhysicalMemory = pm
	if err := (Sequencer{}).Start(cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(pm.regions) == 0 {
		t.Error("expected at least one available region handed to PhysicalMemory")
	}
	for _, r := range pm.regions {
		if r.Start >= cfg.NullPage.Start && r.End <= cfg.NullPage.End {
			t.Errorf("region %v overlaps the cut null page", r)
		}
	}
}
