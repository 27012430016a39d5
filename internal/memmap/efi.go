package memmap

import "encoding/binary"

// EFI memory type values from the UEFI specification §7.2
// (EFI_MEMORY_TYPE). Only the handful the kernel treats as usable are
// named; everything else (ACPI reclaim/NVS, MMIO, reserved, etc.) is
// left out and simply compared numerically.
const (
	efiReservedMemoryType  = 0
	efiLoaderCode          = 1
	efiLoaderData          = 2
	efiBootServicesCode    = 3
	efiBootServicesData    = 4
	efiRuntimeServicesCode = 5
	efiRuntimeServicesData = 6
	efiConventionalMemory  = 7
)

// efiUsable reports whether typ is one of the UEFI memory types the
// kernel is free to repurpose once boot services are torn down:
// ordinary free RAM, plus the loader/boot-services regions that become
// free the moment ExitBootServices returns. Runtime-services regions
// are excluded — firmware keeps calling into those after handoff.
func efiUsable(typ uint32) bool {
	switch typ {
	case efiConventionalMemory, efiLoaderCode, efiLoaderData,
		efiBootServicesCode, efiBootServicesData:
		return true
	default:
		return false
	}
}

// efiMemoryDescriptor mirrors EFI_MEMORY_DESCRIPTOR (UEFI spec §7.2).
// NumberOfPages counts 4 KiB pages regardless of the descriptor's own
// declared size, matching the wire layout the firmware actually hands
// back from GetMemoryMap.
type efiMemoryDescriptor struct {
	Type          uint32
	_             uint32 // padding to align PhysicalStart on amd64
	PhysicalStart uint64
	VirtualStart  uint64
	NumberOfPages uint64
	Attribute     uint64
}

const efiDescriptorWireSize = 40

// efiMapCursor walks a raw EFI memory map buffer whose per-entry stride
// may exceed efiDescriptorWireSize (the firmware is free to report a
// larger DescriptorSize to reserve room for future fields; callers must
// always stride by the reported size, never assume struct size).
type efiMapCursor struct {
	buf            []byte
	descriptorSize uint64
	off            int
}

func newEFIMapCursor(buf []byte, descriptorSize uint64) *efiMapCursor {
	if descriptorSize < efiDescriptorWireSize {
		descriptorSize = efiDescriptorWireSize
	}
	return &efiMapCursor{buf: buf, descriptorSize: descriptorSize}
}

func (c *efiMapCursor) nextDescriptor() (efiMemoryDescriptor, bool) {
	if c.off+int(c.descriptorSize) > len(c.buf) || c.off+efiDescriptorWireSize > len(c.buf) {
		return efiMemoryDescriptor{}, false
	}
	raw := c.buf[c.off : c.off+efiDescriptorWireSize]
	c.off += int(c.descriptorSize)

	var d efiMemoryDescriptor
	d.Type = binary.LittleEndian.Uint32(raw[0:4])
	d.PhysicalStart = binary.LittleEndian.Uint64(raw[8:16])
	d.VirtualStart = binary.LittleEndian.Uint64(raw[16:24])
	d.NumberOfPages = binary.LittleEndian.Uint64(raw[24:32])
	d.Attribute = binary.LittleEndian.Uint64(raw[32:40])
	return d, true
}

// entryFromDescriptor applies the EFI-family alignment rule described
// in align.go: the start is rounded up, the raw page count is kept
// as-is and added to the rounded start to get the end.
func entryFromDescriptor(d efiMemoryDescriptor) entry {
	return entry{
		usable: efiUsable(d.Type),
		start:  d.PhysicalStart,
		pages:  d.NumberOfPages,
		rng:    rangeFromAlignedStart(d.PhysicalStart, d.NumberOfPages),
	}
}

// efiLiveSource implements mapSource over the final memory map handed
// back when boot services are exited (EFIBootServices.ExitBootServices
// in internal/boot). The caller is expected to
// have already copied the map into a plain byte buffer — this type
// does not itself call any UEFI boot service.
type efiLiveSource struct {
	cur *efiMapCursor
}

// NewEFILiveSource builds a mapSource over a raw EFI memory map buffer
// and its firmware-reported per-descriptor stride.
func NewEFILiveSource(buf []byte, descriptorSize uint64) mapSource {
	return &efiLiveSource{cur: newEFIMapCursor(buf, descriptorSize)}
}

func (s *efiLiveSource) next() (entry, bool) {
	d, ok := s.cur.nextDescriptor()
	if !ok {
		return entry{}, false
	}
	return entryFromDescriptor(d), true
}

// efiMultiboot2Source implements mapSource over the UEFI memory map
// snapshot the loader embeds inside multiboot2 info's tagEFIMemoryMap
// tag, for the case where boot services were already exited by the
// time the kernel runs.
type efiMultiboot2Source struct {
	cur *efiMapCursor
}

// NewEFIMultiboot2Source builds a mapSource over info's embedded UEFI
// memory map tag, if present.
func NewEFIMultiboot2Source(i *Info) (mapSource, bool) {
	body, ok := i.findTag(tagEFIMemoryMap)
	if !ok || len(body) < 8 {
		return nil, false
	}
	descriptorSize := uint64(binary.LittleEndian.Uint32(body[0:4]))
	// body[4:8] is the EFI descriptor version, not needed for decoding.
	return &efiMultiboot2Source{cur: newEFIMapCursor(body[8:], descriptorSize)}, true
}

func (s *efiMultiboot2Source) next() (entry, bool) {
	d, ok := s.cur.nextDescriptor()
	if !ok {
		return entry{}, false
	}
	return entryFromDescriptor(d), true
}
