package memmap

import (
	"encoding/binary"
	"unsafe"
)

// Multiboot2 tag/type constants from the Multiboot2 specification
// (https://www.gnu.org/software/grub/manual/multiboot2/multiboot2.html).
// Wire-struct decoding here follows the same fixed-layout-struct-over-
// encoding/binary idiom as n-canter-u-root/pkg/multiboot's MemoryMap
// type, adapted to tagged (variable-length) records instead of a flat
// array.
const (
	mb2Magic = 0x36d76289

	tagEnd                      = 0
	tagBootCmdline              = 1
	tagBootLoaderName           = 2
	tagModule                   = 3
	tagBasicMemInfo             = 4
	tagBIOSBootDevice           = 5
	tagMemoryMap                = 6
	tagFramebuffer              = 8
	tagEFI32SystemTable         = 11
	tagEFI64SystemTable         = 12
	tagACPIOldRSDP              = 14
	tagACPINewRSDP              = 15
	tagEFIMemoryMap             = 17
	tagEFIBootServicesNotExited = 18
	tagEFI64ImageHandle         = 20
	tagEFI64SDTPointer          = 21
)

// tagHeader is the 8-byte header common to every multiboot2 tag.
type tagHeader struct {
	Type uint32
	Size uint32
}

// Info is a parsed view over a multiboot2 boot information structure,
// a tag cursor in the spirit of the Rust BootInformation wrapper used
// by original_source/os/kernel/src/boot.rs, but backed directly by the
// raw bytes handed to the kernel entry point (no allocation required:
// this has to work before the heap exists).
type Info struct {
	data []byte
}

// LoadInfo validates the multiboot2 magic and wraps the info structure
// at infoAddr. info must remain valid and unmodified for the lifetime
// of the returned Info — it aliases loader-owned memory directly.
func LoadInfo(magic uint32, info []byte) (*Info, error) {
	if magic != mb2Magic {
		return nil, errInvalidMagic
	}
	if len(info) < 8 {
		return nil, errTruncatedInfo
	}
	totalSize := binary.LittleEndian.Uint32(info[0:4])
	if uint64(totalSize) > uint64(len(info)) {
		return nil, errTruncatedInfo
	}
	return &Info{data: info[:totalSize]}, nil
}

// tags iterates the tag list following the 8-byte (size, reserved)
// info header, stopping at the end tag.
func (i *Info) tags(yield func(typ uint32, body []byte) bool) {
	off := 8
	for off+8 <= len(i.data) {
		var hdr tagHeader
		hdr.Type = binary.LittleEndian.Uint32(i.data[off : off+4])
		hdr.Size = binary.LittleEndian.Uint32(i.data[off+4 : off+8])
		if hdr.Type == tagEnd {
			return
		}
		if hdr.Size < 8 || off+int(hdr.Size) > len(i.data) {
			return
		}
		body := i.data[off+8 : off+int(hdr.Size)]
		if !yield(hdr.Type, body) {
			return
		}
		// Tags are 8-byte aligned.
		off += (int(hdr.Size) + 7) &^ 7
	}
}

func (i *Info) findTag(typ uint32) ([]byte, bool) {
	var found []byte
	var ok bool
	i.tags(func(t uint32, body []byte) bool {
		if t == typ {
			found, ok = body, true
			return false
		}
		return true
	})
	return found, ok
}

// EFIBootServicesNotExited reports whether the loader left UEFI boot
// services active.
func (i *Info) EFIBootServicesNotExited() bool {
	_, ok := i.findTag(tagEFIBootServicesNotExited)
	return ok
}

// EFIImageHandle64 returns the raw EFI image handle pointer, if the
// loader provided one.
func (i *Info) EFIImageHandle64() (uintptr, bool) {
	body, ok := i.findTag(tagEFI64ImageHandle)
	if !ok || len(body) < 8 {
		return 0, false
	}
	return uintptr(binary.LittleEndian.Uint64(body[0:8])), true
}

// EFISystemTable64 returns the raw EFI system table pointer, if the
// loader provided one.
func (i *Info) EFISystemTable64() (uintptr, bool) {
	body, ok := i.findTag(tagEFI64SDTPointer)
	if !ok || len(body) < 8 {
		return 0, false
	}
	return uintptr(binary.LittleEndian.Uint64(body[0:8])), true
}

// RSDPAddress returns the physical address of the ACPI RSDP, preferring
// the ACPI 2.0+ (XSDT-capable) tag over the ACPI 1.0 tag, matching
// boot.rs's rsdp_v2_tag()-then-rsdp_v1_tag() fallback.
func (i *Info) RSDPAddress() (uintptr, bool) {
	if body, ok := i.findTag(tagACPINewRSDP); ok {
		return tagBodyAddr(body), true
	}
	if body, ok := i.findTag(tagACPIOldRSDP); ok {
		return tagBodyAddr(body), true
	}
	return 0, false
}

func tagBodyAddr(body []byte) uintptr {
	if len(body) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&body[0]))
}

// CommandLine returns the loader-supplied kernel command line,
// passed through uninterpreted — nothing in this core parses it.
func (i *Info) CommandLine() (string, bool) {
	body, ok := i.findTag(tagBootCmdline)
	if !ok {
		return "", false
	}
	return cString(body), true
}

// BootLoaderName returns the loader-supplied name tag, if present.
func (i *Info) BootLoaderName() (string, bool) {
	body, ok := i.findTag(tagBootLoaderName)
	if !ok {
		return "", false
	}
	return cString(body), true
}

func cString(b []byte) string {
	for idx, c := range b {
		if c == 0 {
			return string(b[:idx])
		}
	}
	return string(b)
}

// multiboot2MemoryMapEntry is the fixed-layout wire record inside a
// tagMemoryMap tag's entry array (Multiboot2 spec §3.6.8).
type multiboot2MemoryMapEntry struct {
	BaseAddr uint64
	Length   uint64
	Type     uint32
	Reserved uint32
}

const (
	mb2MemAvailable = 1 // the only "usable" entry type
)

const mb2MemoryMapEntrySize = 24

// multiboot2NativeSource implements mapSource over a tagMemoryMap tag.
type multiboot2NativeSource struct {
	entrySize uint32
	body      []byte
	off       int
}

// NewMultiboot2NativeSource builds a mapSource over info's native
// multiboot2 memory map tag.
func NewMultiboot2NativeSource(i *Info) (mapSource, bool) {
	body, ok := i.findTag(tagMemoryMap)
	if !ok || len(body) < 8 {
		return nil, false
	}
	entrySize := binary.LittleEndian.Uint32(body[0:4])
	if entrySize < mb2MemoryMapEntrySize {
		return nil, false
	}
	return &multiboot2NativeSource{entrySize: entrySize, body: body[8:]}, true
}

func (s *multiboot2NativeSource) next() (entry, bool) {
	if s.off+int(s.entrySize) > len(s.body) {
		return entry{}, false
	}
	raw := s.body[s.off : s.off+int(s.entrySize)]
	s.off += int(s.entrySize)

	var e multiboot2MemoryMapEntry
	e.BaseAddr = binary.LittleEndian.Uint64(raw[0:8])
	e.Length = binary.LittleEndian.Uint64(raw[8:16])
	e.Type = binary.LittleEndian.Uint32(raw[16:20])

	start := e.BaseAddr
	end := e.BaseAddr + e.Length

	return entry{
		usable: e.Type == mb2MemAvailable,
		start:  start,
		pages:  (end - start) / 4096,
		rng:    rangeFromAlignedBounds(start, end),
	}, true
}
