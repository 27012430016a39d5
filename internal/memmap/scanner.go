// Package memmap scans the three boot-time memory-map sources the
// loader may hand the kernel (a live UEFI memory map, a UEFI map
// snapshot embedded in multiboot2 info, or a multiboot2-native map),
// picks a bootstrap-heap candidate, and reduces every source to the
// same []frame.Range shape so the boot sequencer can treat them
// uniformly, replacing three nearly identical parsers with one
// generic scanner.
package memmap

import (
	"errors"
	"hhutos/internal/frame"
)

// InitHeapPages is the fixed bootstrap-heap size, in 4 KiB frames
// (4 MiB total).
const InitHeapPages = 1024

// ErrNoHeapRegion is returned when no entry in the source map is both
// usable and large enough to host the bootstrap heap above the kernel
// image. The boot sequencer treats this as fatal.
var ErrNoHeapRegion = errors.New("memmap: failed to find memory region usable for kernel heap")

// entry is one normalized record from any of the three map sources.
// rng is the already frame-aligned range this entry contributes to
// the region list; start/pages are the *raw* (pre-alignment) values
// used for heap-candidate comparisons, because the two map families
// align ranges differently (see each source's next() for why this
// can't be hoisted into Scan itself): the EFI sources round the start
// up and then add the raw page count, while the native multiboot2 map
// rounds the start up and the end down independently.
type entry struct {
	usable bool
	start  uint64
	pages  uint64
	rng    frame.Range
}

// mapSource iterates the entries of one boot-time memory map format.
// Each of the three concrete sources (efiLiveSource,
// efiMultiboot2Source, multiboot2NativeSource) implements this the
// same way the reference kernel's three near-duplicate scan_* functions
// each walked their own map representation; Scan below is the one
// generic scanner below replaces them with.
type mapSource interface {
	// next returns the next raw entry and true, or the zero entry and
	// false once exhausted.
	next() (entry, bool)
}

// Scan walks src, returning every usable region (frame-aligned, start
// rounded up and end rounded down, empty results after rounding
// dropped) plus the chosen bootstrap-heap range.
//
// The heap candidate is the usable entry with the smallest start
// address among those with at least InitHeapPages frames whose start
// is at or above kernelEnd. The heap's own frames are NOT excluded
// from the returned region list — the caller must cut them out.
func Scan(src mapSource, kernelEnd uint64) (regions []frame.Range, heap frame.Range, err error) {
	var (
		haveHeap   bool
		heapStart  uint64
		heapSource entry
	)

	for {
		e, ok := src.next()
		if !ok {
			break
		}
		if !e.usable {
			continue
		}

		if e.pages >= InitHeapPages && e.start >= kernelEnd {
			if !haveHeap || e.start < heapStart {
				haveHeap = true
				heapStart = e.start
				heapSource = e
			}
		}

		if e.rng.Empty() {
			continue
		}
		regions = append(regions, e.rng)
	}

	if !haveHeap {
		return nil, frame.Range{}, ErrNoHeapRegion
	}

	heap = frame.FromPages(heapSource.start, InitHeapPages)
	return regions, heap, nil
}
