package memmap

import "hhutos/internal/frame"

// rangeFromAlignedBounds aligns start up and end down independently,
// the alignment rule the reference kernel's scan_multiboot2_memory_map
// applies to the native multiboot2 map (each bound comes from its own
// raw field, so there is no "pages" quantity to preserve across
// rounding). Returns the zero Range if rounding empties the result.
func rangeFromAlignedBounds(start, end uint64) frame.Range {
	return frame.NewAligned(start, end)
}

// rangeFromAlignedStart aligns only start up and derives end by adding
// the raw page count, the alignment rule the reference kernel's EFI
// scanners apply (scan_efi_memory_map, scan_efi_multiboot2_memory_map):
// unlike the native multiboot2 case, the page count itself is never
// rounded, only the base address.
func rangeFromAlignedStart(start uint64, pages uint64) frame.Range {
	s := frame.AlignUp(start)
	return frame.Range{Start: frame.Addr(s), End: frame.Addr(s + pages*frame.PageSize)}
}
