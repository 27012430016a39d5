package memmap

import "hhutos/internal/frame"

// Cut removes reserved from every member of regions, splitting or
// dropping ranges as needed. It never reorders the surviving pieces
// relative to their source region, but the overall slice ordering
// across distinct source regions is preserved too.
//
// Ported case-for-case from the reference kernel's cut_region (see
// DESIGN.md): straddles-below, contains, straddles-above, and
// fully-contained (dropped) are the four non-trivial cases; anything
// disjoint from reserved passes through unchanged.
func Cut(regions []frame.Range, reserved frame.Range) []frame.Range {
	out := make([]frame.Range, 0, len(regions))
	for _, r := range regions {
		switch {
		case r.End <= reserved.Start || r.Start >= reserved.End:
			// Entirely below or entirely above: untouched.
			out = append(out, r)

		case r.Start < reserved.Start && reserved.End < r.End:
			// Reserved lies strictly inside r: split into two.
			out = append(out, frame.Range{Start: r.Start, End: reserved.Start})
			out = append(out, frame.Range{Start: reserved.End, End: r.End})

		case r.Start < reserved.Start:
			// Straddles only the lower edge of reserved.
			out = append(out, frame.Range{Start: r.Start, End: reserved.Start})

		case r.End > reserved.End:
			// Straddles only the upper edge of reserved.
			out = append(out, frame.Range{Start: reserved.End, End: r.End})

		default:
			// r is fully contained in reserved: dropped.
		}
	}
	return out
}
