package gdt

// lgdt, reloadSegments, and loadTR issue privileged instructions with
// no Go-level equivalent (LGDT, the CS-reload far-return trick, and
// LTR). They are implemented in asm_amd64.s the way a freestanding Go
// kernel has to express any raw instruction sequence — there is no
// ecosystem package that emits LGDT/LTR from Go, the same gap
// iansmith-mazarin's mazboot fills with hand-written Plan 9 assembly
// for its own privileged ARM instructions.

//go:noescape
func lgdt(ptr *byte)

//go:noescape
func reloadSegments(codeSelector, dataSelector uint16)

//go:noescape
func loadTR(selector uint16)
