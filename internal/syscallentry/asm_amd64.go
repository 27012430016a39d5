package syscallentry

// rdmsr/wrmsr issue RDMSR/WRMSR directly; trampolineEntry is the
// naked SYSCALL entry point whose address Init hands to LSTAR. All
// three are implemented in asm_amd64.s — there is no Go-level way to
// execute RDMSR/WRMSR/SYSRET, the same gap internal/gdt's lgdt/ltr
// fill with hand-written Plan 9 assembly.

//go:noescape
func rdmsr(msr uint32) uint64

//go:noescape
func wrmsr(msr uint32, value uint64)

// TrampolineEntry returns the address of the naked SYSCALL handler in
// asm_amd64.s, for Init to program into LSTAR.
func TrampolineEntry() uintptr
