package boot

// halt issues HLT, the same "nothing left to do, wait for the next
// interrupt" idiom internal/thread's idle path would use; Entry loops
// on it forever since there is no caller left to return to once
// control has left the loader.
//
//go:noescape
func halt()
