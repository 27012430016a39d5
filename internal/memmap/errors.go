package memmap

import "errors"

var (
	errInvalidMagic  = errors.New("memmap: bad multiboot2 magic")
	errTruncatedInfo = errors.New("memmap: truncated multiboot2 info structure")
)
