package tread

import "unsafe"

const wordSize = unsafe.Sizeof(uintptr(0))

// scanCellWords walks a cell's payload one machine word at a time,
// calling fn with each word reinterpreted as a candidate address. This
// is the conservative scan: every word is offered up, regardless of
// whether it was ever written as a pointer, because the allocator has no
// type information for the cell's contents.
func scanCellWords(payload, size uintptr, fn func(word uintptr)) {
	n := size / wordSize
	base := (*[1 << 28]uintptr)(unsafe.Pointer(payload))
	for i := uintptr(0); i < n; i++ {
		fn(base[i])
	}
}
