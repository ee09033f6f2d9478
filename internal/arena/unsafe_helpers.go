package arena

import "unsafe"

// bytePtr returns a pointer to buf[off], used by the free-list allocator to
// overlay a freeNode header on top of otherwise-unused free blocks.
func bytePtr(buf []byte, off uintptr) unsafe.Pointer {
	return unsafe.Pointer(&buf[off])
}

// offsetOf returns sub's offset within buf, assuming sub was sliced from
// buf (true for every slice Heap.Alloc hands out).
func offsetOf(buf []byte, sub []byte) uintptr {
	return uintptr(unsafe.Pointer(&sub[0])) - uintptr(unsafe.Pointer(&buf[0]))
}
