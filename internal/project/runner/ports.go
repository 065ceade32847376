package runner

import "sync/atomic"

// PortAllocator hands out sequential ports starting at a base. Ports are never
// reused within a process lifetime, so a crashed project does not immediately
// collide with its successor while the OS releases the socket.
type PortAllocator struct {
	next atomic.Int64
}

// NewPortAllocator creates an allocator whose first port is base.
func NewPortAllocator(base int) *PortAllocator {
	a := &PortAllocator{}
	a.next.Store(int64(base))
	return a
}

// Next returns the next unused port.
func (a *PortAllocator) Next() int {
	return int(a.next.Add(1) - 1)
}
