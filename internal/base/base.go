// Package base implements the owning, type-tagged storage that Views
// describe windows into.
package base

import (
	"sync"

	"bohrium/internal/typetag"

	"github.com/google/uuid"
)

// AllocState is the Base's allocation lifecycle state.
type AllocState int

const (
	Unallocated AllocState = iota
	Host
	Device
)

func (s AllocState) String() string {
	switch s {
	case Unallocated:
		return "unallocated"
	case Host:
		return "host"
	case Device:
		return "device"
	default:
		return "unknown"
	}
}

// Owner is the three-state ownership tag the design consolidates the
// PARENT/SELF/CHILD-vs-refcount split onto. Upstream==PARENT, Self==SELF,
// Downstream==CHILD.
type Owner int

const (
	Upstream Owner = iota
	Self
	Downstream
)

func (o Owner) String() string {
	switch o {
	case Upstream:
		return "upstream"
	case Self:
		return "self"
	case Downstream:
		return "downstream"
	default:
		return "unknown"
	}
}

// Handle identifies a Base stably across its lifetime.
type Handle uuid.UUID

func (h Handle) String() string { return uuid.UUID(h).String() }

// Base is owned, type-tagged storage for an array's elements. Bases are
// shared: multiple Views may reference the same Base. The Lifecycle
// Manager is the sole writer of Owner and the one that decrements
// RefCount; facade.NewView increments it.
type Base struct {
	mu sync.Mutex

	handle Handle
	tag typetag.Tag
	count int64 // total element count

	alloc AllocState
	owner Owner
	refs int

	// Data backs Host-allocated storage as a flat byte buffer. Device
	// allocations leave Data nil and use DevicePtr as an opaque reference
	// the downstream executor understands; allocating/freeing device
	// memory is the caching allocator's job (out of scope, the design).
	Data []byte
	DevicePtr uintptr
}

// New allocates a Base for count elements of the given type, unallocated
// until the façade or an allocation opcode materializes storage.
func New(tag typetag.Tag, count int64) *Base {
	id, err := uuid.NewRandom()
	if err != nil {
		id = uuid.New()
	}
	return &Base{
		handle: Handle(id),
		tag: tag,
		count: count,
		alloc: Unallocated,
		owner: Upstream,
	}
}

func (b *Base) Handle() Handle { return b.handle }
func (b *Base) Tag() typetag.Tag { return b.tag }
func (b *Base) ElementCount() int64 { return b.count }
func (b *Base) ByteSize() int64 { return b.count * int64(b.tag.Width()) }

func (b *Base) AllocState() AllocState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alloc
}

func (b *Base) Owner() Owner {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.owner
}

// SetOwner is called exclusively by the lifecycle manager.
func (b *Base) SetOwner(o Owner) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.owner = o
}

// RefCount returns the current live-View reference count.
func (b *Base) RefCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refs
}

// Retain increments the reference count. facade.NewView calls it for each
// View it creates against this Base (view.New alone does not); invariant:
// while any such View references a Base its refcount is >= 1.
func (b *Base) Retain() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refs++
	return b.refs
}

// Release decrements the reference count and returns the count after the
// decrement; it never goes negative.
func (b *Base) Release() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refs > 0 {
		b.refs--
	}
	return b.refs
}

// AllocateHost materializes Host storage, zero-filled, idempotently.
func (b *Base) AllocateHost() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.alloc == Host && b.Data != nil {
		return
	}
	b.Data = make([]byte, b.ByteSize())
	b.alloc = Host
}

// Free releases the Base's storage, returning it to Unallocated. The vcache
// (external caching allocator, out of scope) is where a real runtime would
// retain the buffer for reuse instead of dropping it; the core only tracks
// state transitions, not the pool itself.
func (b *Base) Free() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Data = nil
	b.DevicePtr = 0
	b.alloc = Unallocated
}
