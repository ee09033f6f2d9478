package arena

import "time"

// Kind identifies which rung of the allocation cascade produced a mapping,
// mirroring the jbpf_mem_alloc_type_t enum in jbpf_mem_mgmt.h.
type Kind int

const (
	KindHugePage1GBPersistent Kind = iota
	KindHugePage1GBAnonymous
	KindHugePage2MBPersistent
	KindHugePage2MBAnonymous
	KindPlain
)

func (k Kind) String() string {
	switch k {
	case KindHugePage1GBPersistent:
		return "hugepage-1g-persistent"
	case KindHugePage1GBAnonymous:
		return "hugepage-1g-anonymous"
	case KindHugePage2MBPersistent:
		return "hugepage-2m-persistent"
	case KindHugePage2MBAnonymous:
		return "hugepage-2m-anonymous"
	default:
		return "plain"
	}
}

// Options configures Allocate. SharedName, if non-empty, requests a named
// shared mapping other processes can attach to via Attach; an empty
// SharedName requests a private anonymous mapping. FixedAddr, if non-zero,
// is passed through as the mmap hint with MAP_FIXED_NOREPLACE so a peer can
// negotiate a common base address during the IPC handshake (spec.md §4.6).
type Options struct {
	Size              uintptr
	SharedName        string
	FixedAddr         uintptr
	OnlyHugePages     bool
	PreferPersistent  bool
	UseSharedMem      bool
	PersistentMountPt string
}

// hugePageInfo records which hugetlbfs mount (if any) backs a persistent
// huge-page mapping, parsed the way _jbpf_get_persistent_hp_info parses
// /proc/mounts and /proc/meminfo.
type hugePageInfo struct {
	mountPoint string
	pageSize   uintptr
	available  bool
}

// sidecarMeta is the small on-disk record written next to a named shared
// mapping so a second process can Attach to it later, mirroring
// _jbpf_write_hp_alloc_info's on-disk format.
type sidecarMeta struct {
	Kind      Kind      `yaml:"kind"`
	Size      uintptr   `yaml:"size"`
	FixedAddr uintptr   `yaml:"fixed_addr"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Mapping is a single mmap'd region returned by Allocate or Attach.
type Mapping struct {
	addr uintptr
	size uintptr
	kind Kind
	name string
	fd   int
}

// Addr returns the mapping's base virtual address.
func (m *Mapping) Addr() uintptr { return m.addr }

// Size returns the mapping's size in bytes: the requested size rounded up
// to a multiple of constants.ArenaBlockSize (2 MiB), whatever Kind
// produced the mapping.
func (m *Mapping) Size() uintptr { return m.size }

// Kind reports which rung of the allocation cascade produced this mapping.
func (m *Mapping) Kind() Kind { return m.kind }

// Bytes exposes the mapping as a byte slice for direct access by the heap
// allocator built on top of it.
func (m *Mapping) Bytes() []byte {
	return unsafeBytes(m.addr, m.size)
}
