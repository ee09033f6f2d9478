// Package arena implements the huge-page/shared-memory allocation cascade
// described in spec.md §4.1, grounded on jbpf_mem_mgmt.c's
// jbpf_allocate_memory/jbpf_attach_memory/jbpf_create_mem_ctx.
//
// Allocate tries, in order: a persistent 1GiB hugetlbfs mapping, an
// anonymous 1GiB transparent-huge-page mapping, a persistent 2MiB
// hugetlbfs mapping, an anonymous 2MiB transparent-huge-page mapping, and
// finally a plain mapping -- falling through to the next rung whenever the
// current one is unavailable, exactly as the C cascade does.
package arena

import (
	"fmt"
	"math/bits"

	"github.com/ehrlich-b/jbpfio/internal/constants"
	"github.com/ehrlich-b/jbpfio/internal/logging"
)

const (
	protReadWrite = 0x1 | 0x2 // PROT_READ|PROT_WRITE
	flagShared    = 0x01      // MAP_SHARED
	flagPrivate   = 0x02      // MAP_PRIVATE
	flagAnonymous = 0x20      // MAP_ANONYMOUS
	flagPopulate  = 0x8000    // MAP_POPULATE
	flagHugeTLB   = 0x40000   // MAP_HUGETLB

	// mapFixedNoreplace mirrors MAP_FIXED_NOREPLACE, which
	// golang.org/x/sys/unix does not name on every architecture it
	// supports.
	mapFixedNoreplace = 0x100000

	// mapHugeShift mirrors MAP_HUGE_SHIFT: log2 of the requested huge-page
	// size goes in the mmap flags at this bit offset.
	mapHugeShift = 26
)

// Arena owns one Mapping plus the Heap carved out of it. It is the unit of
// allocation/attach/destroy the rest of the package works with.
type Arena struct {
	mapping *Mapping
	heap    *Heap
	metaDir string
	log     *logging.Logger
}

// Allocate runs the huge-page cascade and returns a fresh Arena owned by
// ownerID (normally a *thread.Handle's ID). metaDir is where sidecar
// metadata for named (SharedName != "") mappings is written; pass "" for
// private, unshared allocations, which need no sidecar.
func Allocate(opts Options, ownerID int, metaDir string) (*Arena, error) {
	size := roundUpMem(opts.Size)
	log := logging.Default()

	attempts := []struct {
		kind  Kind
		tryit func() (uintptr, int, error)
	}{
		{KindHugePage1GBPersistent, func() (uintptr, int, error) {
			if opts.UseSharedMem {
				return tryPersistentHugePage(opts, size, constants.HugePageSize1GB)
			}
			return 0, -1, fmt.Errorf("shared memory not requested")
		}},
		{KindHugePage1GBAnonymous, func() (uintptr, int, error) {
			if opts.OnlyHugePages || !opts.PreferPersistent {
				return tryAnonymousHugePage(size, constants.HugePageSize1GB, opts.FixedAddr)
			}
			return 0, -1, fmt.Errorf("anonymous huge pages skipped, persistent preferred")
		}},
		{KindHugePage2MBPersistent, func() (uintptr, int, error) {
			if opts.UseSharedMem {
				return tryPersistentHugePage(opts, size, constants.HugePageSize2MB)
			}
			return 0, -1, fmt.Errorf("shared memory not requested")
		}},
		{KindHugePage2MBAnonymous, func() (uintptr, int, error) {
			return tryAnonymousHugePage(size, constants.HugePageSize2MB, opts.FixedAddr)
		}},
		{KindPlain, func() (uintptr, int, error) {
			if opts.OnlyHugePages {
				return 0, -1, fmt.Errorf("only-huge-pages set, plain mapping refused")
			}
			return tryPlain(size, opts.FixedAddr)
		}},
	}

	var lastErr error
	for _, a := range attempts {
		addr, fd, err := a.tryit()
		if err != nil {
			lastErr = err
			log.Debug("arena: allocation rung failed", "kind", a.kind.String(), "err", err)
			continue
		}

		if err := mlock(addr, size); err != nil {
			log.Warn("arena: mlock failed, continuing unlocked", "err", err)
		}
		zero(addr, size)

		m := &Mapping{addr: addr, size: size, kind: a.kind, name: opts.SharedName, fd: fd}
		if opts.SharedName != "" {
			if err := writeSidecar(metaDir, opts.SharedName, sidecarMeta{
				Kind: a.kind, Size: size, FixedAddr: opts.FixedAddr,
			}); err != nil {
				log.Warn("arena: failed to write sidecar metadata", "err", err)
			}
		}

		return &Arena{
			mapping: m,
			heap:    newHeap(m.Bytes(), ownerID),
			metaDir: metaDir,
			log:     log,
		}, nil
	}

	return nil, fmt.Errorf("arena: every allocation rung failed, last error: %w", lastErr)
}

// Attach maps an existing named shared-memory region previously created by
// Allocate with a non-empty SharedName, reading its sidecar to recover the
// flags it was created with.
func Attach(name string, ownerID int, metaDir string) (*Arena, error) {
	meta, err := readSidecar(metaDir, name)
	if err != nil {
		return nil, fmt.Errorf("arena: attach %s: %w", name, err)
	}

	fd, err := openShm(name)
	if err != nil {
		return nil, err
	}
	flags := flagShared
	prot := protReadWrite
	addrHint := meta.FixedAddr
	var mmapFlags int = flags
	if meta.FixedAddr != 0 {
		mmapFlags |= mapFixedNoreplace
	}
	addr, err := rawMmap(addrHint, meta.Size, prot, mmapFlags, fd, 0)
	if err != nil {
		return nil, fmt.Errorf("arena: attach mmap %s: %w", name, err)
	}

	return &Arena{
		mapping: &Mapping{addr: addr, size: meta.Size, kind: meta.Kind, name: name, fd: fd},
		heap:    newHeap(unsafeBytes(addr, meta.Size), ownerID),
		metaDir: metaDir,
		log:     logging.Default(),
	}, nil
}

// Mapping returns the underlying memory mapping.
func (a *Arena) Mapping() *Mapping { return a.mapping }

// Malloc allocates size bytes from the arena's heap, rejecting callers
// that do not match the thread that created or attached this Arena --
// mirroring jbpf_malloc_ctx's pthread_equal check.
func (a *Arena) Malloc(ownerID int, size uintptr) ([]byte, error) {
	return a.heap.Alloc(ownerID, size)
}

// Free returns b to the arena's heap.
func (a *Arena) Free(ownerID int, b []byte) error {
	return a.heap.Free(ownerID, b)
}

// Realloc resizes b, possibly moving it.
func (a *Arena) Realloc(ownerID int, b []byte, newSize uintptr) ([]byte, error) {
	return a.heap.Realloc(ownerID, b, newSize)
}

// Destroy unmaps the arena's backing mapping and, for named mappings,
// removes its sidecar metadata and backing shm file.
func (a *Arena) Destroy() error {
	if err := rawMunmap(a.mapping.addr, a.mapping.size); err != nil {
		return fmt.Errorf("arena: munmap: %w", err)
	}
	if a.mapping.name != "" {
		removeSidecar(a.metaDir, a.mapping.name)
		unlinkShm(a.mapping.name)
	}
	return nil
}

func roundUpMem(size uintptr) uintptr {
	if size == 0 {
		size = constants.ArenaBlockSize
	}
	return alignUp(size, constants.ArenaBlockSize)
}

func zero(addr uintptr, size uintptr) {
	b := unsafeBytes(addr, size)
	for i := range b {
		b[i] = 0
	}
}

func tryPersistentHugePage(opts Options, size uintptr, pageSize uintptr) (uintptr, int, error) {
	info, err := hugePageMountInfo(opts.PersistentMountPt, pageSize)
	if err != nil || !info.available {
		return 0, -1, fmt.Errorf("persistent hugetlbfs mount unavailable for page size %d: %w", pageSize, err)
	}
	name := opts.SharedName
	if name == "" {
		return 0, -1, fmt.Errorf("persistent huge pages require SharedName")
	}
	fd, err := openHugeTLBFile(info.mountPoint, name)
	if err != nil {
		return 0, -1, err
	}
	if err := ftruncate(fd, int64(size)); err != nil {
		return 0, -1, fmt.Errorf("ftruncate hugetlbfs file: %w", err)
	}
	flags := flagShared | flagHugeTLB
	addr, err := rawMmap(opts.FixedAddr, size, protReadWrite, flags, fd, 0)
	if err != nil {
		return 0, -1, err
	}
	return addr, fd, nil
}

func tryAnonymousHugePage(size uintptr, pageSize uintptr, fixedAddr uintptr) (uintptr, int, error) {
	flags := flagPrivate | flagAnonymous | flagPopulate | flagHugeTLB
	var mflags int = flags
	mflags |= bits.TrailingZeros64(uint64(pageSize)) << mapHugeShift
	if fixedAddr != 0 {
		mflags |= mapFixedNoreplace
	}
	addr, err := rawMmap(fixedAddr, size, protReadWrite, mflags, -1, 0)
	if err != nil {
		return 0, -1, err
	}
	return addr, -1, nil
}

func tryPlain(size uintptr, fixedAddr uintptr) (uintptr, int, error) {
	flags := flagPrivate | flagAnonymous | flagPopulate
	var mflags int = flags
	if fixedAddr != 0 {
		mflags |= mapFixedNoreplace
	}
	addr, err := rawMmap(fixedAddr, size, protReadWrite, mflags, -1, 0)
	if err != nil {
		return 0, -1, err
	}
	return addr, -1, nil
}
