package domain

// ShmRegion is a memory-mapped shared-memory object backing one service
// instance's event/field slot rings. It is modeled as a plain byte slice
// over the mapping rather than unsafe.Pointer arithmetic, so that
// slot/control-word code can use ordinary slice indexing while still
// laying out data with deterministic, pointer-free offsets.
type ShmRegion interface {
	Name() string
	Path() string
	Bytes() []byte
	Size() int
	Close() error
}

// ShmRegionFactoryIface models the typed-memory allocator as an external
// collaborator: this repo only needs a factory that can create or open a
// named, sized shared-memory region and guard it with a side lock file.
type ShmRegionFactoryIface interface {
	// Create allocates a new named region of the given size, truncating any
	// stale region left by a prior instance of this process.
	Create(name string, size int) (ShmRegion, error)
	// Open maps an existing region created by another process.
	Open(name string, size int) (ShmRegion, error)
	// Remove unlinks the named region and its lock file.
	Remove(name string) error
}
