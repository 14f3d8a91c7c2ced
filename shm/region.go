// Package shm implements the ShmEventChannel component: a fixed-size slot
// ring laid out inside a memory-mapped file, shared between one producer
// and many consumer processes.
package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/eclipse-score/mw-com-go/domain"
	"github.com/eclipse-score/mw-com-go/mwerrors"
)

// region is a memory-mapped, file-backed shared-memory object, guarded by
// a side lock file so a half-written region is never observed by a
// consumer mid-creation.
type region struct {
	name     string
	path     string
	lockPath string

	file     *os.File
	lockFile *os.File
	data     []byte

	mu     sync.Mutex
	closed bool
}

// RegionFactory implements domain.ShmRegionFactoryIface over POSIX
// mmap/flock, rooted at a configured directory standing in for /dev/shm.
type RegionFactory struct {
	root string
}

// NewRegionFactory builds a factory rooting shm objects under root.
func NewRegionFactory(root string) *RegionFactory {
	return &RegionFactory{root: root}
}

func (f *RegionFactory) objectPath(name string) string {
	return filepath.Join(f.root, name)
}

func (f *RegionFactory) lockPath(name string) string {
	return filepath.Join(f.root, name+"-lock")
}

// Create allocates a new shm region of size bytes, taking an exclusive
// lock on its side lock file for the duration of creation so a consumer
// racing to Open sees either nothing or a fully initialized region.
func (f *RegionFactory) Create(name string, size int) (domain.ShmRegion, error) {
	if err := os.MkdirAll(f.root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating shm root: %v", mwerrors.ErrAllocationFailed, err)
	}

	lockFile, err := os.OpenFile(f.lockPath(name), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening lock file: %v", mwerrors.ErrAllocationFailed, err)
	}
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("%w: locking shm object: %v", mwerrors.ErrAllocationFailed, err)
	}

	file, err := os.OpenFile(f.objectPath(name), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
		lockFile.Close()
		return nil, fmt.Errorf("%w: creating shm object: %v", mwerrors.ErrAllocationFailed, err)
	}
	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
		lockFile.Close()
		return nil, fmt.Errorf("%w: sizing shm object: %v", mwerrors.ErrAllocationFailed, err)
	}

	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
		lockFile.Close()
		return nil, fmt.Errorf("%w: mmap shm object: %v", mwerrors.ErrAllocationFailed, err)
	}

	unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)

	return &region{
		name:     name,
		path:     f.objectPath(name),
		lockPath: f.lockPath(name),
		file:     file,
		lockFile: lockFile,
		data:     data,
	}, nil
}

// Open attaches to an existing shm region, waiting for a shared lock so it
// never observes a region still under construction by Create.
func (f *RegionFactory) Open(name string, size int) (domain.ShmRegion, error) {
	lockFile, err := os.OpenFile(f.lockPath(name), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening lock file: %v", mwerrors.ErrBindingFailure, err)
	}
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_SH); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("%w: locking shm object: %v", mwerrors.ErrBindingFailure, err)
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)

	file, err := os.OpenFile(f.objectPath(name), os.O_RDWR, 0o644)
	if err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("%w: opening shm object: %v", mwerrors.ErrServiceNotOffered, err)
	}

	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		lockFile.Close()
		return nil, fmt.Errorf("%w: mmap shm object: %v", mwerrors.ErrBindingFailure, err)
	}

	return &region{
		name:     name,
		path:     f.objectPath(name),
		lockPath: f.lockPath(name),
		file:     file,
		lockFile: lockFile,
		data:     data,
	}, nil
}

// Remove deletes both the shm object and its lock file.
func (f *RegionFactory) Remove(name string) error {
	err1 := os.Remove(f.objectPath(name))
	err2 := os.Remove(f.lockPath(name))
	if err1 != nil && !os.IsNotExist(err1) {
		return err1
	}
	if err2 != nil && !os.IsNotExist(err2) {
		return err2
	}
	return nil
}

func (r *region) Name() string  { return r.name }
func (r *region) Path() string  { return r.path }
func (r *region) Bytes() []byte { return r.data }
func (r *region) Size() int     { return len(r.data) }

func (r *region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.data != nil {
		if e := unix.Munmap(r.data); e != nil {
			err = e
		}
		r.data = nil
	}
	r.file.Close()
	r.lockFile.Close()
	return err
}

var _ domain.ShmRegionFactoryIface = (*RegionFactory)(nil)
