package shmem

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
)

// Mode selects how a Mapping attaches to its backing file.
type Mode int

const (
	// CreateReadWrite creates a new backing file, sized to the caller's
	// request, and maps it read-write. It fails if the file already exists.
	CreateReadWrite Mode = iota
	// OpenReadWrite maps an existing backing file read-write. It fails if
	// the file does not exist.
	OpenReadWrite
	// OpenReadOnly maps an existing backing file read-only. It fails if the
	// file does not exist.
	OpenReadOnly
)

var (
	// ErrNotFound is returned by Open/OpenReadOnly when the backing file
	// does not exist.
	ErrNotFound = errors.New("shmem: backing file not found")
	// ErrAlreadyExists is returned by Create when the backing file already
	// exists.
	ErrAlreadyExists = errors.New("shmem: backing file already exists")
	// ErrTooSmall is returned when an opened region is smaller than the
	// caller's minimum required size.
	ErrTooSmall = errors.New("shmem: region smaller than required size")
	// ErrClosed is returned by any operation on a Mapping after Close.
	ErrClosed = errors.New("shmem: mapping is closed")
)

// Mapping is a memory-mapped, file-backed byte region. It is safe for
// concurrent use by multiple goroutines within one process; cross-process
// safety of the bytes it exposes is the concern of whatever typed structure
// is overlaid on top (see internal/grain and internal/channelbuf).
type Mapping struct {
	file   *os.File
	data   []byte
	closed atomic.Bool
}

// Create creates a new backing file at path sized to size bytes,
// zero-initializes it via truncate, and maps it read-write. It fails with
// ErrAlreadyExists if path already exists.
func Create(path string, size int64) (*Mapping, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shmem: invalid size %d: %w", size, os.ErrInvalid)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("shmem: create %s: %w", path, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("shmem: create %s: %w", path, err)
	}

	cleanup := func() {
		f.Close()
		os.Remove(path)
	}

	if err := f.Truncate(size); err != nil {
		cleanup()
		return nil, fmt.Errorf("shmem: truncate %s: %w", path, err)
	}

	data, err := mmapReadWrite(f, size)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("shmem: mmap %s: %w", path, err)
	}

	return &Mapping{file: f, data: data}, nil
}

// Open maps an existing backing file at path according to mode (OpenReadWrite
// or OpenReadOnly; CreateReadWrite is rejected). minSize is the smallest
// region size the caller can work with (typically sizeof(T) for a typed
// header); Open fails with ErrTooSmall if the file is smaller.
func Open(path string, mode Mode, minSize int64) (*Mapping, error) {
	var flag int
	switch mode {
	case OpenReadWrite:
		flag = os.O_RDWR
	case OpenReadOnly:
		flag = os.O_RDONLY
	default:
		return nil, fmt.Errorf("shmem: open %s: unsupported mode %d", path, mode)
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("shmem: open %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("shmem: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shmem: stat %s: %w", path, err)
	}
	size := info.Size()
	if size == 0 || size < minSize {
		f.Close()
		return nil, fmt.Errorf("shmem: open %s (size=%d, want>=%d): %w", path, size, minSize, ErrTooSmall)
	}

	var data []byte
	if mode == OpenReadOnly {
		data, err = mmapReadOnly(f, size)
	} else {
		data, err = mmapReadWrite(f, size)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shmem: mmap %s: %w", path, err)
	}

	return &Mapping{file: f, data: data}, nil
}

// Bytes returns the mapped region. The slice is valid only until Close.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return len(m.data)
}

// Close unmaps the region and closes the backing file descriptor. It does
// not remove the backing file: file lifecycle belongs to internal/flowfs.
// Close is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	var err error
	if m.data != nil {
		err = munmap(m.data)
		m.data = nil
	}
	if m.file != nil {
		if cerr := m.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
