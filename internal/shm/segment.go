package shm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultDir is the shared memory namespace on Linux.
const DefaultDir = "/dev/shm"

var (
	// ErrAlreadyExists is returned by Create when a segment with the name is live.
	ErrAlreadyExists = errors.New("shared memory segment already exists")
	// ErrNotFound is returned by Attach when no segment with the name exists.
	ErrNotFound = errors.New("shared memory segment not found")
	// ErrOutOfBounds is returned when a field does not fit in the segment.
	ErrOutOfBounds = errors.New("offset out of bounds")
	// ErrClosed is returned when the local mapping has been released.
	ErrClosed = errors.New("shared memory segment closed")
	// ErrInvalidName is returned for empty names or names containing a path separator.
	ErrInvalidName = errors.New("invalid shared memory segment name")
	// ErrInvalidSize is returned for non-positive sizes.
	ErrInvalidSize = errors.New("invalid shared memory segment size")
	// ErrUnsupported is returned on platforms without mmap support.
	ErrUnsupported = errors.New("shared memory is not supported on this platform")
)

// Options identify a segment.
type Options struct {
	Name string
	// Size in bytes. Required for Create; Attach uses the existing size when zero.
	Size int
	// Dir is the namespace directory, DefaultDir when empty.
	Dir string
}

func (o Options) path() (string, error) {
	name := strings.TrimPrefix(o.Name, "/")
	if name == "" || strings.ContainsRune(name, '/') || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, o.Name)
	}
	dir := o.Dir
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, name), nil
}

// Segment is a local mapping of a named shared memory segment.
//
// The mutex only guards the mapping's lifecycle so that reads and writes
// never touch an unmapped region. It does not order accesses against other
// processes.
type Segment struct {
	name string
	path string
	size int

	mu       sync.RWMutex
	file     *os.File
	mem      []byte
	unlinked bool
}

// Create allocates a new zero-filled segment and maps it. The size must hold
// every field of the AutoDRIVE layout.
func Create(opts Options) (*Segment, error) {
	path, err := opts.path()
	if err != nil {
		return nil, err
	}
	if opts.Size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, opts.Size)
	}
	if err := ValidateLayout(opts.Size); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, opts.Name)
		}
		return nil, fmt.Errorf("failed to create shared memory %s: %w", path, err)
	}

	if err := file.Truncate(int64(opts.Size)); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to resize shared memory: %w", err)
	}

	mem, err := mmap(file, opts.Size)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to mmap shared memory: %w", err)
	}

	return &Segment{
		name: opts.Name,
		path: path,
		size: opts.Size,
		file: file,
		mem:  mem,
	}, nil
}

// Attach maps an existing segment by name.
func Attach(opts Options) (*Segment, error) {
	path, err := opts.path()
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, opts.Name)
		}
		return nil, fmt.Errorf("failed to open shared memory %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat shared memory: %w", err)
	}

	size := opts.Size
	if size == 0 {
		size = int(info.Size())
	}
	if size <= 0 || int64(size) > info.Size() {
		file.Close()
		return nil, fmt.Errorf("%w: want %d, segment has %d", ErrInvalidSize, size, info.Size())
	}

	mem, err := mmap(file, size)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to mmap shared memory: %w", err)
	}

	return &Segment{
		name: opts.Name,
		path: path,
		size: size,
		file: file,
		mem:  mem,
	}, nil
}

// Name returns the segment name.
func (s *Segment) Name() string {
	return s.name
}

// Size returns the segment size in bytes.
func (s *Segment) Size() int {
	return s.size
}

// Path returns the segment's location in the namespace directory.
func (s *Segment) Path() string {
	return s.path
}

func (s *Segment) checkBounds(offset int) error {
	if offset < 0 || offset+FieldWidth > s.size {
		return fmt.Errorf("%w: offset %d, size %d", ErrOutOfBounds, offset, s.size)
	}
	return nil
}

// ReadFloat64 decodes the double stored at offset.
func (s *Segment) ReadFloat64(offset int) (float64, error) {
	if err := s.checkBounds(offset); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mem == nil {
		return 0, ErrClosed
	}
	bits := binary.NativeEndian.Uint64(s.mem[offset : offset+FieldWidth])
	return math.Float64frombits(bits), nil
}

// WriteFloat64 encodes v at offset.
func (s *Segment) WriteFloat64(offset int, v float64) error {
	if err := s.checkBounds(offset); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mem == nil {
		return ErrClosed
	}
	binary.NativeEndian.PutUint64(s.mem[offset:offset+FieldWidth], math.Float64bits(v))
	return nil
}

// Close releases the local mapping. The name stays registered until Unlink.
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.mem != nil {
		if err := munmap(s.mem); err != nil {
			errs = append(errs, fmt.Errorf("failed to munmap: %w", err))
		}
		s.mem = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close shm file: %w", err))
		}
		s.file = nil
	}
	return errors.Join(errs...)
}

// Unlink removes the name from the namespace. Existing mappings stay valid
// until closed; later Attach calls fail with ErrNotFound.
func (s *Segment) Unlink() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unlinked {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to unlink shared memory %s: %w", s.path, err)
	}
	s.unlinked = true
	return nil
}
