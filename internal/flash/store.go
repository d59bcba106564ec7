// Package flash persists firmware and data images as fixed-capacity,
// file-backed storage regions with flash-like erase/write/commit semantics.
// Code images are dual-banked: writes always land in the bank the device is
// not booting from, and the boot pointer moves only on an atomic commit.
package flash

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	bridge "github.com/allbin/serial-bridge"
)

const (
	bankAFile = "bank_a.img"
	bankBFile = "bank_b.img"
	dataFile  = "data.img"
	bootFile  = "boot"

	erasedByte = 0xFF
	eraseChunk = 64 * 1024
)

// Predefined error types for robust error handling
var (
	ErrOutOfRange    = errors.New("access beyond region capacity")
	ErrUnknownRegion = errors.New("region does not belong to this store")
)

// Store is a dual-bank code store plus a single data region, rooted in one
// directory. It implements bridge.Store.
type Store struct {
	dir     string
	codeCap int64
	dataCap int64
	bankA   *Region
	bankB   *Region
	data    *Region
	mu      sync.Mutex
	active  string // "a" or "b"
}

// Ensure Store implements bridge.Store at compile time
var _ bridge.Store = (*Store)(nil)

// Open opens (creating if necessary) a store in dir with the given region
// capacities. Fresh regions come up fully erased. The boot pointer defaults
// to bank a.
func Open(dir string, codeCap, dataCap int64) (*Store, error) {
	if codeCap <= 0 || dataCap <= 0 {
		return nil, errors.New("region capacities must be positive")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	s := &Store{
		dir:     dir,
		codeCap: codeCap,
		dataCap: dataCap,
		bankA:   &Region{name: "bank-a", kind: bridge.TargetCode, path: filepath.Join(dir, bankAFile), capacity: codeCap},
		bankB:   &Region{name: "bank-b", kind: bridge.TargetCode, path: filepath.Join(dir, bankBFile), capacity: codeCap},
		data:    &Region{name: "data", kind: bridge.TargetData, path: filepath.Join(dir, dataFile), capacity: dataCap},
	}

	for _, r := range []*Region{s.bankA, s.bankB, s.data} {
		if err := r.ensure(); err != nil {
			return nil, err
		}
	}

	active, err := s.readBootPointer()
	if err != nil {
		return nil, err
	}
	s.active = active
	return s, nil
}

func (s *Store) readBootPointer() (string, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, bootFile))
	if errors.Is(err, os.ErrNotExist) {
		if err := s.writeBootPointer("a"); err != nil {
			return "", err
		}
		return "a", nil
	}
	if err != nil {
		return "", fmt.Errorf("read boot pointer: %w", err)
	}
	v := strings.TrimSpace(string(raw))
	if v != "a" && v != "b" {
		return "", fmt.Errorf("corrupt boot pointer %q", v)
	}
	return v, nil
}

// writeBootPointer commits the pointer atomically: write aside, then rename
func (s *Store) writeBootPointer(bank string) error {
	tmp := filepath.Join(s.dir, bootFile+".tmp")
	if err := os.WriteFile(tmp, []byte(bank+"\n"), 0o644); err != nil {
		return fmt.Errorf("write boot pointer: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, bootFile)); err != nil {
		return fmt.Errorf("commit boot pointer: %w", err)
	}
	return nil
}

// ActiveBank returns "a" or "b"
func (s *Store) ActiveBank() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// InactiveCodeRegion returns the code bank the device is not booting from
func (s *Store) InactiveCodeRegion() (bridge.Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == "a" {
		return s.bankB, nil
	}
	return s.bankA, nil
}

// DataRegion returns the data region
func (s *Store) DataRegion() (bridge.Region, error) {
	return s.data, nil
}

// SetNextBoot atomically marks r as the bank used on next boot. r must be
// one of this store's code banks.
func (s *Store) SetNextBoot(r bridge.Region) error {
	var bank string
	switch r {
	case bridge.Region(s.bankA):
		bank = "a"
	case bridge.Region(s.bankB):
		bank = "b"
	default:
		return ErrUnknownRegion
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeBootPointer(bank); err != nil {
		return err
	}
	s.active = bank
	return nil
}

// RegionInfo describes one region for status reporting
type RegionInfo struct {
	Name     string
	Kind     bridge.TargetKind
	Capacity int64
	Active   bool
	Path     string
}

// Regions lists all regions of the store
func (s *Store) Regions() []RegionInfo {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	return []RegionInfo{
		{Name: s.bankA.name, Kind: bridge.TargetCode, Capacity: s.codeCap, Active: active == "a", Path: s.bankA.path},
		{Name: s.bankB.name, Kind: bridge.TargetCode, Capacity: s.codeCap, Active: active == "b", Path: s.bankB.path},
		{Name: s.data.name, Kind: bridge.TargetData, Capacity: s.dataCap, Active: true, Path: s.data.path},
	}
}

// Region is one file-backed storage region of fixed capacity
type Region struct {
	name     string
	kind     bridge.TargetKind
	path     string
	capacity int64
}

// Ensure Region implements bridge.Region at compile time
var _ bridge.Region = (*Region)(nil)

// Name returns the region name
func (r *Region) Name() string { return r.name }

// Capacity returns the region size in bytes
func (r *Region) Capacity() int64 { return r.capacity }

// ensure creates the backing file fully erased if it does not exist yet
func (r *Region) ensure() error {
	info, err := os.Stat(r.path)
	if err == nil && info.Size() == r.capacity {
		return nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat region %s: %w", r.name, err)
	}
	return r.Erase()
}

// Erase fills the whole region with the erased byte and syncs it to disk
func (r *Region) Erase() error {
	f, err := os.OpenFile(r.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("erase region %s: %w", r.name, err)
	}
	defer f.Close()

	if err := f.Truncate(r.capacity); err != nil {
		return fmt.Errorf("erase region %s: %w", r.name, err)
	}

	chunk := make([]byte, eraseChunk)
	for i := range chunk {
		chunk[i] = erasedByte
	}
	for off := int64(0); off < r.capacity; off += int64(len(chunk)) {
		n := int64(len(chunk))
		if off+n > r.capacity {
			n = r.capacity - off
		}
		if _, err := f.WriteAt(chunk[:n], off); err != nil {
			return fmt.Errorf("erase region %s: %w", r.name, err)
		}
	}
	return f.Sync()
}

// WriteAt writes p at off, rejecting anything beyond the region capacity
func (r *Region) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > r.capacity {
		return 0, ErrOutOfRange
	}
	f, err := os.OpenFile(r.path, os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open region %s: %w", r.name, err)
	}
	defer f.Close()

	n, err := f.WriteAt(p, off)
	if err != nil {
		return n, err
	}
	return n, f.Sync()
}

// ReadAt reads from the region, bounded by its capacity
func (r *Region) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= r.capacity {
		return 0, ErrOutOfRange
	}
	if off+int64(len(p)) > r.capacity {
		p = p[:r.capacity-off]
	}
	f, err := os.Open(r.path)
	if err != nil {
		return 0, fmt.Errorf("open region %s: %w", r.name, err)
	}
	defer f.Close()

	return f.ReadAt(p, off)
}
