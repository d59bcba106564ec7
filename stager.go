package bridge

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// TargetKind selects which storage region an update is written to
type TargetKind int

const (
	TargetCode TargetKind = iota // firmware image; dual-bank, activated on commit
	TargetData                   // data/filesystem image; erased in place, live on commit
)

func (k TargetKind) String() string {
	switch k {
	case TargetCode:
		return "code"
	case TargetData:
		return "data"
	default:
		return "unknown"
	}
}

// Status is the lifecycle state of an update session
type Status int

const (
	StatusReceiving Status = iota
	StatusCommitting
	StatusComplete
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusReceiving:
		return "receiving"
	case StatusCommitting:
		return "committing"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Region is an addressable block of persistent storage with erase/write
// semantics. Writes beyond Capacity must fail.
type Region interface {
	Capacity() int64
	Erase() error
	WriteAt(p []byte, off int64) (int, error)
	ReadAt(p []byte, off int64) (int, error)
}

// Store hands out storage regions. InactiveCodeRegion must never return the
// bank the device booted from, so an interrupted update cannot brick it.
type Store interface {
	InactiveCodeRegion() (Region, error)
	DataRegion() (Region, error)
	SetNextBoot(r Region) error
}

// Verifier checks the integrity of a fully written image before it is
// committed as the next boot target.
type Verifier interface {
	Verify(r io.ReaderAt, length int64) error
}

// ChunkReader delivers the next chunk of a streamed image. Errors whose
// Timeout() method reports true are treated as transient by Session.Stream.
type ChunkReader interface {
	Read(p []byte) (int, error)
}

// SessionInfo is a point-in-time copy of a session's progress
type SessionInfo struct {
	Target   TargetKind
	Capacity int64
	Declared int64 // -1 when the total length was not declared
	Written  int64
	Status   Status
}

// Stager accepts one streamed storage update at a time. A second Begin while
// a session is active is rejected with ErrSessionBusy.
type Stager struct {
	store     Store
	verifier  Verifier
	indicator *Indicator

	maxTimeouts int
	chunkSize   int

	mu        sync.Mutex
	beginning bool
	session   *Session
	last      *SessionInfo
}

// NewStager creates a stager writing through store and committing code
// images only after verifier accepts them.
func NewStager(store Store, verifier Verifier, indicator *Indicator, opts ...Option) (*Stager, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}

	return &Stager{
		store:       store,
		verifier:    verifier,
		indicator:   indicator,
		maxTimeouts: config.MaxTimeouts,
		chunkSize:   config.ChunkSize,
	}, nil
}

// Session is one in-flight streamed update. It is owned by the goroutine
// that called Begin; target, region, capacity and declared are immutable
// after Begin, and the progress counters are atomic, so Stager.Active can
// snapshot it from any goroutine.
type Session struct {
	stager   *Stager
	target   TargetKind
	region   Region
	capacity int64
	declared int64

	written atomic.Int64
	status  atomic.Int32
	failure error // owned by the session goroutine
}

// Begin opens an update session. declared is the total image length in
// bytes, or -1 when unknown. For a code target the currently inactive bank
// is selected so the running image stays intact until commit; for a data
// target the whole region is erased synchronously before Begin returns.
func (st *Stager) Begin(kind TargetKind, declared int64) (*Session, error) {
	if !st.claim() {
		return nil, ErrSessionBusy
	}

	region, err := st.selectRegion(kind)
	if err != nil {
		st.unclaim()
		return nil, err
	}
	if declared >= 0 && declared > region.Capacity() {
		st.unclaim()
		return nil, ErrCapacityExceeded
	}
	// A data region cannot be partially erased, so it is wiped in full
	// before the first chunk arrives.
	if kind == TargetData {
		if err := region.Erase(); err != nil {
			st.unclaim()
			return nil, fmt.Errorf("erase data region: %w", err)
		}
	}

	s := &Session{
		stager:   st,
		target:   kind,
		region:   region,
		capacity: region.Capacity(),
		declared: declared,
	}
	s.status.Store(int32(StatusReceiving))

	st.mu.Lock()
	st.session = s
	st.beginning = false
	st.mu.Unlock()

	st.indicator.Set(StateUpdating)
	return s, nil
}

// claim reserves the single update slot without publishing a session, so a
// concurrent Active never observes one that is still being initialized.
func (st *Stager) claim() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.session != nil || st.beginning {
		return false
	}
	st.beginning = true
	return true
}

func (st *Stager) unclaim() {
	st.mu.Lock()
	st.beginning = false
	st.mu.Unlock()
}

func (st *Stager) selectRegion(kind TargetKind) (Region, error) {
	if kind == TargetData {
		return st.store.DataRegion()
	}
	return st.store.InactiveCodeRegion()
}

// Active returns progress of the in-flight session, if any
func (st *Stager) Active() (SessionInfo, bool) {
	st.mu.Lock()
	s := st.session
	st.mu.Unlock()
	if s == nil {
		return SessionInfo{}, false
	}
	return s.info(), true
}

// Last returns the final state of the most recently finished session
func (st *Stager) Last() (SessionInfo, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.last == nil {
		return SessionInfo{}, false
	}
	return *st.last, true
}

// release clears the active slot and records the session so it stays
// visible via Last. The indicator drops out of StateUpdating so a failed or
// finished session does not pin the in-progress display forever.
func (st *Stager) release(s *Session) {
	st.mu.Lock()
	if st.session != s {
		st.mu.Unlock()
		return
	}
	st.session = nil
	info := s.info()
	st.last = &info
	st.mu.Unlock()

	st.indicator.Reset(StateUpdating, StateIdle)
}

func (s *Session) info() SessionInfo {
	return SessionInfo{
		Target:   s.target,
		Capacity: s.capacity,
		Declared: s.declared,
		Written:  s.written.Load(),
		Status:   Status(s.status.Load()),
	}
}

// Target returns the session's target kind
func (s *Session) Target() TargetKind { return s.target }

// Written returns the number of bytes accepted so far
func (s *Session) Written() int64 { return s.written.Load() }

// Status returns the session lifecycle state
func (s *Session) Status() Status { return Status(s.status.Load()) }

// limit is the hard byte bound for this session
func (s *Session) limit() int64 {
	if s.declared >= 0 && s.declared < s.capacity {
		return s.declared
	}
	return s.capacity
}

// WriteChunk appends p at the current offset. Exceeding the region capacity
// (or the declared length, when known) fails the session permanently with
// ErrCapacityExceeded; no further writes are accepted afterwards.
func (s *Session) WriteChunk(p []byte) error {
	switch Status(s.status.Load()) {
	case StatusReceiving:
	case StatusFailed:
		return ErrSessionFailed
	default:
		return ErrNoSession
	}

	written := s.written.Load()
	if written+int64(len(p)) > s.limit() {
		return s.fail(ErrCapacityExceeded)
	}

	n, err := s.region.WriteAt(p, written)
	if err != nil {
		return s.fail(fmt.Errorf("write at offset %d: %w", written, err))
	}
	s.written.Add(int64(n))
	return nil
}

// Stream pumps chunks from src into the session until EOF. A transient
// timeout is retried at the same offset; more than the configured number of
// consecutive timeouts, or any other receive error, fails the session with
// ErrTransportFatal. Stream does not call End.
func (s *Session) Stream(src ChunkReader) error {
	buf := make([]byte, s.stager.chunkSize)
	timeouts := 0

	for {
		n, err := src.Read(buf)
		if n > 0 {
			timeouts = 0
			if werr := s.WriteChunk(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if isTimeout(err) {
			timeouts++
			if timeouts > s.stager.maxTimeouts {
				return s.fail(fmt.Errorf("%w: %d consecutive receive timeouts", ErrTransportFatal, timeouts))
			}
			continue
		}
		return s.fail(fmt.Errorf("%w: %v", ErrTransportFatal, err))
	}
}

// End finishes the session. When a length was declared, anything short of it
// is ErrIncomplete; an image with no bytes at all is ErrIncomplete too. A code image is handed to the verifier and only marked
// as next boot target when it passes; the previously active bank is never
// touched. Nil return means the caller should now restart the device.
func (s *Session) End() error {
	switch Status(s.status.Load()) {
	case StatusReceiving:
	case StatusFailed:
		return s.failure
	default:
		return ErrNoSession
	}

	written := s.written.Load()
	if s.declared >= 0 && written != s.declared {
		return s.fail(ErrIncomplete)
	}
	// A zero-byte image can slip past the declared check on a chunked
	// upload; committing it would boot nothing or wipe the data region.
	if written == 0 {
		return s.fail(ErrIncomplete)
	}

	s.status.Store(int32(StatusCommitting))

	if s.target == TargetCode {
		if err := s.stager.verifier.Verify(s.region, written); err != nil {
			return s.fail(fmt.Errorf("%w: %v", ErrIntegrityCheck, err))
		}
		if err := s.stager.store.SetNextBoot(s.region); err != nil {
			return s.fail(fmt.Errorf("set next boot region: %w", err))
		}
	}

	s.status.Store(int32(StatusComplete))
	s.stager.release(s)
	return nil
}

// fail marks the session failed, frees the stager slot and returns err.
// Every failure path leaves the active boot region byte-for-byte untouched:
// writes only ever target the inactive bank and the boot pointer moves only
// after the verifier has passed.
func (s *Session) fail(err error) error {
	s.failure = err
	s.status.Store(int32(StatusFailed))
	s.stager.release(s)
	return err
}

// isTimeout reports whether err is transient per the retry policy
func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
