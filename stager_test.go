package bridge

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// memRegion is an in-memory Region with flash-like erase semantics
type memRegion struct {
	buf      []byte
	erased   int
	eraseErr error
	writeErr error
}

func newMemRegion(capacity int) *memRegion {
	return &memRegion{buf: make([]byte, capacity)}
}

func (r *memRegion) Capacity() int64 { return int64(len(r.buf)) }

func (r *memRegion) Erase() error {
	if r.eraseErr != nil {
		return r.eraseErr
	}
	for i := range r.buf {
		r.buf[i] = 0xFF
	}
	r.erased++
	return nil
}

func (r *memRegion) WriteAt(p []byte, off int64) (int, error) {
	if r.writeErr != nil {
		return 0, r.writeErr
	}
	if off+int64(len(p)) > int64(len(r.buf)) {
		return 0, errors.New("write out of bounds")
	}
	copy(r.buf[off:], p)
	return len(p), nil
}

func (r *memRegion) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(r.buf)) {
		return 0, io.EOF
	}
	n := copy(p, r.buf[off:])
	return n, nil
}

// memStore is a dual-bank Store; bank A is the active boot bank
type memStore struct {
	bankA, bankB *memRegion
	data         *memRegion
	boot         string
	setBootErr   error
	bootChanges  int
}

func newMemStore(codeCap, dataCap int) *memStore {
	return &memStore{
		bankA: newMemRegion(codeCap),
		bankB: newMemRegion(codeCap),
		data:  newMemRegion(dataCap),
		boot:  "a",
	}
}

func (s *memStore) InactiveCodeRegion() (Region, error) {
	if s.boot == "a" {
		return s.bankB, nil
	}
	return s.bankA, nil
}

func (s *memStore) DataRegion() (Region, error) { return s.data, nil }

func (s *memStore) SetNextBoot(r Region) error {
	if s.setBootErr != nil {
		return s.setBootErr
	}
	s.bootChanges++
	if r == Region(s.bankA) {
		s.boot = "a"
	} else {
		s.boot = "b"
	}
	return nil
}

type fakeVerifier struct {
	err   error
	calls int
}

func (v *fakeVerifier) Verify(r io.ReaderAt, length int64) error {
	v.calls++
	return v.err
}

func newTestStager(t *testing.T, store Store, v Verifier, opts ...Option) (*Stager, *Indicator) {
	t.Helper()
	ind, err := NewIndicator()
	if err != nil {
		t.Fatalf("NewIndicator failed: %v", err)
	}
	st, err := NewStager(store, v, ind, opts...)
	if err != nil {
		t.Fatalf("NewStager failed: %v", err)
	}
	return st, ind
}

func TestBeginRejectsSecondSession(t *testing.T) {
	st, _ := newTestStager(t, newMemStore(1024, 1024), &fakeVerifier{})

	sess, err := st.Begin(TargetCode, 100)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := st.Begin(TargetCode, 100); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("Expected ErrSessionBusy, got %v", err)
	}

	// The slot frees on terminal status.
	if err := sess.WriteChunk(make([]byte, 100)); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	if err := sess.End(); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if _, err := st.Begin(TargetCode, 100); err != nil {
		t.Errorf("Expected Begin to succeed after completion, got %v", err)
	}
}

func TestBeginDeclaredLengthExceedsCapacity(t *testing.T) {
	st, _ := newTestStager(t, newMemStore(1024, 512), &fakeVerifier{})

	tests := []struct {
		name     string
		kind     TargetKind
		declared int64
		wantErr  error
	}{
		{"code too large", TargetCode, 1025, ErrCapacityExceeded},
		{"data too large", TargetData, 513, ErrCapacityExceeded},
		{"code at capacity", TargetCode, 1024, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := st.Begin(tt.kind, tt.declared)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
			if sess != nil {
				sess.fail(errors.New("test cleanup"))
			}
		})
	}
}

func TestBeginErasesDataRegion(t *testing.T) {
	store := newMemStore(1024, 512)
	store.data.buf[0] = 0x42
	st, _ := newTestStager(t, store, &fakeVerifier{})

	sess, err := st.Begin(TargetData, 16)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if store.data.erased != 1 {
		t.Errorf("Expected exactly one erase, got %d", store.data.erased)
	}
	if store.data.buf[0] != 0xFF {
		t.Errorf("Expected erased region, got 0x%02X at offset 0", store.data.buf[0])
	}
	sess.fail(errors.New("test cleanup"))
}

func TestBeginDoesNotEraseCodeRegion(t *testing.T) {
	store := newMemStore(1024, 512)
	st, _ := newTestStager(t, store, &fakeVerifier{})

	sess, err := st.Begin(TargetCode, 16)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if store.bankB.erased != 0 {
		t.Errorf("Expected no erase for code target, got %d", store.bankB.erased)
	}
	sess.fail(errors.New("test cleanup"))
}

func TestBeginRaisesUpdating(t *testing.T) {
	st, ind := newTestStager(t, newMemStore(1024, 512), &fakeVerifier{})

	if _, err := st.Begin(TargetCode, 16); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if got := ind.State(); got != StateUpdating {
		t.Errorf("Expected StateUpdating, got %v", got)
	}
}

func TestTerminalSessionReleasesUpdating(t *testing.T) {
	st, ind := newTestStager(t, newMemStore(1024, 512), &fakeVerifier{})

	sess, err := st.Begin(TargetCode, 16)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if got := ind.State(); got != StateUpdating {
		t.Fatalf("Expected StateUpdating, got %v", got)
	}

	sess.fail(errors.New("boom"))

	if got := ind.State(); got == StateUpdating {
		t.Error("Expected indicator to leave StateUpdating after session failure")
	}
	if _, err := st.Begin(TargetCode, 16); err != nil {
		t.Errorf("Expected slot to be free after failure, got %v", err)
	}
}

func TestDeclaredLengthSession(t *testing.T) {
	store := newMemStore(4096, 512)
	active := bytes.Clone(store.bankA.buf)
	st, _ := newTestStager(t, store, &fakeVerifier{})

	sess, err := st.Begin(TargetCode, 1000)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	for _, size := range []int{400, 400, 200} {
		if err := sess.WriteChunk(make([]byte, size)); err != nil {
			t.Fatalf("WriteChunk(%d) failed: %v", size, err)
		}
		if !bytes.Equal(store.bankA.buf, active) {
			t.Fatal("Active bank modified during receive")
		}
	}

	if err := sess.End(); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if got := sess.Written(); got != 1000 {
		t.Errorf("Expected 1000 bytes written, got %d", got)
	}
	if got := sess.Status(); got != StatusComplete {
		t.Errorf("Expected StatusComplete, got %v", got)
	}
	if store.boot != "b" {
		t.Errorf("Expected boot pointer moved to bank b, got %q", store.boot)
	}
}

func TestWriteChunkCapacityExceeded(t *testing.T) {
	store := newMemStore(1000, 512)
	st, _ := newTestStager(t, store, &fakeVerifier{})

	sess, err := st.Begin(TargetCode, -1)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := sess.WriteChunk(make([]byte, 600)); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	if err := sess.WriteChunk(make([]byte, 600)); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Expected ErrCapacityExceeded, got %v", err)
	}

	// All further writes are rejected for this session.
	if err := sess.WriteChunk(make([]byte, 1)); !errors.Is(err, ErrSessionFailed) {
		t.Errorf("Expected ErrSessionFailed after failure, got %v", err)
	}
	if got := sess.Status(); got != StatusFailed {
		t.Errorf("Expected StatusFailed, got %v", got)
	}
	if store.bootChanges != 0 {
		t.Errorf("Expected boot pointer untouched, got %d changes", store.bootChanges)
	}
}

func TestWriteChunkDeclaredLengthBound(t *testing.T) {
	st, _ := newTestStager(t, newMemStore(4096, 512), &fakeVerifier{})

	sess, err := st.Begin(TargetCode, 100)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := sess.WriteChunk(make([]byte, 101)); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("Expected ErrCapacityExceeded beyond declared length, got %v", err)
	}
}

func TestEndIncomplete(t *testing.T) {
	st, _ := newTestStager(t, newMemStore(4096, 512), &fakeVerifier{})

	sess, err := st.Begin(TargetCode, 1000)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := sess.WriteChunk(make([]byte, 400)); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	if err := sess.End(); !errors.Is(err, ErrIncomplete) {
		t.Errorf("Expected ErrIncomplete, got %v", err)
	}
}

func TestEndRejectsEmptyImage(t *testing.T) {
	store := newMemStore(4096, 512)
	st, _ := newTestStager(t, store, &fakeVerifier{})

	// An undeclared length has no total to compare against, so zero bytes
	// would otherwise commit.
	sess, err := st.Begin(TargetCode, -1)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := sess.End(); !errors.Is(err, ErrIncomplete) {
		t.Errorf("Expected ErrIncomplete for empty image, got %v", err)
	}
	if store.bootChanges != 0 {
		t.Errorf("Expected boot pointer untouched, got %d changes", store.bootChanges)
	}
	if got := sess.Status(); got != StatusFailed {
		t.Errorf("Expected StatusFailed, got %v", got)
	}
}

func TestActiveNeverReportsPartialSession(t *testing.T) {
	st, _ := newTestStager(t, newMemStore(1024, 512), &fakeVerifier{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			sess, err := st.Begin(TargetData, 64)
			if err != nil {
				t.Errorf("Begin failed: %v", err)
				return
			}
			sess.fail(errors.New("cycle"))
		}
	}()

	// Poll concurrently with the begin/fail cycles. A published session
	// must always carry its region capacity.
	for {
		select {
		case <-done:
			return
		default:
		}
		if info, ok := st.Active(); ok && info.Capacity != 512 {
			t.Fatalf("Expected capacity 512 on active session, got %d", info.Capacity)
		}
	}
}

func TestEndIntegrityCheckFailed(t *testing.T) {
	store := newMemStore(4096, 512)
	v := &fakeVerifier{err: errors.New("bad image magic")}
	st, _ := newTestStager(t, store, v)

	sess, err := st.Begin(TargetCode, 16)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := sess.WriteChunk(make([]byte, 16)); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}

	err = sess.End()
	if !errors.Is(err, ErrIntegrityCheck) {
		t.Fatalf("Expected ErrIntegrityCheck, got %v", err)
	}
	if v.calls != 1 {
		t.Errorf("Expected one verifier call, got %d", v.calls)
	}
	if store.bootChanges != 0 {
		t.Errorf("Expected boot pointer untouched after failed verify, got %d changes", store.bootChanges)
	}
	if store.boot != "a" {
		t.Errorf("Expected device still booting bank a, got %q", store.boot)
	}
}

func TestEndDataRegionSkipsActivation(t *testing.T) {
	store := newMemStore(4096, 512)
	v := &fakeVerifier{}
	st, _ := newTestStager(t, store, v)

	sess, err := st.Begin(TargetData, 32)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := sess.WriteChunk(make([]byte, 32)); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	if err := sess.End(); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if v.calls != 0 {
		t.Errorf("Expected no verifier call for data target, got %d", v.calls)
	}
	if store.bootChanges != 0 {
		t.Errorf("Expected no boot pointer change for data target, got %d", store.bootChanges)
	}
}

// timeoutErr mimics a transport read deadline expiry
type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

// scriptReader replays a fixed sequence of reads
type scriptReader struct {
	steps []scriptStep
}

type scriptStep struct {
	data []byte
	err  error
}

func (r *scriptReader) Read(p []byte) (int, error) {
	if len(r.steps) == 0 {
		return 0, io.EOF
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	n := copy(p, step.data)
	return n, step.err
}

func TestStreamRetriesTimeouts(t *testing.T) {
	store := newMemStore(4096, 512)
	active := bytes.Clone(store.bankA.buf)
	st, _ := newTestStager(t, store, &fakeVerifier{})

	sess, err := st.Begin(TargetCode, 24)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	// Two consecutive timeouts below the bound, then data flows normally.
	src := &scriptReader{steps: []scriptStep{
		{data: []byte("first-half--")},
		{err: timeoutErr{}},
		{err: timeoutErr{}},
		{data: []byte("second-half-")},
		{err: io.EOF},
	}}
	if err := sess.Stream(src); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if !bytes.Equal(store.bankA.buf, active) {
		t.Fatal("Active bank modified before commit")
	}
	if err := sess.End(); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if got := sess.Written(); got != 24 {
		t.Errorf("Expected 24 bytes written, got %d", got)
	}
	if got := sess.Status(); got != StatusComplete {
		t.Errorf("Expected StatusComplete, got %v", got)
	}
}

func TestStreamTimeoutBound(t *testing.T) {
	st, _ := newTestStager(t, newMemStore(4096, 512), &fakeVerifier{}, WithMaxTimeouts(3))

	sess, err := st.Begin(TargetCode, -1)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	src := &scriptReader{steps: []scriptStep{
		{err: timeoutErr{}},
		{err: timeoutErr{}},
		{err: timeoutErr{}},
		{err: timeoutErr{}},
	}}
	if err := sess.Stream(src); !errors.Is(err, ErrTransportFatal) {
		t.Fatalf("Expected ErrTransportFatal after exceeding timeout bound, got %v", err)
	}
	if got := sess.Status(); got != StatusFailed {
		t.Errorf("Expected StatusFailed, got %v", got)
	}
}

func TestStreamTimeoutCounterResetsOnProgress(t *testing.T) {
	st, _ := newTestStager(t, newMemStore(4096, 512), &fakeVerifier{}, WithMaxTimeouts(2))

	sess, err := st.Begin(TargetCode, -1)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	src := &scriptReader{steps: []scriptStep{
		{err: timeoutErr{}},
		{err: timeoutErr{}},
		{data: []byte("data")},
		{err: timeoutErr{}},
		{err: timeoutErr{}},
		{data: []byte("data")},
		{err: io.EOF},
	}}
	if err := sess.Stream(src); err != nil {
		t.Fatalf("Expected timeout counter to reset on progress, got %v", err)
	}
	if got := sess.Written(); got != 8 {
		t.Errorf("Expected 8 bytes written, got %d", got)
	}
}

func TestStreamFatalTransportError(t *testing.T) {
	st, _ := newTestStager(t, newMemStore(4096, 512), &fakeVerifier{})

	sess, err := st.Begin(TargetCode, -1)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	src := &scriptReader{steps: []scriptStep{
		{data: []byte("partial")},
		{err: errors.New("connection reset")},
	}}
	if err := sess.Stream(src); !errors.Is(err, ErrTransportFatal) {
		t.Fatalf("Expected ErrTransportFatal, got %v", err)
	}

	// A failed session frees the stager for the next attempt.
	if _, err := st.Begin(TargetCode, -1); err != nil {
		t.Errorf("Expected Begin to succeed after failed session, got %v", err)
	}
}

func TestActiveAndLast(t *testing.T) {
	st, _ := newTestStager(t, newMemStore(4096, 512), &fakeVerifier{})

	if _, ok := st.Active(); ok {
		t.Error("Expected no active session initially")
	}

	sess, err := st.Begin(TargetCode, 100)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := sess.WriteChunk(make([]byte, 40)); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}

	info, ok := st.Active()
	if !ok {
		t.Fatal("Expected an active session")
	}
	if info.Written != 40 || info.Declared != 100 || info.Status != StatusReceiving {
		t.Errorf("Unexpected session info: %+v", info)
	}

	if err := sess.WriteChunk(make([]byte, 60)); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	if err := sess.End(); err != nil {
		t.Fatalf("End failed: %v", err)
	}

	if _, ok := st.Active(); ok {
		t.Error("Expected no active session after End")
	}
	last, ok := st.Last()
	if !ok {
		t.Fatal("Expected a recorded last session")
	}
	if last.Status != StatusComplete || last.Written != 100 {
		t.Errorf("Unexpected last session info: %+v", last)
	}
}
