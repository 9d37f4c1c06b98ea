package camera

import (
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/large-farva/precision-lens/internal/status"
)

type fakeStream struct {
	w, h  int
	stops int
}

func (s *fakeStream) Width() int  { return s.w }
func (s *fakeStream) Height() int { return s.h }
func (s *fakeStream) Frame() (image.Image, error) {
	if s.stops > 0 {
		return nil, ErrStreamStopped
	}
	return image.NewRGBA(image.Rect(0, 0, s.w, s.h)), nil
}
func (s *fakeStream) Stop() { s.stops++ }

type fakeAcquirer struct {
	calls   []Facing
	streams []*fakeStream
	err     error
	// live counts streams handed out and not yet stopped at acquire time.
	liveAtAcquire []int
}

func (a *fakeAcquirer) Acquire(_ context.Context, f Facing) (Stream, error) {
	a.calls = append(a.calls, f)
	live := 0
	for _, s := range a.streams {
		if s.stops == 0 {
			live++
		}
	}
	a.liveAtAcquire = append(a.liveAtAcquire, live)
	if a.err != nil {
		return nil, a.err
	}
	s := &fakeStream{w: 640, h: 480}
	a.streams = append(a.streams, s)
	return s, nil
}

func newTestSession(acq Acquirer) (*Session, *status.Recorder) {
	rec := &status.Recorder{}
	s := NewSession(Options{
		Acquirer: acq,
		Status:   rec,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return s, rec
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestStartActivates(t *testing.T) {
	acq := &fakeAcquirer{}
	s, rec := newTestSession(acq)

	if err := s.Start(context.Background(), User); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.Active() {
		t.Fatal("session should be active")
	}
	if s.Facing() != User {
		t.Errorf("facing = %s", s.Facing())
	}
	if rec.Last() != "Facing: user / Zoom: 1.0x" {
		t.Errorf("status = %q", rec.Last())
	}
}

func TestStartWhileActiveToggles(t *testing.T) {
	acq := &fakeAcquirer{}
	s, rec := newTestSession(acq)
	ctx := context.Background()

	_ = s.Start(ctx, Environment)
	if err := s.Start(ctx, Environment); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if s.Active() {
		t.Error("second Start should stop the session")
	}
	if len(acq.calls) != 1 {
		t.Errorf("expected one acquisition, got %d", len(acq.calls))
	}
	if acq.streams[0].stops != 1 {
		t.Errorf("stream should be stopped once, got %d", acq.streams[0].stops)
	}
	if rec.Last() != "Camera stopped." {
		t.Errorf("status = %q", rec.Last())
	}
}

func TestStartFailureReportsReason(t *testing.T) {
	acq := &fakeAcquirer{err: &AcquireError{Reason: ReasonNotAllowed}}
	s, rec := newTestSession(acq)

	err := s.Start(context.Background(), Environment)
	if err == nil {
		t.Fatal("expected error")
	}
	var ae *AcquireError
	if !errors.As(err, &ae) || ae.Reason != ReasonNotAllowed {
		t.Errorf("expected NotAllowedError, got %v", err)
	}
	if s.Active() {
		t.Error("failed start must leave the session inactive")
	}
	if rec.Last() != "Camera Error: NotAllowedError. Tap Start to try again." {
		t.Errorf("status = %q", rec.Last())
	}
}

func TestStopIdempotent(t *testing.T) {
	acq := &fakeAcquirer{}
	s, rec := newTestSession(acq)
	ctx := context.Background()

	if s.Stop() {
		t.Error("Stop on a fresh session should be a no-op")
	}
	if len(rec.Messages()) != 0 {
		t.Errorf("no-op stop published %v", rec.Messages())
	}

	_ = s.Start(ctx, User)
	s.ZoomIn()
	s.Stop()
	facing, zoom := s.Facing(), s.Zoom()

	if s.Stop() {
		t.Error("second Stop should be a no-op")
	}
	if s.Facing() != facing || s.Zoom() != zoom {
		t.Errorf("Stop changed facing/zoom: %s %.2f", s.Facing(), s.Zoom())
	}
	if facing != User || !approx(zoom, 1.2) {
		t.Errorf("stop should keep facing and zoom, got %s %.2f", facing, zoom)
	}
	if acq.streams[0].stops != 1 {
		t.Errorf("stream stopped %d times", acq.streams[0].stops)
	}
}

func TestSwitchFacingInactiveNoop(t *testing.T) {
	acq := &fakeAcquirer{}
	s, _ := newTestSession(acq)

	if err := s.SwitchFacing(context.Background()); err != nil {
		t.Fatalf("SwitchFacing: %v", err)
	}
	if len(acq.calls) != 0 {
		t.Errorf("inactive switch must not acquire, got %d calls", len(acq.calls))
	}
	if s.Facing() != Environment {
		t.Errorf("facing changed to %s", s.Facing())
	}
}

func TestSwitchFacingReleasesBeforeAcquire(t *testing.T) {
	acq := &fakeAcquirer{}
	s, _ := newTestSession(acq)
	ctx := context.Background()

	_ = s.Start(ctx, Environment)
	if err := s.SwitchFacing(ctx); err != nil {
		t.Fatalf("SwitchFacing: %v", err)
	}
	if s.Facing() != User || !s.Active() {
		t.Fatalf("expected active user session, got %s active=%v", s.Facing(), s.Active())
	}
	if acq.liveAtAcquire[1] != 0 {
		t.Errorf("old stream still live during acquisition (%d live)", acq.liveAtAcquire[1])
	}
	if _, err := acq.streams[0].Frame(); !errors.Is(err, ErrStreamStopped) {
		t.Error("old stream should not deliver frames after a switch")
	}
}

func TestRestartFromInactive(t *testing.T) {
	acq := &fakeAcquirer{}
	s, _ := newTestSession(acq)
	if err := s.Restart(context.Background(), User); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if !s.Active() || s.Facing() != User {
		t.Error("Restart should start an inactive session")
	}
}

func TestZoomInactiveNoop(t *testing.T) {
	s, rec := newTestSession(&fakeAcquirer{})
	s.ZoomIn()
	s.ZoomOut()
	if s.Zoom() != 1.0 {
		t.Errorf("zoom = %v", s.Zoom())
	}
	if len(rec.Messages()) != 0 {
		t.Errorf("inactive zoom published %v", rec.Messages())
	}
}

func TestZoomRoundTrip(t *testing.T) {
	s, _ := newTestSession(&fakeAcquirer{})
	_ = s.Start(context.Background(), Environment)

	// Walk every grid point below the maximum and check in/out returns to it.
	for i := 0; i < 10; i++ {
		start := s.Zoom()
		s.ZoomIn()
		s.ZoomOut()
		if !approx(s.Zoom(), start) {
			t.Fatalf("zoom in/out from %.1f returned %.10f", start, s.Zoom())
		}
		s.ZoomIn()
	}
	if !approx(s.Zoom(), 3.0) {
		t.Fatalf("expected to reach 3.0, got %v", s.Zoom())
	}
}

func TestZoomClampIdempotent(t *testing.T) {
	s, rec := newTestSession(&fakeAcquirer{})
	_ = s.Start(context.Background(), Environment)

	for i := 0; i < 20; i++ {
		s.ZoomIn()
	}
	if s.Zoom() != 3.0 {
		t.Errorf("max clamp = %v", s.Zoom())
	}
	s.ZoomIn()
	if s.Zoom() != 3.0 {
		t.Errorf("zoom in at max changed zoom to %v", s.Zoom())
	}
	if rec.Last() != "Facing: environment / Zoom: 3.0x" {
		t.Errorf("status = %q", rec.Last())
	}

	for i := 0; i < 20; i++ {
		s.ZoomOut()
	}
	if s.Zoom() != 1.0 {
		t.Errorf("min clamp = %v", s.Zoom())
	}
}

func TestZoomReappliedOnStart(t *testing.T) {
	s, rec := newTestSession(&fakeAcquirer{})
	ctx := context.Background()
	_ = s.Start(ctx, Environment)
	s.ZoomIn()
	s.ZoomIn()
	s.Stop()
	_ = s.Start(ctx, Environment)
	if rec.Last() != "Facing: environment / Zoom: 1.4x" {
		t.Errorf("status = %q", rec.Last())
	}
}

func TestSnapshot(t *testing.T) {
	s, _ := newTestSession(&fakeAcquirer{})
	if _, err := s.Snapshot(); !errors.Is(err, ErrNotActive) {
		t.Errorf("expected ErrNotActive, got %v", err)
	}
	_ = s.Start(context.Background(), User)
	s.ZoomIn()
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Width != 640 || snap.Height != 480 || snap.Facing != User || !approx(snap.Zoom, 1.2) {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestNilAcquirer(t *testing.T) {
	s, rec := newTestSession(nil)
	if err := s.Start(context.Background(), Environment); err == nil {
		t.Fatal("expected error without an acquirer")
	}
	if !strings.Contains(rec.Last(), ReasonNotFound) {
		t.Errorf("status = %q", rec.Last())
	}
}

type slowAcquirer struct{}

func (slowAcquirer) Acquire(ctx context.Context, _ Facing) (Stream, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAcquireTimeout(t *testing.T) {
	rec := &status.Recorder{}
	s := NewSession(Options{
		Acquirer:       slowAcquirer{},
		Status:         rec,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		AcquireTimeout: 10 * time.Millisecond,
	})
	if err := s.Start(context.Background(), Environment); err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(rec.Last(), ReasonTimeout) {
		t.Errorf("status = %q", rec.Last())
	}
}

func TestParseFacing(t *testing.T) {
	if f, err := ParseFacing(""); err != nil || f != Environment {
		t.Errorf("empty facing = %v %v", f, err)
	}
	if f, err := ParseFacing("user"); err != nil || f != User {
		t.Errorf("user facing = %v %v", f, err)
	}
	if _, err := ParseFacing("sideways"); err == nil {
		t.Error("expected error for unknown facing")
	}
	if Environment.Opposite() != User || User.Opposite() != Environment {
		t.Error("Opposite is wrong")
	}
}

func TestSyntheticAcquirer(t *testing.T) {
	a := NewSyntheticAcquirer(64, 48, User)
	if _, err := a.Acquire(context.Background(), User); Reason(err) != ReasonNotFound {
		t.Errorf("expected NotFoundError for unavailable facing, got %v", err)
	}
	st, err := a.Acquire(context.Background(), Environment)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	img, err := st.Frame()
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 48 {
		t.Errorf("frame size %v", img.Bounds())
	}
	st.Stop()
	st.Stop()
	if _, err := st.Frame(); !errors.Is(err, ErrStreamStopped) {
		t.Errorf("expected ErrStreamStopped, got %v", err)
	}
}

func TestStillAcquirer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "still.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 32, 16))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	st, err := (&StillAcquirer{Path: path}).Acquire(context.Background(), User)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if st.Width() != 32 || st.Height() != 16 {
		t.Errorf("size %dx%d", st.Width(), st.Height())
	}

	_, err = (&StillAcquirer{Path: filepath.Join(t.TempDir(), "missing.png")}).Acquire(context.Background(), User)
	if Reason(err) != ReasonNotFound {
		t.Errorf("missing file reason = %s", Reason(err))
	}
}
