package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync/atomic"
)

// StillAcquirer serves a single decoded image as the live frame for either
// facing. It is handy on a workstation where no camera is attached.
type StillAcquirer struct {
	Path string
}

func (a *StillAcquirer) Acquire(ctx context.Context, facing Facing) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, &AcquireError{Reason: ReasonAbort, Err: err}
	}
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, &AcquireError{Reason: ReasonNotFound, Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &AcquireError{Reason: ReasonNotReadable, Err: fmt.Errorf("decode %s: %w", a.Path, err)}
	}
	return &stillStream{img: img}, nil
}

type stillStream struct {
	img     image.Image
	stopped atomic.Bool
}

func (s *stillStream) Width() int  { return s.img.Bounds().Dx() }
func (s *stillStream) Height() int { return s.img.Bounds().Dy() }

func (s *stillStream) Frame() (image.Image, error) {
	if s.stopped.Load() {
		return nil, ErrStreamStopped
	}
	return s.img, nil
}

func (s *stillStream) Stop() { s.stopped.Store(true) }
