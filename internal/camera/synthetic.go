package camera

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
)

// SyntheticAcquirer produces a moving test pattern so the controller can run
// end to end without camera hardware. Facings listed in Unavailable fail
// with NotFoundError.
type SyntheticAcquirer struct {
	Width       int
	Height      int
	Unavailable map[Facing]bool
}

// NewSyntheticAcquirer returns a source of the given native resolution.
func NewSyntheticAcquirer(width, height int, unavailable ...Facing) *SyntheticAcquirer {
	a := &SyntheticAcquirer{
		Width:       width,
		Height:      height,
		Unavailable: make(map[Facing]bool, len(unavailable)),
	}
	for _, f := range unavailable {
		a.Unavailable[f] = true
	}
	return a
}

func (a *SyntheticAcquirer) Acquire(ctx context.Context, facing Facing) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, &AcquireError{Reason: ReasonAbort, Err: err}
	}
	if a.Unavailable[facing] {
		return nil, &AcquireError{Reason: ReasonNotFound}
	}
	return &syntheticStream{width: a.Width, height: a.Height, facing: facing}, nil
}

type syntheticStream struct {
	width  int
	height int
	facing Facing

	tick    atomic.Uint32
	stopped atomic.Bool
	once    sync.Once
}

func (s *syntheticStream) Width() int  { return s.width }
func (s *syntheticStream) Height() int { return s.height }

// Frame renders a gradient tinted by facing with a bright centre cross, so a
// zoomed capture is visibly different from an unzoomed one.
func (s *syntheticStream) Frame() (image.Image, error) {
	if s.stopped.Load() {
		return nil, ErrStreamStopped
	}
	n := uint8(s.tick.Add(1))
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	cx, cy := s.width/2, s.height/2
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			c := color.RGBA{
				R: uint8(x * 255 / max(s.width-1, 1)),
				G: uint8(y * 255 / max(s.height-1, 1)),
				B: n,
				A: 255,
			}
			if s.facing == User {
				c.R, c.B = c.B, c.R
			}
			if abs(x-cx) < 2 || abs(y-cy) < 2 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}

func (s *syntheticStream) Stop() {
	s.once.Do(func() { s.stopped.Store(true) })
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
