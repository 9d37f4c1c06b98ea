package capture

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/large-farva/precision-lens/internal/telemetry"
)

// ReviewLastCapture loads the stored capture, stops the camera and makes the
// image the current review image. It returns the stored data URL.
func (p *Pipeline) ReviewLastCapture(ctx context.Context, cam Stopper) (string, error) {
	if p.opts.Store == nil {
		p.publish(StatusStorageMissing)
		return "", ErrStorageUnavailable
	}

	img, ok, err := p.opts.Store.GetItem(ctx, p.opts.StorageKey)
	if err != nil {
		p.log.Error("load capture", "error", err)
		p.publish(fmt.Sprintf("Review failed: %v", err))
		return "", fmt.Errorf("load %s: %w", p.opts.StorageKey, err)
	}
	if !ok || img == "" {
		p.publish(StatusNoPhoto)
		return "", ErrNoCapture
	}

	if cam != nil {
		cam.Stop()
	}

	p.mu.Lock()
	p.review = img
	p.mu.Unlock()

	p.emit(telemetry.Review{Event: telemetry.Stamp(telemetry.EventReview), Image: img})
	p.publish(StatusReviewing)
	return img, nil
}

// Review returns the image currently under review, or "" when the preview
// shows the live stream.
func (p *Pipeline) Review() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.review
}

// ClearReview returns the display to the live stream.
func (p *Pipeline) ClearReview() {
	p.mu.Lock()
	p.review = ""
	p.mu.Unlock()
}

// LastCapture reads the stored image and its metadata without touching the
// camera. Meta is zero when none was stored.
func (p *Pipeline) LastCapture(ctx context.Context) (string, Meta, error) {
	if p.opts.Store == nil {
		return "", Meta{}, ErrStorageUnavailable
	}
	img, ok, err := p.opts.Store.GetItem(ctx, p.opts.StorageKey)
	if err != nil {
		return "", Meta{}, fmt.Errorf("load %s: %w", p.opts.StorageKey, err)
	}
	if !ok {
		return "", Meta{}, ErrNoCapture
	}

	var meta Meta
	if raw, ok, err := p.opts.Store.GetItem(ctx, MetaKey(p.opts.StorageKey)); err == nil && ok {
		_ = json.Unmarshal([]byte(raw), &meta)
	}
	return img, meta, nil
}
