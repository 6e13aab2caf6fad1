package resource

import (
	"context"
	"io"
)

// RateLimitedReader throttles reads through the controller's IO limiter.
type RateLimitedReader struct {
	ctx context.Context
	r   io.Reader
	c   *Controller
}

// NewRateLimitedReader wraps r. With a nil controller reads pass through.
func NewRateLimitedReader(ctx context.Context, r io.Reader, c *Controller) *RateLimitedReader {
	return &RateLimitedReader{ctx: ctx, r: r, c: c}
}

func (r *RateLimitedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.c.AcquireIO(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// RateLimitedWriter throttles writes through the controller's IO limiter.
type RateLimitedWriter struct {
	ctx context.Context
	w   io.Writer
	c   *Controller
}

// NewRateLimitedWriter wraps w. With a nil controller writes pass through.
func NewRateLimitedWriter(ctx context.Context, w io.Writer, c *Controller) *RateLimitedWriter {
	return &RateLimitedWriter{ctx: ctx, w: w, c: c}
}

func (w *RateLimitedWriter) Write(p []byte) (int, error) {
	if err := w.c.AcquireIO(w.ctx, len(p)); err != nil {
		return 0, err
	}
	return w.w.Write(p)
}
