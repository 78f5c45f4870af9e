// Package imaging normalizes uploaded photos: images larger than the
// configured bound are scaled down and every output is a baseline JPEG.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"runtime"

	// Registered decoders.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrTooManyPixels     = errors.New("image dimensions too large")
)

const OutputContentType = "image/jpeg"

type Options struct {
	// MaxDimension bounds the longer edge in pixels.
	MaxDimension int
	// Quality is the JPEG quality, 1..100.
	Quality int
	// MaxPixels caps width*height of the source as declared in its header.
	// Larger images are rejected before any pixel is decoded.
	MaxPixels int64
	// Parallelism caps concurrent files in ProcessAll. Zero means GOMAXPROCS.
	Parallelism int
}

const DefaultMaxPixels = 40_000_000

func DefaultOptions() Options {
	return Options{MaxDimension: 1600, Quality: 82, MaxPixels: DefaultMaxPixels}
}

type Result struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	// SourceFormat is the decoder name, e.g. "png".
	SourceFormat string
	Resized      bool
}

// Process decodes src and re-encodes it as JPEG, scaling it so neither edge
// exceeds MaxDimension. Transparent areas are flattened onto white.
func Process(src []byte, opts Options) (*Result, error) {
	opts = normalize(opts)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedFormat
		}
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > opts.MaxPixels {
		return nil, ErrTooManyPixels
	}

	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedFormat
		}
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := img.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), opts.MaxDimension)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	return &Result{
		Data:         buf.Bytes(),
		ContentType:  OutputContentType,
		Width:        w,
		Height:       h,
		SourceFormat: format,
		Resized:      w != b.Dx() || h != b.Dy(),
	}, nil
}

// ProcessAll runs Process over every input concurrently. Results keep input
// order. The first failure cancels the remaining work and is returned with
// the index of the offending file.
func ProcessAll(ctx context.Context, inputs [][]byte, opts Options) ([]*Result, error) {
	opts = normalize(opts)
	results := make([]*Result, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := Process(in, opts)
			if err != nil {
				return &FileError{Index: i, Err: err}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// FileError identifies which input of a batch failed.
type FileError struct {
	Index int
	Err   error
}

func (e *FileError) Error() string { return fmt.Sprintf("file %d: %v", e.Index, e.Err) }
func (e *FileError) Unwrap() error { return e.Err }

func normalize(opts Options) Options {
	def := DefaultOptions()
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = def.MaxDimension
	}
	if opts.Quality < 1 || opts.Quality > 100 {
		opts.Quality = def.Quality
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = def.MaxPixels
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.GOMAXPROCS(0)
	}
	return opts
}

// fitWithin scales w x h down, preserving aspect ratio, so the longer edge
// is at most max. Images already within bounds are unchanged.
func fitWithin(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}
