// SPDX-License-Identifier: MIT

package v4l2

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/ManuGH/turnstile/internal/camera"
)

var errReleased = errors.New("v4l2: feed released")

// DecodeFunc extracts a QR payload from a frame.
type DecodeFunc func(img image.Image) (string, error)

// NewQRDecoder returns a DecodeFunc backed by the zxing QR reader.
func NewQRDecoder() DecodeFunc {
	reader := qrcode.NewQRCodeReader()
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	var mu sync.Mutex
	return func(img image.Image) (string, error) {
		bmp, err := gozxing.NewBinaryBitmapFromImage(img)
		if err != nil {
			return "", err
		}
		mu.Lock()
		defer mu.Unlock()
		res, err := reader.Decode(bmp, hints)
		if err != nil {
			return "", err
		}
		return res.GetText(), nil
	}
}

// feed reads raw grayscale frames and keeps only the newest one so that
// a slow decoder never works through a backlog of stale frames.
type feed struct {
	width, height int
	decode        DecodeFunc
	stderr        *lineRing
	wait          func() error
	stop          func()

	frames    chan *image.Gray
	first     chan struct{}
	firstOnce sync.Once
	// readDone closes once the stream has ended and, when wait is set,
	// the helper has been reaped and its stderr fully copied.
	readDone chan struct{}
	readErr  error
	exitErr  error

	released chan struct{}
	once     sync.Once
}

func newFeed(r io.Reader, width, height int, decode DecodeFunc, stderr *lineRing, wait func() error) *feed {
	f := &feed{
		width:    width,
		height:   height,
		decode:   decode,
		stderr:   stderr,
		wait:     wait,
		frames:   make(chan *image.Gray, 1),
		first:    make(chan struct{}),
		readDone: make(chan struct{}),
		released: make(chan struct{}),
	}
	go f.read(r)
	return f
}

func (f *feed) read(r io.Reader) {
	defer close(f.readDone)
	size := f.width * f.height
	for {
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			f.readErr = err
			if f.wait != nil {
				f.exitErr = f.wait()
			}
			return
		}
		img := &image.Gray{Pix: buf, Stride: f.width, Rect: image.Rect(0, 0, f.width, f.height)}
		f.offer(img)
		f.firstOnce.Do(func() { close(f.first) })
	}
}

func (f *feed) offer(img *image.Gray) {
	select {
	case f.frames <- img:
		return
	default:
	}
	select {
	case <-f.frames:
	default:
	}
	select {
	case f.frames <- img:
	default:
	}
}

func (f *feed) Decode(ctx context.Context) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-f.released:
			return "", errReleased
		case img := <-f.frames:
			text, err := f.decode(img)
			if err == nil && text != "" {
				return text, nil
			}
		case <-f.readDone:
			return "", f.failure()
		}
	}
}

// failure classifies the end of the frame stream. Callers must have
// observed readDone.
func (f *feed) failure() *camera.Failure {
	var msg string
	if f.stderr != nil {
		msg = f.stderr.String()
	}
	kind := camera.ClassifyMessage(msg)
	if msg == "" {
		msg = "no diagnostic output"
	}
	if f.exitErr != nil {
		return camera.NewFailure(kind, fmt.Errorf("capture helper exited (%v): %s", f.exitErr, msg))
	}
	return camera.NewFailure(kind, fmt.Errorf("frame stream ended (%v): %s", f.readErr, msg))
}

func (f *feed) Release() error {
	f.once.Do(func() {
		close(f.released)
		if f.stop != nil {
			f.stop()
		}
	})
	return nil
}
