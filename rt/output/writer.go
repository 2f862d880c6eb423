// Package output persists captured frames in the background while the
// render loop continues with the next one.
package output

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gekko3d/coalumine/rt/gpu"
	"github.com/gekko3d/coalumine/rt/logging"
)

const bytesPerPixel = 4

type Option func(*Writer)

// WithDir sets the directory frames are written to. It is created on demand.
func WithDir(dir string) Option {
	return func(w *Writer) { w.dir = dir }
}

func WithEncoder(enc Encoder) Option {
	return func(w *Writer) { w.enc = enc }
}

func WithLogger(l logging.Logger) Option {
	return func(w *Writer) { w.logger = logging.OrNop(l) }
}

// Writer owns a ring of host-visible staging buffers, one per slot. The
// caller copies a finished RGBA8 image into Buffer(slot), calls WriteImage,
// and must call Wait(slot) before copying into that slot again.
type Writer struct {
	width  int
	height int
	pitch  int

	buffers []gpu.Buffer
	pending []chan struct{}

	dir    string
	enc    Encoder
	logger logging.Logger

	wg      sync.WaitGroup
	errOnce sync.Once
	err     error
	mu      sync.Mutex
}

func NewWriter(dev gpu.Device, width, height, slots int, opts ...Option) (*Writer, error) {
	if slots < 1 {
		return nil, fmt.Errorf("output: need at least one slot, got %d", slots)
	}
	w := &Writer{
		width:   width,
		height:  height,
		pitch:   dev.CopyRowPitch(width, bytesPerPixel),
		pending: make([]chan struct{}, slots),
		dir:     ".",
		enc:     JPEGEncoder{Quality: DefaultJPEGQuality},
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	for i := 0; i < slots; i++ {
		buf, err := dev.CreateBuffer(gpu.BufferDesc{
			Label:  fmt.Sprintf("imageWriter[%d]", i),
			Size:   uint64(w.pitch * height),
			Usage:  gpu.BufferUsageStaging,
			Memory: gpu.MemoryHost,
		})
		if err != nil {
			return nil, fmt.Errorf("output: staging buffer %d: %w", i, err)
		}
		w.buffers = append(w.buffers, buf)
	}
	return w, nil
}

func (w *Writer) Slots() int { return len(w.buffers) }

// Buffer is the copy destination for slot.
func (w *Writer) Buffer(slot int) gpu.Buffer { return w.buffers[slot] }

// Path is where frame is written.
func (w *Writer) Path(frame int) string {
	return filepath.Join(w.dir, fmt.Sprintf("%03d.%s", frame, w.enc.Ext()))
}

// WriteImage snapshots slot's staging memory and encodes it in the
// background. It returns immediately. A task already running on slot is
// not disturbed: the new one starts after it finishes.
func (w *Writer) WriteImage(slot, frame int) {
	img := w.snapshot(slot)
	path := w.Path(frame)

	w.mu.Lock()
	prev := w.pending[slot]
	done := make(chan struct{})
	w.pending[slot] = done
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		start := time.Now()
		if err := w.persist(path, img); err != nil {
			w.logger.Errorf("output: frame %d: %v", frame, err)
			w.errOnce.Do(func() { w.err = err })
			return
		}
		w.logger.Debugf("output: wrote %s in %v", path, time.Since(start))
	}()
}

// snapshot copies the slot's rows out of the padded staging layout.
func (w *Writer) snapshot(slot int) *image.RGBA {
	src := w.buffers[slot].Map()
	img := image.NewRGBA(image.Rect(0, 0, w.width, w.height))
	row := w.width * bytesPerPixel
	for y := 0; y < w.height; y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+row], src[y*w.pitch:y*w.pitch+row])
	}
	return img
}

func (w *Writer) persist(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := w.enc.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// Wait blocks until every task launched on slot has finished.
func (w *Writer) Wait(slot int) {
	w.mu.Lock()
	ch := w.pending[slot]
	w.mu.Unlock()
	if ch != nil {
		<-ch
	}
}

// WaitAll drains every in-flight task.
func (w *Writer) WaitAll() {
	w.wg.Wait()
}

// Err waits for in-flight tasks and returns the first encode or write
// failure.
func (w *Writer) Err() error {
	w.wg.Wait()
	return w.err
}
