package live

import (
	"bytes"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/image/draw"
)

// FrameSource supplies camera frames on demand.
type FrameSource interface {
	Frame() (image.Image, error)
}

// VideoSampler grabs frames at a low fixed rate, downscales and JPEG
// encodes them, and forwards them to the attached sink. With no sink
// attached frames still reach the preview hook, so the local camera
// view keeps updating while nothing goes over the wire.
type VideoSampler struct {
	source    FrameSource
	cfg       CameraConfig
	onPreview func(image.Image)
	logger    *slog.Logger

	mu   sync.Mutex
	send func(jpeg []byte) error

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewVideoSampler(source FrameSource, cfg CameraConfig, onPreview func(image.Image), logger *slog.Logger) *VideoSampler {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultCameraConfig().FPS
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = DefaultCameraConfig().JPEGQuality
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoSampler{
		source:    source,
		cfg:       cfg,
		onPreview: onPreview,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Attach routes encoded frames to send until Detach.
func (v *VideoSampler) Attach(send func([]byte) error) {
	v.mu.Lock()
	v.send = send
	v.mu.Unlock()
}

// Detach stops forwarding frames. Sampling and preview continue.
func (v *VideoSampler) Detach() {
	v.mu.Lock()
	v.send = nil
	v.mu.Unlock()
}

// Start launches the sampling loop.
func (v *VideoSampler) Start() {
	interval := time.Duration(float64(time.Second) / v.cfg.FPS)
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := v.sampleOnce(); err != nil {
					v.logger.Warn("skipping video frame", "error", err)
				}
			case <-v.done:
				return
			}
		}
	}()
}

// Stop halts sampling. Safe to call more than once.
func (v *VideoSampler) Stop() {
	v.stopOnce.Do(func() { close(v.done) })
	v.wg.Wait()
}

func (v *VideoSampler) sampleOnce() error {
	frame, err := v.source.Frame()
	if err != nil {
		return err
	}
	if v.onPreview != nil {
		v.onPreview(frame)
	}

	v.mu.Lock()
	send := v.send
	v.mu.Unlock()
	if send == nil {
		return nil
	}

	encoded, err := v.encode(frame)
	if err != nil {
		return err
	}
	return send(encoded)
}

// encode downscales to the configured width and JPEG compresses.
func (v *VideoSampler) encode(frame image.Image) ([]byte, error) {
	bounds := frame.Bounds()
	if v.cfg.MaxWidth > 0 && bounds.Dx() > v.cfg.MaxWidth {
		scale := float64(v.cfg.MaxWidth) / float64(bounds.Dx())
		height := int(float64(bounds.Dy()) * scale)
		if height < 1 {
			height = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, v.cfg.MaxWidth, height))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, bounds, draw.Src, nil)
		frame = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: v.cfg.JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
