package live

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
)

type stubFrameSource struct {
	mu    sync.Mutex
	frame image.Image
	err   error
	calls int
}

func (s *stubFrameSource) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.frame, s.err
}

func solidFrame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	return img
}

func TestVideoSamplerEncodesAndSends(t *testing.T) {
	src := &stubFrameSource{frame: solidFrame(1280, 720)}
	v := NewVideoSampler(src, DefaultCameraConfig(), nil, testLogger())

	var sent [][]byte
	v.Attach(func(frame []byte) error {
		sent = append(sent, frame)
		return nil
	})

	if err := v.sampleOnce(); err != nil {
		t.Fatalf("sampleOnce: %v", err)
	}
	if len(sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(sent))
	}

	decoded, err := jpeg.Decode(bytes.NewReader(sent[0]))
	if err != nil {
		t.Fatalf("payload is not valid JPEG: %v", err)
	}
	if got := decoded.Bounds().Dx(); got != 640 {
		t.Errorf("width = %d, want 640", got)
	}
	// Aspect ratio is preserved.
	if got := decoded.Bounds().Dy(); got != 360 {
		t.Errorf("height = %d, want 360", got)
	}
}

func TestVideoSamplerKeepsSmallFrames(t *testing.T) {
	src := &stubFrameSource{frame: solidFrame(320, 240)}
	v := NewVideoSampler(src, DefaultCameraConfig(), nil, testLogger())

	var sent [][]byte
	v.Attach(func(frame []byte) error {
		sent = append(sent, frame)
		return nil
	})
	if err := v.sampleOnce(); err != nil {
		t.Fatalf("sampleOnce: %v", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(sent[0]))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bounds().Dx() != 320 || decoded.Bounds().Dy() != 240 {
		t.Errorf("bounds = %v, want 320x240", decoded.Bounds())
	}
}

func TestVideoSamplerDetachedSkipsSend(t *testing.T) {
	src := &stubFrameSource{frame: solidFrame(640, 480)}

	previews := 0
	v := NewVideoSampler(src, DefaultCameraConfig(), func(image.Image) { previews++ }, testLogger())

	if err := v.sampleOnce(); err != nil {
		t.Fatalf("sampleOnce: %v", err)
	}
	if previews != 1 {
		t.Errorf("previews = %d, want 1", previews)
	}

	sent := 0
	v.Attach(func([]byte) error { sent++; return nil })
	if err := v.sampleOnce(); err != nil {
		t.Fatalf("sampleOnce: %v", err)
	}
	v.Detach()
	if err := v.sampleOnce(); err != nil {
		t.Fatalf("sampleOnce: %v", err)
	}

	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
	if previews != 3 {
		t.Errorf("previews = %d, want 3", previews)
	}
}

func TestVideoSamplerPropagatesSourceError(t *testing.T) {
	src := &stubFrameSource{err: errors.New("camera unplugged")}
	v := NewVideoSampler(src, DefaultCameraConfig(), nil, testLogger())
	if err := v.sampleOnce(); err == nil {
		t.Fatal("expected source error")
	}
}

func TestVideoSamplerStopIsIdempotent(t *testing.T) {
	src := &stubFrameSource{frame: solidFrame(64, 64)}
	v := NewVideoSampler(src, DefaultCameraConfig(), nil, testLogger())
	v.Start()
	v.Stop()
	v.Stop()
}
