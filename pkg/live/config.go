package live

import (
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/comet-ai/comet-live/pkg/device"
)

const (
	// DefaultCaptureFrameSamples is the mic frame size in samples.
	// At 16 kHz mono 16-bit this is 2048 bytes, 64 ms per frame.
	DefaultCaptureFrameSamples = 1024

	DefaultDialTimeout = 15 * time.Second
)

// CameraConfig controls video frame sampling.
type CameraConfig struct {
	// FPS is the sampling rate. Frames are captured at most this often.
	FPS float64
	// MaxWidth bounds the encoded frame width; larger frames are
	// downscaled preserving aspect ratio.
	MaxWidth int
	// JPEGQuality is the encoder quality, 1..100.
	JPEGQuality int
}

// DefaultCameraConfig returns the standard low-bandwidth sampling shape.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		FPS:         1,
		MaxWidth:    640,
		JPEGQuality: 50,
	}
}

// Update is a snapshot of observable session state pushed to OnUpdate.
type Update struct {
	Status          Status
	ConversationLog []Turn
	CameraEnabled   bool
}

// Config carries everything a Session needs to run.
type Config struct {
	// URL is the websocket endpoint. http(s) schemes are mapped to
	// ws(s) at dial time.
	URL    string
	APIKey string
	Model  string

	Capture             AudioConfig
	Playback            AudioConfig
	CaptureFrameSamples int
	Camera              CameraConfig
	DialTimeout         time.Duration

	// OpenInput opens the microphone stream. An error here surfaces as
	// a permission failure before any connection is attempted.
	OpenInput func() (io.ReadCloser, error)
	// OpenOutput opens the playback device.
	OpenOutput func() (device.Output, error)
	// Clock drives playback scheduling. Nil means the wall clock.
	Clock device.Clock

	// OnUpdate receives state snapshots as the session progresses. It
	// is called from the session goroutine and must not block.
	OnUpdate func(Update)
	// OnCameraPreview receives every sampled camera frame, whether or
	// not it is sent upstream.
	OnCameraPreview func(image.Image)
	// OnFinalTranscript receives the merged conversation log once the
	// session ends, with whitespace-only turns already removed.
	OnFinalTranscript func([]Turn)

	Logger *slog.Logger
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("live: config URL is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("live: config Model is required")
	}
	if c.OpenInput == nil {
		return fmt.Errorf("live: config OpenInput is required")
	}
	if c.OpenOutput == nil {
		return fmt.Errorf("live: config OpenOutput is required")
	}
	return nil
}

// withDefaults fills zero fields in place.
func (c *Config) withDefaults() {
	if c.Capture == (AudioConfig{}) {
		c.Capture = CaptureAudioConfig
	}
	if c.Playback == (AudioConfig{}) {
		c.Playback = PlaybackAudioConfig
	}
	if c.CaptureFrameSamples <= 0 {
		c.CaptureFrameSamples = DefaultCaptureFrameSamples
	}
	if c.Camera == (CameraConfig{}) {
		c.Camera = DefaultCameraConfig()
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.Clock == nil {
		c.Clock = device.WallClock{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
