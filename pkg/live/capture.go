package live

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
)

const (
	captureQueueDepth = 8

	// dropWarnWindow is the frame window over which the drop rate is
	// checked. One warning per window at most.
	dropWarnWindow    = 100
	dropWarnThreshold = 0.10
)

// CaptureStats is a point-in-time view of capture throughput. Energy
// is the normalized RMS level of the most recently sent frame.
type CaptureStats struct {
	FramesSent    uint64
	FramesDropped uint64
	Energy        float64
}

// Capture reads fixed-size PCM frames from a microphone stream and
// hands them to a sink. When the sink cannot keep up, the newest frame
// is dropped rather than blocking the device read.
type Capture struct {
	source    io.ReadCloser
	sink      func(pcm []byte) error
	frameSize int
	logger    *slog.Logger

	frames chan []byte
	done   chan struct{}
	wg     sync.WaitGroup

	stopOnce sync.Once
	stopped  atomic.Bool

	sent    atomic.Uint64
	dropped atomic.Uint64
	energy  atomic.Uint64

	windowMu      sync.Mutex
	windowFrames  int
	windowDropped int
}

// NewCapture wires a source to a sink. frameSamples is the frame size
// in 16-bit mono samples.
func NewCapture(source io.ReadCloser, frameSamples int, sink func(pcm []byte) error, logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{
		source:    source,
		sink:      sink,
		frameSize: frameSamples * 2,
		logger:    logger,
		frames:    make(chan []byte, captureQueueDepth),
		done:      make(chan struct{}),
	}
}

// Start launches the read and send loops.
func (c *Capture) Start() {
	c.wg.Add(2)
	go c.readLoop()
	go c.sendLoop()
}

// Stop closes the source and waits for both loops to drain. Safe to
// call more than once.
func (c *Capture) Stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		c.source.Close()
		close(c.done)
	})
	c.wg.Wait()
}

// Stats returns current frame counters and the latest frame energy.
func (c *Capture) Stats() CaptureStats {
	return CaptureStats{
		FramesSent:    c.sent.Load(),
		FramesDropped: c.dropped.Load(),
		Energy:        math.Float64frombits(c.energy.Load()),
	}
}

func (c *Capture) readLoop() {
	defer c.wg.Done()
	defer close(c.frames)
	for {
		frame := make([]byte, c.frameSize)
		if _, err := io.ReadFull(c.source, frame); err != nil {
			// A dead mic mid-session leaves the conversation running
			// text-only; it must not go unnoticed.
			if !c.stopped.Load() && !errors.Is(err, io.EOF) {
				c.logger.Error("microphone capture failed", "error", err)
			}
			return
		}
		select {
		case c.frames <- frame:
		default:
			c.noteDrop()
		}
	}
}

func (c *Capture) sendLoop() {
	defer c.wg.Done()
	for {
		select {
		case frame, ok := <-c.frames:
			if !ok {
				return
			}
			if err := c.sink(frame); err != nil {
				c.logger.Warn("dropping capture frame", "error", err)
				c.noteDrop()
				continue
			}
			c.energy.Store(math.Float64bits(CalculateRMSEnergy(frame)))
			c.sent.Add(1)
			c.noteWindowFrame(false)
		case <-c.done:
			return
		}
	}
}

func (c *Capture) noteDrop() {
	c.dropped.Add(1)
	c.noteWindowFrame(true)
}

// noteWindowFrame tracks the drop rate over a sliding window of recent
// frames and warns once per window when it crosses the threshold.
func (c *Capture) noteWindowFrame(droppedFrame bool) {
	c.windowMu.Lock()
	defer c.windowMu.Unlock()
	c.windowFrames++
	if droppedFrame {
		c.windowDropped++
	}
	if c.windowFrames < dropWarnWindow {
		return
	}
	rate := float64(c.windowDropped) / float64(c.windowFrames)
	if rate > dropWarnThreshold {
		c.logger.Warn("capture falling behind",
			"dropped", c.windowDropped,
			"window", c.windowFrames,
		)
	}
	c.windowFrames = 0
	c.windowDropped = 0
}
