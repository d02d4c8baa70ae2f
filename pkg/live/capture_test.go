package live

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"
)

type blockingReader struct {
	data   io.Reader
	closed chan struct{}
	once   sync.Once
}

func newBlockingReader(data []byte) *blockingReader {
	return &blockingReader{
		data:   bytes.NewReader(data),
		closed: make(chan struct{}),
	}
}

// Read serves the buffered data, then blocks until Close like a live
// device would.
func (r *blockingReader) Read(p []byte) (int, error) {
	n, err := r.data.Read(p)
	if err == io.EOF && n == 0 {
		<-r.closed
		return 0, io.EOF
	}
	return n, err
}

func (r *blockingReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

func TestCaptureFramesInOrder(t *testing.T) {
	const frameSamples = 4
	frameBytes := frameSamples * 2

	var pcm []byte
	for i := 0; i < 5; i++ {
		frame := bytes.Repeat([]byte{byte(i)}, frameBytes)
		pcm = append(pcm, frame...)
	}
	source := newBlockingReader(pcm)

	var mu sync.Mutex
	var got [][]byte
	received := make(chan struct{}, 8)
	sink := func(frame []byte) error {
		mu.Lock()
		got = append(got, frame)
		mu.Unlock()
		received <- struct{}{}
		return nil
	}

	c := NewCapture(source, frameSamples, sink, testLogger())
	c.Start()
	defer c.Stop()

	for i := 0; i < 5; i++ {
		select {
		case <-received:
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for frame %d", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 5 {
		t.Fatalf("got %d frames, want 5", len(got))
	}
	for i, frame := range got {
		if len(frame) != frameBytes {
			t.Errorf("frame %d length = %d, want %d", i, len(frame), frameBytes)
		}
		if frame[0] != byte(i) {
			t.Errorf("frame %d starts with %d, want %d (out of order)", i, frame[0], i)
		}
	}

	stats := c.Stats()
	if stats.FramesSent != 5 || stats.FramesDropped != 0 {
		t.Errorf("stats = %+v, want 5 sent, 0 dropped", stats)
	}
}

func TestCaptureDiscardsShortTail(t *testing.T) {
	const frameSamples = 4
	// One full frame plus a partial one. The tail never fills a frame
	// so it must not reach the sink.
	pcm := make([]byte, frameSamples*2+3)
	source := newBlockingReader(pcm)

	received := make(chan []byte, 4)
	sink := func(frame []byte) error {
		received <- frame
		return nil
	}

	c := NewCapture(source, frameSamples, sink, testLogger())
	c.Start()

	select {
	case frame := <-received:
		if len(frame) != frameSamples*2 {
			t.Errorf("frame length = %d, want %d", len(frame), frameSamples*2)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for first frame")
	}

	c.Stop()

	select {
	case frame := <-received:
		t.Errorf("unexpected extra frame of %d bytes", len(frame))
	default:
	}
}

func TestCaptureDropsWhenSinkStalls(t *testing.T) {
	const frameSamples = 4
	frameBytes := frameSamples * 2

	// Far more frames than the queue can hold while the sink is stuck.
	total := captureQueueDepth + 20
	pcm := make([]byte, total*frameBytes)
	source := newBlockingReader(pcm)

	release := make(chan struct{})
	sink := func([]byte) error {
		<-release
		return nil
	}

	c := NewCapture(source, frameSamples, sink, testLogger())
	c.Start()

	// Wait for the reader to exhaust the buffer and start dropping.
	deadline := time.After(3 * time.Second)
	for c.Stats().FramesDropped == 0 {
		select {
		case <-deadline:
			t.Fatal("no frames dropped while sink was stalled")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(release)
	c.Stop()

	stats := c.Stats()
	if stats.FramesDropped == 0 {
		t.Error("FramesDropped = 0, want > 0")
	}
	if stats.FramesSent+stats.FramesDropped > uint64(total) {
		t.Errorf("sent %d + dropped %d exceeds %d produced",
			stats.FramesSent, stats.FramesDropped, total)
	}
}

func TestCaptureTracksFrameEnergy(t *testing.T) {
	const frameSamples = 4
	// One full-scale frame followed by silence.
	pcm := make([]byte, frameSamples*2*2)
	for i := 0; i < frameSamples*2; i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(32767)))
	}
	source := newBlockingReader(pcm)

	// The sink gates frame delivery so each Stats read observes a
	// known frame count.
	release := make(chan struct{})
	sink := func([]byte) error {
		<-release
		return nil
	}

	c := NewCapture(source, frameSamples, sink, testLogger())
	c.Start()
	defer c.Stop()

	waitSent := func(n uint64) {
		deadline := time.After(3 * time.Second)
		for c.Stats().FramesSent < n {
			select {
			case <-deadline:
				t.Fatalf("timed out at %d sent frames, want %d", c.Stats().FramesSent, n)
			case <-time.After(time.Millisecond):
			}
		}
	}

	release <- struct{}{}
	waitSent(1)
	if got := c.Stats().Energy; math.Abs(got-1.0) > 0.001 {
		t.Errorf("Energy after loud frame = %v, want ~1.0", got)
	}

	release <- struct{}{}
	waitSent(2)
	if got := c.Stats().Energy; got != 0 {
		t.Errorf("Energy after silence = %v, want 0", got)
	}
}

func TestCaptureStopIsIdempotent(t *testing.T) {
	source := newBlockingReader(nil)
	c := NewCapture(source, 4, func([]byte) error { return nil }, testLogger())
	c.Start()
	c.Stop()
	c.Stop()
}
