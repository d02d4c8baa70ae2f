// Package device abstracts the local audio hardware behind small
// interfaces so the engine can be driven by real processes or by fakes
// in tests.
package device

import "time"

// Source is one scheduled playback buffer. Stop cancels it before its
// natural end; stopping an already finished source is a no-op.
type Source interface {
	Stop()
}

// Output plays raw PCM buffers at scheduled times. Start returns a
// handle for the queued buffer and invokes done exactly once, whether
// the buffer finishes naturally or is stopped.
type Output interface {
	Start(pcm []byte, at time.Time, done func()) (Source, error)
	Close() error
}

// Clock supplies the scheduling timebase.
type Clock interface {
	Now() time.Time
}

// WallClock is the real system clock.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }
