package live

import (
	"log/slog"
	"sync"
	"time"

	"github.com/comet-ai/comet-live/pkg/device"
)

// SchedulerConfig wires a Scheduler to its output device and callbacks.
type SchedulerConfig struct {
	Output device.Output
	Clock  device.Clock
	Format AudioConfig
	// OnActive fires when playback goes from idle to playing.
	OnActive func()
	// OnIdle fires when the last outstanding buffer ends, naturally or
	// by Flush.
	OnIdle func()
	Logger *slog.Logger
}

// Scheduler queues reply PCM chunks back to back on the output clock.
// Each chunk starts at the later of the previous chunk's end and now,
// so a stream of small chunks plays gaplessly and a stall resumes
// immediately instead of in the past.
type Scheduler struct {
	output   device.Output
	clock    device.Clock
	format   AudioConfig
	onActive func()
	onIdle   func()
	logger   *slog.Logger

	mu        sync.Mutex
	nextStart time.Time
	sources   map[*sourceToken]device.Source
	closed    bool
}

type sourceToken struct{}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = device.WallClock{}
	}
	if cfg.Format == (AudioConfig{}) {
		cfg.Format = PlaybackAudioConfig
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		output:   cfg.Output,
		clock:    cfg.Clock,
		format:   cfg.Format,
		onActive: cfg.OnActive,
		onIdle:   cfg.OnIdle,
		logger:   cfg.Logger,
		sources:  make(map[*sourceToken]device.Source),
	}
}

// Enqueue schedules one PCM chunk after everything already queued.
func (s *Scheduler) Enqueue(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	now := s.clock.Now()
	start := s.nextStart
	if start.Before(now) {
		start = now
	}
	s.nextStart = start.Add(s.format.Duration(len(pcm)))
	token := &sourceToken{}
	wasIdle := len(s.sources) == 0
	s.sources[token] = nil
	s.mu.Unlock()

	if wasIdle && s.onActive != nil {
		s.onActive()
	}

	src, err := s.output.Start(pcm, start, func() { s.complete(token) })
	if err != nil {
		s.complete(token)
		return err
	}

	s.mu.Lock()
	if _, ok := s.sources[token]; ok {
		s.sources[token] = src
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	// The buffer already finished or was flushed while Start ran.
	src.Stop()
	return nil
}

func (s *Scheduler) complete(token *sourceToken) {
	s.mu.Lock()
	if _, ok := s.sources[token]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.sources, token)
	idle := len(s.sources) == 0 && !s.closed
	s.mu.Unlock()

	if idle && s.onIdle != nil {
		s.onIdle()
	}
}

// Flush stops everything queued and resets the timeline, so the next
// Enqueue starts immediately. Used on interruption.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	had := len(s.sources) > 0
	stopped := make([]device.Source, 0, len(s.sources))
	for token, src := range s.sources {
		if src != nil {
			stopped = append(stopped, src)
		}
		delete(s.sources, token)
	}
	s.nextStart = time.Time{}
	closed := s.closed
	s.mu.Unlock()

	for _, src := range stopped {
		src.Stop()
	}
	if had && !closed && s.onIdle != nil {
		s.onIdle()
	}
}

// Outstanding reports the number of queued buffers not yet finished.
func (s *Scheduler) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// Close flushes and shuts the output device. Safe to call more than
// once; Enqueue after Close is a no-op.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stopped := make([]device.Source, 0, len(s.sources))
	for token, src := range s.sources {
		if src != nil {
			stopped = append(stopped, src)
		}
		delete(s.sources, token)
	}
	s.nextStart = time.Time{}
	s.mu.Unlock()

	for _, src := range stopped {
		src.Stop()
	}
	return s.output.Close()
}
