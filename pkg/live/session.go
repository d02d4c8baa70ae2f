package live

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/comet-ai/comet-live/pkg/core"
)

// Session is one live voice conversation: microphone capture going up,
// reply audio and transcripts coming down, and an optional camera
// feed. A Session runs until End or until the transport terminates.
type Session struct {
	cfg    Config
	logger *slog.Logger

	mic        io.ReadCloser
	transport  *Transport
	capture    *Capture
	scheduler  *Scheduler
	transcript *Transcript
	state      *StateMachine

	cameraMu sync.Mutex
	camera   *VideoSampler

	endOnce sync.Once
	done    chan struct{}

	errMu sync.Mutex
	err   error
}

// Start opens the local devices, connects, and begins streaming. The
// microphone is opened before anything touches the network, so a
// permission failure surfaces without a connection attempt.
func Start(ctx context.Context, cfg Config) (*Session, error) {
	cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	mic, err := cfg.OpenInput()
	if err != nil {
		return nil, core.NewPermissionDenied("microphone", err)
	}
	output, err := cfg.OpenOutput()
	if err != nil {
		mic.Close()
		return nil, core.NewDeviceError("opening playback device", err)
	}

	transport, err := Dial(ctx, cfg)
	if err != nil {
		mic.Close()
		output.Close()
		return nil, err
	}

	s := &Session{
		cfg:        cfg,
		logger:     cfg.Logger,
		mic:        mic,
		transport:  transport,
		transcript: NewTranscript(),
		state:      NewStateMachine(),
		done:       make(chan struct{}),
	}

	s.scheduler = NewScheduler(SchedulerConfig{
		Output: output,
		Clock:  cfg.Clock,
		Format: cfg.Playback,
		Logger: cfg.Logger,
		OnActive: func() {
			if s.state.AudioStarted() {
				s.pushUpdate()
			}
		},
		OnIdle: func() {
			if s.state.PlaybackIdle() {
				s.pushUpdate()
			}
		},
	})

	s.capture = NewCapture(mic, cfg.CaptureFrameSamples, transport.SendAudio, cfg.Logger)
	s.capture.Start()

	s.logger.Info("session started", "session_id", transport.SessionID())
	s.pushUpdate()

	go s.eventLoop()
	return s, nil
}

// Done closes when the session has fully torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session ended, nil for a local End. Only
// meaningful after Done.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Status returns the current conversation phase.
func (s *Session) Status() Status { return s.state.Status() }

// ConversationLog returns the merged transcript so far.
func (s *Session) ConversationLog() []Turn { return s.transcript.Log() }

// CaptureStats returns microphone throughput counters.
func (s *Session) CaptureStats() CaptureStats { return s.capture.Stats() }

// EnableCamera starts sampling frames from source and sending them
// upstream. Enabling twice replaces the previous source.
func (s *Session) EnableCamera(source FrameSource) {
	s.cameraMu.Lock()
	if s.camera != nil {
		s.camera.Stop()
	}
	sampler := NewVideoSampler(source, s.cfg.Camera, s.cfg.OnCameraPreview, s.logger)
	sampler.Attach(s.transport.SendVideoFrame)
	sampler.Start()
	s.camera = sampler
	s.cameraMu.Unlock()
	s.pushUpdate()
}

// DisableCamera stops frame sampling. No-op when the camera is off.
func (s *Session) DisableCamera() {
	s.cameraMu.Lock()
	camera := s.camera
	s.camera = nil
	s.cameraMu.Unlock()
	if camera == nil {
		return
	}
	camera.Stop()
	s.pushUpdate()
}

func (s *Session) cameraEnabled() bool {
	s.cameraMu.Lock()
	defer s.cameraMu.Unlock()
	return s.camera != nil
}

// End tears the session down: transport, capture, camera, playback, in
// that order. The transport goes first so a capture send stuck on a
// stalled peer is unblocked rather than waited on. Safe to call more
// than once and concurrently with a remote close.
func (s *Session) End() {
	s.endOnce.Do(func() {
		s.transport.Close()
		s.capture.Stop()

		s.cameraMu.Lock()
		camera := s.camera
		s.camera = nil
		s.cameraMu.Unlock()
		if camera != nil {
			camera.Stop()
		}

		s.scheduler.Close()

		s.state.End()
		s.pushUpdate()

		if s.cfg.OnFinalTranscript != nil {
			s.cfg.OnFinalTranscript(s.transcript.Finalize())
		}

		stats := s.capture.Stats()
		s.logger.Info("session ended",
			"frames_sent", stats.FramesSent,
			"frames_dropped", stats.FramesDropped,
		)
		close(s.done)
	})
}

func (s *Session) eventLoop() {
	for {
		select {
		case ev := <-s.transport.Events():
			s.handle(ev)
		case <-s.transport.Done():
			s.drainEvents()
			if err := s.transport.Err(); err != nil {
				s.setErr(err)
			}
			s.End()
			return
		}
	}
}

func (s *Session) drainEvents() {
	for {
		select {
		case ev := <-s.transport.Events():
			s.handle(ev)
		default:
			return
		}
	}
}

func (s *Session) handle(ev ServerEvent) {
	switch e := ev.(type) {
	case TranscriptDeltaEvent:
		s.transcript.Append(e.Speaker, e.Text)
		s.pushUpdate()
	case AudioEvent:
		if err := s.scheduler.Enqueue(e.PCM); err != nil {
			s.logger.Warn("dropping reply audio chunk", "error", err)
		}
	case InterruptedEvent:
		s.scheduler.Flush()
		s.pushUpdate()
	case TurnCompleteEvent:
		if s.state.TurnComplete(s.scheduler.Outstanding()) {
			s.pushUpdate()
		}
	case ServerErrorEvent:
		s.logger.Error("server error", "code", e.Code, "message", e.Message, "close", e.Close)
	case SetupCompleteEvent:
	}
}

func (s *Session) setErr(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

func (s *Session) pushUpdate() {
	if s.cfg.OnUpdate == nil {
		return
	}
	s.cfg.OnUpdate(Update{
		Status:          s.state.Status(),
		ConversationLog: s.transcript.Log(),
		CameraEnabled:   s.cameraEnabled(),
	})
}
