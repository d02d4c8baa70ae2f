package live

import "sync"

// Status is the user-visible conversation phase. It is derived from
// playback and transcript activity, never set directly.
type Status int

const (
	StatusListening Status = iota
	StatusThinking
	StatusSpeaking
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusListening:
		return "listening"
	case StatusThinking:
		return "thinking"
	case StatusSpeaking:
		return "speaking"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// StateMachine tracks the current Status. Terminated is absorbing;
// every transition after End is ignored.
type StateMachine struct {
	mu     sync.Mutex
	status Status
}

func NewStateMachine() *StateMachine {
	return &StateMachine{status: StatusListening}
}

// Status returns the current phase.
func (m *StateMachine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// AudioStarted records the first queued reply buffer.
func (m *StateMachine) AudioStarted() bool {
	return m.transition(func(Status) Status { return StatusSpeaking })
}

// PlaybackIdle records the reply audio draining, naturally or by
// interruption flush.
func (m *StateMachine) PlaybackIdle() bool {
	return m.transition(func(s Status) Status {
		if s == StatusSpeaking {
			return StatusListening
		}
		return s
	})
}

// TurnComplete records the model's turn boundary. A boundary with no
// audio queued means a reply is still being prepared; with audio still
// outstanding the phase stays speaking until playback drains.
func (m *StateMachine) TurnComplete(outstanding int) bool {
	return m.transition(func(s Status) Status {
		if outstanding == 0 && s != StatusSpeaking {
			return StatusThinking
		}
		return s
	})
}

// End moves to terminated.
func (m *StateMachine) End() bool {
	return m.transition(func(Status) Status { return StatusTerminated })
}

// transition applies f unless terminated; reports whether the phase
// changed.
func (m *StateMachine) transition(f func(Status) Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusTerminated {
		return false
	}
	next := f(m.status)
	if next == m.status {
		return false
	}
	m.status = next
	return true
}
