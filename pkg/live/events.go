package live

// Speaker identifies who produced a transcript fragment.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerAI   Speaker = "ai"
)

// ServerEvent is one decoded inbound event. Events from a single
// server_content frame are emitted in frame order.
type ServerEvent interface {
	EventType() string
}

// SetupCompleteEvent confirms the session handshake.
type SetupCompleteEvent struct {
	SessionID string
}

func (SetupCompleteEvent) EventType() string { return "setup_complete" }

// AudioEvent carries one chunk of decoded reply PCM.
type AudioEvent struct {
	PCM []byte
}

func (AudioEvent) EventType() string { return "audio" }

// TranscriptDeltaEvent carries a streamed transcript fragment for one
// speaker.
type TranscriptDeltaEvent struct {
	Speaker Speaker
	Text    string
}

func (TranscriptDeltaEvent) EventType() string { return "transcript_delta" }

// TurnCompleteEvent marks the end of the model's reply turn.
type TurnCompleteEvent struct{}

func (TurnCompleteEvent) EventType() string { return "turn_complete" }

// InterruptedEvent signals the model reply was cut off by user speech.
// Queued reply audio must be discarded.
type InterruptedEvent struct{}

func (InterruptedEvent) EventType() string { return "interrupted" }

// ServerErrorEvent carries an error frame from the server.
type ServerErrorEvent struct {
	Code    string
	Message string
	Close   bool
}

func (ServerErrorEvent) EventType() string { return "error" }
