package live

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/comet-ai/comet-live/pkg/core"
	"github.com/comet-ai/comet-live/pkg/live/protocol"
)

// Transport is one duplex websocket conversation. Sends are
// fire-and-forget; inbound frames are decoded and delivered on Events
// in frame order. Close is idempotent.
type Transport struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	events chan ServerEvent
	done   chan struct{}
	stop   chan struct{}

	errMu sync.Mutex
	err   error

	sessionID string
}

// Dial connects, performs the setup handshake, and starts the read
// loop. http(s) URLs are mapped to ws(s).
func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	endpoint, err := wsEndpoint(cfg.URL)
	if err != nil {
		return nil, core.NewTransportError("invalid endpoint", err)
	}

	setup := protocol.ClientSetup{
		Type:            "setup",
		ProtocolVersion: protocol.ProtocolVersion1,
		Model:           cfg.Model,
		APIKey:          cfg.APIKey,
		AudioIn: protocol.AudioFormat{
			Encoding:     "pcm16",
			SampleRateHz: cfg.Capture.SampleRate,
			Channels:     cfg.Capture.Channels,
		},
		AudioOut: protocol.AudioFormat{
			Encoding:     "pcm16",
			SampleRateHz: cfg.Playback.SampleRate,
			Channels:     cfg.Playback.Channels,
		},
		Features: protocol.SetupFeatures{
			InputTranscription:  true,
			OutputTranscription: true,
		},
	}
	if err := protocol.ValidateSetup(setup); err != nil {
		return nil, core.NewTransportError("invalid setup", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, core.NewTransportError("dial failed", err)
	}

	t := &Transport{
		conn:   conn,
		logger: cfg.Logger,
		events: make(chan ServerEvent, 64),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}

	if err := t.handshake(setup, cfg.DialTimeout); err != nil {
		conn.Close()
		return nil, err
	}

	go t.readLoop()
	return t, nil
}

func wsEndpoint(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

func (t *Transport) handshake(setup protocol.ClientSetup, timeout time.Duration) error {
	if err := t.conn.WriteJSON(setup); err != nil {
		return core.NewTransportError("setup write failed", err)
	}
	if timeout > 0 {
		t.conn.SetReadDeadline(time.Now().Add(timeout))
		defer t.conn.SetReadDeadline(time.Time{})
	}
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return core.NewTransportError("setup read failed", err)
	}
	msg, err := protocol.DecodeServerMessage(data)
	if err != nil {
		return core.NewTransportError("setup decode failed", err)
	}
	switch m := msg.(type) {
	case protocol.ServerSetupComplete:
		t.sessionID = m.SessionID
		return nil
	case protocol.ServerError:
		return core.NewTransportError(fmt.Sprintf("setup rejected: %s", m.Message), nil)
	default:
		return core.NewTransportError(fmt.Sprintf("unexpected handshake frame %T", msg), nil)
	}
}

// SessionID returns the identifier assigned during setup.
func (t *Transport) SessionID() string { return t.sessionID }

// Events delivers decoded server events until Done closes.
func (t *Transport) Events() <-chan ServerEvent { return t.events }

// Done closes when the read loop exits for any reason.
func (t *Transport) Done() <-chan struct{} { return t.done }

// Err reports the terminal transport error, nil on clean close. Only
// meaningful after Done.
func (t *Transport) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

// SendAudio sends one capture PCM frame. Sends after Close are
// silently dropped.
func (t *Transport) SendAudio(pcm []byte) error {
	frame := protocol.NewAudioInput(
		base64.StdEncoding.EncodeToString(pcm),
		protocol.MimeAudioPCM16k,
	)
	return t.writeJSON(frame)
}

// SendVideoFrame sends one encoded JPEG frame.
func (t *Transport) SendVideoFrame(jpeg []byte) error {
	frame := protocol.NewVideoInput(base64.StdEncoding.EncodeToString(jpeg))
	return t.writeJSON(frame)
}

func (t *Transport) writeJSON(v any) error {
	if t.closed.Load() {
		return nil
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.closed.Load() {
		return nil
	}
	if err := t.conn.WriteJSON(v); err != nil {
		return core.NewTransportError("write failed", err)
	}
	return nil
}

// Close tears down the connection. Safe to call more than once and
// from any goroutine.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		close(t.stop)
		t.writeMu.Lock()
		t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		t.writeMu.Unlock()
		t.conn.Close()
	})
	return nil
}

func (t *Transport) setErr(err error) {
	t.errMu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.errMu.Unlock()
}

func (t *Transport) readLoop() {
	defer close(t.done)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if !t.closed.Load() &&
				!websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.setErr(core.NewTransportError("connection lost", err))
			}
			return
		}

		msg, err := protocol.DecodeServerMessage(data)
		if err != nil {
			t.logger.Warn("dropping frame", "error", core.NewDecodeError("undecodable frame", err))
			continue
		}

		switch m := msg.(type) {
		case protocol.ServerSetupComplete:
			// Duplicate handshake ack, nothing to do.
		case protocol.ServerContent:
			t.emitContent(m)
		case protocol.ServerError:
			t.emit(ServerErrorEvent{Code: m.Code, Message: m.Message, Close: m.Close})
			if m.Close {
				t.setErr(core.NewTransportError(m.Message, nil))
				t.Close()
				return
			}
		}
	}
}

// emitContent fans one server_content frame out as ordered events.
func (t *Transport) emitContent(m protocol.ServerContent) {
	if m.InputTranscription != nil && m.InputTranscription.Text != "" {
		t.emit(TranscriptDeltaEvent{Speaker: SpeakerUser, Text: m.InputTranscription.Text})
	}
	if m.OutputTranscription != nil && m.OutputTranscription.Text != "" {
		t.emit(TranscriptDeltaEvent{Speaker: SpeakerAI, Text: m.OutputTranscription.Text})
	}
	if m.Audio != nil {
		pcm, err := base64.StdEncoding.DecodeString(strings.TrimSpace(m.Audio.DataB64))
		if err != nil {
			t.logger.Warn("dropping audio chunk", "error", core.NewDecodeError("malformed audio chunk", err))
		} else if len(pcm) > 0 {
			t.emit(AudioEvent{PCM: pcm})
		}
	}
	if m.Interrupted {
		t.emit(InterruptedEvent{})
	}
	if m.TurnComplete {
		t.emit(TurnCompleteEvent{})
	}
}

func (t *Transport) emit(ev ServerEvent) {
	select {
	case t.events <- ev:
	case <-t.stop:
	}
}
