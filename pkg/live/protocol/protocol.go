// Package protocol defines the JSON wire frames exchanged over a live
// conversation websocket. Every frame carries a "type" discriminator;
// chunks are ordered only within a single direction.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ProtocolVersion1 = "1"

	// MIME types for realtime media payloads.
	MimeAudioPCM16k = "audio/pcm;rate=16000"
	MimeAudioPCM24k = "audio/pcm;rate=24000"
	MimeImageJPEG   = "image/jpeg"
)

// DecodeError describes a malformed or unsupported frame.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badFrame(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes one direction of the negotiated audio shape.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// SetupFeatures controls optional server behavior for the session.
type SetupFeatures struct {
	InputTranscription  bool `json:"input_transcription,omitempty"`
	OutputTranscription bool `json:"output_transcription,omitempty"`
}

// ClientSetup is the first frame on every connection.
type ClientSetup struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Model           string        `json:"model"`
	APIKey          string        `json:"api_key,omitempty"`
	AudioIn         AudioFormat   `json:"audio_in"`
	AudioOut        AudioFormat   `json:"audio_out"`
	Features        SetupFeatures `json:"features,omitempty"`
}

// MediaBlob carries one base64-encoded media payload with its MIME type.
type MediaBlob struct {
	MimeType string `json:"mime_type"`
	DataB64  string `json:"data_b64"`
}

// ClientRealtimeInput is a fire-and-forget outbound media chunk, either a
// PCM audio frame or a JPEG video frame.
type ClientRealtimeInput struct {
	Type  string    `json:"type"`
	Media MediaBlob `json:"media"`
}

// ClientControl carries session control operations.
type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"`
}

// ServerSetupComplete acknowledges ClientSetup.
type ServerSetupComplete struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	SessionID       string `json:"session_id"`
}

// TranscriptDelta is a streamed speech-to-text fragment.
type TranscriptDelta struct {
	Text string `json:"text"`
}

// ServerContent is the inbound event envelope: any combination of reply
// audio, transcript deltas for either speaker, and turn signals.
type ServerContent struct {
	Type                string           `json:"type"`
	Audio               *MediaBlob       `json:"audio,omitempty"`
	InputTranscription  *TranscriptDelta `json:"input_transcription,omitempty"`
	OutputTranscription *TranscriptDelta `json:"output_transcription,omitempty"`
	TurnComplete        bool             `json:"turn_complete,omitempty"`
	Interrupted         bool             `json:"interrupted,omitempty"`
}

// ServerError is a terminal or advisory error frame.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Close   bool   `json:"close,omitempty"`
}

// DecodeServerMessage decodes one inbound frame by its type discriminator.
func DecodeServerMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badFrame("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badFrame("missing type", "type")
	}

	switch typ {
	case "setup_complete":
		var msg ServerSetupComplete
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid setup_complete", "")
		}
		return msg, nil
	case "server_content":
		var msg ServerContent
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid server_content", "")
		}
		if msg.Audio != nil && strings.TrimSpace(msg.Audio.DataB64) == "" {
			return nil, badFrame("server_content.audio.data_b64 is required", "audio.data_b64")
		}
		return msg, nil
	case "error":
		var msg ServerError
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid error frame", "")
		}
		return msg, nil
	default:
		return nil, unsupported("unsupported message type", "type")
	}
}

// NewAudioInput builds a realtime_input frame for an encoded audio chunk.
func NewAudioInput(dataB64, mimeType string) ClientRealtimeInput {
	return ClientRealtimeInput{
		Type:  "realtime_input",
		Media: MediaBlob{MimeType: mimeType, DataB64: dataB64},
	}
}

// NewVideoInput builds a realtime_input frame for a JPEG video frame.
func NewVideoInput(dataB64 string) ClientRealtimeInput {
	return ClientRealtimeInput{
		Type:  "realtime_input",
		Media: MediaBlob{MimeType: MimeImageJPEG, DataB64: dataB64},
	}
}

// ValidateSetup checks a ClientSetup before it is sent.
func ValidateSetup(msg ClientSetup) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badFrame("setup.protocol_version is required", "protocol_version")
	}
	if strings.TrimSpace(msg.Model) == "" {
		return badFrame("setup.model is required", "model")
	}
	for _, dir := range []struct {
		name   string
		format AudioFormat
	}{
		{"audio_in", msg.AudioIn},
		{"audio_out", msg.AudioOut},
	} {
		if strings.TrimSpace(dir.format.Encoding) == "" {
			return badFrame("setup."+dir.name+".encoding is required", dir.name+".encoding")
		}
		if dir.format.SampleRateHz <= 0 {
			return badFrame("setup."+dir.name+".sample_rate_hz must be > 0", dir.name+".sample_rate_hz")
		}
		if dir.format.Channels <= 0 {
			return badFrame("setup."+dir.name+".channels must be > 0", dir.name+".channels")
		}
	}
	return nil
}
