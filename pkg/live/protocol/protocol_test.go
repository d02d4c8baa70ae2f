package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeServerMessageSetupComplete(t *testing.T) {
	raw := `{"type":"setup_complete","session_id":"sess-1"}`
	msg, err := DecodeServerMessage([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeServerMessage: %v", err)
	}
	sc, ok := msg.(ServerSetupComplete)
	if !ok {
		t.Fatalf("expected ServerSetupComplete, got %T", msg)
	}
	if sc.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want %q", sc.SessionID, "sess-1")
	}
}

func TestDecodeServerMessageContent(t *testing.T) {
	raw := `{
		"type": "server_content",
		"audio": {"mime_type": "audio/pcm;rate=24000", "data_b64": "AAAA"},
		"output_transcription": {"text": "hello"},
		"turn_complete": true
	}`
	msg, err := DecodeServerMessage([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeServerMessage: %v", err)
	}
	content, ok := msg.(ServerContent)
	if !ok {
		t.Fatalf("expected ServerContent, got %T", msg)
	}
	if content.Audio == nil || content.Audio.DataB64 != "AAAA" {
		t.Errorf("audio blob not decoded: %+v", content.Audio)
	}
	if content.OutputTranscription == nil || content.OutputTranscription.Text != "hello" {
		t.Errorf("output transcription not decoded: %+v", content.OutputTranscription)
	}
	if !content.TurnComplete {
		t.Error("TurnComplete = false, want true")
	}
	if content.Interrupted {
		t.Error("Interrupted = true, want false")
	}
}

func TestDecodeServerMessageErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		code string
	}{
		{"invalid json", `{`, "bad_frame"},
		{"missing type", `{"text":"x"}`, "bad_frame"},
		{"unknown type", `{"type":"telemetry"}`, "unsupported"},
		{"empty audio data", `{"type":"server_content","audio":{"mime_type":"audio/pcm;rate=24000","data_b64":""}}`, "bad_frame"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeServerMessage([]byte(tt.raw))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var decErr *DecodeError
			if de, ok := err.(*DecodeError); ok {
				decErr = de
			} else {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
			if decErr.Code != tt.code {
				t.Errorf("Code = %q, want %q", decErr.Code, tt.code)
			}
		})
	}
}

func TestDecodeServerError(t *testing.T) {
	raw := `{"type":"error","code":"quota","message":"rate limited","close":true}`
	msg, err := DecodeServerMessage([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeServerMessage: %v", err)
	}
	se, ok := msg.(ServerError)
	if !ok {
		t.Fatalf("expected ServerError, got %T", msg)
	}
	if se.Code != "quota" || !se.Close {
		t.Errorf("unexpected error frame: %+v", se)
	}
}

func TestValidateSetup(t *testing.T) {
	valid := ClientSetup{
		Type:            "setup",
		ProtocolVersion: ProtocolVersion1,
		Model:           "comet-live-1",
		AudioIn:         AudioFormat{Encoding: "pcm16", SampleRateHz: 16000, Channels: 1},
		AudioOut:        AudioFormat{Encoding: "pcm16", SampleRateHz: 24000, Channels: 1},
	}
	if err := ValidateSetup(valid); err != nil {
		t.Fatalf("ValidateSetup(valid) = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*ClientSetup)
		param  string
	}{
		{"missing version", func(m *ClientSetup) { m.ProtocolVersion = "" }, "protocol_version"},
		{"missing model", func(m *ClientSetup) { m.Model = " " }, "model"},
		{"bad input rate", func(m *ClientSetup) { m.AudioIn.SampleRateHz = 0 }, "audio_in.sample_rate_hz"},
		{"bad output channels", func(m *ClientSetup) { m.AudioOut.Channels = -1 }, "audio_out.channels"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := valid
			tt.mutate(&msg)
			err := ValidateSetup(msg)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.param) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.param)
			}
		})
	}
}

func TestRealtimeInputRoundTrip(t *testing.T) {
	frame := NewAudioInput("UFBQ", MimeAudioPCM16k)
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got ClientRealtimeInput
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "realtime_input" || got.Media.MimeType != MimeAudioPCM16k || got.Media.DataB64 != "UFBQ" {
		t.Errorf("round trip mismatch: %+v", got)
	}

	video := NewVideoInput("SlBH")
	if video.Media.MimeType != MimeImageJPEG {
		t.Errorf("video mime = %q, want %q", video.Media.MimeType, MimeImageJPEG)
	}
}
