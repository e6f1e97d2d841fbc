// Package voice relays audio frames between a websocket client and a
// speech-capable agent session. It is a pass-through: events keep transport
// order and are forwarded unmodified except for audio decoding.
package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Event types emitted by a speech session.
const (
	EventContentStart   = "contentStart"
	EventTextOutput     = "textOutput"
	EventAudioOutput    = "audioOutput"
	EventContentEnd     = "contentEnd"
	EventStreamComplete = "streamComplete"
)

// Event is one structured message from a speech session.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is a live bidirectional speech stream. SendAudio pushes raw 16-bit
// PCM frames upstream; Events yields inbound events in transport order and is
// closed when the stream ends.
type Session interface {
	SendAudio(ctx context.Context, pcm []byte) error
	Events() <-chan Event
	Close() error
}

// SessionFactory opens speech sessions. sessionID correlates the voice stream
// with the chat session it belongs to.
type SessionFactory interface {
	NewSession(ctx context.Context, sessionID string, userID uint) (Session, error)
}

// ErrOddPCMLength reports audio content that is not a whole number of
// 16-bit samples.
var ErrOddPCMLength = errors.New("pcm content has odd byte length")

// DecodePCM16 decodes base64 16-bit little-endian PCM into normalized
// float32 samples in [-1, 1).
func DecodePCM16(encoded string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64 audio: %w", err)
	}
	if len(raw)%2 != 0 {
		return nil, ErrOddPCMLength
	}

	samples := make([]float32, len(raw)/2)
	for i := range samples {
		sample := int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
		samples[i] = float32(sample) / 32768
	}
	return samples, nil
}

type audioOutputPayload struct {
	Content string `json:"content"`
}

type audioSamplesPayload struct {
	Samples []float32 `json:"samples"`
}

// TransformEvent prepares a session event for relay to the client. Audio
// output payloads are decoded to normalized samples; every other event passes
// through untouched.
func TransformEvent(ev Event) (Event, error) {
	if ev.Type != EventAudioOutput {
		return ev, nil
	}

	var in audioOutputPayload
	if err := json.Unmarshal(ev.Payload, &in); err != nil {
		return Event{}, fmt.Errorf("decode audio output payload: %w", err)
	}

	samples, err := DecodePCM16(in.Content)
	if err != nil {
		return Event{}, err
	}

	payload, err := json.Marshal(audioSamplesPayload{Samples: samples})
	if err != nil {
		return Event{}, fmt.Errorf("encode audio samples: %w", err)
	}
	return Event{Type: EventAudioOutput, Payload: payload}, nil
}
