package voice

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func encodePCM16(samples []int16) string {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		raw[2*i] = byte(uint16(s))
		raw[2*i+1] = byte(uint16(s) >> 8)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestDecodePCM16(t *testing.T) {
	samples := []int16{0, 16384, -16384, 32767, -32768}
	decoded, err := DecodePCM16(encodePCM16(samples))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("len = %d, want %d", len(decoded), len(samples))
	}

	want := []float32{0, 0.5, -0.5, 32767.0 / 32768, -1}
	for i := range want {
		if math.Abs(float64(decoded[i]-want[i])) > 1e-6 {
			t.Fatalf("sample %d = %v, want %v", i, decoded[i], want[i])
		}
	}
}

func TestDecodePCM16_OddLength(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03})
	if _, err := DecodePCM16(encoded); !errors.Is(err, ErrOddPCMLength) {
		t.Fatalf("err = %v, want ErrOddPCMLength", err)
	}
}

func TestDecodePCM16_BadBase64(t *testing.T) {
	if _, err := DecodePCM16("!!not-base64!!"); err == nil {
		t.Fatal("expected error for malformed base64")
	}
}

func TestTransformEvent_PassThrough(t *testing.T) {
	for _, typ := range []string{EventContentStart, EventTextOutput, EventContentEnd, EventStreamComplete} {
		in := Event{Type: typ, Payload: json.RawMessage(`{"role":"assistant"}`)}
		out, err := TransformEvent(in)
		if err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
		if out.Type != typ || string(out.Payload) != string(in.Payload) {
			t.Fatalf("%s was modified: %+v", typ, out)
		}
	}
}

func TestTransformEvent_DecodesAudioOutput(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{
		"content": encodePCM16([]int16{16384, -16384}),
	})

	out, err := TransformEvent(Event{Type: EventAudioOutput, Payload: payload})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}

	var decoded struct {
		Samples []float32 `json:"samples"`
	}
	if err := json.Unmarshal(out.Payload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(decoded.Samples) != 2 {
		t.Fatalf("len(samples) = %d, want 2", len(decoded.Samples))
	}
	if decoded.Samples[0] != 0.5 || decoded.Samples[1] != -0.5 {
		t.Fatalf("samples = %v, want [0.5 -0.5]", decoded.Samples)
	}
}

func TestTransformEvent_MalformedAudio(t *testing.T) {
	if _, err := TransformEvent(Event{Type: EventAudioOutput, Payload: json.RawMessage(`{"content":"??"}`)}); err == nil {
		t.Fatal("expected error for undecodable audio content")
	}
}
