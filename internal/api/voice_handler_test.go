package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"coachsim/internal/auth"
	"coachsim/internal/voice"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSpeechSession struct {
	mu     sync.Mutex
	audio  [][]byte
	events chan voice.Event
	closed bool
}

func newFakeSpeechSession() *fakeSpeechSession {
	return &fakeSpeechSession{events: make(chan voice.Event, 8)}
}

func (s *fakeSpeechSession) SendAudio(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, pcm)
	return nil
}

func (s *fakeSpeechSession) Events() <-chan voice.Event { return s.events }

func (s *fakeSpeechSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSpeechSession) receivedAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.audio...)
}

type fakeSessionFactory struct {
	session   *fakeSpeechSession
	sessionID string
	userID    uint
}

func (f *fakeSessionFactory) NewSession(_ context.Context, sessionID string, userID uint) (voice.Session, error) {
	f.sessionID = sessionID
	f.userID = userID
	return f.session, nil
}

func dialVoice(t *testing.T, factory voice.SessionFactory, authService *auth.Service, query string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewVoiceHandler(factory, authService, testLogger())
	router := gin.New()
	router.GET("/v1/ai/voice", h.HandleConnection)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/ai/voice" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestVoiceRelay_ForwardsAudioAndEvents(t *testing.T) {
	authService := auth.NewService("test-secret", time.Hour)
	token, err := authService.GenerateToken(7, "coach@example.com")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	session := newFakeSpeechSession()
	factory := &fakeSessionFactory{session: session}
	conn := dialVoice(t, factory, authService, "?sessionId=voice-1")

	if err := conn.WriteJSON(map[string]string{"type": "auth", "token": token}); err != nil {
		t.Fatalf("write auth frame: %v", err)
	}

	pcm := []byte{0x00, 0x40} // one sample, 16384
	if err := conn.WriteJSON(map[string]string{
		"type":  "audioInput",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	}); err != nil {
		t.Fatalf("write audio frame: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(session.receivedAudio()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("audio frame never reached the session")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := session.receivedAudio()[0]; len(got) != 2 || got[0] != 0x00 || got[1] != 0x40 {
		t.Fatalf("forwarded audio = %v, want raw pcm bytes", got)
	}
	if factory.sessionID != "voice-1" {
		t.Fatalf("session id = %q, want voice-1", factory.sessionID)
	}
	if factory.userID != 7 {
		t.Fatalf("user id = %d, want claim user 7", factory.userID)
	}

	session.events <- voice.Event{Type: voice.EventTextOutput, Payload: json.RawMessage(`{"text":"hello"}`)}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var relayed voice.Event
	if err := conn.ReadJSON(&relayed); err != nil {
		t.Fatalf("read relayed event: %v", err)
	}
	if relayed.Type != voice.EventTextOutput {
		t.Fatalf("event type = %q, want %q", relayed.Type, voice.EventTextOutput)
	}
}

func TestVoiceRelay_TransformsAudioOutput(t *testing.T) {
	authService := auth.NewService("test-secret", time.Hour)
	token, err := authService.GenerateToken(7, "coach@example.com")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	session := newFakeSpeechSession()
	conn := dialVoice(t, &fakeSessionFactory{session: session}, authService, "")

	if err := conn.WriteJSON(map[string]string{"type": "auth", "token": token}); err != nil {
		t.Fatalf("write auth frame: %v", err)
	}

	// One positive half-scale sample.
	payload, _ := json.Marshal(map[string]string{
		"content": base64.StdEncoding.EncodeToString([]byte{0x00, 0x40}),
	})
	session.events <- voice.Event{Type: voice.EventAudioOutput, Payload: payload}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var relayed struct {
		Type    string `json:"type"`
		Payload struct {
			Samples []float32 `json:"samples"`
		} `json:"payload"`
	}
	if err := conn.ReadJSON(&relayed); err != nil {
		t.Fatalf("read relayed event: %v", err)
	}
	if relayed.Type != voice.EventAudioOutput {
		t.Fatalf("event type = %q, want %q", relayed.Type, voice.EventAudioOutput)
	}
	if len(relayed.Payload.Samples) != 1 || relayed.Payload.Samples[0] != 0.5 {
		t.Fatalf("samples = %v, want [0.5]", relayed.Payload.Samples)
	}
}

func TestVoiceRelay_RejectsBadToken(t *testing.T) {
	authService := auth.NewService("test-secret", time.Hour)
	session := newFakeSpeechSession()
	conn := dialVoice(t, &fakeSessionFactory{session: session}, authService, "")

	if err := conn.WriteJSON(map[string]string{"type": "auth", "token": "not-a-token"}); err != nil {
		t.Fatalf("write auth frame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected close after invalid token")
	}
}
