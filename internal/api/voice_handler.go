package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"coachsim/internal/auth"
	"coachsim/internal/voice"
)

// VoiceHandler relays audio between a websocket client and a speech session.
type VoiceHandler struct {
	sessions    voice.SessionFactory
	authService *auth.Service
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// NewVoiceHandler constructs the voice websocket handler.
func NewVoiceHandler(sessions voice.SessionFactory, authService *auth.Service, logger *slog.Logger) *VoiceHandler {
	h := &VoiceHandler{
		sessions:    sessions,
		authService: authService,
		logger:      logger,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return strings.EqualFold(u.Host, r.Host)
		},
	}
	return h
}

type voiceAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type voiceClientFrame struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// HandleConnection upgrades the connection, authenticates the first frame and
// runs the relay loops until either side closes.
func (h *VoiceHandler) HandleConnection(c *gin.Context) {
	if h.sessions == nil {
		Error(c, http.StatusServiceUnavailable, "voice relay not configured")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))

	userID, err := h.authenticate(conn)
	if err != nil {
		log.Warn("websocket authentication failed", slog.Any("error", err))
		writeClose(conn, websocket.ClosePolicyViolation, "unauthorized")
		return
	}

	sessionID := c.Query("sessionId")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	log = log.With(
		slog.Uint64("user_id", uint64(userID)),
		slog.String("session_id", sessionID),
	)

	session, err := h.sessions.NewSession(ctx, sessionID, userID)
	if err != nil {
		log.Error("open speech session failed", slog.Any("error", err))
		writeClose(conn, websocket.CloseInternalServerErr, "session unavailable")
		return
	}
	defer session.Close()

	log.Info("voice relay started")

	errCh := make(chan error, 2)
	go h.readLoop(ctx, conn, session, errCh, cancel)
	go h.writeLoop(ctx, conn, session, errCh, cancel, log)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Info("voice relay closed", slog.Any("error", err))
		} else {
			log.Info("voice relay closed")
		}
	}
}

// authenticate reads the first frame, which must carry a valid bearer token.
func (h *VoiceHandler) authenticate(conn *websocket.Conn) (uint, error) {
	_, message, err := conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("read auth frame: %w", err)
	}

	var authMsg voiceAuthMessage
	if err := json.Unmarshal(message, &authMsg); err != nil {
		return 0, fmt.Errorf("decode auth payload: %w", err)
	}
	if authMsg.Type != "auth" || authMsg.Token == "" {
		return 0, fmt.Errorf("auth frame required")
	}

	claims, err := h.authService.ValidateToken(authMsg.Token)
	if err != nil {
		return 0, fmt.Errorf("validate token: %w", err)
	}
	return claims.UserID, nil
}

// readLoop forwards client audio frames to the speech session.
func (h *VoiceHandler) readLoop(
	ctx context.Context,
	conn *websocket.Conn,
	session voice.Session,
	errCh chan<- error,
	cancel context.CancelFunc,
) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			errCh <- fmt.Errorf("read message: %w", err)
			cancel()
			return
		}

		var frame voiceClientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			writeClose(conn, websocket.ClosePolicyViolation, "invalid frame")
			errCh <- fmt.Errorf("decode client frame: %w", err)
			cancel()
			return
		}
		if frame.Type != "audioInput" {
			continue
		}

		pcm, err := base64.StdEncoding.DecodeString(frame.Audio)
		if err != nil {
			writeClose(conn, websocket.ClosePolicyViolation, "invalid audio encoding")
			errCh <- fmt.Errorf("decode audio frame: %w", err)
			cancel()
			return
		}

		if err := session.SendAudio(ctx, pcm); err != nil {
			errCh <- fmt.Errorf("send audio: %w", err)
			cancel()
			return
		}
	}
}

// writeLoop relays session events to the client in transport order.
func (h *VoiceHandler) writeLoop(
	ctx context.Context,
	conn *websocket.Conn,
	session voice.Session,
	errCh chan<- error,
	cancel context.CancelFunc,
	log *slog.Logger,
) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-session.Events():
			if !ok {
				errCh <- nil
				cancel()
				return
			}

			out, err := voice.TransformEvent(ev)
			if err != nil {
				log.Warn("drop malformed session event",
					slog.String("event_type", ev.Type),
					slog.Any("error", err),
				)
				continue
			}

			if err := conn.WriteJSON(out); err != nil {
				errCh <- fmt.Errorf("write event: %w", err)
				cancel()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				errCh <- fmt.Errorf("write ping: %w", err)
				cancel()
				return
			}
		}
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(5 * time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}
