package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"marketchat/internal/chat/service"
	"marketchat/internal/common"
	"marketchat/internal/realtime"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler upgrades authenticated requests into realtime sessions. Outbound
// events flow through the session's bounded queue; inbound frames are limited
// to the ephemeral kinds (typing indicators).
type WSHandler struct {
	chatService  service.ChatService
	bus          *realtime.Bus
	queueSize    int
	writeTimeout time.Duration
	log          *zap.Logger
}

func NewWSHandler(chatService service.ChatService, bus *realtime.Bus, queueSize int, writeTimeout time.Duration, log *zap.Logger) *WSHandler {
	if queueSize <= 0 {
		queueSize = 256
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &WSHandler{
		chatService:  chatService,
		bus:          bus,
		queueSize:    queueSize,
		writeTimeout: writeTimeout,
		log:          log,
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	session := &realtime.Session{
		ID:     uuid.NewString(),
		UserID: claims.UserID,
		Out:    make(chan []byte, h.queueSize),
	}
	h.bus.Connect(r.Context(), session)

	go h.writeLoop(ws, session)
	h.readLoop(ws, session)
}

func (h *WSHandler) writeLoop(ws *websocket.Conn, session *realtime.Session) {
	defer ws.Close()
	for b := range session.Out {
		_ = ws.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

// clientFrame is what a connected client may send upstream. Everything else
// goes through the HTTP API.
type clientFrame struct {
	Kind           string `json:"kind"`
	ConversationID string `json:"conversation_id"`
}

func (h *WSHandler) readLoop(ws *websocket.Conn, session *realtime.Session) {
	defer func() {
		h.bus.Disconnect(session.UserID, session.ID)
		session.Close()
	}()

	for {
		var frame clientFrame
		if err := ws.ReadJSON(&frame); err != nil {
			return
		}
		switch realtime.EventKind(frame.Kind) {
		case realtime.EventTypingStart:
			if err := h.chatService.Typing(context.Background(), frame.ConversationID, session.UserID, true); err != nil {
				h.log.Debug("typing-start rejected", zap.String("user_id", session.UserID), zap.Error(err))
			}
		case realtime.EventTypingStop:
			if err := h.chatService.Typing(context.Background(), frame.ConversationID, session.UserID, false); err != nil {
				h.log.Debug("typing-stop rejected", zap.String("user_id", session.UserID), zap.Error(err))
			}
		default:
			// Unknown frames are ignored rather than killing the session.
		}
	}
}
