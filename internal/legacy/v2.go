package legacy

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"marketchat/internal/chat/repository"
	"marketchat/internal/chat/service"
	"marketchat/internal/common"
	"marketchat/internal/dbmysql"
	"marketchat/internal/metrics"
)

// V2Adapter serves the first conversation-shaped API. Unlike v1 it already
// knew about conversation types and unread counts, but used camelCase field
// names and a flat error envelope.
type V2Adapter struct {
	svc   service.ChatService
	state DeprecationState
	log   *zap.Logger
}

func NewV2Adapter(svc service.ChatService, state DeprecationState, log *zap.Logger) *V2Adapter {
	return &V2Adapter{svc: svc, state: state, log: log}
}

func (a *V2Adapter) Register(r *mux.Router) {
	r.HandleFunc("/conversations", a.list).Methods(http.MethodGet)
	r.HandleFunc("/conversations", a.create).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages", a.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/messages", a.send).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/read", a.markRead).Methods(http.MethodPost)
	r.HandleFunc("/unread", a.unread).Methods(http.MethodGet)
}

type v2Conversation struct {
	ConversationID string    `json:"conversationId"`
	Type           string    `json:"type"`
	ParticipantIDs []string  `json:"participantIds"`
	UnreadCount    int       `json:"unreadCount"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

type v2Message struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Text           string    `json:"text"`
	SentAt         time.Time `json:"sentAt"`
	IsDeleted      bool      `json:"isDeleted"`
}

// v2Envelope wraps every successful response with the advisory fields.
type v2Envelope struct {
	Notice
	Data interface{} `json:"data"`
}

func (a *V2Adapter) envelope(replacement string, data interface{}) v2Envelope {
	return v2Envelope{Notice: a.state.Notice(replacement), Data: data}
}

func v2ConversationFrom(conv *dbmysql.Conversation, callerID string) v2Conversation {
	out := v2Conversation{
		ConversationID: conv.ID,
		Type:           conv.Type,
		LastActivityAt: conv.LastActivityAt,
	}
	for _, p := range conv.Participants {
		out.ParticipantIDs = append(out.ParticipantIDs, p.UserID)
		if p.UserID == callerID {
			out.UnreadCount = p.UnreadCount
		}
	}
	return out
}

func v2MessageFrom(msg *dbmysql.Message) v2Message {
	return v2Message{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Text:           msg.Content,
		SentAt:         msg.SentAt,
		IsDeleted:      msg.Deleted,
	}
}

func (a *V2Adapter) list(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())
	convs, next, err := a.svc.ListConversations(r.Context(), claims.UserID,
		repository.ConversationFilters{}, r.URL.Query().Get("cursor"), pageSize(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	items := make([]v2Conversation, 0, len(convs))
	for _, conv := range convs {
		items = append(items, v2ConversationFrom(conv, claims.UserID))
	}
	metrics.LegacyRequests.WithLabelValues("v2", "ok").Inc()
	writeJSON(w, http.StatusOK, a.envelope("/api/v4/conversations", map[string]interface{}{
		"items":      items,
		"nextCursor": next,
	}))
}

func (a *V2Adapter) create(w http.ResponseWriter, r *http.Request) {
	if rejectWrite(w, a.state, "/api/v4/conversations") {
		return
	}
	claims := common.ClaimsFromContext(r.Context())

	var req struct {
		Type           string   `json:"type"`
		ParticipantIDs []string `json:"participantIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, common.ErrInvalidParticipants)
		return
	}
	ctype := common.ConversationType(req.Type)
	if req.Type == "" {
		ctype = common.ConversationDirect
	}

	conv, err := a.svc.CreateConversation(r.Context(), claims.UserID, ctype, req.ParticipantIDs, nil)
	if err != nil {
		a.writeError(w, err)
		return
	}
	metrics.LegacyRequests.WithLabelValues("v2", "ok").Inc()
	writeJSON(w, http.StatusCreated, a.envelope("/api/v4/conversations",
		v2ConversationFrom(conv, claims.UserID)))
}

func (a *V2Adapter) listMessages(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())
	conversationID := mux.Vars(r)["id"]

	messages, err := a.svc.ListMessages(r.Context(), conversationID, claims.UserID, 0, pageSize(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	items := make([]v2Message, 0, len(messages))
	for _, msg := range messages {
		items = append(items, v2MessageFrom(msg))
	}
	metrics.LegacyRequests.WithLabelValues("v2", "ok").Inc()
	writeJSON(w, http.StatusOK, a.envelope(
		"/api/v4/conversations/"+conversationID+"/messages",
		map[string]interface{}{"items": items}))
}

func (a *V2Adapter) send(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]
	replacement := "/api/v4/conversations/" + conversationID + "/messages"
	if rejectWrite(w, a.state, replacement) {
		return
	}
	claims := common.ClaimsFromContext(r.Context())

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, common.ErrMessageNotFound)
		return
	}

	msg, err := a.svc.SendMessage(r.Context(), conversationID, claims.UserID, claims.Tier, req.Text, nil)
	if err != nil {
		a.writeError(w, err)
		return
	}
	metrics.LegacyRequests.WithLabelValues("v2", "ok").Inc()
	writeJSON(w, http.StatusCreated, a.envelope(replacement, v2MessageFrom(msg)))
}

func (a *V2Adapter) markRead(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]
	replacement := "/api/v4/conversations/" + conversationID + "/read"
	if rejectWrite(w, a.state, replacement) {
		return
	}
	claims := common.ClaimsFromContext(r.Context())

	var req struct {
		MessageID string `json:"messageId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, common.ErrMessageNotFound)
		return
	}

	remaining, err := a.svc.MarkRead(r.Context(), conversationID, claims.UserID, req.MessageID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	metrics.LegacyRequests.WithLabelValues("v2", "ok").Inc()
	writeJSON(w, http.StatusOK, a.envelope(replacement,
		map[string]int{"unreadCount": remaining}))
}

func (a *V2Adapter) unread(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())
	total, err := a.svc.TotalUnread(r.Context(), claims.UserID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	metrics.LegacyRequests.WithLabelValues("v2", "ok").Inc()
	writeJSON(w, http.StatusOK, a.envelope("/api/v4/unread",
		map[string]int64{"totalUnread": total}))
}

func (a *V2Adapter) writeError(w http.ResponseWriter, err error) {
	status := common.HTTPStatus(err)
	metrics.LegacyRequests.WithLabelValues("v2", "error").Inc()
	writeJSON(w, status, map[string]string{
		"errorCode":    v1Code(status),
		"errorMessage": err.Error(),
	})
}
