package legacy

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"marketchat/internal/chat/repository"
	"marketchat/internal/chat/service"
	"marketchat/internal/common"
	"marketchat/internal/metrics"
)

// V3Adapter is the last pre-canonical generation: operation set matches v4
// but field names and the error envelope differ. It reuses the v2 wire
// structs where the shapes did not change between the two generations.
type V3Adapter struct {
	svc   service.ChatService
	state DeprecationState
	log   *zap.Logger
}

func NewV3Adapter(svc service.ChatService, state DeprecationState, log *zap.Logger) *V3Adapter {
	return &V3Adapter{svc: svc, state: state, log: log}
}

func (a *V3Adapter) Register(r *mux.Router) {
	r.HandleFunc("/conversations", a.list).Methods(http.MethodGet)
	r.HandleFunc("/conversations", a.create).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages", a.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/messages", a.send).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/read", a.markRead).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}", a.edit).Methods(http.MethodPut)
	r.HandleFunc("/messages/{id}", a.del).Methods(http.MethodDelete)
	r.HandleFunc("/messages/{id}/reactions", a.react).Methods(http.MethodPost)
	r.HandleFunc("/unread", a.unread).Methods(http.MethodGet)
	r.HandleFunc("/search", a.search).Methods(http.MethodGet)
	r.HandleFunc("/contacts", a.contacts).Methods(http.MethodGet)
}

type v3Envelope struct {
	Notice
	Result interface{} `json:"result"`
}

func (a *V3Adapter) envelope(replacement string, result interface{}) v3Envelope {
	return v3Envelope{Notice: a.state.Notice(replacement), Result: result}
}

func (a *V3Adapter) list(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())
	q := r.URL.Query()
	filters := repository.ConversationFilters{
		Unread:   q.Get("unread") == "true",
		Pinned:   q.Get("pinned") == "true",
		Archived: q.Get("archived") == "true",
		Type:     q.Get("type"),
	}
	convs, next, err := a.svc.ListConversations(r.Context(), claims.UserID, filters, q.Get("cursor"), pageSize(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	items := make([]v2Conversation, 0, len(convs))
	for _, conv := range convs {
		items = append(items, v2ConversationFrom(conv, claims.UserID))
	}
	metrics.LegacyRequests.WithLabelValues("v3", "ok").Inc()
	writeJSON(w, http.StatusOK, a.envelope("/api/v4/conversations",
		map[string]interface{}{"items": items, "nextCursor": next}))
}

func (a *V3Adapter) create(w http.ResponseWriter, r *http.Request) {
	if rejectWrite(w, a.state, "/api/v4/conversations") {
		return
	}
	claims := common.ClaimsFromContext(r.Context())

	var req struct {
		Type           string   `json:"type"`
		ParticipantIDs []string `json:"participantIds"`
		ContextKind    string   `json:"contextKind"`
		ContextID      string   `json:"contextId"`
		ContextTitle   string   `json:"contextTitle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, common.ErrInvalidParticipants)
		return
	}
	var link *service.ContextLink
	if req.ContextKind != "" {
		link = &service.ContextLink{
			Kind:  common.ContextKind(req.ContextKind),
			ID:    req.ContextID,
			Title: req.ContextTitle,
		}
	}

	conv, err := a.svc.CreateConversation(r.Context(), claims.UserID,
		common.ConversationType(req.Type), req.ParticipantIDs, link)
	if err != nil {
		a.writeError(w, err)
		return
	}
	metrics.LegacyRequests.WithLabelValues("v3", "ok").Inc()
	writeJSON(w, http.StatusCreated, a.envelope("/api/v4/conversations",
		v2ConversationFrom(conv, claims.UserID)))
}

func (a *V3Adapter) listMessages(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())
	conversationID := mux.Vars(r)["id"]
	beforeSeq, _ := strconv.ParseInt(r.URL.Query().Get("beforeSeq"), 10, 64)

	messages, err := a.svc.ListMessages(r.Context(), conversationID, claims.UserID, beforeSeq, pageSize(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	items := make([]v2Message, 0, len(messages))
	for _, msg := range messages {
		items = append(items, v2MessageFrom(msg))
	}
	metrics.LegacyRequests.WithLabelValues("v3", "ok").Inc()
	writeJSON(w, http.StatusOK, a.envelope(
		"/api/v4/conversations/"+conversationID+"/messages",
		map[string]interface{}{"items": items}))
}

func (a *V3Adapter) send(w http.ResponseWriter, r *http.Request) {
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
	metrics.LegacyRequests.WithLabelValues("v3", "ok").Inc()
	writeJSON(w, http.StatusCreated, a.envelope(replacement, v2MessageFrom(msg)))
}

func (a *V3Adapter) edit(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["id"]
	replacement := "/api/v4/messages/" + messageID
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
	msg, err := a.svc.EditMessage(r.Context(), messageID, claims.UserID, req.Text)
	if err != nil {
		a.writeError(w, err)
		return
	}
	metrics.LegacyRequests.WithLabelValues("v3", "ok").Inc()
	writeJSON(w, http.StatusOK, a.envelope(replacement, v2MessageFrom(msg)))
}

func (a *V3Adapter) del(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["id"]
	replacement := "/api/v4/messages/" + messageID
	if rejectWrite(w, a.state, replacement) {
		return
	}
	claims := common.ClaimsFromContext(r.Context())

	if err := a.svc.DeleteMessage(r.Context(), messageID, claims.UserID); err != nil {
		a.writeError(w, err)
		return
	}
	metrics.LegacyRequests.WithLabelValues("v3", "ok").Inc()
	writeJSON(w, http.StatusOK, a.envelope(replacement, map[string]bool{"deleted": true}))
}

func (a *V3Adapter) react(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["id"]
	replacement := "/api/v4/messages/" + messageID + "/reaction"
	if rejectWrite(w, a.state, replacement) {
		return
	}
	claims := common.ClaimsFromContext(r.Context())

	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, common.ErrMessageNotFound)
		return
	}
	if err := a.svc.AddReaction(r.Context(), messageID, claims.UserID, req.Emoji); err != nil {
		a.writeError(w, err)
		return
	}
	metrics.LegacyRequests.WithLabelValues("v3", "ok").Inc()
	writeJSON(w, http.StatusOK, a.envelope(replacement, map[string]bool{"reacted": true}))
}

func (a *V3Adapter) markRead(w http.ResponseWriter, r *http.Request) {
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
	metrics.LegacyRequests.WithLabelValues("v3", "ok").Inc()
	writeJSON(w, http.StatusOK, a.envelope(replacement, map[string]int{"unreadCount": remaining}))
}

func (a *V3Adapter) unread(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())
	total, err := a.svc.TotalUnread(r.Context(), claims.UserID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	metrics.LegacyRequests.WithLabelValues("v3", "ok").Inc()
	writeJSON(w, http.StatusOK, a.envelope("/api/v4/unread", map[string]int64{"totalUnread": total}))
}

func (a *V3Adapter) search(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())
	messages, err := a.svc.Search(r.Context(), claims.UserID, r.URL.Query().Get("q"), pageSize(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	items := make([]v2Message, 0, len(messages))
	for _, msg := range messages {
		items = append(items, v2MessageFrom(msg))
	}
	metrics.LegacyRequests.WithLabelValues("v3", "ok").Inc()
	writeJSON(w, http.StatusOK, a.envelope("/api/v4/search", map[string]interface{}{"items": items}))
}

func (a *V3Adapter) contacts(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())
	users, err := a.svc.Contacts(r.Context(), claims.UserID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	metrics.LegacyRequests.WithLabelValues("v3", "ok").Inc()
	writeJSON(w, http.StatusOK, a.envelope("/api/v4/contacts", map[string]interface{}{"items": users}))
}

func (a *V3Adapter) writeError(w http.ResponseWriter, err error) {
	status := common.HTTPStatus(err)
	metrics.LegacyRequests.WithLabelValues("v3", "error").Inc()
	writeJSON(w, status, map[string]string{
		"error":   v1Code(status),
		"message": err.Error(),
	})
}
