// Package handler exposes the canonical (v4) HTTP surface and the realtime
// websocket endpoint.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"marketchat/internal/chat/repository"
	"marketchat/internal/chat/service"
	"marketchat/internal/common"
	"marketchat/internal/dbmysql"
)

type ChatHandler struct {
	chatService service.ChatService
	log         *zap.Logger
}

func NewChatHandler(chatService service.ChatService, log *zap.Logger) *ChatHandler {
	return &ChatHandler{chatService: chatService, log: log}
}

// Register mounts the v4 routes on the given (already authenticated) router.
func (h *ChatHandler) Register(r *mux.Router) {
	r.HandleFunc("/conversations", h.CreateConversation).Methods(http.MethodPost)
	r.HandleFunc("/conversations", h.ListConversations).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}", h.GetConversation).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/settings", h.UpdateSettings).Methods(http.MethodPatch)
	r.HandleFunc("/conversations/{id}/messages", h.SendMessage).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages", h.ListMessages).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/read", h.MarkRead).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}", h.EditMessage).Methods(http.MethodPatch)
	r.HandleFunc("/messages/{id}", h.DeleteMessage).Methods(http.MethodDelete)
	r.HandleFunc("/messages/{id}/reaction", h.React).Methods(http.MethodPut)
	r.HandleFunc("/unread", h.Unread).Methods(http.MethodGet)
	r.HandleFunc("/search", h.Search).Methods(http.MethodGet)
	r.HandleFunc("/contacts", h.Contacts).Methods(http.MethodGet)
}

func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())

	var req struct {
		Type           string               `json:"type"`
		ParticipantIDs []string             `json:"participant_ids"`
		Context        *service.ContextLink `json:"context,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.New("malformed request body"), http.StatusBadRequest)
		return
	}

	conv, err := h.chatService.CreateConversation(r.Context(), claims.UserID,
		common.ConversationType(req.Type), req.ParticipantIDs, req.Context)
	if err != nil {
		var dup *common.DuplicateDirectError
		if errors.As(err, &dup) {
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":                    "duplicate_direct_conversation",
				"existing_conversation_id": dup.ExistingID,
				"conversation":             conv,
			})
			return
		}
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())
	conv, err := h.chatService.GetConversation(r.Context(), mux.Vars(r)["id"], claims.UserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())
	q := r.URL.Query()
	filters := repository.ConversationFilters{
		Unread:   q.Get("unread") == "true",
		Pinned:   q.Get("pinned") == "true",
		Archived: q.Get("archived") == "true",
		Type:     q.Get("type"),
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	convs, next, err := h.chatService.ListConversations(r.Context(), claims.UserID, filters, q.Get("cursor"), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": convs,
		"next_cursor":   next,
	})
}

func (h *ChatHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())

	var req struct {
		IsPinned   *bool `json:"is_pinned"`
		IsMuted    *bool `json:"is_muted"`
		IsArchived *bool `json:"is_archived"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.New("malformed request body"), http.StatusBadRequest)
		return
	}
	settings := repository.ParticipantSettings{
		IsPinned:   req.IsPinned,
		IsMuted:    req.IsMuted,
		IsArchived: req.IsArchived,
	}

	if err := h.chatService.UpdateSettings(r.Context(), mux.Vars(r)["id"], claims.UserID, settings); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())

	var req struct {
		Content     string              `json:"content"`
		Attachments []dbmysql.Attachment `json:"attachments,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.New("malformed request body"), http.StatusBadRequest)
		return
	}

	msg, err := h.chatService.SendMessage(r.Context(), mux.Vars(r)["id"],
		claims.UserID, claims.Tier, req.Content, req.Attachments)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())
	q := r.URL.Query()
	beforeSeq, _ := strconv.ParseInt(q.Get("before_seq"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))

	messages, err := h.chatService.ListMessages(r.Context(), mux.Vars(r)["id"], claims.UserID, beforeSeq, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

func (h *ChatHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.New("malformed request body"), http.StatusBadRequest)
		return
	}

	msg, err := h.chatService.EditMessage(r.Context(), mux.Vars(r)["id"], claims.UserID, req.Content)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())
	if err := h.chatService.DeleteMessage(r.Context(), mux.Vars(r)["id"], claims.UserID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *ChatHandler) React(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())

	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.New("malformed request body"), http.StatusBadRequest)
		return
	}

	if err := h.chatService.AddReaction(r.Context(), mux.Vars(r)["id"], claims.UserID, req.Emoji); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reacted": true})
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())

	var req struct {
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.New("malformed request body"), http.StatusBadRequest)
		return
	}

	remaining, err := h.chatService.MarkRead(r.Context(), mux.Vars(r)["id"], claims.UserID, req.MessageID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": remaining})
}

func (h *ChatHandler) Unread(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())
	total, err := h.chatService.TotalUnread(r.Context(), claims.UserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"total_unread": total})
}

func (h *ChatHandler) Search(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	messages, err := h.chatService.Search(r.Context(), claims.UserID, r.URL.Query().Get("q"), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"matches": messages})
}

func (h *ChatHandler) Contacts(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())
	users, err := h.chatService.Contacts(r.Context(), claims.UserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"contacts": users})
}

func (h *ChatHandler) writeServiceError(w http.ResponseWriter, err error) {
	status := common.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
		writeError(w, errors.New("internal error"), status)
		return
	}
	writeError(w, err, status)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error, status int) {
	body := map[string]interface{}{"message": err.Error()}
	var rl *common.RateLimitedError
	if errors.As(err, &rl) {
		body["retry_after_ms"] = rl.RetryAfter.Milliseconds()
	}
	writeJSON(w, status, body)
}
