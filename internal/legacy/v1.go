package legacy

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"marketchat/internal/chat/repository"
	"marketchat/internal/chat/service"
	"marketchat/internal/common"
	"marketchat/internal/dbmysql"
	"marketchat/internal/metrics"
)

// V1Adapter serves the original key-value thread API. Every response carries
// the deprecation notice; writes are gated by the generation's mode before
// anything reaches the store.
type V1Adapter struct {
	svc   service.ChatService
	state DeprecationState
	log   *zap.Logger
}

func NewV1Adapter(svc service.ChatService, state DeprecationState, log *zap.Logger) *V1Adapter {
	return &V1Adapter{svc: svc, state: state, log: log}
}

func (a *V1Adapter) Register(r *mux.Router) {
	r.HandleFunc("/threads", a.listThreads).Methods(http.MethodGet)
	r.HandleFunc("/threads", a.createThread).Methods(http.MethodPost)
	r.HandleFunc("/threads/{id}", a.getThread).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id}/reply", a.reply).Methods(http.MethodPost)
}

// v1Thread is the historical key-value thread shape.
type v1Thread struct {
	ThreadID    string    `json:"threadId"`
	CustomerID  string    `json:"customerId"`
	RecipientID string    `json:"recipientId"`
	Subject     string    `json:"subject,omitempty"`
	UnreadCount int       `json:"unreadCount"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type v1Message struct {
	MessageID string    `json:"messageId"`
	ThreadID  string    `json:"threadId"`
	SenderID  string    `json:"senderId"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sentAt"`
}

func v1ThreadFrom(conv *dbmysql.Conversation, callerID string) v1Thread {
	t := v1Thread{
		ThreadID:  conv.ID,
		Subject:   conv.ContextTitle,
		UpdatedAt: conv.LastActivityAt,
	}
	for _, p := range conv.Participants {
		if t.CustomerID == "" {
			t.CustomerID = p.UserID
		} else if t.RecipientID == "" {
			t.RecipientID = p.UserID
		}
		if p.UserID == callerID {
			t.UnreadCount = p.UnreadCount
		}
	}
	if t.RecipientID == "" {
		t.RecipientID = t.CustomerID
	}
	return t
}

func v1MessageFrom(msg *dbmysql.Message) v1Message {
	return v1Message{
		MessageID: msg.ID,
		ThreadID:  msg.ConversationID,
		SenderID:  msg.SenderID,
		Body:      msg.Content,
		SentAt:    msg.SentAt,
	}
}

func (a *V1Adapter) listThreads(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())
	convs, next, err := a.svc.ListConversations(r.Context(), claims.UserID,
		repository.ConversationFilters{}, r.URL.Query().Get("pageToken"), pageSize(r))
	if err != nil {
		a.writeError(w, err)
		return
	}

	threads := make([]v1Thread, 0, len(convs))
	for _, conv := range convs {
		threads = append(threads, v1ThreadFrom(conv, claims.UserID))
	}
	metrics.LegacyRequests.WithLabelValues("v1", "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"threads":       threads,
		"nextPageToken": next,
		"_deprecation":  a.state.Notice("/api/v4/conversations"),
	})
}

func (a *V1Adapter) getThread(w http.ResponseWriter, r *http.Request) {
	claims := common.ClaimsFromContext(r.Context())
	threadID := mux.Vars(r)["id"]

	conv, err := a.svc.GetConversation(r.Context(), threadID, claims.UserID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	messages, err := a.svc.ListMessages(r.Context(), threadID, claims.UserID, 0, pageSize(r))
	if err != nil {
		a.writeError(w, err)
		return
	}

	out := make([]v1Message, 0, len(messages))
	// v1 clients expect oldest first
	for i := len(messages) - 1; i >= 0; i-- {
		out = append(out, v1MessageFrom(messages[i]))
	}
	metrics.LegacyRequests.WithLabelValues("v1", "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"thread":       v1ThreadFrom(conv, claims.UserID),
		"messages":     out,
		"_deprecation": a.state.Notice("/api/v4/conversations/" + threadID + "/messages"),
	})
}

func (a *V1Adapter) createThread(w http.ResponseWriter, r *http.Request) {
	if rejectWrite(w, a.state, "/api/v4/conversations") {
		return
	}
	claims := common.ClaimsFromContext(r.Context())

	var req struct {
		RecipientID string `json:"recipientId"`
		Subject     string `json:"subject"`
		Body        string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, common.ErrInvalidParticipants)
		return
	}

	conv, err := a.svc.CreateConversation(r.Context(), claims.UserID,
		common.ConversationEnquiry, []string{req.RecipientID}, nil)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if req.Body != "" {
		if _, err := a.svc.SendMessage(r.Context(), conv.ID, claims.UserID, claims.Tier, req.Body, nil); err != nil {
			a.writeError(w, err)
			return
		}
	}
	metrics.LegacyRequests.WithLabelValues("v1", "ok").Inc()
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"thread":       v1ThreadFrom(conv, claims.UserID),
		"_deprecation": a.state.Notice("/api/v4/conversations"),
	})
}

func (a *V1Adapter) reply(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["id"]
	replacement := "/api/v4/conversations/" + threadID + "/messages"
	if rejectWrite(w, a.state, replacement) {
		return
	}
	claims := common.ClaimsFromContext(r.Context())

	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, common.ErrMessageNotFound)
		return
	}

	msg, err := a.svc.SendMessage(r.Context(), threadID, claims.UserID, claims.Tier, req.Body, nil)
	if err != nil {
		a.writeError(w, err)
		return
	}
	metrics.LegacyRequests.WithLabelValues("v1", "ok").Inc()
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":      v1MessageFrom(msg),
		"_deprecation": a.state.Notice(replacement),
	})
}

// writeError renders the generation's historical error envelope.
func (a *V1Adapter) writeError(w http.ResponseWriter, err error) {
	status := common.HTTPStatus(err)
	metrics.LegacyRequests.WithLabelValues("v1", "error").Inc()
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    v1Code(status),
			"message": err.Error(),
		},
	})
}

func v1Code(status int) string {
	switch status {
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusUnprocessableEntity:
		return "SPAM_REJECTED"
	case http.StatusGone:
		return "GONE"
	default:
		return "INTERNAL"
	}
}

func pageSize(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	return n
}
