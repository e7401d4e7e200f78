package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketchat/internal/chat/repository"
	"marketchat/internal/chat/service"
	"marketchat/internal/common"
	"marketchat/internal/dbmysql"
)

type fakeService struct {
	conversation *dbmysql.Conversation
	message      *dbmysql.Message
	err          error

	gotContent string
	gotFilters repository.ConversationFilters
	gotBefore  int64
	gotSetting repository.ParticipantSettings
}

func (f *fakeService) CreateConversation(_ context.Context, _ string, _ common.ConversationType, _ []string, _ *service.ContextLink) (*dbmysql.Conversation, error) {
	return f.conversation, f.err
}

func (f *fakeService) GetConversation(context.Context, string, string) (*dbmysql.Conversation, error) {
	return f.conversation, f.err
}

func (f *fakeService) ListConversations(_ context.Context, _ string, filters repository.ConversationFilters, _ string, _ int) ([]*dbmysql.Conversation, string, error) {
	f.gotFilters = filters
	if f.err != nil {
		return nil, "", f.err
	}
	return []*dbmysql.Conversation{f.conversation}, "cursor-2", nil
}

func (f *fakeService) UpdateSettings(_ context.Context, _, _ string, s repository.ParticipantSettings) error {
	f.gotSetting = s
	return f.err
}

func (f *fakeService) SendMessage(_ context.Context, _, _ string, _ common.Tier, content string, _ []dbmysql.Attachment) (*dbmysql.Message, error) {
	f.gotContent = content
	return f.message, f.err
}

func (f *fakeService) ListMessages(_ context.Context, _, _ string, beforeSeq int64, _ int) ([]*dbmysql.Message, error) {
	f.gotBefore = beforeSeq
	if f.err != nil {
		return nil, f.err
	}
	return []*dbmysql.Message{f.message}, nil
}

func (f *fakeService) EditMessage(context.Context, string, string, string) (*dbmysql.Message, error) {
	return f.message, f.err
}

func (f *fakeService) DeleteMessage(context.Context, string, string) error { return f.err }

func (f *fakeService) AddReaction(context.Context, string, string, string) error { return f.err }

func (f *fakeService) MarkRead(context.Context, string, string, string) (int, error) {
	return 4, f.err
}

func (f *fakeService) TotalUnread(context.Context, string) (int64, error) { return 9, f.err }

func (f *fakeService) Search(context.Context, string, string, int) ([]*dbmysql.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*dbmysql.Message{f.message}, nil
}

func (f *fakeService) Contacts(context.Context, string) ([]*dbmysql.User, error) {
	return nil, f.err
}

func (f *fakeService) Typing(context.Context, string, string, bool) error { return f.err }

func newRouter(svc service.ChatService) *mux.Router {
	router := mux.NewRouter()
	NewChatHandler(svc, zap.NewNop()).Register(router)
	return router
}

func do(t *testing.T, router *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	if body == "" {
		body = "{}"
	}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	claims := &common.Claims{UserID: "alice", Tier: common.TierPlus}
	req = req.WithContext(common.WithClaims(req.Context(), claims))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func testFixtures() *fakeService {
	return &fakeService{
		conversation: &dbmysql.Conversation{ID: "conv-1", Type: "direct", LastActivityAt: time.Now().UTC()},
		message:      &dbmysql.Message{ID: "msg-1", ConversationID: "conv-1", Seq: 1, SenderID: "alice", Content: "hi"},
	}
}

func TestSendMessage(t *testing.T) {
	svc := testFixtures()
	router := newRouter(svc)

	rec := do(t, router, http.MethodPost, "/conversations/conv-1/messages", `{"content":"hi there"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "hi there", svc.gotContent)

	var msg dbmysql.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, int64(1), msg.Seq)
}

func TestSendMessageErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"non-participant reads as missing", common.ErrNotAParticipant, http.StatusNotFound},
		{"spam", common.ErrSpamRejected, http.StatusUnprocessableEntity},
		{"rate limited", &common.RateLimitedError{RetryAfter: 1500 * time.Millisecond}, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := testFixtures()
			svc.err = tt.err
			rec := do(t, newRouter(svc), http.MethodPost, "/conversations/conv-1/messages", `{"content":"hi"}`)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRateLimitedResponseCarriesRetryAfter(t *testing.T) {
	svc := testFixtures()
	svc.err = &common.RateLimitedError{RetryAfter: 1500 * time.Millisecond}

	rec := do(t, newRouter(svc), http.MethodPost, "/conversations/conv-1/messages", `{"content":"hi"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1500), body["retry_after_ms"])
}

func TestInternalErrorsAreMasked(t *testing.T) {
	svc := testFixtures()
	svc.err = assert.AnError

	rec := do(t, newRouter(svc), http.MethodGet, "/unread", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
	assert.Contains(t, rec.Body.String(), "internal error")
}

func TestCreateConversationDuplicateDirect(t *testing.T) {
	svc := testFixtures()
	svc.err = &common.DuplicateDirectError{ExistingID: "conv-1"}

	rec := do(t, newRouter(svc), http.MethodPost, "/conversations",
		`{"type":"direct","participant_ids":["bob"]}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "duplicate_direct_conversation", body["error"])
	assert.Equal(t, "conv-1", body["existing_conversation_id"])
}

func TestListConversationsFilters(t *testing.T) {
	svc := testFixtures()
	router := newRouter(svc)

	rec := do(t, router, http.MethodGet, "/conversations?unread=true&pinned=true&type=enquiry", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, repository.ConversationFilters{Unread: true, Pinned: true, Type: "enquiry"}, svc.gotFilters)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "cursor-2", body["next_cursor"])
}

func TestListMessagesBeforeSeq(t *testing.T) {
	svc := testFixtures()
	rec := do(t, newRouter(svc), http.MethodGet, "/conversations/conv-1/messages?before_seq=42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(42), svc.gotBefore)
}

func TestUpdateSettingsPartialPatch(t *testing.T) {
	svc := testFixtures()
	rec := do(t, newRouter(svc), http.MethodPatch, "/conversations/conv-1/settings", `{"is_pinned":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, svc.gotSetting.IsPinned)
	assert.True(t, *svc.gotSetting.IsPinned)
	assert.Nil(t, svc.gotSetting.IsMuted, "absent fields stay untouched")
	assert.Nil(t, svc.gotSetting.IsArchived)
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	svc := testFixtures()
	rec := do(t, newRouter(svc), http.MethodPost, "/conversations/conv-1/messages", `{"content":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkReadAndUnread(t *testing.T) {
	svc := testFixtures()
	router := newRouter(svc)

	rec := do(t, router, http.MethodPost, "/conversations/conv-1/read", `{"message_id":"msg-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var read map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &read))
	assert.Equal(t, 4, read["unread_count"])

	rec = do(t, router, http.MethodGet, "/unread", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var unread map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unread))
	assert.Equal(t, int64(9), unread["total_unread"])
}
