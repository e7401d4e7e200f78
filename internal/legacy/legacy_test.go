package legacy

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
	"marketchat/internal/config"
	"marketchat/internal/dbmysql"
)

// fakeService records which store operations the adapters invoked.
type fakeService struct {
	calls []string

	conversation *dbmysql.Conversation
	messages     []*dbmysql.Message
	err          error
}

func (f *fakeService) record(op string) { f.calls = append(f.calls, op) }

func (f *fakeService) CreateConversation(_ context.Context, _ string, _ common.ConversationType, _ []string, _ *service.ContextLink) (*dbmysql.Conversation, error) {
	f.record("CreateConversation")
	return f.conversation, f.err
}

func (f *fakeService) GetConversation(context.Context, string, string) (*dbmysql.Conversation, error) {
	f.record("GetConversation")
	return f.conversation, f.err
}

func (f *fakeService) ListConversations(context.Context, string, repository.ConversationFilters, string, int) ([]*dbmysql.Conversation, string, error) {
	f.record("ListConversations")
	if f.err != nil {
		return nil, "", f.err
	}
	return []*dbmysql.Conversation{f.conversation}, "next-token", nil
}

func (f *fakeService) UpdateSettings(context.Context, string, string, repository.ParticipantSettings) error {
	f.record("UpdateSettings")
	return f.err
}

func (f *fakeService) SendMessage(_ context.Context, _, _ string, _ common.Tier, _ string, _ []dbmysql.Attachment) (*dbmysql.Message, error) {
	f.record("SendMessage")
	if f.err != nil {
		return nil, f.err
	}
	return f.messages[0], nil
}

func (f *fakeService) ListMessages(context.Context, string, string, int64, int) ([]*dbmysql.Message, error) {
	f.record("ListMessages")
	return f.messages, f.err
}

func (f *fakeService) EditMessage(context.Context, string, string, string) (*dbmysql.Message, error) {
	f.record("EditMessage")
	if f.err != nil {
		return nil, f.err
	}
	return f.messages[0], nil
}

func (f *fakeService) DeleteMessage(context.Context, string, string) error {
	f.record("DeleteMessage")
	return f.err
}

func (f *fakeService) AddReaction(context.Context, string, string, string) error {
	f.record("AddReaction")
	return f.err
}

func (f *fakeService) MarkRead(context.Context, string, string, string) (int, error) {
	f.record("MarkRead")
	return 2, f.err
}

func (f *fakeService) TotalUnread(context.Context, string) (int64, error) {
	f.record("TotalUnread")
	return 7, f.err
}

func (f *fakeService) Search(context.Context, string, string, int) ([]*dbmysql.Message, error) {
	f.record("Search")
	return f.messages, f.err
}

func (f *fakeService) Contacts(context.Context, string) ([]*dbmysql.User, error) {
	f.record("Contacts")
	return nil, f.err
}

func (f *fakeService) Typing(context.Context, string, string, bool) error {
	f.record("Typing")
	return f.err
}

func newFakeService() *fakeService {
	sent := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return &fakeService{
		conversation: &dbmysql.Conversation{
			ID:             "conv-1",
			Type:           "direct",
			LastActivityAt: sent,
			Participants: []dbmysql.ConversationParticipant{
				{ConversationID: "conv-1", UserID: "alice", UnreadCount: 3},
				{ConversationID: "conv-1", UserID: "bob"},
			},
		},
		messages: []*dbmysql.Message{
			{ID: "msg-2", ConversationID: "conv-1", Seq: 2, SenderID: "bob", Content: "later", SentAt: sent},
			{ID: "msg-1", ConversationID: "conv-1", Seq: 1, SenderID: "alice", Content: "first", SentAt: sent},
		},
	}
}

func do(t *testing.T, router *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	claims := &common.Claims{UserID: "alice", Tier: common.TierFree}
	req = req.WithContext(common.WithClaims(req.Context(), claims))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func fullState(gen string) DeprecationState {
	return DeprecationState{Generation: gen, Mode: ModeFull, Sunset: "2026-12-31"}
}

func readOnlyState(gen string) DeprecationState {
	return DeprecationState{Generation: gen, Mode: ModeReadOnly, Sunset: "2026-12-31"}
}

func TestStateFromConfig(t *testing.T) {
	tests := []struct {
		configured string
		want       Mode
	}{
		{"full", ModeFull},
		{"read-only", ModeReadOnly},
		{"shutdown", ModeShutdown},
		{"", ModeReadOnly},
		{"banana", ModeReadOnly},
	}
	for _, tt := range tests {
		state := StateFromConfig("v1", config.GenerationConfig{Mode: tt.configured})
		assert.Equal(t, tt.want, state.Mode, "configured %q", tt.configured)
	}
}

func TestV1ReadCarriesNotice(t *testing.T) {
	svc := newFakeService()
	router := mux.NewRouter()
	NewV1Adapter(svc, readOnlyState("v1"), zap.NewNop()).Register(router)

	rec := do(t, router, http.MethodGet, "/threads", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	notice, ok := body["_deprecation"].(map[string]interface{})
	require.True(t, ok, "every v1 response carries the deprecation object")
	assert.Equal(t, true, notice["deprecated"])
	assert.Equal(t, "v1", notice["generation"])
	assert.Equal(t, "/api/v4/conversations", notice["replacement"])
	assert.Equal(t, "2026-12-31", notice["sunset"])

	threads := body["threads"].([]interface{})
	require.Len(t, threads, 1)
	thread := threads[0].(map[string]interface{})
	assert.Equal(t, "conv-1", thread["threadId"])
	assert.Equal(t, "alice", thread["customerId"])
	assert.Equal(t, "bob", thread["recipientId"])
	assert.Equal(t, float64(3), thread["unreadCount"])
}

func TestV1ReadOnlyRejectsWrites(t *testing.T) {
	svc := newFakeService()
	router := mux.NewRouter()
	NewV1Adapter(svc, readOnlyState("v1"), zap.NewNop()).Register(router)

	for _, req := range []struct{ method, path string }{
		{http.MethodPost, "/threads"},
		{http.MethodPost, "/threads/conv-1/reply"},
	} {
		rec := do(t, router, req.method, req.path, `{"body":"hi"}`)
		assert.Equal(t, http.StatusGone, rec.Code, "%s %s", req.method, req.path)

		body := decode(t, rec)
		assert.Equal(t, "gone", body["error"])
		assert.Equal(t, "v1", body["generation"])
		assert.NotEmpty(t, body["replacement"])
		assert.NotEmpty(t, body["sunset"])
	}
	assert.Empty(t, svc.calls, "rejected writes never reach the store")
}

func TestV1FullModeForwardsWrites(t *testing.T) {
	svc := newFakeService()
	router := mux.NewRouter()
	NewV1Adapter(svc, fullState("v1"), zap.NewNop()).Register(router)

	rec := do(t, router, http.MethodPost, "/threads/conv-1/reply", `{"body":"hi"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"SendMessage"}, svc.calls)

	body := decode(t, rec)
	msg := body["message"].(map[string]interface{})
	assert.Equal(t, "msg-2", msg["messageId"])
	assert.NotNil(t, body["_deprecation"])
}

func TestV1MessagesOldestFirst(t *testing.T) {
	svc := newFakeService()
	router := mux.NewRouter()
	NewV1Adapter(svc, readOnlyState("v1"), zap.NewNop()).Register(router)

	rec := do(t, router, http.MethodGet, "/threads/conv-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	msgs := decode(t, rec)["messages"].([]interface{})
	require.Len(t, msgs, 2)
	assert.Equal(t, "msg-1", msgs[0].(map[string]interface{})["messageId"])
	assert.Equal(t, "msg-2", msgs[1].(map[string]interface{})["messageId"])
}

func TestV1ErrorEnvelope(t *testing.T) {
	svc := newFakeService()
	svc.err = common.ErrNotAParticipant
	router := mux.NewRouter()
	NewV1Adapter(svc, fullState("v1"), zap.NewNop()).Register(router)

	rec := do(t, router, http.MethodGet, "/threads/conv-1", "")
	require.Equal(t, http.StatusNotFound, rec.Code, "membership failures read as not found")

	errObj := decode(t, rec)["error"].(map[string]interface{})
	assert.Equal(t, "NOT_FOUND", errObj["code"])
}

func TestV2Envelope(t *testing.T) {
	svc := newFakeService()
	router := mux.NewRouter()
	NewV2Adapter(svc, readOnlyState("v2"), zap.NewNop()).Register(router)

	rec := do(t, router, http.MethodGet, "/conversations", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["deprecated"])
	assert.Equal(t, "v2", body["generation"])
	data := body["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	conv := items[0].(map[string]interface{})
	assert.Equal(t, "conv-1", conv["conversationId"])
	assert.Equal(t, float64(3), conv["unreadCount"])
}

func TestV2ReadOnlyRejectsWrites(t *testing.T) {
	svc := newFakeService()
	router := mux.NewRouter()
	NewV2Adapter(svc, readOnlyState("v2"), zap.NewNop()).Register(router)

	for _, req := range []struct{ method, path string }{
		{http.MethodPost, "/conversations"},
		{http.MethodPost, "/conversations/conv-1/messages"},
		{http.MethodPost, "/conversations/conv-1/read"},
	} {
		rec := do(t, router, req.method, req.path, `{"text":"hi"}`)
		assert.Equal(t, http.StatusGone, rec.Code, "%s %s", req.method, req.path)
	}
	assert.Empty(t, svc.calls)
}

func TestV2ErrorEnvelope(t *testing.T) {
	svc := newFakeService()
	svc.err = &common.RateLimitedError{RetryAfter: 2 * time.Second}
	router := mux.NewRouter()
	NewV2Adapter(svc, fullState("v2"), zap.NewNop()).Register(router)

	rec := do(t, router, http.MethodPost, "/conversations/conv-1/messages", `{"text":"hi"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decode(t, rec)["errorCode"])
}

func TestV3FullOperationSet(t *testing.T) {
	svc := newFakeService()
	router := mux.NewRouter()
	NewV3Adapter(svc, fullState("v3"), zap.NewNop()).Register(router)

	tests := []struct {
		method, path, body string
		status             int
		op                 string
	}{
		{http.MethodGet, "/conversations", "", http.StatusOK, "ListConversations"},
		{http.MethodPost, "/conversations", `{"type":"direct","participantIds":["bob"]}`, http.StatusCreated, "CreateConversation"},
		{http.MethodGet, "/conversations/conv-1/messages", "", http.StatusOK, "ListMessages"},
		{http.MethodPost, "/conversations/conv-1/messages", `{"text":"hi"}`, http.StatusCreated, "SendMessage"},
		{http.MethodPost, "/conversations/conv-1/read", `{"messageId":"msg-2"}`, http.StatusOK, "MarkRead"},
		{http.MethodPut, "/messages/msg-2", `{"text":"edit"}`, http.StatusOK, "EditMessage"},
		{http.MethodDelete, "/messages/msg-2", "", http.StatusOK, "DeleteMessage"},
		{http.MethodPost, "/messages/msg-2/reactions", `{"emoji":"x"}`, http.StatusOK, "AddReaction"},
		{http.MethodGet, "/unread", "", http.StatusOK, "TotalUnread"},
		{http.MethodGet, "/search?q=hi", "", http.StatusOK, "Search"},
		{http.MethodGet, "/contacts", "", http.StatusOK, "Contacts"},
	}
	for _, tt := range tests {
		svc.calls = nil
		rec := do(t, router, tt.method, tt.path, tt.body)
		require.Equal(t, tt.status, rec.Code, "%s %s: %s", tt.method, tt.path, rec.Body.String())
		assert.Equal(t, []string{tt.op}, svc.calls)

		body := decode(t, rec)
		assert.Equal(t, "v3", body["generation"], "%s %s", tt.method, tt.path)
		assert.Contains(t, body, "result")
	}
}

func TestV3ReadOnlyRejectsWrites(t *testing.T) {
	svc := newFakeService()
	router := mux.NewRouter()
	NewV3Adapter(svc, readOnlyState("v3"), zap.NewNop()).Register(router)

	writes := []struct{ method, path string }{
		{http.MethodPost, "/conversations"},
		{http.MethodPost, "/conversations/conv-1/messages"},
		{http.MethodPost, "/conversations/conv-1/read"},
		{http.MethodPut, "/messages/msg-2"},
		{http.MethodDelete, "/messages/msg-2"},
		{http.MethodPost, "/messages/msg-2/reactions"},
	}
	for _, req := range writes {
		rec := do(t, router, req.method, req.path, `{"text":"hi"}`)
		assert.Equal(t, http.StatusGone, rec.Code, "%s %s", req.method, req.path)
	}
	assert.Empty(t, svc.calls)

	// reads still work in read-only mode
	rec := do(t, router, http.MethodGet, "/unread", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRedirects(t *testing.T) {
	router := mux.NewRouter()
	RegisterRedirects(router)

	tests := []struct {
		path   string
		target string
	}{
		{"/inbox", SPAEntry},
		{"/messages", SPAEntry},
		{"/account/messages", SPAEntry},
		{"/inbox/conv-1", SPAEntry + "?conversation=conv-1"},
		{"/messages/conv-9", SPAEntry + "?conversation=conv-9"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMovedPermanently, rec.Code, tt.path)
		assert.Equal(t, tt.target, rec.Header().Get("Location"), tt.path)
	}
}
