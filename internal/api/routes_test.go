package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/quakealert/internal/core"
	"github.com/example/quakealert/internal/db"
	"github.com/example/quakealert/internal/liveview"
	"github.com/example/quakealert/internal/middleware"
	"github.com/example/quakealert/internal/models"
)

// tokenVerifier accepts tokens of the form "tok-<uid>".
type tokenVerifier struct{}

func (tokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	uid, ok := strings.CutPrefix(idToken, "tok-")
	if !ok || uid == "" {
		return nil, errors.New("invalid token")
	}
	return &auth.Token{UID: uid, Claims: map[string]interface{}{
		"email": uid + "@example.com",
		"name":  "User " + uid,
	}}, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := db.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	logger := zap.NewNop()
	audit := core.NewAuditService(store.Audit())
	messages := core.NewMessageService(store.Users(), store.Groups(), store.Messages(), logger)
	services := Services{
		Users:    core.NewUserService(store.Users(), logger),
		Social:   core.NewSocialService(store.Users(), store.FriendRequests(), store, audit, nil, time.Minute, logger),
		Groups:   core.NewGroupService(store.Users(), store.Groups(), store.Messages(), audit, logger),
		Messages: messages,
		SOS:      core.NewSOSService(store.Users(), store.Messages(), audit, nil, "sos.alerts", 4, logger),
		Live:     liveview.NewSynchronizer(store.Users(), store.FriendRequests(), store.Groups(), messages, logger),
	}

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	SetupRoutes(router, logger, middleware.NewAuthMiddleware(tokenVerifier{}, logger), services, "")
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path, uid string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("Authorization", "Bearer tok-"+uid)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func initialize(t *testing.T, router http.Handler, uids ...string) {
	t.Helper()
	for _, uid := range uids {
		w := doJSON(t, router, http.MethodPost, "/api/v1/users/initialize", uid, nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
}

func befriend(t *testing.T, router http.Handler, from, to string) {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/v1/friends/requests", from, gin.H{"email": to + "@example.com"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	req := decode[models.FriendRequest](t, w)
	w = doJSON(t, router, http.MethodPost, "/api/v1/friends/requests/"+req.ID+"/accept", to, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", fmt.Errorf("group g1: %w", core.ErrNotFound), http.StatusNotFound, "not_found"},
		{"empty message", core.ErrEmptyMessage, http.StatusBadRequest, "empty_message"},
		{"invalid input", core.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
		{"already connected", core.ErrAlreadyConnected, http.StatusConflict, "already_connected"},
		{"duplicate", core.ErrDuplicateRequest, http.StatusConflict, "duplicate_request"},
		{"not member", core.ErrNotMember, http.StatusForbidden, "not_member"},
		{"not owner", core.ErrNotOwner, http.StatusForbidden, "not_owner"},
		{"no emergency contacts", core.ErrNoEmergencyContacts, http.StatusUnprocessableEntity, "no_emergency_contacts"},
		{"store", core.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := classifyError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestHealthAndAuth(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInitializeUser(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/users/initialize", "alice", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode[InitializeUserResponse](t, w)
	assert.True(t, resp.Created)
	assert.Equal(t, "alice@example.com", resp.User.Email)

	w = doJSON(t, router, http.MethodPost, "/api/v1/users/initialize", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[InitializeUserResponse](t, w).Created)

	w = doJSON(t, router, http.MethodGet, "/api/v1/users/me", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "User alice", decode[models.User](t, w).DisplayName)
}

func TestFriendFlow(t *testing.T) {
	router := newTestRouter(t)
	initialize(t, router, "alice", "bob")

	w := doJSON(t, router, http.MethodPost, "/api/v1/friends/requests", "alice", gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/friends/requests", "alice", gin.H{"email": "alice@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "self_reference", decode[ErrorResponse](t, w).Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/friends/requests", "alice", gin.H{"email": "bob@example.com"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/friends/requests", "alice", gin.H{"email": "bob@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/friends/requests", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	pending := decode[[]models.FriendRequest](t, w)
	require.Len(t, pending, 1)
	assert.Equal(t, "alice", pending[0].FromID)

	w = doJSON(t, router, http.MethodPost, "/api/v1/friends/requests/"+pending[0].ID+"/accept", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/friends/requests/"+pending[0].ID+"/accept", "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/users/me", "alice", nil)
	me := decode[models.User](t, w)
	require.Len(t, me.Contacts, 1)
	assert.Equal(t, "bob", me.Contacts[0].ID)

	w = doJSON(t, router, http.MethodPut, "/api/v1/contacts/bob/emergency", "alice", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(t, router, http.MethodPut, "/api/v1/contacts/bob/emergency", "alice", gin.H{"enabled": true})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/contacts/bob", "alice", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, router, http.MethodGet, "/api/v1/users/me", "bob", nil)
	assert.Empty(t, decode[models.User](t, w).Contacts)
}

func TestGroupAndMessages(t *testing.T) {
	router := newTestRouter(t)
	initialize(t, router, "alice", "bob", "carol")

	w := doJSON(t, router, http.MethodPost, "/api/v1/groups", "alice", gin.H{"name": "Block 7", "memberIds": []string{"bob"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	group := decode[models.GroupChat](t, w)
	assert.ElementsMatch(t, []string{"alice", "bob"}, group.Members)

	path := "/api/v1/groups/" + group.ID + "/messages"
	w = doJSON(t, router, http.MethodPost, path, "bob", gin.H{"text": "all fine here"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, path, "carol", gin.H{"text": "hello?"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = doJSON(t, router, http.MethodGet, path, "carol", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodGet, path, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[MessagesResponse](t, w)
	require.Len(t, list.Messages, 1)
	assert.Equal(t, "User bob", list.Messages[0].SenderName)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/groups/"+group.ID, "bob", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "not_owner", decode[ErrorResponse](t, w).Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/groups/"+group.ID+"/leave", "bob", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, router, http.MethodPost, "/api/v1/groups/"+group.ID+"/leave", "alice", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/groups", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]models.GroupChat](t, w))

	w = doJSON(t, router, http.MethodPost, "/api/v1/chats/bob/messages", "alice", gin.H{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(t, router, http.MethodPost, "/api/v1/chats/bob/messages", "alice", gin.H{"text": "are you ok?"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(t, router, http.MethodGet, "/api/v1/chats/alice/messages", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[MessagesResponse](t, w).Messages, 1)
}

func TestSendSOS(t *testing.T) {
	router := newTestRouter(t)
	initialize(t, router, "alice", "bob", "carol")

	w := doJSON(t, router, http.MethodPost, "/api/v1/sos", "alice", gin.H{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	befriend(t, router, "alice", "bob")
	befriend(t, router, "alice", "carol")
	for _, id := range []string{"bob", "carol"} {
		w = doJSON(t, router, http.MethodPut, "/api/v1/contacts/"+id+"/emergency", "alice", gin.H{"enabled": true})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/sos", "alice", gin.H{"location": gin.H{"lat": 35.68, "lng": 139.69}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[core.SOSReport](t, w)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 2, report.Delivered)

	w = doJSON(t, router, http.MethodGet, "/api/v1/chats/alice/messages", "carol", nil)
	msgs := decode[MessagesResponse](t, w).Messages
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "35.68")
}

func readFrame(t *testing.T, ws *websocket.Conn, match func(gin.H) bool) gin.H {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var frame gin.H
		require.NoError(t, ws.ReadJSON(&frame))
		if match(frame) {
			return frame
		}
	}
}

func frameOfType(kind liveview.EventKind) func(gin.H) bool {
	return func(f gin.H) bool { return f["type"] == string(kind) }
}

func TestLiveSocket(t *testing.T) {
	router := newTestRouter(t)
	initialize(t, router, "alice", "bob")

	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/live?access_token=tok-alice"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	profile := readFrame(t, ws, frameOfType(liveview.KindProfile))
	assert.Equal(t, "alice", profile["profile"].(map[string]interface{})["id"])

	require.NoError(t, ws.WriteJSON(gin.H{"action": "dance"}))
	errFrame := readFrame(t, ws, frameOfType(liveview.KindError))
	assert.Equal(t, "invalid_input", errFrame["code"])

	require.NoError(t, ws.WriteJSON(gin.H{"action": "open_chat", "kind": "direct", "id": "bob"}))
	readFrame(t, ws, frameOfType(liveview.KindMessages))

	w := doJSON(t, router, http.MethodPost, "/api/v1/chats/alice/messages", "bob", gin.H{"text": "ping"})
	require.Equal(t, http.StatusCreated, w.Code)

	frame := readFrame(t, ws, func(f gin.H) bool {
		msgs, ok := f["messages"].([]interface{})
		return f["type"] == string(liveview.KindMessages) && ok && len(msgs) == 1
	})
	msg := frame["messages"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "ping", msg["text"])
}

func TestEventFrameChatClosed(t *testing.T) {
	channel := core.GroupChannel("g1")
	frame := eventFrame(liveview.Event{
		Kind:    liveview.KindChatClosed,
		Channel: &channel,
		Err:     fmt.Errorf("%w: 'carol' is not a member of group 'g1'", core.ErrNotMember),
	})
	assert.Equal(t, "chat_closed", frame["type"])
	assert.Equal(t, &channel, frame["channel"])
	assert.Equal(t, "not_member", frame["code"])
}

func TestLiveSocketRequiresToken(t *testing.T) {
	router := newTestRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/live"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
