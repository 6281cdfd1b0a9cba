package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/quakealert/internal/db"
	"github.com/example/quakealert/internal/models"
	"github.com/example/quakealert/pkg/cache"
)

var errInjected = errors.New("injected store failure")

type testEnv struct {
	store    db.Store
	messages db.MessageRepository
	audit    AuditService
	queue    *fakeQueue

	users  UserService
	social SocialService
	groups GroupService
	chat   MessageService
	sos    SOSService
}

// newTestEnv wires every service over one in-memory store. wrap, when set,
// decorates the message repository the services see.
func newTestEnv(t *testing.T, wrap func(db.MessageRepository) db.MessageRepository, directory cache.Cache) *testEnv {
	t.Helper()
	store := db.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	messages := store.Messages()
	if wrap != nil {
		messages = wrap(messages)
	}
	logger := zap.NewNop()
	env := &testEnv{
		store:    store,
		messages: messages,
		audit:    NewAuditService(store.Audit()),
		queue:    &fakeQueue{},
	}
	env.users = NewUserService(store.Users(), logger)
	env.social = NewSocialService(store.Users(), store.FriendRequests(), store, env.audit, directory, time.Minute, logger)
	env.groups = NewGroupService(store.Users(), store.Groups(), messages, env.audit, logger)
	env.chat = NewMessageService(store.Users(), store.Groups(), messages, logger)
	env.sos = NewSOSService(store.Users(), messages, env.audit, env.queue, "sos.alerts", 4, logger)
	return env
}

func email(id string) string { return id + "@example.com" }

func (e *testEnv) seed(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, created, err := e.users.GetOrCreate(context.Background(), id, email(id), "User "+id)
		require.NoError(t, err)
		require.True(t, created)
	}
}

func (e *testEnv) user(t *testing.T, id string) *models.User {
	t.Helper()
	u, err := e.users.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

// befriend runs the full request/accept flow between a and b.
func (e *testEnv) befriend(t *testing.T, a, b string) {
	t.Helper()
	ctx := context.Background()
	req, err := e.social.SendFriendRequest(ctx, a, email(b))
	require.NoError(t, err)
	require.NoError(t, e.social.AcceptFriendRequest(ctx, b, req.ID))
}

// requireMutual checks the symmetry invariant for a and b.
func (e *testEnv) requireMutual(t *testing.T, a, b string, connected bool) {
	t.Helper()
	ua, ub := e.user(t, a), e.user(t, b)
	require.Equal(t, connected, ua.HasContact(b), "%s has %s", a, b)
	require.Equal(t, connected, ub.HasContact(a), "%s has %s", b, a)
}

func (e *testEnv) auditActions(t *testing.T, userID string) []string {
	t.Helper()
	entries, err := e.store.Audit().ListByUser(context.Background(), userID)
	require.NoError(t, err)
	var actions []string
	for _, entry := range entries {
		actions = append(actions, entry.Action)
	}
	return actions
}

// faultyMessages fails writes to the listed channels and, optionally, DeleteAll.
type faultyMessages struct {
	db.MessageRepository
	failCreate    map[string]bool
	failDeleteAll bool
}

func (f *faultyMessages) Create(ctx context.Context, channel models.ChannelRef, msg *models.Message) (string, error) {
	if f.failCreate[channel.ID] {
		return "", errInjected
	}
	return f.MessageRepository.Create(ctx, channel, msg)
}

func (f *faultyMessages) DeleteAll(ctx context.Context, channel models.ChannelRef) error {
	if f.failDeleteAll {
		return errInjected
	}
	return f.MessageRepository.DeleteAll(ctx, channel)
}

type fakeQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
	err       error
}

func (q *fakeQueue) Publish(queueName string, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	if q.published == nil {
		q.published = make(map[string][][]byte)
	}
	q.published[queueName] = append(q.published[queueName], body)
	return nil
}

func (q *fakeQueue) Close() error { return nil }
