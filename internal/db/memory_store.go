package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/quakealert/internal/models"
)

// memoryStore is an in-process Store with the same observable semantics as the
// Firestore store: server-assigned increasing timestamps, atomic batches,
// serialized group mutations and full-snapshot live queries. It backs local
// development (STORE_DRIVER=memory) and the service tests.
type memoryStore struct {
	mu     sync.Mutex
	closed bool
	last   time.Time

	users    map[string]models.User
	requests map[string]map[string]models.FriendRequest
	groups   map[string]models.GroupChat
	messages map[models.ChannelRef]map[string]models.Message
	audit    []models.AuditLog

	watchers map[string][]memoryWatcher
}

// memoryWatcher is one live query. push reports false once the subscription
// is gone; cancel ends it.
type memoryWatcher struct {
	push   func() bool
	cancel func()
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{
		users:    make(map[string]models.User),
		requests: make(map[string]map[string]models.FriendRequest),
		groups:   make(map[string]models.GroupChat),
		messages: make(map[models.ChannelRef]map[string]models.Message),
		watchers: make(map[string][]memoryWatcher),
	}
}

func (s *memoryStore) Users() UserRepository                   { return memoryUsers{s} }
func (s *memoryStore) FriendRequests() FriendRequestRepository { return memoryRequests{s} }
func (s *memoryStore) Groups() GroupRepository                 { return memoryGroups{s} }
func (s *memoryStore) Messages() MessageRepository             { return memoryMessages{s} }
func (s *memoryStore) Audit() AuditRepository                  { return memoryAudit{s} }
func (s *memoryStore) NewGraphBatch() GraphBatch               { return &memoryGraphBatch{store: s} }

// Close makes every later call fail with ErrUnavailable and ends all live queries.
func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, list := range s.watchers {
		for _, w := range list {
			w.cancel()
		}
	}
	s.watchers = make(map[string][]memoryWatcher)
	return nil
}

// lock acquires the store mutex or reports that the store is closed.
func (s *memoryStore) lock(what string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w: store closed", what, ErrUnavailable)
	}
	return nil
}

// now returns a strictly increasing timestamp. Callers hold s.mu.
func (s *memoryStore) now() time.Time {
	t := time.Now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

// watch registers a live query on topic. snapshot is evaluated under s.mu on
// registration and after every change to the topic.
func watch[T any](ctx context.Context, s *memoryStore, topic string, snapshot func() []T) *Subscription[T] {
	sub, _ := newSubscription[T](ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sub.push(Snapshot[T]{Err: fmt.Errorf("watch %s: %w: store closed", topic, ErrUnavailable)})
		sub.Cancel()
		return sub
	}
	w := memoryWatcher{
		push:   func() bool { return sub.push(Snapshot[T]{Items: snapshot()}) },
		cancel: sub.Cancel,
	}
	w.push()
	s.watchers[topic] = append(s.watchers[topic], w)
	return sub
}

// notify pushes fresh snapshots to the watchers of topic and forgets the ones
// that have been cancelled. Callers hold s.mu.
func (s *memoryStore) notify(topic string) {
	live := s.watchers[topic][:0]
	for _, w := range s.watchers[topic] {
		if w.push() {
			live = append(live, w)
		}
	}
	if len(live) == 0 {
		delete(s.watchers, topic)
		return
	}
	s.watchers[topic] = live
}

func userTopic(userID string) string           { return "user/" + userID }
func requestsTopic(recipientID string) string  { return "requests/" + recipientID }
func groupsTopic(userID string) string         { return "groups/" + userID }
func messagesTopic(c models.ChannelRef) string { return "messages/" + c.String() }

func cloneUser(u models.User) models.User {
	u.Contacts = append([]models.ContactRef(nil), u.Contacts...)
	u.EmergencyContactIDs = append([]string(nil), u.EmergencyContactIDs...)
	return u
}

func cloneGroup(g models.GroupChat) models.GroupChat {
	g.Members = append([]string(nil), g.Members...)
	return g
}

// memoryUsers implements UserRepository.
type memoryUsers struct{ s *memoryStore }

func (r memoryUsers) Create(_ context.Context, user *models.User) error {
	if user.ID == "" {
		return fmt.Errorf("user ID cannot be empty for Create operation")
	}
	if err := r.s.lock("create user"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; ok {
		return fmt.Errorf("user '%s': %w", user.ID, ErrAlreadyExists)
	}
	stored := cloneUser(*user)
	stored.CreatedAt = r.s.now()
	stored.UpdatedAt = stored.CreatedAt
	r.s.users[user.ID] = stored
	r.s.notify(userTopic(user.ID))
	return nil
}

func (r memoryUsers) GetByID(_ context.Context, userID string) (*models.User, error) {
	if err := r.s.lock("get user"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user '%s': %w", userID, ErrNotFound)
	}
	u = cloneUser(u)
	return &u, nil
}

func (r memoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if err := r.s.lock("get user by email"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	ids := make([]string, 0, len(r.s.users))
	for id, u := range r.s.users {
		if u.Email == email {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("user with email '%s': %w", email, ErrNotFound)
	}
	sort.Strings(ids)
	u := cloneUser(r.s.users[ids[0]])
	return &u, nil
}

func (r memoryUsers) update(userID, what string, fn func(u *models.User)) error {
	if err := r.s.lock(what); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return fmt.Errorf("%s '%s': %w", what, userID, ErrNotFound)
	}
	u = cloneUser(u)
	fn(&u)
	u.UpdatedAt = r.s.now()
	r.s.users[userID] = u
	r.s.notify(userTopic(userID))
	return nil
}

func (r memoryUsers) UpdateProfile(_ context.Context, userID, email, displayName string) error {
	return r.update(userID, "update profile of user", func(u *models.User) {
		u.Email = email
		u.DisplayName = displayName
	})
}

func (r memoryUsers) SetEmergencyContact(_ context.Context, userID, contactID string, enabled bool) error {
	return r.update(userID, "set emergency contact of user", func(u *models.User) {
		if enabled {
			u.EmergencyContactIDs = arrayUnion(u.EmergencyContactIDs, contactID)
		} else {
			u.EmergencyContactIDs = arrayRemove(u.EmergencyContactIDs, contactID)
		}
	})
}

func (r memoryUsers) Watch(ctx context.Context, userID string) *Subscription[models.User] {
	return watch(ctx, r.s, userTopic(userID), func() []models.User {
		u, ok := r.s.users[userID]
		if !ok {
			return nil
		}
		return []models.User{cloneUser(u)}
	})
}

// memoryRequests implements FriendRequestRepository.
type memoryRequests struct{ s *memoryStore }

func (r memoryRequests) sorted(recipientID string) []models.FriendRequest {
	out := make([]models.FriendRequest, 0, len(r.s.requests[recipientID]))
	for _, req := range r.s.requests[recipientID] {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r memoryRequests) Create(_ context.Context, recipientID string, req *models.FriendRequest) (string, error) {
	if err := r.s.lock("create friend request"); err != nil {
		return "", err
	}
	defer r.s.mu.Unlock()
	if req.FromID == "" {
		return "", fmt.Errorf("create friend request for '%s': %w: empty sender", recipientID, ErrUnavailable)
	}
	if _, ok := r.s.requests[recipientID][req.FromID]; ok {
		return "", fmt.Errorf("friend request from '%s' to '%s': %w", req.FromID, recipientID, ErrAlreadyExists)
	}
	stored := *req
	stored.ID = req.FromID
	stored.CreatedAt = r.s.now()
	if r.s.requests[recipientID] == nil {
		r.s.requests[recipientID] = make(map[string]models.FriendRequest)
	}
	r.s.requests[recipientID][stored.ID] = stored
	req.ID = stored.ID
	req.CreatedAt = stored.CreatedAt
	r.s.notify(requestsTopic(recipientID))
	return stored.ID, nil
}

func (r memoryRequests) GetByID(_ context.Context, recipientID, requestID string) (*models.FriendRequest, error) {
	if err := r.s.lock("get friend request"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[recipientID][requestID]
	if !ok {
		return nil, fmt.Errorf("friend request '%s' of '%s': %w", requestID, recipientID, ErrNotFound)
	}
	return &req, nil
}

func (r memoryRequests) FindFrom(_ context.Context, recipientID, senderID string) (*models.FriendRequest, error) {
	if err := r.s.lock("find friend request"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[recipientID][senderID]
	if !ok {
		return nil, fmt.Errorf("request from '%s' to '%s': %w", senderID, recipientID, ErrNotFound)
	}
	return &req, nil
}

func (r memoryRequests) ListPending(_ context.Context, recipientID string) ([]models.FriendRequest, error) {
	if err := r.s.lock("list friend requests"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	return r.sorted(recipientID), nil
}

func (r memoryRequests) Delete(_ context.Context, recipientID, requestID string) error {
	if err := r.s.lock("delete friend request"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	if _, ok := r.s.requests[recipientID][requestID]; !ok {
		return fmt.Errorf("friend request '%s': %w", requestID, ErrNotFound)
	}
	delete(r.s.requests[recipientID], requestID)
	r.s.notify(requestsTopic(recipientID))
	return nil
}

func (r memoryRequests) Watch(ctx context.Context, recipientID string) *Subscription[models.FriendRequest] {
	return watch(ctx, r.s, requestsTopic(recipientID), func() []models.FriendRequest {
		return r.sorted(recipientID)
	})
}

// memoryGroups implements GroupRepository.
type memoryGroups struct{ s *memoryStore }

func (r memoryGroups) notifyMembers(members ...[]string) {
	seen := make(map[string]bool)
	for _, list := range members {
		for _, m := range list {
			if !seen[m] {
				seen[m] = true
				r.s.notify(groupsTopic(m))
			}
		}
	}
}

func (r memoryGroups) forMember(userID string) []models.GroupChat {
	var out []models.GroupChat
	for _, g := range r.s.groups {
		if g.HasMember(userID) {
			out = append(out, cloneGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memoryGroups) Create(_ context.Context, group *models.GroupChat) (string, error) {
	if err := r.s.lock("create group"); err != nil {
		return "", err
	}
	defer r.s.mu.Unlock()
	stored := cloneGroup(*group)
	stored.ID = uuid.NewString()
	stored.CreatedAt = r.s.now()
	r.s.groups[stored.ID] = stored
	group.ID = stored.ID
	group.CreatedAt = stored.CreatedAt
	r.notifyMembers(stored.Members)
	return stored.ID, nil
}

func (r memoryGroups) GetByID(_ context.Context, groupID string) (*models.GroupChat, error) {
	if err := r.s.lock("get group"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	g, ok := r.s.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("group '%s': %w", groupID, ErrNotFound)
	}
	g = cloneGroup(g)
	return &g, nil
}

func (r memoryGroups) Mutate(_ context.Context, groupID string, fn GroupMutation) (*models.GroupChat, error) {
	if err := r.s.lock("mutate group"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	before, ok := r.s.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("group '%s': %w", groupID, ErrNotFound)
	}
	after := cloneGroup(before)
	if err := fn(&after); err != nil {
		return nil, err
	}
	after.ID = groupID
	after.CreatedAt = before.CreatedAt
	r.s.groups[groupID] = after
	r.notifyMembers(before.Members, after.Members)
	result := cloneGroup(after)
	return &result, nil
}

func (r memoryGroups) Delete(_ context.Context, groupID string) error {
	if err := r.s.lock("delete group"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	g, ok := r.s.groups[groupID]
	if !ok {
		return nil
	}
	delete(r.s.groups, groupID)
	r.notifyMembers(g.Members)
	return nil
}

func (r memoryGroups) ListForMember(_ context.Context, userID string) ([]models.GroupChat, error) {
	if err := r.s.lock("list groups"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	return r.forMember(userID), nil
}

func (r memoryGroups) WatchForMember(ctx context.Context, userID string) *Subscription[models.GroupChat] {
	return watch(ctx, r.s, groupsTopic(userID), func() []models.GroupChat {
		return r.forMember(userID)
	})
}

// memoryMessages implements MessageRepository.
type memoryMessages struct{ s *memoryStore }

func (r memoryMessages) ordered(channel models.ChannelRef) []models.Message {
	out := make([]models.Message, 0, len(r.s.messages[channel]))
	for _, m := range r.s.messages[channel] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r memoryMessages) Create(_ context.Context, channel models.ChannelRef, msg *models.Message) (string, error) {
	if err := r.s.lock("create message"); err != nil {
		return "", err
	}
	defer r.s.mu.Unlock()
	stored := *msg
	stored.ID = uuid.NewString()
	stored.Timestamp = r.s.now()
	if r.s.messages[channel] == nil {
		r.s.messages[channel] = make(map[string]models.Message)
	}
	r.s.messages[channel][stored.ID] = stored
	msg.ID = stored.ID
	msg.Timestamp = stored.Timestamp
	r.s.notify(messagesTopic(channel))
	return stored.ID, nil
}

func (r memoryMessages) List(_ context.Context, channel models.ChannelRef) ([]models.Message, error) {
	if err := r.s.lock("list messages"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	return r.ordered(channel), nil
}

func (r memoryMessages) DeleteAll(_ context.Context, channel models.ChannelRef) error {
	if err := r.s.lock("delete messages"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	if _, ok := r.s.messages[channel]; !ok {
		return nil
	}
	delete(r.s.messages, channel)
	r.s.notify(messagesTopic(channel))
	return nil
}

func (r memoryMessages) Watch(ctx context.Context, channel models.ChannelRef) *Subscription[models.Message] {
	return watch(ctx, r.s, messagesTopic(channel), func() []models.Message {
		return r.ordered(channel)
	})
}

// memoryAudit implements AuditRepository.
type memoryAudit struct{ s *memoryStore }

func (r memoryAudit) Create(_ context.Context, logEntry models.AuditLog) error {
	if err := r.s.lock("create audit log"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	logEntry.ID = uuid.NewString()
	logEntry.Timestamp = r.s.now()
	r.s.audit = append(r.s.audit, logEntry)
	return nil
}

func (r memoryAudit) ListByUser(_ context.Context, userID string) ([]models.AuditLog, error) {
	if err := r.s.lock("list audit logs"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var out []models.AuditLog
	for _, e := range r.s.audit {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// memoryGraphBatch validates every write before applying any of them.
type memoryGraphBatch struct {
	store    *memoryStore
	ops      []func(users map[string]models.User)
	owners   []string
	requests [][2]string
	discards [][2]string
}

func (b *memoryGraphBatch) touch(ownerID string, op func(u *models.User)) {
	b.owners = append(b.owners, ownerID)
	b.ops = append(b.ops, func(users map[string]models.User) {
		u := users[ownerID]
		op(&u)
		users[ownerID] = u
	})
}

func (b *memoryGraphBatch) AddContact(ownerID string, ref models.ContactRef) {
	b.touch(ownerID, func(u *models.User) { u.Contacts = arrayUnion(u.Contacts, ref) })
}

func (b *memoryGraphBatch) RemoveContact(ownerID string, ref models.ContactRef) {
	b.touch(ownerID, func(u *models.User) { u.Contacts = arrayRemove(u.Contacts, ref) })
}

func (b *memoryGraphBatch) RemoveEmergencyContact(ownerID, contactID string) {
	b.touch(ownerID, func(u *models.User) { u.EmergencyContactIDs = arrayRemove(u.EmergencyContactIDs, contactID) })
}

func (b *memoryGraphBatch) DeleteFriendRequest(recipientID, requestID string) {
	b.requests = append(b.requests, [2]string{recipientID, requestID})
}

func (b *memoryGraphBatch) DiscardFriendRequest(recipientID, requestID string) {
	b.discards = append(b.discards, [2]string{recipientID, requestID})
}

func (b *memoryGraphBatch) Commit(_ context.Context) error {
	s := b.store
	if err := s.lock("commit contact batch"); err != nil {
		return err
	}
	defer s.mu.Unlock()

	for _, id := range b.owners {
		if _, ok := s.users[id]; !ok {
			return fmt.Errorf("commit contact batch: user '%s': %w", id, ErrNotFound)
		}
	}
	for _, r := range b.requests {
		if _, ok := s.requests[r[0]][r[1]]; !ok {
			return fmt.Errorf("commit contact batch: friend request '%s': %w", r[1], ErrNotFound)
		}
	}

	staged := make(map[string]models.User, len(b.owners))
	for _, id := range b.owners {
		if _, ok := staged[id]; !ok {
			staged[id] = cloneUser(s.users[id])
		}
	}
	for _, op := range b.ops {
		op(staged)
	}
	now := s.now()
	for id, u := range staged {
		u.UpdatedAt = now
		s.users[id] = u
		s.notify(userTopic(id))
	}
	for _, r := range b.requests {
		delete(s.requests[r[0]], r[1])
		s.notify(requestsTopic(r[0]))
	}
	for _, r := range b.discards {
		if _, ok := s.requests[r[0]][r[1]]; ok {
			delete(s.requests[r[0]], r[1])
			s.notify(requestsTopic(r[0]))
		}
	}
	return nil
}

// arrayUnion appends each value not already present, like Firestore's ArrayUnion.
func arrayUnion[T comparable](list []T, values ...T) []T {
	for _, v := range values {
		found := false
		for _, existing := range list {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}

// arrayRemove drops every element equal to one of values, like Firestore's ArrayRemove.
func arrayRemove[T comparable](list []T, values ...T) []T {
	out := list[:0]
	for _, existing := range list {
		keep := true
		for _, v := range values {
			if existing == v {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, existing)
		}
	}
	return out
}
