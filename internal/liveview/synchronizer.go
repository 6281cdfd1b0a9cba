package liveview

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/quakealert/internal/core"
	"github.com/example/quakealert/internal/db"
	"github.com/example/quakealert/internal/models"
)

// eventBuffer is the number of events a session queues before relays block.
const eventBuffer = 16

// Synchronizer opens live sessions. It holds no per-session state itself.
type Synchronizer struct {
	users    db.UserRepository
	requests db.FriendRequestRepository
	groups   db.GroupRepository
	messages core.MessageService
	logger   *zap.Logger
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(users db.UserRepository, requests db.FriendRequestRepository, groups db.GroupRepository, messages core.MessageService, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		users:    users,
		requests: requests,
		groups:   groups,
		messages: messages,
		logger:   logger,
	}
}

// Session is the live view of one signed-in user. It owns a subscription to
// the profile, the pending requests and the member groups, plus at most one
// chat subscription. All of them end when the session is closed or the
// context given to Start is done.
type Session struct {
	id      string
	actorID string
	sync    *Synchronizer
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	wg     sync.WaitGroup

	mu         sync.Mutex
	chat       *models.ChannelRef
	chatCancel context.CancelFunc
	chatGen    uint64
	closeOnce  sync.Once
}

// Start opens a session for actorID and begins relaying the base subscriptions.
func (s *Synchronizer) Start(ctx context.Context, actorID string) *Session {
	ctx, cancel := context.WithCancel(ctx)
	sess := &Session{
		id:      uuid.NewString(),
		actorID: actorID,
		sync:    s,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan Event, eventBuffer),
	}
	sess.logger = s.logger.With(zap.String("sessionID", sess.id), zap.String("userID", actorID))

	relay(ctx, sess, KindProfile, nil, s.users.Watch(ctx, actorID), func(items []models.User) (Event, bool) {
		ev := Event{Kind: KindProfile}
		if len(items) > 0 {
			ev.Profile = &items[0]
		}
		return ev, true
	})
	relay(ctx, sess, KindRequests, nil, s.requests.Watch(ctx, actorID), func(items []models.FriendRequest) (Event, bool) {
		return Event{Kind: KindRequests, Requests: nonNil(items)}, true
	})
	relay(ctx, sess, KindGroups, nil, s.groups.WatchForMember(ctx, actorID), func(items []models.GroupChat) (Event, bool) {
		sess.revokeMissingGroup(items)
		return Event{Kind: KindGroups, Groups: nonNil(items)}, true
	})

	liveSessions.Inc()
	sess.logger.Info("Live session started")

	// The session also ends with its parent context.
	go func() {
		<-ctx.Done()
		sess.Close()
	}()
	return sess
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Events returns the event stream. It is closed after Close.
func (s *Session) Events() <-chan Event { return s.events }

// OpenChat switches the session's chat subscription to channel. The previous
// chat subscription is cancelled before the new one starts. A group chat stays
// open only while the user is a member: every message snapshot is
// re-authorized, and leaving or deletion closes it with a KindChatClosed event.
func (s *Session) OpenChat(ctx context.Context, channel models.ChannelRef) error {
	if err := s.sync.messages.AuthorizeChannel(ctx, s.actorID, channel); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return context.Canceled
	}
	s.closeChatLocked()

	chatCtx, cancel := context.WithCancel(s.ctx)
	ref := channel
	s.chatGen++
	gen := s.chatGen
	s.chat = &ref
	s.chatCancel = cancel
	relay(chatCtx, s, KindMessages, &ref, s.sync.messages.Subscribe(chatCtx, channel), func(items []models.Message) (Event, bool) {
		if ref.Kind == models.ChannelGroup {
			if err := s.sync.messages.AuthorizeChannel(chatCtx, s.actorID, ref); err != nil {
				if chatCtx.Err() != nil {
					return Event{}, false
				}
				if revoked(err) {
					s.revokeChat(gen, err)
					return Event{}, false
				}
				s.logger.Warn("Chat membership check failed", zap.Stringer("channel", ref), zap.Error(err))
				return Event{Kind: KindError, Channel: &ref, Err: err}, true
			}
		}
		return Event{Kind: KindMessages, Channel: &ref, Messages: nonNil(items)}, true
	})
	s.logger.Debug("Chat opened", zap.Stringer("channel", channel))
	return nil
}

// revoked reports whether err means the user no longer has access to a chat.
func revoked(err error) bool {
	return errors.Is(err, core.ErrNotMember) || errors.Is(err, core.ErrNotFound)
}

// revokeMissingGroup closes the open group chat when it is absent from the
// member's groups. The snapshot may predate a join, so the store has the
// final say.
func (s *Session) revokeMissingGroup(groups []models.GroupChat) {
	s.mu.Lock()
	if s.chat == nil || s.chat.Kind != models.ChannelGroup {
		s.mu.Unlock()
		return
	}
	ref, gen := *s.chat, s.chatGen
	s.mu.Unlock()

	for _, g := range groups {
		if g.ID == ref.ID {
			return
		}
	}
	err := s.sync.messages.AuthorizeChannel(s.ctx, s.actorID, ref)
	if err != nil && revoked(err) {
		s.revokeChat(gen, err)
	}
}

// revokeChat closes the chat opened as generation gen, if it is still open,
// and tells the client why.
func (s *Session) revokeChat(gen uint64, reason error) {
	s.mu.Lock()
	if s.chat == nil || s.chatGen != gen {
		s.mu.Unlock()
		return
	}
	ref := *s.chat
	s.closeChatLocked()
	s.mu.Unlock()

	s.logger.Info("Chat revoked", zap.Stringer("channel", ref), zap.Error(reason))
	s.send(Event{Kind: KindChatClosed, Channel: &ref, Err: reason})
}

// send queues ev unless the session is closing.
func (s *Session) send(ev Event) {
	select {
	case <-s.ctx.Done():
	case s.events <- ev:
	}
}

// CloseChat cancels the chat subscription, if any.
func (s *Session) CloseChat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeChatLocked()
}

// OpenChannel returns the currently open chat, or nil.
func (s *Session) OpenChannel() *models.ChannelRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chat == nil {
		return nil
	}
	ref := *s.chat
	return &ref
}

func (s *Session) closeChatLocked() {
	if s.chatCancel != nil {
		s.chatCancel()
		s.logger.Debug("Chat closed", zap.Stringer("channel", *s.chat))
	}
	s.chat = nil
	s.chatCancel = nil
}

// Close ends every subscription of the session and closes the event stream.
// It never writes to the store and is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		s.closeChatLocked()
		s.mu.Unlock()
		s.wg.Wait()
		close(s.events)
		liveSessions.Dec()
		s.logger.Info("Live session closed")
	})
}

// relay forwards snapshots from sub as events until ctx is done or the
// subscription ends. toEvent may drop a snapshot by returning false.
func relay[T any](ctx context.Context, s *Session, kind EventKind, channel *models.ChannelRef, sub *db.Subscription[T], toEvent func([]T) (Event, bool)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer sub.Cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-sub.C():
				if !ok {
					return
				}
				var ev Event
				if snap.Err != nil {
					s.logger.Warn("Live subscription failed", zap.String("kind", string(kind)), zap.Error(snap.Err))
					ev = Event{Kind: KindError, Channel: channel, Err: snap.Err}
				} else if ev, ok = toEvent(snap.Items); !ok {
					continue
				}
				select {
				case <-ctx.Done():
					return
				case s.events <- ev:
				}
			}
		}
	}()
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
