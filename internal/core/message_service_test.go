package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/quakealert/internal/db"
	"github.com/example/quakealert/internal/models"
)

func TestResolveDirectChannel(t *testing.T) {
	assert.Equal(t, "alice_bob", ResolveDirectChannel("alice", "bob"))
	assert.Equal(t, "alice_bob", ResolveDirectChannel("bob", "alice"))
	assert.Equal(t, DirectChannel("x", "y"), DirectChannel("y", "x"))
	assert.Equal(t, models.ChannelDirect, DirectChannel("x", "y").Kind)
}

func TestSendDirectMessage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, nil)
	env.seed(t, "alice", "bob")

	_, err := env.chat.SendDirectMessage(ctx, "alice", "bob", " \n\t")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.chat.SendDirectMessage(ctx, "alice", "alice", "hi")
	assert.ErrorIs(t, err, ErrSelfReference)
	_, err = env.chat.SendDirectMessage(ctx, "alice", "nobody", "hi")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.chat.SendDirectMessage(ctx, "alice", "b_ob", "hi")
	assert.ErrorIs(t, err, ErrInvalidInput)

	x, err := env.chat.SendDirectMessage(ctx, "alice", "bob", "X")
	require.NoError(t, err)
	y, err := env.chat.SendDirectMessage(ctx, "bob", "alice", "Y")
	require.NoError(t, err)
	assert.True(t, y.Timestamp.After(x.Timestamp))

	for _, viewer := range []string{"alice", "bob"} {
		msgs, err := env.chat.ListMessages(ctx, viewer, DirectChannel("alice", "bob"))
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "X", msgs[0].Text)
		assert.Equal(t, "Y", msgs[1].Text)
		assert.Equal(t, "alice", msgs[0].SenderID)
		assert.Empty(t, msgs[0].SenderName)
	}
}

func TestSendGroupMessageSnapshotsSenderName(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, nil)
	env.seed(t, "a", "b", "c")
	group, err := env.groups.CreateGroup(ctx, "a", "Drill", []string{"b"})
	require.NoError(t, err)

	_, err = env.chat.SendGroupMessage(ctx, "c", group.ID, "hi")
	assert.ErrorIs(t, err, ErrNotMember)
	_, err = env.chat.SendGroupMessage(ctx, "a", "missing", "hi")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.chat.SendGroupMessage(ctx, "a", group.ID, "")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = env.chat.SendGroupMessage(ctx, "a", group.ID, "before rename")
	require.NoError(t, err)
	_, _, err = env.users.GetOrCreate(ctx, "a", email("a"), "Captain A")
	require.NoError(t, err)
	_, err = env.chat.SendGroupMessage(ctx, "a", group.ID, "after rename")
	require.NoError(t, err)

	msgs, err := env.chat.ListMessages(ctx, "b", GroupChannel(group.ID))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "User a", msgs[0].SenderName)
	assert.Equal(t, "Captain A", msgs[1].SenderName)

	_, err = env.chat.ListMessages(ctx, "c", GroupChannel(group.ID))
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestAuthorizeChannel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, nil)

	assert.NoError(t, env.chat.AuthorizeChannel(ctx, "bob", DirectChannel("alice", "bob")))
	assert.NoError(t, env.chat.AuthorizeChannel(ctx, "alice", DirectChannel("alice", "bob")))
	assert.ErrorIs(t, env.chat.AuthorizeChannel(ctx, "carol", DirectChannel("alice", "bob")), ErrNotMember)
	assert.ErrorIs(t, env.chat.AuthorizeChannel(ctx, "bo", DirectChannel("alice", "bob")), ErrNotMember)
	assert.ErrorIs(t, env.chat.AuthorizeChannel(ctx, "alice", models.ChannelRef{Kind: "broadcast", ID: "x"}), ErrInvalidInput)

	// Ids with the separator are ambiguous: "a_b_c" is both (a, b_c) and (a_b, c).
	ambiguous := models.ChannelRef{Kind: models.ChannelDirect, ID: "a_b_c"}
	for _, actor := range []string{"a", "a_b", "c", "b_c"} {
		assert.ErrorIs(t, env.chat.AuthorizeChannel(ctx, actor, ambiguous), ErrInvalidInput, actor)
	}
	// Non-canonical order is not a channel either.
	assert.ErrorIs(t, env.chat.AuthorizeChannel(ctx, "alice", models.ChannelRef{Kind: models.ChannelDirect, ID: "bob_alice"}), ErrInvalidInput)
}

func TestSubscribeDeliversOrderedSnapshots(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, nil)
	env.seed(t, "alice", "bob")
	channel := DirectChannel("alice", "bob")

	sub := env.chat.Subscribe(ctx, channel)
	defer sub.Cancel()
	next := func() db.Snapshot[models.Message] {
		select {
		case snap := <-sub.C():
			return snap
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for snapshot")
		}
		return db.Snapshot[models.Message]{}
	}
	assert.Empty(t, next().Items)

	_, err := env.chat.SendDirectMessage(ctx, "alice", "bob", "X")
	require.NoError(t, err)
	assert.Len(t, next().Items, 1)
	_, err = env.chat.SendDirectMessage(ctx, "bob", "alice", "Y")
	require.NoError(t, err)
	snap := next()
	require.Len(t, snap.Items, 2)
	assert.Equal(t, "X", snap.Items[0].Text)
	assert.Equal(t, "Y", snap.Items[1].Text)

	// Re-subscribing starts from the complete current state.
	again := env.chat.Subscribe(ctx, channel)
	defer again.Cancel()
	select {
	case snap := <-again.C():
		require.Len(t, snap.Items, 2)
		assert.Equal(t, "X", snap.Items[0].Text)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestSendMessageStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, func(r db.MessageRepository) db.MessageRepository {
		return &faultyMessages{MessageRepository: r, failCreate: map[string]bool{ResolveDirectChannel("alice", "bob"): true}}
	}, nil)
	env.seed(t, "alice", "bob")

	_, err := env.chat.SendDirectMessage(ctx, "alice", "bob", "hi")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
