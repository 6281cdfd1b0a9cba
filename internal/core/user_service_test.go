package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, nil)

	user, created, err := env.users.GetOrCreate(ctx, "uid-1", " Ana@Example.COM ", "Ana")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, "Ana", user.DisplayName)
	assert.False(t, user.CreatedAt.IsZero())

	user, created, err = env.users.GetOrCreate(ctx, "uid-1", "ana@example.com", "Ana")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Ana", user.DisplayName)

	user, created, err = env.users.GetOrCreate(ctx, "uid-1", "ana@example.com", "Ana B")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Ana B", user.DisplayName)
	assert.Equal(t, "Ana B", env.user(t, "uid-1").DisplayName)

	user, _, err = env.users.GetOrCreate(ctx, "uid-2", "noname@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "noname@example.com", user.DisplayName)

	_, _, err = env.users.GetOrCreate(ctx, "", "x@example.com", "X")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.users.GetByID(ctx, "uid-404")
	assert.ErrorIs(t, err, ErrNotFound)
}
