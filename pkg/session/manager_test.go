package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginRejectsWrongKey(t *testing.T) {
	m := NewManager("secret")

	_, err := m.Login("nope")
	assert.ErrorIs(t, err, ErrInvalidKey)

	s, err := m.Login("secret")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 1, m.Active())
}

func TestSessionSlidingExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager("secret", WithTTL(180*time.Second), WithClock(func() time.Time { return now }))

	s, err := m.Login("secret")
	require.NoError(t, err)

	now = now.Add(170 * time.Second)
	touched, err := m.Touch(s.ID)
	require.NoError(t, err)
	assert.Equal(t, now.Add(180*time.Second), touched.ExpiresAt)

	now = now.Add(179 * time.Second)
	_, err = m.Touch(s.ID)
	require.NoError(t, err)

	now = now.Add(181 * time.Second)
	_, err = m.Touch(s.ID)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, 0, m.Active())
}

func TestDisabledManagerUsesDefaultSession(t *testing.T) {
	m := NewManager("")
	assert.False(t, m.Enabled())

	s, err := m.Touch("anything")
	require.NoError(t, err)
	assert.Equal(t, DefaultID, s.ID)
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	_, err := GetID(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, DefaultID, IDOrDefault(ctx))

	ctx = WithID(ctx, "abc")
	ctx = WithUseCase(ctx, "judge")
	id, err := GetID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	uc, ok := GetUseCase(ctx)
	assert.True(t, ok)
	assert.Equal(t, "judge", uc)
}
