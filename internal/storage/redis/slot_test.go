package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/quickeats/internal/domain/session"
)

type mockClient struct {
	data    map[string]string
	ttls    map[string]time.Duration
	failErr error
}

func newMockClient() *mockClient {
	return &mockClient{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *mockClient) Get(_ context.Context, key string) *redis.StringCmd {
	if m.failErr != nil {
		return redis.NewStringResult("", m.failErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockClient) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	if m.failErr != nil {
		return redis.NewStatusResult("", m.failErr)
	}
	m.data[key] = string(value.([]byte))
	m.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func TestSlot_RoundTrip(t *testing.T) {
	client := newMockClient()
	s := New(client, time.Hour).Slot("abc")

	_, err := s.Load(session.KeyCart)
	require.ErrorIs(t, err, session.ErrNoValue)

	require.NoError(t, s.Save(session.KeyCart, []byte(`{"entries":[]}`)))
	got, err := s.Load(session.KeyCart)
	require.NoError(t, err)
	assert.Equal(t, `{"entries":[]}`, string(got))

	assert.Contains(t, client.data, "qe:session:abc:cart")
	assert.Equal(t, time.Hour, client.ttls["qe:session:abc:cart"])
}

func TestSlot_SessionsIsolated(t *testing.T) {
	store := New(newMockClient(), 0)

	require.NoError(t, store.Slot("a").Save("k", []byte("1")))
	_, err := store.Slot("b").Load("k")

	require.ErrorIs(t, err, session.ErrNoValue)
}

func TestSlot_Errors(t *testing.T) {
	client := newMockClient()
	client.failErr = errors.New("connection refused")
	s := New(client, 0).Slot("a")

	_, err := s.Load("k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, session.ErrNoValue)
	require.Error(t, s.Save("k", []byte("v")))
}

func TestSlot_BacksSession(t *testing.T) {
	store := New(newMockClient(), time.Hour)

	first := session.New(store.Slot("s1")).ClientSessionID()
	again := session.New(store.Slot("s1")).ClientSessionID()

	assert.Equal(t, first, again)
}
