package apikey

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-wheel/mcp-http-security/internal/clock"
)

const testNow int64 = 1_700_000_000

var keyIDPattern = regexp.MustCompile(`^[0-9a-f]{12}$`)

func newTestManager(t *testing.T, opts ...ManagerOption) (*Manager, *MemoryStore, *clock.Manual) {
	t.Helper()

	store := NewMemoryStore(nil)
	clk := clock.NewManualUnix(testNow)
	opts = append([]ManagerOption{WithClock(clk)}, opts...)

	m, err := NewManager(store, &Config{Pepper: "test-pepper"}, opts...)
	require.NoError(t, err)
	return m, store, clk
}

// failingStore fails every operation.
type failingStore struct{ err error }

func (s failingStore) GetAll(context.Context) (map[string]*Record, error) { return nil, s.err }
func (s failingStore) SetAll(context.Context, map[string]*Record) error   { return s.err }
func (s failingStore) Get(context.Context, string) (*Record, error)       { return nil, s.err }
func (s failingStore) Set(context.Context, string, *Record) error         { return s.err }
func (s failingStore) Delete(context.Context, string) (bool, error)       { return false, s.err }

func TestNewManager(t *testing.T) {
	t.Parallel()

	t.Run("nil store", func(t *testing.T) {
		t.Parallel()
		_, err := NewManager(nil, nil)
		assert.Error(t, err)
	})

	t.Run("nil config uses defaults", func(t *testing.T) {
		t.Parallel()
		m, err := NewManager(NewMemoryStore(nil), nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultPrefix, m.Prefix())
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()
		_, err := NewManager(NewMemoryStore(nil), &Config{HashAlgorithm: "md5"})
		assert.Error(t, err)
	})
}

func TestManager_CreateKey(t *testing.T) {
	t.Parallel()

	t.Run("default label and token shape", func(t *testing.T) {
		t.Parallel()
		m, store, _ := newTestManager(t)

		issued, err := m.CreateKey(context.Background(), "", nil, 0)
		require.NoError(t, err)

		assert.True(t, keyIDPattern.MatchString(issued.KeyID), issued.KeyID)
		assert.True(t, strings.HasPrefix(issued.Token, "mcp."+issued.KeyID+"."))
		assert.Len(t, strings.Split(issued.Token, "."), 3)

		record, err := store.Get(context.Background(), issued.KeyID)
		require.NoError(t, err)
		assert.Equal(t, DefaultLabel, record.Label)
		assert.Empty(t, record.Scopes)
		assert.Equal(t, testNow, record.Created)
		assert.Nil(t, record.Expires)
		assert.Nil(t, record.LastUsed)
		assert.NotContains(t, record.Hash, strings.Split(issued.Token, ".")[2])
	})

	t.Run("scopes are deduplicated and label trimmed", func(t *testing.T) {
		t.Parallel()
		m, _, _ := newTestManager(t)

		issued, err := m.CreateKey(context.Background(), "  ci  ", []string{"read", "", "write", "read"}, 0)
		require.NoError(t, err)

		info, err := m.GetKey(context.Background(), issued.KeyID)
		require.NoError(t, err)
		assert.Equal(t, "ci", info.Label)
		assert.Equal(t, []string{"read", "write"}, info.Scopes)
	})

	t.Run("ttl is stored in whole seconds", func(t *testing.T) {
		t.Parallel()
		m, store, _ := newTestManager(t)

		issued, err := m.CreateKey(context.Background(), "x", nil, 90*time.Second+500*time.Millisecond)
		require.NoError(t, err)

		record, err := store.Get(context.Background(), issued.KeyID)
		require.NoError(t, err)
		require.NotNil(t, record.Expires)
		assert.Equal(t, testNow+90, *record.Expires)
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()
		m, err := NewManager(failingStore{err: errors.New("disk full")}, nil)
		require.NoError(t, err)

		_, err = m.CreateKey(context.Background(), "x", nil, 0)
		assert.ErrorContains(t, err, "disk full")
	})

	t.Run("random source failure", func(t *testing.T) {
		t.Parallel()
		m, _, _ := newTestManager(t, WithRandom(bytes.NewReader(nil)))

		_, err := m.CreateKey(context.Background(), "x", nil, 0)
		assert.Error(t, err)
	})
}

func TestManager_Validate_RoundTrip(t *testing.T) {
	t.Parallel()

	m, store, clk := newTestManager(t)
	ctx := context.Background()

	issued, err := m.CreateKey(ctx, "Test", []string{"read", "write", "read"}, 0)
	require.NoError(t, err)

	clk.Advance(10 * time.Second)
	info, err := m.Validate(ctx, issued.Token)
	require.NoError(t, err)

	assert.Equal(t, issued.KeyID, info.ID)
	assert.Equal(t, "Test", info.Label)
	assert.Equal(t, []string{"read", "write"}, info.Scopes)
	require.NotNil(t, info.LastUsed)
	assert.Equal(t, testNow+10, *info.LastUsed)

	record, err := store.Get(ctx, issued.KeyID)
	require.NoError(t, err)
	require.NotNil(t, record.LastUsed)
	assert.Equal(t, testNow+10, *record.LastUsed)

	// Surrounding whitespace is ignored.
	_, err = m.Validate(ctx, "  "+issued.Token+"\n")
	assert.NoError(t, err)
}

func TestManager_Validate_Expiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("valid at exact expiry", func(t *testing.T) {
		t.Parallel()
		m, _, clk := newTestManager(t)

		issued, err := m.CreateKey(ctx, "x", nil, time.Hour)
		require.NoError(t, err)

		clk.Advance(time.Hour)
		_, err = m.Validate(ctx, issued.Token)
		assert.NoError(t, err)
	})

	t.Run("rejected after expiry", func(t *testing.T) {
		t.Parallel()
		m, _, clk := newTestManager(t)

		issued, err := m.CreateKey(ctx, "x", nil, time.Hour)
		require.NoError(t, err)

		clk.Advance(2 * time.Hour)
		_, err = m.Validate(ctx, issued.Token)
		assert.ErrorIs(t, err, ErrKeyExpired)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("zero expiry never expires", func(t *testing.T) {
		t.Parallel()
		m, store, clk := newTestManager(t)

		issued, err := m.CreateKey(ctx, "x", nil, 0)
		require.NoError(t, err)

		record, err := store.Get(ctx, issued.KeyID)
		require.NoError(t, err)
		zero := int64(0)
		record.Expires = &zero
		require.NoError(t, store.Set(ctx, issued.KeyID, record))

		clk.Advance(1000 * time.Hour)
		_, err = m.Validate(ctx, issued.Token)
		assert.NoError(t, err)
	})
}

func TestManager_Validate_Rejections(t *testing.T) {
	t.Parallel()

	m, store, _ := newTestManager(t)
	ctx := context.Background()

	issued, err := m.CreateKey(ctx, "x", []string{"read"}, 0)
	require.NoError(t, err)
	parts := strings.Split(issued.Token, ".")

	noHash, err := m.CreateKey(ctx, "x", nil, 0)
	require.NoError(t, err)
	record, err := store.Get(ctx, noHash.KeyID)
	require.NoError(t, err)
	record.Hash = ""
	require.NoError(t, store.Set(ctx, noHash.KeyID, record))

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "empty", token: "", want: ErrEmptyKey},
		{name: "whitespace", token: "   ", want: ErrEmptyKey},
		{name: "no separators", token: "invalid", want: ErrMalformedKey},
		{name: "two parts", token: "mcp." + parts[1], want: ErrMalformedKey},
		{name: "four parts", token: issued.Token + ".extra", want: ErrMalformedKey},
		{name: "wrong prefix", token: "abc." + parts[1] + "." + parts[2], want: ErrMalformedKey},
		{name: "empty key id", token: "mcp.." + parts[2], want: ErrMalformedKey},
		{name: "empty secret", token: "mcp." + parts[1] + ".", want: ErrMalformedKey},
		{name: "unknown key id", token: "mcp.ffffffffffff." + parts[2], want: ErrUnknownKey},
		{name: "wrong secret", token: "mcp." + parts[1] + ".wrong", want: ErrSecretMismatch},
		{name: "record without hash", token: noHash.Token, want: ErrUnknownKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			info, err := m.Validate(ctx, tt.token)
			assert.Nil(t, info)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestManager_Validate_PepperMismatch(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(nil)
	ctx := context.Background()

	a, err := NewManager(store, &Config{Pepper: "one"})
	require.NoError(t, err)
	b, err := NewManager(store, &Config{Pepper: "two"})
	require.NoError(t, err)

	issued, err := a.CreateKey(ctx, "x", nil, 0)
	require.NoError(t, err)

	_, err = b.Validate(ctx, issued.Token)
	assert.ErrorIs(t, err, ErrSecretMismatch)
}

func TestManager_Validate_StoreError(t *testing.T) {
	t.Parallel()

	m, err := NewManager(failingStore{err: errors.New("connection refused")}, nil)
	require.NoError(t, err)

	_, err = m.Validate(context.Background(), "mcp.abcdefabcdef.secret")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidKey)
	assert.ErrorContains(t, err, "connection refused")
}

func TestManager_ListAndGet(t *testing.T) {
	t.Parallel()

	m, store, _ := newTestManager(t)
	ctx := context.Background()

	k1, err := m.CreateKey(ctx, "one", []string{"read"}, 0)
	require.NoError(t, err)
	k2, err := m.CreateKey(ctx, "two", nil, time.Minute)
	require.NoError(t, err)

	keys, err := m.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Less(t, keys[0].ID, keys[1].ID)

	ids := []string{keys[0].ID, keys[1].ID}
	assert.ElementsMatch(t, []string{k1.KeyID, k2.KeyID}, ids)

	info, err := m.GetKey(ctx, k2.KeyID)
	require.NoError(t, err)
	assert.Equal(t, "two", info.Label)
	require.NotNil(t, info.Expires)
	assert.Equal(t, testNow+60, *info.Expires)

	_, err = m.GetKey(ctx, "000000000000")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// Mutating the returned view does not reach the store.
	info.Scopes = append(info.Scopes, "admin")
	stored, err := store.Get(ctx, k2.KeyID)
	require.NoError(t, err)
	assert.Empty(t, stored.Scopes)
}

func TestManager_ListKeys_Empty(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	keys, err := m.ListKeys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestManager_RevokeKey(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	ctx := context.Background()

	issued, err := m.CreateKey(ctx, "x", nil, 0)
	require.NoError(t, err)

	ok, err := m.RevokeKey(ctx, issued.KeyID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = m.Validate(ctx, issued.Token)
	assert.ErrorIs(t, err, ErrUnknownKey)

	_, err = m.GetKey(ctx, issued.KeyID)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	ok, err = m.RevokeKey(ctx, issued.KeyID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.RevokeKey(ctx, "nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_DeterministicRandom(t *testing.T) {
	t.Parallel()

	random := bytes.NewReader(bytes.Repeat([]byte{0xab}, 64))
	m, _, _ := newTestManager(t, WithRandom(random))

	issued, err := m.CreateKey(context.Background(), "x", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "abababababab", issued.KeyID)
}
