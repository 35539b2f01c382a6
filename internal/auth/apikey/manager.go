package apikey

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/code-wheel/mcp-http-security/internal/clock"
	"github.com/code-wheel/mcp-http-security/internal/observability"
)

// ErrInvalidKey is matched by every rejection of a presented token.
var ErrInvalidKey = errors.New("invalid API key")

// Rejection reasons. Each one satisfies errors.Is(err, ErrInvalidKey).
var (
	ErrEmptyKey       = fmt.Errorf("%w: empty", ErrInvalidKey)
	ErrMalformedKey   = fmt.Errorf("%w: malformed", ErrInvalidKey)
	ErrUnknownKey     = fmt.Errorf("%w: unknown key id", ErrInvalidKey)
	ErrKeyExpired     = fmt.Errorf("%w: expired", ErrInvalidKey)
	ErrSecretMismatch = fmt.Errorf("%w: secret mismatch", ErrInvalidKey)
)

// ErrKeyNotFound is returned by GetKey for unknown key ids.
var ErrKeyNotFound = errors.New("API key not found")

// Manager creates, validates, lists and revokes API keys.
//
// Manager holds no mutable state of its own and is safe for concurrent
// use as long as its Store is. The last-used write after a successful
// validation is a plain read-modify-write; concurrent validations of the
// same key may race on it.
type Manager struct {
	store   Store
	clock   clock.Clock
	random  io.Reader
	hasher  Hasher
	pepper  string
	prefix  string
	logger  observability.Logger
	metrics *Metrics
}

// ManagerOption is a functional option for the manager.
type ManagerOption func(*Manager)

// WithClock sets the time source.
func WithClock(c clock.Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithRandom sets the secure random source used for ids and secrets.
func WithRandom(r io.Reader) ManagerOption {
	return func(m *Manager) {
		m.random = r
	}
}

// WithHasher overrides the hasher derived from the configuration.
func WithHasher(h Hasher) ManagerOption {
	return func(m *Manager) {
		m.hasher = h
	}
}

// WithManagerLogger sets the logger for the manager.
func WithManagerLogger(logger observability.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithManagerMetrics sets the metrics for the manager.
func WithManagerMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager creates a new API key manager over store.
func NewManager(store Store, cfg *Config, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		store:  store,
		clock:  clock.System(),
		random: rand.Reader,
		pepper: cfg.Pepper,
		prefix: cfg.GetEffectivePrefix(),
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.hasher == nil {
		h, err := NewHasher(cfg.GetEffectiveHashAlgorithm())
		if err != nil {
			return nil, err
		}
		m.hasher = h
	}

	if m.metrics == nil {
		m.metrics = NewMetrics("")
	}

	return m, nil
}

// Prefix returns the token prefix issued by this manager.
func (m *Manager) Prefix() string {
	return m.prefix
}

// Store returns the underlying store.
func (m *Manager) Store() Store {
	return m.store
}

// CreateKey issues a new key. ttl is truncated to whole seconds; keys
// without a positive ttl never expire.
func (m *Manager) CreateKey(ctx context.Context, label string, scopes []string, ttl time.Duration) (*IssuedKey, error) {
	keyID, err := generateKeyID(m.random)
	if err != nil {
		return nil, err
	}
	secret, err := generateSecret(m.random)
	if err != nil {
		return nil, err
	}
	hash, err := m.hasher.Hash(m.pepper, secret)
	if err != nil {
		return nil, fmt.Errorf("failed to hash secret: %w", err)
	}

	now := m.clock.Now().Unix()
	record := &Record{
		Label:   normalizeLabel(label),
		Scopes:  normalizeScopes(scopes),
		Hash:    hash,
		Created: now,
	}
	if ttlSeconds := int64(ttl / time.Second); ttlSeconds > 0 {
		expires := now + ttlSeconds
		record.Expires = &expires
	}

	if err := m.store.Set(ctx, keyID, record); err != nil {
		return nil, fmt.Errorf("failed to store API key: %w", err)
	}

	m.metrics.RecordCreated()
	m.logger.WithContext(ctx).Info("API key created",
		observability.String("key_id", keyID),
		observability.String("label", record.Label),
		observability.Strings("scopes", record.Scopes),
	)

	return &IssuedKey{
		KeyID: keyID,
		Token: formatToken(m.prefix, keyID, secret),
	}, nil
}

// Validate checks a presented token and, on success, records the use
// and returns the key information. Rejections match ErrInvalidKey;
// any other error comes from the store.
func (m *Manager) Validate(ctx context.Context, token string) (*KeyInfo, error) {
	start := time.Now()

	info, reason, err := m.validate(ctx, token)
	if err != nil {
		m.metrics.RecordValidation("error", reason, time.Since(start))
		if reason != reasonStore {
			m.logger.WithContext(ctx).Debug("API key rejected", observability.String("reason", reason))
		}
		return nil, err
	}

	m.metrics.RecordValidation("success", reasonValid, time.Since(start))
	m.logger.WithContext(ctx).Debug("API key validated",
		observability.String("key_id", info.ID),
		observability.String("label", info.Label),
	)
	return info, nil
}

func (m *Manager) validate(ctx context.Context, token string) (*KeyInfo, string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, reasonEmpty, ErrEmptyKey
	}

	keyID, secret, ok := parseToken(token, m.prefix)
	if !ok {
		return nil, reasonMalform, ErrMalformedKey
	}

	record, err := m.store.Get(ctx, keyID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, reasonNotFound, ErrUnknownKey
	}
	if err != nil {
		return nil, reasonStore, fmt.Errorf("failed to look up API key: %w", err)
	}
	if record == nil || record.Hash == "" {
		return nil, reasonNoHash, ErrUnknownKey
	}

	now := m.clock.Now().Unix()
	if record.expiredAt(now) {
		return nil, reasonExpired, ErrKeyExpired
	}

	if !m.hasher.Verify(m.pepper, secret, record.Hash) {
		return nil, reasonMismatch, ErrSecretMismatch
	}

	record.LastUsed = &now
	if err := m.store.Set(ctx, keyID, record); err != nil {
		return nil, reasonStore, fmt.Errorf("failed to record API key use: %w", err)
	}

	return newKeyInfo(keyID, record), reasonValid, nil
}

// ListKeys returns every stored key ordered by key id. Nil records are skipped.
func (m *Manager) ListKeys(ctx context.Context) ([]*KeyInfo, error) {
	all, err := m.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}

	ids := make([]string, 0, len(all))
	for id, r := range all {
		if r == nil {
			m.logger.Warn("skipping malformed API key record", observability.String("key_id", id))
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)

	keys := make([]*KeyInfo, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, newKeyInfo(id, all[id]))
	}
	return keys, nil
}

// GetKey returns a single key, or ErrKeyNotFound.
func (m *Manager) GetKey(ctx context.Context, keyID string) (*KeyInfo, error) {
	record, err := m.store.Get(ctx, keyID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}
	if record == nil {
		return nil, ErrKeyNotFound
	}
	return newKeyInfo(keyID, record), nil
}

// RevokeKey deletes a key and reports whether it existed.
func (m *Manager) RevokeKey(ctx context.Context, keyID string) (bool, error) {
	existed, err := m.store.Delete(ctx, keyID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke API key: %w", err)
	}
	if existed {
		m.metrics.RecordRevoked()
		m.logger.WithContext(ctx).Info("API key revoked", observability.String("key_id", keyID))
	}
	return existed, nil
}
