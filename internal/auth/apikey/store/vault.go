package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/code-wheel/mcp-http-security/internal/auth/apikey"
	"github.com/code-wheel/mcp-http-security/internal/observability"
)

// Vault defaults.
const (
	DefaultVaultMount = "secret"
	DefaultVaultPath  = "mcp/apikeys"
)

// VaultStore keeps one KV v2 secret per key at
// "<mount>/data/<path>/<key id>", the secret data being the record fields.
type VaultStore struct {
	logical *vaultapi.Logical
	mount   string
	path    string
	logger  observability.Logger
}

// VaultOption is a functional option for VaultStore.
type VaultOption func(*VaultStore)

// WithVaultLogger sets the logger for the Vault store.
func WithVaultLogger(logger observability.Logger) VaultOption {
	return func(s *VaultStore) {
		s.logger = logger
	}
}

// NewVaultStore creates a store over an authenticated Vault client.
func NewVaultStore(client *vaultapi.Client, mount, path string, opts ...VaultOption) (*VaultStore, error) {
	if client == nil {
		return nil, errors.New("vault client is required")
	}
	if mount == "" {
		mount = DefaultVaultMount
	}
	if path == "" {
		path = DefaultVaultPath
	}

	s := &VaultStore{
		logical: client.Logical(),
		mount:   strings.Trim(mount, "/"),
		path:    strings.Trim(path, "/"),
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OpenVaultStore creates a token-authenticated client for address.
func OpenVaultStore(address, token, mount, path string, opts ...VaultOption) (*VaultStore, error) {
	if address == "" {
		return nil, errors.New("vault address is required")
	}

	cfg := vaultapi.DefaultConfig()
	cfg.Address = address

	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	return NewVaultStore(client, mount, path, opts...)
}

// GetAll implements apikey.Store.
func (s *VaultStore) GetAll(ctx context.Context) (map[string]*apikey.Record, error) {
	ids, err := s.list(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*apikey.Record, len(ids))
	for _, id := range ids {
		record, err := s.Get(ctx, id)
		if errors.Is(err, apikey.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = record
	}
	return out, nil
}

// SetAll implements apikey.Store. Vault has no multi-secret transaction,
// so a failure part way leaves a partial replacement.
func (s *VaultStore) SetAll(ctx context.Context, records map[string]*apikey.Record) error {
	existing, err := s.list(ctx)
	if err != nil {
		return err
	}

	for _, id := range existing {
		if r, keep := records[id]; keep && r != nil {
			continue
		}
		if err := s.destroy(ctx, id); err != nil {
			return err
		}
	}

	for id, record := range records {
		if record == nil {
			continue
		}
		if err := s.Set(ctx, id, record); err != nil {
			return err
		}
	}
	return nil
}

// Get implements apikey.Store. Missing and soft-deleted secrets are not found.
func (s *VaultStore) Get(ctx context.Context, keyID string) (*apikey.Record, error) {
	secret, err := s.logical.ReadWithContext(ctx, s.dataPath(keyID))
	if err != nil {
		return nil, fmt.Errorf("failed to read API key from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, apikey.ErrRecordNotFound
	}

	data, ok := secret.Data["data"].(map[string]any)
	if !ok || data == nil {
		return nil, apikey.ErrRecordNotFound
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, apikey.ErrRecordNotFound
	}
	record, err := decodeRecord(encoded)
	if err != nil || record == nil {
		s.logger.Warn("undecodable API key in vault", observability.String("key_id", keyID))
		return nil, apikey.ErrRecordNotFound
	}
	return record, nil
}

// Set implements apikey.Store.
func (s *VaultStore) Set(ctx context.Context, keyID string, record *apikey.Record) error {
	encoded, err := encodeRecord(record)
	if err != nil {
		return err
	}

	var fields map[string]any
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	// KV v2 requires data to be wrapped in a "data" key
	if _, err := s.logical.WriteWithContext(ctx, s.dataPath(keyID), map[string]any{"data": fields}); err != nil {
		return fmt.Errorf("failed to write API key to vault: %w", err)
	}
	return nil
}

// Delete implements apikey.Store. All versions and metadata are removed.
func (s *VaultStore) Delete(ctx context.Context, keyID string) (bool, error) {
	_, err := s.Get(ctx, keyID)
	if errors.Is(err, apikey.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.destroy(ctx, keyID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *VaultStore) list(ctx context.Context) ([]string, error) {
	secret, err := s.logical.ListWithContext(ctx, s.metadataPath(""))
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys in vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	keys, ok := secret.Data["keys"].([]any)
	if !ok {
		return nil, nil
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		id, ok := k.(string)
		if !ok || id == "" || strings.HasSuffix(id, "/") {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *VaultStore) destroy(ctx context.Context, keyID string) error {
	if _, err := s.logical.DeleteWithContext(ctx, s.metadataPath(keyID)); err != nil {
		return fmt.Errorf("failed to delete API key from vault: %w", err)
	}
	return nil
}

func (s *VaultStore) dataPath(keyID string) string {
	return s.mount + "/data/" + s.path + "/" + keyID
}

func (s *VaultStore) metadataPath(keyID string) string {
	if keyID == "" {
		return s.mount + "/metadata/" + s.path
	}
	return s.mount + "/metadata/" + s.path + "/" + keyID
}

var _ apikey.Store = (*VaultStore)(nil)
