package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-wheel/mcp-http-security/internal/auth/apikey"
)

// fakeKV2 is an in-memory Vault KV v2 engine mounted at "secret".
type fakeKV2 struct {
	mu      sync.Mutex
	secrets map[string]map[string]any
	failAll bool
}

func newFakeKV2(t *testing.T) (*fakeKV2, *httptest.Server) {
	t.Helper()

	kv := &fakeKV2{secrets: make(map[string]map[string]any)}
	server := httptest.NewServer(kv)
	t.Cleanup(server.Close)
	return kv, server
}

func (f *fakeKV2) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if f.failAll {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":["boom"]}`))
		return
	}
	if r.Header.Get("X-Vault-Token") != "test-token" {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
		return
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/v1/secret/data/"):
		path := strings.TrimPrefix(r.URL.Path, "/v1/secret/data/")
		switch r.Method {
		case http.MethodGet:
			data, ok := f.secrets[path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"errors":[]}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"data": data, "metadata": map[string]any{"version": 1}},
			})
		case http.MethodPut, http.MethodPost:
			var body struct {
				Data map[string]any `json:"data"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.secrets[path] = body.Data
			_, _ = w.Write([]byte(`{"data":{"version":1}}`))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	case strings.HasPrefix(r.URL.Path, "/v1/secret/metadata/"):
		path := strings.TrimPrefix(r.URL.Path, "/v1/secret/metadata/")
		switch {
		case r.Method == http.MethodGet && r.URL.Query().Get("list") == "true":
			prefix := strings.TrimSuffix(path, "/") + "/"
			keys := make([]string, 0)
			for p := range f.secrets {
				if strings.HasPrefix(p, prefix) {
					keys = append(keys, strings.TrimPrefix(p, prefix))
				}
			}
			if len(keys) == 0 {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"errors":[]}`))
				return
			}
			sort.Strings(keys)
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"keys": keys}})
		case r.Method == http.MethodDelete:
			delete(f.secrets, path)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[]}`))
	}
}

func newVaultStore(t *testing.T, url string) *VaultStore {
	t.Helper()

	s, err := OpenVaultStore(url, "test-token", "", "")
	require.NoError(t, err)
	return s
}

func TestOpenVaultStore_Validation(t *testing.T) {
	t.Parallel()

	_, err := OpenVaultStore("", "token", "", "")
	assert.Error(t, err)

	_, err = NewVaultStore(nil, "", "")
	assert.Error(t, err)
}

func TestVaultStore_Contract(t *testing.T) {
	t.Parallel()

	_, server := newFakeKV2(t)
	runStoreContract(t, newVaultStore(t, server.URL))
}

func TestVaultStore_Manager(t *testing.T) {
	t.Parallel()

	_, server := newFakeKV2(t)
	runManagerOverStore(t, newVaultStore(t, server.URL))
}

func TestVaultStore_Layout(t *testing.T) {
	t.Parallel()

	kv, server := newFakeKV2(t)
	s := newVaultStore(t, server.URL)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "aaaaaaaaaaaa", sampleRecord("one")))

	kv.mu.Lock()
	data, ok := kv.secrets["mcp/apikeys/aaaaaaaaaaaa"]
	kv.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, "one", data["label"])
	assert.Equal(t, "0123abcd", data["hash"])

	got, err := s.Get(ctx, "aaaaaaaaaaaa")
	require.NoError(t, err)
	require.NotNil(t, got.Expires)
	assert.Equal(t, int64(1_700_003_600), *got.Expires)
}

func TestVaultStore_ServerError(t *testing.T) {
	t.Parallel()

	kv, server := newFakeKV2(t)
	s := newVaultStore(t, server.URL)

	kv.mu.Lock()
	kv.failAll = true
	kv.mu.Unlock()

	_, err := s.Get(context.Background(), "aaaaaaaaaaaa")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apikey.ErrRecordNotFound)

	_, err = s.GetAll(context.Background())
	assert.Error(t, err)
}

func TestVaultStore_PermissionDenied(t *testing.T) {
	t.Parallel()

	_, server := newFakeKV2(t)
	s, err := OpenVaultStore(server.URL, "wrong", "secret", "mcp/apikeys")
	require.NoError(t, err)

	err = s.Set(context.Background(), "aaaaaaaaaaaa", sampleRecord("x"))
	assert.Error(t, err)
}

func TestNew_Vault(t *testing.T) {
	t.Parallel()

	_, server := newFakeKV2(t)
	s, err := New(context.Background(), &Config{
		Type:  TypeVault,
		Vault: &VaultConfig{Address: server.URL, Token: "test-token"},
	}, nil)
	require.NoError(t, err)
	assert.IsType(t, &VaultStore{}, s)
}
