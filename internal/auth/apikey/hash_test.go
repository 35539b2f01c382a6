package apikey

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewHasher(t *testing.T) {
	t.Parallel()

	tests := []struct {
		algorithm string
		expected  Hasher
		wantErr   bool
	}{
		{algorithm: "", expected: SHA256Hasher{}},
		{algorithm: HashAlgSHA256, expected: SHA256Hasher{}},
		{algorithm: HashAlgSHA512, expected: SHA512Hasher{}},
		{algorithm: HashAlgBcrypt, expected: BcryptHasher{Cost: bcrypt.DefaultCost}},
		{algorithm: "plaintext", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			t.Parallel()

			h, err := NewHasher(tt.algorithm)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, h)
		})
	}
}

func TestSHA256Hasher_Format(t *testing.T) {
	t.Parallel()

	sum := sha256.Sum256([]byte("pepper:secret"))
	expected := hex.EncodeToString(sum[:])

	got, err := SHA256Hasher{}.Hash("pepper", "secret")
	require.NoError(t, err)
	assert.Equal(t, expected, got)
}

func TestHashers_Verify(t *testing.T) {
	t.Parallel()

	hashers := map[string]Hasher{
		"sha256": SHA256Hasher{},
		"sha512": SHA512Hasher{},
		"bcrypt": BcryptHasher{Cost: bcrypt.MinCost},
	}

	for name, h := range hashers {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			stored, err := h.Hash("pepper", "secret")
			require.NoError(t, err)

			assert.True(t, h.Verify("pepper", "secret", stored))
			assert.False(t, h.Verify("pepper", "other", stored))
			assert.False(t, h.Verify("other", "secret", stored))
			assert.False(t, h.Verify("pepper", "secret", ""))
		})
	}
}
