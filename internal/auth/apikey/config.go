package apikey

import (
	"fmt"
	"regexp"
)

// DefaultPrefix is the token prefix used when none is configured.
const DefaultPrefix = "mcp"

// prefixPattern restricts prefixes to characters that cannot collide with
// the token separator.
var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Config represents API key issuing and validation configuration.
type Config struct {
	// Prefix is the first segment of every issued token.
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`

	// Pepper is a server-side secret mixed into every stored hash.
	Pepper string `yaml:"pepper,omitempty" json:"-"`

	// HashAlgorithm is the algorithm used to hash secrets.
	// Supported: sha256 (default), sha512, bcrypt.
	HashAlgorithm string `yaml:"hashAlgorithm,omitempty" json:"hashAlgorithm,omitempty"`
}

// DefaultConfig returns a default API key configuration.
func DefaultConfig() *Config {
	return &Config{
		Prefix:        DefaultPrefix,
		HashAlgorithm: HashAlgSHA256,
	}
}

// Validate validates the API key configuration.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Prefix != "" && !prefixPattern.MatchString(c.Prefix) {
		return fmt.Errorf("invalid key prefix %q: only letters, digits, '-' and '_' are allowed", c.Prefix)
	}
	if c.HashAlgorithm != "" {
		if _, err := NewHasher(c.HashAlgorithm); err != nil {
			return err
		}
	}
	return nil
}

// GetEffectivePrefix returns the configured prefix or the default.
func (c *Config) GetEffectivePrefix() string {
	if c == nil || c.Prefix == "" {
		return DefaultPrefix
	}
	return c.Prefix
}

// GetEffectiveHashAlgorithm returns the effective hash algorithm.
func (c *Config) GetEffectiveHashAlgorithm() string {
	if c == nil || c.HashAlgorithm == "" {
		return HashAlgSHA256
	}
	return c.HashAlgorithm
}
