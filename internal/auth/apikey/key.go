package apikey

import (
	"slices"
	"strings"
)

// DefaultLabel is assigned to keys created without a usable label.
const DefaultLabel = "Unnamed key"

// Record is the persisted form of an API key. The raw secret is never
// part of it; only Hash is.
type Record struct {
	Label    string   `json:"label"`
	Scopes   []string `json:"scopes"`
	Hash     string   `json:"hash"`
	Created  int64    `json:"created"`
	LastUsed *int64   `json:"last_used"`
	Expires  *int64   `json:"expires"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Scopes = slices.Clone(r.Scopes)
	if r.LastUsed != nil {
		v := *r.LastUsed
		out.LastUsed = &v
	}
	if r.Expires != nil {
		v := *r.Expires
		out.Expires = &v
	}
	return &out
}

// expiredAt reports whether the record has a positive expiry strictly
// before now.
func (r *Record) expiredAt(now int64) bool {
	return r.Expires != nil && *r.Expires > 0 && *r.Expires < now
}

// IssuedKey is returned once, at creation. Token cannot be recovered later.
type IssuedKey struct {
	KeyID string `json:"key_id"`
	Token string `json:"api_key"`
}

// KeyInfo contains information about a stored or validated API key.
type KeyInfo struct {
	// ID is the key identifier embedded in the token.
	ID string `json:"id"`

	// Label is a human-readable name for the key.
	Label string `json:"label"`

	// Scopes is the list of scopes granted to the key.
	Scopes []string `json:"scopes"`

	// Created is when the key was created, in epoch seconds.
	Created int64 `json:"created"`

	// LastUsed is the last successful validation, in epoch seconds.
	LastUsed *int64 `json:"last_used,omitempty"`

	// Expires is when the key stops validating, in epoch seconds.
	Expires *int64 `json:"expires,omitempty"`
}

// HasScope returns true if the key carries scope.
func (k *KeyInfo) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// HasAnyScope returns true if the key carries at least one of scopes.
func (k *KeyInfo) HasAnyScope(scopes []string) bool {
	for _, s := range scopes {
		if k.HasScope(s) {
			return true
		}
	}
	return false
}

// HasAllScopes returns true if the key carries every one of scopes.
// An empty list is trivially satisfied.
func (k *KeyInfo) HasAllScopes(scopes []string) bool {
	for _, s := range scopes {
		if !k.HasScope(s) {
			return false
		}
	}
	return true
}

// IsExpired returns true if the key expired strictly before now
// (epoch seconds). A key is still valid at its exact expiry instant.
func (k *KeyInfo) IsExpired(now int64) bool {
	return k.Expires != nil && *k.Expires < now
}

// newKeyInfo materializes the public view of a record.
func newKeyInfo(id string, r *Record) *KeyInfo {
	c := r.Clone()
	return &KeyInfo{
		ID:       id,
		Label:    c.Label,
		Scopes:   nonEmpty(c.Scopes),
		Created:  c.Created,
		LastUsed: c.LastUsed,
		Expires:  c.Expires,
	}
}

// normalizeLabel trims label and substitutes DefaultLabel when blank.
func normalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return DefaultLabel
	}
	return label
}

// normalizeScopes drops empty scopes and duplicates, keeping first-seen order.
func normalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	seen := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func nonEmpty(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
