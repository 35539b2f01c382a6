// Package apikey issues and validates scoped API keys.
//
// A token has the form "<prefix>.<key id>.<secret>". Only a peppered hash
// of the secret is persisted, keyed by the key id, so a token can be shown
// exactly once: at creation.
//
// # Lifecycle
//
//	mgr, err := apikey.NewManager(apikey.NewMemoryStore(nil), &apikey.Config{Pepper: pepper})
//	if err != nil {
//	    return err
//	}
//
//	issued, err := mgr.CreateKey(ctx, "ci", []string{"read"}, 24*time.Hour)
//	info, err := mgr.Validate(ctx, issued.Token)
//	ok, err := mgr.RevokeKey(ctx, issued.KeyID)
//
// Every rejection returned by Validate matches ErrInvalidKey. Storage
// failures are returned wrapped and do not.
//
// Durable Store implementations live in the store subpackage.
package apikey
