package domain

import "context"

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// Infrastructure implements these; the application layer depends on them.

// Identity supplies the authenticated user, if any.
type Identity interface {
	UserID() (string, bool)
}

// StaticIdentity is an Identity backed by a fixed id ("" = signed out).
type StaticIdentity string

// UserID implements Identity.
func (s StaticIdentity) UserID() (string, bool) {
	return string(s), s != ""
}

// KVStore is the durable local key-value store.
// Get reports ok=false when the key is absent.
type KVStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// TransactionSource is the read-only financial ledger.
type TransactionSource interface {
	Transactions(ctx context.Context, userID string) ([]Transaction, error)
}

// RemoteProgression is the authoritative backend.
// Get returns ErrProgressionNotFound for users it has never seen.
type RemoteProgression interface {
	Get(ctx context.Context, userID string) (RemoteRecord, error)
	Put(ctx context.Context, userID string, rec RemoteRecord) error
}
