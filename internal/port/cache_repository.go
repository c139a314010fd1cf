package port

import "context"

type CacheRepository interface {
	// ClaimIdempotency sets key if absent and returns the token that owns it.
	// ok is false when the key is already held.
	ClaimIdempotency(ctx context.Context, key string) (token string, ok bool, err error)

	// ReleaseIdempotency deletes key if it is still owned by token.
	ReleaseIdempotency(ctx context.Context, key, token string) error
}
