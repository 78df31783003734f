package tokencache

import "context"

// Store persists a single issued token between runs.
// The cache is an optimization, not a correctness requirement: callers
// treat every read failure as a miss and every write failure as non-fatal.
type Store interface {
	// Read returns the stored token, or ErrCacheMiss when the store is
	// empty, unreadable, or the token is already expired.
	Read(ctx context.Context) (*Token, error)

	// Write replaces the stored token.
	Write(ctx context.Context, token *Token) error
}
