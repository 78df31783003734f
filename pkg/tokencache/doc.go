// Package tokencache persists issued API tokens between runs.
//
// Two backends implement the Store interface:
//
//   - FileStore: a JSON file on local disk, written atomically
//     (temp file + rename). This is the default for a single export host.
//   - RedisStore: a shared Redis key with a TTL matching the token expiry,
//     for fleets where several export hosts use one API credential.
//
// Both backends report an expired or unreadable entry as ErrCacheMiss;
// the caller then performs a fresh exchange. The cache file holds a bearer
// credential and must be protected like one.
//
// # Basic Usage
//
//	store := tokencache.NewFileStore("vectra_token.json")
//
//	token, err := store.Read(ctx)
//	if errors.Is(err, tokencache.ErrCacheMiss) {
//		// No usable token - perform a client-credentials exchange
//	}
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - vectra_token_cache_hits_total{backend} - Cache hits
//   - vectra_token_cache_misses_total - Cache misses
//   - vectra_token_cache_errors_total{operation} - Operation errors
package tokencache
