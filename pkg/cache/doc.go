// Package cache provides a Redis-backed cache for remote schema lists.
//
// Resolving a schema costs one remote call per export or page request. The
// cache keeps the schema names of an entity for a short TTL so interactive
// browsing does not pay for it on every page.
//
// Keys include a hash of the caller's access key: a cached list is only
// reused by callers presenting the same credentials. Secrets themselves are
// never stored.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient, 5*time.Minute)
//	key := cache.SchemaKey("acme", "v2", "orders", accessKey)
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// list schemas remotely, then
//		_ = manager.Set(ctx, key, names)
//	}
//
// # Metrics
//
//   - docapi_schema_cache_hits_total
//   - docapi_schema_cache_misses_total
//   - docapi_schema_cache_errors_total{operation}
package cache
