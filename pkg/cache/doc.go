// Package cache provides the key/value TTL cache used by the forwarder's
// response cache.
//
// Two backends implement Cache:
//   - Memory, backed by github.com/patrickmn/go-cache with its janitor
//     removing expired items every cleanup interval
//   - Disk, backed by SQLite (modernc.org/sqlite) so entries survive restarts;
//     expired rows are removed by a cron-scheduled cleanup
//
// A zero or negative ttl passed to Set uses the backend's default TTL.
//
//	c, err := cache.New(cache.Config{Type: cache.TypeDisk, TTL: 5 * time.Minute, Path: "data/cache.db"})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	_ = c.Set(ctx, "GET https://example.com/", body, 0)
package cache
