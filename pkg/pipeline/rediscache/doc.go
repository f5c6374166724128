/*
Package rediscache provides a Redis-backed pipeline.ResultCache, so engines on
several processes can share cached pipeline results.

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	p, err := pipeline.New(pipeline.Config{
		ID:          "report",
		EnableCache: true,
		CacheTTL:    10 * time.Minute,
	}, pipeline.WithCache(rediscache.Factory(rdb, "reports")))

Values are stored as JSON under "<prefix>:<key>" with a millisecond expiry,
so a cached result comes back as the generic JSON form of the original:
numbers become float64, structs become map[string]interface{}.

Factory gives every engine it is called for, including clones, its own
random sub-prefix so their entries and Clear calls do not interfere. Use New
with a fixed Prefix to share entries between processes.
*/
package rediscache
