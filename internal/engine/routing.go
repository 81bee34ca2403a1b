package engine

import "github.com/cespare/xxhash/v2"

// shardFor maps a routing key onto one of n shards.
func shardFor(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(key) % uint64(n))
}
