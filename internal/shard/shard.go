// Package shard defines how cache keys are spread over a fixed number of
// partitions. The evaluation cache uses it to pick the lock stripe that guards
// a fingerprint.
package shard

// Strategy maps a key to a partition.
type Strategy interface {
	// Name returns a human-readable name for this strategy.
	Name() string

	// ShardID returns the partition for key, in the range [0, totalShards).
	// Equal keys always map to the same partition.
	ShardID(key string, totalShards int) int
}
