// Package fnvshard implements FNV-1a hash partitioning of position fingerprints.
package fnvshard

import (
	"hash/fnv"

	"github.com/discochess/annotator/internal/shard"
)

// Strategy implements FNV-1a hash-based partitioning.
type Strategy struct{}

// Ensure Strategy implements shard.Strategy.
var _ shard.Strategy = (*Strategy)(nil)

// New creates a new FNV-based strategy.
func New() *Strategy {
	return &Strategy{}
}

// Name returns the strategy name.
func (s *Strategy) Name() string {
	return "fnv32"
}

// ShardID hashes the key with FNV-1a and reduces it modulo totalShards.
// The key is expected to be a fingerprint already; it is hashed verbatim.
func (s *Strategy) ShardID(key string, totalShards int) int {
	if totalShards <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(totalShards))
}
