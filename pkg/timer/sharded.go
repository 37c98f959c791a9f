package timer

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/nobletooth/chime/pkg/utils"
)

var shardedInvariants = utils.NewInvariants("sharded")

// ShardedRegistry distributes timers across multiple independent registries. Every registry
// serializes its state behind one mutex, so under many concurrently scheduling goroutines the
// lock becomes the bottleneck; sharding spreads both the lock and the per-tick work. Each shard
// runs its own ticker, so ordering guarantees hold per shard.
type ShardedRegistry struct {
	shards []*Registry
	nextID atomic.Uint64 // Facade-level identity used only to pick a shard.
}

// NewSharded is the constructor for ShardedRegistry. It takes a newShard function responsible
// for creating the individual shard registries, and the desired number of shards.
func NewSharded(newShard func() *Registry, shardCount int) *ShardedRegistry {
	// Ensure there is at least one shard.
	if shardCount <= 0 {
		shardedInvariants.Raise("non_positive_shard_count",
			"Invalid shard count has been given to the sharded registry.", "shardCount", shardCount)
		shardCount = 1
	}
	sharded := &ShardedRegistry{shards: make([]*Registry, shardCount)}
	for i := range shardCount {
		sharded.shards[i] = newShard()
	}
	return sharded
}

// shardFor maps a timer identity onto a shard index. Identities are sequential, so they are
// hashed first to spread consecutive timers across the shards.
func (s *ShardedRegistry) shardFor(id uint64) int {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], id)
	return int(xxhash.Sum64(b[:]) % uint64(len(s.shards)))
}

// StartTimer implements Scheduler by scheduling on one shard and tagging the handle with it.
func (s *ShardedRegistry) StartTimer(delay time.Duration, action Action) (Handle, error) {
	shard := s.shardFor(s.nextID.Add(1))
	handle, err := s.shards[shard].StartTimer(delay, action)
	if err != nil {
		return Handle{}, err
	}
	handle.shard = shard
	return handle, nil
}

// StopTimer implements Scheduler by routing the handle back to the shard that issued it.
func (s *ShardedRegistry) StopTimer(handle Handle) {
	if handle.shard < 0 || handle.shard >= len(s.shards) {
		return
	}
	s.shards[handle.shard].StopTimer(handle)
}

// Pending implements Scheduler by aggregating over every shard.
func (s *ShardedRegistry) Pending() int {
	count := 0
	for _, shard := range s.shards {
		count += shard.Pending()
	}
	return count
}

var _ Scheduler = (*ShardedRegistry)(nil)
