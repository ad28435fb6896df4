// Package sharder implements the deterministic key-to-shard mapping (spec
// §4.1): hash an optionally-extracted sub-key and reduce modulo the shard
// count. The hash must be process-stable within a deployment, so the choice
// of hash function is fixed, not configurable.
package sharder

import (
	"regexp"

	"github.com/cespare/xxhash/v2"
)

// Sharder maps keys to shard indices in [0, numShards).
type Sharder struct {
	numShards int
	extractor *regexp.Regexp
}

// New builds a Sharder for numShards shards. extractionPattern, if
// non-empty, is compiled and its first match against a key becomes the
// "sharding key" that gets hashed instead of the whole key.
func New(numShards int, extractionPattern string) (*Sharder, error) {
	s := &Sharder{numShards: numShards}
	if extractionPattern != "" {
		re, err := regexp.Compile(extractionPattern)
		if err != nil {
			return nil, err
		}
		s.extractor = re
	}
	return s, nil
}

// ShardOf returns the shard index key is assigned to, and the sharding key
// actually hashed (the extracted substring, or the whole key if no
// extraction pattern matched).
func (s *Sharder) ShardOf(key string) (shardNum int, shardingKey string) {
	shardingKey = key
	if s.extractor != nil {
		if m := s.extractor.FindString(key); m != "" {
			shardingKey = m
		}
	}
	if s.numShards <= 1 {
		return 0, shardingKey
	}
	h := xxhash.Sum64String(shardingKey)
	return int(h % uint64(s.numShards)), shardingKey
}

// NumShards returns the configured shard count.
func (s *Sharder) NumShards() int { return s.numShards }

// AllShards returns every shard index in [0, numShards), for callers that
// need to enumerate the full shard universe (e.g. fanning out to
// known-empty buckets).
func (s *Sharder) AllShards() []int {
	out := make([]int, s.numShards)
	for i := range out {
		out[i] = i
	}
	return out
}
