package sharder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShardOfIsDeterministicAndInRange(t *testing.T) {
	s, err := New(4, "")
	require.NoError(t, err)

	first, _ := s.ShardOf("key1")
	require.GreaterOrEqual(t, first, 0)
	require.Less(t, first, 4)

	again, _ := s.ShardOf("key1")
	require.Equal(t, first, again)
}

func TestShardOfSingleShardAlwaysZero(t *testing.T) {
	s, err := New(1, "")
	require.NoError(t, err)

	n, _ := s.ShardOf("anything")
	require.Equal(t, 0, n)
}

func TestShardOfUsesExtractionPattern(t *testing.T) {
	s, err := New(4, `^[a-z]+`)
	require.NoError(t, err)

	shardA, keyA := s.ShardOf("abc123")
	require.Equal(t, "abc", keyA)

	shardB, keyB := s.ShardOf("abc999")
	require.Equal(t, "abc", keyB)
	require.Equal(t, shardA, shardB, "same extracted sharding key must map to the same shard")
}

func TestShardOfFallsBackToWholeKeyWhenNoMatch(t *testing.T) {
	s, err := New(4, `^[0-9]+$`)
	require.NoError(t, err)

	_, key := s.ShardOf("not-numeric")
	require.Equal(t, "not-numeric", key)
}
