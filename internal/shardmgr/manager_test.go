package shardmgr

import (
	"context"
	"testing"

	"github.com/bidscape/kvshard/internal/model"
	"github.com/stretchr/testify/require"
)

type stubClient struct{ id string }

func (s *stubClient) GetValues(ctx context.Context, serialized []byte, padding int) (*model.InternalLookupResponse, error) {
	return &model.InternalLookupResponse{}, nil
}

func TestGetReturnsNilForUnknownShard(t *testing.T) {
	m := New()
	require.Nil(t, m.Get(0))
}

func TestUpdateAndGet(t *testing.T) {
	m := New()
	m.Update(map[int][]Replica{
		0: {{NodeID: "a", Client: &stubClient{id: "a"}}},
		1: {{NodeID: "b", Client: &stubClient{id: "b"}}},
	})

	require.NotNil(t, m.Get(0))
	require.NotNil(t, m.Get(1))
	require.Nil(t, m.Get(2))
	require.ElementsMatch(t, []int{0, 1}, m.Shards())
}

func TestUpdateReplacesTableWholesale(t *testing.T) {
	m := New()
	m.Update(map[int][]Replica{0: {{NodeID: "a", Client: &stubClient{id: "a"}}}})
	require.NotNil(t, m.Get(0))

	m.Update(map[int][]Replica{1: {{NodeID: "b", Client: &stubClient{id: "b"}}}})
	require.Nil(t, m.Get(0))
	require.NotNil(t, m.Get(1))
}

func TestGetSelectsAmongMultipleReplicas(t *testing.T) {
	m := New()
	m.Update(map[int][]Replica{
		0: {
			{NodeID: "a", Client: &stubClient{id: "a"}},
			{NodeID: "b", Client: &stubClient{id: "b"}},
		},
	})

	for i := 0; i < 20; i++ {
		require.NotNil(t, m.Get(0))
	}
}
