package wire

import (
	"testing"

	"github.com/bidscape/kvshard/internal/model"
	"github.com/stretchr/testify/require"
)

func TestInternalLookupRequestRoundTrip(t *testing.T) {
	req := &model.InternalLookupRequest{
		Keys:       []string{"key1", "key4"},
		LookupSets: true,
		LogContext: model.LogContext{GenerationID: "gen-1", RequestID: "req-1"},
		ConsentedDebugConfig: model.ConsentedDebugConfig{
			IsConsented: true,
			Token:       "tok",
		},
	}

	data := MarshalInternalLookupRequest(req)
	got, err := UnmarshalInternalLookupRequest(data)
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestInternalLookupRequestEmpty(t *testing.T) {
	req := &model.InternalLookupRequest{}
	data := MarshalInternalLookupRequest(req)
	require.Empty(t, data)

	got, err := UnmarshalInternalLookupRequest(data)
	require.NoError(t, err)
	require.Empty(t, got.Keys)
	require.False(t, got.LookupSets)
}

func TestInternalLookupResponseRoundTrip(t *testing.T) {
	resp := &model.InternalLookupResponse{
		KVPairs: map[string]model.SingleLookupResult{
			"key1": model.StringResult("value1"),
			"key4": model.StringSetResult([]string{"a", "b", "c"}),
			"key5": model.ErrorResult(5, "Key not found"),
			"key9": model.Uint32SetResult([]uint32{1, 2, 3}),
		},
	}

	data := MarshalInternalLookupResponse(resp)
	got, err := UnmarshalInternalLookupResponse(data)
	require.NoError(t, err)
	require.Len(t, got.KVPairs, 4)

	require.True(t, got.KVPairs["key1"].HasValue)
	require.Equal(t, "value1", got.KVPairs["key1"].StringValue)

	require.True(t, got.KVPairs["key4"].HasStringSet)
	require.ElementsMatch(t, []string{"a", "b", "c"}, got.KVPairs["key4"].StringSet)

	require.True(t, got.KVPairs["key5"].HasError)
	require.Equal(t, "Key not found", got.KVPairs["key5"].ErrorMessage)

	require.True(t, got.KVPairs["key9"].HasUint32Set)
	require.ElementsMatch(t, []uint32{1, 2, 3}, got.KVPairs["key9"].Uint32Set)
}

func TestPad(t *testing.T) {
	data := []byte("hello")
	padded := Pad(data, 3)
	require.Len(t, padded, 8)
	require.Equal(t, []byte("hello"), padded[:5])
	require.Equal(t, []byte{0, 0, 0}, padded[5:])

	require.Equal(t, data, Pad(data, 0))
}
