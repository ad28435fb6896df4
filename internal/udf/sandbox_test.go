package udf

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bidscape/kvshard/internal/model"
	"github.com/stretchr/testify/require"
)

type stubHook struct{}

func (stubHook) GetKeyValues(ctx context.Context, keys []string) (map[string]model.SingleLookupResult, error) {
	return nil, nil
}
func (stubHook) GetKeyValueSet(ctx context.Context, keys []string) (map[string]model.SingleLookupResult, error) {
	return nil, nil
}
func (stubHook) RunQuery(ctx context.Context, text string) (map[string]struct{}, error) {
	return nil, nil
}

func TestArgumentDataRoundTrip(t *testing.T) {
	data, err := EncodeArgumentData(map[string]int{"a": 1, "b": 2})
	require.NoError(t, err)

	var out map[string]int
	require.NoError(t, DecodeArgumentData(data, &out))
	require.Equal(t, map[string]int{"a": 1, "b": 2}, out)
}

func TestSandboxExecuteSuccess(t *testing.T) {
	fn := func(ctx context.Context, metadata ExecutionMetadata, args []Argument, hook LookupHook) (string, error) {
		return "ok:" + metadata.PartitionMetadata["id"], nil
	}
	s := New(fn, stubHook{}, time.Second)

	out, err := s.Execute(context.Background(), ExecutionMetadata{PartitionMetadata: map[string]string{"id": "p1"}}, nil)
	require.NoError(t, err)
	require.Equal(t, "ok:p1", out)
}

func TestSandboxExecutePropagatesError(t *testing.T) {
	wantErr := errors.New("udf failed")
	fn := func(ctx context.Context, metadata ExecutionMetadata, args []Argument, hook LookupHook) (string, error) {
		return "", wantErr
	}
	s := New(fn, stubHook{}, time.Second)

	_, err := s.Execute(context.Background(), ExecutionMetadata{}, nil)
	require.ErrorIs(t, err, wantErr)
}

func TestSandboxExecuteTimesOut(t *testing.T) {
	fn := func(ctx context.Context, metadata ExecutionMetadata, args []Argument, hook LookupHook) (string, error) {
		select {
		case <-time.After(time.Second):
			return "too slow", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	s := New(fn, stubHook{}, 10*time.Millisecond)

	_, err := s.Execute(context.Background(), ExecutionMetadata{}, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
