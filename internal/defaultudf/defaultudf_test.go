package defaultudf

import (
	"context"
	"testing"

	"github.com/bidscape/kvshard/internal/model"
	"github.com/bidscape/kvshard/internal/udf"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

type fakeHook struct {
	values map[string]model.SingleLookupResult
}

func (f *fakeHook) GetKeyValues(ctx context.Context, keys []string) (map[string]model.SingleLookupResult, error) {
	return f.values, nil
}
func (f *fakeHook) GetKeyValueSet(ctx context.Context, keys []string) (map[string]model.SingleLookupResult, error) {
	return f.values, nil
}
func (f *fakeHook) RunQuery(ctx context.Context, text string) (map[string]struct{}, error) {
	return nil, nil
}

func TestFuncResolvesKeysThroughHook(t *testing.T) {
	hook := &fakeHook{values: map[string]model.SingleLookupResult{
		"k1": model.StringResult("v1"),
	}}

	data, err := udf.EncodeArgumentData(argumentPayload{Keys: []string{"k1"}})
	require.NoError(t, err)

	result, err := Func(context.Background(), udf.ExecutionMetadata{}, []udf.Argument{{Data: data}}, hook)
	require.NoError(t, err)

	var decoded map[string]resultEntry
	require.NoError(t, json.Unmarshal([]byte(result), &decoded))
	require.Equal(t, "v1", decoded["k1"].Value)
}

func TestFuncPropagatesErrorResult(t *testing.T) {
	hook := &fakeHook{values: map[string]model.SingleLookupResult{
		"k1": model.ErrorResult(3, "missing"),
	}}

	data, err := udf.EncodeArgumentData(argumentPayload{Keys: []string{"k1"}})
	require.NoError(t, err)

	result, err := Func(context.Background(), udf.ExecutionMetadata{}, []udf.Argument{{Data: data}}, hook)
	require.NoError(t, err)

	var decoded map[string]resultEntry
	require.NoError(t, json.Unmarshal([]byte(result), &decoded))
	require.Equal(t, "missing", decoded["k1"].Error)
}
