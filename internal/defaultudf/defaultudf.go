// Package defaultudf provides the stock UDF wired in when an operator does
// not supply their own: for each argument, decode its msgpack Data as a
// list of keys, resolve them through the lookup hook, and return the
// result as a JSON object. This is not sandboxed user code (spec §6 leaves
// sandboxing to an external collaborator) — it is the reference glue the
// real UDF contract wraps.
//
// Grounded on original_source/components/udf/get_values_hook.cc: the
// "decode keys from the input tuple, call GetValues, serialize the
// response" shape is kept, translated from a Roma JS hook invocation into
// a plain Go Func.
package defaultudf

import (
	"context"
	"fmt"

	"github.com/bidscape/kvshard/internal/model"
	"github.com/bidscape/kvshard/internal/udf"
	json "github.com/goccy/go-json"
)

// argumentPayload is the msgpack shape a PartitionArgument.Data is
// expected to decode into: a flat list of keys to resolve, plus whether
// those keys should be resolved as key-sets rather than plain strings.
type argumentPayload struct {
	Keys       []string `msgpack:"keys"`
	LookupSets bool     `msgpack:"lookupSets"`
}

// resultEntry is the JSON shape one resolved key is rendered as.
type resultEntry struct {
	Value  string   `json:"value,omitempty"`
	Set    []string `json:"stringSet,omitempty"`
	Uint32 []uint32 `json:"uint32Set,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// Func is the default udf.Func: it resolves every key named across all
// arguments and returns the merged result set as a JSON string.
func Func(ctx context.Context, metadata udf.ExecutionMetadata, args []udf.Argument, hook udf.LookupHook) (string, error) {
	var keys []string
	lookupSets := false
	for _, arg := range args {
		var payload argumentPayload
		if err := udf.DecodeArgumentData(arg.Data, &payload); err != nil {
			return "", fmt.Errorf("defaultudf: decode argument data: %w", err)
		}
		keys = append(keys, payload.Keys...)
		if payload.LookupSets {
			lookupSets = true
		}
	}

	var (
		resolved map[string]model.SingleLookupResult
		err      error
	)
	if lookupSets {
		resolved, err = hook.GetKeyValueSet(ctx, keys)
	} else {
		resolved, err = hook.GetKeyValues(ctx, keys)
	}
	if err != nil {
		return "", err
	}

	out := make(map[string]resultEntry, len(resolved))
	for k, v := range resolved {
		switch {
		case v.HasError:
			out[k] = resultEntry{Error: v.ErrorMessage}
		case v.HasStringSet:
			out[k] = resultEntry{Set: v.StringSet}
		case v.HasUint32Set:
			out[k] = resultEntry{Uint32: v.Uint32Set}
		default:
			out[k] = resultEntry{Value: v.StringValue}
		}
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("defaultudf: marshal result: %w", err)
	}
	return string(encoded), nil
}
