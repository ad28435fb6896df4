package lookupengine

import (
	"context"

	"github.com/bidscape/kvshard/internal/model"
	"github.com/bidscape/kvshard/internal/udf"
)

// Hook adapts an Engine to the udf.LookupHook contract: a UDF's lookup
// callbacks don't carry the caller's log/debug context the way the
// top-level dispatch methods do (spec §6 leaves exec_metadata, not
// ConsentedDebugConfig, as what a UDF invocation receives), so this
// dispatches with a zero-value LogContext/ConsentedDebugConfig.
type Hook struct {
	Engine *Engine
}

var _ udf.LookupHook = (*Hook)(nil)

func (h *Hook) GetKeyValues(ctx context.Context, keys []string) (map[string]model.SingleLookupResult, error) {
	return h.Engine.GetKeyValues(ctx, keys, model.LogContext{}, model.ConsentedDebugConfig{})
}

func (h *Hook) GetKeyValueSet(ctx context.Context, keys []string) (map[string]model.SingleLookupResult, error) {
	return h.Engine.GetKeyValueSet(ctx, keys, model.LogContext{}, model.ConsentedDebugConfig{})
}

func (h *Hook) RunQuery(ctx context.Context, text string) (map[string]struct{}, error) {
	return h.Engine.RunQuery(ctx, text, model.LogContext{}, model.ConsentedDebugConfig{})
}
