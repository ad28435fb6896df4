// Package udf pins the UDF invocation contract (spec §6): execute_code
// takes execution metadata and a partition's typed argument vector, and
// may call back into the Sharded Lookup Engine's key-set lookup hook
// (spec §4.7). The sandbox itself — true process isolation for untrusted
// user code — is explicitly out of scope; what's implemented here is the
// contract plus a goroutine-bounded in-process runner, grounded on
// get_values_v2_handler.cc's invocation pattern.
package udf

import (
	"context"
	"time"

	"github.com/bidscape/kvshard/internal/model"
	"github.com/shamaton/msgpack/v2"
)

// Argument is one partition argument: a set of tags plus an opaque
// msgpack-encoded data payload, crossing the UDF invocation boundary the
// way the teacher's cache entries cross the serialization boundary.
type Argument struct {
	Tags []string
	Data []byte
}

// EncodeArgumentData msgpack-encodes v as an Argument's Data payload.
func EncodeArgumentData(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

// DecodeArgumentData msgpack-decodes an Argument's Data payload into out.
func DecodeArgumentData(data []byte, out interface{}) error {
	return msgpack.Unmarshal(data, out)
}

// ExecutionMetadata carries the request- and partition-scoped metadata a
// UDF invocation receives (spec §6's exec_metadata).
type ExecutionMetadata struct {
	RequestMetadata   map[string]string
	PartitionMetadata map[string]string
}

// LookupHook is the callback surface a UDF uses to read key-sets from the
// Sharded Lookup Engine (spec §4.7) during its own execution.
type LookupHook interface {
	GetKeyValues(ctx context.Context, keys []string) (map[string]model.SingleLookupResult, error)
	GetKeyValueSet(ctx context.Context, keys []string) (map[string]model.SingleLookupResult, error)
	RunQuery(ctx context.Context, text string) (map[string]struct{}, error)
}

// Func is the signature a UDF implementation must satisfy.
type Func func(ctx context.Context, metadata ExecutionMetadata, args []Argument, hook LookupHook) (string, error)

// Sandbox runs a Func bounded by a per-invocation deadline. It has no
// process isolation of its own; it exists to pin the invocation contract
// and demonstrate deadline-safe dispatch, with the real sandboxing left
// to the external collaborator spec §6 describes.
type Sandbox struct {
	fn      Func
	hook    LookupHook
	timeout time.Duration
}

// New builds a Sandbox that runs fn, giving it access to hook for
// callback lookups, bounded by timeout (zero means no additional bound
// beyond the caller's context).
func New(fn Func, hook LookupHook, timeout time.Duration) *Sandbox {
	return &Sandbox{fn: fn, hook: hook, timeout: timeout}
}

// Execute runs the UDF on its own goroutine and returns as soon as either
// it completes or the (possibly timeout-bounded) context is done.
func (s *Sandbox) Execute(ctx context.Context, metadata ExecutionMetadata, args []Argument) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	type outcome struct {
		value string
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		value, err := s.fn(ctx, metadata, args, s.hook)
		done <- outcome{value, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case o := <-done:
		return o.value, o.err
	}
}
