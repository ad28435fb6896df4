// Package model holds the data shapes shared across the lookup engine: cache
// value variants, the per-key result tagged union, and the internal
// request/response pair that crosses shard boundaries.
package model

import json "github.com/goccy/go-json"

// ValueKind tags which variant of a cache entry's value is populated.
type ValueKind int

const (
	ValueKindString ValueKind = iota
	ValueKindStringSet
	ValueKindUint32Set

	// ValueKindDeleted marks a tombstone: the key's value is gone, but the
	// entry (and its CommitTime high-water mark) is retained so a stale,
	// out-of-order update older than the delete cannot resurrect it.
	ValueKindDeleted
)

// CacheEntry is one value stored in the Local KV Store, tagged with the
// logical commit time it was last written at.
type CacheEntry struct {
	Kind        ValueKind
	StringValue string
	StringSet   map[string]struct{}
	Uint32Set   map[uint32]struct{}
	CommitTime  int64
}

// LogContext carries request-scoped tracing/debug identifiers on an
// InternalLookupRequest. The request handler does not fill it in, and
// lookups made through lookupengine.Hook (the UDF path) send a zero value.
type LogContext struct {
	GenerationID string
	RequestID    string
}

// ConsentedDebugConfig is the caller-supplied debug token carried on
// GetValuesRequest and InternalLookupRequest. It is encoded and decoded on
// the wire; no lookup or UDF code path changes its behaviour based on it.
type ConsentedDebugConfig struct {
	IsConsented bool
	Token       string
}

// InternalLookupRequest is one shard's bucket of a fanned-out lookup.
type InternalLookupRequest struct {
	Keys                  []string
	LookupSets            bool
	LogContext            LogContext
	ConsentedDebugConfig  ConsentedDebugConfig
}

// SingleLookupResult is the tagged-union result for exactly one key.
type SingleLookupResult struct {
	HasValue       bool
	StringValue    string
	HasStringSet   bool
	StringSet      []string
	HasUint32Set   bool
	Uint32Set      []uint32
	HasError       bool
	ErrorCode      int32
	ErrorMessage   string
}

// InternalLookupResponse maps every key in the matching request to exactly
// one SingleLookupResult (spec invariant: every requested key appears
// exactly once).
type InternalLookupResponse struct {
	KVPairs map[string]SingleLookupResult
}

// StringResult builds a successful single-string SingleLookupResult.
func StringResult(v string) SingleLookupResult {
	return SingleLookupResult{HasValue: true, StringValue: v}
}

// StringSetResult builds a successful string-set SingleLookupResult.
func StringSetResult(v []string) SingleLookupResult {
	return SingleLookupResult{HasStringSet: true, StringSet: v}
}

// Uint32SetResult builds a successful uint32-set SingleLookupResult.
func Uint32SetResult(v []uint32) SingleLookupResult {
	return SingleLookupResult{HasUint32Set: true, Uint32Set: v}
}

// ErrorResult builds an error-tagged SingleLookupResult.
func ErrorResult(code int32, message string) SingleLookupResult {
	return SingleLookupResult{HasError: true, ErrorCode: code, ErrorMessage: message}
}

// PartitionArgument is one UDF argument: a set of tags plus an opaque
// JSON-encoded data payload, as received in the top-level client request
// (spec §6's GetValuesRequest.partitions[].arguments).
type PartitionArgument struct {
	Tags []string        `json:"tags"`
	Data json.RawMessage `json:"data"`
}

// Partition is one unit of UDF work within a top-level request.
type Partition struct {
	ID                 int32               `json:"id"`
	CompressionGroupID uint32              `json:"compressionGroupId"`
	Arguments          []PartitionArgument `json:"arguments"`
	Metadata           map[string]string   `json:"metadata,omitempty"`
}

// GetValuesRequest is the top-level client request (spec §6).
type GetValuesRequest struct {
	Metadata             map[string]string    `json:"metadata,omitempty"`
	Partitions           []Partition          `json:"partitions"`
	ConsentedDebugConfig ConsentedDebugConfig `json:"consentedDebugConfig,omitempty"`
}

// PartitionStatus carries a failed partition's error code/message.
type PartitionStatus struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// PartitionOutput is one partition's result within a compression group's
// JSON array content.
type PartitionOutput struct {
	ID           int32            `json:"id"`
	StringOutput string           `json:"stringOutput,omitempty"`
	Status       *PartitionStatus `json:"status,omitempty"`
}

// CompressionGroup is one group's assembled output (spec §4.8 step 4).
type CompressionGroup struct {
	CompressionGroupID uint32            `json:"compressionGroupId"`
	Content            []PartitionOutput `json:"-"`
	EncodedContent     json.RawMessage   `json:"content"`
}

// GetValuesResponse is the top-level client response. Exactly one of
// SinglePartition or CompressionGroups is populated, matching the
// single-partition legacy path vs. the general compression-group path
// (spec §4.8).
type GetValuesResponse struct {
	SinglePartition  *PartitionOutput   `json:"singlePartition,omitempty"`
	CompressionGroups []CompressionGroup `json:"compressionGroups,omitempty"`
}
