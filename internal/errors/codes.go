// Package errors defines the stable error taxonomy surfaced by the lookup
// engine and request handler, per-key/per-partition statuses, and request
// level failures alike.
package errors

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode is a stable, metrics-friendly error kind.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = 0

	// Client errors.
	ErrCodeInvalidArgument ErrorCode = 1000
	ErrCodeEmptyQuery      ErrorCode = 1001
	ErrCodeNoPartitions    ErrorCode = 1002

	// Per-key / per-partition errors. These are never request-level on
	// their own.
	ErrCodeNotFound ErrorCode = 1100

	// Server errors.
	ErrCodeInternal             ErrorCode = 2000
	ErrCodeLookupClientMissing  ErrorCode = 2001
	ErrCodeShardFailure         ErrorCode = 2002
	ErrCodeUDFExecution         ErrorCode = 2003
	ErrCodeEncryptionFailed     ErrorCode = 2004
	ErrCodeDecryptionFailed     ErrorCode = 2005
	ErrCodeDeserializationFailed ErrorCode = 2006
	ErrCodeUnimplemented        ErrorCode = 2007
)

// LookupError is a structured error with a stable code and optional cause.
type LookupError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *LookupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *LookupError) Unwrap() error { return e.Cause }

// ToGRPCStatus maps a LookupError onto a gRPC status, per spec §7's
// surfacing table.
func (e *LookupError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

func (e *LookupError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument, ErrCodeEmptyQuery, ErrCodeNoPartitions:
		return codes.InvalidArgument
	case ErrCodeNotFound:
		return codes.NotFound
	case ErrCodeUnimplemented:
		return codes.Unimplemented
	default:
		return codes.Internal
	}
}

// NewLookupError builds a LookupError.
func NewLookupError(code ErrorCode, message string, cause error) *LookupError {
	return &LookupError{Code: code, Message: message, Details: map[string]interface{}{}, Cause: cause}
}

// WithDetail attaches a key/value to the error for structured logging.
func (e *LookupError) WithDetail(key string, value interface{}) *LookupError {
	e.Details[key] = value
	return e
}

// Convenience constructors matching spec §7's kinds.

func InvalidArgument(message string, cause error) *LookupError {
	return NewLookupError(ErrCodeInvalidArgument, message, cause)
}

func EmptyQuery() *LookupError {
	return NewLookupError(ErrCodeEmptyQuery, "query text is empty", nil)
}

func NoPartitions() *LookupError {
	return NewLookupError(ErrCodeNoPartitions, "no partition", nil)
}

func NotFound(key string) *LookupError {
	return NewLookupError(ErrCodeNotFound, fmt.Sprintf("Key not found: %s", key), nil).WithDetail("key", key)
}

func LookupClientMissing(shardNum int) *LookupError {
	return NewLookupError(ErrCodeLookupClientMissing, "lookup client unavailable", nil).
		WithDetail("shard_num", shardNum)
}

func ShardFailure(cause error) *LookupError {
	return NewLookupError(ErrCodeShardFailure, "Data lookup failed", cause)
}

func UDFExecution(partitionID int32, cause error) *LookupError {
	return NewLookupError(ErrCodeUDFExecution, "udf execution failed", cause).
		WithDetail("partition_id", partitionID)
}

func EncryptionFailed(cause error) *LookupError {
	return NewLookupError(ErrCodeEncryptionFailed, "ohttp encryption failed", cause)
}

func DecryptionFailed(cause error) *LookupError {
	return NewLookupError(ErrCodeDecryptionFailed, "ohttp decryption failed", cause)
}

func DeserializationFailed(cause error) *LookupError {
	return NewLookupError(ErrCodeDeserializationFailed, "failed to deserialize response", cause)
}

func Unimplemented(message string) *LookupError {
	return NewLookupError(ErrCodeUnimplemented, message, nil)
}

// IsLookupError reports whether err is a *LookupError.
func IsLookupError(err error) bool {
	_, ok := err.(*LookupError)
	return ok
}

// Code extracts the ErrorCode from err, defaulting to Internal.
func Code(err error) ErrorCode {
	if le, ok := err.(*LookupError); ok {
		return le.Code
	}
	return ErrCodeInternal
}
