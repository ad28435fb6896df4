// Package wire implements the canonical, length-prefixed binary encoding
// spec §6 requires for InternalLookupRequest/InternalLookupResponse fan-out
// payloads. It is hand-written against protobuf's low-level wire primitives
// (google.golang.org/protobuf/encoding/protowire) rather than generated by
// protoc — see DESIGN.md for why — but produces genuine protobuf
// wire-compatible bytes: field numbers and types below are a fixed,
// documented contract, not an implementation detail.
package wire

import (
	"fmt"

	"github.com/bidscape/kvshard/internal/model"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers for InternalLookupRequest.
const (
	fieldReqKeys                 protowire.Number = 1
	fieldReqLookupSets           protowire.Number = 2
	fieldReqLogContext           protowire.Number = 3
	fieldReqConsentedDebugConfig protowire.Number = 4
)

// Field numbers for LogContext.
const (
	fieldLogGenerationID protowire.Number = 1
	fieldLogRequestID    protowire.Number = 2
)

// Field numbers for ConsentedDebugConfig.
const (
	fieldDebugIsConsented protowire.Number = 1
	fieldDebugToken       protowire.Number = 2
)

// Field numbers for InternalLookupResponse / its map entries.
const (
	fieldRespKVPairs protowire.Number = 1
	fieldEntryKey    protowire.Number = 1
	fieldEntryValue  protowire.Number = 2
)

// Field numbers for SingleLookupResult.
const (
	fieldResultStringValue  protowire.Number = 1
	fieldResultStringSet    protowire.Number = 2
	fieldResultUint32Set    protowire.Number = 3
	fieldResultIsStringSet  protowire.Number = 4
	fieldResultIsUint32Set  protowire.Number = 5
	fieldResultErrorCode    protowire.Number = 10
	fieldResultErrorMessage protowire.Number = 11
)

// MarshalInternalLookupRequest encodes req as canonical, length-prefixed
// bytes.
func MarshalInternalLookupRequest(req *model.InternalLookupRequest) []byte {
	var b []byte
	for _, k := range req.Keys {
		b = protowire.AppendTag(b, fieldReqKeys, protowire.BytesType)
		b = protowire.AppendString(b, k)
	}
	if req.LookupSets {
		b = protowire.AppendTag(b, fieldReqLookupSets, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if req.LogContext.GenerationID != "" || req.LogContext.RequestID != "" {
		b = protowire.AppendTag(b, fieldReqLogContext, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalLogContext(req.LogContext))
	}
	if req.ConsentedDebugConfig.IsConsented || req.ConsentedDebugConfig.Token != "" {
		b = protowire.AppendTag(b, fieldReqConsentedDebugConfig, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalConsentedDebugConfig(req.ConsentedDebugConfig))
	}
	return b
}

func marshalLogContext(lc model.LogContext) []byte {
	var b []byte
	if lc.GenerationID != "" {
		b = protowire.AppendTag(b, fieldLogGenerationID, protowire.BytesType)
		b = protowire.AppendString(b, lc.GenerationID)
	}
	if lc.RequestID != "" {
		b = protowire.AppendTag(b, fieldLogRequestID, protowire.BytesType)
		b = protowire.AppendString(b, lc.RequestID)
	}
	return b
}

func marshalConsentedDebugConfig(c model.ConsentedDebugConfig) []byte {
	var b []byte
	if c.IsConsented {
		b = protowire.AppendTag(b, fieldDebugIsConsented, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if c.Token != "" {
		b = protowire.AppendTag(b, fieldDebugToken, protowire.BytesType)
		b = protowire.AppendString(b, c.Token)
	}
	return b
}

// UnmarshalInternalLookupRequest decodes bytes produced by
// MarshalInternalLookupRequest.
func UnmarshalInternalLookupRequest(data []byte) (*model.InternalLookupRequest, error) {
	req := &model.InternalLookupRequest{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("wire: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == fieldReqKeys && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("wire: bad keys field")
			}
			req.Keys = append(req.Keys, v)
			data = data[n:]
		case num == fieldReqLookupSets && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("wire: bad lookup_sets field")
			}
			req.LookupSets = v != 0
			data = data[n:]
		case num == fieldReqLogContext && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("wire: bad log_context field")
			}
			lc, err := unmarshalLogContext(v)
			if err != nil {
				return nil, err
			}
			req.LogContext = lc
			data = data[n:]
		case num == fieldReqConsentedDebugConfig && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("wire: bad consented_debug_config field")
			}
			cfg, err := unmarshalConsentedDebugConfig(v)
			if err != nil {
				return nil, err
			}
			req.ConsentedDebugConfig = cfg
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("wire: bad unknown field")
			}
			data = data[n:]
		}
	}
	return req, nil
}

func unmarshalLogContext(data []byte) (model.LogContext, error) {
	var lc model.LogContext
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return lc, fmt.Errorf("wire: bad log_context tag")
		}
		data = data[n:]
		switch {
		case num == fieldLogGenerationID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return lc, fmt.Errorf("wire: bad generation_id")
			}
			lc.GenerationID = v
			data = data[n:]
		case num == fieldLogRequestID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return lc, fmt.Errorf("wire: bad request_id")
			}
			lc.RequestID = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return lc, fmt.Errorf("wire: bad unknown field")
			}
			data = data[n:]
		}
	}
	return lc, nil
}

func unmarshalConsentedDebugConfig(data []byte) (model.ConsentedDebugConfig, error) {
	var c model.ConsentedDebugConfig
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return c, fmt.Errorf("wire: bad consented_debug_config tag")
		}
		data = data[n:]
		switch {
		case num == fieldDebugIsConsented && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return c, fmt.Errorf("wire: bad is_consented")
			}
			c.IsConsented = v != 0
			data = data[n:]
		case num == fieldDebugToken && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return c, fmt.Errorf("wire: bad token")
			}
			c.Token = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return c, fmt.Errorf("wire: bad unknown field")
			}
			data = data[n:]
		}
	}
	return c, nil
}

// MarshalInternalLookupResponse encodes resp as canonical bytes.
func MarshalInternalLookupResponse(resp *model.InternalLookupResponse) []byte {
	var b []byte
	for k, v := range resp.KVPairs {
		entry := marshalKVEntry(k, v)
		b = protowire.AppendTag(b, fieldRespKVPairs, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

func marshalKVEntry(key string, result model.SingleLookupResult) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldEntryKey, protowire.BytesType)
	b = protowire.AppendString(b, key)
	b = protowire.AppendTag(b, fieldEntryValue, protowire.BytesType)
	b = protowire.AppendBytes(b, marshalSingleLookupResult(result))
	return b
}

func marshalSingleLookupResult(r model.SingleLookupResult) []byte {
	var b []byte
	if r.HasValue {
		b = protowire.AppendTag(b, fieldResultStringValue, protowire.BytesType)
		b = protowire.AppendString(b, r.StringValue)
	}
	if r.HasStringSet {
		b = protowire.AppendTag(b, fieldResultIsStringSet, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
		for _, v := range r.StringSet {
			b = protowire.AppendTag(b, fieldResultStringSet, protowire.BytesType)
			b = protowire.AppendString(b, v)
		}
	}
	if r.HasUint32Set {
		b = protowire.AppendTag(b, fieldResultIsUint32Set, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
		for _, v := range r.Uint32Set {
			b = protowire.AppendTag(b, fieldResultUint32Set, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(v))
		}
	}
	if r.HasError {
		b = protowire.AppendTag(b, fieldResultErrorCode, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(r.ErrorCode)))
		b = protowire.AppendTag(b, fieldResultErrorMessage, protowire.BytesType)
		b = protowire.AppendString(b, r.ErrorMessage)
	}
	return b
}

// UnmarshalInternalLookupResponse decodes bytes produced by
// MarshalInternalLookupResponse.
func UnmarshalInternalLookupResponse(data []byte) (*model.InternalLookupResponse, error) {
	resp := &model.InternalLookupResponse{KVPairs: make(map[string]model.SingleLookupResult)}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("wire: bad tag")
		}
		data = data[n:]
		switch {
		case num == fieldRespKVPairs && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("wire: bad kv_pairs entry")
			}
			key, result, err := unmarshalKVEntry(v)
			if err != nil {
				return nil, err
			}
			resp.KVPairs[key] = result
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("wire: bad unknown field")
			}
			data = data[n:]
		}
	}
	return resp, nil
}

func unmarshalKVEntry(data []byte) (string, model.SingleLookupResult, error) {
	var key string
	var result model.SingleLookupResult
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", result, fmt.Errorf("wire: bad kv entry tag")
		}
		data = data[n:]
		switch {
		case num == fieldEntryKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return "", result, fmt.Errorf("wire: bad entry key")
			}
			key = v
			data = data[n:]
		case num == fieldEntryValue && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return "", result, fmt.Errorf("wire: bad entry value")
			}
			r, err := unmarshalSingleLookupResult(v)
			if err != nil {
				return "", result, err
			}
			result = r
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return "", result, fmt.Errorf("wire: bad unknown field")
			}
			data = data[n:]
		}
	}
	return key, result, nil
}

func unmarshalSingleLookupResult(data []byte) (model.SingleLookupResult, error) {
	var r model.SingleLookupResult
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return r, fmt.Errorf("wire: bad result tag")
		}
		data = data[n:]
		switch {
		case num == fieldResultStringValue && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return r, fmt.Errorf("wire: bad string_value")
			}
			r.HasValue = true
			r.StringValue = v
			data = data[n:]
		case num == fieldResultIsStringSet && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return r, fmt.Errorf("wire: bad is_string_set")
			}
			r.HasStringSet = v != 0
			data = data[n:]
		case num == fieldResultIsUint32Set && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return r, fmt.Errorf("wire: bad is_uint32_set")
			}
			r.HasUint32Set = v != 0
			data = data[n:]
		case num == fieldResultStringSet && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return r, fmt.Errorf("wire: bad string_set entry")
			}
			r.StringSet = append(r.StringSet, v)
			data = data[n:]
		case num == fieldResultUint32Set && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return r, fmt.Errorf("wire: bad uint32_set entry")
			}
			r.Uint32Set = append(r.Uint32Set, uint32(v))
			data = data[n:]
		case num == fieldResultErrorCode && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return r, fmt.Errorf("wire: bad error_code")
			}
			r.HasError = true
			r.ErrorCode = int32(v)
			data = data[n:]
		case num == fieldResultErrorMessage && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return r, fmt.Errorf("wire: bad error_message")
			}
			r.ErrorMessage = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return r, fmt.Errorf("wire: bad unknown field")
			}
			data = data[n:]
		}
	}
	return r, nil
}

// Pad appends n zero bytes to data, per spec §4.7's padding step.
func Pad(data []byte, n int) []byte {
	if n <= 0 {
		return data
	}
	out := make([]byte, len(data)+n)
	copy(out, data)
	return out
}

// Unpad strips the trailing n bytes Pad appended, given out-of-band by the
// sender (spec §4.5: padding travels in a field the peer can use to
// truncate it, since trailing zero bytes don't parse as a valid protobuf
// message on their own).
func Unpad(data []byte, n int) ([]byte, error) {
	if n <= 0 {
		return data, nil
	}
	if n > len(data) {
		return nil, fmt.Errorf("wire: padding length %d exceeds payload length %d", n, len(data))
	}
	return data[:len(data)-n], nil
}
