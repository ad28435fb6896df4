// Package kvpb hand-writes the gRPC transport layer for the internal
// shard-to-shard lookup RPC: a wire message pair (SecureLookupRequest /
// SecureLookupResponse, each carrying an opaque OHTTP-wrapped byte payload,
// the request also an out-of-band padding length), a
// custom encoding.Codec that marshals them with protowire, and a
// grpc.ServiceDesc built by hand instead of protoc-gen-go-grpc output (no
// .proto file or protoc run is available in this build; protowire is the
// stable, documented low-level API the protobuf-go module ships for
// exactly this kind of hand-rolled wire-compatible encoding).
package kvpb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldSecureLookupRequestOHTTP   = 1
	fieldSecureLookupRequestPadding = 2
	fieldSecureLookupResponseOHTTP  = 1
)

// SecureLookupRequest carries an OHTTP-encapsulated InternalLookupRequest
// between shard peers (spec §4.6). Padding carries, out-of-band from the
// encrypted OHTTPRequest blob, the number of zero-padding bytes the sender
// appended to the plaintext InternalLookupRequest before encrypting it —
// the receiver strips exactly this many trailing bytes off the decrypted
// plaintext before unmarshaling it, since a protobuf message can't
// self-describe its own padding (a trailing zero byte decodes as a tag
// with field number 0, which protowire rejects).
type SecureLookupRequest struct {
	OHTTPRequest []byte
	Padding      int32
}

// SecureLookupResponse carries an OHTTP-encapsulated InternalLookupResponse
// back to the caller.
type SecureLookupResponse struct {
	OHTTPResponse []byte
}

// Marshal encodes the message for wire transmission. Both message types
// implement Marshal/Unmarshal by hand, so the codec below calls them
// directly rather than going through reflection.
func (m *SecureLookupRequest) Marshal() ([]byte, error) {
	var out []byte
	out = protowire.AppendTag(out, fieldSecureLookupRequestOHTTP, protowire.BytesType)
	out = protowire.AppendBytes(out, m.OHTTPRequest)
	if m.Padding != 0 {
		out = protowire.AppendTag(out, fieldSecureLookupRequestPadding, protowire.VarintType)
		out = protowire.AppendVarint(out, uint64(m.Padding))
	}
	return out, nil
}

// Unmarshal decodes a wire-format SecureLookupRequest.
func (m *SecureLookupRequest) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("kvpb: invalid tag in SecureLookupRequest: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldSecureLookupRequestOHTTP && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("kvpb: invalid ohttp_request field: %w", protowire.ParseError(n))
			}
			m.OHTTPRequest = append([]byte(nil), v...)
			data = data[n:]
		case num == fieldSecureLookupRequestPadding && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("kvpb: invalid padding field: %w", protowire.ParseError(n))
			}
			m.Padding = int32(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("kvpb: invalid field in SecureLookupRequest: %w", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}

// Marshal encodes the message for wire transmission.
func (m *SecureLookupResponse) Marshal() ([]byte, error) {
	var out []byte
	out = protowire.AppendTag(out, fieldSecureLookupResponseOHTTP, protowire.BytesType)
	out = protowire.AppendBytes(out, m.OHTTPResponse)
	return out, nil
}

// Unmarshal decodes a wire-format SecureLookupResponse.
func (m *SecureLookupResponse) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("kvpb: invalid tag in SecureLookupResponse: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldSecureLookupResponseOHTTP && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("kvpb: invalid ohttp_response field: %w", protowire.ParseError(n))
			}
			m.OHTTPResponse = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("kvpb: invalid field in SecureLookupResponse: %w", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}

// wireMessage is the duck-typed contract the codec requires of any message
// it (de)serializes.
type wireMessage interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// codec implements encoding.Codec (and the grpc-internal baseCodec) for
// kvpb's hand-rolled messages, registered under the name "proto" so gRPC
// picks it for the content-subtype-less default path.
type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("kvpb: cannot marshal %T: does not implement wireMessage", v)
	}
	return m.Marshal()
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("kvpb: cannot unmarshal into %T: does not implement wireMessage", v)
	}
	return m.Unmarshal(data)
}

func (codec) Name() string { return "proto" }
