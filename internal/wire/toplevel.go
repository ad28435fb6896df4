// Top-level request/response wire encoding, for the protobuf content-type
// path of GetValues/ObliviousGetValues (spec §4.8, §6). Same hand-written
// protowire technique as the InternalLookupRequest/Response pair in wire.go, but
// for the client-facing shapes.
package wire

import (
	"fmt"

	"github.com/bidscape/kvshard/internal/model"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers for GetValuesRequest.
const (
	fieldGVReqMetadata   protowire.Number = 1
	fieldGVReqPartitions protowire.Number = 2
	fieldGVReqDebugCfg   protowire.Number = 3
)

// Field numbers for Partition.
const (
	fieldPartitionID          protowire.Number = 1
	fieldPartitionCompGroupID protowire.Number = 2
	fieldPartitionArguments   protowire.Number = 3
	fieldPartitionMetadata    protowire.Number = 4
)

// Field numbers for PartitionArgument.
const (
	fieldArgTags protowire.Number = 1
	fieldArgData protowire.Number = 2
)

// Field numbers for a string/string map entry, shared by every
// map<string,string> field in this file.
const (
	fieldMapKey   protowire.Number = 1
	fieldMapValue protowire.Number = 2
)

// Field numbers for GetValuesResponse.
const (
	fieldGVRespSinglePartition   protowire.Number = 1
	fieldGVRespCompressionGroups protowire.Number = 2
)

// Field numbers for PartitionOutput.
const (
	fieldOutputID           protowire.Number = 1
	fieldOutputStringOutput protowire.Number = 2
	fieldOutputStatus       protowire.Number = 3
)

// Field numbers for PartitionStatus.
const (
	fieldStatusCode    protowire.Number = 1
	fieldStatusMessage protowire.Number = 2
)

// Field numbers for CompressionGroup.
const (
	fieldGroupID      protowire.Number = 1
	fieldGroupContent protowire.Number = 2
)

// MarshalGetValuesRequest encodes req as canonical, length-prefixed bytes.
func MarshalGetValuesRequest(req *model.GetValuesRequest) []byte {
	var b []byte
	for k, v := range req.Metadata {
		b = protowire.AppendTag(b, fieldGVReqMetadata, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalStringMapEntry(k, v))
	}
	for _, p := range req.Partitions {
		b = protowire.AppendTag(b, fieldGVReqPartitions, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalPartition(p))
	}
	if req.ConsentedDebugConfig.IsConsented || req.ConsentedDebugConfig.Token != "" {
		b = protowire.AppendTag(b, fieldGVReqDebugCfg, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalConsentedDebugConfig(req.ConsentedDebugConfig))
	}
	return b
}

func marshalStringMapEntry(k, v string) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldMapKey, protowire.BytesType)
	b = protowire.AppendString(b, k)
	b = protowire.AppendTag(b, fieldMapValue, protowire.BytesType)
	b = protowire.AppendString(b, v)
	return b
}

func marshalPartition(p model.Partition) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldPartitionID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(p.ID)))
	if p.CompressionGroupID != 0 {
		b = protowire.AppendTag(b, fieldPartitionCompGroupID, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.CompressionGroupID))
	}
	for _, a := range p.Arguments {
		b = protowire.AppendTag(b, fieldPartitionArguments, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalPartitionArgument(a))
	}
	for k, v := range p.Metadata {
		b = protowire.AppendTag(b, fieldPartitionMetadata, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalStringMapEntry(k, v))
	}
	return b
}

func marshalPartitionArgument(a model.PartitionArgument) []byte {
	var b []byte
	for _, t := range a.Tags {
		b = protowire.AppendTag(b, fieldArgTags, protowire.BytesType)
		b = protowire.AppendString(b, t)
	}
	if len(a.Data) > 0 {
		b = protowire.AppendTag(b, fieldArgData, protowire.BytesType)
		b = protowire.AppendBytes(b, a.Data)
	}
	return b
}

// UnmarshalGetValuesRequest decodes bytes produced by
// MarshalGetValuesRequest.
func UnmarshalGetValuesRequest(data []byte) (*model.GetValuesRequest, error) {
	req := &model.GetValuesRequest{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("wire: bad tag")
		}
		data = data[n:]
		switch {
		case num == fieldGVReqMetadata && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("wire: bad metadata entry")
			}
			k, val, err := unmarshalStringMapEntry(v)
			if err != nil {
				return nil, err
			}
			if req.Metadata == nil {
				req.Metadata = make(map[string]string)
			}
			req.Metadata[k] = val
			data = data[n:]
		case num == fieldGVReqPartitions && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("wire: bad partition entry")
			}
			p, err := unmarshalPartition(v)
			if err != nil {
				return nil, err
			}
			req.Partitions = append(req.Partitions, p)
			data = data[n:]
		case num == fieldGVReqDebugCfg && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("wire: bad consented_debug_config")
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

func unmarshalStringMapEntry(data []byte) (key, value string, err error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", "", fmt.Errorf("wire: bad map entry tag")
		}
		data = data[n:]
		switch {
		case num == fieldMapKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return "", "", fmt.Errorf("wire: bad map key")
			}
			key = v
			data = data[n:]
		case num == fieldMapValue && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return "", "", fmt.Errorf("wire: bad map value")
			}
			value = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return "", "", fmt.Errorf("wire: bad unknown field")
			}
			data = data[n:]
		}
	}
	return key, value, nil
}

func unmarshalPartition(data []byte) (model.Partition, error) {
	var p model.Partition
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return p, fmt.Errorf("wire: bad partition tag")
		}
		data = data[n:]
		switch {
		case num == fieldPartitionID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return p, fmt.Errorf("wire: bad partition id")
			}
			p.ID = int32(v)
			data = data[n:]
		case num == fieldPartitionCompGroupID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return p, fmt.Errorf("wire: bad compression_group_id")
			}
			p.CompressionGroupID = uint32(v)
			data = data[n:]
		case num == fieldPartitionArguments && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return p, fmt.Errorf("wire: bad partition argument")
			}
			a, err := unmarshalPartitionArgument(v)
			if err != nil {
				return p, err
			}
			p.Arguments = append(p.Arguments, a)
			data = data[n:]
		case num == fieldPartitionMetadata && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return p, fmt.Errorf("wire: bad partition metadata")
			}
			k, val, err := unmarshalStringMapEntry(v)
			if err != nil {
				return p, err
			}
			if p.Metadata == nil {
				p.Metadata = make(map[string]string)
			}
			p.Metadata[k] = val
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return p, fmt.Errorf("wire: bad unknown field")
			}
			data = data[n:]
		}
	}
	return p, nil
}

func unmarshalPartitionArgument(data []byte) (model.PartitionArgument, error) {
	var a model.PartitionArgument
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return a, fmt.Errorf("wire: bad argument tag")
		}
		data = data[n:]
		switch {
		case num == fieldArgTags && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return a, fmt.Errorf("wire: bad argument tag value")
			}
			a.Tags = append(a.Tags, v)
			data = data[n:]
		case num == fieldArgData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return a, fmt.Errorf("wire: bad argument data")
			}
			a.Data = append([]byte{}, v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return a, fmt.Errorf("wire: bad unknown field")
			}
			data = data[n:]
		}
	}
	return a, nil
}

// MarshalGetValuesResponse encodes resp as canonical bytes.
func MarshalGetValuesResponse(resp *model.GetValuesResponse) []byte {
	var b []byte
	if resp.SinglePartition != nil {
		b = protowire.AppendTag(b, fieldGVRespSinglePartition, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalPartitionOutput(*resp.SinglePartition))
	}
	for _, g := range resp.CompressionGroups {
		b = protowire.AppendTag(b, fieldGVRespCompressionGroups, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalCompressionGroup(g))
	}
	return b
}

func marshalPartitionOutput(o model.PartitionOutput) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldOutputID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(o.ID)))
	if o.Status != nil {
		b = protowire.AppendTag(b, fieldOutputStatus, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalPartitionStatus(*o.Status))
	} else {
		b = protowire.AppendTag(b, fieldOutputStringOutput, protowire.BytesType)
		b = protowire.AppendString(b, o.StringOutput)
	}
	return b
}

func marshalPartitionStatus(s model.PartitionStatus) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldStatusCode, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(s.Code)))
	b = protowire.AppendTag(b, fieldStatusMessage, protowire.BytesType)
	b = protowire.AppendString(b, s.Message)
	return b
}

func marshalCompressionGroup(g model.CompressionGroup) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldGroupID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(g.CompressionGroupID))
	b = protowire.AppendTag(b, fieldGroupContent, protowire.BytesType)
	b = protowire.AppendBytes(b, g.EncodedContent)
	return b
}

// UnmarshalGetValuesResponse decodes bytes produced by
// MarshalGetValuesResponse.
func UnmarshalGetValuesResponse(data []byte) (*model.GetValuesResponse, error) {
	resp := &model.GetValuesResponse{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("wire: bad tag")
		}
		data = data[n:]
		switch {
		case num == fieldGVRespSinglePartition && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("wire: bad single_partition")
			}
			o, err := unmarshalPartitionOutput(v)
			if err != nil {
				return nil, err
			}
			resp.SinglePartition = &o
			data = data[n:]
		case num == fieldGVRespCompressionGroups && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("wire: bad compression_group")
			}
			g, err := unmarshalCompressionGroup(v)
			if err != nil {
				return nil, err
			}
			resp.CompressionGroups = append(resp.CompressionGroups, g)
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

func unmarshalPartitionOutput(data []byte) (model.PartitionOutput, error) {
	var o model.PartitionOutput
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return o, fmt.Errorf("wire: bad output tag")
		}
		data = data[n:]
		switch {
		case num == fieldOutputID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return o, fmt.Errorf("wire: bad output id")
			}
			o.ID = int32(v)
			data = data[n:]
		case num == fieldOutputStringOutput && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return o, fmt.Errorf("wire: bad string_output")
			}
			o.StringOutput = v
			data = data[n:]
		case num == fieldOutputStatus && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return o, fmt.Errorf("wire: bad status")
			}
			s, err := unmarshalPartitionStatus(v)
			if err != nil {
				return o, err
			}
			o.Status = &s
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return o, fmt.Errorf("wire: bad unknown field")
			}
			data = data[n:]
		}
	}
	return o, nil
}

func unmarshalPartitionStatus(data []byte) (model.PartitionStatus, error) {
	var s model.PartitionStatus
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return s, fmt.Errorf("wire: bad status tag")
		}
		data = data[n:]
		switch {
		case num == fieldStatusCode && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return s, fmt.Errorf("wire: bad status code")
			}
			s.Code = int32(v)
			data = data[n:]
		case num == fieldStatusMessage && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return s, fmt.Errorf("wire: bad status message")
			}
			s.Message = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return s, fmt.Errorf("wire: bad unknown field")
			}
			data = data[n:]
		}
	}
	return s, nil
}

func unmarshalCompressionGroup(data []byte) (model.CompressionGroup, error) {
	var g model.CompressionGroup
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return g, fmt.Errorf("wire: bad group tag")
		}
		data = data[n:]
		switch {
		case num == fieldGroupID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return g, fmt.Errorf("wire: bad group id")
			}
			g.CompressionGroupID = uint32(v)
			data = data[n:]
		case num == fieldGroupContent && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return g, fmt.Errorf("wire: bad group content")
			}
			g.EncodedContent = append([]byte{}, v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return g, fmt.Errorf("wire: bad unknown field")
			}
			data = data[n:]
		}
	}
	return g, nil
}
