package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// maxElementLen is the largest payload a single header byte can declare.
const maxElementLen = int(lenMask)

// AppendValue appends the wire encoding of one non-tuple value to dst.
// Tuples exist only at the top level of a packet; use MarshalBroadcast for
// whole packets.
func AppendValue(dst []byte, v Value) ([]byte, error) {
	switch v.Kind {
	case KindBool:
		if v.Bool {
			return append(dst, tagTrue), nil
		}
		return append(dst, tagFalse), nil

	case KindInt:
		switch {
		case v.Int >= math.MinInt8 && v.Int <= math.MaxInt8:
			return append(dst, tagInt|1, byte(v.Int)), nil
		case v.Int >= math.MinInt16 && v.Int <= math.MaxInt16:
			dst = append(dst, tagInt|2)
			return binary.LittleEndian.AppendUint16(dst, uint16(v.Int)), nil
		case v.Int >= math.MinInt32 && v.Int <= math.MaxInt32:
			dst = append(dst, tagInt|4)
			return binary.LittleEndian.AppendUint32(dst, uint32(v.Int)), nil
		default:
			return nil, fmt.Errorf("int %d does not fit 32 bits", v.Int)
		}

	case KindFloat:
		dst = append(dst, tagFloat|4)
		return binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.Float)), nil

	case KindString:
		if len(v.Str) > maxElementLen {
			return nil, fmt.Errorf("string of %d bytes exceeds element limit %d", len(v.Str), maxElementLen)
		}
		dst = append(dst, tagStr|byte(len(v.Str)))
		return append(dst, v.Str...), nil

	case KindBytes:
		if len(v.Bytes) > maxElementLen {
			return nil, fmt.Errorf("byte string of %d bytes exceeds element limit %d", len(v.Bytes), maxElementLen)
		}
		dst = append(dst, tagBytes|byte(len(v.Bytes)))
		return append(dst, v.Bytes...), nil

	case KindList:
		var body []byte
		for _, item := range v.Items {
			var err error
			body, err = AppendValue(body, item)
			if err != nil {
				return nil, err
			}
		}
		if len(body) == 0 || len(body) > maxElementLen {
			return nil, fmt.Errorf("list body of %d bytes outside 1..%d", len(body), maxElementLen)
		}
		dst = append(dst, tagSingle|byte(len(body)))
		return append(dst, body...), nil

	case KindTuple:
		return nil, fmt.Errorf("tuple is only valid at the top level")

	default:
		return nil, fmt.Errorf("cannot encode kind %s", v.Kind)
	}
}

// MarshalBroadcast encodes a complete vendor element: company ID, channel,
// and the value. A tuple encodes as its members back-to-back; any other kind
// is prefixed with the single-value marker.
func MarshalBroadcast(channel uint8, v Value) ([]byte, error) {
	out := binary.LittleEndian.AppendUint16(nil, CompanyID)
	out = append(out, channel)

	if v.Kind == KindTuple {
		if len(v.Items) == 0 {
			return nil, fmt.Errorf("empty tuple")
		}
		for _, item := range v.Items {
			var err error
			out, err = AppendValue(out, item)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	out = append(out, tagSingle)
	return AppendValue(out, v)
}
