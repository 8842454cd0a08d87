// Package protocol implements the Pybricks BLE broadcast encoding: locating
// the vendor element inside an advertising payload and decoding the typed
// value it carries.
//
// Wire layout inside the manufacturer-specific AD element:
//
//	[company ID, uint16 LE] [channel, uint8] [encoded value...]
//
// Each encoded value starts with a header byte (type << 5 | length):
//
//	0 SINGLE  len 0: marker, exactly one value follows (top level only)
//	          len>0: nested container of len bytes of back-to-back values
//	1 TRUE    no data
//	2 FALSE   no data
//	3 INT     len 1/2/4, signed little-endian
//	4 FLOAT   len 4, IEEE 754 little-endian
//	5 STR     len bytes UTF-8
//	6 BYTES   len bytes raw
//
// Without a SINGLE marker the top-level data is a back-to-back sequence of
// values and decodes as a tuple.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// CompanyID is the Bluetooth SIG company identifier carried by every
// broadcast packet; it is how broadcast traffic is told apart from every
// other BLE device in range.
const CompanyID uint16 = 0x0397

// AD element types consumed here. Unknown element types are skipped via
// their length prefix, keeping the walk forward-compatible.
const (
	adTypeShortenedName    = 0x08
	adTypeCompleteName     = 0x09
	adTypeManufacturerData = 0xFF
)

const (
	typeMask = 0b1110_0000
	lenMask  = 0b0001_1111

	tagSingle = 0 << 5
	tagTrue   = 1 << 5
	tagFalse  = 2 << 5
	tagInt    = 3 << 5
	tagFloat  = 4 << 5
	tagStr    = 5 << 5
	tagBytes  = 6 << 5
)

// maxDepth bounds container recursion. Every nesting level costs at least
// one header byte, so the 31-byte advertising unit can never reach it; the
// explicit bound keeps a corrupt length field from recursing past it anyway.
const maxDepth = 31

var (
	// ErrNotBroadcast classifies a payload with no vendor element: foreign
	// traffic, discarded without error accounting.
	ErrNotBroadcast = errors.New("not a broadcast packet")

	// ErrMalformed classifies a vendor element that fails to decode:
	// truncated reads, length mismatches, unknown tags, trailing bytes.
	// Discards exactly one packet, never more.
	ErrMalformed = errors.New("malformed broadcast packet")
)

// Broadcast is one decoded vendor packet.
type Broadcast struct {
	Channel uint8
	Value   Value
}

// Fields is everything one walk over an advertising payload can yield. A
// payload is never walked twice for the same information: the dispatch loop
// scans once and consumes both the name fragment and the vendor element.
type Fields struct {
	Name    string // local name fragment, valid when HasName
	HasName bool
	Vendor  []byte // manufacturer element data including company ID, nil if absent
}

// ScanPayload walks the AD elements of payload in a single pass, picking up
// the first local-name element and the first manufacturer element carrying
// the broadcast company ID. Truncated or zero-length elements end the walk.
func ScanPayload(payload []byte) Fields {
	var f Fields
	i := 0
	for i < len(payload) {
		length := int(payload[i])
		if length == 0 {
			break // end of elements
		}
		i++
		if i+length > len(payload) {
			break // truncated element
		}
		switch payload[i] {
		case adTypeShortenedName, adTypeCompleteName:
			if !f.HasName {
				name := payload[i+1 : i+length]
				if utf8.Valid(name) {
					f.Name = string(name)
					f.HasName = true
				}
			}
		case adTypeManufacturerData:
			if f.Vendor == nil && length >= 3 &&
				payload[i+1] == byte(CompanyID&0xFF) && payload[i+2] == byte(CompanyID>>8) {
				f.Vendor = payload[i+1 : i+length]
			}
		}
		i += length
	}
	return f
}

// ContainsCompanyID reports whether the broadcast company ID byte pair
// appears anywhere in payload. It is the cheap pre-filter run on the radio
// delivery goroutine before a frame is queued; it allocates nothing.
func ContainsCompanyID(payload []byte) bool {
	for i := 0; i+1 < len(payload); i++ {
		if payload[i] == byte(CompanyID&0xFF) && payload[i+1] == byte(CompanyID>>8) {
			return true
		}
	}
	return false
}

// ParseBroadcast decodes the vendor element scanned out of a payload.
// Returns ErrNotBroadcast when no vendor element was present or the element
// is too short to be a broadcast, and a wrapped ErrMalformed when the
// element fails to decode.
func ParseBroadcast(f Fields) (Broadcast, error) {
	if f.Vendor == nil {
		return Broadcast{}, ErrNotBroadcast
	}
	// Company ID (2) + channel (1) + at least one header byte. Shorter
	// elements carrying the same company ID are some other product's
	// traffic, not a damaged broadcast.
	if len(f.Vendor) < 4 {
		return Broadcast{}, ErrNotBroadcast
	}

	// The channel is a single unsigned byte, range 0-255. Reading it as a
	// 16-bit quantity would bleed into the first value header and corrupt
	// every channel >= 256 reading.
	channel := f.Vendor[2]

	value, err := decodeTop(f.Vendor[3:])
	if err != nil {
		return Broadcast{}, err
	}
	return Broadcast{Channel: channel, Value: value}, nil
}

// ParsePayload is ScanPayload followed by ParseBroadcast, for callers that
// do not need the name fragment.
func ParsePayload(payload []byte) (Broadcast, error) {
	return ParseBroadcast(ScanPayload(payload))
}

// decodeTop decodes the complete value region of a vendor element. The
// single-value case is handled iteratively: marker bytes are consumed in a
// loop and only genuine nested containers recurse, so a flat packet costs no
// call-stack depth.
func decodeTop(data []byte) (Value, error) {
	pos := 0
	single := false
	for pos < len(data) && data[pos] == tagSingle {
		single = true
		pos++
	}

	if single {
		if pos == len(data) {
			return Value{}, fmt.Errorf("%w: marker without value", ErrMalformed)
		}
		v, next, err := decodeValue(data, pos, 0)
		if err != nil {
			return Value{}, err
		}
		if next != len(data) {
			return Value{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(data)-next)
		}
		return v, nil
	}

	// No marker: a back-to-back sequence of values, decoded as a tuple.
	var items []Value
	for pos < len(data) {
		v, next, err := decodeValue(data, pos, 0)
		if err != nil {
			return Value{}, err
		}
		items = append(items, v)
		pos = next
	}
	return Tuple(items...), nil
}

// decodeValue decodes one encoded value at pos and returns it with the
// position of the next unread byte.
func decodeValue(data []byte, pos, depth int) (Value, int, error) {
	if depth > maxDepth {
		return Value{}, 0, fmt.Errorf("%w: nesting too deep", ErrMalformed)
	}
	if pos >= len(data) {
		return Value{}, 0, fmt.Errorf("%w: truncated header", ErrMalformed)
	}
	header := data[pos]
	typ := header & typeMask
	length := int(header & lenMask)
	pos++

	end := pos + length
	if end > len(data) {
		return Value{}, 0, fmt.Errorf("%w: %s payload truncated", ErrMalformed, tagName(typ))
	}

	switch typ {
	case tagSingle:
		if length == 0 {
			// A bare marker is only meaningful at the top level.
			return Value{}, 0, fmt.Errorf("%w: nested marker", ErrMalformed)
		}
		var items []Value
		for pos < end {
			v, next, err := decodeValue(data, pos, depth+1)
			if err != nil {
				return Value{}, 0, err
			}
			items = append(items, v)
			pos = next
		}
		if pos != end {
			return Value{}, 0, fmt.Errorf("%w: container length mismatch", ErrMalformed)
		}
		return List(items...), end, nil

	case tagTrue:
		if length != 0 {
			return Value{}, 0, fmt.Errorf("%w: bool with length %d", ErrMalformed, length)
		}
		return Bool(true), pos, nil

	case tagFalse:
		if length != 0 {
			return Value{}, 0, fmt.Errorf("%w: bool with length %d", ErrMalformed, length)
		}
		return Bool(false), pos, nil

	case tagInt:
		switch length {
		case 1:
			return Int(int64(int8(data[pos]))), end, nil
		case 2:
			return Int(int64(int16(binary.LittleEndian.Uint16(data[pos:])))), end, nil
		case 4:
			return Int(int64(int32(binary.LittleEndian.Uint32(data[pos:])))), end, nil
		default:
			return Value{}, 0, fmt.Errorf("%w: int width %d", ErrMalformed, length)
		}

	case tagFloat:
		if length != 4 {
			return Value{}, 0, fmt.Errorf("%w: float width %d", ErrMalformed, length)
		}
		bits := binary.LittleEndian.Uint32(data[pos:])
		return Float(math.Float32frombits(bits)), end, nil

	case tagStr:
		s := data[pos:end]
		if !utf8.Valid(s) {
			return Value{}, 0, fmt.Errorf("%w: string is not UTF-8", ErrMalformed)
		}
		return String(string(s)), end, nil

	case tagBytes:
		b := make([]byte, length)
		copy(b, data[pos:end])
		return Bytes(b), end, nil

	default:
		return Value{}, 0, fmt.Errorf("%w: unknown tag 0x%02X", ErrMalformed, header)
	}
}

func tagName(typ byte) string {
	switch typ {
	case tagSingle:
		return "container"
	case tagTrue, tagFalse:
		return "bool"
	case tagInt:
		return "int"
	case tagFloat:
		return "float"
	case tagStr:
		return "string"
	case tagBytes:
		return "bytes"
	default:
		return "unknown"
	}
}
