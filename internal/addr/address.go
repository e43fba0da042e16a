package addr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dosdebug/broker/internal/brokererr"
)

// Address is a segmented real-mode address. Segment and offset are
// each an unsigned 16-bit value; Linear is always kept in agreement
// with them: linear = (segment << 4) + offset.
type Address struct {
	Segment uint16
	Offset  uint16
	Linear  uint32
}

// FromSegOff builds an Address from a segment:offset pair.
func FromSegOff(segment, offset uint16) Address {
	return Address{
		Segment: segment,
		Offset:  offset,
		Linear:  (uint32(segment) << 4) + uint32(offset),
	}
}

// FromLinear builds an Address from a linear value, decomposing it
// into the canonical segment:offset pair per the spec invariant:
// segment = (linear >> 4) & 0xFFFF, offset = linear & 0xF.
func FromLinear(linear uint32) Address {
	return Address{
		Segment: uint16((linear >> 4) & 0xFFFF),
		Offset:  uint16(linear & 0xF),
		Linear:  linear,
	}
}

// String renders the address in "SSSS:OOOO" form.
func (a Address) String() string {
	return fmt.Sprintf("%04X:%04X", a.Segment, a.Offset)
}

// Parse accepts "SSSS:OOOO" hex form, a "0x…" hex linear literal, or a
// decimal linear literal, returning the canonical Address.
func Parse(literal string) (Address, error) {
	s := strings.TrimSpace(literal)
	if s == "" {
		return Address{}, brokererr.Argument("parse_address", "address literal cannot be empty")
	}

	if idx := strings.Index(s, ":"); idx >= 0 {
		segStr, offStr := s[:idx], s[idx+1:]
		seg, err := strconv.ParseUint(segStr, 16, 16)
		if err != nil {
			return Address{}, brokererr.Argument("parse_address", fmt.Sprintf("bad segment %q: %v", segStr, err))
		}
		off, err := strconv.ParseUint(offStr, 16, 16)
		if err != nil {
			return Address{}, brokererr.Argument("parse_address", fmt.Sprintf("bad offset %q: %v", offStr, err))
		}
		return FromSegOff(uint16(seg), uint16(off)), nil
	}

	base := 10
	trimmed := s
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		base = 16
		trimmed = s[2:]
	}
	linear, err := strconv.ParseUint(trimmed, base, 32)
	if err != nil {
		return Address{}, brokererr.Argument("parse_address", fmt.Sprintf("bad address literal %q: %v", literal, err))
	}
	return FromLinear(uint32(linear)), nil
}
