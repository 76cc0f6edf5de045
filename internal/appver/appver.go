// Package appver implements the 8-byte client application version used to
// gate authentication (spec.md §3, §4.6 step 2).
package appver

import (
	"encoding/binary"
	"fmt"
)

// BuildTag is the fixed leading 4 bytes every version carries.
const BuildTag uint32 = 0x56440000

// Version is an 8-byte app version: a u32 build tag followed by
// release/major/minor/patch bytes. It compares lexicographically over all
// eight bytes, matching the wire representation.
type Version [8]byte

// Decode parses an 8-byte big-endian version.
func Decode(buf []byte) (Version, error) {
	if len(buf) != 8 {
		return Version{}, fmt.Errorf("appver: expected 8 bytes, got %d", len(buf))
	}
	var v Version
	copy(v[:], buf)
	return v, nil
}

// FromUint64 builds a Version from its big-endian uint64 representation,
// the form app_version takes once decoded from protobuf (spec.md §8
// scenario 2/3).
func FromUint64(u uint64) Version {
	var v Version
	binary.BigEndian.PutUint64(v[:], u)
	return v
}

// Uint64 returns the big-endian uint64 representation of v.
func (v Version) Uint64() uint64 {
	return binary.BigEndian.Uint64(v[:])
}

// BuildTag returns the leading 4-byte build tag.
func (v Version) BuildTag() uint32 {
	return binary.BigEndian.Uint32(v[0:4])
}

// Compare returns -1, 0, or 1 as v is lexicographically less than, equal to,
// or greater than other, comparing all eight bytes in order.
func (v Version) Compare(other Version) int {
	for i := range v {
		if v[i] != other[i] {
			if v[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// InRange reports whether v falls within [min, max] inclusive, the gate
// applied during the service-status step.
func (v Version) InRange(min, max Version) bool {
	return v.Compare(min) >= 0 && v.Compare(max) <= 0
}

func (v Version) String() string {
	return fmt.Sprintf("%08x", v.Uint64())
}
