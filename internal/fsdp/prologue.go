package fsdp

// PrologueSize is the fixed byte count of the per-peer connection
// prologue a client's first UDP datagram may carry: two 17-byte
// player-name fields bracketing a single spacer byte (spec.md §3/§6).
const PrologueSize = 35

const (
	prologueExcludedLeadByteHbt  = 0xF5
	prologueExcludedLeadByteDat  = 0x25
)

// StripPrologue removes the leading 35-byte prologue from a peer's first
// UDP payload, iff it's actually present. Presence is detected by the
// leading byte, matching the wire behavior exactly (spec.md §6: "stripped
// iff leading byte != 0xF5 and != 0x25" — those two values mark a bare
// FSDP datagram with no prologue). If buf is too short to contain a
// prologue, it is returned unchanged.
func StripPrologue(buf []byte) []byte {
	if len(buf) < PrologueSize {
		return buf
	}
	lead := buf[0]
	if lead == prologueExcludedLeadByteHbt || lead == prologueExcludedLeadByteDat {
		return buf
	}
	return buf[PrologueSize:]
}
