package main

import (
	"github.com/rv16/rv16/internal/isa"
)

// containerMagic identifies the CLI's optional convenience container:
// "RV16" followed by a little-endian u16 load base and the raw image.
// Only cmd/rv16 knows about this; internal/asm and internal/machine stay
// headerless (SPEC_FULL.md §3).
var containerMagic = [4]byte{'R', 'V', '1', '6'}

// decodeImage strips the container header if present, returning the raw
// image bytes and the base address to load them at. Headerless input is
// loaded at the architectural reset PC.
func decodeImage(data []byte) ([]byte, uint16, error) {
	if len(data) >= 6 && data[0] == containerMagic[0] && data[1] == containerMagic[1] &&
		data[2] == containerMagic[2] && data[3] == containerMagic[3] {
		base := uint16(data[4]) | uint16(data[5])<<8
		return data[6:], base, nil
	}
	return data, uint16(isa.ResetPC), nil
}

// encodeContainer wraps image in the container header for `assemble
// --container`. The assembler itself never produces this; only the CLI
// does, on request.
func encodeContainer(image []byte, base uint16) []byte {
	out := make([]byte, 0, 6+len(image))
	out = append(out, containerMagic[:]...)
	out = append(out, byte(base), byte(base>>8))
	out = append(out, image...)
	return out
}
