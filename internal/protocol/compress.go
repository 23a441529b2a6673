package protocol

import "fmt"

// Run-length payload compression. This is the legacy scheme carried for
// wire compatibility, not a general-purpose codec: runs of three or more
// identical bytes become `marker, count, byte`, and a literal marker byte
// is escaped as `marker, 0`.
const rleMarker = 0xFF

// Compress run-length encodes src. It returns (encoded, true) only when the
// encoded form is strictly smaller than src; otherwise (nil, false) and the
// payload goes out uncompressed.
func Compress(src []byte) ([]byte, bool) {
	if len(src) < 4 {
		return nil, false
	}

	out := make([]byte, 0, len(src))
	for i := 0; i < len(src); {
		b := src[i]
		run := 1
		for i+run < len(src) && src[i+run] == b && run < 255 {
			run++
		}

		if run > 2 {
			out = append(out, rleMarker, byte(run), b)
			i += run
			continue
		}

		out = append(out, b)
		if b == rleMarker {
			out = append(out, 0)
		}
		i++

		if len(out) >= len(src) {
			return nil, false
		}
	}

	if len(out) >= len(src) {
		return nil, false
	}
	return out, true
}

// Decompress expands RLE data, refusing to produce more than limit bytes.
// Counts and escapes come off the wire, so every read is bounds-checked.
func Decompress(src []byte, limit int) ([]byte, error) {
	out := make([]byte, 0, len(src))

	for i := 0; i < len(src); {
		b := src[i]
		i++

		if b != rleMarker {
			out = append(out, b)
		} else {
			if i >= len(src) {
				return nil, fmt.Errorf("truncated RLE marker")
			}
			count := src[i]
			i++

			if count == 0 {
				// Escaped literal marker byte.
				out = append(out, rleMarker)
			} else {
				if i >= len(src) {
					return nil, fmt.Errorf("truncated RLE run")
				}
				value := src[i]
				i++

				if len(out)+int(count) > limit {
					return nil, fmt.Errorf("RLE output exceeds %d bytes", limit)
				}
				for j := 0; j < int(count); j++ {
					out = append(out, value)
				}
			}
		}

		if len(out) > limit {
			return nil, fmt.Errorf("RLE output exceeds %d bytes", limit)
		}
	}

	return out, nil
}
