package mzml

import (
	"github.com/rs/zerolog/log"
)

// BinaryDataArray describes one embedded array of a spectrum or
// chromatogram: where its base64 text is and how to decode it.
// The data itself is read only when the values are requested.
type BinaryDataArray struct {
	EncodedLength int   // Length of the base64 text in bytes
	ArrayLength   int   // Declared number of values (advisory)
	Position      int64 // Offset of the first base64 byte, -1 if unknown
	Compression   Compression
	Width         NumericWidth
	Role          ArrayRole

	compressionSet bool
	captured       []byte // base64 text captured while parsing
	unresolved     []string
	CVGroup
}

func newBinaryDataArray(encodedLength int, arrayLength int) *BinaryDataArray {
	return &BinaryDataArray{
		EncodedLength: encodedLength,
		ArrayLength:   arrayLength,
		Position:      -1,
	}
}

// SetCompression applies a compression CV term. zlib and a numpress codec
// combine into the composite compression regardless of their order; a
// composite is final. Returns false if the accession is not a compression.
func (b *BinaryDataArray) SetCompression(accession string) bool {
	c, ok := ResolveCompression(accession)
	if !ok {
		return false
	}
	b.combineCompression(c)
	return true
}

func (b *BinaryDataArray) combineCompression(c Compression) {
	cur := b.Compression
	switch {
	case !b.compressionSet || cur == CompressionNone:
		b.Compression = c
	case c == cur || c == CompressionNone:
		// repeated term
	case cur.Numpress() != CompressionNone && cur.Zlib():
		// composite is terminal
	case cur == CompressionZlib && c.Numpress() != CompressionNone:
		b.Compression = c.withZlib()
	case cur.Numpress() != CompressionNone && c.Zlib():
		b.Compression = cur.withZlib()
	default:
		log.Warn().Str("current", cur.String()).Str("new", c.String()).
			Msg("conflicting compression terms on binary data array, keeping the first")
	}
	b.compressionSet = true
}

// SetWidth applies a binary data type CV term
func (b *BinaryDataArray) SetWidth(accession string) bool {
	w, ok := ResolveWidth(accession)
	if ok {
		b.Width = w
	}
	return ok
}

// SetRole applies an array type CV term
func (b *BinaryDataArray) SetRole(accession string) bool {
	r, ok := ResolveRole(accession)
	if ok {
		b.Role = r
	}
	return ok
}

// SetPosition records the stream offset of the base64 text
func (b *BinaryDataArray) SetPosition(offset int64) {
	b.Position = offset
}

// addCVParam stores a CV parameter of the binaryDataArray element and
// resolves it. Accessions that are neither compression, width nor role
// are remembered for diagnostics.
func (b *BinaryDataArray) addCVParam(p CVParam) {
	b.CVGroup.addCVParam(p)
	if b.SetCompression(p.Accession) || b.SetWidth(p.Accession) || b.SetRole(p.Accession) {
		return
	}
	b.unresolved = append(b.unresolved, p.Accession)
}

// Resolved returns true if the array can be attached to its parent.
// Arrays whose role never resolved (charge, signal to noise, non-standard
// arrays) and arrays carrying any CV term that is not a role, compression
// or width are skipped: an unknown term may be a compression we cannot
// decode.
func (b *BinaryDataArray) Resolved() bool {
	if b.Role == RoleUnknown || len(b.unresolved) > 0 {
		return false
	}
	return b.Position >= 0 || b.captured != nil || b.EncodedLength == 0
}

// Captured returns true if the base64 text was copied while parsing
func (b *BinaryDataArray) Captured() bool {
	return b.captured != nil
}

// capture stores the base64 text of the array
func (b *BinaryDataArray) capture(text []byte) {
	b.captured = make([]byte, len(text))
	copy(b.captured, text)
}
