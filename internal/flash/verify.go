package flash

import (
	"bytes"
	"fmt"
	"io"
)

// DefaultMagic is the first byte of a valid firmware image header
var DefaultMagic = []byte{0xE9}

// MagicVerifier accepts an image when it starts with the expected magic
// bytes and has a plausible length. It implements bridge.Verifier.
type MagicVerifier struct {
	magic []byte
}

// NewMagicVerifier creates a verifier for the given header magic; nil or
// empty falls back to DefaultMagic
func NewMagicVerifier(magic []byte) *MagicVerifier {
	if len(magic) == 0 {
		magic = DefaultMagic
	}
	return &MagicVerifier{magic: magic}
}

// Verify checks the written image header
func (v *MagicVerifier) Verify(r io.ReaderAt, length int64) error {
	if length < int64(len(v.magic)) {
		return fmt.Errorf("image too short: %d bytes", length)
	}

	header := make([]byte, len(v.magic))
	if _, err := r.ReadAt(header, 0); err != nil {
		return fmt.Errorf("read image header: %w", err)
	}
	if !bytes.Equal(header, v.magic) {
		return fmt.Errorf("bad image magic % X, expected % X", header, v.magic)
	}
	return nil
}

// NopVerifier accepts any non-empty image. Useful for data-only targets and
// development builds.
type NopVerifier struct{}

// Verify accepts length > 0
func (NopVerifier) Verify(_ io.ReaderAt, length int64) error {
	if length == 0 {
		return fmt.Errorf("empty image")
	}
	return nil
}
