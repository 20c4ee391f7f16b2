// internal/driver/ecr/text.go
package ecr

import (
	"encoding/hex"

	"golang.org/x/text/encoding/unicode"
)

// ToAnsi maps every character to its low 8 bits.
// Characters above 0xFF are truncated, not rejected.
func ToAnsi(text string) []byte {
	if text == "" {
		return nil
	}

	data := make([]byte, 0, len(text))
	for _, r := range text {
		data = append(data, byte(r))
	}
	return data
}

// LegacyText renders raw bytes the way the register's host software always has:
// as UTF-8, with every invalid sequence replaced by U+FFFD.
// Valid UTF-8 input comes back unchanged; bytes >= 0x80 in a frame usually do not.
func LegacyText(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	decoded, err := unicode.UTF8.NewDecoder().Bytes(data)
	if err != nil {
		// the replacing decoder does not fail on bad input
		return string(data)
	}
	return string(decoded)
}

// HexString formats bytes as two lowercase hex digits each
func HexString(data []byte) string {
	return hex.EncodeToString(data)
}
